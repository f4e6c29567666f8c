// Package fileservice implements the request handlers of the filed
// protocol: directory and file creation/removal, stat, directory listing,
// download, and the crash-consistent upload pipeline.
//
// Handlers never fail the RPC itself. Every outcome is mapped onto the
// reply's error code (0 or a negated errno) and reported to the event log.
package fileservice

import (
	"context"
	"io"
	"os"
	"strings"

	"github.com/marmos91/filed/internal/protocol/filesvc"
	"github.com/marmos91/filed/pkg/errcode"
	"github.com/marmos91/filed/pkg/eventlog"
	"github.com/marmos91/filed/pkg/metrics"
	"github.com/marmos91/filed/pkg/persist"
	"golang.org/x/sys/unix"
)

// downloadChunkSize bounds single reads when streaming a file into a
// download reply.
const downloadChunkSize = 1024

// Config collects the collaborators of a Service.
type Config struct {
	// MountPoint is the local directory whose subtree is served.
	// Trailing slashes are trimmed.
	MountPoint string

	// Engine is the persistence engine backing uploads. Recover must have
	// run before the service handles requests.
	Engine *persist.Engine

	// Events receives one event per request outcome.
	Events *eventlog.EventLog

	// CrashWrite enables the crash-on-write fault-injection hook used by
	// the recovery tests.
	CrashWrite bool
}

// Service handles file service requests against the local filesystem.
type Service struct {
	mount      string
	engine     *persist.Engine
	events     *eventlog.EventLog
	crashWrite bool
}

// New creates a Service. A nil Events sink is replaced with a discard log.
func New(cfg Config) *Service {
	events := cfg.Events
	if events == nil {
		events = eventlog.New(io.Discard, eventlog.LevelFatal, false)
	}
	return &Service{
		mount:      trimMount(cfg.MountPoint),
		engine:     cfg.Engine,
		events:     events,
		crashWrite: cfg.CrashWrite,
	}
}

// MountPoint returns the normalized mount point.
func (s *Service) MountPoint() string {
	return s.mount
}

// trimMount drops trailing slashes so path joining inserts exactly one
// separator. A bare "/" mount keeps its slash.
func trimMount(mount string) string {
	trimmed := strings.TrimRight(mount, "/")
	if trimmed == "" && strings.HasPrefix(mount, "/") {
		return "/"
	}
	return trimmed
}

// fullPath maps a served path onto the mount point. The separator is
// inserted only when the served path does not already begin with one.
// There is no symlink resolution and no ".." rejection; trust is assumed
// within the mount domain. An empty served path is illegal.
func (s *Service) fullPath(served string) (string, error) {
	if served == "" {
		return "", errcode.Errno(unix.EINVAL)
	}
	if strings.HasPrefix(served, "/") {
		return s.mount + served, nil
	}
	return s.mount + "/" + served, nil
}

// statInfo fills a FileInfo from a stat of fullPath. On failure only the
// error code is set.
func (s *Service) statInfo(fullPath string) *filesvc.FileInfo {
	var st unix.Stat_t
	if err := unix.Stat(fullPath, &st); err != nil {
		return &filesvc.FileInfo{ErrorCode: errcode.Code(err)}
	}

	atime, mtime, ctime := statTimes(&st)
	return &filesvc.FileInfo{
		Mode:             uint32(st.Mode),
		Size:             uint64(st.Size),
		Inode:            st.Ino,
		AccessTime:       atime,
		ModificationTime: mtime,
		CreationTime:     ctime,
	}
}

// CreateDirectory creates a directory with mode 0755.
func (s *Service) CreateDirectory(ctx context.Context, req *filesvc.Path) *filesvc.Result {
	full, err := s.fullPath(req.Data)
	if err != nil {
		code := errcode.Code(err)
		s.observe("CreateDirectory", code)
		s.events.CreateDirectoryEvent(full, req.Data, code)
		return &filesvc.Result{ErrorCode: code}
	}

	code := errcode.Code(os.Mkdir(full, 0755))
	s.observe("CreateDirectory", code)
	s.events.CreateDirectoryEvent(full, req.Data, code)
	return &filesvc.Result{ErrorCode: code}
}

// CreateFile creates an empty file. It fails with -EEXIST when the target
// already exists.
func (s *Service) CreateFile(ctx context.Context, req *filesvc.Path) *filesvc.Result {
	full, err := s.fullPath(req.Data)
	if err != nil {
		code := errcode.Code(err)
		s.observe("CreateFile", code)
		s.events.CreateFileEvent(full, req.Data, code)
		return &filesvc.Result{ErrorCode: code}
	}

	f, err := os.OpenFile(full, os.O_WRONLY|os.O_CREATE|os.O_EXCL|os.O_TRUNC, 0644)
	if err == nil {
		err = f.Close()
	}
	code := errcode.Code(err)
	s.observe("CreateFile", code)
	s.events.CreateFileEvent(full, req.Data, code)
	return &filesvc.Result{ErrorCode: code}
}

// RemoveDirectory removes an empty directory.
func (s *Service) RemoveDirectory(ctx context.Context, req *filesvc.Path) *filesvc.Result {
	full, err := s.fullPath(req.Data)
	if err != nil {
		code := errcode.Code(err)
		s.observe("RemoveDirectory", code)
		s.events.RemoveDirectoryEvent(full, req.Data, code)
		return &filesvc.Result{ErrorCode: code}
	}

	code := errcode.Code(unix.Rmdir(full))
	s.observe("RemoveDirectory", code)
	s.events.RemoveDirectoryEvent(full, req.Data, code)
	return &filesvc.Result{ErrorCode: code}
}

// RemoveFile unlinks a file. Removes bypass the persistence engine: they
// are idempotent and the filesystem itself is authoritative.
func (s *Service) RemoveFile(ctx context.Context, req *filesvc.Path) *filesvc.Result {
	full, err := s.fullPath(req.Data)
	if err != nil {
		code := errcode.Code(err)
		s.observe("RemoveFile", code)
		s.events.RemoveFileEvent(full, req.Data, code)
		return &filesvc.Result{ErrorCode: code}
	}

	code := errcode.Code(unix.Unlink(full))
	s.observe("RemoveFile", code)
	s.events.RemoveFileEvent(full, req.Data, code)
	return &filesvc.Result{ErrorCode: code}
}

// GetFileInfo returns stat metadata for a served path.
func (s *Service) GetFileInfo(ctx context.Context, req *filesvc.Path) *filesvc.FileInfo {
	full, err := s.fullPath(req.Data)
	if err != nil {
		code := errcode.Code(err)
		s.observe("GetFileInfo", code)
		s.events.FileInfoEvent(full, req.Data, nil, code)
		return &filesvc.FileInfo{ErrorCode: code}
	}

	info := s.statInfo(full)
	s.observe("GetFileInfo", info.ErrorCode)
	s.events.FileInfoEvent(full, req.Data, info, info.ErrorCode)
	return info
}

// GetDirectoryContents lists a directory. The reply includes "." and ".."
// followed by the directory entries, matching readdir semantics.
func (s *Service) GetDirectoryContents(ctx context.Context, req *filesvc.Path) *filesvc.DirInfo {
	full, err := s.fullPath(req.Data)
	if err != nil {
		code := errcode.Code(err)
		s.observe("GetDirectoryContents", code)
		s.events.GetDirectoryEvent(full, req.Data, code)
		return &filesvc.DirInfo{ErrorCode: code}
	}

	dir, err := os.Open(full)
	if err != nil {
		code := errcode.Code(err)
		s.observe("GetDirectoryContents", code)
		s.events.GetDirectoryEvent(full, req.Data, code)
		return &filesvc.DirInfo{ErrorCode: code}
	}
	defer dir.Close()

	names, err := dir.Readdirnames(-1)
	code := errcode.Code(err)
	s.observe("GetDirectoryContents", code)
	s.events.GetDirectoryEvent(full, req.Data, code)
	if code != 0 {
		return &filesvc.DirInfo{ErrorCode: code}
	}
	return &filesvc.DirInfo{Contents: append([]string{".", ".."}, names...)}
}

// DownloadFile streams a file into the reply in chunks and attaches stat
// metadata on success.
func (s *Service) DownloadFile(ctx context.Context, req *filesvc.Path) *filesvc.File {
	full, err := s.fullPath(req.Data)
	if err != nil {
		code := errcode.Code(err)
		s.observe("DownloadFile", code)
		s.events.DownloadFileEvent(full, req.Data, nil, code)
		return &filesvc.File{Info: filesvc.FileInfo{ErrorCode: code}}
	}

	f, err := os.Open(full)
	if err != nil {
		code := errcode.Code(err)
		s.observe("DownloadFile", code)
		s.events.DownloadFileEvent(full, req.Data, nil, code)
		return &filesvc.File{Info: filesvc.FileInfo{ErrorCode: code}}
	}
	defer f.Close()

	var contents []byte
	buf := make([]byte, downloadChunkSize)
	for {
		n, rerr := f.Read(buf)
		if n > 0 {
			contents = append(contents, buf[:n]...)
		}
		if rerr == io.EOF {
			break
		}
		if rerr != nil {
			code := errcode.Code(rerr)
			s.observe("DownloadFile", code)
			s.events.DownloadFileEvent(full, req.Data, contents, code)
			return &filesvc.File{Info: filesvc.FileInfo{ErrorCode: code}}
		}
	}

	info := s.statInfo(full)
	s.observe("DownloadFile", info.ErrorCode)
	if info.ErrorCode == 0 {
		metrics.BytesDownloaded.Add(float64(len(contents)))
	}
	s.events.DownloadFileEvent(full, req.Data, contents, info.ErrorCode)
	return &filesvc.File{Info: *info, Contents: contents}
}

func (s *Service) observe(procedure string, code int32) {
	metrics.ObserveRequest(procedure, code)
}
