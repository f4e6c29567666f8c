package fileservice

import (
	"context"
	"os"

	"github.com/marmos91/filed/internal/logger"
	"github.com/marmos91/filed/internal/protocol/filesvc"
	"github.com/marmos91/filed/pkg/errcode"
	"github.com/marmos91/filed/pkg/metrics"
	"github.com/marmos91/filed/pkg/persist"
)

// CrashTriggerPath is the served path that triggers the crash-on-write
// fault-injection hook when the service runs with CrashWrite enabled. The
// upload writes a truncated prefix, flushes it, and aborts the process
// without committing, so that recovery behavior is observable end to end.
const CrashTriggerPath = "/crash-me"

// uploadChunkSize bounds single writes when streaming upload bytes into
// the staging file.
const uploadChunkSize = 1024

// crashPrefixSize is how much of the upload the crash hook makes durable
// before aborting.
const crashPrefixSize = 1024

// UploadFile runs the crash-consistent upload pipeline:
//
//  1. Resolve the full target path.
//  2. Begin a persistence transaction (staging file + durable START).
//  3. Stream the request bytes into the staging file.
//  4. Commit (atomic rename + durable WRITE).
//  5. Re-stat the published target for the reply metadata.
//
// Any failure drops the token: the staging file and its START record stay
// behind for the next recovery, and the reply carries the negated errno.
// The target is never left partially written.
func (s *Service) UploadFile(ctx context.Context, file *filesvc.FileData) *filesvc.FileInfo {
	served := file.Path.Data
	full, err := s.fullPath(served)
	if err != nil {
		code := errcode.Code(err)
		s.observe("UploadFile", code)
		s.events.UploadFileEvent(full, served, file.Contents, code)
		return &filesvc.FileInfo{ErrorCode: code}
	}

	tok, err := s.engine.Begin(full)
	if err != nil {
		code := errcode.Code(err)
		logger.Error("upload could not begin transaction", "path", served, "error", err)
		s.observe("UploadFile", code)
		s.events.UploadFileEvent(full, served, file.Contents, code)
		return &filesvc.FileInfo{ErrorCode: code}
	}
	defer tok.Release()

	if s.crashWrite && served == CrashTriggerPath {
		s.crashDuringWrite(tok, file.Contents)
	}

	sink := tok.Stream()
	for off := 0; off < len(file.Contents); off += uploadChunkSize {
		end := off + uploadChunkSize
		if end > len(file.Contents) {
			end = len(file.Contents)
		}
		if _, werr := sink.Write(file.Contents[off:end]); werr != nil {
			code := errcode.Code(werr)
			logger.Error("upload write failed", "path", served, "id", tok.ID(), "error", werr)
			s.observe("UploadFile", code)
			s.events.UploadFileEvent(full, served, file.Contents, code)
			return &filesvc.FileInfo{ErrorCode: code}
		}
	}

	if cerr := s.engine.Commit(tok); cerr != nil {
		code := errcode.Code(cerr)
		logger.Error("upload commit failed", "path", served, "id", tok.ID(), "error", cerr)
		s.observe("UploadFile", code)
		s.events.UploadFileEvent(full, served, file.Contents, code)
		return &filesvc.FileInfo{ErrorCode: code}
	}

	info := s.statInfo(full)
	if info.ErrorCode == 0 {
		metrics.BytesUploaded.Add(float64(len(file.Contents)))
	}
	s.observe("UploadFile", info.ErrorCode)
	s.events.UploadFileEvent(full, served, file.Contents, info.ErrorCode)
	return info
}

// crashDuringWrite makes a truncated prefix of the upload durable in the
// staging file and kills the process before commit. It never returns.
func (s *Service) crashDuringWrite(tok *persist.UpdateToken, contents []byte) {
	prefix := contents
	if len(prefix) > crashPrefixSize {
		prefix = prefix[:crashPrefixSize]
	}
	if _, err := tok.Stream().Write(prefix); err != nil {
		logger.Error("crash hook write failed", "error", err)
	}
	if err := tok.Sync(); err != nil {
		logger.Error("crash hook sync failed", "error", err)
	}
	logger.Error("crash-on-write hook triggered, aborting",
		"staging", tok.StagingPath(), "bytes", len(prefix))
	os.Exit(1)
}
