// Package eventlog emits one human-readable line per request outcome.
//
// The event log is separate from the process logger: its lines are what
// operators grep for ("OK UploadFile /a/b", "USR RemoveFile @enoent /x"),
// so their shape stays put while the slog side is free to evolve. Every
// line is written under one mutex so concurrent requests never interleave
// output.
//
// Gating:
//   - info and above: successes as "OK <op> <path>", user errors as
//     "USR <op> @<kind> <path>".
//   - error and above: unexpected errors as "ERR <op> <path>".
//   - debug and above: " (<full-path>)" suffix and extended stat fields.
//   - the dump flag adds a sanitized preview of file contents.
package eventlog

import (
	"fmt"
	"io"
	"sync"

	"github.com/marmos91/filed/internal/protocol/filesvc"
	"github.com/marmos91/filed/pkg/errcode"
)

// Level is the event-log verbosity.
type Level int

const (
	LevelFatal Level = iota
	LevelError
	LevelInfo
	LevelDebug
	LevelTrace
)

// ToVerbosity maps the CLI verbosity integer 0..4 to a Level.
func ToVerbosity(v int) (Level, bool) {
	if v < 0 || v > 4 {
		return 0, false
	}
	return Level(v), true
}

func (l Level) String() string {
	switch l {
	case LevelFatal:
		return "fatal"
	case LevelError:
		return "error"
	case LevelInfo:
		return "info"
	case LevelDebug:
		return "debug"
	case LevelTrace:
		return "trace"
	default:
		return "unknown"
	}
}

// EventLog writes request outcome lines to a single sink.
type EventLog struct {
	mu        sync.Mutex
	out       io.Writer
	level     Level
	dumpFiles bool
}

// New creates an event log writing to out at the given level.
func New(out io.Writer, level Level, dumpFiles bool) *EventLog {
	return &EventLog{out: out, level: level, dumpFiles: dumpFiles}
}

// Level returns the configured verbosity.
func (l *EventLog) Level() Level {
	return l.level
}

// event writes the outcome line for one operation. size is a trailing
// " <n> bytes" annotation for transfer operations; negative means none.
func (l *EventLog) event(op, fullPath, path string, size int64, code int32) {
	if code == 0 {
		if l.level >= LevelInfo {
			fmt.Fprintf(l.out, "OK %s %s", op, path)
			if size >= 0 {
				fmt.Fprintf(l.out, " %d bytes", size)
			}
			l.debugSuffix(fullPath)
			fmt.Fprintln(l.out)
		}
		return
	}

	if kind, ok := errcode.UserKind(code); ok {
		if l.level >= LevelInfo {
			fmt.Fprintf(l.out, "USR %s @%s %s", op, kind, path)
			l.debugSuffix(fullPath)
			fmt.Fprintln(l.out)
		}
		return
	}

	if l.level >= LevelError {
		fmt.Fprintf(l.out, "ERR %s %s", op, path)
		if l.level >= LevelDebug {
			fmt.Fprintf(l.out, " (%s) error code: %d", fullPath, code)
		}
		fmt.Fprintln(l.out)
	}
}

func (l *EventLog) debugSuffix(fullPath string) {
	if l.level >= LevelDebug && fullPath != "" {
		fmt.Fprintf(l.out, " (%s)", fullPath)
	}
}

// CreateDirectoryEvent records the outcome of a CreateDirectory request.
func (l *EventLog) CreateDirectoryEvent(fullPath, path string, code int32) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.event("CreateDirectory", fullPath, path, -1, code)
}

// CreateFileEvent records the outcome of a CreateFile request.
func (l *EventLog) CreateFileEvent(fullPath, path string, code int32) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.event("CreateFile", fullPath, path, -1, code)
}

// RemoveDirectoryEvent records the outcome of a RemoveDirectory request.
func (l *EventLog) RemoveDirectoryEvent(fullPath, path string, code int32) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.event("RemoveDirectory", fullPath, path, -1, code)
}

// RemoveFileEvent records the outcome of a RemoveFile request.
func (l *EventLog) RemoveFileEvent(fullPath, path string, code int32) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.event("RemoveFile", fullPath, path, -1, code)
}

// GetDirectoryEvent records the outcome of a GetDirectoryContents request.
func (l *EventLog) GetDirectoryEvent(fullPath, path string, code int32) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.event("GetDirectoryContents", fullPath, path, -1, code)
}

// FileInfoEvent records the outcome of a GetFileInfo request. At debug and
// above the stat fields are printed on continuation lines.
func (l *EventLog) FileInfoEvent(fullPath, path string, info *filesvc.FileInfo, code int32) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if code != 0 || l.level < LevelDebug || info == nil {
		l.event("GetFileInfo", fullPath, path, -1, code)
		return
	}

	fmt.Fprintf(l.out, "OK GetFileInfo %s (%s)\n", path, fullPath)
	fmt.Fprintf(l.out, "      inode: %d\n", info.Inode)
	fmt.Fprintf(l.out, "      mode:  %o\n", info.Mode)
	fmt.Fprintf(l.out, "      size:  %d\n", info.Size)
	fmt.Fprintf(l.out, "      access time:       %d\n", info.AccessTime)
	fmt.Fprintf(l.out, "      modification time: %d\n", info.ModificationTime)
	fmt.Fprintf(l.out, "      creation time:     %d\n", info.CreationTime)
}

// DownloadFileEvent records the outcome of a DownloadFile request.
func (l *EventLog) DownloadFileEvent(fullPath, path string, contents []byte, code int32) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.transferEvent("DownloadFile", fullPath, path, contents, code)
}

// UploadFileEvent records the outcome of an UploadFile request.
func (l *EventLog) UploadFileEvent(fullPath, path string, contents []byte, code int32) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.transferEvent("UploadFile", fullPath, path, contents, code)
}

func (l *EventLog) transferEvent(op, fullPath, path string, contents []byte, code int32) {
	if code == 0 && l.level >= LevelInfo {
		fmt.Fprintf(l.out, "OK %s %s %d bytes", op, path, len(contents))
		if l.level >= LevelDebug {
			fmt.Fprintf(l.out, " (%s)", fullPath)
			l.dumpFile(contents)
		}
		fmt.Fprintln(l.out)
		return
	}
	l.event(op, fullPath, path, int64(len(contents)), code)
}

// dumpFile writes a sanitized preview of contents: up to 70 printable
// characters per line, tabs become spaces, a newline breaks the line, and
// the first non-printable byte aborts the preview. Callers hold the mutex.
func (l *EventLog) dumpFile(contents []byte) {
	if !l.dumpFiles {
		return
	}

	fmt.Fprint(l.out, "\n   data:")
	pos := 0
	abort := false
	for pos < len(contents) && !abort {
		fmt.Fprint(l.out, "\n      ")
		for i := 0; i < 70 && pos < len(contents); i++ {
			b := contents[pos]
			if b == '\n' {
				pos++
				break
			}
			if b == '\t' {
				fmt.Fprint(l.out, " ")
				pos++
				continue
			}
			if b >= 0x20 && b < 0x7f {
				fmt.Fprintf(l.out, "%c", b)
				pos++
				continue
			}
			abort = true
			fmt.Fprint(l.out, "\n   [binary data detected]")
			break
		}
	}
	fmt.Fprint(l.out, "\n   [end]")
}

// StartupEvent records server startup with the listen address and mount point.
func (l *EventLog) StartupEvent(mountPoint, address string) {
	if l.level < LevelInfo {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	fmt.Fprintf(l.out, "OK ServerStartup (%s):%s\n", address, mountPoint)
}

// PersistentDirectoryEvent records the persistent directory check during
// recovery: whether it already existed and whether creating it failed.
func (l *EventLog) PersistentDirectoryEvent(path string, existed bool, err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	switch {
	case err != nil:
		if l.level >= LevelError {
			fmt.Fprintf(l.out, "ERR PersistentDirectory %s\n", path)
		}
	case existed:
		if l.level >= LevelDebug {
			fmt.Fprintf(l.out, "OK PersistentDirectory %s\n", path)
		}
	default:
		if l.level >= LevelInfo {
			fmt.Fprintf(l.out, "OK PersistentDirectory @created %s\n", path)
		}
	}
}

// PersistentStartEvent records the outcome of store recovery: whether a
// prior store existed, whether malformed records were seen, and whether
// the fresh store opened.
func (l *EventLog) PersistentStartEvent(oldLog, badEntry, ok bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !ok {
		if l.level >= LevelError {
			fmt.Fprintln(l.out, "ERR PersistentStart")
		}
		return
	}
	if l.level < LevelInfo {
		return
	}
	switch {
	case badEntry:
		fmt.Fprintln(l.out, "OK PersistentStart @bad-entry")
	case !oldLog:
		fmt.Fprintln(l.out, "OK PersistentStart @fresh")
	default:
		fmt.Fprintln(l.out, "OK PersistentStart")
	}
}
