// Package persist implements the crash-consistency engine behind file
// uploads: a write-ahead log (the store), a staging directory, and a
// rename-based commit protocol.
//
// Protocol per transaction:
//
//  1. Begin allocates the next id, opens <dir>/<id> for writing, and
//     durably appends "START <staging>" before the caller writes any byte.
//  2. The caller streams the upload into the token's sink.
//  3. Commit closes the sink, stats the staged file, renames it onto the
//     target in one atomic step, and durably appends the WRITE record.
//
// A crash at any point leaves either no visible change at the target or
// the fully committed bytes; Recover finishes or discards every in-flight
// transaction at startup. Renames are atomic on local POSIX filesystems,
// which is what makes the middle step safe.
package persist

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"github.com/marmos91/filed/internal/logger"
	"github.com/marmos91/filed/pkg/eventlog"
	"github.com/marmos91/filed/pkg/metrics"
)

// ErrNotRecovered is returned by Begin before Recover has run.
var ErrNotRecovered = errors.New("persist: engine used before recovery")

// Engine is the persistent-state engine. One instance serves the whole
// process. The mutex serializes id allocation, store appends, and the
// rename-plus-append commit step; staging file I/O happens outside it so
// concurrent uploads to different files proceed in parallel.
type Engine struct {
	mu        sync.Mutex
	dir       string
	storePath string
	store     *os.File
	nextID    uint64
	recovered bool

	badEntries int
	events     *eventlog.EventLog
}

// New creates an engine for the given persistent directory and store file.
// Recover must be called once before any other operation. events may be
// nil; recovery then emits nothing to the event log.
func New(dir, storePath string, events *eventlog.EventLog) *Engine {
	return &Engine{dir: dir, storePath: storePath, events: events}
}

// Dir returns the persistent directory.
func (e *Engine) Dir() string {
	return e.dir
}

// StorePath returns the store file path.
func (e *Engine) StorePath() string {
	return e.storePath
}

// BadEntries returns the number of malformed store records skipped by the
// last recovery.
func (e *Engine) BadEntries() int {
	return e.badEntries
}

// Begin opens a new upload transaction targeting targetPath. It allocates
// the next id, creates the staging file, and durably appends the START
// record. The returned token owns the staging write stream.
//
// On any failure nothing is left behind: the staging file is removed and
// no record is appended.
func (e *Engine) Begin(targetPath string) (*UpdateToken, error) {
	e.mu.Lock()
	if !e.recovered {
		e.mu.Unlock()
		return nil, ErrNotRecovered
	}
	id := e.nextID
	e.nextID++
	e.mu.Unlock()

	staging := filepath.Join(e.dir, strconv.FormatUint(id, 10))
	stream, err := os.OpenFile(staging, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return nil, fmt.Errorf("open staging file: %w", err)
	}

	// The START record must be durable before the first byte is written.
	if err := e.appendRecord(formatStart(staging)); err != nil {
		_ = stream.Close()
		_ = os.Remove(staging)
		return nil, err
	}

	metrics.TransactionsStarted.Inc()
	return &UpdateToken{
		id:          id,
		stagingPath: staging,
		targetPath:  targetPath,
		stream:      stream,
	}, nil
}

// Commit publishes a staged upload: it closes the write stream, stats the
// staged file for its final size, renames it onto the target, and durably
// appends the WRITE record. The WRITE record is appended only after the
// rename has succeeded, so a logged WRITE always means the published state
// included this commit.
//
// On failure the token is spent but the staging file (when the rename did
// not happen) and its START record remain for the next recovery to clean
// up. The returned error unwraps to the causing errno.
func (e *Engine) Commit(tok *UpdateToken) error {
	if tok.stream == nil {
		return errors.New("persist: commit on released token")
	}
	if err := tok.stream.Sync(); err != nil {
		tok.Release()
		return fmt.Errorf("sync staging file: %w", err)
	}
	if err := tok.stream.Close(); err != nil {
		tok.stream = nil
		return fmt.Errorf("close staging file: %w", err)
	}
	tok.stream = nil

	info, err := os.Stat(tok.stagingPath)
	if err != nil {
		return fmt.Errorf("stat staging file: %w", err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if err := os.Rename(tok.stagingPath, tok.targetPath); err != nil {
		return fmt.Errorf("rename staging into place: %w", err)
	}
	if err := e.appendRecordLocked(formatWrite(tok.stagingPath, tok.targetPath, info.Size())); err != nil {
		// The rename already published the bytes; the missing WRITE only
		// costs recovery a tombstone lookup on the absent staging path.
		logger.Error("store append failed after rename", "id", tok.id, "error", err)
		return err
	}

	metrics.TransactionsCommitted.Inc()
	return nil
}

// appendRecord appends one record line to the store and syncs it.
func (e *Engine) appendRecord(line string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.appendRecordLocked(line)
}

func (e *Engine) appendRecordLocked(line string) error {
	if e.store == nil {
		return ErrNotRecovered
	}
	if _, err := e.store.WriteString(line + "\n"); err != nil {
		return fmt.Errorf("append store record: %w", err)
	}
	if err := e.store.Sync(); err != nil {
		return fmt.Errorf("sync store: %w", err)
	}
	return nil
}

// Close closes the store stream. The engine is unusable afterwards.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.recovered = false
	if e.store == nil {
		return nil
	}
	err := e.store.Close()
	e.store = nil
	return err
}
