package persist

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"

	"github.com/marmos91/filed/internal/logger"
	"github.com/marmos91/filed/pkg/metrics"
)

// Recover replays the previous store, finishes or discards every
// in-flight transaction, and reopens the store fresh for appends. It must
// be called once before Begin or Commit.
//
// Algorithm:
//
//  1. Create the persistent directory if it does not exist.
//  2. Open the previous store; a missing store means a clean first start.
//  3. Replay records in order. A START enters its transaction into the
//     started set (replacing a duplicate id). A WRITE whose staging file
//     is gone is a tombstone: the rename already happened, drop the id.
//     A WRITE whose staging file survives cannot come from Commit, which
//     appends WRITE only after a successful rename; it comes from an
//     injected or foreign store, and the rename is retried now.
//  4. Delete every staging file still in the set, then sweep the
//     persistent directory: files never named by a durable record (a
//     crash can truncate the last line) are discarded too.
//  5. Reopen the store truncated. The id counter restarts at zero, which
//     is safe because the directory is empty at this point.
//
// Malformed records are counted and skipped; they never abort recovery.
func (e *Engine) Recover() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.badEntries = 0

	// 1. Persistent directory.
	existed := true
	if _, err := os.Stat(e.dir); err != nil {
		if !os.IsNotExist(err) {
			e.noteDir(existed, err)
			return fmt.Errorf("stat persistent directory: %w", err)
		}
		existed = false
		if err := os.MkdirAll(e.dir, 0755); err != nil {
			e.noteDir(existed, err)
			return fmt.Errorf("create persistent directory: %w", err)
		}
	}
	e.noteDir(existed, nil)

	// 2. Previous store.
	oldLog := true
	prev, err := os.Open(e.storePath)
	if err != nil {
		if !os.IsNotExist(err) {
			e.noteStart(oldLog, false)
			return fmt.Errorf("open previous store: %w", err)
		}
		oldLog = false
	}

	// 3. Replay.
	committed, orphans := 0, 0
	started := make(map[uint64]record)
	if prev != nil {
		scanner := bufio.NewScanner(prev)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for scanner.Scan() {
			rec, perr := parseRecord(scanner.Text())
			if perr != nil {
				e.badEntries++
				logger.Warn("skipping malformed store record", "error", perr)
				continue
			}

			switch rec.typ {
			case recordStart:
				started[rec.id] = rec
			case recordWrite:
				if _, serr := os.Stat(rec.stagingPath); serr != nil {
					// Rename already happened, or the staging file is gone
					// some other way; nothing left to publish.
					delete(started, rec.id)
					continue
				}
				if rerr := os.Rename(rec.stagingPath, rec.targetPath); rerr != nil {
					// Target directory may have vanished; leave the staging
					// file for the cleanup pass below.
					logger.Warn("recovery rename failed", "id", rec.id,
						"target", rec.targetPath, "error", rerr)
					started[rec.id] = rec
					continue
				}
				committed++
				delete(started, rec.id)
			}
		}
		if serr := scanner.Err(); serr != nil {
			_ = prev.Close()
			e.noteStart(oldLog, false)
			return fmt.Errorf("read previous store: %w", serr)
		}
		_ = prev.Close()
	}

	// 4. Discard transactions without a WRITE, then anything else the log
	// never durably named.
	for _, rec := range started {
		if err := os.Remove(rec.stagingPath); err != nil && !os.IsNotExist(err) {
			logger.Warn("could not remove staging file", "path", rec.stagingPath, "error", err)
		} else {
			orphans++
		}
	}
	entries, err := os.ReadDir(e.dir)
	if err != nil {
		e.noteStart(oldLog, false)
		return fmt.Errorf("list persistent directory: %w", err)
	}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		path := filepath.Join(e.dir, entry.Name())
		if err := os.Remove(path); err != nil {
			logger.Warn("could not remove stray staging file", "path", path, "error", err)
			continue
		}
		orphans++
	}

	// 5. Fresh store.
	store, err := os.OpenFile(e.storePath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		e.noteStart(oldLog, false)
		return fmt.Errorf("open store for append: %w", err)
	}
	if e.store != nil {
		_ = e.store.Close()
	}
	e.store = store
	e.nextID = 0
	e.recovered = true

	metrics.RecoveredCommits.Add(float64(committed))
	metrics.RecoveredOrphans.Add(float64(orphans))
	metrics.StoreBadEntries.Add(float64(e.badEntries))

	logger.Info("persistent state recovered",
		"store", e.storePath,
		"committed", committed,
		"orphans_removed", orphans,
		"bad_entries", e.badEntries)
	e.noteStart(oldLog, true)
	return nil
}

func (e *Engine) noteDir(existed bool, err error) {
	if e.events != nil {
		e.events.PersistentDirectoryEvent(e.dir, existed, err)
	}
}

func (e *Engine) noteStart(oldLog, ok bool) {
	if e.events != nil {
		e.events.PersistentStartEvent(oldLog, e.badEntries > 0, ok)
	}
}
