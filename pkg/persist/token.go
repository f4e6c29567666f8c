package persist

import (
	"io"
	"os"
)

// UpdateToken is the in-memory handle for one in-flight upload. It owns
// the staging path, the open write stream to it, and the target path.
//
// A token is created by Engine.Begin and consumed by Engine.Commit.
// Dropping a token without committing is the abort path: call Release to
// close the stream; the staging file and its START record stay on disk
// and are cleaned up by the next recovery.
type UpdateToken struct {
	id          uint64
	stagingPath string
	targetPath  string
	stream      *os.File
}

// ID returns the transaction id.
func (t *UpdateToken) ID() uint64 {
	return t.id
}

// StagingPath returns the staging file path inside the persistent directory.
func (t *UpdateToken) StagingPath() string {
	return t.stagingPath
}

// TargetPath returns the final destination under the mount point.
func (t *UpdateToken) TargetPath() string {
	return t.targetPath
}

// Stream returns the append-only write sink for the staged bytes. The
// engine does not buffer client data; writes go straight to the staging
// file.
func (t *UpdateToken) Stream() io.Writer {
	return t.stream
}

// Sync flushes staged bytes to disk. Used by the crash-injection hook to
// make a truncated prefix durable before aborting the process.
func (t *UpdateToken) Sync() error {
	return t.stream.Sync()
}

// Release closes the write stream if it is still open. Safe to call on
// every exit path, including after Commit (which closes the stream itself).
func (t *UpdateToken) Release() {
	if t.stream != nil {
		_ = t.stream.Close()
		t.stream = nil
	}
}
