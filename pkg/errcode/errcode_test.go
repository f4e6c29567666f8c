package errcode

import (
	"errors"
	"fmt"
	"os"
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCodeNil(t *testing.T) {
	assert.Zero(t, Code(nil))
}

func TestCodeUnwrapsPathError(t *testing.T) {
	err := &os.PathError{Op: "open", Path: "/nope", Err: syscall.ENOENT}
	assert.Equal(t, -int32(syscall.ENOENT), Code(err))
}

func TestCodeUnwrapsLinkError(t *testing.T) {
	err := &os.LinkError{Op: "rename", Old: "/a", New: "/b", Err: syscall.EXDEV}
	assert.Equal(t, -int32(syscall.EXDEV), Code(err))
}

func TestCodeUnwrapsWrappedChains(t *testing.T) {
	err := fmt.Errorf("outer: %w", fmt.Errorf("inner: %w", syscall.EACCES))
	assert.Equal(t, -int32(syscall.EACCES), Code(err))
}

func TestCodeFallsBackToEIO(t *testing.T) {
	assert.Equal(t, -int32(syscall.EIO), Code(errors.New("no errno anywhere")))
}

func TestIsUserCode(t *testing.T) {
	assert.True(t, IsUserCode(-int32(syscall.ENOENT)))
	assert.True(t, IsUserCode(-int32(syscall.ENOTDIR)))
	assert.True(t, IsUserCode(-int32(syscall.EEXIST)))

	assert.False(t, IsUserCode(0))
	assert.False(t, IsUserCode(-int32(syscall.EACCES)))
	assert.False(t, IsUserCode(-int32(syscall.EIO)))
}

func TestUserKind(t *testing.T) {
	kind, ok := UserKind(-int32(syscall.ENOENT))
	assert.True(t, ok)
	assert.Equal(t, "enoent", kind)

	_, ok = UserKind(-int32(syscall.EPERM))
	assert.False(t, ok)
}

func TestErrorRoundTrip(t *testing.T) {
	coded := Errno(syscall.EEXIST)
	assert.Equal(t, -int32(syscall.EEXIST), coded.Code)

	// The wrapped errno is recoverable from the chain.
	wrapped := fmt.Errorf("begin update: %w", coded)
	assert.Equal(t, -int32(syscall.EEXIST), Code(wrapped))

	var errno syscall.Errno
	assert.True(t, errors.As(wrapped, &errno))
	assert.Equal(t, syscall.EEXIST, errno)
}

func TestWrap(t *testing.T) {
	assert.Nil(t, Wrap(nil))

	coded := Wrap(&os.PathError{Op: "mkdir", Path: "/x", Err: syscall.EEXIST})
	assert.Equal(t, -int32(syscall.EEXIST), coded.Code)

	// Wrapping an already-coded error keeps the code.
	assert.Equal(t, coded, Wrap(fmt.Errorf("outer: %w", coded)))
}
