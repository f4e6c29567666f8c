package fileservice

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"syscall"
	"testing"

	"github.com/marmos91/filed/internal/protocol/filesvc"
	"github.com/marmos91/filed/pkg/eventlog"
	"github.com/marmos91/filed/pkg/persist"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestService wires a Service to fresh temp directories with a
// recovered engine.
func newTestService(t *testing.T) (*Service, string) {
	t.Helper()
	base := t.TempDir()
	mount := filepath.Join(base, "mount")
	require.NoError(t, os.Mkdir(mount, 0755))

	engine := persist.New(filepath.Join(base, "persist"), filepath.Join(base, "store"), nil)
	require.NoError(t, engine.Recover())
	t.Cleanup(func() { _ = engine.Close() })

	svc := New(Config{MountPoint: mount, Engine: engine})
	return svc, mount
}

func code(errno syscall.Errno) int32 {
	return -int32(errno)
}

func TestUploadDownloadRoundTrip(t *testing.T) {
	svc, mount := newTestService(t)
	ctx := context.Background()
	payload := []byte("hello, filed")

	info := svc.UploadFile(ctx, &filesvc.FileData{
		Path:     filesvc.Path{Data: "/greeting"},
		Contents: payload,
	})
	require.Zero(t, info.ErrorCode)
	assert.Equal(t, uint64(len(payload)), info.Size)

	file := svc.DownloadFile(ctx, &filesvc.Path{Data: "/greeting"})
	require.Zero(t, file.Info.ErrorCode)
	assert.Equal(t, payload, file.Contents)

	// The published file is the real thing on disk, not a staging alias.
	data, err := os.ReadFile(filepath.Join(mount, "greeting"))
	require.NoError(t, err)
	assert.Equal(t, payload, data)
}

func TestUploadOverwritesAtomically(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	first := svc.UploadFile(ctx, &filesvc.FileData{
		Path: filesvc.Path{Data: "/f"}, Contents: []byte("version one"),
	})
	require.Zero(t, first.ErrorCode)

	second := svc.UploadFile(ctx, &filesvc.FileData{
		Path: filesvc.Path{Data: "/f"}, Contents: []byte("v2"),
	})
	require.Zero(t, second.ErrorCode)

	file := svc.DownloadFile(ctx, &filesvc.Path{Data: "/f"})
	assert.Equal(t, []byte("v2"), file.Contents)
}

func TestUploadToMissingDirectoryFailsCleanly(t *testing.T) {
	svc, mount := newTestService(t)
	ctx := context.Background()

	info := svc.UploadFile(ctx, &filesvc.FileData{
		Path: filesvc.Path{Data: "/no-such-dir/f"}, Contents: []byte("x"),
	})
	assert.Equal(t, code(syscall.ENOENT), info.ErrorCode)
	assert.NoFileExists(t, filepath.Join(mount, "no-such-dir", "f"))
}

func TestCreateFileTwiceReturnsEEXIST(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	res := svc.CreateFile(ctx, &filesvc.Path{Data: "/once"})
	require.Zero(t, res.ErrorCode)

	res = svc.CreateFile(ctx, &filesvc.Path{Data: "/once"})
	assert.Equal(t, code(syscall.EEXIST), res.ErrorCode)
}

func TestCreateDirectoryThenListIncludesDotEntries(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	res := svc.CreateDirectory(ctx, &filesvc.Path{Data: "/d"})
	require.Zero(t, res.ErrorCode)

	dir := svc.GetDirectoryContents(ctx, &filesvc.Path{Data: "/d"})
	require.Zero(t, dir.ErrorCode)
	assert.Contains(t, dir.Contents, ".")
	assert.Contains(t, dir.Contents, "..")
}

func TestInterleavedDirectoryOperations(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	require.Zero(t, svc.CreateDirectory(ctx, &filesvc.Path{Data: "/d"}).ErrorCode)
	require.Zero(t, svc.CreateFile(ctx, &filesvc.Path{Data: "/d/f"}).ErrorCode)

	dir := svc.GetDirectoryContents(ctx, &filesvc.Path{Data: "/d"})
	require.Zero(t, dir.ErrorCode)
	assert.Contains(t, dir.Contents, "f")

	require.Zero(t, svc.RemoveFile(ctx, &filesvc.Path{Data: "/d/f"}).ErrorCode)
	require.Zero(t, svc.RemoveDirectory(ctx, &filesvc.Path{Data: "/d"}).ErrorCode)

	info := svc.GetFileInfo(ctx, &filesvc.Path{Data: "/d"})
	assert.Equal(t, code(syscall.ENOENT), info.ErrorCode)
}

func TestRemoveDirectoryOnFileFails(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	require.Zero(t, svc.CreateFile(ctx, &filesvc.Path{Data: "/plain"}).ErrorCode)
	res := svc.RemoveDirectory(ctx, &filesvc.Path{Data: "/plain"})
	assert.NotZero(t, res.ErrorCode)
}

func TestGetFileInfoFields(t *testing.T) {
	svc, mount := newTestService(t)
	ctx := context.Background()

	require.NoError(t, os.WriteFile(filepath.Join(mount, "f"), []byte("12345"), 0644))

	info := svc.GetFileInfo(ctx, &filesvc.Path{Data: "/f"})
	require.Zero(t, info.ErrorCode)
	assert.Equal(t, uint64(5), info.Size)
	assert.NotZero(t, info.Inode)
	assert.NotZero(t, info.ModificationTime)
	assert.EqualValues(t, 0644, info.Mode&0777)
}

func TestMissingPathsReturnENOENT(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	assert.Equal(t, code(syscall.ENOENT),
		svc.GetFileInfo(ctx, &filesvc.Path{Data: "/nope"}).ErrorCode)
	assert.Equal(t, code(syscall.ENOENT),
		svc.DownloadFile(ctx, &filesvc.Path{Data: "/nope"}).Info.ErrorCode)
	assert.Equal(t, code(syscall.ENOENT),
		svc.RemoveFile(ctx, &filesvc.Path{Data: "/nope"}).ErrorCode)
}

func TestEmptyServedPathIsIllegal(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	assert.Equal(t, code(syscall.EINVAL),
		svc.CreateDirectory(ctx, &filesvc.Path{Data: ""}).ErrorCode)
	assert.Equal(t, code(syscall.EINVAL),
		svc.UploadFile(ctx, &filesvc.FileData{Path: filesvc.Path{Data: ""}}).ErrorCode)
}

func TestMountPointTrailingSlashNormalized(t *testing.T) {
	base := t.TempDir()
	mount := filepath.Join(base, "mount")
	require.NoError(t, os.Mkdir(mount, 0755))

	engine := persist.New(filepath.Join(base, "persist"), filepath.Join(base, "store"), nil)
	require.NoError(t, engine.Recover())
	defer engine.Close()

	svc := New(Config{MountPoint: mount + "///", Engine: engine})
	assert.Equal(t, mount, svc.MountPoint())

	res := svc.CreateFile(context.Background(), &filesvc.Path{Data: "/f"})
	require.Zero(t, res.ErrorCode)
	assert.FileExists(t, filepath.Join(mount, "f"))
}

func TestServedPathWithoutLeadingSlash(t *testing.T) {
	svc, mount := newTestService(t)

	res := svc.CreateFile(context.Background(), &filesvc.Path{Data: "rel"})
	require.Zero(t, res.ErrorCode)
	assert.FileExists(t, filepath.Join(mount, "rel"))
}

func TestParallelUploadsToDistinctPaths(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	const uploads = 64
	var wg sync.WaitGroup
	codes := make([]int32, uploads)
	for i := 0; i < uploads; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			info := svc.UploadFile(ctx, &filesvc.FileData{
				Path:     filesvc.Path{Data: fmt.Sprintf("/file-%d", i)},
				Contents: bytes.Repeat([]byte{byte(i)}, 100+i),
			})
			codes[i] = info.ErrorCode
		}(i)
	}
	wg.Wait()

	for i := 0; i < uploads; i++ {
		require.Zero(t, codes[i], "upload %d", i)
		file := svc.DownloadFile(ctx, &filesvc.Path{Data: fmt.Sprintf("/file-%d", i)})
		require.Zero(t, file.Info.ErrorCode, "download %d", i)
		assert.Equal(t, bytes.Repeat([]byte{byte(i)}, 100+i), file.Contents, "contents %d", i)
	}
}

func TestUploadEmitsEvent(t *testing.T) {
	base := t.TempDir()
	mount := filepath.Join(base, "mount")
	require.NoError(t, os.Mkdir(mount, 0755))

	engine := persist.New(filepath.Join(base, "persist"), filepath.Join(base, "store"), nil)
	require.NoError(t, engine.Recover())
	defer engine.Close()

	var out bytes.Buffer
	events := eventlog.New(&out, eventlog.LevelInfo, false)
	svc := New(Config{MountPoint: mount, Engine: engine, Events: events})

	info := svc.UploadFile(context.Background(), &filesvc.FileData{
		Path: filesvc.Path{Data: "/f"}, Contents: []byte("hi"),
	})
	require.Zero(t, info.ErrorCode)
	assert.Contains(t, out.String(), "OK UploadFile /f 2 bytes")
}
