package adapter

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"sync"
	"syscall"
	"testing"
	"time"

	"github.com/marmos91/filed/internal/protocol/filesvc"
	"github.com/marmos91/filed/pkg/client"
	"github.com/marmos91/filed/pkg/fileservice"
	"github.com/marmos91/filed/pkg/persist"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestDispatchTableCompleteness verifies all nine procedures are registered.
func TestDispatchTableCompleteness(t *testing.T) {
	expected := map[uint32]string{
		filesvc.ProcNull:                 "Null",
		filesvc.ProcCreateDirectory:      "CreateDirectory",
		filesvc.ProcCreateFile:           "CreateFile",
		filesvc.ProcRemoveDirectory:      "RemoveDirectory",
		filesvc.ProcRemoveFile:           "RemoveFile",
		filesvc.ProcGetFileInfo:          "GetFileInfo",
		filesvc.ProcGetDirectoryContents: "GetDirectoryContents",
		filesvc.ProcDownloadFile:         "DownloadFile",
		filesvc.ProcUploadFile:           "UploadFile",
	}

	assert.Equal(t, len(expected), len(DispatchTable),
		"dispatch table should have exactly %d procedures", len(expected))

	for procNum, name := range expected {
		entry, ok := DispatchTable[procNum]
		require.True(t, ok, "dispatch table missing procedure %d (%s)", procNum, name)
		assert.Equal(t, name, entry.Name)
		assert.NotNil(t, entry.Handler, "procedure %d (%s) handler should not be nil", procNum, name)
	}
}

// startTestServer brings up a full server on an ephemeral port and
// returns its address and mount point.
func startTestServer(t *testing.T) (string, string) {
	t.Helper()
	base := t.TempDir()
	mount := filepath.Join(base, "mount")
	require.NoError(t, os.Mkdir(mount, 0755))

	engine := persist.New(filepath.Join(base, "persist"), filepath.Join(base, "store"), nil)
	require.NoError(t, engine.Recover())
	t.Cleanup(func() { _ = engine.Close() })

	svc := fileservice.New(fileservice.Config{MountPoint: mount, Engine: engine})
	srv := NewServer(Config{BindAddress: "127.0.0.1", Port: 0, ShutdownTimeout: 2 * time.Second}, svc)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx) }()
	t.Cleanup(func() {
		cancel()
		select {
		case <-done:
		case <-time.After(5 * time.Second):
			t.Error("server did not shut down in time")
		}
	})

	return srv.Addr(), mount
}

func TestServerEndToEnd(t *testing.T) {
	addr, mount := startTestServer(t)

	c, err := client.Dial(addr)
	require.NoError(t, err)
	defer c.Close()

	require.NoError(t, c.Ping())

	code, err := c.CreateDirectory("/d")
	require.NoError(t, err)
	require.Zero(t, code)

	code, err = c.CreateFile("/d/f")
	require.NoError(t, err)
	require.Zero(t, code)

	// Creating the same file again is a user error, not a transport error.
	code, err = c.CreateFile("/d/f")
	require.NoError(t, err)
	assert.Equal(t, -int32(syscall.EEXIST), code)

	payload := []byte("uploaded over the wire")
	info, err := c.UploadFile("/d/f", payload)
	require.NoError(t, err)
	require.Zero(t, info.ErrorCode)
	assert.Equal(t, uint64(len(payload)), info.Size)

	file, err := c.DownloadFile("/d/f")
	require.NoError(t, err)
	require.Zero(t, file.Info.ErrorCode)
	assert.Equal(t, payload, file.Contents)

	dir, err := c.GetDirectoryContents("/d")
	require.NoError(t, err)
	require.Zero(t, dir.ErrorCode)
	assert.Contains(t, dir.Contents, "f")
	assert.Contains(t, dir.Contents, ".")
	assert.Contains(t, dir.Contents, "..")

	stat, err := c.GetFileInfo("/d/f")
	require.NoError(t, err)
	require.Zero(t, stat.ErrorCode)
	assert.Equal(t, uint64(len(payload)), stat.Size)

	code, err = c.RemoveFile("/d/f")
	require.NoError(t, err)
	require.Zero(t, code)
	code, err = c.RemoveDirectory("/d")
	require.NoError(t, err)
	require.Zero(t, code)

	stat, err = c.GetFileInfo("/d")
	require.NoError(t, err)
	assert.Equal(t, -int32(syscall.ENOENT), stat.ErrorCode)

	// The removals reached the real filesystem.
	assert.NoFileExists(t, filepath.Join(mount, "d", "f"))
}

func TestServerParallelUploads(t *testing.T) {
	addr, _ := startTestServer(t)

	const uploads = 64
	var wg sync.WaitGroup
	errs := make([]error, uploads)
	for i := 0; i < uploads; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			c, err := client.Dial(addr)
			if err != nil {
				errs[i] = err
				return
			}
			defer c.Close()

			path := fmt.Sprintf("/f-%d", i)
			payload := bytes.Repeat([]byte{byte(i)}, 512+i)
			info, err := c.UploadFile(path, payload)
			if err != nil {
				errs[i] = err
				return
			}
			if info.ErrorCode != 0 {
				errs[i] = fmt.Errorf("upload %s: error code %d", path, info.ErrorCode)
				return
			}

			file, err := c.DownloadFile(path)
			if err != nil {
				errs[i] = err
				return
			}
			if !bytes.Equal(file.Contents, payload) {
				errs[i] = fmt.Errorf("download %s: contents mismatch", path)
			}
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		assert.NoError(t, err, "client %d", i)
	}
}

// TestServerUnknownProcedure talks raw frames to verify the protocol-level
// error path.
func TestServerUnknownProcedure(t *testing.T) {
	addr, _ := startTestServer(t)

	conn, err := net.Dial("tcp", addr)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, filesvc.WriteFrame(conn, filesvc.EncodeCall(1, 999, nil)))

	frame, err := filesvc.ReadFrame(bufio.NewReader(conn))
	require.NoError(t, err)
	reply, err := filesvc.ParseReply(frame)
	require.NoError(t, err)
	assert.Equal(t, uint32(1), reply.XID)
	assert.Equal(t, filesvc.StatProcUnavailable, reply.Stat)
}

// TestServerGarbageArguments sends a frame whose arguments cannot be
// decoded as a Path.
func TestServerGarbageArguments(t *testing.T) {
	addr, _ := startTestServer(t)

	conn, err := net.Dial("tcp", addr)
	require.NoError(t, err)
	defer conn.Close()

	// Declared string length far beyond the actual bytes.
	args := []byte{0xff, 0xff, 0xff, 0xff}
	require.NoError(t, filesvc.WriteFrame(conn, filesvc.EncodeCall(2, filesvc.ProcCreateDirectory, args)))

	frame, err := filesvc.ReadFrame(bufio.NewReader(conn))
	require.NoError(t, err)
	reply, err := filesvc.ParseReply(frame)
	require.NoError(t, err)
	assert.Equal(t, filesvc.StatGarbageArgs, reply.Stat)
}

func TestServerGracefulShutdown(t *testing.T) {
	base := t.TempDir()
	mount := filepath.Join(base, "mount")
	require.NoError(t, os.Mkdir(mount, 0755))

	engine := persist.New(filepath.Join(base, "persist"), filepath.Join(base, "store"), nil)
	require.NoError(t, engine.Recover())
	defer engine.Close()

	svc := fileservice.New(fileservice.Config{MountPoint: mount, Engine: engine})
	srv := NewServer(Config{BindAddress: "127.0.0.1", Port: 0, ShutdownTimeout: 2 * time.Second}, svc)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx) }()

	// Make sure the listener is up, then shut down with no clients.
	_ = srv.Addr()
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}
