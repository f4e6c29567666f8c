// Package client implements a Go client for the filed wire protocol. It
// backs the filedctl CLI and the end-to-end tests.
package client

import (
	"bufio"
	"bytes"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/marmos91/filed/internal/protocol/filesvc"
)

// Client is a connection to a filed server. Calls are serialized over one
// TCP connection; use one client per goroutine for parallel load.
type Client struct {
	mu      sync.Mutex
	conn    net.Conn
	reader  *bufio.Reader
	nextXID uint32
}

// Dial connects to a filed server at address (host:port).
func Dial(address string) (*Client, error) {
	return DialTimeout(address, 10*time.Second)
}

// DialTimeout connects with an explicit dial timeout.
func DialTimeout(address string, timeout time.Duration) (*Client, error) {
	conn, err := net.DialTimeout("tcp", address, timeout)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", address, err)
	}
	return &Client{conn: conn, reader: bufio.NewReader(conn)}, nil
}

// Close closes the connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

// call performs one request/response exchange and returns the result bytes.
func (c *Client) call(proc uint32, args []byte) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	xid := c.nextXID
	c.nextXID++

	if err := filesvc.WriteFrame(c.conn, filesvc.EncodeCall(xid, proc, args)); err != nil {
		return nil, fmt.Errorf("send %s: %w", filesvc.ProcName(proc), err)
	}

	frame, err := filesvc.ReadFrame(c.reader)
	if err != nil {
		return nil, fmt.Errorf("receive %s reply: %w", filesvc.ProcName(proc), err)
	}
	reply, err := filesvc.ParseReply(frame)
	if err != nil {
		return nil, fmt.Errorf("parse %s reply: %w", filesvc.ProcName(proc), err)
	}
	if reply.XID != xid {
		return nil, fmt.Errorf("%s reply xid mismatch: sent %d, got %d",
			filesvc.ProcName(proc), xid, reply.XID)
	}
	if reply.Stat != filesvc.StatSuccess {
		return nil, fmt.Errorf("%s failed with protocol status %d",
			filesvc.ProcName(proc), reply.Stat)
	}
	return reply.Result, nil
}

// callPath encodes a single-path request.
func (c *Client) callPath(proc uint32, path string) ([]byte, error) {
	buf := new(bytes.Buffer)
	req := filesvc.Path{Data: path}
	if err := req.Encode(buf); err != nil {
		return nil, fmt.Errorf("encode path: %w", err)
	}
	return c.call(proc, buf.Bytes())
}

// Ping performs a NULL call.
func (c *Client) Ping() error {
	_, err := c.call(filesvc.ProcNull, nil)
	return err
}

// CreateDirectory creates a directory on the server. The returned code is
// 0 or the negated errno from the server.
func (c *Client) CreateDirectory(path string) (int32, error) {
	return c.resultCall(filesvc.ProcCreateDirectory, path)
}

// CreateFile creates an empty file on the server.
func (c *Client) CreateFile(path string) (int32, error) {
	return c.resultCall(filesvc.ProcCreateFile, path)
}

// RemoveDirectory removes a directory on the server.
func (c *Client) RemoveDirectory(path string) (int32, error) {
	return c.resultCall(filesvc.ProcRemoveDirectory, path)
}

// RemoveFile removes a file on the server.
func (c *Client) RemoveFile(path string) (int32, error) {
	return c.resultCall(filesvc.ProcRemoveFile, path)
}

func (c *Client) resultCall(proc uint32, path string) (int32, error) {
	data, err := c.callPath(proc, path)
	if err != nil {
		return 0, err
	}
	res, err := filesvc.DecodeResult(bytes.NewReader(data))
	if err != nil {
		return 0, err
	}
	return res.ErrorCode, nil
}

// GetFileInfo returns stat metadata for a served path.
func (c *Client) GetFileInfo(path string) (*filesvc.FileInfo, error) {
	data, err := c.callPath(filesvc.ProcGetFileInfo, path)
	if err != nil {
		return nil, err
	}
	return filesvc.DecodeFileInfo(bytes.NewReader(data))
}

// GetDirectoryContents lists a served directory.
func (c *Client) GetDirectoryContents(path string) (*filesvc.DirInfo, error) {
	data, err := c.callPath(filesvc.ProcGetDirectoryContents, path)
	if err != nil {
		return nil, err
	}
	return filesvc.DecodeDirInfo(bytes.NewReader(data))
}

// DownloadFile fetches a file and its metadata.
func (c *Client) DownloadFile(path string) (*filesvc.File, error) {
	data, err := c.callPath(filesvc.ProcDownloadFile, path)
	if err != nil {
		return nil, err
	}
	return filesvc.DecodeFile(bytes.NewReader(data))
}

// UploadFile uploads contents to a served path and returns the published
// file's metadata.
func (c *Client) UploadFile(path string, contents []byte) (*filesvc.FileInfo, error) {
	buf := new(bytes.Buffer)
	req := filesvc.FileData{Path: filesvc.Path{Data: path}, Contents: contents}
	if err := req.Encode(buf); err != nil {
		return nil, fmt.Errorf("encode upload: %w", err)
	}
	data, err := c.call(filesvc.ProcUploadFile, buf.Bytes())
	if err != nil {
		return nil, err
	}
	return filesvc.DecodeFileInfo(bytes.NewReader(data))
}
