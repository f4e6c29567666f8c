// Package filesvc defines the filed wire protocol: procedure numbers, the
// request and reply message types with their XDR encodings, and the
// record-marked framing used on the TCP stream.
package filesvc

import (
	"bytes"
	"fmt"
	"io"

	"github.com/marmos91/filed/internal/protocol/xdr"
)

// Procedure numbers. NULL is a no-op used as a liveness probe.
const (
	ProcNull uint32 = iota
	ProcCreateDirectory
	ProcCreateFile
	ProcRemoveDirectory
	ProcRemoveFile
	ProcGetFileInfo
	ProcGetDirectoryContents
	ProcDownloadFile
	ProcUploadFile
)

// MaxFileBytes bounds the contents field of a single upload or download
// message. Larger files need a streaming extension to the protocol.
const MaxFileBytes = 48 << 20 // 48 MiB

// maxDirEntries bounds decoded directory listings.
const maxDirEntries = 1 << 20

// ProcName returns the procedure name for logging.
func ProcName(proc uint32) string {
	switch proc {
	case ProcNull:
		return "Null"
	case ProcCreateDirectory:
		return "CreateDirectory"
	case ProcCreateFile:
		return "CreateFile"
	case ProcRemoveDirectory:
		return "RemoveDirectory"
	case ProcRemoveFile:
		return "RemoveFile"
	case ProcGetFileInfo:
		return "GetFileInfo"
	case ProcGetDirectoryContents:
		return "GetDirectoryContents"
	case ProcDownloadFile:
		return "DownloadFile"
	case ProcUploadFile:
		return "UploadFile"
	default:
		return fmt.Sprintf("Unknown(%d)", proc)
	}
}

// Path is the request body for all single-path procedures. Data is the
// served path, relative to the server's mount point.
type Path struct {
	Data string
}

// Encode writes the XDR encoding of p to buf.
func (p *Path) Encode(buf *bytes.Buffer) error {
	return xdr.WriteString(buf, p.Data)
}

// DecodePath reads a Path from r.
func DecodePath(r io.Reader) (*Path, error) {
	data, err := xdr.DecodeString(r)
	if err != nil {
		return nil, fmt.Errorf("decode path: %w", err)
	}
	return &Path{Data: data}, nil
}

// Result carries the outcome of a mutating operation with no payload.
// ErrorCode is 0 on success, else the negated OS errno.
type Result struct {
	ErrorCode int32
}

// Encode writes the XDR encoding of res to buf.
func (res *Result) Encode(buf *bytes.Buffer) error {
	return xdr.WriteInt32(buf, res.ErrorCode)
}

// DecodeResult reads a Result from r.
func DecodeResult(r io.Reader) (*Result, error) {
	code, err := xdr.DecodeInt32(r)
	if err != nil {
		return nil, fmt.Errorf("decode result: %w", err)
	}
	return &Result{ErrorCode: code}, nil
}

// FileInfo carries stat metadata for a served path. Times are Unix
// seconds. ErrorCode is 0 on success, else the negated OS errno; the
// remaining fields are meaningful only when ErrorCode is 0.
type FileInfo struct {
	ErrorCode        int32
	Mode             uint32
	Size             uint64
	Inode            uint64
	AccessTime       int64
	ModificationTime int64
	CreationTime     int64
}

// Encode writes the XDR encoding of info to buf.
func (info *FileInfo) Encode(buf *bytes.Buffer) error {
	if err := xdr.WriteInt32(buf, info.ErrorCode); err != nil {
		return err
	}
	if err := xdr.WriteUint32(buf, info.Mode); err != nil {
		return err
	}
	if err := xdr.WriteUint64(buf, info.Size); err != nil {
		return err
	}
	if err := xdr.WriteUint64(buf, info.Inode); err != nil {
		return err
	}
	if err := xdr.WriteInt64(buf, info.AccessTime); err != nil {
		return err
	}
	if err := xdr.WriteInt64(buf, info.ModificationTime); err != nil {
		return err
	}
	return xdr.WriteInt64(buf, info.CreationTime)
}

// DecodeFileInfo reads a FileInfo from r.
func DecodeFileInfo(r io.Reader) (*FileInfo, error) {
	var info FileInfo
	var err error
	if info.ErrorCode, err = xdr.DecodeInt32(r); err != nil {
		return nil, fmt.Errorf("decode file info: %w", err)
	}
	if info.Mode, err = xdr.DecodeUint32(r); err != nil {
		return nil, fmt.Errorf("decode file info: %w", err)
	}
	if info.Size, err = xdr.DecodeUint64(r); err != nil {
		return nil, fmt.Errorf("decode file info: %w", err)
	}
	if info.Inode, err = xdr.DecodeUint64(r); err != nil {
		return nil, fmt.Errorf("decode file info: %w", err)
	}
	if info.AccessTime, err = xdr.DecodeInt64(r); err != nil {
		return nil, fmt.Errorf("decode file info: %w", err)
	}
	if info.ModificationTime, err = xdr.DecodeInt64(r); err != nil {
		return nil, fmt.Errorf("decode file info: %w", err)
	}
	if info.CreationTime, err = xdr.DecodeInt64(r); err != nil {
		return nil, fmt.Errorf("decode file info: %w", err)
	}
	return &info, nil
}

// DirInfo carries a directory listing.
type DirInfo struct {
	ErrorCode int32
	Contents  []string
}

// Encode writes the XDR encoding of info to buf.
func (info *DirInfo) Encode(buf *bytes.Buffer) error {
	if err := xdr.WriteInt32(buf, info.ErrorCode); err != nil {
		return err
	}
	if err := xdr.WriteUint32(buf, uint32(len(info.Contents))); err != nil {
		return err
	}
	for _, name := range info.Contents {
		if err := xdr.WriteString(buf, name); err != nil {
			return err
		}
	}
	return nil
}

// DecodeDirInfo reads a DirInfo from r.
func DecodeDirInfo(r io.Reader) (*DirInfo, error) {
	code, err := xdr.DecodeInt32(r)
	if err != nil {
		return nil, fmt.Errorf("decode dir info: %w", err)
	}
	count, err := xdr.DecodeUint32(r)
	if err != nil {
		return nil, fmt.Errorf("decode dir info: %w", err)
	}
	if count > maxDirEntries {
		return nil, fmt.Errorf("dir entry count %d exceeds maximum %d", count, maxDirEntries)
	}
	info := &DirInfo{ErrorCode: code}
	for i := uint32(0); i < count; i++ {
		name, err := xdr.DecodeString(r)
		if err != nil {
			return nil, fmt.Errorf("decode dir entry %d: %w", i, err)
		}
		info.Contents = append(info.Contents, name)
	}
	return info, nil
}

// File is the download reply: stat metadata plus the file bytes.
type File struct {
	Info     FileInfo
	Contents []byte
}

// Encode writes the XDR encoding of f to buf.
func (f *File) Encode(buf *bytes.Buffer) error {
	if err := f.Info.Encode(buf); err != nil {
		return err
	}
	return xdr.WriteOpaque(buf, f.Contents)
}

// DecodeFile reads a File from r.
func DecodeFile(r io.Reader) (*File, error) {
	info, err := DecodeFileInfo(r)
	if err != nil {
		return nil, err
	}
	contents, err := xdr.DecodeOpaqueLimit(r, MaxFileBytes)
	if err != nil {
		return nil, fmt.Errorf("decode file contents: %w", err)
	}
	return &File{Info: *info, Contents: contents}, nil
}

// FileData is the upload request: the served path and the file bytes.
type FileData struct {
	Path     Path
	Contents []byte
}

// Encode writes the XDR encoding of fd to buf.
func (fd *FileData) Encode(buf *bytes.Buffer) error {
	if err := fd.Path.Encode(buf); err != nil {
		return err
	}
	return xdr.WriteOpaque(buf, fd.Contents)
}

// DecodeFileData reads a FileData from r.
func DecodeFileData(r io.Reader) (*FileData, error) {
	path, err := DecodePath(r)
	if err != nil {
		return nil, err
	}
	contents, err := xdr.DecodeOpaqueLimit(r, MaxFileBytes)
	if err != nil {
		return nil, fmt.Errorf("decode upload contents: %w", err)
	}
	return &FileData{Path: *path, Contents: contents}, nil
}
