package adapter

import (
	"bytes"
	"context"
	"fmt"

	"github.com/marmos91/filed/internal/protocol/filesvc"
	"github.com/marmos91/filed/pkg/fileservice"
)

// HandlerResult carries a handler's encoded reply body and the wire error
// code it embedded, kept separate for metrics and logging.
type HandlerResult struct {
	// Data is the XDR-encoded result message.
	Data []byte

	// ErrorCode duplicates the error_code field inside Data.
	ErrorCode int32
}

// procedureHandler decodes the argument bytes, runs the operation against
// the service, and encodes the reply. A returned error means the argument
// bytes could not be decoded; the connection answers with a garbage-args
// status instead of a result.
type procedureHandler func(ctx context.Context, svc *fileservice.Service, args []byte) (*HandlerResult, error)

// procedure is one dispatch table entry.
type procedure struct {
	Name    string
	Handler procedureHandler
}

// DispatchTable maps procedure numbers to their handlers. It is
// initialized once at package init time.
var DispatchTable map[uint32]*procedure

func init() {
	DispatchTable = map[uint32]*procedure{
		filesvc.ProcNull:                 {Name: "Null", Handler: handleNull},
		filesvc.ProcCreateDirectory:      {Name: "CreateDirectory", Handler: handleCreateDirectory},
		filesvc.ProcCreateFile:           {Name: "CreateFile", Handler: handleCreateFile},
		filesvc.ProcRemoveDirectory:      {Name: "RemoveDirectory", Handler: handleRemoveDirectory},
		filesvc.ProcRemoveFile:           {Name: "RemoveFile", Handler: handleRemoveFile},
		filesvc.ProcGetFileInfo:          {Name: "GetFileInfo", Handler: handleGetFileInfo},
		filesvc.ProcGetDirectoryContents: {Name: "GetDirectoryContents", Handler: handleGetDirectoryContents},
		filesvc.ProcDownloadFile:         {Name: "DownloadFile", Handler: handleDownloadFile},
		filesvc.ProcUploadFile:           {Name: "UploadFile", Handler: handleUploadFile},
	}
}

func handleNull(ctx context.Context, svc *fileservice.Service, args []byte) (*HandlerResult, error) {
	return &HandlerResult{}, nil
}

// pathHandler adapts the Path→Result procedures.
func pathHandler(
	op func(*fileservice.Service, context.Context, *filesvc.Path) *filesvc.Result,
) procedureHandler {
	return func(ctx context.Context, svc *fileservice.Service, args []byte) (*HandlerResult, error) {
		path, err := filesvc.DecodePath(bytes.NewReader(args))
		if err != nil {
			return nil, err
		}
		res := op(svc, ctx, path)
		data, err := filesvc.EncodeMessage(res)
		if err != nil {
			return nil, fmt.Errorf("encode result: %w", err)
		}
		return &HandlerResult{Data: data, ErrorCode: res.ErrorCode}, nil
	}
}

var (
	handleCreateDirectory = pathHandler((*fileservice.Service).CreateDirectory)
	handleCreateFile      = pathHandler((*fileservice.Service).CreateFile)
	handleRemoveDirectory = pathHandler((*fileservice.Service).RemoveDirectory)
	handleRemoveFile      = pathHandler((*fileservice.Service).RemoveFile)
)

func handleGetFileInfo(ctx context.Context, svc *fileservice.Service, args []byte) (*HandlerResult, error) {
	path, err := filesvc.DecodePath(bytes.NewReader(args))
	if err != nil {
		return nil, err
	}
	info := svc.GetFileInfo(ctx, path)
	data, err := filesvc.EncodeMessage(info)
	if err != nil {
		return nil, fmt.Errorf("encode file info: %w", err)
	}
	return &HandlerResult{Data: data, ErrorCode: info.ErrorCode}, nil
}

func handleGetDirectoryContents(ctx context.Context, svc *fileservice.Service, args []byte) (*HandlerResult, error) {
	path, err := filesvc.DecodePath(bytes.NewReader(args))
	if err != nil {
		return nil, err
	}
	info := svc.GetDirectoryContents(ctx, path)
	data, err := filesvc.EncodeMessage(info)
	if err != nil {
		return nil, fmt.Errorf("encode dir info: %w", err)
	}
	return &HandlerResult{Data: data, ErrorCode: info.ErrorCode}, nil
}

func handleDownloadFile(ctx context.Context, svc *fileservice.Service, args []byte) (*HandlerResult, error) {
	path, err := filesvc.DecodePath(bytes.NewReader(args))
	if err != nil {
		return nil, err
	}
	file := svc.DownloadFile(ctx, path)
	data, err := filesvc.EncodeMessage(file)
	if err != nil {
		return nil, fmt.Errorf("encode file: %w", err)
	}
	return &HandlerResult{Data: data, ErrorCode: file.Info.ErrorCode}, nil
}

func handleUploadFile(ctx context.Context, svc *fileservice.Service, args []byte) (*HandlerResult, error) {
	fileData, err := filesvc.DecodeFileData(bytes.NewReader(args))
	if err != nil {
		return nil, err
	}
	info := svc.UploadFile(ctx, fileData)
	data, err := filesvc.EncodeMessage(info)
	if err != nil {
		return nil, fmt.Errorf("encode file info: %w", err)
	}
	return &HandlerResult{Data: data, ErrorCode: info.ErrorCode}, nil
}
