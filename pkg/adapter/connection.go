package adapter

import (
	"bufio"
	"context"
	"errors"
	"io"
	"net"

	"github.com/marmos91/filed/internal/logger"
	"github.com/marmos91/filed/internal/protocol/filesvc"
	"github.com/marmos91/filed/pkg/fileservice"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// connection serves the request loop for one client. Requests on a single
// connection are handled in order; parallelism comes from concurrent
// connections.
type connection struct {
	conn net.Conn
	svc  *fileservice.Service
	id   string
}

func newConnection(conn net.Conn, svc *fileservice.Service, id string) *connection {
	return &connection{conn: conn, svc: svc, id: id}
}

// Serve reads frames until the client hangs up, the stream turns
// malformed, or ctx is cancelled by server shutdown.
func (c *connection) Serve(ctx context.Context) {
	defer func() { _ = c.conn.Close() }()

	reader := bufio.NewReader(c.conn)
	writer := bufio.NewWriter(c.conn)
	tracer := otel.Tracer("filed/adapter")

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		frame, err := filesvc.ReadFrame(reader)
		if err != nil {
			if !errors.Is(err, io.EOF) {
				logger.Debug("read frame failed", "conn_id", c.id, "error", err)
			}
			return
		}

		call, err := filesvc.ParseCall(frame)
		if err != nil {
			logger.Debug("malformed call frame", "conn_id", c.id, "error", err)
			return
		}

		reply := c.handleCall(ctx, tracer, call)
		if err := filesvc.WriteFrame(writer, reply); err != nil {
			logger.Debug("write reply failed", "conn_id", c.id, "error", err)
			return
		}
		if err := writer.Flush(); err != nil {
			logger.Debug("flush reply failed", "conn_id", c.id, "error", err)
			return
		}
	}
}

// handleCall dispatches one call and builds the reply frame body.
func (c *connection) handleCall(ctx context.Context, tracer trace.Tracer, call *filesvc.Call) []byte {
	proc, ok := DispatchTable[call.Proc]
	if !ok {
		logger.Debug("procedure unavailable", "conn_id", c.id, "proc", call.Proc)
		return filesvc.EncodeReply(call.XID, filesvc.StatProcUnavailable, nil)
	}

	spanCtx, span := tracer.Start(ctx, proc.Name,
		trace.WithAttributes(attribute.String("filed.conn_id", c.id)))
	defer span.End()

	result, err := proc.Handler(spanCtx, c.svc, call.Args)
	if err != nil {
		logger.Debug("could not decode arguments", "conn_id", c.id,
			"procedure", proc.Name, "error", err)
		span.RecordError(err)
		return filesvc.EncodeReply(call.XID, filesvc.StatGarbageArgs, nil)
	}

	span.SetAttributes(attribute.Int("filed.error_code", int(result.ErrorCode)))
	return filesvc.EncodeReply(call.XID, filesvc.StatSuccess, result.Data)
}
