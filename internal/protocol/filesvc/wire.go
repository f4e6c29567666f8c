package filesvc

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
)

// MaxFrameSize caps a single record-marked frame. It leaves headroom above
// MaxFileBytes for the path and fixed header fields.
const MaxFrameSize = 64 << 20 // 64 MiB

// lastFragment is the record-marking high bit. Every filed message is a
// single fragment, so the bit is always set on the wire.
const lastFragment = 0x80000000

// Reply status codes. A non-zero status reply carries no result body.
const (
	StatSuccess uint32 = iota
	StatProcUnavailable
	StatGarbageArgs
)

// callHeaderSize is xid(4) + proc(4).
const callHeaderSize = 8

// replyHeaderSize is xid(4) + stat(4).
const replyHeaderSize = 8

// WriteFrame writes body to w prefixed with a record mark.
func WriteFrame(w io.Writer, body []byte) error {
	if len(body) > MaxFrameSize {
		return fmt.Errorf("frame size %d exceeds maximum %d", len(body), MaxFrameSize)
	}
	var mark [4]byte
	binary.BigEndian.PutUint32(mark[:], lastFragment|uint32(len(body)))
	if _, err := w.Write(mark[:]); err != nil {
		return fmt.Errorf("write record mark: %w", err)
	}
	if _, err := w.Write(body); err != nil {
		return fmt.Errorf("write frame body: %w", err)
	}
	return nil
}

// ReadFrame reads one record-marked frame from r. It returns io.EOF
// unwrapped when the stream ends cleanly between frames, so connection
// loops can distinguish client hangup from protocol errors.
func ReadFrame(r io.Reader) ([]byte, error) {
	var mark [4]byte
	if _, err := io.ReadFull(r, mark[:]); err != nil {
		if err == io.EOF {
			return nil, io.EOF
		}
		return nil, fmt.Errorf("read record mark: %w", err)
	}

	header := binary.BigEndian.Uint32(mark[:])
	if header&lastFragment == 0 {
		return nil, fmt.Errorf("multi-fragment records are not supported")
	}
	length := header &^ uint32(lastFragment)
	if length > MaxFrameSize {
		return nil, fmt.Errorf("frame size %d exceeds maximum %d", length, MaxFrameSize)
	}

	body := make([]byte, length)
	if _, err := io.ReadFull(r, body); err != nil {
		return nil, fmt.Errorf("read frame body: %w", err)
	}
	return body, nil
}

// Call is a parsed request frame.
type Call struct {
	XID  uint32
	Proc uint32
	Args []byte
}

// ParseCall splits a request frame into header and argument bytes.
func ParseCall(frame []byte) (*Call, error) {
	if len(frame) < callHeaderSize {
		return nil, fmt.Errorf("call frame too short: %d bytes", len(frame))
	}
	return &Call{
		XID:  binary.BigEndian.Uint32(frame[0:4]),
		Proc: binary.BigEndian.Uint32(frame[4:8]),
		Args: frame[callHeaderSize:],
	}, nil
}

// EncodeCall builds a request frame body for the given procedure.
func EncodeCall(xid, proc uint32, args []byte) []byte {
	body := make([]byte, callHeaderSize+len(args))
	binary.BigEndian.PutUint32(body[0:4], xid)
	binary.BigEndian.PutUint32(body[4:8], proc)
	copy(body[callHeaderSize:], args)
	return body
}

// EncodeReply builds a reply frame body.
func EncodeReply(xid, stat uint32, result []byte) []byte {
	body := make([]byte, replyHeaderSize+len(result))
	binary.BigEndian.PutUint32(body[0:4], xid)
	binary.BigEndian.PutUint32(body[4:8], stat)
	copy(body[replyHeaderSize:], result)
	return body
}

// Reply is a parsed reply frame.
type Reply struct {
	XID    uint32
	Stat   uint32
	Result []byte
}

// ParseReply splits a reply frame into header and result bytes.
func ParseReply(frame []byte) (*Reply, error) {
	if len(frame) < replyHeaderSize {
		return nil, fmt.Errorf("reply frame too short: %d bytes", len(frame))
	}
	return &Reply{
		XID:    binary.BigEndian.Uint32(frame[0:4]),
		Stat:   binary.BigEndian.Uint32(frame[4:8]),
		Result: frame[replyHeaderSize:],
	}, nil
}

// EncodeMessage renders an encodable message to its XDR bytes.
func EncodeMessage(msg interface {
	Encode(*bytes.Buffer) error
}) ([]byte, error) {
	buf := new(bytes.Buffer)
	if err := msg.Encode(buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
