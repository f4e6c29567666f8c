// Package xdr implements the RFC 4506 primitive encodings used by the
// filed wire protocol: big-endian fixed-width integers and 4-byte-aligned
// variable-length opaques and strings.
package xdr

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// WriteOpaque encodes variable-length opaque data: length + data + padding.
//
// Per RFC 4506 Section 4.10, opaque data is a uint32 byte count, the bytes
// themselves, and zero padding up to the next 4-byte boundary.
func WriteOpaque(buf *bytes.Buffer, data []byte) error {
	length := uint32(len(data))
	if err := binary.Write(buf, binary.BigEndian, length); err != nil {
		return fmt.Errorf("write opaque length: %w", err)
	}
	if _, err := buf.Write(data); err != nil {
		return fmt.Errorf("write opaque data: %w", err)
	}
	return WritePadding(buf, length)
}

// WriteString encodes a string: length + data + padding.
//
// Per RFC 4506 Section 4.11 this is identical to opaque encoding with the
// bytes interpreted as UTF-8.
func WriteString(buf *bytes.Buffer, s string) error {
	length := uint32(len(s))
	if err := binary.Write(buf, binary.BigEndian, length); err != nil {
		return fmt.Errorf("write string length: %w", err)
	}
	if _, err := buf.WriteString(s); err != nil {
		return fmt.Errorf("write string data: %w", err)
	}
	return WritePadding(buf, length)
}

// WritePadding writes zero bytes to align to a 4-byte boundary after
// dataLen bytes of variable-length data.
func WritePadding(buf *bytes.Buffer, dataLen uint32) error {
	padding := (4 - (dataLen % 4)) % 4
	if padding > 0 {
		var pad [3]byte
		if _, err := buf.Write(pad[:padding]); err != nil {
			return fmt.Errorf("write padding: %w", err)
		}
	}
	return nil
}

// WriteUint32 encodes a 32-bit unsigned integer in big-endian byte order.
func WriteUint32(buf *bytes.Buffer, v uint32) error {
	if err := binary.Write(buf, binary.BigEndian, v); err != nil {
		return fmt.Errorf("write uint32: %w", err)
	}
	return nil
}

// WriteUint64 encodes a 64-bit unsigned integer in big-endian byte order.
func WriteUint64(buf *bytes.Buffer, v uint64) error {
	if err := binary.Write(buf, binary.BigEndian, v); err != nil {
		return fmt.Errorf("write uint64: %w", err)
	}
	return nil
}

// WriteInt32 encodes a 32-bit signed integer (two's complement, big-endian).
func WriteInt32(buf *bytes.Buffer, v int32) error {
	if err := binary.Write(buf, binary.BigEndian, v); err != nil {
		return fmt.Errorf("write int32: %w", err)
	}
	return nil
}

// WriteInt64 encodes a 64-bit signed integer (two's complement, big-endian).
func WriteInt64(buf *bytes.Buffer, v int64) error {
	if err := binary.Write(buf, binary.BigEndian, v); err != nil {
		return fmt.Errorf("write int64: %w", err)
	}
	return nil
}

// WriteBool encodes a boolean as a uint32: 0 = false, 1 = true.
func WriteBool(buf *bytes.Buffer, v bool) error {
	var val uint32
	if v {
		val = 1
	}
	return WriteUint32(buf, val)
}
