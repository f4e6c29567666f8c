package xdr

import (
	"encoding/binary"
	"fmt"
	"io"
)

// DefaultMaxOpaque bounds opaque and string fields that are not file
// contents. Paths and directory entries never come close to this.
const DefaultMaxOpaque = 1 << 20 // 1 MiB

// DecodeOpaque decodes variable-length opaque data with the default
// length bound. See DecodeOpaqueLimit.
func DecodeOpaque(reader io.Reader) ([]byte, error) {
	return DecodeOpaqueLimit(reader, DefaultMaxOpaque)
}

// DecodeOpaqueLimit decodes variable-length opaque data:
// [length:uint32][data][padding to 4-byte boundary].
//
// The declared length is validated against limit before any allocation so
// a malicious peer cannot make the server allocate arbitrary memory.
func DecodeOpaqueLimit(reader io.Reader, limit uint32) ([]byte, error) {
	var length uint32
	if err := binary.Read(reader, binary.BigEndian, &length); err != nil {
		return nil, fmt.Errorf("read length: %w", err)
	}
	if length > limit {
		return nil, fmt.Errorf("opaque length %d exceeds maximum %d", length, limit)
	}

	data := make([]byte, length)
	if _, err := io.ReadFull(reader, data); err != nil {
		return nil, fmt.Errorf("read data: %w", err)
	}

	// Padding is at most 3 bytes; skip with a stack buffer.
	padding := (4 - (length % 4)) % 4
	if padding > 0 {
		var pad [3]byte
		if _, err := io.ReadFull(reader, pad[:padding]); err != nil {
			return nil, fmt.Errorf("skip padding: %w", err)
		}
	}

	return data, nil
}

// DecodeString decodes a variable-length string (opaque interpreted as UTF-8).
func DecodeString(reader io.Reader) (string, error) {
	data, err := DecodeOpaque(reader)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// DecodeUint32 decodes a big-endian 32-bit unsigned integer.
func DecodeUint32(reader io.Reader) (uint32, error) {
	var v uint32
	if err := binary.Read(reader, binary.BigEndian, &v); err != nil {
		return 0, fmt.Errorf("read uint32: %w", err)
	}
	return v, nil
}

// DecodeUint64 decodes a big-endian 64-bit unsigned integer.
func DecodeUint64(reader io.Reader) (uint64, error) {
	var v uint64
	if err := binary.Read(reader, binary.BigEndian, &v); err != nil {
		return 0, fmt.Errorf("read uint64: %w", err)
	}
	return v, nil
}

// DecodeInt32 decodes a big-endian 32-bit signed integer.
func DecodeInt32(reader io.Reader) (int32, error) {
	var v int32
	if err := binary.Read(reader, binary.BigEndian, &v); err != nil {
		return 0, fmt.Errorf("read int32: %w", err)
	}
	return v, nil
}

// DecodeInt64 decodes a big-endian 64-bit signed integer.
func DecodeInt64(reader io.Reader) (int64, error) {
	var v int64
	if err := binary.Read(reader, binary.BigEndian, &v); err != nil {
		return 0, fmt.Errorf("read int64: %w", err)
	}
	return v, nil
}

// DecodeBool decodes a uint32-encoded boolean. Any nonzero value is true.
func DecodeBool(reader io.Reader) (bool, error) {
	v, err := DecodeUint32(reader)
	if err != nil {
		return false, err
	}
	return v != 0, nil
}
