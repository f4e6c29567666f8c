package persist

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
)

// Store record grammar, one record per line:
//
//	START <staging-path>
//	WRITE <staging-path> /// <target-path> /// <size>
//
// The " /// " delimiter separates WRITE fields; paths must not contain it.
const (
	startPrefix    = "START "
	writePrefix    = "WRITE "
	writeDelimiter = " /// "
)

type recordType int

const (
	recordStart recordType = iota
	recordWrite
)

// record is one parsed store line. The transaction id is recovered from
// the decimal basename of the staging path.
type record struct {
	typ         recordType
	id          uint64
	stagingPath string
	targetPath  string
	size        int64
}

// idFromStagingPath parses the transaction id out of a staging path.
func idFromStagingPath(path string) (uint64, error) {
	id, err := strconv.ParseUint(filepath.Base(path), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("staging path %q has no decimal id: %w", path, err)
	}
	return id, nil
}

// parseRecord parses one store line. Lines that do not match the grammar
// (unknown prefix, missing delimiters, non-numeric size or id) return an
// error; recovery counts them as bad entries and keeps going.
func parseRecord(line string) (record, error) {
	switch {
	case strings.HasPrefix(line, startPrefix):
		staging := line[len(startPrefix):]
		id, err := idFromStagingPath(staging)
		if err != nil {
			return record{}, err
		}
		return record{typ: recordStart, id: id, stagingPath: staging}, nil

	case strings.HasPrefix(line, writePrefix):
		payload := line[len(writePrefix):]
		first := strings.Index(payload, writeDelimiter)
		if first < 0 {
			return record{}, fmt.Errorf("WRITE record missing first delimiter: %q", line)
		}
		rest := payload[first+len(writeDelimiter):]
		second := strings.Index(rest, writeDelimiter)
		if second < 0 {
			return record{}, fmt.Errorf("WRITE record missing second delimiter: %q", line)
		}

		staging := payload[:first]
		target := rest[:second]
		size, err := strconv.ParseInt(rest[second+len(writeDelimiter):], 10, 64)
		if err != nil {
			return record{}, fmt.Errorf("WRITE record has bad size: %q", line)
		}
		id, err := idFromStagingPath(staging)
		if err != nil {
			return record{}, err
		}
		return record{typ: recordWrite, id: id, stagingPath: staging, targetPath: target, size: size}, nil

	default:
		return record{}, fmt.Errorf("unknown record prefix: %q", line)
	}
}

// formatStart renders a START record line without the trailing newline.
func formatStart(stagingPath string) string {
	return startPrefix + stagingPath
}

// formatWrite renders a WRITE record line without the trailing newline.
func formatWrite(stagingPath, targetPath string, size int64) string {
	return writePrefix + stagingPath + writeDelimiter + targetPath + writeDelimiter + strconv.FormatInt(size, 10)
}
