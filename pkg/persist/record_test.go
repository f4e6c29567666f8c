package persist

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRecord(t *testing.T) {
	tests := []struct {
		name    string
		line    string
		want    record
		wantErr bool
	}{
		{
			name: "start",
			line: "START /var/lib/filed/42",
			want: record{typ: recordStart, id: 42, stagingPath: "/var/lib/filed/42"},
		},
		{
			name: "write",
			line: "WRITE /p/7 /// /mnt/a/b /// 1024",
			want: record{typ: recordWrite, id: 7, stagingPath: "/p/7", targetPath: "/mnt/a/b", size: 1024},
		},
		{
			name:    "unknown prefix",
			line:    "DELETE /p/0",
			wantErr: true,
		},
		{
			name:    "write missing first delimiter",
			line:    "WRITE /p/0 /mnt/x 3",
			wantErr: true,
		},
		{
			name:    "write missing second delimiter",
			line:    "WRITE /p/0 /// /mnt/x 3",
			wantErr: true,
		},
		{
			name:    "write non-numeric size",
			line:    "WRITE /p/0 /// /mnt/x /// lots",
			wantErr: true,
		},
		{
			name:    "start without numeric id",
			line:    "START /p/not-a-number",
			wantErr: true,
		},
		{
			name:    "empty line",
			line:    "",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseRecord(tt.line)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFormatAndParseRoundTrip(t *testing.T) {
	start := formatStart("/p/3")
	rec, err := parseRecord(start)
	require.NoError(t, err)
	assert.Equal(t, uint64(3), rec.id)

	write := formatWrite("/p/3", "/mnt/out", 99)
	rec, err = parseRecord(write)
	require.NoError(t, err)
	assert.Equal(t, recordWrite, rec.typ)
	assert.Equal(t, "/mnt/out", rec.targetPath)
	assert.Equal(t, int64(99), rec.size)
}
