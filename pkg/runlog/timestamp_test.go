package runlog

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestTimestamp_Scan(t *testing.T) {
	expected := time.Date(2025, 3, 1, 8, 30, 15, 123456000, time.UTC)

	tests := []struct {
		name  string
		value any
		valid bool
		err   bool
	}{
		{name: "nil", value: nil},
		{name: "time", value: expected, valid: true},
		{name: "sqlite text", value: "2025-03-01 08:30:15.123456+00:00", valid: true},
		{name: "rfc3339 bytes", value: []byte("2025-03-01T08:30:15.123456Z"), valid: true},
		{name: "unix nanos", value: expected.UnixNano(), valid: true},
		{name: "garbage", value: "yesterday", err: true},
		{name: "unsupported type", value: 3.14, err: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var ts timestamp
			err := ts.Scan(tt.value)
			if tt.err {
				require.Error(t, err)
				return
			}

			require.NoError(t, err)
			require.Equal(t, tt.valid, ts.Valid)
			if tt.valid {
				require.True(t, expected.Equal(ts.Time), ts.Time.String())
			}
		})
	}
}
