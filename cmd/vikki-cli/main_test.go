package main

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTimestamp(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)

	tests := []struct {
		in      string
		want    int64
		wantErr bool
	}{
		{in: "now", want: 1_700_000_000},
		{in: "1699999000", want: 1_699_999_000},
		{in: "-300", want: 1_699_999_700},
		{in: "0", want: 0},
		{in: "yesterday", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := parseTimestamp(tt.in, now)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
