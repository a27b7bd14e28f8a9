package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestParseTime(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want time.Time
	}{
		{"rfc3339", "2024-06-03T08:00:00Z", time.Date(2024, 6, 3, 8, 0, 0, 0, time.UTC)},
		{"offset", "2024-06-03T10:00:00+02:00", time.Date(2024, 6, 3, 8, 0, 0, 0, time.UTC)},
		{"no zone", "2024-06-03T08:00:00.123456", time.Date(2024, 6, 3, 8, 0, 0, 123456000, time.UTC)},
		{"space separated", "2024-06-03 08:00:00", time.Date(2024, 6, 3, 8, 0, 0, 0, time.UTC)},
		{"date only", "2024-06-03", time.Date(2024, 6, 3, 0, 0, 0, 0, time.UTC)},
		{"unix millis", "1717401600000", time.Date(2024, 6, 3, 8, 0, 0, 0, time.UTC)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.True(t, tt.want.Equal(ParseTime(tt.in)), "got %v", ParseTime(tt.in))
		})
	}
}

func TestParseTimeInvalid(t *testing.T) {
	assert.True(t, ParseTime("").IsZero())
	assert.True(t, ParseTime("yesterday").IsZero())
}
