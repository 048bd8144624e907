package utils

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestGenerateCallID_Unique(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		id := GenerateCallID()
		assert.NotEmpty(t, id)
		assert.False(t, seen[id], "duplicate call id generated")
		seen[id] = true
	}
}

func TestFormatDuration(t *testing.T) {
	assert.Equal(t, "500ms", FormatDuration(500*time.Millisecond))
	assert.Equal(t, "2m5s", FormatDuration(2*time.Minute+5*time.Second))
	assert.Equal(t, "1h30m", FormatDuration(90*time.Minute))
}

func TestParseDurationSafe(t *testing.T) {
	assert.Equal(t, 5*time.Second, ParseDurationSafe("5s", time.Minute))
	assert.Equal(t, time.Minute, ParseDurationSafe("garbage", time.Minute))
}

func TestIsExpired(t *testing.T) {
	assert.True(t, IsExpired(time.Now().Add(-2*time.Hour), time.Hour))
	assert.False(t, IsExpired(time.Now(), time.Hour))
}
