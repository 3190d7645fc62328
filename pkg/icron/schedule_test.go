package icron

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetTriggerInfo(t *testing.T) {
	ref := time.Date(2026, 3, 10, 12, 34, 0, 0, time.UTC)

	tests := []struct {
		expr string
		last time.Time
		next time.Time
	}{
		{"*/10 * * * *", time.Date(2026, 3, 10, 12, 30, 0, 0, time.UTC), time.Date(2026, 3, 10, 12, 40, 0, 0, time.UTC)},
		{"0 3 * * *", time.Date(2026, 3, 10, 3, 0, 0, 0, time.UTC), time.Date(2026, 3, 11, 3, 0, 0, 0, time.UTC)},
		{"0 0 1 * *", time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC), time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)},
		{"@hourly", time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC), time.Date(2026, 3, 10, 13, 0, 0, 0, time.UTC)},
	}
	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			info, err := GetTriggerInfo(tt.expr, ref)
			require.NoError(t, err)
			assert.Equal(t, tt.last, info.Last)
			assert.Equal(t, tt.next, info.Next)
			assert.Equal(t, ref.Sub(tt.last), info.TimeSinceLast)
			assert.Equal(t, tt.next.Sub(ref), info.TimeUntilNext)
		})
	}
}

func TestGetTriggerInfo_Invalid(t *testing.T) {
	_, err := GetTriggerInfo("every minute", time.Now())
	assert.Error(t, err)
}
