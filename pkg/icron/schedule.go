package icron

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
)

type TriggerInfo struct {
	Next       time.Time `json:"next"`
	Last       time.Time `json:"last"`
	Expression string    `json:"expression"`

	TimeSinceLast time.Duration `json:"time_since_last"`
	TimeUntilNext time.Duration `json:"time_until_next"`
}

// lookback windows tried in order when searching for the previous trigger.
var lookback = []time.Duration{
	time.Hour,
	24 * time.Hour,
	31 * 24 * time.Hour,
	366 * 24 * time.Hour,
}

// GetTriggerInfo reports the previous and next activation of a standard
// five-field cron expression around refTime. Last is zero when the schedule
// did not fire within the past year.
func GetTriggerInfo(cronExpr string, refTime time.Time) (*TriggerInfo, error) {
	schedule, err := cron.ParseStandard(cronExpr)
	if err != nil {
		return nil, fmt.Errorf("invalid cron expression: %w", err)
	}

	info := &TriggerInfo{
		Expression: cronExpr,
		Next:       schedule.Next(refTime),
		Last:       previous(schedule, refTime),
	}
	if !info.Last.IsZero() {
		info.TimeSinceLast = refTime.Sub(info.Last)
	}
	info.TimeUntilNext = info.Next.Sub(refTime)
	return info, nil
}

func previous(schedule cron.Schedule, refTime time.Time) time.Time {
	for _, window := range lookback {
		var prev time.Time
		for t := schedule.Next(refTime.Add(-window)); !t.IsZero() && !t.After(refTime); t = schedule.Next(t) {
			prev = t
		}
		if !prev.IsZero() {
			return prev
		}
	}
	return time.Time{}
}
