package policy

import (
	"context"
	"fmt"
	"time"

	"github.com/wardenlabs/warden/internal/engine"
)

// TimeWindow is a daily access window. Days uses time.Weekday; an empty
// set means every day.
type TimeWindow struct {
	Start ClockTime
	End   ClockTime
	Days  map[time.Weekday]bool
}

// ClockTime is a time of day, independent of date and zone.
type ClockTime struct {
	Hour   int
	Minute int
}

func (c ClockTime) minutes() int { return c.Hour*60 + c.Minute }

func (c ClockTime) String() string { return fmt.Sprintf("%02d:%02d", c.Hour, c.Minute) }

// TemporalPolicy allows requests only while the current local time falls
// inside one of the configured windows. Windows are checked in order,
// first match wins; they are never sorted or merged.
type TemporalPolicy struct {
	windows []TimeWindow

	now func() time.Time
}

// NewTemporalPolicy creates a policy over the given windows.
func NewTemporalPolicy(windows []TimeWindow) *TemporalPolicy {
	return &TemporalPolicy{windows: windows, now: time.Now}
}

func (p *TemporalPolicy) Evaluate(_ context.Context, _ *engine.Request) engine.Decision {
	now := p.now()
	current := ClockTime{Hour: now.Hour(), Minute: now.Minute()}
	day := now.Weekday()

	for _, w := range p.windows {
		if len(w.Days) > 0 && !w.Days[day] {
			continue
		}
		if w.Start.minutes() <= current.minutes() && current.minutes() <= w.End.minutes() {
			return engine.Decision{Allow: true, Reason: "Within allowed time window"}
		}
	}
	return engine.Decision{
		Allow:  false,
		Reason: fmt.Sprintf("Outside allowed time windows (current time %s, %s)", current, day),
	}
}
