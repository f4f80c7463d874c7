package policy

import (
	"context"
	"strings"
	"testing"
	"time"
)

func TestTemporalPolicy_InsideWindow(t *testing.T) {
	p := NewTemporalPolicy([]TimeWindow{
		{Start: ClockTime{Hour: 9}, End: ClockTime{Hour: 17}},
	})
	// Monday 10:30
	p.now = func() time.Time { return time.Date(2025, 6, 2, 10, 30, 0, 0, time.UTC) }

	dec := p.Evaluate(context.Background(), req("a", "t", "f"))
	if !dec.Allow {
		t.Errorf("10:30 should be inside 09:00-17:00: %+v", dec)
	}
}

func TestTemporalPolicy_OutsideWindow(t *testing.T) {
	p := NewTemporalPolicy([]TimeWindow{
		{Start: ClockTime{Hour: 9}, End: ClockTime{Hour: 17}},
	})
	p.now = func() time.Time { return time.Date(2025, 6, 2, 18, 45, 0, 0, time.UTC) }

	dec := p.Evaluate(context.Background(), req("a", "t", "f"))
	if dec.Allow {
		t.Fatal("18:45 should be outside the window")
	}
	if !strings.Contains(dec.Reason, "18:45") || !strings.Contains(dec.Reason, "Monday") {
		t.Errorf("denial should name the current time and day: %q", dec.Reason)
	}
}

func TestTemporalPolicy_BoundariesAreInclusive(t *testing.T) {
	p := NewTemporalPolicy([]TimeWindow{
		{Start: ClockTime{Hour: 9}, End: ClockTime{Hour: 17}},
	})

	p.now = func() time.Time { return time.Date(2025, 6, 2, 9, 0, 0, 0, time.UTC) }
	if dec := p.Evaluate(context.Background(), req("a", "t", "f")); !dec.Allow {
		t.Error("09:00 exactly should be allowed")
	}

	p.now = func() time.Time { return time.Date(2025, 6, 2, 17, 0, 0, 0, time.UTC) }
	if dec := p.Evaluate(context.Background(), req("a", "t", "f")); !dec.Allow {
		t.Error("17:00 exactly should be allowed")
	}

	p.now = func() time.Time { return time.Date(2025, 6, 2, 17, 1, 0, 0, time.UTC) }
	if dec := p.Evaluate(context.Background(), req("a", "t", "f")); dec.Allow {
		t.Error("17:01 should be denied")
	}
}

func TestTemporalPolicy_DayFilter(t *testing.T) {
	weekdays := map[time.Weekday]bool{
		time.Monday: true, time.Tuesday: true, time.Wednesday: true,
		time.Thursday: true, time.Friday: true,
	}
	p := NewTemporalPolicy([]TimeWindow{
		{Start: ClockTime{Hour: 9}, End: ClockTime{Hour: 17}, Days: weekdays},
	})

	// Saturday 10:00
	p.now = func() time.Time { return time.Date(2025, 6, 7, 10, 0, 0, 0, time.UTC) }
	if dec := p.Evaluate(context.Background(), req("a", "t", "f")); dec.Allow {
		t.Error("Saturday should be denied by the weekday filter")
	}

	// Friday 10:00
	p.now = func() time.Time { return time.Date(2025, 6, 6, 10, 0, 0, 0, time.UTC) }
	if dec := p.Evaluate(context.Background(), req("a", "t", "f")); !dec.Allow {
		t.Error("Friday should be allowed")
	}
}

func TestTemporalPolicy_MultipleWindows(t *testing.T) {
	p := NewTemporalPolicy([]TimeWindow{
		{Start: ClockTime{Hour: 9}, End: ClockTime{Hour: 12}},
		{Start: ClockTime{Hour: 14}, End: ClockTime{Hour: 17}},
	})

	p.now = func() time.Time { return time.Date(2025, 6, 2, 15, 0, 0, 0, time.UTC) }
	if dec := p.Evaluate(context.Background(), req("a", "t", "f")); !dec.Allow {
		t.Error("15:00 should match the second window")
	}

	p.now = func() time.Time { return time.Date(2025, 6, 2, 13, 0, 0, 0, time.UTC) }
	if dec := p.Evaluate(context.Background(), req("a", "t", "f")); dec.Allow {
		t.Error("13:00 falls between the windows and should be denied")
	}
}
