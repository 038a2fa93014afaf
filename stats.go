package ecsdb

import (
	"time"
)

type Timings struct {
	Count         int
	Latest        time.Duration
	MovingAverage time.Duration
	Min, Max      time.Duration
	Total         time.Duration
}

func (t Timings) Add(d time.Duration) Timings {
	t.Latest = d
	t.Total += d

	if t.Count == 0 {
		t.Min = d
		t.Max = d
		t.MovingAverage = d
	} else {
		t.Min = min(t.Min, d)
		t.Max = max(t.Max, d)
		t.MovingAverage = (95*t.MovingAverage + 5*d) / 100
	}

	t.Count += 1

	return t
}

// Average returns the mean over all recorded durations.
func (t Timings) Average() time.Duration {
	if t.Count == 0 {
		return 0
	}

	return t.Total / time.Duration(t.Count)
}
