package queue

import (
	"testing"
	"time"
)

func TestBackoff(t *testing.T) {
	base, max := time.Second, 10*time.Second
	prev := time.Duration(0)
	for attempt := int64(1); attempt <= 3; attempt++ {
		d := Backoff(base, max, attempt)
		floor := base << (attempt - 1)
		if d < floor || d > floor+floor/5 {
			t.Errorf("Backoff(%d) = %s, want within [%s, %s]", attempt, d, floor, floor+floor/5)
		}
		if d < prev {
			t.Errorf("Backoff(%d) = %s decreased from %s", attempt, d, prev)
		}
		prev = d
	}
	if d := Backoff(base, max, 20); d > max+max/5 {
		t.Errorf("Backoff(20) = %s exceeds cap", d)
	}
	if d := Backoff(0, max, 3); d != 0 {
		t.Errorf("Backoff with zero base = %s", d)
	}
}
