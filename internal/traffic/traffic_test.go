package traffic

import (
	"sync"
	"testing"
	"time"
)

func TestRequestCount_Empty(t *testing.T) {
	Reset()
	if n := RequestCount(time.Minute); n != 0 {
		t.Errorf("RequestCount() = %d, want 0", n)
	}
}

func TestPackageLevel_Counts(t *testing.T) {
	Reset()
	defer Reset()
	RecordSuccess()
	RecordSuccess()
	RecordError()
	RecordDenied()

	if n := RequestCount(time.Minute); n != 4 {
		t.Errorf("RequestCount() = %d, want 4", n)
	}
	if n := DenialCount(time.Minute); n != 1 {
		t.Errorf("DenialCount() = %d, want 1", n)
	}
	errs, total := ErrorRate(time.Minute)
	if errs != 1 || total != 3 {
		t.Errorf("ErrorRate() = (%d, %d), want (1, 3)", errs, total)
	}
}

// TestTracker_Window verifies that events older than the window are not counted
// and that events past retention are pruned.
func TestTracker_Window(t *testing.T) {
	tr := NewTracker()
	now := time.Date(2026, 10, 18, 12, 0, 0, 0, time.UTC)
	tr.now = func() time.Time { return now }

	tr.Record(Error)
	now = now.Add(90 * time.Second)
	tr.Record(Success)

	if n := tr.RequestCount(time.Minute); n != 1 {
		t.Errorf("RequestCount(1m) = %d, want 1", n)
	}
	if n := tr.RequestCount(2 * time.Minute); n != 2 {
		t.Errorf("RequestCount(2m) = %d, want 2", n)
	}

	now = now.Add(retention + time.Second)
	tr.Record(Denied)
	if got := len(tr.events); got != 1 {
		t.Errorf("len(events) after prune = %d, want 1", got)
	}
	if n := tr.Count(Denied, time.Minute); n != 1 {
		t.Errorf("Count(Denied) = %d, want 1", n)
	}
}

func TestTracker_Concurrent(t *testing.T) {
	tr := NewTracker()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tr.Record(Success)
			_ = tr.RequestCount(time.Minute)
		}()
	}
	wg.Wait()
	if n := tr.RequestCount(time.Minute); n != 50 {
		t.Errorf("RequestCount() = %d, want 50", n)
	}
}
