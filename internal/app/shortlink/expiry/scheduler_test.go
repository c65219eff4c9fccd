package expiry

import (
	"context"
	"sync"
	"testing"
	"time"
)

type firedLog struct {
	mu    sync.Mutex
	codes []string
	at    map[string]time.Time
}

func newFiredLog() *firedLog {
	return &firedLog{at: make(map[string]time.Time)}
}

func (f *firedLog) dispatch(cmd Command) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.codes = append(f.codes, cmd.Code)
	f.at[cmd.Code] = time.Now()
}

func (f *firedLog) snapshot() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.codes...)
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before timeout")
}

func TestScheduler_FiresInDueOrder(t *testing.T) {
	s := NewScheduler()
	log := newFiredLog()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.Run(ctx, log.dispatch)

	s.ScheduleExpiry("c", 90*time.Millisecond)
	s.ScheduleExpiry("a", 10*time.Millisecond)
	s.ScheduleExpiry("b", 50*time.Millisecond)

	waitFor(t, 2*time.Second, func() bool { return len(log.snapshot()) == 3 })

	got := log.snapshot()
	want := []string{"a", "b", "c"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("order: got %v, want %v", got, want)
		}
	}
	if s.Pending() != 0 {
		t.Fatalf("Pending: got %d, want 0", s.Pending())
	}
}

func TestScheduler_NeverFiresEarly(t *testing.T) {
	s := NewScheduler()
	log := newFiredLog()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.Run(ctx, log.dispatch)

	start := time.Now()
	s.ScheduleExpiry("late", 80*time.Millisecond)

	waitFor(t, 2*time.Second, func() bool { return len(log.snapshot()) == 1 })

	log.mu.Lock()
	firedAt := log.at["late"]
	log.mu.Unlock()
	if elapsed := firedAt.Sub(start); elapsed < 80*time.Millisecond {
		t.Fatalf("fired after %v, want >= %v", elapsed, 80*time.Millisecond)
	}
}

func TestScheduler_EarlierCommandWakesSleepingLoop(t *testing.T) {
	s := NewScheduler()
	log := newFiredLog()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.Run(ctx, log.dispatch)

	s.ScheduleExpiry("far", time.Hour)
	time.Sleep(20 * time.Millisecond)
	s.ScheduleExpiry("near", 10*time.Millisecond)

	waitFor(t, 2*time.Second, func() bool { return len(log.snapshot()) == 1 })
	if got := log.snapshot()[0]; got != "near" {
		t.Fatalf("fired: got %q, want %q", got, "near")
	}
	if s.Pending() != 1 {
		t.Fatalf("Pending: got %d, want 1", s.Pending())
	}
}

func TestScheduler_FiresEachCommandOnce(t *testing.T) {
	s := NewScheduler()
	log := newFiredLog()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.Run(ctx, log.dispatch)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.ScheduleExpiry("same", 5*time.Millisecond)
		}()
	}
	wg.Wait()

	waitFor(t, 2*time.Second, func() bool { return len(log.snapshot()) == 50 })
	time.Sleep(30 * time.Millisecond)
	if got := len(log.snapshot()); got != 50 {
		t.Fatalf("dispatches: got %d, want %d", got, 50)
	}
}

func TestScheduler_RunReturnsOnCancel(t *testing.T) {
	s := NewScheduler()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Run(ctx, func(Command) {})
		close(done)
	}()

	s.ScheduleExpiry("pending", time.Hour)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
