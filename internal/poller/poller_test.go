package poller

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

// scriptedRefresher returns the scripted results in order, then blocks
// "no change" forever. It records the gap between consecutive calls.
type scriptedRefresher struct {
	mu      sync.Mutex
	script  []result
	calls   int
	lastAt  time.Time
	gaps    []time.Duration
	allDone chan struct{}
}

type result struct {
	changed bool
	err     error
}

func newScripted(script ...result) *scriptedRefresher {
	return &scriptedRefresher{script: script, allDone: make(chan struct{})}
}

func (s *scriptedRefresher) Refresh(_ context.Context) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	if !s.lastAt.IsZero() {
		s.gaps = append(s.gaps, now.Sub(s.lastAt))
	}
	s.lastAt = now
	idx := s.calls
	s.calls++
	if idx < len(s.script) {
		if s.calls == len(s.script) {
			close(s.allDone)
		}
		return s.script[idx].changed, s.script[idx].err
	}
	return false, nil
}

func (s *scriptedRefresher) snapshot() (int, []time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls, append([]time.Duration(nil), s.gaps...)
}

func runUntilScriptDone(t *testing.T, p *Poller, s *scriptedRefresher) {
	t.Helper()
	done := make(chan error, 1)
	go func() { done <- p.Run(context.Background()) }()

	select {
	case <-s.allDone:
	case <-time.After(5 * time.Second):
		t.Fatal("script not consumed within timeout")
	}
	p.Stop()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run returned error: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Run did not stop")
	}
}

func TestBackoffWhileQuiet(t *testing.T) {
	s := newScripted(result{}, result{}, result{}, result{})
	p := New(s, Config{MinInterval: 10 * time.Millisecond, MaxInterval: 200 * time.Millisecond, Factor: 2})
	runUntilScriptDone(t, p, s)

	_, gaps := s.snapshot()
	if len(gaps) < 3 {
		t.Fatalf("recorded %d gaps, want at least 3", len(gaps))
	}
	// 10ms -> 20ms -> 40ms: each quiet poll stretches the next gap.
	for i := 1; i < 3; i++ {
		if gaps[i] < gaps[i-1] {
			t.Errorf("gap %d (%v) shorter than gap %d (%v), want backoff", i, gaps[i], i-1, gaps[i-1])
		}
	}
}

func TestIntervalResetsOnData(t *testing.T) {
	// Three quiet polls push the interval to 80ms, then data resets it.
	s := newScripted(result{}, result{}, result{}, result{changed: true}, result{}, result{})
	p := New(s, Config{MinInterval: 10 * time.Millisecond, MaxInterval: time.Second, Factor: 2})

	var dataCalls int
	var mu sync.Mutex
	p.SetDataCallback(func() {
		mu.Lock()
		dataCalls++
		mu.Unlock()
	})

	runUntilScriptDone(t, p, s)

	mu.Lock()
	if dataCalls != 1 {
		t.Errorf("data callback ran %d times, want 1", dataCalls)
	}
	mu.Unlock()

	_, gaps := s.snapshot()
	if len(gaps) < 5 {
		t.Fatalf("recorded %d gaps, want at least 5", len(gaps))
	}
	// gaps[2] is the stretched pre-data gap, gaps[3] the reset one.
	if gaps[3] >= gaps[2] {
		t.Errorf("post-data gap %v not shorter than quiet gap %v", gaps[3], gaps[2])
	}
	if p.DataHits() != 1 {
		t.Errorf("DataHits = %d, want 1", p.DataHits())
	}
}

func TestIntervalCapsAtMax(t *testing.T) {
	s := newScripted(result{}, result{}, result{}, result{}, result{})
	p := New(s, Config{MinInterval: 5 * time.Millisecond, MaxInterval: 20 * time.Millisecond, Factor: 4})
	runUntilScriptDone(t, p, s)

	_, gaps := s.snapshot()
	for i, g := range gaps {
		if g > 150*time.Millisecond {
			t.Errorf("gap %d = %v, exceeds reasonable bound for a 20ms cap", i, g)
		}
	}
}

func TestErrorsAreRetried(t *testing.T) {
	s := newScripted(result{err: errors.New("boom")}, result{err: errors.New("boom")}, result{changed: true})
	p := New(s, Config{MinInterval: 5 * time.Millisecond, MaxInterval: 50 * time.Millisecond, Factor: 2})
	runUntilScriptDone(t, p, s)

	calls, _ := s.snapshot()
	if calls < 3 {
		t.Errorf("poller stopped after errors: %d calls, want at least 3", calls)
	}
	if p.Polls() < 3 {
		t.Errorf("Polls = %d, want at least 3", p.Polls())
	}
}

func TestContextCancelStopsRun(t *testing.T) {
	s := newScripted()
	p := New(s, Config{MinInterval: time.Hour})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()

	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Run returned %v, want context.Canceled", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestDoubleRunRejected(t *testing.T) {
	s := newScripted()
	p := New(s, Config{MinInterval: time.Hour})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go p.Run(ctx)

	// Give the first Run a moment to claim the running flag.
	deadline := time.Now().Add(time.Second)
	for !p.running.Load() {
		if time.Now().After(deadline) {
			t.Fatal("first Run never started")
		}
		time.Sleep(time.Millisecond)
	}

	if err := p.Run(ctx); err == nil {
		t.Error("second Run should fail while first is active")
	}
}
