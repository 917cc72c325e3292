package monitor

import (
	"net/http"
	"net/http/httptest"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stackd-io/stackd/internal/service"
)

// statusSequence serves the given status codes in order, repeating the last
// one once exhausted.
type statusSequence struct {
	mu    sync.Mutex
	codes []int
	idx   int
	hits  int
}

func (s *statusSequence) ServeHTTP(w http.ResponseWriter, _ *http.Request) {
	s.mu.Lock()
	code := s.codes[s.idx]
	if s.idx < len(s.codes)-1 {
		s.idx++
	}
	s.hits++
	s.mu.Unlock()
	w.WriteHeader(code)
}

func (s *statusSequence) requests() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hits
}

type fakeRecoverer struct {
	mu        sync.Mutex
	reg       *service.Registry
	stops     []string
	starts    []string
	unhealthy []string
	recovered []string
}

func (f *fakeRecoverer) MarkUnhealthy(name string) {
	f.mu.Lock()
	f.unhealthy = append(f.unhealthy, name)
	f.mu.Unlock()
	f.reg.Get(name).Transition(service.StateUnhealthy, 0)
}

func (f *fakeRecoverer) RecordRecovery(name string) {
	f.mu.Lock()
	f.recovered = append(f.recovered, name)
	f.mu.Unlock()
}

func (f *fakeRecoverer) Stop(name string) error {
	f.mu.Lock()
	f.stops = append(f.stops, name)
	f.mu.Unlock()
	f.reg.Get(name).Transition(service.StateStopped, 0)
	return nil
}

func (f *fakeRecoverer) Start(name string) error {
	f.mu.Lock()
	f.starts = append(f.starts, name)
	f.mu.Unlock()
	f.reg.Get(name).Reattach(os.Getpid(), time.Now())
	return nil
}

func (f *fakeRecoverer) counts() (stops, starts int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.stops), len(f.starts)
}

func newRunningRegistry(t *testing.T, healthURL string) *service.Registry {
	t.Helper()
	reg := service.NewRegistry([]service.Config{
		{Name: "backend", Port: 8100, Command: []string{"true"}, HealthURL: healthURL},
	})
	reg.Get("backend").Reattach(os.Getpid(), time.Now())
	return reg
}

func TestSweepRecoveredBeforeThreshold(t *testing.T) {
	seq := &statusSequence{codes: []int{500, 500, 200}}
	srv := httptest.NewServer(seq)
	defer srv.Close()

	reg := newRunningRegistry(t, srv.URL)
	rec := &fakeRecoverer{reg: reg}
	m := New(reg, rec, Options{Threshold: 3, Sleep: func(time.Duration) {}})

	m.SweepOnce()
	m.SweepOnce()
	if n := reg.Get("backend").HealthFailures(); n != 2 {
		t.Fatalf("failures after two bad sweeps = %d, want 2", n)
	}
	m.SweepOnce()
	if n := reg.Get("backend").HealthFailures(); n != 0 {
		t.Fatalf("success did not reset counter, got %d", n)
	}
	if stops, starts := rec.counts(); stops != 0 || starts != 0 {
		t.Fatalf("recovery triggered below threshold: stops=%d starts=%d", stops, starts)
	}
	if reg.Get("backend").State() != service.StateRunning {
		t.Fatalf("state changed without a threshold breach")
	}
}

func TestThresholdTriggersSingleRecovery(t *testing.T) {
	seq := &statusSequence{codes: []int{500}}
	srv := httptest.NewServer(seq)
	defer srv.Close()

	reg := newRunningRegistry(t, srv.URL)
	rec := &fakeRecoverer{reg: reg}
	m := New(reg, rec, Options{Threshold: 3, Sleep: func(time.Duration) {}})

	m.SweepOnce()
	m.SweepOnce()
	if stops, starts := rec.counts(); stops != 0 || starts != 0 {
		t.Fatalf("recovery before third failure")
	}
	m.SweepOnce()
	if stops, starts := rec.counts(); stops != 1 || starts != 1 {
		t.Fatalf("expected exactly one stop+start, got stops=%d starts=%d", stops, starts)
	}
	rec.mu.Lock()
	unhealthy, recovered := len(rec.unhealthy), len(rec.recovered)
	rec.mu.Unlock()
	if unhealthy != 1 || recovered != 1 {
		t.Fatalf("expected one unhealthy mark and one recovery record, got %d/%d", unhealthy, recovered)
	}
	// The fake recoverer's Start leaves the counter as-is, so later sweeps
	// increment past the threshold without triggering again. One attempt per
	// breach.
	m.SweepOnce()
	m.SweepOnce()
	if stops, starts := rec.counts(); stops != 1 || starts != 1 {
		t.Fatalf("recovery retried past threshold: stops=%d starts=%d", stops, starts)
	}
}

func TestSweepSkipsNonRunningServices(t *testing.T) {
	seq := &statusSequence{codes: []int{500}}
	srv := httptest.NewServer(seq)
	defer srv.Close()

	reg := service.NewRegistry([]service.Config{
		{Name: "backend", Port: 8100, Command: []string{"true"}, HealthURL: srv.URL},
	})
	// Never moved to RUNNING.
	rec := &fakeRecoverer{reg: reg}
	m := New(reg, rec, Options{Threshold: 3, Sleep: func(time.Duration) {}})

	m.SweepOnce()
	m.SweepOnce()
	if seq.requests() != 0 {
		t.Fatalf("stopped service was probed %d times", seq.requests())
	}
	if n := reg.Get("backend").HealthFailures(); n != 0 {
		t.Fatalf("counter moved for a stopped service: %d", n)
	}
}

func TestRecoveryGraceBetweenStopAndStart(t *testing.T) {
	seq := &statusSequence{codes: []int{500}}
	srv := httptest.NewServer(seq)
	defer srv.Close()

	reg := newRunningRegistry(t, srv.URL)
	rec := &fakeRecoverer{reg: reg}

	var slept []time.Duration
	m := New(reg, rec, Options{
		Threshold: 3,
		Grace:     5 * time.Second,
		Sleep:     func(d time.Duration) { slept = append(slept, d) },
	})
	m.SweepOnce()
	m.SweepOnce()
	m.SweepOnce()
	if len(slept) != 1 || slept[0] != 5*time.Second {
		t.Fatalf("expected one grace sleep of 5s, got %v", slept)
	}
}

func TestStartStopJoinsGoroutine(t *testing.T) {
	reg := service.NewRegistry(nil)
	rec := &fakeRecoverer{reg: reg}
	m := New(reg, rec, Options{Interval: 10 * time.Millisecond})

	m.Start()
	m.Start() // second call is a no-op
	time.Sleep(30 * time.Millisecond)
	if !m.Stop(time.Second) {
		t.Fatalf("monitor did not stop within timeout")
	}
	// Stop on an already-stopped monitor is also fine.
	if !m.Stop(time.Second) {
		t.Fatalf("second stop should succeed")
	}
}

func TestRestartAfterStop(t *testing.T) {
	reg := service.NewRegistry(nil)
	rec := &fakeRecoverer{reg: reg}
	m := New(reg, rec, Options{Interval: 10 * time.Millisecond})

	m.Start()
	if !m.Stop(time.Second) {
		t.Fatalf("first stop timed out")
	}
	m.Start()
	if !m.monitoring.Load() {
		t.Fatalf("monitor did not resume after a stop")
	}
	if !m.Stop(time.Second) {
		t.Fatalf("second stop timed out")
	}
}

func TestDefaults(t *testing.T) {
	m := New(service.NewRegistry(nil), &fakeRecoverer{}, Options{})
	if m.interval != DefaultInterval || m.threshold != DefaultThreshold || m.grace != DefaultGrace {
		t.Fatalf("defaults not applied: %v %d %v", m.interval, m.threshold, m.grace)
	}
}
