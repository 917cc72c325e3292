package service

import (
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"
)

func TestTransitionClearsPIDForProcesslessStates(t *testing.T) {
	d := New(Config{Name: "web", Port: 3000})
	d.Attach(&ProcessHandle{PID: 4242, Wait: func() error { return nil }})
	if d.State() != StateStarting || d.PID() != 4242 {
		t.Fatalf("after attach: state=%v pid=%d", d.State(), d.PID())
	}

	// Moving into a process-owning state with pid 0 keeps the current pid.
	d.Transition(StateRunning, 0)
	if d.PID() != 4242 {
		t.Fatalf("pid lost on running transition: %d", d.PID())
	}

	for _, st := range []State{StateStopped, StateError} {
		d.Transition(StateRunning, 4242)
		d.Transition(st, 0)
		if d.PID() != 0 {
			t.Errorf("%q: pid not cleared, got %d", st, d.PID())
		}
		if d.Handle() != nil {
			t.Errorf("%q: handle not cleared", st)
		}
	}
}

func TestSnapshotConsistency(t *testing.T) {
	d := New(Config{Name: "api", Port: 8100})
	d.Attach(&ProcessHandle{PID: 77, Wait: func() error { return nil }})
	d.Transition(StateRunning, 0)
	snap := d.Snapshot()
	if snap.Name != "api" || snap.State != StateRunning || snap.PID != 77 || snap.Port != 8100 {
		t.Fatalf("unexpected snapshot: %+v", snap)
	}
	if snap.StartTime.IsZero() {
		t.Fatalf("attach did not record a start time")
	}
}

func TestHealthFailureCounter(t *testing.T) {
	d := New(Config{Name: "web", Port: 3000})
	if n := d.IncHealthFailures(); n != 1 {
		t.Fatalf("first inc = %d", n)
	}
	if n := d.IncHealthFailures(); n != 2 {
		t.Fatalf("second inc = %d", n)
	}
	if prev := d.ResetHealthFailures(); prev != 2 {
		t.Fatalf("reset returned %d, want 2", prev)
	}
	if d.HealthFailures() != 0 {
		t.Fatalf("counter not cleared")
	}
}

func TestCheckHealthStatusCodes(t *testing.T) {
	var code int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(code)
	}))
	defer srv.Close()

	d := New(Config{Name: "web", Port: 3000, HealthURL: srv.URL})
	cases := []struct {
		status int
		want   bool
	}{
		{http.StatusOK, true},
		{http.StatusNotFound, false},
		{http.StatusInternalServerError, false},
		{http.StatusBadGateway, false},
	}
	for _, tc := range cases {
		code = tc.status
		if got := d.CheckHealth(); got != tc.want {
			t.Errorf("status %d: healthy=%v, want %v", tc.status, got, tc.want)
		}
	}
}

func TestCheckHealthCustomPredicate(t *testing.T) {
	var code int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(code)
	}))
	defer srv.Close()

	// Dev-server style: a 404 while the bundler warms up still counts.
	d := New(Config{
		Name:      "frontend",
		Port:      3000,
		HealthURL: srv.URL,
		Healthy:   func(status int) bool { return status == http.StatusOK || status == http.StatusNotFound },
	})
	code = http.StatusNotFound
	if !d.CheckHealth() {
		t.Fatalf("404 should be healthy for the dev-server predicate")
	}
	code = http.StatusInternalServerError
	if d.CheckHealth() {
		t.Fatalf("500 should stay unhealthy")
	}
}

func TestCheckHealthNetworkError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {}))
	url := srv.URL
	srv.Close() // nothing listens anymore

	d := New(Config{Name: "web", Port: 3000, HealthURL: url})
	if d.CheckHealth() {
		t.Fatalf("connection refused should be unhealthy")
	}
}

func TestCheckHealthWithoutURLFallsBackToPID(t *testing.T) {
	d := New(Config{Name: "worker", Port: 4000})
	if d.CheckHealth() {
		t.Fatalf("no pid: should be unhealthy")
	}
	d.Reattach(os.Getpid(), time.Now())
	if !d.CheckHealth() {
		t.Fatalf("own pid should count as alive")
	}
}

func TestIsPortInUse(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	port := ln.Addr().(*net.TCPAddr).Port

	d := New(Config{Name: "web", Port: port})
	if !d.IsPortInUse() {
		t.Fatalf("port %d has a listener but probe says free", port)
	}
	_ = ln.Close()

	// Probing the now-closed port must report free, not error.
	if d.IsPortInUse() {
		t.Fatalf("port %d reported in use after listener closed", port)
	}
}

func TestNewDefaults(t *testing.T) {
	d := New(Config{Name: "web", Port: 3000})
	cfg := d.Config()
	if cfg.StartupTimeout != 30*time.Second {
		t.Fatalf("default startup timeout: %v", cfg.StartupTimeout)
	}
	if !cfg.Healthy(http.StatusOK) || cfg.Healthy(http.StatusNotFound) {
		t.Fatalf("default predicate should accept only 200")
	}
	if d.State() != StateStopped {
		t.Fatalf("new descriptor state: %v", d.State())
	}
}

func TestReattachDoesNotVerifyHealth(t *testing.T) {
	d := New(Config{Name: "web", Port: 3000, HealthURL: fmt.Sprintf("http://127.0.0.1:%d/", 1)})
	d.Reattach(os.Getpid(), time.Now().Add(-time.Hour))
	if d.State() != StateRunning {
		t.Fatalf("reattach should move straight to running, got %v", d.State())
	}
	if d.PID() != os.Getpid() {
		t.Fatalf("reattach pid: %d", d.PID())
	}
}
