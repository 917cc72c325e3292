package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stackd-io/stackd/internal/proc"
	"github.com/stackd-io/stackd/internal/service"
	"github.com/stackd-io/stackd/internal/supervisor"
)

type stubController struct {
	mu      sync.Mutex
	spawned int
}

func (s *stubController) Spawn(opts proc.SpawnOptions) (*service.ProcessHandle, error) {
	s.mu.Lock()
	s.spawned++
	s.mu.Unlock()
	return &service.ProcessHandle{PID: os.Getpid(), Wait: func() error { return nil }}, nil
}

func (s *stubController) KillTree(pid int) bool          { return true }
func (s *stubController) CleanupPort(port int) bool      { return true }
func (s *stubController) Sweep(p []int, m []string) bool { return true }
func (s *stubController) Alive(pid int) bool             { return pid == os.Getpid() }

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	health := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(health.Close)

	sup := supervisor.New(supervisor.Options{
		Services: []service.Config{
			{Name: "backend", Port: 0, Command: []string{"server"}, HealthURL: health.URL, StartupTimeout: 2 * time.Second},
		},
		StatePath:    filepath.Join(t.TempDir(), "stack.json"),
		Ctrl:         &stubController{},
		PollInterval: 10 * time.Millisecond,
		SettleDelay:  time.Millisecond,
	})
	srv := httptest.NewServer(NewRouter(sup, "/api").Handler())
	t.Cleanup(srv.Close)
	return srv
}

func TestStartStopStatusRoundtrip(t *testing.T) {
	srv := newTestServer(t)

	resp, err := http.Post(srv.URL+"/api/start?name=backend", "application/json", nil)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("start status: %d", resp.StatusCode)
	}

	resp, err = http.Get(srv.URL + "/api/status?name=backend")
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	var st supervisor.Status
	if err := json.NewDecoder(resp.Body).Decode(&st); err != nil {
		t.Fatalf("decode status: %v", err)
	}
	_ = resp.Body.Close()
	if st.State != service.StateRunning || !st.Healthy {
		t.Fatalf("status after start: %+v", st)
	}

	resp, err = http.Post(srv.URL+"/api/stop?name=backend", "application/json", nil)
	if err != nil {
		t.Fatalf("stop: %v", err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("stop status: %d", resp.StatusCode)
	}
}

func TestStatusListsAllServices(t *testing.T) {
	srv := newTestServer(t)
	resp, err := http.Get(srv.URL + "/api/status")
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()
	var sts []supervisor.Status
	if err := json.NewDecoder(resp.Body).Decode(&sts); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(sts) != 1 || sts[0].Name != "backend" || sts[0].State != service.StateStopped {
		t.Fatalf("statuses: %+v", sts)
	}
}

func TestStartValidation(t *testing.T) {
	srv := newTestServer(t)

	for _, q := range []string{"", "?name=", "?name=../etc"} {
		resp, err := http.Post(srv.URL+"/api/start"+q, "application/json", nil)
		if err != nil {
			t.Fatalf("start%s: %v", q, err)
		}
		_ = resp.Body.Close()
		if resp.StatusCode != http.StatusBadRequest {
			t.Fatalf("start%s status: %d", q, resp.StatusCode)
		}
	}

	resp, err := http.Post(srv.URL+"/api/start?name=unknown", "application/json", nil)
	if err != nil {
		t.Fatalf("start unknown: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("unknown service status: %d", resp.StatusCode)
	}
	var er errorResp
	if err := json.NewDecoder(resp.Body).Decode(&er); err != nil {
		t.Fatalf("decode error body: %v", err)
	}
	if er.Error == "" {
		t.Fatalf("expected error message")
	}
}

func TestHealthz(t *testing.T) {
	srv := newTestServer(t)
	resp, err := http.Get(srv.URL + "/api/healthz")
	if err != nil {
		t.Fatalf("healthz: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("healthz status: %d", resp.StatusCode)
	}
}

func TestSanitizeBase(t *testing.T) {
	cases := map[string]string{
		"":      "",
		"/":     "",
		"api":   "/api",
		"/api":  "/api",
		"/api/": "/api",
		" /v1 ": "/v1",
	}
	for in, want := range cases {
		if got := sanitizeBase(in); got != want {
			t.Errorf("sanitizeBase(%q) = %q, want %q", in, got, want)
		}
	}
}
