// Package stackd supervises a fixed set of long-running local services:
// start them in order, keep their (state, pid) consistent, persist the stack
// state to disk, and recover services that fail their health checks.
package stackd

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	cfg "github.com/stackd-io/stackd/internal/config"
	"github.com/stackd-io/stackd/internal/history"
	"github.com/stackd-io/stackd/internal/logger"
	"github.com/stackd-io/stackd/internal/metrics"
	"github.com/stackd-io/stackd/internal/monitor"
	iapi "github.com/stackd-io/stackd/internal/server"
	"github.com/stackd-io/stackd/internal/service"
	"github.com/stackd-io/stackd/internal/supervisor"
)

// Re-export core types for external consumers. These are aliases so
// conversions are zero-cost.

type ServiceConfig = service.Config

type State = service.State

type Status = supervisor.Status

type HistorySink = history.Sink

// Supervisor is a thin facade over internal/supervisor.Supervisor for
// embedding.
type Supervisor struct{ inner *supervisor.Supervisor }

// Options configures a Supervisor built from code rather than a config file.
type Options struct {
	Services  []ServiceConfig
	StatePath string
	Log       logger.Config
	Sinks     []HistorySink
	Monitor   monitor.Options
}

func New(opts Options) *Supervisor {
	return &Supervisor{inner: supervisor.New(supervisor.Options{
		Services:  opts.Services,
		StatePath: opts.StatePath,
		Log:       opts.Log,
		Sinks:     opts.Sinks,
		Monitor:   opts.Monitor,
	})}
}

// NewFromConfig builds a Supervisor, its history sinks included, from a
// loaded config file.
func NewFromConfig(c *cfg.Config) (*Supervisor, error) {
	sinks, err := SinksFromConfig(c)
	if err != nil {
		return nil, err
	}
	return &Supervisor{inner: supervisor.New(supervisor.Options{
		Services:  c.ServiceConfigs(),
		StatePath: c.StateFile,
		Log:       c.Log,
		Sinks:     sinks,
		Monitor: monitor.Options{
			Interval:  c.Monitor.Interval,
			Threshold: c.Monitor.Threshold,
			Grace:     c.Monitor.Grace,
		},
	})}, nil
}

func (s *Supervisor) Start(name string) error           { return s.inner.Start(name) }
func (s *Supervisor) Stop(name string) error            { return s.inner.Stop(name) }
func (s *Supervisor) Restart(name string) error         { return s.inner.Restart(name) }
func (s *Supervisor) StartAll() error                   { return s.inner.StartAll() }
func (s *Supervisor) StopAll() error                    { return s.inner.StopAll() }
func (s *Supervisor) RestartAll() error                 { return s.inner.RestartAll() }
func (s *Supervisor) Status(name string) (Status, error) { return s.inner.Status(name) }
func (s *Supervisor) StatusAll() []Status               { return s.inner.StatusAll() }
func (s *Supervisor) StartMonitoring()                  { s.inner.StartMonitoring() }
func (s *Supervisor) StopMonitoring()                   { s.inner.StopMonitoring() }
func (s *Supervisor) Close()                            { s.inner.Close() }

// LoadConfig reads and validates a TOML config file.
func LoadConfig(path string) (*cfg.Config, error) { return cfg.Load(path) }

// SetupLogging installs the process-wide structured logger per the config.
func SetupLogging(c logger.Config) { logger.Setup(c) }

// SinksFromConfig builds the history sinks a config declares. An empty
// history section yields no sinks.
func SinksFromConfig(c *cfg.Config) ([]HistorySink, error) {
	var sinks []HistorySink
	if c.History.DSN != "" {
		s, err := history.NewSQLSinkFromDSN(c.History.DSN)
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, s)
	}
	if c.History.ClickHouseAddr != "" {
		s, err := history.NewClickHouseSink(
			c.History.ClickHouseAddr,
			c.History.ClickHouseDatabase,
			c.History.ClickHouseUsername,
			c.History.ClickHousePassword,
			c.History.ClickHouseTable,
		)
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, s)
	}
	return sinks, nil
}

// NewHTTPServer starts the control API server for the given supervisor.
func NewHTTPServer(addr, basePath string, s *Supervisor) *http.Server {
	return iapi.NewServer(addr, basePath, s.inner)
}

// Metrics helpers (public facade)

func RegisterMetrics(r prometheus.Registerer) error { return metrics.Register(r) }
func RegisterMetricsDefault() error                 { return metrics.RegisterDefault() }

// ServeMetrics starts an HTTP server on addr exposing /metrics using the
// default registry. It runs in the caller goroutine.
func ServeMetrics(addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadTimeout:       10 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return srv.ListenAndServe()
}
