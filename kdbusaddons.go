// Package kdbusaddons provides single-instance application coordination
// over the D-Bus session bus: an application claims its canonical bus
// name, and later invocations either become independent instances,
// forward their command line to the running one, or replace it.
package kdbusaddons

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/sailfishos-mirror/kdbusaddons/internal/bus"
	cfg "github.com/sailfishos-mirror/kdbusaddons/internal/config"
	"github.com/sailfishos-mirror/kdbusaddons/internal/history"
	"github.com/sailfishos-mirror/kdbusaddons/internal/identity"
	"github.com/sailfishos-mirror/kdbusaddons/internal/metrics"
	iapi "github.com/sailfishos-mirror/kdbusaddons/internal/server"
	"github.com/sailfishos-mirror/kdbusaddons/internal/service"
)

// Re-export core types for external consumers. These are aliases so
// conversions are zero-cost.

type Service = service.Service

type StartupOptions = service.StartupOptions

const (
	// Unique: one instance per user session; later invocations forward
	// to the running one.
	Unique = service.Unique
	// Multiple: every invocation runs independently under a
	// pid-qualified bus name.
	Multiple = service.Multiple
	// NoExitOnFailure: the caller handles a failed registration itself
	// instead of following the default exit policy.
	NoExitOnFailure = service.NoExitOnFailure
	// Replace: ask the current owner to quit and take over its name.
	Replace = service.Replace
)

type State = service.State

const (
	Unregistered = service.Unregistered
	Registered   = service.Registered
	Forwarding   = service.Forwarding
	Failed       = service.Failed
)

type (
	Event            = service.Event
	ActivateEvent    = service.ActivateEvent
	OpenEvent        = service.OpenEvent
	ActionEvent      = service.ActionEvent
	CommandLineEvent = service.CommandLineEvent
)

type DeliveryMode = service.DeliveryMode

const (
	DeliverSync   = service.DeliverSync
	DeliverQueued = service.DeliverQueued
)

type PlatformData = bus.PlatformData

type HistorySink = history.Sink

var (
	ErrOwnerVanished  = service.ErrOwnerVanished
	ErrForwardTimeout = service.ErrForwardTimeout
)

// Config assembles a coordinator for one application.
type Config struct {
	// Domain is the organization domain ("kde.org"); Name the application
	// name ("konqueror"). Together they form the bus name org.kde.konqueror.
	Domain string
	Name   string

	Options StartupOptions

	// Delivery selects synchronous or queued event delivery (sync by
	// default); QueueSize sizes the queued channel.
	Delivery  DeliveryMode
	QueueSize int

	// ReplaceTimeout bounds the Replace handshake's wait for the old
	// owner to leave. Zero means the package default.
	ReplaceTimeout time.Duration

	Logger   *slog.Logger
	Recorder *history.Recorder
}

// dialSession is swapped out by tests.
var dialSession = func(logger *slog.Logger) (bus.Connection, error) {
	return bus.DialSession(logger)
}

// New connects to the session bus and builds an unregistered Service for
// the given identity. Call Register (or Arbitrate) on the result.
func New(config Config) (*Service, error) {
	opts := config.Options
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	id, err := identity.Resolve(config.Domain, config.Name, opts.Mode(), nil)
	if err != nil {
		return nil, err
	}
	conn, err := dialSession(config.Logger)
	if err != nil {
		return nil, err
	}
	svc, err := service.New(service.Config{
		Identity:       id,
		Options:        opts,
		Connection:     conn,
		Delivery:       config.Delivery,
		QueueSize:      config.QueueSize,
		ReplaceTimeout: config.ReplaceTimeout,
		Logger:         config.Logger,
		Recorder:       config.Recorder,
	})
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	return svc, nil
}

// Run is the one-call form: register, and when another instance already
// owns the name, forward args and workingDirectory to it. primary is true
// when this process should keep running as the owner; otherwise exitCode
// is what the owner returned and the process is expected to exit with it.
func Run(ctx context.Context, config Config, args []string, workingDirectory string) (svc *Service, primary bool, exitCode int, err error) {
	svc, err = New(config)
	if err != nil {
		return nil, false, 1, err
	}
	primary, exitCode, err = svc.Arbitrate(ctx, args, workingDirectory)
	return svc, primary, exitCode, err
}

// LoadConfig reads the daemon TOML configuration.
func LoadConfig(path string) (*cfg.FileConfig, error) {
	return cfg.Load(path)
}

// NewHTTPServer starts an HTTP server exposing the status and activation
// injection API for a running coordinator.
func NewHTTPServer(addr, basePath string, svc *Service) (*http.Server, error) {
	return iapi.NewServer(addr, basePath, svc)
}

// Metrics helpers (public facade)

func RegisterMetrics(r prometheus.Registerer) error { return metrics.Register(r) }
func RegisterMetricsDefault() error                 { return metrics.Register(prometheus.DefaultRegisterer) }

// ServeMetrics starts an HTTP server on addr exposing /metrics using the
// default registry. It returns any immediate listen error; otherwise it
// runs the server in the caller goroutine.
func ServeMetrics(addr string) error {
	http.Handle("/metrics", metrics.Handler())
	srv := &http.Server{
		Addr:              addr,
		Handler:           nil,
		ReadTimeout:       10 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return srv.ListenAndServe()
}
