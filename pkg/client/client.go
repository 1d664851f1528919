// Package client is the calling side of the activation protocol: it
// resolves an application's bus name and invokes the owner's activation
// surface from another process.
package client

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/sailfishos-mirror/kdbusaddons/internal/bus"
	"github.com/sailfishos-mirror/kdbusaddons/internal/identity"
)

// Config holds client configuration.
type Config struct {
	// Domain and Name identify the target application the same way the
	// owning instance does (e.g. "kde.org" / "konqueror").
	Domain string
	Name   string

	// PID targets one specific instance of a multiple-mode application.
	// Zero targets the unique name.
	PID int

	// Timeout bounds each call. Zero means DefaultTimeout.
	Timeout time.Duration

	Logger *slog.Logger
}

// DefaultTimeout bounds each activation call unless overridden.
const DefaultTimeout = 10 * time.Second

// Client invokes the activation surface of a running instance.
type Client struct {
	conn    bus.Connection
	peer    bus.Peer
	name    string
	timeout time.Duration
	logger  *slog.Logger

	ownsConn bool
}

// New resolves the target bus name and connects to the session bus.
func New(config Config) (*Client, error) {
	conn, err := bus.DialSession(config.Logger)
	if err != nil {
		return nil, fmt.Errorf("connect to session bus: %w", err)
	}
	c, err := newWithConn(conn, config)
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	c.ownsConn = true
	return c, nil
}

// newWithConn builds a client over an existing connection. The tests use
// it with the in-memory bus.
func newWithConn(conn bus.Connection, config Config) (*Client, error) {
	mode := identity.Unique
	var pid func() int
	if config.PID != 0 {
		mode = identity.Multiple
		pid = func() int { return config.PID }
	}
	id, err := identity.Resolve(config.Domain, config.Name, mode, pid)
	if err != nil {
		return nil, err
	}
	timeout := config.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	name := id.BusName()
	return &Client{
		conn:    conn,
		peer:    conn.Peer(name),
		name:    name,
		timeout: timeout,
		logger:  logger.With(slog.String("service", name)),
	}, nil
}

// Target returns the bus name this client calls.
func (c *Client) Target() string { return c.name }

// Activate asks the running instance to present itself.
func (c *Client) Activate(ctx context.Context, platformData map[string]any) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	return c.peer.Activate(ctx, platformData)
}

// Open asks the running instance to open the given URIs, in order.
func (c *Client) Open(ctx context.Context, uris []string, platformData map[string]any) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	return c.peer.Open(ctx, uris, platformData)
}

// ActivateAction triggers a named action. parameter carries at most one
// value; pass nil for none.
func (c *Client) ActivateAction(ctx context.Context, name string, parameter []any, platformData map[string]any) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	return c.peer.ActivateAction(ctx, name, parameter, platformData)
}

// CommandLine forwards an invocation (argument vector plus working
// directory) and returns the owner-supplied exit code.
func (c *Client) CommandLine(ctx context.Context, arguments []string, workingDirectory string, platformData map[string]any) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	return c.peer.CommandLine(ctx, arguments, workingDirectory, platformData)
}

// Quit asks the running instance to shut down.
func (c *Client) Quit(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	return c.peer.Quit(ctx)
}

// Close releases the bus connection when this client dialed it.
func (c *Client) Close() error {
	if !c.ownsConn {
		return nil
	}
	return c.conn.Close()
}
