// Package service implements single-instance coordination over a message
// bus: claiming the application's canonical name, resolving contention
// (fail, replace-and-retry, or proceed under a pid-qualified name), and
// either receiving activation calls as the owner or forwarding this
// process's invocation to the owner.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/sailfishos-mirror/kdbusaddons/internal/bus"
	"github.com/sailfishos-mirror/kdbusaddons/internal/history"
	"github.com/sailfishos-mirror/kdbusaddons/internal/identity"
	"github.com/sailfishos-mirror/kdbusaddons/internal/metrics"
)

// DefaultReplaceTimeout bounds how long a Replace registration waits for
// the current owner to leave the bus.
const DefaultReplaceTimeout = 5 * time.Second

var (
	// ErrNoConnection is returned by New when no bus connection is given.
	ErrNoConnection = errors.New("service: bus connection is required")
	// ErrOwnerVanished means the owner exited between the contention
	// result and the forward attempt. Callers are expected to retry the
	// whole registration sequence once; Arbitrate does so.
	ErrOwnerVanished = errors.New("service: owner vanished before the forward completed")
	// ErrForwardTimeout means the owner did not reply within the
	// bus-level deadline.
	ErrForwardTimeout = errors.New("service: forward timed out")
)

// Config assembles a Service.
type Config struct {
	Identity   identity.Identity
	Options    StartupOptions
	Connection bus.Connection

	// Delivery selects synchronous or queued event delivery; QueueSize
	// sizes the channel for DeliverQueued (0 means a sane default).
	Delivery  DeliveryMode
	QueueSize int

	// ReplaceTimeout bounds the wait for the current owner to vanish
	// during a Replace registration. Zero means DefaultReplaceTimeout.
	ReplaceTimeout time.Duration

	Logger   *slog.Logger
	Recorder *history.Recorder
}

// Service is the per-process coordinator. It holds no global state; the
// one-instance invariant lives entirely in the bus's atomic name claim.
type Service struct {
	conn           bus.Connection
	id             identity.Identity
	name           string
	opts           StartupOptions
	replaceTimeout time.Duration
	log            *slog.Logger
	recorder       *history.Recorder

	disp  *dispatcher
	exit  exitValue
	token tokenHolder

	mu     sync.Mutex
	state  State
	errMsg string

	quitOnce sync.Once
	quitCh   chan struct{}
}

// New validates the configuration and builds an unregistered Service.
// Conflicting startup options are rejected here, before any bus
// interaction.
func New(cfg Config) (*Service, error) {
	if err := cfg.Options.Validate(); err != nil {
		return nil, err
	}
	if cfg.Connection == nil {
		return nil, ErrNoConnection
	}
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	timeout := cfg.ReplaceTimeout
	if timeout <= 0 {
		timeout = DefaultReplaceTimeout
	}
	name := cfg.Identity.BusName()
	return &Service{
		conn:           cfg.Connection,
		id:             cfg.Identity,
		name:           name,
		opts:           cfg.Options,
		replaceTimeout: timeout,
		log:            log.With(slog.String("service", name)),
		recorder:       cfg.Recorder,
		disp:           newDispatcher(cfg.Delivery, cfg.QueueSize),
		quitCh:         make(chan struct{}),
	}, nil
}

// Name returns the bus name this service claims.
func (s *Service) Name() string { return s.name }

// Identity returns the resolved identity the service was built with.
func (s *Service) Identity() identity.Identity { return s.id }

// State returns the current registration state.
func (s *Service) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// IsRegistered reports whether this process owns the bus name. Mostly
// useful together with NoExitOnFailure.
func (s *Service) IsRegistered() bool { return s.State() == Registered }

// ErrorMessage returns the registration error when State is Failed,
// otherwise the empty string.
func (s *Service) ErrorMessage() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.errMsg
}

// OnEvent registers a listener. In DeliverSync mode listeners run inline
// on the goroutine serving the bus call.
func (s *Service) OnEvent(fn func(Event)) { s.disp.addListener(fn) }

// Events returns the event channel in DeliverQueued mode, nil otherwise.
func (s *Service) Events() <-chan Event { return s.disp.events() }

// SetExitValue sets the exit code returned to the next forwarded
// command-line invocation. Only a listener running synchronously within
// CommandLine dispatch can affect the reply for that call.
func (s *Service) SetExitValue(v int) { s.exit.set(v) }

// ExitValue returns the current exit value, default 0.
func (s *Service) ExitValue() int { return s.exit.value() }

// StartupToken returns the activation token accompanying the most recent
// activation, clearing it. When no call carried one, it falls back to the
// process environment (read-and-clear as well).
func (s *Service) StartupToken() string {
	if tok := s.token.readAndClear(); tok != "" {
		return tok
	}
	if tok := os.Getenv(envActivationToken); tok != "" {
		_ = os.Unsetenv(envActivationToken)
		return tok
	}
	return ""
}

// QuitRequested is closed when a peer asks this instance to quit (the
// Replace handshake, or an explicit Quit call).
func (s *Service) QuitRequested() <-chan struct{} { return s.quitCh }

// BusHandlers exposes the receiver surface for local transports (the
// HTTP injection endpoints). Bus registration installs the same surface
// through Connection.Export.
func (s *Service) BusHandlers() bus.Handlers { return &receiver{svc: s} }

// Register attempts to claim the service name. It returns Registered,
// Forwarding or Failed, never terminating the process itself. The
// sequence claim → (replace retry) → forward-or-own is strictly
// sequential within one process.
func (s *Service) Register(ctx context.Context) State {
	// Export before claiming so the name never appears on the bus without
	// its handlers being reachable.
	if err := s.conn.Export(&receiver{svc: s}); err != nil {
		return s.fail(fmt.Errorf("export handlers: %w", err))
	}

	reply, err := s.conn.ClaimName(s.name)
	if err != nil {
		return s.fail(fmt.Errorf("claim %s: %w", s.name, err))
	}
	if reply == bus.ClaimPrimaryOwner {
		return s.becomeOwner()
	}

	if s.opts.Has(Replace) {
		if st, done := s.replaceOwner(ctx); done {
			return st
		}
	}
	return s.setForwarding()
}

// replaceOwner runs the replace handshake: ask the owner to quit, wait
// for the name to vanish, then retry the claim exactly once. A second
// owned-by-other result, or an owner that refuses to leave within the
// timeout, degrades to ordinary contention (done=false).
func (s *Service) replaceOwner(ctx context.Context) (st State, done bool) {
	s.log.Info("asking current owner to quit")
	if err := s.conn.Peer(s.name).Quit(ctx); err != nil && !errors.Is(err, bus.ErrNoOwner) {
		s.log.Warn("quit request to current owner failed", slog.Any("error", err))
	}

	wctx, cancel := context.WithTimeout(ctx, s.replaceTimeout)
	defer cancel()
	if err := s.conn.WaitNameVanish(wctx, s.name); err != nil {
		s.log.Warn("current owner did not vanish, treating as ordinary contention",
			slog.Duration("timeout", s.replaceTimeout), slog.Any("error", err))
		return 0, false
	}

	reply, err := s.conn.ClaimName(s.name)
	if err != nil {
		return s.fail(fmt.Errorf("claim %s after replace: %w", s.name, err)), true
	}
	if reply == bus.ClaimPrimaryOwner {
		return s.becomeOwner(), true
	}
	// Someone else won the retry race; Replace is not honored twice.
	return 0, false
}

// Unregister releases the claim if held, otherwise it is a no-op. It is
// idempotent and never fails; bus-side release is not awaited.
func (s *Service) Unregister() {
	s.mu.Lock()
	wasRegistered := s.state == Registered
	s.state = Unregistered
	s.errMsg = ""
	s.mu.Unlock()
	if !wasRegistered {
		return
	}
	if err := s.conn.ReleaseName(s.name); err != nil {
		s.log.Debug("release name", slog.Any("error", err))
	}
	metrics.SetRegistered(s.name, false)
	s.record(history.KindUnregister, "")
	s.log.Info("unregistered from bus")
}

// Forward relays this process's invocation to the owning instance and
// returns the owner-supplied exit code. Valid only in Forwarding state.
func (s *Service) Forward(ctx context.Context, args []string, workingDirectory string) (int, error) {
	code, err := s.conn.Peer(s.name).CommandLine(ctx, args, workingDirectory, envPlatformData())
	if err != nil {
		switch {
		case errors.Is(err, bus.ErrNoOwner):
			metrics.IncForward("owner_vanished")
			return 0, fmt.Errorf("%w: %v", ErrOwnerVanished, err)
		case errors.Is(err, bus.ErrCallTimeout):
			metrics.IncForward("timeout")
			return 0, fmt.Errorf("%w: %v", ErrForwardTimeout, err)
		default:
			metrics.IncForward("error")
			return 0, fmt.Errorf("forward to %s: %w", s.name, err)
		}
	}
	metrics.IncForward("ok")
	s.record(history.KindForward, strings.Join(args, " "))
	return code, nil
}

// Arbitrate runs the full coordination sequence: register, and when
// another instance owns the name, forward args and workingDirectory to
// it. primary is true when this process became the owner; otherwise
// exitCode is what the owner returned. When the owner vanished mid-
// forward the whole sequence is retried exactly once.
func (s *Service) Arbitrate(ctx context.Context, args []string, workingDirectory string) (primary bool, exitCode int, err error) {
	const attempts = 2
	for i := 0; i < attempts; i++ {
		switch s.Register(ctx) {
		case Registered:
			return true, 0, nil
		case Forwarding:
			code, ferr := s.Forward(ctx, args, workingDirectory)
			if errors.Is(ferr, ErrOwnerVanished) && i+1 < attempts {
				s.log.Info("owner vanished during forward, retrying registration")
				continue
			}
			return false, code, ferr
		default:
			return false, 1, errors.New(s.ErrorMessage())
		}
	}
	return false, 1, errors.New(s.ErrorMessage())
}

func (s *Service) becomeOwner() State {
	s.setState(Registered, "")
	metrics.IncClaim("registered")
	metrics.SetRegistered(s.name, true)
	s.record(history.KindRegister, s.id.Mode.String())
	s.log.Info("registered on bus", slog.String("mode", s.id.Mode.String()))
	return Registered
}

func (s *Service) setForwarding() State {
	s.setState(Forwarding, "")
	metrics.IncClaim("forwarding")
	s.log.Info("name owned by another instance, forwarding")
	return Forwarding
}

func (s *Service) fail(err error) State {
	s.setState(Failed, err.Error())
	metrics.IncClaim("failed")
	s.log.Error("registration failed", slog.Any("error", err))
	return Failed
}

func (s *Service) setState(st State, msg string) {
	s.mu.Lock()
	s.state = st
	s.errMsg = msg
	s.mu.Unlock()
}

func (s *Service) signalQuit() {
	s.quitOnce.Do(func() {
		s.log.Info("quit requested by peer")
		close(s.quitCh)
	})
}
