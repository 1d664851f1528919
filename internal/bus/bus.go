// Package bus abstracts the message bus the coordination core runs on.
// The production implementation speaks D-Bus through godbus; an in-memory
// broker with the same atomic name-claim semantics backs the tests.
package bus

import (
	"context"
	"errors"
)

// Well-known addresses of the activation surface. Every instance exports
// its handlers at ObjectPath under two interfaces: the freedesktop
// Application activation interface and the service-specific extension
// carrying CommandLine and Quit.
const (
	ObjectPath           = "/MainApplication"
	ApplicationInterface = "org.freedesktop.Application"
	ServiceInterface     = "org.kde.KDBusService"
)

var (
	// ErrNoOwner is returned by peer calls when the destination name has
	// no owner on the bus (the owner exited or never existed).
	ErrNoOwner = errors.New("bus: name has no owner")
	// ErrCallTimeout is returned when a peer call exceeded the bus-level
	// reply deadline.
	ErrCallTimeout = errors.New("bus: call timed out")
	// ErrClosed is returned for operations on a closed connection.
	ErrClosed = errors.New("bus: connection closed")
)

// PlatformData is the opaque key-value side channel accompanying
// activation calls (startup tokens and the like). It is passed through
// without interpretation.
type PlatformData map[string]any

// ClaimReply is the outcome of an atomic, non-queueing name claim.
// Transport failures are reported separately as errors.
type ClaimReply int

const (
	// ClaimPrimaryOwner means this connection now owns the name.
	ClaimPrimaryOwner ClaimReply = iota
	// ClaimOwnedByOther means another connection holds the name and no
	// queueing took place.
	ClaimOwnedByOther
)

// Handlers is the narrow surface an owning instance exposes on the bus.
// Only the bus transport holds a reference to it; nothing else calls in.
type Handlers interface {
	Activate(platformData PlatformData)
	Open(uris []string, platformData PlatformData)
	ActivateAction(actionName string, parameter []any, platformData PlatformData)
	CommandLine(arguments []string, workingDirectory string, platformData PlatformData) int
	Quit()
}

// Peer is the remote view of a named owner's handler surface.
type Peer interface {
	Activate(ctx context.Context, platformData PlatformData) error
	Open(ctx context.Context, uris []string, platformData PlatformData) error
	ActivateAction(ctx context.Context, actionName string, parameter []any, platformData PlatformData) error
	CommandLine(ctx context.Context, arguments []string, workingDirectory string, platformData PlatformData) (int, error)
	Quit(ctx context.Context) error
}

// Connection is the transport contract the coordination core relies on.
// The bus itself provides the only cross-process synchronization: name
// claims are atomic, and a claim is released automatically when the
// owning connection goes away.
type Connection interface {
	// ClaimName atomically requests ownership of name without queueing.
	ClaimName(name string) (ClaimReply, error)

	// ReleaseName gives up ownership of name. Releasing a name this
	// connection does not own is a no-op.
	ReleaseName(name string) error

	// Export installs h at the well-known object path so peers can reach
	// it once this connection owns a name.
	Export(h Handlers) error

	// Peer returns a caller for the current owner of name. Resolution
	// happens per call, so a Peer stays valid across ownership changes.
	Peer(name string) Peer

	// WaitNameVanish blocks until name has no owner or ctx is done.
	// It returns immediately when the name is already unowned.
	WaitNameVanish(ctx context.Context, name string) error

	Close() error
}
