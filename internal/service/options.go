package service

import (
	"errors"

	"github.com/sailfishos-mirror/kdbusaddons/internal/identity"
)

// StartupOptions is a bit-set controlling registration behavior.
type StartupOptions uint8

const (
	// Unique means only one instance of the application may run; later
	// launches forward their invocation to the first. Cannot be combined
	// with Multiple.
	Unique StartupOptions = 1 << iota
	// Multiple means every launch registers independently under a
	// pid-qualified name. Cannot be combined with Unique.
	Multiple
	// NoExitOnFailure tells the hosting application not to terminate when
	// registration fails. The coordinator itself never exits the process;
	// this flag only informs caller policy.
	NoExitOnFailure
	// Replace asks an already-running unique instance to quit, then
	// claims the name in its place.
	Replace
)

// ErrConflictingOptions is the fatal configuration error raised before
// any bus interaction when Unique and Multiple are both set.
var ErrConflictingOptions = errors.New("service: Unique and Multiple are mutually exclusive")

func (o StartupOptions) Has(flag StartupOptions) bool { return o&flag != 0 }

func (o StartupOptions) Validate() error {
	if o.Has(Unique) && o.Has(Multiple) {
		return ErrConflictingOptions
	}
	return nil
}

// Mode maps the option bits onto the identity mode. Only an explicit
// Multiple flag yields a pid-qualified identity.
func (o StartupOptions) Mode() identity.Mode {
	if o.Has(Multiple) {
		return identity.Multiple
	}
	return identity.Unique
}
