package service

import (
	"os"
	"sync"

	"github.com/sailfishos-mirror/kdbusaddons/internal/bus"
)

// Platform-data keys and environment variables carrying activation
// tokens. The token contents are opaque to this package.
const (
	platformKeyActivationToken = "activation-token"
	platformKeyStartupID       = "desktop-startup-id"
	envActivationToken         = "XDG_ACTIVATION_TOKEN"
	envStartupID               = "DESKTOP_STARTUP_ID"
)

// tokenHolder stores the most recent activation token until the hosting
// application consumes it.
type tokenHolder struct {
	mu    sync.Mutex
	token string
}

func (t *tokenHolder) set(tok string) {
	t.mu.Lock()
	t.token = tok
	t.mu.Unlock()
}

func (t *tokenHolder) readAndClear() string {
	t.mu.Lock()
	tok := t.token
	t.token = ""
	t.mu.Unlock()
	return tok
}

// noteFromPlatformData captures an activation token accompanying an
// inbound call, preferring the Wayland-style token over the X11 startup
// id when both are present.
func (t *tokenHolder) noteFromPlatformData(pd bus.PlatformData) {
	for _, key := range []string{platformKeyActivationToken, platformKeyStartupID} {
		if v, ok := pd[key].(string); ok && v != "" {
			t.set(v)
			return
		}
	}
}

// envPlatformData builds the platform data a forwarding instance attaches
// to its CommandLine call: any activation token present in this process's
// environment travels along to the owner.
func envPlatformData() bus.PlatformData {
	pd := bus.PlatformData{}
	if v := os.Getenv(envActivationToken); v != "" {
		pd[platformKeyActivationToken] = v
	}
	if v := os.Getenv(envStartupID); v != "" {
		pd[platformKeyStartupID] = v
	}
	if len(pd) == 0 {
		return nil
	}
	return pd
}
