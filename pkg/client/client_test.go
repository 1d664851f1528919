package client

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/sailfishos-mirror/kdbusaddons/internal/bus"
)

// fakeOwner claims a name on the broker and records inbound calls.
type fakeOwner struct {
	mu       sync.Mutex
	activate int
	uris     []string
	action   string
	args     []string
	workdir  string
	quit     bool
	exit     int
}

func (f *fakeOwner) Activate(bus.PlatformData) {
	f.mu.Lock()
	f.activate++
	f.mu.Unlock()
}

func (f *fakeOwner) Open(uris []string, _ bus.PlatformData) {
	f.mu.Lock()
	f.uris = uris
	f.mu.Unlock()
}

func (f *fakeOwner) ActivateAction(name string, _ []any, _ bus.PlatformData) {
	f.mu.Lock()
	f.action = name
	f.mu.Unlock()
}

func (f *fakeOwner) CommandLine(args []string, workdir string, _ bus.PlatformData) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.args = args
	f.workdir = workdir
	return f.exit
}

func (f *fakeOwner) Quit() {
	f.mu.Lock()
	f.quit = true
	f.mu.Unlock()
}

func claimOwner(t *testing.T, b *bus.Broker, name string, owner *fakeOwner) {
	t.Helper()
	conn := b.Connect()
	if err := conn.Export(owner); err != nil {
		t.Fatalf("export: %v", err)
	}
	reply, err := conn.ClaimName(name)
	if err != nil || reply != bus.ClaimPrimaryOwner {
		t.Fatalf("claim %s: reply=%v err=%v", name, reply, err)
	}
}

func TestClientCallsOwner(t *testing.T) {
	b := bus.NewBroker()
	owner := &fakeOwner{exit: 4}
	claimOwner(t, b, "org.example.app", owner)

	c, err := newWithConn(b.Connect(), Config{Domain: "example.org", Name: "app"})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	if c.Target() != "org.example.app" {
		t.Fatalf("target = %q", c.Target())
	}

	ctx := context.Background()
	if err := c.Activate(ctx, nil); err != nil {
		t.Fatalf("activate: %v", err)
	}
	if err := c.Open(ctx, []string{"file:///a"}, nil); err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := c.ActivateAction(ctx, "refresh", []any{int64(1)}, nil); err != nil {
		t.Fatalf("action: %v", err)
	}
	code, err := c.CommandLine(ctx, []string{"app", "-x"}, "/work", nil)
	if err != nil {
		t.Fatalf("command line: %v", err)
	}
	if code != 4 {
		t.Fatalf("exit code = %d, want 4", code)
	}
	if err := c.Quit(ctx); err != nil {
		t.Fatalf("quit: %v", err)
	}

	owner.mu.Lock()
	defer owner.mu.Unlock()
	if owner.activate != 1 || owner.action != "refresh" || !owner.quit {
		t.Fatalf("owner saw activate=%d action=%q quit=%v", owner.activate, owner.action, owner.quit)
	}
	if len(owner.args) != 2 || owner.workdir != "/work" {
		t.Fatalf("owner saw args=%v workdir=%q", owner.args, owner.workdir)
	}
}

func TestClientTargetsPIDQualifiedName(t *testing.T) {
	b := bus.NewBroker()
	claimOwner(t, b, "org.example.app-4321", &fakeOwner{})

	c, err := newWithConn(b.Connect(), Config{Domain: "example.org", Name: "app", PID: 4321})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	if c.Target() != "org.example.app-4321" {
		t.Fatalf("target = %q", c.Target())
	}
	if err := c.Activate(context.Background(), nil); err != nil {
		t.Fatalf("activate: %v", err)
	}
}

func TestClientNoOwner(t *testing.T) {
	b := bus.NewBroker()
	c, err := newWithConn(b.Connect(), Config{Domain: "example.org", Name: "ghost"})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	if err := c.Activate(context.Background(), nil); !errors.Is(err, bus.ErrNoOwner) {
		t.Fatalf("got %v, want ErrNoOwner", err)
	}
}

func TestClientRejectsEmptyIdentity(t *testing.T) {
	b := bus.NewBroker()
	if _, err := newWithConn(b.Connect(), Config{Name: "app"}); err == nil {
		t.Fatal("expected an error for a missing domain")
	}
	if _, err := newWithConn(b.Connect(), Config{Domain: "example.org"}); err == nil {
		t.Fatal("expected an error for a missing name")
	}
}
