package kdbusaddons

import (
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/sailfishos-mirror/kdbusaddons/internal/bus"
	"github.com/sailfishos-mirror/kdbusaddons/internal/service"
)

// withBroker redirects session-bus dialing to an in-memory broker for
// the duration of a test.
func withBroker(t *testing.T, b *bus.Broker) {
	t.Helper()
	prev := dialSession
	dialSession = func(*slog.Logger) (bus.Connection, error) { return b.Connect(), nil }
	t.Cleanup(func() { dialSession = prev })
}

func TestNewAndRegister(t *testing.T) {
	withBroker(t, bus.NewBroker())

	svc, err := New(Config{Domain: "kde.org", Name: "konqueror", Options: Unique})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if svc.Name() != "org.kde.konqueror" {
		t.Fatalf("bus name = %q", svc.Name())
	}
	if st := svc.Register(context.Background()); st != Registered {
		t.Fatalf("state = %v", st)
	}
	svc.Unregister()
}

func TestNewRejectsConflictingOptions(t *testing.T) {
	withBroker(t, bus.NewBroker())

	if _, err := New(Config{Domain: "kde.org", Name: "app", Options: Unique | Multiple}); !errors.Is(err, service.ErrConflictingOptions) {
		t.Fatalf("got %v, want ErrConflictingOptions", err)
	}
}

func TestNewDialFailure(t *testing.T) {
	prev := dialSession
	dialSession = func(*slog.Logger) (bus.Connection, error) { return nil, errors.New("no session bus") }
	t.Cleanup(func() { dialSession = prev })

	if _, err := New(Config{Domain: "kde.org", Name: "app", Options: Unique}); err == nil {
		t.Fatal("expected a dial error")
	}
}

func TestRunSecondInstanceForwards(t *testing.T) {
	withBroker(t, bus.NewBroker())
	ctx := context.Background()

	first, primary, _, err := Run(ctx, Config{Domain: "kde.org", Name: "app", Options: Unique}, []string{"app"}, "/")
	if err != nil || !primary {
		t.Fatalf("first run: primary=%v err=%v", primary, err)
	}
	first.OnEvent(func(e Event) {
		if _, ok := e.(CommandLineEvent); ok {
			first.SetExitValue(2)
		}
	})

	_, primary, code, err := Run(ctx, Config{Domain: "kde.org", Name: "app", Options: Unique}, []string{"app", "-n"}, "/")
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if primary {
		t.Fatal("second instance must not be primary")
	}
	if code != 2 {
		t.Fatalf("exit code = %d, want 2", code)
	}
}
