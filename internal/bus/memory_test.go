package bus

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

// recordingHandlers collects inbound calls for assertions.
type recordingHandlers struct {
	mu          sync.Mutex
	activations int
	opens       [][]string
	actions     []string
	commandLine func(args []string, workdir string, pd PlatformData) int
	quits       int
}

func (h *recordingHandlers) Activate(pd PlatformData) {
	h.mu.Lock()
	h.activations++
	h.mu.Unlock()
}

func (h *recordingHandlers) Open(uris []string, pd PlatformData) {
	h.mu.Lock()
	h.opens = append(h.opens, uris)
	h.mu.Unlock()
}

func (h *recordingHandlers) ActivateAction(name string, parameter []any, pd PlatformData) {
	h.mu.Lock()
	h.actions = append(h.actions, name)
	h.mu.Unlock()
}

func (h *recordingHandlers) CommandLine(args []string, workdir string, pd PlatformData) int {
	if h.commandLine != nil {
		return h.commandLine(args, workdir, pd)
	}
	return 0
}

func (h *recordingHandlers) Quit() {
	h.mu.Lock()
	h.quits++
	h.mu.Unlock()
}

func TestClaimNameIsAtomic(t *testing.T) {
	b := NewBroker()
	a := b.Connect()
	c := b.Connect()

	ra, err := a.ClaimName("org.example.app")
	if err != nil {
		t.Fatalf("first claim: %v", err)
	}
	rc, err := c.ClaimName("org.example.app")
	if err != nil {
		t.Fatalf("second claim: %v", err)
	}
	if ra != ClaimPrimaryOwner || rc != ClaimOwnedByOther {
		t.Fatalf("got (%v, %v), want (primary, owned-by-other)", ra, rc)
	}
}

func TestClaimNameConcurrentExactlyOneOwner(t *testing.T) {
	b := NewBroker()
	const n = 16
	replies := make([]ClaimReply, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			conn := b.Connect()
			r, err := conn.ClaimName("org.example.app")
			if err != nil {
				t.Errorf("claim %d: %v", i, err)
			}
			replies[i] = r
		}(i)
	}
	wg.Wait()
	owners := 0
	for _, r := range replies {
		if r == ClaimPrimaryOwner {
			owners++
		}
	}
	if owners != 1 {
		t.Fatalf("got %d primary owners, want exactly 1", owners)
	}
}

func TestPeerCallsDispatchToOwner(t *testing.T) {
	b := NewBroker()
	owner := b.Connect()
	h := &recordingHandlers{
		commandLine: func(args []string, workdir string, pd PlatformData) int { return 7 },
	}
	if err := owner.Export(h); err != nil {
		t.Fatalf("export: %v", err)
	}
	if _, err := owner.ClaimName("org.example.app"); err != nil {
		t.Fatalf("claim: %v", err)
	}

	other := b.Connect()
	peer := other.Peer("org.example.app")
	ctx := context.Background()

	if err := peer.Activate(ctx, nil); err != nil {
		t.Fatalf("activate: %v", err)
	}
	if err := peer.Open(ctx, []string{"file:///tmp/a"}, nil); err != nil {
		t.Fatalf("open: %v", err)
	}
	code, err := peer.CommandLine(ctx, []string{"app"}, "/tmp", nil)
	if err != nil {
		t.Fatalf("command line: %v", err)
	}
	if code != 7 {
		t.Fatalf("exit code = %d, want 7", code)
	}
	if h.activations != 1 || len(h.opens) != 1 {
		t.Fatalf("handler saw %d activations, %d opens", h.activations, len(h.opens))
	}
}

func TestPeerCallNoOwner(t *testing.T) {
	b := NewBroker()
	conn := b.Connect()
	peer := conn.Peer("org.example.ghost")
	if _, err := peer.CommandLine(context.Background(), nil, "", nil); !errors.Is(err, ErrNoOwner) {
		t.Fatalf("got %v, want ErrNoOwner", err)
	}
}

func TestCloseReleasesNamesAndNotifiesWaiters(t *testing.T) {
	b := NewBroker()
	owner := b.Connect()
	if _, err := owner.ClaimName("org.example.app"); err != nil {
		t.Fatalf("claim: %v", err)
	}

	watcher := b.Connect()
	done := make(chan error, 1)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		done <- watcher.WaitNameVanish(ctx, "org.example.app")
	}()

	// Give the waiter a moment to register before the owner vanishes.
	time.Sleep(10 * time.Millisecond)
	if err := owner.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := <-done; err != nil {
		t.Fatalf("wait vanish: %v", err)
	}
	if b.HasOwner("org.example.app") {
		t.Fatal("name still owned after close")
	}
}

func TestWaitNameVanishUnownedReturnsImmediately(t *testing.T) {
	b := NewBroker()
	conn := b.Connect()
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if err := conn.WaitNameVanish(ctx, "org.example.nobody"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestClaimOnClosedConnection(t *testing.T) {
	b := NewBroker()
	conn := b.Connect()
	if err := conn.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if _, err := conn.ClaimName("org.example.app"); !errors.Is(err, ErrClosed) {
		t.Fatalf("got %v, want ErrClosed", err)
	}
}
