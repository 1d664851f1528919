package bus

import (
	"context"
	"fmt"
	"sync"
)

// Broker is an in-process bus with the same atomic name-claim semantics
// as the real thing. Each Connect call models one process's connection;
// closing a connection releases every name it holds, mirroring how the
// bus drops claims on disconnect.
type Broker struct {
	mu      sync.Mutex
	owners  map[string]*MemoryConn
	waiters map[string][]chan struct{}
}

func NewBroker() *Broker {
	return &Broker{
		owners:  make(map[string]*MemoryConn),
		waiters: make(map[string][]chan struct{}),
	}
}

// Connect returns a new connection to the broker.
func (b *Broker) Connect() *MemoryConn {
	return &MemoryConn{broker: b, names: make(map[string]struct{})}
}

// HasOwner reports whether name is currently claimed.
func (b *Broker) HasOwner(name string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.owners[name]
	return ok
}

// ownerHandlers resolves the current owner's exported handlers without
// holding the broker lock during dispatch.
func (b *Broker) ownerHandlers(name string) (Handlers, error) {
	b.mu.Lock()
	owner, ok := b.owners[name]
	b.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNoOwner, name)
	}
	owner.mu.Lock()
	h := owner.handlers
	owner.mu.Unlock()
	if h == nil {
		return nil, fmt.Errorf("%w: %s exports no handlers", ErrNoOwner, name)
	}
	return h, nil
}

func (b *Broker) releaseLocked(name string, conn *MemoryConn) {
	if b.owners[name] != conn {
		return
	}
	delete(b.owners, name)
	for _, ch := range b.waiters[name] {
		close(ch)
	}
	delete(b.waiters, name)
}

// MemoryConn is a Broker-backed Connection.
type MemoryConn struct {
	broker *Broker

	mu       sync.Mutex
	handlers Handlers
	names    map[string]struct{}
	closed   bool
}

var _ Connection = (*MemoryConn)(nil)

func (c *MemoryConn) ClaimName(name string) (ClaimReply, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return 0, ErrClosed
	}
	c.mu.Unlock()

	c.broker.mu.Lock()
	defer c.broker.mu.Unlock()
	if owner, ok := c.broker.owners[name]; ok {
		if owner == c {
			return ClaimPrimaryOwner, nil
		}
		return ClaimOwnedByOther, nil
	}
	c.broker.owners[name] = c
	c.mu.Lock()
	c.names[name] = struct{}{}
	c.mu.Unlock()
	return ClaimPrimaryOwner, nil
}

func (c *MemoryConn) ReleaseName(name string) error {
	c.broker.mu.Lock()
	c.broker.releaseLocked(name, c)
	c.broker.mu.Unlock()
	c.mu.Lock()
	delete(c.names, name)
	c.mu.Unlock()
	return nil
}

func (c *MemoryConn) Export(h Handlers) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	c.handlers = h
	return nil
}

func (c *MemoryConn) Peer(name string) Peer {
	return &memoryPeer{broker: c.broker, name: name}
}

func (c *MemoryConn) WaitNameVanish(ctx context.Context, name string) error {
	c.broker.mu.Lock()
	if _, ok := c.broker.owners[name]; !ok {
		c.broker.mu.Unlock()
		return nil
	}
	ch := make(chan struct{})
	c.broker.waiters[name] = append(c.broker.waiters[name], ch)
	c.broker.mu.Unlock()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-ch:
		return nil
	}
}

func (c *MemoryConn) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	held := make([]string, 0, len(c.names))
	for name := range c.names {
		held = append(held, name)
	}
	c.names = make(map[string]struct{})
	c.handlers = nil
	c.mu.Unlock()

	c.broker.mu.Lock()
	for _, name := range held {
		c.broker.releaseLocked(name, c)
	}
	c.broker.mu.Unlock()
	return nil
}

// memoryPeer resolves the owner per call, like a real bus resolves the
// destination name per message.
type memoryPeer struct {
	broker *Broker
	name   string
}

func (p *memoryPeer) Activate(ctx context.Context, pd PlatformData) error {
	h, err := p.broker.ownerHandlers(p.name)
	if err != nil {
		return err
	}
	h.Activate(pd)
	return nil
}

func (p *memoryPeer) Open(ctx context.Context, uris []string, pd PlatformData) error {
	h, err := p.broker.ownerHandlers(p.name)
	if err != nil {
		return err
	}
	h.Open(uris, pd)
	return nil
}

func (p *memoryPeer) ActivateAction(ctx context.Context, name string, parameter []any, pd PlatformData) error {
	h, err := p.broker.ownerHandlers(p.name)
	if err != nil {
		return err
	}
	h.ActivateAction(name, parameter, pd)
	return nil
}

func (p *memoryPeer) CommandLine(ctx context.Context, args []string, workdir string, pd PlatformData) (int, error) {
	h, err := p.broker.ownerHandlers(p.name)
	if err != nil {
		return 0, err
	}
	return h.CommandLine(args, workdir, pd), nil
}

func (p *memoryPeer) Quit(ctx context.Context) error {
	h, err := p.broker.ownerHandlers(p.name)
	if err != nil {
		return err
	}
	h.Quit()
	return nil
}
