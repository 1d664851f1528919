package service

import (
	"sync"

	"github.com/sailfishos-mirror/kdbusaddons/internal/bus"
)

// Event is an activation request delivered to the hosting application.
type Event interface {
	// Kind names the activation variant: activate, open, action or
	// command_line.
	Kind() string
}

// ActivateEvent asks the application to present itself (typically: raise
// the main window).
type ActivateEvent struct {
	PlatformData bus.PlatformData
}

func (ActivateEvent) Kind() string { return "activate" }

// OpenEvent asks the application to open the given URIs, in order.
type OpenEvent struct {
	URIs         []string
	PlatformData bus.PlatformData
}

func (OpenEvent) Kind() string { return "open" }

// ActionEvent triggers a named application action with at most one
// parameter value.
type ActionEvent struct {
	Name         string
	Parameter    any
	HasParameter bool
	PlatformData bus.PlatformData
}

func (ActionEvent) Kind() string { return "action" }

// CommandLineEvent carries a forwarded invocation: the full argument
// vector (program name first) and the caller's working directory. A
// listener handling it synchronously may set the exit value returned to
// the forwarding instance.
type CommandLineEvent struct {
	Arguments        []string
	WorkingDirectory string
	PlatformData     bus.PlatformData
}

func (CommandLineEvent) Kind() string { return "command_line" }

// DeliveryMode selects how events reach the hosting application.
type DeliveryMode int

const (
	// DeliverSync invokes listeners inline, on the goroutine serving the
	// bus call. A CommandLine listener running in this mode can influence
	// the exit value sent back to the caller.
	DeliverSync DeliveryMode = iota
	// DeliverQueued places events on a buffered channel for the
	// application to drain. The CommandLine reply is sent before queued
	// listeners run.
	DeliverQueued
)

const defaultQueueSize = 64

type dispatcher struct {
	mode DeliveryMode

	mu        sync.Mutex
	listeners []func(Event)

	queue chan Event
}

func newDispatcher(mode DeliveryMode, queueSize int) *dispatcher {
	d := &dispatcher{mode: mode}
	if mode == DeliverQueued {
		if queueSize <= 0 {
			queueSize = defaultQueueSize
		}
		d.queue = make(chan Event, queueSize)
	}
	return d
}

func (d *dispatcher) addListener(fn func(Event)) {
	d.mu.Lock()
	d.listeners = append(d.listeners, fn)
	d.mu.Unlock()
}

func (d *dispatcher) dispatch(e Event) {
	if d.mode == DeliverQueued {
		d.queue <- e
		return
	}
	d.mu.Lock()
	ls := make([]func(Event), len(d.listeners))
	copy(ls, d.listeners)
	d.mu.Unlock()
	for _, fn := range ls {
		fn(e)
	}
}

func (d *dispatcher) events() <-chan Event { return d.queue }
