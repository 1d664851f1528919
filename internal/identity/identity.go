// Package identity derives the canonical bus name a process registers
// under. The name is the reversed organization domain followed by the
// application name (org.example.app for domain "example.org" and app
// "app"); Multiple-mode identities additionally carry the process id so
// concurrent launches never collide.
package identity

import (
	"errors"
	"fmt"
	"os"
	"strings"
)

// Mode selects between one bus name shared by all launches (Unique) and
// one bus name per process (Multiple).
type Mode int

const (
	Unique Mode = iota
	Multiple
)

func (m Mode) String() string {
	if m == Multiple {
		return "multiple"
	}
	return "unique"
}

var (
	ErrEmptyDomain = errors.New("identity: organization domain is empty")
	ErrEmptyName   = errors.New("identity: application name is empty")
)

// Identity is the resolved bus identity of this process. It is immutable
// once returned by Resolve.
type Identity struct {
	Domain string
	Name   string
	Mode   Mode
	PID    int // set only in Multiple mode
}

// Resolve computes the identity for the given organization domain and
// application name. pid supplies the process id for Multiple mode; a nil
// pid falls back to os.Getpid.
func Resolve(domain, name string, mode Mode, pid func() int) (Identity, error) {
	if strings.TrimSpace(domain) == "" {
		return Identity{}, ErrEmptyDomain
	}
	if strings.TrimSpace(name) == "" {
		return Identity{}, ErrEmptyName
	}
	id := Identity{Domain: domain, Name: name, Mode: mode}
	if mode == Multiple {
		if pid == nil {
			pid = os.Getpid
		}
		id.PID = pid()
	}
	return id, nil
}

// BusName returns the well-known name this identity claims on the bus,
// e.g. "org.example.app" or "org.example.app-1234" in Multiple mode.
func (id Identity) BusName() string {
	parts := strings.Split(id.Domain, ".")
	elems := make([]string, 0, len(parts)+1)
	for i := len(parts) - 1; i >= 0; i-- {
		if parts[i] == "" {
			continue
		}
		elems = append(elems, sanitizeElement(parts[i]))
	}
	elems = append(elems, sanitizeElement(id.Name))
	name := strings.Join(elems, ".")
	if id.Mode == Multiple {
		name = fmt.Sprintf("%s-%d", name, id.PID)
	}
	return name
}

// sanitizeElement maps an arbitrary string onto the bus name element
// grammar: only [A-Za-z0-9_] survive, anything else becomes '_', and an
// element may not begin with a digit.
func sanitizeElement(s string) string {
	var b strings.Builder
	b.Grow(len(s) + 1)
	for i, r := range s {
		valid := r == '_' ||
			(r >= 'a' && r <= 'z') ||
			(r >= 'A' && r <= 'Z') ||
			(r >= '0' && r <= '9')
		if !valid {
			b.WriteByte('_')
			continue
		}
		if i == 0 && r >= '0' && r <= '9' {
			b.WriteByte('_')
		}
		b.WriteRune(r)
	}
	return b.String()
}
