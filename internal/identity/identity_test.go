package identity

import (
	"strings"
	"testing"
)

func TestResolveUnique(t *testing.T) {
	id, err := Resolve("kde.org", "kuiserver", Unique, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := id.BusName(); got != "org.kde.kuiserver" {
		t.Fatalf("bus name = %q, want org.kde.kuiserver", got)
	}
	if id.PID != 0 {
		t.Fatalf("unique identity must not carry a pid, got %d", id.PID)
	}
}

func TestResolveMultipleAppendsPID(t *testing.T) {
	id, err := Resolve("kde.org", "konqueror", Multiple, func() int { return 12345 })
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := id.BusName(); got != "org.kde.konqueror-12345" {
		t.Fatalf("bus name = %q, want org.kde.konqueror-12345", got)
	}
}

func TestResolveMultipleDistinctPIDsNeverCollide(t *testing.T) {
	a, _ := Resolve("example.org", "app", Multiple, func() int { return 1 })
	b, _ := Resolve("example.org", "app", Multiple, func() int { return 2 })
	if a.BusName() == b.BusName() {
		t.Fatalf("distinct pids produced the same bus name %q", a.BusName())
	}
}

func TestResolveDeterministic(t *testing.T) {
	a, _ := Resolve("example.org", "app", Unique, nil)
	b, _ := Resolve("example.org", "app", Unique, nil)
	if a.BusName() != b.BusName() {
		t.Fatalf("resolution is not deterministic: %q vs %q", a.BusName(), b.BusName())
	}
}

func TestResolveRejectsEmptyInput(t *testing.T) {
	if _, err := Resolve("", "app", Unique, nil); err != ErrEmptyDomain {
		t.Fatalf("empty domain: got %v, want ErrEmptyDomain", err)
	}
	if _, err := Resolve("example.org", "  ", Unique, nil); err != ErrEmptyName {
		t.Fatalf("blank name: got %v, want ErrEmptyName", err)
	}
}

func TestBusNameSanitization(t *testing.T) {
	tests := []struct {
		domain string
		name   string
		want   string
	}{
		{"7-zip.org", "7zFM", "org._7_zip._7zFM"},
		{"example.org", "my app", "org.example.my_app"},
		{"sub.example.org", "app", "org.example.sub.app"},
		{"example..org", "app", "org.example.app"}, // empty element dropped
	}
	for _, tt := range tests {
		id, err := Resolve(tt.domain, tt.name, Unique, nil)
		if err != nil {
			t.Fatalf("Resolve(%q, %q): %v", tt.domain, tt.name, err)
		}
		if got := id.BusName(); got != tt.want {
			t.Errorf("BusName(%q, %q) = %q, want %q", tt.domain, tt.name, got, tt.want)
		}
	}
}

func TestBusNameGrammar(t *testing.T) {
	id, _ := Resolve("wéird.örg", "na/me", Unique, nil)
	name := id.BusName()
	for _, r := range name {
		ok := r == '.' || r == '_' ||
			(r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9')
		if !ok {
			t.Fatalf("bus name %q contains invalid rune %q", name, r)
		}
	}
	for _, elem := range strings.Split(name, ".") {
		if elem == "" {
			t.Fatalf("bus name %q contains an empty element", name)
		}
	}
}
