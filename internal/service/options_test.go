package service

import (
	"errors"
	"testing"

	"github.com/sailfishos-mirror/kdbusaddons/internal/identity"
)

func TestOptionsValidate(t *testing.T) {
	cases := []struct {
		name string
		opts StartupOptions
		err  error
	}{
		{"unique", Unique, nil},
		{"multiple", Multiple, nil},
		{"unique with replace", Unique | Replace, nil},
		{"multiple with no-exit", Multiple | NoExitOnFailure, nil},
		{"unique and multiple", Unique | Multiple, ErrConflictingOptions},
		{"all flags", Unique | Multiple | Replace | NoExitOnFailure, ErrConflictingOptions},
	}
	for _, tc := range cases {
		if err := tc.opts.Validate(); !errors.Is(err, tc.err) {
			t.Errorf("%s: Validate() = %v, want %v", tc.name, err, tc.err)
		}
	}
}

func TestOptionsMode(t *testing.T) {
	if got := Unique.Mode(); got != identity.Unique {
		t.Fatalf("Unique.Mode() = %v", got)
	}
	if got := (Multiple | NoExitOnFailure).Mode(); got != identity.Multiple {
		t.Fatalf("Multiple.Mode() = %v", got)
	}
	// Absent Multiple, unique naming is the default.
	if got := StartupOptions(0).Mode(); got != identity.Unique {
		t.Fatalf("zero options Mode() = %v", got)
	}
}

func TestOptionsHas(t *testing.T) {
	opts := Unique | Replace
	if !opts.Has(Replace) || !opts.Has(Unique) {
		t.Fatal("Has() missed a set flag")
	}
	if opts.Has(NoExitOnFailure) {
		t.Fatal("Has() reported an unset flag")
	}
}
