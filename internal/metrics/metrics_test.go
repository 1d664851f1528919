package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRegisterIdempotent(t *testing.T) {
	reg := prometheus.NewRegistry()
	if err := Register(reg); err != nil {
		t.Fatalf("first register: %v", err)
	}
	if err := Register(reg); err != nil {
		t.Fatalf("second register: %v", err)
	}
}

func TestHelpersRecordAfterRegister(t *testing.T) {
	reg := prometheus.NewRegistry()
	if err := Register(reg); err != nil {
		t.Fatalf("register: %v", err)
	}

	IncClaim("registered")
	IncClaim("forwarding")
	IncForward("ok")
	IncActivation("activate")
	IncActivation("activate")
	SetRegistered("org.example.app", true)

	if got := testutil.ToFloat64(claims.WithLabelValues("registered")); got != 1 {
		t.Fatalf("claims{registered} = %v, want 1", got)
	}
	if got := testutil.ToFloat64(activations.WithLabelValues("activate")); got != 2 {
		t.Fatalf("activations{activate} = %v, want 2", got)
	}
	if got := testutil.ToFloat64(registered.WithLabelValues("org.example.app")); got != 1 {
		t.Fatalf("registered gauge = %v, want 1", got)
	}

	SetRegistered("org.example.app", false)
	if got := testutil.ToFloat64(registered.WithLabelValues("org.example.app")); got != 0 {
		t.Fatalf("registered gauge after unregister = %v, want 0", got)
	}
}
