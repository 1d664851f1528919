package main

import (
	"encoding/json"
	"fmt"
	"os"
)

// tokenPlatformData attaches any activation token from this process's
// environment to an outbound call, so the owner can use it to raise its
// window with focus.
func tokenPlatformData() map[string]any {
	pd := map[string]any{}
	if v := os.Getenv("XDG_ACTIVATION_TOKEN"); v != "" {
		pd["activation-token"] = v
	}
	if v := os.Getenv("DESKTOP_STARTUP_ID"); v != "" {
		pd["desktop-startup-id"] = v
	}
	if len(pd) == 0 {
		return nil
	}
	return pd
}

// parseActionParameter decodes the --param JSON into the at-most-one
// element parameter list the activation protocol expects.
func parseActionParameter(raw string) ([]any, error) {
	if raw == "" {
		return nil, nil
	}
	var v any
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		return nil, fmt.Errorf("invalid --param JSON: %w", err)
	}
	return []any{v}, nil
}
