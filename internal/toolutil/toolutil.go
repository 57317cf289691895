// Package toolutil normalizes MCP tool inputs before they reach the matching service.
package toolutil

import (
	"fmt"
	"strings"
	"time"

	"github.com/anatolykoptev/go_match/internal/engine"
	"github.com/anatolykoptev/go_match/internal/engine/queue"
)

// NormKind parses an entity kind; empty means job.
func NormKind(kind string) (engine.EntityKind, error) {
	return engine.ParseEntityKind(strings.ToLower(strings.TrimSpace(kind)))
}

// NormID trims an entity id and rejects an empty one.
func NormID(field, id string) (string, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return "", fmt.Errorf("%s is required", field)
	}
	return id, nil
}

// NormPriority maps an unset priority to the default. 0 is the most urgent
// valid priority; negative values are rejected.
func NormPriority(p *int) (int, error) {
	if p == nil {
		return queue.DefaultPriority, nil
	}
	if *p < 0 {
		return 0, fmt.Errorf("priority must be 0 or more, got %d", *p)
	}
	return *p, nil
}

// NormDuration parses a Go duration string; empty means def.
func NormDuration(s string, def time.Duration) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return def, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q: %w", s, err)
	}
	return d, nil
}
