package config

import (
	"fmt"
	"strings"
	"time"
)

// ParseDurationOrDefault parses a duration config field. Empty and zero
// values fall back to def; negative values are rejected rather than
// defaulted so a typo like "-5m" surfaces at load time.
func ParseDurationOrDefault(field, raw string, def time.Duration) (time.Duration, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return def, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid duration %q: %w", field, raw, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("%s: duration must be >= 0", field)
	}
	if d == 0 {
		return def, nil
	}
	return d, nil
}
