// Package featureflags evaluates FEATURE_FLAGS, e.g.
// "contribution_emails=on,gift_images=50%,statement_export=off".
package featureflags

import (
	"errors"
	"fmt"
	"hash/fnv"
	"maps"
	"strconv"
	"strings"
)

// Flags read by the application.
const (
	ContributionEmails = "contribution_emails"
	GiftImages         = "gift_images"
	StatementExport    = "statement_export"
)

// defaults apply when a known flag is not configured. Emails are opt-in; the gift
// features ship on.
var defaults = map[string]bool{
	ContributionEmails: false,
	GiftImages:         true,
	StatementExport:    true,
}

// Manager holds parsed rollouts. A nil Manager behaves like an empty configuration.
type Manager struct {
	percent map[string]int
	raw     map[string]string
}

// Parse reads a comma-separated list of name=value pairs. Values are on/true/1,
// off/false/0 or a rollout percentage like 25%. Every malformed entry is reported.
func Parse(raw string) (*Manager, error) {
	m := &Manager{percent: map[string]int{}, raw: map[string]string{}}
	var errs []error

	for _, entry := range strings.Split(raw, ",") {
		if strings.TrimSpace(entry) == "" {
			continue
		}
		name, value, ok := strings.Cut(entry, "=")
		name, value = normalize(name), normalize(value)
		if !ok || name == "" || value == "" {
			errs = append(errs, fmt.Errorf("feature flag %q: want name=value", strings.TrimSpace(entry)))
			continue
		}
		pct, err := parseValue(value)
		if err != nil {
			errs = append(errs, fmt.Errorf("feature flag %s: %w", name, err))
			continue
		}
		m.percent[name] = pct
		m.raw[name] = value
	}
	return m, errors.Join(errs...)
}

// NewManager is Parse that skips malformed entries.
func NewManager(raw string) *Manager {
	m, _ := Parse(raw)
	return m
}

func parseValue(v string) (int, error) {
	switch v {
	case "on", "true", "1":
		return 100, nil
	case "off", "false", "0":
		return 0, nil
	}
	digits, ok := strings.CutSuffix(v, "%")
	if !ok {
		return 0, fmt.Errorf("unknown value %q", v)
	}
	pct, err := strconv.Atoi(digits)
	if err != nil || pct < 0 || pct > 100 {
		return 0, fmt.Errorf("rollout %q must be between 0%% and 100%%", v)
	}
	return pct, nil
}

// Enabled reports whether name is on for userID. Partial rollouts bucket users
// deterministically and never include anonymous callers.
func (m *Manager) Enabled(name string, userID string) bool {
	name = normalize(name)
	pct, ok := m.lookup(name)
	if !ok {
		return defaults[name]
	}
	switch {
	case pct >= 100:
		return true
	case pct <= 0, userID == "":
		return false
	}
	return bucket(name, userID) < pct
}

func (m *Manager) lookup(name string) (int, bool) {
	if m == nil {
		return 0, false
	}
	pct, ok := m.percent[name]
	return pct, ok
}

// Configured reports whether name has a value at all.
func (m *Manager) Configured(name string) bool {
	_, ok := m.lookup(normalize(name))
	return ok
}

// Raw returns the configured values as written, normalized to lower case.
func (m *Manager) Raw() map[string]string {
	if m == nil {
		return map[string]string{}
	}
	return maps.Clone(m.raw)
}

// Snapshot evaluates every known and configured flag for userID.
func (m *Manager) Snapshot(userID string) map[string]bool {
	out := make(map[string]bool, len(defaults))
	for name := range defaults {
		out[name] = m.Enabled(name, userID)
	}
	if m != nil {
		for name := range m.percent {
			out[name] = m.Enabled(name, userID)
		}
	}
	return out
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func bucket(name, userID string) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(name + ":" + userID))
	return int(h.Sum32() % 100)
}
