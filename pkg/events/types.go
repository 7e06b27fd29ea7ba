// Package events defines the browser action and observation model shared by
// the driver, the runner and the broadcast relay.
package events

import (
	"fmt"
	"strings"
)

// ActionType tags every Action with the kind of browser step it requests.
type ActionType string

const (
	ActionBrowse            ActionType = "browse"
	ActionBrowseInteractive ActionType = "browse_interactive"
)

// ObservationType names the kind of observation produced by a step.
type ObservationType string

const (
	ObservationBrowse            ObservationType = "browse"
	ObservationBrowseInteractive ObservationType = "browse_interactive"
)

// EventSource records who produced an event.
type EventSource string

const (
	SourceAgent       EventSource = "agent"
	SourceUser        EventSource = "user"
	SourceEnvironment EventSource = "environment"
)

// SecurityRisk classifies how dangerous an action is. The zero value is
// RiskUnknown.
type SecurityRisk int

const (
	RiskUnknown SecurityRisk = iota
	RiskLow
	RiskMedium
	RiskHigh
)

// Level returns the numeric risk level used on the wire by agent tooling:
// -1 for unknown, then 0 (low) to 2 (high).
func (r SecurityRisk) Level() int {
	switch r {
	case RiskLow, RiskMedium, RiskHigh:
		return int(r) - 1
	default:
		return -1
	}
}

func (r SecurityRisk) String() string {
	switch r {
	case RiskLow:
		return "low"
	case RiskMedium:
		return "medium"
	case RiskHigh:
		return "high"
	default:
		return "unknown"
	}
}

// MarshalText encodes the risk by name.
func (r SecurityRisk) MarshalText() ([]byte, error) {
	return []byte(r.String()), nil
}

// UnmarshalText accepts a risk name (case-insensitive) or its numeric value.
func (r *SecurityRisk) UnmarshalText(text []byte) error {
	parsed, err := ParseSecurityRisk(string(text))
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}

// ParseSecurityRisk converts a risk name or numeric level ("low", "2", "-1")
// into a SecurityRisk. An empty string yields RiskUnknown.
func ParseSecurityRisk(s string) (SecurityRisk, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "unknown", "-1":
		return RiskUnknown, nil
	case "low", "0":
		return RiskLow, nil
	case "medium", "1":
		return RiskMedium, nil
	case "high", "2":
		return RiskHigh, nil
	}
	return RiskUnknown, fmt.Errorf("unknown security risk %q", s)
}
