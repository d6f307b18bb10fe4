// Package models defines the stage, script, and conversation types shared across
// the craving companion backend.
package models

import (
	"fmt"
	"strings"
)

// StageKey identifies a phase of the scripted coaching flow.
type StageKey string

// Primary stages, in flow order.
const (
	StageEntry      StageKey = "entry"
	StageRelief     StageKey = "relief"
	StageReflection StageKey = "reflection"
	StageTeaser     StageKey = "teaser"
	StageConversion StageKey = "conversion"
)

// Relief sub-stages. They belong to the relief family and chain into reflection.
const (
	StageReliefPreIntensity StageKey = "relief_pre_intensity"
	StageReliefCenter       StageKey = "relief_center"
	StageReliefObserve      StageKey = "relief_observe"
	StageReliefRelease      StageKey = "relief_release"
	StageReliefCheckin      StageKey = "relief_checkin"
)

// StageOrder lists the primary stages in the order a session walks them.
var StageOrder = []StageKey{
	StageEntry,
	StageRelief,
	StageReflection,
	StageTeaser,
	StageConversion,
}

// ReliefSubStages lists the optional relief refinement stages in order.
var ReliefSubStages = []StageKey{
	StageReliefPreIntensity,
	StageReliefCenter,
	StageReliefObserve,
	StageReliefRelease,
	StageReliefCheckin,
}

// successors is the fixed transition table. The terminal stage has no entry.
var successors = map[StageKey]StageKey{
	StageEntry:      StageRelief,
	StageRelief:     StageReflection,
	StageReflection: StageTeaser,
	StageTeaser:     StageConversion,

	StageReliefPreIntensity: StageReliefCenter,
	StageReliefCenter:       StageReliefObserve,
	StageReliefObserve:      StageReliefRelease,
	StageReliefRelease:      StageReliefCheckin,
	StageReliefCheckin:      StageReflection,
}

// IsPrimary reports whether s is one of the five primary stages.
func (s StageKey) IsPrimary() bool {
	for _, k := range StageOrder {
		if k == s {
			return true
		}
	}
	return false
}

// IsReliefSubStage reports whether s is one of the relief refinement stages.
func (s StageKey) IsReliefSubStage() bool {
	for _, k := range ReliefSubStages {
		if k == s {
			return true
		}
	}
	return false
}

// IsValid reports whether s is a known stage.
func (s StageKey) IsValid() bool {
	return s.IsPrimary() || s.IsReliefSubStage()
}

// Family returns the primary stage s belongs to.
func (s StageKey) Family() StageKey {
	if s.IsReliefSubStage() {
		return StageRelief
	}
	return s
}

// IsTerminal reports whether s ends the flow.
func (s StageKey) IsTerminal() bool {
	return s == StageConversion
}

// NextStage returns the successor of s. The second result is false for the
// terminal stage and for unknown stages.
func NextStage(s StageKey) (StageKey, bool) {
	next, ok := successors[s]
	return next, ok
}

// ParseStage converts raw input into a StageKey, rejecting unknown values.
func ParseStage(raw string) (StageKey, error) {
	s := StageKey(strings.ToLower(strings.TrimSpace(raw)))
	if !s.IsValid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownStage, raw)
	}
	return s, nil
}

// StageNames returns the primary stage identifiers as strings.
func StageNames() []string {
	names := make([]string, len(StageOrder))
	for i, s := range StageOrder {
		names[i] = string(s)
	}
	return names
}
