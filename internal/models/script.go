package models

import (
	"fmt"
	"sort"
	"strings"
)

// StageScript is the narrative content bound to one stage.
type StageScript struct {
	Intent        string   `json:"intent" yaml:"intent"`
	Tone          string   `json:"tone" yaml:"tone"`
	CoachMessages []string `json:"coachMessages" yaml:"coachMessages"`
	UserPrompts   []string `json:"userPrompts" yaml:"userPrompts"`
	ImprovNotes   []string `json:"improvNotes" yaml:"improvNotes"`
	LLMProvider   string   `json:"llmProvider,omitempty" yaml:"llmProvider,omitempty"`
	LLMModel      string   `json:"llmModel,omitempty" yaml:"llmModel,omitempty"`
}

// FirstCoachMessage returns the first coach message, or "" when the list is
// empty or its first entry is blank.
func (s StageScript) FirstCoachMessage() string {
	if len(s.CoachMessages) == 0 || strings.TrimSpace(s.CoachMessages[0]) == "" {
		return ""
	}
	return s.CoachMessages[0]
}

// ScriptDocument is the versioned bundle mapping stages to their scripts.
type ScriptDocument struct {
	Version string                   `json:"version" yaml:"version"`
	Stages  map[StageKey]StageScript `json:"stages" yaml:"stages"`
}

// Stage returns the script for s. Relief sub-stages without their own entry
// inherit the relief script.
func (d *ScriptDocument) Stage(s StageKey) (StageScript, bool) {
	if d == nil {
		return StageScript{}, false
	}
	if sc, ok := d.Stages[s]; ok {
		return sc, true
	}
	if s.IsReliefSubStage() {
		sc, ok := d.Stages[StageRelief]
		return sc, ok
	}
	return StageScript{}, false
}

// StageKeys returns the stage keys present in the document, primary stages first
// in flow order followed by any sub-stages in their declared order.
func (d *ScriptDocument) StageKeys() []StageKey {
	if d == nil {
		return nil
	}
	keys := make([]StageKey, 0, len(d.Stages))
	for _, s := range append(append([]StageKey{}, StageOrder...), ReliefSubStages...) {
		if _, ok := d.Stages[s]; ok {
			keys = append(keys, s)
		}
	}
	return keys
}

// Validate checks the document is complete: a version, a script for every primary
// stage, and no unknown stage keys.
func (d *ScriptDocument) Validate() error {
	if d == nil {
		return ErrEmptyScriptDocument
	}
	if strings.TrimSpace(d.Version) == "" {
		return ErrMissingScriptVersion
	}

	var unknown []string
	for k := range d.Stages {
		if !k.IsValid() {
			unknown = append(unknown, string(k))
		}
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		return fmt.Errorf("%w: %s", ErrUnknownStage, strings.Join(unknown, ", "))
	}

	var missing []string
	for _, s := range StageOrder {
		if _, ok := d.Stages[s]; !ok {
			missing = append(missing, string(s))
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %s", ErrMissingStageScript, strings.Join(missing, ", "))
	}
	return nil
}
