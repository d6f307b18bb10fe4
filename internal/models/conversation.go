package models

import (
	"strconv"
)

// InteractionMode is how the user is talking to the coach.
type InteractionMode string

const (
	ModeVoice InteractionMode = "voice"
	ModeText  InteractionMode = "text"
)

// IsValid reports whether m is a supported mode.
func (m InteractionMode) IsValid() bool {
	return m == ModeVoice || m == ModeText
}

// ReplySource tells the caller where the turn's messages came from.
type ReplySource string

const (
	SourceLLM    ReplySource = "llm"
	SourceScript ReplySource = "script"
)

// Craving intensity bounds, inclusive.
const (
	MinCravingIntensity = 0
	MaxCravingIntensity = 10
)

// TurnMetadata carries optional per-turn context from the client.
type TurnMetadata struct {
	CravingIntensity *float64        `json:"cravingIntensity,omitempty"`
	Mode             InteractionMode `json:"mode,omitempty"`
}

// TurnRequest is one user utterance for a session at a given stage.
type TurnRequest struct {
	SessionID string        `json:"sessionId"`
	Stage     StageKey      `json:"stage"`
	UserInput string        `json:"userInput"`
	Metadata  *TurnMetadata `json:"metadata,omitempty"`
}

// Intensity returns the craving intensity when the client supplied one.
func (r TurnRequest) Intensity() (float64, bool) {
	if r.Metadata == nil || r.Metadata.CravingIntensity == nil {
		return 0, false
	}
	return *r.Metadata.CravingIntensity, true
}

// Mode returns the interaction mode, or "" when absent.
func (r TurnRequest) Mode() InteractionMode {
	if r.Metadata == nil {
		return ""
	}
	return r.Metadata.Mode
}

// Validate checks the request against the conversation schema.
func (r *TurnRequest) Validate() error {
	v := &ValidationError{}
	if r.SessionID == "" {
		v.Add("sessionId", "sessionId is required")
	}
	if r.Stage == "" {
		v.Add("stage", "stage is required")
	} else if !r.Stage.IsValid() {
		v.Add("stage", "unknown stage: "+string(r.Stage))
	}
	if r.UserInput == "" {
		v.Add("userInput", "userInput is required")
	}
	if r.Metadata != nil {
		if i := r.Metadata.CravingIntensity; i != nil && !IsValidIntensity(*i) {
			v.Add("metadata.cravingIntensity", "cravingIntensity must be between 0 and 10")
		}
		if r.Metadata.Mode != "" && !r.Metadata.Mode.IsValid() {
			v.Add("metadata.mode", "mode must be one of voice, text")
		}
	}
	return v.OrNil()
}

// TurnResponse is the envelope returned for every conversation turn.
type TurnResponse struct {
	Stage     StageKey    `json:"stage"`
	Messages  []string    `json:"messages"`
	NextStage StageKey    `json:"nextStage,omitempty"`
	Source    ReplySource `json:"source"`
}

// IsValidIntensity reports whether v lies within the inclusive 0..10 scale.
func IsValidIntensity(v float64) bool {
	return v >= MinCravingIntensity && v <= MaxCravingIntensity
}

// FormatIntensity renders an intensity without trailing zeros, so 7 prints as "7"
// and 6.5 as "6.5".
func FormatIntensity(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
