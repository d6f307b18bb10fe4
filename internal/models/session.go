package models

import "time"

// SessionRecord is a persisted coaching session.
type SessionRecord struct {
	ID        string     `json:"id"`
	Stage     StageKey   `json:"stage"`
	StartedAt time.Time  `json:"startedAt"`
	EndedAt   *time.Time `json:"endedAt,omitempty"`
}

// CravingEvent holds the before/after intensity ratings for a session.
type CravingEvent struct {
	SessionID       string    `json:"sessionId"`
	IntensityBefore *float64  `json:"intensityBefore,omitempty"`
	IntensityAfter  *float64  `json:"intensityAfter,omitempty"`
	UpdatedAt       time.Time `json:"updatedAt"`
}

// Conversion records a call-to-action click and optional checkout start.
type Conversion struct {
	SessionID         string     `json:"sessionId"`
	Plan              string     `json:"plan,omitempty"`
	CTAClickedAt      *time.Time `json:"ctaClickedAt,omitempty"`
	CheckoutStartedAt *time.Time `json:"checkoutStartedAt,omitempty"`
	CreatedAt         time.Time  `json:"createdAt"`
}

// TurnEvent is the audit row written for every completed conversation turn.
type TurnEvent struct {
	SessionID string      `json:"sessionId"`
	Stage     StageKey    `json:"stage"`
	NextStage StageKey    `json:"nextStage,omitempty"`
	Source    ReplySource `json:"source"`
	Provider  string      `json:"provider,omitempty"`
	Model     string      `json:"model,omitempty"`
	CreatedAt time.Time   `json:"createdAt"`
}

// SessionDetail is the read model returned by GET /api/session/{id}.
type SessionDetail struct {
	Session     SessionRecord `json:"session"`
	Craving     *CravingEvent `json:"craving,omitempty"`
	Conversions []Conversion  `json:"conversions"`
	Turns       []TurnEvent   `json:"turns"`
}

// SessionCreateRequest is the body of POST /api/session.
type SessionCreateRequest struct {
	Stage StageKey `json:"stage,omitempty"`
}

// Validate applies the entry default and rejects unknown stages.
func (r *SessionCreateRequest) Validate() error {
	if r.Stage == "" {
		r.Stage = StageEntry
	}
	if !r.Stage.IsPrimary() {
		v := &ValidationError{}
		v.Add("stage", "unknown stage: "+string(r.Stage))
		return v
	}
	return nil
}

// SessionUpdateRequest is the body of PATCH /api/session/{id}.
type SessionUpdateRequest struct {
	Stage           *StageKey `json:"stage,omitempty"`
	IntensityBefore *float64  `json:"intensityBefore,omitempty"`
	IntensityAfter  *float64  `json:"intensityAfter,omitempty"`
	EndSession      *bool     `json:"endSession,omitempty"`
}

// Validate checks stage membership and intensity bounds.
func (r *SessionUpdateRequest) Validate() error {
	v := &ValidationError{}
	if r.Stage != nil && !r.Stage.IsPrimary() {
		v.Add("stage", "unknown stage: "+string(*r.Stage))
	}
	if r.IntensityBefore != nil && !IsValidIntensity(*r.IntensityBefore) {
		v.Add("intensityBefore", "intensityBefore must be between 0 and 10")
	}
	if r.IntensityAfter != nil && !IsValidIntensity(*r.IntensityAfter) {
		v.Add("intensityAfter", "intensityAfter must be between 0 and 10")
	}
	return v.OrNil()
}

// ConversionRequest is the body of POST /api/session/{id}/conversion.
type ConversionRequest struct {
	Plan            *string `json:"plan,omitempty"`
	CheckoutStarted *bool   `json:"checkoutStarted,omitempty"`
}

// SessionCreateResponse reports the session id handed to the client.
type SessionCreateResponse struct {
	SessionID string   `json:"sessionId"`
	Stage     StageKey `json:"stage"`
	Persisted bool     `json:"persisted"`
}

// SessionUpdateResponse reports which parts of an update were stored.
type SessionUpdateResponse struct {
	Persisted        bool `json:"persisted"`
	StageUpdated     bool `json:"stageUpdated"`
	IntensityUpdated bool `json:"intensityUpdated"`
}

// ConversionResponse reports whether a conversion was stored.
type ConversionResponse struct {
	Persisted bool `json:"persisted"`
}
