// Package flow drives one coaching turn: it picks a provider, asks it for a reply,
// falls back to the stage script when no usable reply comes back, and advances the
// stage along the fixed successor table.
package flow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/BTreeMap/CravingCompanion/internal/models"
	"github.com/BTreeMap/CravingCompanion/internal/policy"
	"github.com/BTreeMap/CravingCompanion/internal/prompt"
	"github.com/BTreeMap/CravingCompanion/internal/provider"
)

// ErrUnknownStage is returned when the request stage has no script content.
var ErrUnknownStage = errors.New("unknown stage")

// ScriptSource supplies the loaded script document.
type ScriptSource interface {
	Load(ctx context.Context) (*models.ScriptDocument, error)
}

// PolicyResolver picks the provider and model for a stage against a loaded document.
type PolicyResolver interface {
	ResolveDocument(doc *models.ScriptDocument, stage models.StageKey, mode models.InteractionMode) (policy.Decision, error)
}

// ProviderLookup returns a usable provider, or false when none is available.
type ProviderLookup interface {
	Get(key string) (provider.Provider, bool)
}

// Recorder receives per-turn observations. Implementations must be safe for
// concurrent use.
type Recorder interface {
	ObserveTurn(stage models.StageKey, source models.ReplySource)
	ObserveProviderCall(provider string, kind provider.OutcomeKind, elapsed time.Duration)
}

type nopRecorder struct{}

func (nopRecorder) ObserveTurn(models.StageKey, models.ReplySource)                 {}
func (nopRecorder) ObserveProviderCall(string, provider.OutcomeKind, time.Duration) {}

// Trace describes how a turn was produced. It is not part of the response body.
type Trace struct {
	ProviderKey string
	Model       string
	Outcome     provider.OutcomeKind
	Called      bool
}

// Orchestrator is stateless across turns and safe for concurrent use.
type Orchestrator struct {
	scripts   ScriptSource
	resolver  PolicyResolver
	providers ProviderLookup
	recorder  Recorder
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithRecorder sets the observer for turn and provider-call metrics.
func WithRecorder(r Recorder) Option {
	return func(o *Orchestrator) {
		if r != nil {
			o.recorder = r
		}
	}
}

// NewOrchestrator wires the orchestrator to its collaborators.
func NewOrchestrator(scripts ScriptSource, resolver PolicyResolver, providers ProviderLookup, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		scripts:   scripts,
		resolver:  resolver,
		providers: providers,
		recorder:  nopRecorder{},
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Turn produces the response envelope for req. Only script configuration failures
// and unknown stages are returned as errors; every provider problem degrades to the
// scripted fallback.
func (o *Orchestrator) Turn(ctx context.Context, req models.TurnRequest) (models.TurnResponse, error) {
	resp, _, err := o.TurnWithTrace(ctx, req)
	return resp, err
}

// TurnWithTrace is Turn plus a description of the provider decision.
func (o *Orchestrator) TurnWithTrace(ctx context.Context, req models.TurnRequest) (models.TurnResponse, Trace, error) {
	var trace Trace

	doc, err := o.scripts.Load(ctx)
	if err != nil {
		return models.TurnResponse{}, trace, err
	}
	sc, ok := doc.Stage(req.Stage)
	if !ok {
		return models.TurnResponse{}, trace, fmt.Errorf("%w: %q", ErrUnknownStage, req.Stage)
	}

	decision, err := o.resolver.ResolveDocument(doc, req.Stage, req.Mode())
	if err != nil {
		if errors.Is(err, policy.ErrUnknownStage) {
			return models.TurnResponse{}, trace, fmt.Errorf("%w: %q", ErrUnknownStage, req.Stage)
		}
		return models.TurnResponse{}, trace, err
	}
	trace.ProviderKey = decision.ProviderKey
	trace.Model = decision.Model
	trace.Outcome = provider.OutcomeUnavailable

	var messages []string
	if p, ok := o.providers.Get(decision.ProviderKey); ok {
		trace.Called = true
		messages, trace.Outcome = o.generate(ctx, p, decision, sc, req)
	}

	resp := models.TurnResponse{Stage: req.Stage}
	if len(messages) > 0 {
		resp.Source = models.SourceLLM
		resp.Messages = messages
	} else {
		resp.Source = models.SourceScript
		resp.Messages = FallbackMessages(req, sc)
	}
	if next, ok := models.NextStage(req.Stage); ok {
		resp.NextStage = next
	}

	o.recorder.ObserveTurn(req.Stage, resp.Source)
	slog.Debug("Orchestrator.Turn: turn complete", "session_id", req.SessionID, "stage", req.Stage,
		"next_stage", resp.NextStage, "source", resp.Source, "provider", decision.ProviderKey, "model", decision.Model)
	return resp, trace, nil
}

func (o *Orchestrator) generate(ctx context.Context, p provider.Provider, d policy.Decision, sc models.StageScript, req models.TurnRequest) ([]string, provider.OutcomeKind) {
	params := provider.GenerationParams{
		Request:      req,
		Model:        d.Model,
		SystemPrompt: prompt.BuildSystemPrompt(sc),
		UserPrompt:   prompt.BuildUserPrompt(req),
	}

	start := time.Now()
	out := p.Generate(ctx, params)
	o.recorder.ObserveProviderCall(d.ProviderKey, out.Kind, time.Since(start))

	if !out.Usable() {
		slog.Warn("Orchestrator.generate: no usable reply, using script fallback",
			"session_id", req.SessionID, "stage", req.Stage, "provider", d.ProviderKey, "outcome", out.Kind, "reason", out.Reason)
		return nil, out.Kind
	}
	if out.Reply.Stage != "" && out.Reply.Stage != req.Stage {
		slog.Debug("Orchestrator.generate: provider reply stage differs from request", "request_stage", req.Stage, "reply_stage", out.Reply.Stage)
	}

	lines := sanitize(out.Reply.Messages)
	if len(lines) == 0 {
		return nil, provider.OutcomeFailed
	}
	return lines, out.Kind
}
