// Package policy decides which provider and model serve a turn.
package policy

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/BTreeMap/CravingCompanion/internal/models"
)

// DefaultProvider is used when neither the stage nor the process names a provider.
const DefaultProvider = "openai"

// ErrUnknownStage is returned when the stage has no script in the loaded document.
var ErrUnknownStage = errors.New("policy: unknown stage")

// Config holds the process-wide defaults consulted after stage overrides.
// DefaultModel and ModeModels apply only to the default provider; any other
// provider gets its entry in ProviderModels, or an empty model so the provider
// uses its own default.
type Config struct {
	DefaultProvider string
	DefaultModel    string
	ModeModels      map[models.InteractionMode]string
	ProviderModels  map[string]string
}

// Decision is the provider and model picked for a single turn. It is never cached.
type Decision struct {
	ProviderKey string `json:"providerKey"`
	Model       string `json:"model"`
}

// DocumentSource supplies the current script document.
type DocumentSource interface {
	Load(ctx context.Context) (*models.ScriptDocument, error)
}

// Resolver applies the resolution order to the current script document.
type Resolver struct {
	cfg     Config
	scripts DocumentSource
}

// NewResolver creates a Resolver. scripts may be nil when only ResolveDocument is used.
func NewResolver(cfg Config, scripts DocumentSource) *Resolver {
	return &Resolver{cfg: cfg, scripts: scripts}
}

// Resolve loads the script document and resolves the decision for stage and mode.
func (r *Resolver) Resolve(ctx context.Context, stage models.StageKey, mode models.InteractionMode) (Decision, error) {
	if r.scripts == nil {
		return Decision{}, errors.New("policy: no script source configured")
	}
	doc, err := r.scripts.Load(ctx)
	if err != nil {
		return Decision{}, err
	}
	return r.ResolveDocument(doc, stage, mode)
}

// ResolveDocument is the pure form of Resolve.
//
// Provider: stage llmProvider, then the process default, then DefaultProvider.
// Model: stage llmModel; for the default provider the mode default, then the
// process default model; otherwise the provider's entry in ProviderModels.
func (r *Resolver) ResolveDocument(doc *models.ScriptDocument, stage models.StageKey, mode models.InteractionMode) (Decision, error) {
	if doc == nil {
		return Decision{}, fmt.Errorf("%w: %s", ErrUnknownStage, stage)
	}
	sc, ok := doc.Stage(stage)
	if !ok {
		return Decision{}, fmt.Errorf("%w: %s", ErrUnknownStage, stage)
	}

	defaultKey := strings.ToLower(firstNonEmpty(r.cfg.DefaultProvider, DefaultProvider))
	key := strings.ToLower(firstNonEmpty(sc.LLMProvider, defaultKey))

	model := firstNonEmpty(sc.LLMModel)
	if model == "" && key == defaultKey {
		model = firstNonEmpty(r.cfg.ModeModels[mode], r.cfg.DefaultModel)
	}
	if model == "" {
		model = firstNonEmpty(r.cfg.ProviderModels[key])
	}

	return Decision{ProviderKey: key, Model: model}, nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
