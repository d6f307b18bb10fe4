// Package provider defines the pluggable generation backends and the registry the
// orchestrator looks them up in.
package provider

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/BTreeMap/CravingCompanion/internal/models"
)

// Fixed generation parameters.
const (
	DefaultTemperature = 0.7
	DefaultMaxTokens   = 240
	DefaultTimeout     = 20 * time.Second
)

// Error variables describing why a provider could not produce a reply.
var (
	ErrNotConfigured     = errors.New("provider is not configured")
	ErrNoChoicesReturned = errors.New("no choices returned")
	ErrEmptyCompletion   = errors.New("completion contained no usable lines")
	ErrNoModel           = errors.New("no model resolved for provider")
)

// GenerationParams is everything a provider needs for one call.
type GenerationParams struct {
	Request      models.TurnRequest
	Model        string
	SystemPrompt string
	UserPrompt   string
}

// Reply is a successful generation. Messages holds trimmed, non-empty lines.
type Reply struct {
	Stage    models.StageKey
	Messages []string
}

// OutcomeKind discriminates the result of Provider.Generate.
type OutcomeKind int

const (
	OutcomeOK OutcomeKind = iota
	OutcomeUnavailable
	OutcomeFailed
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeOK:
		return "ok"
	case OutcomeUnavailable:
		return "unavailable"
	case OutcomeFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Outcome is the result of a generation call. Reply is set only for OutcomeOK and
// Reason only for the other kinds.
type Outcome struct {
	Kind   OutcomeKind
	Reply  *Reply
	Reason error
}

// OK wraps a reply. A reply without usable lines is reported as failed.
func OK(stage models.StageKey, lines []string) Outcome {
	lines = SplitLines(strings.Join(lines, "\n"))
	if len(lines) == 0 {
		return Failed(ErrEmptyCompletion)
	}
	return Outcome{Kind: OutcomeOK, Reply: &Reply{Stage: stage, Messages: lines}}
}

// Unavailable reports a provider that cannot be called at all.
func Unavailable(reason error) Outcome {
	return Outcome{Kind: OutcomeUnavailable, Reason: reason}
}

// Failed reports a remote call that did not yield a usable reply.
func Failed(reason error) Outcome {
	return Outcome{Kind: OutcomeFailed, Reason: reason}
}

// Usable reports whether the outcome carries at least one message line.
func (o Outcome) Usable() bool {
	return o.Kind == OutcomeOK && o.Reply != nil && len(o.Reply.Messages) > 0
}

// Provider is a named generation backend. Generate must not panic or block past its
// own timeout; every failure is reported through the Outcome.
type Provider interface {
	Name() string
	IsConfigured() bool
	Generate(ctx context.Context, params GenerationParams) Outcome
}

// SplitLines splits a completion on newlines, trims each line and drops empty ones.
func SplitLines(content string) []string {
	var lines []string
	for _, l := range strings.Split(content, "\n") {
		if l = strings.TrimSpace(l); l != "" {
			lines = append(lines, l)
		}
	}
	return lines
}

// Status describes one registered provider.
type Status struct {
	Key        string `json:"key"`
	Configured bool   `json:"configured"`
}

// Registry is a concurrency-safe set of providers keyed by lower-cased name.
type Registry struct {
	mu        sync.RWMutex
	providers map[string]Provider
}

// NewRegistry creates a registry holding ps.
func NewRegistry(ps ...Provider) *Registry {
	r := &Registry{providers: make(map[string]Provider)}
	for _, p := range ps {
		r.Register(p)
	}
	return r
}

// Register adds p, replacing any provider with the same name.
func (r *Registry) Register(p Provider) {
	if p == nil {
		return
	}
	key := normalizeKey(p.Name())
	r.mu.Lock()
	r.providers[key] = p
	r.mu.Unlock()
	slog.Debug("Registry.Register: provider registered", "provider", key, "configured", p.IsConfigured())
}

// Get returns the provider for key when it is registered and configured. Both misses
// are expected and only logged.
func (r *Registry) Get(key string) (Provider, bool) {
	key = normalizeKey(key)
	r.mu.RLock()
	p, ok := r.providers[key]
	r.mu.RUnlock()
	if !ok {
		slog.Warn("Registry.Get: provider not registered", "provider", key)
		return nil, false
	}
	if !p.IsConfigured() {
		slog.Warn("Registry.Get: provider not configured", "provider", key)
		return nil, false
	}
	return p, true
}

// Keys returns the registered provider keys in sorted order.
func (r *Registry) Keys() []string {
	r.mu.RLock()
	keys := make([]string, 0, len(r.providers))
	for k := range r.providers {
		keys = append(keys, k)
	}
	r.mu.RUnlock()
	sort.Strings(keys)
	return keys
}

// Status reports every registered provider with its configured flag.
func (r *Registry) Status() []Status {
	keys := r.Keys()
	out := make([]Status, 0, len(keys))
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, k := range keys {
		p, ok := r.providers[k]
		if !ok {
			continue
		}
		out = append(out, Status{Key: k, Configured: p.IsConfigured()})
	}
	return out
}

func normalizeKey(key string) string {
	return strings.ToLower(strings.TrimSpace(key))
}

// Opts holds settings shared by the built-in providers.
type Opts struct {
	APIKey       string
	BaseURL      string
	DefaultModel string
	Timeout      time.Duration
	Temperature  float64
	MaxTokens    int
}

// Option configures a provider.
type Option func(*Opts)

// WithAPIKey sets the credential.
func WithAPIKey(key string) Option {
	return func(o *Opts) { o.APIKey = key }
}

// WithBaseURL points the client at a compatible endpoint.
func WithBaseURL(url string) Option {
	return func(o *Opts) { o.BaseURL = url }
}

// WithDefaultModel sets the model used when the policy resolved none.
func WithDefaultModel(model string) Option {
	return func(o *Opts) { o.DefaultModel = model }
}

// WithTimeout bounds each generation call.
func WithTimeout(d time.Duration) Option {
	return func(o *Opts) { o.Timeout = d }
}

// WithTemperature overrides DefaultTemperature.
func WithTemperature(t float64) Option {
	return func(o *Opts) { o.Temperature = t }
}

// WithMaxTokens overrides DefaultMaxTokens.
func WithMaxTokens(n int) Option {
	return func(o *Opts) { o.MaxTokens = n }
}

func buildOpts(defaultModel string, opts []Option) Opts {
	o := Opts{
		DefaultModel: defaultModel,
		Timeout:      DefaultTimeout,
		Temperature:  DefaultTemperature,
		MaxTokens:    DefaultMaxTokens,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.Timeout <= 0 {
		o.Timeout = DefaultTimeout
	}
	if o.MaxTokens <= 0 {
		o.MaxTokens = DefaultMaxTokens
	}
	return o
}

func pickModel(resolved, fallback string) string {
	if m := strings.TrimSpace(resolved); m != "" {
		return m
	}
	return fallback
}
