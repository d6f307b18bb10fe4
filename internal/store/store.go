// Package store persists coaching sessions, craving ratings, conversions and turn
// events. Persistence is optional: callers treat every store failure as
// "not persisted" and keep serving turns.
package store

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/BTreeMap/CravingCompanion/internal/models"
)

// Error variables for better error handling and testability
var (
	ErrSessionNotFound = errors.New("session not found")
	ErrDSNNotSet       = errors.New("database DSN not set")
)

// Store is implemented by every persistence backend.
type Store interface {
	// CreateSession starts a session at stage and returns the stored record.
	CreateSession(ctx context.Context, stage models.StageKey) (models.SessionRecord, error)
	GetSession(ctx context.Context, id string) (models.SessionRecord, error)
	// UpdateSession moves the session to stage (unchanged when empty) and stamps
	// its end time when end is true.
	UpdateSession(ctx context.Context, id string, stage models.StageKey, end bool) error
	// UpsertCravingEvent merges the non-nil ratings into the session's craving event.
	UpsertCravingEvent(ctx context.Context, id string, before, after *float64) error
	// GetCravingEvent returns nil without error when no rating was stored.
	GetCravingEvent(ctx context.Context, id string) (*models.CravingEvent, error)
	RecordConversion(ctx context.Context, c models.Conversion) error
	ListConversions(ctx context.Context, id string) ([]models.Conversion, error)
	// RecordTurn returns ErrSessionNotFound for sessions the store does not hold.
	RecordTurn(ctx context.Context, e models.TurnEvent) error
	ListTurns(ctx context.Context, id string) ([]models.TurnEvent, error)
	Close() error
}

// Opts holds configuration options for the store backends.
type Opts struct {
	DSN           string
	Driver        string // "postgres" or "sqlite3"
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	TTL           time.Duration
	MemorySize    int
}

// Option configures a store.
type Option func(*Opts)

// WithPostgresDSN selects the Postgres backend.
func WithPostgresDSN(dsn string) Option {
	return func(o *Opts) {
		o.DSN = dsn
		o.Driver = "postgres"
	}
}

// WithSQLiteDSN selects the SQLite backend with dsn as the database file.
func WithSQLiteDSN(dsn string) Option {
	return func(o *Opts) {
		o.DSN = dsn
		o.Driver = "sqlite3"
	}
}

// WithRedis selects the Redis backend.
func WithRedis(addr, password string, db int) Option {
	return func(o *Opts) {
		o.RedisAddr = addr
		o.RedisPassword = password
		o.RedisDB = db
	}
}

// WithTTL sets how long Redis keeps a session after its last write. Zero keeps it
// forever.
func WithTTL(ttl time.Duration) Option {
	return func(o *Opts) { o.TTL = ttl }
}

// WithMemorySize bounds the number of sessions kept by the in-memory store.
func WithMemorySize(n int) Option {
	return func(o *Opts) { o.MemorySize = n }
}

// DetectDSNType reports "postgres" for Postgres URLs and keyword DSNs, "sqlite"
// for anything else, and "" for an empty DSN.
func DetectDSNType(dsn string) string {
	dsn = strings.TrimSpace(dsn)
	switch {
	case dsn == "":
		return ""
	case strings.HasPrefix(dsn, "postgres://"), strings.HasPrefix(dsn, "postgresql://"):
		return "postgres"
	case strings.Contains(dsn, "host=") || strings.Contains(dsn, "dbname="):
		return "postgres"
	default:
		return "sqlite"
	}
}

// New builds the backend selected by opts: a SQL database when a DSN is set, Redis
// when an address is set, memory otherwise.
func New(opts ...Option) (Store, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}

	switch {
	case cfg.DSN != "" && cfg.Driver == "postgres":
		slog.Debug("store.New: using Postgres store")
		return NewPostgresStore(opts...)
	case cfg.DSN != "":
		slog.Debug("store.New: using SQLite store", "path", cfg.DSN)
		return NewSQLiteStore(opts...)
	case cfg.RedisAddr != "":
		slog.Debug("store.New: using Redis store", "addr", cfg.RedisAddr, "ttl", cfg.TTL)
		return NewRedisStore(opts...)
	default:
		slog.Debug("store.New: using in-memory store", "size", cfg.MemorySize)
		return NewInMemoryStore(opts...)
	}
}

// Detail assembles the read model for a session.
func Detail(ctx context.Context, s Store, id string) (models.SessionDetail, error) {
	rec, err := s.GetSession(ctx, id)
	if err != nil {
		return models.SessionDetail{}, err
	}
	craving, err := s.GetCravingEvent(ctx, id)
	if err != nil {
		return models.SessionDetail{}, err
	}
	conversions, err := s.ListConversions(ctx, id)
	if err != nil {
		return models.SessionDetail{}, err
	}
	turns, err := s.ListTurns(ctx, id)
	if err != nil {
		return models.SessionDetail{}, err
	}
	if conversions == nil {
		conversions = []models.Conversion{}
	}
	if turns == nil {
		turns = []models.TurnEvent{}
	}
	return models.SessionDetail{Session: rec, Craving: craving, Conversions: conversions, Turns: turns}, nil
}

func now() time.Time {
	return time.Now().UTC()
}
