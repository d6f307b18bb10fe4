package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	backend "github.com/redis/go-redis/v9"

	"github.com/BTreeMap/CravingCompanion/internal/models"
)

// DefaultRedisPrefix namespaces every key written by RedisStore.
const DefaultRedisPrefix = "craving:"

// RedisStore keeps sessions as JSON documents with an optional TTL.
type RedisStore struct {
	client *backend.Client
	prefix string
	opts   Opts
}

// NewRedisStore connects to the address in opts and pings it.
func NewRedisStore(opts ...Option) (*RedisStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.RedisAddr == "" {
		return nil, errors.New("redis address not set")
	}
	client := backend.NewClient(&backend.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	if err := client.Ping(context.Background()).Err(); err != nil {
		slog.Error("RedisStore.NewRedisStore: ping failed", "addr", cfg.RedisAddr, "error", err)
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return NewRedisStoreFromClient(client, opts...), nil
}

// NewRedisStoreFromClient wraps an existing client.
func NewRedisStoreFromClient(client *backend.Client, opts ...Option) *RedisStore {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	return &RedisStore{client: client, prefix: DefaultRedisPrefix, opts: cfg}
}

func (s *RedisStore) sessionKey(id string) string     { return s.prefix + "session:" + id }
func (s *RedisStore) cravingKey(id string) string     { return s.prefix + "craving:" + id }
func (s *RedisStore) conversionsKey(id string) string { return s.prefix + "conversions:" + id }
func (s *RedisStore) turnsKey(id string) string       { return s.prefix + "turns:" + id }

func (s *RedisStore) getJSON(ctx context.Context, key string, v interface{}) error {
	data, err := s.client.Get(ctx, key).Bytes()
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("failed to unmarshal %s: %w", key, err)
	}
	return nil
}

func (s *RedisStore) setJSON(ctx context.Context, key string, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", key, err)
	}
	return s.client.Set(ctx, key, data, s.opts.TTL).Err()
}

func (s *RedisStore) pushJSON(ctx context.Context, key string, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", key, err)
	}
	pipe := s.client.TxPipeline()
	pipe.RPush(ctx, key, data)
	if s.opts.TTL > 0 {
		pipe.Expire(ctx, key, s.opts.TTL)
	}
	_, err = pipe.Exec(ctx)
	return err
}

func (s *RedisStore) CreateSession(ctx context.Context, stage models.StageKey) (models.SessionRecord, error) {
	rec := models.SessionRecord{ID: uuid.New().String(), Stage: stage, StartedAt: now()}
	if err := s.setJSON(ctx, s.sessionKey(rec.ID), rec); err != nil {
		slog.Error("RedisStore.CreateSession: write failed", "error", err)
		return models.SessionRecord{}, fmt.Errorf("failed to save session: %w", err)
	}
	return rec, nil
}

func (s *RedisStore) GetSession(ctx context.Context, id string) (models.SessionRecord, error) {
	var rec models.SessionRecord
	err := s.getJSON(ctx, s.sessionKey(id), &rec)
	if errors.Is(err, backend.Nil) {
		return models.SessionRecord{}, ErrSessionNotFound
	}
	if err != nil {
		return models.SessionRecord{}, fmt.Errorf("failed to get session %s: %w", id, err)
	}
	return rec, nil
}

// maxTxRetries bounds how often a read-modify-write is retried after a
// concurrent writer touched one of its watched keys.
const maxTxRetries = 16

// watchUpdate runs fn under WATCH on keys and retries when the transaction is
// aborted by a concurrent write.
func (s *RedisStore) watchUpdate(ctx context.Context, fn func(tx *backend.Tx) error, keys ...string) error {
	for i := 0; i < maxTxRetries; i++ {
		err := s.client.Watch(ctx, fn, keys...)
		if !errors.Is(err, backend.TxFailedErr) {
			return err
		}
		slog.Debug("RedisStore.watchUpdate: transaction conflict, retrying", "keys", keys, "attempt", i+1)
	}
	return fmt.Errorf("redis transaction on %v: %w", keys, backend.TxFailedErr)
}

func txGetJSON(ctx context.Context, tx *backend.Tx, key string, v interface{}) error {
	data, err := tx.Get(ctx, key).Bytes()
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("failed to unmarshal %s: %w", key, err)
	}
	return nil
}

func (s *RedisStore) UpdateSession(ctx context.Context, id string, stage models.StageKey, end bool) error {
	key := s.sessionKey(id)
	err := s.watchUpdate(ctx, func(tx *backend.Tx) error {
		var rec models.SessionRecord
		if err := txGetJSON(ctx, tx, key, &rec); errors.Is(err, backend.Nil) {
			return ErrSessionNotFound
		} else if err != nil {
			return err
		}
		if stage != "" {
			rec.Stage = stage
		}
		if end {
			t := now()
			rec.EndedAt = &t
		}
		data, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("failed to marshal %s: %w", key, err)
		}
		_, err = tx.TxPipelined(ctx, func(pipe backend.Pipeliner) error {
			pipe.Set(ctx, key, data, s.opts.TTL)
			return nil
		})
		return err
	}, key)
	if errors.Is(err, ErrSessionNotFound) {
		return err
	}
	if err != nil {
		slog.Error("RedisStore.UpdateSession: write failed", "session_id", id, "error", err)
		return fmt.Errorf("failed to update session %s: %w", id, err)
	}
	return nil
}

func (s *RedisStore) UpsertCravingEvent(ctx context.Context, id string, before, after *float64) error {
	sessionKey, key := s.sessionKey(id), s.cravingKey(id)
	err := s.watchUpdate(ctx, func(tx *backend.Tx) error {
		n, err := tx.Exists(ctx, sessionKey).Result()
		if err != nil {
			return err
		}
		if n == 0 {
			return ErrSessionNotFound
		}
		ev := models.CravingEvent{SessionID: id}
		if err := txGetJSON(ctx, tx, key, &ev); err != nil && !errors.Is(err, backend.Nil) {
			return err
		}
		if before != nil {
			ev.IntensityBefore = before
		}
		if after != nil {
			ev.IntensityAfter = after
		}
		ev.UpdatedAt = now()
		data, err := json.Marshal(ev)
		if err != nil {
			return fmt.Errorf("failed to marshal %s: %w", key, err)
		}
		_, err = tx.TxPipelined(ctx, func(pipe backend.Pipeliner) error {
			pipe.Set(ctx, key, data, s.opts.TTL)
			return nil
		})
		return err
	}, sessionKey, key)
	if errors.Is(err, ErrSessionNotFound) {
		return err
	}
	if err != nil {
		slog.Error("RedisStore.UpsertCravingEvent: write failed", "session_id", id, "error", err)
		return fmt.Errorf("failed to save craving event for %s: %w", id, err)
	}
	return nil
}

func (s *RedisStore) GetCravingEvent(ctx context.Context, id string) (*models.CravingEvent, error) {
	var ev models.CravingEvent
	err := s.getJSON(ctx, s.cravingKey(id), &ev)
	if errors.Is(err, backend.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get craving event for %s: %w", id, err)
	}
	return &ev, nil
}

func (s *RedisStore) RecordConversion(ctx context.Context, c models.Conversion) error {
	if _, err := s.GetSession(ctx, c.SessionID); err != nil {
		return err
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = now()
	}
	if err := s.pushJSON(ctx, s.conversionsKey(c.SessionID), c); err != nil {
		slog.Error("RedisStore.RecordConversion: write failed", "session_id", c.SessionID, "error", err)
		return fmt.Errorf("failed to save conversion for %s: %w", c.SessionID, err)
	}
	return nil
}

func (s *RedisStore) ListConversions(ctx context.Context, id string) ([]models.Conversion, error) {
	items, err := s.client.LRange(ctx, s.conversionsKey(id), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list conversions for %s: %w", id, err)
	}
	out := make([]models.Conversion, 0, len(items))
	for _, it := range items {
		var c models.Conversion
		if err := json.Unmarshal([]byte(it), &c); err != nil {
			return nil, fmt.Errorf("failed to unmarshal conversion: %w", err)
		}
		out = append(out, c)
	}
	return out, nil
}

func (s *RedisStore) RecordTurn(ctx context.Context, e models.TurnEvent) error {
	if _, err := s.GetSession(ctx, e.SessionID); err != nil {
		return err
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = now()
	}
	if err := s.pushJSON(ctx, s.turnsKey(e.SessionID), e); err != nil {
		slog.Error("RedisStore.RecordTurn: write failed", "session_id", e.SessionID, "error", err)
		return fmt.Errorf("failed to save turn event for %s: %w", e.SessionID, err)
	}
	return nil
}

func (s *RedisStore) ListTurns(ctx context.Context, id string) ([]models.TurnEvent, error) {
	items, err := s.client.LRange(ctx, s.turnsKey(id), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list turn events for %s: %w", id, err)
	}
	out := make([]models.TurnEvent, 0, len(items))
	for _, it := range items {
		var e models.TurnEvent
		if err := json.Unmarshal([]byte(it), &e); err != nil {
			return nil, fmt.Errorf("failed to unmarshal turn event: %w", err)
		}
		out = append(out, e)
	}
	return out, nil
}

// Close closes the redis client.
func (s *RedisStore) Close() error {
	return s.client.Close()
}
