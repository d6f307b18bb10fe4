package store

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/BTreeMap/CravingCompanion/internal/models"
)

// DefaultMemorySize is the number of sessions the in-memory store retains.
const DefaultMemorySize = 10000

type memorySession struct {
	record      *models.SessionRecord
	craving     *models.CravingEvent
	conversions []models.Conversion
	turns       []models.TurnEvent
}

// InMemoryStore keeps the most recently used sessions in process memory.
type InMemoryStore struct {
	mu       sync.Mutex
	sessions *lru.Cache[string, *memorySession]
}

// NewInMemoryStore creates an LRU-bounded store.
func NewInMemoryStore(opts ...Option) (*InMemoryStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	size := cfg.MemorySize
	if size <= 0 {
		size = DefaultMemorySize
	}
	cache, err := lru.NewWithEvict[string, *memorySession](size, func(id string, _ *memorySession) {
		slog.Debug("InMemoryStore: session evicted", "session_id", id)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create session cache: %w", err)
	}
	return &InMemoryStore{sessions: cache}, nil
}

// session returns the bucket of a created session. Only CreateSession adds
// buckets, so unknown ids never displace live sessions from the LRU.
func (s *InMemoryStore) session(id string) (*memorySession, error) {
	e, ok := s.sessions.Get(id)
	if !ok {
		return nil, ErrSessionNotFound
	}
	return e, nil
}

func (s *InMemoryStore) CreateSession(_ context.Context, stage models.StageKey) (models.SessionRecord, error) {
	rec := models.SessionRecord{ID: uuid.New().String(), Stage: stage, StartedAt: now()}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions.Add(rec.ID, &memorySession{record: &rec})
	return rec, nil
}

func (s *InMemoryStore) GetSession(_ context.Context, id string) (models.SessionRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, err := s.session(id)
	if err != nil {
		return models.SessionRecord{}, err
	}
	return *e.record, nil
}

func (s *InMemoryStore) UpdateSession(_ context.Context, id string, stage models.StageKey, end bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, err := s.session(id)
	if err != nil {
		return err
	}
	if stage != "" {
		e.record.Stage = stage
	}
	if end {
		t := now()
		e.record.EndedAt = &t
	}
	return nil
}

func (s *InMemoryStore) UpsertCravingEvent(_ context.Context, id string, before, after *float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, err := s.session(id)
	if err != nil {
		return err
	}
	if e.craving == nil {
		e.craving = &models.CravingEvent{SessionID: id}
	}
	if before != nil {
		v := *before
		e.craving.IntensityBefore = &v
	}
	if after != nil {
		v := *after
		e.craving.IntensityAfter = &v
	}
	e.craving.UpdatedAt = now()
	return nil
}

func (s *InMemoryStore) GetCravingEvent(_ context.Context, id string) (*models.CravingEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, err := s.session(id)
	if err != nil {
		return nil, err
	}
	if e.craving == nil {
		return nil, nil
	}
	c := *e.craving
	return &c, nil
}

func (s *InMemoryStore) RecordConversion(_ context.Context, c models.Conversion) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, err := s.session(c.SessionID)
	if err != nil {
		return err
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = now()
	}
	e.conversions = append(e.conversions, c)
	return nil
}

func (s *InMemoryStore) ListConversions(_ context.Context, id string) ([]models.Conversion, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.sessions.Get(id)
	if !ok {
		return nil, nil
	}
	return append([]models.Conversion(nil), e.conversions...), nil
}

func (s *InMemoryStore) RecordTurn(_ context.Context, ev models.TurnEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, err := s.session(ev.SessionID)
	if err != nil {
		return err
	}
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = now()
	}
	e.turns = append(e.turns, ev)
	return nil
}

func (s *InMemoryStore) ListTurns(_ context.Context, id string) ([]models.TurnEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.sessions.Get(id)
	if !ok {
		return nil, nil
	}
	return append([]models.TurnEvent(nil), e.turns...), nil
}

func (s *InMemoryStore) Close() error {
	s.sessions.Purge()
	return nil
}
