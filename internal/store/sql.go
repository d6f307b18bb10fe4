package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/BTreeMap/CravingCompanion/internal/models"
)

// sqlStore holds the queries shared by the SQLite and Postgres backends. Queries
// are written with ? placeholders and rebound for Postgres.
type sqlStore struct {
	db      *sql.DB
	name    string
	dollars bool
}

func (s *sqlStore) q(query string) string {
	if !s.dollars {
		return query
	}
	return rebind(query)
}

// rebind rewrites ? placeholders as $1, $2, ...
func rebind(query string) string {
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func (s *sqlStore) sessionExists(ctx context.Context, id string) error {
	var one int
	err := s.db.QueryRowContext(ctx, s.q(`SELECT 1 FROM sessions WHERE id = ?`), id).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrSessionNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to look up session %s: %w", id, err)
	}
	return nil
}

func (s *sqlStore) CreateSession(ctx context.Context, stage models.StageKey) (models.SessionRecord, error) {
	rec := models.SessionRecord{ID: uuid.New().String(), Stage: stage, StartedAt: now()}
	_, err := s.db.ExecContext(ctx, s.q(`INSERT INTO sessions (id, stage, started_at) VALUES (?, ?, ?)`),
		rec.ID, string(rec.Stage), rec.StartedAt)
	if err != nil {
		slog.Error(s.name+".CreateSession: insert failed", "error", err)
		return models.SessionRecord{}, fmt.Errorf("failed to insert session: %w", err)
	}
	slog.Debug(s.name+".CreateSession: session created", "session_id", rec.ID, "stage", rec.Stage)
	return rec, nil
}

func (s *sqlStore) GetSession(ctx context.Context, id string) (models.SessionRecord, error) {
	var rec models.SessionRecord
	var stage string
	var ended sql.NullTime
	err := s.db.QueryRowContext(ctx, s.q(`SELECT id, stage, started_at, ended_at FROM sessions WHERE id = ?`), id).
		Scan(&rec.ID, &stage, &rec.StartedAt, &ended)
	if errors.Is(err, sql.ErrNoRows) {
		return models.SessionRecord{}, ErrSessionNotFound
	}
	if err != nil {
		return models.SessionRecord{}, fmt.Errorf("failed to query session %s: %w", id, err)
	}
	rec.Stage = models.StageKey(stage)
	if ended.Valid {
		t := ended.Time
		rec.EndedAt = &t
	}
	return rec, nil
}

func (s *sqlStore) UpdateSession(ctx context.Context, id string, stage models.StageKey, end bool) error {
	var endedAt interface{}
	if end {
		endedAt = now()
	}
	res, err := s.db.ExecContext(ctx,
		s.q(`UPDATE sessions SET stage = COALESCE(?, stage), ended_at = COALESCE(?, ended_at) WHERE id = ?`),
		nilIfEmpty(string(stage)), endedAt, id)
	if err != nil {
		slog.Error(s.name+".UpdateSession: update failed", "session_id", id, "error", err)
		return fmt.Errorf("failed to update session %s: %w", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrSessionNotFound
	}
	return nil
}

func (s *sqlStore) UpsertCravingEvent(ctx context.Context, id string, before, after *float64) error {
	if err := s.sessionExists(ctx, id); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx, s.q(`
		INSERT INTO craving_events (session_id, intensity_before, intensity_after, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (session_id) DO UPDATE SET
			intensity_before = COALESCE(excluded.intensity_before, craving_events.intensity_before),
			intensity_after = COALESCE(excluded.intensity_after, craving_events.intensity_after),
			updated_at = excluded.updated_at`),
		id, nullFloat(before), nullFloat(after), now())
	if err != nil {
		slog.Error(s.name+".UpsertCravingEvent: upsert failed", "session_id", id, "error", err)
		return fmt.Errorf("failed to upsert craving event for %s: %w", id, err)
	}
	return nil
}

func (s *sqlStore) GetCravingEvent(ctx context.Context, id string) (*models.CravingEvent, error) {
	var before, after sql.NullFloat64
	ev := models.CravingEvent{SessionID: id}
	err := s.db.QueryRowContext(ctx,
		s.q(`SELECT intensity_before, intensity_after, updated_at FROM craving_events WHERE session_id = ?`), id).
		Scan(&before, &after, &ev.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query craving event for %s: %w", id, err)
	}
	ev.IntensityBefore = floatPtr(before)
	ev.IntensityAfter = floatPtr(after)
	return &ev, nil
}

func (s *sqlStore) RecordConversion(ctx context.Context, c models.Conversion) error {
	if err := s.sessionExists(ctx, c.SessionID); err != nil {
		return err
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = now()
	}
	_, err := s.db.ExecContext(ctx, s.q(`
		INSERT INTO conversions (session_id, plan, cta_clicked_at, checkout_started_at, created_at)
		VALUES (?, ?, ?, ?, ?)`),
		c.SessionID, nilIfEmpty(c.Plan), nullTime(c.CTAClickedAt), nullTime(c.CheckoutStartedAt), c.CreatedAt)
	if err != nil {
		slog.Error(s.name+".RecordConversion: insert failed", "session_id", c.SessionID, "error", err)
		return fmt.Errorf("failed to insert conversion for %s: %w", c.SessionID, err)
	}
	return nil
}

func (s *sqlStore) ListConversions(ctx context.Context, id string) ([]models.Conversion, error) {
	rows, err := s.db.QueryContext(ctx, s.q(`
		SELECT session_id, plan, cta_clicked_at, checkout_started_at, created_at
		FROM conversions WHERE session_id = ? ORDER BY created_at, id`), id)
	if err != nil {
		return nil, fmt.Errorf("failed to query conversions for %s: %w", id, err)
	}
	defer rows.Close()

	var out []models.Conversion
	for rows.Next() {
		var c models.Conversion
		var plan sql.NullString
		var cta, checkout sql.NullTime
		if err := rows.Scan(&c.SessionID, &plan, &cta, &checkout, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan conversion row: %w", err)
		}
		c.Plan = plan.String
		c.CTAClickedAt = timePtr(cta)
		c.CheckoutStartedAt = timePtr(checkout)
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate conversion rows: %w", err)
	}
	return out, nil
}

func (s *sqlStore) RecordTurn(ctx context.Context, e models.TurnEvent) error {
	if err := s.sessionExists(ctx, e.SessionID); err != nil {
		return err
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = now()
	}
	_, err := s.db.ExecContext(ctx, s.q(`
		INSERT INTO turn_events (session_id, stage, next_stage, source, provider, model, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`),
		e.SessionID, string(e.Stage), nilIfEmpty(string(e.NextStage)), string(e.Source),
		nilIfEmpty(e.Provider), nilIfEmpty(e.Model), e.CreatedAt)
	if err != nil {
		slog.Error(s.name+".RecordTurn: insert failed", "session_id", e.SessionID, "error", err)
		return fmt.Errorf("failed to insert turn event for %s: %w", e.SessionID, err)
	}
	return nil
}

func (s *sqlStore) ListTurns(ctx context.Context, id string) ([]models.TurnEvent, error) {
	rows, err := s.db.QueryContext(ctx, s.q(`
		SELECT session_id, stage, next_stage, source, provider, model, created_at
		FROM turn_events WHERE session_id = ? ORDER BY created_at, id`), id)
	if err != nil {
		return nil, fmt.Errorf("failed to query turn events for %s: %w", id, err)
	}
	defer rows.Close()

	var out []models.TurnEvent
	for rows.Next() {
		var e models.TurnEvent
		var stage, source string
		var next, prov, model sql.NullString
		if err := rows.Scan(&e.SessionID, &stage, &next, &source, &prov, &model, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan turn event row: %w", err)
		}
		e.Stage = models.StageKey(stage)
		e.NextStage = models.StageKey(next.String)
		e.Source = models.ReplySource(source)
		e.Provider = prov.String
		e.Model = model.String
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate turn event rows: %w", err)
	}
	return out, nil
}

// Close closes the database connection.
func (s *sqlStore) Close() error {
	slog.Debug(s.name + ".Close: closing database connection")
	return s.db.Close()
}
