package history

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/playsignal/tracker/internal/models"
)

// Repository handles play_history persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a play history repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Upsert writes one logical play. The row is keyed by (session_key,
// started_at): the first write inserts, later writes update the mutable
// fields only. stopped_at is never cleared once set.
func (r *Repository) Upsert(ctx context.Context, rec models.HistoryRecord) error {
	const q = `INSERT INTO play_history
		(id, session_key, user_id, user_name, media_id, media_title, media_type, library, player,
		 started_at, stopped_at, view_offset_ms, duration_ms, paused_seconds, transcode_decision, watched)
		VALUES (gen_random_uuid(), $1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		ON CONFLICT (session_key, started_at) DO UPDATE SET
			user_id = EXCLUDED.user_id,
			user_name = EXCLUDED.user_name,
			stopped_at = COALESCE(EXCLUDED.stopped_at, play_history.stopped_at),
			view_offset_ms = EXCLUDED.view_offset_ms,
			duration_ms = EXCLUDED.duration_ms,
			paused_seconds = EXCLUDED.paused_seconds,
			transcode_decision = EXCLUDED.transcode_decision,
			watched = play_history.watched OR EXCLUDED.watched,
			updated_at = NOW()`
	_, err := r.pool.Exec(ctx, q,
		rec.SessionKey, rec.UserID, rec.UserName, rec.MediaID, rec.MediaTitle, rec.MediaType,
		rec.Library, rec.Player, rec.StartedAt, rec.StoppedAt, rec.ViewOffsetMs, rec.DurationMs,
		rec.PausedSeconds, rec.TranscodeDecision, rec.Watched)
	return err
}

// GetBySessionKey returns the most recent history row for a session key, or nil.
func (r *Repository) GetBySessionKey(ctx context.Context, key string) (*models.HistoryRecord, error) {
	const q = `SELECT id, session_key, user_id, user_name, media_id, media_title, media_type, library, player,
			started_at, stopped_at, view_offset_ms, duration_ms, paused_seconds, transcode_decision, watched,
			created_at, updated_at
		FROM play_history WHERE session_key = $1 ORDER BY started_at DESC LIMIT 1`
	var rec models.HistoryRecord
	err := r.pool.QueryRow(ctx, q, key).Scan(
		&rec.ID, &rec.SessionKey, &rec.UserID, &rec.UserName, &rec.MediaID, &rec.MediaTitle,
		&rec.MediaType, &rec.Library, &rec.Player, &rec.StartedAt, &rec.StoppedAt,
		&rec.ViewOffsetMs, &rec.DurationMs, &rec.PausedSeconds, &rec.TranscodeDecision,
		&rec.Watched, &rec.CreatedAt, &rec.UpdatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &rec, nil
}

// ListRecent returns the most recent history rows.
func (r *Repository) ListRecent(ctx context.Context, limit int) ([]models.HistoryRecord, error) {
	const q = `SELECT id, session_key, user_id, user_name, media_id, media_title, media_type, library, player,
			started_at, stopped_at, view_offset_ms, duration_ms, paused_seconds, transcode_decision, watched,
			created_at, updated_at
		FROM play_history ORDER BY started_at DESC LIMIT $1`
	rows, err := r.pool.Query(ctx, q, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []models.HistoryRecord
	for rows.Next() {
		var rec models.HistoryRecord
		if err := rows.Scan(
			&rec.ID, &rec.SessionKey, &rec.UserID, &rec.UserName, &rec.MediaID, &rec.MediaTitle,
			&rec.MediaType, &rec.Library, &rec.Player, &rec.StartedAt, &rec.StoppedAt,
			&rec.ViewOffsetMs, &rec.DurationMs, &rec.PausedSeconds, &rec.TranscodeDecision,
			&rec.Watched, &rec.CreatedAt, &rec.UpdatedAt); err != nil {
			return nil, err
		}
		list = append(list, rec)
	}
	return list, rows.Err()
}
