package notify

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/playsignal/tracker/internal/models"
)

// LogRepository handles notification_log persistence.
type LogRepository struct {
	pool *pgxpool.Pool
}

// NewLogRepository creates a notification log repository.
func NewLogRepository(pool *pgxpool.Pool) *LogRepository {
	return &LogRepository{pool: pool}
}

// Insert records one delivery outcome.
func (r *LogRepository) Insert(ctx context.Context, row models.NotificationLog) error {
	const q = `INSERT INTO notification_log (id, task_id, agent_id, event_kind, session_key, success, attempts, reason)
		VALUES (gen_random_uuid(), $1, $2, $3, $4, $5, $6, $7)`
	_, err := r.pool.Exec(ctx, q,
		row.TaskID, row.AgentID, row.EventKind, row.SessionKey, row.Success, row.Attempts, row.Reason)
	return err
}

// ListRecent returns the most recent delivery outcomes.
func (r *LogRepository) ListRecent(ctx context.Context, limit int) ([]models.NotificationLog, error) {
	const q = `SELECT id, task_id, agent_id, event_kind, session_key, success, attempts, reason, created_at
		FROM notification_log ORDER BY created_at DESC LIMIT $1`
	rows, err := r.pool.Query(ctx, q, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []models.NotificationLog
	for rows.Next() {
		var row models.NotificationLog
		if err := rows.Scan(&row.ID, &row.TaskID, &row.AgentID, &row.EventKind, &row.SessionKey,
			&row.Success, &row.Attempts, &row.Reason, &row.CreatedAt); err != nil {
			return nil, err
		}
		list = append(list, row)
	}
	return list, rows.Err()
}
