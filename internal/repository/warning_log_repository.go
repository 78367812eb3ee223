package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stemsi/testplatform-backend/internal/model"
)

// WarningLogRepository handles anti-cheat warning persistence.
type WarningLogRepository struct {
	pool *pgxpool.Pool
}

// NewWarningLogRepository creates a new WarningLogRepository.
func NewWarningLogRepository(pool *pgxpool.Pool) *WarningLogRepository {
	return &WarningLogRepository{pool: pool}
}

var _ WarningStore = (*WarningLogRepository)(nil)

// Insert writes a single warning log.
func (r *WarningLogRepository) Insert(ctx context.Context, w *model.WarningLog) error {
	err := r.pool.QueryRow(ctx,
		`INSERT INTO warning_logs (session_id, student_id, warning_type, warning_message, created_at)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING id`,
		w.SessionID, w.StudentID, w.Type, w.Message, w.CreatedAt,
	).Scan(&w.ID)
	return translate(err)
}

// BulkInsert writes many warning logs with COPY.
func (r *WarningLogRepository) BulkInsert(ctx context.Context, logs []model.WarningLog) (int64, error) {
	rows := make([][]any, 0, len(logs))
	for _, w := range logs {
		rows = append(rows, []any{w.SessionID, w.StudentID, string(w.Type), w.Message, w.CreatedAt})
	}
	n, err := r.pool.CopyFrom(
		ctx,
		pgx.Identifier{"warning_logs"},
		[]string{"session_id", "student_id", "warning_type", "warning_message", "created_at"},
		pgx.CopyFromRows(rows),
	)
	return n, translate(err)
}

// ListBySession returns the warnings of a session in the order they were raised.
func (r *WarningLogRepository) ListBySession(ctx context.Context, sessionID uuid.UUID) ([]model.WarningLog, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, session_id, student_id, warning_type, warning_message, created_at
		 FROM warning_logs WHERE session_id = $1
		 ORDER BY created_at, id`, sessionID)
	if err != nil {
		return nil, translate(err)
	}
	defer rows.Close()

	var logs []model.WarningLog
	for rows.Next() {
		var w model.WarningLog
		if err := rows.Scan(&w.ID, &w.SessionID, &w.StudentID, &w.Type, &w.Message, &w.CreatedAt); err != nil {
			return nil, err
		}
		logs = append(logs, w)
	}
	return logs, translate(rows.Err())
}
