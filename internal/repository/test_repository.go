package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stemsi/testplatform-backend/internal/model"
)

// TestRepository handles read access to tests and questions.
type TestRepository struct {
	pool *pgxpool.Pool
}

// NewTestRepository creates a new TestRepository.
func NewTestRepository(pool *pgxpool.Pool) *TestRepository {
	return &TestRepository{pool: pool}
}

var _ TestStore = (*TestRepository)(nil)

// GetByID retrieves a test by ID.
func (r *TestRepository) GetByID(ctx context.Context, id int64) (*model.Test, error) {
	t := &model.Test{}
	err := r.pool.QueryRow(ctx,
		`SELECT id, teacher_id, subject, title, time_limit, is_active, is_premium, star_price, created_at
		 FROM tests WHERE id = $1`, id,
	).Scan(&t.ID, &t.TeacherID, &t.Subject, &t.Title, &t.TimeLimit, &t.IsActive, &t.IsPremium, &t.StarPrice, &t.CreatedAt)
	if err != nil {
		return nil, translate(err)
	}
	return t, nil
}

// ListQuestions retrieves all questions of a test in display order.
func (r *TestRepository) ListQuestions(ctx context.Context, testID int64) ([]model.Question, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, test_id, question_text, question_type, options, correct_answer, points
		 FROM questions
		 WHERE test_id = $1
		 ORDER BY position, id`, testID)
	if err != nil {
		return nil, translate(err)
	}
	defer rows.Close()

	var questions []model.Question
	for rows.Next() {
		var q model.Question
		if err := rows.Scan(&q.ID, &q.TestID, &q.Text, &q.Type, &q.Options, &q.CorrectAnswer, &q.Points); err != nil {
			return nil, err
		}
		questions = append(questions, q)
	}
	return questions, translate(rows.Err())
}
