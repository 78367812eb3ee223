package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stemsi/testplatform-backend/internal/model"
)

const userColumns = `id, username, name, role, password_hash, is_banned, created_at,
	stars, is_premium, premium_expiry_date, total_tests_taken, average_score`

// UserRepository handles user account data access.
type UserRepository struct {
	pool *pgxpool.Pool
}

// NewUserRepository creates a new UserRepository.
func NewUserRepository(pool *pgxpool.Pool) *UserRepository {
	return &UserRepository{pool: pool}
}

var _ UserStore = (*UserRepository)(nil)

func scanUser(row interface{ Scan(...any) error }) (*model.User, error) {
	u := &model.User{}
	err := row.Scan(&u.ID, &u.Username, &u.Name, &u.Role, &u.PasswordHash, &u.IsBanned, &u.CreatedAt,
		&u.Stars, &u.IsPremium, &u.PremiumExpiryDate, &u.TotalTestsTaken, &u.AverageScore)
	if err != nil {
		return nil, translate(err)
	}
	return u, nil
}

// GetByID retrieves a user by ID.
func (r *UserRepository) GetByID(ctx context.Context, id int64) (*model.User, error) {
	return scanUser(r.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id))
}

// GetByUsername retrieves a user by their unique username.
func (r *UserRepository) GetByUsername(ctx context.Context, username string) (*model.User, error) {
	return scanUser(r.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE username = $1`, username))
}

// Create inserts a new user. A taken username returns ErrConflict.
func (r *UserRepository) Create(ctx context.Context, u *model.User) error {
	err := r.pool.QueryRow(ctx,
		`INSERT INTO users (username, name, role, password_hash, stars, is_premium, premium_expiry_date)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 RETURNING id, created_at`,
		u.Username, u.Name, u.Role, u.PasswordHash, u.Stars, u.IsPremium, u.PremiumExpiryDate,
	).Scan(&u.ID, &u.CreatedAt)
	return translate(err)
}

// GetOwnedTest retrieves the star purchase record of a test for a student.
func (r *UserRepository) GetOwnedTest(ctx context.Context, studentID, testID int64) (*model.OwnedTest, error) {
	o := &model.OwnedTest{}
	err := r.pool.QueryRow(ctx,
		`SELECT student_id, test_id, price_paid, refunded, purchased_at
		 FROM student_tests WHERE student_id = $1 AND test_id = $2`, studentID, testID,
	).Scan(&o.StudentID, &o.TestID, &o.PricePaid, &o.Refunded, &o.PurchasedAt)
	if err != nil {
		return nil, translate(err)
	}
	return o, nil
}
