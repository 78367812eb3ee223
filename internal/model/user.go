package model

import "time"

// User is a platform account. Student-only fields are zero for other roles.
type User struct {
	ID           int64     `json:"id"`
	Username     string    `json:"username"`
	Name         string    `json:"name"`
	Role         Role      `json:"role"`
	PasswordHash string    `json:"-"`
	IsBanned     bool      `json:"is_banned"`
	CreatedAt    time.Time `json:"created_at"`

	Stars             int        `json:"stars"`
	IsPremium         bool       `json:"is_premium"`
	PremiumExpiryDate *time.Time `json:"premium_expiry_date,omitempty"`
	TotalTestsTaken   int        `json:"total_tests_taken"`
	AverageScore      float64    `json:"average_score"`
}

// PremiumActive reports whether the premium flag is set and not past its expiry.
func (u *User) PremiumActive(now time.Time) bool {
	if !u.IsPremium {
		return false
	}
	return u.PremiumExpiryDate == nil || now.Before(*u.PremiumExpiryDate)
}

// OwnedTest records a star-priced test unlocked by a student.
type OwnedTest struct {
	StudentID   int64     `json:"student_id"`
	TestID      int64     `json:"test_id"`
	PricePaid   int       `json:"price_paid"`
	Refunded    bool      `json:"refunded"`
	PurchasedAt time.Time `json:"purchased_at"`
}

// LoginRequest is the payload for password authentication.
type LoginRequest struct {
	Username string `json:"username" binding:"required,min=3,max=150"`
	Password string `json:"password" binding:"required,min=4,max=128"`
}

// LoginResponse is returned after a successful login.
type LoginResponse struct {
	Token string `json:"token"`
	User  User   `json:"user"`
}
