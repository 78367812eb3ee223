package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stemsi/testplatform-backend/internal/config"
	"github.com/stemsi/testplatform-backend/internal/database"
	"github.com/stemsi/testplatform-backend/internal/logger"
	"github.com/stemsi/testplatform-backend/internal/model"
	"github.com/stemsi/testplatform-backend/internal/repository"
	"github.com/stemsi/testplatform-backend/internal/service"
)

const defaultPassword = "stemsijaya"

var names = []string{
	"Budi Santoso", "Siti Aminah", "Andi Pratama", "Rina Wati", "Joko Susilo",
	"Ayu Lestari", "Dodi Kusuma", "Eka Putri", "Fahri Hamzah", "Gita Savitri",
	"Hendra Gunawan", "Ika Sari", "Jamal Mirdad", "Kiki Fatmala", "Lukman Hakim",
	"Maya Septiana", "Nanda Pratama", "Oki Setiana", "Putri Dian", "Qori Maharani",
	"Rafi Ahmad", "Siska Saraswati", "Toni Setiawan", "Umi Kalsum", "Vina Panduwinata",
	"Wahyu Hidayat", "Xena Maharani", "Yudi Pratama", "Zaki Anwar", "Alifia Zahra",
}

type seedQuestion struct {
	text    string
	kind    model.QuestionType
	options []string
	answer  string
}

type seedTest struct {
	subject   string
	title     string
	timeLimit int
	premium   bool
	starPrice int
	questions []seedQuestion
}

var tests = []seedTest{
	{
		subject: "Geografi", title: "Ibu Kota dan Sungai Dunia", timeLimit: 30,
		questions: []seedQuestion{
			{"Ibu kota Prancis?", model.QuestionMultipleChoice, []string{"Paris", "Lyon", "Nice", "Lille"}, "Paris"},
			{"Sungai terpanjang di Afrika?", model.QuestionShortAnswer, nil, "Nil"},
			{"Gunung tertinggi di dunia?", model.QuestionShortAnswer, nil, "Everest"},
			{"Samudra Pasifik adalah samudra terluas.", model.QuestionTrueFalse, []string{"True", "False"}, "True"},
		},
	},
	{
		subject: "Matematika", title: "Latihan Aljabar Premium", timeLimit: 45, starPrice: 50,
		questions: []seedQuestion{
			{"2x + 3 = 11, x = ?", model.QuestionShortAnswer, nil, "4"},
			{"Akar dari 144?", model.QuestionMultipleChoice, []string{"10", "12", "14", "16"}, "12"},
			{"(a+b)^2 = a^2 + b^2", model.QuestionTrueFalse, []string{"True", "False"}, "False"},
		},
	},
}

func main() {
	students := flag.Int("students", 30, "Number of student accounts to create")
	flag.Parse()

	cfg := config.Load()
	log := logger.Setup(cfg.LogLevel, cfg.LogFormat)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	pool, err := database.NewPostgresPool(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
	}
	defer pool.Close()

	authService := service.NewAuthService(cfg, repository.NewUserRepository(pool))

	fmt.Println("=== Seeding demo data ===")

	teacher, err := ensureUser(ctx, authService, "guru", "Ibu Guru", model.RoleTeacher)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create teacher")
	}
	if _, err := ensureUser(ctx, authService, "admin", "Administrator", model.RoleAdmin); err != nil {
		log.Fatal().Err(err).Msg("Failed to create admin")
	}

	created := 0
	var studentIDs []int64
	for i := 0; i < min(*students, len(names)); i++ {
		u, err := ensureUser(ctx, authService, fmt.Sprintf("siswa%02d", i+1), names[i], model.RoleStudent)
		if err != nil {
			fmt.Printf("Error creating student %s: %v\n", names[i], err)
			continue
		}
		studentIDs = append(studentIDs, u.ID)
		created++
		if created%10 == 0 {
			fmt.Printf("Created %d students...\n", created)
		}
	}

	for _, t := range tests {
		id, err := insertTest(ctx, pool, teacher.ID, t)
		if err != nil {
			log.Fatal().Err(err).Str("title", t.title).Msg("Failed to create test")
		}
		fmt.Printf("Created test %q with ID: %d\n", t.title, id)

		if t.starPrice > 0 {
			// The first half of the class has bought the priced test.
			if err := grantTest(ctx, pool, studentIDs[:len(studentIDs)/2], id, t.starPrice); err != nil {
				log.Fatal().Err(err).Msg("Failed to grant priced test")
			}
		}
	}

	fmt.Printf("\nSeed completed! %d students ready, password: %s\n", created, defaultPassword)
}

// ensureUser creates the account or returns the existing one with that username.
func ensureUser(ctx context.Context, auth *service.AuthService, username, name string, role model.Role) (*model.User, error) {
	u, err := auth.CreateUser(ctx, username, name, defaultPassword, role)
	if errors.Is(err, service.ErrUsernameTaken) {
		res, err := auth.Login(ctx, username, defaultPassword)
		if err != nil {
			return nil, fmt.Errorf("existing user %s: %w", username, err)
		}
		return &res.User, nil
	}
	return u, err
}

func insertTest(ctx context.Context, pool *pgxpool.Pool, teacherID int64, t seedTest) (int64, error) {
	var id int64
	err := pgx.BeginFunc(ctx, pool, func(tx pgx.Tx) error {
		if err := tx.QueryRow(ctx,
			`INSERT INTO tests (teacher_id, subject, title, time_limit, is_premium, star_price)
			 VALUES ($1, $2, $3, $4, $5, $6) RETURNING id`,
			teacherID, t.subject, t.title, t.timeLimit, t.premium, t.starPrice,
		).Scan(&id); err != nil {
			return err
		}

		batch := &pgx.Batch{}
		for i, q := range t.questions {
			options := q.options
			if options == nil {
				options = []string{}
			}
			batch.Queue(
				`INSERT INTO questions (test_id, position, question_text, question_type, options, correct_answer)
				 VALUES ($1, $2, $3, $4, $5, $6)`,
				id, i+1, q.text, q.kind, options, q.answer)
		}
		return tx.SendBatch(ctx, batch).Close()
	})
	return id, err
}

func grantTest(ctx context.Context, pool *pgxpool.Pool, studentIDs []int64, testID int64, price int) error {
	if len(studentIDs) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, sid := range studentIDs {
		batch.Queue(
			`INSERT INTO student_tests (student_id, test_id, price_paid)
			 VALUES ($1, $2, $3) ON CONFLICT DO NOTHING`, sid, testID, price)
	}
	return pool.SendBatch(ctx, batch).Close()
}
