package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"syscall"

	"github.com/stemsi/testplatform-backend/internal/config"
	"github.com/stemsi/testplatform-backend/internal/database"
	"github.com/stemsi/testplatform-backend/internal/logger"
	"github.com/stemsi/testplatform-backend/internal/model"
	"github.com/stemsi/testplatform-backend/internal/repository"
	"github.com/stemsi/testplatform-backend/internal/service"
	"golang.org/x/term"
)

func main() {
	var roleFlag, username, name string
	flag.StringVar(&roleFlag, "role", string(model.RoleStudent), "Account role: student, teacher, seller, admin, head_admin")
	flag.StringVar(&username, "username", "", "Login name (prompted when empty)")
	flag.StringVar(&name, "name", "", "Display name (prompted when empty)")
	flag.Parse()

	role, ok := model.ParseRole(strings.ToLower(roleFlag))
	if !ok {
		fmt.Printf("Error: unknown role %q\n", roleFlag)
		os.Exit(2)
	}

	// ─── Load Configuration ────────────────────────────────────────────
	cfg := config.Load()

	// ─── Initialize Logger ─────────────────────────────────────────────
	log := logger.Setup(cfg.LogLevel, cfg.LogFormat)

	ctx := context.Background()

	// ─── Connect to PostgreSQL ─────────────────────────────────────────
	pool, err := database.NewPostgresPool(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
	}
	defer pool.Close()

	authService := service.NewAuthService(cfg, repository.NewUserRepository(pool))

	// ─── CLI Input ─────────────────────────────────────────────────────
	reader := bufio.NewReader(os.Stdin)

	fmt.Printf("=== Create New %s Account ===\n", role)

	if username == "" {
		username = prompt(reader, "Enter Username: ")
	}
	if username == "" {
		fmt.Println("Error: Username is required")
		return
	}
	if name == "" {
		name = prompt(reader, "Enter Name: ")
	}

	fmt.Print("Enter Password: ")
	bytePassword, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Println()
	if err != nil {
		fmt.Println("Error reading password")
		return
	}

	fmt.Print("Confirm Password: ")
	confirm, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Println()
	if err != nil {
		fmt.Println("Error reading password")
		return
	}
	if string(confirm) != string(bytePassword) {
		fmt.Println("Error: Passwords do not match")
		return
	}

	// ─── Create Account ────────────────────────────────────────────────
	u, err := authService.CreateUser(ctx, username, name, string(bytePassword), role)
	if err != nil {
		if errors.Is(err, service.ErrUsernameTaken) {
			fmt.Printf("Error: username '%s' is already taken\n", username)
			return
		}
		log.Fatal().Err(err).Msg("Failed to create user")
	}

	fmt.Printf("\nSuccess! %s '%s' created with ID: %d\n", u.Role, u.Username, u.ID)
}

func prompt(r *bufio.Reader, label string) string {
	fmt.Print(label)
	line, _ := r.ReadString('\n')
	return strings.TrimSpace(line)
}
