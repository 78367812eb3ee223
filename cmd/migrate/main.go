package main

import (
	"errors"
	"flag"
	"fmt"
	"strconv"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/rs/zerolog"

	"github.com/stemsi/testplatform-backend/internal/config"
	"github.com/stemsi/testplatform-backend/internal/logger"
)

// migrator is the part of *migrate.Migrate the commands drive.
type migrator interface {
	Up() error
	Down() error
	Steps(n int) error
	Migrate(version uint) error
	Version() (uint, bool, error)
	Force(version int) error
}

// migrateLogger routes golang-migrate output into zerolog.
type migrateLogger struct {
	log     zerolog.Logger
	verbose bool
}

func (l migrateLogger) Printf(format string, v ...interface{}) {
	l.log.Info().Msgf(format, v...)
}

func (l migrateLogger) Verbose() bool {
	return l.verbose
}

func main() {
	cfg := config.Load()

	var migrationDir, dbURL string
	var verbose bool
	flag.StringVar(&migrationDir, "path", cfg.MigrationsPath, "Path to migration files (MIGRATIONS_PATH)")
	flag.StringVar(&dbURL, "database", cfg.DatabaseURL, "PostgreSQL URL (DATABASE_URL)")
	flag.BoolVar(&verbose, "verbose", false, "Log every applied migration")
	flag.Parse()

	log := logger.Setup(cfg.LogLevel, cfg.LogFormat).With().Str("component", "migrate").Logger()

	args := flag.Args()
	if len(args) < 1 {
		printUsage()
		return
	}
	if dbURL == "" {
		log.Fatal().Msg("DATABASE_URL is not set")
	}

	m, err := migrate.New("file://"+migrationDir, dbURL)
	if err != nil {
		log.Fatal().Err(err).Str("path", migrationDir).Msg("Migration failed to initialize")
	}
	m.Log = migrateLogger{log: log, verbose: verbose}
	defer func() {
		if srcErr, dbErr := m.Close(); srcErr != nil || dbErr != nil {
			log.Warn().AnErr("source", srcErr).AnErr("database", dbErr).Msg("Closing migrator")
		}
	}()

	if err := run(m, args, log); err != nil {
		if errors.Is(err, errUsage) {
			printUsage()
			return
		}
		log.Fatal().Err(err).Str("command", args[0]).Msg("Migration failed")
	}
}

var errUsage = errors.New("usage")

// run executes one migrate command. ErrNoChange is not an error.
func run(m migrator, args []string, log zerolog.Logger) error {
	err := dispatch(m, args)
	if errors.Is(err, migrate.ErrNoChange) {
		log.Info().Str("command", args[0]).Msg("No change")
		return nil
	}
	if err != nil {
		return err
	}

	version, dirty, verr := m.Version()
	switch {
	case errors.Is(verr, migrate.ErrNilVersion):
		log.Info().Str("command", args[0]).Msg("No migrations applied")
	case verr != nil:
		return fmt.Errorf("read version: %w", verr)
	default:
		log.Info().Str("command", args[0]).Uint("version", version).Bool("dirty", dirty).Msg("Migration finished")
	}
	return nil
}

func dispatch(m migrator, args []string) error {
	switch args[0] {
	case "up":
		return m.Up()
	case "down":
		// A bare down reverts everything; down N reverts N steps.
		if len(args) < 2 {
			return m.Down()
		}
		n, err := positive(args[1])
		if err != nil {
			return err
		}
		return m.Steps(-n)
	case "steps":
		if len(args) < 2 {
			return fmt.Errorf("steps requires a count")
		}
		n, err := strconv.Atoi(args[1])
		if err != nil || n == 0 {
			return fmt.Errorf("invalid step count %q", args[1])
		}
		return m.Steps(n)
	case "goto":
		if len(args) < 2 {
			return fmt.Errorf("goto requires a version")
		}
		v, err := positive(args[1])
		if err != nil {
			return err
		}
		return m.Migrate(uint(v))
	case "force":
		if len(args) < 2 {
			return fmt.Errorf("force requires a version")
		}
		v, err := strconv.Atoi(args[1])
		if err != nil || v < -1 {
			return fmt.Errorf("invalid version %q", args[1])
		}
		return m.Force(v)
	case "version":
		return nil
	default:
		return errUsage
	}
}

func positive(s string) (int, error) {
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid count %q", s)
	}
	return n, nil
}

func printUsage() {
	fmt.Println("Usage: migrate [flags] <command>")
	fmt.Println("Commands: up, down [N], steps N, goto V, version, force V")
	fmt.Println("Flags:")
	flag.PrintDefaults()
}
