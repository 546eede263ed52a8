package main

import (
	"database/sql"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/dropcraft/backend/internal/infrastructure/config"
	"github.com/dropcraft/backend/internal/infrastructure/logger"
	"github.com/dropcraft/backend/internal/infrastructure/migration"
	_ "github.com/lib/pq"
	"go.uber.org/zap"
)

func main() {
	var (
		dir      string
		logLevel string
	)
	flag.StringVar(&dir, "path", "migrations", "migrations directory")
	flag.StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	flag.Parse()

	args := flag.Args()
	if len(args) == 0 {
		usage()
		os.Exit(1)
	}
	command, rest := args[0], args[1:]

	log, err := logger.New(&logger.Config{
		Level:      logLevel,
		Format:     "console",
		Output:     "stdout",
		TimeFormat: "2006-01-02 15:04:05",
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, "logger init:", err)
		os.Exit(1)
	}
	defer func() {
		_ = logger.Sync(log)
	}()

	dir, err = filepath.Abs(dir)
	if err != nil {
		log.Fatal("Failed to resolve migrations path", zap.Error(err))
	}

	// create and list work on the directory alone
	switch command {
	case "create":
		if len(rest) == 0 {
			log.Fatal("Usage: migrate create <name> [note]")
		}
		note := ""
		if len(rest) > 1 {
			note = rest[1]
		}
		s, err := migration.NewScaffold(dir, rest[0], note)
		if err != nil {
			log.Fatal("Failed to create migration", zap.Error(err))
		}
		log.Info("Migration scaffolded",
			zap.String("version", s.Version),
			zap.String("up", s.UpPath),
			zap.String("down", s.DownPath))
		return

	case "list":
		names, err := migration.Versions(dir)
		if err != nil {
			log.Fatal("Failed to list migrations", zap.Error(err))
		}
		if len(names) == 0 {
			log.Info("No migrations found", zap.String("path", dir))
			return
		}
		for _, name := range names {
			fmt.Println(name)
		}
		return
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatal("Failed to load configuration", zap.Error(err))
	}

	db, err := sql.Open("postgres", cfg.Database.DSN())
	if err != nil {
		log.Fatal("Failed to open database", zap.Error(err))
	}
	defer db.Close()
	if err := db.Ping(); err != nil {
		log.Fatal("Failed to ping database", zap.Error(err))
	}

	runner, err := migration.NewRunner(db, dir, log)
	if err != nil {
		log.Fatal("Failed to create migration runner", zap.Error(err))
	}
	defer runner.Close()

	if err := dispatch(runner, command, rest, log); err != nil {
		log.Fatal("Migration command failed", zap.String("command", command), zap.Error(err))
	}
}

func dispatch(runner *migration.Runner, command string, args []string, log *zap.Logger) error {
	switch command {
	case "up":
		return runner.Apply()

	case "down":
		return runner.Rollback()

	case "step":
		n, err := intArg(args, "step count")
		if err != nil {
			return err
		}
		return runner.Step(n)

	case "goto":
		v, err := intArg(args, "target version")
		if err != nil {
			return err
		}
		if v < 0 {
			return fmt.Errorf("target version must not be negative, got %d", v)
		}
		return runner.To(uint(v))

	case "version":
		st, err := runner.CurrentStatus()
		if err != nil {
			return err
		}
		if !st.Applied {
			log.Info("No migrations applied")
			return nil
		}
		log.Info("Current schema version",
			zap.Uint("version", st.Version),
			zap.Bool("dirty", st.Dirty))
		return nil

	case "force":
		v, err := intArg(args, "version")
		if err != nil {
			return err
		}
		return runner.Force(v)

	case "drop":
		if !hasConfirm(args) {
			return fmt.Errorf("drop destroys all data; rerun as 'migrate drop -confirm'")
		}
		return runner.Reset()

	default:
		usage()
		return fmt.Errorf("unknown command %q", command)
	}
}

func intArg(args []string, what string) (int, error) {
	if len(args) == 0 {
		return 0, fmt.Errorf("%s required", what)
	}
	n, err := strconv.Atoi(args[0])
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q", what, args[0])
	}
	return n, nil
}

func hasConfirm(args []string) bool {
	for _, arg := range args {
		if arg == "-confirm" || arg == "--confirm" {
			return true
		}
	}
	return false
}

func usage() {
	fmt.Println(`Dropcraft schema migration tool

Usage:
  migrate [flags] <command> [arguments]

Commands:
  up                    apply all pending migrations
  down                  roll back all migrations
  step <n>              move n versions (negative steps down)
  goto <version>        migrate to a specific version
  version               show the recorded schema version
  force <version>       overwrite the recorded version (repair only)
  drop -confirm         drop every database object
  create <name> [note]  scaffold a new up/down SQL pair
  list                  list migrations in the directory

Flags:
  -path string          migrations directory (default "migrations")
  -log-level string     debug, info, warn or error (default "info")`)
}
