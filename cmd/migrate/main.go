// Package main runs the embedded schema migrations.
package main

import (
	"flag"
	"fmt"
	"os"
	"strconv"

	"go.uber.org/zap"

	"pharmastock/internal/infrastructure/config"
	"pharmastock/internal/infrastructure/migration"
	"pharmastock/pkg/logger"
)

func main() {
	var logLevel string
	flag.StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	flag.Parse()

	args := flag.Args()
	if len(args) == 0 {
		printUsage()
		os.Exit(1)
	}
	command := args[0]

	log, err := logger.New(logger.Config{Level: logLevel, Development: true})
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()
	zl := log.Zap()

	cfg, err := config.Load("./configs")
	if err != nil {
		zl.Fatal("failed to load configuration", zap.Error(err))
	}

	m, err := migration.New(cfg.Database.DSN, zl)
	if err != nil {
		zl.Fatal("failed to create migrator", zap.Error(err))
	}
	defer func() {
		if err := m.Close(); err != nil {
			zl.Warn("failed to close migrator", zap.Error(err))
		}
	}()

	switch command {
	case "up":
		err = m.Up()
	case "down":
		err = m.Down()
	case "steps":
		err = withIntArg(args, func(n int) error { return m.Steps(n) })
	case "force":
		err = withIntArg(args, func(v int) error { return m.Force(v) })
	case "version":
		version, dirty, verr := m.Version()
		if verr != nil {
			err = verr
			break
		}
		zl.Info("current migration version", zap.Uint("version", version), zap.Bool("dirty", dirty))
	default:
		printUsage()
		os.Exit(1)
	}
	if err != nil {
		zl.Fatal("migration failed", zap.String("command", command), zap.Error(err))
	}
}

func withIntArg(args []string, fn func(int) error) error {
	if len(args) < 2 {
		return fmt.Errorf("%s requires a number", args[0])
	}
	n, err := strconv.Atoi(args[1])
	if err != nil {
		return fmt.Errorf("invalid number %q: %w", args[1], err)
	}
	return fn(n)
}

func printUsage() {
	fmt.Println(`Usage: migrate [flags] <command> [args]

Commands:
  up           Apply all pending migrations
  down         Roll back all migrations
  steps <n>    Apply n migrations (negative rolls back)
  version      Print the current version
  force <v>    Set the version without running migrations

Flags:
  -log-level   Log level (debug, info, warn, error)`)
}
