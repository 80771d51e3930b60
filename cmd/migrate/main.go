package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"

	"livraria/backend/internal/config"
	pgstore "livraria/backend/internal/store/postgres"
)

const usage = "usage: migrate [up | down [steps] | version]"

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Printf("WARN: .env not loaded: %v", err)
	}

	cfg := config.Load()
	if !cfg.UsesRealBackend() {
		log.Fatal("DATABASE_URL must point at a postgres database")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	pg, err := pgstore.New(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("connect: %v", err)
	}
	defer pg.Close()

	if err := run(pg, os.Args[1:]); err != nil {
		log.Fatalf("migrate: %v", err)
	}
}

type migrator interface {
	Migrate() error
	Rollback(steps int) error
	SchemaVersion() (uint, bool, error)
}

func run(m migrator, args []string) error {
	command := "up"
	if len(args) > 0 {
		command = args[0]
	}

	switch command {
	case "up":
		if err := m.Migrate(); err != nil {
			return err
		}
	case "down":
		steps := 1
		if len(args) > 1 {
			n, err := strconv.Atoi(args[1])
			if err != nil || n < 1 {
				return fmt.Errorf("invalid steps %q", args[1])
			}
			steps = n
		}
		if err := m.Rollback(steps); err != nil {
			return err
		}
	case "version":
	default:
		return errors.New(usage)
	}

	version, dirty, err := m.SchemaVersion()
	if err != nil {
		return err
	}
	log.Printf("schema version %d (dirty=%t)", version, dirty)
	return nil
}
