package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"storefront/internal/config"
	"storefront/internal/db"
	"storefront/internal/logger"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
)

func main() {
	configPath := flag.String("config", "", "path to config yaml")
	dir := flag.String("dir", "migrations", "directory with .sql files")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config load failed: %v\n", err)
		os.Exit(1)
	}
	log, err := logger.New(cfg.Logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger init failed: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	ctx := context.Background()
	pool, err := db.Connect(ctx, cfg.DB.DSN, db.Options{MaxConns: 2}, log)
	if err != nil {
		log.Fatal("db connect failed", zap.Error(err))
	}
	defer pool.Close()

	if err := ensureSchemaTable(ctx, pool); err != nil {
		log.Fatal("ensure schema table failed", zap.Error(err))
	}

	files, err := listSQLFiles(*dir)
	if err != nil {
		log.Fatal("list migrations failed", zap.Error(err))
	}

	applied := 0
	for _, file := range files {
		done, err := isApplied(ctx, pool, file)
		if err != nil {
			log.Fatal("check migration failed", zap.String("file", file), zap.Error(err))
		}
		if done {
			continue
		}
		if err := applyMigration(ctx, pool, file); err != nil {
			log.Fatal("apply migration failed", zap.String("file", file), zap.Error(err))
		}
		applied++
		log.Info("applied migration", zap.String("file", file))
	}
	log.Info("migrations complete", zap.Int("applied", applied), zap.Int("total", len(files)))
}

func ensureSchemaTable(ctx context.Context, pool *db.Pool) error {
	_, err := pool.Exec(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (filename TEXT PRIMARY KEY, applied_at TIMESTAMPTZ NOT NULL DEFAULT now())`)
	return err
}

func listSQLFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var files []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".sql") {
			continue
		}
		files = append(files, filepath.Join(dir, e.Name()))
	}
	sort.Strings(files)
	return files, nil
}

func isApplied(ctx context.Context, pool *db.Pool, file string) (bool, error) {
	var exists bool
	row := pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM schema_migrations WHERE filename=$1)`, filepath.Base(file))
	if err := row.Scan(&exists); err != nil {
		return false, err
	}
	return exists, nil
}

// applyMigration runs the file and records it in one transaction.
func applyMigration(ctx context.Context, pool *db.Pool, file string) error {
	data, err := os.ReadFile(file)
	if err != nil {
		return err
	}
	return pgx.BeginFunc(ctx, pool, func(tx pgx.Tx) error {
		if sql := strings.TrimSpace(string(data)); sql != "" {
			if _, err := tx.Exec(ctx, sql); err != nil {
				return err
			}
		}
		_, err := tx.Exec(ctx, `INSERT INTO schema_migrations (filename) VALUES ($1)`, filepath.Base(file))
		return err
	})
}
