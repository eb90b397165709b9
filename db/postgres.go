package db

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/lib/pq"
)

// Connect opens and verifies a Postgres connection pool. The caller owns the
// returned pool and closes it at shutdown.
func Connect(databaseURL string, maxOpenConns int) (*sql.DB, error) {
	if databaseURL == "" {
		return nil, errors.New("DATABASE_URL environment variable is not set")
	}
	if maxOpenConns <= 0 {
		maxOpenConns = 25
	}

	pool, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, err
	}

	pool.SetMaxOpenConns(maxOpenConns)
	pool.SetMaxIdleConns(maxOpenConns)
	pool.SetConnMaxLifetime(5 * time.Minute)

	if err := pool.Ping(); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return pool, nil
}
