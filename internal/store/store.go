// Package store keeps anonymous per-diagnosis prediction counts in Postgres.
// No answers or patient identifiers are ever written.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrDisabled is returned by callers when no database is configured.
var ErrDisabled = errors.New("database disabled")

// Tally is the number of predictions that produced one diagnosis.
type Tally struct {
	Diagnosis string    `json:"diagnosis"`
	Count     int64     `json:"count"`
	UpdatedAt time.Time `json:"updated_at"`
}

const schemaSQL = `
CREATE TABLE IF NOT EXISTS diagnosis_tally (
	diagnosis  TEXT PRIMARY KEY,
	count      BIGINT NOT NULL DEFAULT 0,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`

// Store wraps a pgx connection pool.
type Store struct {
	pool *pgxpool.Pool
}

// Open connects, pings and migrates.
func Open(ctx context.Context, url string) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(url)
	if err != nil {
		return nil, fmt.Errorf("parse db url: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}

	s := &Store{pool: pool}
	if err := s.migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

// Ping checks database availability.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close releases the pool.
func (s *Store) Close() {
	s.pool.Close()
}

// RecordPrediction increments the counter for diagnosis.
func (s *Store) RecordPrediction(ctx context.Context, diagnosis string) error {
	_, err := s.pool.Exec(ctx, `
INSERT INTO diagnosis_tally (diagnosis, count, updated_at)
VALUES ($1, 1, now())
ON CONFLICT (diagnosis) DO UPDATE
SET count = diagnosis_tally.count + 1, updated_at = now()`, diagnosis)
	if err != nil {
		return fmt.Errorf("record prediction: %w", err)
	}
	return nil
}

// Tallies returns all counters, most frequent first.
func (s *Store) Tallies(ctx context.Context) ([]Tally, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT diagnosis, count, updated_at FROM diagnosis_tally ORDER BY count DESC, diagnosis`)
	if err != nil {
		return nil, fmt.Errorf("query tallies: %w", err)
	}
	defer rows.Close()

	var out []Tally
	for rows.Next() {
		var t Tally
		if err := rows.Scan(&t.Diagnosis, &t.Count, &t.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan tally: %w", err)
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tallies: %w", err)
	}
	return out, nil
}
