// Package postgres stores truck plans and partition summaries in
// PostgreSQL through the pgx database/sql driver.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/kilianp07/fleetsim/core/factory"
	"github.com/kilianp07/fleetsim/core/planstore"
)

// Type is the planstore module name of this backend.
const Type = "postgres"

var schema = []string{
	`CREATE TABLE IF NOT EXISTS truck_plans (
		experiment_id TEXT NOT NULL,
		truck_id      TEXT NOT NULL,
		created_at    TIMESTAMPTZ NOT NULL,
		record        JSONB NOT NULL,
		PRIMARY KEY (experiment_id, truck_id)
	)`,
	`CREATE TABLE IF NOT EXISTS partitions (
		id            BIGSERIAL PRIMARY KEY,
		experiment_id TEXT NOT NULL,
		partition_id  TEXT NOT NULL,
		record        JSONB NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS partitions_experiment_idx ON partitions (experiment_id)`,
}

func init() {
	_ = planstore.Register(Type, func(conf map[string]any) (planstore.Store, error) {
		var c struct {
			DSN string `json:"dsn"`
		}
		if err := factory.Decode(conf, &c); err != nil {
			return nil, err
		}
		if c.DSN == "" {
			return nil, errors.New("postgres store requires dsn")
		}
		return Open(context.Background(), c.DSN)
	})
}

// Store implements planstore.Store on PostgreSQL.
type Store struct {
	db *sql.DB
}

// Open connects to dsn and ensures the schema exists.
func Open(ctx context.Context, dsn string) (*Store, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("migrate: %w", err)
		}
	}
	return &Store{db: db}, nil
}

// SavePlan upserts the plan of (experiment, truck).
func (s *Store) SavePlan(ctx context.Context, rec planstore.PlanRecord) error {
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}
	b, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO truck_plans (experiment_id, truck_id, created_at, record) VALUES ($1, $2, $3, $4)
		 ON CONFLICT (experiment_id, truck_id) DO UPDATE SET created_at = EXCLUDED.created_at, record = EXCLUDED.record`,
		rec.ExperimentID, rec.TruckID, rec.CreatedAt, b)
	return err
}

func (s *Store) LoadPlan(ctx context.Context, experimentID, truckID string) (planstore.PlanRecord, error) {
	var data []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT record FROM truck_plans WHERE experiment_id = $1 AND truck_id = $2`,
		experimentID, truckID).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return planstore.PlanRecord{}, planstore.ErrNotFound
	}
	if err != nil {
		return planstore.PlanRecord{}, err
	}
	var rec planstore.PlanRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return planstore.PlanRecord{}, fmt.Errorf("unmarshal plan: %w", err)
	}
	return rec, nil
}

// SavePartitions appends parts in a single transaction.
func (s *Store) SavePartitions(ctx context.Context, parts []planstore.PartitionSummary) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()
	for _, p := range parts {
		b, err := json.Marshal(p)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO partitions (experiment_id, partition_id, record) VALUES ($1, $2, $3)`,
			p.ExperimentID, p.ID, b); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *Store) ListPartitions(ctx context.Context, experimentID string) ([]planstore.PartitionSummary, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT record FROM partitions WHERE experiment_id = $1 ORDER BY id`, experimentID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	var out []planstore.PartitionSummary
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, err
		}
		var p planstore.PartitionSummary
		if err := json.Unmarshal(data, &p); err != nil {
			return nil, fmt.Errorf("unmarshal partition: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// Delete removes every plan and partition of experimentID.
func (s *Store) Delete(ctx context.Context, experimentID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()
	if _, err := tx.ExecContext(ctx, `DELETE FROM truck_plans WHERE experiment_id = $1`, experimentID); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM partitions WHERE experiment_id = $1`, experimentID); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *Store) Close() error { return s.db.Close() }
