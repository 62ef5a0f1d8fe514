package planstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore persists plans and partitions to a SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens or creates the database at path and ensures schema.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	schema := []string{`CREATE TABLE IF NOT EXISTS truck_plans (
        experiment_id TEXT NOT NULL,
        truck_id TEXT NOT NULL,
        created_at INTEGER,
        record TEXT,
        PRIMARY KEY (experiment_id, truck_id)
    )`, `CREATE TABLE IF NOT EXISTS partitions (
        id INTEGER PRIMARY KEY AUTOINCREMENT,
        experiment_id TEXT NOT NULL,
        partition_id TEXT,
        record TEXT
    )`}
	for _, stmt := range schema {
		if _, err := db.Exec(stmt); err != nil {
			if cerr := db.Close(); cerr != nil {
				return nil, fmt.Errorf("close db: %v (schema err: %w)", cerr, err)
			}
			return nil, err
		}
	}
	return &SQLiteStore{db: db}, nil
}

// SavePlan upserts the plan for (experiment, truck).
func (s *SQLiteStore) SavePlan(ctx context.Context, rec PlanRecord) error {
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}
	b, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO truck_plans (experiment_id, truck_id, created_at, record) VALUES (?, ?, ?, ?)
         ON CONFLICT(experiment_id, truck_id) DO UPDATE SET created_at = excluded.created_at, record = excluded.record`,
		rec.ExperimentID, rec.TruckID, rec.CreatedAt.Unix(), string(b))
	return err
}

func (s *SQLiteStore) LoadPlan(ctx context.Context, experimentID, truckID string) (PlanRecord, error) {
	var data string
	err := s.db.QueryRowContext(ctx,
		`SELECT record FROM truck_plans WHERE experiment_id = ? AND truck_id = ?`,
		experimentID, truckID).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return PlanRecord{}, ErrNotFound
	}
	if err != nil {
		return PlanRecord{}, err
	}
	var rec PlanRecord
	if err := json.Unmarshal([]byte(data), &rec); err != nil {
		return PlanRecord{}, fmt.Errorf("unmarshal plan: %w", err)
	}
	return rec, nil
}

func (s *SQLiteStore) SavePartitions(ctx context.Context, parts []PartitionSummary) error {
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
			`INSERT INTO partitions (experiment_id, partition_id, record) VALUES (?, ?, ?)`,
			p.ExperimentID, p.ID, string(b)); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *SQLiteStore) ListPartitions(ctx context.Context, experimentID string) ([]PartitionSummary, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT record FROM partitions WHERE experiment_id = ? ORDER BY id`, experimentID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	var res []PartitionSummary
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, err
		}
		var p PartitionSummary
		if err := json.Unmarshal([]byte(data), &p); err != nil {
			return nil, fmt.Errorf("unmarshal partition: %w", err)
		}
		res = append(res, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return res, nil
}

func (s *SQLiteStore) Delete(ctx context.Context, experimentID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM truck_plans WHERE experiment_id = ?`, experimentID); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx, `DELETE FROM partitions WHERE experiment_id = ?`, experimentID)
	return err
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error { return s.db.Close() }
