// Package kpi persists daily ecological truck KPIs.
package kpi

import (
	"database/sql"
	"time"

	_ "modernc.org/sqlite"

	"github.com/kilianp07/fleetsim/core/metrics/eco"
)

// SQLiteStore persists KPI records in a SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens or creates the database and ensures schema.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	schema := `CREATE TABLE IF NOT EXISTS truck_kpi (
        truck_id TEXT,
        day INTEGER,
        distance_km REAL,
        co2_kg REAL,
        pickups INTEGER,
        PRIMARY KEY(truck_id, day)
    );`
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &SQLiteStore{db: db}, nil
}

// Add inserts the record or accumulates it into the existing day.
func (s *SQLiteStore) Add(r eco.Record) error {
	_, err := s.db.Exec(`INSERT INTO truck_kpi (truck_id, day, distance_km, co2_kg, pickups)
        VALUES (?, ?, ?, ?, ?)
        ON CONFLICT(truck_id, day) DO UPDATE SET
            distance_km = distance_km + excluded.distance_km,
            co2_kg = co2_kg + excluded.co2_kg,
            pickups = pickups + excluded.pickups`,
		r.TruckID, eco.Day(r.Date).Unix(), r.DistanceKm, r.CO2Kg, r.Pickups)
	return err
}

// Query returns records in the range [start,end].
func (s *SQLiteStore) Query(truckID string, start, end time.Time) ([]eco.Record, error) {
	rows, err := s.db.Query(`SELECT truck_id, day, distance_km, co2_kg, pickups
        FROM truck_kpi WHERE truck_id = ? AND day >= ? AND day <= ? ORDER BY day`,
		truckID, eco.Day(start).Unix(), eco.Day(end).Unix())
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	var res []eco.Record
	for rows.Next() {
		var (
			r  eco.Record
			ts int64
		)
		if err := rows.Scan(&r.TruckID, &ts, &r.DistanceKm, &r.CO2Kg, &r.Pickups); err != nil {
			return nil, err
		}
		r.Date = time.Unix(ts, 0).UTC()
		res = append(res, r)
	}
	return res, rows.Err()
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error { return s.db.Close() }
