// Package db stores the session and sample log in sqlite for
// diagnostics and offline reporting. The placement pipeline itself
// never reads from the database.
package db

import (
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// DB wraps the sqlite handle.
type DB struct {
	*sql.DB
}

// NewDB opens (and creates if needed) the sqlite database at path.
func NewDB(path string) (*DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS sessions (
			session_id        TEXT PRIMARY KEY,
			started_at        TIMESTAMP,
			origin_lat        DOUBLE,
			origin_lon        DOUBLE,
			calibrated_at     TIMESTAMP
		);
		CREATE TABLE IF NOT EXISTS samples (
			sample_id         INTEGER PRIMARY KEY AUTOINCREMENT,
			session_id        TEXT,
			received_at       TIMESTAMP,
			source            TEXT,
			lat               DOUBLE,
			lon               DOUBLE,
			alt               DOUBLE,
			yaw_deg           DOUBLE,
			pitch_deg         DOUBLE,
			roll_deg          DOUBLE,
			FOREIGN KEY(session_id) REFERENCES sessions(session_id)
		);
		CREATE INDEX IF NOT EXISTS idx_samples_session
			ON samples(session_id, received_at);
	`)
	if err != nil {
		return nil, err
	}

	return &DB{db}, nil
}

// SampleRecord is one logged remote pose sample.
type SampleRecord struct {
	SessionID  string    `json:"session_id"`
	ReceivedAt time.Time `json:"received_at"`
	Source     string    `json:"source"`
	Lat        float64   `json:"lat"`
	Lon        float64   `json:"lon"`
	Alt        float64   `json:"alt"`
	YawDeg     float64   `json:"yaw_deg"`
	PitchDeg   float64   `json:"pitch_deg"`
	RollDeg    float64   `json:"roll_deg"`
}

// CreateSession records the start of a placement session.
func (db *DB) CreateSession(sessionID string, startedAt time.Time) error {
	_, err := db.Exec(
		`INSERT OR IGNORE INTO sessions (session_id, started_at) VALUES (?, ?)`,
		sessionID, startedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}
	return nil
}

// MarkCalibrated stores the calibration origin on the session row. The
// origin is written once; later calls overwrite with identical values
// because the calibration frame never changes within a session.
func (db *DB) MarkCalibrated(sessionID string, lat, lon float64, at time.Time) error {
	_, err := db.Exec(
		`UPDATE sessions SET origin_lat = ?, origin_lon = ?, calibrated_at = ? WHERE session_id = ?`,
		lat, lon, at, sessionID,
	)
	if err != nil {
		return fmt.Errorf("failed to mark session calibrated: %w", err)
	}
	return nil
}

// RecordSample appends one sample to the log.
func (db *DB) RecordSample(rec SampleRecord) error {
	_, err := db.Exec(
		`INSERT INTO samples (session_id, received_at, source, lat, lon, alt, yaw_deg, pitch_deg, roll_deg)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.SessionID, rec.ReceivedAt, rec.Source,
		rec.Lat, rec.Lon, rec.Alt, rec.YawDeg, rec.PitchDeg, rec.RollDeg,
	)
	if err != nil {
		return fmt.Errorf("failed to record sample: %w", err)
	}
	return nil
}

// RecentSamples returns up to limit samples for the session, newest
// first.
func (db *DB) RecentSamples(sessionID string, limit int) ([]SampleRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := db.Query(
		`SELECT session_id, received_at, source, lat, lon, alt, yaw_deg, pitch_deg, roll_deg
		 FROM samples WHERE session_id = ?
		 ORDER BY received_at DESC LIMIT ?`,
		sessionID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query samples: %w", err)
	}
	defer rows.Close()

	var out []SampleRecord
	for rows.Next() {
		var rec SampleRecord
		if err := rows.Scan(&rec.SessionID, &rec.ReceivedAt, &rec.Source,
			&rec.Lat, &rec.Lon, &rec.Alt, &rec.YawDeg, &rec.PitchDeg, &rec.RollDeg); err != nil {
			return nil, fmt.Errorf("failed to scan sample: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// AllSamples returns every sample for the session in arrival order,
// used by the report tool.
func (db *DB) AllSamples(sessionID string) ([]SampleRecord, error) {
	rows, err := db.Query(
		`SELECT session_id, received_at, source, lat, lon, alt, yaw_deg, pitch_deg, roll_deg
		 FROM samples WHERE session_id = ?
		 ORDER BY received_at ASC`,
		sessionID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query samples: %w", err)
	}
	defer rows.Close()

	var out []SampleRecord
	for rows.Next() {
		var rec SampleRecord
		if err := rows.Scan(&rec.SessionID, &rec.ReceivedAt, &rec.Source,
			&rec.Lat, &rec.Lon, &rec.Alt, &rec.YawDeg, &rec.PitchDeg, &rec.RollDeg); err != nil {
			return nil, fmt.Errorf("failed to scan sample: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// Sessions lists known sessions, newest first.
func (db *DB) Sessions() ([]SessionRecord, error) {
	rows, err := db.Query(
		`SELECT session_id, started_at, origin_lat, origin_lon, calibrated_at
		 FROM sessions ORDER BY started_at DESC`,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query sessions: %w", err)
	}
	defer rows.Close()

	var out []SessionRecord
	for rows.Next() {
		var rec SessionRecord
		var lat, lon sql.NullFloat64
		var calibratedAt sql.NullTime
		if err := rows.Scan(&rec.SessionID, &rec.StartedAt, &lat, &lon, &calibratedAt); err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		if lat.Valid && lon.Valid {
			rec.OriginLat = &lat.Float64
			rec.OriginLon = &lon.Float64
		}
		if calibratedAt.Valid {
			rec.CalibratedAt = &calibratedAt.Time
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// SessionRecord is one placement session.
type SessionRecord struct {
	SessionID    string     `json:"session_id"`
	StartedAt    time.Time  `json:"started_at"`
	OriginLat    *float64   `json:"origin_lat,omitempty"`
	OriginLon    *float64   `json:"origin_lon,omitempty"`
	CalibratedAt *time.Time `json:"calibrated_at,omitempty"`
}
