// Package store persists the capture index in SQLite. The index is the
// durable source of truth for sequence continuity across daemon restarts;
// image files and JSON sidecars reference it by sequence number.
package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"zedcapd/internal/capture"
	"zedcapd/internal/gps"
)

// Schema for the capture index.
const schema = `
CREATE TABLE IF NOT EXISTS sessions (
    id          INTEGER PRIMARY KEY AUTOINCREMENT,
    started_ns  INTEGER NOT NULL,
    ended_ns    INTEGER,
    policy      TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS captures (
    sequence     INTEGER PRIMARY KEY,
    captured_ns  INTEGER NOT NULL,
    trigger      TEXT NOT NULL,
    latitude     REAL,
    longitude    REAL,
    altitude     REAL,
    fix_quality  TEXT,
    satellites   INTEGER,
    hdop         REAL,
    prefix       TEXT NOT NULL,
    paths        TEXT NOT NULL,
    settings     TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_captures_time ON captures(captured_ns);
CREATE INDEX IF NOT EXISTS idx_captures_trigger ON captures(trigger);

CREATE TABLE IF NOT EXISTS recordings (
    id          TEXT PRIMARY KEY,
    path        TEXT NOT NULL,
    codec       TEXT NOT NULL,
    started_ns  INTEGER NOT NULL,
    stopped_ns  INTEGER
);
`

// ErrNotFound is returned when a lookup matches no row.
var ErrNotFound = errors.New("not found")

// Store is the SQLite-backed capture index.
type Store struct {
	db *sql.DB
}

// Open opens or creates the database at the given path and applies the
// schema.
func Open(path string) (*Store, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", path+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Ping verifies the connection, used by the health checker.
func (s *Store) Ping() error {
	return s.db.Ping()
}

// Insert indexes a finished capture record. Sequence numbers are primary
// keys, so replaying a record fails instead of silently duplicating.
// Implements capture.Index.
func (s *Store) Insert(rec capture.Record) error {
	paths, err := json.Marshal(rec.Image.Paths)
	if err != nil {
		return fmt.Errorf("marshal paths: %w", err)
	}
	settings, err := json.Marshal(rec.Settings)
	if err != nil {
		return fmt.Errorf("marshal settings: %w", err)
	}

	var lat, lon, alt, hdop sql.NullFloat64
	var quality sql.NullString
	var sats sql.NullInt64
	if rec.GPS != nil {
		lat = sql.NullFloat64{Float64: rec.GPS.Lat, Valid: true}
		lon = sql.NullFloat64{Float64: rec.GPS.Lon, Valid: true}
		if rec.GPS.Altitude != nil {
			alt = sql.NullFloat64{Float64: *rec.GPS.Altitude, Valid: true}
		}
		quality = sql.NullString{String: rec.GPS.Quality.String(), Valid: true}
		sats = sql.NullInt64{Int64: int64(rec.GPS.Satellites), Valid: true}
		hdop = sql.NullFloat64{Float64: rec.GPS.HDOP, Valid: true}
	}

	_, err = s.db.Exec(`
		INSERT INTO captures (sequence, captured_ns, trigger, latitude, longitude, altitude, fix_quality, satellites, hdop, prefix, paths, settings)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.Sequence, rec.CapturedAt.UnixNano(), rec.Trigger,
		lat, lon, alt, quality, sats, hdop,
		rec.Image.Prefix, string(paths), string(settings),
	)
	if err != nil {
		return fmt.Errorf("insert capture: %w", err)
	}
	return nil
}

// LastSequence returns the highest indexed sequence number, zero for an
// empty index.
func (s *Store) LastSequence() (uint64, error) {
	var seq sql.NullInt64
	err := s.db.QueryRow(`SELECT MAX(sequence) FROM captures`).Scan(&seq)
	if err != nil {
		return 0, fmt.Errorf("query last sequence: %w", err)
	}
	if !seq.Valid {
		return 0, nil
	}
	return uint64(seq.Int64), nil
}

// GetCapture retrieves one indexed capture by sequence number.
func (s *Store) GetCapture(sequence uint64) (capture.Record, error) {
	row := s.db.QueryRow(`
		SELECT sequence, captured_ns, trigger, latitude, longitude, altitude, fix_quality, satellites, hdop, prefix, paths, settings
		FROM captures WHERE sequence = ?`, sequence)
	rec, err := scanCapture(row)
	if errors.Is(err, sql.ErrNoRows) {
		return capture.Record{}, fmt.Errorf("capture %d: %w", sequence, ErrNotFound)
	}
	return rec, err
}

// ListCaptures returns up to limit most recent captures, newest first.
func (s *Store) ListCaptures(limit int) ([]capture.Record, error) {
	rows, err := s.db.Query(`
		SELECT sequence, captured_ns, trigger, latitude, longitude, altitude, fix_quality, satellites, hdop, prefix, paths, settings
		FROM captures ORDER BY sequence DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query captures: %w", err)
	}
	defer rows.Close()

	var out []capture.Record
	for rows.Next() {
		rec, err := scanCapture(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// CountByTrigger returns capture counts keyed by trigger source.
func (s *Store) CountByTrigger() (map[string]uint64, error) {
	rows, err := s.db.Query(`SELECT trigger, COUNT(*) FROM captures GROUP BY trigger`)
	if err != nil {
		return nil, fmt.Errorf("query trigger counts: %w", err)
	}
	defer rows.Close()

	out := make(map[string]uint64)
	for rows.Next() {
		var trigger string
		var n uint64
		if err := rows.Scan(&trigger, &n); err != nil {
			return nil, fmt.Errorf("scan trigger count: %w", err)
		}
		out[trigger] = n
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCapture(row rowScanner) (capture.Record, error) {
	var rec capture.Record
	var capturedNs int64
	var lat, lon, alt, hdop sql.NullFloat64
	var quality sql.NullString
	var sats sql.NullInt64
	var paths, settings string

	err := row.Scan(&rec.Sequence, &capturedNs, &rec.Trigger,
		&lat, &lon, &alt, &quality, &sats, &hdop,
		&rec.Image.Prefix, &paths, &settings)
	if err != nil {
		return rec, err
	}

	rec.CapturedAt = time.Unix(0, capturedNs).UTC()
	if err := json.Unmarshal([]byte(paths), &rec.Image.Paths); err != nil {
		return rec, fmt.Errorf("decode paths: %w", err)
	}
	if err := json.Unmarshal([]byte(settings), &rec.Settings); err != nil {
		return rec, fmt.Errorf("decode settings: %w", err)
	}

	if lat.Valid && lon.Valid {
		fix := gps.Fix{Lat: lat.Float64, Lon: lon.Float64, Time: rec.CapturedAt}
		if alt.Valid {
			a := alt.Float64
			fix.Altitude = &a
		}
		if quality.Valid {
			fix.Quality = qualityFromName(quality.String)
		}
		if sats.Valid {
			fix.Satellites = int(sats.Int64)
		}
		if hdop.Valid {
			fix.HDOP = hdop.Float64
		}
		rec.GPS = &fix
	}
	return rec, nil
}

func qualityFromName(name string) gps.Quality {
	switch name {
	case "2d":
		return gps.Fix2D
	case "3d":
		return gps.Fix3D
	case "dgps":
		return gps.DGPS
	default:
		return gps.NoFix
	}
}
