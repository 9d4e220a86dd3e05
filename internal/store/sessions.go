package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Session is one row of session bookkeeping.
type Session struct {
	ID      int64
	Started time.Time
	Ended   time.Time // zero while running
	Policy  string
}

// BeginSession records a session start and returns its ID.
func (s *Store) BeginSession(started time.Time, policy string) (int64, error) {
	res, err := s.db.Exec(`INSERT INTO sessions (started_ns, policy) VALUES (?, ?)`,
		started.UnixNano(), policy)
	if err != nil {
		return 0, fmt.Errorf("insert session: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("get session id: %w", err)
	}
	return id, nil
}

// EndSession stamps the session's end time.
func (s *Store) EndSession(id int64, ended time.Time) error {
	res, err := s.db.Exec(`UPDATE sessions SET ended_ns = ? WHERE id = ?`,
		ended.UnixNano(), id)
	if err != nil {
		return fmt.Errorf("end session: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("session %d: %w", id, ErrNotFound)
	}
	return nil
}

// GetSession retrieves one session row.
func (s *Store) GetSession(id int64) (Session, error) {
	var sess Session
	var startedNs int64
	var endedNs sql.NullInt64
	err := s.db.QueryRow(`SELECT id, started_ns, ended_ns, policy FROM sessions WHERE id = ?`, id).
		Scan(&sess.ID, &startedNs, &endedNs, &sess.Policy)
	if errors.Is(err, sql.ErrNoRows) {
		return sess, fmt.Errorf("session %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return sess, fmt.Errorf("query session: %w", err)
	}
	sess.Started = time.Unix(0, startedNs).UTC()
	if endedNs.Valid {
		sess.Ended = time.Unix(0, endedNs.Int64).UTC()
	}
	return sess, nil
}

// Recording is one row of the video recording index.
type Recording struct {
	ID      string
	Path    string
	Codec   string
	Started time.Time
	Stopped time.Time // zero while recording
}

// InsertRecording records a started video recording.
func (s *Store) InsertRecording(r Recording) error {
	_, err := s.db.Exec(`INSERT INTO recordings (id, path, codec, started_ns) VALUES (?, ?, ?, ?)`,
		r.ID, r.Path, r.Codec, r.Started.UnixNano())
	if err != nil {
		return fmt.Errorf("insert recording: %w", err)
	}
	return nil
}

// FinishRecording stamps the recording's stop time.
func (s *Store) FinishRecording(id string, stopped time.Time) error {
	res, err := s.db.Exec(`UPDATE recordings SET stopped_ns = ? WHERE id = ?`,
		stopped.UnixNano(), id)
	if err != nil {
		return fmt.Errorf("finish recording: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("recording %s: %w", id, ErrNotFound)
	}
	return nil
}

// ListRecordings returns all recordings, newest first.
func (s *Store) ListRecordings() ([]Recording, error) {
	rows, err := s.db.Query(`SELECT id, path, codec, started_ns, stopped_ns FROM recordings ORDER BY started_ns DESC`)
	if err != nil {
		return nil, fmt.Errorf("query recordings: %w", err)
	}
	defer rows.Close()

	var out []Recording
	for rows.Next() {
		var r Recording
		var startedNs int64
		var stoppedNs sql.NullInt64
		if err := rows.Scan(&r.ID, &r.Path, &r.Codec, &startedNs, &stoppedNs); err != nil {
			return nil, fmt.Errorf("scan recording: %w", err)
		}
		r.Started = time.Unix(0, startedNs).UTC()
		if stoppedNs.Valid {
			r.Stopped = time.Unix(0, stoppedNs.Int64).UTC()
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
