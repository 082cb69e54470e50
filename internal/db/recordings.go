package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/balance-lab/forceplate/internal/cop"
)

var ErrRecordingNotFound = errors.New("recording not found")

// Recording kinds, matching the stream that was captured.
const (
	KindWeights = "weights"
	KindCoP     = "cop"
)

type Recording struct {
	ID        string
	Kind      string
	Note      string
	StartedAt time.Time
	Samples   int
}

// Sample is one streamed line. Weights is nil for CoP recordings.
type Sample struct {
	At      time.Time
	Weights *[4]float64
	CoP     cop.Coordinate
}

// StartRecording creates a recording with a fresh id.
func (db *DB) StartRecording(kind, note string, at time.Time) (*Recording, error) {
	if kind != KindWeights && kind != KindCoP {
		return nil, fmt.Errorf("unknown recording kind %q", kind)
	}
	r := &Recording{ID: uuid.NewString(), Kind: kind, Note: note, StartedAt: at.UTC()}
	_, err := db.Exec(
		`INSERT INTO recordings (recording_id, kind, note, started_unix_ns) VALUES (?, ?, ?, ?)`,
		r.ID, r.Kind, r.Note, at.UnixNano(),
	)
	if err != nil {
		return nil, err
	}
	return r, nil
}

// AddSamples appends samples to recording id in one transaction.
func (db *DB) AddSamples(id string, samples []Sample) error {
	tx, err := db.BeginTx(context.Background(), nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var next int
	if err := tx.QueryRow(`SELECT COALESCE(MAX(seq) + 1, 0) FROM samples WHERE recording_id = ?`, id).Scan(&next); err != nil {
		return err
	}
	stmt, err := tx.Prepare(`
		INSERT INTO samples (
			recording_id, seq, at_unix_nano, weight_a, weight_b, weight_c, weight_d, cop_x, cop_y
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for i, s := range samples {
		var w [4]sql.NullFloat64
		if s.Weights != nil {
			for j, v := range s.Weights {
				w[j] = sql.NullFloat64{Float64: v, Valid: true}
			}
		}
		if _, err := stmt.Exec(id, next+i, s.At.UnixNano(), w[0], w[1], w[2], w[3], s.CoP.X, s.CoP.Y); err != nil {
			return fmt.Errorf("insert sample %d: %w", next+i, err)
		}
	}
	return tx.Commit()
}

// GetRecording returns the recording with id.
func (db *DB) GetRecording(id string) (*Recording, error) {
	var r Recording
	var started int64
	err := db.QueryRow(`
		SELECT r.recording_id, r.kind, r.note, r.started_unix_ns,
			(SELECT COUNT(*) FROM samples s WHERE s.recording_id = r.recording_id)
		FROM recordings r WHERE r.recording_id = ?`, id).
		Scan(&r.ID, &r.Kind, &r.Note, &started, &r.Samples)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrRecordingNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	r.StartedAt = time.Unix(0, started).UTC()
	return &r, nil
}

// Recordings lists every recording, newest first.
func (db *DB) Recordings() ([]Recording, error) {
	rows, err := db.Query(`
		SELECT r.recording_id, r.kind, r.note, r.started_unix_ns,
			(SELECT COUNT(*) FROM samples s WHERE s.recording_id = r.recording_id)
		FROM recordings r ORDER BY r.started_unix_ns DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Recording
	for rows.Next() {
		var r Recording
		var started int64
		if err := rows.Scan(&r.ID, &r.Kind, &r.Note, &started, &r.Samples); err != nil {
			return nil, err
		}
		r.StartedAt = time.Unix(0, started).UTC()
		out = append(out, r)
	}
	return out, rows.Err()
}

// Samples returns the samples of recording id in order.
func (db *DB) Samples(id string) ([]Sample, error) {
	rows, err := db.Query(`
		SELECT at_unix_nano, weight_a, weight_b, weight_c, weight_d, cop_x, cop_y
		FROM samples WHERE recording_id = ? ORDER BY seq`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Sample
	for rows.Next() {
		var s Sample
		var at int64
		var w [4]sql.NullFloat64
		if err := rows.Scan(&at, &w[0], &w[1], &w[2], &w[3], &s.CoP.X, &s.CoP.Y); err != nil {
			return nil, err
		}
		s.At = time.Unix(0, at).UTC()
		if w[0].Valid {
			s.Weights = &[4]float64{w[0].Float64, w[1].Float64, w[2].Float64, w[3].Float64}
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// DeleteRecording removes a recording and its samples.
func (db *DB) DeleteRecording(id string) error {
	res, err := db.Exec(`DELETE FROM recordings WHERE recording_id = ?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", ErrRecordingNotFound, id)
	}
	return nil
}
