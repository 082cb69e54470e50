package db

import (
	"time"

	"github.com/balance-lab/forceplate/internal/calibration"
)

// CalibrationEvent is one row of calibration_events.
type CalibrationEvent struct {
	ID          int64
	KnownWeight float64
	Factors     [4]float64
	Factor      float64
	At          time.Time
}

// RecordCalibration appends res to the history. It implements
// calibration.Recorder.
func (db *DB) RecordCalibration(res calibration.Result) error {
	at := res.At
	if at.IsZero() {
		at = time.Now()
	}
	_, err := db.Exec(`
		INSERT INTO calibration_events (
			known_weight, factor_a, factor_b, factor_c, factor_d, factor, at_unix_nano
		) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		res.KnownWeight,
		res.Factors[0], res.Factors[1], res.Factors[2], res.Factors[3],
		res.Factor,
		at.UnixNano(),
	)
	return err
}

// CalibrationEvents returns up to limit events, newest first. A limit of
// zero or less returns all of them.
func (db *DB) CalibrationEvents(limit int) ([]CalibrationEvent, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := db.Query(`
		SELECT id, known_weight, factor_a, factor_b, factor_c, factor_d, factor, at_unix_nano
		FROM calibration_events
		ORDER BY at_unix_nano DESC, id DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []CalibrationEvent
	for rows.Next() {
		var e CalibrationEvent
		var at int64
		if err := rows.Scan(&e.ID, &e.KnownWeight,
			&e.Factors[0], &e.Factors[1], &e.Factors[2], &e.Factors[3],
			&e.Factor, &at); err != nil {
			return nil, err
		}
		e.At = time.Unix(0, at).UTC()
		events = append(events, e)
	}
	return events, rows.Err()
}
