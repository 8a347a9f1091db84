// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package storage records wall following runs to a sqlite database for later
// analysis.
package storage

import (
	"database/sql"
	_ "embed"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/relabs-tech/wall_follower/internal/control"
	"github.com/relabs-tech/wall_follower/internal/protocol"
)

//go:embed schema.sql
var schemaSQL string

// Recorder appends telemetry and control cycles to a sqlite database.
type Recorder struct {
	db *sql.DB
}

// Session is one run of the wall follower.
type Session struct {
	ID      string
	Notes   string
	Started time.Time
	Ended   time.Time // zero while running
	Frames  int
	Cycles  int
}

// Open opens or creates the database at path.
func Open(path string) (*Recorder, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// one connection keeps writes serialized and ":memory:" databases shared
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create recorder schema: %w", err)
	}

	log.Printf("recording runs to %s", path)
	return &Recorder{db: db}, nil
}

func (r *Recorder) Close() error {
	return r.db.Close()
}

// StartSession creates a session and returns its id. cfg is stored as JSON
// when not nil.
func (r *Recorder) StartSession(notes string, cfg any) (string, error) {
	id := uuid.New().String()

	var cfgJSON any
	if cfg != nil {
		b, err := json.Marshal(cfg)
		if err != nil {
			return "", fmt.Errorf("failed to encode session config: %w", err)
		}
		cfgJSON = string(b)
	}

	_, err := r.db.Exec(`INSERT INTO sessions (id, notes, config_json, started_ns) VALUES (?, ?, ?, ?)`,
		id, notes, cfgJSON, time.Now().UnixNano())
	if err != nil {
		return "", fmt.Errorf("failed to start session: %w", err)
	}
	return id, nil
}

// EndSession stamps the session end time.
func (r *Recorder) EndSession(id string) error {
	res, err := r.db.Exec(`UPDATE sessions SET ended_ns = ? WHERE id = ?`, time.Now().UnixNano(), id)
	if err != nil {
		return fmt.Errorf("failed to end session: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("unknown session %q", id)
	}
	return nil
}

// RecordFrame stores one telemetry frame.
func (r *Recorder) RecordFrame(sessionID string, f protocol.SensorFrame, at time.Time) error {
	distances, err := json.Marshal(f.Distances)
	if err != nil {
		return err
	}
	_, err = r.db.Exec(`
		INSERT INTO telemetry (session_id, recorded_ns, distances_json, x, y, theta)
		VALUES (?, ?, ?, ?, ?, ?)`,
		sessionID, at.UnixNano(), string(distances), f.Pose.X, f.Pose.Y, f.Pose.Theta)
	if err != nil {
		return fmt.Errorf("failed to insert telemetry: %w", err)
	}
	return nil
}

// RecordCycle stores the outcome of one control cycle.
func (r *Recorder) RecordCycle(sessionID string, st control.Status) error {
	at := st.Time
	if at.IsZero() {
		at = time.Now()
	}
	_, err := r.db.Exec(`
		INSERT INTO control_cycles
			(session_id, recorded_ns, mode, slope, intercept, fallback, error, rate, translational, angular)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sessionID, at.UnixNano(), st.Mode.String(), st.Line.Slope, st.Line.Intercept,
		st.Fallback, st.Error, st.Rate, st.Command.Translational, st.Command.Angular)
	if err != nil {
		return fmt.Errorf("failed to insert control cycle: %w", err)
	}
	return nil
}

// Frames returns the telemetry of a session in recording order.
func (r *Recorder) Frames(sessionID string) ([]protocol.SensorFrame, error) {
	rows, err := r.db.Query(`
		SELECT distances_json, x, y, theta FROM telemetry
		WHERE session_id = ? ORDER BY id`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var frames []protocol.SensorFrame
	for rows.Next() {
		var (
			distances string
			f         protocol.SensorFrame
		)
		if err := rows.Scan(&distances, &f.Pose.X, &f.Pose.Y, &f.Pose.Theta); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(distances), &f.Distances); err != nil {
			return nil, fmt.Errorf("corrupt distances %q: %w", distances, err)
		}
		frames = append(frames, f)
	}
	return frames, rows.Err()
}

// Sessions lists all sessions, newest first.
func (r *Recorder) Sessions() ([]Session, error) {
	rows, err := r.db.Query(`
		SELECT s.id, s.notes, s.started_ns, s.ended_ns,
			(SELECT COUNT(*) FROM telemetry t WHERE t.session_id = s.id),
			(SELECT COUNT(*) FROM control_cycles c WHERE c.session_id = s.id)
		FROM sessions s ORDER BY s.started_ns DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Session
	for rows.Next() {
		var (
			s       Session
			started int64
			ended   sql.NullInt64
		)
		if err := rows.Scan(&s.ID, &s.Notes, &started, &ended, &s.Frames, &s.Cycles); err != nil {
			return nil, err
		}
		s.Started = time.Unix(0, started)
		if ended.Valid {
			s.Ended = time.Unix(0, ended.Int64)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}
