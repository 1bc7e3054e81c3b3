package journal

import (
	"fmt"
	"time"

	"casewatch/internal/models"
)

// Transition is one recorded state change.
type Transition struct {
	CaseID      string          `json:"case_id"`
	Fingerprint string          `json:"fingerprint"`
	State       models.State    `json:"state"`
	Stage       models.Stage    `json:"stage,omitempty"`
	Reason      string          `json:"reason,omitempty"`
	Decision    models.Decision `json:"decision,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
}

// Record appends one transition.
func (db *DB) Record(t Transition) error {
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now()
	}
	_, err := db.conn.Exec(`
		INSERT INTO transitions (case_id, fingerprint, state, stage, reason, decision, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, t.CaseID, t.Fingerprint, string(t.State), string(t.Stage), t.Reason, string(t.Decision), t.CreatedAt)
	if err != nil {
		return fmt.Errorf("journal: record transition: %w", err)
	}
	return nil
}

// History returns all transitions for one case, oldest first.
func (db *DB) History(caseID string) ([]Transition, error) {
	rows, err := db.conn.Query(`
		SELECT case_id, fingerprint, state, stage, reason, decision, created_at
		FROM transitions WHERE case_id = ? ORDER BY id
	`, caseID)
	if err != nil {
		return nil, fmt.Errorf("journal: history: %w", err)
	}
	defer rows.Close()
	return scanTransitions(rows)
}

// Latest returns the most recent transition per case id.
func (db *DB) Latest() ([]Transition, error) {
	rows, err := db.conn.Query(`
		SELECT case_id, fingerprint, state, stage, reason, decision, created_at
		FROM transitions
		WHERE id IN (SELECT MAX(id) FROM transitions GROUP BY case_id)
		ORDER BY case_id
	`)
	if err != nil {
		return nil, fmt.Errorf("journal: latest: %w", err)
	}
	defer rows.Close()
	return scanTransitions(rows)
}

// NotifiedFingerprints returns, per case id, the fingerprint of the
// most recent notified or skipped run. The monitor seeds its dedup map
// from this at startup.
func (db *DB) NotifiedFingerprints() (map[string]string, error) {
	rows, err := db.conn.Query(`
		SELECT case_id, fingerprint
		FROM transitions
		WHERE id IN (
			SELECT MAX(id) FROM transitions
			WHERE state IN (?, ?) AND fingerprint != ''
			GROUP BY case_id
		)
	`, string(models.StateNotified), string(models.StateSkipped))
	if err != nil {
		return nil, fmt.Errorf("journal: notified fingerprints: %w", err)
	}
	defer rows.Close()

	out := make(map[string]string)
	for rows.Next() {
		var caseID, fp string
		if err := rows.Scan(&caseID, &fp); err != nil {
			return nil, err
		}
		out[caseID] = fp
	}
	return out, rows.Err()
}

type rowScanner interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
}

func scanTransitions(rows rowScanner) ([]Transition, error) {
	var out []Transition
	for rows.Next() {
		var t Transition
		var state, stage, decision string
		if err := rows.Scan(&t.CaseID, &t.Fingerprint, &state, &stage, &t.Reason, &decision, &t.CreatedAt); err != nil {
			return nil, err
		}
		t.State = models.State(state)
		t.Stage = models.Stage(stage)
		t.Decision = models.Decision(decision)
		out = append(out, t)
	}
	return out, rows.Err()
}
