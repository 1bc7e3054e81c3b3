// Package models defines the domain types for casewatch.
package models

import "time"

// EntryKind classifies one conversation turn in a case history.
type EntryKind string

// Entry kinds, matching the extractor output contract.
const (
	KindQuestion EntryKind = "question"
	KindAnswer   EntryKind = "answer"
)

// HistoryEntry is a single question or answer turn. CreatedOn is an
// RFC3339 timestamp string (or the raw header date when parsing failed).
// Entries are always ordered by CreatedOn ascending.
type HistoryEntry struct {
	Kind      EntryKind `json:"type"`
	CreatedOn string    `json:"created_on"`
	Text      string    `json:"text"`
}

// CaseRecord ties a case id to its transcript file and extracted history.
type CaseRecord struct {
	CaseID      string         `json:"case_id"`
	RawTextPath string         `json:"raw_text_path"`
	Fingerprint string         `json:"fingerprint"`
	Entries     []HistoryEntry `json:"entries"`
}

// Decision is the canonical tri-state outcome of a judgment.
type Decision string

// Decisions.
const (
	DecisionApproved Decision = "approved"
	DecisionRejected Decision = "rejected"
	DecisionUnknown  Decision = "unknown"
)

// Verdict is the parsed judgment for a case. It is constructed only by
// the verdict parser.
type Verdict struct {
	Decision Decision `json:"decision"`
	Reason   string   `json:"reason,omitempty"`
}

// State tracks how far a case file has progressed through the pipeline.
type State string

// Pipeline states. A case advances monotonically through
// seen → extracted → judged → notified; failed and skipped are terminal
// for the current fingerprint.
const (
	StateSeen      State = "seen"
	StateExtracted State = "extracted"
	StateJudged    State = "judged"
	StateNotified  State = "notified"
	StateSkipped   State = "skipped"
	StateFailed    State = "failed"
)

// Stage names the pipeline step a failure occurred in.
type Stage string

// Pipeline stages.
const (
	StageFetch   Stage = "fetch"
	StageExtract Stage = "extract"
	StageJudge   Stage = "judge"
	StageNotify  Stage = "notify"
)

// CaseStatus is the externally visible processing state for one case.
type CaseStatus struct {
	CaseID      string    `json:"case_id"`
	Fingerprint string    `json:"fingerprint"`
	State       State     `json:"state"`
	Stage       Stage     `json:"stage,omitempty"`
	Reason      string    `json:"reason,omitempty"`
	Decision    Decision  `json:"decision,omitempty"`
	Attempts    int       `json:"attempts,omitempty"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// CaseFile is lightweight metadata for one transcript file in the
// monitored directory, as returned by storage listings.
type CaseFile struct {
	CaseID      string    `json:"case_id"`
	Path        string    `json:"path"`
	Fingerprint string    `json:"fingerprint"`
	Size        int64     `json:"size"`
	UpdatedAt   time.Time `json:"updated_at"`
}
