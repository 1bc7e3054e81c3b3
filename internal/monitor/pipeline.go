package monitor

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"casewatch/internal/apperr"
	"casewatch/internal/journal"
	"casewatch/internal/models"
	"casewatch/internal/verdict"
)

// process runs the full pipeline for one stable file version:
// fetch confirmation → extraction → judgment → verdict → notification.
// Stages run in strict sequence; any error is isolated to this case.
func (m *Monitor) process(ctx context.Context, f models.CaseFile) {
	defer func() {
		m.mu.Lock()
		m.caseLocked(f.CaseID).inflight = false
		m.mu.Unlock()
	}()

	m.logger.Info("monitor: processing", slog.String("case_id", f.CaseID), slog.String("fingerprint", f.Fingerprint))
	m.transition(f, models.StateSeen, nil)

	text, err := m.source.FetchCaseText(ctx, f.CaseID)
	if err != nil {
		m.fail(f, apperr.AsStage(err, models.StageFetch))
		return
	}

	entries := m.extractor.Extract(text)
	if len(entries) == 0 {
		m.skip(f, "no_entries")
		return
	}
	if entries[len(entries)-1].Kind != models.KindAnswer {
		last := lastAnswerIndex(entries)
		if !m.opts.AllowPartial {
			m.skip(f, "last_entry_not_answer")
			return
		}
		if last < 0 {
			m.skip(f, "no_answer_entry")
			return
		}
		entries = entries[:last+1]
		m.logger.Info("monitor: truncated history at last answer",
			slog.String("case_id", f.CaseID), slog.Int("entries", len(entries)))
	}

	if err := m.writeHistory(f.CaseID, entries); err != nil {
		m.fail(f, apperr.Stage(models.StageExtract, err))
		return
	}
	m.transition(f, models.StateExtracted, nil)

	raw, err := m.judge.Judge(ctx, f.CaseID, entries)
	if err != nil {
		m.fail(f, apperr.AsStage(err, models.StageJudge))
		return
	}
	m.transition(f, models.StateJudged, nil)

	v := verdict.Parse(raw)

	if _, err := m.notifier.Notify(ctx, f.CaseID, v, raw); err != nil {
		m.fail(f, apperr.AsStage(err, models.StageNotify))
		return
	}

	m.mu.Lock()
	st := m.caseLocked(f.CaseID)
	st.doneFingerprint = f.Fingerprint
	st.attempts = 0
	m.mu.Unlock()

	m.transition(f, models.StateNotified, func(s *models.CaseStatus) {
		s.Decision = v.Decision
		s.Reason = v.Reason
	})
	m.logger.Info("monitor: case complete",
		slog.String("case_id", f.CaseID),
		slog.String("decision", string(v.Decision)))
}

// lastAnswerIndex returns the index of the latest answer entry, or -1.
func lastAnswerIndex(entries []models.HistoryEntry) int {
	for i := len(entries) - 1; i >= 0; i-- {
		if entries[i].Kind == models.KindAnswer {
			return i
		}
	}
	return -1
}

// writeHistory persists the extracted entries to <caseID>.json in the
// work directory.
func (m *Monitor) writeHistory(caseID string, entries []models.HistoryEntry) error {
	data, err := json.MarshalIndent(entries, "", "    ")
	if err != nil {
		return fmt.Errorf("monitor: marshal history: %w", err)
	}
	return m.workDir.Write(caseID+".json", data)
}

// transition applies a state change, journals it, and publishes it.
func (m *Monitor) transition(f models.CaseFile, state models.State, mutate func(*models.CaseStatus)) {
	m.mu.Lock()
	st := m.caseLocked(f.CaseID)
	st.status.Fingerprint = f.Fingerprint
	st.status.State = state
	st.status.Stage = ""
	st.status.Reason = ""
	st.status.Decision = ""
	st.status.Attempts = st.attempts
	st.status.UpdatedAt = time.Now()
	if mutate != nil {
		mutate(&st.status)
	}
	status := st.status
	m.mu.Unlock()

	m.record(status)
}

// skip marks a file version as handled without judgment: the content
// gave the pipeline nothing to judge, which is not a failure.
func (m *Monitor) skip(f models.CaseFile, reason string) {
	m.mu.Lock()
	st := m.caseLocked(f.CaseID)
	st.doneFingerprint = f.Fingerprint
	st.attempts = 0
	st.status.Fingerprint = f.Fingerprint
	st.status.State = models.StateSkipped
	st.status.Stage = ""
	st.status.Reason = reason
	st.status.UpdatedAt = time.Now()
	status := st.status
	m.mu.Unlock()

	m.logger.Info("monitor: skipped", slog.String("case_id", f.CaseID), slog.String("reason", reason))
	m.record(status)
}

// fail records a stage failure. Transient failures stay eligible for
// retry with exponential backoff until the attempt cap; anything else
// is terminal for this fingerprint, so a permanently broken file cannot
// produce a tight failure loop.
func (m *Monitor) fail(f models.CaseFile, se *apperr.StageError) {
	m.mu.Lock()
	st := m.caseLocked(f.CaseID)
	st.attempts++
	retrying := se.Transient && st.attempts < m.opts.MaxAttempts
	if retrying {
		st.nextRetry = time.Now().Add(m.opts.Backoff << (st.attempts - 1))
	} else {
		st.doneFingerprint = f.Fingerprint
	}
	st.status.Fingerprint = f.Fingerprint
	st.status.State = models.StateFailed
	st.status.Stage = se.Stage
	st.status.Reason = se.Err.Error()
	st.status.Attempts = st.attempts
	st.status.UpdatedAt = time.Now()
	status := st.status
	attempts := st.attempts
	m.mu.Unlock()

	m.logger.Error("monitor: stage failed",
		slog.String("case_id", f.CaseID),
		slog.String("stage", string(se.Stage)),
		slog.String("error", se.Err.Error()),
		slog.Int("attempts", attempts),
		slog.Bool("will_retry", retrying))
	m.record(status)
}

// record mirrors a status change into the journal and the event sink.
// Journal failures are logged, never propagated: the journal is an
// audit trail, not the source of truth for a running process.
func (m *Monitor) record(status models.CaseStatus) {
	if m.journal != nil {
		err := m.journal.Record(journal.Transition{
			CaseID:      status.CaseID,
			Fingerprint: status.Fingerprint,
			State:       status.State,
			Stage:       status.Stage,
			Reason:      status.Reason,
			Decision:    status.Decision,
			CreatedAt:   status.UpdatedAt,
		})
		if err != nil {
			m.logger.Warn("monitor: journal write failed",
				slog.String("case_id", status.CaseID),
				slog.String("error", err.Error()))
		}
	}
	if m.events != nil {
		m.events(status)
	}
}
