// Package monitor watches the case directory and drives each transcript
// file through the judgment pipeline.
//
// Detection is poll-driven: a single control loop scans the directory
// every poll interval and compares content fingerprints, so behaviour
// does not depend on OS notification semantics. An fsnotify watcher,
// when it can be started, only wakes the scan early after a short
// debounce; polling stays authoritative.
package monitor

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"sort"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"golang.org/x/sync/errgroup"

	"casewatch/internal/extract"
	"casewatch/internal/journal"
	"casewatch/internal/models"
	"casewatch/internal/notify"
	"casewatch/internal/repository"
	"casewatch/internal/storage"
)

// caseFileSuffix is the transcript filename suffix in the monitored
// directory.
const caseFileSuffix = ".txt"

// wakeDebounce delays a watcher-triggered scan so bursts of events for
// the same write collapse into one pass.
const wakeDebounce = 200 * time.Millisecond

// JudgeClient is the judgment endpoint dependency.
type JudgeClient interface {
	Judge(ctx context.Context, caseID string, entries []models.HistoryEntry) (string, error)
}

// Notifier is the webhook dispatch dependency.
type Notifier interface {
	Notify(ctx context.Context, caseID string, v models.Verdict, raw string) (notify.DispatchResult, error)
}

// Journal records state transitions; may be nil.
type Journal interface {
	Record(t journal.Transition) error
}

// EventSink receives every status change; may be nil.
type EventSink func(models.CaseStatus)

// Options configures a Monitor.
type Options struct {
	CaseIDDigits    int
	PollInterval    time.Duration
	ProcessExisting bool
	MaxConcurrent   int
	AllowPartial    bool
	MaxAttempts     int
	Backoff         time.Duration

	// DrainTimeout bounds how long Run waits for in-flight pipelines
	// after cancellation before cutting them off. Zero means 30s.
	DrainTimeout time.Duration
}

// Monitor owns all per-case processing state for the process lifetime.
type Monitor struct {
	opts      Options
	watchDir  *storage.FS
	workDir   *storage.FS
	source    repository.Source
	extractor *extract.Extractor
	judge     JudgeClient
	notifier  Notifier
	journal   Journal
	events    EventSink
	logger    *slog.Logger
	caseIDRe  *regexp.Regexp

	mu    sync.Mutex
	cases map[string]*caseState
}

// caseState is the mutable per-case record, guarded by Monitor.mu.
// A case with inflight set has exactly one pipeline goroutine running;
// the scan never schedules a second one.
type caseState struct {
	status models.CaseStatus

	inflight bool

	// doneFingerprint is the last fingerprint fully handled (notified,
	// skipped, or terminally failed); matching files are not
	// reprocessed until their content changes.
	doneFingerprint string

	// tryFingerprint/attempts/nextRetry implement bounded
	// retry-with-backoff for transient failures of one file version.
	tryFingerprint string
	attempts       int
	nextRetry      time.Time

	// lastSize/lastMod implement the write-stability debounce: a file
	// is only scheduled once its size and mtime survive a full poll
	// unchanged.
	lastSize int64
	lastMod  time.Time
	observed bool
}

// New creates a Monitor.
func New(opts Options, watchDir, workDir *storage.FS, source repository.Source,
	extractor *extract.Extractor, judgeClient JudgeClient, notifier Notifier,
	jnl Journal, events EventSink, logger *slog.Logger) (*Monitor, error) {

	if opts.MaxConcurrent < 1 {
		opts.MaxConcurrent = 1
	}
	if opts.DrainTimeout <= 0 {
		opts.DrainTimeout = 30 * time.Second
	}
	re, err := regexp.Compile(fmt.Sprintf(`^\d{%d}$`, opts.CaseIDDigits))
	if err != nil {
		return nil, fmt.Errorf("monitor: case id pattern: %w", err)
	}
	return &Monitor{
		opts:      opts,
		watchDir:  watchDir,
		workDir:   workDir,
		source:    source,
		extractor: extractor,
		judge:     judgeClient,
		notifier:  notifier,
		journal:   jnl,
		events:    events,
		logger:    logger,
		caseIDRe:  re,
		cases:     make(map[string]*caseState),
	}, nil
}

// SeedFingerprints marks fingerprints as already handled, typically
// from the journal's notified set at startup.
func (m *Monitor) SeedFingerprints(done map[string]string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for caseID, fp := range done {
		st := m.caseLocked(caseID)
		st.doneFingerprint = fp
	}
}

// Run drives the control loop until ctx is cancelled, then drains:
// in-flight pipelines keep a live context so they can finish (or reach
// their own stage timeouts), and are cut off only after DrainTimeout.
func (m *Monitor) Run(ctx context.Context) error {
	if !m.opts.ProcessExisting {
		m.excludeExisting()
	}

	// Pipelines run on a context detached from the control loop's:
	// cancelling the loop must not abort work already handed out.
	pipeCtx, pipeCancel := context.WithCancel(context.Background())
	defer pipeCancel()

	wake := make(chan struct{}, 1)
	watcher := m.startWatcher(ctx, wake)
	if watcher != nil {
		defer watcher.Close()
	}

	workers := &errgroup.Group{}
	workers.SetLimit(m.opts.MaxConcurrent)

	ticker := time.NewTicker(m.opts.PollInterval)
	defer ticker.Stop()

	m.logger.Info("monitor: started",
		slog.String("dir", m.watchDir.Root()),
		slog.Duration("poll_interval", m.opts.PollInterval),
		slog.Bool("process_existing", m.opts.ProcessExisting))

	m.scan(ctx, pipeCtx, workers)

	var debounce *time.Timer
	var debounceCh <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			m.logger.Info("monitor: stopping, waiting for in-flight pipelines")
			finished := make(chan struct{})
			go func() {
				_ = workers.Wait()
				close(finished)
			}()
			select {
			case <-finished:
			case <-time.After(m.opts.DrainTimeout):
				m.logger.Warn("monitor: drain timeout reached, cancelling in-flight pipelines")
				pipeCancel()
				<-finished
			}
			m.logger.Info("monitor: stopped")
			return nil

		case <-ticker.C:
			m.scan(ctx, pipeCtx, workers)

		case <-wake:
			if debounce == nil {
				debounce = time.NewTimer(wakeDebounce)
				debounceCh = debounce.C
			} else {
				debounce.Reset(wakeDebounce)
			}

		case <-debounceCh:
			m.scan(ctx, pipeCtx, workers)
		}
	}
}

// startWatcher starts an fsnotify watcher that nudges the scan loop.
// Failure to start is logged and tolerated: polling alone is correct.
func (m *Monitor) startWatcher(ctx context.Context, wake chan<- struct{}) *fsnotify.Watcher {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		m.logger.Warn("monitor: fsnotify unavailable, polling only", slog.String("error", err.Error()))
		return nil
	}
	if err := w.Add(m.watchDir.Root()); err != nil {
		m.logger.Warn("monitor: watch dir failed, polling only", slog.String("error", err.Error()))
		w.Close()
		return nil
	}

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if ev.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) == 0 {
					continue
				}
				select {
				case wake <- struct{}{}:
				default:
				}
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				m.logger.Warn("monitor: watcher error", slog.String("error", err.Error()))
			}
		}
	}()
	return w
}

// excludeExisting records the fingerprints of files already present at
// startup so they are not processed.
func (m *Monitor) excludeExisting() {
	files, err := m.watchDir.List(caseFileSuffix)
	if err != nil {
		m.logger.Warn("monitor: initial listing failed", slog.String("error", err.Error()))
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, f := range files {
		if !m.caseIDRe.MatchString(f.CaseID) {
			continue
		}
		st := m.caseLocked(f.CaseID)
		if st.doneFingerprint == "" {
			st.doneFingerprint = f.Fingerprint
			n++
		}
	}
	m.logger.Debug("monitor: excluded pre-existing files", slog.Int("count", n))
}

// scan lists the directory and schedules a pipeline for every stable,
// changed case file. One slow pipeline never blocks detection: work is
// handed to the capped worker group, and a full group just defers the
// file to the next poll. Scheduled pipelines run on pipeCtx, which
// outlives ctx during the drain phase.
func (m *Monitor) scan(ctx, pipeCtx context.Context, workers *errgroup.Group) {
	if ctx.Err() != nil {
		return
	}
	files, err := m.watchDir.List(caseFileSuffix)
	if err != nil {
		m.logger.Error("monitor: scan failed", slog.String("error", err.Error()))
		return
	}

	now := time.Now()
	for _, f := range files {
		if !m.caseIDRe.MatchString(f.CaseID) {
			continue
		}
		f := f

		m.mu.Lock()
		st := m.caseLocked(f.CaseID)
		if !m.eligibleLocked(st, f, now) {
			m.mu.Unlock()
			continue
		}
		st.inflight = true
		if st.tryFingerprint != f.Fingerprint {
			st.tryFingerprint = f.Fingerprint
			st.attempts = 0
		}
		m.mu.Unlock()

		if !workers.TryGo(func() error {
			m.process(pipeCtx, f)
			return nil
		}) {
			// Worker pool saturated; release the claim and retry on a
			// later poll.
			m.mu.Lock()
			st.inflight = false
			m.mu.Unlock()
		}
	}
}

// eligibleLocked decides whether a scanned file should be processed
// now. Caller holds m.mu.
func (m *Monitor) eligibleLocked(st *caseState, f models.CaseFile, now time.Time) bool {
	if st.inflight {
		return false
	}
	if f.Fingerprint == st.doneFingerprint {
		return false
	}
	// Retry backoff for a previously failed attempt at this content.
	if st.attempts > 0 && st.tryFingerprint == f.Fingerprint && now.Before(st.nextRetry) {
		return false
	}
	// Stability debounce: process only after a full poll with no
	// size/mtime movement, so a file mid-write is left alone.
	if !st.observed || f.Size != st.lastSize || !f.UpdatedAt.Equal(st.lastMod) {
		st.observed = true
		st.lastSize = f.Size
		st.lastMod = f.UpdatedAt
		return false
	}
	return true
}

// caseLocked returns (creating if needed) the state record for a case.
// Caller holds m.mu.
func (m *Monitor) caseLocked(caseID string) *caseState {
	st, ok := m.cases[caseID]
	if !ok {
		st = &caseState{status: models.CaseStatus{CaseID: caseID}}
		m.cases[caseID] = st
	}
	return st
}

// Snapshot returns the current status of every known case, sorted by
// case id.
func (m *Monitor) Snapshot() []models.CaseStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.CaseStatus, 0, len(m.cases))
	for _, st := range m.cases {
		if st.status.State != "" {
			out = append(out, st.status)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CaseID < out[j].CaseID })
	return out
}

// Status returns the status of one case.
func (m *Monitor) Status(caseID string) (models.CaseStatus, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, ok := m.cases[caseID]
	if !ok || st.status.State == "" {
		return models.CaseStatus{}, false
	}
	return st.status, true
}
