// Package extract converts raw case-transcript text into an ordered
// question/answer history.
//
// A transcript is a sequence of blocks delimited by separator lines.
// Each block is a header line (date + QUESTION/ANSWER keyword) followed
// by a second separator and the body text. Bodies are cleaned of meta
// lines and, optionally, log noise before the history is sorted
// chronologically and trimmed to a character budget.
package extract

import (
	"fmt"
	"log/slog"
	"regexp"
	"sort"
	"strings"
	"time"

	"casewatch/internal/models"
)

// headerDateLayout is the date format emitted by the case repository
// pages ("2006/01/02 15:04").
const headerDateLayout = "2006/01/02 15:04"

var (
	metaLineRe = regexp.MustCompile(`^(【.*】|\[.*\])$`)
	logLineRe  = regexp.MustCompile(`^\s*(\d{4}-\d{2}-\d{2}|\d{2}:\d{2}:\d{2}|INFO|ERROR|DEBUG|TRACE|WARN|WARNING)\b`)
	jsonLineRe = regexp.MustCompile(`^\s*[{\[].*[}\]]\s*$`)
)

// Options configures an Extractor.
type Options struct {
	SeparatorPattern  string
	HeaderDatePattern string
	QuestionKeywords  []string
	AnswerKeywords    []string
	MaxChars          int
	LogFilter         bool
	MaxLineLen        int
}

// SplitKeywords normalises a comma-separated keyword list.
func SplitKeywords(raw string) []string {
	var out []string
	for _, item := range strings.Split(raw, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

// Extractor parses case transcripts into history entries.
type Extractor struct {
	sepRe    *regexp.Regexp
	headerRe *regexp.Regexp
	question []string
	answer   []string
	opts     Options
	logger   *slog.Logger
}

// New compiles the configured patterns into an Extractor.
func New(opts Options, logger *slog.Logger) (*Extractor, error) {
	sepRe, err := regexp.Compile(opts.SeparatorPattern)
	if err != nil {
		return nil, fmt.Errorf("extract: separator pattern: %w", err)
	}

	keywords := append(append([]string{}, opts.QuestionKeywords...), opts.AnswerKeywords...)
	if len(keywords) == 0 {
		return nil, fmt.Errorf("extract: no question/answer keywords configured")
	}
	escaped := make([]string, len(keywords))
	for i, kw := range keywords {
		escaped[i] = regexp.QuoteMeta(kw)
	}
	headerRe, err := regexp.Compile(
		`(?i)(?P<date>` + opts.HeaderDatePattern + `).*?(?P<type>` + strings.Join(escaped, "|") + `)`)
	if err != nil {
		return nil, fmt.Errorf("extract: header pattern: %w", err)
	}

	return &Extractor{
		sepRe:    sepRe,
		headerRe: headerRe,
		question: opts.QuestionKeywords,
		answer:   opts.AnswerKeywords,
		opts:     opts,
		logger:   logger,
	}, nil
}

// Extract parses text and returns cleaned history entries, sorted by
// created_on ascending and trimmed to the configured character budget.
// A transcript yielding no recognisable blocks returns an empty slice,
// never an error: malformed source is a skip condition, not a crash.
func (e *Extractor) Extract(text string) []models.HistoryEntry {
	raw := e.parseBlocks(text)

	var entries []models.HistoryEntry
	for _, entry := range raw {
		cleaned := stripMetaLines(entry.Text)
		if cleaned == "" && entry.Text != "" {
			// Cleaning removed everything; keep the original body
			// rather than losing the turn.
			cleaned = entry.Text
		}
		if e.opts.LogFilter {
			filtered := e.stripLogNoise(cleaned)
			if filtered == "" && cleaned != "" {
				filtered = cleaned
			}
			cleaned = filtered
		}
		if cleaned == "" {
			e.logger.Debug("extract: dropped empty entry", slog.String("type", string(entry.Kind)))
			continue
		}
		entry.Text = cleaned
		entries = append(entries, entry)
	}

	sortChronological(entries)
	return trimToBudget(entries, e.opts.MaxChars)
}

// parseBlocks walks the separator-delimited block structure and returns
// uncleaned entries in file order.
func (e *Extractor) parseBlocks(text string) []models.HistoryEntry {
	lines := strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n")

	var entries []models.HistoryEntry
	i := 0
	for i < len(lines) {
		if !e.sepRe.MatchString(lines[i]) {
			i++
			continue
		}

		// Separator found: skip blank lines to the header.
		i++
		for i < len(lines) && lines[i] == "" {
			i++
		}
		if i >= len(lines) {
			break
		}

		header := strings.ReplaceAll(lines[i], "　", " ")
		m := e.headerRe.FindStringSubmatch(header)
		i++

		// Skip to the separator that closes the header section.
		for i < len(lines) && !e.sepRe.MatchString(lines[i]) {
			i++
		}
		if i >= len(lines) {
			break
		}
		i++

		// Body runs until the next separator.
		var body []string
		for i < len(lines) && !e.sepRe.MatchString(lines[i]) {
			body = append(body, lines[i])
			i++
		}

		if m == nil {
			e.logger.Debug("extract: header not recognised", slog.String("header", header))
			continue
		}

		// Named groups: the configured date pattern may itself contain
		// capture groups, so positional indexes are not stable.
		date := m[e.headerRe.SubexpIndex("date")]
		keyword := m[e.headerRe.SubexpIndex("type")]

		kind := e.classify(keyword)
		if kind == "" {
			e.logger.Debug("extract: unknown entry keyword", slog.String("keyword", keyword))
			continue
		}

		entries = append(entries, models.HistoryEntry{
			Kind:      kind,
			CreatedOn: normaliseDate(date),
			Text:      strings.TrimSpace(strings.Join(body, "\n")),
		})
	}
	return entries
}

// classify maps a header keyword to an entry kind; unrecognised
// keywords return "".
func (e *Extractor) classify(keyword string) models.EntryKind {
	for _, kw := range e.question {
		if strings.EqualFold(keyword, kw) {
			return models.KindQuestion
		}
	}
	for _, kw := range e.answer {
		if strings.EqualFold(keyword, kw) {
			return models.KindAnswer
		}
	}
	return ""
}

// stripMetaLines removes heading/label lines so only body text remains.
func stripMetaLines(text string) string {
	var kept []string
	for _, line := range strings.Split(text, "\n") {
		stripped := strings.TrimSpace(line)
		if stripped == "" || metaLineRe.MatchString(stripped) {
			continue
		}
		kept = append(kept, line)
	}
	return strings.TrimSpace(strings.Join(kept, "\n"))
}

// stripLogNoise drops log-level lines, bare JSON lines, and over-long
// lines from an entry body.
func (e *Extractor) stripLogNoise(text string) string {
	if text == "" {
		return ""
	}
	var kept []string
	for _, line := range strings.Split(text, "\n") {
		stripped := strings.TrimSpace(line)
		if stripped == "" {
			continue
		}
		if logLineRe.MatchString(stripped) || jsonLineRe.MatchString(stripped) {
			continue
		}
		if len([]rune(stripped)) > e.opts.MaxLineLen {
			continue
		}
		kept = append(kept, line)
	}
	return strings.TrimSpace(strings.Join(kept, "\n"))
}

// normaliseDate converts a header date to RFC3339. An unparseable date
// is kept verbatim so the entry is not lost.
func normaliseDate(raw string) string {
	normalised := strings.Join(strings.Fields(raw), " ")
	t, err := time.ParseInLocation(headerDateLayout, normalised, time.Local)
	if err != nil {
		return raw
	}
	return t.Format(time.RFC3339)
}

// sortChronological orders entries by created_on ascending. Entries
// whose dates did not parse keep their relative file order.
func sortChronological(entries []models.HistoryEntry) {
	sort.SliceStable(entries, func(i, j int) bool {
		ti, erri := time.Parse(time.RFC3339, entries[i].CreatedOn)
		tj, errj := time.Parse(time.RFC3339, entries[j].CreatedOn)
		if erri != nil || errj != nil {
			return false
		}
		return ti.Before(tj)
	})
}

// trimToBudget keeps the newest entries whose combined text fits within
// maxChars. The oldest kept entry is truncated if it crosses the
// budget. Order stays ascending.
func trimToBudget(entries []models.HistoryEntry, maxChars int) []models.HistoryEntry {
	if maxChars <= 0 {
		return entries
	}
	total := 0
	start := len(entries)
	for i := len(entries) - 1; i >= 0; i-- {
		runes := []rune(entries[i].Text)
		remaining := maxChars - total
		if remaining <= 0 {
			break
		}
		if len(runes) > remaining {
			entries[i].Text = string(runes[:remaining])
			total = maxChars
		} else {
			total += len(runes)
		}
		start = i
	}
	return entries[start:]
}
