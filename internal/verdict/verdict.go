// Package verdict interprets an LLM response as a canonical decision.
//
// Two encodings are recognised. The labelled-text form
// (査閲結果：承認|却下|不明 with an optional 理由： line) is the contract the
// default prompt instructs the model to follow, so it is authoritative
// whenever present. A JSON object with a "decision" key is the machine
// fallback. A response matching neither form is unknown with no reason.
package verdict

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"casewatch/internal/models"
)

var (
	resultRe = regexp.MustCompile(`査閲結果：\s*(承認|却下|不明)`)
	reasonRe = regexp.MustCompile(`理由：\s*(.+)`)
)

// Labelled decision values.
const (
	labelApprove = "承認"
	labelReject  = "却下"
	labelUnknown = "不明"
)

// rejectTokens are the JSON decision values that count as a rejection.
// Matching is exact and case-insensitive; broader synonym matching is a
// product decision that has not been made.
var rejectTokens = []string{"reject", "ng"}

// Parse derives a Verdict from the raw response text.
func Parse(raw string) models.Verdict {
	if v, ok := parseLabelled(raw); ok {
		return v
	}
	if v, ok := parseDecisionJSON(raw); ok {
		return v
	}
	return models.Verdict{Decision: models.DecisionUnknown}
}

// parseLabelled matches the 査閲結果／理由 form.
func parseLabelled(raw string) (models.Verdict, bool) {
	m := resultRe.FindStringSubmatch(raw)
	if m == nil {
		return models.Verdict{}, false
	}

	v := models.Verdict{Decision: models.DecisionUnknown}
	switch m[1] {
	case labelApprove:
		v.Decision = models.DecisionApproved
	case labelReject:
		v.Decision = models.DecisionRejected
	case labelUnknown:
		v.Decision = models.DecisionUnknown
	}
	if rm := reasonRe.FindStringSubmatch(raw); rm != nil {
		v.Reason = strings.TrimSpace(rm[1])
	}
	return v, true
}

// parseDecisionJSON matches a JSON object carrying a "decision" key.
// Surrounding prose is tolerated: the first {…} span is tried when the
// whole body does not parse.
func parseDecisionJSON(raw string) (models.Verdict, bool) {
	obj := decodeObject(raw)
	if obj == nil {
		return models.Verdict{}, false
	}
	decisionRaw, ok := obj["decision"]
	if !ok {
		return models.Verdict{}, false
	}
	// Non-string decision values (numbers, booleans) are stringified
	// and matched like any other token; JSON null stays unknown.
	var decision string
	switch d := decisionRaw.(type) {
	case string:
		decision = d
	case nil:
	default:
		decision = fmt.Sprint(d)
	}
	if strings.TrimSpace(decision) == "" {
		return models.Verdict{Decision: models.DecisionUnknown}, true
	}

	v := models.Verdict{Decision: models.DecisionApproved}
	for _, token := range rejectTokens {
		if strings.EqualFold(strings.TrimSpace(decision), token) {
			v.Decision = models.DecisionRejected
			break
		}
	}
	if reason, ok := obj["reason"].(string); ok {
		v.Reason = strings.TrimSpace(reason)
	}
	return v, true
}

// decodeObject unmarshals raw as a JSON object, falling back to the
// substring between the first "{" and the last "}".
func decodeObject(raw string) map[string]any {
	var obj map[string]any
	if err := json.Unmarshal([]byte(raw), &obj); err == nil {
		return obj
	}
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start == -1 || end <= start {
		return nil
	}
	if err := json.Unmarshal([]byte(raw[start:end+1]), &obj); err != nil {
		return nil
	}
	return obj
}
