package notify

import (
	"fmt"
	"time"

	"casewatch/internal/models"
	"casewatch/internal/repository"
)

// textBlock is one Adaptive Card TextBlock element.
type textBlock struct {
	Type    string `json:"type"`
	Text    string `json:"text"`
	Size    string `json:"size,omitempty"`
	Weight  string `json:"weight,omitempty"`
	Color   string `json:"color,omitempty"`
	Spacing string `json:"spacing,omitempty"`
	Wrap    bool   `json:"wrap"`
}

// container is an Adaptive Card Container element.
type container struct {
	Type  string      `json:"type"`
	Style string      `json:"style,omitempty"`
	Items []textBlock `json:"items"`
	Bleed bool        `json:"bleed,omitempty"`
}

// message is the Teams webhook envelope carrying one Adaptive Card.
type message struct {
	Type        string       `json:"type"`
	Summary     string       `json:"summary"`
	Attachments []attachment `json:"attachments"`
}

type attachment struct {
	ContentType string `json:"contentType"`
	Content     card   `json:"content"`
}

type card struct {
	Schema  string      `json:"$schema"`
	Type    string      `json:"type"`
	Version string      `json:"version"`
	Body    []container `json:"body"`
}

// buildCard assembles the card body for a verdict. Every card carries
// the case link, the verdict, the reason (falling back to the raw LLM
// text), and the dispatch timestamp.
func buildCard(caseID, linkBase string, v models.Verdict, raw string, now time.Time) []container {
	caseLink := textBlock{
		Type:    "TextBlock",
		Text:    fmt.Sprintf("[Case #%s](%s)", caseID, repository.BuildCaseURL(linkBase, caseID)),
		Spacing: "Small",
		Wrap:    true,
	}
	timestamp := textBlock{
		Type:    "TextBlock",
		Text:    fmt.Sprintf("判定日時：%s", now.Format(time.RFC3339)),
		Spacing: "Small",
		Wrap:    true,
	}
	reason := v.Reason
	if reason == "" {
		reason = raw
	}

	switch v.Decision {
	case models.DecisionRejected:
		return []container{{
			Type:  "Container",
			Style: "attention",
			Items: []textBlock{
				{Type: "TextBlock", Text: "🚨 受付番号不一致の可能性", Size: "Large", Weight: "Bolder", Color: "Attention", Wrap: true},
				caseLink,
				{Type: "TextBlock", Text: "LLMが caseid mismatch を検知しました。異なる受付番号への回答が申告されています。至急確認してください。", Spacing: "Medium", Color: "Attention", Wrap: true},
				{Type: "TextBlock", Text: fmt.Sprintf("理由：%s", reason), Spacing: "Small", Wrap: true},
				timestamp,
			},
			Bleed: true,
		}}

	case models.DecisionApproved:
		items := []textBlock{
			{Type: "TextBlock", Text: "✅ **チケット承認**", Size: "Large", Weight: "Bolder", Color: "Good", Wrap: true},
			caseLink,
		}
		if v.Reason != "" {
			items = append(items, textBlock{Type: "TextBlock", Text: fmt.Sprintf("理由：%s", v.Reason), Wrap: true})
		} else {
			items = append(items, textBlock{Type: "TextBlock", Text: raw, Wrap: true})
		}
		items = append(items, timestamp)
		return []container{{Type: "Container", Items: items, Bleed: true}}

	default:
		return []container{{
			Type: "Container",
			Items: []textBlock{
				{Type: "TextBlock", Text: "❔ 判定不明", Size: "Large", Weight: "Bolder", Wrap: true},
				caseLink,
				{Type: "TextBlock", Text: raw, Wrap: true},
				timestamp,
			},
		}}
	}
}

// buildMessage wraps a card body in the webhook envelope.
func buildMessage(summary string, body []container) message {
	return message{
		Type:    "message",
		Summary: summary,
		Attachments: []attachment{{
			ContentType: "application/vnd.microsoft.card.adaptive",
			Content: card{
				Schema:  "http://adaptivecards.io/schemas/adaptive-card.json",
				Type:    "AdaptiveCard",
				Version: "1.4",
				Body:    body,
			},
		}},
	}
}
