package mcpserver

import "casewatch/internal/judge"

// JudgmentContract describes the review contract the LLM is held to:
// the labelled output format, its decision values, and how responses
// are parsed. Returned by the get_judgment_contract tool so MCP
// consumers can interpret case verdicts.
const JudgmentContract = `# Casewatch Judgment Contract

Each case transcript is reduced to an ordered history of
{type, created_on, text} entries (type is "question" or "answer",
created_on is RFC3339, ascending). The history is substituted into the
reviewer prompt at the {entries} placeholder and sent to the configured
chat-completions endpoint.

## Expected response

The model is instructed to answer in this labelled form, which is
authoritative whenever present:

    査閲結果：<承認|却下|不明>
    理由：<objective reason>

- 承認 (approve): the last answer naturally responds to this case.
- 却下 (reject): the last answer belongs to a different case or topic.
- 不明 (unknown): not enough context to decide.

A JSON object with a "decision" key is accepted as a fallback; only the
exact values "reject" and "ng" (case-insensitive) count as a rejection
there. A response matching neither form is treated as unknown.

## Dispatch

Every verdict is posted to the primary webhook as an Adaptive Card.
Rejections additionally go to the rejection webhook when one is
configured.

## Reviewer prompt (default)

` + judge.DefaultPrompt
