// Package reflection turns raw interaction snapshots into durable memory.
// A background worker drains the task queue, asks the oracle whether each
// interaction carries knowledge worth keeping, and applies its decision to
// the store.
package reflection

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Actions the oracle can choose for a stored interaction.
const (
	ActionNew    = "NEW"
	ActionUpdate = "UPDATE"
	ActionKept   = "KEPT"
)

// Decision is the parsed outcome of one unified analysis call.
type Decision struct {
	Store        bool     `json:"should_store"`
	Action       string   `json:"action"`
	TargetID     int64    `json:"target_doc_id"`
	Analysis     string   `json:"analysis"`
	Entities     []string `json:"entities"`
	ProblemClass string   `json:"problem_class"`
	Rationale    string   `json:"rationale"`
}

// ParseDecision decodes the oracle's JSON reply. Models routinely wrap JSON
// in markdown fences, so those are stripped before decoding. A null
// target_doc_id decodes to zero.
func ParseDecision(raw string) (Decision, error) {
	text := stripFences(raw)
	if text == "" {
		return Decision{}, fmt.Errorf("empty oracle response")
	}

	var d Decision
	if err := json.Unmarshal([]byte(text), &d); err != nil {
		return Decision{}, fmt.Errorf("parse decision: %w", err)
	}

	d.Action = strings.ToUpper(strings.TrimSpace(d.Action))
	switch d.Action {
	case ActionNew, ActionUpdate, ActionKept:
	case "":
		d.Action = ActionNew
	default:
		return Decision{}, fmt.Errorf("unknown action %q", d.Action)
	}
	return d, nil
}

// stripFences removes a surrounding ```json ... ``` (or bare ```) block.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
