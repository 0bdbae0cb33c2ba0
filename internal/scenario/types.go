// Package scenario defines the AR billing scenario model: an account
// plus an ordered timeline of immutable state frames, and the parser
// that turns raw oracle output into that model.
package scenario

import (
	"encoding/json"
	"fmt"
	"time"
)

// Delta annotation values carried on records inside a frame.
const (
	DeltaAdded   = "added"
	DeltaUpdated = "updated"
	DeltaRemoved = "removed"
)

// Scenario is one generated billing scenario: metadata, the account it
// concerns and the frame timeline. Frame 0 is the initial (pre-action)
// state; every later frame is the result of exactly one event.
type Scenario struct {
	Metadata   Metadata    `json:"scenario_metadata"`
	Account    Account     `json:"account"`
	Timeline   []Frame     `json:"timeline"`
	Resolution *Resolution `json:"resolution,omitempty"`

	// Raw keeps the oracle text the scenario was parsed from.
	Raw string `json:"-"`
}

// Metadata describes the generation seed of a scenario.
type Metadata struct {
	ScenarioID   string `json:"scenario_id"`
	ScenarioType string `json:"scenario_type"`
	DenialCode   string `json:"denial_code"`
	Complexity   string `json:"complexity"`
	GeneratedAt  string `json:"generated_at"`
}

// Account identifies the patient account the timeline belongs to.
type Account struct {
	AccountNumber string `json:"account_number"`
	Facility      string `json:"facility"`
	ServiceDate   string `json:"service_date"`
}

// Frame is an immutable snapshot of the account at one logical step.
type Frame struct {
	Timestamp    string       `json:"timestamp"`
	FrameID      string       `json:"frame_id"`
	EventType    string       `json:"event_type"`
	Event        Event        `json:"event"`
	AccountState AccountState `json:"account_state"`
	StateSummary string       `json:"state_summary"`
}

// Event describes what moved the account from the previous frame into
// this one. ActionTaken names the rulebook action for operator events.
type Event struct {
	Trigger       string         `json:"trigger"`
	Description   string         `json:"description"`
	Actor         string         `json:"actor"`
	ActorID       string         `json:"actor_id,omitempty"`
	ActionTaken   string         `json:"action_taken,omitempty"`
	ActionDetails map[string]any `json:"action_details,omitempty"`
}

// AccountState holds the record tables of a frame.
type AccountState struct {
	Demographics []Record `json:"demographics"`
	Claims       []Record `json:"claims"`
	Remits       []Record `json:"remits"`
	Transactions []Record `json:"transactions"`
	Notes        []Record `json:"notes"`
}

// Resolution summarizes the terminal outcome of the timeline.
type Resolution struct {
	FinalStatus      string  `json:"final_status"`
	FinalBalance     float64 `json:"final_balance"`
	TotalCollected   float64 `json:"total_collected"`
	TotalAdjustments float64 `json:"total_adjustments"`
	DaysToResolution int     `json:"days_to_resolution"`
	ActionsTaken     int     `json:"actions_taken"`
}

// Record is one row of an account-state table. Records stay schemaless
// maps because the set of fields is owned by the record-field schemas
// in the catalog, not by this package; the accessors below cover the
// fields the validator interprets natively.
type Record map[string]any

// ID returns the record_id, or empty when absent.
func (r Record) ID() string { return r.String("record_id") }

// Delta returns the _delta annotation, or empty when unset/null.
func (r Record) Delta() string { return r.String("_delta") }

// ChangedFields returns the _changed_fields annotation.
func (r Record) ChangedFields() []string {
	raw, ok := r["_changed_fields"].([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, v := range raw {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

// String returns the named field as a string, or empty when the field
// is absent, null or not a string.
func (r Record) String(field string) string {
	s, _ := r[field].(string)
	return s
}

// Number returns the named field as a float64 plus presence.
func (r Record) Number(field string) (float64, bool) {
	switch v := r[field].(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	case json.Number:
		f, err := v.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}

// Has reports whether the field is present and non-null.
func (r Record) Has(field string) bool {
	v, ok := r[field]
	return ok && v != nil
}

// Claim returns the frame's claim record. Scenarios carry exactly one
// claim per account; a missing claim table yields an empty record.
func (s AccountState) Claim() Record {
	if len(s.Claims) == 0 {
		return Record{}
	}
	return s.Claims[0]
}

// Table returns the named record table.
func (s AccountState) Table(name string) []Record {
	switch name {
	case "demographics":
		return s.Demographics
	case "claims":
		return s.Claims
	case "remits":
		return s.Remits
	case "transactions":
		return s.Transactions
	case "notes":
		return s.Notes
	default:
		return nil
	}
}

// TableNames lists the account-state tables in reporting order.
func TableNames() []string {
	return []string{"demographics", "claims", "remits", "transactions", "notes"}
}

// Transitions returns the number of frame-to-frame transitions.
func (s *Scenario) Transitions() int {
	if len(s.Timeline) == 0 {
		return 0
	}
	return len(s.Timeline) - 1
}

// timestampFormats covers the ISO-8601 variants oracles emit.
var timestampFormats = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04:05.000",
	"2006-01-02",
}

// ParseTimestamp parses a frame timestamp or record date.
func ParseTimestamp(value string) (time.Time, error) {
	for _, layout := range timestampFormats {
		if ts, err := time.Parse(layout, value); err == nil {
			return ts, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", value)
}
