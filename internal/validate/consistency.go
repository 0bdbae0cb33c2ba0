package validate

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/clearbill/scengen/internal/catalog"
	"github.com/clearbill/scengen/internal/scenario"
)

// balanceTolerance absorbs float rounding in oracle-emitted amounts.
// Anything at or past half a cent is a real inconsistency.
const balanceTolerance = 0.005

// transactionSigns maps transaction types onto their ledger direction.
// The sign is applied to the absolute amount, so an oracle that emits
// "-150.00" for a payment and one that emits "150.00" both reduce the
// balance by 150.
var transactionSigns = map[string]float64{
	"charge":                 1,
	"rebill":                 1,
	"payment":                -1,
	"adjustment":             -1,
	"contractual_adjustment": -1,
	"write_off":              -1,
}

// ConsistencyChecker runs whole-sequence checks that no single
// transition can see: temporal ordering, the financial ledger, terminal
// resolution, record schemas, referential integrity, delta annotations
// and note content quality.
type ConsistencyChecker struct {
	catalog *catalog.Catalog
	opts    Options
}

// NewConsistencyChecker wires a consistency checker.
func NewConsistencyChecker(cat *catalog.Catalog, opts Options) *ConsistencyChecker {
	return &ConsistencyChecker{catalog: cat, opts: opts.withDefaults()}
}

// Check runs every sequence-level check over the scenario.
func (c *ConsistencyChecker) Check(s *scenario.Scenario) []Finding {
	var findings []Finding
	findings = append(findings, c.temporal(s)...)
	findings = append(findings, c.financial(s)...)
	findings = append(findings, c.terminal(s)...)
	findings = append(findings, c.recordSchemas(s)...)
	findings = append(findings, c.referential(s)...)
	findings = append(findings, c.deltaAnnotations(s)...)
	findings = append(findings, c.contentQuality(s)...)
	return findings
}

// claimDateFields are claim dates that cannot precede the account's
// service date: nothing happens to a claim before care is delivered.
var claimDateFields = []string{"submission_date", "denial_date", "appeal_date"}

// temporal enforces monotonically non-decreasing frame timestamps and
// that no claim date precedes the service date. Same-day operator
// actions legitimately share a timestamp, so equality is allowed;
// going backwards is not.
func (c *ConsistencyChecker) temporal(s *scenario.Scenario) []Finding {
	var findings []Finding
	var prev time.Time
	var prevOK bool

	for i, frame := range s.Timeline {
		ts, err := scenario.ParseTimestamp(frame.Timestamp)
		if err != nil {
			findings = append(findings, Finding{
				Kind:       KindTemporalInconsistency,
				Severity:   SeverityHard,
				Transition: frameTransition(i),
				Path:       fmt.Sprintf("timeline[%d].timestamp", i),
				Message:    err.Error(),
			})
			continue
		}
		if prevOK && ts.Before(prev) {
			findings = append(findings, Finding{
				Kind:       KindTemporalInconsistency,
				Severity:   SeverityHard,
				Transition: frameTransition(i),
				Path:       fmt.Sprintf("timeline[%d].timestamp", i),
				Message:    "frame timestamp precedes the previous frame",
				Expected:   fmt.Sprintf("at or after %s", prev.Format(time.RFC3339)),
				Observed:   ts.Format(time.RFC3339),
			})
		}
		prev, prevOK = ts, true
	}

	findings = append(findings, c.serviceDateOrdering(s)...)
	return findings
}

// serviceDateOrdering rejects claim dates earlier than the account's
// service date. A bad date carried forward across frames reports once,
// at the frame where it first appears.
func (c *ConsistencyChecker) serviceDateOrdering(s *scenario.Scenario) []Finding {
	serviceDate, err := scenario.ParseTimestamp(s.Account.ServiceDate)
	if err != nil {
		return nil // the scenario schema already constrains the format
	}

	var findings []Finding
	seen := make(map[string]bool)
	for i, frame := range s.Timeline {
		for _, claim := range frame.AccountState.Claims {
			for _, field := range claimDateFields {
				value := claim.String(field)
				if value == "" {
					continue
				}
				key := claim.ID() + "/" + field + "/" + value
				if seen[key] {
					continue
				}
				seen[key] = true
				date, err := scenario.ParseTimestamp(value)
				if err != nil || !date.Before(serviceDate) {
					continue
				}
				findings = append(findings, Finding{
					Kind:       KindTemporalInconsistency,
					Severity:   SeverityHard,
					Transition: frameTransition(i),
					Path:       fmt.Sprintf("claims[%s].%s", claim.ID(), field),
					Message:    fmt.Sprintf("%s precedes the account service date", field),
					Expected:   fmt.Sprintf("on or after %s", s.Account.ServiceDate),
					Observed:   value,
				})
			}
		}
	}
	return findings
}

// financial replays the transaction ledger frame by frame and compares
// it to the claim's reported balance. When the timeline carries an
// explicit charge transaction the ledger starts empty; otherwise it is
// seeded from the claim's billed amount.
func (c *ConsistencyChecker) financial(s *scenario.Scenario) []Finding {
	var findings []Finding

	for i, frame := range s.Timeline {
		balance, ok := frame.AccountState.Claim().Number("balance")
		if !ok {
			continue // schema check reports the missing field
		}
		ledger := ledgerBalance(frame.AccountState)
		if math.Abs(ledger-balance) >= balanceTolerance {
			findings = append(findings, Finding{
				Kind:       KindFinancialInconsistency,
				Severity:   SeverityHard,
				Transition: frameTransition(i),
				Path:       fmt.Sprintf("timeline[%d].claims[0].balance", i),
				Message:    "claim balance does not match the transaction ledger",
				Expected:   fmt.Sprintf("%.2f", ledger),
				Observed:   fmt.Sprintf("%.2f", balance),
			})
		}
	}

	if s.Resolution != nil && len(s.Timeline) > 0 {
		last := s.Timeline[len(s.Timeline)-1]
		if balance, ok := last.AccountState.Claim().Number("balance"); ok {
			if math.Abs(s.Resolution.FinalBalance-balance) >= balanceTolerance {
				findings = append(findings, Finding{
					Kind:       KindFinancialInconsistency,
					Severity:   SeverityHard,
					Transition: SequenceScope,
					Path:       "resolution.final_balance",
					Message:    "resolution balance does not match the final frame",
					Expected:   fmt.Sprintf("%.2f", balance),
					Observed:   fmt.Sprintf("%.2f", s.Resolution.FinalBalance),
				})
			}
		}
	}
	return findings
}

func ledgerBalance(state scenario.AccountState) float64 {
	total := 0.0
	sawCharge := false
	for _, txn := range state.Transactions {
		amount, ok := txn.Number("amount")
		if !ok {
			continue
		}
		txnType := txn.String("type")
		sign, known := transactionSigns[txnType]
		if !known {
			total += amount
			continue
		}
		if sign > 0 && txnType == "charge" {
			sawCharge = true
		}
		total += sign * math.Abs(amount)
	}
	if !sawCharge {
		if charge, ok := state.Claim().Number("billed_amount"); ok {
			total += charge
		}
	}
	return total
}

// terminal checks that the timeline actually resolves. An unresolved
// ending is advisory by default; strict mode promotes it.
func (c *ConsistencyChecker) terminal(s *scenario.Scenario) []Finding {
	if len(s.Timeline) == 0 {
		return nil
	}
	status := s.Timeline[len(s.Timeline)-1].AccountState.Claim().String("status")
	for _, terminal := range c.opts.TerminalStatuses {
		if status == terminal {
			return nil
		}
	}
	severity := SeverityAdvisory
	if c.opts.Strict {
		severity = SeverityHard
	}
	return []Finding{{
		Kind:       KindIncompleteResolution,
		Severity:   severity,
		Transition: SequenceScope,
		Message:    "timeline does not end in a terminal claim status",
		Expected:   "one of " + strings.Join(c.opts.TerminalStatuses, ", "),
		Observed:   fmt.Sprintf("%q", status),
	}}
}

// recordSchemas validates every record of every frame against the
// catalog's field schemas. Findings are deduplicated by record and
// field so a bad record emitted in frame 2 and carried forward through
// frame 7 reports once.
func (c *ConsistencyChecker) recordSchemas(s *scenario.Scenario) []Finding {
	var findings []Finding
	seen := make(map[string]bool)

	report := func(i int, table string, rec scenario.Record, field, message, expected, observed string) {
		key := table + "/" + rec.ID() + "/" + field + "/" + message
		if seen[key] {
			return
		}
		seen[key] = true
		findings = append(findings, Finding{
			Kind:       KindSchemaViolation,
			Severity:   SeverityHard,
			Transition: frameTransition(i),
			Path:       fmt.Sprintf("%s[%s].%s", table, rec.ID(), field),
			Message:    message,
			Expected:   expected,
			Observed:   observed,
		})
	}

	for i, frame := range s.Timeline {
		for _, table := range scenario.TableNames() {
			schema, ok := c.catalog.Schema(table)
			if !ok {
				continue
			}
			for _, rec := range frame.AccountState.Table(table) {
				for _, field := range sortedSchemaFields(schema) {
					spec := schema.Fields[field]
					if !rec.Has(field) {
						if spec.Required {
							report(i, table, rec, field, "required field is missing", "", "")
						}
						continue
					}
					switch spec.Type {
					case "number":
						if _, ok := rec.Number(field); !ok {
							report(i, table, rec, field, "field must be numeric", "number", fmt.Sprintf("%v", rec[field]))
						}
					case "string", "date", "datetime":
						if _, ok := rec[field].(string); !ok {
							report(i, table, rec, field, "field must be a string", spec.Type, fmt.Sprintf("%v", rec[field]))
						}
					}
					if len(spec.Enum) > 0 {
						val := rec.String(field)
						if val != "" && !contains(spec.Enum, val) {
							report(i, table, rec, field, "value is outside the allowed set", strings.Join(spec.Enum, ", "), fmt.Sprintf("%q", val))
						}
					}
				}
			}
		}
	}
	return findings
}

// referential checks cross-record references: remits must reference an
// existing claim, and transactions referencing a remit must reference
// one that exists in the same frame.
func (c *ConsistencyChecker) referential(s *scenario.Scenario) []Finding {
	var findings []Finding
	seen := make(map[string]bool)

	report := func(i int, table string, rec scenario.Record, field, ref, target string) {
		key := table + "/" + rec.ID() + "/" + ref
		if seen[key] {
			return
		}
		seen[key] = true
		findings = append(findings, Finding{
			Kind:       KindReferentialIntegrity,
			Severity:   SeverityHard,
			Transition: frameTransition(i),
			Path:       fmt.Sprintf("%s[%s].%s", table, rec.ID(), field),
			Message:    fmt.Sprintf("references %s %q which does not exist in this frame", target, ref),
		})
	}

	for i, frame := range s.Timeline {
		claimRefs := make(map[string]bool, len(frame.AccountState.Claims))
		for _, claim := range frame.AccountState.Claims {
			claimRefs[claim.ID()] = true
			if num := claim.String("claim_number"); num != "" {
				claimRefs[num] = true
			}
		}
		remitIDs := make(map[string]bool, len(frame.AccountState.Remits))
		for _, remit := range frame.AccountState.Remits {
			remitIDs[remit.ID()] = true
		}

		for _, remit := range frame.AccountState.Remits {
			if ref := remit.String("claim_reference"); ref != "" && !claimRefs[ref] {
				report(i, "remits", remit, "claim_reference", ref, "claim")
			}
		}
		for _, txn := range frame.AccountState.Transactions {
			ref := txn.String("reference")
			if strings.HasPrefix(ref, "RMT-") && !remitIDs[ref] {
				report(i, "transactions", txn, "reference", ref, "remit")
			}
		}
	}
	return findings
}

// deltaAnnotations audits the _delta bookkeeping the oracle writes onto
// records against the delta the engine computes itself. Disagreement
// never fails a scenario, because the computed delta is authoritative;
// it does signal a confused oracle worth telling.
func (c *ConsistencyChecker) deltaAnnotations(s *scenario.Scenario) []Finding {
	var findings []Finding

	for i := 1; i < len(s.Timeline); i++ {
		delta := Compute(s.Timeline[i-1].AccountState, s.Timeline[i].AccountState)

		added := make(map[string]bool)
		for table, recs := range delta.Added {
			for _, rec := range recs {
				added[table+"/"+rec.ID()] = true
			}
		}

		for _, table := range scenario.TableNames() {
			if table == "claims" {
				continue
			}
			for _, rec := range s.Timeline[i].AccountState.Table(table) {
				key := table + "/" + rec.ID()
				annotated := rec.Delta() == scenario.DeltaAdded
				if annotated == added[key] {
					continue
				}
				msg := "record is annotated _delta=added but existed in the previous frame"
				if !annotated {
					msg = "record is new in this frame but carries no _delta=added annotation"
				}
				findings = append(findings, Finding{
					Kind:       KindDeltaAnnotation,
					Severity:   SeverityAdvisory,
					Transition: i - 1,
					Path:       fmt.Sprintf("%s[%s]._delta", table, rec.ID()),
					Message:    msg,
				})
			}
		}

		claim := s.Timeline[i].AccountState.Claim()
		if len(delta.ClaimChanges) > 0 && claim.Delta() != scenario.DeltaUpdated {
			findings = append(findings, Finding{
				Kind:       KindDeltaAnnotation,
				Severity:   SeverityAdvisory,
				Transition: i - 1,
				Path:       fmt.Sprintf("claims[%s]._delta", claim.ID()),
				Message:    "claim fields changed but the record is not annotated _delta=updated",
			})
		}
	}
	return findings
}

// minNoteLength is the shortest note content that still reads as a real
// documentation entry rather than filler.
const minNoteLength = 15

// contentQuality flags notes that are too thin or copy-pasted to pass
// for real AR documentation.
func (c *ConsistencyChecker) contentQuality(s *scenario.Scenario) []Finding {
	var findings []Finding
	bodies := make(map[string]string)

	for i, frame := range s.Timeline {
		for _, note := range frame.AccountState.Notes {
			if note.Delta() != scenario.DeltaAdded && i > 0 {
				continue // only judge each note where it first appears
			}
			content := strings.TrimSpace(note.String("content"))
			if len(content) < minNoteLength {
				findings = append(findings, Finding{
					Kind:       KindContentQuality,
					Severity:   SeverityAdvisory,
					Transition: frameTransition(i),
					Path:       fmt.Sprintf("notes[%s].content", note.ID()),
					Message:    "note content is too short to document the action",
				})
				continue
			}
			normalized := strings.ToLower(content)
			if prior, dup := bodies[normalized]; dup && prior != note.ID() {
				findings = append(findings, Finding{
					Kind:       KindContentQuality,
					Severity:   SeverityAdvisory,
					Transition: frameTransition(i),
					Path:       fmt.Sprintf("notes[%s].content", note.ID()),
					Message:    fmt.Sprintf("note content duplicates note %s", prior),
				})
				continue
			}
			if _, ok := bodies[normalized]; !ok {
				bodies[normalized] = note.ID()
			}
		}
	}
	return findings
}

// frameTransition maps a frame index onto the transition that produced
// it. Frame 0 is initial state and has no producing transition, so its
// findings are sequence-scoped.
func frameTransition(frameIndex int) int {
	if frameIndex == 0 {
		return SequenceScope
	}
	return frameIndex - 1
}

func sortedSchemaFields(schema catalog.RecordSchema) []string {
	fields := make([]string, 0, len(schema.Fields))
	for f := range schema.Fields {
		fields = append(fields, f)
	}
	sort.Strings(fields)
	return fields
}

func contains(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}
