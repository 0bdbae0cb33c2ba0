// Package prompt builds the system, generation and repair prompts sent
// to the oracle. Prompt text is assembled from the catalog and rulebook
// so the oracle always sees the same reference data the validator
// enforces.
package prompt

import (
	"embed"
	"fmt"
	"strings"

	"github.com/clearbill/scengen/internal/catalog"
	"github.com/clearbill/scengen/internal/rulebook"
)

//go:embed examples/*.json
var examplesFS embed.FS

const systemBase = `You are an expert in Healthcare Revenue Cycle Management (RCM), specifically in Accounts Receivable (AR) billing operations. You have deep knowledge of:

- Medical billing codes (CPT, ICD-10, HCPCS)
- Claim Adjustment Reason Codes (CARC) and Remittance Advice Remark Codes (RARC)
- Payer contracts, denials, and appeals processes
- AR billing workflows and operator actions
- Healthcare financial transactions and reconciliation

Your task is to generate realistic AR billing scenarios that represent the lifecycle of an account from when it lands on a billing operator's workqueue through resolution.

Each scenario you generate must:
1. Follow the exact JSON schema provided
2. Be logically consistent (actions have valid preconditions, state changes are correct)
3. Be temporally consistent (dates in chronological order)
4. Be financially consistent (the claim balance equals the transaction ledger in every frame)
5. Include realistic, substantive content (detailed notes, proper denial descriptions)
6. Track changes with _delta fields (added, updated, null) and _changed_fields lists`

const constraintsText = `# LOGICAL CONSTRAINTS

The generated scenario MUST satisfy all of these constraints:

## TEMPORAL
  - All frame timestamps must be in chronological order
  - service_date must be on or before all other dates
  - denial_date must be after submission_date
  - appeal_date must be after denial_date

## FINANCIAL
  - Initial charge transaction amount must equal billed_amount
  - The claim balance must equal the transaction ledger in every frame
  - payment and adjustment amounts reduce the balance (emit them negative)
  - paid_amount + contractual_adjustment + patient_responsibility should equal billed_amount when resolved

## STATE TRANSITIONS
  - Claim status only moves through valid paths (denied -> appeal_submitted -> appeal_approved/appeal_denied)
  - Cannot submit an appeal unless the claim is denied
  - Cannot write off an account whose balance is already zero
  - Transactions, notes and remits are append-only: never edit one after it appears

## DELTA TRACKING
  - Records that change between frames must carry _delta="updated" with _changed_fields populated
  - New records must carry _delta="added"
  - Unchanged records carry _delta=null

## REFERENTIAL INTEGRITY
  - remit.claim_reference must match an existing claim
  - transaction references to remits must name a remit that exists in the frame

## CONTENT
  - Notes must be substantive and describe the action taken
  - Action notes must mention the denial code being addressed
  - Event descriptions should explain what triggered the event`

// Options tune what reference material the prompts carry.
type Options struct {
	IncludeSchemas bool
	IncludeFewShot bool
}

// Builder assembles prompts from the shared reference data.
type Builder struct {
	catalog *catalog.Catalog
	rules   *rulebook.Rulebook
	opts    Options
}

// NewBuilder wires a prompt builder.
func NewBuilder(cat *catalog.Catalog, rules *rulebook.Rulebook, opts Options) *Builder {
	return &Builder{catalog: cat, rules: rules, opts: opts}
}

// Seed carries the generation parameters for one scenario.
type Seed struct {
	Denial       catalog.DenialCode
	Payer        catalog.Payer
	Complexity   string
	ServiceType  string
	Instructions string
}

// System builds the system prompt, optionally inlining the record
// schemas, denial catalog, action rulebook and logical constraints.
func (b *Builder) System() string {
	if !b.opts.IncludeSchemas {
		return systemBase
	}
	var sb strings.Builder
	sb.WriteString(systemBase)
	sb.WriteString("\n\n")
	sb.WriteString(b.catalog.SchemaText())
	sb.WriteString("\n")
	sb.WriteString(b.catalog.DenialText())
	sb.WriteString("\n")
	sb.WriteString(b.rules.Text())
	sb.WriteString("\n")
	sb.WriteString(constraintsText)
	return sb.String()
}

// Generation builds the user prompt for one scenario seed.
func (b *Builder) Generation(seed Seed) string {
	var sb strings.Builder
	sb.WriteString("Generate a realistic AR billing scenario based on the following seed:\n\n")
	sb.WriteString("## SEED PARAMETERS\n")
	fmt.Fprintf(&sb, "- Denial Code: %s\n", seed.Denial.Code)
	fmt.Fprintf(&sb, "- Denial Description: %s\n", seed.Denial.Description)
	fmt.Fprintf(&sb, "- Payer: %s (%s)\n", seed.Payer.Name, seed.Payer.Code)
	fmt.Fprintf(&sb, "- Complexity: %s\n", seed.Complexity)
	fmt.Fprintf(&sb, "- Service Type: %s\n\n", seed.ServiceType)

	sb.WriteString("## TYPICAL RESOLUTION PATH\n")
	fmt.Fprintf(&sb, "- Typical Actions: %s\n", strings.Join(seed.Denial.TypicalActions, ", "))
	docs := "None"
	if len(seed.Denial.DocumentationNeeded) > 0 {
		docs = strings.Join(seed.Denial.DocumentationNeeded, ", ")
	}
	fmt.Fprintf(&sb, "- Documentation Needed: %s\n", docs)
	fmt.Fprintf(&sb, "- Appeal Success Rate: %.0f%%\n", seed.Denial.AppealSuccessRate*100)
	fmt.Fprintf(&sb, "- Average Resolution Days: %d\n\n", seed.Denial.AvgResolutionDays)

	sb.WriteString(`## REQUIREMENTS

1. Structure: follow the exact JSON schema provided in the system prompt.

2. Timeline:
   - Frame 1: account drops to workqueue (initial state after denial)
   - Frame 2+: operator actions and/or async events leading to resolution
   - Include realistic time gaps between frames (hours to weeks depending on action)
   - Every operator or payer action frame must set event.action_taken to a rulebook action name

3. Logical consistency:
   - Actions must satisfy preconditions (e.g. cannot appeal a paid claim)
   - State changes must reflect action postconditions
   - Every frame's claim balance must equal its transaction ledger
   - Entity records (transactions, notes, remits) are append-only: never edit one after it appears

4. Content quality:
   - Generate realistic patient demographics (diverse names, ages)
   - Use appropriate CPT codes for the service type
   - Write detailed, realistic notes that an actual billing operator would write
   - Include specific details like check numbers and appeal references

5. Delta tracking:
   - New records: _delta = "added"
   - Modified claim record: _delta = "updated" with _changed_fields
   - Unchanged records: _delta = null

## OUTPUT FORMAT
Return ONLY valid JSON matching the scenario schema. Do not include any text before or after the JSON.
`)

	if b.opts.IncludeFewShot {
		sb.WriteString("\n## EXAMPLE\nHere is a correctly formatted scenario:\n\n")
		sb.WriteString("```json\n")
		sb.Write(fewShotExample())
		sb.WriteString("\n```\n")
	}
	if seed.Instructions != "" {
		sb.WriteString("\n")
		sb.WriteString(seed.Instructions)
		sb.WriteString("\n")
	}
	sb.WriteString("\nGenerate the scenario now:\n")
	return sb.String()
}

// Repair builds the user prompt for one repair attempt: the failing
// scenario verbatim plus the hard-finding diagnostics.
func (b *Builder) Repair(scenarioJSON, diagnostics string) string {
	var sb strings.Builder
	sb.WriteString("The following AR billing scenario has validation errors that need to be fixed.\n\n")
	sb.WriteString("## ORIGINAL SCENARIO\n```json\n")
	sb.WriteString(scenarioJSON)
	sb.WriteString("\n```\n\n")
	sb.WriteString("## VALIDATION ERRORS\nThe following issues were found:\n\n")
	sb.WriteString(diagnostics)
	sb.WriteString(`

## REPAIR INSTRUCTIONS
Fix ALL the validation errors above while:
1. Maintaining the overall narrative and intent of the scenario
2. Preserving all correct data and structure
3. Making minimal changes necessary to fix each error
4. Ensuring the repaired scenario passes all validation checks

## OUTPUT FORMAT
Return ONLY the corrected JSON. Do not include any explanation or text outside the JSON.

Corrected scenario:
`)
	return sb.String()
}

func fewShotExample() []byte {
	raw, err := examplesFS.ReadFile("examples/co16_appeal.json")
	if err != nil {
		// The example ships inside the binary; a missing file is a
		// build defect, not a runtime condition.
		panic(err)
	}
	return raw
}
