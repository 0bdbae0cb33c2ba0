// Package rulebook loads the declarative catalog of allowed actions.
// Each action names its preconditions (checks against the prior frame)
// and postconditions (expected deltas into the next frame). The rulebook
// is loaded once, type-checked, and immutable afterwards.
package rulebook

import (
	_ "embed"
	"fmt"
	"sort"
	"strings"

	"github.com/go-viper/mapstructure/v2"
	"gopkg.in/yaml.v3"
)

//go:embed actions.yaml
var defaultActionsYAML []byte

// Delta kinds a postcondition may declare.
const (
	DeltaUpdated = "updated"
	DeltaAdded   = "added"
	DeltaRemoved = "removed"
)

// SchemaError reports a malformed action definition. It is fatal at
// load time; no oracle calls happen after one.
type SchemaError struct {
	Action string
	Reason string
}

func (e *SchemaError) Error() string {
	if e.Action == "" {
		return "rulebook: " + e.Reason
	}
	return fmt.Sprintf("rulebook: action %q: %s", e.Action, e.Reason)
}

// UnknownActionError reports a lookup of an action the rulebook does
// not define.
type UnknownActionError struct {
	Action string
}

func (e *UnknownActionError) Error() string {
	return fmt.Sprintf("rulebook: unknown action %q", e.Action)
}

// Precondition is one named check against the prior frame.
type Precondition struct {
	Name        string
	Check       string         `mapstructure:"check"`
	MustBeIn    []string       `mapstructure:"must_be_in"`
	Description string         `mapstructure:"description"`
	Params      map[string]any `mapstructure:",remain"`
}

// CheckType is the predicate-registry key for this precondition:
// the condition name qualified by its check, e.g.
// "claim_status.must_be_in" or "no_pending_appeal.appeal_reference_is_null".
func (p Precondition) CheckType() string {
	if len(p.MustBeIn) > 0 {
		return p.Name + ".must_be_in"
	}
	if p.Check != "" {
		return p.Name + "." + p.Check
	}
	return p.Name
}

// Postcondition is one named expectation on the delta between the
// prior and next frame.
type Postcondition struct {
	Name          string
	Delta         string         `mapstructure:"_delta"`
	ChangedFields []string       `mapstructure:"_changed_fields"`
	Required      bool           `mapstructure:"required"`
	MustContain   []string       `mapstructure:"must_contain"`
	Check         string         `mapstructure:"check"`
	Expect        map[string]any `mapstructure:",remain"`

	// Table is the account-state table the postcondition targets,
	// inferred from the postcondition name at load time.
	Table string
}

// Advisory reports whether the postcondition is a named check with no
// native delta semantics; such postconditions surface as unverified
// findings rather than being enforced.
func (p Postcondition) Advisory() bool {
	return p.Delta == "" && p.Check != ""
}

// ActionDefinition is one allowed action with its contract.
type ActionDefinition struct {
	Name           string
	Description    string
	Actor          string
	Preconditions  []Precondition
	Postconditions []Postcondition
}

// Rulebook is the loaded, immutable action catalog.
type Rulebook struct {
	actions map[string]ActionDefinition
}

type rawAction struct {
	Action         string                    `yaml:"action"`
	Description    string                    `yaml:"description"`
	Actor          string                    `yaml:"actor"`
	Preconditions  map[string]map[string]any `yaml:"preconditions"`
	Postconditions map[string]map[string]any `yaml:"postconditions"`
}

// Default loads the embedded action catalog.
func Default() (*Rulebook, error) {
	return Load(defaultActionsYAML)
}

// Load parses and type-checks action definitions from YAML.
func Load(raw []byte) (*Rulebook, error) {
	var parsed map[string]rawAction
	if err := yaml.Unmarshal(raw, &parsed); err != nil {
		return nil, &SchemaError{Reason: fmt.Sprintf("parse action definitions: %v", err)}
	}
	if len(parsed) == 0 {
		return nil, &SchemaError{Reason: "no action definitions"}
	}

	actions := make(map[string]ActionDefinition, len(parsed))
	for name, ra := range parsed {
		def, err := buildAction(name, ra)
		if err != nil {
			return nil, err
		}
		actions[name] = def
	}
	return &Rulebook{actions: actions}, nil
}

func buildAction(name string, ra rawAction) (ActionDefinition, error) {
	if ra.Action != "" && ra.Action != name {
		return ActionDefinition{}, &SchemaError{Action: name, Reason: fmt.Sprintf("action field %q does not match key", ra.Action)}
	}
	switch ra.Actor {
	case "operator", "system":
	case "":
		return ActionDefinition{}, &SchemaError{Action: name, Reason: "missing actor"}
	default:
		return ActionDefinition{}, &SchemaError{Action: name, Reason: fmt.Sprintf("unknown actor %q", ra.Actor)}
	}

	def := ActionDefinition{
		Name:        name,
		Description: ra.Description,
		Actor:       ra.Actor,
	}

	for _, condName := range sortedKeys(ra.Preconditions) {
		var pre Precondition
		if err := decode(ra.Preconditions[condName], &pre); err != nil {
			return ActionDefinition{}, &SchemaError{Action: name, Reason: fmt.Sprintf("precondition %q: %v", condName, err)}
		}
		pre.Name = condName
		def.Preconditions = append(def.Preconditions, pre)
	}

	for _, condName := range sortedKeys(ra.Postconditions) {
		var post Postcondition
		if err := decode(ra.Postconditions[condName], &post); err != nil {
			return ActionDefinition{}, &SchemaError{Action: name, Reason: fmt.Sprintf("postcondition %q: %v", condName, err)}
		}
		post.Name = condName
		switch post.Delta {
		case DeltaUpdated, DeltaAdded, DeltaRemoved:
			post.Table = inferTable(condName)
			if post.Table == "" {
				return ActionDefinition{}, &SchemaError{Action: name, Reason: fmt.Sprintf("postcondition %q: cannot infer target table", condName)}
			}
		case "":
			if post.Check == "" {
				return ActionDefinition{}, &SchemaError{Action: name, Reason: fmt.Sprintf("postcondition %q: declares neither _delta nor check", condName)}
			}
		default:
			return ActionDefinition{}, &SchemaError{Action: name, Reason: fmt.Sprintf("postcondition %q: unknown delta kind %q", condName, post.Delta)}
		}
		def.Postconditions = append(def.Postconditions, post)
	}

	return def, nil
}

func decode(src map[string]any, dst any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           dst,
		WeaklyTypedInput: true,
	})
	if err != nil {
		return err
	}
	return dec.Decode(src)
}

// inferTable maps a postcondition name onto the account-state table it
// targets. Claim updates address the claim record; new_* postconditions
// address the entity table they name.
func inferTable(name string) string {
	switch {
	case strings.Contains(name, "claim"):
		return "claims"
	case strings.Contains(name, "transaction"):
		return "transactions"
	case strings.Contains(name, "note"):
		return "notes"
	case strings.Contains(name, "remit"):
		return "remits"
	case strings.Contains(name, "demographic"):
		return "demographics"
	default:
		return ""
	}
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Get looks up an action definition.
func (r *Rulebook) Get(name string) (ActionDefinition, error) {
	def, ok := r.actions[name]
	if !ok {
		return ActionDefinition{}, &UnknownActionError{Action: name}
	}
	return def, nil
}

// Actions lists the defined action names, sorted.
func (r *Rulebook) Actions() []string {
	return sortedKeys(r.actions)
}

// Text renders the rulebook for oracle context.
func (r *Rulebook) Text() string {
	var b strings.Builder
	b.WriteString("# ACTION DEFINITIONS\n\n")
	for _, name := range r.Actions() {
		def := r.actions[name]
		fmt.Fprintf(&b, "## %s\nDescription: %s\nActor: %s\n\nPreconditions:\n", name, def.Description, def.Actor)
		for _, pre := range def.Preconditions {
			desc := pre.Description
			if desc == "" {
				desc = pre.CheckType()
			}
			fmt.Fprintf(&b, "  - %s: %s\n", pre.Name, desc)
			if len(pre.MustBeIn) > 0 {
				fmt.Fprintf(&b, "    Allowed values: %s\n", strings.Join(pre.MustBeIn, ", "))
			}
		}
		b.WriteString("\nPostconditions:\n")
		for _, post := range def.Postconditions {
			if post.Advisory() {
				fmt.Fprintf(&b, "  - %s: check %s\n", post.Name, post.Check)
				continue
			}
			fmt.Fprintf(&b, "  - %s: _delta=%s table=%s", post.Name, post.Delta, post.Table)
			if len(post.ChangedFields) > 0 {
				fmt.Fprintf(&b, " changed_fields=%s", strings.Join(post.ChangedFields, ","))
			}
			if len(post.MustContain) > 0 {
				fmt.Fprintf(&b, " must_contain=%s", strings.Join(post.MustContain, ","))
			}
			b.WriteString("\n")
			for _, field := range sortedKeys(post.Expect) {
				fmt.Fprintf(&b, "    %s: %v\n", field, post.Expect[field])
			}
		}
		b.WriteString("\n")
	}
	return b.String()
}
