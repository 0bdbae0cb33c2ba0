// Package catalog holds the static reference data the generator and
// validator share: the denial-code catalog, the payer catalog and the
// record-field schemas. Catalogs are loaded once from embedded YAML and
// are read-only afterwards, so they are safe to share across concurrent
// generation jobs without locking.
package catalog

import (
	"embed"
	"fmt"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed data/*.yaml
var dataFS embed.FS

// DenialCode describes one CARC denial code.
type DenialCode struct {
	Code                string   `yaml:"code"`
	Group               string   `yaml:"group"`
	Description         string   `yaml:"description"`
	Category            string   `yaml:"category"`
	CommonCauses        []string `yaml:"common_causes"`
	TypicalActions      []string `yaml:"typical_actions"`
	DocumentationNeeded []string `yaml:"documentation_needed"`
	AppealSuccessRate   float64  `yaml:"appeal_success_rate"`
	AvgResolutionDays   int      `yaml:"avg_resolution_days"`
	Urgency             string   `yaml:"urgency"`
}

// Payer is one entry of the payer catalog.
type Payer struct {
	Name string `yaml:"name"`
	Code string `yaml:"code"`
}

// FieldSpec describes one field of a record schema.
type FieldSpec struct {
	Type        string   `yaml:"type"`
	Required    bool     `yaml:"required"`
	Description string   `yaml:"description"`
	Pattern     string   `yaml:"pattern"`
	Format      string   `yaml:"format"`
	Enum        []string `yaml:"enum"`
}

// RecordSchema describes one account-state table.
type RecordSchema struct {
	Description string               `yaml:"description"`
	Fields      map[string]FieldSpec `yaml:"fields"`
}

// Catalog is the loaded, immutable reference data set.
type Catalog struct {
	denials map[string]DenialCode
	payers  []Payer
	schemas map[string]RecordSchema
}

// Load parses the embedded catalog data. Call once at startup; the
// returned Catalog is shared by reference afterwards.
func Load() (*Catalog, error) {
	c := &Catalog{}

	var denials map[string]DenialCode
	if err := loadYAML("data/denial_codes.yaml", &denials); err != nil {
		return nil, err
	}
	for code, entry := range denials {
		if entry.Code != "" && entry.Code != code {
			return nil, fmt.Errorf("denial catalog: key %q names code %q", code, entry.Code)
		}
		entry.Code = code
		denials[code] = entry
	}
	c.denials = denials

	var payers []Payer
	if err := loadYAML("data/payers.yaml", &payers); err != nil {
		return nil, err
	}
	seen := make(map[string]bool, len(payers))
	for _, p := range payers {
		if p.Code == "" || p.Name == "" {
			return nil, fmt.Errorf("payer catalog: entry %+v missing name or code", p)
		}
		if seen[p.Code] {
			return nil, fmt.Errorf("payer catalog: duplicate code %q", p.Code)
		}
		seen[p.Code] = true
	}
	c.payers = payers

	var schemas map[string]RecordSchema
	if err := loadYAML("data/record_schemas.yaml", &schemas); err != nil {
		return nil, err
	}
	c.schemas = schemas

	return c, nil
}

func loadYAML(path string, out any) error {
	raw, err := dataFS.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	return nil
}

// Denial looks up a denial code.
func (c *Catalog) Denial(code string) (DenialCode, bool) {
	d, ok := c.denials[code]
	return d, ok
}

// DenialCodes returns all known codes, sorted.
func (c *Catalog) DenialCodes() []string {
	codes := make([]string, 0, len(c.denials))
	for code := range c.denials {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	return codes
}

// Payer looks up a payer by code.
func (c *Catalog) Payer(code string) (Payer, bool) {
	for _, p := range c.payers {
		if p.Code == code {
			return p, true
		}
	}
	return Payer{}, false
}

// Payers returns the payer catalog in file order.
func (c *Catalog) Payers() []Payer {
	return c.payers
}

// Schema returns the record schema for an account-state table.
func (c *Catalog) Schema(table string) (RecordSchema, bool) {
	s, ok := c.schemas[table]
	return s, ok
}

// SchemaTables lists the tables that carry a record schema, sorted.
func (c *Catalog) SchemaTables() []string {
	tables := make([]string, 0, len(c.schemas))
	for name := range c.schemas {
		tables = append(tables, name)
	}
	sort.Strings(tables)
	return tables
}

// DenialText renders the denial catalog for oracle context.
func (c *Catalog) DenialText() string {
	var b strings.Builder
	b.WriteString("# DENIAL CODE CATALOG\n\n")
	for _, code := range c.DenialCodes() {
		d := c.denials[code]
		fmt.Fprintf(&b, "## %s: %s\n", d.Code, d.Description)
		fmt.Fprintf(&b, "Category: %s\n", d.Category)
		fmt.Fprintf(&b, "Common causes: %s\n", strings.Join(d.CommonCauses, ", "))
		fmt.Fprintf(&b, "Typical actions: %s\n", strings.Join(d.TypicalActions, ", "))
		docs := "None"
		if len(d.DocumentationNeeded) > 0 {
			docs = strings.Join(d.DocumentationNeeded, ", ")
		}
		fmt.Fprintf(&b, "Documentation needed: %s\n", docs)
		fmt.Fprintf(&b, "Appeal success rate: %.0f%%\n", d.AppealSuccessRate*100)
		fmt.Fprintf(&b, "Avg resolution days: %d\n\n", d.AvgResolutionDays)
	}
	return b.String()
}

// SchemaText renders the record schemas for oracle context.
func (c *Catalog) SchemaText() string {
	var b strings.Builder
	b.WriteString("# RECORD SCHEMAS\n\n")
	for _, table := range c.SchemaTables() {
		schema := c.schemas[table]
		fmt.Fprintf(&b, "## %s\n%s\n\nFields:\n", strings.ToUpper(table), schema.Description)
		fields := make([]string, 0, len(schema.Fields))
		for name := range schema.Fields {
			fields = append(fields, name)
		}
		sort.Strings(fields)
		for _, name := range fields {
			spec := schema.Fields[name]
			req := "optional"
			if spec.Required {
				req = "required"
			}
			fmt.Fprintf(&b, "  - %s: %s (%s)\n", name, spec.Type, req)
			if spec.Description != "" {
				fmt.Fprintf(&b, "    Description: %s\n", spec.Description)
			}
			if len(spec.Enum) > 0 {
				fmt.Fprintf(&b, "    Valid values: %s\n", strings.Join(spec.Enum, ", "))
			}
		}
		b.WriteString("\n")
	}
	return b.String()
}
