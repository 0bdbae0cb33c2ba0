package validate

import (
	"reflect"
	"sort"

	"github.com/clearbill/scengen/internal/scenario"
)

// FieldChange is one claim-record field whose value differs between two
// frames.
type FieldChange struct {
	Field string
	Old   any
	New   any
}

// MutatedEntity marks a transaction/note/remit record whose content
// changed in place between two frames. Entity tables are append-only
// within a transition; in-place changes are inconsistencies, not deltas.
type MutatedEntity struct {
	Table string
	ID    string
}

// Delta is the computed structural difference between two consecutive
// frames.
type Delta struct {
	// ClaimChanges lists changed claim-record fields, sorted by name.
	ClaimChanges []FieldChange

	// Added and Removed hold entity records keyed by table, sorted by
	// record id. Removal is a distinct, rare delta kind.
	Added   map[string][]scenario.Record
	Removed map[string][]scenario.Record

	// Mutated lists in-place entity changes.
	Mutated []MutatedEntity
}

// annotationFields carry delta bookkeeping, not record content.
var annotationFields = map[string]bool{
	"_delta":          true,
	"_changed_fields": true,
}

// Compute diffs two account states. The diff is pure: it never mutates
// either state, and its output ordering is deterministic regardless of
// input record order.
func Compute(prev, next scenario.AccountState) Delta {
	d := Delta{
		Added:   make(map[string][]scenario.Record),
		Removed: make(map[string][]scenario.Record),
	}

	d.ClaimChanges = diffRecord(prev.Claim(), next.Claim())

	claimID := next.Claim().ID()
	for _, table := range scenario.TableNames() {
		prevByID := indexByID(prev.Table(table))
		nextByID := indexByID(next.Table(table))

		for _, id := range sortedIDs(nextByID) {
			rec := nextByID[id]
			old, existed := prevByID[id]
			if !existed {
				if table == "claims" && id == claimID {
					continue // covered by the claim field diff
				}
				d.Added[table] = append(d.Added[table], rec)
				continue
			}
			if table == "claims" && id == claimID {
				continue
			}
			if len(diffRecord(old, rec)) > 0 {
				d.Mutated = append(d.Mutated, MutatedEntity{Table: table, ID: id})
			}
		}
		for _, id := range sortedIDs(prevByID) {
			if _, ok := nextByID[id]; !ok {
				d.Removed[table] = append(d.Removed[table], prevByID[id])
			}
		}
	}

	return d
}

// ChangedFields returns the set of changed claim-record field names.
func (d Delta) ChangedFields() map[string]FieldChange {
	out := make(map[string]FieldChange, len(d.ClaimChanges))
	for _, fc := range d.ClaimChanges {
		out[fc.Field] = fc
	}
	return out
}

func diffRecord(old, cur scenario.Record) []FieldChange {
	fields := make(map[string]bool, len(old)+len(cur))
	for f := range old {
		fields[f] = true
	}
	for f := range cur {
		fields[f] = true
	}

	var changes []FieldChange
	for field := range fields {
		if annotationFields[field] {
			continue
		}
		oldVal, hadOld := old[field]
		newVal, hasNew := cur[field]
		if hadOld != hasNew || !reflect.DeepEqual(oldVal, newVal) {
			changes = append(changes, FieldChange{Field: field, Old: oldVal, New: newVal})
		}
	}
	sort.Slice(changes, func(i, j int) bool { return changes[i].Field < changes[j].Field })
	return changes
}

func indexByID(records []scenario.Record) map[string]scenario.Record {
	out := make(map[string]scenario.Record, len(records))
	for _, rec := range records {
		if id := rec.ID(); id != "" {
			out[id] = rec
		}
	}
	return out
}

func sortedIDs(m map[string]scenario.Record) []string {
	ids := make([]string, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
