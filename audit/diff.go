package audit

import "strings"

const (
	// FieldActive is the field name every snapshot uses for its status flag.
	FieldActive = "active"

	redacted = "[redacted]"
	noValue  = "(none)"
	arrow    = " → "
)

// Field is one audited attribute of a snapshot, already rendered to text.
// Sensitive fields take part in comparison but are never rendered.
type Field struct {
	Name      string
	Value     string
	Sensitive bool
}

// Snapshot is implemented by every audited entity. AuditFields must return
// the same names in the same order for every value of a given kind.
type Snapshot interface {
	AuditKind() Entity
	AuditID() string
	AuditSubject() string
	AuditActive() bool
	AuditFields() []Field
}

// Change is a single field difference between two snapshots.
type Change struct {
	Field     string
	Old       string
	New       string
	Sensitive bool
}

// String renders c as "field: old → new".
func (c Change) String() string {
	if c.Sensitive {
		return c.Field + ": " + redacted + arrow + redacted
	}
	return c.Field + ": " + display(c.Old) + arrow + display(c.New)
}

func display(v string) string {
	if v == "" {
		return noValue
	}
	return v
}

// Diff compares before and after field by field in after's declared order.
// Fields missing from before are compared against the empty value.
func Diff(before, after Snapshot) []Change {
	prev := make(map[string]string)
	for _, f := range before.AuditFields() {
		prev[f.Name] = f.Value
	}

	var changes []Change
	for _, f := range after.AuditFields() {
		old := prev[f.Name]
		if old == f.Value {
			continue
		}
		changes = append(changes, Change{
			Field:     f.Name,
			Old:       old,
			New:       f.Value,
			Sensitive: f.Sensitive,
		})
	}
	return changes
}

// Describe joins changes one per line, skipping the named fields.
func Describe(changes []Change, skip ...string) string {
	lines := make([]string, 0, len(changes))
outer:
	for _, c := range changes {
		for _, s := range skip {
			if c.Field == s {
				continue outer
			}
		}
		lines = append(lines, c.String())
	}
	return strings.Join(lines, "\n")
}
