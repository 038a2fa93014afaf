package spoke

import (
	"fmt"
	"slices"
	"strings"

	"github.com/cespare/xxhash/v2"
	"github.com/oliverbestmann/ecsdb/internal/set"
)

type Constraint uint8

const (
	// Some is accepted and becomes part of the query key, but has no effect
	// on the results.
	Some Constraint = iota

	// All requires every label: (mask & target) == target
	All

	// Any requires at least one label: (mask & target) != 0
	Any

	// None excludes every label: (mask & target) == 0
	None
)

func (c Constraint) String() string {
	switch c {
	case Some:
		return "some"
	case All:
		return "all"
	case Any:
		return "any"
	case None:
		return "none"
	default:
		return fmt.Sprintf("Constraint(%d)", uint8(c))
	}
}

type Step struct {
	Constraint Constraint
	Kind       IdentifierKind
	Labels     []string
}

// QueryBuilder accumulates constraint steps. Labels added with the same constraint
// and kind as the previous call are merged into the same step.
type QueryBuilder struct {
	steps []Step
	open  *Step
	key   strings.Builder
}

func (b *QueryBuilder) Add(constraint Constraint, kind IdentifierKind, labels ...string) *QueryBuilder {
	if len(labels) == 0 {
		return b
	}

	if b.open != nil && (b.open.Constraint != constraint || b.open.Kind != kind) {
		b.flush()
	}

	if b.open == nil {
		b.open = &Step{Constraint: constraint, Kind: kind}
	}

	b.open.Labels = append(b.open.Labels, labels...)

	return b
}

func (b *QueryBuilder) flush() {
	if b.open == nil {
		return
	}

	step := *b.open
	b.open = nil

	b.steps = append(b.steps, step)
	writeStepKey(&b.key, step)
}

func writeStepKey(sb *strings.Builder, step Step) {
	sb.WriteString(step.Constraint.String())
	sb.WriteByte('|')
	sb.WriteString(step.Kind.String())
	sb.WriteByte(':')
	sb.WriteString(strings.Join(step.Labels, ","))
	sb.WriteString("::")
}

// Build compiles all steps added so far. The builder stays usable.
func (b *QueryBuilder) Build() CompiledQuery {
	b.flush()

	key := b.key.String()

	steps := make([]Step, len(b.steps))
	for idx, step := range b.steps {
		steps[idx] = Step{Constraint: step.Constraint, Kind: step.Kind, Labels: slices.Clone(step.Labels)}
	}

	return CompiledQuery{
		Key:   key,
		Hash:  xxhash.Sum64String(key),
		Steps: steps,
	}
}

// CompiledQuery is the canonical form of a query. Two compiled queries with the
// same Key describe the same constraints.
type CompiledQuery struct {
	Key   string
	Hash  uint64
	Steps []Step
}

func (c CompiledQuery) String() string {
	return c.Key
}

// targets are the resolved form of a CompiledQuery.
type targets struct {
	all, any, none          Bitmask
	hasAll, hasAny, hasNone bool

	// labels of array capable types a matching entity needs at least one instance of
	arrays set.Set[string]

	// labels of single valued types the query asks for
	singles set.Set[string]
}

// resolve folds the steps into one target per constraint. Some steps are skipped.
// Labels unknown to the registry are returned, the targets are only usable if
// there are none.
func (c *CompiledQuery) resolve(registry *Registry) (targets, []string) {
	var t targets
	var unresolved []string

	for _, step := range c.Steps {
		if step.Constraint == Some {
			// reserved, part of the key only
			continue
		}

		for _, label := range step.Labels {
			name, array := label, false
			if step.Kind == ComponentKind {
				name, array = parseQueryLabel(label)

				switch {
				case step.Constraint == None:
					// excluded types are never inspected structurally

				case array && step.Constraint != Any:
					t.arrays.Insert(name)

				case !array:
					t.singles.Insert(name)
				}
			}

			bit, ok := registry.Resolve(step.Kind, name)
			if !ok {
				unresolved = append(unresolved, label)
				continue
			}

			switch step.Constraint {
			case All:
				t.all, t.hasAll = t.all.Or(bit), true
			case Any:
				t.any, t.hasAny = t.any.Or(bit), true
			case None:
				t.none, t.hasNone = t.none.Or(bit), true
			}
		}
	}

	return t, unresolved
}

// matchesMask tests a mask against the folded targets.
func (t *targets) matchesMask(mask Bitmask) bool {
	if t.hasAll && !mask.ContainsAll(t.all) {
		return false
	}

	if t.hasAny && !mask.ContainsAny(t.any) {
		return false
	}

	if t.hasNone && mask.ContainsAny(t.none) {
		return false
	}

	return true
}

// matchesStructure runs the precise array check on an entity that passed the mask test.
func (t *targets) matchesStructure(c *container) bool {
	if t.arrays.Len() > 0 {
		for label := range t.arrays.Values() {
			if len(c.instances[label]) == 0 {
				return false
			}
		}

		return true
	}

	if t.singles.Len() == 0 {
		return true
	}

	// array instances must not overlap with the single valued labels of the query
	for _, ty := range c.types {
		if ty.Array && len(c.instances[ty.Label]) > 0 && t.singles.Has(ty.Label) {
			return false
		}
	}

	return true
}
