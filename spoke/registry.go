package spoke

import (
	"fmt"

	"go.uber.org/zap"
)

type IdentifierKind uint8

const (
	ComponentKind IdentifierKind = iota
	TagKind
)

func (k IdentifierKind) String() string {
	switch k {
	case ComponentKind:
		return "component"
	case TagKind:
		return "tag"
	default:
		return fmt.Sprintf("IdentifierKind(%d)", uint8(k))
	}
}

func ParseIdentifierKind(value string) (IdentifierKind, error) {
	switch value {
	case "component":
		return ComponentKind, nil
	case "tag":
		return TagKind, nil
	default:
		return 0, fmt.Errorf("%w: unknown identifier kind %q", ErrRegistryConflict, value)
	}
}

// Identifier binds a label to the bit position it occupies in every Bitmask of a Storage.
type Identifier struct {
	Kind     IdentifierKind
	Label    string
	Position int
}

func (id Identifier) String() string {
	return fmt.Sprintf("%s:%s@%d", id.Kind, id.Label, id.Position)
}

type identifierKey struct {
	kind  IdentifierKind
	label string
}

// Registry assigns bit positions to component type labels and tag labels in
// first-seen order. A position, once assigned, is never changed or reused.
type Registry struct {
	positions   map[identifierKey]int
	identifiers []Identifier
	log         *zap.Logger
}

func NewRegistry(log *zap.Logger) *Registry {
	if log == nil {
		log = zap.NewNop()
	}

	return &Registry{
		positions: map[identifierKey]int{},
		log:       log,
	}
}

// Resolve returns the single bit mask of a label, or false if the label was never registered.
func (r *Registry) Resolve(kind IdentifierKind, label string) (Bitmask, bool) {
	pos, ok := r.Position(kind, label)
	if !ok {
		return Bitmask{}, false
	}

	return BitmaskOf(pos), true
}

func (r *Registry) Position(kind IdentifierKind, label string) (int, bool) {
	pos, ok := r.positions[identifierKey{kind: kind, label: label}]
	return pos, ok
}

// GetOrAssign returns the single bit mask of a label, registering the label first if needed.
func (r *Registry) GetOrAssign(kind IdentifierKind, label string) Bitmask {
	return BitmaskOf(r.assign(kind, label))
}

func (r *Registry) assign(kind IdentifierKind, label string) int {
	key := identifierKey{kind: kind, label: label}
	if pos, ok := r.positions[key]; ok {
		return pos
	}

	pos := len(r.identifiers)
	r.positions[key] = pos
	r.identifiers = append(r.identifiers, Identifier{Kind: kind, Label: label, Position: pos})

	r.log.Debug(
		"New identifier registered",
		zap.Stringer("kind", kind),
		zap.String("label", label),
		zap.Int("position", pos),
	)

	return pos
}

// Restore registers identifiers at the given positions. Identifiers that are already
// registered at the same position are accepted, anything else is a conflict.
func (r *Registry) Restore(identifiers []Identifier) error {
	// validate everything first, the registry must not be left half updated
	byPosition := map[int]Identifier{}
	for _, id := range r.identifiers {
		byPosition[id.Position] = id
	}

	for _, id := range identifiers {
		if id.Position < 0 {
			return fmt.Errorf("%w: negative position for %s", ErrRegistryConflict, id)
		}

		if existing, ok := byPosition[id.Position]; ok && (existing.Kind != id.Kind || existing.Label != id.Label) {
			return fmt.Errorf("%w: position %d is taken by %s", ErrRegistryConflict, id.Position, existing)
		}

		if pos, ok := r.Position(id.Kind, id.Label); ok && pos != id.Position {
			return fmt.Errorf("%w: %s is registered at position %d", ErrRegistryConflict, id, pos)
		}

		byPosition[id.Position] = id
	}

	for _, id := range identifiers {
		if _, ok := r.Position(id.Kind, id.Label); ok {
			continue
		}

		r.positions[identifierKey{kind: id.Kind, label: id.Label}] = id.Position
	}

	// rebuild the dense identifier table. gaps are filled with placeholders so
	// that newly assigned identifiers never collide with a restored position.
	size := 0
	for pos := range byPosition {
		size = max(size, pos+1)
	}

	table := make([]Identifier, size)
	for pos := range table {
		if id, ok := byPosition[pos]; ok {
			table[pos] = id
		} else {
			table[pos] = Identifier{Kind: TagKind, Label: reservedLabel(pos), Position: pos}
			r.positions[identifierKey{kind: TagKind, label: reservedLabel(pos)}] = pos
		}
	}

	r.identifiers = table

	return nil
}

func reservedLabel(pos int) string {
	return fmt.Sprintf("\x00reserved-%d", pos)
}

func (r *Registry) Len() int {
	return len(r.identifiers)
}

// Identifiers returns a snapshot of all identifiers in position order.
func (r *Registry) Identifiers() []Identifier {
	return append([]Identifier(nil), r.identifiers...)
}

// Label returns the identifier occupying the given position.
func (r *Registry) Label(pos int) (Identifier, bool) {
	if pos < 0 || pos >= len(r.identifiers) {
		return Identifier{}, false
	}

	return r.identifiers[pos], true
}
