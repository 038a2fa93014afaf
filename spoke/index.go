package spoke

import (
	"fmt"
	"slices"
)

type ChangeOp uint8

const (
	// EntityAdded is journaled when an entity enters a bucket.
	EntityAdded ChangeOp = iota

	// EntityRemoved is journaled when an entity leaves a bucket.
	EntityRemoved

	// EntityTouched is journaled when the structure of an entity changed
	// without changing its mask, e.g. an array instance was added.
	EntityTouched
)

func (op ChangeOp) String() string {
	switch op {
	case EntityAdded:
		return "added"
	case EntityRemoved:
		return "removed"
	case EntityTouched:
		return "touched"
	default:
		return fmt.Sprintf("ChangeOp(%d)", uint8(op))
	}
}

type Change struct {
	Op     ChangeOp
	Entity EntityId
	Mask   Bitmask
}

// Archetype holds all entities sharing exactly the same mask.
type Archetype struct {
	Mask Bitmask

	entities []EntityId
	rows     map[EntityId]int
}

func newArchetype(mask Bitmask) *Archetype {
	return &Archetype{
		Mask: mask,
		rows: map[EntityId]int{},
	}
}

func (a *Archetype) Len() int {
	return len(a.entities)
}

// Entities returns the entities in this archetype. The slice must not be modified
// and is only valid until the next change to the index.
func (a *Archetype) Entities() []EntityId {
	return a.entities
}

func (a *Archetype) Contains(entityId EntityId) bool {
	_, ok := a.rows[entityId]
	return ok
}

func (a *Archetype) insert(entityId EntityId) {
	if _, exists := a.rows[entityId]; exists {
		panic(fmt.Sprintf("entity %s already in archetype %s", entityId, a.Mask))
	}

	a.rows[entityId] = len(a.entities)
	a.entities = append(a.entities, entityId)
}

func (a *Archetype) remove(entityId EntityId) {
	row, ok := a.rows[entityId]
	if !ok {
		panic(fmt.Sprintf("entity %s not in archetype %s", entityId, a.Mask))
	}

	delete(a.rows, entityId)

	// move the last entity into the free row
	lastRow := len(a.entities) - 1
	if row != lastRow {
		moved := a.entities[lastRow]
		a.entities[row] = moved
		a.rows[moved] = row
	}

	a.entities = a.entities[:lastRow]
}

// Index maps every populated mask to the archetype of entities carrying it.
// All changes are written to a journal so that queries can catch up
// incrementally instead of rescanning every archetype.
type Index struct {
	archetypes map[MaskKey]*Archetype

	// populated archetypes in the order they were created
	order []*Archetype

	masks map[EntityId]Bitmask

	journal []Change

	// absolute sequence number of journal[0]
	base uint64
}

func NewIndex() *Index {
	return &Index{
		archetypes: map[MaskKey]*Archetype{},
		masks:      map[EntityId]Bitmask{},
	}
}

// Archetype returns the archetype for the given mask, or nil if no entity carries it.
func (ix *Index) Archetype(mask Bitmask) *Archetype {
	return ix.archetypes[mask.Key()]
}

// Bucket returns a snapshot of the entities carrying exactly the given mask.
func (ix *Index) Bucket(mask Bitmask) []EntityId {
	archetype := ix.Archetype(mask)
	if archetype == nil {
		return nil
	}

	return slices.Clone(archetype.entities)
}

// Masks returns all currently populated masks in creation order.
func (ix *Index) Masks() []Bitmask {
	masks := make([]Bitmask, 0, len(ix.order))
	for _, archetype := range ix.order {
		masks = append(masks, archetype.Mask)
	}

	return masks
}

// Archetypes returns all currently populated archetypes in creation order.
func (ix *Index) Archetypes() []*Archetype {
	return slices.Clone(ix.order)
}

func (ix *Index) MaskOf(entityId EntityId) (Bitmask, bool) {
	mask, ok := ix.masks[entityId]
	return mask, ok
}

func (ix *Index) Len() int {
	return len(ix.masks)
}

func (ix *Index) Insert(entityId EntityId, mask Bitmask) {
	if _, exists := ix.masks[entityId]; exists {
		panic(fmt.Sprintf("entity %s already indexed", entityId))
	}

	ix.insert(entityId, mask)
}

// Move transfers an entity from the bucket of oldMask into the bucket of newMask.
// The journal receives the removal first, readers never see the entity in two buckets.
func (ix *Index) Move(entityId EntityId, oldMask, newMask Bitmask) {
	if oldMask.Equal(newMask) {
		ix.Touch(entityId, newMask)
		return
	}

	ix.Remove(entityId, oldMask)
	ix.insert(entityId, newMask)
}

func (ix *Index) Remove(entityId EntityId, mask Bitmask) {
	ix.checkMask(entityId, mask)

	archetype := ix.archetypes[mask.Key()]
	archetype.remove(entityId)

	if archetype.Len() == 0 {
		ix.drop(archetype)
	}

	delete(ix.masks, entityId)

	ix.journal = append(ix.journal, Change{Op: EntityRemoved, Entity: entityId, Mask: mask})
}

// Touch records a structural change of an entity that kept its mask.
func (ix *Index) Touch(entityId EntityId, mask Bitmask) {
	ix.checkMask(entityId, mask)
	ix.journal = append(ix.journal, Change{Op: EntityTouched, Entity: entityId, Mask: mask})
}

func (ix *Index) insert(entityId EntityId, mask Bitmask) {
	key := mask.Key()

	archetype := ix.archetypes[key]
	if archetype == nil {
		archetype = newArchetype(mask)
		ix.archetypes[key] = archetype
		ix.order = append(ix.order, archetype)
	}

	archetype.insert(entityId)
	ix.masks[entityId] = mask

	ix.journal = append(ix.journal, Change{Op: EntityAdded, Entity: entityId, Mask: mask})
}

func (ix *Index) drop(archetype *Archetype) {
	delete(ix.archetypes, archetype.Mask.Key())

	idx := slices.Index(ix.order, archetype)
	ix.order = slices.Delete(ix.order, idx, idx+1)
}

func (ix *Index) checkMask(entityId EntityId, mask Bitmask) {
	current, ok := ix.masks[entityId]
	if !ok {
		panic(fmt.Sprintf("entity %s is not indexed", entityId))
	}

	if !current.Equal(mask) {
		panic(fmt.Sprintf("entity %s is indexed as %s, not %s", entityId, current, mask))
	}
}

// Seq returns the sequence number the next journal entry will get.
func (ix *Index) Seq() uint64 {
	return ix.base + uint64(len(ix.journal))
}

// ChangesSince returns all journal entries starting at the given sequence number.
// It returns false if the journal was truncated past seq and a reader must rescan.
func (ix *Index) ChangesSince(seq uint64) ([]Change, bool) {
	if seq < ix.base {
		return nil, false
	}

	offset := seq - ix.base
	if offset > uint64(len(ix.journal)) {
		panic(fmt.Sprintf("sequence %d is ahead of the journal", seq))
	}

	return ix.journal[offset:], true
}

// Truncate discards all journal entries written so far.
func (ix *Index) Truncate() {
	ix.base += uint64(len(ix.journal))

	clear(ix.journal)
	ix.journal = ix.journal[:0]
}
