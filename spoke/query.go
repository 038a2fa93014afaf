package spoke

import (
	"fmt"
	"iter"
	"slices"
	"strings"

	"github.com/oliverbestmann/ecsdb/internal/set"
	"github.com/oliverbestmann/ecsdb/internal/typedpool"
	"go.uber.org/zap"
)

// DefaultMaxResolveAttempts is the number of accesses a query may spend waiting
// for its labels to be registered before it fails.
const DefaultMaxResolveAttempts = 10

type QueryStatus uint8

const (
	QueryPending QueryStatus = iota
	QueryResolved
	QueryFailed
)

func (s QueryStatus) String() string {
	switch s {
	case QueryPending:
		return "pending"
	case QueryResolved:
		return "resolved"
	case QueryFailed:
		return "failed"
	default:
		return fmt.Sprintf("QueryStatus(%d)", uint8(s))
	}
}

var archetypeScratch = typedpool.New(func(archetypes *[]*Archetype) {
	clear(*archetypes)
	*archetypes = (*archetypes)[:0]
})

// Query is a lazily resolved, incrementally maintained result set of a CompiledQuery.
// A query is bound to the Storage that created it.
type Query struct {
	_ noCopy

	compiled CompiledQuery
	storage  *Storage

	status     QueryStatus
	attempts   int
	unresolved []string

	targets targets
	results set.Set[EntityId]

	// result of the mask test for every mask seen so far
	memo map[MaskKey]bool

	// journal sequence number up to which results are current
	cursor uint64

	stats queryStats
}

type queryStats struct {
	maskTests int
	fullScans int
}

func newQuery(storage *Storage, compiled CompiledQuery) *Query {
	return &Query{
		compiled: compiled,
		storage:  storage,
		memo:     map[MaskKey]bool{},
	}
}

func (q *Query) Key() string {
	return q.compiled.Key
}

func (q *Query) Status() QueryStatus {
	return q.status
}

// Unresolved returns the labels that could not be resolved on the last attempt.
func (q *Query) Unresolved() []string {
	return slices.Clone(q.unresolved)
}

// Refresh forces a full rescan. A failed query gets a new set of resolution attempts.
func (q *Query) Refresh() {
	if q.status == QueryResolved {
		q.scan()
		return
	}

	q.status = QueryPending
	q.attempts = 0
	q.resolve()
}

// Entities returns a sorted snapshot of the matching entities.
func (q *Query) Entities() []EntityId {
	q.update()
	return slices.Sorted(q.results.Values())
}

// Items iterates over a snapshot of the matching entities in ascending order.
func (q *Query) Items() iter.Seq[EntityId] {
	entities := q.Entities()
	return slices.Values(entities)
}

func (q *Query) Len() int {
	q.update()
	return q.results.Len()
}

// First returns the matching entity with the lowest id.
func (q *Query) First() (EntityId, bool) {
	q.update()

	var first EntityId
	for entityId := range q.results.Values() {
		if first == NoEntityId || entityId < first {
			first = entityId
		}
	}

	return first, first != NoEntityId
}

func (q *Query) Contains(entityId EntityId) bool {
	q.update()
	return q.results.Has(entityId)
}

func (q *Query) update() {
	switch q.status {
	case QueryPending:
		q.resolve()

	case QueryResolved:
		q.sync()
	}
}

func (q *Query) resolve() {
	q.attempts++

	targets, unresolved := q.compiled.resolve(q.storage.registry)
	q.unresolved = unresolved

	if len(unresolved) > 0 {
		if q.attempts >= q.storage.maxResolveAttempts {
			q.status = QueryFailed
			q.results.Clear()

			q.storage.log.Warn(
				"Failed to resolve query, pre-register the labels or refresh the query",
				zap.String("query", q.compiled.Key),
				zap.String("unresolved", strings.Join(unresolved, ", ")),
				zap.Int("attempts", q.attempts),
			)
		}

		return
	}

	q.status = QueryResolved
	q.targets = targets
	clear(q.memo)

	q.storage.log.Debug(
		"Query resolved",
		zap.String("query", q.compiled.Key),
		zap.Int("attempts", q.attempts),
	)

	q.scan()
}

// scan rebuilds the result set from all populated archetypes.
func (q *Query) scan() {
	q.stats.fullScans++

	index := q.storage.index

	matching := archetypeScratch.Get()
	defer archetypeScratch.Put(matching)

	// test every mask once, then collect the buckets
	for _, archetype := range index.order {
		if q.matchesMask(archetype.Mask) {
			*matching = append(*matching, archetype)
		}
	}

	q.results.Clear()

	for _, archetype := range *matching {
		for _, entityId := range archetype.entities {
			if q.targets.matchesStructure(q.storage.entities[entityId]) {
				q.results.Insert(entityId)
			}
		}
	}

	q.cursor = index.Seq()
}

// sync applies the index changes that happened since the last access.
func (q *Query) sync() {
	changes, ok := q.storage.index.ChangesSince(q.cursor)
	if !ok {
		q.scan()
		return
	}

	for _, change := range changes {
		if change.Op == EntityRemoved {
			q.results.Remove(change.Entity)
			continue
		}

		c := q.storage.entities[change.Entity]
		if c != nil && q.matchesMask(change.Mask) && q.targets.matchesStructure(c) {
			q.results.Insert(change.Entity)
		} else {
			q.results.Remove(change.Entity)
		}
	}

	q.cursor = q.storage.index.Seq()
}

func (q *Query) matchesMask(mask Bitmask) bool {
	key := mask.Key()

	matches, ok := q.memo[key]
	if !ok {
		q.stats.maskTests++

		matches = q.targets.matchesMask(mask)
		q.memo[key] = matches
	}

	return matches
}

// pruneMemo forgets masks that are no longer populated.
func (q *Query) pruneMemo(index *Index) {
	for key := range q.memo {
		if _, ok := index.archetypes[key]; !ok {
			delete(q.memo, key)
		}
	}
}
