package ecsdb

import (
	"iter"

	"github.com/oliverbestmann/ecsdb/spoke"
)

// QueryBuilder accumulates constraints fluently. Reading from the builder resolves
// the cached query for its constraints, two builders with the same constraints
// share the same result set.
type QueryBuilder struct {
	world   *World
	builder spoke.QueryBuilder
	query   *spoke.Query
}

// Query starts a new query.
func (w *World) Query() *QueryBuilder {
	return &QueryBuilder{world: w}
}

// All requires every given component type.
func (q *QueryBuilder) All(types ...AnyComponentType) *QueryBuilder {
	return q.add(spoke.All, spoke.ComponentKind, labelsOf(types))
}

// Any requires at least one of the given component types.
func (q *QueryBuilder) Any(types ...AnyComponentType) *QueryBuilder {
	return q.add(spoke.Any, spoke.ComponentKind, labelsOf(types))
}

// None excludes entities carrying any of the given component types.
func (q *QueryBuilder) None(types ...AnyComponentType) *QueryBuilder {
	return q.add(spoke.None, spoke.ComponentKind, labelsOf(types))
}

// Some is reserved. The types become part of the query key but do not affect
// which entities match.
func (q *QueryBuilder) Some(types ...AnyComponentType) *QueryBuilder {
	return q.add(spoke.Some, spoke.ComponentKind, labelsOf(types))
}

func (q *QueryBuilder) AllTags(tags ...string) *QueryBuilder {
	return q.add(spoke.All, spoke.TagKind, tags)
}

func (q *QueryBuilder) AnyTags(tags ...string) *QueryBuilder {
	return q.add(spoke.Any, spoke.TagKind, tags)
}

func (q *QueryBuilder) NoneTags(tags ...string) *QueryBuilder {
	return q.add(spoke.None, spoke.TagKind, tags)
}

func (q *QueryBuilder) SomeTags(tags ...string) *QueryBuilder {
	return q.add(spoke.Some, spoke.TagKind, tags)
}

// Labels adds component labels directly. A label with a "[]" suffix refers to an
// array capable component type.
func (q *QueryBuilder) Labels(constraint spoke.Constraint, labels ...string) *QueryBuilder {
	return q.add(constraint, spoke.ComponentKind, labels)
}

func (q *QueryBuilder) add(constraint spoke.Constraint, kind spoke.IdentifierKind, labels []string) *QueryBuilder {
	q.builder.Add(constraint, kind, labels...)
	q.query = nil
	return q
}

// Query returns the cached query for the constraints added so far.
func (q *QueryBuilder) Query() *spoke.Query {
	if q.query == nil {
		q.query = q.world.storage.Query(q.builder.Build())
	}

	return q.query
}

// Get returns a sorted snapshot of all matching entities.
func (q *QueryBuilder) Get() []EntityId {
	return q.Query().Entities()
}

func (q *QueryBuilder) Items() iter.Seq[EntityId] {
	return q.Query().Items()
}

func (q *QueryBuilder) First() (EntityId, bool) {
	return q.Query().First()
}

func (q *QueryBuilder) Count() int {
	return q.Query().Len()
}

func (q *QueryBuilder) Contains(entityId EntityId) bool {
	return q.Query().Contains(entityId)
}
