package spoke

import (
	"math/rand/v2"
	"runtime"
	"slices"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

type A struct{ Value int }

type B struct{ Value int }

var (
	aType = NewComponentType("A", A{})
	bType = NewComponentType("B", B{})
)

func query(s *Storage, constraint Constraint, labels ...string) *Query {
	var b QueryBuilder
	b.Add(constraint, ComponentKind, labels...)
	return s.Query(b.Build())
}

// scanAll evaluates a compiled query against every entity, without the index.
func scanAll(s *Storage, compiled CompiledQuery) []EntityId {
	targets, unresolved := compiled.resolve(s.registry)
	if len(unresolved) > 0 {
		return nil
	}

	var result []EntityId
	for entityId, c := range s.entities {
		if targets.matchesMask(c.mask) && targets.matchesStructure(c) {
			result = append(result, entityId)
		}
	}

	slices.Sort(result)

	return result
}

func TestQuery_Scenario(t *testing.T) {
	s := NewStorage()

	onlyA, err := s.RegisterBlueprint(NewBlueprint("a", aType))
	require.NoError(t, err)

	both, err := s.RegisterBlueprint(NewBlueprint("ab", aType, bType))
	require.NoError(t, err)

	onlyB, err := s.RegisterBlueprint(NewBlueprint("b", bType))
	require.NoError(t, err)

	e1, _ := s.Create(onlyA, nil)
	e2, _ := s.Create(both, nil)
	e3, _ := s.Create(onlyB, nil)

	for entityId, expected := range map[EntityId]int64{e1: 1, e2: 3, e3: 2} {
		mask, ok := s.Mask(entityId)
		require.True(t, ok)
		require.Equal(t, expected, mask.Int().Int64())
	}

	require.Len(t, s.Index().Masks(), 3)

	require.Equal(t, []EntityId{e1, e2}, query(s, All, "A").Entities())
	require.Equal(t, []EntityId{e1}, query(s, None, "B").Entities())
	require.Equal(t, []EntityId{e1, e2, e3}, query(s, Any, "A", "B").Entities())
}

func TestQuery_Cache(t *testing.T) {
	s := newTestStorage(t)

	first := query(s.Storage, All, "position")
	second := query(s.Storage, All, "position")
	other := query(s.Storage, All, "velocity")

	require.Same(t, first, second)
	require.NotSame(t, first, other)
	require.Equal(t, 2, s.queries.Len())

	runtime.KeepAlive(first)
	runtime.KeepAlive(other)
}

func TestQuery_Incremental(t *testing.T) {
	s := newTestStorage(t)

	moverId, _ := s.Create(s.mover, nil)
	inventoryId, _ := s.Create(s.inventory, nil)

	q := query(s.Storage, All, "velocity")
	require.Equal(t, []EntityId{moverId}, q.Entities())
	require.Equal(t, 1, q.stats.fullScans)
	require.Equal(t, 2, q.stats.maskTests)

	// entities in known archetypes do not trigger any new mask test
	for range 100 {
		_, _ = s.Create(s.inventory, nil)
	}

	require.Equal(t, 1, q.Len())
	require.Equal(t, 2, q.stats.maskTests)

	// a new archetype is tested exactly once
	require.NoError(t, s.AddTags(inventoryId, "new"))
	require.NoError(t, s.AddComponent(moverId, itemType, nil))

	require.Equal(t, []EntityId{moverId}, q.Entities())
	require.Equal(t, 4, q.stats.maskTests)
	require.Equal(t, 1, q.stats.fullScans)

	require.ElementsMatch(t, scanAll(s.Storage, q.compiled), q.Entities())
}

func TestQuery_Consistency(t *testing.T) {
	s := newTestStorage(t)
	rng := rand.New(rand.NewPCG(3, 4))

	tags := []string{"red", "green", "blue"}

	// register every label before the queries are declared
	entities := []EntityId{}
	for _, bp := range []BlueprintId{s.mover, s.inventory} {
		entityId, err := s.Create(bp, nil, tags...)
		require.NoError(t, err)
		entities = append(entities, entityId)
	}

	builders := []func(b *QueryBuilder){
		func(b *QueryBuilder) { b.Add(All, ComponentKind, "position") },
		func(b *QueryBuilder) { b.Add(None, TagKind, "red") },
		func(b *QueryBuilder) { b.Add(Any, ComponentKind, "velocity", "item[]") },
		func(b *QueryBuilder) { b.Add(All, ComponentKind, "item[]").Add(All, TagKind, "green") },
		func(b *QueryBuilder) { b.Add(All, ComponentKind, "position").Add(None, ComponentKind, "velocity") },
		func(b *QueryBuilder) { b.Add(Some, ComponentKind, "item[]") },
	}

	var queries []*Query
	for _, build := range builders {
		var b QueryBuilder
		build(&b)
		queries = append(queries, s.Query(b.Build()))
	}

	pick := func() EntityId {
		return entities[rng.IntN(len(entities))]
	}

	for step := range 1000 {
		switch rng.IntN(9) {
		case 0:
			entityId, _ := s.Create(s.mover, nil, tags[rng.IntN(len(tags))])
			entities = append(entities, entityId)

		case 1:
			entityId, _ := s.Create(s.inventory, Data{"item": make([]Item, rng.IntN(3))})
			entities = append(entities, entityId)

		case 2:
			_ = s.AddComponent(pick(), itemType, nil)

		case 3:
			s.RemoveComponent(pick(), velocityType)

		case 4:
			_ = s.AddTags(pick(), tags[rng.IntN(len(tags))])

		case 5:
			_ = s.RemoveTags(pick(), tags[rng.IntN(len(tags))])

		case 6:
			entityId := pick()
			for _, instance := range s.Instances(entityId) {
				if instance.Type.Array {
					s.RemoveInstance(entityId, instance.Id)
					break
				}
			}

		case 7:
			s.Destroy(pick())

		case 8:
			s.Cleanup()
		}

		// not every query is read after every step
		for idx, q := range queries {
			if (step+idx)%3 != 0 {
				continue
			}

			actual := q.Entities()
			require.Equal(t, QueryResolved, q.Status())
			require.ElementsMatch(t, scanAll(s.Storage, q.compiled), actual, "query %s", q.Key())
		}
	}

	for _, entityId := range queries[0].Entities() {
		require.True(t, s.Has(entityId, "position"))
	}
}

func TestQuery_Arrays(t *testing.T) {
	s := newTestStorage(t)

	full, _ := s.Create(s.inventory, Data{"item": Item{Name: "a"}})
	empty, _ := s.Create(s.inventory, Data{"item": []Item{}})
	mover, _ := s.Create(s.mover, nil)

	arrays := query(s.Storage, All, "item[]")
	singles := query(s.Storage, All, "item")
	anyArrays := query(s.Storage, Any, "item[]")

	require.Equal(t, []EntityId{full}, arrays.Entities())
	require.Equal(t, []EntityId{empty}, singles.Entities())

	// any only looks at the mask, no instance is required
	require.Equal(t, []EntityId{full, empty}, anyArrays.Entities())

	// some has no effect on the results
	require.Equal(t, []EntityId{full, empty, mover}, query(s.Storage, Some, "item[]").Entities())
	require.Equal(t, []EntityId{full, empty, mover}, query(s.Storage, Some, "item").Entities())

	var b QueryBuilder
	b.Add(All, ComponentKind, "position").Add(Some, ComponentKind, "item[]")
	require.Equal(t, []EntityId{full, empty, mover}, s.Query(b.Build()).Entities())

	require.NoError(t, s.AddComponent(empty, itemType, nil))

	require.Equal(t, []EntityId{full, empty}, arrays.Entities())
	require.Empty(t, singles.Entities())

	instances := s.Instances(full)
	require.True(t, s.RemoveInstance(full, instances[len(instances)-1].Id))

	require.Equal(t, []EntityId{empty}, arrays.Entities())
	require.Equal(t, []EntityId{full}, singles.Entities())
	require.Equal(t, []EntityId{full, empty}, anyArrays.Entities())
}

func TestQuery_MemoPruned(t *testing.T) {
	s := newTestStorage(t)

	mover, _ := s.Create(s.mover, nil)
	solo, _ := s.Create(s.mover, nil, "solo")

	q := query(s.Storage, All, "position")
	require.Equal(t, []EntityId{mover, solo}, q.Entities())

	soloMask, _ := s.Mask(solo)
	require.Contains(t, q.memo, soloMask.Key())
	require.Len(t, q.memo, 2)

	// evict the last entity carrying the solo mask
	require.True(t, s.Destroy(solo))
	s.Cleanup()

	require.Nil(t, s.index.Archetype(soloMask))
	require.NotContains(t, q.memo, soloMask.Key())
	require.Len(t, q.memo, 1)

	require.Equal(t, []EntityId{mover}, q.Entities())
}

func TestQuery_Resolution(t *testing.T) {
	t.Run("fails after max attempts", func(t *testing.T) {
		core, logs := observer.New(zap.WarnLevel)
		s := newTestStorage(t, WithLogger(zap.New(core)))

		entityId, _ := s.Create(s.mover, nil)

		var b QueryBuilder
		b.Add(All, TagKind, "late")
		q := s.Query(b.Build())

		for range DefaultMaxResolveAttempts - 1 {
			require.Zero(t, q.Len())
			require.Equal(t, QueryPending, q.Status())
		}

		require.Zero(t, q.Len())
		require.Equal(t, QueryFailed, q.Status())
		require.Equal(t, []string{"late"}, q.Unresolved())
		require.Equal(t, 1, logs.FilterMessageSnippet("Failed to resolve").Len())

		require.NoError(t, s.AddTags(entityId, "late"))

		// failed queries stay failed until refreshed
		require.Zero(t, q.Len())
		require.Equal(t, QueryFailed, q.Status())

		q.Refresh()
		require.Equal(t, QueryResolved, q.Status())
		require.Equal(t, []EntityId{entityId}, q.Entities())
	})

	t.Run("resolves once registered", func(t *testing.T) {
		s := newTestStorage(t, WithMaxResolveAttempts(3))

		var b QueryBuilder
		b.Add(All, TagKind, "late")
		q := s.Query(b.Build())

		require.Zero(t, q.Len())
		require.Equal(t, QueryPending, q.Status())

		entityId, _ := s.Create(s.mover, nil, "late")

		first, ok := q.First()
		require.True(t, ok)
		require.Equal(t, entityId, first)
		require.Equal(t, QueryResolved, q.Status())
		require.Empty(t, q.Unresolved())
	})
}

func TestQuery_DestroyMidTick(t *testing.T) {
	s := newTestStorage(t)

	first, _ := s.Create(s.mover, nil)
	second, _ := s.Create(s.mover, nil)

	q := query(s.Storage, All, "position")
	require.Equal(t, []EntityId{first, second}, q.Entities())

	s.Destroy(first)

	// still visible in the same tick
	require.True(t, q.Contains(first))
	require.Equal(t, []EntityId{first, second}, query(s.Storage, All, "velocity").Entities())

	s.Cleanup()

	require.Equal(t, []EntityId{second}, q.Entities())
	require.Equal(t, []EntityId{second}, query(s.Storage, Any, "position", "item[]").Entities())

	mask, _ := s.Mask(second)
	require.Equal(t, []EntityId{second}, s.Index().Bucket(mask))
}

func TestQuery_ChangeTracking(t *testing.T) {
	s := newTestStorage(t)

	entityId, _ := s.Create(s.mover, nil)
	s.Cleanup()

	require.Empty(t, s.Changed("position"))

	s.Mutate(entityId, "position", 0, func(ptr any) {
		ptr.(*Position).Y = 3
	})

	require.Equal(t, []EntityId{entityId}, s.Changed("position"))
	require.Empty(t, s.Changed("position", "velocity"))
	require.Empty(t, s.Created("position"))

	s.Cleanup()

	require.Empty(t, s.Changed("position"))
}

func BenchmarkQuery_Incremental(b *testing.B) {
	s := NewStorage()

	mover, _ := s.RegisterBlueprint(NewBlueprint("mover", positionType, velocityType))
	static, _ := s.RegisterBlueprint(NewBlueprint("static", positionType))

	for range 10_000 {
		_, _ = s.Create(mover, nil)
		_, _ = s.Create(static, nil)
	}

	q := query(s, All, "velocity")

	for b.Loop() {
		entityId, _ := s.Create(static, nil)
		_ = q.Len()

		s.Destroy(entityId)
		s.Cleanup()
	}
}
