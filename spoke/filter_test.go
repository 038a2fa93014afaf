package spoke

import (
	"testing"

	"github.com/cespare/xxhash/v2"
	"github.com/stretchr/testify/require"
)

func TestQueryBuilder(t *testing.T) {
	t.Run("merges steps", func(t *testing.T) {
		var b QueryBuilder
		b.Add(All, ComponentKind, "a").
			Add(All, ComponentKind, "b").
			Add(None, TagKind, "hidden").
			Add(All, ComponentKind, "c")

		compiled := b.Build()

		require.Equal(t, "all|component:a,b::none|tag:hidden::all|component:c::", compiled.Key)
		require.Equal(t, xxhash.Sum64String(compiled.Key), compiled.Hash)
		require.Equal(t, []Step{
			{Constraint: All, Kind: ComponentKind, Labels: []string{"a", "b"}},
			{Constraint: None, Kind: TagKind, Labels: []string{"hidden"}},
			{Constraint: All, Kind: ComponentKind, Labels: []string{"c"}},
		}, compiled.Steps)
	})

	t.Run("same constraints give same key", func(t *testing.T) {
		var first, second QueryBuilder
		first.Add(Any, ComponentKind, "a", "b")
		second.Add(Any, ComponentKind, "a").Add(Any, ComponentKind, "b")

		require.Equal(t, first.Build().Key, second.Build().Key)
	})

	t.Run("empty labels are ignored", func(t *testing.T) {
		var b QueryBuilder
		b.Add(All, ComponentKind)

		require.Empty(t, b.Build().Steps)
	})

	t.Run("build is repeatable", func(t *testing.T) {
		var b QueryBuilder
		b.Add(All, ComponentKind, "a")

		require.Equal(t, b.Build(), b.Build())
	})
}

func TestCompiledQuery_Resolve(t *testing.T) {
	r := NewRegistry(nil)
	r.GetOrAssign(ComponentKind, "a")
	r.GetOrAssign(ComponentKind, "item")
	r.GetOrAssign(TagKind, "hidden")

	t.Run("folds targets", func(t *testing.T) {
		var b QueryBuilder
		b.Add(All, ComponentKind, "a").
			Add(None, TagKind, "hidden").
			Add(All, ComponentKind, "item[]")

		compiled := b.Build()

		targets, unresolved := compiled.resolve(r)
		require.Empty(t, unresolved)

		require.True(t, targets.all.Equal(BitmaskOf(0, 1)))
		require.True(t, targets.none.Equal(BitmaskOf(2)))
		require.False(t, targets.hasAny)

		require.True(t, targets.arrays.Has("item"))
		require.True(t, targets.singles.Has("a"))
		require.False(t, targets.singles.Has("hidden"))

		require.True(t, targets.matchesMask(BitmaskOf(0, 1)))
		require.False(t, targets.matchesMask(BitmaskOf(0)))
		require.False(t, targets.matchesMask(BitmaskOf(0, 1, 2)))
	})

	t.Run("unresolved labels", func(t *testing.T) {
		var b QueryBuilder
		b.Add(All, ComponentKind, "a", "missing[]").Add(Any, TagKind, "a")

		compiled := b.Build()

		_, unresolved := compiled.resolve(r)
		require.Equal(t, []string{"missing[]", "a"}, unresolved)
	})

	t.Run("some is never resolved", func(t *testing.T) {
		var b QueryBuilder
		b.Add(Some, ComponentKind, "unknown[]")

		compiled := b.Build()

		targets, unresolved := compiled.resolve(r)
		require.Empty(t, unresolved)
		require.Zero(t, targets.arrays.Len())
		require.Zero(t, targets.singles.Len())
		require.True(t, targets.matchesMask(BitmaskOf(0)))
		require.Contains(t, compiled.Key, "some|component:unknown[]")
	})
}
