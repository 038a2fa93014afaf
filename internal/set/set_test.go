package set

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSet_InsertRemove(t *testing.T) {
	var s Set[string]

	require.True(t, s.Insert("a"))
	require.False(t, s.Insert("a"))
	require.True(t, s.Has("a"))
	require.Equal(t, 1, s.Len())

	require.True(t, s.Remove("a"))
	require.False(t, s.Remove("a"))
	require.False(t, s.Has("a"))
	require.Zero(t, s.Len())
}

func TestSet_Sorted(t *testing.T) {
	s := Of(3, 1, 2, 1)
	require.Equal(t, []int{1, 2, 3}, Sorted(&s))

	s.Clear()
	require.Zero(t, s.Len())
	require.Empty(t, Sorted(&s))
}
