package assert

import (
	"reflect"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSingleOwner(t *testing.T) {
	require.NotPanics(t, func() { SingleOwner(7, 0, 1) })
	require.NotPanics(t, func() { SingleOwner(7, 1, 1) })
	require.Panics(t, func() { SingleOwner(7, 1, 2) })
}

func TestPointerTypes(t *testing.T) {
	require.NotPanics(t, func() { IsPointerType(reflect.TypeFor[*int]()) })
	require.Panics(t, func() { IsPointerType(reflect.TypeFor[int]()) })
	require.NotPanics(t, func() { IsNonPointerType(reflect.TypeFor[int]()) })
	require.Panics(t, func() { IsNonPointerType(reflect.TypeFor[*int]()) })
}

func TestThat(t *testing.T) {
	require.NotPanics(t, func() { That(true, "fine") })
	require.PanicsWithValue(t, "bad 1", func() { That(false, "bad %d", 1) })
}
