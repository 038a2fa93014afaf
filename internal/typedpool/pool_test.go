package typedpool

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPool_ResetsOnPut(t *testing.T) {
	pool := New(func(s *[]int) { *s = (*s)[:0] })

	value := pool.Get()
	*value = append(*value, 1, 2, 3)
	pool.Put(value)

	// whatever we get back, it must be empty
	require.Empty(t, *pool.Get())
}
