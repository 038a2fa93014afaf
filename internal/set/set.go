package set

import (
	"cmp"
	"iter"
	"maps"
	"slices"
)

// Set provides a wrapper around a map[T]struct{}.
// The zero value is an empty set ready to use.
type Set[T comparable] struct {
	values map[T]struct{}
}

// Of builds a set containing the given values.
func Of[T comparable](values ...T) Set[T] {
	var s Set[T]
	for _, value := range values {
		s.Insert(value)
	}

	return s
}

// Insert adds the value and reports whether it was not yet part of the set.
func (s *Set[T]) Insert(value T) bool {
	if s.values == nil {
		s.values = make(map[T]struct{})
	}

	if _, exists := s.values[value]; exists {
		return false
	}

	s.values[value] = struct{}{}
	return true
}

// Remove deletes the value and reports whether it was part of the set.
func (s *Set[T]) Remove(value T) bool {
	if _, exists := s.values[value]; !exists {
		return false
	}

	delete(s.values, value)
	return true
}

func (s *Set[T]) Has(value T) bool {
	_, exists := s.values[value]
	return exists
}

func (s *Set[T]) Values() iter.Seq[T] {
	return maps.Keys(s.values)
}

func (s *Set[T]) Len() int {
	return len(s.values)
}

func (s *Set[T]) Clear() {
	clear(s.values)
}

// Sorted returns the values of the set in ascending order.
func Sorted[T cmp.Ordered](s *Set[T]) []T {
	return slices.Sorted(s.Values())
}
