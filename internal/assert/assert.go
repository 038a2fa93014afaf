// Package assert holds invariant checks for the store. A failing check is a bug
// in ecsdb itself, never a user error, so all of them panic.
package assert

import (
	"fmt"
	"reflect"
)

func IsPointerType(t reflect.Type) {
	if t.Kind() != reflect.Pointer {
		panic(fmt.Sprintf("expected pointer type, got %s", t))
	}
}

func IsNonPointerType(t reflect.Type) {
	if t.Kind() == reflect.Pointer {
		panic(fmt.Sprintf("expected non pointer type, got %s", t))
	}
}

// SingleOwner panics if a component instance is already bound to another entity.
func SingleOwner[I, E comparable](instance I, current, next E) {
	var none E
	if current != none && current != next {
		panic(fmt.Sprintf("instance %v is bound to entity %v and %v", instance, current, next))
	}
}

// That panics with the formatted message if cond is false.
func That(cond bool, format string, args ...any) {
	if !cond {
		panic(fmt.Sprintf(format, args...))
	}
}
