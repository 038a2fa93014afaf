package spoke

import (
	"bytes"
	"fmt"
	"reflect"

	"github.com/oliverbestmann/ecsdb/internal/assert"
	"gopkg.in/yaml.v3"
)

// arraySuffix marks a query label as referring to an array capable component type.
const arraySuffix = "[]"

// ComponentType describes a kind of data fragment that can be bound to an entity.
// Instances of a component type are always held as *T, where T is the Type of the
// component type.
//
// Component values should be plain data. Reference types inside the defaults
// (slices, maps, pointers) are shared between the instances created from them.
type ComponentType struct {
	// Label is the stable name of the type. Two component types with the
	// same label can not be used in the same Storage.
	Label string

	// Array marks the type as array capable: an entity may hold zero, one or
	// many instances of it.
	Array bool

	Type reflect.Type

	defaults reflect.Value
}

// NewComponentType defines a single valued component type.
func NewComponentType[T any](label string, defaults T) *ComponentType {
	return newComponentType(label, false, defaults)
}

// NewArrayComponentType defines an array capable component type.
func NewArrayComponentType[T any](label string, defaults T) *ComponentType {
	return newComponentType(label, true, defaults)
}

func newComponentType[T any](label string, array bool, defaults T) *ComponentType {
	ty := reflect.TypeFor[T]()
	assert.IsNonPointerType(ty)

	return &ComponentType{
		Label:    label,
		Array:    array,
		Type:     ty,
		defaults: reflect.ValueOf(&defaults).Elem(),
	}
}

func (c *ComponentType) String() string {
	return c.QueryLabel()
}

// QueryLabel returns the label as it is used in queries. Array capable types
// carry a "[]" suffix.
func (c *ComponentType) QueryLabel() string {
	if c.Array {
		return c.Label + arraySuffix
	}

	return c.Label
}

// New creates a new instance, returned as *T. The data can be nil to use the
// defaults, a T or *T to copy from, or plain data such as a map[string]any
// holding a subset of fields that overwrite the defaults.
func (c *ComponentType) New(data any) (any, error) {
	ptr := reflect.New(c.Type)
	if c.defaults.IsValid() {
		ptr.Elem().Set(c.defaults)
	}

	if data == nil {
		return ptr.Interface(), nil
	}

	rv := reflect.ValueOf(data)

	switch {
	case rv.Type() == c.Type:
		ptr.Elem().Set(rv)

	case rv.Type() == ptr.Type():
		if rv.IsNil() {
			return nil, fmt.Errorf("%w: %s: nil pointer", ErrInvalidComponent, c.Label)
		}

		ptr.Elem().Set(rv.Elem())

	default:
		// plain data, e.g. a map holding a subset of the fields. Round trip it
		// through yaml, decoding only overwrites the fields present in data.
		encoded, err := yaml.Marshal(data)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrInvalidComponent, c.Label, err)
		}

		decoder := yaml.NewDecoder(bytes.NewReader(encoded))
		decoder.KnownFields(true)

		if err := decoder.Decode(ptr.Interface()); err != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrInvalidComponent, c.Label, err)
		}
	}

	return ptr.Interface(), nil
}

// ValueOf returns a copy of the value an instance pointer points to.
func (c *ComponentType) ValueOf(ptr any) any {
	rv := reflect.ValueOf(ptr)
	assert.That(rv.Type() == reflect.PointerTo(c.Type), "instance of %s has type %s", c.Label, rv.Type())
	return rv.Elem().Interface()
}

// parseQueryLabel strips the array suffix of a label.
func parseQueryLabel(label string) (string, bool) {
	if n := len(label) - len(arraySuffix); n > 0 && label[n:] == arraySuffix {
		return label[:n], true
	}

	return label, false
}
