// Package snapshot describes the state of a world as plain data. Values hold
// only maps, slices, strings, numbers and booleans, so a snapshot can be
// written in any format that supports those.
package snapshot

import (
	"errors"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"
)

var ErrInvalidSnapshot = errors.New("invalid snapshot")

type World struct {
	Id          string       `yaml:"id"`
	Tick        uint64       `yaml:"tick"`
	Identifiers []Identifier `yaml:"identifiers"`
	Entities    []Entity     `yaml:"entities"`
}

// Identifier records the bit position of a label, so that masks survive a round trip.
type Identifier struct {
	Kind     string `yaml:"kind"`
	Label    string `yaml:"label"`
	Position int    `yaml:"position"`
}

type Entity struct {
	Blueprint  string      `yaml:"blueprint"`
	Tags       []string    `yaml:"tags,omitempty"`
	Components []Component `yaml:"components"`
}

type Component struct {
	Label string `yaml:"label"`
	Array bool   `yaml:"array,omitempty"`

	// one value for single valued components, any number for array capable ones
	Values []any `yaml:"values"`
}

// Component returns the component with the given label.
func (e *Entity) Component(label string) (*Component, bool) {
	for idx := range e.Components {
		if e.Components[idx].Label == label {
			return &e.Components[idx], true
		}
	}

	return nil, false
}

func (w *World) Validate() error {
	positions := map[int]Identifier{}
	for _, id := range w.Identifiers {
		if existing, ok := positions[id.Position]; ok {
			return fmt.Errorf("%w: position %d used by %q and %q", ErrInvalidSnapshot, id.Position, existing.Label, id.Label)
		}

		positions[id.Position] = id
	}

	for idx, entity := range w.Entities {
		if entity.Blueprint == "" {
			return fmt.Errorf("%w: entity %d has no blueprint", ErrInvalidSnapshot, idx)
		}

		for _, component := range entity.Components {
			if !component.Array && len(component.Values) != 1 {
				return fmt.Errorf("%w: entity %d: component %q needs exactly one value, got %d",
					ErrInvalidSnapshot, idx, component.Label, len(component.Values))
			}
		}
	}

	return nil
}

// Encode writes the snapshot as a yaml document.
func Encode(w io.Writer, snapshot *World) error {
	encoder := yaml.NewEncoder(w)
	encoder.SetIndent(2)

	if err := encoder.Encode(snapshot); err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}

	return encoder.Close()
}

// Decode reads and validates a yaml document written by Encode.
func Decode(r io.Reader) (*World, error) {
	var snapshot World

	decoder := yaml.NewDecoder(r)
	decoder.KnownFields(true)

	if err := decoder.Decode(&snapshot); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}

	if err := snapshot.Validate(); err != nil {
		return nil, err
	}

	return &snapshot, nil
}
