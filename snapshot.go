package ecsdb

import (
	"fmt"
	"slices"

	"github.com/oliverbestmann/ecsdb/snapshot"
	"github.com/oliverbestmann/ecsdb/spoke"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// Snapshot describes all entities not pending destruction as plain data.
func (w *World) Snapshot() (*snapshot.World, error) {
	s := &snapshot.World{
		Id:   w.id.String(),
		Tick: uint64(w.storage.Tick()),
	}

	for _, id := range w.storage.Registry().Identifiers() {
		s.Identifiers = append(s.Identifiers, snapshot.Identifier{
			Kind:     id.Kind.String(),
			Label:    id.Label,
			Position: id.Position,
		})
	}

	for _, entityId := range w.storage.Entities() {
		blueprintId, _ := w.storage.BlueprintOf(entityId)
		blueprint, _ := w.storage.Blueprint(blueprintId)

		entity := snapshot.Entity{
			Blueprint: blueprint.Name,
			Tags:      w.storage.Tags(entityId),
		}

		for _, label := range w.storage.ComponentLabels(entityId) {
			ty, _ := w.storage.ComponentType(label)

			values := []any{}
			for _, value := range w.storage.Components(entityId, label) {
				plain, err := toPlainData(value)
				if err != nil {
					return nil, fmt.Errorf("snapshot entity %s: %s: %w", entityId, label, err)
				}

				values = append(values, plain)
			}

			entity.Components = append(entity.Components, snapshot.Component{
				Label:  label,
				Array:  ty.Array,
				Values: values,
			})
		}

		s.Entities = append(s.Entities, entity)
	}

	return s, nil
}

func toPlainData(value any) (any, error) {
	var node yaml.Node
	if err := node.Encode(value); err != nil {
		return nil, err
	}

	var plain any
	if err := node.Decode(&plain); err != nil {
		return nil, err
	}

	return plain, nil
}

// Restore recreates the entities of a snapshot. All blueprints referenced by the
// snapshot must be registered. Component types that are not part of any registered
// blueprint must be passed as extra types.
//
// Entity ids are assigned anew. On error the world may hold a part of the snapshot.
func (w *World) Restore(s *snapshot.World, extra ...AnyComponentType) error {
	if err := s.Validate(); err != nil {
		return err
	}

	types := map[string]*spoke.ComponentType{}
	for _, ty := range w.storage.ComponentTypes() {
		types[ty.Label] = ty
	}

	for _, ty := range erase(extra) {
		types[ty.Label] = ty
	}

	// check every reference before anything is restored
	blueprints := make([]BlueprintId, len(s.Entities))
	for idx, entity := range s.Entities {
		blueprintId, ok := w.storage.BlueprintByName(entity.Blueprint)
		if !ok {
			return fmt.Errorf("restore: %w: %q", spoke.ErrUnknownBlueprint, entity.Blueprint)
		}

		for _, component := range entity.Components {
			ty, ok := types[component.Label]
			if !ok {
				return fmt.Errorf("restore: %w: %q", spoke.ErrUndeclaredComponent, component.Label)
			}

			if ty.Array != component.Array {
				return fmt.Errorf("restore: %w: %q", snapshot.ErrInvalidSnapshot, component.Label)
			}
		}

		blueprints[idx] = blueprintId
	}

	identifiers := make([]spoke.Identifier, 0, len(s.Identifiers))
	for _, id := range s.Identifiers {
		kind, err := spoke.ParseIdentifierKind(id.Kind)
		if err != nil {
			return fmt.Errorf("restore: %w", err)
		}

		identifiers = append(identifiers, spoke.Identifier{Kind: kind, Label: id.Label, Position: id.Position})
	}

	if err := w.storage.Registry().Restore(identifiers); err != nil {
		return fmt.Errorf("restore: %w", err)
	}

	for idx, entity := range s.Entities {
		if err := w.restoreEntity(blueprints[idx], entity, types); err != nil {
			return fmt.Errorf("restore entity %d: %w", idx, err)
		}
	}

	w.log.Info(
		"Snapshot restored",
		zap.String("snapshot", s.Id),
		zap.Int("entities", len(s.Entities)),
	)

	return nil
}

func (w *World) restoreEntity(blueprintId BlueprintId, entity snapshot.Entity, types map[string]*spoke.ComponentType) error {
	blueprint, _ := w.storage.Blueprint(blueprintId)

	data := Data{}
	for _, ty := range blueprint.Types {
		component, ok := entity.Component(ty.Label)
		if !ok {
			continue
		}

		if ty.Array {
			data[ty.Label] = slices.Clone(component.Values)
		} else {
			data[ty.Label] = component.Values[0]
		}
	}

	entityId, err := w.storage.Create(blueprintId, data, entity.Tags...)
	if err != nil {
		return err
	}

	// declared components the entity lost after it was created
	for _, ty := range blueprint.Types {
		if _, ok := entity.Component(ty.Label); !ok {
			w.storage.RemoveComponent(entityId, ty)
		}
	}

	// components added after the entity was created
	for _, component := range entity.Components {
		if _, declared := blueprint.Declares(component.Label); declared {
			continue
		}

		var value any = slices.Clone(component.Values)
		if !component.Array {
			value = component.Values[0]
		}

		if err := w.storage.AddComponent(entityId, types[component.Label], value); err != nil {
			return err
		}
	}

	return nil
}
