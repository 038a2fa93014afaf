package spoke

import (
	"fmt"
	"maps"
	"reflect"
	"slices"

	"github.com/oliverbestmann/ecsdb/internal/assert"
	"github.com/oliverbestmann/ecsdb/internal/set"
	"go.uber.org/zap"
)

// Data holds the initial values of an entity, keyed by component label.
// Array capable types accept a slice to create several instances.
type Data map[string]any

// Storage owns all entities of a world, the identifier registry, the archetype
// index and the mutation record of the current tick.
//
// A Storage is not safe for concurrent use.
type Storage struct {
	_ noCopy

	registry *Registry
	index    *Index

	types          map[string]*ComponentType
	blueprints     []Blueprint
	blueprintNames map[string]BlueprintId

	entities map[EntityId]*container
	owners   map[InstanceId]EntityId

	lastEntityId   EntityId
	lastInstanceId InstanceId

	mutations mutationRecord
	toDestroy []EntityId

	queries queryCache

	tick Tick

	log                *zap.Logger
	maxResolveAttempts int
	warnDuplicates     bool
}

type Option func(*Storage)

func WithLogger(log *zap.Logger) Option {
	return func(s *Storage) {
		if log != nil {
			s.log = log
		}
	}
}

// WithMaxResolveAttempts sets the number of accesses after which a query with
// unknown labels fails.
func WithMaxResolveAttempts(attempts int) Option {
	return func(s *Storage) {
		if attempts > 0 {
			s.maxResolveAttempts = attempts
		}
	}
}

// WithDuplicateWarnings enables a warning when a single valued component is added twice.
func WithDuplicateWarnings(enabled bool) Option {
	return func(s *Storage) {
		s.warnDuplicates = enabled
	}
}

func NewStorage(options ...Option) *Storage {
	s := &Storage{
		index:              NewIndex(),
		types:              map[string]*ComponentType{},
		blueprintNames:     map[string]BlueprintId{},
		entities:           map[EntityId]*container{},
		owners:             map[InstanceId]EntityId{},
		mutations:          newMutationRecord(),
		tick:               NoTick + 1,
		log:                zap.NewNop(),
		maxResolveAttempts: DefaultMaxResolveAttempts,
		warnDuplicates:     true,
	}

	for _, option := range options {
		option(s)
	}

	s.registry = NewRegistry(s.log)

	return s
}

func (s *Storage) Registry() *Registry {
	return s.registry
}

func (s *Storage) Index() *Index {
	return s.index
}

// Tick returns the current tick. It advances with every Cleanup.
func (s *Storage) Tick() Tick {
	return s.tick
}

// RegisterBlueprint validates the blueprint and binds its component types to this storage.
func (s *Storage) RegisterBlueprint(blueprint Blueprint) (BlueprintId, error) {
	if err := blueprint.Validate(); err != nil {
		return 0, err
	}

	if _, exists := s.blueprintNames[blueprint.Name]; exists {
		return 0, fmt.Errorf("%w: blueprint %q already registered", ErrMalformedBlueprint, blueprint.Name)
	}

	for _, ty := range blueprint.Types {
		if err := s.checkType(ty); err != nil {
			return 0, fmt.Errorf("%w: %s: %w", ErrMalformedBlueprint, blueprint.Name, err)
		}
	}

	for _, ty := range blueprint.Types {
		s.types[ty.Label] = ty
	}

	blueprint = blueprint.Named(blueprint.Name)
	s.blueprints = append(s.blueprints, blueprint)

	blueprintId := BlueprintId(len(s.blueprints))
	s.blueprintNames[blueprint.Name] = blueprintId

	s.log.Debug(
		"New blueprint registered",
		zap.String("blueprint", blueprint.Name),
		zap.Int("types", len(blueprint.Types)),
	)

	return blueprintId, nil
}

// Blueprint returns a copy of a registered blueprint.
func (s *Storage) Blueprint(blueprintId BlueprintId) (Blueprint, bool) {
	if blueprintId == 0 || int(blueprintId) > len(s.blueprints) {
		return Blueprint{}, false
	}

	bp := s.blueprints[blueprintId-1]
	return bp.Named(bp.Name), true
}

func (s *Storage) BlueprintByName(name string) (BlueprintId, bool) {
	blueprintId, ok := s.blueprintNames[name]
	return blueprintId, ok
}

// ComponentType returns the component type bound to a label.
func (s *Storage) ComponentType(label string) (*ComponentType, bool) {
	ty, ok := s.types[label]
	return ty, ok
}

func (s *Storage) checkType(ty *ComponentType) error {
	if existing, ok := s.types[ty.Label]; ok && existing != ty {
		return fmt.Errorf("%w: %q", ErrConflictingType, ty.Label)
	}

	return nil
}

// Create builds a new entity from a registered blueprint. On error the storage is unchanged.
func (s *Storage) Create(blueprintId BlueprintId, data Data, tags ...string) (EntityId, error) {
	if blueprintId == 0 || int(blueprintId) > len(s.blueprints) {
		return NoEntityId, fmt.Errorf("%w: %d", ErrUnknownBlueprint, blueprintId)
	}

	blueprint := &s.blueprints[blueprintId-1]

	for label := range data {
		if _, ok := blueprint.Declares(label); !ok {
			return NoEntityId, fmt.Errorf("%w: %q in blueprint %s", ErrUndeclaredComponent, label, blueprint.Name)
		}
	}

	// build all values first, nothing is registered if one of them fails
	values := make([][]any, len(blueprint.Types))
	for idx, ty := range blueprint.Types {
		value, present := data[ty.Label]

		typeValues, err := newValues(ty, value, present)
		if err != nil {
			return NoEntityId, fmt.Errorf("create %s: %w", blueprint.Name, err)
		}

		values[idx] = typeValues
	}

	s.lastEntityId++

	c := &container{
		id:        s.lastEntityId,
		blueprint: blueprintId,
		instances: map[string][]*Instance{},
		tags:      set.Of(tags...),
	}

	for idx, ty := range blueprint.Types {
		c.types = append(c.types, ty)
		c.instances[ty.Label] = s.bindAll(c, ty, values[idx])
	}

	c.mask = s.computeMask(c)

	s.entities[c.id] = c
	s.index.Insert(c.id, c.mask)

	for _, instance := range c.allInstances() {
		s.mutations.created(instance)
	}

	return c.id, nil
}

// newValues creates the instances of a component type from user data.
// Array capable types create one instance per element of a slice.
func newValues(ty *ComponentType, value any, present bool) ([]any, error) {
	if ty.Array && present && value != nil {
		rv := reflect.ValueOf(value)
		if rv.Kind() == reflect.Slice && rv.Type() != ty.Type {
			result := make([]any, 0, rv.Len())
			for idx := range rv.Len() {
				instance, err := ty.New(rv.Index(idx).Interface())
				if err != nil {
					return nil, fmt.Errorf("%s[%d]: %w", ty.Label, idx, err)
				}

				result = append(result, instance)
			}

			return result, nil
		}
	}

	instance, err := ty.New(value)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", ty.Label, err)
	}

	return []any{instance}, nil
}

func (s *Storage) bindAll(c *container, ty *ComponentType, values []any) []*Instance {
	instances := make([]*Instance, 0, len(values))
	for _, value := range values {
		instances = append(instances, s.bind(c, ty, value))
	}

	return instances
}

func (s *Storage) bind(c *container, ty *ComponentType, value any) *Instance {
	assert.IsPointerType(reflect.TypeOf(value))

	s.lastInstanceId++

	instance := &Instance{
		Id:    s.lastInstanceId,
		Owner: c.id,
		Type:  ty,
		value: value,
	}

	assert.SingleOwner(instance.Id, s.owners[instance.Id], c.id)
	s.owners[instance.Id] = c.id

	return instance
}

func (s *Storage) unbind(instance *Instance) {
	assert.SingleOwner(instance.Id, s.owners[instance.Id], instance.Owner)
	delete(s.owners, instance.Id)
}

func (s *Storage) computeMask(c *container) Bitmask {
	var positions []int

	for _, ty := range c.types {
		positions = append(positions, s.registry.assign(ComponentKind, ty.Label))
	}

	for tag := range c.tags.Values() {
		positions = append(positions, s.registry.assign(TagKind, tag))
	}

	return BitmaskOf(positions...)
}

// restructure recomputes the mask of an entity after a change to its types,
// tags or instances and moves it within the index.
func (s *Storage) restructure(c *container) {
	mask := s.computeMask(c)
	s.index.Move(c.id, c.mask, mask)
	c.mask = mask
}

func (s *Storage) live(entityId EntityId) (*container, error) {
	c, ok := s.entities[entityId]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrEntityNotFound, entityId)
	}

	if c.destroyed {
		return nil, fmt.Errorf("%w: %s", ErrEntityDestroyed, entityId)
	}

	return c, nil
}

// AddComponent binds a component type to an entity. Adding a single valued type
// the entity already has is a no-op. Array capable types get new instances appended.
func (s *Storage) AddComponent(entityId EntityId, ty *ComponentType, data any) error {
	c, err := s.live(entityId)
	if err != nil {
		return err
	}

	if err := s.checkType(ty); err != nil {
		return err
	}

	present := c.hasType(ty.Label)
	if present && !ty.Array {
		if s.warnDuplicates {
			s.log.Warn(
				"Duplicate component ignored",
				zap.Stringer("entity", entityId),
				zap.String("component", ty.Label),
			)
		}

		return nil
	}

	values, err := newValues(ty, data, data != nil)
	if err != nil {
		return err
	}

	s.types[ty.Label] = ty

	if !present {
		c.types = append(c.types, ty)
	}

	instances := s.bindAll(c, ty, values)
	c.instances[ty.Label] = append(c.instances[ty.Label], instances...)

	s.restructure(c)

	for _, instance := range instances {
		s.mutations.created(instance)
	}

	return nil
}

// RemoveComponent unbinds a component type and all of its instances.
// It returns false if the entity does not carry the type.
func (s *Storage) RemoveComponent(entityId EntityId, ty *ComponentType) bool {
	c, err := s.live(entityId)
	if err != nil || !c.hasType(ty.Label) {
		return false
	}

	removed := c.removeType(ty.Label)
	for _, instance := range removed {
		s.unbind(instance)
		s.mutations.removed(instance)
	}

	s.restructure(c)

	return true
}

// RemoveInstance removes a single instance of an array capable type. The type
// itself stays bound to the entity, even without any instances left.
func (s *Storage) RemoveInstance(entityId EntityId, instanceId InstanceId) bool {
	c, err := s.live(entityId)
	if err != nil {
		return false
	}

	instance, idx, ok := c.findInstance(instanceId)
	if !ok || !instance.Type.Array {
		return false
	}

	label := instance.Type.Label
	c.instances[label] = slices.Delete(c.instances[label], idx, idx+1)

	s.unbind(instance)
	s.mutations.removed(instance)

	s.restructure(c)

	return true
}

// AddTags adds tags to an entity. Tags the entity already carries are ignored.
func (s *Storage) AddTags(entityId EntityId, tags ...string) error {
	c, err := s.live(entityId)
	if err != nil {
		return err
	}

	var modified bool
	for _, tag := range tags {
		modified = c.tags.Insert(tag) || modified
	}

	if modified {
		s.restructure(c)
	}

	return nil
}

// RemoveTags removes tags from an entity. Tags the entity does not carry are ignored.
func (s *Storage) RemoveTags(entityId EntityId, tags ...string) error {
	c, err := s.live(entityId)
	if err != nil {
		return err
	}

	var modified bool
	for _, tag := range tags {
		modified = c.tags.Remove(tag) || modified
	}

	if modified {
		s.restructure(c)
	}

	return nil
}

// Mutate calls fn with a pointer to the value of an instance and records the
// instance as changed once fn returns. The pointer must not be retained.
func (s *Storage) Mutate(entityId EntityId, label string, index int, fn func(ptr any)) bool {
	c, err := s.live(entityId)
	if err != nil {
		return false
	}

	instance, ok := c.instance(label, index)
	if !ok {
		return false
	}

	fn(instance.value)

	s.mutations.changed(instance)

	return true
}

// Replace overwrites the value of an instance.
func (s *Storage) Replace(entityId EntityId, label string, index int, data any) error {
	c, err := s.live(entityId)
	if err != nil {
		return err
	}

	instance, ok := c.instance(label, index)
	if !ok {
		return fmt.Errorf("%w: %s[%d] on entity %s", ErrNoSuchInstance, label, index, entityId)
	}

	value, err := instance.Type.New(data)
	if err != nil {
		return err
	}

	instance.value = value

	s.mutations.changed(instance)

	return nil
}

// Component returns a copy of the value of an instance. Entities marked as
// destroyed stay readable until the next Cleanup.
func (s *Storage) Component(entityId EntityId, label string, index int) (any, bool) {
	c, ok := s.entities[entityId]
	if !ok {
		return nil, false
	}

	instance, ok := c.instance(label, index)
	if !ok {
		return nil, false
	}

	return instance.Value(), true
}

// Components returns copies of all instance values of a component type.
func (s *Storage) Components(entityId EntityId, label string) []any {
	c, ok := s.entities[entityId]
	if !ok {
		return nil
	}

	var values []any
	for _, instance := range c.instances[label] {
		values = append(values, instance.Value())
	}

	return values
}

// Instances returns copies of all instance records of an entity in type order.
func (s *Storage) Instances(entityId EntityId) []Instance {
	c, ok := s.entities[entityId]
	if !ok {
		return nil
	}

	var instances []Instance
	for _, instance := range c.allInstances() {
		instances = append(instances, *instance)
	}

	return instances
}

// Has reports whether the entity carries all of the given component types.
func (s *Storage) Has(entityId EntityId, labels ...string) bool {
	c, ok := s.entities[entityId]
	if !ok {
		return false
	}

	for _, label := range labels {
		name, _ := parseQueryLabel(label)
		if !c.hasType(name) {
			return false
		}
	}

	return true
}

// Is reports whether the entity carries all of the given tags.
func (s *Storage) Is(entityId EntityId, tags ...string) bool {
	c, ok := s.entities[entityId]
	if !ok {
		return false
	}

	for _, tag := range tags {
		if !c.tags.Has(tag) {
			return false
		}
	}

	return true
}

func (s *Storage) Mask(entityId EntityId) (Bitmask, bool) {
	c, ok := s.entities[entityId]
	if !ok {
		return Bitmask{}, false
	}

	return c.mask, true
}

// Tags returns the sorted tags of an entity.
func (s *Storage) Tags(entityId EntityId) []string {
	c, ok := s.entities[entityId]
	if !ok {
		return nil
	}

	return set.Sorted(&c.tags)
}

// ComponentLabels returns the labels of all component types bound to an entity,
// in the order they were bound.
func (s *Storage) ComponentLabels(entityId EntityId) []string {
	c, ok := s.entities[entityId]
	if !ok {
		return nil
	}

	labels := make([]string, 0, len(c.types))
	for _, ty := range c.types {
		labels = append(labels, ty.Label)
	}

	return labels
}

// BlueprintOf returns the blueprint an entity was created from.
func (s *Storage) BlueprintOf(entityId EntityId) (BlueprintId, bool) {
	c, ok := s.entities[entityId]
	if !ok {
		return 0, false
	}

	return c.blueprint, true
}

// Exists reports whether the entity is known, including entities pending destruction.
func (s *Storage) Exists(entityId EntityId) bool {
	_, ok := s.entities[entityId]
	return ok
}

func (s *Storage) IsDestroyed(entityId EntityId) bool {
	c, ok := s.entities[entityId]
	return ok && c.destroyed
}

// Entities returns a sorted snapshot of all entities not marked as destroyed.
func (s *Storage) Entities() []EntityId {
	entities := make([]EntityId, 0, len(s.entities))
	for entityId, c := range s.entities {
		if !c.destroyed {
			entities = append(entities, entityId)
		}
	}

	slices.Sort(entities)

	return entities
}

func (s *Storage) EntityCount() int {
	return len(s.entities) - len(s.toDestroy)
}

// Destroy marks an entity for removal. It stays visible to queries until the next Cleanup,
// all of its instances are recorded as removed.
func (s *Storage) Destroy(entityId EntityId) bool {
	c, err := s.live(entityId)
	if err != nil {
		return false
	}

	c.destroyed = true
	s.toDestroy = append(s.toDestroy, entityId)

	for _, instance := range c.allInstances() {
		s.mutations.removed(instance)
	}

	return true
}

// Cleanup ends the current tick. It evicts destroyed entities, brings all
// cached queries up to date and clears the mutation record.
func (s *Storage) Cleanup() {
	for _, entityId := range s.toDestroy {
		c := s.entities[entityId]

		for _, instance := range c.allInstances() {
			s.unbind(instance)
		}

		s.index.Remove(entityId, c.mask)
		delete(s.entities, entityId)
	}

	evicted := len(s.toDestroy)

	clear(s.toDestroy)
	s.toDestroy = s.toDestroy[:0]

	// every live query consumes the journal before it is truncated
	var queries int
	s.queries.All(func(query *Query) {
		queries++

		if query.status == QueryResolved {
			query.sync()
		}

		query.pruneMemo(s.index)
	})

	s.index.Truncate()
	s.mutations.clear()

	s.log.Debug(
		"Tick completed",
		zap.Uint64("tick", uint64(s.tick)),
		zap.Int("evicted", evicted),
		zap.Int("queries", queries),
	)

	s.tick++
}

// Query returns the cached query for the compiled constraints, creating it on first use.
func (s *Storage) Query(compiled CompiledQuery) *Query {
	if query := s.queries.Get(compiled); query != nil {
		return query
	}

	query := newQuery(s, compiled)
	s.queries.Add(query)

	s.log.Debug("New query created", zap.String("query", compiled.Key))

	return query
}

// Changed returns the entities that have a changed instance of every given type in the current tick.
func (s *Storage) Changed(labels ...string) []EntityId {
	return matchMutations(s.mutations.Changed, labels)
}

// Created returns the entities that have a created instance of every given type in the current tick.
func (s *Storage) Created(labels ...string) []EntityId {
	return matchMutations(s.mutations.Created, labels)
}

// Removed returns the entities that have a removed instance of every given type in the current tick.
func (s *Storage) Removed(labels ...string) []EntityId {
	return matchMutations(s.mutations.Removed, labels)
}

func matchMutations(mutations Mutations, labels []string) []EntityId {
	names := make([]string, 0, len(labels))
	for _, label := range labels {
		name, _ := parseQueryLabel(label)
		names = append(names, name)
	}

	var entities []EntityId
	for entityId := range mutations {
		if mutations.Contains(entityId, names...) {
			entities = append(entities, entityId)
		}
	}

	slices.Sort(entities)

	return entities
}

// Mutations returns a snapshot of the mutation record of the current tick.
func (s *Storage) Mutations() MutationRecord {
	return MutationRecord{
		Tick:    s.tick,
		Created: s.mutations.Created.clone(),
		Changed: s.mutations.Changed.clone(),
		Removed: s.mutations.Removed.clone(),
	}
}

// ComponentTypes returns all component types bound to this storage, sorted by label.
func (s *Storage) ComponentTypes() []*ComponentType {
	labels := slices.Sorted(maps.Keys(s.types))

	types := make([]*ComponentType, 0, len(labels))
	for _, label := range labels {
		types = append(types, s.types[label])
	}

	return types
}
