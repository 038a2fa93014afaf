package ecsdb

import (
	"time"

	"github.com/google/uuid"
	"github.com/oliverbestmann/ecsdb/spoke"
	"go.uber.org/zap"
)

// World holds all entities of a simulation together with their components and tags.
//
// A World is not safe for concurrent use. Mutations and queries of the same world
// must be sequenced by the caller, Tick must run exactly once between two frames.
type World struct {
	id      uuid.UUID
	storage *spoke.Storage
	config  Config
	log     *zap.Logger

	ticks Timings
}

type Option func(*worldOptions)

type worldOptions struct {
	config Config
	log    *zap.Logger
}

func WithConfig(config Config) Option {
	return func(o *worldOptions) {
		o.config = config
	}
}

// WithLogger overrides the logger built from the log section of the config.
func WithLogger(log *zap.Logger) Option {
	return func(o *worldOptions) {
		o.log = log
	}
}

// NewWorld creates a new empty world.
func NewWorld(options ...Option) (*World, error) {
	opts := worldOptions{config: DefaultConfig()}
	for _, option := range options {
		option(&opts)
	}

	if err := opts.config.Validate(); err != nil {
		return nil, err
	}

	log := opts.log
	if log == nil {
		var err error

		log, err = opts.config.Log.Build()
		if err != nil {
			return nil, err
		}
	}

	id := uuid.New()
	log = log.With(zap.Stringer("world", id))

	storage := spoke.NewStorage(
		spoke.WithLogger(log),
		spoke.WithMaxResolveAttempts(opts.config.MaxResolveAttempts),
		spoke.WithDuplicateWarnings(opts.config.WarnDuplicates),
	)

	log.Debug("World created", zap.Int("max_resolve_attempts", opts.config.MaxResolveAttempts))

	return &World{
		id:      id,
		storage: storage,
		config:  opts.config,
		log:     log,
	}, nil
}

func (w *World) Id() uuid.UUID {
	return w.id
}

func (w *World) Config() Config {
	return w.config
}

// Storage gives direct access to the untyped store backing the world.
func (w *World) Storage() *spoke.Storage {
	return w.storage
}

// CurrentTick returns the tick that is in progress.
func (w *World) CurrentTick() Tick {
	return w.storage.Tick()
}

func (w *World) Register(blueprint Blueprint) (BlueprintId, error) {
	return w.storage.RegisterBlueprint(blueprint)
}

// Create builds an entity from a registered blueprint.
func (w *World) Create(blueprint BlueprintId, data Data, tags ...string) (EntityId, error) {
	return w.storage.Create(blueprint, data, tags...)
}

// AddComponent binds a component to an entity. Data may be nil to use the defaults
// of the component type, a value, or a map with a subset of its fields.
func (w *World) AddComponent(entityId EntityId, ty AnyComponentType, data any) error {
	return w.storage.AddComponent(entityId, ty.Erased(), data)
}

func (w *World) RemoveComponent(entityId EntityId, ty AnyComponentType) bool {
	return w.storage.RemoveComponent(entityId, ty.Erased())
}

func (w *World) AddTags(entityId EntityId, tags ...string) error {
	return w.storage.AddTags(entityId, tags...)
}

func (w *World) RemoveTags(entityId EntityId, tags ...string) error {
	return w.storage.RemoveTags(entityId, tags...)
}

// Destroy marks the entity for removal. It is evicted with the next call to Tick.
func (w *World) Destroy(entityId EntityId) bool {
	return w.storage.Destroy(entityId)
}

func (w *World) Has(entityId EntityId, types ...AnyComponentType) bool {
	return w.storage.Has(entityId, labelsOf(types)...)
}

func (w *World) Is(entityId EntityId, tags ...string) bool {
	return w.storage.Is(entityId, tags...)
}

func (w *World) Tags(entityId EntityId) []string {
	return w.storage.Tags(entityId)
}

// Entities returns a sorted snapshot of all entities not pending destruction.
func (w *World) Entities() []EntityId {
	return w.storage.Entities()
}

// Tick ends the current frame: destroyed entities are evicted, cached queries
// are brought up to date and the change record is cleared.
func (w *World) Tick() {
	startTime := time.Now()

	w.storage.Cleanup()

	duration := time.Since(startTime)
	w.logSlowTick(duration)

	w.ticks = w.ticks.Add(duration)
}

// Stats returns the timings of all ticks so far.
func (w *World) Stats() Timings {
	return w.ticks
}

// Changed returns the entities that changed an instance of every given type during this tick.
func (w *World) Changed(types ...AnyComponentType) []EntityId {
	return w.storage.Changed(labelsOf(types)...)
}

// Created returns the entities that received a new instance of every given type during this tick.
func (w *World) Created(types ...AnyComponentType) []EntityId {
	return w.storage.Created(labelsOf(types)...)
}

// Removed returns the entities that lost an instance of every given type during this tick.
func (w *World) Removed(types ...AnyComponentType) []EntityId {
	return w.storage.Removed(labelsOf(types)...)
}

func (w *World) logSlowTick(d time.Duration) {
	if w.ticks.Count < 10 || d < 10*w.ticks.MovingAverage {
		return
	}

	w.log.Info(
		"Slow tick",
		zap.Uint64("tick", uint64(w.storage.Tick())),
		zap.Duration("duration", d),
		zap.Duration("average", w.ticks.MovingAverage),
	)
}
