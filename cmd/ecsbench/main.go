package main

import (
	"context"
	"flag"
	"fmt"
	"math/rand/v2"
	"os"
	"os/signal"
	"time"

	"github.com/oliverbestmann/ecsdb"
	"github.com/pkg/profile"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

type Position struct {
	X, Y float64
}

type Velocity struct {
	X, Y float64
}

type Health struct {
	Points int
}

type Effect struct {
	Name     string
	Duration int
}

var (
	positionType = ecsdb.Define("position", Position{})
	velocityType = ecsdb.Define("velocity", Velocity{})
	healthType   = ecsdb.Define("health", Health{Points: 100})
	effectType   = ecsdb.DefineArray("effect", Effect{Duration: 10})
)

type options struct {
	configPath string
	worlds     int
	entities   int
	ticks      int
	profile    string
}

func main() {
	var opts options

	flag.StringVar(&opts.configPath, "config", "", "yaml file to load the world config from")
	flag.IntVar(&opts.worlds, "worlds", 4, "number of worlds to simulate concurrently")
	flag.IntVar(&opts.entities, "entities", 10_000, "number of entities to create per world")
	flag.IntVar(&opts.ticks, "ticks", 1_000, "number of ticks to simulate")
	flag.StringVar(&opts.profile, "profile", "", "write a cpu or mem profile")
	flag.Parse()

	if err := run(opts); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(opts options) error {
	switch opts.profile {
	case "":
	case "cpu":
		defer profile.Start(profile.CPUProfile, profile.ProfilePath(".")).Stop()
	case "mem":
		defer profile.Start(profile.MemProfile, profile.ProfilePath(".")).Stop()
	default:
		return fmt.Errorf("unknown profile %q", opts.profile)
	}

	config, err := loadConfig(opts.configPath)
	if err != nil {
		return err
	}

	if config.Log.Level == "" {
		config.Log.Level = "info"
		config.Log.Encoding = "console"
	}

	log, err := config.Log.Build()
	if err != nil {
		return err
	}

	defer func() { _ = log.Sync() }()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	group, ctx := errgroup.WithContext(ctx)

	for idx := range opts.worlds {
		group.Go(func() error {
			return simulate(ctx, log.With(zap.Int("worker", idx)), config, opts, uint64(idx))
		})
	}

	return group.Wait()
}

func loadConfig(path string) (ecsdb.Config, error) {
	if path == "" {
		return ecsdb.DefaultConfig(), nil
	}

	fp, err := os.Open(path)
	if err != nil {
		return ecsdb.Config{}, fmt.Errorf("open config: %w", err)
	}

	defer func() { _ = fp.Close() }()

	return ecsdb.LoadConfig(fp)
}

type blueprints struct {
	mover, static, buffed ecsdb.BlueprintId
}

func registerBlueprints(w *ecsdb.World) (blueprints, error) {
	var bps blueprints
	var err error

	base := ecsdb.NewBlueprint("static", positionType, healthType)

	if bps.static, err = w.Register(base); err != nil {
		return bps, err
	}

	if bps.mover, err = w.Register(base.Named("mover").With(velocityType.Erased())); err != nil {
		return bps, err
	}

	if bps.buffed, err = w.Register(base.Named("buffed").With(velocityType.Erased(), effectType.Erased())); err != nil {
		return bps, err
	}

	return bps, nil
}

func simulate(ctx context.Context, log *zap.Logger, config ecsdb.Config, opts options, seed uint64) error {
	w, err := ecsdb.NewWorld(ecsdb.WithConfig(config), ecsdb.WithLogger(log))
	if err != nil {
		return err
	}

	bps, err := registerBlueprints(w)
	if err != nil {
		return err
	}

	rng := rand.New(rand.NewPCG(seed, 0x5eed))

	spawn := func() error {
		switch rng.IntN(3) {
		case 0:
			_, err := w.Create(bps.static, nil)
			return err

		case 1:
			_, err := w.Create(bps.mover, ecsdb.Data{
				"velocity": Velocity{X: rng.Float64()*2 - 1, Y: rng.Float64()*2 - 1},
			}, "fast")
			return err

		default:
			_, err := w.Create(bps.buffed, ecsdb.Data{
				"effect": []Effect{{Name: "haste"}, {Name: "regeneration", Duration: 50}},
			})
			return err
		}
	}

	for range opts.entities {
		if err := spawn(); err != nil {
			return err
		}
	}

	w.Tick()

	movers := w.Query().All(positionType, velocityType)
	buffed := w.Query().All(effectType)
	wounded := w.Query().All(healthType).NoneTags("fast")

	startTime := time.Now()

	for tick := range opts.ticks {
		if err := ctx.Err(); err != nil {
			return err
		}

		for entityId := range movers.Items() {
			velocity, _ := ecsdb.Get(w, entityId, velocityType)

			ecsdb.Modify(w, entityId, positionType, func(value *Position) {
				value.X += velocity.X
				value.Y += velocity.Y
			})
		}

		for entityId := range buffed.Items() {
			effects := ecsdb.GetAll(w, entityId, effectType)

			for idx := len(effects) - 1; idx >= 0; idx-- {
				ecsdb.ModifyAt(w, entityId, effectType, idx, func(value *Effect) {
					value.Duration -= 1
				})
			}

			// expire the oldest effect once it ran out
			if len(effects) > 0 && effects[0].Duration <= 1 {
				instances := w.Instances(entityId)
				for _, instance := range instances {
					if instance.Type == effectType.Erased() {
						w.RemoveInstance(entityId, instance.Id)
						break
					}
				}
			}
		}

		// churn: destroy some entities, replace them with new ones
		entities := w.Entities()
		for range len(entities) / 100 {
			w.Destroy(entities[rng.IntN(len(entities))])

			if err := spawn(); err != nil {
				return err
			}
		}

		if tick%10 == 0 && len(entities) > 0 {
			entityId := entities[rng.IntN(len(entities))]
			_ = w.AddTags(entityId, "marked")
		}

		changed := len(w.Changed(positionType))

		w.Tick()

		if tick%100 == 0 {
			log.Debug(
				"Tick completed",
				zap.Int("tick", tick),
				zap.Int("changed", changed),
				zap.Int("wounded", wounded.Count()),
			)
		}
	}

	stats := w.Stats()

	log.Info(
		"Simulation finished",
		zap.Int("ticks", stats.Count),
		zap.Int("entities", len(w.Entities())),
		zap.Int("movers", movers.Count()),
		zap.Int("buffed", buffed.Count()),
		zap.Duration("elapsed", time.Since(startTime)),
		zap.Duration("tick_avg", stats.Average()),
		zap.Duration("tick_max", stats.Max),
	)

	return nil
}
