// Command gekkophys-sim runs a YAML scene headless for a number of fixed steps and logs
// the characters' tracks.
package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/gekko3d/gekkophys"
	"github.com/gekko3d/gekkophys/logging"
)

func main() {
	configPath := flag.String("config", "", "YAML config file (defaults when empty)")
	scenePath := flag.String("scene", "", "YAML scene file")
	ticks := flag.Uint64("ticks", 600, "number of fixed steps to run")
	threads := flag.Int("threads", -1, "override the configured thread count")
	every := flag.Uint64("every", 60, "log character state every N ticks")
	debug := flag.Bool("debug", false, "enable debug logging")
	flag.Parse()

	logger := logging.NewDefaultLogger("gekkophys-sim", *debug)
	if err := run(logger, *configPath, *scenePath, *ticks, *threads, *every); err != nil {
		logger.Errorf("%v", err)
		os.Exit(1)
	}
}

func run(logger logging.Logger, configPath, scenePath string, ticks uint64, threads int, every uint64) error {
	if scenePath == "" {
		return fmt.Errorf("no scene given, use -scene")
	}
	cfg := gekkophys.DefaultConfig()
	if configPath != "" {
		var err error
		if cfg, err = gekkophys.LoadConfig(configPath); err != nil {
			return err
		}
	}
	if threads >= 0 {
		cfg.Threads = threads
	}

	space, err := gekkophys.NewSpace(cfg, gekkophys.WithLogger(logger))
	if err != nil {
		return err
	}
	def, err := gekkophys.LoadSceneFile(scenePath)
	if err != nil {
		return err
	}
	scene, err := gekkophys.LoadScene(space, def)
	if err != nil {
		return err
	}
	logger.Infof("loaded %s: %d collidables, %d characters", scenePath, len(scene.Collidables), len(scene.Characters))

	start := time.Now()
	for tick := uint64(1); tick <= ticks; tick++ {
		for _, ch := range scene.Characters {
			ch.Apply(tick)
		}
		if err := space.Step(); err != nil {
			logger.Warnf("tick %d: %v", tick, err)
		}
		if every > 0 && (tick%every == 0 || tick == ticks) {
			report(logger, tick, scene)
		}
	}
	elapsed := time.Since(start)
	logger.Infof("%d ticks in %s (%.3f ms/tick), %d pairs, tree depth %d",
		ticks, elapsed, float64(elapsed.Microseconds())/1000/float64(max(ticks, 1)),
		space.NarrowPhase().PairCount(), space.BroadPhase().Depth())
	return nil
}

func report(logger logging.Logger, tick uint64, scene *gekkophys.Scene) {
	for i, ch := range scene.Characters {
		p := ch.Position()
		support := "air"
		switch {
		case ch.Support.HasTraction():
			support = "traction"
		case ch.Support.HasSupport():
			support = "sliding"
		}
		logger.Infof("tick %d character %d: pos (%.3f, %.3f, %.3f) %s %s",
			tick, i, p.X(), p.Y(), p.Z(), ch.Stance.CurrentStance(), support)
	}
}
