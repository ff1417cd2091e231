// Command ridesim runs one discrete-event simulation of the two-sided
// on-demand mobility market (spec.md) to completion from a YAML config file,
// grounded on the teacher's main.go flag-parsing/warn-and-fall-back style,
// generalised from an HTTP demo server to a batch driver.
package main

import (
	"context"
	"encoding/csv"
	"flag"
	"log/slog"
	"math/rand"
	"os"
	"time"

	"ridesim/api"
	"ridesim/config"
	"ridesim/demand"
	"ridesim/fleet"
	"ridesim/geo"
	"ridesim/logging"
	"ridesim/sim"
	"ridesim/stats"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to the simulation run config")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logging.Fatal("load config", "err", err)
	}

	level := slog.LevelInfo
	_ = level.UnmarshalText([]byte(cfg.LogLevel))
	logging.Init(level, cfg.LogFormat)

	if err := run(cfg); err != nil {
		logging.Fatal("simulation run failed", "err", err)
	}
}

func run(cfg *config.Config) error {
	mapFile, err := os.Open(cfg.MapFile)
	if err != nil {
		return err
	}
	defer mapFile.Close()
	g, err := geo.LoadGraph(mapFile)
	if err != nil {
		return err
	}

	if cfg.ShortestPathTimeFile != "" {
		if f, err := os.Open(cfg.ShortestPathTimeFile); err == nil {
			defer f.Close()
			if err := g.LoadDurationTable(f); err != nil {
				return err
			}
		} else {
			logging.Logger.Warn("shortest_path_time_file unreadable, falling back to Dijkstra", "err", err)
		}
	}
	if cfg.ShortestPathDistFile != "" {
		if f, err := os.Open(cfg.ShortestPathDistFile); err == nil {
			defer f.Close()
			if err := g.LoadDistanceTable(f); err != nil {
				return err
			}
		} else {
			logging.Logger.Warn("shortest_path_distance_file unreadable, falling back to Dijkstra", "err", err)
		}
	}

	vehicleFile, err := os.Open(cfg.VehicleFile)
	if err != nil {
		return err
	}
	defer vehicleFile.Close()
	quantities, err := fleet.LoadFleetFromReader(vehicleFile)
	if err != nil {
		return err
	}

	rng := rand.New(rand.NewSource(cfg.Seed))
	depot := geo.AtNode(g.DepotNode())
	initialActiveAV := countQuantity(quantities, "AV")
	vehicles := fleet.BuildFleet(quantities, depot, initialActiveAV, rng)

	records, err := loadDemand(cfg, g, rng)
	if err != nil {
		return err
	}

	writers, err := stats.NewWriters(cfg.OutputDir)
	if err != nil {
		return err
	}
	defer writers.Close()

	s := sim.New(cfg, g, writers)
	s.SeedFleet(vehicles)
	s.SeedDemand(records)
	s.ScheduleRecurring()

	if cfg.PostgresDSN != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		pg, err := stats.NewPostgresMirror(ctx, cfg.PostgresDSN)
		if err != nil {
			logging.Logger.Warn("postgres mirror disabled", "err", err)
		} else {
			defer pg.Close()
			s.SetPostgresMirror(pg)
		}
	}

	if cfg.KafkaBrokers != "" {
		b, err := stats.NewBroadcaster(cfg.KafkaBrokers, cfg.KafkaTopic)
		if err != nil {
			logging.Logger.Warn("kafka broadcaster disabled", "err", err)
		} else {
			defer b.Close()
			s.SetBroadcaster(b)
		}
	}

	if cfg.MonitorAddr != "" {
		mon := api.New()
		go mon.Watch(s.Monitor())
		go func() {
			if err := api.ListenAndServe(cfg.MonitorAddr, mon); err != nil {
				logging.Logger.Warn("monitor server stopped", "err", err)
			}
		}()
	}

	logging.Logger.Info("starting simulation", "seed", cfg.Seed, "vehicles", len(vehicles), "passengers", len(records))
	if err := s.Run(); err != nil {
		return err
	}
	logging.Logger.Info("simulation complete")
	return nil
}

// loadDemand validates and, if necessary, injects the derived passenger
// attributes (SPEC_FULL.md §C.1) before loading and shaping the demand
// stream (SPEC_FULL.md §C.2).
func loadDemand(cfg *config.Config, g *geo.Graph, rng *rand.Rand) ([]demand.Record, error) {
	header, err := readHeader(cfg.PassengerFile)
	if err != nil {
		return nil, err
	}

	passengerFile := cfg.PassengerFile
	if missing := demand.ValidateAndInject(header); len(missing) > 0 {
		logging.Logger.Info("injecting derived passenger attributes", "missing", missing)
		in, err := os.Open(cfg.PassengerFile)
		if err != nil {
			return nil, err
		}
		defer in.Close()

		augmented, err := os.CreateTemp("", "ridesim-passengers-*.csv")
		if err != nil {
			return nil, err
		}
		defer augmented.Close()
		if err := demand.Preprocess(in, augmented, g, rng); err != nil {
			return nil, err
		}
		if _, err := augmented.Seek(0, 0); err != nil {
			return nil, err
		}
		passengerFile = augmented.Name()
	}

	f, err := os.Open(passengerFile)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	return demand.LoadRecords(f, cfg.DemandFraction, cfg.DemandWindowHours, cfg.DemandShiftHours, rng)
}

func readHeader(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	r := csv.NewReader(f)
	return r.Read()
}

func countQuantity(q []fleet.Quantity, kind string) int {
	n := 0
	for _, it := range q {
		if it.Kind == kind {
			n += it.Quantity
		}
	}
	return n
}
