// Command precalculate runs a scenario to convergence offline and writes the
// final positions keyed by node id.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/onnwee/forcegraph/internal/config"
	"github.com/onnwee/forcegraph/internal/device"
	"github.com/onnwee/forcegraph/internal/engine"
	"github.com/onnwee/forcegraph/internal/graph"
	"github.com/onnwee/forcegraph/internal/logger"
)

const defaultMaxTicks = 5000

// Result is the JSON document written by precalculate.
type Result struct {
	Ticks     uint64                `json:"ticks"`
	Converged bool                  `json:"converged"`
	Alpha     float64               `json:"alpha"`
	Positions map[string][2]float64 `json:"positions"`
}

func main() {
	scenario := flag.String("scenario", "", "path to a TOML scenario file")
	maxTicks := flag.Int("max-ticks", 0, "tick limit (overrides the scenario, default 5000)")
	out := flag.String("out", "", "output file (default stdout)")
	flag.Parse()

	cfg := config.Load()
	logger.Init(cfg.LogLevel)

	if *scenario == "" {
		fmt.Fprintln(os.Stderr, "usage: precalculate -scenario graph.toml [-max-ticks N] [-out positions.json]")
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, *scenario, *maxTicks, *out, cfg.DeviceOptions()); err != nil {
		logger.Error("Precalculation failed", "scenario", *scenario, "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, path string, maxTicks int, out string, devOpts device.Options) error {
	sc, err := config.LoadScenario(path)
	if err != nil {
		return err
	}
	if maxTicks <= 0 {
		maxTicks = sc.MaxTicks
	}
	if maxTicks <= 0 {
		maxTicks = defaultMaxTicks
	}

	start := time.Now()
	res, err := precalculate(ctx, sc, maxTicks, devOpts)
	if err != nil {
		return err
	}
	logger.Info("Precalculation finished",
		"points", len(res.Positions),
		"ticks", res.Ticks,
		"converged", res.Converged,
		"duration", time.Since(start))

	var w io.Writer = os.Stdout
	if out != "" {
		f, err := os.Create(out)
		if err != nil {
			return fmt.Errorf("create output: %w", err)
		}
		defer f.Close()
		w = f
	}
	return writeResult(w, res)
}

// precalculate ticks the scenario until it converges, maxTicks is reached
// or ctx is cancelled.
func precalculate(ctx context.Context, sc *config.Scenario, maxTicks int, devOpts device.Options) (*Result, error) {
	data, err := graph.Compile(sc.Graph)
	if err != nil {
		return nil, fmt.Errorf("compile graph: %w", err)
	}

	e, err := engine.New(device.New(devOpts), sc.Params, sc.EngineOptions())
	if err != nil {
		return nil, fmt.Errorf("create engine: %w", err)
	}
	defer e.Destroy()

	e.SetData(data)
	if err := e.Start(1); err != nil {
		return nil, err
	}

	for frame := uint64(1); frame <= uint64(maxTicks); frame++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if _, err := e.Frame(ctx, frame); err != nil {
			return nil, fmt.Errorf("frame %d: %w", frame, err)
		}
		if e.State() == engine.Converged {
			break
		}
	}

	positions, err := e.Positions()
	if err != nil {
		return nil, err
	}
	res := &Result{
		Ticks:     e.Tick(),
		Converged: e.State() == engine.Converged,
		Alpha:     e.Alpha(),
		Positions: make(map[string][2]float64, len(positions)),
	}
	for i, p := range positions {
		res.Positions[data.IDs[i]] = [2]float64{p.X, p.Y}
	}
	return res, nil
}

func writeResult(w io.Writer, res *Result) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(res); err != nil {
		return fmt.Errorf("write positions: %w", err)
	}
	return nil
}
