// Command solve runs the optimal-solution solver over the built-in
// puzzle catalogue, printing each puzzle, the solution states, and a
// summary line, and comparing the move count against the catalogued
// optimum.
package main

import (
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/brensch/snakebird/game"
	"github.com/brensch/snakebird/levels"
	"github.com/brensch/snakebird/logging"
	"github.com/brensch/snakebird/search"
	"github.com/brensch/snakebird/store"
)

func main() {
	levelNames := flag.String("levels", "", "comma-separated level names to solve (default: all)")
	list := flag.Bool("list", false, "list built-in levels and exit")
	renderOnly := flag.Bool("render", false, "print initial states without solving")
	noPath := flag.Bool("no-path", false, "skip printing every state along the solution")
	mem := flag.Int64("mem", 2<<30, "solver memory target in bytes")
	shards := flag.Int("shards", 1, "initial successor shard count")
	tmpDir := flag.String("tmp", "", "directory for spill files (default: system temp)")
	archive := flag.String("archive", "", "write a parquet archive of results into this directory")
	verbose := flag.Bool("v", false, "debug logging")
	flag.Parse()

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(logging.NewLineHandler(os.Stderr, level))
	slog.SetDefault(logger)

	if *list {
		for _, l := range levels.All {
			fmt.Printf("%-12s %2dx%-2d expected %d moves\n", l.Name, l.Params.H, l.Params.W, l.Expected)
		}
		return
	}

	selected := levels.All
	if *levelNames != "" {
		selected = nil
		for _, name := range strings.Split(*levelNames, ",") {
			l, ok := levels.ByName(strings.TrimSpace(name))
			if !ok {
				log.Fatalf("unknown level %q", name)
			}
			selected = append(selected, l)
		}
	}

	cfg := search.Config{
		MemTarget: *mem,
		TempDir:   *tmpDir,
		Shards:    *shards,
		Logger:    logger,
	}

	var rows []store.SolveRow
	failures := 0
	for _, l := range selected {
		row := solveLevel(l, cfg, *renderOnly, !*noPath)
		if row == nil {
			continue
		}
		rows = append(rows, *row)
		if l.Expected > 0 && int(row.Moves) != l.Expected {
			logger.Error("move count mismatch",
				"level", l.Name, "want", l.Expected, "got", row.Moves)
			failures++
		}
	}

	if *archive != "" && len(rows) > 0 {
		path, err := store.WriteSolveParquet(*archive, rows)
		if err != nil {
			log.Fatalf("write archive: %v", err)
		}
		logger.Info("archive written", "path", path)
	}
	if failures > 0 {
		os.Exit(1)
	}
}

// solveLevel solves one puzzle and returns its archive row, or nil in
// render-only mode. The returned move count is 0 when unsolved.
func solveLevel(l levels.Level, cfg search.Config, renderOnly, showPath bool) *store.SolveRow {
	m, err := l.Load()
	if err != nil {
		log.Fatalf("load %s: %v", l.Name, err)
	}

	fmt.Printf("%s (%dx%d, packed state %d bytes)\n", l.Name, l.Params.H, l.Params.W, m.PackedLen)
	fmt.Print(m.Render(game.NewState(m)))
	if renderOnly {
		return nil
	}

	began := time.Now()
	res, err := search.Solve(m, cfg)
	if err != nil {
		log.Fatalf("solve %s: %v", l.Name, err)
	}

	if !res.Solved {
		fmt.Println("No solution")
	} else if showPath {
		for _, packed := range res.Path {
			fmt.Println()
			fmt.Print(m.Render(m.Unpack(packed)))
		}
	}
	fmt.Printf("%d states, %d moves, %d bytes\n\n", res.Visited, res.Moves, res.StoreBytes)

	row := &store.SolveRow{
		Level:     l.Name,
		Solved:    res.Solved,
		Moves:     int32(res.Moves),
		Expected:  int32(l.Expected),
		Visited:   res.Visited,
		Expanded:  res.Expanded,
		Bytes:     res.StoreBytes,
		PackedLen: int32(m.PackedLen),
		ElapsedMs: time.Since(began).Milliseconds(),
	}
	for _, d := range res.Depths {
		row.Depths = append(row.Depths, store.DepthRow{
			Depth:     int32(d.Depth),
			Frontier:  d.Frontier,
			Emitted:   d.Emitted,
			Unique:    d.Unique,
			Shards:    int32(d.Shards),
			RunBytes:  d.RunBytes,
			ElapsedMs: d.Elapsed.Milliseconds(),
		})
	}
	return row
}
