package search

import (
	"bytes"
	"log/slog"
	"testing"

	"github.com/brensch/snakebird/game"
	"github.com/brensch/snakebird/rules"
)

func quiet() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func corridor(t *testing.T) *game.Map {
	t.Helper()
	m, err := game.Load(""+
		"........"+
		".>R   *."+
		"........",
		game.Params{H: 3, W: 8, Snakes: 1, MaxLen: 2})
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	return m
}

func TestSolveCorridor(t *testing.T) {
	m := corridor(t)
	res, err := Solve(m, Config{
		MemTarget: 1 << 20,
		TempDir:   t.TempDir(),
		Shards:    2,
		Logger:    quiet(),
	})
	if err != nil {
		t.Fatalf("solve: %v", err)
	}
	if !res.Solved {
		t.Fatalf("not solved")
	}
	if res.Moves != 4 {
		t.Fatalf("moves=%d want=4", res.Moves)
	}
	if len(res.Path) != res.Moves+1 {
		t.Fatalf("path len=%d want=%d", len(res.Path), res.Moves+1)
	}

	// The path starts at the (resolved, canonical) initial state and
	// ends at the win.
	start := game.NewState(m)
	if !rules.Resolve(m, start, 0) {
		t.Fatalf("start state dies")
	}
	start.Canonicalize()
	if !bytes.Equal(res.Path[0], m.Pack(start, nil)) {
		t.Fatalf("path does not begin at the start state")
	}
	if last := m.Unpack(res.Path[len(res.Path)-1]); !last.Win {
		t.Fatalf("path does not end in a win")
	}
}

func TestSolvedPathIsLegal(t *testing.T) {
	m := corridor(t)
	res, err := Solve(m, Config{TempDir: t.TempDir(), Logger: quiet()})
	if err != nil {
		t.Fatalf("solve: %v", err)
	}
	if !res.Solved {
		t.Fatalf("not solved")
	}

	// Every consecutive pair of path states must be one engine move
	// apart.
	scratch := make([]byte, m.PackedLen)
	for i := 0; i+1 < len(res.Path); i++ {
		st := m.Unpack(res.Path[i])
		hit := false
		rules.ForEachMove(m, st, func(next *game.State, _ int, _ game.Direction) bool {
			m.Pack(next, scratch)
			if bytes.Equal(scratch, res.Path[i+1]) {
				hit = true
				return true
			}
			return false
		})
		if !hit {
			t.Fatalf("path step %d -> %d is not a legal move", i, i+1)
		}
	}
}

func TestNoSolution(t *testing.T) {
	// The exit sits behind a wall the snake can never cross.
	m, err := game.Load(""+
		"........"+
		".>R  .*."+
		"........",
		game.Params{H: 3, W: 8, Snakes: 1, MaxLen: 2})
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	res, err := Solve(m, Config{TempDir: t.TempDir(), Logger: quiet()})
	if err != nil {
		t.Fatalf("solve: %v", err)
	}
	if res.Solved {
		t.Fatalf("solved an unsolvable map")
	}
	if res.Moves != 0 {
		t.Fatalf("moves=%d want=0", res.Moves)
	}
	if res.Visited < 2 {
		t.Fatalf("visited=%d, expected to explore the corridor", res.Visited)
	}
}

func TestShardResizing(t *testing.T) {
	// Every corridor depth emits one pair, so a two-pair low water halves
	// the shard count after each depth until it reaches one; the answer
	// must not change.
	m := corridor(t)
	res, err := Solve(m, Config{
		TempDir:       t.TempDir(),
		Shards:        4,
		ShardLowWater: 2,
		Logger:        quiet(),
	})
	if err != nil {
		t.Fatalf("solve: %v", err)
	}
	if !res.Solved || res.Moves != 4 {
		t.Fatalf("solved=%v moves=%d want solved, 4", res.Solved, res.Moves)
	}
	var shards []int
	for _, d := range res.Depths {
		shards = append(shards, d.Shards)
	}
	if len(shards) != 3 || shards[0] != 4 || shards[1] != 2 || shards[2] != 1 {
		t.Fatalf("shards per depth=%v want [4 2 1]", shards)
	}
}

func TestDepthStatsAreRecorded(t *testing.T) {
	m := corridor(t)
	res, err := Solve(m, Config{TempDir: t.TempDir(), Logger: quiet()})
	if err != nil {
		t.Fatalf("solve: %v", err)
	}
	// The win is found while expanding depth 3's frontier, so three
	// dedup rounds ran before it.
	if len(res.Depths) != res.Moves-1 {
		t.Fatalf("depth stats=%d want=%d", len(res.Depths), res.Moves-1)
	}
	for i, d := range res.Depths {
		if d.Depth != i+1 {
			t.Fatalf("stat %d depth=%d", i, d.Depth)
		}
		if d.Unique <= 0 || d.Emitted < d.Unique {
			t.Fatalf("stat %d unique=%d emitted=%d", i, d.Unique, d.Emitted)
		}
	}
}
