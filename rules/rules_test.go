package rules

import (
	"bytes"
	"sort"
	"testing"

	"github.com/brensch/snakebird/game"
)

func mustLoad(t *testing.T, ascii string, p game.Params) *game.Map {
	t.Helper()
	m, err := game.Load(ascii, p)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	return m
}

type succ struct {
	st    *game.State
	snake int
	dir   game.Direction
}

func expand(m *game.Map, st *game.State) []succ {
	var out []succ
	ForEachMove(m, st, func(next *game.State, snake int, dir game.Direction) bool {
		out = append(out, succ{st: next, snake: snake, dir: dir})
		return false
	})
	return out
}

// findMove returns the successor for (snake, dir), or nil.
func findMove(succs []succ, snake int, dir game.Direction) *game.State {
	for _, s := range succs {
		if s.snake == snake && s.dir == dir {
			return s.st
		}
	}
	return nil
}

func logExpansion(t *testing.T, name string, m *game.Map, before *game.State, succs []succ) {
	t.Helper()
	t.Logf("=== %s ===\nBefore:\n%s", name, m.Render(before))
	for _, s := range succs {
		t.Logf("snake %d %s:\n%s", s.snake, s.dir, m.Render(s.st))
	}
}

func TestMoveDragsTail(t *testing.T) {
	m := mustLoad(t, ""+
		"......."+
		".*    ."+
		".>R   ."+
		".......",
		game.Params{H: 4, W: 7, Snakes: 1, MaxLen: 2})
	st := game.NewState(m)
	succs := expand(m, st)
	logExpansion(t, "move drags tail", m, st, succs)

	right := findMove(succs, 0, game.Right)
	if right == nil {
		t.Fatalf("no right successor")
	}
	sn := right.Snakes[0]
	if sn.Head != uint16(2*7+3) || sn.Len != 2 || sn.TailDir(0) != game.Right {
		t.Fatalf("head=%d len=%d dir=%v", sn.Head, sn.Len, sn.TailDir(0))
	}

	// Down is wall, left is the snake's own body.
	if findMove(succs, 0, game.Down) != nil {
		t.Fatalf("moved into floor")
	}
	if findMove(succs, 0, game.Left) != nil {
		t.Fatalf("moved into own body")
	}
}

func TestGrowOnFruit(t *testing.T) {
	m := mustLoad(t, ""+
		"......."+
		".*    ."+
		".>RO  ."+
		".......",
		game.Params{H: 4, W: 7, Fruits: 1, Snakes: 1, MaxLen: 3})
	st := game.NewState(m)
	succs := expand(m, st)
	logExpansion(t, "grow on fruit", m, st, succs)

	right := findMove(succs, 0, game.Right)
	if right == nil {
		t.Fatalf("no right successor")
	}
	sn := right.Snakes[0]
	if sn.Len != 3 {
		t.Fatalf("len=%d want=3", sn.Len)
	}
	if sn.Head != uint16(2*7+3) {
		t.Fatalf("head=%d want=%d", sn.Head, 2*7+3)
	}
	if right.Fruit != 0 {
		t.Fatalf("fruit mask=%b want=0", right.Fruit)
	}
}

func TestPushGadget(t *testing.T) {
	m := mustLoad(t, ""+
		"......."+
		".*    ."+
		".>R0  ."+
		".......",
		game.Params{H: 4, W: 7, Snakes: 1, MaxLen: 2, Gadgets: 1})
	st := game.NewState(m)
	succs := expand(m, st)
	logExpansion(t, "push gadget", m, st, succs)

	right := findMove(succs, 0, game.Right)
	if right == nil {
		t.Fatalf("no push successor")
	}
	if right.Gadgets[0] != int16(m.Gadgets[0].Anchor+1) {
		t.Fatalf("gadget offset=%d want=%d", right.Gadgets[0], m.Gadgets[0].Anchor+1)
	}
	if right.Snakes[0].Head != uint16(2*7+3) {
		t.Fatalf("head=%d want=%d", right.Snakes[0].Head, 2*7+3)
	}
}

func TestPushBlockedByWall(t *testing.T) {
	m := mustLoad(t, ""+
		"......."+
		".*    ."+
		".>R0. ."+
		".......",
		game.Params{H: 4, W: 7, Snakes: 1, MaxLen: 2, Gadgets: 1})
	st := game.NewState(m)
	succs := expand(m, st)
	logExpansion(t, "push blocked", m, st, succs)

	if findMove(succs, 0, game.Right) != nil {
		t.Fatalf("pushed gadget into wall")
	}
}

func TestPushChainMovesTogether(t *testing.T) {
	m := mustLoad(t, ""+
		"........"+
		".*     ."+
		".>R01  ."+
		"........",
		game.Params{H: 4, W: 8, Snakes: 1, MaxLen: 2, Gadgets: 2})
	st := game.NewState(m)
	succs := expand(m, st)
	logExpansion(t, "push chain", m, st, succs)

	right := findMove(succs, 0, game.Right)
	if right == nil {
		t.Fatalf("no push successor")
	}
	for gi := 0; gi < 2; gi++ {
		if right.Gadgets[gi] != int16(m.Gadgets[gi].Anchor+1) {
			t.Fatalf("gadget %d offset=%d want=%d", gi, right.Gadgets[gi], m.Gadgets[gi].Anchor+1)
		}
	}
}

func TestFallOntoSpikesKillsEveryMove(t *testing.T) {
	// Every direction drops the snake onto the spike bed.
	m := mustLoad(t, ""+
		"........"+
		".*     ."+
		".>R    ."+
		"..     ."+
		"..~~~~~."+
		"........",
		game.Params{H: 6, W: 8, Snakes: 1, MaxLen: 2})
	st := game.NewState(m)
	succs := expand(m, st)
	logExpansion(t, "fall onto spikes", m, st, succs)

	if len(succs) != 0 {
		t.Fatalf("%d successors want 0", len(succs))
	}
}

func TestGadgetFallingOntoSpikeIsDestroyed(t *testing.T) {
	m := mustLoad(t, ""+
		"........"+
		".*     ."+
		".>R0   ."+
		"...    ."+
		"...~~~~."+
		"........",
		game.Params{H: 6, W: 8, Snakes: 1, MaxLen: 2, Gadgets: 1})
	st := game.NewState(m)
	succs := expand(m, st)
	logExpansion(t, "gadget onto spike", m, st, succs)

	right := findMove(succs, 0, game.Right)
	if right == nil {
		t.Fatalf("no push successor")
	}
	if right.Gadgets[0] != game.GadgetDeleted {
		t.Fatalf("gadget offset=%d want deleted", right.Gadgets[0])
	}
	if right.Snakes[0].Len != 2 {
		t.Fatalf("snake harmed by gadget's spike")
	}
}

func TestExitRequiresAllFruitEaten(t *testing.T) {
	ascii := "" +
		"........" +
		".  O   ." +
		".>R*   ." +
		"........"
	m := mustLoad(t, ascii, game.Params{H: 4, W: 8, Fruits: 1, Snakes: 1, MaxLen: 3})

	// With fruit on the board, walking onto the exit is just a move.
	st := game.NewState(m)
	succs := expand(m, st)
	logExpansion(t, "exit with fruit alive", m, st, succs)
	right := findMove(succs, 0, game.Right)
	if right == nil {
		t.Fatalf("no right successor")
	}
	if right.Snakes[0].Len != 2 || right.Win {
		t.Fatalf("exited with fruit remaining")
	}

	// With the fruit gone the same move exits and wins.
	st = game.NewState(m)
	st.DeleteFruit(0)
	succs = expand(m, st)
	logExpansion(t, "exit with fruit eaten", m, st, succs)
	right = findMove(succs, 0, game.Right)
	if right == nil {
		t.Fatalf("no right successor")
	}
	if right.Snakes[0].Len != 0 {
		t.Fatalf("snake len=%d want=0", right.Snakes[0].Len)
	}
	if !right.Win {
		t.Fatalf("win flag not set")
	}
}

func TestTeleportRelocatesSnake(t *testing.T) {
	m := mustLoad(t, ""+
		".........."+
		".*       ."+
		". >RT  T ."+
		"..........",
		game.Params{H: 4, W: 10, Snakes: 1, MaxLen: 2, Teleports: 1})
	st := game.NewState(m)
	succs := expand(m, st)
	logExpansion(t, "teleport", m, st, succs)

	right := findMove(succs, 0, game.Right)
	if right == nil {
		t.Fatalf("no right successor")
	}
	// Stepping onto the first endpoint relocates the whole snake by the
	// endpoint displacement.
	if right.Snakes[0].Head != uint16(2*10+7) {
		t.Fatalf("head=%d want=%d", right.Snakes[0].Head, 2*10+7)
	}
}

func TestBlockedTeleportDoesNotFire(t *testing.T) {
	// The body's landing cell next to the far endpoint is walled off.
	m := mustLoad(t, ""+
		".........."+
		".*       ."+
		". >RT .T ."+
		"..........",
		game.Params{H: 4, W: 10, Snakes: 1, MaxLen: 2, Teleports: 1})
	st := game.NewState(m)
	succs := expand(m, st)
	logExpansion(t, "blocked teleport", m, st, succs)

	right := findMove(succs, 0, game.Right)
	if right == nil {
		t.Fatalf("no right successor")
	}
	if right.Snakes[0].Head != uint16(2*10+4) {
		t.Fatalf("head=%d want=%d (teleport should not fire)", right.Snakes[0].Head, 2*10+4)
	}
}

func TestResolveSettlesFloatingGadget(t *testing.T) {
	m := mustLoad(t, ""+
		"......."+
		".*    ."+
		".  0  ."+
		".>R   ."+
		".......",
		game.Params{H: 5, W: 7, Snakes: 1, MaxLen: 2, Gadgets: 1})
	st := game.NewState(m)
	if !Resolve(m, st, 0) {
		t.Fatalf("resolve rejected the start state")
	}
	t.Logf("settled:\n%s", m.Render(st))

	if st.Gadgets[0] != int16(m.Gadgets[0].Anchor+m.P.W) {
		t.Fatalf("gadget offset=%d want=%d", st.Gadgets[0], m.Gadgets[0].Anchor+m.P.W)
	}
}

func TestEngineIsDeterministic(t *testing.T) {
	m := mustLoad(t, ""+
		"........"+
		".*     ."+
		".>RO0  ."+
		"........",
		game.Params{H: 4, W: 8, Fruits: 1, Snakes: 1, MaxLen: 3, Gadgets: 1})
	st := game.NewState(m)

	pack := func(succs []succ) [][]byte {
		var out [][]byte
		for _, s := range succs {
			out = append(out, m.Pack(s.st, nil))
		}
		sort.Slice(out, func(i, j int) bool { return bytes.Compare(out[i], out[j]) < 0 })
		return out
	}

	a := pack(expand(m, st))
	b := pack(expand(m, st))
	if len(a) == 0 {
		t.Fatalf("no successors")
	}
	if len(a) != len(b) {
		t.Fatalf("successor counts differ: %d vs %d", len(a), len(b))
	}
	for i := range a {
		if !bytes.Equal(a[i], b[i]) {
			t.Fatalf("successor %d differs between runs", i)
		}
	}
}
