// Package rules is the transition engine: it enumerates the legal
// successors of a state under the movement, pushing, gravity, teleport,
// fruit and exit semantics.
//
// The engine is purely functional over its inputs. Every candidate move
// works on a clone of the input state; a candidate that any resolution
// step rejects is discarded, which callers treat as "that move is
// illegal", never as an error.
package rules

import (
	"github.com/brensch/snakebird/game"
)

var dirs = [4]game.Direction{game.Up, game.Right, game.Down, game.Left}

// MoveFn receives each legal successor, already resolved and
// canonicalized, with the snake slot and direction that produced it.
// Returning true stops enumeration.
type MoveFn func(next *game.State, snake int, dir game.Direction) bool

func snakeMask(si int) uint32 {
	return 1 << uint(si)
}

func gadgetMask(m *game.Map, gi int) uint32 {
	return 1 << uint(len(m.Snakes)+gi)
}

// ForEachMove enumerates every legal (snake, direction) move from st. For
// each it attempts, in order: growing onto a fruit, moving into empty
// space, or pushing the object chain ahead. The successful candidate is
// run through the exit/teleport/gravity fixed point before being handed
// to fn.
func ForEachMove(m *game.Map, st *game.State, fn MoveFn) {
	obj := m.BuildObjMap(st)
	teleMask := teleporterOverlap(m, obj)

	pushObj := m.NewObjMap()
	pushSt := st.Clone()

	for si := range st.Snakes {
		if st.Snakes[si].Len == 0 {
			continue
		}
		// Occupancy with this snake's tail tip vacated: when the snake
		// advances, the tip cell frees up for whatever it pushes.
		copy(pushSt.Snakes, st.Snakes)
		copy(pushSt.Gadgets, st.Gadgets)
		pushSt.Fruit = st.Fruit
		pushSt.Snakes[si].Len--
		pushObj.Rebuild(pushSt)

		for _, dir := range dirs {
			delta := m.Delta(dir)
			to := int(st.Snakes[si].Head) + delta

			if fi, ok := fruitAt(m, st, to); ok {
				next := st.Clone()
				next.Snakes[si].Grow(dir, delta)
				next.DeleteFruit(fi)
				if Resolve(m, next, teleMask) {
					next.Canonicalize()
					if fn(next, si, dir) {
						return
					}
				}
			} else if obj.NoObjectAt(to) && m.Empty(to) {
				next := st.Clone()
				next.Snakes[si].Move(dir, delta)
				if Resolve(m, next, teleMask) {
					next.Canonicalize()
					if fn(next, si, dir) {
						return
					}
				}
			} else if pushed, ok := pushClosure(m, st, pushObj, m.SnakeID(si), int(st.Snakes[si].Head), delta); ok && pushed&snakeMask(si) == 0 {
				next := st.Clone()
				next.Snakes[si].Move(dir, delta)
				applyPush(next, m, pushed, delta)
				if Resolve(m, next, teleMask) {
					next.Canonicalize()
					if fn(next, si, dir) {
						return
					}
				}
			}
		}
	}
}

// fruitAt returns the index of a live fruit at cell to.
func fruitAt(m *game.Map, st *game.State, to int) (int, bool) {
	for fi, cell := range m.FruitCells {
		if st.FruitActive(fi) && cell == to {
			return fi, true
		}
	}
	return 0, false
}

// pushClosure computes the transitive set of objects displaced when
// pusherID pushes from pushAt by delta. It fails when anything in the set
// would enter terrain, fruit, or cannot move.
func pushClosure(m *game.Map, st *game.State, obj *game.ObjMap, pusherID uint8, pushAt, delta int) (uint32, bool) {
	to := pushAt + delta
	if obj.NoObjectAt(to) || obj.IDAt(to) == pusherID || obj.FruitAt(to) {
		return 0, false
	}

	pushed := obj.MaskAt(to)
	for again := true; again; {
		again = false
		for si := range st.Snakes {
			if pushed&snakeMask(si) == 0 {
				continue
			}
			more, ok := snakeCanBePushed(m, st, obj, si, delta)
			if !ok {
				return 0, false
			}
			if more&^pushed != 0 {
				pushed |= more
				again = true
			}
		}
		for gi := range st.Gadgets {
			if pushed&gadgetMask(m, gi) == 0 {
				continue
			}
			more, ok := gadgetCanBePushed(m, st, obj, gi, delta)
			if !ok {
				return 0, false
			}
			if more&^pushed != 0 {
				pushed |= more
				again = true
			}
		}
	}
	return pushed, true
}

func snakeCanBePushed(m *game.Map, st *game.State, obj *game.ObjMap, si, delta int) (uint32, bool) {
	sn := &st.Snakes[si]
	var more uint32
	to := int(sn.Head) + delta
	for j := 0; j < int(sn.Len); j++ {
		if !m.Empty(to) || obj.FruitAt(to) {
			return 0, false
		}
		if obj.ForeignObjectAt(to, m.SnakeID(si)) {
			more |= obj.MaskAt(to)
		}
		to -= m.Delta(sn.TailDir(j))
	}
	return more, true
}

func gadgetCanBePushed(m *game.Map, st *game.State, obj *game.ObjMap, gi, delta int) (uint32, bool) {
	off := int(st.Gadgets[gi])
	var more uint32
	for _, c := range m.Gadgets[gi].Cells {
		to := c + off + delta
		if !m.Empty(to) || obj.FruitAt(to) {
			return 0, false
		}
		if !obj.NoObjectAt(to) {
			more |= obj.MaskAt(to)
		}
	}
	return more, true
}

// applyPush translates every object in mask by delta.
func applyPush(st *game.State, m *game.Map, mask uint32, delta int) {
	for si := range st.Snakes {
		if mask&snakeMask(si) != 0 {
			st.Snakes[si].Head = uint16(int(st.Snakes[si].Head) + delta)
		}
	}
	for gi := range st.Gadgets {
		if mask&gadgetMask(m, gi) != 0 {
			st.Gadgets[gi] += int16(delta)
		}
	}
}

// hazardCheck inspects every object in mask after a fall. A snake resting
// on a spike or block kills the whole candidate. A gadget on a block is
// likewise fatal; a gadget on a spike is silently destroyed.
func hazardCheck(m *game.Map, st *game.State, mask uint32) bool {
	for si := range st.Snakes {
		if mask&snakeMask(si) == 0 {
			continue
		}
		sn := &st.Snakes[si]
		i := int(sn.Head)
		for j := 0; j < int(sn.Len); j++ {
			if t := m.Terrain(i); t == '~' || t == '#' {
				return false
			}
			i -= m.Delta(sn.TailDir(j))
		}
	}
	for gi := range st.Gadgets {
		if mask&gadgetMask(m, gi) == 0 || st.Gadgets[gi] == game.GadgetDeleted {
			continue
		}
		off := int(st.Gadgets[gi])
		for _, c := range m.Gadgets[gi].Cells {
			switch m.Terrain(c + off) {
			case '#':
				return false
			case '~':
				st.Gadgets[gi] = game.GadgetDeleted
			}
		}
	}
	return true
}

// teleporterOverlap returns the mask of (object, teleporter endpoint)
// pairs currently overlapping. Teleports fire on the rising edge of this
// mask.
func teleporterOverlap(m *game.Map, obj *game.ObjMap) uint32 {
	width := uint(len(m.Snakes) + len(m.Gadgets))
	var mask uint32
	for i, t := range m.Teleporters {
		mask |= (obj.MaskAt(t[0]) | obj.MaskAt(t[1])<<width) << (width * 2 * uint(i))
	}
	return mask
}

// Resolve runs the post-move fixed point on st until stable: exit
// consumption (once no fruit remain), teleport activation on newly
// overlapped endpoints, then gravity one fall at a time. It reports false
// when the state dies along the way. origMask is the teleporter overlap
// before the last physical change; pass 0 for a freshly loaded state so
// objects starting on an endpoint fire immediately.
func Resolve(m *game.Map, st *game.State, origMask uint32) bool {
	obj := m.NewObjMap()
	for {
		checkExits(m, st)

		obj.Rebuild(st)
		newMask := teleporterOverlap(m, obj)
		if newMask&^origMask != 0 {
			if fireTeleports(m, st, obj, origMask, newMask) {
				obj.Rebuild(st)
				origMask = teleporterOverlap(m, obj)
				continue
			}
		}
		origMask = newMask

		if mask, falling := findFall(m, st, obj); falling {
			applyPush(st, m, mask, m.Delta(game.Down))
			if !hazardCheck(m, st, mask) {
				return false
			}
			continue
		}
		return true
	}
}

// findFall returns the first unsupported snake or gadget together with
// everything that falls with it.
func findFall(m *game.Map, st *game.State, obj *game.ObjMap) (uint32, bool) {
	for si := range st.Snakes {
		if st.Snakes[si].Len == 0 {
			continue
		}
		if mask := snakeFalling(m, st, obj, si); mask != 0 {
			return mask, true
		}
	}
	for gi := range st.Gadgets {
		if st.Gadgets[gi] == game.GadgetDeleted {
			continue
		}
		if mask := gadgetFalling(m, st, obj, gi); mask != 0 {
			return mask, true
		}
	}
	return 0, false
}

// snakeFalling reports whether snake si has no support: no segment rests
// on a wall, and every object below is itself pushable downwards. The
// returned mask includes everything dragged along.
func snakeFalling(m *game.Map, st *game.State, obj *game.ObjMap, si int) uint32 {
	sn := &st.Snakes[si]
	mask := snakeMask(si)
	below := int(sn.Head) + m.P.W
	for j := 0; j < int(sn.Len); j++ {
		if m.Terrain(below) == '.' {
			return 0
		}
		if obj.ForeignObjectAt(below, m.SnakeID(si)) {
			more, ok := pushClosure(m, st, obj, m.SnakeID(si), below-m.P.W, m.P.W)
			if !ok {
				return 0
			}
			mask |= more
		}
		below -= m.Delta(sn.TailDir(j))
	}
	return mask
}

// gadgetFalling mirrors snakeFalling; gadgets additionally rest on block
// cells.
func gadgetFalling(m *game.Map, st *game.State, obj *game.ObjMap, gi int) uint32 {
	off := int(st.Gadgets[gi])
	mask := gadgetMask(m, gi)
	id := m.GadgetID(gi)
	for _, c := range m.Gadgets[gi].Cells {
		at := c + off
		if t := m.Terrain(at + m.P.W); t == '.' || t == '#' {
			return 0
		}
		if obj.ForeignObjectAt(at+m.P.W, id) {
			more, ok := pushClosure(m, st, obj, id, at, m.P.W)
			if !ok {
				return 0
			}
			mask |= more
		}
	}
	return mask
}

// checkExits removes any snake whose head sits on the exit, but only once
// every fruit has been eaten.
func checkExits(m *game.Map, st *game.State) {
	if st.Fruit != 0 {
		return
	}
	for si := range st.Snakes {
		sn := &st.Snakes[si]
		// Only the head triggers the exit.
		if sn.Len != 0 && int(sn.Head) == m.Exit {
			sn.Len = 0
			sn.Head = 0
			sn.Tail = 0
			st.UpdateWin()
		}
	}
}

// fireTeleports attempts a teleport for every (object, endpoint) pair
// whose overlap is new since origMask. Pairs fire in (pair, endpoint,
// snakes before gadgets) order; a blocked teleport simply does not fire.
func fireTeleports(m *game.Map, st *game.State, obj *game.ObjMap, origMask, newMask uint32) bool {
	onlyNew := newMask &^ origMask
	test := uint32(1)
	teleported := false
	for i := range m.Teleporters {
		delta := m.Teleporters[i][1] - m.Teleporters[i][0]
		for end := 0; end < 2; end++ {
			for si := range st.Snakes {
				if test&onlyNew != 0 && trySnakeTeleport(m, st, obj, si, delta) {
					teleported = true
				}
				test <<= 1
			}
			for gi := range st.Gadgets {
				if test&onlyNew != 0 && tryGadgetTeleport(m, st, obj, gi, delta) {
					teleported = true
				}
				test <<= 1
			}
			// The return trip is the negated displacement.
			delta = -delta
		}
	}
	return teleported
}

func trySnakeTeleport(m *game.Map, st *game.State, obj *game.ObjMap, si, delta int) bool {
	sn := &st.Snakes[si]
	to := int(sn.Head) + delta
	for j := 0; j < int(sn.Len); j++ {
		// The destination must be clear of everything, including this
		// snake's own pre-teleport segments.
		if !m.Empty(to) || !obj.NoObjectAt(to) {
			return false
		}
		to -= m.Delta(sn.TailDir(j))
	}
	sn.Head = uint16(int(sn.Head) + delta)
	return true
}

func tryGadgetTeleport(m *game.Map, st *game.State, obj *game.ObjMap, gi, delta int) bool {
	off := int(st.Gadgets[gi]) + delta
	for _, c := range m.Gadgets[gi].Cells {
		to := c + off
		if !m.Empty(to) || !obj.NoObjectAt(to) {
			return false
		}
	}
	st.Gadgets[gi] += int16(delta)
	return true
}
