// Package game holds the puzzle model: the immutable map, the mutable
// search state, canonical bit-packed encoding, and ASCII rendering.
package game

import (
	"fmt"
	"math/bits"

	"github.com/brensch/snakebird/bitpack"
)

// Params declares the entity counts and dimensions a puzzle was built for.
// The packed state width is derived from these, so they are part of the
// puzzle's identity.
type Params struct {
	H, W      int
	Fruits    int
	Snakes    int
	MaxLen    int
	Gadgets   int
	Teleports int
}

// GadgetShape is a rigid pushable shape: up to eight cell offsets relative
// to its anchor (the first cell encountered in the map scan).
type GadgetShape struct {
	Anchor int
	Cells  []int
}

// Map is the immutable per-puzzle board: terrain plus the fixed positions
// entities start from. All cell references are row-major indices into a
// H*W grid whose border rows and columns are solid, so index arithmetic
// never escapes the board.
type Map struct {
	P Params

	Exit        int
	FruitCells  []int
	Snakes      []Snake
	Gadgets     []GadgetShape
	Teleporters [][2]int

	terrain []byte

	cellBits int
	lenBits  int
	tailBits int

	// PackedLen is the canonical encoded state width in bytes, the
	// minimum implied by the declared parameters.
	PackedLen int
}

// Terrain returns the terrain glyph at cell i: ' ', '.', '~' or '#'.
func (m *Map) Terrain(i int) byte {
	return m.terrain[i]
}

// Empty reports whether cell i has no terrain.
func (m *Map) Empty(i int) bool {
	return m.terrain[i] == ' '
}

// Delta returns the cell index step for one move in direction d.
func (m *Map) Delta(d Direction) int {
	switch d {
	case Up:
		return -m.P.W
	case Right:
		return 1
	case Down:
		return m.P.W
	default:
		return -1
	}
}

// Load parses an ASCII map of exactly H*W glyphs against the declared
// parameters. Glyphs: ' ' empty, '.' wall, '~' spike, '#' block, 'O'
// fruit, '*' exit, 'T' teleporter endpoint (paired in order of
// appearance), 'R'/'G'/'B' snake heads, '>'/'<'/'^'/'v' snake body
// arrows, digits gadget cells. A count mismatch with the parameters is a
// fatal input error.
func Load(ascii string, p Params) (*Map, error) {
	if len(ascii) != p.H*p.W {
		return nil, fmt.Errorf("map is %d glyphs, want %dx%d=%d", len(ascii), p.H, p.W, p.H*p.W)
	}

	m := &Map{
		P:       p,
		terrain: make([]byte, p.H*p.W),
	}
	pendingTeleporter := -1
	maxLen := 0

	for i := 0; i < len(ascii); i++ {
		c := ascii[i]
		m.terrain[i] = ' '
		switch {
		case c == ' ' || c == '.' || c == '~' || c == '#':
			m.terrain[i] = c
		case c == 'O':
			m.FruitCells = append(m.FruitCells, i)
		case c == '*':
			if m.Exit != 0 {
				return nil, fmt.Errorf("second exit at cell %d", i)
			}
			m.Exit = i
		case c == 'T':
			if pendingTeleporter < 0 {
				pendingTeleporter = i
			} else {
				m.Teleporters = append(m.Teleporters, [2]int{pendingTeleporter, i})
				pendingTeleporter = -1
			}
		case c == 'R' || c == 'G' || c == 'B':
			tail, length := traceTail(ascii, i, p.W)
			m.Snakes = append(m.Snakes, Snake{Head: uint16(i), Len: uint8(length), Tail: tail})
			if length > maxLen {
				maxLen = length
			}
		case c == '>' || c == '<' || c == '^' || c == 'v':
			// Body cells; consumed by the head trace.
		case c >= '0' && c <= '9':
			gi := int(c - '0')
			if gi >= p.Gadgets {
				return nil, fmt.Errorf("gadget %d at cell %d exceeds declared count %d", gi, i, p.Gadgets)
			}
			for len(m.Gadgets) <= gi {
				m.Gadgets = append(m.Gadgets, GadgetShape{Anchor: -1})
			}
			g := &m.Gadgets[gi]
			if g.Anchor < 0 {
				g.Anchor = i
			}
			g.Cells = append(g.Cells, i-g.Anchor)
		default:
			return nil, fmt.Errorf("unknown glyph %q at cell %d", c, i)
		}
	}

	if m.Exit == 0 {
		return nil, fmt.Errorf("map has no exit")
	}
	if pendingTeleporter >= 0 {
		return nil, fmt.Errorf("unpaired teleporter at cell %d", pendingTeleporter)
	}
	if len(m.FruitCells) != p.Fruits {
		return nil, fmt.Errorf("found %d fruit, declared %d", len(m.FruitCells), p.Fruits)
	}
	if len(m.Snakes) != p.Snakes {
		return nil, fmt.Errorf("found %d snakes, declared %d", len(m.Snakes), p.Snakes)
	}
	if len(m.Teleporters) != p.Teleports {
		return nil, fmt.Errorf("found %d teleporter pairs, declared %d", len(m.Teleporters), p.Teleports)
	}
	for gi := range m.Gadgets {
		g := &m.Gadgets[gi]
		if g.Anchor < 0 {
			return nil, fmt.Errorf("gadget %d has no cells", gi)
		}
		if len(g.Cells) > 8 {
			return nil, fmt.Errorf("gadget %d has %d cells, max 8", gi, len(g.Cells))
		}
	}
	if len(m.Gadgets) != p.Gadgets {
		return nil, fmt.Errorf("found %d gadgets, declared %d", len(m.Gadgets), p.Gadgets)
	}
	if p.MaxLen < maxLen+p.Fruits {
		return nil, fmt.Errorf("declared max length %d, need at least %d (longest snake %d + %d fruit)",
			p.MaxLen, maxLen+p.Fruits, maxLen, p.Fruits)
	}

	m.cellBits = bits.Len(uint(p.H*p.W - 1))
	m.lenBits = bits.Len(uint(p.MaxLen))
	if p.MaxLen > 1 {
		m.tailBits = 2 * (p.MaxLen - 1)
	}
	packedBits := p.Snakes*(m.cellBits+m.lenBits+m.tailBits) + p.Gadgets*16 + p.Fruits + 1
	m.PackedLen = bitpack.Size(packedBits)

	return m, nil
}

// traceTail follows body arrows backwards from a snake head at cell head,
// returning the packed two-bit tail directions and the total segment
// count. The arrow at a body cell points at the segment in front of it, so
// the trace walks against the arrows.
func traceTail(ascii string, head, w int) (uint64, int) {
	var tail uint64
	length := 1
	shift := 0
	i := head
	for {
		var dir Direction
		var next int
		switch {
		case ascii[i-1] == '>':
			dir, next = Right, i-1
		case ascii[i+1] == '<':
			dir, next = Left, i+1
		case ascii[i-w] == 'v':
			dir, next = Down, i-w
		case ascii[i+w] == '^':
			dir, next = Up, i+w
		default:
			return tail, length
		}
		tail |= uint64(dir) << uint(shift)
		shift += 2
		length++
		i = next
	}
}
