package game

import (
	"sort"
	"strings"

	"github.com/brensch/snakebird/bitpack"
)

// Direction is one of the four grid moves.
type Direction uint8

const (
	Up Direction = iota
	Right
	Down
	Left
)

func (d Direction) String() string {
	switch d {
	case Up:
		return "up"
	case Right:
		return "right"
	case Down:
		return "down"
	default:
		return "left"
	}
}

const dirBits = 2

// GadgetDeleted marks a destroyed gadget's offset slot.
const GadgetDeleted = int16(-1 << 15)

// Snake is an ordered chain of cells: a head index, a segment count, and
// packed two-bit directions, one per body segment, each naming the step
// from that segment to the one in front of it. Len 0 means the snake has
// exited.
type Snake struct {
	Tail uint64
	Head uint16
	Len  uint8
}

// TailDir returns the direction of the step from segment j+1 to segment j.
func (s *Snake) TailDir(j int) Direction {
	return Direction(s.Tail >> uint(j*dirBits) & 3)
}

// Grow relocates the head one step in direction d and extends the body by
// one segment. delta is the map's cell step for d.
func (s *Snake) Grow(d Direction, delta int) {
	s.Head = uint16(int(s.Head) + delta)
	s.Len++
	s.Tail = s.Tail<<dirBits | uint64(d)
}

// Move relocates the head one step in direction d, dragging the body along.
func (s *Snake) Move(d Direction, delta int) {
	s.Head = uint16(int(s.Head) + delta)
	if s.Len < 2 {
		// No body to drag; the tail stays empty.
		return
	}
	s.Tail &^= 3 << uint((int(s.Len)-2)*dirBits)
	s.Tail = s.Tail<<dirBits | uint64(d)
}

func (s *Snake) less(o *Snake) bool {
	if s.Head != o.Head {
		return s.Head < o.Head
	}
	if s.Len != o.Len {
		return s.Len < o.Len
	}
	return s.Tail < o.Tail
}

// State is one mutable search node: snake chains, gadget anchor offsets
// (GadgetDeleted for destroyed ones), the surviving-fruit bitmask, and the
// win flag.
type State struct {
	Snakes  []Snake
	Gadgets []int16
	Fruit   uint32
	Win     bool
}

// NewState returns the map's initial state.
func NewState(m *Map) *State {
	st := &State{
		Snakes:  append([]Snake(nil), m.Snakes...),
		Gadgets: make([]int16, len(m.Gadgets)),
		Fruit:   uint32(1)<<uint(len(m.FruitCells)) - 1,
	}
	for i, g := range m.Gadgets {
		st.Gadgets[i] = int16(g.Anchor)
	}
	return st
}

// Clone returns an independent copy.
func (st *State) Clone() *State {
	return &State{
		Snakes:  append([]Snake(nil), st.Snakes...),
		Gadgets: append([]int16(nil), st.Gadgets...),
		Fruit:   st.Fruit,
		Win:     st.Win,
	}
}

// FruitActive reports whether fruit i is still on the board.
func (st *State) FruitActive(i int) bool {
	return st.Fruit&(1<<uint(i)) != 0
}

// DeleteFruit consumes fruit i.
func (st *State) DeleteFruit(i int) {
	st.Fruit &^= 1 << uint(i)
}

// UpdateWin sets the win flag iff every snake has exited.
func (st *State) UpdateWin() {
	for i := range st.Snakes {
		if st.Snakes[i].Len != 0 {
			st.Win = false
			return
		}
	}
	st.Win = true
}

// Canonicalize sorts the snakes by (head, length, tail) so states that
// differ only in snake slot assignment compare equal.
func (st *State) Canonicalize() {
	sort.Slice(st.Snakes, func(i, j int) bool {
		return st.Snakes[i].less(&st.Snakes[j])
	})
}

// Equal reports value equality.
func (st *State) Equal(o *State) bool {
	if st.Fruit != o.Fruit || st.Win != o.Win {
		return false
	}
	for i := range st.Snakes {
		if st.Snakes[i] != o.Snakes[i] {
			return false
		}
	}
	for i := range st.Gadgets {
		if st.Gadgets[i] != o.Gadgets[i] {
			return false
		}
	}
	return true
}

const emptyID = 0

// SnakeID returns the object id of snake si. Object ids: 0 empty, then
// snakes, then gadgets, then the shared fruit id.
func (m *Map) SnakeID(si int) uint8 {
	return uint8(1 + si)
}

// GadgetID returns the object id of gadget gi.
func (m *Map) GadgetID(gi int) uint8 {
	return uint8(1 + len(m.Snakes) + gi)
}

// FruitID returns the object id shared by all fruit.
func (m *Map) FruitID() uint8 {
	return uint8(1 + len(m.Snakes) + len(m.Gadgets))
}

// ObjMap is a dense occupancy grid derived from a state. The engine
// rebuilds it whenever it needs fresh occupancy; callers never mutate it.
type ObjMap struct {
	m     *Map
	cells []uint8
}

// NewObjMap allocates an object map for reuse via Rebuild.
func (m *Map) NewObjMap() *ObjMap {
	return &ObjMap{m: m, cells: make([]uint8, m.P.H*m.P.W)}
}

// BuildObjMap returns a fresh occupancy grid for st.
func (m *Map) BuildObjMap(st *State) *ObjMap {
	o := m.NewObjMap()
	o.Rebuild(st)
	return o
}

// Rebuild redraws the grid from st.
func (o *ObjMap) Rebuild(st *State) {
	m := o.m
	clear(o.cells)
	for si := range st.Snakes {
		sn := &st.Snakes[si]
		i := int(sn.Head)
		for j := 0; j < int(sn.Len); j++ {
			o.cells[i] = m.SnakeID(si)
			i -= m.Delta(sn.TailDir(j))
		}
	}
	for fi, cell := range m.FruitCells {
		if st.FruitActive(fi) {
			o.cells[cell] = m.FruitID()
		}
	}
	for gi := range m.Gadgets {
		off := st.Gadgets[gi]
		if off == GadgetDeleted {
			continue
		}
		for _, c := range m.Gadgets[gi].Cells {
			o.cells[c+int(off)] = m.GadgetID(gi)
		}
	}
}

// IDAt returns the object id at cell i.
func (o *ObjMap) IDAt(i int) uint8 {
	return o.cells[i]
}

// NoObjectAt reports whether cell i is free of objects.
func (o *ObjMap) NoObjectAt(i int) bool {
	return o.cells[i] == emptyID
}

// FruitAt reports whether cell i holds a live fruit.
func (o *ObjMap) FruitAt(i int) bool {
	return o.cells[i] == o.m.FruitID()
}

// ForeignObjectAt reports whether cell i holds an object other than id.
func (o *ObjMap) ForeignObjectAt(i int, id uint8) bool {
	return o.cells[i] != emptyID && o.cells[i] != id
}

// MaskAt returns the object bitmask for cell i: bit (id-1) for snakes and
// gadgets, 0 for empty.
func (o *ObjMap) MaskAt(i int) uint32 {
	if o.cells[i] == emptyID {
		return 0
	}
	return 1 << uint(o.cells[i]-1)
}

// Pack encodes st into its canonical byte form: per snake the head,
// length and tail bits, then every gadget offset, the fruit mask, and the
// win bit. dst must be PackedLen bytes and is zeroed first; a nil dst
// allocates. Byte equality of packed forms matches state equality on
// canonicalized states.
func (m *Map) Pack(st *State, dst []byte) []byte {
	if dst == nil {
		dst = make([]byte, m.PackedLen)
	} else {
		clear(dst)
	}
	at := 0
	for si := range st.Snakes {
		sn := &st.Snakes[si]
		at = bitpack.Deposit(dst, uint64(sn.Head), m.cellBits, at)
		at = bitpack.Deposit(dst, uint64(sn.Len), m.lenBits, at)
		at = depositWide(dst, sn.Tail, m.tailBits, at)
	}
	for _, off := range st.Gadgets {
		at = bitpack.Deposit(dst, uint64(uint16(off)), 16, at)
	}
	at = bitpack.Deposit(dst, uint64(st.Fruit), len(m.FruitCells), at)
	win := uint64(0)
	if st.Win {
		win = 1
	}
	bitpack.Deposit(dst, win, 1, at)
	return dst
}

// Unpack decodes a canonical byte form produced by Pack.
func (m *Map) Unpack(src []byte) *State {
	st := &State{
		Snakes:  make([]Snake, len(m.Snakes)),
		Gadgets: make([]int16, len(m.Gadgets)),
	}
	at := 0
	var v uint64
	for si := range st.Snakes {
		sn := &st.Snakes[si]
		v, at = bitpack.Extract(src, m.cellBits, at)
		sn.Head = uint16(v)
		v, at = bitpack.Extract(src, m.lenBits, at)
		sn.Len = uint8(v)
		sn.Tail, at = extractWide(src, m.tailBits, at)
	}
	for gi := range st.Gadgets {
		v, at = bitpack.Extract(src, 16, at)
		st.Gadgets[gi] = int16(uint16(v))
	}
	v, at = bitpack.Extract(src, len(m.FruitCells), at)
	st.Fruit = uint32(v)
	v, _ = bitpack.Extract(src, 1, at)
	st.Win = v != 0
	return st
}

// depositWide splits fields wider than bitpack.MaxWidth across calls.
// Tail fields reach 2*(MaxLen-1) bits.
func depositWide(b []byte, v uint64, width, at int) int {
	for width > bitpack.MaxWidth {
		at = bitpack.Deposit(b, v&(1<<bitpack.MaxWidth-1), bitpack.MaxWidth, at)
		v >>= bitpack.MaxWidth
		width -= bitpack.MaxWidth
	}
	return bitpack.Deposit(b, v, width, at)
}

func extractWide(b []byte, width, at int) (uint64, int) {
	var out uint64
	shift := 0
	for width > bitpack.MaxWidth {
		v, next := bitpack.Extract(b, bitpack.MaxWidth, at)
		out |= v << uint(shift)
		shift += bitpack.MaxWidth
		at = next
		width -= bitpack.MaxWidth
	}
	v, at := bitpack.Extract(b, width, at)
	out |= v << uint(shift)
	return out, at
}

// Render draws the state over the map as ASCII: snake heads as 'A', 'B',
// ..., bodies as direction arrows, gadgets as digits, fruit as 'Q', the
// exit as '*' and teleporter endpoints as 'X'.
func (m *Map) Render(st *State) string {
	cells := make([]byte, m.P.H*m.P.W)
	for si := range st.Snakes {
		sn := &st.Snakes[si]
		i := int(sn.Head)
		for j := 0; j < int(sn.Len); j++ {
			if j == 0 {
				cells[i] = 'A' + byte(si)
			} else {
				switch sn.TailDir(j - 1) {
				case Up:
					cells[i] = '^'
				case Down:
					cells[i] = 'v'
				case Left:
					cells[i] = '<'
				case Right:
					cells[i] = '>'
				}
			}
			i -= m.Delta(sn.TailDir(j))
		}
	}
	for fi, cell := range m.FruitCells {
		if st.FruitActive(fi) {
			cells[cell] = 'Q'
		}
	}
	for gi := range m.Gadgets {
		off := st.Gadgets[gi]
		if off == GadgetDeleted {
			continue
		}
		for _, c := range m.Gadgets[gi].Cells {
			cells[c+int(off)] = '0' + byte(gi)
		}
	}

	var b strings.Builder
	for y := 0; y < m.P.H; y++ {
		for x := 0; x < m.P.W; x++ {
			i := y*m.P.W + x
			switch {
			case cells[i] != 0:
				b.WriteByte(cells[i])
			case i == m.Exit:
				b.WriteByte('*')
			case m.teleporterAt(i):
				b.WriteByte('X')
			default:
				b.WriteByte(m.terrain[i])
			}
		}
		b.WriteByte('\n')
	}
	return b.String()
}

func (m *Map) teleporterAt(i int) bool {
	for _, t := range m.Teleporters {
		if t[0] == i || t[1] == i {
			return true
		}
	}
	return false
}
