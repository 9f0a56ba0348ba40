// Package search finds shortest solutions with an external-memory
// breadth-first search. The visited set lives on disk as per-depth runs
// of delta-compressed sorted packed states; successors are sharded by
// hash, sort-deduplicated, and filtered against all prior runs before a
// new run is appended. The winning path is rebuilt by re-expanding each
// depth's run and matching a one-byte parent hash tag, so no per-state
// parent pointer is ever stored.
package search

import (
	"bytes"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/zeebo/xxh3"

	"github.com/brensch/snakebird/codec"
	"github.com/brensch/snakebird/diskvec"
	"github.com/brensch/snakebird/game"
	"github.com/brensch/snakebird/merge"
	"github.com/brensch/snakebird/rules"
)

// Config bounds the solver's resources. The zero value picks workable
// defaults.
type Config struct {
	// MemTarget caps the solver's buffered memory, partitioned across
	// shard buffers and sort chunks. Defaults to 2 GiB.
	MemTarget int64
	// TempDir hosts the unlinked spill files; "" means the system
	// temp directory.
	TempDir string
	// Shards is the initial successor shard count, rounded up to a
	// power of two. Defaults to 1.
	Shards int
	// ShardHighWater and ShardLowWater bound the average pairs per
	// shard; the count doubles or halves between depths outside them.
	ShardHighWater int64
	ShardLowWater  int64
	Logger         *slog.Logger
}

// DepthStat records one frontier expansion.
type DepthStat struct {
	Depth    int
	Frontier int64
	Emitted  int64
	Unique   int64
	Shards   int
	RunBytes int64
	Elapsed  time.Duration
}

// Result is the outcome of a solve. Path holds the canonical packed
// states from the initial state to the win, present only when Solved.
type Result struct {
	Solved     bool
	Moves      int
	Visited    int64
	Expanded   int64
	StoreBytes int64
	Depths     []DepthStat
	Path       [][]byte
}

type solver struct {
	m   *game.Map
	cfg Config
	log *slog.Logger

	recLen  int
	pairLen int

	keys   *diskvec.Array
	tags   *diskvec.Array
	chunks *diskvec.Array
	shards []*diskvec.Array
}

// Solve runs the search to completion. Only resource failures surface as
// errors; an exhausted state space yields Solved == false.
func Solve(m *game.Map, cfg Config) (*Result, error) {
	if cfg.MemTarget <= 0 {
		cfg.MemTarget = 2 << 30
	}
	if cfg.Shards <= 0 {
		cfg.Shards = 1
	}
	for cfg.Shards&(cfg.Shards-1) != 0 {
		cfg.Shards++
	}
	if cfg.ShardHighWater <= 0 {
		cfg.ShardHighWater = 100_000_000
	}
	if cfg.ShardLowWater <= 0 {
		cfg.ShardLowWater = 10_000_000
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	s := &solver{
		m:       m,
		cfg:     cfg,
		log:     cfg.Logger,
		recLen:  m.PackedLen,
		pairLen: m.PackedLen + 1,
		keys:    diskvec.New(cfg.TempDir, 1, 4<<20),
		tags:    diskvec.New(cfg.TempDir, 1, 4<<20),
		chunks:  diskvec.New(cfg.TempDir, 1, int(cfg.MemTarget/4)),
	}
	defer s.close()
	s.growShards(cfg.Shards)

	start := game.NewState(m)
	if !rules.Resolve(m, start, 0) {
		s.log.Info("initial state dies under gravity, no solution")
		return &Result{}, nil
	}
	start.Canonicalize()
	startPacked := m.Pack(start, nil)
	if start.Win {
		return &Result{Solved: true, Moves: 0, Visited: 1, Path: [][]byte{startPacked}}, nil
	}

	enc := codec.NewEncoder(s.recLen)
	enc.Put(startPacked)
	s.keys.StartRun()
	if err := s.keys.PushBytes(enc.Finish()); err != nil {
		return nil, err
	}
	s.keys.EndRun()
	s.tags.StartRun()
	if err := s.tags.Push([]byte{0}); err != nil {
		return nil, err
	}
	s.tags.EndRun()

	res := &Result{Visited: 1}
	packBuf := make([]byte, s.recLen)
	pair := make([]byte, s.pairLen)

	for depth := 0; ; depth++ {
		began := time.Now()
		kv, err := s.keys.Snapshot()
		if err != nil {
			return nil, err
		}

		dec, err := codec.NewDecoder(s.recLen, kv.Run(depth))
		if err != nil {
			kv.Close()
			return nil, err
		}
		var frontier, emitted int64
		var winPacked []byte
		var winTag byte
		won := false
		pushErr := error(nil)
		buf := make([]byte, s.recLen)
		for dec.Next(buf) && !won && pushErr == nil {
			frontier++
			res.Expanded++
			st := m.Unpack(buf)
			tag := byte(xxh3.Hash(buf))
			rules.ForEachMove(m, st, func(next *game.State, _ int, _ game.Direction) bool {
				m.Pack(next, packBuf)
				if next.Win {
					winPacked = append([]byte(nil), packBuf...)
					winTag = tag
					won = true
					return true
				}
				sh := xxh3.Hash(packBuf) & uint64(len(s.shards)-1)
				copy(pair, packBuf)
				pair[s.recLen] = tag
				if err := s.shards[sh].Push(pair); err != nil {
					pushErr = err
					return true
				}
				emitted++
				return false
			})
		}
		if pushErr != nil {
			kv.Close()
			return nil, pushErr
		}

		if won {
			winDepth := depth + 1
			s.log.Info("win found", "depth", winDepth, "expanded", res.Expanded)
			path, err := s.reconstruct(kv, winPacked, winTag, winDepth)
			kv.Close()
			if err != nil {
				return nil, err
			}
			res.Solved = true
			res.Moves = winDepth
			res.StoreBytes = s.keys.Bytes()
			res.Path = path
			return res, nil
		}

		unique, runBytes, err := s.dedupAppend(kv, depth)
		kv.Close()
		if err != nil {
			return nil, err
		}
		res.Visited += unique
		stat := DepthStat{
			Depth:    depth + 1,
			Frontier: frontier,
			Emitted:  emitted,
			Unique:   unique,
			Shards:   len(s.shards),
			RunBytes: runBytes,
			Elapsed:  time.Since(began),
		}
		res.Depths = append(res.Depths, stat)
		s.log.Info("depth complete",
			"depth", stat.Depth,
			"frontier", stat.Frontier,
			"emitted", stat.Emitted,
			"unique", stat.Unique,
			"shards", stat.Shards,
			"run_bytes", stat.RunBytes,
			"elapsed", stat.Elapsed)

		if unique == 0 {
			res.StoreBytes = s.keys.Bytes()
			return res, nil
		}
		s.resizeShards(emitted)
	}
}

// dedupAppend runs the per-depth pipeline: freeze and chunk-sort every
// shard, k-way merge the sorted chunks, drop duplicates and keys already
// present in prior runs, and append the survivors as the next visited
// run (keys compressed, parent tags raw).
func (s *solver) dedupAppend(kv *diskvec.View, depth int) (int64, int64, error) {
	chunkBytes := int(s.cfg.MemTarget/4) / s.pairLen * s.pairLen
	if chunkBytes < s.pairLen {
		chunkBytes = s.pairLen
	}

	if err := s.chunks.Reset(); err != nil {
		return 0, 0, err
	}
	for _, sh := range s.shards {
		view, err := sh.Freeze()
		if err != nil {
			return 0, 0, err
		}
		data := view.Data()
		for off := 0; off < len(data); off += chunkBytes {
			end := off + chunkBytes
			if end > len(data) {
				end = len(data)
			}
			chunk := append([]byte(nil), data[off:end]...)
			sortPairs(chunk, s.pairLen, s.recLen)
			s.chunks.StartRun()
			if err := s.chunks.PushBytes(chunk); err != nil {
				return 0, 0, err
			}
			s.chunks.EndRun()
		}
	}

	cv, err := s.chunks.Snapshot()
	if err != nil {
		return 0, 0, err
	}
	defer cv.Close()

	keyCmp := func(a, b []byte) int {
		return bytes.Compare(a[:s.recLen], b[:s.recLen])
	}
	var fresh []merge.Source
	for i := range cv.Runs() {
		fresh = append(fresh, merge.NewFixedSource(cv.Run(i), s.pairLen))
	}
	freshIter := merge.NewIter(fresh, keyCmp)

	var prior []merge.Source
	for i := 0; i <= depth; i++ {
		dec, err := codec.NewDecoder(s.recLen, kv.Run(i))
		if err != nil {
			return 0, 0, err
		}
		prior = append(prior, &decoderSource{dec: dec, buf: make([]byte, s.recLen)})
	}
	priorIter := merge.NewIter(prior, nil)
	priorOK := priorIter.Next()

	enc := codec.NewEncoder(s.recLen)
	s.keys.StartRun()
	s.tags.StartRun()
	last := make([]byte, s.recLen)
	haveLast := false
	var unique int64
	for freshIter.Next() {
		rec := freshIter.Record()
		key := rec[:s.recLen]
		if haveLast && bytes.Equal(key, last) {
			continue
		}
		copy(last, key)
		haveLast = true
		for priorOK && bytes.Compare(priorIter.Record(), key) < 0 {
			priorOK = priorIter.Next()
		}
		if priorOK && bytes.Equal(priorIter.Record(), key) {
			continue
		}
		enc.Put(key)
		if err := s.tags.Push(rec[s.recLen:]); err != nil {
			return 0, 0, err
		}
		unique++
	}
	blob := enc.Finish()
	if err := s.keys.PushBytes(blob); err != nil {
		return 0, 0, err
	}
	s.keys.EndRun()
	s.tags.EndRun()

	for _, sh := range s.shards {
		if err := sh.Reset(); err != nil {
			return 0, 0, err
		}
	}
	return unique, int64(len(blob)), nil
}

// reconstruct walks backwards from the win state. For each depth it
// re-expands the candidates in the previous run whose hash byte matches
// the child's stored parent tag; the engine's determinism makes the
// re-expansion check authoritative when tags collide.
func (s *solver) reconstruct(kv *diskvec.View, winPacked []byte, winTag byte, winDepth int) ([][]byte, error) {
	tv, err := s.tags.Snapshot()
	if err != nil {
		return nil, err
	}
	defer tv.Close()

	path := make([][]byte, winDepth+1)
	path[winDepth] = winPacked
	target := winPacked
	targetTag := winTag
	scratch := make([]byte, s.recLen)

	for i := winDepth; i >= 1; i-- {
		dec, err := codec.NewDecoder(s.recLen, kv.Run(i-1))
		if err != nil {
			return nil, err
		}
		tagRun := tv.Run(i - 1)
		buf := make([]byte, s.recLen)
		idx := int64(-1)
		found := false
		for dec.Next(buf) {
			idx++
			if byte(xxh3.Hash(buf)) != targetTag {
				continue
			}
			st := s.m.Unpack(buf)
			hit := false
			rules.ForEachMove(s.m, st, func(next *game.State, _ int, _ game.Direction) bool {
				s.m.Pack(next, scratch)
				if bytes.Equal(scratch, target) {
					hit = true
					return true
				}
				return false
			})
			if hit {
				parent := append([]byte(nil), buf...)
				path[i-1] = parent
				target = parent
				targetTag = tagRun[idx]
				found = true
				break
			}
		}
		if !found {
			return nil, fmt.Errorf("path reconstruction found no parent at depth %d", i-1)
		}
	}
	return path, nil
}

// growShards brings the shard set up to n arrays with buffers sized to
// the memory target.
func (s *solver) growShards(n int) {
	spill := int(s.cfg.MemTarget / int64(2*n))
	if spill < 64<<10 {
		spill = 64 << 10
	}
	for _, sh := range s.shards {
		sh.Close()
	}
	s.shards = make([]*diskvec.Array, n)
	for i := range s.shards {
		s.shards[i] = diskvec.New(s.cfg.TempDir, s.pairLen, spill)
	}
}

// resizeShards doubles or halves the shard count between depths when the
// average shard size leaves the configured band.
func (s *solver) resizeShards(emitted int64) {
	n := len(s.shards)
	avg := emitted / int64(n)
	switch {
	case avg > s.cfg.ShardHighWater:
		n *= 2
	case avg < s.cfg.ShardLowWater && n > 1:
		n /= 2
	default:
		return
	}
	s.log.Debug("resizing shards", "shards", n)
	s.growShards(n)
}

func (s *solver) close() {
	s.keys.Close()
	s.tags.Close()
	s.chunks.Close()
	for _, sh := range s.shards {
		sh.Close()
	}
}

type decoderSource struct {
	dec *codec.Decoder
	buf []byte
}

func (d *decoderSource) Next() bool {
	return d.dec.Next(d.buf)
}

func (d *decoderSource) Record() []byte {
	return d.buf
}

// sortPairs orders fixed-size records in place by their leading keyLen
// key bytes.
func sortPairs(data []byte, size, keyLen int) {
	sort.Sort(&pairSort{data: data, size: size, keyLen: keyLen, tmp: make([]byte, size)})
}

type pairSort struct {
	data   []byte
	size   int
	keyLen int
	tmp    []byte
}

func (p *pairSort) Len() int {
	return len(p.data) / p.size
}

func (p *pairSort) Less(i, j int) bool {
	a := p.data[i*p.size : i*p.size+p.keyLen]
	b := p.data[j*p.size : j*p.size+p.keyLen]
	return bytes.Compare(a, b) < 0
}

func (p *pairSort) Swap(i, j int) {
	a := p.data[i*p.size : (i+1)*p.size]
	b := p.data[j*p.size : (j+1)*p.size]
	copy(p.tmp, a)
	copy(a, b)
	copy(b, p.tmp)
}
