// Package merge provides a stable k-way merge of presorted record
// streams, both as a push-style drain and as a pull-style iterator.
package merge

import (
	"bytes"
	"container/heap"
)

// Source is a cursor over one presorted stream of byte records. Next
// advances to the following record and reports whether one exists; the
// slice returned by Record is valid until the next call to Next on the
// same source.
type Source interface {
	Next() bool
	Record() []byte
}

type cursor struct {
	src Source
	idx int
}

type mergeHeap struct {
	cursors []cursor
	cmp     func(a, b []byte) int
}

func (h *mergeHeap) Len() int { return len(h.cursors) }

func (h *mergeHeap) Less(i, j int) bool {
	c := h.cmp(h.cursors[i].src.Record(), h.cursors[j].src.Record())
	if c != 0 {
		return c < 0
	}
	// Equal records drain in source order.
	return h.cursors[i].idx < h.cursors[j].idx
}

func (h *mergeHeap) Swap(i, j int) {
	h.cursors[i], h.cursors[j] = h.cursors[j], h.cursors[i]
}

func (h *mergeHeap) Push(x any) {
	h.cursors = append(h.cursors, x.(cursor))
}

func (h *mergeHeap) Pop() any {
	old := h.cursors
	n := len(old)
	c := old[n-1]
	h.cursors = old[:n-1]
	return c
}

// Iter merges its sources lazily. It implements Source itself, so merges
// compose.
type Iter struct {
	h       mergeHeap
	pending []Source
	started bool
}

// NewIter prepares a merge over sources. Records comparing equal under
// cmp drain in source order. A nil cmp compares records as byte strings.
func NewIter(sources []Source, cmp func(a, b []byte) int) *Iter {
	if cmp == nil {
		cmp = bytes.Compare
	}
	return &Iter{h: mergeHeap{cmp: cmp}, pending: sources}
}

// Next advances to the next record in merged order.
func (it *Iter) Next() bool {
	if !it.started {
		it.started = true
		for i, src := range it.pending {
			if src.Next() {
				it.h.cursors = append(it.h.cursors, cursor{src: src, idx: i})
			}
		}
		it.pending = nil
		heap.Init(&it.h)
		return it.h.Len() > 0
	}
	if it.h.Len() == 0 {
		return false
	}
	if it.h.cursors[0].src.Next() {
		heap.Fix(&it.h, 0)
	} else {
		heap.Pop(&it.h)
	}
	return it.h.Len() > 0
}

// Record returns the current record. It is valid until the next Next.
func (it *Iter) Record() []byte {
	return it.h.cursors[0].src.Record()
}

// SourceIndex returns the index of the source the current record came
// from.
func (it *Iter) SourceIndex() int {
	return it.h.cursors[0].idx
}

// Merge drains all sources into sink in sorted order. sink returning true
// stops the merge early.
func Merge(sources []Source, cmp func(a, b []byte) int, sink func(src int, rec []byte) bool) {
	it := NewIter(sources, cmp)
	for it.Next() {
		if sink(it.SourceIndex(), it.Record()) {
			return
		}
	}
}

// FixedSource iterates records of a fixed size laid out back to back in a
// byte slice.
type FixedSource struct {
	data []byte
	size int
	pos  int
}

// NewFixedSource wraps data holding len(data)/size records.
func NewFixedSource(data []byte, size int) *FixedSource {
	return &FixedSource{data: data, size: size, pos: -size}
}

func (s *FixedSource) Next() bool {
	s.pos += s.size
	return s.pos+s.size <= len(s.data)
}

func (s *FixedSource) Record() []byte {
	return s.data[s.pos : s.pos+s.size]
}
