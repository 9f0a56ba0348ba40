// Package diskvec implements an append-only sequence of fixed-size elements
// that spills to an unlinked temporary file once its in-memory buffer
// exceeds a budget. A frozen array exposes an mmap'd read view; Snapshot
// gives the same view over the flushed prefix while the array stays
// writable.
//
// The array additionally tracks "runs": contiguous byte ranges marked by
// StartRun/EndRun, appended in order and never overlapping. The search
// layer uses one run per BFS depth.
package diskvec

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// Run is a half-open byte range into the array's backing storage.
type Run struct {
	Begin, End int64
}

// Array is a disk-backed append array. It is not safe for concurrent use.
type Array struct {
	elemSize int
	spill    int
	dir      string

	f       *os.File
	written int64
	buf     []byte
	runs    []Run
	view    *View
}

// New returns an empty array of elemSize-byte elements that keeps at most
// spill bytes buffered before draining to disk. Files are created in dir
// (""  means the system temp directory) and unlinked immediately, so they
// vanish with the process.
func New(dir string, elemSize, spill int) *Array {
	if elemSize <= 0 {
		panic(fmt.Sprintf("diskvec: element size %d", elemSize))
	}
	if spill < elemSize {
		spill = elemSize
	}
	return &Array{elemSize: elemSize, spill: spill, dir: dir}
}

// ElemSize returns the element width in bytes.
func (a *Array) ElemSize() int { return a.elemSize }

// Len returns the number of elements appended.
func (a *Array) Len() int64 {
	return a.Bytes() / int64(a.elemSize)
}

// Bytes returns the total bytes appended.
func (a *Array) Bytes() int64 {
	return a.written + int64(len(a.buf))
}

// Push appends one element. The array must not be frozen.
func (a *Array) Push(rec []byte) error {
	if a.view != nil {
		panic("diskvec: push on frozen array")
	}
	if len(rec) != a.elemSize {
		panic(fmt.Sprintf("diskvec: push of %d bytes into %d-byte array", len(rec), a.elemSize))
	}
	a.buf = append(a.buf, rec...)
	if len(a.buf) >= a.spill {
		return a.Flush()
	}
	return nil
}

// PushBytes appends len(b)/ElemSize elements in one call. len(b) must be
// a multiple of the element size.
func (a *Array) PushBytes(b []byte) error {
	if a.view != nil {
		panic("diskvec: push on frozen array")
	}
	if len(b)%a.elemSize != 0 {
		panic(fmt.Sprintf("diskvec: push of %d bytes into %d-byte array", len(b), a.elemSize))
	}
	a.buf = append(a.buf, b...)
	if len(a.buf) >= a.spill {
		return a.Flush()
	}
	return nil
}

// Flush drains the in-memory buffer to the backing file, creating it on
// first use.
func (a *Array) Flush() error {
	if len(a.buf) == 0 {
		return nil
	}
	if a.f == nil {
		f, err := os.CreateTemp(a.dir, "diskvec-*")
		if err != nil {
			return fmt.Errorf("create spill file: %w", err)
		}
		// Unlink immediately; the fd keeps it alive.
		if err := os.Remove(f.Name()); err != nil {
			f.Close()
			return fmt.Errorf("unlink spill file: %w", err)
		}
		a.f = f
	}
	if _, err := a.f.WriteAt(a.buf, a.written); err != nil {
		return fmt.Errorf("spill write: %w", err)
	}
	a.written += int64(len(a.buf))
	a.buf = a.buf[:0]
	return nil
}

// StartRun begins a new run at the current end of the array.
func (a *Array) StartRun() {
	a.runs = append(a.runs, Run{Begin: a.Bytes(), End: -1})
}

// EndRun closes the most recently started run.
func (a *Array) EndRun() {
	if len(a.runs) == 0 || a.runs[len(a.runs)-1].End != -1 {
		panic("diskvec: end of run without start")
	}
	a.runs[len(a.runs)-1].End = a.Bytes()
}

// Runs returns the recorded runs. The slice aliases internal state and is
// valid until the next Reset.
func (a *Array) Runs() []Run {
	return a.runs
}

// Snapshot flushes and returns a read view over everything appended so
// far. The array stays writable; close the view before the next Snapshot
// or Freeze.
func (a *Array) Snapshot() (*View, error) {
	if err := a.Flush(); err != nil {
		return nil, err
	}
	v := &View{elemSize: a.elemSize, runs: append([]Run(nil), a.runs...)}
	if a.written == 0 {
		return v, nil
	}
	data, err := unix.Mmap(int(a.f.Fd()), 0, int(a.written), unix.PROT_READ, unix.MAP_SHARED)
	if err != nil {
		return nil, fmt.Errorf("mmap %d bytes: %w", a.written, err)
	}
	v.data = data
	v.mapped = true
	return v, nil
}

// Freeze flushes, maps the backing file read-only, and pins the array
// against further appends until Thaw.
func (a *Array) Freeze() (*View, error) {
	if a.view != nil {
		return a.view, nil
	}
	v, err := a.Snapshot()
	if err != nil {
		return nil, err
	}
	a.view = v
	return v, nil
}

// Thaw releases the frozen view and returns the array to the writing
// state.
func (a *Array) Thaw() error {
	if a.view == nil {
		return nil
	}
	err := a.view.Close()
	a.view = nil
	return err
}

// Reset thaws, truncates the array to empty, and clears all runs. The
// backing file is kept for reuse.
func (a *Array) Reset() error {
	if err := a.Thaw(); err != nil {
		return err
	}
	if a.f != nil {
		if err := a.f.Truncate(0); err != nil {
			return fmt.Errorf("truncate spill file: %w", err)
		}
	}
	a.written = 0
	a.buf = a.buf[:0]
	a.runs = a.runs[:0]
	return nil
}

// Close releases the view and backing file.
func (a *Array) Close() error {
	err := a.Thaw()
	if a.f != nil {
		if cerr := a.f.Close(); err == nil {
			err = cerr
		}
		a.f = nil
	}
	return err
}

// View is a read-only window over an array's flushed contents.
type View struct {
	data     []byte
	mapped   bool
	elemSize int
	runs     []Run
}

// Data returns the raw bytes of the view.
func (v *View) Data() []byte { return v.data }

// Len returns the number of elements in the view.
func (v *View) Len() int64 { return int64(len(v.data)) / int64(v.elemSize) }

// At returns element i. The slice aliases the mapping and must not be
// retained past Close.
func (v *View) At(i int64) []byte {
	off := i * int64(v.elemSize)
	return v.data[off : off+int64(v.elemSize)]
}

// Run returns the bytes of run i.
func (v *View) Run(i int) []byte {
	r := v.runs[i]
	return v.data[r.Begin:r.End]
}

// Runs returns the runs captured when the view was taken.
func (v *View) Runs() []Run { return v.runs }

// Close unmaps the view.
func (v *View) Close() error {
	if !v.mapped || v.data == nil {
		v.data = nil
		return nil
	}
	data := v.data
	v.data = nil
	v.mapped = false
	if err := unix.Munmap(data); err != nil {
		return fmt.Errorf("munmap: %w", err)
	}
	return nil
}
