// Package codec compresses streams of fixed-length byte records that arrive
// in strictly increasing order, such as sorted packed puzzle states.
//
// Each record is XOR'd against its predecessor (initially zero). A varint
// whose bit i marks "byte i of the XOR differs" is emitted, followed by only
// the differing bytes. The delta-transformed stream is then block-compressed
// with Snappy. Sorted inputs make most XOR bytes zero, which roughly halves
// the size Snappy reaches on its own.
package codec

import (
	"fmt"

	"github.com/klauspost/compress/snappy"
)

// Encoder buffers delta-transformed records until Finish.
type Encoder struct {
	recLen int
	prev   []byte
	delta  []byte
	n      int64
}

// NewEncoder returns an encoder for records of recLen bytes. recLen is
// capped at 64 so the presence mask fits one word.
func NewEncoder(recLen int) *Encoder {
	if recLen <= 0 || recLen > 64 {
		panic(fmt.Sprintf("codec: record length %d out of range", recLen))
	}
	return &Encoder{
		recLen: recLen,
		prev:   make([]byte, recLen),
	}
}

// Put appends one record. The caller guarantees records arrive in strictly
// increasing byte order; equal or out-of-order records still round-trip but
// forfeit the compression the ordering buys.
func (e *Encoder) Put(rec []byte) {
	var mask uint64
	for i := 0; i < e.recLen; i++ {
		if e.prev[i]^rec[i] != 0 {
			mask |= 1 << uint(i)
		}
	}

	for i := 0; i < e.recLen; i += 7 {
		b := byte(mask >> uint(i) & 0x7f)
		if mask>>uint(i+7) != 0 {
			e.delta = append(e.delta, b|0x80)
		} else {
			e.delta = append(e.delta, b)
			break
		}
	}
	for i := 0; i < e.recLen; i++ {
		if mask&(1<<uint(i)) != 0 {
			e.delta = append(e.delta, e.prev[i]^rec[i])
			e.prev[i] = rec[i]
		}
	}
	e.n++
}

// Count returns the number of records Put so far.
func (e *Encoder) Count() int64 {
	return e.n
}

// Finish block-compresses the buffered stream and returns it. The encoder
// must not be reused afterwards.
func (e *Encoder) Finish() []byte {
	return snappy.Encode(nil, e.delta)
}

// Decoder streams records back out of an encoded blob.
type Decoder struct {
	recLen int
	prev   []byte
	data   []byte
	pos    int
}

// NewDecoder decompresses blob and prepares to yield records of recLen
// bytes.
func NewDecoder(recLen int, blob []byte) (*Decoder, error) {
	data, err := snappy.Decode(nil, blob)
	if err != nil {
		return nil, fmt.Errorf("snappy decode: %w", err)
	}
	return &Decoder{
		recLen: recLen,
		prev:   make([]byte, recLen),
		data:   data,
	}, nil
}

// Next decodes the next record into dst (which must be recLen bytes) and
// reports whether a record was produced. Once Next returns false the stream
// is exhausted.
func (d *Decoder) Next(dst []byte) bool {
	if d.pos >= len(d.data) {
		return false
	}
	var mask uint64
	for i := 0; i < d.recLen; i += 7 {
		b := d.data[d.pos]
		d.pos++
		mask |= uint64(b&0x7f) << uint(i)
		if b&0x80 == 0 {
			break
		}
	}
	for i := 0; i < d.recLen; i++ {
		if mask&(1<<uint(i)) != 0 {
			d.prev[i] ^= d.data[d.pos]
			d.pos++
		}
	}
	copy(dst, d.prev)
	return true
}
