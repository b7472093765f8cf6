// Package gorilla implements bit-packed delta-of-delta timestamp encoding
// and XOR value encoding for (timestamp, f64) samples, as specified for the
// time-series column's on-disk representation.
package gorilla

import (
	"encoding/binary"
	"math"
	"math/bits"
)

// Sample is one (timestamp, value) point. Timestamps are milliseconds since
// epoch; the engine's higher-resolution nanosecond timestamps are converted
// at the time-series column boundary.
type Sample struct {
	TimestampMs int64
	Value       float64
}

// Encoder incrementally compresses a sorted sample sequence.
type Encoder struct {
	w    *bitWriter
	n    uint64
	first bool

	prevTS    int64
	prevDelta int64
	prevBits  uint64

	prevLeading  uint8
	prevTrailing uint8
}

// NewEncoder creates an encoder ready to accept the first sample.
func NewEncoder() *Encoder {
	return &Encoder{w: newBitWriter(), first: true, prevLeading: 64}
}

// Append encodes one more sample.
func (e *Encoder) Append(s Sample) {
	e.n++
	if e.first {
		e.first = false
		e.prevTS = s.TimestampMs
		e.prevBits = math.Float64bits(s.Value)
		e.w.writeBits(uint64(s.TimestampMs), 64)
		e.w.writeBits(e.prevBits, 64)
		return
	}
	e.encodeTimestamp(s.TimestampMs)
	e.encodeValue(math.Float64bits(s.Value))
}

func (e *Encoder) encodeTimestamp(ts int64) {
	delta := ts - e.prevTS
	dod := delta - e.prevDelta
	e.prevTS = ts
	e.prevDelta = delta

	switch {
	case dod == 0:
		e.w.writeBit(false)
	case dod >= -63 && dod <= 64:
		e.w.writeBits(0b10, 2)
		e.w.writeBits(uint64(dod+63), 7)
	case dod >= -255 && dod <= 256:
		e.w.writeBits(0b110, 3)
		e.w.writeBits(uint64(dod+255), 9)
	case dod >= -2047 && dod <= 2048:
		e.w.writeBits(0b1110, 4)
		e.w.writeBits(uint64(dod+2047), 12)
	default:
		// Widened to 64 bits (see DESIGN.md): the original encodes this
		// branch in 32 bits, which truncates deltas outside int32 range.
		e.w.writeBits(0b1111, 4)
		e.w.writeBits(uint64(dod), 64)
	}
}

func (e *Encoder) encodeValue(vbits uint64) {
	xor := vbits ^ e.prevBits
	e.prevBits = vbits

	if xor == 0 {
		e.w.writeBit(false)
		return
	}
	e.w.writeBit(true)

	leading := uint8(bits.LeadingZeros64(xor))
	if leading > 31 {
		leading = 31
	}
	trailing := uint8(bits.TrailingZeros64(xor))

	if e.prevLeading <= 64 && leading >= e.prevLeading && trailing >= e.prevTrailing {
		e.w.writeBit(false)
		meaningful := 64 - e.prevLeading - e.prevTrailing
		e.w.writeBits(xor>>e.prevTrailing, meaningful)
		return
	}

	e.w.writeBit(true)
	e.w.writeBits(uint64(leading), 5)
	meaningful := 64 - leading - trailing
	// meaningful ranges 1..64; encode meaningful-1 in 6 bits (0..63) so a
	// full 64-bit-wide xor (leading==trailing==0) doesn't wrap to 0 and
	// desynchronize the reader.
	e.w.writeBits(uint64(meaningful-1), 6)
	e.w.writeBits(xor>>trailing, meaningful)
	e.prevLeading = leading
	e.prevTrailing = trailing
}

// Finish returns the final wire payload: an 8-byte little-endian sample
// count followed by the packed bitstream.
func (e *Encoder) Finish() []byte {
	body := e.w.finish()
	out := make([]byte, 8+len(body))
	binary.LittleEndian.PutUint64(out[:8], e.n)
	copy(out[8:], body)
	return out
}

// Compress is a convenience wrapper around Encoder for a whole slice.
func Compress(samples []Sample) []byte {
	enc := NewEncoder()
	for _, s := range samples {
		enc.Append(s)
	}
	return enc.Finish()
}

// Decoder reverses Encoder.
type Decoder struct {
	r *bitReader
	n uint64
	i uint64

	prevTS    int64
	prevDelta int64
	prevBits  uint64

	prevLeading  uint8
	prevTrailing uint8
}

// NewDecoder parses the header and prepares to yield samples via Next.
func NewDecoder(data []byte) *Decoder {
	if len(data) < 8 {
		return &Decoder{r: newBitReader(nil), n: 0}
	}
	n := binary.LittleEndian.Uint64(data[:8])
	return &Decoder{r: newBitReader(data[8:]), n: n, prevLeading: 64}
}

// Len returns the total sample count encoded in the stream.
func (d *Decoder) Len() uint64 { return d.n }

// Next yields the next sample, or ok=false once exhausted.
func (d *Decoder) Next() (Sample, bool) {
	if d.i >= d.n {
		return Sample{}, false
	}
	d.i++
	if d.i == 1 {
		tsBits, _ := d.r.readBits(64)
		vbits, _ := d.r.readBits(64)
		d.prevTS = int64(tsBits)
		d.prevBits = vbits
		return Sample{TimestampMs: d.prevTS, Value: math.Float64frombits(vbits)}, true
	}
	ts := d.decodeTimestamp()
	vbits := d.decodeValue()
	return Sample{TimestampMs: ts, Value: math.Float64frombits(vbits)}, true
}

func (d *Decoder) decodeTimestamp() int64 {
	var dod int64
	bit, _ := d.r.readBit()
	if !bit {
		dod = 0
	} else {
		bit2, _ := d.r.readBit()
		if !bit2 {
			v, _ := d.r.readBits(7)
			dod = int64(v) - 63
		} else {
			bit3, _ := d.r.readBit()
			if !bit3 {
				v, _ := d.r.readBits(9)
				dod = int64(v) - 255
			} else {
				bit4, _ := d.r.readBit()
				if !bit4 {
					v, _ := d.r.readBits(12)
					dod = int64(v) - 2047
				} else {
					v, _ := d.r.readBits(64)
					dod = int64(v)
				}
			}
		}
	}
	delta := d.prevDelta + dod
	ts := d.prevTS + delta
	d.prevTS = ts
	d.prevDelta = delta
	return ts
}

func (d *Decoder) decodeValue() uint64 {
	bit, _ := d.r.readBit()
	if !bit {
		return d.prevBits
	}
	control, _ := d.r.readBit()
	var leading, trailing uint8
	var meaningful uint8
	if !control {
		leading = d.prevLeading
		trailing = d.prevTrailing
		meaningful = 64 - leading - trailing
	} else {
		lv, _ := d.r.readBits(5)
		leading = uint8(lv)
		mv, _ := d.r.readBits(6)
		meaningful = uint8(mv) + 1
		trailing = 64 - leading - meaningful
		d.prevLeading = leading
		d.prevTrailing = trailing
	}
	bitsVal, _ := d.r.readBits(meaningful)
	xor := bitsVal << trailing
	vbits := xor ^ d.prevBits
	d.prevBits = vbits
	return vbits
}

// Decompress decodes a full stream back into samples.
func Decompress(data []byte) []Sample {
	dec := NewDecoder(data)
	out := make([]Sample, 0, dec.Len())
	for {
		s, ok := dec.Next()
		if !ok {
			break
		}
		out = append(out, s)
	}
	return out
}
