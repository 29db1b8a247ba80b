// Package codec converts between the engine's normalized floating-point
// sample domain and the packed little-endian integer frames a sound
// interface exposes over its mmap'd DMA buffers.
//
// Two sample widths are supported, selected at stream-negotiation time:
// 16-bit and 32-bit signed little-endian. The 32-bit path treats the
// packed value as a full signed 32-bit integer even though a card may
// only implement the high 24 bits in hardware — clamping happens against
// the format's (or a caller-supplied) level bounds, never by silent
// wraparound.
package codec

import "encoding/binary"

// Format identifies a packed integer sample width.
type Format int

const (
	// S16LE is 16-bit little-endian signed.
	S16LE Format = iota
	// S32LE is 32-bit little-endian signed.
	S32LE
)

// Bytes returns the number of bytes one packed sample occupies.
func (f Format) Bytes() int {
	switch f {
	case S32LE:
		return 4
	default:
		return 2
	}
}

// Levels are the packed integer bounds a Codec clamps writes to.
type Levels struct {
	Min int32
	Max int32
}

// defaultLevels returns the full signed range for the format.
func defaultLevels(f Format) Levels {
	switch f {
	case S32LE:
		return Levels{Min: -2147483648, Max: 2147483647}
	default:
		return Levels{Min: -32768, Max: 32767}
	}
}

// Codec converts between the engine sample domain (float32 in [-1, 1])
// and a format's packed integer representation.
//
// Every method is allocation-free and safe to call from the audio thread:
// callers own dst/src and Codec never retains a reference to either.
type Codec interface {
	// Read converts n packed samples from src into dst, reading with
	// srcStride bytes between successive samples (srcStride == Bytes()
	// for a contiguous, non-interleaved channel; srcStride ==
	// Bytes()*channels for an interleaved one).
	Read(dst []float32, src []byte, n int, srcStride int)

	// Write converts n engine samples from src into dst, applying gain
	// and clamping to the codec's configured Levels, writing with
	// dstStride bytes between successive samples.
	Write(dst []byte, src []float32, n int, dstStride int, gain float32)

	// Copy moves nBytes worth of packed samples from src to dst without
	// going through the float domain — the hardware-monitoring bypass.
	// dstStride/srcStride of 0 means "contiguous" (equal to Bytes()).
	Copy(dst []byte, src []byte, nBytes int, dstStride int, srcStride int)

	// MemsetStrided writes the format's zero value into a (possibly
	// non-contiguous) region: nBytes total, unit bytes per sample,
	// stride bytes between successive sample starts.
	MemsetStrided(dst []byte, nBytes int, unit int, stride int)
}

// New returns the Codec for format, clamping writes to levels. A zero
// Min or Max uses the format's native bound on that side, so a zero
// Levels uses the format's full native range.
func New(format Format, levels Levels) Codec {
	var defaults = defaultLevels(format)
	if levels.Min == 0 {
		levels.Min = defaults.Min
	}
	if levels.Max == 0 {
		levels.Max = defaults.Max
	}
	switch format {
	case S32LE:
		return codec32{levels: levels}
	default:
		return codec16{levels: levels}
	}
}

type codec16 struct{ levels Levels }

func clampInt32(v int32, levels Levels) int32 {
	if v < levels.Min {
		return levels.Min
	}
	if v > levels.Max {
		return levels.Max
	}
	return v
}

func (c codec16) Read(dst []float32, src []byte, n int, srcStride int) {
	if srcStride <= 0 {
		srcStride = 2
	}
	var off int
	for i := 0; i < n; i++ {
		var raw = int16(binary.LittleEndian.Uint16(src[off : off+2]))
		dst[i] = float32(raw) / 32768.0
		off += srcStride
	}
}

func (c codec16) Write(dst []byte, src []float32, n int, dstStride int, gain float32) {
	if dstStride <= 0 {
		dstStride = 2
	}
	var off int
	for i := 0; i < n; i++ {
		var scaled = int32(src[i] * gain * 32768.0)
		scaled = clampInt32(scaled, c.levels)
		binary.LittleEndian.PutUint16(dst[off:off+2], uint16(int16(scaled)))
		off += dstStride
	}
}

func (c codec16) Copy(dst []byte, src []byte, nBytes int, dstStride int, srcStride int) {
	copyStrided(dst, src, nBytes, 2, dstStride, srcStride)
}

func (c codec16) MemsetStrided(dst []byte, nBytes int, unit int, stride int) {
	memsetStrided(dst, nBytes, unit, stride)
}

type codec32 struct{ levels Levels }

func (c codec32) Read(dst []float32, src []byte, n int, srcStride int) {
	if srcStride <= 0 {
		srcStride = 4
	}
	var off int
	for i := 0; i < n; i++ {
		var raw = int32(binary.LittleEndian.Uint32(src[off : off+4]))
		dst[i] = float32(float64(raw) / 2147483648.0)
		off += srcStride
	}
}

func (c codec32) Write(dst []byte, src []float32, n int, dstStride int, gain float32) {
	if dstStride <= 0 {
		dstStride = 4
	}
	var off int
	for i := 0; i < n; i++ {
		var scaled = int64(float64(src[i]) * float64(gain) * 2147483648.0)
		if scaled > int64(c.levels.Max) {
			scaled = int64(c.levels.Max)
		}
		if scaled < int64(c.levels.Min) {
			scaled = int64(c.levels.Min)
		}
		binary.LittleEndian.PutUint32(dst[off:off+4], uint32(int32(scaled)))
		off += dstStride
	}
}

func (c codec32) Copy(dst []byte, src []byte, nBytes int, dstStride int, srcStride int) {
	copyStrided(dst, src, nBytes, 4, dstStride, srcStride)
}

func (c codec32) MemsetStrided(dst []byte, nBytes int, unit int, stride int) {
	memsetStrided(dst, nBytes, unit, stride)
}

// copyStrided copies nBytes of packed samples (each `unit` bytes wide)
// from src to dst, honoring independent strides on each side. When both
// strides equal unit the transfer degenerates to a single contiguous
// copy, the common non-interleaved case.
func copyStrided(dst []byte, src []byte, nBytes int, unit int, dstStride int, srcStride int) {
	if dstStride <= 0 {
		dstStride = unit
	}
	if srcStride <= 0 {
		srcStride = unit
	}
	if dstStride == unit && srcStride == unit {
		copy(dst[:nBytes], src[:nBytes])
		return
	}
	var dOff, sOff int
	for remaining := nBytes; remaining > 0; remaining -= unit {
		copy(dst[dOff:dOff+unit], src[sOff:sOff+unit])
		dOff += dstStride
		sOff += srcStride
	}
}

// memsetStrided zeroes a (possibly non-contiguous) region: nBytes total
// across unit-sized samples spaced stride bytes apart.
func memsetStrided(dst []byte, nBytes int, unit int, stride int) {
	if stride <= 0 {
		stride = unit
	}
	if stride == unit {
		clear(dst[:nBytes])
		return
	}
	var off int
	for remaining := nBytes; remaining > 0; remaining -= unit {
		clear(dst[off : off+unit])
		off += stride
	}
}
