// ============================================================================
// meinDENKWERK (mDW) - speechrec
// ============================================================================
//
// Package:     pcm
// Description: Channel extraction and volume metering for s16le PCM
// Created:     2026-10-12
// License:     MIT
// ============================================================================

// Package pcm works on raw signed 16-bit little-endian PCM buffers.
//
// Interleaved buffers carry one sample per channel per frame group:
//
//	| ch0 lo | ch0 hi | ch1 lo | ch1 hi | ch0 lo | ch0 hi | ...
//
// All functions are allocation-explicit and never retain the input slice.
package pcm

import (
	"errors"
	"fmt"
	"math"
)

// SampleSize is the number of bytes per sample.
const SampleSize = 2

var (
	// ErrMisalignedBuffer is returned when a buffer does not hold a whole
	// number of frame groups.
	ErrMisalignedBuffer = errors.New("pcm: buffer length is not a multiple of the frame stride")

	// ErrInvalidChannel is returned for a channel count < 1 or a channel
	// index outside [0, channels).
	ErrInvalidChannel = errors.New("pcm: invalid channel selection")
)

// ExtractChannel returns the samples of one channel from an interleaved buffer.
//
// The input stride between two samples of the same channel is channels*2
// bytes, starting at byte offset channel*2. len(buf) must be a multiple of
// channels*2; otherwise ErrMisalignedBuffer is returned and nothing is
// extracted. The result is always a fresh slice.
func ExtractChannel(buf []byte, channels, channel int) ([]byte, error) {
	if channels < 1 || channel < 0 || channel >= channels {
		return nil, fmt.Errorf("%w: channel %d of %d", ErrInvalidChannel, channel, channels)
	}

	stride := channels * SampleSize
	if len(buf)%stride != 0 {
		return nil, fmt.Errorf("%w: %d bytes, stride %d", ErrMisalignedBuffer, len(buf), stride)
	}

	if channels == 1 {
		out := make([]byte, len(buf))
		copy(out, buf)
		return out, nil
	}

	out := make([]byte, 0, len(buf)/channels)
	for i := channel * SampleSize; i < len(buf); i += stride {
		out = append(out, buf[i], buf[i+1])
	}
	return out, nil
}

// Volume returns the RMS loudness of a mono frame as
// floor(sqrt(mean(sample^2))). An empty frame has volume 0.
func Volume(frame []byte) int {
	n := len(frame) / SampleSize
	if n == 0 {
		return 0
	}

	var sum float64
	for i := 0; i+1 < len(frame); i += SampleSize {
		s := float64(int16(frame[i]) | int16(frame[i+1])<<8)
		sum += s * s
	}
	return int(math.Floor(math.Sqrt(sum / float64(n))))
}

// Samples decodes a little-endian byte buffer into int16 samples. A trailing
// odd byte is ignored.
func Samples(buf []byte) []int16 {
	out := make([]int16, len(buf)/SampleSize)
	for i := range out {
		out[i] = int16(buf[i*2]) | int16(buf[i*2+1])<<8
	}
	return out
}

// Bytes encodes int16 samples as little-endian bytes.
func Bytes(samples []int16) []byte {
	out := make([]byte, len(samples)*SampleSize)
	for i, s := range samples {
		out[i*2] = byte(s)
		out[i*2+1] = byte(s >> 8)
	}
	return out
}

// Concat joins frames in order into one buffer.
func Concat(frames [][]byte) []byte {
	total := 0
	for _, f := range frames {
		total += len(f)
	}
	out := make([]byte, 0, total)
	for _, f := range frames {
		out = append(out, f...)
	}
	return out
}
