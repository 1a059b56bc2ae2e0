// Package wavfile reads and writes 16-bit PCM WAV files
package wavfile

import (
	"errors"
	"fmt"
	"os"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"github.com/msto63/speechrec/pkg/audio/pcm"
)

// ErrInvalidFile is returned for files that are not 16-bit PCM WAV
var ErrInvalidFile = errors.New("wavfile: not a 16-bit PCM WAV file")

// Clip is a decoded WAV file
type Clip struct {
	PCM        []byte // interleaved s16le
	SampleRate int
	Channels   int
}

// DurationMs returns the length of the clip in milliseconds
func (c Clip) DurationMs() int64 {
	if c.SampleRate <= 0 || c.Channels <= 0 {
		return 0
	}
	samples := int64(len(c.PCM) / pcm.SampleSize / c.Channels)
	return samples * 1000 / int64(c.SampleRate)
}

// Write stores interleaved s16le PCM as a WAV file at path
func Write(path string, data []byte, sampleRate, channels int) error {
	if len(data)%pcm.SampleSize != 0 {
		return pcm.ErrMisalignedBuffer
	}
	if sampleRate <= 0 || channels <= 0 {
		return fmt.Errorf("wavfile: invalid format %d Hz/%d ch", sampleRate, channels)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}

	enc := wav.NewEncoder(f, sampleRate, 16, channels, 1)

	samples := pcm.Samples(data)
	ints := make([]int, len(samples))
	for i, s := range samples {
		ints[i] = int(s)
	}
	buf := &audio.IntBuffer{
		Format: &audio.Format{
			NumChannels: channels,
			SampleRate:  sampleRate,
		},
		Data:           ints,
		SourceBitDepth: 16,
	}

	if err := enc.Write(buf); err != nil {
		f.Close()
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	if err := enc.Close(); err != nil {
		f.Close()
		return fmt.Errorf("failed to finalize %s: %w", path, err)
	}
	return f.Close()
}

// Read loads a 16-bit PCM WAV file
func Read(path string) (*Clip, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	dec := wav.NewDecoder(f)
	if !dec.IsValidFile() || dec.BitDepth != 16 {
		return nil, fmt.Errorf("%w: %s", ErrInvalidFile, path)
	}

	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", path, err)
	}

	samples := make([]int16, len(buf.Data))
	for i, v := range buf.Data {
		samples[i] = int16(v)
	}

	return &Clip{
		PCM:        pcm.Bytes(samples),
		SampleRate: int(dec.SampleRate),
		Channels:   int(dec.NumChans),
	}, nil
}
