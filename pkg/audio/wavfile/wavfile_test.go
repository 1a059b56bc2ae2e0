package wavfile

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/msto63/speechrec/pkg/audio/pcm"
)

func TestWriteRead(t *testing.T) {
	tests := []struct {
		name       string
		sampleRate int
		channels   int
		samples    []int16
	}{
		{"mono", 16000, 1, []int16{0, 1, -1, 32767, -32768, 1000}},
		{"stereo", 8000, 2, []int16{10, -10, 20, -20}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "clip.wav")
			data := pcm.Bytes(tt.samples)

			if err := Write(path, data, tt.sampleRate, tt.channels); err != nil {
				t.Fatalf("Write failed: %v", err)
			}

			clip, err := Read(path)
			if err != nil {
				t.Fatalf("Read failed: %v", err)
			}
			if clip.SampleRate != tt.sampleRate {
				t.Errorf("SampleRate = %d, want %d", clip.SampleRate, tt.sampleRate)
			}
			if clip.Channels != tt.channels {
				t.Errorf("Channels = %d, want %d", clip.Channels, tt.channels)
			}
			if !bytes.Equal(clip.PCM, data) {
				t.Errorf("PCM = %v, want %v", clip.PCM, data)
			}
		})
	}
}

func TestWriteMisaligned(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.wav")
	err := Write(path, []byte{1, 2, 3}, 16000, 1)
	if !errors.Is(err, pcm.ErrMisalignedBuffer) {
		t.Errorf("Write() error = %v, want ErrMisalignedBuffer", err)
	}
}

func TestReadInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "noise.wav")
	if err := os.WriteFile(path, []byte("definitely not a riff header"), 0o644); err != nil {
		t.Fatal(err)
	}

	if _, err := Read(path); !errors.Is(err, ErrInvalidFile) {
		t.Errorf("Read() error = %v, want ErrInvalidFile", err)
	}
}

func TestDurationMs(t *testing.T) {
	clip := Clip{PCM: make([]byte, 16000*2), SampleRate: 16000, Channels: 1}
	if got := clip.DurationMs(); got != 1000 {
		t.Errorf("DurationMs() = %d, want 1000", got)
	}
	if got := (Clip{}).DurationMs(); got != 0 {
		t.Errorf("DurationMs() of empty clip = %d, want 0", got)
	}
}
