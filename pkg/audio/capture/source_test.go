package capture

import (
	"bytes"
	"context"
	"errors"
	"io"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/msto63/speechrec/pkg/audio/pcm"
	"github.com/msto63/speechrec/pkg/audio/wavfile"
	"github.com/msto63/speechrec/pkg/core/logging"
)

func TestConfigQueueLength(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
		want int
	}{
		{"default", DefaultConfig(), 100},
		{"below one buffer", Config{FramesPerBuffer: 320, Channels: 1, HighWaterMark: 100}, 1},
		{"stereo", Config{FramesPerBuffer: 320, Channels: 2, HighWaterMark: 64000}, 50},
		{"zero buffer", Config{}, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.cfg.QueueLength(); got != tt.want {
				t.Errorf("QueueLength() = %d, want %d", got, tt.want)
			}
		})
	}
}

// collector records handler calls
type collector struct {
	mu     sync.Mutex
	bufs   [][]byte
	errs   []error
	ended  chan struct{}
	endCnt int
}

func newCollector() *collector {
	return &collector{ended: make(chan struct{})}
}

func (c *collector) handler() Handler {
	return Handler{
		OnData: func(buf []byte) {
			c.mu.Lock()
			c.bufs = append(c.bufs, buf)
			c.mu.Unlock()
		},
		OnError: func(err error) {
			c.mu.Lock()
			c.errs = append(c.errs, err)
			c.mu.Unlock()
		},
		OnEnd: func() {
			c.mu.Lock()
			c.endCnt++
			c.mu.Unlock()
			close(c.ended)
		},
	}
}

func (c *collector) wait(t *testing.T) {
	t.Helper()
	select {
	case <-c.ended:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for end of stream")
	}
}

func smallConfig() Config {
	return Config{
		SampleRate:      16000,
		FramesPerBuffer: 4,
		Channels:        1,
		HighWaterMark:   64,
	}
}

func TestReaderDelivers(t *testing.T) {
	// 10 samples: two full buffers of 4 and a short one of 2
	samples := []int16{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}
	input := pcm.Bytes(samples)

	c := newCollector()
	src := NewReader(bytes.NewReader(input), smallConfig(), logging.Discard())
	if err := src.Start(context.Background(), c.handler()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	c.wait(t)

	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.bufs) != 3 {
		t.Fatalf("got %d buffers, want 3", len(c.bufs))
	}
	if len(c.bufs[2]) != 4 {
		t.Errorf("last buffer length = %d, want 4", len(c.bufs[2]))
	}
	if got := pcm.Concat(c.bufs); !bytes.Equal(got, input) {
		t.Errorf("delivered data differs from input")
	}
	if len(c.errs) != 0 {
		t.Errorf("unexpected errors: %v", c.errs)
	}
	if c.endCnt != 1 {
		t.Errorf("OnEnd called %d times, want 1", c.endCnt)
	}
}

type failingReader struct{ err error }

func (r failingReader) Read([]byte) (int, error) { return 0, r.err }

func TestReaderForwardsError(t *testing.T) {
	boom := errors.New("boom")

	c := newCollector()
	src := NewReader(failingReader{err: boom}, smallConfig(), nil)
	if err := src.Start(context.Background(), c.handler()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	c.wait(t)

	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.errs) != 1 || !errors.Is(c.errs[0], boom) {
		t.Errorf("errors = %v, want [boom]", c.errs)
	}
}

func TestReaderStartTwice(t *testing.T) {
	pr, pw := io.Pipe()
	defer pw.Close()

	src := NewReader(pr, smallConfig(), nil)
	if err := src.Start(context.Background(), Handler{}); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if err := src.Start(context.Background(), Handler{}); !errors.Is(err, ErrAlreadyRunning) {
		t.Errorf("second Start error = %v, want ErrAlreadyRunning", err)
	}

	if err := src.Stop(); err != nil {
		t.Errorf("Stop failed: %v", err)
	}
	if err := src.Stop(); err != nil {
		t.Errorf("second Stop failed: %v", err)
	}
	if src.IsRunning() {
		t.Error("source still running after Stop")
	}
}

// gatedReader blocks every Read until release is closed, then reports EOF
type gatedReader struct {
	entered chan struct{}
	release chan struct{}
}

func (g *gatedReader) Read([]byte) (int, error) {
	g.entered <- struct{}{}
	<-g.release
	return 0, io.EOF
}

func (g *gatedReader) waitEntered(t *testing.T) {
	t.Helper()
	select {
	case <-g.entered:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for Read")
	}
}

func TestReaderRestartWhileReadBlocked(t *testing.T) {
	g := &gatedReader{entered: make(chan struct{}, 2), release: make(chan struct{})}
	src := NewReader(g, smallConfig(), nil)

	if err := src.Start(context.Background(), Handler{}); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	g.waitEntered(t)
	if err := src.Stop(); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}

	// The first read loop is still blocked when the second session starts
	c := newCollector()
	if err := src.Start(context.Background(), c.handler()); err != nil {
		t.Fatalf("restart failed: %v", err)
	}
	g.waitEntered(t)
	close(g.release)
	c.wait(t)

	if err := src.Stop(); err != nil {
		t.Errorf("Stop failed: %v", err)
	}
	if src.IsRunning() {
		t.Error("source still running after Stop")
	}
}

func TestReaderStopFromHandler(t *testing.T) {
	input := pcm.Bytes(make([]int16, 400))

	src := NewReader(bytes.NewReader(input), smallConfig(), nil)
	stopped := make(chan struct{})
	var once sync.Once
	h := Handler{
		OnData: func([]byte) {
			once.Do(func() {
				src.Stop()
				close(stopped)
			})
		},
	}
	if err := src.Start(context.Background(), h); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	select {
	case <-stopped:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop from handler deadlocked")
	}
}

func TestWAVFileSource(t *testing.T) {
	samples := make([]int16, 10)
	for i := range samples {
		samples[i] = int16(i * 100)
	}
	input := pcm.Bytes(samples)

	path := filepath.Join(t.TempDir(), "in.wav")
	if err := wavfile.Write(path, input, 16000, 1); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	c := newCollector()
	src := NewWAVFile(path, smallConfig(), nil)
	if err := src.Start(context.Background(), c.handler()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	c.wait(t)

	c.mu.Lock()
	defer c.mu.Unlock()
	if got := pcm.Concat(c.bufs); !bytes.Equal(got, input) {
		t.Errorf("delivered %v, want %v", got, input)
	}
}

func TestWAVFileFormatMismatch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "in.wav")
	if err := wavfile.Write(path, pcm.Bytes([]int16{1, 2}), 8000, 1); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	src := NewWAVFile(path, smallConfig(), nil)
	err := src.Start(context.Background(), Handler{})
	if !errors.Is(err, ErrFormatMismatch) {
		t.Errorf("Start error = %v, want ErrFormatMismatch", err)
	}
	if src.IsRunning() {
		t.Error("source running after failed Start")
	}
}

func TestPipelineDropsWhenFull(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	block := make(chan struct{})
	h := Handler{OnData: func([]byte) { <-block }}
	p := newPipeline(ctx, 1, h, logging.Discard(), false)

	// First item is taken by the blocked handler, second fills the queue
	for i := 0; i < 10; i++ {
		if !p.push(ctx, []byte{0, 0}) {
			t.Fatal("push reported cancelled context")
		}
	}
	close(block)

	if p.Dropped() == 0 {
		t.Error("expected dropped buffers")
	}
}
