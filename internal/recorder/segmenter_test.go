package recorder

import (
	"bytes"
	"errors"
	"testing"

	"github.com/msto63/speechrec/pkg/audio/pcm"
	"github.com/msto63/speechrec/pkg/audio/vad"
)

const testFrameSamples = 320

// alwaysVoiced leaves the decision to the volume gate
var alwaysVoiced = vad.ClassifierFunc(func([]byte, int) (bool, error) { return true, nil })

// constantFrame returns a mono frame with every sample set to v
func constantFrame(v int16) []byte {
	samples := make([]int16, testFrameSamples)
	for i := range samples {
		samples[i] = v
	}
	return pcm.Bytes(samples)
}

// scenario builds 20 silent, 10 speech and 40 silent frames. Frame i (1 based)
// carries the value i when silent and 1000+i when speaking, so every frame
// is distinct and silent frames stay below the volume gate.
func scenario() [][]byte {
	var frames [][]byte
	for i := 1; i <= 70; i++ {
		v := int16(i)
		if i > 20 && i <= 30 {
			v = int16(1000 + i)
		}
		frames = append(frames, constantFrame(v))
	}
	return frames
}

func scenarioOptions() Options {
	opts := DefaultOptions()
	opts.SpeakingThreshold = 5
	opts.SilenceThreshold = 30
	opts.LeadingPadding = 30
	return opts
}

type frameEvent struct {
	frame int
	event Event
}

func runFrames(t *testing.T, s *Segmenter, frames [][]byte) []frameEvent {
	t.Helper()
	var out []frameEvent
	for i, f := range frames {
		events, err := s.Process(f)
		if err != nil {
			t.Fatalf("Process(frame %d) error = %v", i+1, err)
		}
		for _, ev := range events {
			out = append(out, frameEvent{frame: i + 1, event: ev})
		}
	}
	return out
}

func filter(events []frameEvent, kind EventKind) []frameEvent {
	var out []frameEvent
	for _, fe := range events {
		if fe.event.Kind == kind {
			out = append(out, fe)
		}
	}
	return out
}

func TestSegmenterScenario(t *testing.T) {
	s, err := NewSegmenter(scenarioOptions(), alwaysVoiced)
	if err != nil {
		t.Fatalf("NewSegmenter() error = %v", err)
	}

	frames := scenario()
	events := runFrames(t, s, frames)

	t.Run("speaking starts at frame 25", func(t *testing.T) {
		// The audio event of frame 60 precedes the chunk end
		for _, fe := range filter(events, EventAudio) {
			want := fe.frame >= 25 && fe.frame <= 60
			if fe.event.Audio.Speaking != want {
				t.Errorf("frame %d: Speaking = %v, want %v", fe.frame, fe.event.Audio.Speaking, want)
			}
		}
	})

	t.Run("chunk start carries buffered frames", func(t *testing.T) {
		starts := filter(events, EventChunkStart)
		if len(starts) != 1 {
			t.Fatalf("got %d chunk starts, want 1", len(starts))
		}
		if starts[0].frame != 25 {
			t.Errorf("chunk start at frame %d, want 25", starts[0].frame)
		}
		want := pcm.Concat(frames[:25])
		if !bytes.Equal(starts[0].event.Leading, want) {
			t.Errorf("leading audio has %d bytes, want %d (frames 1..25)", len(starts[0].event.Leading), len(want))
		}
	})

	t.Run("chunk end at frame 60", func(t *testing.T) {
		ends := filter(events, EventChunkEnd)
		if len(ends) != 1 {
			t.Fatalf("got %d chunk ends, want 1", len(ends))
		}
		if ends[0].frame != 60 {
			t.Errorf("chunk end at frame %d, want 60", ends[0].frame)
		}
	})

	t.Run("audio event fields", func(t *testing.T) {
		audio := filter(events, EventAudio)
		if len(audio) != 70 {
			t.Fatalf("got %d audio events, want 70", len(audio))
		}
		tests := []struct {
			frame   int
			speech  bool
			volume  int
			silence int
		}{
			{1, false, 1, 0},
			{20, false, 20, 0},
			{21, true, 1021, 0},
			{30, true, 1030, 0},
			{31, false, 31, 1},
			{40, false, 40, 10},
			{70, false, 70, 40},
		}
		for _, tt := range tests {
			got := audio[tt.frame-1].event.Audio
			if got.Speech != tt.speech || got.Volume != tt.volume || got.Silence != tt.silence {
				t.Errorf("frame %d: speech=%v volume=%d silence=%d, want speech=%v volume=%d silence=%d",
					tt.frame, got.Speech, got.Volume, got.Silence, tt.speech, tt.volume, tt.silence)
			}
		}
	})
}

func TestSegmenterTriggerFiresOnce(t *testing.T) {
	opts := scenarioOptions()
	opts.Triggers = []Trigger{{ID: "t1", Threshold: 10}}

	s, err := NewSegmenter(opts, alwaysVoiced)
	if err != nil {
		t.Fatalf("NewSegmenter() error = %v", err)
	}

	triggers := filter(runFrames(t, s, scenario()), EventTrigger)
	if len(triggers) != 1 {
		t.Fatalf("got %d triggers, want 1", len(triggers))
	}
	if triggers[0].frame != 40 {
		t.Errorf("trigger at frame %d, want 40", triggers[0].frame)
	}
	if triggers[0].event.Trigger.ID != "t1" {
		t.Errorf("trigger id = %q, want t1", triggers[0].event.Trigger.ID)
	}
}

func TestSegmenterEventOrder(t *testing.T) {
	opts := scenarioOptions()
	opts.Triggers = []Trigger{{ID: "b", Threshold: 30}, {ID: "a", Threshold: 30}}

	s, err := NewSegmenter(opts, alwaysVoiced)
	if err != nil {
		t.Fatalf("NewSegmenter() error = %v", err)
	}

	var at60, at25 []string
	for _, fe := range runFrames(t, s, scenario()) {
		name := fe.event.Kind.String()
		if fe.event.Kind == EventTrigger {
			name += ":" + fe.event.Trigger.ID
		}
		switch fe.frame {
		case 25:
			at25 = append(at25, name)
		case 60:
			at60 = append(at60, name)
		}
	}

	wantAt25 := []string{"chunk_start", "audio"}
	wantAt60 := []string{"audio", "chunk_end", "trigger:b", "trigger:a"}
	if !equalStrings(at25, wantAt25) {
		t.Errorf("frame 25 events = %v, want %v", at25, wantAt25)
	}
	if !equalStrings(at60, wantAt60) {
		t.Errorf("frame 60 events = %v, want %v", at60, wantAt60)
	}
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestSegmenterVolumeGate(t *testing.T) {
	s, err := NewSegmenter(scenarioOptions(), alwaysVoiced)
	if err != nil {
		t.Fatalf("NewSegmenter() error = %v", err)
	}

	tests := []struct {
		value int16
		want  bool
	}{
		{250, false},
		{251, true},
		{-251, true},
		{0, false},
	}
	for _, tt := range tests {
		events, err := s.Process(constantFrame(tt.value))
		if err != nil {
			t.Fatalf("Process() error = %v", err)
		}
		if got := events[len(events)-1].Audio.Speech; got != tt.want {
			t.Errorf("Process(%d).Speech = %v, want %v", tt.value, got, tt.want)
		}
	}
}

func TestSegmenterLeadingPadding(t *testing.T) {
	opts := scenarioOptions()
	opts.LeadingPadding = 3

	s, err := NewSegmenter(opts, alwaysVoiced)
	if err != nil {
		t.Fatalf("NewSegmenter() error = %v", err)
	}

	var frames [][]byte
	for i := 0; i < 10; i++ {
		frames = append(frames, constantFrame(int16(i)))
	}
	runFrames(t, s, frames)

	if got := s.State().LeadingFrames; got != 3 {
		t.Fatalf("LeadingFrames = %d, want 3", got)
	}

	var speech [][]byte
	for i := 0; i < 5; i++ {
		speech = append(speech, constantFrame(int16(2000+i)))
	}
	starts := filter(runFrames(t, s, speech), EventChunkStart)
	if len(starts) != 1 {
		t.Fatalf("got %d chunk starts, want 1", len(starts))
	}

	// The trimmed pre-roll plus the frame that crossed the threshold
	want := pcm.Concat(speech[1:5])
	if !bytes.Equal(starts[0].event.Leading, want) {
		t.Errorf("leading audio = %d bytes, want %d", len(starts[0].event.Leading), len(want))
	}
	if got := s.State().LeadingFrames; got != 0 {
		t.Errorf("LeadingFrames after chunk start = %d, want 0", got)
	}
}

func TestSegmenterResetKeepsSpeakingAndBuffer(t *testing.T) {
	s, err := NewSegmenter(scenarioOptions(), alwaysVoiced)
	if err != nil {
		t.Fatalf("NewSegmenter() error = %v", err)
	}

	// Three speech frames: still silent, buffer holds them
	for i := 0; i < 3; i++ {
		if _, err := s.Process(constantFrame(1000)); err != nil {
			t.Fatal(err)
		}
	}
	s.Reset()
	got := s.State()
	want := State{LeadingFrames: 3}
	if got != want {
		t.Errorf("State() after Reset = %+v, want %+v", got, want)
	}

	// Enter speaking, then reset: speaking is kept
	for i := 0; i < 5; i++ {
		if _, err := s.Process(constantFrame(1000)); err != nil {
			t.Fatal(err)
		}
	}
	s.Reset()
	got = s.State()
	want = State{Speaking: true}
	if got != want {
		t.Errorf("State() after Reset while speaking = %+v, want %+v", got, want)
	}

	// With audioStarted cleared, silence is reported as 0 and triggers stay quiet
	events, err := s.Process(constantFrame(0))
	if err != nil {
		t.Fatal(err)
	}
	if ev := events[len(events)-1]; ev.Audio.Silence != 0 || !ev.Audio.Speaking {
		t.Errorf("audio after Reset = %+v, want speaking with silence 0", ev.Audio)
	}
}

func TestSegmenterStrictReset(t *testing.T) {
	s, err := NewSegmenter(scenarioOptions(), alwaysVoiced)
	if err != nil {
		t.Fatalf("NewSegmenter() error = %v", err)
	}
	for i := 0; i < 8; i++ {
		if _, err := s.Process(constantFrame(1000)); err != nil {
			t.Fatal(err)
		}
	}

	s.StrictReset()
	if got := s.State(); got != (State{}) {
		t.Errorf("State() after StrictReset = %+v, want zero state", got)
	}
}

func TestSegmenterClassifierError(t *testing.T) {
	boom := errors.New("boom")
	fail := false
	c := vad.ClassifierFunc(func([]byte, int) (bool, error) {
		if fail {
			return false, boom
		}
		return true, nil
	})

	s, err := NewSegmenter(scenarioOptions(), c)
	if err != nil {
		t.Fatalf("NewSegmenter() error = %v", err)
	}
	for i := 0; i < 2; i++ {
		if _, err := s.Process(constantFrame(1000)); err != nil {
			t.Fatal(err)
		}
	}
	before := s.State()

	fail = true
	events, err := s.Process(constantFrame(1000))
	if !errors.Is(err, boom) {
		t.Errorf("Process() error = %v, want boom", err)
	}
	if events != nil {
		t.Errorf("Process() events = %v, want none", events)
	}
	if after := s.State(); after != before {
		t.Errorf("State() changed on error: %+v -> %+v", before, after)
	}
}

func TestSegmenterMisalignedBuffer(t *testing.T) {
	opts := scenarioOptions()
	opts.ChannelNumber = 2
	opts.ChannelID = 1

	s, err := NewSegmenter(opts, alwaysVoiced)
	if err != nil {
		t.Fatalf("NewSegmenter() error = %v", err)
	}
	if _, err := s.Process(make([]byte, 6)); !errors.Is(err, pcm.ErrMisalignedBuffer) {
		t.Errorf("Process() error = %v, want ErrMisalignedBuffer", err)
	}
}

func TestSegmenterStereoChannel(t *testing.T) {
	opts := scenarioOptions()
	opts.ChannelNumber = 2
	opts.ChannelID = 1
	opts.SpeakingThreshold = 1

	s, err := NewSegmenter(opts, alwaysVoiced)
	if err != nil {
		t.Fatalf("NewSegmenter() error = %v", err)
	}

	// Loud left channel, quiet right channel
	samples := make([]int16, 2*testFrameSamples)
	for i := 0; i < len(samples); i += 2 {
		samples[i] = 5000
		samples[i+1] = 10
	}
	events, err := s.Process(pcm.Bytes(samples))
	if err != nil {
		t.Fatal(err)
	}
	audio := events[len(events)-1].Audio
	if audio.Speech || audio.Volume != 10 {
		t.Errorf("audio = speech %v volume %d, want speech false volume 10", audio.Speech, audio.Volume)
	}
	if len(audio.Frame) != 2*testFrameSamples {
		t.Errorf("frame length = %d, want %d", len(audio.Frame), 2*testFrameSamples)
	}
}

func TestNewSegmenterRequiresClassifier(t *testing.T) {
	if _, err := NewSegmenter(DefaultOptions(), nil); !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("NewSegmenter(nil) error = %v, want ErrInvalidConfig", err)
	}
}
