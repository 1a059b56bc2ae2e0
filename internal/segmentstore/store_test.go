package segmentstore

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/msto63/speechrec/internal/segment"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(Config{Path: filepath.Join(t.TempDir(), "segments.db")})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func testSegment(id string, started time.Time, triggers ...string) *segment.Segment {
	seg := &segment.Segment{
		ID:            id,
		StartedAt:     started,
		EndedAt:       started.Add(2 * time.Second),
		SampleRate:    16000,
		LeadingFrames: 25,
		Frames:        35,
		PCM:           make([]byte, 32000),
		Path:          "/tmp/" + id + ".wav",
	}
	for _, tr := range triggers {
		seg.Triggers = append(seg.Triggers, segment.TriggerHit{
			SegmentID: id,
			TriggerID: tr,
			Threshold: 10,
			At:        started.Add(time.Second),
		})
	}
	return seg
}

func TestSaveAndGetSegment(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	started := time.Date(2026, 10, 13, 10, 0, 0, 0, time.UTC)

	if err := s.SaveSegment(ctx, testSegment("a", started, "t1")); err != nil {
		t.Fatalf("SaveSegment() error = %v", err)
	}

	rec, err := s.GetSegment(ctx, "a")
	if err != nil {
		t.Fatalf("GetSegment() error = %v", err)
	}
	if !rec.StartedAt.Equal(started) {
		t.Errorf("StartedAt = %v, want %v", rec.StartedAt, started)
	}
	if rec.DurationMs != 1000 {
		t.Errorf("DurationMs = %d, want 1000", rec.DurationMs)
	}
	if rec.LeadingFrames != 25 || rec.Frames != 35 || rec.SampleRate != 16000 {
		t.Errorf("record = %+v", rec)
	}
	if rec.Path != "/tmp/a.wav" {
		t.Errorf("Path = %q, want /tmp/a.wav", rec.Path)
	}
	if len(rec.Triggers) != 1 || rec.Triggers[0].TriggerID != "t1" {
		t.Errorf("Triggers = %+v, want [t1]", rec.Triggers)
	}
}

func TestGetSegmentNotFound(t *testing.T) {
	s := newTestStore(t)
	if _, err := s.GetSegment(context.Background(), "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetSegment() error = %v, want ErrNotFound", err)
	}
}

func TestSaveTrigger(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	started := time.Date(2026, 10, 13, 10, 0, 0, 0, time.UTC)

	if err := s.SaveSegment(ctx, testSegment("a", started)); err != nil {
		t.Fatal(err)
	}
	hit := segment.TriggerHit{SegmentID: "a", TriggerID: "late", Threshold: 40, At: started.Add(5 * time.Second)}
	if err := s.SaveTrigger(ctx, hit); err != nil {
		t.Fatalf("SaveTrigger() error = %v", err)
	}

	rec, err := s.GetSegment(ctx, "a")
	if err != nil {
		t.Fatal(err)
	}
	if len(rec.Triggers) != 1 || rec.Triggers[0].Threshold != 40 {
		t.Errorf("Triggers = %+v, want the late hit", rec.Triggers)
	}
}

func TestListSegments(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 10, 13, 10, 0, 0, 0, time.UTC)

	for i, id := range []string{"a", "b", "c"} {
		var triggers []string
		if id != "b" {
			triggers = []string{"t1"}
		}
		if err := s.SaveSegment(ctx, testSegment(id, base.Add(time.Duration(i)*time.Minute), triggers...)); err != nil {
			t.Fatal(err)
		}
	}

	tests := []struct {
		name   string
		filter Filter
		want   []string
	}{
		{"all newest first", Filter{}, []string{"c", "b", "a"}},
		{"limit", Filter{Limit: 2}, []string{"c", "b"}},
		{"limit offset", Filter{Limit: 2, Offset: 2}, []string{"a"}},
		{"since", Filter{Since: base.Add(time.Minute)}, []string{"c", "b"}},
		{"until", Filter{Until: base}, []string{"a"}},
		{"trigger", Filter{TriggerID: "t1"}, []string{"c", "a"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			recs, err := s.ListSegments(ctx, tt.filter)
			if err != nil {
				t.Fatalf("ListSegments() error = %v", err)
			}
			var got []string
			for _, r := range recs {
				got = append(got, r.ID)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("ListSegments() = %v, want %v", got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("ListSegments() = %v, want %v", got, tt.want)
					break
				}
			}
		})
	}

	n, err := s.Count(ctx)
	if err != nil || n != 3 {
		t.Errorf("Count() = %d, %v, want 3", n, err)
	}
}

func TestPrune(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	old := time.Now().Add(-48 * time.Hour)
	recent := time.Now().Add(-time.Minute)
	if err := s.SaveSegment(ctx, testSegment("old", old, "t1")); err != nil {
		t.Fatal(err)
	}
	if err := s.SaveSegment(ctx, testSegment("recent", recent, "t1")); err != nil {
		t.Fatal(err)
	}

	deleted, err := s.Prune(ctx, 24*time.Hour)
	if err != nil {
		t.Fatalf("Prune() error = %v", err)
	}
	if deleted != 1 {
		t.Errorf("Prune() = %d, want 1", deleted)
	}
	if _, err := s.GetSegment(ctx, "old"); !errors.Is(err, ErrNotFound) {
		t.Errorf("old segment still present: %v", err)
	}
	if _, err := s.GetSegment(ctx, "recent"); err != nil {
		t.Errorf("recent segment missing: %v", err)
	}

	// Hits of pruned segments are gone too
	recs, err := s.ListSegments(ctx, Filter{TriggerID: "t1"})
	if err != nil {
		t.Fatal(err)
	}
	if len(recs) != 1 {
		t.Errorf("segments with t1 = %d, want 1", len(recs))
	}
}
