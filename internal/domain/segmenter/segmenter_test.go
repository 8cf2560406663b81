package segmenter

import (
	"testing"
	"time"

	"github.com/forPelevin/audiojournal/internal/types"
)

func utt(start, end float64) types.Utterance {
	return types.Utterance{Speaker: types.Speaker{ID: "SPEAKER_00"}, Text: "x", StartTime: start, EndTime: end}
}

func sec(f float64) time.Duration { return time.Duration(f * float64(time.Second)) }

func TestSegment_SplitsOnGap(t *testing.T) {
	s := New(Config{MinSilenceGap: sec(3), MaxSegment: sec(999), MinSegment: 0})
	res := s.Segment([]types.Utterance{utt(0, 1), utt(10, 11)}, "a.wav")

	if len(res.Segments) != 2 {
		t.Fatalf("expected 2 segments, got %d", len(res.Segments))
	}
	if res.Segments[0].StartTime != 0 || res.Segments[1].StartTime != 10 {
		t.Fatalf("unexpected starts: %v, %v", res.Segments[0].StartTime, res.Segments[1].StartTime)
	}
}

func TestSegment_EnforcesMaxDuration(t *testing.T) {
	s := New(Config{MinSilenceGap: sec(999), MaxSegment: sec(5), MinSegment: sec(1)})
	res := s.Segment([]types.Utterance{utt(0, 2), utt(2.1, 4), utt(4.1, 6)}, "b.wav")

	if len(res.Segments) != 2 {
		t.Fatalf("expected 2 segments, got %d", len(res.Segments))
	}
	if res.Segments[0].Duration > 5 {
		t.Fatalf("first segment too long: %v", res.Segments[0].Duration)
	}
	if len(res.Segments[0].Utterances) != 2 || len(res.Segments[1].Utterances) != 1 {
		t.Fatalf("unexpected split: %d + %d", len(res.Segments[0].Utterances), len(res.Segments[1].Utterances))
	}
}

func TestSegment_DropsTooShortAndReportsIt(t *testing.T) {
	s := New(Config{MinSilenceGap: sec(999), MaxSegment: sec(999), MinSegment: sec(3)})
	res := s.Segment([]types.Utterance{utt(0, 1), utt(1.1, 2)}, "c.wav")

	if len(res.Segments) != 0 {
		t.Fatalf("expected no segments, got %d", len(res.Segments))
	}
	if len(res.Dropped) != 1 {
		t.Fatalf("expected 1 dropped group, got %d", len(res.Dropped))
	}
	d := res.Dropped[0]
	if d.Reason != ReasonTooShort || d.Utterances != 2 || d.Start != 0 || d.End != 2 {
		t.Fatalf("unexpected drop record: %+v", d)
	}
	if res.DroppedUtterances() != 2 {
		t.Fatalf("expected 2 dropped utterances, got %d", res.DroppedUtterances())
	}
}

func TestSegment_Empty(t *testing.T) {
	res := New(Config{MaxSegment: sec(10)}).Segment(nil, "a.wav")
	if len(res.Segments) != 0 || len(res.Dropped) != 0 {
		t.Fatalf("expected empty result, got %+v", res)
	}
}

func TestSegment_SortsInputAndKeepsSegmentInvariants(t *testing.T) {
	s := New(Config{MinSilenceGap: sec(2), MaxSegment: sec(30), MinSegment: sec(1)})
	in := []types.Utterance{utt(12, 14), utt(0, 3), utt(1, 5), utt(13, 13.5), utt(3.5, 4)}
	res := s.Segment(in, "/data/inbox/rec 01.wav")

	if len(res.Segments) != 2 {
		t.Fatalf("expected 2 segments, got %d", len(res.Segments))
	}
	first := res.Segments[0]
	if first.StartTime != first.Utterances[0].StartTime {
		t.Fatalf("start %v != first utterance start %v", first.StartTime, first.Utterances[0].StartTime)
	}
	if first.EndTime != 5 {
		t.Fatalf("end should be the max utterance end, got %v", first.EndTime)
	}
	if first.Duration != first.EndTime-first.StartTime {
		t.Fatalf("duration mismatch: %v", first.Duration)
	}
	if first.ID != "rec 01-0.00-5.00" {
		t.Fatalf("unexpected id: %s", first.ID)
	}
	if first.SourceFile != "/data/inbox/rec 01.wav" {
		t.Fatalf("unexpected source file: %s", first.SourceFile)
	}
	if res.Segments[1].ID != "rec 01-12.00-14.00" {
		t.Fatalf("unexpected id: %s", res.Segments[1].ID)
	}
	if len(in) != 5 || in[0].StartTime != 12 {
		t.Fatalf("input slice must not be reordered")
	}
}

func TestSegment_GapLaw(t *testing.T) {
	cfg := Config{MinSilenceGap: sec(1.5), MaxSegment: sec(8), MinSegment: sec(0.5)}
	in := []types.Utterance{
		utt(0, 1), utt(1.2, 3), utt(3.1, 4), utt(6, 7), utt(7.2, 9.8),
		utt(10, 12), utt(12.1, 15), utt(15.1, 17), utt(30, 31), utt(40, 40.2),
	}
	res := New(cfg).Segment(in, "law.wav")

	minGap := cfg.MinSilenceGap.Seconds()
	for i, seg := range res.Segments {
		if seg.Duration < cfg.MinSegment.Seconds() {
			t.Fatalf("segment %d below floor: %v", i, seg.Duration)
		}
		for j := 1; j < len(seg.Utterances); j++ {
			if gap := seg.Utterances[j].StartTime - seg.Utterances[j-1].EndTime; gap > minGap {
				t.Fatalf("segment %d holds gap %v > %v", i, gap, minGap)
			}
		}
		if i > 0 && seg.StartTime < res.Segments[i-1].EndTime {
			t.Fatalf("segments %d and %d overlap", i-1, i)
		}
	}

	kept := 0
	for _, seg := range res.Segments {
		kept += len(seg.Utterances)
	}
	if kept+res.DroppedUtterances() != len(in) {
		t.Fatalf("utterances lost: kept=%d dropped=%d total=%d", kept, res.DroppedUtterances(), len(in))
	}
}

func TestSegmentID(t *testing.T) {
	tests := map[string]string{
		"a.wav":          "a-1.50-2.25",
		"/tmp/x/b.c.wav": "b.c-1.50-2.25",
		"noext":          "noext-1.50-2.25",
	}
	for in, want := range tests {
		t.Run(in, func(t *testing.T) {
			if got := SegmentID(in, 1.5, 2.25); got != want {
				t.Fatalf("SegmentID(%q) = %q, want %q", in, got, want)
			}
		})
	}
}
