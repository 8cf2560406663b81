package transcript

import (
	"strings"
	"testing"

	"github.com/forPelevin/audiojournal/internal/types"
)

func TestRender(t *testing.T) {
	utts := []types.Utterance{
		{Speaker: types.Speaker{ID: "SPEAKER_00"}, Text: " hello ", StartTime: 3.9},
		{Speaker: types.Speaker{ID: "SPEAKER_01", Label: "Ann"}, Text: "hi", StartTime: 3725},
		{Text: "anyone?", StartTime: 3726},
	}
	got := Render(utts)
	want := strings.Join([]string{
		"[00:00:03] SPEAKER_00: hello",
		"[01:02:05] Ann: hi",
		"[01:02:06] SPEAKER_00: anyone?",
	}, "\n")
	if got != want {
		t.Fatalf("unexpected render:\n%s\nwant:\n%s", got, want)
	}
	if s := Sample(utts, 1); s != "[00:00:03] SPEAKER_00: hello" {
		t.Fatalf("unexpected sample: %q", s)
	}
	if s := Sample(utts, -1); s != "" {
		t.Fatalf("expected empty sample, got %q", s)
	}
	if sp := Speakers(utts); len(sp) != 2 || sp[0] != "SPEAKER_00" || sp[1] != "Ann" {
		t.Fatalf("unexpected speakers: %v", sp)
	}
}

func TestClock(t *testing.T) {
	tests := map[float64]string{
		-5:     "00:00:00",
		0:      "00:00:00",
		59.99:  "00:00:59",
		3600:   "01:00:00",
		86399:  "23:59:59",
		100000: "27:46:40",
	}
	for in, want := range tests {
		if got := Clock(in); got != want {
			t.Fatalf("Clock(%v) = %q, want %q", in, got, want)
		}
	}
}

func TestPlainText_SkipsBlankLines(t *testing.T) {
	utts := []types.Utterance{
		{Text: " first "},
		{Text: "   "},
		{Text: "second"},
	}
	if got := PlainText(utts); got != "first\nsecond" {
		t.Fatalf("unexpected plain text: %q", got)
	}
}
