package transcript

import (
	"fmt"
	"strings"
	"time"

	"github.com/forPelevin/audiojournal/internal/types"
)

// Render writes one "[hh:mm:ss] SPEAKER: text" line per utterance.
func Render(utts []types.Utterance) string {
	return Sample(utts, len(utts))
}

// Sample renders at most n leading utterances.
func Sample(utts []types.Utterance, n int) string {
	if n > len(utts) {
		n = len(utts)
	}
	lines := make([]string, 0, max(n, 0))
	for _, u := range utts[:max(n, 0)] {
		lines = append(lines, fmt.Sprintf("[%s] %s: %s", Clock(u.StartTime), speakerName(u.Speaker), strings.TrimSpace(u.Text)))
	}
	return strings.Join(lines, "\n")
}

// PlainText joins utterance texts with newlines, without timestamps or speakers.
func PlainText(utts []types.Utterance) string {
	parts := make([]string, 0, len(utts))
	for _, u := range utts {
		if t := strings.TrimSpace(u.Text); t != "" {
			parts = append(parts, t)
		}
	}
	return strings.Join(parts, "\n")
}

// Speakers lists distinct speaker ids in order of first appearance.
func Speakers(utts []types.Utterance) []string {
	seen := map[string]bool{}
	var out []string
	for _, u := range utts {
		id := speakerName(u.Speaker)
		if seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}

// Clock formats seconds as hh:mm:ss, truncating fractions.
func Clock(sec float64) string {
	if sec < 0 {
		sec = 0
	}
	d := time.Duration(int64(sec)) * time.Second
	h := int(d / time.Hour)
	m := int(d/time.Minute) % 60
	s := int(d/time.Second) % 60
	return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
}

func speakerName(s types.Speaker) string {
	if s.Label != "" {
		return s.Label
	}
	if s.ID != "" {
		return s.ID
	}
	return "SPEAKER_00"
}
