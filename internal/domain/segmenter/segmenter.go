package segmenter

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/forPelevin/audiojournal/internal/types"
)

const ReasonTooShort = "too_short"

type Config struct {
	MinSilenceGap time.Duration
	MaxSegment    time.Duration
	MinSegment    time.Duration
}

func (c Config) Validate() error {
	if c.MinSilenceGap < 0 {
		return fmt.Errorf("min silence gap must be >= 0")
	}
	if c.MaxSegment <= 0 {
		return fmt.Errorf("max segment duration must be > 0")
	}
	if c.MinSegment < 0 {
		return fmt.Errorf("min segment duration must be >= 0")
	}
	return nil
}

// Dropped describes a group of utterances that never became a segment.
type Dropped struct {
	Start      float64 `json:"start"`
	End        float64 `json:"end"`
	Utterances int     `json:"utterances"`
	Reason     string  `json:"reason"`
}

type Result struct {
	Segments []types.Segment `json:"segments"`
	Dropped  []Dropped       `json:"dropped"`
}

func (r Result) DroppedUtterances() int {
	n := 0
	for _, d := range r.Dropped {
		n += d.Utterances
	}
	return n
}

type Segmenter struct {
	cfg Config
}

func New(cfg Config) *Segmenter { return &Segmenter{cfg: cfg} }

// Segment groups utterances into segments split at silence gaps longer than
// MinSilenceGap, or before the utterance that would push a group past
// MaxSegment. Groups shorter than MinSegment are reported in Dropped.
func (s *Segmenter) Segment(utts []types.Utterance, sourceFile string) Result {
	if len(utts) == 0 {
		return Result{}
	}

	ordered := make([]types.Utterance, len(utts))
	copy(ordered, utts)
	sort.SliceStable(ordered, func(i, j int) bool {
		if ordered[i].StartTime == ordered[j].StartTime {
			return ordered[i].EndTime < ordered[j].EndTime
		}
		return ordered[i].StartTime < ordered[j].StartTime
	})

	minGap := s.cfg.MinSilenceGap.Seconds()
	maxDur := s.cfg.MaxSegment.Seconds()

	var res Result
	g := newGroup(ordered[0])
	prev := ordered[0]
	for _, u := range ordered[1:] {
		gap := max(0, u.StartTime-prev.EndTime)
		switch {
		case gap > minGap:
			s.flush(&res, g, sourceFile)
			g = newGroup(u)
		case u.EndTime-g.start > maxDur && len(g.utts) > 0:
			s.flush(&res, g, sourceFile)
			g = newGroup(u)
		default:
			g.add(u)
		}
		prev = u
	}
	s.flush(&res, g, sourceFile)
	return res
}

type group struct {
	utts       []types.Utterance
	start, end float64
}

func newGroup(u types.Utterance) *group {
	return &group{utts: []types.Utterance{u}, start: u.StartTime, end: u.EndTime}
}

func (g *group) add(u types.Utterance) {
	g.utts = append(g.utts, u)
	g.end = max(g.end, u.EndTime)
}

func (s *Segmenter) flush(res *Result, g *group, sourceFile string) {
	if g == nil || len(g.utts) == 0 {
		return
	}
	// end is the running max of end times; it only trails start on
	// malformed utterances (end < start).
	end := max(g.end, g.start)
	dur := end - g.start
	if dur < s.cfg.MinSegment.Seconds() {
		res.Dropped = append(res.Dropped, Dropped{
			Start:      g.start,
			End:        end,
			Utterances: len(g.utts),
			Reason:     ReasonTooShort,
		})
		return
	}
	res.Segments = append(res.Segments, types.Segment{
		ID:         SegmentID(sourceFile, g.start, end),
		Utterances: g.utts,
		StartTime:  g.start,
		EndTime:    end,
		Duration:   dur,
		SourceFile: sourceFile,
	})
}

// SegmentID is "<stem>-<start>-<end>" with two-decimal seconds.
func SegmentID(sourceFile string, start, end float64) string {
	base := filepath.Base(sourceFile)
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	return fmt.Sprintf("%s-%.2f-%.2f", stem, start, end)
}
