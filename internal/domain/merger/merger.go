package merger

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/forPelevin/audiojournal/internal/types"
)

type Config struct {
	MaxGap          time.Duration
	MaxMerged       time.Duration
	MergeableScenes []types.Scene
}

func (c Config) Validate() error {
	if c.MaxGap < 0 {
		return fmt.Errorf("max gap between segments must be >= 0")
	}
	if c.MaxMerged <= 0 {
		return fmt.Errorf("max merged duration must be > 0")
	}
	return nil
}

// RejectedRun is a run of compatible segments emitted unmerged because
// their summed duration exceeded MaxMerged.
type RejectedRun struct {
	SegmentIDs    []string `json:"segment_ids"`
	TotalDuration float64  `json:"total_duration"`
}

type Result struct {
	Units    []types.Unit
	Rejected []RejectedRun
}

// Merged counts the MergedSegment values in Units.
func (r Result) Merged() int {
	n := 0
	for _, u := range r.Units {
		if _, ok := u.(types.MergedSegment); ok {
			n++
		}
	}
	return n
}

type Merger struct {
	cfg       Config
	mergeable map[types.Scene]struct{}
}

func New(cfg Config) *Merger {
	m := &Merger{cfg: cfg, mergeable: make(map[types.Scene]struct{}, len(cfg.MergeableScenes))}
	for _, s := range cfg.MergeableScenes {
		m.mergeable[s] = struct{}{}
	}
	return m
}

// Merge greedily groups time-adjacent segments of the same mergeable scene
// into runs and emits each run as one MergedSegment. A run whose summed
// duration exceeds MaxMerged is emitted segment by segment; single-segment
// runs pass through unchanged. Output is ordered by start time.
func (m *Merger) Merge(segs []types.ClassifiedSegment) Result {
	if len(segs) == 0 {
		return Result{}
	}

	sorted := make([]types.ClassifiedSegment, len(segs))
	copy(sorted, segs)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].StartTime < sorted[j].StartTime })

	var res Result
	run := []types.ClassifiedSegment{sorted[0]}
	for _, s := range sorted[1:] {
		if m.compatible(run[len(run)-1], s) {
			run = append(run, s)
			continue
		}
		m.finalize(&res, run)
		run = []types.ClassifiedSegment{s}
	}
	m.finalize(&res, run)
	return res
}

func (m *Merger) compatible(prev, next types.ClassifiedSegment) bool {
	if prev.Scene != next.Scene {
		return false
	}
	if _, ok := m.mergeable[prev.Scene]; !ok {
		return false
	}
	return next.StartTime-prev.EndTime <= m.cfg.MaxGap.Seconds()
}

func (m *Merger) finalize(res *Result, run []types.ClassifiedSegment) {
	if len(run) == 1 {
		res.Units = append(res.Units, run[0])
		return
	}

	total := 0.0
	for _, s := range run {
		total += s.Duration
	}
	if total > m.cfg.MaxMerged.Seconds() {
		ids := make([]string, 0, len(run))
		for _, s := range run {
			res.Units = append(res.Units, s)
			ids = append(ids, s.ID)
		}
		res.Rejected = append(res.Rejected, RejectedRun{SegmentIDs: ids, TotalDuration: total})
		return
	}
	res.Units = append(res.Units, mergeRun(run))
}

func mergeRun(run []types.ClassifiedSegment) types.MergedSegment {
	var utts []types.Utterance
	ids := make([]string, 0, len(run))
	gaps := make([]float64, 0, len(run)-1)
	conf := 0.0
	for i, s := range run {
		utts = append(utts, s.Utterances...)
		ids = append(ids, s.ID)
		conf += s.Confidence
		if i > 0 {
			gaps = append(gaps, s.StartTime-run[i-1].EndTime)
		}
	}
	sort.SliceStable(utts, func(i, j int) bool { return utts[i].StartTime < utts[j].StartTime })

	first, last := run[0], run[len(run)-1]
	return types.MergedSegment{
		ID:                 "merged-" + strings.Join(ids, "-"),
		Scene:              first.Scene,
		Utterances:         utts,
		StartTime:          first.StartTime,
		EndTime:            last.EndTime,
		Duration:           last.EndTime - first.StartTime,
		SourceFile:         first.SourceFile,
		Confidence:         conf / float64(len(run)),
		ValueTags:          unionTags(run),
		OriginalSegmentIDs: ids,
		GapDurations:       gaps,
	}
}

// unionTags de-duplicates tags in first-seen order.
func unionTags(run []types.ClassifiedSegment) []string {
	seen := make(map[string]struct{})
	out := []string{}
	for _, s := range run {
		for _, t := range s.ValueTags {
			if _, ok := seen[t]; ok {
				continue
			}
			seen[t] = struct{}{}
			out = append(out, t)
		}
	}
	return out
}
