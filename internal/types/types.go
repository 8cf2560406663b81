package types

import (
	"fmt"
	"strings"
)

type Scene string

const (
	SceneMeeting  Scene = "meeting"
	SceneBusiness Scene = "business"
	SceneIdea     Scene = "idea"
	SceneLearning Scene = "learning"
	ScenePhone    Scene = "phone"
	SceneChat     Scene = "chat"
)

var AllScenes = []Scene{SceneMeeting, SceneBusiness, SceneIdea, SceneLearning, ScenePhone, SceneChat}

// ParseScene accepts the lower-case scene value, ignoring surrounding space.
func ParseScene(s string) (Scene, error) {
	v := Scene(strings.ToLower(strings.TrimSpace(s)))
	for _, sc := range AllScenes {
		if sc == v {
			return sc, nil
		}
	}
	return "", fmt.Errorf("unknown scene %q", s)
}

type Speaker struct {
	ID    string `json:"id"`
	Label string `json:"label,omitempty"`
}

type Utterance struct {
	Speaker   Speaker `json:"speaker"`
	Text      string  `json:"text"`
	StartTime float64 `json:"start_time"`
	EndTime   float64 `json:"end_time"`
}

// Chunk is a contiguous slice of the source audio written to Path.
// Times are seconds from the start of the source.
type Chunk struct {
	Index     int     `json:"index"`
	Path      string  `json:"path"`
	StartTime float64 `json:"start_time"`
	EndTime   float64 `json:"end_time"`
	Duration  float64 `json:"duration"`
}

type Segment struct {
	ID         string      `json:"id"`
	Utterances []Utterance `json:"utterances"`
	StartTime  float64     `json:"start_time"`
	EndTime    float64     `json:"end_time"`
	Duration   float64     `json:"duration"`
	SourceFile string      `json:"source_file"`
}

type ClassifiedSegment struct {
	Segment
	Scene      Scene    `json:"scene"`
	Confidence float64  `json:"confidence"`
	ValueTags  []string `json:"value_tags"`
}

type MergedSegment struct {
	ID         string      `json:"id"`
	Scene      Scene       `json:"scene"`
	Utterances []Utterance `json:"utterances"`
	StartTime  float64     `json:"start_time"`
	EndTime    float64     `json:"end_time"`
	Duration   float64     `json:"duration"`
	SourceFile string      `json:"source_file"`
	Confidence float64     `json:"confidence"`
	ValueTags  []string    `json:"value_tags"`

	OriginalSegmentIDs []string  `json:"original_segment_ids"`
	GapDurations       []float64 `json:"gap_durations"`
}

// Unit is what the merger emits: either a ClassifiedSegment passed through
// unchanged or a MergedSegment.
type Unit interface {
	UnitID() string
	UnitScene() Scene
	Span() (start, end float64)
	Lines() []Utterance
	Score() float64
	Tags() []string
}

func (s ClassifiedSegment) UnitID() string { return s.ID }
func (s ClassifiedSegment) UnitScene() Scene { return s.Scene }
func (s ClassifiedSegment) Span() (float64, float64) { return s.StartTime, s.EndTime }
func (s ClassifiedSegment) Lines() []Utterance { return s.Utterances }
func (s ClassifiedSegment) Score() float64 { return s.Confidence }
func (s ClassifiedSegment) Tags() []string { return s.ValueTags }
func (m MergedSegment) UnitID() string { return m.ID }
func (m MergedSegment) UnitScene() Scene { return m.Scene }
func (m MergedSegment) Span() (float64, float64) { return m.StartTime, m.EndTime }
func (m MergedSegment) Lines() []Utterance { return m.Utterances }
func (m MergedSegment) Score() float64 { return m.Confidence }
func (m MergedSegment) Tags() []string { return m.ValueTags }

type AnalysisResult struct {
	SegmentID          string    `json:"segment_id"`
	Scene              Scene     `json:"scene"`
	StartSec           float64   `json:"start_sec"`
	EndSec             float64   `json:"end_sec"`
	Confidence         float64   `json:"confidence"`
	ValueTags          []string  `json:"value_tags"`
	OriginalSegmentIDs []string  `json:"original_segment_ids,omitempty"`
	GapDurations       []float64 `json:"gap_durations,omitempty"`
	RawText            string    `json:"raw_text"`
}

type Stats struct {
	Chunks            int `json:"chunks"`
	Utterances        int `json:"utterances"`
	Segments          int `json:"segments"`
	DroppedGroups     int `json:"dropped_groups"`
	DroppedUtterances int `json:"dropped_utterances"`
	MergedUnits       int `json:"merged_units"`
	RejectedRuns      int `json:"rejected_runs"`
}

type Manifest struct {
	Input   string           `json:"input"`
	RunID   string           `json:"run_id"`
	Chunks  []Chunk          `json:"chunks"`
	Results []AnalysisResult `json:"results"`
	Stats   Stats            `json:"stats"`
}
