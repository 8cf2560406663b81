// Package classifier labels segments with a scene by asking an LLM about a
// short sample of the segment transcript.
package classifier

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/forPelevin/audiojournal/internal/domain/transcript"
	"github.com/forPelevin/audiojournal/internal/domain/valuetags"
	"github.com/forPelevin/audiojournal/internal/ports"
	"github.com/forPelevin/audiojournal/internal/types"
)

var (
	ErrUnknownScene    = errors.New("unknown scene")
	ErrResponseInvalid = errors.New("invalid classifier response")
)

const transcriptPlaceholder = "{{transcript}}"

const DefaultTemplate = `You label recordings from a personal audio journal.
Pick exactly one scene for the transcript excerpt below:
- meeting: several people discussing work with an agenda
- business: negotiation, sales or customer talk
- idea: one person thinking aloud, brainstorming
- learning: lecture, course, podcast or reading
- phone: a phone or video call
- chat: casual conversation

Answer with a JSON object only: {"scene": "<scene>", "confidence": <0..1>}

Transcript:
{{transcript}}
`

const DefaultMaxUtterances = 12

type Options struct {
	Template      string
	MaxUtterances int
	// Scenes restricts accepted labels. Empty means every known scene.
	Scenes []types.Scene
}

type Classifier struct {
	llm      ports.LLM
	template string
	maxUtts  int
	allowed  map[types.Scene]bool
}

func New(llm ports.LLM, opts Options) *Classifier {
	tpl := opts.Template
	if strings.TrimSpace(tpl) == "" {
		tpl = DefaultTemplate
	}
	n := opts.MaxUtterances
	if n <= 0 {
		n = DefaultMaxUtterances
	}
	scenes := opts.Scenes
	if len(scenes) == 0 {
		scenes = types.AllScenes
	}
	allowed := make(map[types.Scene]bool, len(scenes))
	for _, s := range scenes {
		allowed[s] = true
	}
	return &Classifier{llm: llm, template: tpl, maxUtts: n, allowed: allowed}
}

// LoadTemplate reads a prompt template from disk. It must contain the
// transcript placeholder.
func LoadTemplate(path string) (string, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read prompt template: %w", err)
	}
	s := string(b)
	if !strings.Contains(s, transcriptPlaceholder) {
		return "", fmt.Errorf("prompt template %s: missing %s placeholder", path, transcriptPlaceholder)
	}
	return s, nil
}

func (c *Classifier) Classify(ctx context.Context, seg types.Segment) (types.ClassifiedSegment, error) {
	prompt := c.Prompt(seg)
	text, err := c.llm.Complete(ctx, prompt, true)
	if err != nil {
		return types.ClassifiedSegment{}, fmt.Errorf("classify %s: %w", seg.ID, err)
	}
	scene, conf, err := c.parse(text)
	if err != nil {
		return types.ClassifiedSegment{}, fmt.Errorf("classify %s: %w", seg.ID, err)
	}
	return types.ClassifiedSegment{
		Segment:    seg,
		Scene:      scene,
		Confidence: conf,
		ValueTags:  valuetags.Tag(transcript.PlainText(seg.Utterances)),
	}, nil
}

func (c *Classifier) Prompt(seg types.Segment) string {
	return strings.ReplaceAll(c.template, transcriptPlaceholder, transcript.Sample(seg.Utterances, c.maxUtts))
}

func (c *Classifier) parse(text string) (types.Scene, float64, error) {
	obj, err := extractJSONObject(text)
	if err != nil {
		return "", 0, err
	}
	var raw struct {
		Scene      string          `json:"scene"`
		Confidence json.RawMessage `json:"confidence"`
	}
	if err := json.Unmarshal([]byte(obj), &raw); err != nil {
		return "", 0, fmt.Errorf("%w: %v", ErrResponseInvalid, err)
	}
	scene, err := types.ParseScene(raw.Scene)
	if err != nil || !c.allowed[scene] {
		return "", 0, fmt.Errorf("%w: %q", ErrUnknownScene, raw.Scene)
	}
	conf, err := parseConfidence(raw.Confidence)
	if err != nil {
		return "", 0, err
	}
	return scene, conf, nil
}

// parseConfidence accepts a number or a numeric string and clamps it to [0,1].
// A missing value counts as 0.
func parseConfidence(raw json.RawMessage) (float64, error) {
	s := strings.TrimSpace(string(raw))
	if s == "" || s == "null" {
		return 0, nil
	}
	s = strings.Trim(s, `"`)
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, fmt.Errorf("%w: confidence %s", ErrResponseInvalid, string(raw))
	}
	if v < 0 {
		return 0, nil
	}
	if v > 1 {
		return 1, nil
	}
	return v, nil
}

func extractJSONObject(s string) (string, error) {
	t := strings.TrimSpace(s)
	if t == "" {
		return "", fmt.Errorf("%w: empty content", ErrResponseInvalid)
	}

	// Strip markdown code fences.
	if strings.HasPrefix(t, "```") {
		if i := strings.Index(t, "\n"); i >= 0 {
			t = t[i+1:]
		}
		if j := strings.LastIndex(t, "```"); j >= 0 {
			t = t[:j]
		}
		t = strings.TrimSpace(t)
	}

	start := strings.Index(t, "{")
	end := strings.LastIndex(t, "}")
	if start >= 0 && end > start {
		return t[start : end+1], nil
	}
	if len(t) > 200 {
		t = t[:200]
	}
	return "", fmt.Errorf("%w: no JSON object in %q", ErrResponseInvalid, t)
}
