// Package fixture is an ASR stand-in that replays utterances from a JSON
// file, for tests and offline runs.
package fixture

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/forPelevin/audiojournal/internal/types"
)

type Adapter struct {
	path string
}

func New(path string) *Adapter { return &Adapter{path: path} }

type item struct {
	Speaker   *string  `json:"speaker"`
	Text      string   `json:"text"`
	StartTime *float64 `json:"start_time"`
	EndTime   *float64 `json:"end_time"`
}

// Transcribe ignores the audio and returns the fixture contents.
func (a *Adapter) Transcribe(_ context.Context, _, _ string) ([]types.Utterance, error) {
	b, err := os.ReadFile(a.path)
	if err != nil {
		return nil, fmt.Errorf("read asr fixture: %w", err)
	}
	return Parse(b)
}

// Parse decodes a JSON list of {speaker, text, start_time, end_time}.
func Parse(b []byte) ([]types.Utterance, error) {
	var raw json.RawMessage
	if err := json.Unmarshal(b, &raw); err != nil {
		return nil, fmt.Errorf("asr fixture: %w", err)
	}
	var items []item
	if err := json.Unmarshal(raw, &items); err != nil {
		var ute *json.UnmarshalTypeError
		if errors.As(err, &ute) {
			return nil, fmt.Errorf("asr fixture must be a list of objects: %w", err)
		}
		return nil, fmt.Errorf("asr fixture: %w", err)
	}

	utts := make([]types.Utterance, 0, len(items))
	for _, it := range items {
		u := types.Utterance{Speaker: types.Speaker{ID: "SPEAKER_00"}, Text: it.Text}
		if it.Speaker != nil && *it.Speaker != "" {
			u.Speaker.ID = *it.Speaker
		}
		if it.StartTime != nil {
			u.StartTime = *it.StartTime
		}
		if it.EndTime != nil {
			u.EndTime = *it.EndTime
		}
		utts = append(utts, u)
	}
	return utts, nil
}
