package whispercpp

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/forPelevin/audiojournal/internal/types"
)

type Adapter struct {
	bin      string
	model    string
	language string
	diarize  bool
}

func New(binPath, modelPath, language string, diarize bool) *Adapter {
	return &Adapter{bin: binPath, model: modelPath, language: language, diarize: diarize}
}

type output struct {
	Transcription []struct {
		Offsets struct {
			From int64 `json:"from"`
			To   int64 `json:"to"`
		} `json:"offsets"`
		Text            string `json:"text"`
		SpeakerTurnNext bool   `json:"speaker_turn_next"`
	} `json:"transcription"`
}

func (a *Adapter) Transcribe(ctx context.Context, wavPath, cacheDir string) ([]types.Utterance, error) {
	// whisper.cpp does not create the -of directory
	if err := os.MkdirAll(cacheDir, 0o755); err != nil {
		return nil, fmt.Errorf("whisper.cpp cache dir: %w", err)
	}
	stem := strings.TrimSuffix(filepath.Base(wavPath), filepath.Ext(wavPath))
	outPrefix := filepath.Join(cacheDir, "whisper-"+stem)
	args := []string{
		"-m", a.model,
		"-f", wavPath,
		"-oj",
		"-of", outPrefix,
	}
	if a.language != "" {
		args = append(args, "-l", a.language)
	}
	if a.diarize {
		args = append(args, "-tdrz")
	}
	cmd := exec.CommandContext(ctx, a.bin, args...)
	b, err := cmd.CombinedOutput()
	if err != nil {
		return nil, fmt.Errorf("whisper.cpp failed: %w\n%s", err, string(b))
	}

	jb, err := os.ReadFile(outPrefix + ".json")
	if err != nil {
		return nil, err
	}
	return parseOutput(jb)
}

func parseOutput(jb []byte) ([]types.Utterance, error) {
	var out output
	if err := json.Unmarshal(jb, &out); err != nil {
		return nil, fmt.Errorf("decode whisper.cpp json: %w", err)
	}

	speaker := 0
	utts := make([]types.Utterance, 0, len(out.Transcription))
	for _, seg := range out.Transcription {
		text := strings.TrimSpace(seg.Text)
		if text != "" {
			utts = append(utts, types.Utterance{
				Speaker:   types.Speaker{ID: fmt.Sprintf("SPEAKER_%02d", speaker)},
				Text:      text,
				StartTime: float64(seg.Offsets.From) / 1000,
				EndTime:   float64(max(seg.Offsets.To, seg.Offsets.From)) / 1000,
			})
		}
		// tinydiarize marks a turn after this segment; two speakers alternate
		if seg.SpeakerTurnNext {
			speaker = 1 - speaker
		}
	}
	return utts, nil
}
