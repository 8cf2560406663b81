package ports

import (
	"context"
	"time"

	"github.com/forPelevin/audiojournal/internal/types"
)

type AudioTool interface {
	// ConvertToPCM16 writes inPath as a 16-bit PCM WAV to outWav.
	ConvertToPCM16(ctx context.Context, inPath, outWav string) error
	ProbeDuration(ctx context.Context, inPath string) (time.Duration, error)
}

// ASR transcribes one chunk file. Utterance times are relative to the
// start of that file.
type ASR interface {
	Transcribe(ctx context.Context, wavPath, cacheDir string) ([]types.Utterance, error)
}

type LLM interface {
	Complete(ctx context.Context, prompt string, jsonMode bool) (string, error)
}

type Classifier interface {
	Classify(ctx context.Context, seg types.Segment) (types.ClassifiedSegment, error)
}
