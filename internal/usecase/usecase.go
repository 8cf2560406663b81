package usecase

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/forPelevin/audiojournal/internal/domain/chunker"
	"github.com/forPelevin/audiojournal/internal/domain/merger"
	"github.com/forPelevin/audiojournal/internal/domain/segmenter"
	"github.com/forPelevin/audiojournal/internal/domain/transcript"
	"github.com/forPelevin/audiojournal/internal/logx"
	"github.com/forPelevin/audiojournal/internal/ports"
	"github.com/forPelevin/audiojournal/internal/types"
	"github.com/sirupsen/logrus"
)

type Deps struct {
	// Audio converts non-WAV inputs. It may be nil when every input is WAV.
	Audio      ports.AudioTool
	ASR        ports.ASR
	Classifier ports.Classifier
	Log        logrus.FieldLogger
}

type Usecase struct{ d Deps }

func New(d Deps) Usecase {
	d.Log = logx.OrDiscard(d.Log)
	return Usecase{d: d}
}

type Input struct {
	AudioPath string
	RunID     string
	// WorkDir receives the normalized source, chunk files and ASR artifacts.
	WorkDir string

	Chunker      chunker.Config
	Segmenter    segmenter.Config
	Merger       merger.Config
	MergeEnabled bool
}

type Result struct {
	Manifest types.Manifest
}

// Run processes one recording: normalize, chunk, transcribe, segment,
// classify, merge and analyze.
func (u Usecase) Run(ctx context.Context, in Input) (Result, error) {
	log := u.d.Log.WithFields(logrus.Fields{"run_id": in.RunID, "input": filepath.Base(in.AudioPath)})

	wav, err := u.normalize(ctx, log, in)
	if err != nil {
		return Result{}, err
	}

	chunks, err := chunker.New(in.Chunker).Split(wav, filepath.Join(in.WorkDir, "chunks"))
	if err != nil {
		return Result{}, fmt.Errorf("chunk %s: %w", in.AudioPath, err)
	}
	log.WithField("chunks", len(chunks)).Info("audio chunked")

	utts, err := u.transcribe(ctx, log, in.WorkDir, chunks)
	if err != nil {
		return Result{}, err
	}

	sourceName := filepath.Base(in.AudioPath)
	segRes := segmenter.New(in.Segmenter).Segment(utts, sourceName)
	for _, d := range segRes.Dropped {
		log.WithFields(logrus.Fields{
			"start":      d.Start,
			"end":        d.End,
			"utterances": d.Utterances,
			"reason":     d.Reason,
		}).Debug("utterance group dropped")
	}
	log.WithFields(logrus.Fields{
		"segments":           len(segRes.Segments),
		"dropped_groups":     len(segRes.Dropped),
		"dropped_utterances": segRes.DroppedUtterances(),
	}).Info("utterances segmented")

	classified := make([]types.ClassifiedSegment, 0, len(segRes.Segments))
	for _, seg := range segRes.Segments {
		if err := ctx.Err(); err != nil {
			return Result{}, err
		}
		cs, err := u.d.Classifier.Classify(ctx, seg)
		if err != nil {
			return Result{}, err
		}
		log.WithFields(logrus.Fields{"segment": cs.ID, "scene": cs.Scene, "confidence": cs.Confidence}).Debug("segment classified")
		classified = append(classified, cs)
	}

	stats := types.Stats{
		Chunks:            len(chunks),
		Utterances:        len(utts),
		Segments:          len(segRes.Segments),
		DroppedGroups:     len(segRes.Dropped),
		DroppedUtterances: segRes.DroppedUtterances(),
	}

	var units []types.Unit
	if in.MergeEnabled {
		mres := merger.New(in.Merger).Merge(classified)
		for _, r := range mres.Rejected {
			log.WithFields(logrus.Fields{
				"segments":       strings.Join(r.SegmentIDs, ","),
				"total_duration": r.TotalDuration,
			}).Info("merge run over duration cap, kept unmerged")
		}
		units = mres.Units
		stats.MergedUnits = mres.Merged()
		stats.RejectedRuns = len(mres.Rejected)
	} else {
		units = make([]types.Unit, 0, len(classified))
		for _, cs := range classified {
			units = append(units, cs)
		}
	}

	m := types.Manifest{
		Input:   in.AudioPath,
		RunID:   in.RunID,
		Chunks:  chunks,
		Results: make([]types.AnalysisResult, 0, len(units)),
		Stats:   stats,
	}
	for _, unit := range units {
		m.Results = append(m.Results, Analyze(unit))
	}
	log.WithFields(logrus.Fields{
		"results":       len(m.Results),
		"merged_units":  stats.MergedUnits,
		"rejected_runs": stats.RejectedRuns,
	}).Info("recording processed")
	return Result{Manifest: m}, nil
}

// normalize returns a 16-bit PCM WAV path for in.AudioPath. WAV inputs are
// used as-is; anything else goes through the audio tool.
func (u Usecase) normalize(ctx context.Context, log logrus.FieldLogger, in Input) (string, error) {
	if strings.EqualFold(filepath.Ext(in.AudioPath), ".wav") {
		return in.AudioPath, nil
	}
	if u.d.Audio == nil {
		return "", fmt.Errorf("%s: %w (no audio converter configured)", in.AudioPath, chunker.ErrUnsupportedFormat)
	}
	if d, err := u.d.Audio.ProbeDuration(ctx, in.AudioPath); err != nil {
		log.WithError(err).Warn("probe duration failed")
	} else {
		log.WithField("duration", d.Round(time.Second).String()).Info("source probed")
	}

	out := filepath.Join(in.WorkDir, "source.wav")
	if err := u.d.Audio.ConvertToPCM16(ctx, in.AudioPath, out); err != nil {
		return "", fmt.Errorf("convert %s: %w", in.AudioPath, err)
	}
	log.Debug("source converted to pcm16 wav")
	return out, nil
}

// transcribe runs ASR per chunk and shifts utterance times by the chunk
// start so they are absolute in the source recording.
func (u Usecase) transcribe(ctx context.Context, log logrus.FieldLogger, workDir string, chunks []types.Chunk) ([]types.Utterance, error) {
	if u.d.ASR == nil {
		return nil, errors.New("asr is not configured")
	}
	var all []types.Utterance
	for _, c := range chunks {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		cacheDir := filepath.Join(workDir, "asr", fmt.Sprintf("chunk_%03d", c.Index))
		if err := os.MkdirAll(cacheDir, 0o755); err != nil {
			return nil, fmt.Errorf("asr cache for chunk %d: %w", c.Index, err)
		}
		utts, err := u.d.ASR.Transcribe(ctx, c.Path, cacheDir)
		if err != nil {
			return nil, fmt.Errorf("transcribe chunk %d: %w", c.Index, err)
		}
		for _, ut := range utts {
			ut.StartTime += c.StartTime
			ut.EndTime += c.StartTime
			all = append(all, ut)
		}
		log.WithFields(logrus.Fields{"chunk": c.Index, "utterances": len(utts)}).Debug("chunk transcribed")
	}
	sort.SliceStable(all, func(i, j int) bool { return all[i].StartTime < all[j].StartTime })
	return all, nil
}

// Analyze is the passthrough analysis: it keeps the transcript and the
// classification of a unit without further LLM work.
func Analyze(unit types.Unit) types.AnalysisResult {
	start, end := unit.Span()
	res := types.AnalysisResult{
		SegmentID:  unit.UnitID(),
		Scene:      unit.UnitScene(),
		StartSec:   start,
		EndSec:     end,
		Confidence: unit.Score(),
		ValueTags:  unit.Tags(),
		RawText:    transcript.Render(unit.Lines()),
	}
	if ms, ok := unit.(types.MergedSegment); ok {
		res.OriginalSegmentIDs = ms.OriginalSegmentIDs
		res.GapDurations = ms.GapDurations
	}
	if res.ValueTags == nil {
		res.ValueTags = []string{}
	}
	return res
}
