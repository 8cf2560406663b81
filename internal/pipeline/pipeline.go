package pipeline

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode"

	"github.com/forPelevin/audiojournal/internal/classifier"
	"github.com/forPelevin/audiojournal/internal/config"
	"github.com/forPelevin/audiojournal/internal/logx"
	"github.com/forPelevin/audiojournal/internal/ports"
	"github.com/forPelevin/audiojournal/internal/ports/adapters/ffmpeg"
	"github.com/forPelevin/audiojournal/internal/ports/adapters/fixture"
	"github.com/forPelevin/audiojournal/internal/ports/adapters/openaicompat"
	"github.com/forPelevin/audiojournal/internal/ports/adapters/staticllm"
	"github.com/forPelevin/audiojournal/internal/ports/adapters/whispercpp"
	"github.com/forPelevin/audiojournal/internal/usecase"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

type Config struct {
	Inputs []string
	App    config.Config
	Log    logrus.FieldLogger
}

func (c Config) Validate() error {
	if len(c.Inputs) == 0 {
		return errors.New("no input files")
	}
	for _, in := range c.Inputs {
		if in == "" {
			return errors.New("input is empty")
		}
		st, err := os.Stat(in)
		if err != nil {
			return fmt.Errorf("stat input: %w", err)
		}
		if st.IsDir() {
			return fmt.Errorf("input %s is a directory", in)
		}
	}
	return c.App.Validate()
}

// Outcome is the result of one input file.
type Outcome struct {
	Input    string
	RunID    string
	RunDir   string
	Manifest string
	Results  int
	Err      error
}

type Report struct {
	Outcomes []Outcome
}

// Failed counts outcomes with an error.
func (r Report) Failed() int {
	n := 0
	for _, o := range r.Outcomes {
		if o.Err != nil {
			n++
		}
	}
	return n
}

// Run builds the adapters from cfg.App and processes every input.
func Run(ctx context.Context, cfg Config) (Report, error) {
	if err := cfg.Validate(); err != nil {
		return Report{}, err
	}
	deps, err := BuildDeps(cfg.App, cfg.Log)
	if err != nil {
		return Report{}, err
	}
	return RunWith(ctx, cfg, deps)
}

// RunWith processes every input with the given collaborators. Inputs run
// concurrently up to chunker.max_workers when chunker.parallel is set. A
// failed input does not stop the others; the returned error joins all
// per-input failures.
func RunWith(ctx context.Context, cfg Config, deps usecase.Deps) (Report, error) {
	log := logx.OrDiscard(cfg.Log)
	deps.Log = log
	uc := usecase.New(deps)

	workers := 1
	if cfg.App.Chunker.Parallel && cfg.App.Chunker.MaxWorkers > 1 {
		workers = cfg.App.Chunker.MaxWorkers
	}

	outcomes := make([]Outcome, len(cfg.Inputs))
	var g errgroup.Group
	g.SetLimit(workers)
	for i, in := range cfg.Inputs {
		i, in := i, in
		g.Go(func() error {
			outcomes[i] = processOne(ctx, uc, cfg.App, log, in)
			return nil
		})
	}
	_ = g.Wait()

	var errs []error
	for _, o := range outcomes {
		if o.Err != nil {
			log.WithFields(logrus.Fields{"input": o.Input, "run_id": o.RunID}).WithError(o.Err).Error("processing failed")
			errs = append(errs, fmt.Errorf("%s: %w", o.Input, o.Err))
		}
	}
	return Report{Outcomes: outcomes}, errors.Join(errs...)
}

func processOne(ctx context.Context, uc usecase.Usecase, app config.Config, log logrus.FieldLogger, input string) Outcome {
	out := Outcome{Input: input, RunID: uuid.NewString()}
	log = log.WithFields(logrus.Fields{"run_id": out.RunID, "input": filepath.Base(input)})

	absIn, err := filepath.Abs(input)
	if err != nil {
		out.Err = err
		return out
	}
	out.Input = absIn

	workDir := filepath.Join(app.Paths.Processing, "runs", hash(absIn)+"-"+out.RunID[:8])
	if err := os.MkdirAll(workDir, 0o755); err != nil {
		out.Err = err
		return out
	}
	log.WithField("work_dir", workDir).Debug("workspace prepared")

	mc, err := app.MergerConfig()
	if err != nil {
		out.Err = fmt.Errorf("merger config: %w", err)
		return out
	}
	res, err := uc.Run(ctx, usecase.Input{
		AudioPath:    absIn,
		RunID:        out.RunID,
		WorkDir:      workDir,
		Chunker:      app.ChunkerConfig(),
		Segmenter:    app.SegmenterConfig(),
		Merger:       mc,
		MergeEnabled: app.Merger.Enabled,
	})
	if err != nil {
		out.Err = err
		return out
	}

	// created only once there is something to write
	out.RunDir = buildRunOutDir(app.Paths.Output, absIn, time.Now().UTC())
	if err := os.MkdirAll(out.RunDir, 0o755); err != nil {
		out.Err = err
		return out
	}
	out.Manifest = filepath.Join(out.RunDir, "manifest.json")
	if err := writeManifest(out.Manifest, res); err != nil {
		out.Err = err
		return out
	}
	out.Results = len(res.Manifest.Results)
	log.WithFields(logrus.Fields{"results": out.Results, "manifest": out.Manifest}).Info("manifest written")
	return out
}

func writeManifest(path string, res usecase.Result) error {
	b, err := json.MarshalIndent(res.Manifest, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal manifest: %w", err)
	}
	return os.WriteFile(path, b, 0o644)
}

// BuildDeps wires the adapters selected by cfg.
func BuildDeps(cfg config.Config, log logrus.FieldLogger) (usecase.Deps, error) {
	asr, err := buildASR(cfg.ASR)
	if err != nil {
		return usecase.Deps{}, err
	}
	llm, err := buildLLM(cfg.LLM)
	if err != nil {
		return usecase.Deps{}, err
	}
	cls, err := buildClassifier(cfg, llm)
	if err != nil {
		return usecase.Deps{}, err
	}
	return usecase.Deps{
		Audio:      ffmpeg.New(cfg.Tools.FFmpeg, cfg.Tools.FFprobe),
		ASR:        asr,
		Classifier: cls,
		Log:        log,
	}, nil
}

func buildASR(c config.ASR) (ports.ASR, error) {
	switch c.Engine {
	case config.ASRFixture:
		if c.Fixture == "" {
			return nil, errors.New("asr.fixture is required for the fixture engine (AUDIO_JOURNAL_ASR_FIXTURE)")
		}
		if _, err := os.Stat(c.Fixture); err != nil {
			return nil, fmt.Errorf("asr fixture: %w", err)
		}
		return fixture.New(c.Fixture), nil
	case config.ASRWhisperCPP:
		if c.WhisperModel == "" {
			return nil, errors.New("asr.whisper_model is required")
		}
		return whispercpp.New(c.WhisperBin, c.WhisperModel, c.Language, c.Diarize), nil
	default:
		return nil, fmt.Errorf("asr: unknown engine %q", c.Engine)
	}
}

func buildLLM(c config.LLM) (ports.LLM, error) {
	switch c.Engine {
	case config.LLMStatic:
		if strings.TrimSpace(c.StaticResponse) == "" {
			return nil, errors.New("llm.static_response is required for the static engine")
		}
		return staticllm.New(c.StaticResponse), nil
	case config.LLMOpenAI:
		key := os.Getenv(c.APIKeyEnv)
		if key == "" {
			return nil, fmt.Errorf("%s is required (set it in .env)", c.APIKeyEnv)
		}
		if err := openaicompat.ValidateBaseURL(c.BaseURL, c.Provider, c.AllowedHosts); err != nil {
			return nil, err
		}
		return openaicompat.New(openaicompat.Options{
			APIKey:      key,
			Model:       c.Model,
			Provider:    c.Provider,
			BaseURL:     c.BaseURL,
			Temperature: c.Temperature,
			MaxTokens:   c.MaxTokens,
		}), nil
	default:
		return nil, fmt.Errorf("llm: unknown engine %q", c.Engine)
	}
}

func buildClassifier(cfg config.Config, llm ports.LLM) (*classifier.Classifier, error) {
	var tpl string
	if cfg.Classifier.PromptPath != "" {
		t, err := classifier.LoadTemplate(cfg.Classifier.PromptPath)
		if err != nil {
			return nil, err
		}
		tpl = t
	}
	scenes, err := cfg.SceneList()
	if err != nil {
		return nil, err
	}
	return classifier.New(llm, classifier.Options{
		Template:      tpl,
		MaxUtterances: cfg.Classifier.MaxUtterances,
		Scenes:        scenes,
	}), nil
}

func buildRunOutDir(outRoot, input string, now time.Time) string {
	name := strings.TrimSuffix(filepath.Base(input), filepath.Ext(input))
	name = normalizePathSegment(name)
	if name == "" {
		name = "input"
	}
	ts := now.UTC().Format("20060102-150405Z")
	runSeed := fmt.Sprintf("%s|%d", input, now.UTC().UnixNano())
	suffix := hash(runSeed)[:6]
	return filepath.Join(outRoot, fmt.Sprintf("%s-%s-%s", name, ts, suffix))
}

func normalizePathSegment(s string) string {
	var b strings.Builder
	prevDash := false
	for _, r := range strings.ToLower(strings.TrimSpace(s)) {
		switch {
		case unicode.IsLetter(r), unicode.IsDigit(r):
			b.WriteRune(r)
			prevDash = false
		default:
			if !prevDash {
				b.WriteByte('-')
				prevDash = true
			}
		}
	}
	return strings.Trim(b.String(), "-")
}

func hash(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])[:12]
}

// ensure adapters implement ports
var _ ports.AudioTool = (*ffmpeg.Adapter)(nil)
var _ ports.ASR = (*whispercpp.Adapter)(nil)
var _ ports.ASR = (*fixture.Adapter)(nil)
var _ ports.LLM = (*openaicompat.Adapter)(nil)
var _ ports.LLM = (*staticllm.Adapter)(nil)
var _ ports.Classifier = (*classifier.Classifier)(nil)
