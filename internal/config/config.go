// Package config holds the application configuration: defaults, YAML file
// and AUDIO_JOURNAL_* environment overrides, validation, and conversion into
// the typed configs of the domain packages.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/forPelevin/audiojournal/internal/domain/chunker"
	"github.com/forPelevin/audiojournal/internal/domain/merger"
	"github.com/forPelevin/audiojournal/internal/domain/segmenter"
	"github.com/forPelevin/audiojournal/internal/types"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

const (
	EnvPrefix   = "AUDIO_JOURNAL"
	DefaultPath = "config.yaml"

	ASRFixture    = "fixture"
	ASRWhisperCPP = "whispercpp"

	LLMOpenAI = "openai"
	LLMStatic = "static"
)

type Config struct {
	ASR        ASR        `mapstructure:"asr" yaml:"asr"`
	Chunker    Chunker    `mapstructure:"chunker" yaml:"chunker"`
	Segmenter  Segmenter  `mapstructure:"segmenter" yaml:"segmenter"`
	Merger     Merger     `mapstructure:"merger" yaml:"merger"`
	LLM        LLM        `mapstructure:"llm" yaml:"llm"`
	Classifier Classifier `mapstructure:"classifier" yaml:"classifier"`
	Tools      Tools      `mapstructure:"tools" yaml:"tools"`
	Paths      Paths      `mapstructure:"paths" yaml:"paths"`
	Log        Log        `mapstructure:"log" yaml:"log"`
	Scenes     []string   `mapstructure:"scenes" yaml:"scenes"`
}

type ASR struct {
	Engine       string `mapstructure:"engine" yaml:"engine"`
	Fixture      string `mapstructure:"fixture" yaml:"fixture"`
	WhisperBin   string `mapstructure:"whisper_bin" yaml:"whisper_bin"`
	WhisperModel string `mapstructure:"whisper_model" yaml:"whisper_model"`
	Language     string `mapstructure:"language" yaml:"language"`
	Diarize      bool   `mapstructure:"diarize" yaml:"diarize"`
}

// Chunker durations are in seconds.
type Chunker struct {
	MinSilenceGap       float64 `mapstructure:"min_silence_gap" yaml:"min_silence_gap"`
	SilenceRMSThreshold float64 `mapstructure:"silence_rms_threshold" yaml:"silence_rms_threshold"`
	MaxChunkDuration    float64 `mapstructure:"max_chunk_duration" yaml:"max_chunk_duration"`
	MinChunkDuration    float64 `mapstructure:"min_chunk_duration" yaml:"min_chunk_duration"`
	Parallel            bool    `mapstructure:"parallel" yaml:"parallel"`
	MaxWorkers          int     `mapstructure:"max_workers" yaml:"max_workers"`
}

type Segmenter struct {
	MinSilenceGap      float64 `mapstructure:"min_silence_gap" yaml:"min_silence_gap"`
	MaxSegmentDuration float64 `mapstructure:"max_segment_duration" yaml:"max_segment_duration"`
	MinSegmentDuration float64 `mapstructure:"min_segment_duration" yaml:"min_segment_duration"`
}

type Merger struct {
	Enabled               bool     `mapstructure:"enabled" yaml:"enabled"`
	MaxGapBetweenSegments float64  `mapstructure:"max_gap_between_segments" yaml:"max_gap_between_segments"`
	MaxMergedDuration     float64  `mapstructure:"max_merged_duration" yaml:"max_merged_duration"`
	MergeableScenes       []string `mapstructure:"mergeable_scenes" yaml:"mergeable_scenes"`
}

type LLM struct {
	Engine         string   `mapstructure:"engine" yaml:"engine"`
	Provider       string   `mapstructure:"provider" yaml:"provider"`
	Model          string   `mapstructure:"model" yaml:"model"`
	APIKeyEnv      string   `mapstructure:"api_key_env" yaml:"api_key_env"`
	BaseURL        string   `mapstructure:"base_url" yaml:"base_url"`
	AllowedHosts   []string `mapstructure:"allowed_hosts" yaml:"allowed_hosts"`
	Temperature    float64  `mapstructure:"temperature" yaml:"temperature"`
	MaxTokens      int      `mapstructure:"max_tokens" yaml:"max_tokens"`
	StaticResponse string   `mapstructure:"static_response" yaml:"static_response"`
}

type Classifier struct {
	PromptPath    string `mapstructure:"prompt_path" yaml:"prompt_path"`
	MaxUtterances int    `mapstructure:"max_utterances" yaml:"max_utterances"`
}

type Tools struct {
	FFmpeg  string `mapstructure:"ffmpeg" yaml:"ffmpeg"`
	FFprobe string `mapstructure:"ffprobe" yaml:"ffprobe"`
}

type Paths struct {
	Processing string `mapstructure:"processing" yaml:"processing"`
	Output     string `mapstructure:"output" yaml:"output"`
}

type Log struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
}

func Default() Config {
	return Config{
		ASR: ASR{
			Engine:       ASRFixture,
			WhisperBin:   ".cache/bin/whisper.cpp",
			WhisperModel: ".cache/models/ggml-base.bin",
			Language:     "auto",
		},
		Chunker: Chunker{
			MinSilenceGap:       30,
			SilenceRMSThreshold: 200,
			MaxChunkDuration:    14400,
			MinChunkDuration:    60,
			Parallel:            true,
			MaxWorkers:          4,
		},
		Segmenter: Segmenter{
			MinSilenceGap:      30,
			MaxSegmentDuration: 1800,
			MinSegmentDuration: 10,
		},
		Merger: Merger{
			Enabled:               true,
			MaxGapBetweenSegments: 600,
			MaxMergedDuration:     7200,
			MergeableScenes:       []string{"meeting", "learning", "business"},
		},
		LLM: LLM{
			Engine:      LLMOpenAI,
			Provider:    "deepseek",
			Model:       "deepseek-chat",
			APIKeyEnv:   "DEEPSEEK_API_KEY",
			Temperature: 0.3,
			MaxTokens:   4096,
		},
		Classifier: Classifier{MaxUtterances: 12},
		Tools:      Tools{FFmpeg: "ffmpeg", FFprobe: "ffprobe"},
		Paths: Paths{
			Processing: "data/processing",
			Output:     "out",
		},
		Log:    Log{Level: "info", Format: "text"},
		Scenes: []string{"meeting", "business", "idea", "learning", "phone", "chat"},
	}
}

// Load builds the effective config: defaults, then the YAML file at path
// (or ./config.yaml when path is empty and the file exists), then
// AUDIO_JOURNAL_* environment variables. Relative paths in a loaded file are
// resolved against the file's directory.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := setDefaults(v, Default()); err != nil {
		return Config{}, err
	}

	explicit := path != ""
	if !explicit {
		path = DefaultPath
	}
	loaded := false
	if _, err := os.Stat(path); err == nil {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
		loaded = true
	} else if explicit {
		return Config{}, fmt.Errorf("config file %s: %w", path, err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	if loaded {
		abs, err := filepath.Abs(path)
		if err != nil {
			return Config{}, err
		}
		cfg.ResolvePaths(filepath.Dir(abs))
	}
	return cfg, nil
}

// setDefaults registers every key of def with viper so that environment
// overrides apply to keys absent from the file.
func setDefaults(v *viper.Viper, def Config) error {
	b, err := yaml.Marshal(def)
	if err != nil {
		return fmt.Errorf("encode defaults: %w", err)
	}
	var m map[string]any
	if err := yaml.Unmarshal(b, &m); err != nil {
		return fmt.Errorf("decode defaults: %w", err)
	}
	walkDefaults(v, "", m)
	return nil
}

func walkDefaults(v *viper.Viper, prefix string, m map[string]any) {
	for k, val := range m {
		key := k
		if prefix != "" {
			key = prefix + "." + k
		}
		if sub, ok := val.(map[string]any); ok {
			walkDefaults(v, key, sub)
			continue
		}
		v.SetDefault(key, val)
	}
}

// ResolvePaths makes file-system paths absolute relative to baseDir.
// Tool names (ffmpeg, ffprobe) are left alone so PATH lookup still works.
func (c *Config) ResolvePaths(baseDir string) {
	abs := func(p string) string {
		if p == "" || filepath.IsAbs(p) {
			return p
		}
		return filepath.Join(baseDir, p)
	}
	c.ASR.Fixture = abs(c.ASR.Fixture)
	c.ASR.WhisperBin = abs(c.ASR.WhisperBin)
	c.ASR.WhisperModel = abs(c.ASR.WhisperModel)
	c.Classifier.PromptPath = abs(c.Classifier.PromptPath)
	c.Paths.Processing = abs(c.Paths.Processing)
	c.Paths.Output = abs(c.Paths.Output)
}

func (c Config) Validate() error {
	if err := c.ChunkerConfig().Validate(); err != nil {
		return fmt.Errorf("chunker: %w", err)
	}
	if c.Chunker.MaxWorkers < 1 {
		return errors.New("chunker: max_workers must be >= 1")
	}
	if err := c.SegmenterConfig().Validate(); err != nil {
		return fmt.Errorf("segmenter: %w", err)
	}
	mc, err := c.MergerConfig()
	if err != nil {
		return fmt.Errorf("merger: %w", err)
	}
	if err := mc.Validate(); err != nil {
		return fmt.Errorf("merger: %w", err)
	}
	if _, err := c.SceneList(); err != nil {
		return fmt.Errorf("scenes: %w", err)
	}

	switch c.ASR.Engine {
	case ASRFixture, ASRWhisperCPP:
	default:
		return fmt.Errorf("asr: unknown engine %q (want %s or %s)", c.ASR.Engine, ASRFixture, ASRWhisperCPP)
	}
	switch c.LLM.Engine {
	case LLMOpenAI, LLMStatic:
	default:
		return fmt.Errorf("llm: unknown engine %q (want %s or %s)", c.LLM.Engine, LLMOpenAI, LLMStatic)
	}
	if c.LLM.Temperature < 0 || c.LLM.Temperature > 2 {
		return errors.New("llm: temperature must be in [0,2]")
	}
	if c.LLM.MaxTokens <= 0 {
		return errors.New("llm: max_tokens must be > 0")
	}
	if c.Classifier.MaxUtterances <= 0 {
		return errors.New("classifier: max_utterances must be > 0")
	}
	if c.Paths.Processing == "" || c.Paths.Output == "" {
		return errors.New("paths: processing and output are required")
	}

	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("log: unknown level %q", c.Log.Level)
	}
	switch strings.ToLower(c.Log.Format) {
	case "text", "json":
	default:
		return fmt.Errorf("log: unknown format %q", c.Log.Format)
	}
	return nil
}

func (c Config) ChunkerConfig() chunker.Config {
	return chunker.Config{
		SilenceRMSThreshold: c.Chunker.SilenceRMSThreshold,
		MinSilenceGap:       seconds(c.Chunker.MinSilenceGap),
		MaxChunk:            seconds(c.Chunker.MaxChunkDuration),
		MinChunk:            seconds(c.Chunker.MinChunkDuration),
	}
}

func (c Config) SegmenterConfig() segmenter.Config {
	return segmenter.Config{
		MinSilenceGap: seconds(c.Segmenter.MinSilenceGap),
		MaxSegment:    seconds(c.Segmenter.MaxSegmentDuration),
		MinSegment:    seconds(c.Segmenter.MinSegmentDuration),
	}
}

func (c Config) MergerConfig() (merger.Config, error) {
	scenes, err := parseScenes(c.Merger.MergeableScenes)
	if err != nil {
		return merger.Config{}, err
	}
	return merger.Config{
		MaxGap:          seconds(c.Merger.MaxGapBetweenSegments),
		MaxMerged:       seconds(c.Merger.MaxMergedDuration),
		MergeableScenes: scenes,
	}, nil
}

// SceneList returns the scenes the classifier may emit.
func (c Config) SceneList() ([]types.Scene, error) {
	if len(c.Scenes) == 0 {
		return nil, errors.New("at least one scene is required")
	}
	return parseScenes(c.Scenes)
}

// YAML renders the effective configuration.
func (c Config) YAML() ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(c); err != nil {
		return nil, err
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func parseScenes(in []string) ([]types.Scene, error) {
	out := make([]types.Scene, 0, len(in))
	for _, s := range in {
		sc, err := types.ParseScene(s)
		if err != nil {
			return nil, err
		}
		out = append(out, sc)
	}
	return out, nil
}

func seconds(v float64) time.Duration {
	return time.Duration(math.Round(v * float64(time.Second)))
}
