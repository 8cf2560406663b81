//go:build integration

package itest

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

const cliTimeout = 60 * time.Second

type cliRunResult struct {
	exitCode int
	output   string
}

func runCLI(t *testing.T, repoRoot string, args []string, env map[string]string) cliRunResult {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), cliTimeout)
	defer cancel()

	cmdArgs := append([]string{"run", "./cmd/audiojournal"}, args...)
	cmd := exec.CommandContext(ctx, "go", cmdArgs...)
	cmd.Dir = repoRoot
	cmd.Env = mergeEnv(
		os.Environ(),
		map[string]string{
			"NO_COLOR": "1",
			"TERM":     "dumb",
		},
		env,
	)

	out, err := cmd.CombinedOutput()
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		t.Fatalf("command timed out after %s: go %s", cliTimeout, strings.Join(cmdArgs, " "))
	}

	res := cliRunResult{output: string(out)}
	if err == nil {
		return res
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		res.exitCode = exitErr.ExitCode()
		return res
	}

	t.Fatalf("run command: %v\noutput:\n%s", err, string(out))
	return cliRunResult{}
}

func mergeEnv(base []string, overrides ...map[string]string) []string {
	env := make(map[string]string, len(base))
	for _, kv := range base {
		i := strings.IndexByte(kv, '=')
		if i <= 0 {
			continue
		}
		// keep the host's own settings out of the run
		if strings.HasPrefix(kv[:i], "AUDIO_JOURNAL_") {
			continue
		}
		env[kv[:i]] = kv[i+1:]
	}

	for _, set := range overrides {
		for k, v := range set {
			env[k] = v
		}
	}

	out := make([]string, 0, len(env))
	for k, v := range env {
		out = append(out, fmt.Sprintf("%s=%s", k, v))
	}
	sort.Strings(out)
	return out
}

func findRepoRoot() (string, error) {
	wd, err := os.Getwd()
	if err != nil {
		return "", err
	}
	for i := 0; i < 10; i++ {
		if _, err := os.Stat(filepath.Join(wd, "go.mod")); err == nil {
			return wd, nil
		}
		parent := filepath.Dir(wd)
		if parent == wd {
			break
		}
		wd = parent
	}
	return "", errors.New("could not locate go.mod")
}

func mustRepoRoot(t *testing.T) string {
	t.Helper()

	repoRoot, err := findRepoRoot()
	if err != nil {
		t.Fatalf("repo root: %v", err)
	}
	return repoRoot
}

// writeRecording writes a 16 kHz mono 16-bit WAV alternating tone and
// silence, one entry of pattern per second (true = tone).
func writeRecording(t *testing.T, path string, pattern ...bool) {
	t.Helper()
	writeRecordingBits(t, path, 16, pattern...)
}

func writeRecordingBits(t *testing.T, path string, bitDepth int, pattern ...bool) {
	t.Helper()
	const rate = 16000
	amp := 8000.0
	if bitDepth == 8 {
		amp = 100
	}
	data := make([]int, 0, rate*len(pattern))
	for _, on := range pattern {
		for i := 0; i < rate; i++ {
			v := 0
			if on {
				v = int(amp * math.Sin(2*math.Pi*220*float64(i)/rate))
			}
			data = append(data, v)
		}
	}
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create wav: %v", err)
	}
	defer f.Close()
	enc := wav.NewEncoder(f, rate, bitDepth, 1, 1)
	if err := enc.Write(&audio.IntBuffer{Format: &audio.Format{NumChannels: 1, SampleRate: rate}, Data: data, SourceBitDepth: bitDepth}); err != nil {
		t.Fatalf("encode wav: %v", err)
	}
	if err := enc.Close(); err != nil {
		t.Fatalf("close encoder: %v", err)
	}
}

// probeAudio reports codec name and duration of the first audio stream.
func probeAudio(path string) (string, float64, error) {
	cmd := exec.Command("ffprobe",
		"-v", "error",
		"-select_streams", "a:0",
		"-show_entries", "stream=codec_name:format=duration",
		"-of", "default=noprint_wrappers=1",
		path,
	)
	b, err := cmd.CombinedOutput()
	if err != nil {
		return "", 0, fmt.Errorf("ffprobe: %w\n%s", err, string(b))
	}
	var codec string
	var sec float64
	for _, line := range strings.Split(strings.TrimSpace(string(b)), "\n") {
		k, v, ok := strings.Cut(strings.TrimSpace(line), "=")
		if !ok {
			continue
		}
		switch k {
		case "codec_name":
			codec = v
		case "duration":
			sec, err = strconv.ParseFloat(v, 64)
			if err != nil {
				return "", 0, fmt.Errorf("parse duration %q: %w", v, err)
			}
		}
	}
	return codec, sec, nil
}
