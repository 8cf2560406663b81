package whispercpp

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
)

func TestParseOutput(t *testing.T) {
	jb := []byte(`{
		"result": {"language": "en"},
		"transcription": [
			{"offsets": {"from": 0, "to": 1500}, "text": " Hello there.", "speaker_turn_next": true},
			{"offsets": {"from": 1500, "to": 1600}, "text": "   "},
			{"offsets": {"from": 2000, "to": 4250}, "text": " Hi! "}
		]
	}`)
	utts, err := parseOutput(jb)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(utts) != 2 {
		t.Fatalf("expected 2 utterances, got %d", len(utts))
	}
	if utts[0].Text != "Hello there." || utts[0].StartTime != 0 || utts[0].EndTime != 1.5 {
		t.Fatalf("unexpected first utterance: %+v", utts[0])
	}
	if utts[0].Speaker.ID != "SPEAKER_00" || utts[1].Speaker.ID != "SPEAKER_01" {
		t.Fatalf("expected speaker turn, got %s then %s", utts[0].Speaker.ID, utts[1].Speaker.ID)
	}
	if utts[1].StartTime != 2 || utts[1].EndTime != 4.25 {
		t.Fatalf("unexpected second utterance times: %+v", utts[1])
	}
}

func TestParseOutput_Invalid(t *testing.T) {
	if _, err := parseOutput([]byte("not json")); err == nil {
		t.Fatalf("expected error")
	}
}

// fakeWhisperScript behaves like whisper-cli -oj: it writes <-of>.json and,
// for inspection, the received arguments to <-of>.args.
const fakeWhisperScript = `args="$*"
of=""
while [ $# -gt 0 ]; do
  if [ "$1" = "-of" ]; then of="$2"; fi
  shift
done
echo "$args" > "$of.args" || exit 1
cat > "$of.json" <<'JSON' || exit 1
{"transcription":[{"offsets":{"from":0,"to":1200},"text":" First line.","speaker_turn_next":true},{"offsets":{"from":1300,"to":2500},"text":" Second line."}]}
JSON
`

func writeScript(t *testing.T, body string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("needs a POSIX shell")
	}
	bin := filepath.Join(t.TempDir(), "whisper-cli")
	if err := os.WriteFile(bin, []byte("#!/bin/sh\n"+body), 0o755); err != nil {
		t.Fatalf("write script: %v", err)
	}
	return bin
}

func TestTranscribe_CreatesCacheDirAndReadsOutput(t *testing.T) {
	bin := writeScript(t, fakeWhisperScript)
	tmp := t.TempDir()
	cacheDir := filepath.Join(tmp, "work", "asr", "chunk_001")

	a := New(bin, "ggml-base.bin", "en", true)
	utts, err := a.Transcribe(context.Background(), filepath.Join(tmp, "chunk_001.wav"), cacheDir)
	if err != nil {
		t.Fatalf("transcribe: %v", err)
	}
	if len(utts) != 2 || utts[0].Text != "First line." || utts[1].EndTime != 2.5 {
		t.Fatalf("unexpected utterances: %+v", utts)
	}
	if utts[1].Speaker.ID != "SPEAKER_01" {
		t.Fatalf("expected speaker turn, got %s", utts[1].Speaker.ID)
	}

	args, err := os.ReadFile(filepath.Join(cacheDir, "whisper-chunk_001.args"))
	if err != nil {
		t.Fatalf("read args: %v", err)
	}
	for _, want := range []string{"-m ggml-base.bin", "-oj", "-l en", "-tdrz"} {
		if !strings.Contains(string(args), want) {
			t.Fatalf("expected %q in args %q", want, strings.TrimSpace(string(args)))
		}
	}
}

func TestTranscribe_CommandFailure(t *testing.T) {
	bin := writeScript(t, "echo 'model not found' >&2\nexit 3\n")
	_, err := New(bin, "missing.bin", "", false).Transcribe(context.Background(), "chunk.wav", t.TempDir())
	if err == nil || !strings.Contains(err.Error(), "whisper.cpp failed") || !strings.Contains(err.Error(), "model not found") {
		t.Fatalf("expected command failure with stderr, got %v", err)
	}
}
