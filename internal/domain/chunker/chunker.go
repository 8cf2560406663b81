// Package chunker splits long 16-bit PCM WAV recordings into ordered,
// non-overlapping chunk files, cutting inside long silences and forcing a cut
// whenever a chunk would exceed the maximum duration.
//
// Silence is an energy heuristic: a 30 ms frame is silent when its RMS
// amplitude is at or below the configured threshold. Only the first channel
// is analysed; chunk files keep every channel of the source.
package chunker

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/forPelevin/audiojournal/internal/types"
	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

var (
	ErrUnsupportedFormat  = errors.New("unsupported audio format")
	ErrInvalidAudio       = errors.New("invalid wav audio")
	ErrInvariantViolation = errors.New("chunker invariant violation")
)

const (
	wavFormatPCM        = 1
	wavFormatExtensible = 0xFFFE
)

// FormatError reports a WAV whose encoding the chunker cannot analyse.
type FormatError struct {
	BitDepth    int
	AudioFormat int
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("unsupported audio format: %d-bit, wav format %d (only 16-bit PCM is supported)", e.BitDepth, e.AudioFormat)
}

func (e *FormatError) Is(target error) bool { return target == ErrUnsupportedFormat }

type Config struct {
	SilenceRMSThreshold float64
	MinSilenceGap       time.Duration
	MaxChunk            time.Duration
	MinChunk            time.Duration
}

func (c Config) Validate() error {
	if c.SilenceRMSThreshold < 0 {
		return fmt.Errorf("silence rms threshold must be >= 0")
	}
	if c.MinSilenceGap <= 0 {
		return fmt.Errorf("min silence gap must be > 0")
	}
	if c.MaxChunk <= 0 {
		return fmt.Errorf("max chunk duration must be > 0")
	}
	if c.MinChunk < 0 {
		return fmt.Errorf("min chunk duration must be >= 0")
	}
	return nil
}

// Chunker holds no state besides its config; Split may be called
// concurrently for different inputs and output directories.
type Chunker struct {
	cfg Config
}

func New(cfg Config) *Chunker { return &Chunker{cfg: cfg} }

// Split cuts the WAV at audioPath and writes chunk_001.wav, chunk_002.wav, ...
// into outDir, replacing chunk files left there by an earlier split. The
// returned chunks tile [0, duration) in time order. On error no chunk files
// written by this call are left behind.
//
// The input is streamed twice, once to find silences and once to copy the
// chunks out, so memory does not grow with the recording length.
func (c *Chunker) Split(audioPath, outDir string) ([]types.Chunk, error) {
	if err := c.cfg.Validate(); err != nil {
		return nil, fmt.Errorf("chunker config: %w", err)
	}

	sc, err := scanPCM16(audioPath, c.cfg.SilenceRMSThreshold)
	if err != nil {
		return nil, err
	}
	cuts, err := cutPoints(sc.silent, sc.frameSize, sc.frames, sc.rate, c.cfg)
	if err != nil {
		return nil, err
	}
	if len(cuts) < 2 {
		return nil, nil
	}

	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return nil, err
	}
	if err := removeStaleChunks(outDir); err != nil {
		return nil, err
	}

	written, err := writeChunks(audioPath, outDir, cuts, sc.rate, sc.channels)
	if err != nil {
		removeAll(written)
		return nil, err
	}

	chunks := make([]types.Chunk, 0, len(written))
	for i, path := range written {
		st := float64(cuts[i]) / float64(sc.rate)
		en := float64(cuts[i+1]) / float64(sc.rate)
		chunks = append(chunks, types.Chunk{
			Index:     i + 1,
			Path:      path,
			StartTime: st,
			EndTime:   en,
			Duration:  en - st,
		})
	}
	return chunks, nil
}

func chunkName(index int) string { return fmt.Sprintf("chunk_%03d.wav", index) }

// blockFrames is how many frames are decoded per read.
const blockFrames = 4096

type scan struct {
	silent    []bool
	frameSize int
	frames    int
	rate      int
	channels  int
}

// scanPCM16 flags silent analysis frames of the first channel and counts the
// whole frames in the file.
func scanPCM16(path string, threshold float64) (scan, error) {
	f, d, err := openPCM16(path)
	if err != nil {
		return scan{}, err
	}
	defer f.Close()

	sc := scan{rate: int(d.SampleRate), channels: int(d.NumChans)}
	sc.frameSize = frameSizeFor(sc.rate)
	m := newFrameMeter(sc.frameSize, threshold, 0)
	r := newFrameReader(d, sc.channels)
	for {
		block, err := r.next()
		if err != nil {
			return scan{}, fmt.Errorf("%w: read pcm: %v", ErrInvalidAudio, err)
		}
		if block == nil {
			break
		}
		for i := 0; i < len(block); i += sc.channels {
			m.add(block[i])
		}
		sc.frames += len(block) / sc.channels
	}
	m.flush()
	sc.silent = m.silent
	return sc, nil
}

// writeChunks copies the frames between consecutive cuts into chunk files and
// returns the paths written so far, also on error.
func writeChunks(audioPath, outDir string, cuts []int, rate, channels int) ([]string, error) {
	f, d, err := openPCM16(audioPath)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r := newFrameReader(d, channels)
	written := make([]string, 0, len(cuts)-1)
	var cur *chunkFile
	defer func() {
		if cur != nil {
			cur.abort()
		}
	}()

	frame, idx := 0, 0
	for idx+1 < len(cuts) {
		block, err := r.next()
		if err != nil {
			return written, fmt.Errorf("%w: read pcm: %v", ErrInvalidAudio, err)
		}
		if block == nil {
			return written, fmt.Errorf("%w: pcm ended at frame %d, want %d", ErrInvariantViolation, frame, cuts[len(cuts)-1])
		}
		for len(block) > 0 && idx+1 < len(cuts) {
			if cur == nil {
				path := filepath.Join(outDir, chunkName(idx+1))
				if cur, err = createChunkFile(path, rate, channels); err != nil {
					return written, fmt.Errorf("write %s: %w", filepath.Base(path), err)
				}
			}
			take := min(len(block), (cuts[idx+1]-frame)*channels)
			if err := cur.write(block[:take]); err != nil {
				return written, fmt.Errorf("write %s: %w", filepath.Base(cur.path), err)
			}
			block = block[take:]
			frame += take / channels

			if frame == cuts[idx+1] {
				done := cur
				cur = nil
				if err := done.close(); err != nil {
					return written, fmt.Errorf("write %s: %w", filepath.Base(done.path), err)
				}
				written = append(written, done.path)
				idx++
			}
		}
	}
	return written, nil
}

func openPCM16(path string) (*os.File, *wav.Decoder, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	d := wav.NewDecoder(f)
	if !d.IsValidFile() {
		f.Close()
		if d.Err() != nil {
			return nil, nil, fmt.Errorf("%w: %s: %v", ErrInvalidAudio, filepath.Base(path), d.Err())
		}
		return nil, nil, fmt.Errorf("%w: %s", ErrInvalidAudio, filepath.Base(path))
	}
	format := int(d.WavAudioFormat)
	if d.BitDepth != 16 || (format != wavFormatPCM && format != wavFormatExtensible) {
		f.Close()
		return nil, nil, &FormatError{BitDepth: int(d.BitDepth), AudioFormat: format}
	}
	if d.NumChans == 0 || d.SampleRate == 0 {
		f.Close()
		return nil, nil, fmt.Errorf("%w: %s: %d channels at %d Hz", ErrInvalidAudio, filepath.Base(path), d.NumChans, d.SampleRate)
	}
	return f, d, nil
}

// frameReader yields interleaved samples in whole frames. A trailing partial
// frame is dropped.
type frameReader struct {
	d        *wav.Decoder
	channels int
	buf      *audio.IntBuffer
	pending  []int
	out      []int
}

func newFrameReader(d *wav.Decoder, channels int) *frameReader {
	return &frameReader{
		d:        d,
		channels: channels,
		buf:      &audio.IntBuffer{Data: make([]int, blockFrames*channels)},
	}
}

// next returns the next block, valid until the following call, or nil at the
// end of the data.
func (r *frameReader) next() ([]int, error) {
	for {
		n, err := r.d.PCMBuffer(r.buf)
		if err != nil {
			return nil, err
		}
		if n == 0 {
			return nil, nil
		}
		r.pending = append(r.pending, r.buf.Data[:n]...)
		whole := len(r.pending) - len(r.pending)%r.channels
		if whole == 0 {
			continue
		}
		r.out = append(r.out[:0], r.pending[:whole]...)
		r.pending = append(r.pending[:0], r.pending[whole:]...)
		return r.out, nil
	}
}

type chunkFile struct {
	path string
	f    *os.File
	enc  *wav.Encoder
	buf  audio.IntBuffer
}

func createChunkFile(path string, rate, channels int) (*chunkFile, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	return &chunkFile{
		path: path,
		f:    f,
		enc:  wav.NewEncoder(f, rate, 16, channels, wavFormatPCM),
		buf: audio.IntBuffer{
			Format:         &audio.Format{NumChannels: channels, SampleRate: rate},
			SourceBitDepth: 16,
		},
	}, nil
}

func (c *chunkFile) write(data []int) error {
	c.buf.Data = data
	return c.enc.Write(&c.buf)
}

// close finalizes the header. The file is removed when that fails.
func (c *chunkFile) close() error {
	err := c.enc.Close()
	if cerr := c.f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(c.path)
	}
	return err
}

func (c *chunkFile) abort() {
	_ = c.f.Close()
	_ = os.Remove(c.path)
}

func removeStaleChunks(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return err
	}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if ok, _ := filepath.Match("chunk_*.wav", e.Name()); !ok {
			continue
		}
		if err := os.Remove(filepath.Join(dir, e.Name())); err != nil {
			return fmt.Errorf("remove stale chunk: %w", err)
		}
	}
	return nil
}

func removeAll(paths []string) {
	for _, p := range paths {
		_ = os.Remove(p) // best-effort; the write error takes precedence
	}
}
