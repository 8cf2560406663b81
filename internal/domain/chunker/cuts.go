package chunker

import (
	"fmt"
	"math"
	"sort"
	"time"
)

// frameMS is the RMS analysis window.
const frameMS = 30

// CutPoints returns the sample indices at which samples (one channel) is split.
// The result starts at 0, ends at len(samples) and is strictly increasing, so
// consecutive pairs tile the whole input. It is empty for empty input.
func CutPoints(samples []int, sampleRate int, cfg Config) ([]int, error) {
	frameSize := frameSizeFor(sampleRate)
	silent := silentFrames(samples, frameSize, cfg.SilenceRMSThreshold)
	return cutPoints(silent, frameSize, len(samples), sampleRate, cfg)
}

func frameSizeFor(sampleRate int) int { return max(1, sampleRate*frameMS/1000) }

// cutPoints works on per-frame silence flags so callers can stream the audio
// instead of holding every sample.
func cutPoints(silent []bool, frameSize, total, sampleRate int, cfg Config) ([]int, error) {
	if sampleRate <= 0 {
		return nil, fmt.Errorf("%w: sample rate %d", ErrInvalidAudio, sampleRate)
	}
	if total == 0 {
		return nil, nil
	}

	candidates := silenceCuts(silent, frameSize, sampleRate, total, cfg.MinSilenceGap)

	base := make([]int, 0, len(candidates)+2)
	base = append(base, 0)
	base = append(base, candidates...)
	base = append(base, total)
	base = uniqueSorted(base)

	maxSamples := max(1, toSamples(cfg.MaxChunk, sampleRate))
	cuts := []int{base[0]}
	for _, target := range base[1:] {
		// forced cuts between silence cuts that are too far apart
		for target-cuts[len(cuts)-1] > maxSamples {
			cuts = append(cuts, cuts[len(cuts)-1]+maxSamples)
		}
		if target != cuts[len(cuts)-1] {
			cuts = append(cuts, target)
		}
	}

	// A short tail (usually the remainder of forced splits) is folded into
	// its predecessor.
	minSamples := toSamples(cfg.MinChunk, sampleRate)
	for len(cuts) > 2 && cuts[len(cuts)-1]-cuts[len(cuts)-2] < minSamples {
		cuts = append(cuts[:len(cuts)-2], cuts[len(cuts)-1])
	}

	if err := checkCuts(cuts, total); err != nil {
		return nil, err
	}
	return cuts, nil
}

func silentFrames(samples []int, frameSize int, threshold float64) []bool {
	m := newFrameMeter(frameSize, threshold, len(samples)/frameSize+1)
	for _, x := range samples {
		m.add(x)
	}
	m.flush()
	return m.silent
}

// frameMeter flags consecutive analysis frames of one channel as silent when
// their RMS is at or below threshold. A trailing partial frame counts as a
// frame once flush is called.
type frameMeter struct {
	size      int
	threshold float64
	sum       float64
	n         int
	silent    []bool
}

func newFrameMeter(size int, threshold float64, capHint int) *frameMeter {
	return &frameMeter{size: size, threshold: threshold, silent: make([]bool, 0, capHint)}
}

func (m *frameMeter) add(x int) {
	v := float64(x)
	m.sum += v * v
	m.n++
	if m.n == m.size {
		m.flush()
	}
}

func (m *frameMeter) flush() {
	if m.n == 0 {
		return
	}
	m.silent = append(m.silent, math.Sqrt(m.sum/float64(m.n)) <= m.threshold)
	m.sum, m.n = 0, 0
}

// silenceCuts emits the midpoint of every silent run lasting at least minGap.
func silenceCuts(silent []bool, frameSize, sampleRate, total int, minGap time.Duration) []int {
	frameDur := float64(frameSize) / float64(sampleRate)
	var out []int
	runStart := -1
	for idx := 0; idx <= len(silent); idx++ {
		isSilent := idx < len(silent) && silent[idx]
		if isSilent && runStart < 0 {
			runStart = idx
		}
		if !isSilent && runStart >= 0 {
			runLen := idx - runStart
			if float64(runLen)*frameDur >= minGap.Seconds() {
				mid := (runStart + idx) / 2
				cut := min(total, mid*frameSize)
				if cut > 0 && cut < total {
					out = append(out, cut)
				}
			}
			runStart = -1
		}
	}
	return out
}

func uniqueSorted(xs []int) []int {
	sort.Ints(xs)
	out := xs[:0]
	for i, x := range xs {
		if i > 0 && x == out[len(out)-1] {
			continue
		}
		out = append(out, x)
	}
	return out
}

// toSamples converts d to a sample count without overflowing for any
// representable duration.
func toSamples(d time.Duration, sampleRate int) int {
	if d <= 0 {
		return 0
	}
	rate := int64(sampleRate)
	whole, frac := int64(d/time.Second), int64(d%time.Second)
	return int(whole*rate + frac*rate/int64(time.Second))
}

func checkCuts(cuts []int, total int) error {
	if len(cuts) < 2 || cuts[0] != 0 || cuts[len(cuts)-1] != total {
		return fmt.Errorf("%w: cuts %v do not span [0,%d]", ErrInvariantViolation, cuts, total)
	}
	for i := 1; i < len(cuts); i++ {
		if cuts[i] <= cuts[i-1] || cuts[i] > total {
			return fmt.Errorf("%w: cut %d at %d is out of order in [0,%d]", ErrInvariantViolation, i, cuts[i], total)
		}
	}
	return nil
}
