package audio

import (
	"context"
	"fmt"
	"time"

	"github.com/hammamikhairi/omnis/internal/domain"
)

// Energy gate tuning. Durations are measured in captured audio, not
// wall time, so a stalled device cannot shorten a phrase.
const (
	// speechRatio scales ambient energy into a speech threshold.
	speechRatio = 1.5
	// pauseAfterSpeech ends a phrase.
	pauseAfterSpeech = 800 * time.Millisecond
	// preRoll is kept from before the threshold was crossed so the
	// first syllable is not clipped.
	preRoll = 300 * time.Millisecond
	// stallGrace is added to the listen timeout as a wall-clock guard
	// against a device that stops delivering frames.
	stallGrace = 2 * time.Second
)

func samplesFor(d time.Duration, rate int) int {
	return int(d.Seconds() * float64(rate))
}

// calibrate averages frame energy over d of audio and scales it into a
// speech threshold.
func calibrate(ctx context.Context, frames <-chan []int16, rate int, d time.Duration) (float64, error) {
	want := samplesFor(d, rate)
	guard := time.NewTimer(d + stallGrace)
	defer guard.Stop()

	var (
		sum float64
		n   int
		got int
	)
	for got < want {
		select {
		case <-ctx.Done():
			return 0, ctx.Err()
		case <-guard.C:
			return 0, fmt.Errorf("calibration stalled after %d samples: %w", got, domain.ErrNoMicrophone)
		case f, ok := <-frames:
			if !ok {
				return 0, fmt.Errorf("capture closed: %w", domain.ErrNoMicrophone)
			}
			sum += RMS(f)
			n++
			got += len(f)
		}
	}
	if n == 0 {
		return 0, nil
	}
	return sum / float64(n) * speechRatio, nil
}

// gate waits for a frame louder than threshold, then records until a
// pause or phraseLimit. It fails with domain.ErrListenTimeout when
// nothing crosses the threshold within timeout.
func gate(ctx context.Context, frames <-chan []int16, rate int, threshold float64, timeout, phraseLimit time.Duration) (*domain.Audio, error) {
	var (
		waitLimit   = samplesFor(timeout, rate)
		phraseMax   = samplesFor(phraseLimit, rate)
		pauseMax    = samplesFor(pauseAfterSpeech, rate)
		preRollMax  = samplesFor(preRoll, rate)
		waited      int
		started     bool
		silent      int
		pre         [][]int16
		preSamples  int
		pcm         []int16
		wallTimeout = time.NewTimer(timeout + phraseLimit + stallGrace)
	)
	defer wallTimeout.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-wallTimeout.C:
			if started && len(pcm) > 0 {
				return &domain.Audio{PCM: pcm, SampleRate: rate}, nil
			}
			return nil, domain.ErrListenTimeout
		case f, ok := <-frames:
			if !ok {
				return nil, fmt.Errorf("capture closed: %w", domain.ErrNoMicrophone)
			}
			loud := RMS(f) > threshold

			if !started {
				if !loud {
					waited += len(f)
					if waited >= waitLimit {
						return nil, domain.ErrListenTimeout
					}
					pre = append(pre, f)
					preSamples += len(f)
					for len(pre) > 1 && preSamples-len(pre[0]) >= preRollMax {
						preSamples -= len(pre[0])
						pre = pre[1:]
					}
					continue
				}
				started = true
				for _, p := range pre {
					pcm = append(pcm, p...)
				}
				pre = nil
			}

			pcm = append(pcm, f...)
			if loud {
				silent = 0
			} else {
				silent += len(f)
			}
			if silent >= pauseMax || len(pcm) >= phraseMax {
				return &domain.Audio{PCM: pcm, SampleRate: rate}, nil
			}
		}
	}
}
