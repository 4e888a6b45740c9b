package speedtest

import (
	"context"
	"iter"
)

// UploadRates yields the simulated upload rate on each tick. Starting from 0,
// each value closes a tenth of the remaining distance to target and adds
// jitter() on top. The sequence ends with the first value at or above 95% of
// target. A non-positive target yields nothing.
func UploadRates(target float64, jitter func() float64) iter.Seq[float64] {
	return func(yield func(float64) bool) {
		current := 0.0
		for current < convergence*target {
			current += (target-current)*approachRate + jitter()
			if !yield(current) {
				return
			}
		}
	}
}

// uploadTarget picks the simulated upload rate as a random fraction of the
// download rate.
func (s *Sequencer) uploadTarget(downloadMbps float64) float64 {
	if downloadMbps <= 0 {
		return 0
	}
	return downloadMbps * s.between(s.opts.UploadMinFraction, s.opts.UploadMaxFraction)
}

// simulateUpload emits one Sample per UploadTick until the rate converges,
// then a final Sample equal to target.
func (s *Sequencer) simulateUpload(ctx context.Context, target float64, emit func(Sample)) error {
	ticker := s.clock.NewTicker(s.opts.UploadTick)
	defer ticker.Stop()

	start := s.clock.Now()
	for rate := range UploadRates(target, s.float) {
		select {
		case <-ctx.Done():
			return &PhaseError{Kind: KindUnexpected, Phase: PhaseUpload, Err: context.Cause(ctx)}
		case <-ticker.C():
		}
		emit(Sample{Phase: PhaseUpload, Mbps: rate, Elapsed: s.clock.Now().Sub(start)})
	}

	if err := ctx.Err(); err != nil {
		return &PhaseError{Kind: KindUnexpected, Phase: PhaseUpload, Err: context.Cause(ctx)}
	}
	emit(Sample{Phase: PhaseUpload, Mbps: target, Elapsed: s.clock.Now().Sub(start)})
	return nil
}
