package speedtest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"sync/atomic"
	"time"
)

// CacheBustParam is the query parameter appended to every probe and payload
// request so intermediaries cannot serve a cached copy.
const CacheBustParam = "t"

// cacheBust validates raw as an http(s) URL and appends a unique value.
func cacheBust(raw string, now time.Time) (string, error) {
	if raw == "" {
		return "", errors.New("no URL configured")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("unsupported URL scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return "", fmt.Errorf("URL %q has no host", raw)
	}
	q := u.Query()
	q.Set(CacheBustParam, strconv.FormatInt(now.UnixNano(), 10))
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func noCache(req *http.Request) {
	req.Header.Set("Cache-Control", "no-cache, no-store")
	req.Header.Set("Pragma", "no-cache")
}

// measurePing times one HEAD round trip in milliseconds. Any HTTP response
// counts as a completed round trip regardless of status.
func (s *Sequencer) measurePing(ctx context.Context) (float64, error) {
	target, err := cacheBust(s.opts.PingURL, s.clock.Now())
	if err != nil {
		return 0, &PhaseError{Kind: KindUnexpected, Phase: PhasePing, Err: err}
	}

	probeCtx, cancel := context.WithTimeout(ctx, s.opts.PingTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(probeCtx, http.MethodHead, target, nil)
	if err != nil {
		return 0, &PhaseError{Kind: KindUnexpected, Phase: PhasePing, Err: err}
	}
	noCache(req)

	start := s.clock.Now()
	resp, err := s.opts.Client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return 0, &PhaseError{Kind: KindUnexpected, Phase: PhasePing, Err: context.Cause(ctx)}
		}
		return 0, &PhaseError{Kind: KindProbeUnavailable, Phase: PhasePing, Err: err}
	}
	elapsed := s.clock.Now().Sub(start)
	_, _ = io.Copy(io.Discard, resp.Body)
	resp.Body.Close()

	return float64(elapsed) / float64(time.Millisecond), nil
}

// readResult is the outcome of draining a payload body.
type readResult struct {
	err error
}

// measureDownload streams the payload and returns the overall rate. emit
// receives a Sample every SampleInterval while the body is read and a final
// Sample carrying the returned rate. On a transport failure the final Sample
// has a rate of 0.
func (s *Sequencer) measureDownload(ctx context.Context, emit func(Sample)) (float64, error) {
	target, err := cacheBust(s.opts.PayloadURL, s.clock.Now())
	if err != nil {
		return 0, &PhaseError{Kind: KindUnexpected, Phase: PhaseDownload, Err: err}
	}

	fetchCtx, cancel := context.WithTimeout(ctx, s.opts.DownloadTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(fetchCtx, http.MethodGet, target, nil)
	if err != nil {
		return 0, &PhaseError{Kind: KindUnexpected, Phase: PhaseDownload, Err: err}
	}
	noCache(req)

	start := s.clock.Now()
	transportErr := func(err error) (float64, error) {
		if ctx.Err() != nil {
			return 0, &PhaseError{Kind: KindUnexpected, Phase: PhaseDownload, Err: context.Cause(ctx)}
		}
		emit(Sample{Phase: PhaseDownload, Elapsed: s.clock.Now().Sub(start)})
		return 0, &PhaseError{Kind: KindDownloadTransport, Phase: PhaseDownload, Err: err}
	}

	resp, err := s.opts.Client.Do(req)
	if err != nil {
		return transportErr(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return transportErr(fmt.Errorf("unexpected status %s", resp.Status))
	}

	total := resp.ContentLength
	var received atomic.Int64
	done := make(chan readResult, 1)
	go func() {
		buf := make([]byte, 32*1024)
		for {
			n, err := resp.Body.Read(buf)
			received.Add(int64(n))
			if errors.Is(err, io.EOF) {
				done <- readResult{}
				return
			}
			if err != nil {
				done <- readResult{err: err}
				return
			}
		}
	}()

	ticker := s.clock.NewTicker(s.opts.SampleInterval)
	defer ticker.Stop()

	sampleAt := func(now time.Time) Sample {
		n := received.Load()
		elapsed := now.Sub(start)
		return Sample{
			Phase:    PhaseDownload,
			Mbps:     RateMbps(n, elapsed),
			Elapsed:  elapsed,
			Progress: progress(n, total),
		}
	}

	for {
		select {
		case <-ticker.C():
			emit(sampleAt(s.clock.Now()))
		case res := <-done:
			if res.err != nil {
				return transportErr(res.err)
			}
			final := sampleAt(s.clock.Now())
			if total <= 0 {
				final.Progress = 1
			}
			emit(final)
			return final.Mbps, nil
		}
	}
}

func progress(received, total int64) float64 {
	if total <= 0 {
		return 0
	}
	if received >= total {
		return 1
	}
	return float64(received) / float64(total)
}
