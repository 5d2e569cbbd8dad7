// Package scanner drives the kiosk station: it samples a payload
// source on a fixed tick and submits what it finds to the backend.
// Camera capture and QR symbol decoding happen upstream of the Source
// boundary; by the time a payload arrives here it is already a string.
package scanner

import (
	"bufio"
	"context"
	"io"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

// Source yields decoded payloads. Poll is a non-blocking sample of the
// latest decode, mirroring how a camera loop samples the latest frame:
// a payload not collected before the next one arrives is superseded.
type Source interface {
	Poll(ctx context.Context) (payload string, ok bool, err error)
}

// Submitter delivers a payload to the scan pipeline.
type Submitter interface {
	Submit(ctx context.Context, payload string) error
}

var ticksDropped = promauto.NewCounter(prometheus.CounterOpts{
	Name: "kiosk_ticks_dropped_total",
	Help: "Payloads dropped because a submit was still in flight",
})

// Station owns one scanning session: the source, the submit loop, and
// the single-flight state. Create one per Run; stopping is the caller
// cancelling the context, which suppresses future ticks but lets an
// in-flight submit finish.
type Station struct {
	source   Source
	submit   Submitter
	interval time.Duration
	timeout  time.Duration
	logger   *zap.Logger

	inFlight atomic.Bool
	wg       sync.WaitGroup
}

// NewStation wires a station. Interval is the tick period; timeout
// bounds each submit.
func NewStation(source Source, submit Submitter, interval, timeout time.Duration, logger *zap.Logger) *Station {
	if interval <= 0 {
		interval = 250 * time.Millisecond
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Station{
		source:   source,
		submit:   submit,
		interval: interval,
		timeout:  timeout,
		logger:   logger,
	}
}

// Run ticks until the context is cancelled or the source is exhausted.
// A payload sampled while a submit is in flight is dropped and counted;
// it is never queued behind the running one.
func (st *Station) Run(ctx context.Context) error {
	ticker := time.NewTicker(st.interval)
	defer ticker.Stop()
	defer st.wg.Wait()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}

		payload, ok, err := st.source.Poll(ctx)
		if err != nil {
			if err == io.EOF {
				return nil
			}
			return err
		}
		if !ok {
			continue
		}

		if !st.inFlight.CompareAndSwap(false, true) {
			ticksDropped.Inc()
			st.logger.Warn("payload dropped, submit in flight")
			continue
		}

		st.wg.Add(1)
		go func(payload string) {
			defer st.wg.Done()
			defer st.inFlight.Store(false)

			// Detached from the run context: cancelling the station
			// does not abandon a submit already on the wire.
			sctx, cancel := context.WithTimeout(context.Background(), st.timeout)
			defer cancel()

			if err := st.submit.Submit(sctx, payload); err != nil {
				st.logger.Warn("submit failed", zap.Error(err))
			}
		}(payload)
	}
}

// StdinSource adapts a keyboard-wedge QR scanner: the device decodes
// symbols itself and types the payload followed by a newline. A reader
// goroutine keeps only the latest line, matching camera-frame sampling.
type StdinSource struct {
	mu     sync.Mutex
	latest string
	has    bool
	err    error
}

// NewStdinSource starts reading lines from r immediately.
func NewStdinSource(r io.Reader) *StdinSource {
	s := &StdinSource{}
	go func() {
		sc := bufio.NewScanner(r)
		for sc.Scan() {
			line := strings.TrimSpace(sc.Text())
			if line == "" {
				continue
			}
			s.mu.Lock()
			s.latest = line
			s.has = true
			s.mu.Unlock()
		}
		s.mu.Lock()
		if s.err = sc.Err(); s.err == nil {
			s.err = io.EOF
		}
		s.mu.Unlock()
	}()
	return s
}

// Poll takes the latest payload, if any. Once the underlying reader is
// closed, Poll drains the final payload and then reports the error.
func (s *StdinSource) Poll(context.Context) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.has {
		s.has = false
		return s.latest, true, nil
	}
	if s.err != nil {
		return "", false, s.err
	}
	return "", false, nil
}
