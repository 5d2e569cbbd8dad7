// Package scan runs a decoded QR payload through lookup, state update,
// persistence, and logging.
package scan

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"kiosk/internal/attendance"
	"kiosk/internal/ledger"
	"kiosk/internal/roster"
	"kiosk/internal/scanlog"
)

// payloadTag prefixes every valid badge payload.
const payloadTag = "LRN:"

var (
	// ErrInvalidPayload means the QR content is not a student badge.
	ErrInvalidPayload = errors.New("invalid payload format")
	// ErrStudentNotFound means a well-formed LRN matched no roster record.
	ErrStudentNotFound = errors.New("student not found")
	// ErrScanInFlight means another scan is still being processed; the
	// payload is dropped, not queued.
	ErrScanInFlight = errors.New("scan already in flight")
)

// ParsePayload extracts the LRN from a badge payload of the form
// "LRN:<identifier>". The identifier must be non-empty and carry no
// further delimiters.
func ParsePayload(payload string) (string, error) {
	if !strings.HasPrefix(payload, payloadTag) {
		return "", fmt.Errorf("%w: missing %q tag", ErrInvalidPayload, payloadTag)
	}
	lrn := payload[len(payloadTag):]
	if lrn == "" {
		return "", fmt.Errorf("%w: empty identifier", ErrInvalidPayload)
	}
	if strings.Contains(lrn, ":") {
		return "", fmt.Errorf("%w: identifier contains delimiter", ErrInvalidPayload)
	}
	return lrn, nil
}

// Result is what a processed scan reports back for display.
type Result struct {
	Student   attendance.Student `json:"student"`
	Classroom string             `json:"classroom"`
	Entry     attendance.Entry   `json:"entry"`
}

// Pipeline wires the roster index, the ledger, and the scan log into
// the per-payload flow. At most one scan is processed at a time; a
// payload arriving while one is in flight is rejected with
// ErrScanInFlight rather than racing the ledger write.
type Pipeline struct {
	roster *roster.Index
	store  ledger.Store
	feed   scanlog.Log
	logger *zap.Logger
	now    func() time.Time
	busy   atomic.Bool
}

// Option tweaks pipeline construction.
type Option func(*Pipeline)

// WithClock overrides the time source, for tests.
func WithClock(now func() time.Time) Option {
	return func(p *Pipeline) { p.now = now }
}

// NewPipeline builds a pipeline over the given collaborators.
func NewPipeline(ix *roster.Index, store ledger.Store, feed scanlog.Log, logger *zap.Logger, opts ...Option) *Pipeline {
	if logger == nil {
		logger = zap.NewNop()
	}
	p := &Pipeline{
		roster: ix,
		store:  store,
		feed:   feed,
		logger: logger,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Process runs one payload through the pipeline. All failures are
// typed or wrapped; none should terminate the caller's loop.
func (p *Pipeline) Process(ctx context.Context, payload string) (Result, error) {
	if !p.busy.CompareAndSwap(false, true) {
		scansTotal.WithLabelValues(outcomeInFlight).Inc()
		return Result{}, ErrScanInFlight
	}
	defer p.busy.Store(false)

	res, err := p.process(ctx, payload)
	scansTotal.WithLabelValues(outcomeOf(res, err)).Inc()
	return res, err
}

func (p *Pipeline) process(ctx context.Context, payload string) (Result, error) {
	lrn, err := ParsePayload(payload)
	if err != nil {
		return Result{}, err
	}

	student, classroom, ok := p.roster.FindByLRN(lrn)
	if !ok {
		return Result{}, fmt.Errorf("%w: lrn %s", ErrStudentNotFound, lrn)
	}

	// Merge in the persisted history so a same-day re-scan sees the
	// entry the previous scan wrote.
	persisted, err := p.store.Get(ctx, classroom)
	if err != nil {
		return Result{}, fmt.Errorf("scan: ledger read failed: %w", err)
	}
	for _, rec := range persisted {
		if rec.LRN == lrn {
			student = attendance.Merge(student, rec)
			break
		}
	}

	now := p.now()
	entry := attendance.ApplyScan(&student, now)

	if err := p.store.Upsert(ctx, classroom, student); err != nil {
		return Result{}, fmt.Errorf("scan: ledger write failed: %w", err)
	}

	line := scanlog.NewLine(now, student, classroom, entry.Status)
	if err := p.feed.Append(ctx, line); err != nil {
		// The attendance update already persisted; a lost feed line is
		// not worth failing the scan over.
		p.logger.Warn("scan log append failed", zap.Error(err))
	}

	p.logger.Info("scan processed",
		zap.String("lrn", lrn),
		zap.String("classroom", classroom),
		zap.String("status", string(entry.Status)))

	return Result{Student: student, Classroom: classroom, Entry: entry}, nil
}

// Reset destroys the entire ledger of one classroom. The explicit
// confirmation step lives with the caller; by the time Reset runs the
// decision is made.
func (p *Pipeline) Reset(ctx context.Context, classroomKey string) error {
	if err := p.store.Reset(ctx, classroomKey); err != nil {
		return err
	}
	p.logger.Info("classroom ledger reset", zap.String("classroom", classroomKey))
	return nil
}
