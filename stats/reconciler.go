// SPDX-FileCopyrightText: 2026 The Pion community <https://pion.ly>
// SPDX-License-Identifier: MIT

// Package stats reconciles a packet event trace into per priority queueing
// delay statistics.
package stats

import (
	"context"
	"errors"
	"fmt"
	"io"
	"maps"
	"os"
	"slices"
	"time"

	"github.com/pion/linksim"
	"github.com/pion/linksim/trace"
	"github.com/pion/logging"
)

const (
	defaultChunkSize          = 100000
	defaultStreamingThreshold = 1000000

	// ctxCheckInterval is the number of lines between cancellation checks.
	ctxCheckInterval = 4096
)

// ErrInvalidChunkSize is returned for non-positive chunk sizes.
var ErrInvalidChunkSize = errors.New("stats: chunk size must be positive")

// Option is a functional option for a Reconciler.
type Option func(*Reconciler) error

// WithLoggerFactory configures a custom logger factory for a Reconciler.
func WithLoggerFactory(lf logging.LoggerFactory) Option {
	return func(r *Reconciler) error {
		r.logFactory = lf

		return nil
	}
}

// WithChunkSize sets the number of lines after which completed records are
// folded and released.
func WithChunkSize(n int) Option {
	return func(r *Reconciler) error {
		if n <= 0 {
			return ErrInvalidChunkSize
		}
		r.chunkSize = n

		return nil
	}
}

// WithStreamingThreshold sets the line count above which ReconcileFile
// processes the trace in chunks. Smaller traces are read in a single pass.
func WithStreamingThreshold(lines int) Option {
	return func(r *Reconciler) error {
		r.streamingThreshold = lines

		return nil
	}
}

// WithDelayThreshold sets the delay above which a packet counts as delayed.
func WithDelayThreshold(d time.Duration) Option {
	return func(r *Reconciler) error {
		if d < 0 {
			return fmt.Errorf("stats: negative delay threshold %v", d)
		}
		r.delayThreshold = d

		return nil
	}
}

// Reconciler pairs the enqueue and dequeue events of a trace by packet id
// and aggregates the queueing delays. Reconciling does not modify the trace;
// running it twice on the same input yields the same report.
type Reconciler struct {
	logFactory         logging.LoggerFactory
	log                logging.LeveledLogger
	chunkSize          int
	streamingThreshold int
	delayThreshold     time.Duration
}

// NewReconciler creates a Reconciler.
func NewReconciler(opts ...Option) (*Reconciler, error) {
	r := &Reconciler{
		logFactory:         logging.NewDefaultLoggerFactory(),
		chunkSize:          defaultChunkSize,
		streamingThreshold: defaultStreamingThreshold,
	}
	for _, opt := range opts {
		if err := opt(r); err != nil {
			return nil, err
		}
	}
	r.log = r.logFactory.NewLogger("linksim_reconciler")

	return r, nil
}

// Reconcile reads a trace from in, folding completed records every chunk
// size lines.
func (r *Reconciler) Reconcile(ctx context.Context, in io.Reader) (Report, error) {
	return r.reconcile(ctx, in, r.chunkSize)
}

// ReconcileFile reconciles the trace at path. It counts the lines first and
// reads traces up to the streaming threshold in a single chunk.
func (r *Reconciler) ReconcileFile(ctx context.Context, path string) (Report, error) {
	f, err := os.Open(path) //nolint:gosec
	if err != nil {
		return Report{}, fmt.Errorf("stats: open trace: %w", err)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil {
			r.log.Warnf("close trace %s: %v", path, cerr)
		}
	}()

	lines, err := trace.CountLines(f)
	if err != nil {
		return Report{}, fmt.Errorf("stats: count lines of %s: %w", path, err)
	}
	if _, err = f.Seek(0, io.SeekStart); err != nil {
		return Report{}, fmt.Errorf("stats: rewind trace: %w", err)
	}

	chunk := r.chunkSize
	if lines <= r.streamingThreshold {
		chunk = max(lines, 1)
	}
	r.log.Infof("reconciling %s: %d lines, chunk size %d", path, lines, chunk)

	return r.reconcile(ctx, f, chunk)
}

// pass holds the state of a single reconciliation.
type pass struct {
	log       logging.LeveledLogger
	agg       *Aggregator
	pending   map[uint64]*Record
	completed []uint64
	peak      int
	line      int
}

func (r *Reconciler) reconcile(ctx context.Context, in io.Reader, chunkSize int) (Report, error) {
	p := &pass{
		log:     r.log,
		agg:     NewAggregator(r.delayThreshold, r.logFactory),
		pending: make(map[uint64]*Record),
	}
	if err := ctx.Err(); err != nil {
		return Report{}, err
	}

	lines := trace.NewLineReader(in)
	inChunk := 0
	for {
		line, err := lines.ReadLine()
		if errors.Is(err, io.EOF) {
			break
		}
		p.line++
		switch {
		case errors.Is(err, trace.ErrLineTooLong):
			p.agg.anomalies.Malformed++
			p.log.Warnf("line %d: %v", p.line, err)
		case err != nil:
			return Report{}, fmt.Errorf("stats: read trace: %w", err)
		default:
			p.correlate(line)
		}

		if p.line%ctxCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				return Report{}, err
			}
		}
		inChunk++
		if inChunk == chunkSize {
			p.flush()
			inChunk = 0
		}
	}
	p.flush()
	p.drain()

	report := p.agg.Finalize()
	report.Lines = p.line
	report.PeakPending = p.peak
	r.log.Debugf("reconciled %d lines, %d anomalies", p.line, report.Anomalies.Total())

	return report, nil
}

func (p *pass) correlate(line string) {
	if line == "" {
		return
	}
	ev, err := trace.ParseLine(line)
	switch {
	case errors.Is(err, trace.ErrUnknownKind):
		p.agg.anomalies.Unknown++
		p.log.Warnf("line %d: %v", p.line, err)

		return
	case err != nil:
		p.agg.anomalies.Malformed++
		p.log.Warnf("line %d: %v", p.line, err)

		return
	}

	rec, ok := p.pending[ev.Packet.ID]
	if !ok {
		rec = &Record{}
		p.pending[ev.Packet.ID] = rec
		p.peak = max(p.peak, len(p.pending))
	}
	if rec.Set(ev) {
		p.agg.anomalies.Duplicates++
		p.log.Warnf("line %d: duplicate %v event for packet %d", p.line, ev.Kind, ev.Packet.ID)
	}
	if rec.Complete() && !rec.queued {
		rec.queued = true
		p.completed = append(p.completed, ev.Packet.ID)
	}
}

// flush folds completed records in completion order and releases them.
func (p *pass) flush() {
	for _, id := range p.completed {
		p.agg.Fold(*p.pending[id])
		delete(p.pending, id)
	}
	p.completed = p.completed[:0]
}

// drain accounts for records still incomplete at the end of the trace.
func (p *pass) drain() {
	for _, id := range slices.Sorted(maps.Keys(p.pending)) {
		rec := p.pending[id]
		if _, ok := rec.Event(linksim.EventEnqueue); !ok {
			p.log.Warnf("packet %d dequeued without enqueue", id)
		}
		p.agg.Fold(*rec)
		delete(p.pending, id)
	}
}
