// SPDX-FileCopyrightText: 2026 The Pion community <https://pion.ly>
// SPDX-License-Identifier: MIT

// Package link implements the outgoing link of the simulation: a two class
// priority queue drained at a fixed service interval.
package link

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pion/linksim"
	"github.com/pion/logging"
	"github.com/pion/transport/v3/deadline"
)

const (
	defaultRunTime         = 10 * time.Second
	defaultProgressPercent = 10
)

var (
	// ErrInvalidServiceInterval is returned for non-positive service
	// intervals or link speeds.
	ErrInvalidServiceInterval = errors.New("link: service interval must be positive")

	// ErrInvalidRunTime is returned for non-positive run times.
	ErrInvalidRunTime = errors.New("link: run time must be positive")

	// ErrNilEmitter is returned when no event emitter is configured.
	ErrNilEmitter = errors.New("link: nil event emitter")

	// ErrAlreadyStarted is returned by Run if the scheduler left the idle state.
	ErrAlreadyStarted = errors.New("link: scheduler already started")
)

// State is the lifecycle state of a Scheduler.
type State int32

const (
	// StateIdle is the state before Run is called.
	StateIdle State = iota
	// StateRunning is the state while packets are serviced.
	StateRunning
	// StateTerminated is final. No packet is admitted or serviced anymore.
	StateTerminated
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateTerminated:
		return "terminated"
	default:
		return fmt.Sprintf("invalid state: %d", int32(s))
	}
}

// Emitter records packet events. The scheduler closes it on termination.
type Emitter interface {
	Emit(linksim.Event) error
	Close() error
}

// ServiceInterval returns the time needed to put a packet of packetSizeBits
// on a link of speedMbps megabits per second.
func ServiceInterval(packetSizeBits, speedMbps int) (time.Duration, error) {
	if packetSizeBits <= 0 || speedMbps <= 0 {
		return 0, ErrInvalidServiceInterval
	}

	return time.Duration(packetSizeBits) * time.Microsecond / time.Duration(speedMbps), nil
}

// Option is a functional option for a Scheduler.
type Option func(*Scheduler) error

// WithLoggerFactory configures a custom logger factory for a Scheduler.
func WithLoggerFactory(lf logging.LoggerFactory) Option {
	return func(s *Scheduler) error {
		s.logFactory = lf

		return nil
	}
}

// WithClock sets the clock used to timestamp events.
func WithClock(c linksim.Clock) Option {
	return func(s *Scheduler) error {
		s.clock = c

		return nil
	}
}

// WithServiceInterval sets the time between two packets leaving the link.
func WithServiceInterval(d time.Duration) Option {
	return func(s *Scheduler) error {
		if d <= 0 {
			return ErrInvalidServiceInterval
		}
		s.interval = d

		return nil
	}
}

// WithLinkSpeed derives the service interval from the packet size and the
// link speed.
func WithLinkSpeed(packetSizeBits, speedMbps int) Option {
	return func(s *Scheduler) error {
		d, err := ServiceInterval(packetSizeBits, speedMbps)
		if err != nil {
			return err
		}
		s.interval = d

		return nil
	}
}

// WithRunTime sets how long the scheduler services packets before it
// terminates.
func WithRunTime(d time.Duration) Option {
	return func(s *Scheduler) error {
		if d <= 0 {
			return ErrInvalidRunTime
		}
		s.runTime = d

		return nil
	}
}

// WithQueueCapacity bounds each priority queue to capacity packets. Zero
// means unbounded.
func WithQueueCapacity(capacity int) Option {
	return func(s *Scheduler) error {
		s.capacity = capacity

		return nil
	}
}

// WithMetrics exports scheduler activity through m.
func WithMetrics(m *Metrics) Option {
	return func(s *Scheduler) error {
		s.metrics = m

		return nil
	}
}

// WithPacketFactory sets the factory Send draws packet ids from.
func WithPacketFactory(f *linksim.PacketFactory) Option {
	return func(s *Scheduler) error {
		s.factory = f

		return nil
	}
}

// WithProgressInterval logs progress every percent of the run time. Zero
// disables progress logging.
func WithProgressInterval(percent int) Option {
	return func(s *Scheduler) error {
		if percent < 0 || percent > 100 {
			return fmt.Errorf("link: progress interval %d%% out of range", percent)
		}
		s.progressPercent = percent

		return nil
	}
}

// Scheduler drains a QueuePair at a fixed service interval and records every
// admission and removal through an Emitter.
type Scheduler struct {
	logFactory      logging.LoggerFactory
	log             logging.LeveledLogger
	clock           linksim.Clock
	factory         *linksim.PacketFactory
	metrics         *Metrics
	emitter         Emitter
	queues          *QueuePair
	interval        time.Duration
	runTime         time.Duration
	capacity        int
	progressPercent int

	state atomic.Int32

	// admitMu is held for reading by every admission and for writing while
	// the scheduler terminates, so no admission is cut off halfway.
	admitMu sync.RWMutex
	closing bool

	// seqMu orders enqueue events with packet ids and timestamps.
	seqMu sync.Mutex

	wake chan struct{}
	done chan struct{}

	failOnce sync.Once
	abort    chan struct{}

	errMu sync.Mutex
	err   error
}

// NewScheduler creates a Scheduler that records events through emitter.
func NewScheduler(emitter Emitter, opts ...Option) (*Scheduler, error) {
	if emitter == nil {
		return nil, ErrNilEmitter
	}
	s := &Scheduler{
		logFactory:      logging.NewDefaultLoggerFactory(),
		emitter:         emitter,
		runTime:         defaultRunTime,
		progressPercent: defaultProgressPercent,
		wake:            make(chan struct{}, 1),
		done:            make(chan struct{}),
		abort:           make(chan struct{}),
	}
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}
	if s.interval <= 0 {
		return nil, ErrInvalidServiceInterval
	}
	if s.clock == nil {
		s.clock = linksim.NewMonotonicClock()
	}
	if s.factory == nil {
		s.factory = linksim.NewPacketFactory(0)
	}
	s.log = s.logFactory.NewLogger("linksim_scheduler")
	s.queues = NewQueuePair(s.capacity)

	return s, nil
}

// ServiceInterval returns the configured time between two removals.
func (s *Scheduler) ServiceInterval() time.Duration {
	return s.interval
}

// State returns the current lifecycle state.
func (s *Scheduler) State() State {
	return State(s.state.Load())
}

// Done is closed exactly once, when the scheduler terminated and the trace
// was closed.
func (s *Scheduler) Done() <-chan struct{} {
	return s.done
}

// Err returns the first fatal error of the run, if any.
func (s *Scheduler) Err() error {
	s.errMu.Lock()
	defer s.errMu.Unlock()

	return s.err
}

// Queued returns the number of packets waiting with priority p.
func (s *Scheduler) Queued(p linksim.Priority) int {
	return s.queues.Len(p)
}

// Admit offers p to the link. The enqueue event is recorded before the packet
// can be serviced. It returns false if the queue is full, the scheduler
// terminated, or the event could not be recorded; the caller treats the
// packet as lost. Ids of admitted packets are kept as given, use Send to have
// them follow the admission order.
func (s *Scheduler) Admit(p linksim.Packet) bool {
	_, ok := s.admit(p.Priority, func() linksim.Packet { return p })

	return ok
}

// Send creates a packet of the given priority and offers it to the link like
// Admit. The id is drawn from the packet factory while the slot is held, so
// ids increase in the order enqueue events are recorded. Rejected sends do
// not consume an id.
func (s *Scheduler) Send(priority linksim.Priority) (linksim.Packet, bool) {
	return s.admit(priority, func() linksim.Packet { return s.factory.NewPacket(priority) })
}

func (s *Scheduler) admit(priority linksim.Priority, newPacket func() linksim.Packet) (linksim.Packet, bool) {
	s.admitMu.RLock()
	defer s.admitMu.RUnlock()

	if s.closing {
		s.metrics.onRejected(priority)

		return linksim.Packet{}, false
	}

	var admitted linksim.Packet
	ok, err := s.queues.AdmitFunc(Entry{Packet: linksim.Packet{Priority: priority}}, func(e *Entry) error {
		s.seqMu.Lock()
		defer s.seqMu.Unlock()

		e.Packet = newPacket()
		e.EnqueuedAt = s.clock.Now()
		admitted = e.Packet

		return s.emitter.Emit(linksim.NewEvent(linksim.EventEnqueue, e.Packet, e.EnqueuedAt))
	})
	if err != nil {
		s.fail(fmt.Errorf("link: record enqueue of packet %d: %w", admitted.ID, err))
		s.metrics.onRejected(priority)

		return linksim.Packet{}, false
	}
	if !ok {
		s.log.Debugf("queue %v full, rejected packet", priority)
		s.metrics.onRejected(priority)

		return linksim.Packet{}, false
	}
	s.metrics.onAdmitted(priority)
	s.log.Tracef("admitted packet %v", admitted)

	select {
	case s.wake <- struct{}{}:
	default:
	}

	return admitted, true
}

// Run services packets until the run time elapsed, ctx is cancelled, or
// recording an event failed. On return the scheduler is terminated, the
// emitter is closed and Done is closed. Packets still queued are never
// serviced.
func (s *Scheduler) Run(ctx context.Context) error {
	if !s.state.CompareAndSwap(int32(StateIdle), int32(StateRunning)) {
		return ErrAlreadyStarted
	}
	s.metrics.setRunning(true)
	s.log.Infof("started, service interval %v, run time %v", s.interval, s.runTime)

	runDeadline := deadline.New()
	runDeadline.Set(time.Now().Add(s.runTime))
	defer runDeadline.Set(time.Time{})

	var progress <-chan time.Time
	if step := s.runTime * time.Duration(s.progressPercent) / 100; step > 0 {
		ticker := time.NewTicker(step)
		defer ticker.Stop()
		progress = ticker.C
	}
	elapsedPercent := 0

	// The first removal happens one interval after the start. An idle link
	// went at least one interval without a removal and services the next
	// admission right away.
	pace := time.NewTimer(s.interval)
	defer pace.Stop()
	idle := false

	for {
		select {
		case <-ctx.Done():
			return s.terminate(ctx.Err())
		case <-runDeadline.Done():
			return s.terminate(nil)
		case <-s.abort:
			return s.terminate(nil)
		case <-progress:
			elapsedPercent += s.progressPercent
			s.log.Infof("%d%% of run time elapsed, queued high=%d low=%d",
				elapsedPercent, s.queues.Len(linksim.PriorityHigh), s.queues.Len(linksim.PriorityLow))
		case <-s.wake:
			if !idle {
				continue
			}
			serviced, err := s.serviceNext()
			if err != nil {
				s.fail(err)

				continue
			}
			if serviced {
				idle = false
				pace.Reset(s.interval)
			}
		case <-pace.C:
			serviced, err := s.serviceNext()
			if err != nil {
				s.fail(err)

				continue
			}
			if serviced {
				pace.Reset(s.interval)
			} else {
				idle = true
			}
		}
	}
}

// serviceNext removes one packet and records its dequeue event.
func (s *Scheduler) serviceNext() (bool, error) {
	e, ok := s.queues.RemoveNextEntry()
	if !ok {
		return false, nil
	}
	now := s.clock.Now()
	if err := s.emitter.Emit(linksim.NewEvent(linksim.EventDequeue, e.Packet, now)); err != nil {
		return false, fmt.Errorf("link: record dequeue of packet %d: %w", e.Packet.ID, err)
	}
	s.metrics.onDrained(e.Packet.Priority, now-e.EnqueuedAt)
	s.log.Tracef("serviced packet %v after %v", e.Packet, now-e.EnqueuedAt)

	return true, nil
}

func (s *Scheduler) fail(err error) {
	s.setErr(err)
	s.failOnce.Do(func() {
		s.log.Errorf("aborting run: %v", err)
		close(s.abort)
	})
}

func (s *Scheduler) setErr(err error) {
	if err == nil {
		return
	}
	s.errMu.Lock()
	if s.err == nil {
		s.err = err
	}
	s.errMu.Unlock()
}

func (s *Scheduler) terminate(cause error) error {
	s.admitMu.Lock()
	s.closing = true
	s.admitMu.Unlock()

	s.state.Store(int32(StateTerminated))
	s.metrics.setRunning(false)

	if err := s.emitter.Close(); err != nil {
		s.setErr(fmt.Errorf("link: close trace: %w", err))
	}
	s.log.Infof("terminated, %d high and %d low priority packets left unserviced",
		s.queues.Len(linksim.PriorityHigh), s.queues.Len(linksim.PriorityLow))
	s.metrics.clearQueued()
	close(s.done)

	return errors.Join(cause, s.Err())
}
