// SPDX-FileCopyrightText: 2026 The Pion community <https://pion.ly>
// SPDX-License-Identifier: MIT

package simulation

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/pion/linksim"
	"github.com/pion/logging"
)

// IntervalSource draws integers uniformly from [lo, hi]. rngstream streams
// satisfy it.
type IntervalSource interface {
	RandInt(lo, hi int) int
}

// Link is the side of the link a producer sends to. Send creates a packet of
// the given priority and reports whether the link admitted it.
type Link interface {
	Send(linksim.Priority) (linksim.Packet, bool)
	Done() <-chan struct{}
}

// ProducerConfig configures a Producer.
type ProducerConfig struct {
	ID       int
	Priority linksim.Priority
	Packets  int

	MinInterval time.Duration
	MaxInterval time.Duration
	// Intervals draws the wait before each packet in microseconds. A nil
	// source always waits MinInterval.
	Intervals IntervalSource

	LoggerFactory logging.LoggerFactory
}

// Producer offers a fixed number of packets of one priority to a link,
// waiting a random interval before each packet. It stops early when the
// link terminates.
type Producer struct {
	log  logging.LeveledLogger
	cfg  ProducerConfig
	link Link

	sent atomic.Uint64
	lost atomic.Uint64

	closeOnce sync.Once
	done      chan struct{}
	finished  chan struct{}
	wg        sync.WaitGroup
}

// NewProducer creates a producer sending to l.
func NewProducer(l Link, cfg ProducerConfig) *Producer {
	lf := cfg.LoggerFactory
	if lf == nil {
		lf = logging.NewDefaultLoggerFactory()
	}

	return &Producer{
		log:      lf.NewLogger("linksim_producer"),
		cfg:      cfg,
		link:     l,
		done:     make(chan struct{}),
		finished: make(chan struct{}),
	}
}

// Start begins sending in a new goroutine.
func (p *Producer) Start() {
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		defer close(p.finished)
		p.run()
	}()
}

func (p *Producer) run() {
	p.log.Debugf("producer %d started, %d %v priority packets", p.cfg.ID, p.cfg.Packets, p.cfg.Priority)

	timer := time.NewTimer(p.nextInterval())
	defer timer.Stop()

	for i := 0; i < p.cfg.Packets; i++ {
		select {
		case <-timer.C:
		case <-p.link.Done():
			p.stopped(i)

			return
		case <-p.done:
			return
		}
		// The timer may fire together with the link terminating. No packet
		// is created for a terminated link.
		select {
		case <-p.link.Done():
			p.stopped(i)

			return
		default:
		}

		if pkt, ok := p.link.Send(p.cfg.Priority); ok {
			p.sent.Add(1)
			p.log.Tracef("producer %d: sent packet %d", p.cfg.ID, pkt.ID)
		} else {
			p.lost.Add(1)
			p.log.Debugf("producer %d: lost a %v priority packet", p.cfg.ID, p.cfg.Priority)
		}
		timer.Reset(p.nextInterval())
	}
	p.log.Debugf("producer %d finished, sent %d lost %d", p.cfg.ID, p.sent.Load(), p.lost.Load())
}

func (p *Producer) stopped(created int) {
	p.log.Infof("producer %d: link terminated after %d of %d packets", p.cfg.ID, created, p.cfg.Packets)
}

func (p *Producer) nextInterval() time.Duration {
	if p.cfg.Intervals == nil || p.cfg.MaxInterval <= p.cfg.MinInterval {
		return p.cfg.MinInterval
	}
	lo := int(p.cfg.MinInterval / time.Microsecond)
	hi := int(p.cfg.MaxInterval / time.Microsecond)

	return time.Duration(p.cfg.Intervals.RandInt(lo, hi)) * time.Microsecond
}

// Finished is closed when the producer stopped sending.
func (p *Producer) Finished() <-chan struct{} {
	return p.finished
}

// Sent returns the number of packets the link admitted.
func (p *Producer) Sent() uint64 {
	return p.sent.Load()
}

// Lost returns the number of packets the link rejected.
func (p *Producer) Lost() uint64 {
	return p.lost.Load()
}

// Close stops the producer and waits for its goroutine.
func (p *Producer) Close() error {
	p.closeOnce.Do(func() {
		close(p.done)
	})
	p.wg.Wait()

	return nil
}
