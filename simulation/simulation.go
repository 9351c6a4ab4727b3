// SPDX-FileCopyrightText: 2026 The Pion community <https://pion.ly>
// SPDX-License-Identifier: MIT

// Package simulation runs producers against a priority link, records the
// trace of every run and reconciles it into delay statistics.
package simulation

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"sync"

	"github.com/iti/rngstream"
	"github.com/pion/linksim"
	"github.com/pion/linksim/link"
	"github.com/pion/linksim/stats"
	"github.com/pion/linksim/trace"
	"github.com/pion/logging"
	"github.com/prometheus/client_golang/prometheus"
)

// streamMu serializes access to the package seed of rngstream, which every
// new stream advances.
var streamMu sync.Mutex //nolint:gochecknoglobals

// Option is a functional option for a Simulator.
type Option func(*Simulator) error

// WithLoggerFactory configures a custom logger factory for the simulator and
// every component it creates.
func WithLoggerFactory(lf logging.LoggerFactory) Option {
	return func(s *Simulator) error {
		s.logFactory = lf

		return nil
	}
}

// WithRegisterer exports link metrics of all runs to reg.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(s *Simulator) error {
		s.registerer = reg

		return nil
	}
}

// WithIntervalSources replaces the random streams of the producers. newSource
// is called once per producer.
func WithIntervalSources(newSource func(name string) IntervalSource) Option {
	return func(s *Simulator) error {
		s.newSource = newSource

		return nil
	}
}

// Result is the outcome of one run.
type Result struct {
	Index     int
	Config    Config
	TracePath string
	Sent      uint64
	Lost      uint64
	Report    stats.Report

	// Interrupted is set when the link stopped before the run time elapsed.
	// Report then covers the part of the trace recorded until then.
	Interrupted bool
}

// WriteTo writes the run parameters followed by the statistics table.
func (r Result) WriteTo(w io.Writer) (int64, error) {
	interval, _ := r.Config.LinkServiceInterval()
	n, err := fmt.Fprintf(w,
		"simulation %d: %d clients (%d priority), %d packets each, send interval %v..%v\n"+
			"link: %v per packet, queue size %d, run time %v, trace %s\n"+
			"producers: %d sent, %d lost\n",
		r.Index, r.Config.Clients, r.Config.PriorityClients, r.Config.PacketsPerClient,
		r.Config.MinSendInterval, r.Config.MaxSendInterval,
		interval, r.Config.QueueSize, r.Config.RunTime, r.TracePath,
		r.Sent, r.Lost)
	if err != nil {
		return int64(n), err
	}
	if r.Interrupted {
		k, err := fmt.Fprintln(w, "run interrupted, partial statistics")
		n += k
		if err != nil {
			return int64(n), err
		}
	}
	m, err := r.Report.WriteTo(w)

	return int64(n) + m, err
}

// Simulator executes the runs of an Environment.
type Simulator struct {
	logFactory logging.LoggerFactory
	log        logging.LeveledLogger
	registerer prometheus.Registerer
	metrics    *link.Metrics
	newSource  func(name string) IntervalSource
	env        Environment
}

// New creates a Simulator for env.
func New(env Environment, opts ...Option) (*Simulator, error) {
	if err := env.Validate(); err != nil {
		return nil, err
	}
	s := &Simulator{
		logFactory: logging.NewDefaultLoggerFactory(),
		env:        env,
	}
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}
	s.log = s.logFactory.NewLogger("linksim_simulation")
	if s.registerer != nil {
		s.metrics = link.NewMetrics(s.registerer)
	}

	return s, nil
}

// TracePath returns the trace file of run i.
func (s *Simulator) TracePath(i int) string {
	return filepath.Join(s.env.OutputDir, fmt.Sprintf("output_%d.txt", i))
}

// RunAll executes every run of the environment one after another. It stops
// at the first failing run and returns the results collected so far,
// including the partial result of an interrupted run.
func (s *Simulator) RunAll(ctx context.Context) ([]Result, error) {
	results := make([]Result, 0, len(s.env.Runs))
	for i, cfg := range s.env.Runs {
		res, err := s.Run(ctx, i, cfg)
		if err != nil {
			if res.Interrupted {
				results = append(results, res)
			}

			return results, fmt.Errorf("simulation: run %d: %w", i, err)
		}
		results = append(results, res)
	}

	return results, nil
}

// Run executes a single run: producers send until they are done or the link
// terminates after the run time, then the trace is reconciled. If the link
// stopped early, because ctx was cancelled or recording failed, the recorded
// part of the trace is still reconciled and returned along with the error.
func (s *Simulator) Run(ctx context.Context, index int, cfg Config) (Result, error) {
	if err := cfg.Validate(); err != nil {
		return Result{}, err
	}
	interval, err := cfg.LinkServiceInterval()
	if err != nil {
		return Result{}, err
	}
	res := Result{Index: index, Config: cfg, TracePath: s.TracePath(index)}

	w, err := trace.Create(res.TracePath)
	if err != nil {
		return res, err
	}
	scheduler, err := link.NewScheduler(w,
		link.WithLoggerFactory(s.logFactory),
		link.WithServiceInterval(interval),
		link.WithRunTime(cfg.RunTime),
		link.WithQueueCapacity(cfg.QueueSize),
		link.WithMetrics(s.metrics),
		link.WithProgressInterval(s.env.ProgressPercent),
	)
	if err != nil {
		return res, errors.Join(err, w.Close())
	}

	producers := s.newProducers(scheduler, cfg)
	s.log.Infof("run %d: %d producers, service interval %v, trace %s", index, len(producers), interval, res.TracePath)

	runErr := make(chan error, 1)
	go func() {
		runErr <- scheduler.Run(ctx)
	}()
	for _, p := range producers {
		p.Start()
	}

	err = <-runErr
	for _, p := range producers {
		_ = p.Close()
		res.Sent += p.Sent()
		res.Lost += p.Lost()
	}
	if err == nil {
		res.Report, err = s.reconcile(ctx, cfg, res.TracePath)
		if err != nil {
			return res, err
		}
		s.log.Infof("run %d: %d sent, %d lost, %d anomalies", index, res.Sent, res.Lost, res.Report.Anomalies.Total())

		return res, nil
	}

	// The scheduler closed the trace before returning, so whatever it
	// recorded can still be reconciled.
	s.log.Warnf("run %d interrupted: %v", index, err)
	report, rerr := s.reconcile(context.WithoutCancel(ctx), cfg, res.TracePath)
	if rerr != nil {
		return res, errors.Join(err, rerr)
	}
	res.Report = report
	res.Interrupted = true

	return res, err
}

func (s *Simulator) reconcile(ctx context.Context, cfg Config, path string) (stats.Report, error) {
	reconciler, err := stats.NewReconciler(
		stats.WithLoggerFactory(s.logFactory),
		stats.WithChunkSize(s.env.ChunkSize),
		stats.WithStreamingThreshold(s.env.StreamingThreshold),
		stats.WithDelayThreshold(cfg.DelayThreshold),
	)
	if err != nil {
		return stats.Report{}, err
	}

	return reconciler.ReconcileFile(ctx, path)
}

func (s *Simulator) newProducers(l Link, cfg Config) []*Producer {
	newSource := s.newSource
	if newSource == nil {
		newSource = func(name string) IntervalSource {
			return rngstream.New(name)
		}
	}

	streamMu.Lock()
	defer streamMu.Unlock()
	if cfg.Seed != 0 {
		rngstream.SetRngStreamMasterSeed(cfg.Seed)
	}

	producers := make([]*Producer, cfg.Clients)
	for i := range producers {
		priority := linksim.PriorityLow
		if i < cfg.PriorityClients {
			priority = linksim.PriorityHigh
		}
		producers[i] = NewProducer(l, ProducerConfig{
			ID:            i,
			Priority:      priority,
			Packets:       cfg.PacketsPerClient,
			MinInterval:   cfg.MinSendInterval,
			MaxInterval:   cfg.MaxSendInterval,
			Intervals:     newSource(fmt.Sprintf("client_%d", i)),
			LoggerFactory: s.logFactory,
		})
	}

	return producers
}
