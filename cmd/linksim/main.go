// SPDX-FileCopyrightText: 2026 The Pion community <https://pion.ly>
// SPDX-License-Identifier: MIT

// Command linksim runs priority link simulations and prints the queueing
// delay statistics of every run.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/pion/linksim/simulation"
	"github.com/pion/logging"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "linksim: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	configPath := flag.String("config", "", "YAML file describing the simulation runs")
	runs := flag.Int("runs", 0, "repeat the first configured run this many times")
	outputDir := flag.String("output", "", "directory receiving the trace files")
	runTime := flag.Duration("run-time", 0, "override the run time of every run")
	metricsAddr := flag.String("metrics-addr", "", "serve Prometheus metrics on this address, e.g. :9090")
	flag.Parse()

	env := simulation.DefaultEnvironment()
	if *configPath != "" {
		var err error
		if env, err = simulation.LoadEnvironment(*configPath); err != nil {
			return err
		}
	}
	if *outputDir != "" {
		env.OutputDir = *outputDir
	}
	if *runs > 0 {
		first := env.Runs[0]
		env.Runs = make([]simulation.Config, *runs)
		for i := range env.Runs {
			env.Runs[i] = first
		}
	}
	if *runTime > 0 {
		for i := range env.Runs {
			env.Runs[i].RunTime = *runTime
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	loggerFactory := logging.NewDefaultLoggerFactory()
	log := loggerFactory.NewLogger("linksim")
	opts := []simulation.Option{simulation.WithLoggerFactory(loggerFactory)}

	if *metricsAddr != "" {
		reg := prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		opts = append(opts, simulation.WithRegisterer(reg))

		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
		srv := &http.Server{Addr: *metricsAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Errorf("metrics server: %v", err)
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				log.Warnf("shutdown metrics server: %v", err)
			}
		}()
		log.Infof("serving metrics on %s/metrics", *metricsAddr)
	}

	sim, err := simulation.New(env, opts...)
	if err != nil {
		return err
	}
	results, runErr := sim.RunAll(ctx)
	for _, res := range results {
		fmt.Fprintln(os.Stdout)
		if _, err := res.WriteTo(os.Stdout); err != nil {
			return err
		}
	}

	return runErr
}
