// Copyright (C) 2026 The Syncthing Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

// Command srcwatch prints coalesced file system changes below the
// configured and given directories.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/alecthomas/kong"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/srcwatch/srcwatch/lib/automaxprocs"
	"github.com/srcwatch/srcwatch/lib/config"
	"github.com/srcwatch/srcwatch/lib/engine"
	"github.com/srcwatch/srcwatch/lib/events"
	"github.com/srcwatch/srcwatch/lib/logger"
	"github.com/srcwatch/srcwatch/lib/svcutil"
	"github.com/srcwatch/srcwatch/lib/watch"
)

var Version = "unknown-dev"

var l = logger.DefaultLogger.NewFacility("main", "Main package")

type cli struct {
	Config        string        `help:"Configuration file" short:"c" type:"existingfile" env:"SRCWATCH_CONFIG"`
	Roots         []string      `arg:"" optional:"" help:"Directories to watch in addition to the configured roots" type:"path"`
	Pattern       []string      `help:"Patterns for the directories given as arguments" default:"**"`
	Delay         time.Duration `help:"Debounce delay, overriding the configuration"`
	MonitorMode   string        `help:"Change notification mechanism: auto, native or poll"`
	LogFile       string        `help:"Also write log lines to this file, which is never reported" type:"path"`
	MetricsListen string        `help:"Serve prometheus metrics on this address"`
	JSON          bool          `help:"Print events as JSON lines"`
	Verbose       bool          `help:"Print lifecycle events" short:"v"`
	Version       kong.VersionFlag
}

func main() {
	var params cli
	kong.Parse(&params,
		kong.Description("Prints coalesced file system changes."),
		kong.Vars{"version": Version},
	)

	status := run(params)
	os.Exit(status.AsInt())
}

func run(params cli) svcutil.ExitStatus {
	defer automaxprocs.Set()()

	cfg, err := loadConfig(params)
	if err != nil {
		l.Warnln("Configuration:", err)
		return svcutil.ExitError
	}

	if cfg.Options.LogFile != "" {
		fd, err := os.OpenFile(cfg.Options.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			l.Warnln("Opening log file:", err)
			return svcutil.ExitError
		}
		defer fd.Close()
		logger.DefaultLogger.AddHandler(logger.LevelInfo, logger.NewFileHandler(fd))
	}

	if cfg.Options.MetricsListen != "" {
		go serveMetrics(cfg.Options.MetricsListen)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	evLogger := events.NewLogger()
	if params.Verbose {
		go printLifecycle(ctx, evLogger)
	}

	e := engine.New(cfg, engine.WithEvents(evLogger))
	if err := e.Start(ctx); err != nil {
		l.Warnln("Starting:", err)
		return svcutil.ExitError
	}

	p := newPrinter(os.Stdout, params.JSON)
	watched := 0
	for _, root := range cfg.Roots {
		for _, pattern := range root.Patterns {
			name := fmt.Sprintf("%s:%s", root.Path, pattern)
			_, err := e.Watch(root.Path, pattern, p.listener(name, pattern), watch.WithDelay(root.Delay(cfg.Options)))
			if err != nil {
				l.Warnln(err)
				continue
			}
			watched++
		}
	}

	status := svcutil.ExitSuccess
	if watched == 0 {
		l.Warnln("Nothing to watch")
		status = svcutil.ExitError
		cancel()
	} else {
		l.Infof("Watching %d patterns with the %s monitor", watched, e.MonitorName())
	}

	<-ctx.Done()
	if err := e.Stop(cfg.Options.ShutdownTimeout()); err != nil {
		l.Warnln("Shutdown:", err)
		return svcutil.ExitStatusFor(err)
	}
	return status
}

// loadConfig reads the configuration file, when given, and applies the
// command line on top.
func loadConfig(params cli) (config.Configuration, error) {
	cfg := config.New()
	if params.Config != "" {
		var err error
		cfg, err = config.Load(params.Config)
		if err != nil {
			return cfg, err
		}
	}

	for _, path := range params.Roots {
		cfg.Roots = append(cfg.Roots, config.RootConfiguration{
			Path:     path,
			Patterns: params.Pattern,
		})
	}
	if params.Delay > 0 {
		cfg.Options.DebounceDelayS = params.Delay.Seconds()
		for i := range cfg.Roots {
			cfg.Roots[i].DebounceDelayS = 0
		}
	}
	if params.MonitorMode != "" {
		if err := cfg.Options.MonitorMode.UnmarshalText([]byte(params.MonitorMode)); err != nil {
			return cfg, err
		}
	}
	if params.LogFile != "" {
		abs, err := filepath.Abs(params.LogFile)
		if err != nil {
			return cfg, err
		}
		cfg.Options.LogFile = abs
	}
	if params.MetricsListen != "" {
		cfg.Options.MetricsListen = params.MetricsListen
	}
	return cfg, nil
}

func serveMetrics(addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	l.Infoln("Serving metrics on", addr)
	if err := http.ListenAndServe(addr, mux); err != nil && !errors.Is(err, http.ErrServerClosed) {
		l.Warnln("Metrics listener:", err)
	}
}

func printLifecycle(ctx context.Context, evLogger *events.Logger) {
	sub := evLogger.Subscribe(events.AllEvents)
	defer evLogger.Unsubscribe(sub)
	for {
		select {
		case ev, ok := <-sub.C():
			if !ok {
				return
			}
			l.Infof("%v: %v", ev.Type, ev.Data)
		case <-ctx.Done():
			return
		}
	}
}
