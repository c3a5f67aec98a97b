// Copyright 2016 Tom Thorogood. All rights reserved.
// Use of this source code is governed by a
// Modified BSD License license that can be found in
// the LICENSE file.

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/risingape/producer-consumer/internal/config"
	"github.com/risingape/producer-consumer/internal/consumer"
	"github.com/risingape/producer-consumer/internal/producer"
	"github.com/risingape/producer-consumer/internal/session"
	"github.com/risingape/producer-consumer/internal/slot"
)

const (
	exitOK       = 0
	exitFailure  = 1
	exitSignaled = 3
)

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "", "path to YAML configuration file")
	role := flag.String("role", "consumer", "consumer/producer")
	frames := flag.Int("frames", 0, "float32 values per frame (overrides config)")
	iterations := flag.Int("iterations", -1, "frames to handle, 0 runs until signalled (overrides config)")
	namespace := flag.String("namespace", "", `prefix for the default object names, "new" generates one`)
	waitTimeout := flag.Duration("wait-timeout", -1, "bound on each gate wait, 0 blocks forever (overrides config)")
	unlink := flag.Bool("unlink", false, "unlink every shared object and exit")
	debug := flag.Bool("debug", false, "enable debug logging")
	flag.Parse()

	logLevel := slog.LevelInfo
	if *debug {
		logLevel = slog.LevelDebug
	}

	log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(log)

	var r slot.Role
	switch *role {
	case "consumer":
		r = slot.Consumer
	case "producer":
		r = slot.Producer
	default:
		flag.PrintDefaults()
		return exitFailure
	}

	cfg, err := loadConfig(*configPath, *frames, *iterations, *namespace, *waitTimeout)
	if err != nil {
		log.Error("configuration failed", "error", err)
		return exitFailure
	}

	if *namespace == "new" {
		// The peer needs this to find the objects.
		fmt.Fprintln(os.Stderr, "namespace:", cfg.Namespace)
	}

	if *unlink {
		if err := session.Release(cfg.Slots, log); err != nil {
			log.Error("unlink failed", "error", err)
			return exitFailure
		}

		return exitOK
	}

	ctx, stop := session.Trap(context.Background())
	defer stop()

	log.Info("starting",
		"role", r,
		"frame_count", cfg.FrameCount,
		"iteration_count", cfg.IterationCount,
		"slots", len(cfg.Slots),
	)

	s, err := session.Acquire(cfg.Slots, cfg.FrameCount, r, log)
	if err != nil {
		log.Error("acquire failed", "error", err)
		return exitFailure
	}

	var opts []slot.Option
	if cfg.WaitTimeout > 0 {
		opts = append(opts, slot.WithWaitTimeout(cfg.WaitTimeout))
	}

	if r == slot.Consumer {
		err = consume(ctx, s, cfg, opts, log)
	} else {
		err = produce(ctx, s, cfg, opts, log)
	}

	return finish(s, err, log)
}

func loadConfig(path string, frames, iterations int, namespace string, waitTimeout time.Duration) (*config.Config, error) {
	cfg := config.Default()
	if path != "" {
		var err error
		if cfg, err = config.Load(path); err != nil {
			return nil, err
		}
	}

	if frames > 0 {
		cfg.FrameCount = frames
	}

	if iterations >= 0 {
		cfg.IterationCount = iterations
	}

	if waitTimeout >= 0 {
		cfg.WaitTimeout = waitTimeout
	}

	switch namespace {
	case "":
	case "new":
		cfg.Namespace, cfg.Slots = session.NewNamespace(), nil
	default:
		cfg.Namespace, cfg.Slots = namespace, nil
	}

	if err := config.Validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

func consume(ctx context.Context, s *session.Session, cfg *config.Config, opts []slot.Option, log *slog.Logger) error {
	l, err := consumer.New(s, consumer.NewTextSink(os.Stdout), cfg.IterationCount, opts...)
	if err != nil {
		return err
	}
	l.Log = log

	return l.Run(ctx)
}

func produce(ctx context.Context, s *session.Session, cfg *config.Config, opts []slot.Option, log *slog.Logger) error {
	p, err := producer.New(s, producer.Ramp, cfg.IterationCount, opts...)
	if err != nil {
		return err
	}
	p.Log = log

	return p.Run(ctx)
}

// finish tears the session down according to how the run ended and returns
// the exit code.
func finish(s *session.Session, err error, log *slog.Logger) int {
	var sig *session.SignalError
	switch {
	case errors.As(err, &sig):
		log.Warn("terminating", "reason", sig)

		// Best effort: the exit code reports the signal either way.
		if err := s.Release(); err != nil {
			log.Error("release failed", "error", err)
		}
		s.Close()

		return exitSignaled
	case err != nil:
		log.Error("run failed", "error", err)
		s.Close()
		return exitFailure
	}

	code := exitOK

	// The consumer owns the names on a clean exit; the producer only drops
	// its handles so the consumer can still drain.
	if s.Role() == slot.Consumer {
		if err := s.Release(); err != nil {
			log.Error("release failed", "error", err)
			code = exitFailure
		}
	}

	if err := s.Close(); err != nil {
		log.Error("close failed", "error", err)
		code = exitFailure
	}

	if code == exitOK {
		log.Info("done")
	}

	return code
}
