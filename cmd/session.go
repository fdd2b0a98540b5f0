// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/Thermoquad/peristat/internal/config"
	"github.com/Thermoquad/peristat/internal/link"
	"github.com/Thermoquad/peristat/internal/metrics"
	"github.com/Thermoquad/peristat/internal/transport"
	"github.com/Thermoquad/peristat/pkg/masterflex"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// serialReadTimeout bounds each serial Read so cancellation is noticed
const serialReadTimeout = 100 * time.Millisecond

// transportConfig resolves the link settings, prompting for the bridge
// password when a username is set
func transportConfig(cfg *config.Config) (transport.Config, error) {
	tc := transport.Config{
		Port:          cfg.Link.Port,
		Baud:          cfg.Link.Baud,
		ReadTimeout:   serialReadTimeout,
		URL:           cfg.Link.URL,
		Username:      cfg.Link.Username,
		SkipSSLVerify: cfg.Link.NoSSLVerify,
	}
	if tc.URL == "" && tc.Port == "" {
		return tc, errors.New("either --port or --url must be specified")
	}
	if tc.URL != "" && tc.Username != "" {
		password, err := transport.GetPassword()
		if err != nil {
			return tc, err
		}
		tc.Password = password
	}
	return tc, nil
}

// session wires a Client to a reconnecting link with the configured
// statistics, trace and metrics observers
type session struct {
	cfg  *config.Config
	log  logrus.FieldLogger
	info string

	client    *masterflex.Client
	manager   *link.Manager
	stats     *masterflex.Statistics
	collector *metrics.Collector

	traceFile *os.File
	trace     *masterflex.TraceRecorder

	readyOnce sync.Once
	ready     chan struct{}
}

func newSession(cfg *config.Config, log logrus.FieldLogger, reconnect bool, extra ...masterflex.Observer) (*session, error) {
	tc, err := transportConfig(cfg)
	if err != nil {
		return nil, err
	}

	s := &session{
		cfg:   cfg,
		log:   log,
		info:  tc.Describe(),
		stats: masterflex.NewStatistics(),
		ready: make(chan struct{}),
	}

	observers := []masterflex.Observer{s.stats, masterflex.ObserverFunc(s.watchLink)}
	if cfg.Metrics.Addr != "" {
		s.collector = metrics.NewCollector()
		observers = append(observers, s.collector)
	}
	if cfg.Trace != "" {
		f, err := os.Create(cfg.Trace)
		if err != nil {
			return nil, fmt.Errorf("failed to create trace file: %w", err)
		}
		s.traceFile = f
		s.trace = masterflex.NewTraceRecorder(f)
		observers = append(observers, s.trace)
	}
	observers = append(observers, extra...)

	s.client = masterflex.NewClient(
		masterflex.WithAddress(cfg.Link.Address),
		masterflex.WithDiscardTimeout(cfg.Link.DiscardTimeout),
		masterflex.WithResponseTimeout(cfg.Link.ResponseTimeout),
		masterflex.WithLogger(log),
		masterflex.WithObserver(masterflex.Observers(observers...)),
	)

	s.manager = &link.Manager{
		Dial:      transport.Dialer(tc),
		Sink:      s.client.Feed,
		Logger:    log,
		Reconnect: reconnect,
	}
	return s, nil
}

func (s *session) watchLink(ev masterflex.Event) {
	if ev.Kind == masterflex.EventLink && ev.State == masterflex.LinkConnected {
		s.readyOnce.Do(func() { close(s.ready) })
	}
}

// waitReady blocks until the link first connects
func (s *session) waitReady(ctx context.Context) error {
	select {
	case <-s.ready:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// run drives the link and fn together. fn returning ends the session; a
// link failure with reconnect off ends fn through its context.
func (s *session) run(ctx context.Context, fn func(ctx context.Context) error) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	defer s.close()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return s.manager.Run(gctx)
	})
	g.Go(func() error {
		return s.client.Follow(gctx, s.manager.Events())
	})
	if s.collector != nil {
		srv := &metrics.Server{Addr: s.cfg.Metrics.Addr, Collector: s.collector, Logger: s.log}
		g.Go(func() error {
			return srv.Run(gctx)
		})
	}

	var fnErr error
	g.Go(func() error {
		fnErr = fn(gctx)
		cancel()
		return nil
	})

	err := g.Wait()
	switch {
	case fnErr != nil && !errors.Is(fnErr, context.Canceled):
		return fnErr
	case err != nil && !errors.Is(err, context.Canceled):
		return err
	}
	return nil
}

func (s *session) close() {
	if s.traceFile == nil {
		return
	}
	if err := s.trace.Err(); err != nil {
		s.log.WithError(err).Warn("trace recording incomplete")
	}
	if err := s.traceFile.Close(); err != nil {
		s.log.WithError(err).Warn("failed to close trace file")
	}
}
