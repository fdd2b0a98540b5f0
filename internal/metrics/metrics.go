// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package metrics exports protocol events as Prometheus metrics
package metrics

import (
	"context"
	"errors"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/Thermoquad/peristat/pkg/masterflex"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

const namespace = "peristat"

// Collector is a masterflex.Observer backed by its own registry
type Collector struct {
	Registry *prometheus.Registry

	events     *prometheus.CounterVec
	replies    *prometheus.CounterVec
	roundTrip  *prometheus.HistogramVec
	linkState  prometheus.Gauge
	linkDrops  prometheus.Counter
	discarded  prometheus.Counter
	lastChange prometheus.Gauge

	state atomic.Int32
}

func NewCollector() *Collector {
	c := &Collector{
		Registry: prometheus.NewRegistry(),
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_total",
			Help:      "Protocol events by kind and command.",
		}, []string{"kind", "command"}),
		replies: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "replies_total",
			Help:      "Decoded pump replies by command and status.",
		}, []string{"command", "status"}),
		roundTrip: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "round_trip_seconds",
			Help:      "Time from writing a command to its reply.",
			Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5},
		}, []string{"command"}),
		linkState: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "link_state",
			Help:      "0 disconnected, 1 connecting, 2 connected.",
		}),
		linkDrops: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "link_drops_total",
			Help:      "Transitions from connected to any other state.",
		}),
		discarded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "discarded_frames_total",
			Help:      "Partial frames dropped by the discard timer.",
		}),
		lastChange: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "link_state_changed_timestamp_seconds",
			Help:      "Unix time of the last link state change.",
		}),
	}

	c.Registry.MustRegister(
		c.events,
		c.replies,
		c.roundTrip,
		c.linkState,
		c.linkDrops,
		c.discarded,
		c.lastChange,
		collectors.NewGoCollector(),
	)
	return c
}

// Observe implements masterflex.Observer
func (c *Collector) Observe(ev masterflex.Event) {
	switch ev.Kind {
	case masterflex.EventLink:
		c.events.WithLabelValues(ev.Kind.String(), "").Inc()
		next := linkValue(ev.State)
		prev := c.state.Swap(next)
		c.linkState.Set(float64(next))
		if prev == linkValue(masterflex.LinkConnected) && next != prev {
			c.linkDrops.Inc()
		}
		c.lastChange.Set(float64(eventTime(ev).UnixNano()) / 1e9)
	case masterflex.EventUnsolicited:
		c.events.WithLabelValues(ev.Kind.String(), "").Inc()
	case masterflex.EventDiscarded:
		c.events.WithLabelValues(ev.Kind.String(), "").Inc()
		c.discarded.Inc()
	case masterflex.EventReceived:
		cmd := ev.Command.String()
		c.events.WithLabelValues(ev.Kind.String(), cmd).Inc()
		if ev.Result != nil {
			c.replies.WithLabelValues(cmd, string(ev.Result.Status)).Inc()
		}
		c.roundTrip.WithLabelValues(cmd).Observe(ev.Latency.Seconds())
	default:
		c.events.WithLabelValues(ev.Kind.String(), ev.Command.String()).Inc()
	}
}

func linkValue(s masterflex.LinkState) int32 {
	switch s {
	case masterflex.LinkConnecting:
		return 1
	case masterflex.LinkConnected:
		return 2
	default:
		return 0
	}
}

func eventTime(ev masterflex.Event) time.Time {
	if ev.Time.IsZero() {
		return time.Now()
	}
	return ev.Time
}

// Server serves /metrics and /health
type Server struct {
	Addr      string
	Collector *Collector
	Logger    logrus.FieldLogger
}

// Handler returns the HTTP routes
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(s.Collector.Registry, promhttp.HandlerOpts{}))
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})
	return mux
}

// Run serves until ctx is done
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	log := s.Logger
	if log == nil {
		log = logrus.StandardLogger()
	}

	errCh := make(chan error, 1)
	go func() {
		log.WithField("addr", s.Addr).Info("metrics server listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}
