// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package masterflex

import "time"

// EventKind classifies protocol events
type EventKind int

const (
	EventSent EventKind = iota
	EventReceived
	EventRejected
	EventTimeout
	EventCanceled
	EventUnsolicited
	EventDiscarded
	EventLink
)

func (k EventKind) String() string {
	switch k {
	case EventSent:
		return "sent"
	case EventReceived:
		return "received"
	case EventRejected:
		return "rejected"
	case EventTimeout:
		return "timeout"
	case EventCanceled:
		return "canceled"
	case EventUnsolicited:
		return "unsolicited"
	case EventDiscarded:
		return "discarded"
	case EventLink:
		return "link"
	default:
		return "unknown"
	}
}

// Event is one observable step of a command exchange
type Event struct {
	Time    time.Time
	Kind    EventKind
	Command Command
	Frame   string
	Result  *Result
	Latency time.Duration
	State   LinkState
	Err     error
}

// Observer receives protocol events. Observe is called synchronously from
// the invoking goroutine or the reader goroutine and must not block.
type Observer interface {
	Observe(Event)
}

// ObserverFunc adapts a function to Observer
type ObserverFunc func(Event)

// Observe calls fn(ev)
func (fn ObserverFunc) Observe(ev Event) {
	fn(ev)
}

type multiObserver []Observer

func (m multiObserver) Observe(ev Event) {
	for _, o := range m {
		o.Observe(ev)
	}
}

// Observers fans events out to every non-nil observer
func Observers(obs ...Observer) Observer {
	var m multiObserver
	for _, o := range obs {
		if o != nil {
			m = append(m, o)
		}
	}
	return m
}
