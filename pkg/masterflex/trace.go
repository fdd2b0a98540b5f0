// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package masterflex

import (
	"errors"
	"io"
	"sync"
	"time"

	"github.com/fxamacker/cbor/v2"
)

// TraceRecord is the CBOR form of an Event
type TraceRecord struct {
	UnixNano  int64                  `cbor:"0,keyasint"`
	Kind      string                 `cbor:"1,keyasint"`
	Command   string                 `cbor:"2,keyasint,omitempty"`
	Frame     string                 `cbor:"3,keyasint,omitempty"`
	Result    map[string]interface{} `cbor:"4,keyasint,omitempty"`
	LatencyUs int64                  `cbor:"5,keyasint,omitempty"`
	State     string                 `cbor:"6,keyasint,omitempty"`
	Error     string                 `cbor:"7,keyasint,omitempty"`
}

// Time returns the record timestamp
func (r TraceRecord) Time() time.Time {
	return time.Unix(0, r.UnixNano)
}

// NewTraceRecord converts an event
func NewTraceRecord(ev Event) TraceRecord {
	rec := TraceRecord{
		UnixNano:  ev.Time.UnixNano(),
		Kind:      ev.Kind.String(),
		Frame:     ev.Frame,
		LatencyUs: ev.Latency.Microseconds(),
	}
	switch ev.Kind {
	case EventLink:
		rec.State = ev.State.String()
	case EventUnsolicited, EventDiscarded:
	default:
		rec.Command = ev.Command.String()
	}
	if ev.Result != nil {
		rec.Result = ev.Result.Map()
	}
	if ev.Err != nil {
		rec.Error = ev.Err.Error()
	}
	return rec
}

// TraceRecorder writes every observed event as a CBOR data item, producing
// a CBOR sequence that ReadTrace can replay
type TraceRecorder struct {
	mu  sync.Mutex
	enc *cbor.Encoder
	err error
}

// NewTraceRecorder creates a recorder writing to w
func NewTraceRecorder(w io.Writer) *TraceRecorder {
	return &TraceRecorder{enc: cbor.NewEncoder(w)}
}

// Observe implements Observer
func (t *TraceRecorder) Observe(ev Event) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.err != nil {
		return
	}
	t.err = t.enc.Encode(NewTraceRecord(ev))
}

// Err returns the first write error, after which recording stops
func (t *TraceRecorder) Err() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.err
}

// ReadTrace decodes records until EOF, calling fn for each
func ReadTrace(r io.Reader, fn func(TraceRecord) error) error {
	dec := cbor.NewDecoder(r)
	for {
		var rec TraceRecord
		if err := dec.Decode(&rec); err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
		if err := fn(rec); err != nil {
			return err
		}
	}
}
