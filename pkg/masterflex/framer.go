// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package masterflex

import (
	"bytes"
	"sync"
	"time"
)

// Framer reassembles CR/LF delimited frames from a fragmented byte stream.
//
// Bytes after the last delimiter stay buffered until more data arrives. If
// nothing arrives within the discard timeout the partial frame is dropped, so
// line noise or a mis-synced device cannot wedge the stream.
type Framer struct {
	mu      sync.Mutex
	buf     []byte
	clock   Clock
	timeout time.Duration
	timer   Timer
	gen     uint64 // bumped on every schedule/cancel; stale timers compare against it

	onDiscard func(partial []byte)
}

// FramerOption configures a Framer
type FramerOption func(*Framer)

// WithFramerClock sets the clock used for the discard timer
func WithFramerClock(c Clock) FramerOption {
	return func(f *Framer) {
		f.clock = c
	}
}

// WithFramerTimeout sets the discard timeout. Zero disables discarding.
func WithFramerTimeout(d time.Duration) FramerOption {
	return func(f *Framer) {
		f.timeout = d
	}
}

// WithDiscardHandler is called with the dropped bytes whenever a partial
// frame is discarded
func WithDiscardHandler(fn func(partial []byte)) FramerOption {
	return func(f *Framer) {
		f.onDiscard = fn
	}
}

// NewFramer creates a framer with the default 2 second discard timeout
func NewFramer(opts ...FramerOption) *Framer {
	f := &Framer{
		clock:   SystemClock(),
		timeout: DefaultDiscardTimeout,
	}
	for _, o := range opts {
		o(f)
	}
	return f
}

// Feed appends chunk and returns every complete, non-empty frame, trimmed of
// whitespace. Any pending discard is cancelled first; a new one is scheduled
// if an undelimited tail remains.
func (f *Framer) Feed(chunk []byte) []string {
	var (
		frames  []string
		dropped []byte
	)

	f.mu.Lock()
	f.cancelLocked()
	f.buf = append(f.buf, chunk...)

	for {
		i := bytes.IndexAny(f.buf, delimiters)
		if i < 0 {
			break
		}
		if frame := cleanFrame(f.buf[:i]); frame != "" {
			frames = append(frames, frame)
		}
		f.buf = f.buf[i+1:]
	}

	switch {
	case len(f.buf) == 0:
		f.buf = nil
	case len(f.buf) > maxFrameBufferLength:
		dropped = f.buf
		f.buf = nil
	default:
		f.scheduleLocked()
	}
	f.mu.Unlock()

	if dropped != nil && f.onDiscard != nil {
		f.onDiscard(dropped)
	}
	return frames
}

// Buffered returns a copy of the undelimited bytes held
func (f *Framer) Buffered() []byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]byte(nil), f.buf...)
}

// Pending reports whether a discard timer is scheduled
func (f *Framer) Pending() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.timer != nil
}

// Reset drops buffered bytes and cancels the discard timer
func (f *Framer) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cancelLocked()
	f.buf = nil
}

func (f *Framer) cancelLocked() {
	if f.timer != nil {
		f.timer.Stop()
		f.timer = nil
	}
	f.gen++
}

func (f *Framer) scheduleLocked() {
	if f.timeout <= 0 {
		return
	}
	f.gen++
	gen := f.gen
	f.timer = f.clock.AfterFunc(f.timeout, func() {
		f.discard(gen)
	})
}

// discard fires from the timer; a timer superseded by newer data is a no-op
func (f *Framer) discard(gen uint64) {
	f.mu.Lock()
	if gen != f.gen || len(f.buf) == 0 {
		f.mu.Unlock()
		return
	}
	dropped := f.buf
	f.buf = nil
	f.timer = nil
	f.mu.Unlock()

	if f.onDiscard != nil {
		f.onDiscard(dropped)
	}
}
