// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package masterflex

import (
	"fmt"
	"sync"
	"time"
)

// Counters is a point-in-time copy of the statistics
type Counters struct {
	StartTime      time.Time
	LastUpdateTime time.Time

	// Counters
	Sent            uint64
	Replies         uint64
	DataReplies     uint64
	Acknowledged    uint64
	Invalid         uint64
	NotInSerialMode uint64
	NotPumpMessage  uint64
	Rejected        uint64
	Timeouts        uint64
	Canceled        uint64
	Unsolicited     uint64
	Discards        uint64
	LinkDrops       uint64

	// Round trip
	TotalLatency time.Duration
	MaxLatency   time.Duration

	// Rates (calculated)
	CommandRate float64 // commands/sec
	ErrorRate   float64 // errors/sec
}

// Statistics tracks command exchanges and error rates. It implements
// Observer and is safe for concurrent use.
type Statistics struct {
	mu sync.Mutex
	Counters
}

// NewStatistics creates a new statistics tracker
func NewStatistics() *Statistics {
	now := time.Now()
	return &Statistics{Counters: Counters{
		StartTime:      now,
		LastUpdateTime: now,
	}}
}

// Observe updates counters from a protocol event
func (s *Statistics) Observe(ev Event) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch ev.Kind {
	case EventSent:
		s.Sent++
	case EventReceived:
		s.Replies++
		s.TotalLatency += ev.Latency
		if ev.Latency > s.MaxLatency {
			s.MaxLatency = ev.Latency
		}
		if ev.Result != nil {
			switch ev.Result.Status {
			case StatusData:
				s.DataReplies++
			case StatusOK:
				s.Acknowledged++
			case StatusInvalid:
				s.Invalid++
			case StatusNotInSerialMode:
				s.NotInSerialMode++
			case StatusNotPumpMessage:
				s.NotPumpMessage++
			}
		}
	case EventRejected:
		s.Rejected++
	case EventTimeout:
		s.Timeouts++
	case EventCanceled:
		s.Canceled++
	case EventUnsolicited:
		s.Unsolicited++
	case EventDiscarded:
		s.Discards++
	case EventLink:
		if ev.State == LinkDisconnected {
			s.LinkDrops++
		}
	}

	s.LastUpdateTime = time.Now()
}

// errorsLocked counts every exchange that did not end in a clean reply
func (s *Statistics) errorsLocked() uint64 {
	return s.Invalid + s.NotInSerialMode + s.NotPumpMessage + s.Timeouts + s.Unsolicited + s.Discards
}

// CalculateRates calculates command and error rates
func (s *Statistics) CalculateRates() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calculateRatesLocked()
}

func (s *Statistics) calculateRatesLocked() {
	elapsed := time.Since(s.StartTime).Seconds()
	if elapsed > 0 {
		s.CommandRate = float64(s.Sent) / elapsed
		s.ErrorRate = float64(s.errorsLocked()) / elapsed
	}
}

// AverageLatency returns the mean round trip of answered commands
func (s *Statistics) AverageLatency() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Replies == 0 {
		return 0
	}
	return s.TotalLatency / time.Duration(s.Replies)
}

// Snapshot returns a copy of the counters
func (s *Statistics) Snapshot() Counters {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calculateRatesLocked()
	return s.Counters
}

// String returns a formatted statistics summary
func (s *Statistics) String() string {
	snap := s.Snapshot()

	var answeredPercent float64
	if snap.Sent > 0 {
		answeredPercent = float64(snap.Replies) * 100.0 / float64(snap.Sent)
	}
	var avg time.Duration
	if snap.Replies > 0 {
		avg = snap.TotalLatency / time.Duration(snap.Replies)
	}

	elapsed := time.Since(snap.StartTime)

	result := fmt.Sprintf("=== Statistics (%.0f seconds) ===\n", elapsed.Seconds())
	result += fmt.Sprintf("Commands Sent:   %8d\n", snap.Sent)
	result += fmt.Sprintf("Replies:         %8d (%.1f%%)\n", snap.Replies, answeredPercent)
	result += fmt.Sprintf("  Data:             %5d\n", snap.DataReplies)
	result += fmt.Sprintf("  OK:               %5d\n", snap.Acknowledged)

	if snap.Invalid > 0 {
		result += fmt.Sprintf("  Invalid:          %5d\n", snap.Invalid)
	}
	if snap.NotInSerialMode > 0 {
		result += fmt.Sprintf("  Not Serial Mode:  %5d\n", snap.NotInSerialMode)
	}
	if snap.NotPumpMessage > 0 {
		result += fmt.Sprintf("  Not Pump Message: %5d\n", snap.NotPumpMessage)
	}
	if snap.Rejected > 0 {
		result += fmt.Sprintf("Rejected Params: %8d\n", snap.Rejected)
	}
	if snap.Timeouts > 0 {
		result += fmt.Sprintf("Timeouts:        %8d\n", snap.Timeouts)
	}
	if snap.Canceled > 0 {
		result += fmt.Sprintf("Canceled:        %8d\n", snap.Canceled)
	}
	if snap.Unsolicited > 0 {
		result += fmt.Sprintf("Unsolicited:     %8d\n", snap.Unsolicited)
	}
	if snap.Discards > 0 {
		result += fmt.Sprintf("Discarded:       %8d\n", snap.Discards)
	}
	if snap.LinkDrops > 0 {
		result += fmt.Sprintf("Link Drops:      %8d\n", snap.LinkDrops)
	}

	result += fmt.Sprintf("Avg Round Trip:  %8s\n", avg.Round(time.Millisecond))
	result += fmt.Sprintf("Max Round Trip:  %8s\n", snap.MaxLatency.Round(time.Millisecond))
	result += fmt.Sprintf("Command Rate:    %8.1f cmds/sec\n", snap.CommandRate)
	result += fmt.Sprintf("Error Rate:      %8.1f errors/sec\n", snap.ErrorRate)
	result += "================================\n"

	return result
}

// Reset resets all statistics counters
func (s *Statistics) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	s.Counters = Counters{
		StartTime:      now,
		LastUpdateTime: now,
	}
}
