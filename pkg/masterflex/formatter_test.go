package masterflex

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func TestFormatFrame(t *testing.T) {
	tests := []struct {
		in   []byte
		want string
	}{
		{[]byte("1RC\r"), `1RC\r`},
		{[]byte("*\r\n"), `*\r\n`},
		{[]byte{0x01, 'A', 0xFF}, `\x01A\xFF`},
	}
	for _, tt := range tests {
		if got := FormatFrame(tt.in); got != tt.want {
			t.Errorf("FormatFrame(%q) = %s, want %s", tt.in, got, tt.want)
		}
	}
}

func TestFormatResult(t *testing.T) {
	tests := []struct {
		name string
		r    Result
		want string
	}{
		{"ack", Decode(mutate(CmdStart), "*"), "OK"},
		{"invalid", Decode(query(CmdStatus), "x"), "Invalid: Invalid data format"},
		{"status", Decode(query(CmdStatus), "1,0,1"), "data address=1 direction=ccw motor_status=stopped"},
		{"volume", Decode(query(CmdVolume), "2.5 ml"), "data unit=ml volume=2.5"},
		{"model", Decode(query(CmdModelAndVersion), "7550-50 2"), "data Model=7550-50 SerialComm Version=2"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := FormatResult(tt.r); got != tt.want {
				t.Errorf("FormatResult = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestFormatEvent(t *testing.T) {
	ts := time.Date(2025, 1, 1, 12, 30, 45, 123000000, time.UTC)
	res := Decode(query(CmdSpeedPercent), "25.0")

	tests := []struct {
		ev       Event
		contains []string
	}{
		{Event{Time: ts, Kind: EventSent, Command: CmdSpeedPercent, Frame: "1S"}, []string{"12:30:45.123", ">>", "SPEEDP", "1S"}},
		{Event{Time: ts, Kind: EventReceived, Command: CmdSpeedPercent, Frame: "25.0", Result: &res, Latency: 12 * time.Millisecond}, []string{"<<", "speed=25", "(12ms)"}},
		{Event{Time: ts, Kind: EventTimeout, Command: CmdStatus}, []string{"STATUS", "timeout"}},
		{Event{Time: ts, Kind: EventUnsolicited, Frame: "*"}, []string{"unsolicited", `"*"`}},
		{Event{Time: ts, Kind: EventLink, State: LinkDisconnected, Err: errors.New("eof")}, []string{"link disconnected: eof"}},
	}
	for _, tt := range tests {
		got := FormatEvent(tt.ev)
		for _, want := range tt.contains {
			if !strings.Contains(got, want) {
				t.Errorf("FormatEvent(%s) = %q, missing %q", tt.ev.Kind, got, want)
			}
		}
	}
}

func TestFormatTraceRecord(t *testing.T) {
	rec := NewTraceRecord(Event{
		Time:    time.Unix(0, 0),
		Kind:    EventTimeout,
		Command: CmdVolume,
		Err:     ErrTimeout,
	})
	got := FormatTraceRecord(rec)
	for _, want := range []string{"timeout", "VOLUME", "error: pump response timeout"} {
		if !strings.Contains(got, want) {
			t.Errorf("FormatTraceRecord = %q, missing %q", got, want)
		}
	}
}
