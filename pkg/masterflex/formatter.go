// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package masterflex

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// FormatFrame renders raw frame bytes with control characters escaped
func FormatFrame(frame []byte) string {
	var b strings.Builder
	for _, c := range frame {
		switch {
		case c == CR:
			b.WriteString(`\r`)
		case c == LF:
			b.WriteString(`\n`)
		case c < 0x20 || c >= 0x7F:
			fmt.Fprintf(&b, `\x%02X`, c)
		default:
			b.WriteByte(c)
		}
	}
	return b.String()
}

// FormatResult formats a result on one line: the status followed by its
// fields in key order
func FormatResult(r Result) string {
	var b strings.Builder
	b.WriteString(string(r.Status))
	if r.Error != "" {
		fmt.Fprintf(&b, ": %s", r.Error)
	}

	keys := make([]string, 0, len(r.Data))
	for k := range r.Data {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&b, " %s=%s", k, formatValue(r.Data[k]))
	}
	return b.String()
}

func formatValue(v interface{}) string {
	switch val := v.(type) {
	case string:
		if strings.ContainsAny(val, " =") {
			return fmt.Sprintf("%q", val)
		}
		return val
	case float64:
		return fmt.Sprintf("%g", val)
	default:
		return fmt.Sprintf("%v", val)
	}
}

// FormatEvent formats a protocol event into a log line
func FormatEvent(ev Event) string {
	timestamp := ev.Time.Format("15:04:05.000")

	switch ev.Kind {
	case EventSent:
		return fmt.Sprintf("[%s] >> %-22s %s", timestamp, ev.Command, ev.Frame)
	case EventReceived:
		line := fmt.Sprintf("[%s] << %-22s %s", timestamp, ev.Command, ev.Frame)
		if ev.Result != nil {
			line += "  " + FormatResult(*ev.Result)
		}
		return line + fmt.Sprintf(" (%s)", ev.Latency.Round(time.Millisecond))
	case EventRejected:
		msg := ""
		if ev.Result != nil {
			msg = ev.Result.Error
		}
		return fmt.Sprintf("[%s] !! %-22s rejected: %s", timestamp, ev.Command, msg)
	case EventTimeout, EventCanceled:
		return fmt.Sprintf("[%s] !! %-22s %s", timestamp, ev.Command, ev.Kind)
	case EventUnsolicited:
		return fmt.Sprintf("[%s] ?? unsolicited %q", timestamp, ev.Frame)
	case EventDiscarded:
		return fmt.Sprintf("[%s] ?? discarded partial frame %q", timestamp, ev.Frame)
	case EventLink:
		if ev.Err != nil {
			return fmt.Sprintf("[%s] -- link %s: %v", timestamp, ev.State, ev.Err)
		}
		return fmt.Sprintf("[%s] -- link %s", timestamp, ev.State)
	default:
		return fmt.Sprintf("[%s] %s", timestamp, ev.Kind)
	}
}

// FormatTraceRecord formats a decoded trace record the way FormatEvent
// formats the live event
func FormatTraceRecord(rec TraceRecord) string {
	timestamp := rec.Time().Format("15:04:05.000")

	var fields string
	if len(rec.Result) > 0 {
		keys := make([]string, 0, len(rec.Result))
		for k := range rec.Result {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		parts := make([]string, 0, len(keys))
		for _, k := range keys {
			parts = append(parts, fmt.Sprintf("%s=%s", k, formatValue(rec.Result[k])))
		}
		fields = "  " + strings.Join(parts, " ")
	}

	line := fmt.Sprintf("[%s] %-11s", timestamp, rec.Kind)
	if rec.Command != "" {
		line += " " + rec.Command
	}
	if rec.State != "" {
		line += " " + rec.State
	}
	if rec.Frame != "" {
		line += fmt.Sprintf(" %q", rec.Frame)
	}
	line += fields
	if rec.LatencyUs > 0 {
		line += fmt.Sprintf(" (%s)", (time.Duration(rec.LatencyUs) * time.Microsecond).Round(time.Millisecond))
	}
	if rec.Error != "" {
		line += " error: " + rec.Error
	}
	return line
}
