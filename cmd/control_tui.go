// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/Thermoquad/peristat/pkg/masterflex"
	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

//////////////////////////////////////////////////////////////
// Constants
//////////////////////////////////////////////////////////////

const (
	statusPollInterval = time.Second
	maxLogEntries      = 200
	quickListWidth     = 28
)

// Focus states
const (
	focusQuickList = iota
	focusCommandInput
)

//////////////////////////////////////////////////////////////
// Types
//////////////////////////////////////////////////////////////

// quickAction is a canned console line shown in the action list
type quickAction struct {
	title string
	line  string
}

// Implement list.Item interface
func (a quickAction) Title() string       { return a.title }
func (a quickAction) Description() string { return a.line }
func (a quickAction) FilterValue() string { return a.title }

var quickActions = []quickAction{
	{"Start", "start"},
	{"Stop", "stop"},
	{"Clockwise", "dir-cw"},
	{"Counter-clockwise", "dir-ccw"},
	{"Enable serial", "enable"},
	{"Disable serial", "disable"},
	{"Panel active", "panel-active"},
	{"Panel inactive", "panel-inactive"},
	{"Model / version", "model-serial-version"},
}

// logEntry is one line of the event log
type logEntry struct {
	timestamp time.Time
	message   string
	isError   bool
}

// pumpStatus is the most recent poll result
type pumpStatus struct {
	motor     string
	direction string
	speed     string
	polled    time.Time
	err       error
}

// controlModel is the Bubble Tea model for the control TUI
type controlModel struct {
	ctx    context.Context
	client *masterflex.Client
	stats  *masterflex.Statistics

	connInfo  string
	connState masterflex.LinkState

	status  pumpStatus
	polling bool

	actions      list.Model
	commandInput textinput.Model
	eventLog     viewport.Model
	entries      []logEntry
	focusedField int

	width    int
	height   int
	quitting bool
}

//////////////////////////////////////////////////////////////
// Messages
//////////////////////////////////////////////////////////////

type controlTickMsg time.Time

type controlEventBatchMsg []masterflex.Event

type statusPolledMsg struct {
	status pumpStatus
}

type commandDoneMsg struct {
	line   string
	result masterflex.Result
	err    error
}

//////////////////////////////////////////////////////////////
// Model Initialization
//////////////////////////////////////////////////////////////

func initialControlModel(ctx context.Context, client *masterflex.Client, stats *masterflex.Statistics, connInfo string) controlModel {
	ti := textinput.New()
	ti.Prompt = consolePrompt
	ti.Placeholder = "speedp 50"
	ti.CharLimit = 64
	ti.Width = 40

	items := make([]list.Item, len(quickActions))
	for i, a := range quickActions {
		items[i] = a
	}
	delegate := list.NewDefaultDelegate()
	delegate.ShowDescription = false
	delegate.SetSpacing(0)
	actions := list.New(items, delegate, quickListWidth, 12)
	actions.Title = "Actions"
	actions.SetShowStatusBar(false)
	actions.SetShowHelp(false)
	actions.SetFilteringEnabled(false)

	return controlModel{
		ctx:          ctx,
		client:       client,
		stats:        stats,
		connInfo:     connInfo,
		connState:    client.State(),
		actions:      actions,
		commandInput: ti,
		eventLog:     viewport.New(76, 8),
		focusedField: focusQuickList,
		width:        80,
		height:       24,
	}
}

//////////////////////////////////////////////////////////////
// Bubble Tea Interface
//////////////////////////////////////////////////////////////

func (m controlModel) Init() tea.Cmd {
	return controlTickCmd()
}

func controlTickCmd() tea.Cmd {
	return tea.Tick(statusPollInterval, func(t time.Time) tea.Msg {
		return controlTickMsg(t)
	})
}

func (m controlModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKeyMsg(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.updateSizes()
		return m, nil

	case controlTickMsg:
		m.stats.CalculateRates()
		cmds := []tea.Cmd{controlTickCmd()}
		if m.connState == masterflex.LinkConnected && !m.polling {
			m.polling = true
			cmds = append(cmds, m.pollStatus())
		}
		return m, tea.Batch(cmds...)

	case statusPolledMsg:
		m.polling = false
		prevErr := m.status.err
		m.status = msg.status
		if msg.status.err != nil && (prevErr == nil || prevErr.Error() != msg.status.err.Error()) {
			m.addLogEntry(fmt.Sprintf("Status poll failed: %v", msg.status.err), true)
		}
		return m, nil

	case commandDoneMsg:
		switch {
		case msg.err != nil:
			m.addLogEntry(fmt.Sprintf("%s: %v", msg.line, msg.err), true)
		case msg.result.Status == masterflex.StatusData || msg.result.Status == masterflex.StatusOK:
			m.addLogEntry(fmt.Sprintf("%s: %s", msg.line, masterflex.FormatResult(msg.result)), false)
		default:
			m.addLogEntry(fmt.Sprintf("%s: %s", msg.line, masterflex.FormatResult(msg.result)), true)
		}
		return m, nil

	case controlEventBatchMsg:
		for _, ev := range msg {
			m.processEvent(ev)
		}
		return m, nil
	}

	return m.updateFocused(msg)
}

func (m controlModel) handleKeyMsg(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c", "esc":
		m.quitting = true
		return m, tea.Quit

	case "q":
		if m.focusedField == focusQuickList {
			m.quitting = true
			return m, tea.Quit
		}

	case "tab", "shift+tab":
		m.toggleFocus()
		return m, nil

	case "pgup", "pgdown":
		var cmd tea.Cmd
		m.eventLog, cmd = m.eventLog.Update(msg)
		return m, cmd

	case "enter":
		return m.handleEnter()
	}

	return m.updateFocused(msg)
}

func (m controlModel) updateFocused(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd
	if m.focusedField == focusCommandInput {
		m.commandInput, cmd = m.commandInput.Update(msg)
	} else {
		m.actions, cmd = m.actions.Update(msg)
	}
	return m, cmd
}

func (m *controlModel) toggleFocus() {
	if m.focusedField == focusQuickList {
		m.focusedField = focusCommandInput
		m.commandInput.Focus()
	} else {
		m.focusedField = focusQuickList
		m.commandInput.Blur()
	}
}

func (m controlModel) handleEnter() (tea.Model, tea.Cmd) {
	var line string
	if m.focusedField == focusCommandInput {
		line = strings.TrimSpace(m.commandInput.Value())
		m.commandInput.SetValue("")
	} else if a, ok := m.actions.SelectedItem().(quickAction); ok {
		line = a.line
	}
	if line == "" {
		return m, nil
	}

	if m.connState != masterflex.LinkConnected {
		m.addLogEntry("Cannot send command: connection lost", true)
		return m, nil
	}
	return m, m.runCommand(line)
}

func (m controlModel) View() string {
	if m.quitting {
		return "Shutting down...\n"
	}

	var s strings.Builder

	// Header
	connStatus := m.connInfo
	switch m.connState {
	case masterflex.LinkConnecting:
		connStatus = warningStyle.Render("CONNECTING...")
	case masterflex.LinkDisconnected:
		connStatus = warningStyle.Render("RECONNECTING...")
	}
	s.WriteString(titleStyle.Render("PERISTAT CONTROL"))
	s.WriteString(" ")
	s.WriteString(headerStyle.Render(fmt.Sprintf("| %s | pump %d | q=quit Tab=switch Enter=send", connStatus, m.client.Address())))
	s.WriteString("\n\n")

	// Actions | status and command line
	listStyle := boxStyle
	if m.focusedField == focusQuickList {
		listStyle = focusedBoxStyle
	}
	actionPanel := listStyle.Width(quickListWidth).Render(m.actions.View())

	rightWidth := m.width - quickListWidth - 6
	if rightWidth < 20 {
		rightWidth = 20
	}
	inputStyle := boxStyle
	if m.focusedField == focusCommandInput {
		inputStyle = focusedBoxStyle
	}
	right := lipgloss.JoinVertical(lipgloss.Left,
		boxStyle.Width(rightWidth).Render(m.renderStatus()),
		inputStyle.Width(rightWidth).Render(m.commandInput.View()),
	)
	s.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, actionPanel, " ", right))
	s.WriteString("\n")

	// Statistics bar
	s.WriteString(m.renderStatisticsBar())
	s.WriteString("\n")

	// Event log
	s.WriteString(statsLabelStyle.Render("EVENTS"))
	s.WriteString("\n")
	s.WriteString(boxStyle.Width(m.width - 4).Render(m.eventLog.View()))

	return s.String()
}

//////////////////////////////////////////////////////////////
// View Helpers
//////////////////////////////////////////////////////////////

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("12")).
			Background(lipgloss.Color("235")).
			Padding(0, 1)

	headerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("241"))

	statsLabelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("12")).
			Bold(true)

	statsValueStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("10"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("9")).
			Bold(true)

	warningStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("11"))

	boxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("240")).
			Padding(0, 1)

	focusedBoxStyle = boxStyle.
			BorderForeground(lipgloss.Color("12"))
)

func (m controlModel) renderStatus() string {
	var s strings.Builder
	s.WriteString(statsLabelStyle.Render("STATUS"))
	s.WriteString("\n")

	if m.status.polled.IsZero() {
		s.WriteString(headerStyle.Render("Waiting for first poll"))
		return s.String()
	}

	motor := statsValueStyle.Render(m.status.motor)
	if m.status.motor == "stopped" {
		motor = warningStyle.Render(m.status.motor)
	}
	s.WriteString(fmt.Sprintf("%s %s  %s %s  %s %s\n",
		statsLabelStyle.Render("Motor:"), motor,
		statsLabelStyle.Render("Direction:"), statsValueStyle.Render(m.status.direction),
		statsLabelStyle.Render("Speed:"), statsValueStyle.Render(m.status.speed)))

	age := fmt.Sprintf("polled %s", m.status.polled.Format("15:04:05"))
	if m.status.err != nil {
		s.WriteString(errorStyle.Render(fmt.Sprintf("%s (last poll failed)", age)))
	} else {
		s.WriteString(headerStyle.Render(age))
	}
	return s.String()
}

func (m controlModel) renderStatisticsBar() string {
	snap := m.stats.Snapshot()
	var answered float64
	if snap.Sent > 0 {
		answered = float64(snap.Replies) * 100.0 / float64(snap.Sent)
	}
	failures := snap.Timeouts + snap.Invalid + snap.NotInSerialMode + snap.NotPumpMessage

	failStr := statsValueStyle.Render("0")
	if failures > 0 {
		failStr = errorStyle.Render(fmt.Sprintf("%d", failures))
	}

	content := fmt.Sprintf("%s %s  %s %s  %s %s  %s %s  %s %s",
		statsLabelStyle.Render("Sent:"), statsValueStyle.Render(fmt.Sprintf("%d", snap.Sent)),
		statsLabelStyle.Render("Answered:"), statsValueStyle.Render(fmt.Sprintf("%.1f%%", answered)),
		statsLabelStyle.Render("Failures:"), failStr,
		statsLabelStyle.Render("Avg RTT:"), statsValueStyle.Render(m.stats.AverageLatency().Round(time.Millisecond).String()),
		statsLabelStyle.Render("Rate:"), statsValueStyle.Render(fmt.Sprintf("%.1f cmd/s", snap.CommandRate)),
	)
	return boxStyle.Width(m.width - 4).Render(content)
}

func (m *controlModel) renderEventLog() {
	var s strings.Builder
	if len(m.entries) == 0 {
		s.WriteString(headerStyle.Render("(no events yet)"))
	}
	for i, entry := range m.entries {
		icon := warningStyle.Render("i")
		if entry.isError {
			icon = errorStyle.Render("x")
		}
		s.WriteString(fmt.Sprintf("%s %s %s",
			headerStyle.Render(entry.timestamp.Format("15:04:05.000")),
			icon,
			entry.message))
		if i < len(m.entries)-1 {
			s.WriteString("\n")
		}
	}
	m.eventLog.SetContent(s.String())
	m.eventLog.GotoBottom()
}

//////////////////////////////////////////////////////////////
// Data Processing
//////////////////////////////////////////////////////////////

func (m *controlModel) processEvent(ev masterflex.Event) {
	switch ev.Kind {
	case masterflex.EventLink:
		prev := m.connState
		m.connState = ev.State
		switch ev.State {
		case masterflex.LinkConnected:
			m.connInfo = m.client.LinkInfo()
			m.addLogEntry(fmt.Sprintf("Connected: %s", m.connInfo), false)
		case masterflex.LinkDisconnected:
			if prev == masterflex.LinkConnected {
				msg := "Connection lost - reconnecting..."
				if ev.Err != nil {
					msg = fmt.Sprintf("Connection lost (%v) - reconnecting...", ev.Err)
				}
				m.addLogEntry(msg, true)
			}
		}
	case masterflex.EventUnsolicited, masterflex.EventDiscarded:
		m.addLogEntry(masterflex.FormatEvent(ev), true)
	}
}

//////////////////////////////////////////////////////////////
// Commands
//////////////////////////////////////////////////////////////

// pollStatus reads motor state and speed off the UI goroutine
func (m controlModel) pollStatus() tea.Cmd {
	ctx, client := m.ctx, m.client
	return func() tea.Msg {
		st := pumpStatus{polled: time.Now(), motor: "?", direction: "?", speed: "?"}

		res, err := client.Status(ctx)
		if err != nil {
			st.err = err
			return statusPolledMsg{status: st}
		}
		if !res.IsData() {
			st.err = fmt.Errorf("%s", masterflex.FormatResult(res))
			return statusPolledMsg{status: st}
		}
		st.motor, _ = res.GetString(masterflex.FieldMotorStatus)
		st.direction, _ = res.GetString(masterflex.FieldDirection)

		res, err = client.SpeedPercent(ctx)
		if err != nil {
			st.err = err
			return statusPolledMsg{status: st}
		}
		if speed, ok := res.GetFloat(masterflex.FieldSpeed); ok {
			st.speed = fmt.Sprintf("%.1f%%", speed)
		}
		return statusPolledMsg{status: st}
	}
}

// runCommand executes a console line off the UI goroutine
func (m controlModel) runCommand(line string) tea.Cmd {
	ctx, client := m.ctx, m.client
	return func() tea.Msg {
		words, err := splitWords(line)
		if err != nil {
			return commandDoneMsg{line: line, err: err}
		}
		if len(words) == 0 {
			return nil
		}
		command, err := masterflex.ParseCommand(words[0])
		if err != nil {
			return commandDoneMsg{line: line, err: err}
		}
		res, err := client.Invoke(ctx, command, words[1:]...)
		return commandDoneMsg{line: line, result: res, err: err}
	}
}

//////////////////////////////////////////////////////////////
// Helpers
//////////////////////////////////////////////////////////////

func (m *controlModel) addLogEntry(message string, isError bool) {
	m.entries = append(m.entries, logEntry{
		timestamp: time.Now(),
		message:   message,
		isError:   isError,
	})
	if len(m.entries) > maxLogEntries {
		m.entries = m.entries[len(m.entries)-maxLogEntries:]
	}
	m.renderEventLog()
}

func (m *controlModel) updateSizes() {
	listHeight := m.height / 3
	if listHeight < 6 {
		listHeight = 6
	}
	m.actions.SetSize(quickListWidth-2, listHeight)

	m.eventLog.Width = m.width - 8
	logHeight := m.height - listHeight - 12
	if logHeight < 4 {
		logHeight = 4
	}
	m.eventLog.Height = logHeight

	m.commandInput.Width = m.width - quickListWidth - 16
	m.renderEventLog()
}
