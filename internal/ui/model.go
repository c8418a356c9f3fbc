// ABOUTME: Bubbletea model for the voice monitor TUI
// ABOUTME: Shows connection, self settings and the channel roster
package ui

import (
	"fmt"
	"strings"

	"github.com/bitfocus/companion-module-discord-api/pkg/voice"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

var (
	titleStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#5865F2"))
	labelStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	speakingStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#3BA55C")).Bold(true)
	mutedStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#ED4245"))
	cursorStyle   = lipgloss.NewStyle().Reverse(true)
	errorStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#ED4245"))
	helpStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	boxStyle      = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
)

// Model represents the TUI state
type Model struct {
	snap    voice.Snapshot
	cursor  int
	lastErr string
	control *Control

	// Dimensions
	width  int
	height int
}

// Init initializes the model
func (m Model) Init() tea.Cmd {
	return nil
}

// Update handles messages
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
	case StateMsg:
		m.snap = msg.Snapshot
		if n := len(m.roster()); m.cursor >= n {
			m.cursor = max(n-1, 0)
		}
	case ErrorMsg:
		m.lastErr = ""
		if msg.Err != nil {
			m.lastErr = msg.Err.Error()
		}
	}

	return m, nil
}

func (m Model) roster() []voice.VoiceUser {
	if m.snap.VoiceChannel == nil {
		return nil
	}
	return m.snap.VoiceChannel.VoiceStates
}

// View renders the TUI
func (m Model) View() string {
	if m.width == 0 {
		return "Loading..."
	}

	var b strings.Builder
	b.WriteString(m.renderHeader())
	b.WriteString("\n")
	b.WriteString(m.renderSelf())
	b.WriteString("\n")
	b.WriteString(m.renderRoster())
	if m.lastErr != "" {
		b.WriteString("\n")
		b.WriteString(errorStyle.Render("! " + m.lastErr))
	}
	b.WriteString("\n")
	b.WriteString(m.renderHelp())

	return boxStyle.Width(max(m.width-2, 20)).Render(b.String())
}

func (m Model) renderHeader() string {
	status := m.snap.ConnectionStatus.State
	if status == "" {
		status = "DISCONNECTED"
	}
	user := "not authenticated"
	if m.snap.User != nil {
		user = m.snap.User.Tag()
	}
	channel := "not in voice"
	if vc := m.snap.VoiceChannel; vc != nil {
		channel = vc.Name
	}

	return titleStyle.Render("Discord Voice") + "\n" +
		labelStyle.Render("User:    ") + user + "\n" +
		labelStyle.Render("Voice:   ") + status + pingSuffix(m.snap.ConnectionStatus) + "\n" +
		labelStyle.Render("Channel: ") + channel
}

func pingSuffix(cs voice.ConnectionStatus) string {
	if cs.LastPing > 0 {
		return fmt.Sprintf(" (%.0fms)", cs.LastPing)
	}
	if n := len(cs.Pings); n > 0 {
		return fmt.Sprintf(" (%.0fms)", cs.Pings[n-1].Value)
	}
	return ""
}

func (m Model) renderSelf() string {
	vs := m.snap.VoiceSettings
	if vs == nil {
		return labelStyle.Render("Settings: loading")
	}

	flags := ""
	if vs.Mute {
		flags += mutedStyle.Render(" muted")
	}
	if vs.Deaf {
		flags += mutedStyle.Render(" deafened")
	}
	mode := "voice activity"
	if vs.Mode.Type == voice.ModePushToTalk {
		mode = "push to talk"
	}

	return fmt.Sprintf("%s [%s] %3.0f%%\n%s [%s] %3.0f%%\n%s %s%s",
		labelStyle.Render("Input: "), renderBar(vs.Input.Volume, 100, 10), vs.Input.Volume,
		labelStyle.Render("Output:"), renderBar(vs.Output.Volume, 200, 10), vs.Output.Volume,
		labelStyle.Render("Mode:  "), mode, flags)
}

func (m Model) renderRoster() string {
	roster := m.roster()
	if len(roster) == 0 {
		return labelStyle.Render("(no one in voice)")
	}

	selfID := ""
	if m.snap.User != nil {
		selfID = m.snap.User.ID
	}

	var b strings.Builder
	for i, u := range roster {
		marker := "  "
		if u.User.ID == m.snap.SelectedUser {
			marker = "> "
		}
		name := fmt.Sprintf("%-24s", truncate(u.DisplayName(), 24))
		if m.snap.DelayedSpeaking[u.User.ID] {
			name = speakingStyle.Render(name)
		}
		line := fmt.Sprintf("%s%d %s", marker, i, name)
		if u.User.ID == selfID {
			line += labelStyle.Render(" (you)")
		} else {
			line += fmt.Sprintf(" %3.0f%%", u.Volume)
		}
		if u.Mute || u.VoiceState.SelfMute || u.VoiceState.Mute {
			line += mutedStyle.Render(" muted")
		}
		if i == m.cursor {
			line = cursorStyle.Render(line)
		}
		b.WriteString(line)
		if i < len(roster)-1 {
			b.WriteString("\n")
		}
	}
	return b.String()
}

func (m Model) renderHelp() string {
	return helpStyle.Render("m:Mute  d:Deafen  ↑/↓:Move  enter:Select  +/-:Volume  q:Quit")
}

// handleKey handles keyboard input
func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		m.control.quit()
		return m, tea.Quit
	case "up", "k":
		if m.cursor > 0 {
			m.cursor--
		}
	case "down", "j":
		if m.cursor < len(m.roster())-1 {
			m.cursor++
		}
	case "m":
		m.control.send(Command{Action: "selfMute", Options: map[string]any{"type": "Toggle"}})
	case "d":
		m.control.send(Command{Action: "selfDeafen", Options: map[string]any{"type": "Toggle"}})
	case "enter", " ":
		if u, ok := m.cursorUser(); ok {
			m.control.send(Command{Action: "selectUser", Options: map[string]any{"user": u.User.ID}})
		}
	case "+", "=":
		m.adjustVolume("Increase")
	case "-":
		m.adjustVolume("Decrease")
	}

	return m, nil
}

func (m Model) cursorUser() (voice.VoiceUser, bool) {
	roster := m.roster()
	if m.cursor < 0 || m.cursor >= len(roster) {
		return voice.VoiceUser{}, false
	}
	return roster[m.cursor], true
}

func (m Model) adjustVolume(op string) {
	u, ok := m.cursorUser()
	if !ok || (m.snap.User != nil && u.User.ID == m.snap.User.ID) {
		return
	}
	m.control.send(Command{
		Action:  "otherVolume",
		Options: map[string]any{"user": u.User.ID, "type": op, "volume": 10},
	})
}

// StateMsg replaces the displayed voice state
type StateMsg struct {
	Snapshot voice.Snapshot
}

// ErrorMsg shows the result of the last command. A nil Err clears it.
type ErrorMsg struct {
	Err error
}

// Utility functions
func renderBar(value, full float64, width int) string {
	filled := min(max(int(value*float64(width)/full), 0), width)
	return strings.Repeat("█", filled) + strings.Repeat("░", width-filled)
}

func truncate(s string, length int) string {
	r := []rune(s)
	if len(r) <= length {
		return s
	}
	return string(r[:length-3]) + "..."
}
