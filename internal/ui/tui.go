// ABOUTME: TUI initialization and control
// ABOUTME: Wraps the bubbletea program and forwards key commands to the app
package ui

import (
	tea "github.com/charmbracelet/bubbletea"
)

// Command is an action requested from the keyboard.
type Command struct {
	Action  string
	Options map[string]any
}

// QuitMsg signals that the user quit the TUI
type QuitMsg struct{}

// Control holds channels for commands leaving the TUI
type Control struct {
	Commands chan Command
	Quit     chan QuitMsg
}

// NewControl creates a new control handler
func NewControl() *Control {
	return &Control{
		Commands: make(chan Command, 10),
		Quit:     make(chan QuitMsg, 1),
	}
}

// send queues cmd, dropping it when the app is behind.
func (c *Control) send(cmd Command) {
	if c == nil {
		return
	}
	select {
	case c.Commands <- cmd:
	default:
	}
}

func (c *Control) quit() {
	if c == nil {
		return
	}
	select {
	case c.Quit <- QuitMsg{}:
	default:
	}
}

// NewModel creates a new TUI model
func NewModel(control *Control) Model {
	return Model{control: control}
}

// Run creates the TUI program. The caller starts it.
func Run(control *Control) (*tea.Program, error) {
	p := tea.NewProgram(NewModel(control), tea.WithAltScreen())
	return p, nil
}
