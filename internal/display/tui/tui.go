// Package tui renders the live readings board in the terminal with bubbletea.
package tui

import (
	"context"
	"fmt"
	"io"
	"strings"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/banshee-data/museosc/internal/display"
	"github.com/banshee-data/museosc/internal/packet"
)

// updateMsg carries one display write into the bubbletea event loop.
type updateMsg display.Update

// Model is the bubbletea model. Values are only touched from the program's
// own goroutine.
type Model struct {
	values  map[string]string
	paused  bool
	onPause func(bool)
	title   string
}

// NewModel creates a model. onPause is called with the new state when the
// user toggles transmission with "p"; it may be nil.
func NewModel(title string, onPause func(bool)) Model {
	return Model{values: make(map[string]string), onPause: onPause, title: title}
}

func (m Model) Init() tea.Cmd { return nil }

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case updateMsg:
		m.values[msg.Field] = msg.Value
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		case "p":
			m.paused = !m.paused
			if m.onPause != nil {
				m.onPause(m.paused)
			}
		}
	}
	return m, nil
}

func (m Model) View() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s\n\n", m.title)

	fmt.Fprintf(&b, "%-8s", "")
	for _, ch := range packet.Channels {
		fmt.Fprintf(&b, "%8s", strings.ToUpper(ch.String()))
	}
	b.WriteString("\n")
	for _, c := range packet.Wavebands {
		fmt.Fprintf(&b, "%-8s", c.Band())
		for _, ch := range packet.Channels {
			fmt.Fprintf(&b, "%8s", m.get(display.WaveField(c, ch)))
		}
		b.WriteString("\n")
	}
	fmt.Fprintf(&b, "%-8s", "quality")
	for _, ch := range packet.Channels {
		fmt.Fprintf(&b, "%8s", m.get(display.HorseshoeField(ch)))
	}
	b.WriteString("\n\n")

	fmt.Fprintf(&b, "forehead: %s   battery: %s\n", m.get(display.FieldTouchingForehead), strings.TrimSpace(m.get(display.FieldBattery)))
	fmt.Fprintf(&b, "device:   %s   %s\n", m.get(display.FieldDevice), m.get(display.FieldConnection))
	if m.paused {
		b.WriteString("\ntransmission PAUSED ")
	} else {
		b.WriteString("\n")
	}
	b.WriteString("[p] pause/resume  [q] quit\n")
	return b.String()
}

func (m Model) get(field string) string {
	if v, ok := m.values[field]; ok {
		return v
	}
	return "-"
}

// UI runs a bubbletea program and implements display.Sink by posting updates
// into it.
type UI struct {
	program *tea.Program
}

// Options configures the UI.
type Options struct {
	Title   string
	OnPause func(bool)
	Input   io.Reader
	Output  io.Writer
}

// New creates the UI. Call Run to start rendering.
func New(opts Options) *UI {
	if opts.Title == "" {
		opts.Title = "museosc"
	}
	var teaOpts []tea.ProgramOption
	if opts.Input != nil {
		teaOpts = append(teaOpts, tea.WithInput(opts.Input))
	}
	if opts.Output != nil {
		teaOpts = append(teaOpts, tea.WithOutput(opts.Output))
	}
	return &UI{program: tea.NewProgram(NewModel(opts.Title, opts.OnPause), teaOpts...)}
}

// Display posts an update. Program.Send blocks until the event loop takes the
// message, so it is meant to be called from a display.Async goroutine rather
// than from the dispatch path.
func (u *UI) Display(field, value string) {
	u.program.Send(updateMsg{Field: field, Value: value})
}

// Run renders until the user quits or ctx is cancelled.
func (u *UI) Run(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		u.program.Quit()
	}()
	_, err := u.program.Run()
	return err
}
