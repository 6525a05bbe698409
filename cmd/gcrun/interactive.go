package main

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

const maxHistory = 500

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4")).
			Padding(0, 1)

	commandStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FAFAFA"))

	resultStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#90EE90"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF6B6B"))

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#666666"))
)

type interactiveModel struct {
	shell   *shell
	input   textinput.Model
	history []string
	width   int
	height  int
}

func newInteractiveModel(sh *shell) *interactiveModel {
	ti := textinput.New()
	ti.Prompt = "gc> "
	ti.Placeholder = "help"
	ti.Width = 60
	ti.Focus()
	return &interactiveModel{shell: sh, input: ti}
}

func (m *interactiveModel) Init() tea.Cmd {
	return textinput.Blink
}

func (m *interactiveModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.input.Width = max(msg.Width-len(m.input.Prompt)-2, 10)

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "esc":
			return m, tea.Quit

		case "enter":
			line := strings.TrimSpace(m.input.Value())
			m.input.Reset()
			if line == "quit" || line == "exit" {
				return m, tea.Quit
			}
			if line != "" {
				m.run(line)
			}
			return m, nil
		}
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m *interactiveModel) run(line string) {
	m.append(commandStyle.Render("gc> " + line))
	out, err := m.shell.exec(line)
	switch {
	case err != nil:
		m.append(errorStyle.Render("error: " + err.Error()))
		if cerr := m.shell.gc.Err(); cerr != nil {
			m.append(helpStyle.Render("collector stopped, type reset to start over"))
		}
	case out != "":
		for _, l := range strings.Split(out, "\n") {
			m.append(resultStyle.Render(l))
		}
	}
}

func (m *interactiveModel) append(line string) {
	m.history = append(m.history, line)
	if n := len(m.history) - maxHistory; n > 0 {
		m.history = m.history[n:]
	}
}

func (m *interactiveModel) View() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("GC Shell"))
	b.WriteString(" ")
	heap := m.shell.arena.Heap()
	b.WriteString(helpStyle.Render(fmt.Sprintf("heap %d/%d bytes in use", heap.InUse(), heap.Total())))
	b.WriteString("\n\n")

	lines := m.history
	if m.height > 0 {
		// title, blank, input, blank, help
		if room := m.height - 5; room >= 0 && len(lines) > room {
			lines = lines[len(lines)-room:]
		}
	}
	for _, l := range lines {
		b.WriteString(l)
		b.WriteString("\n")
	}

	b.WriteString(m.input.View())
	b.WriteString("\n\n")
	b.WriteString(helpStyle.Render("enter run • help commands • esc quit"))
	return b.String()
}

func runInteractive(opts options) error {
	log, err := newLogger("error")
	if err != nil {
		return err
	}
	sh, err := newShell(uint32(opts.arenaSize), log)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	p := tea.NewProgram(newInteractiveModel(sh), tea.WithAltScreen())
	_, err = p.Run()
	return err
}
