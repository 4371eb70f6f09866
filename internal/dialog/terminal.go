package dialog

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/bubbles/filepicker"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"

	"github.com/cryguy/webbridge/internal/core"
)

// ErrNoTerminal is returned when the terminal picker has no TTY to draw on.
var ErrNoTerminal = errors.New("dialog: input is not a terminal")

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4")).
			Padding(0, 1)

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF6B6B"))

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#666666"))
)

// Terminal draws a file picker on the controlling terminal.
type Terminal struct {
	In  io.Reader // defaults to os.Stdin
	Out io.Writer // defaults to os.Stderr
}

var _ core.DialogProvider = Terminal{}

// Open runs the picker until the user selects an entry or cancels.
func (t Terminal) Open(ctx context.Context, opts core.DialogOptions) (string, error) {
	in, out := t.In, t.Out
	if in == nil {
		in = os.Stdin
	}
	if out == nil {
		out = os.Stderr
	}
	f, ok := in.(*os.File)
	if !ok || !term.IsTerminal(int(f.Fd())) {
		return "", ErrNoTerminal
	}

	m, err := newPicker(opts)
	if err != nil {
		return "", err
	}
	final, err := tea.NewProgram(m,
		tea.WithInput(in),
		tea.WithOutput(out),
		tea.WithContext(ctx),
	).Run()
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", fmt.Errorf("dialog: %w", err)
	}
	return final.(*picker).result()
}

// picker is the bubbletea model of one dialog.
type picker struct {
	fp        filepicker.Model
	title     string
	chosen    string
	cancelled bool
	notice    string
}

func newPicker(opts core.DialogOptions) (*picker, error) {
	start := opts.StartDir
	if start == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("dialog: %w", err)
		}
		start = wd
	}
	abs, err := filepath.Abs(start)
	if err != nil {
		return nil, fmt.Errorf("dialog: %w", err)
	}

	fp := filepicker.New()
	fp.CurrentDirectory = abs
	fp.DirAllowed = opts.Directories
	fp.FileAllowed = opts.Files || !opts.Directories
	fp.AutoHeight = true

	title := opts.Title
	if title == "" {
		title = defaultTitle(opts)
	}
	return &picker{fp: fp, title: title}, nil
}

func defaultTitle(opts core.DialogOptions) string {
	switch {
	case opts.Directories && opts.Files:
		return "Choose a file or directory"
	case opts.Directories:
		return "Choose a directory"
	default:
		return "Choose a file"
	}
}

func (m *picker) Init() tea.Cmd {
	return m.fp.Init()
}

func (m *picker) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	if k, ok := msg.(tea.KeyMsg); ok {
		switch k.String() {
		case "ctrl+c", "esc", "q":
			m.cancelled = true
			return m, tea.Quit
		}
	}

	var cmd tea.Cmd
	m.fp, cmd = m.fp.Update(msg)

	if ok, path := m.fp.DidSelectFile(msg); ok {
		m.chosen = path
		return m, tea.Quit
	}
	if ok, path := m.fp.DidSelectDisabledFile(msg); ok {
		m.notice = filepath.Base(path) + " cannot be chosen here"
	}
	return m, cmd
}

func (m *picker) View() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render(m.title))
	b.WriteString("\n")
	b.WriteString(m.fp.CurrentDirectory)
	b.WriteString("\n\n")
	b.WriteString(m.fp.View())
	b.WriteString("\n")
	if m.notice != "" {
		b.WriteString(errorStyle.Render(m.notice))
		b.WriteString("\n")
	}
	b.WriteString(helpStyle.Render("enter: choose • h/l: up/into • esc: cancel"))
	return b.String()
}

func (m *picker) result() (string, error) {
	if m.cancelled || m.chosen == "" {
		return "", core.ErrDialogCancelled
	}
	return m.chosen, nil
}
