package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"go.uber.org/zap"

	"github.com/wippyai/wbg-runtime/platform/ui"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4")).
			Padding(0, 1)

	statusStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#87CEEB"))

	doneStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#90EE90"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF6B6B"))

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#666666"))
)

const (
	refreshInterval = 50 * time.Millisecond
	maxBarWidth     = 60
)

// tuiReporter records reports from the module's loop goroutine. The
// progress model reads them on every refresh, so reporting never blocks.
type tuiReporter struct {
	mu    sync.Mutex
	state reportState
}

type reportState struct {
	title    string
	done     float64
	total    float64
	hasTotal bool
	errMsg   string
}

var _ ui.Reporter = (*tuiReporter)(nil)

func (r *tuiReporter) SetProgressTitle(title string) {
	r.mu.Lock()
	r.state.title = title
	r.mu.Unlock()
}

func (r *tuiReporter) SetProgress(done, total float64, hasTotal bool) {
	r.mu.Lock()
	r.state.done, r.state.total, r.state.hasTotal = done, total, hasTotal
	r.mu.Unlock()
}

// ShowError keeps the first error; later ones are usually its echoes.
func (r *tuiReporter) ShowError(msg string) {
	r.mu.Lock()
	if r.state.errMsg == "" {
		r.state.errMsg = msg
	}
	r.mu.Unlock()
}

func (r *tuiReporter) snapshot() reportState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

type tickMsg time.Time

type finishedMsg struct {
	err error
}

type progressModel struct {
	err      error
	reporter *tuiReporter
	cancel   context.CancelFunc
	filename string
	bar      progress.Model
	state    reportState
	finished bool
	quitting bool
}

func newProgressModel(filename string, reporter *tuiReporter, cancel context.CancelFunc) *progressModel {
	bar := progress.New(progress.WithDefaultGradient())
	bar.Width = maxBarWidth
	return &progressModel{
		filename: filename,
		reporter: reporter,
		cancel:   cancel,
		bar:      bar,
	}
}

func tick() tea.Cmd {
	return tea.Tick(refreshInterval, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func (m *progressModel) Init() tea.Cmd {
	return tick()
}

func (m *progressModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q", "esc":
			if m.finished {
				return m, tea.Quit
			}
			m.quitting = true
			m.cancel()
		}

	case tea.WindowSizeMsg:
		m.bar.Width = max(10, min(msg.Width-4, maxBarWidth))

	case tickMsg:
		m.state = m.reporter.snapshot()
		if m.finished {
			return m, nil
		}
		return m, tick()

	case finishedMsg:
		m.finished = true
		m.err = msg.err
		m.state = m.reporter.snapshot()
		if m.quitting || (m.err == nil && m.state.errMsg == "") {
			return m, tea.Quit
		}
	}
	return m, nil
}

func (m *progressModel) View() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("wbg run"))
	b.WriteString(" ")
	b.WriteString(m.filename)
	b.WriteString("\n\n")

	switch {
	case m.state.errMsg != "":
		b.WriteString(errorStyle.Render("Error: " + m.state.errMsg))
	case m.err != nil:
		b.WriteString(errorStyle.Render(fmt.Sprintf("Error: %v", m.err)))
	case m.finished:
		b.WriteString(doneStyle.Render("Finished."))
	default:
		title := m.state.title
		if title == "" {
			title = "Loading..."
		}
		b.WriteString(statusStyle.Render(title))
		b.WriteString("\n")
		if m.state.hasTotal {
			b.WriteString(m.bar.ViewAs(ui.Fraction(m.state.done, m.state.total, true)))
			b.WriteString(fmt.Sprintf(" %s/%s", formatCount(m.state.done), formatCount(m.state.total)))
		} else if m.state.done > 0 {
			b.WriteString(statusStyle.Render(formatCount(m.state.done) + " done"))
		}
	}
	b.WriteString("\n\n")
	if m.finished {
		b.WriteString(helpStyle.Render("q quit"))
	} else {
		b.WriteString(helpStyle.Render("q stop"))
	}
	b.WriteString("\n")
	return b.String()
}

func formatCount(n float64) string {
	if n == float64(int64(n)) {
		return fmt.Sprintf("%d", int64(n))
	}
	return fmt.Sprintf("%.1f", n)
}

func runInteractive(ctx context.Context, opts *options) error {
	logger := zap.NewNop()
	if opts.logFile != "" {
		f, err := os.OpenFile(opts.logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return fmt.Errorf("open log file: %w", err)
		}
		defer f.Close()
		logger = newLogger(f, opts.verbose)
		defer logger.Sync()
	}

	ctx, cancel := withTimeout(ctx, opts)
	defer cancel()

	reporter := &tuiReporter{}
	p := tea.NewProgram(newProgressModel(opts.wasmFile, reporter, cancel))
	go func() {
		err := runModule(ctx, opts, logger, reporter)
		p.Send(finishedMsg{err: err})
	}()

	final, err := p.Run()
	if err != nil {
		cancel()
		return err
	}
	m := final.(*progressModel)
	if m.err != nil {
		return m.err
	}
	if m.state.errMsg != "" {
		return fmt.Errorf("module failed: %s", m.state.errMsg)
	}
	return nil
}
