// Package dashboard renders live generation progress in the terminal and
// the end-of-run summary table.
package dashboard

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"shorteezy/internal/model"
	"shorteezy/internal/pipeline"
)

const maxEvents = 8

var (
	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("212"))
	mutedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	errorStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("203")).Bold(true)
	okStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("42")).Bold(true)
	warnStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
)

type eventMsg pipeline.Event

type doneMsg struct {
	err error
}

// Model is the bubbletea model behind the live view. It only ever changes
// in Update, fed by pipeline events forwarded through Program.Send.
type Model struct {
	spinner spinner.Model
	runID   string
	summary model.Summary
	active  map[string]time.Time
	events  []string

	started   time.Time
	finished  int
	now       func() time.Time
	cancel    context.CancelFunc
	canceling bool
	done      bool
	err       error
	width     int
}

func New(runID string, summary model.Summary) Model {
	return Model{
		spinner: spinner.New(spinner.WithSpinner(spinner.Dot), spinner.WithStyle(titleStyle)),
		runID:   runID,
		summary: summary,
		active:  map[string]time.Time{},
		events:  make([]string, 0, maxEvents),
		started: time.Now(),
		now:     time.Now,
	}
}

func (m Model) Init() tea.Cmd {
	return m.spinner.Tick
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		return m, nil
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			if m.canceling {
				return m, tea.Quit
			}
			m.canceling = true
			if m.cancel != nil {
				m.cancel()
			}
			m.pushEvent(warnStyle.Render("canceling: in-flight attempts are being stopped"))
		}
		return m, nil
	case eventMsg:
		m.apply(pipeline.Event(msg))
		return m, nil
	case doneMsg:
		m.done = true
		m.err = msg.err
		return m, tea.Quit
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m *Model) apply(e pipeline.Event) {
	m.summary = e.Summary
	label := e.Label()
	switch e.Type {
	case pipeline.EventStarted:
		m.active[label] = m.now()
		return
	case pipeline.EventRetry:
		m.pushEvent(warnStyle.Render(fmt.Sprintf("retry %s attempt %d in %s: %s", label, e.Attempt+1, e.Delay.Round(100*time.Millisecond), errText(e.Err))))
		return
	case pipeline.EventSucceeded:
		delete(m.active, label)
		m.finished++
		m.pushEvent(okStyle.Render("ok  ") + fmt.Sprintf(" %s (%d attempts)", label, e.Attempt+1))
	case pipeline.EventFailed:
		delete(m.active, label)
		m.finished++
		m.pushEvent(errorStyle.Render("fail") + fmt.Sprintf(" %s (%s) %s", label, e.Reason, errText(e.Err)))
	case pipeline.EventSkipped:
		m.pushEvent(mutedStyle.Render(fmt.Sprintf("skip %s (already on disk)", label)))
	}
}

func (m *Model) pushEvent(line string) {
	m.events = append([]string{line}, m.events...)
	if len(m.events) > maxEvents {
		m.events = m.events[:maxEvents]
	}
}

func (m Model) View() string {
	var b strings.Builder
	n, img := m.summary.Narration, m.summary.Image

	head := fmt.Sprintf("shorteezy %s", m.runID)
	if !m.done {
		head = m.spinner.View() + " " + head
	}
	b.WriteString(titleStyle.Render(head))
	b.WriteString(mutedStyle.Render(fmt.Sprintf(" | elapsed %s", formatDuration(m.now().Sub(m.started)))))
	if eta := m.eta(); eta != "" {
		b.WriteString(mutedStyle.Render(" | eta ~ " + eta))
	}
	b.WriteString("\n")
	b.WriteString(fmt.Sprintf("narrations %d/%d fail %d | images %d/%d fail %d | active %d\n",
		n.Succeeded, n.Total, n.Failed, img.Succeeded, img.Total, img.Failed, len(m.active)))

	width := m.width
	if width <= 0 || width > 100 {
		width = 100
	}
	b.WriteString(mutedStyle.Render(strings.Repeat("-", width)) + "\n")

	labels := make([]string, 0, len(m.active))
	for label := range m.active {
		labels = append(labels, label)
	}
	sort.Strings(labels)
	if len(labels) == 0 {
		b.WriteString(mutedStyle.Render("(nothing in flight)") + "\n")
	}
	for _, label := range labels {
		b.WriteString(fmt.Sprintf("  %s %s\n", label, mutedStyle.Render(formatDuration(m.now().Sub(m.active[label])))))
	}

	if len(m.events) > 0 {
		b.WriteString(mutedStyle.Render(strings.Repeat("-", width)) + "\n")
		for _, e := range m.events {
			b.WriteString(e + "\n")
		}
	}
	if m.canceling && !m.done {
		b.WriteString(warnStyle.Render("waiting for in-flight calls to stop; ctrl+c again hides this view") + "\n")
	}
	return b.String()
}

// eta extrapolates from the average time per finished segment.
func (m Model) eta() string {
	total := m.summary.Narration.Total + m.summary.Image.Total
	done := m.summary.Narration.Succeeded + m.summary.Narration.Failed + m.summary.Image.Succeeded + m.summary.Image.Failed
	if m.finished == 0 || done >= total {
		return ""
	}
	per := m.now().Sub(m.started).Seconds() / float64(m.finished)
	return formatETASeconds(per * float64(total-done))
}

// Run shows the live view while work runs. Pressing ctrl+c cancels the
// context handed to work; the view stays up until work returns. A second
// ctrl+c only closes the view, Run still returns after work does.
func Run(ctx context.Context, runID string, initial model.Summary, work func(ctx context.Context, obs pipeline.Observer) error) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	m := New(runID, initial)
	m.cancel = cancel
	p := tea.NewProgram(m)

	errCh := make(chan error, 1)
	go func() {
		err := work(ctx, pipeline.ObserverFunc(func(e pipeline.Event) {
			p.Send(eventMsg(e))
		}))
		errCh <- err
		p.Send(doneMsg{err: err})
	}()

	if _, err := p.Run(); err != nil {
		cancel()
		return errors.Join(fmt.Errorf("dashboard: %w", err), <-errCh)
	}
	return <-errCh
}

func errText(err error) string {
	if err == nil {
		return ""
	}
	s := strings.TrimSpace(err.Error())
	if len(s) > 120 {
		s = s[:117] + "..."
	}
	return s
}
