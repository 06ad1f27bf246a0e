package main

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	lipgloss "github.com/charmbracelet/lipgloss"

	"github.com/pepperpark/mailcopy/internal/report"
	"github.com/pepperpark/mailcopy/internal/syncer"
)

type folderProgress struct {
	total int
	done  int
}

type model struct {
	ctx      context.Context
	cancel   context.CancelFunc
	worker   *syncer.Syncer
	rep      *report.Report
	prog     map[string]folderProgress
	current  string
	excluded int
	totalAll int
	doneAll  int
	copied   int
	skipped  int
	spinner  spinner.Model
	bar      progress.Model
	res      *syncer.Result
	err      error
	finished bool
	started  time.Time
	// Smoothed ETA
	emaRate  float64 // msgs/sec (EMA)
	lastDone int
	lastAt   time.Time
}

type tickMsg time.Time

type doneMsg struct {
	res *syncer.Result
	err error
}

// newModel runs worker under ctx; cancel is called when the user quits.
func newModel(ctx context.Context, cancel context.CancelFunc, worker *syncer.Syncer, rep *report.Report) *model {
	s := spinner.New()
	s.Spinner = spinner.Line
	bar := progress.New(progress.WithDefaultGradient())
	now := time.Now()
	return &model{ctx: ctx, cancel: cancel, worker: worker, rep: rep, prog: map[string]folderProgress{}, spinner: s, bar: bar, started: now, lastAt: now}
}

func (m *model) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, tick(), m.startSync())
}

func tick() tea.Cmd {
	return tea.Tick(200*time.Millisecond, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func (m *model) startSync() tea.Cmd {
	return func() tea.Msg {
		res, err := m.worker.Run(m.ctx)
		return doneMsg{res: res, err: err}
	}
}

func (m *model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if msg.String() == "q" || msg.String() == "ctrl+c" {
			m.cancel()
			return m, nil
		}
	case doneMsg:
		m.drainEvents()
		m.finish(msg.res, msg.err)
		return m, tea.Quit
	case tickMsg:
		m.drainEvents()
		m.updateEMARate()
		return m, tick()
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

// finish takes the counters from the result, since events may have been
// dropped while the display was not reading.
func (m *model) finish(res *syncer.Result, err error) {
	m.res, m.err = res, err
	m.finished = true
	if res != nil {
		m.copied, m.skipped, m.excluded = 0, 0, len(res.Excluded)
		for _, st := range res.Folders {
			m.copied += st.Copied
			m.skipped += st.Skipped
			fp := m.prog[st.Source]
			fp.done = fp.total
			m.prog[st.Source] = fp
		}
		m.recomputeTotals()
	}
	if err == nil {
		m.doneAll = m.totalAll
	}
}

// drainEvents applies every event queued so far without blocking.
func (m *model) drainEvents() {
	for {
		select {
		case ev, ok := <-m.worker.Events():
			if !ok {
				return
			}
			m.apply(ev)
		default:
			return
		}
	}
}

func (m *model) apply(ev syncer.Event) {
	switch ev.Type {
	case syncer.EventFolderStart:
		m.current = ev.Folder
	case syncer.EventFolderSkipped:
		m.excluded++
	case syncer.EventFolderProgress, syncer.EventFolderDone:
		fp := m.prog[ev.Folder]
		fp.total, fp.done = ev.Total, ev.Done
		m.prog[ev.Folder] = fp
		m.recomputeTotals()
		if ev.Stats != nil {
			m.copied += ev.Stats.Copied
			m.skipped += ev.Stats.Skipped
			m.rep.Record(*ev.Stats)
		}
	}
}

func (m *model) recomputeTotals() {
	total, done := 0, 0
	for _, p := range m.prog {
		total += p.total
		done += p.done
	}
	m.totalAll, m.doneAll = total, done
}

func (m *model) View() string {
	title := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("63")).Render("Mailcopy")
	s := title + "\n\nPress q to stop\n\n"
	pct := 0.0
	if m.totalAll > 0 {
		pct = float64(m.doneAll) / float64(m.totalAll)
	}
	s += fmt.Sprintf("%s Overall %d/%d   %s\n", m.spinner.View(), m.doneAll, m.totalAll, formatETA(m.totalAll-m.doneAll, m.rate()))
	s += m.bar.ViewAs(pct) + "\n"
	dim := lipgloss.NewStyle().Foreground(lipgloss.Color("244"))
	if m.current != "" && !m.finished {
		s += dim.Render("Folder: "+m.current) + "\n"
	}
	s += dim.Render(fmt.Sprintf("copied %d  already present %d  excluded folders %d", m.copied, m.skipped, m.excluded)) + "\n\n"
	switch {
	case m.finished && m.err != nil:
		s += lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Render("Error: "+m.err.Error()) + "\n"
	case m.finished && m.copied == 0:
		s += dim.Render("Destination is up to date.") + "\n"
	}
	return s
}

// rate prefers the smoothed rate and falls back to the average since start.
func (m *model) rate() float64 {
	if m.emaRate > 0.01 {
		return m.emaRate
	}
	elapsed := time.Since(m.started)
	if elapsed <= 0 {
		return 0
	}
	return float64(m.doneAll) / elapsed.Seconds()
}

func formatETA(remaining int, rate float64) string {
	if remaining < 0 {
		return "ETA --"
	}
	if remaining == 0 {
		return "ETA 0s"
	}
	if rate <= 0.01 { // too low/unstable
		return "ETA --"
	}
	secs := float64(remaining) / rate
	if secs < 1 {
		return "ETA <1s"
	}
	d := time.Duration(secs) * time.Second
	// cap very large ETAs to something readable
	if d > 99*time.Hour {
		return "ETA >99h"
	}
	if d >= time.Hour {
		h := int(d / time.Hour)
		rem := d - time.Duration(h)*time.Hour
		return fmt.Sprintf("ETA %dh%dm", h, int(rem/time.Minute))
	}
	if d >= time.Minute {
		return fmt.Sprintf("ETA %dm%ds", int(d.Minutes()), int(d.Seconds())%60)
	}
	return fmt.Sprintf("ETA %ds", int(d.Seconds()))
}

// updateEMARate updates the EMA of processing rate based on deltas since last tick.
func (m *model) updateEMARate() {
	now := time.Now()
	dt := now.Sub(m.lastAt).Seconds()
	if dt <= 0 {
		return
	}
	inst := float64(m.doneAll-m.lastDone) / dt
	// half-life ~3s
	alpha := 1 - math.Exp(-math.Ln2*dt/3.0)
	if m.emaRate == 0 {
		m.emaRate = inst
	} else {
		m.emaRate = alpha*inst + (1-alpha)*m.emaRate
	}
	m.lastDone = m.doneAll
	m.lastAt = now
}

// runTUI runs the copy behind the progress display.
func runTUI(ctx context.Context, cancel context.CancelFunc, worker *syncer.Syncer, rep *report.Report) (*syncer.Result, error) {
	m := newModel(ctx, cancel, worker, rep)
	if _, err := tea.NewProgram(m).Run(); err != nil {
		if !m.finished {
			cancel()
			return nil, fmt.Errorf("progress display: %w", err)
		}
	}
	return m.res, m.err
}

type confirmModel struct {
	title   string
	summary string
	choice  *bool
}

func newConfirmModel(title, summary string) *confirmModel {
	return &confirmModel{title: title, summary: summary}
}

func (m *confirmModel) Init() tea.Cmd { return nil }

func (m *confirmModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "y", "enter":
			v := true
			m.choice = &v
			return m, tea.Quit
		case "n", "q", "esc", "ctrl+c":
			v := false
			m.choice = &v
			return m, tea.Quit
		}
	}
	return m, nil
}

func (m *confirmModel) View() string {
	title := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("63")).Render(m.title)
	desc := lipgloss.NewStyle().Foreground(lipgloss.Color("244")).Render("Press y to confirm, n to cancel")
	box := lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(1, 2).Width(78).Render(m.summary)
	return fmt.Sprintf("%s\n\n%s\n\n%s\n", title, box, desc)
}

// runConfirmTUI displays a confirmation dialog with a summary and returns true if confirmed.
func runConfirmTUI(title, summary string) (bool, error) {
	m := newConfirmModel(title, summary)
	if _, err := tea.NewProgram(m).Run(); err != nil {
		return false, err
	}
	if m.choice == nil {
		return false, nil
	}
	return *m.choice, nil
}
