// Package display renders the kiosk's status dashboard in the terminal
// using Bubble Tea.
//
// The dashboard never drives anything. It samples the shared state on a
// short tick and collects voice events through [Dashboard.Observe], which
// is safe to call from any goroutine and never blocks.
package display

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/hammamikhairi/omnis/internal/coord"
	"github.com/hammamikhairi/omnis/internal/domain"
	"github.com/hammamikhairi/omnis/internal/voice"
)

// ── Styles ───────────────────────────────────────────────────────

var (
	barBg = lipgloss.NewStyle().
		Background(lipgloss.Color("#27272a")).
		Foreground(lipgloss.Color("#a1a1aa"))

	labelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#a1a1aa"))

	sepStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#52525b"))

	knownStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#bbf7d0"))

	unknownStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#fca5a5"))

	awakeStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#fde68a")).
			Bold(true)

	idleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#71717a")).
			Italic(true)

	// BannerStyle is the muted slate used for the startup banner.
	BannerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#94a3b8"))

	heardStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#d4d4d8"))

	saidStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#bae6fd"))

	secondaryStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#71717a"))
)

// ── Dashboard ────────────────────────────────────────────────────

// SpeechStatus is the part of the speech queue the dashboard shows.
type SpeechStatus interface {
	QueueLen() int
	LastSpoken() string
}

// Status is one rendered frame of the dashboard.
type Status struct {
	Visible             []string
	Speaking            bool
	RegistrationPending bool
	Voice               voice.State
	Queued              int
	LastHeard           string
	LastSaid            string
	Recent              []string
}

const recentEvents = 6

// Dashboard shows who is visible, the conversation state, and what was
// last heard and said.
type Dashboard struct {
	state  *coord.State
	speech SpeechStatus

	mu        sync.Mutex
	voice     voice.State
	lastHeard string
	recent    []string

	program *tea.Program
	readyCh chan struct{}
}

// New creates a dashboard. speech may be nil when output is disabled.
func New(state *coord.State, speech SpeechStatus) *Dashboard {
	return &Dashboard{
		state:   state,
		speech:  speech,
		readyCh: make(chan struct{}),
	}
}

// Observe records a voice event. Pass it to voice.WithObserver.
func (d *Dashboard) Observe(e voice.Event) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.voice = e.State
	var line string
	switch e.Kind {
	case voice.EventState:
		line = "conversation " + e.State.String()
	case voice.EventHeard:
		d.lastHeard = e.Text
		line = "heard: " + e.Text
	case voice.EventCommand:
		line = "command: " + e.Text
	case voice.EventRegistered:
		line = "registered " + e.Text
	case voice.EventDiscarded:
		line = "discarded own speech"
	case voice.EventMicError:
		line = "microphone: " + e.Text
	default:
		return
	}
	d.recent = append(d.recent, e.At.Format("15:04:05")+"  "+line)
	if len(d.recent) > recentEvents {
		d.recent = d.recent[len(d.recent)-recentEvents:]
	}
}

// Status samples everything the dashboard shows.
func (d *Dashboard) Status() Status {
	snap := d.state.Snapshot()
	st := Status{
		Visible:             snap.Visible,
		Speaking:            snap.Speaking,
		RegistrationPending: snap.RegistrationPending,
	}
	if d.speech != nil {
		st.Queued = d.speech.QueueLen()
		st.LastSaid = d.speech.LastSpoken()
	}

	d.mu.Lock()
	st.Voice = d.voice
	st.LastHeard = d.lastHeard
	st.Recent = append([]string(nil), d.recent...)
	d.mu.Unlock()
	return st
}

// WaitReady blocks until the event loop is running.
func (d *Dashboard) WaitReady() { <-d.readyCh }

// Run shows the dashboard until ctx is cancelled or the user presses q.
func (d *Dashboard) Run(ctx context.Context) error {
	d.program = tea.NewProgram(model{dash: d, readyCh: d.readyCh}, tea.WithContext(ctx))
	_, err := d.program.Run()
	if ctx.Err() != nil {
		return nil
	}
	return err
}

// ── Bubble Tea model ─────────────────────────────────────────────

type model struct {
	dash    *Dashboard
	readyCh chan struct{}
	status  Status
	width   int
}

type tickMsg time.Time

func (m model) Init() tea.Cmd {
	return tea.Batch(tickCmd(), signalReady(m.readyCh))
}

func signalReady(ch chan struct{}) tea.Cmd {
	return func() tea.Msg {
		close(ch)
		return nil
	}
}

func tickCmd() tea.Cmd {
	return tea.Tick(250*time.Millisecond, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			return m, tea.Quit
		}
	case tea.WindowSizeMsg:
		m.width = msg.Width
	case tickMsg:
		m.status = m.dash.Status()
		return m, tea.Batch(tickCmd(), tea.SetWindowTitle(titleStr(m.status)))
	}
	return m, nil
}

func (m model) View() string {
	return renderStatus(m.status, m.width)
}

func titleStr(s Status) string {
	known, unknown := domain.VisibleSet(s.Visible).Partition()
	return fmt.Sprintf("OMNIS · %s · %d known, %d unknown", s.Voice, len(known), unknown)
}

// renderStatus lays out one dashboard frame.
func renderStatus(s Status, width int) string {
	if width <= 0 {
		width = 80
	}
	var b strings.Builder

	// Status bar.
	voiceState := idleStyle.Render("idle, say the wake word")
	if s.Voice == voice.Awake {
		voiceState = awakeStyle.Render("listening")
	}
	parts := []string{labelStyle.Render("voice: ") + voiceState}
	if s.Speaking {
		parts = append(parts, saidStyle.Render("speaking"))
	}
	if s.Queued > 0 {
		parts = append(parts, labelStyle.Render(fmt.Sprintf("%d queued", s.Queued)))
	}
	if s.RegistrationPending {
		parts = append(parts, awakeStyle.Render("waiting for a name"))
	}
	b.WriteString(barBg.Width(width).Render(" " + strings.Join(parts, sepStyle.Render("  │  ")) + " "))
	b.WriteString("\n\n")

	// People in view.
	b.WriteString(labelStyle.Render("  In view: "))
	if len(s.Visible) == 0 {
		b.WriteString(secondaryStyle.Render("nobody"))
	}
	for i, label := range s.Visible {
		if i > 0 {
			b.WriteString(sepStyle.Render(", "))
		}
		if label == domain.UnknownLabel {
			b.WriteString(unknownStyle.Render(label))
		} else {
			b.WriteString(knownStyle.Render(label))
		}
	}
	b.WriteString("\n")

	b.WriteString(labelStyle.Render("  Heard:   ") + heardStyle.Render(orDash(s.LastHeard)) + "\n")
	b.WriteString(labelStyle.Render("  Said:    ") + saidStyle.Render(orDash(s.LastSaid)) + "\n")

	if len(s.Recent) > 0 {
		b.WriteString("\n")
		for _, r := range s.Recent {
			b.WriteString(secondaryStyle.Render("  "+r) + "\n")
		}
	}
	b.WriteString("\n" + secondaryStyle.Render("  q to quit"))
	return b.String()
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
