// Package live is the terminal dashboard shown by `volley run --tui`. It only
// consumes run events; stopping goes back through the supplied callback.
package live

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"volley/internal/runner"
	"volley/internal/stats"
	"volley/internal/tui/components"
	"volley/internal/tui/styles"
)

const tickInterval = 500 * time.Millisecond

type eventMsg runner.Event

// closedMsg arrives when the event channel is closed, i.e. the run is over.
type closedMsg struct{}

type tickMsg time.Time

type Model struct {
	events <-chan runner.Event
	stop   func()
	cfg    runner.Config

	RunID     string
	State     string
	Stats     stats.Snapshot
	LastError string

	Progress    progress.Model
	RpsLine     components.Sparkline
	LatencyLine components.Sparkline

	lastTick     time.Time
	lastReceived int64
	stopAsked    bool

	Width int
}

// NewModel renders cfg's run from events. stop is called once when the
// user asks to quit while the run is still going.
func NewModel(cfg runner.Config, events <-chan runner.Event, stop func()) Model {
	return Model{
		events:      events,
		stop:        stop,
		cfg:         cfg,
		State:       runner.StateRunning.String(),
		Progress:    progress.New(progress.WithDefaultGradient()),
		RpsLine:     components.NewSparkline(40, "Responses / s", styles.Active),
		LatencyLine: components.NewSparkline(40, "Avg response time (ms)", styles.Warn),
		lastTick:    time.Now(),
	}
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(waitForEvent(m.events), tick())
}

func waitForEvent(events <-chan runner.Event) tea.Cmd {
	return func() tea.Msg {
		ev, ok := <-events
		if !ok {
			return closedMsg{}
		}
		return eventMsg(ev)
	}
}

func tick() tea.Cmd {
	return tea.Tick(tickInterval, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case eventMsg:
		m.apply(runner.Event(msg))
		return m, tea.Batch(waitForEvent(m.events), m.Progress.SetPercent(m.percent()))

	case closedMsg:
		return m, tea.Quit

	case tickMsg:
		now := time.Time(msg)
		dt := max(now.Sub(m.lastTick).Seconds(), 0.01)
		delta := m.Stats.ReceivedResponses - m.lastReceived

		m.RpsLine.Add(int64(float64(delta) / dt))
		m.LatencyLine.Add(int64(m.Stats.AvgResponseTime))
		m.lastReceived = m.Stats.ReceivedResponses
		m.lastTick = now
		return m, tick()

	case tea.KeyMsg:
		switch msg.String() {
		case "q", "esc", "ctrl+c":
			if m.stopAsked || m.State != runner.StateRunning.String() {
				return m, tea.Quit
			}
			m.stopAsked = true
			if m.stop != nil {
				m.stop()
			}
		}
		return m, nil

	case tea.WindowSizeMsg:
		m.Width = msg.Width
		m.Progress.Width = max(msg.Width-4, 10)

		half := max(msg.Width/2-6, 10)
		m.RpsLine.Resize(half)
		m.LatencyLine.Resize(half)
		return m, nil

	case progress.FrameMsg:
		prog, cmd := m.Progress.Update(msg)
		m.Progress = prog.(progress.Model)
		return m, cmd
	}

	return m, nil
}

func (m *Model) apply(ev runner.Event) {
	switch ev.Type {
	case runner.EventStarted:
		m.RunID = ev.RunID
	case runner.EventUpdate:
		if ev.Update == nil {
			return
		}
		m.Stats = ev.Update.Stats
		if ev.Update.Error != "" {
			m.LastError = ev.Update.Error
		}
	case runner.EventStopped:
		m.State = runner.StateStopped.String()
	case runner.EventCompleted:
		m.State = runner.StateCompleted.String()
		if ev.Final != nil {
			m.Stats = *ev.Final
		}
	}
}

func (m Model) percent() float64 {
	if m.cfg.TotalRequests <= 0 {
		return 0
	}
	return min(float64(m.Stats.ReceivedResponses)/float64(m.cfg.TotalRequests), 1)
}

func (m Model) View() string {
	s := strings.Builder{}

	s.WriteString(styles.Title.Render(fmt.Sprintf("%s %s", m.cfg.Method, m.cfg.URL)))
	s.WriteString("\n")
	s.WriteString(styles.Subtle.Render(fmt.Sprintf("run %s · %d users · state %s", m.RunID, m.cfg.ConcurrentUsers, m.State)))
	s.WriteString("\n\n")

	st := m.Stats
	failPct := 0.0
	if st.TotalRequests > 0 {
		failPct = float64(st.FailedRequests) / float64(st.TotalRequests) * 100
	}

	col1 := fmt.Sprintf("SENT: %d\nRECV: %d / %d", st.SentRequests, st.ReceivedResponses, m.cfg.TotalRequests)
	col2 := fmt.Sprintf("OK: %d\nFAIL: %d (%.2f%%)", st.SuccessfulRequests, st.FailedRequests, failPct)
	col3 := fmt.Sprintf("RPS: %.1f\nOK RATE: %.1f%%", st.RequestsPerSecond, st.SuccessRate)

	s.WriteString(lipgloss.JoinHorizontal(lipgloss.Top,
		styles.Box.Render(col1),
		styles.Box.Render(styles.RateStyle(failPct).Render(col2)),
		styles.Box.Render(col3),
	))
	s.WriteString("\n")

	s.WriteString(lipgloss.JoinHorizontal(lipgloss.Top,
		styles.Box.Render(m.RpsLine.View()),
		styles.Box.Render(m.LatencyLine.View()),
	))
	s.WriteString("\n")

	latencies := fmt.Sprintf(
		"Avg: %.1f ms | P50: %d ms | P90: %.1f ms | P95: %.1f ms | P99: %d ms | Min: %d ms | Max: %d ms",
		st.AvgResponseTime, st.P50, st.TP90, st.TP95, st.P99, st.MinResponseTime, st.MaxResponseTime,
	)
	s.WriteString(styles.Box.Render(latencies))
	s.WriteString("\n")

	if codes := statusLine(st.StatusCodes); codes != "" {
		s.WriteString(styles.Box.Render(codes))
		s.WriteString("\n")
	}
	if m.LastError != "" {
		s.WriteString(styles.Error.Render("last error: " + m.LastError))
		s.WriteString("\n")
	}

	s.WriteString("\n")
	s.WriteString(m.Progress.View())
	s.WriteString("\n\n")

	if m.State == runner.StateRunning.String() && !m.stopAsked {
		s.WriteString(styles.RenderKey("q", "stop test"))
	} else {
		s.WriteString(styles.RenderKey("q", "quit"))
	}

	return s.String()
}

func statusLine(codes map[int]int64) string {
	keys := make([]int, 0, len(codes))
	for k := range codes {
		keys = append(keys, k)
	}
	sort.Ints(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		style := styles.Value
		if k != 200 {
			style = styles.Warn
		}
		parts = append(parts, style.Render(fmt.Sprintf("%d", k))+fmt.Sprintf(": %d", codes[k]))
	}
	return strings.Join(parts, "  ")
}
