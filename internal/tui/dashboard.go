package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/muurk/mypv/internal/coordinator"
	"github.com/muurk/mypv/internal/device"
	"github.com/muurk/mypv/internal/entity"
	"github.com/muurk/mypv/internal/snapshot"
)

// DefaultCommandTimeout bounds a command started from the dashboard
const DefaultCommandTimeout = 20 * time.Second

// Device is one polled device as the dashboard sees it.
type Device interface {
	Host() string
	Name() string
	Snapshot() snapshot.Snapshot
	Entities() *entity.Set
	OnUpdate(fn coordinator.UpdateFunc) (unsubscribe func())
	TriggerBoost(ctx context.Context) error
	SetMode(ctx context.Context, enabled bool) error
	Refresh(ctx context.Context) error
}

// updateMsg signals that host published a new snapshot.
type updateMsg struct {
	host string
}

// commandDoneMsg carries the result of a device command.
type commandDoneMsg struct {
	host   string
	action string
	err    error
}

// Model is the dashboard state.
type Model struct {
	ctx     context.Context
	devices []Device
	updates <-chan string
	timeout time.Duration

	cursor    int
	busy      map[string]string
	status    string
	statusErr bool

	width  int
	height int

	spinner spinner.Model
	help    help.Model
	keys    keyMap
}

// NewModel creates a dashboard over devices. updates carries the host of
// every device that published; it may be nil.
func NewModel(ctx context.Context, devices []Device, updates <-chan string) Model {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = spinnerStyle

	width, height := TerminalSize()
	return Model{
		ctx:     ctx,
		devices: devices,
		updates: updates,
		timeout: DefaultCommandTimeout,
		busy:    make(map[string]string),
		width:   width,
		height:  height,
		spinner: s,
		help:    help.New(),
		keys:    defaultKeyMap(),
	}
}

// Init implements tea.Model
func (m Model) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, waitForUpdate(m.updates))
}

// waitForUpdate blocks on the next published host.
func waitForUpdate(updates <-chan string) tea.Cmd {
	if updates == nil {
		return nil
	}
	return func() tea.Msg {
		host, ok := <-updates
		if !ok {
			return nil
		}
		return updateMsg{host: host}
	}
}

// Update implements tea.Model
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = clampWidth(msg.Width)
		m.height = msg.Height
		m.help.Width = m.width
		return m, nil

	case updateMsg:
		return m, waitForUpdate(m.updates)

	case commandDoneMsg:
		delete(m.busy, msg.host)
		if msg.err != nil {
			m.status = fmt.Sprintf("%s on %s failed: %s", msg.action, msg.host, device.ShortMessage(msg.err))
			m.statusErr = true
		} else {
			m.status = fmt.Sprintf("%s on %s done", msg.action, msg.host)
			m.statusErr = false
		}
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case tea.KeyMsg:
		return m.handleKey(msg)
	}
	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Quit):
		return m, tea.Quit
	case key.Matches(msg, m.keys.Help):
		m.help.ShowAll = !m.help.ShowAll
		return m, nil
	case key.Matches(msg, m.keys.Up):
		if m.cursor > 0 {
			m.cursor--
		}
		return m, nil
	case key.Matches(msg, m.keys.Down):
		if m.cursor < len(m.devices)-1 {
			m.cursor++
		}
		return m, nil
	}

	dev := m.selected()
	if dev == nil {
		return m, nil
	}

	var action string
	var run func(ctx context.Context) error
	switch {
	case key.Matches(msg, m.keys.Boost):
		action = "boost"
		run = dev.TriggerBoost
	case key.Matches(msg, m.keys.Mode):
		enabled := !dev.Entities().Mode.IsOn(dev.Snapshot())
		action = "mode " + onOff(enabled)
		run = func(ctx context.Context) error { return dev.SetMode(ctx, enabled) }
	case key.Matches(msg, m.keys.Refresh):
		action = "refresh"
		run = dev.Refresh
	default:
		return m, nil
	}

	host := dev.Host()
	if pending, ok := m.busy[host]; ok {
		m.status = fmt.Sprintf("%s still running on %s", pending, host)
		m.statusErr = false
		return m, nil
	}
	m.busy[host] = action
	m.status = ""
	return m, m.command(host, action, run)
}

func (m Model) command(host, action string, run func(ctx context.Context) error) tea.Cmd {
	parent, timeout := m.ctx, m.timeout
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(parent, timeout)
		defer cancel()
		return commandDoneMsg{host: host, action: action, err: run(ctx)}
	}
}

func (m Model) selected() Device {
	if m.cursor < 0 || m.cursor >= len(m.devices) {
		return nil
	}
	return m.devices[m.cursor]
}

// View implements tea.Model
func (m Model) View() string {
	width := m.width - 2
	if width < MinTerminalWidth-2 {
		width = MinTerminalWidth - 2
	}

	var cards []string
	if len(m.devices) == 0 {
		cards = append(cards, subtleStyle.Render("No devices configured. Add one with \"mypv add <host>\"."))
	}
	for i, dev := range m.devices {
		cards = append(cards, m.renderCard(dev, i == m.cursor, width))
	}

	status := m.status
	switch {
	case len(m.busy) > 0 && status == "":
		status = m.spinner.View() + " " + m.busyLabel()
	case m.statusErr:
		status = errorStyle.Render(status)
	default:
		status = subtleStyle.Render(status)
	}

	return lipgloss.JoinVertical(lipgloss.Left,
		renderHeader(width),
		lipgloss.JoinVertical(lipgloss.Left, cards...),
		renderFooter(status, m.help.View(m.keys), width),
	)
}

func (m Model) busyLabel() string {
	parts := make([]string, 0, len(m.busy))
	for _, dev := range m.devices {
		if action, ok := m.busy[dev.Host()]; ok {
			parts = append(parts, action+" on "+dev.Host())
		}
	}
	return strings.Join(parts, ", ")
}

func (m Model) renderCard(dev Device, selected bool, width int) string {
	snap := dev.Snapshot()
	set := dev.Entities()

	title := titleStyle.Render(dev.Name()) + subtleStyle.Render("  "+dev.Host()) + "  " + healthBadge(snap)

	lines := []string{title, row("Device", identityLabel(snap.Identity))}
	for _, st := range set.SensorStates(snap) {
		lines = append(lines, row(st.Name, entity.FormatValue(st)))
	}

	boost := "unavailable"
	if active, ok := snap.Data.Bool("boostactive"); ok {
		boost = "inactive"
		if active {
			boost = "active"
		}
	}
	lines = append(lines,
		row("Boost", boost),
		row("Mode", entity.FormatValue(set.ModeState(snap))),
		row("Last update", age(snap.LastSuccessAt)),
	)
	if snap.LastError != nil {
		lines = append(lines, errorStyle.Render(device.ShortMessage(snap.LastError)))
		if hint := device.Hint(snap.LastError); hint != "" {
			lines = append(lines, subtleStyle.Render(hint))
		}
	}

	style := cardStyle
	if selected {
		style = selectedCardStyle
	}
	return style.Width(width - 2).Render(strings.Join(lines, "\n"))
}

func row(label, value string) string {
	return labelStyle.Render(label) + valueStyle.Render(value)
}

func healthBadge(snap snapshot.Snapshot) string {
	switch {
	case snap.Empty():
		return subtleStyle.Render("waiting")
	case snap.Healthy():
		return onlineStyle.Render("online")
	default:
		return staleStyle.Render("stale")
	}
}

func identityLabel(id snapshot.Identity) string {
	if !id.Known() {
		return "-"
	}
	return id.Model + " " + id.Serial
}

func age(t time.Time) string {
	if t.IsZero() {
		return "never"
	}
	return time.Since(t).Truncate(time.Second).String() + " ago"
}

func onOff(v bool) string {
	if v {
		return "on"
	}
	return "off"
}
