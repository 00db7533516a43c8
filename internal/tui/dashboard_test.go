package tui

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/muurk/mypv/internal/coordinator"
	"github.com/muurk/mypv/internal/entity"
	"github.com/muurk/mypv/internal/snapshot"
)

type fakeDevice struct {
	host string
	name string
	set  *entity.Set

	mu        sync.Mutex
	snap      snapshot.Snapshot
	boosts    int
	modes     []bool
	refreshes int
	err       error
}

func newFakeDevice(t *testing.T, host, name string) *fakeDevice {
	t.Helper()
	d := &fakeDevice{host: host, name: name, snap: testSnapshot()}
	set, err := entity.NewSet(entity.Options{Host: host, Name: name, Sensors: []string{"temp1"}}, nil, nil, d)
	if err != nil {
		t.Fatalf("NewSet() error = %v", err)
	}
	d.set = set
	return d
}

func (d *fakeDevice) Host() string { return d.host }
func (d *fakeDevice) Name() string { return d.name }
func (d *fakeDevice) Entities() *entity.Set { return d.set }

func (d *fakeDevice) Snapshot() snapshot.Snapshot {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.snap
}

func (d *fakeDevice) OnUpdate(coordinator.UpdateFunc) func() { return func() {} }

func (d *fakeDevice) TriggerBoost(context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.boosts++
	return d.err
}

func (d *fakeDevice) SetMode(_ context.Context, enabled bool) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.modes = append(d.modes, enabled)
	return d.err
}

func (d *fakeDevice) Refresh(context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.refreshes++
	return d.err
}

func testSnapshot() snapshot.Snapshot {
	return snapshot.Snapshot{
		Data:          snapshot.Resource{"temp1": json.Number("215"), "boostactive": json.Number("1")},
		Info:          snapshot.Resource{"device": "AC-THOR", "sn": "2001"},
		Setup:         snapshot.Resource{"devmode": json.Number("1")},
		LastSuccessAt: time.Now(),
		Identity:      snapshot.Identity{Serial: "2001", Model: "AC-THOR"},
	}
}

func keyPress(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func newModel(devices ...*fakeDevice) Model {
	list := make([]Device, 0, len(devices))
	for _, d := range devices {
		list = append(list, d)
	}
	m := NewModel(context.Background(), list, nil)
	m.width = 80
	return m
}

// press sends a key and runs the resulting command, feeding its message back.
func press(t *testing.T, m Model, k string) Model {
	t.Helper()
	updated, cmd := m.Update(keyPress(k))
	m = updated.(Model)
	if cmd == nil {
		return m
	}
	updated, _ = m.Update(cmd())
	return updated.(Model)
}

func TestViewShowsDevices(t *testing.T) {
	m := newModel(newFakeDevice(t, "192.168.1.50", "Boiler"), newFakeDevice(t, "192.168.1.51", "Buffer"))
	view := m.View()
	for _, want := range []string{AppName, "Boiler", "Buffer", "192.168.1.50", "AC-THOR 2001", "21.5 °C", "online", "active"} {
		if !strings.Contains(view, want) {
			t.Errorf("View() missing %q", want)
		}
	}
}

func TestViewNoDevices(t *testing.T) {
	m := newModel()
	if !strings.Contains(m.View(), "No devices configured") {
		t.Error("View() should explain that nothing is configured")
	}
	if _, cmd := m.Update(keyPress("b")); cmd != nil {
		t.Error("boost with no devices should do nothing")
	}
}

func TestViewStaleDevice(t *testing.T) {
	dev := newFakeDevice(t, "192.168.1.50", "Boiler")
	dev.snap.LastError = errors.New("connection refused")
	view := newModel(dev).View()
	if !strings.Contains(view, "stale") {
		t.Error("View() should mark the device stale")
	}
}

func TestCommands(t *testing.T) {
	tests := []struct {
		key   string
		check func(d *fakeDevice) bool
		want  string
	}{
		{"b", func(d *fakeDevice) bool { return d.boosts == 1 }, "boost on 192.168.1.50 done"},
		{"m", func(d *fakeDevice) bool { return len(d.modes) == 1 && !d.modes[0] }, "mode off on 192.168.1.50 done"},
		{"r", func(d *fakeDevice) bool { return d.refreshes == 1 }, "refresh on 192.168.1.50 done"},
	}
	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			dev := newFakeDevice(t, "192.168.1.50", "Boiler")
			m := press(t, newModel(dev), tt.key)
			if !tt.check(dev) {
				t.Errorf("device state after %q: %+v", tt.key, dev)
			}
			if m.status != tt.want || m.statusErr {
				t.Errorf("status = %q (err %v), want %q", m.status, m.statusErr, tt.want)
			}
			if len(m.busy) != 0 {
				t.Errorf("busy = %v after completion", m.busy)
			}
		})
	}
}

func TestCommandFailure(t *testing.T) {
	dev := newFakeDevice(t, "192.168.1.50", "Boiler")
	dev.err = errors.New("boom")
	m := press(t, newModel(dev), "b")
	if !m.statusErr || !strings.Contains(m.status, "boost on 192.168.1.50 failed") {
		t.Errorf("status = %q (err %v)", m.status, m.statusErr)
	}
}

func TestBusyDeviceIgnoresSecondCommand(t *testing.T) {
	dev := newFakeDevice(t, "192.168.1.50", "Boiler")
	m := newModel(dev)

	updated, first := m.Update(keyPress("b"))
	m = updated.(Model)
	if first == nil {
		t.Fatal("first press should start a command")
	}
	updated, second := m.Update(keyPress("r"))
	m = updated.(Model)
	if second != nil {
		t.Error("second command should be refused while busy")
	}
	if !strings.Contains(m.status, "boost still running") {
		t.Errorf("status = %q", m.status)
	}
}

func TestCursor(t *testing.T) {
	a := newFakeDevice(t, "192.168.1.50", "Boiler")
	b := newFakeDevice(t, "192.168.1.51", "Buffer")
	m := newModel(a, b)

	m = press(t, m, "k")
	if m.cursor != 0 {
		t.Errorf("cursor = %d, want 0", m.cursor)
	}
	m = press(t, m, "j")
	m = press(t, m, "j")
	if m.cursor != 1 {
		t.Errorf("cursor = %d, want 1", m.cursor)
	}
	m = press(t, m, "b")
	if a.boosts != 0 || b.boosts != 1 {
		t.Errorf("boosts = %d, %d; want 0, 1", a.boosts, b.boosts)
	}
}

func TestQuitAndHelp(t *testing.T) {
	m := newModel(newFakeDevice(t, "192.168.1.50", "Boiler"))

	updated, _ := m.Update(keyPress("?"))
	if !updated.(Model).help.ShowAll {
		t.Error("? should expand help")
	}

	_, cmd := m.Update(keyPress("q"))
	if cmd == nil {
		t.Fatal("q should return a command")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Error("q should quit")
	}
}

func TestWaitForUpdate(t *testing.T) {
	if waitForUpdate(nil) != nil {
		t.Error("nil channel should yield no command")
	}
	ch := make(chan string, 1)
	ch <- "192.168.1.50"
	if msg := waitForUpdate(ch)(); msg != (updateMsg{host: "192.168.1.50"}) {
		t.Errorf("msg = %#v", msg)
	}
	close(ch)
	if msg := waitForUpdate(ch)(); msg != nil {
		t.Errorf("closed channel msg = %#v", msg)
	}
}

func TestWindowSize(t *testing.T) {
	m := newModel()
	updated, _ := m.Update(tea.WindowSizeMsg{Width: 500, Height: 40})
	if got := updated.(Model).width; got != MaxContentWidth {
		t.Errorf("width = %d, want %d", got, MaxContentWidth)
	}
}
