package bridge

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/muurk/mypv/internal/command"
	"github.com/muurk/mypv/internal/coordinator"
	"github.com/muurk/mypv/internal/device"
	"github.com/muurk/mypv/internal/entity"
	"github.com/muurk/mypv/internal/snapshot"
)

// fakeDevice is an in-memory AC-THOR: boost and mode writes change what the
// JSON endpoints report.
type fakeDevice struct {
	mu      sync.Mutex
	boost   int
	devmode int
	// ignoreMode keeps devmode unchanged, like a device refusing the switch.
	ignoreMode bool
	// onModeWrite runs, unlocked, before a devmode write is answered.
	onModeWrite func()
	queries     []string
}

func (d *fakeDevice) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if d.onModeWrite != nil && r.URL.Query().Get(device.ParamMode) != "" {
		d.onModeWrite()
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	if r.URL.RawQuery != "" {
		d.queries = append(d.queries, r.URL.RawQuery)
	}
	switch r.URL.Path {
	case device.PathData:
		q := r.URL.Query()
		switch {
		case q.Get("bststrt") == "1":
			d.boost = 1
		case q.Get("bststrt") == "0":
			d.boost = 0
		case d.ignoreMode:
		case q.Get("devmode") == "1":
			d.devmode = 1
		case q.Get("devmode") == "0":
			d.devmode = 0
		}
		_, _ = w.Write([]byte(`{"power1":500,"rel1_out":1,"load_nom":3000,"temp1":215,"screen_mode_flag":1,"boostactive":` + itoa(d.boost) + `}`))
	case device.PathInfo:
		_, _ = w.Write([]byte(`{"device":"AC-THOR","sn":"2001002106190004"}`))
	case device.PathSetup:
		_, _ = w.Write([]byte(`{"devmode":` + itoa(d.devmode) + `}`))
	default:
		http.NotFound(w, r)
	}
}

func (d *fakeDevice) writes() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.queries...)
}

func itoa(v int) string {
	if v == 1 {
		return "1"
	}
	return "0"
}

// manualClock hands out one ticker that the test fires.
type manualClock struct {
	mu     sync.Mutex
	ticker *manualTicker
}

func (c *manualClock) Now() time.Time { return time.Now() }

func (c *manualClock) Ticker(time.Duration) coordinator.Ticker {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ticker = &manualTicker{c: make(chan time.Time)}
	return c.ticker
}

func (c *manualClock) tick(t *testing.T) {
	t.Helper()
	c.mu.Lock()
	tk := c.ticker
	c.mu.Unlock()
	if tk == nil {
		t.Fatal("no ticker created")
	}
	select {
	case tk.c <- time.Now():
	case <-time.After(2 * time.Second):
		t.Fatal("tick not consumed")
	}
}

type manualTicker struct{ c chan time.Time }

func (t *manualTicker) Chan() <-chan time.Time { return t.c }
func (t *manualTicker) Stop()                  {}

func newHandle(t *testing.T, policy command.RefreshPolicy) (*Handle, *fakeDevice) {
	return newHandleWithClock(t, policy, &fakeDevice{}, nil, 0)
}

func newHandleWithClock(t *testing.T, policy command.RefreshPolicy, dev *fakeDevice, clock coordinator.Clock, setupRefresh time.Duration) (*Handle, *fakeDevice) {
	t.Helper()
	server := httptest.NewServer(dev)
	t.Cleanup(server.Close)

	cfg := coordinator.Config{Host: "192.168.1.50", PollInterval: time.Hour, SetupRefresh: setupRefresh}
	h, err := Configure(cfg, Options{
		Name:          "Boiler",
		Sensors:       []string{entity.KeyPowerAct, "temp1"},
		RefreshPolicy: policy,
		Client:        device.NewClientWithURL(server.URL),
		Clock:         clock,
	})
	if err != nil {
		t.Fatalf("Configure() error = %v", err)
	}
	t.Cleanup(func() { _ = h.Shutdown(context.Background()) })
	return h, dev
}

func startAndWait(t *testing.T, h *Handle) {
	t.Helper()
	first := make(chan coordinator.Update, 1)
	stop := h.OnUpdate(func(u coordinator.Update) {
		select {
		case first <- u:
		default:
		}
	})
	defer stop()

	if err := h.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	select {
	case u := <-first:
		if u.Err != nil {
			t.Fatalf("first cycle failed: %v", u.Err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no initial update")
	}
}

func TestConfigureValidation(t *testing.T) {
	if _, err := Configure(coordinator.Config{}, Options{}); err == nil {
		t.Error("Configure() with empty host should fail")
	}
	if _, err := Configure(coordinator.Config{Host: "h"}, Options{Sensors: []string{"bogus"}}); err == nil {
		t.Error("Configure() with unknown sensor should fail")
	}
}

func TestHandleEndToEnd(t *testing.T) {
	h, dev := newHandle(t, command.RefreshWait)
	startAndWait(t, h)

	snap := h.Snapshot()
	if snap.Identity.Serial != "2001002106190004" {
		t.Errorf("Identity = %+v", snap.Identity)
	}

	states := h.SensorStates(snap)
	if len(states) != 2 || states[0].Value != 3500.0 || states[1].Value != 21.5 {
		t.Errorf("SensorStates() = %+v", states)
	}

	// Boost is off, so pressing requests bststrt=1 and the waited refresh
	// shows it active.
	if err := h.TriggerBoost(context.Background()); err != nil {
		t.Fatalf("TriggerBoost() error = %v", err)
	}
	if active, _ := h.Snapshot().Data.Bool("boostactive"); !active {
		t.Error("boost should be active after the refresh")
	}
	if err := h.TriggerBoost(context.Background()); err != nil {
		t.Fatalf("TriggerBoost() error = %v", err)
	}

	if err := h.SetMode(context.Background(), true); err != nil {
		t.Fatalf("SetMode() error = %v", err)
	}
	if on := h.Entities().Mode.IsOn(h.Snapshot()); !on {
		t.Error("mode should read on optimistically")
	}

	want := []string{"bststrt=1", "bststrt=0", "devmode=1"}
	got := dev.writes()
	if len(got) != len(want) {
		t.Fatalf("writes = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("write %d = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestHandleModeReconcilesWithRefusedWrite(t *testing.T) {
	clock := &manualClock{}
	h, _ := newHandleWithClock(t, command.RefreshWait, &fakeDevice{ignoreMode: true}, clock, 0)
	startAndWait(t, h)

	setupFetched := make(chan coordinator.Update, 1)
	stop := h.OnUpdate(func(u coordinator.Update) {
		for _, k := range u.Fetched {
			if k == snapshot.KindSetup {
				select {
				case setupFetched <- u:
				default:
				}
				return
			}
		}
	})
	defer stop()

	if err := h.SetMode(context.Background(), true); err != nil {
		t.Fatalf("SetMode() error = %v", err)
	}
	if !h.Entities().Mode.IsOn(h.Snapshot()) {
		t.Fatal("mode should read on optimistically")
	}

	// The next scheduled cycle refetches setup, which still says off.
	clock.tick(t)
	select {
	case u := <-setupFetched:
		if h.Entities().Mode.IsOn(u.Snapshot) {
			t.Error("mode should follow setup.devmode=0 once setup is refetched")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("setup was not refetched after the mode write")
	}
	if h.Entities().Mode.Pending() {
		t.Error("optimistic state should be cleared")
	}
}

func TestHandleModeReconcilesWithSetupFetchedDuringWrite(t *testing.T) {
	clock := &manualClock{}
	dev := &fakeDevice{ignoreMode: true}
	// Every scheduled cycle refetches setup.
	h, _ := newHandleWithClock(t, command.RefreshWait, dev, clock, time.Nanosecond)
	startAndWait(t, h)

	setupFetched := make(chan struct{}, 1)
	stop := h.OnUpdate(func(u coordinator.Update) {
		for _, k := range u.Fetched {
			if k == snapshot.KindSetup {
				select {
				case setupFetched <- struct{}{}:
				default:
				}
			}
		}
	})
	defer stop()

	// A scheduled cycle runs to completion while the write is in flight;
	// the setup it fetches still reports off.
	ticked := make(chan bool, 1)
	dev.onModeWrite = func() {
		clock.mu.Lock()
		tk := clock.ticker
		clock.mu.Unlock()
		select {
		case tk.c <- time.Now():
		case <-time.After(2 * time.Second):
			ticked <- false
			return
		}
		select {
		case <-setupFetched:
			ticked <- true
		case <-time.After(2 * time.Second):
			ticked <- false
		}
	}

	if err := h.SetMode(context.Background(), true); err != nil {
		t.Fatalf("SetMode() error = %v", err)
	}
	if !<-ticked {
		t.Fatal("scheduled cycle did not run during the write")
	}
	if h.Entities().Mode.IsOn(h.Snapshot()) {
		t.Error("mode pinned on although setup fetched during the write reports devmode=0")
	}
}

func TestHandleShutdownDropsFollowUp(t *testing.T) {
	h, dev := newHandle(t, command.RefreshAsync)
	startAndWait(t, h)

	if err := h.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown() error = %v", err)
	}
	// The write still goes out; the refresh request is dropped quietly.
	if err := h.TriggerBoost(context.Background()); err != nil {
		t.Errorf("TriggerBoost() after shutdown error = %v", err)
	}
	if len(dev.writes()) != 1 {
		t.Errorf("writes = %v", dev.writes())
	}
}
