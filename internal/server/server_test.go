package server

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/muurk/mypv/internal/coordinator"
	"github.com/muurk/mypv/internal/device"
	"github.com/muurk/mypv/internal/entity"
	"github.com/muurk/mypv/internal/snapshot"
)

type fakeDevice struct {
	host string
	set  *entity.Set

	mu       sync.Mutex
	snap     snapshot.Snapshot
	subs     map[int]coordinator.UpdateFunc
	nextSub  int
	boosts   int
	modes    []bool
	writeErr error
	outcome  coordinator.CycleOutcome
}

func newFakeDevice(t *testing.T, host string) *fakeDevice {
	t.Helper()
	d := &fakeDevice{host: host, subs: make(map[int]coordinator.UpdateFunc)}
	set, err := entity.NewSet(entity.Options{Host: host, Name: "Boiler", Sensors: []string{"temp1"}}, nil, nil, d)
	if err != nil {
		t.Fatalf("NewSet() error = %v", err)
	}
	d.set = set
	return d
}

func (d *fakeDevice) Host() string { return d.host }
func (d *fakeDevice) Name() string { return "Boiler" }
func (d *fakeDevice) Entities() *entity.Set { return d.set }

func (d *fakeDevice) Snapshot() snapshot.Snapshot {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.snap
}

func (d *fakeDevice) OnUpdate(fn coordinator.UpdateFunc) func() {
	d.mu.Lock()
	id := d.nextSub
	d.nextSub++
	d.subs[id] = fn
	d.mu.Unlock()
	return func() {
		d.mu.Lock()
		delete(d.subs, id)
		d.mu.Unlock()
	}
}

func (d *fakeDevice) State() coordinator.State { return coordinator.StateIdle }

func (d *fakeDevice) LastOutcome() coordinator.CycleOutcome {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.outcome
}

func (d *fakeDevice) subscribers() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.subs)
}

func (d *fakeDevice) publish(snap snapshot.Snapshot) {
	d.mu.Lock()
	d.snap = snap
	fns := make([]coordinator.UpdateFunc, 0, len(d.subs))
	for _, fn := range d.subs {
		fns = append(fns, fn)
	}
	d.mu.Unlock()
	for _, fn := range fns {
		fn(coordinator.Update{Snapshot: snap})
	}
}

func (d *fakeDevice) TriggerBoost(context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.writeErr != nil {
		return d.writeErr
	}
	d.boosts++
	return nil
}

func (d *fakeDevice) SetMode(_ context.Context, enabled bool) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.writeErr != nil {
		return d.writeErr
	}
	d.modes = append(d.modes, enabled)
	return nil
}

func testSnapshot(cycle uint64, temp string) snapshot.Snapshot {
	return snapshot.Snapshot{
		Data:          snapshot.Resource{"temp1": json.Number(temp), "boostactive": json.Number("0")},
		Info:          snapshot.Resource{"device": "AC-THOR", "sn": "2001"},
		Setup:         snapshot.Resource{"devmode": json.Number("1")},
		LastSuccessAt: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
		DataFetchedAt: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
		Cycle:         cycle,
		Identity:      snapshot.Identity{Serial: "2001", Model: "AC-THOR"},
	}
}

func newTestServer(t *testing.T, devices ...*fakeDevice) *Server {
	t.Helper()
	list := make([]Device, 0, len(devices))
	for _, d := range devices {
		list = append(list, d)
	}
	s, err := New(Config{Addr: "127.0.0.1:0"}, list)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return s
}

func do(t *testing.T, s *Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func TestNewRejectsDuplicates(t *testing.T) {
	d := newFakeDevice(t, "192.168.1.50")
	if _, err := New(Config{}, []Device{d, d}); err == nil {
		t.Error("New() with duplicate hosts should fail")
	}
	if _, err := New(Config{CertFile: "cert.pem"}, nil); err == nil {
		t.Error("New() with only a cert file should fail")
	}
}

func TestHealth(t *testing.T) {
	d := newFakeDevice(t, "192.168.1.50")
	s := newTestServer(t, d)

	rec := do(t, s, http.MethodGet, "/health", "")
	if rec.Code != http.StatusOK {
		t.Errorf("pending device: status = %d, want 200", rec.Code)
	}

	stale := testSnapshot(3, "215")
	stale.LastError = errors.New("timeout")
	d.publish(stale)

	rec = do(t, s, http.MethodGet, "/health", "")
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("stale device: status = %d, want 503", rec.Code)
	}
	var body map[string]any
	_ = json.Unmarshal(rec.Body.Bytes(), &body)
	if body["status"] != "degraded" || body["websocket_clients"] != 0.0 {
		t.Errorf("body = %v", body)
	}
}

func TestDevicesAndSnapshot(t *testing.T) {
	a := newFakeDevice(t, "192.168.1.60")
	b := newFakeDevice(t, "192.168.1.50")
	b.publish(testSnapshot(4, "215"))
	b.outcome = coordinator.OutcomePartialFailure
	s := newTestServer(t, a, b)

	rec := do(t, s, http.MethodGet, "/api/devices", "")
	var list []deviceSummary
	if err := json.Unmarshal(rec.Body.Bytes(), &list); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(list) != 2 || list[0].Host != "192.168.1.50" || list[0].Status != "online" || list[1].Status != "pending" {
		t.Errorf("devices = %+v", list)
	}
	if list[0].Poller != "idle" || list[0].LastOutcome != "partial_failure" || list[1].LastOutcome != "none" {
		t.Errorf("poller fields = %+v", list)
	}

	rec = do(t, s, http.MethodGet, "/api/devices/192.168.1.50/snapshot", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("snapshot status = %d", rec.Code)
	}
	var view map[string]any
	_ = json.Unmarshal(rec.Body.Bytes(), &view)
	data, _ := view["data"].(map[string]any)
	if data["temp1"] != 215.0 || view["cycle"] != 4.0 {
		t.Errorf("snapshot = %v", view)
	}

	rec = do(t, s, http.MethodGet, "/api/devices/10.0.0.9/snapshot", "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("unknown host status = %d, want 404", rec.Code)
	}
}

func TestEntities(t *testing.T) {
	d := newFakeDevice(t, "192.168.1.50")
	d.publish(testSnapshot(4, "215"))
	s := newTestServer(t, d)

	rec := do(t, s, http.MethodGet, "/api/devices/192.168.1.50/entities", "")
	var msg statesMessage
	if err := json.Unmarshal(rec.Body.Bytes(), &msg); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if msg.Device.Manufacturer != "my-PV" || len(msg.States) != 3 {
		t.Fatalf("entities = %+v", msg)
	}
	if msg.States[0].Value != 21.5 || msg.States[0].UniqueID != "2001 Temperature 1" {
		t.Errorf("sensor state = %+v", msg.States[0])
	}
	if msg.States[2].Platform != entity.PlatformSwitch || msg.States[2].Value != true {
		t.Errorf("switch state = %+v", msg.States[2])
	}
}

func TestBoostAndMode(t *testing.T) {
	d := newFakeDevice(t, "192.168.1.50")
	s := newTestServer(t, d)

	if rec := do(t, s, http.MethodPost, "/api/devices/192.168.1.50/boost", ""); rec.Code != http.StatusAccepted {
		t.Errorf("boost status = %d", rec.Code)
	}
	if rec := do(t, s, http.MethodGet, "/api/devices/192.168.1.50/boost", ""); rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("GET boost status = %d, want 405", rec.Code)
	}

	tests := []struct {
		body string
		want int
	}{
		{`{"enabled": true}`, http.StatusAccepted},
		{`{"enabled": false}`, http.StatusAccepted},
		{`{}`, http.StatusBadRequest},
		{`{"enabled": "yes"}`, http.StatusBadRequest},
		{`{"enabled": true, "extra": 1}`, http.StatusBadRequest},
		{`not json`, http.StatusBadRequest},
	}
	for _, tt := range tests {
		if rec := do(t, s, http.MethodPut, "/api/devices/192.168.1.50/mode", tt.body); rec.Code != tt.want {
			t.Errorf("PUT mode %s: status = %d, want %d", tt.body, rec.Code, tt.want)
		}
	}

	if d.boosts != 1 || len(d.modes) != 2 || !d.modes[0] || d.modes[1] {
		t.Errorf("boosts = %d, modes = %v", d.boosts, d.modes)
	}
}

func TestWriteErrors(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"timeout", device.NewNetworkError("h", device.PathData, "", context.DeadlineExceeded), http.StatusGatewayTimeout},
		{"bad status", device.NewStatusError("h", device.PathData, 500), http.StatusBadGateway},
		{"unreachable", device.NewNetworkError("h", device.PathData, "", errors.New("connection reset")), http.StatusBadGateway},
		{"closed", coordinator.ErrClosed, http.StatusServiceUnavailable},
		{"cancelled", context.Canceled, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := newFakeDevice(t, "192.168.1.50")
			d.writeErr = tt.err
			s := newTestServer(t, d)

			rec := do(t, s, http.MethodPost, "/api/devices/192.168.1.50/boost", "")
			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d", rec.Code, tt.want)
			}
			var body errorResponse
			if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil || body.Error == "" {
				t.Errorf("error body = %s", rec.Body.String())
			}
		})
	}
}

func TestMetricsEndpoint(t *testing.T) {
	d := newFakeDevice(t, "192.168.1.50")
	d.publish(testSnapshot(4, "215"))
	s := newTestServer(t, d)

	rec := do(t, s, http.MethodGet, "/metrics", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("metrics status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `mypv_sensor_value{host="192.168.1.50",name="Boiler",sensor="temp1",unit="°C"} 21.5`) {
		t.Errorf("metrics output missing temp1:\n%s", rec.Body.String())
	}
}

func TestWebSocketPush(t *testing.T) {
	d := newFakeDevice(t, "192.168.1.50")
	d.publish(testSnapshot(1, "215"))
	s := newTestServer(t, d)

	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/devices/192.168.1.50/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	defer func() { _ = conn.Close() }()
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	var first statesMessage
	if err := conn.ReadJSON(&first); err != nil {
		t.Fatalf("ReadJSON() error = %v", err)
	}
	if first.Type != "states" || first.Cycle != 1 {
		t.Errorf("first message = %+v", first)
	}

	// The subscription is registered before the first message is written.
	d.publish(testSnapshot(2, "230"))

	var second statesMessage
	if err := conn.ReadJSON(&second); err != nil {
		t.Fatalf("ReadJSON() error = %v", err)
	}
	if second.Cycle != 2 || second.States[0].Value != 23.0 {
		t.Errorf("second message = %+v", second)
	}

	_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	_ = conn.Close()

	deadline := time.Now().Add(2 * time.Second)
	for d.subscribers() != 1 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	// One subscription remains: the metrics collector's.
	if got := d.subscribers(); got != 1 {
		t.Errorf("subscribers after close = %d, want 1", got)
	}
}

func TestWebSocketSlowClientGetsNewest(t *testing.T) {
	d := newFakeDevice(t, "192.168.1.50")
	d.publish(testSnapshot(1, "215"))
	s := newTestServer(t, d)

	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/devices/192.168.1.50/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	defer func() { _ = conn.Close() }()
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	var msg statesMessage
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("ReadJSON() error = %v", err)
	}

	// A burst while the client is not reading: intermediate cycles may be
	// skipped, the last one must arrive.
	const last = 40
	for cycle := uint64(2); cycle <= last; cycle++ {
		d.publish(testSnapshot(cycle, "230"))
	}
	for msg.Cycle != last {
		prev := msg.Cycle
		if err := conn.ReadJSON(&msg); err != nil {
			t.Fatalf("ReadJSON() error = %v after cycle %d", err, prev)
		}
		if msg.Cycle <= prev {
			t.Fatalf("cycle %d delivered after %d", msg.Cycle, prev)
		}
	}
}

func TestGetTLSInfo(t *testing.T) {
	if info := GetTLSInfo(nil); info["enabled"] != false {
		t.Errorf("GetTLSInfo(nil) = %v", info)
	}
	info := GetTLSInfo(buildTLSConfig(tls.Certificate{}))
	if info["enabled"] != true || info["min_version"] != "TLS 1.2" || info["num_certs"] != 1 {
		t.Errorf("GetTLSInfo() = %v", info)
	}
}

func TestServeAndShutdown(t *testing.T) {
	d := newFakeDevice(t, "192.168.1.50")
	s := newTestServer(t, d)

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen() error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Serve(ctx, listener) }()

	url := "http://" + listener.Addr().String() + "/health"
	var resp *http.Response
	for i := 0; i < 50; i++ {
		resp, err = http.Get(url)
		if err == nil {
			break
		}
		time.Sleep(20 * time.Millisecond)
	}
	if err != nil {
		t.Fatalf("GET /health error = %v", err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d", resp.StatusCode)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Serve() error = %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Serve() did not return after cancel")
	}

	if err := s.Shutdown(context.Background()); err != nil {
		t.Errorf("second Shutdown() error = %v", err)
	}
}
