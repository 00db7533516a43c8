package hass

import (
	"context"
	"encoding/json"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/muurk/mypv/internal/coordinator"
	"github.com/muurk/mypv/internal/entity"
	"github.com/muurk/mypv/internal/logging"
	"github.com/muurk/mypv/internal/snapshot"
)

// DefaultCommandTimeout bounds a device write triggered from MQTT
const DefaultCommandTimeout = 15 * time.Second

// MessageHandler receives one message from a subscription.
type MessageHandler func(topic string, payload []byte)

// Client is the part of an MQTT connection the bridge needs.
type Client interface {
	Publish(topic string, retained bool, payload []byte) error
	Subscribe(topic string, handler MessageHandler) error
	Unsubscribe(topics ...string) error
}

// Device is one polled device as the bridge sees it.
type Device interface {
	Host() string
	Name() string
	Snapshot() snapshot.Snapshot
	Entities() *entity.Set
	OnUpdate(fn coordinator.UpdateFunc) (unsubscribe func())
	TriggerBoost(ctx context.Context) error
	SetMode(ctx context.Context, enabled bool) error
}

// Options configures a Bridge.
type Options struct {
	Topics         Topics
	CommandTimeout time.Duration
	Logger         *zap.Logger
}

// Bridge mirrors devices into Home Assistant.
type Bridge struct {
	client  Client
	topics  Topics
	timeout time.Duration
	logger  *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.Mutex
	devices map[string]*attached
	closed  bool
}

// attached is the per-device state of the bridge.
type attached struct {
	dev     Device
	updates chan coordinator.Update
	stop    func()

	mu        sync.Mutex
	announced string // serial whose discovery configs are published
}

// New creates a bridge publishing through client.
func New(client Client, opts Options) *Bridge {
	logger := opts.Logger
	if logger == nil {
		logger = logging.GetLogger()
	}
	timeout := opts.CommandTimeout
	if timeout <= 0 {
		timeout = DefaultCommandTimeout
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Bridge{
		client:  client,
		topics:  opts.Topics.withDefaults(),
		timeout: timeout,
		logger:  logger,
		ctx:     ctx,
		cancel:  cancel,
		devices: make(map[string]*attached),
	}
}

// Topics returns the topic layout in use.
func (b *Bridge) Topics() Topics { return b.topics }

// Attach starts mirroring dev. Updates are published from a goroutine owned
// by the bridge; when several arrive while one is being published only the
// latest is kept.
func (b *Bridge) Attach(dev Device) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	if _, ok := b.devices[dev.Host()]; ok {
		return
	}

	a := &attached{dev: dev, updates: make(chan coordinator.Update, 1)}
	b.devices[dev.Host()] = a
	a.stop = dev.OnUpdate(func(u coordinator.Update) { coordinator.OfferLatest(a.updates, u) })

	b.wg.Add(1)
	go b.run(a)

	// A device that has already polled should not wait for its next cycle.
	if snap := dev.Snapshot(); !snap.Empty() {
		coordinator.OfferLatest(a.updates, coordinator.Update{Snapshot: snap, Err: snap.LastError})
	}
}

func (b *Bridge) run(a *attached) {
	defer b.wg.Done()
	for {
		select {
		case <-b.ctx.Done():
			return
		case u := <-a.updates:
			b.publishUpdate(a, u)
		}
	}
}

// publishUpdate announces the device on first sight of its serial and then
// publishes its states and availability.
func (b *Bridge) publishUpdate(a *attached, u coordinator.Update) {
	snap := u.Snapshot
	if !snap.Identity.Known() {
		return
	}
	if err := b.announce(a, snap); err != nil {
		b.logger.Warn("Failed to announce device",
			zap.String("host", a.dev.Host()), zap.Error(err))
		return
	}

	serial := snap.Identity.Serial
	set := a.dev.Entities()
	for _, st := range set.States(snap) {
		if st.Platform == entity.PlatformButton {
			continue
		}
		b.publishState(serial, st)
	}

	status := PayloadOnline
	if u.Err != nil || snap.Data == nil {
		status = PayloadOffline
	}
	if err := b.client.Publish(b.topics.Status(serial), true, []byte(status)); err != nil {
		b.logger.Warn("Failed to publish availability",
			zap.String("host", a.dev.Host()), zap.Error(err))
	}
}

// announce publishes discovery configs and subscribes to command topics
// once per serial.
func (b *Bridge) announce(a *attached, snap snapshot.Snapshot) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	serial := snap.Identity.Serial
	if a.announced == serial {
		return nil
	}

	for _, ann := range announcements(b.topics, a.dev.Entities(), snap) {
		payload, err := json.Marshal(ann.config)
		if err != nil {
			return err
		}
		if err := b.client.Publish(ann.topic, true, payload); err != nil {
			return err
		}
	}
	if err := b.subscribeCommands(a, serial); err != nil {
		return err
	}
	a.announced = serial
	b.logger.Info("Announced device to Home Assistant",
		zap.String("host", a.dev.Host()),
		zap.String("serial", serial))
	return nil
}

func (b *Bridge) subscribeCommands(a *attached, serial string) error {
	if err := b.client.Subscribe(b.topics.BoostPress(serial), func(_ string, payload []byte) {
		b.handleBoost(a, payload)
	}); err != nil {
		return err
	}
	return b.client.Subscribe(b.topics.ModeSet(serial), func(_ string, payload []byte) {
		b.handleMode(a, payload)
	})
}

func (b *Bridge) publishState(serial string, st entity.State) {
	if !st.Available {
		return
	}
	payload, ok := statePayload(st.Value)
	if !ok {
		return
	}
	if err := b.client.Publish(b.topics.State(serial, st.ObjectID), false, []byte(payload)); err != nil {
		b.logger.Debug("Failed to publish state",
			zap.String("serial", serial),
			zap.String("object", st.ObjectID),
			zap.Error(err))
	}
}

// statePayload renders a state value the way Home Assistant parses it.
func statePayload(v any) (string, bool) {
	switch t := v.(type) {
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64), true
	case bool:
		if t {
			return PayloadOn, true
		}
		return PayloadOff, true
	case string:
		return t, true
	}
	return "", false
}

func (b *Bridge) handleBoost(a *attached, payload []byte) {
	if string(payload) != PayloadPress {
		b.logger.Debug("Ignoring boost payload", zap.ByteString("payload", payload))
		return
	}
	ctx, cancel := context.WithTimeout(b.ctx, b.timeout)
	defer cancel()
	err := a.dev.TriggerBoost(ctx)
	logging.LogCommand(b.logger, a.dev.Host(), "boost", true, err)
}

func (b *Bridge) handleMode(a *attached, payload []byte) {
	var enabled bool
	switch string(payload) {
	case PayloadOn:
		enabled = true
	case PayloadOff:
	default:
		b.logger.Debug("Ignoring mode payload", zap.ByteString("payload", payload))
		return
	}

	ctx, cancel := context.WithTimeout(b.ctx, b.timeout)
	defer cancel()
	err := a.dev.SetMode(ctx, enabled)
	logging.LogCommand(b.logger, a.dev.Host(), "mode", enabled, err)
	if err != nil {
		return
	}

	// Report the optimistic state now rather than after the next setup fetch.
	snap := a.dev.Snapshot()
	if snap.Identity.Known() {
		b.publishState(snap.Identity.Serial, a.dev.Entities().ModeState(snap))
	}
}

// Resync forgets what was announced and republishes every device. Call it
// after the broker connection has been re-established.
func (b *Bridge) Resync() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	for _, a := range b.devices {
		a.mu.Lock()
		a.announced = ""
		a.mu.Unlock()
		snap := a.dev.Snapshot()
		coordinator.OfferLatest(a.updates, coordinator.Update{Snapshot: snap, Err: snap.LastError})
	}
}

// Close detaches every device, marks them offline and stops the publish
// goroutines. The client itself is left open.
func (b *Bridge) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	devices := b.devices
	b.devices = map[string]*attached{}
	b.mu.Unlock()

	for _, a := range devices {
		a.stop()
	}
	b.cancel()
	b.wg.Wait()

	for _, a := range devices {
		a.mu.Lock()
		serial := a.announced
		a.mu.Unlock()
		if serial == "" {
			continue
		}
		_ = b.client.Unsubscribe(b.topics.BoostPress(serial), b.topics.ModeSet(serial))
		_ = b.client.Publish(b.topics.Status(serial), true, []byte(PayloadOffline))
	}
}
