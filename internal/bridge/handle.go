// Package bridge wires the per-device pieces together: one device client,
// its poll coordinator, the command dispatcher and the projected entities.
// Host adapters (HTTP server, MQTT bridge, TUI) work against a *Handle.
package bridge

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/muurk/mypv/internal/command"
	"github.com/muurk/mypv/internal/coordinator"
	"github.com/muurk/mypv/internal/device"
	"github.com/muurk/mypv/internal/entity"
	"github.com/muurk/mypv/internal/logging"
	"github.com/muurk/mypv/internal/snapshot"
)

// Options configures a Handle beyond the polling cadence.
type Options struct {
	// Name is the display name; defaults to the host.
	Name string
	// Sensors are catalog keys to expose; empty means the defaults.
	Sensors  []string
	Language string

	RefreshPolicy command.RefreshPolicy
	ReadTimeout   time.Duration
	WriteTimeout  time.Duration

	Logger *zap.Logger
	// Clock overrides the coordinator clock, for tests.
	Clock coordinator.Clock
	// Client overrides the device client, for tests.
	Client *device.Client
}

// Handle is the running integration for one device.
type Handle struct {
	host       string
	name       string
	client     *device.Client
	coord      *coordinator.Coordinator
	dispatcher *command.Dispatcher
	entities   *entity.Set
	logger     *zap.Logger
}

// Configure builds a Handle for cfg.Host. Nothing is fetched until Start.
func Configure(cfg coordinator.Config, opts Options) (*Handle, error) {
	if cfg.Host == "" {
		return nil, fmt.Errorf("configure: empty host")
	}

	logger := opts.Logger
	if logger == nil {
		logger = logging.GetLogger()
	}

	client := opts.Client
	if client == nil {
		client = device.NewClient(cfg.Host)
	}
	client.SetTimeouts(opts.ReadTimeout, opts.WriteTimeout)
	client.SetLogger(logger)

	coordOpts := []coordinator.Option{coordinator.WithLogger(logger)}
	if opts.Clock != nil {
		coordOpts = append(coordOpts, coordinator.WithClock(opts.Clock))
	}
	coord, err := coordinator.New(cfg, client, coordOpts...)
	if err != nil {
		return nil, fmt.Errorf("configure %s: %w", cfg.Host, err)
	}

	dispatcher := command.New(cfg.Host, client, coord,
		command.WithRefreshPolicy(opts.RefreshPolicy),
		command.WithLogger(logger),
	)

	name := opts.Name
	if name == "" {
		name = cfg.Host
	}
	entities, err := entity.NewSet(entity.Options{
		Host:     cfg.Host,
		Name:     name,
		Language: opts.Language,
		Sensors:  opts.Sensors,
		Logger:   logger,
	}, dispatcher, dispatcher, coord)
	if err != nil {
		return nil, fmt.Errorf("configure %s: %w", cfg.Host, err)
	}

	return &Handle{
		host:       cfg.Host,
		name:       name,
		client:     client,
		coord:      coord,
		dispatcher: dispatcher,
		entities:   entities,
		logger:     logger.With(zap.String("host", cfg.Host)),
	}, nil
}

// Host returns the device address.
func (h *Handle) Host() string { return h.host }

// Name returns the display name.
func (h *Handle) Name() string { return h.name }

// Client returns the device client.
func (h *Handle) Client() *device.Client { return h.client }

// Coordinator returns the poll coordinator.
func (h *Handle) Coordinator() *coordinator.Coordinator { return h.coord }

// Entities returns the projected entities.
func (h *Handle) Entities() *entity.Set { return h.entities }

// Start begins polling.
func (h *Handle) Start(ctx context.Context) error {
	return h.coord.Start(ctx)
}

// Snapshot returns the latest snapshot without blocking.
func (h *Handle) Snapshot() snapshot.Snapshot {
	return h.coord.Snapshot()
}

// State returns the poller state.
func (h *Handle) State() coordinator.State {
	return h.coord.State()
}

// LastOutcome returns the outcome of the most recent cycle.
func (h *Handle) LastOutcome() coordinator.CycleOutcome {
	return h.coord.LastOutcome()
}

// OnUpdate registers fn for every published snapshot.
func (h *Handle) OnUpdate(fn coordinator.UpdateFunc) (unsubscribe func()) {
	return h.coord.OnUpdate(fn)
}

// Refresh requests a data refresh and waits for it.
func (h *Handle) Refresh(ctx context.Context) error {
	return h.coord.RefreshAndWait(ctx)
}

// TriggerBoost presses the boost button.
func (h *Handle) TriggerBoost(ctx context.Context) error {
	return h.entities.Boost.Press(ctx)
}

// SetMode switches the device mode through the switch entity, so its
// optimistic state applies.
func (h *Handle) SetMode(ctx context.Context, enabled bool) error {
	return h.entities.Mode.Set(ctx, enabled)
}

// States projects all entities from the latest snapshot.
func (h *Handle) States() []entity.State {
	return h.entities.States(h.Snapshot())
}

// SensorStates projects the sensors of snap.
func (h *Handle) SensorStates(snap snapshot.Snapshot) []entity.State {
	return h.entities.SensorStates(snap)
}

// Shutdown stops polling and waits for the coordinator to exit.
func (h *Handle) Shutdown(ctx context.Context) error {
	return h.coord.Shutdown(ctx)
}
