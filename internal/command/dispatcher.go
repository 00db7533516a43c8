// Package command turns user actions into device writes.
//
// A successful write is followed by a forced data refresh so the snapshot
// reflects the change; the dispatcher itself never edits the snapshot.
package command

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/muurk/mypv/internal/coordinator"
	"github.com/muurk/mypv/internal/logging"
	"github.com/muurk/mypv/internal/snapshot"
)

const (
	commandBoost = "boost"
	commandMode  = "mode"
)

// RefreshPolicy selects how the follow-up refresh is awaited.
type RefreshPolicy int

const (
	// RefreshAsync requests the refresh and returns immediately.
	RefreshAsync RefreshPolicy = iota
	// RefreshWait blocks until the refresh has been published.
	RefreshWait
)

// ParseRefreshPolicy maps "async" or "wait" to a policy. Empty is async.
func ParseRefreshPolicy(s string) (RefreshPolicy, error) {
	switch s {
	case "", "async":
		return RefreshAsync, nil
	case "wait":
		return RefreshWait, nil
	}
	return RefreshAsync, fmt.Errorf("unknown refresh policy %q (want async or wait)", s)
}

func (p RefreshPolicy) String() string {
	if p == RefreshWait {
		return "wait"
	}
	return "async"
}

// Writer issues device writes. *device.Client implements it.
type Writer interface {
	SetBoost(ctx context.Context, on bool) error
	SetMode(ctx context.Context, on bool) error
}

// Coordinator is the part of *coordinator.Coordinator the dispatcher uses.
type Coordinator interface {
	Snapshot() snapshot.Snapshot
	RequestRefresh() bool
	RefreshAndWait(ctx context.Context) error
	ExpireSetup()
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithRefreshPolicy sets the follow-up refresh policy.
func WithRefreshPolicy(p RefreshPolicy) Option {
	return func(d *Dispatcher) { d.policy = p }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(d *Dispatcher) { d.logger = l }
}

// Dispatcher sends boost and mode commands to one device.
type Dispatcher struct {
	host   string
	writer Writer
	coord  Coordinator
	policy RefreshPolicy
	logger *zap.Logger
}

// New creates a dispatcher writing through w and refreshing through c.
func New(host string, w Writer, c Coordinator, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		host:   host,
		writer: w,
		coord:  c,
		logger: logging.GetLogger(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// TriggerBoost toggles the hot-water boost. The requested state is the
// inverse of data.boostactive in the latest snapshot, where an absent value
// counts as inactive. It returns the state that was requested.
func (d *Dispatcher) TriggerBoost(ctx context.Context) (bool, error) {
	active, _ := d.coord.Snapshot().Data.Bool("boostactive")
	want := !active

	err := d.writer.SetBoost(ctx, want)
	logging.LogCommand(d.logger, d.host, commandBoost, want, err)
	if err != nil {
		return want, fmt.Errorf("boost: %w", err)
	}
	d.followUp(ctx)
	return want, nil
}

// SetMode switches the device mode. Setup is fetched again on the next
// scheduled cycle so the switch state can be confirmed.
func (d *Dispatcher) SetMode(ctx context.Context, enabled bool) error {
	err := d.writer.SetMode(ctx, enabled)
	logging.LogCommand(d.logger, d.host, commandMode, enabled, err)
	if err != nil {
		return fmt.Errorf("set mode: %w", err)
	}
	d.coord.ExpireSetup()
	d.followUp(ctx)
	return nil
}

// followUp requests the post-write refresh. A coordinator that has already
// shut down drops the request; refresh failures reach subscribers as a
// normal failed update, so they are only logged here.
func (d *Dispatcher) followUp(ctx context.Context) {
	if d.policy == RefreshAsync {
		d.coord.RequestRefresh()
		return
	}

	err := d.coord.RefreshAndWait(ctx)
	switch {
	case err == nil, errors.Is(err, coordinator.ErrClosed):
	default:
		d.logger.Debug("Follow-up refresh failed", zap.String("host", d.host), zap.Error(err))
	}
}
