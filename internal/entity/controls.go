package entity

import (
	"context"
	"fmt"
	"sync"

	"github.com/muurk/mypv/internal/snapshot"
)

// Booster triggers a boost. *command.Dispatcher implements it.
type Booster interface {
	TriggerBoost(ctx context.Context) (bool, error)
}

// ModeSetter writes the device mode. *command.Dispatcher implements it.
type ModeSetter interface {
	SetMode(ctx context.Context, enabled bool) error
}

// SnapshotSource returns the latest snapshot.
type SnapshotSource interface {
	Snapshot() snapshot.Snapshot
}

// BoostButton is the momentary boost action.
type BoostButton struct {
	host    string
	device  string
	booster Booster
}

// Name returns the display name.
func (b *BoostButton) Name() string {
	return b.device + " Boost"
}

// UniqueID returns the button's stable identifier.
func (b *BoostButton) UniqueID() string {
	return fmt.Sprintf("mypv_%s_boost_button", b.host)
}

// Press toggles the boost.
func (b *BoostButton) Press(ctx context.Context) error {
	_, err := b.booster.TriggerBoost(ctx)
	return err
}

// ModeSwitch is the persistent device mode switch.
//
// After a successful write the switch reads as the requested value until a
// snapshot arrives whose setup was fetched after the write started; from
// then on setup.devmode is authoritative again.
type ModeSwitch struct {
	host   string
	device string
	setter ModeSetter
	source SnapshotSource

	mu        sync.Mutex
	pending   bool
	requested bool
	// setupCycle is the SetupCycle current when the write was issued.
	setupCycle uint64
}

// Name returns the display name.
func (m *ModeSwitch) Name() string {
	return m.device + " Device state"
}

// UniqueID returns the switch's stable identifier.
func (m *ModeSwitch) UniqueID(id snapshot.Identity) string {
	return fmt.Sprintf("%s device_state_%s", id.Serial, m.host)
}

// IsOn reports the switch state for snap.
func (m *ModeSwitch) IsOn(snap snapshot.Snapshot) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.pending {
		if snap.SetupCycle <= m.setupCycle {
			return m.requested
		}
		m.pending = false
	}
	on, _ := snap.Setup.Bool("devmode")
	return on
}

// Pending reports whether an optimistic value is still unconfirmed.
func (m *ModeSwitch) Pending() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pending
}

// Set writes the mode. On failure the displayed state is unchanged.
func (m *ModeSwitch) Set(ctx context.Context, enabled bool) error {
	// A setup fetch may complete while the write and its follow-up refresh
	// are in flight, so the baseline is taken first.
	base := m.source.Snapshot().SetupCycle
	if err := m.setter.SetMode(ctx, enabled); err != nil {
		return err
	}

	m.mu.Lock()
	m.pending = true
	m.requested = enabled
	m.setupCycle = base
	m.mu.Unlock()
	return nil
}
