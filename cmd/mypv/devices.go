package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/muurk/mypv/internal/bridge"
	"github.com/muurk/mypv/internal/command"
	"github.com/muurk/mypv/internal/config"
	"github.com/muurk/mypv/internal/coordinator"
	"github.com/muurk/mypv/internal/device"
	"github.com/muurk/mypv/internal/logging"
	"github.com/muurk/mypv/internal/ui"
)

// firstPollTimeout bounds the wait for a device's first cycle
const firstPollTimeout = 30 * time.Second

// openHandle configures a handle for host using its registry entry, or the
// defaults when host is not configured.
func openHandle(reg *config.Registry, host string, policy command.RefreshPolicy) (*bridge.Handle, error) {
	opts := bridge.Options{
		Name:          reg.DeviceName(host),
		Language:      reg.Preferences.Language,
		RefreshPolicy: policy,
		Logger:        logging.GetLogger(),
	}
	if dev := reg.GetDevice(host); dev != nil {
		opts.Sensors = dev.Sensors
	}
	return bridge.Configure(reg.CoordinatorConfig(host), opts)
}

// openAll configures a handle for every host, or every configured device
// when hosts is empty.
func openAll(reg *config.Registry, hosts []string, policy command.RefreshPolicy) ([]*bridge.Handle, error) {
	if len(hosts) == 0 {
		hosts = reg.Hosts()
	}
	if len(hosts) == 0 {
		return nil, fmt.Errorf("no devices configured; add one with 'mypv add <host>'")
	}
	handles := make([]*bridge.Handle, 0, len(hosts))
	for _, host := range hosts {
		h, err := openHandle(reg, host, policy)
		if err != nil {
			return nil, err
		}
		handles = append(handles, h)
	}
	return handles, nil
}

// writePolicy returns the configured follow-up policy after a write.
func writePolicy(reg *config.Registry) (command.RefreshPolicy, error) {
	return command.ParseRefreshPolicy(reg.Preferences.WriteRefresh)
}

// pollOnce starts h and waits for its first cycle. A failed cycle is
// returned as the error; the handle keeps polling either way.
func pollOnce(ctx context.Context, h *bridge.Handle) error {
	first := make(chan coordinator.Update, 1)
	stop := h.OnUpdate(func(u coordinator.Update) {
		select {
		case first <- u:
		default:
		}
	})
	defer stop()

	if err := h.Start(ctx); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, firstPollTimeout)
	defer cancel()
	select {
	case u := <-first:
		return u.Err
	case <-ctx.Done():
		return fmt.Errorf("waiting for %s: %w", h.Host(), ctx.Err())
	}
}

// shutdownAll stops every handle.
func shutdownAll(handles []*bridge.Handle) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for _, h := range handles {
		if err := h.Shutdown(ctx); err != nil {
			logging.Warn("Shutdown failed", zap.String("host", h.Host()), zap.Error(err))
		}
	}
}

// recordIdentities stores the identity each handle has seen.
func recordIdentities(reg *config.Registry, path string, handles []*bridge.Handle) {
	changed := false
	for _, h := range handles {
		id := h.Snapshot().Identity
		if !id.Known() || reg.GetDevice(h.Host()) == nil {
			continue
		}
		reg.UpdateDeviceLastSeen(h.Host(), id.Serial, id.Model)
		changed = true
	}
	if changed {
		if err := reg.SaveTo(path); err != nil {
			logging.Warn("Failed to save registry", zap.String("path", path), zap.Error(err))
		}
	}
}

// splitList parses a comma separated flag value.
func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// deviceFailure prints a failure box for a device error and returns the
// error to exit with.
func deviceFailure(title string, err error) error {
	var tips []string
	for _, line := range strings.Split(device.Hint(err), "\n") {
		if tip, ok := strings.CutPrefix(line, "  • "); ok {
			tips = append(tips, tip)
		}
	}
	ui.NewPrinter(os.Stderr).PrintResult(ui.Failure(title, errors.New(device.ShortMessage(err)), tips...))
	return fmt.Errorf("%s: %w", strings.ToLower(title), err)
}
