package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/muurk/mypv/internal/bridge"
	"github.com/muurk/mypv/internal/command"
	"github.com/muurk/mypv/internal/entity"
	"github.com/muurk/mypv/internal/snapshot"
	"github.com/muurk/mypv/internal/tui"
	"github.com/muurk/mypv/internal/ui"
)

func init() {
	rootCmd.AddCommand(showCmd)
	rootCmd.AddCommand(boostCmd)
	rootCmd.AddCommand(modeCmd)
	rootCmd.AddCommand(watchCmd)

	showCmd.Flags().StringVar(&outputFormat, "format", "detailed", "Output format (detailed, compact, json)")
}

// showCmd fetches and prints one device
var showCmd = &cobra.Command{
	Use:   "show <host>",
	Short: "Show device sensors and controls",
	Long: `Poll a device once and print its identity, sensors and controls.

The host does not need to be in the registry; unconfigured hosts use the
default sensors.`,
	Example: `  mypv show 192.168.1.50
  mypv show 192.168.1.50 --format compact
  mypv show 192.168.1.50 --format json`,
	Args: cobra.ExactArgs(1),
	RunE: runShow,
}

type showOutput struct {
	Host     string            `json:"host"`
	Name     string            `json:"name"`
	Device   entity.DeviceInfo `json:"device"`
	Status   string            `json:"status"`
	Cycle    uint64            `json:"cycle"`
	LastOK   *time.Time        `json:"last_success_at,omitempty"`
	Error    string            `json:"error,omitempty"`
	Entities []entity.State    `json:"entities"`
}

func runShow(cmd *cobra.Command, args []string) error {
	switch outputFormat {
	case "detailed", "compact", "json":
	default:
		return fmt.Errorf("unknown format %q", outputFormat)
	}

	h, err := openOne(args[0], command.RefreshAsync)
	if err != nil {
		return err
	}
	defer shutdownAll([]*bridge.Handle{h})

	pollErr := pollOnce(cmd.Context(), h)
	snap := h.Snapshot()
	if pollErr != nil && snap.Empty() {
		return deviceFailure("Cannot read "+h.Host(), pollErr)
	}

	set := h.Entities()
	switch outputFormat {
	case "json":
		out := showOutput{
			Host:     h.Host(),
			Name:     h.Name(),
			Device:   set.Device(snap),
			Status:   statusLabel(snap),
			Cycle:    snap.Cycle,
			Entities: set.States(snap),
		}
		if !snap.LastSuccessAt.IsZero() {
			out.LastOK = &snap.LastSuccessAt
		}
		if snap.LastError != nil {
			out.Error = snap.LastError.Error()
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	case "compact":
		fmt.Println(set.FormatCompact(snap))
	default:
		fmt.Println(set.FormatDetailed(snap))
	}
	return nil
}

func statusLabel(snap snapshot.Snapshot) string {
	switch {
	case snap.Empty():
		return "pending"
	case snap.Healthy():
		return "online"
	default:
		return "stale"
	}
}

// boostCmd presses the boost button
var boostCmd = &cobra.Command{
	Use:   "boost <host>",
	Short: "Toggle a hot-water boost",
	Long: `Press the boost button: start a boost when none is active, stop the
running one otherwise. The device is read first to learn the current state.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		h, err := openOne(args[0], command.RefreshWait)
		if err != nil {
			return err
		}
		defer shutdownAll([]*bridge.Handle{h})

		if err := pollOnce(cmd.Context(), h); err != nil {
			return deviceFailure("Cannot read "+h.Host(), err)
		}
		if err := h.TriggerBoost(cmd.Context()); err != nil {
			return deviceFailure("Boost failed", err)
		}

		state := "inactive"
		if active, _ := h.Snapshot().Data.Bool("boostactive"); active {
			state = "active"
		}
		ui.NewPrinter(nil).PrintResult(ui.Success("Boost toggled",
			ui.Detail{Key: "Device", Value: h.Name()},
			ui.Detail{Key: "Boost", Value: state},
		))
		return nil
	},
}

// modeCmd switches the device mode
var modeCmd = &cobra.Command{
	Use:       "mode <host> on|off",
	Short:     "Switch the device mode on or off",
	Args:      cobra.ExactArgs(2),
	ValidArgs: []string{"on", "off"},
	RunE: func(cmd *cobra.Command, args []string) error {
		var enabled bool
		switch args[1] {
		case "on":
			enabled = true
		case "off":
		default:
			return fmt.Errorf("mode must be on or off, got %q", args[1])
		}

		h, err := openOne(args[0], command.RefreshWait)
		if err != nil {
			return err
		}
		defer shutdownAll([]*bridge.Handle{h})

		on, err := switchMode(cmd.Context(), h, enabled)
		if err != nil {
			return deviceFailure("Mode change failed", err)
		}
		state := "off"
		if on {
			state = "on"
		}
		ui.NewPrinter(nil).PrintResult(ui.Success("Device mode set",
			ui.Detail{Key: "Device", Value: h.Name()},
			ui.Detail{Key: "Mode", Value: state},
		))
		return nil
	},
}

// switchMode reads the device once and then writes the mode through the
// switch entity. It returns the state the switch reports afterwards.
func switchMode(ctx context.Context, h *bridge.Handle, enabled bool) (bool, error) {
	if err := pollOnce(ctx, h); err != nil {
		return false, err
	}
	if err := h.SetMode(ctx, enabled); err != nil {
		return false, err
	}
	return h.Entities().Mode.IsOn(h.Snapshot()), nil
}

// watchCmd runs the live dashboard
var watchCmd = &cobra.Command{
	Use:   "watch [host...]",
	Short: "Live dashboard of configured devices",
	Long: `Poll devices and show a live terminal dashboard. Without arguments every
configured device is shown.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if !tui.IsTerminal() {
			return fmt.Errorf("watch needs an interactive terminal; use 'mypv show' instead")
		}
		reg, _, err := loadRegistry()
		if err != nil {
			return err
		}
		policy, err := writePolicy(reg)
		if err != nil {
			return err
		}
		handles, err := openAll(reg, args, policy)
		if err != nil {
			return err
		}
		defer shutdownAll(handles)

		devices := make([]tui.Device, 0, len(handles))
		for _, h := range handles {
			if err := h.Start(cmd.Context()); err != nil {
				return err
			}
			devices = append(devices, h)
		}
		return tui.Run(cmd.Context(), devices)
	},
}

// openOne configures a handle for host from the registry.
func openOne(host string, policy command.RefreshPolicy) (*bridge.Handle, error) {
	reg, _, err := loadRegistry()
	if err != nil {
		return nil, err
	}
	return openHandle(reg, host, policy)
}
