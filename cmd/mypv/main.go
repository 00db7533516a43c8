// Mypv polls my-PV AC-THOR solar diverters over their local HTTP interface.
//
// It keeps a registry of devices, discovers new ones on the network, shows
// their sensors, presses boost and switches the device mode, and runs a
// long-lived bridge that serves a JSON API with Prometheus metrics and
// mirrors every device into Home Assistant over MQTT.
//
// Usage:
//
//	mypv [command] [flags]
//
// See 'mypv --help' for available commands.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/muurk/mypv/internal/config"
	"github.com/muurk/mypv/internal/entity"
	"github.com/muurk/mypv/internal/logging"
	"github.com/muurk/mypv/internal/ui"
	"github.com/muurk/mypv/internal/version"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	logging.Sync()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// Global flags
var (
	configPath string
	logLevel   string
)

var rootCmd = &cobra.Command{
	Use:   "mypv",
	Short: "my-PV AC-THOR poller and Home Assistant bridge",
	Long: `A poller for my-PV AC-THOR solar diverters.

Devices are polled over their local HTTP JSON interface. Configured devices
live in a registry file; use 'mypv scan' and 'mypv add' to populate it and
'mypv serve' to run the HTTP API, metrics and MQTT bridge.`,
	Version:       version.Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return logging.Initialize(logLevel)
	},
}

func init() {
	rootCmd.CompletionOptions.DisableDefaultCmd = true

	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Registry file (default: $"+config.EnvConfigPath+" or the user config dir)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level (debug, info, warn, error); silent when unset")

	rootCmd.AddCommand(versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("mypv %s\n", version.Full())
	},
}

// loadRegistry reads the registry from --config or the default location.
func loadRegistry() (*config.Registry, string, error) {
	path := configPath
	if path == "" {
		var err error
		if path, err = config.GetConfigPath(); err != nil {
			return nil, "", err
		}
	}
	reg, err := config.LoadFrom(path)
	if err != nil {
		return nil, "", err
	}
	if lang := reg.Preferences.Language; !entity.SupportsLanguage(lang) {
		ui.NewPrinter(os.Stderr).PrintResult(ui.Warning("Unsupported language "+strconv.Quote(lang),
			ui.Detail{Key: "Available", Value: strings.Join(entity.Languages(), ", ")},
			ui.Detail{Key: "Using", Value: entity.DefaultLanguage},
		))
	}
	return reg, path, nil
}
