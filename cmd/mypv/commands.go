package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/muurk/mypv/internal/config"
	"github.com/muurk/mypv/internal/device"
	"github.com/muurk/mypv/internal/discovery"
	"github.com/muurk/mypv/internal/entity"
	"github.com/muurk/mypv/internal/logging"
	"github.com/muurk/mypv/internal/ui"
)

// Registry command flags
var (
	scanMethod   string
	scanSubnet   string
	scanTimeout  int
	addName      string
	addSensors   string
	addPoll      time.Duration
	addSetup     time.Duration
	addNoProbe   bool
	outputFormat string
)

func init() {
	rootCmd.AddCommand(scanCmd)
	rootCmd.AddCommand(addCmd)
	rootCmd.AddCommand(removeCmd)
	rootCmd.AddCommand(listCmd)
}

// scanCmd discovers devices on the network
var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Scan for my-PV devices on the network",
	Long: `Scan for my-PV devices.

The mdns method browses for HTTP services and probes each answer. The
subnet method probes every address x.y.z.1-254 of a /24 for the device
info endpoint; 'auto' picks the subnet of this machine's IPv4 address.
Devices already in the registry are skipped.`,
	Example: `  # Browse mDNS (default)
  mypv scan

  # Probe a subnet
  mypv scan --method subnet --subnet 192.168.1

  # Probe the local subnet
  mypv scan --method auto`,
	Args: cobra.NoArgs,
	RunE: runScan,
}

func init() {
	scanCmd.Flags().StringVar(&scanMethod, "method", "mdns", "Discovery method (mdns, subnet, auto)")
	scanCmd.Flags().StringVar(&scanSubnet, "subnet", "", "Subnet to probe as a.b.c (subnet method)")
	scanCmd.Flags().IntVar(&scanTimeout, "timeout", 0, "mDNS browse timeout in seconds (default from preferences)")
}

func runScan(cmd *cobra.Command, args []string) error {
	reg, _, err := loadRegistry()
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	exclude := reg.Hosts()

	var candidates []*discovery.Candidate
	switch scanMethod {
	case "mdns":
		timeout := scanTimeout
		if timeout <= 0 {
			timeout = reg.Preferences.DiscoverTimeout
		}
		fmt.Printf("Browsing mDNS for my-PV devices (timeout: %ds)...\n\n", timeout)
		candidates, err = discovery.Discover(ctx, time.Duration(timeout)*time.Second, exclude)

	case "subnet", "auto":
		subnet := scanSubnet
		if scanMethod == "auto" {
			ip, ipErr := discovery.OwnIPv4()
			if ipErr != nil {
				return fmt.Errorf("cannot determine local address: %w", ipErr)
			}
			if subnet, err = discovery.SubnetOf(ip); err != nil {
				return err
			}
		}
		if !discovery.ValidSubnet(subnet) {
			return fmt.Errorf("invalid subnet %q (expected a.b.c, e.g. 192.168.1)", subnet)
		}
		fmt.Printf("Probing %s.1-254 for my-PV devices...\n\n", subnet)
		candidates, err = discovery.ScanSubnet(ctx, subnet, discovery.ScanOptions{
			Exclude: exclude,
			Logger:  logging.GetLogger(),
		})

	default:
		return fmt.Errorf("unknown scan method %q (use mdns, subnet or auto)", scanMethod)
	}
	if err != nil {
		return fmt.Errorf("scan failed: %w", err)
	}

	if len(candidates) == 0 {
		ui.NewPrinter(nil).PrintResult(ui.Result{
			Kind:  ui.KindWarning,
			Title: "No new devices found",
			Troubleshooting: []string{
				"Ensure the device is powered on and on the same network",
				"Try the subnet method if mDNS is blocked",
				"Use 'mypv add <ip>' if you know the address",
			},
		})
		return nil
	}

	fmt.Printf("Found %d device(s):\n\n", len(candidates))
	for i, c := range candidates {
		fmt.Printf("%d. %s\n", i+1, c)
		if c.Hostname != "" {
			fmt.Printf("   Hostname: %s\n", c.Hostname)
		}
		fmt.Printf("   Source:   %s\n", c.Source)
		fmt.Println()
	}
	fmt.Println("Use 'mypv add <host>' to add a device")
	return nil
}

// addCmd registers a device
var addCmd = &cobra.Command{
	Use:   "add <host>",
	Short: "Add a device to the registry",
	Long: `Add a device by IPv4 address, optionally with a port.

The device is probed first: it must answer the info endpoint with a model.
Unless --sensors is given, the monitored sensors are the defaults that the
device's data endpoint can actually populate.`,
	Example: `  mypv add 192.168.1.50
  mypv add 192.168.1.50 --name Boiler --sensors power_act,temp1,temp2
  mypv add 192.168.1.50:8080 --poll-interval 30s`,
	Args: cobra.ExactArgs(1),
	RunE: runAdd,
}

func init() {
	addCmd.Flags().StringVar(&addName, "name", "", "Display name")
	addCmd.Flags().StringVar(&addSensors, "sensors", "", "Comma separated sensor keys (see 'mypv add --help')")
	addCmd.Flags().DurationVar(&addPoll, "poll-interval", 0, "Data poll interval (default 10s)")
	addCmd.Flags().DurationVar(&addSetup, "setup-refresh", 0, "Setup refresh interval (default 2m)")
	addCmd.Flags().BoolVar(&addNoProbe, "no-probe", false, "Add without contacting the device")
}

func runAdd(cmd *cobra.Command, args []string) error {
	host := args[0]
	if err := validateHost(host); err != nil {
		return err
	}

	reg, path, err := loadRegistry()
	if err != nil {
		return err
	}
	if reg.GetDevice(host) != nil {
		return fmt.Errorf("%s: %w", host, config.ErrDuplicateHost)
	}

	dev := &config.Device{
		Name:         addName,
		PollInterval: addPoll,
		SetupRefresh: addSetup,
		Sensors:      splitList(addSensors),
	}
	if err := entity.ValidateSensors(dev.Sensors); err != nil {
		return err
	}

	if !addNoProbe {
		if err := probeNewDevice(cmd.Context(), host, dev); err != nil {
			return err
		}
	}

	if err := reg.AddDevice(host, dev); err != nil {
		return err
	}
	if err := reg.SaveTo(path); err != nil {
		return err
	}

	sensors := dev.Sensors
	if len(sensors) == 0 {
		sensors = entity.DefaultSensors
	}
	ui.NewPrinter(nil).PrintResult(ui.Success("Device added",
		ui.Detail{Key: "Host", Value: host},
		ui.Detail{Key: "Name", Value: reg.DeviceName(host)},
		ui.Detail{Key: "Model", Value: orDash(dev.LastModel)},
		ui.Detail{Key: "Serial", Value: orDash(dev.LastSerial)},
		ui.Detail{Key: "Sensors", Value: strings.Join(sensors, ", ")},
		ui.Detail{Key: "Registry", Value: path},
	))
	return nil
}

// probeNewDevice identifies host and picks its sensors.
func probeNewDevice(ctx context.Context, host string, dev *config.Device) error {
	client := device.NewClient(host)
	client.SetLogger(logging.GetLogger())

	fmt.Printf("Probing %s...\n", host)
	id, err := client.Identify(ctx)
	if err != nil {
		if device.IsMalformedBody(err) {
			return fmt.Errorf("%s does not look like a my-PV device: %w", host, err)
		}
		return deviceFailure("Cannot reach "+host, err)
	}
	dev.LastSerial = id.Serial
	dev.LastModel = id.Model
	dev.LastSeen = time.Now()

	available, err := discovery.ProbeSensors(ctx, client)
	if err != nil {
		ui.NewPrinter(nil).PrintResult(ui.Warning("Sensor probe failed; keeping the defaults",
			ui.Detail{Key: "Reason", Value: device.ShortMessage(err)},
		))
		return nil
	}
	if len(dev.Sensors) == 0 {
		dev.Sensors = defaultSensorsFrom(available)
	}
	return nil
}

// defaultSensorsFrom returns the default sensors present in available, or
// nil when none are so the registry keeps tracking the defaults.
func defaultSensorsFrom(available []entity.SensorType) []string {
	present := make(map[string]bool, len(available))
	for _, st := range available {
		present[st.Key] = true
	}
	var keys []string
	for _, key := range entity.DefaultSensors {
		if present[key] {
			keys = append(keys, key)
		}
	}
	if len(keys) == len(entity.DefaultSensors) {
		return nil
	}
	return keys
}

// validateHost accepts an IPv4 address with an optional port.
func validateHost(host string) error {
	ip := host
	if h, port, err := net.SplitHostPort(host); err == nil {
		n, convErr := strconv.Atoi(port)
		if convErr != nil || n < 1 || n > 65535 {
			return fmt.Errorf("invalid port in %q", host)
		}
		ip = h
	}
	if !discovery.ValidIP(ip) {
		return fmt.Errorf("invalid IPv4 address %q", host)
	}
	return nil
}

// removeCmd deletes a device from the registry
var removeCmd = &cobra.Command{
	Use:     "remove <host>",
	Aliases: []string{"rm"},
	Short:   "Remove a device from the registry",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		reg, path, err := loadRegistry()
		if err != nil {
			return err
		}
		if err := reg.RemoveDevice(args[0]); err != nil {
			return err
		}
		if err := reg.SaveTo(path); err != nil {
			return err
		}
		ui.NewPrinter(nil).PrintResult(ui.Success("Device removed", ui.Detail{Key: "Host", Value: args[0]}))
		return nil
	},
}

// listCmd prints the registry
var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List configured devices",
	Args:  cobra.NoArgs,
	RunE:  runList,
}

func init() {
	listCmd.Flags().StringVar(&outputFormat, "format", "detailed", "Output format (detailed, compact, json)")
}

type listEntry struct {
	Host     string    `json:"host"`
	Name     string    `json:"name"`
	Serial   string    `json:"serial,omitempty"`
	Model    string    `json:"model,omitempty"`
	Sensors  []string  `json:"sensors"`
	LastSeen time.Time `json:"last_seen,omitempty"`
}

func runList(cmd *cobra.Command, args []string) error {
	reg, path, err := loadRegistry()
	if err != nil {
		return err
	}

	entries := make([]listEntry, 0, len(reg.Devices))
	for _, host := range reg.Hosts() {
		dev := reg.GetDevice(host)
		sensors := dev.Sensors
		if len(sensors) == 0 {
			sensors = entity.DefaultSensors
		}
		entries = append(entries, listEntry{
			Host:     host,
			Name:     reg.DeviceName(host),
			Serial:   dev.LastSerial,
			Model:    dev.LastModel,
			Sensors:  sensors,
			LastSeen: dev.LastSeen,
		})
	}

	switch outputFormat {
	case "json":
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(entries)
	case "compact":
		for _, e := range entries {
			fmt.Printf("%s\t%s\t%s\n", e.Host, e.Name, orDash(e.Serial))
		}
		return nil
	case "detailed":
	default:
		return fmt.Errorf("unknown format %q", outputFormat)
	}

	if len(entries) == 0 {
		fmt.Printf("No devices configured in %s\n", path)
		return nil
	}
	for _, e := range entries {
		fmt.Printf("%s (%s)\n", e.Name, e.Host)
		fmt.Printf("  Model:     %s\n", orDash(e.Model))
		fmt.Printf("  Serial:    %s\n", orDash(e.Serial))
		fmt.Printf("  Sensors:   %v\n", e.Sensors)
		if !e.LastSeen.IsZero() {
			fmt.Printf("  Last seen: %s\n", e.LastSeen.Local().Format("2006-01-02 15:04:05"))
		}
		fmt.Println()
	}
	return nil
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
