package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/muurk/mypv/internal/bridge"
	"github.com/muurk/mypv/internal/config"
	"github.com/muurk/mypv/internal/hass"
	"github.com/muurk/mypv/internal/logging"
	"github.com/muurk/mypv/internal/server"
)

// Serve command flags
var (
	serveListen string
	serveCert   string
	serveKey    string
	serveNoMQTT bool
)

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVar(&serveListen, "listen", "", "HTTP listen address (default from preferences, "+config.DefaultListen+")")
	serveCmd.Flags().StringVar(&serveCert, "cert", "", "TLS certificate file (enables HTTPS with --key)")
	serveCmd.Flags().StringVar(&serveKey, "key", "", "TLS private key file")
	serveCmd.Flags().BoolVar(&serveNoMQTT, "no-mqtt", false, "Do not connect to the MQTT broker even if one is configured")
}

// serveCmd runs the long-lived bridge
var serveCmd = &cobra.Command{
	Use:   "serve [host...]",
	Short: "Poll devices and serve the HTTP API, metrics and MQTT bridge",
	Long: `Poll every configured device (or the hosts given) and serve:

  - a JSON API and WebSocket push under /api/devices
  - Prometheus metrics at /metrics
  - a health check at /health

When preferences.mqtt.broker is set, devices are also announced to Home
Assistant through MQTT discovery. The broker password is read from
$` + config.EnvMQTTPassword + `.`,
	Example: `  # Serve all configured devices on the default address
  mypv serve --log-level info

  # HTTPS on a custom port
  mypv serve --listen :8443 --cert cert.pem --key key.pem`,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	if (serveCert == "") != (serveKey == "") {
		return fmt.Errorf("both --cert and --key must be provided together")
	}
	for _, path := range []string{serveCert, serveKey} {
		if path == "" {
			continue
		}
		if _, err := os.Stat(path); err != nil {
			return fmt.Errorf("cannot read %s: %w", path, err)
		}
	}

	reg, path, err := loadRegistry()
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
	defer func() {
		shutdownAll(handles)
		recordIdentities(reg, path, handles)
	}()

	logger := logging.GetLogger()
	listen := serveListen
	if listen == "" {
		listen = reg.Preferences.Listen
	}

	devices := make([]server.Device, 0, len(handles))
	for _, h := range handles {
		devices = append(devices, h)
	}
	srv, err := server.New(server.Config{
		Addr:     listen,
		CertFile: serveCert,
		KeyFile:  serveKey,
	}, devices, server.WithLogger(logger))
	if err != nil {
		return err
	}

	g, ctx := errgroup.WithContext(cmd.Context())

	if mqttPrefs := reg.Preferences.MQTT; mqttPrefs.Enabled() && !serveNoMQTT {
		closeBridge, err := startHass(ctx, mqttPrefs, handles, logger)
		if err != nil {
			return err
		}
		defer closeBridge()
	}

	for _, h := range handles {
		if err := h.Start(ctx); err != nil {
			return err
		}
	}

	g.Go(func() error {
		return srv.Start(ctx)
	})

	fmt.Printf("Serving %d device(s) on %s\n", len(handles), listen)
	return g.Wait()
}

// startHass connects to the broker and attaches every handle. The returned
// func detaches the devices and disconnects.
func startHass(ctx context.Context, prefs *config.MQTTPrefs, handles []*bridge.Handle, logger *zap.Logger) (func(), error) {
	topics := hass.Topics{Prefix: prefs.TopicPrefix, DiscoveryPrefix: prefs.DiscoveryPrefix}
	client, err := hass.NewPahoClient(hass.ConnectOptions{
		Broker:   prefs.Broker,
		ClientID: prefs.ClientID,
		Username: prefs.Username,
		Password: prefs.Password(),
		Topics:   topics,
		Logger:   logger,
	})
	if err != nil {
		return nil, err
	}

	b := hass.New(client, hass.Options{Topics: topics, Logger: logger})
	client.OnConnect(b.Resync)
	if err := client.Connect(ctx); err != nil {
		b.Close()
		return nil, err
	}
	for _, h := range handles {
		b.Attach(h)
	}

	return func() {
		b.Close()
		client.Close()
	}, nil
}
