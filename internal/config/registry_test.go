package config

import (
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"
)

func TestGetConfigDir(t *testing.T) {
	configDir, err := GetConfigDir()
	if err != nil {
		t.Fatalf("GetConfigDir() error = %v", err)
	}

	if !strings.Contains(configDir, "mypv") {
		t.Errorf("GetConfigDir() = %v, should contain 'mypv'", configDir)
	}

	switch runtime.GOOS {
	case "windows":
		if !strings.Contains(configDir, "AppData") && !strings.Contains(configDir, "Local") {
			t.Errorf("Windows config dir should contain 'AppData' or 'Local', got: %v", configDir)
		}
	case "darwin":
		if !strings.Contains(configDir, ".config") {
			t.Errorf("macOS config dir should contain '.config', got: %v", configDir)
		}
	}
}

func TestGetConfigPathOverride(t *testing.T) {
	t.Setenv(EnvConfigPath, "/tmp/elsewhere.yaml")

	got, err := GetConfigPath()
	if err != nil {
		t.Fatalf("GetConfigPath() error = %v", err)
	}
	if got != "/tmp/elsewhere.yaml" {
		t.Errorf("GetConfigPath() = %q", got)
	}
}

func TestGetConfigPathDefault(t *testing.T) {
	t.Setenv(EnvConfigPath, "")

	got, err := GetConfigPath()
	if err != nil {
		t.Fatalf("GetConfigPath() error = %v", err)
	}
	if filepath.Base(got) != "config.yaml" {
		t.Errorf("GetConfigPath() should end with 'config.yaml', got: %v", got)
	}
}

func TestNewRegistry(t *testing.T) {
	reg := NewRegistry()

	if reg.Version != 1 {
		t.Errorf("Version = %v, want 1", reg.Version)
	}
	if reg.Devices == nil {
		t.Error("Devices should not be nil")
	}
	p := reg.Preferences
	if p.Language != "en" || p.Listen != ":8080" || p.WriteRefresh != "async" || p.DiscoverTimeout != 5 {
		t.Errorf("Preferences = %+v", p)
	}
	if p.MQTT.Enabled() {
		t.Error("MQTT should be disabled by default")
	}
}

func TestAddRemoveDevice(t *testing.T) {
	reg := NewRegistry()

	if err := reg.AddDevice("192.168.1.50", &Device{Name: "Boiler"}); err != nil {
		t.Fatalf("AddDevice() error = %v", err)
	}
	err := reg.AddDevice("192.168.1.50", nil)
	if !errors.Is(err, ErrDuplicateHost) {
		t.Errorf("second AddDevice() error = %v, want ErrDuplicateHost", err)
	}
	if err := reg.AddDevice("", nil); err == nil {
		t.Error("AddDevice(\"\") should fail")
	}

	if got := reg.DeviceName("192.168.1.50"); got != "Boiler" {
		t.Errorf("DeviceName() = %q", got)
	}
	if got := reg.DeviceName("10.0.0.1"); got != "10.0.0.1" {
		t.Errorf("DeviceName() for unknown host = %q", got)
	}

	if err := reg.RemoveDevice("192.168.1.50"); err != nil {
		t.Fatalf("RemoveDevice() error = %v", err)
	}
	if err := reg.RemoveDevice("192.168.1.50"); !errors.Is(err, ErrUnknownHost) {
		t.Errorf("second RemoveDevice() error = %v, want ErrUnknownHost", err)
	}
}

func TestHostsSorted(t *testing.T) {
	reg := NewRegistry()
	for _, h := range []string{"192.168.1.60", "192.168.1.5", "10.0.0.2"} {
		_ = reg.AddDevice(h, nil)
	}

	got := strings.Join(reg.Hosts(), ",")
	if got != "10.0.0.2,192.168.1.5,192.168.1.60" {
		t.Errorf("Hosts() = %s", got)
	}
}

func TestUpdateDeviceLastSeen(t *testing.T) {
	reg := NewRegistry()
	_ = reg.AddDevice("192.168.1.50", nil)

	before := time.Now()
	reg.UpdateDeviceLastSeen("192.168.1.50", "2001002106190004", "AC-THOR")
	reg.UpdateDeviceLastSeen("10.0.0.1", "x", "y")

	dev := reg.GetDevice("192.168.1.50")
	if dev.LastSerial != "2001002106190004" || dev.LastModel != "AC-THOR" {
		t.Errorf("identity = %q %q", dev.LastSerial, dev.LastModel)
	}
	if dev.LastSeen.Before(before) {
		t.Errorf("LastSeen = %v", dev.LastSeen)
	}
	if reg.GetDevice("10.0.0.1") != nil {
		t.Error("UpdateDeviceLastSeen should not create devices")
	}
}

func TestCoordinatorConfig(t *testing.T) {
	reg := NewRegistry()
	_ = reg.AddDevice("192.168.1.50", &Device{PollInterval: 5 * time.Second})

	cfg := reg.CoordinatorConfig("192.168.1.50")
	if cfg.Host != "192.168.1.50" || cfg.PollInterval != 5*time.Second || cfg.SetupRefresh != 0 {
		t.Errorf("CoordinatorConfig() = %+v", cfg)
	}
}

func TestParse(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr bool
		check   func(t *testing.T, r *Registry)
	}{
		{
			name: "full file",
			yaml: `version: 1
devices:
  192.168.1.50:
    name: Boiler
    poll_interval: 15s
    setup_refresh: 5m
    sensors: [power_act, temp1]
preferences:
  language: de
  listen: 127.0.0.1:9000
  discover_timeout: 3
  write_refresh: wait
  mqtt:
    broker: tcp://localhost:1883
`,
			check: func(t *testing.T, r *Registry) {
				dev := r.GetDevice("192.168.1.50")
				if dev == nil {
					t.Fatal("device missing")
				}
				if dev.PollInterval != 15*time.Second || dev.SetupRefresh != 5*time.Minute {
					t.Errorf("durations = %v %v", dev.PollInterval, dev.SetupRefresh)
				}
				if len(dev.Sensors) != 2 {
					t.Errorf("Sensors = %v", dev.Sensors)
				}
				p := r.Preferences
				if p.Language != "de" || p.WriteRefresh != "wait" || p.DiscoverTimeout != 3 {
					t.Errorf("Preferences = %+v", p)
				}
				if !p.MQTT.Enabled() || p.MQTT.TopicPrefix != "mypv" || p.MQTT.DiscoveryPrefix != "homeassistant" {
					t.Errorf("MQTT = %+v", p.MQTT)
				}
			},
		},
		{
			name: "defaults filled",
			yaml: "version: 1\ndevices:\n  10.0.0.2:\n",
			check: func(t *testing.T, r *Registry) {
				if r.GetDevice("10.0.0.2") == nil {
					t.Error("empty device entry should be kept")
				}
				if r.Preferences == nil || r.Preferences.Listen != DefaultListen {
					t.Errorf("Preferences = %+v", r.Preferences)
				}
			},
		},
		{name: "wrong version", yaml: "version: 2\n", wantErr: true},
		{name: "negative interval", yaml: "version: 1\ndevices:\n  h:\n    poll_interval: -1s\n", wantErr: true},
		{name: "invalid yaml", yaml: "version: [", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reg, err := Parse([]byte(tt.yaml))
			if (err != nil) != tt.wantErr {
				t.Fatalf("Parse() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.check != nil {
				tt.check(t, reg)
			}
		})
	}
}

func TestSaveAndLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")

	reg := NewRegistry()
	_ = reg.AddDevice("192.168.1.50", &Device{
		Name:         "Boiler",
		PollInterval: 30 * time.Second,
		Sensors:      []string{"temp1"},
	})
	reg.Preferences.MQTT = &MQTTPrefs{Broker: "tcp://broker:1883", Username: "ha"}

	if err := reg.SaveTo(path); err != nil {
		t.Fatalf("SaveTo() error = %v", err)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	if !strings.HasPrefix(string(raw), "# mypv configuration file") {
		t.Error("saved file should start with the header comment")
	}
	if strings.Contains(string(raw), "password:") {
		t.Error("saved file must not contain a password")
	}
	if _, err := os.Stat(path + ".tmp"); !os.IsNotExist(err) {
		t.Error("temporary file should be gone")
	}

	loaded, err := LoadFrom(path)
	if err != nil {
		t.Fatalf("LoadFrom() error = %v", err)
	}
	dev := loaded.GetDevice("192.168.1.50")
	if dev == nil || dev.Name != "Boiler" || dev.PollInterval != 30*time.Second {
		t.Errorf("loaded device = %+v", dev)
	}
	if loaded.Preferences.MQTT.Username != "ha" {
		t.Errorf("loaded MQTT = %+v", loaded.Preferences.MQTT)
	}
}

func TestLoadFromMissingFile(t *testing.T) {
	reg, err := LoadFrom(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("LoadFrom() error = %v", err)
	}
	if len(reg.Devices) != 0 || reg.Version != CurrentVersion {
		t.Errorf("LoadFrom() = %+v, want defaults", reg)
	}
}

func TestMQTTPassword(t *testing.T) {
	t.Setenv(EnvMQTTPassword, "s3cret")
	m := &MQTTPrefs{Broker: "tcp://x:1883"}
	if m.Password() != "s3cret" {
		t.Errorf("Password() = %q", m.Password())
	}
}

func BenchmarkGetConfigDir(b *testing.B) {
	for i := 0; i < b.N; i++ {
		_, _ = GetConfigDir()
	}
}
