package config

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/muurk/mypv/internal/coordinator"
)

const (
	// CurrentVersion is the only file format version understood
	CurrentVersion = 1

	// DefaultListen is the HTTP listen address for serve
	DefaultListen = ":8080"

	// DefaultDiscoverTimeout is the mDNS browse duration in seconds
	DefaultDiscoverTimeout = 5

	// DefaultLanguage selects status labels
	DefaultLanguage = "en"

	// DefaultWriteRefresh is the follow-up policy after a write
	DefaultWriteRefresh = "async"

	// DefaultTopicPrefix roots the MQTT state and command topics
	DefaultTopicPrefix = "mypv"

	// DefaultDiscoveryPrefix is the Home Assistant discovery root
	DefaultDiscoveryPrefix = "homeassistant"

	// EnvMQTTPassword holds the broker password
	EnvMQTTPassword = "MYPV_MQTT_PASSWORD"
)

var (
	// ErrDuplicateHost is returned when adding a host that is already configured
	ErrDuplicateHost = errors.New("host already configured")

	// ErrUnknownHost is returned for hosts not in the registry
	ErrUnknownHost = errors.New("host not configured")
)

// Registry represents the entire configuration file.
type Registry struct {
	Version     int                `yaml:"version"`
	Devices     map[string]*Device `yaml:"devices,omitempty"` // Keyed by host
	Preferences *Preferences       `yaml:"preferences,omitempty"`
}

// Device is one configured device.
type Device struct {
	Name         string        `yaml:"name,omitempty"`          // Display name, defaults to the host
	PollInterval time.Duration `yaml:"poll_interval,omitempty"` // Data cadence, e.g. "10s"
	SetupRefresh time.Duration `yaml:"setup_refresh,omitempty"` // Minimum setup age, e.g. "2m"
	Sensors      []string      `yaml:"sensors,omitempty"`       // Monitored catalog keys

	LastSerial string    `yaml:"last_serial,omitempty"` // Identity from the last successful probe
	LastModel  string    `yaml:"last_model,omitempty"`
	LastSeen   time.Time `yaml:"last_seen,omitempty"`
}

// Preferences represents application-wide preferences.
type Preferences struct {
	Language        string     `yaml:"language"`         // Status label language (en, de)
	Listen          string     `yaml:"listen"`           // serve listen address
	DiscoverTimeout int        `yaml:"discover_timeout"` // mDNS browse timeout in seconds
	WriteRefresh    string     `yaml:"write_refresh"`    // async or wait
	MQTT            *MQTTPrefs `yaml:"mqtt,omitempty"`
}

// MQTTPrefs configures the Home Assistant bridge. An empty Broker disables it.
type MQTTPrefs struct {
	Broker          string `yaml:"broker"` // e.g. tcp://localhost:1883
	ClientID        string `yaml:"client_id,omitempty"`
	Username        string `yaml:"username,omitempty"`
	TopicPrefix     string `yaml:"topic_prefix,omitempty"`
	DiscoveryPrefix string `yaml:"discovery_prefix,omitempty"`
	// Password is never stored; see EnvMQTTPassword
}

// Password returns the broker password from the environment.
func (m *MQTTPrefs) Password() string {
	return os.Getenv(EnvMQTTPassword)
}

// Enabled reports whether a broker is configured.
func (m *MQTTPrefs) Enabled() bool {
	return m != nil && m.Broker != ""
}

func defaultPreferences() *Preferences {
	return &Preferences{
		Language:        DefaultLanguage,
		Listen:          DefaultListen,
		DiscoverTimeout: DefaultDiscoverTimeout,
		WriteRefresh:    DefaultWriteRefresh,
	}
}

// NewRegistry creates a new Registry with default values.
func NewRegistry() *Registry {
	return &Registry{
		Version:     CurrentVersion,
		Devices:     make(map[string]*Device),
		Preferences: defaultPreferences(),
	}
}

// normalize fills in defaults for fields missing from a loaded file.
func (r *Registry) normalize() {
	if r.Devices == nil {
		r.Devices = make(map[string]*Device)
	}
	if r.Preferences == nil {
		r.Preferences = defaultPreferences()
		return
	}
	p := r.Preferences
	if p.Language == "" {
		p.Language = DefaultLanguage
	}
	if p.Listen == "" {
		p.Listen = DefaultListen
	}
	if p.DiscoverTimeout <= 0 {
		p.DiscoverTimeout = DefaultDiscoverTimeout
	}
	if p.WriteRefresh == "" {
		p.WriteRefresh = DefaultWriteRefresh
	}
	if p.MQTT != nil {
		if p.MQTT.TopicPrefix == "" {
			p.MQTT.TopicPrefix = DefaultTopicPrefix
		}
		if p.MQTT.DiscoveryPrefix == "" {
			p.MQTT.DiscoveryPrefix = DefaultDiscoveryPrefix
		}
	}
}

// GetDevice retrieves a device by host.
// Returns nil if the host isn't configured.
func (r *Registry) GetDevice(host string) *Device {
	return r.Devices[host]
}

// Hosts returns the configured hosts in sorted order.
func (r *Registry) Hosts() []string {
	hosts := make([]string, 0, len(r.Devices))
	for h := range r.Devices {
		hosts = append(hosts, h)
	}
	sort.Strings(hosts)
	return hosts
}

// AddDevice adds a new device. It fails with ErrDuplicateHost if host is
// already configured.
func (r *Registry) AddDevice(host string, dev *Device) error {
	if host == "" {
		return errors.New("empty host")
	}
	if r.Devices == nil {
		r.Devices = make(map[string]*Device)
	}
	if _, exists := r.Devices[host]; exists {
		return fmt.Errorf("%s: %w", host, ErrDuplicateHost)
	}
	if dev == nil {
		dev = &Device{}
	}
	r.Devices[host] = dev
	return nil
}

// RemoveDevice deletes a device.
func (r *Registry) RemoveDevice(host string) error {
	if _, exists := r.Devices[host]; !exists {
		return fmt.Errorf("%s: %w", host, ErrUnknownHost)
	}
	delete(r.Devices, host)
	return nil
}

// UpdateDeviceLastSeen records the identity reported by a device.
// Unknown hosts are ignored.
func (r *Registry) UpdateDeviceLastSeen(host, serial, model string) {
	dev := r.Devices[host]
	if dev == nil {
		return
	}
	dev.LastSerial = serial
	dev.LastModel = model
	dev.LastSeen = time.Now()
}

// DeviceName returns the configured display name, or the host.
func (r *Registry) DeviceName(host string) string {
	if dev := r.Devices[host]; dev != nil && dev.Name != "" {
		return dev.Name
	}
	return host
}

// CoordinatorConfig returns the polling configuration for host. Zero
// durations are left for the coordinator to default.
func (r *Registry) CoordinatorConfig(host string) coordinator.Config {
	cfg := coordinator.Config{Host: host}
	if dev := r.Devices[host]; dev != nil {
		cfg.PollInterval = dev.PollInterval
		cfg.SetupRefresh = dev.SetupRefresh
	}
	return cfg
}
