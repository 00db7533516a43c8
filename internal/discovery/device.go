package discovery

import (
	"context"
	"fmt"
	"time"

	"github.com/muurk/mypv/internal/device"
	"github.com/muurk/mypv/internal/entity"
	"github.com/muurk/mypv/internal/snapshot"
)

// SensorProbeTimeout bounds the data fetch used to list available sensors
const SensorProbeTimeout = 5 * time.Second

// Source names how a candidate was found
type Source string

const (
	SourceMDNS   Source = "mdns"
	SourceSubnet Source = "subnet"
)

// Candidate is a host that answered the identity probe
type Candidate struct {
	// Host is the address to configure (IP, with port when not 80)
	Host string

	// IP is the IPv4 address
	IP string

	// Port is the HTTP port
	Port int

	// Hostname is the mDNS hostname, empty for subnet results
	Hostname string

	// Identity is what the device reported
	Identity snapshot.Identity

	// Metadata contains mDNS TXT record data
	Metadata map[string]string

	Source       Source
	DiscoveredAt time.Time
}

// String returns a human-readable representation of the candidate
func (c *Candidate) String() string {
	serial := c.Identity.Serial
	if serial == "" {
		serial = "unknown serial"
	}
	return fmt.Sprintf("%s %s at %s", c.Identity.Model, serial, c.Host)
}

// BaseURL returns the HTTP base URL for the candidate
func (c *Candidate) BaseURL() string {
	return "http://" + c.Host
}

// Prober confirms that a host is a my-PV device.
type Prober interface {
	Identify(ctx context.Context, host string) (snapshot.Identity, error)
}

// ProberFunc adapts a function to Prober.
type ProberFunc func(ctx context.Context, host string) (snapshot.Identity, error)

// Identify calls f.
func (f ProberFunc) Identify(ctx context.Context, host string) (snapshot.Identity, error) {
	return f(ctx, host)
}

// HTTPProber probes the device info endpoint over HTTP.
type HTTPProber struct {
	// Timeout overrides device.IdentifyTimeout when set
	Timeout time.Duration
}

// Identify fetches /mypv_dev.jsn from host.
func (p HTTPProber) Identify(ctx context.Context, host string) (snapshot.Identity, error) {
	if p.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.Timeout)
		defer cancel()
	}
	return device.NewClient(host).Identify(ctx)
}

// ProbeSensors fetches the data resource once and returns the catalog
// sensors it can populate.
func ProbeSensors(ctx context.Context, client *device.Client) ([]entity.SensorType, error) {
	ctx, cancel := context.WithTimeout(ctx, SensorProbeTimeout)
	defer cancel()

	data, err := client.Fetch(ctx, snapshot.KindData)
	if err != nil {
		return nil, err
	}
	return entity.Available(data), nil
}
