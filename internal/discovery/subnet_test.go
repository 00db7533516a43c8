package discovery

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/muurk/mypv/internal/snapshot"
)

func TestValidIP(t *testing.T) {
	tests := []struct {
		in   string
		want bool
	}{
		{"192.168.1.50", true},
		{"0.0.0.0", true},
		{"256.1.1.1", false},
		{"192.168.1", false},
		{"::1", false},
		{"::ffff:192.168.1.1", false},
		{"acthor.local", false},
		{"", false},
	}
	for _, tt := range tests {
		if got := ValidIP(tt.in); got != tt.want {
			t.Errorf("ValidIP(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestValidSubnet(t *testing.T) {
	tests := []struct {
		in   string
		want bool
	}{
		{"192.168.1", true},
		{"10.0.0", true},
		{"192.168.1.0", false},
		{"192.168", false},
		{"192.168.256", false},
		{"192.168.01", false},
		{"192.168.+1", false},
		{"192..1", false},
		{"a.b.c", false},
	}
	for _, tt := range tests {
		if got := ValidSubnet(tt.in); got != tt.want {
			t.Errorf("ValidSubnet(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestSubnetOf(t *testing.T) {
	got, err := SubnetOf("192.168.1.50")
	if err != nil || got != "192.168.1" {
		t.Errorf("SubnetOf() = %q, %v", got, err)
	}
	if _, err := SubnetOf("nope"); err == nil {
		t.Error("SubnetOf(invalid) should fail")
	}
}

func TestScanSubnet(t *testing.T) {
	var probes atomic.Int32
	prober := ProberFunc(func(_ context.Context, host string) (snapshot.Identity, error) {
		probes.Add(1)
		switch host {
		case "192.168.1.7", "192.168.1.200", "192.168.1.30":
			return snapshot.Identity{Serial: host, Model: "AC-THOR"}, nil
		}
		return snapshot.Identity{}, errors.New("connection refused")
	})

	found, err := ScanSubnet(context.Background(), "192.168.1", ScanOptions{
		Prober:      prober,
		Parallelism: 8,
		Exclude:     []string{"192.168.1.30"},
	})
	if err != nil {
		t.Fatalf("ScanSubnet() error = %v", err)
	}

	if got := probes.Load(); got != 253 {
		t.Errorf("probes = %d, want 253 (254 minus one excluded)", got)
	}

	var hosts []string
	for _, c := range found {
		hosts = append(hosts, c.Host)
		if c.Source != SourceSubnet || c.Identity.Model != "AC-THOR" {
			t.Errorf("candidate = %+v", c)
		}
	}
	if strings.Join(hosts, ",") != "192.168.1.7,192.168.1.200" {
		t.Errorf("found = %v, want ordered by last octet", hosts)
	}
}

func TestScanSubnetRespectsLimit(t *testing.T) {
	var inFlight, peak atomic.Int32
	prober := ProberFunc(func(context.Context, string) (snapshot.Identity, error) {
		n := inFlight.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		inFlight.Add(-1)
		return snapshot.Identity{}, errors.New("no")
	})

	if _, err := ScanSubnet(context.Background(), "10.0.0", ScanOptions{Prober: prober, Parallelism: 4}); err != nil {
		t.Fatalf("ScanSubnet() error = %v", err)
	}
	if peak.Load() > 4 {
		t.Errorf("peak concurrency = %d, want <= 4", peak.Load())
	}
}

func TestScanSubnetErrors(t *testing.T) {
	if _, err := ScanSubnet(context.Background(), "192.168.1.0", ScanOptions{}); err == nil {
		t.Error("invalid subnet should fail")
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	prober := ProberFunc(func(context.Context, string) (snapshot.Identity, error) {
		return snapshot.Identity{Model: "AC-THOR"}, nil
	})
	if _, err := ScanSubnet(ctx, "192.168.1", ScanOptions{Prober: prober}); !errors.Is(err, context.Canceled) {
		t.Errorf("canceled scan error = %v, want context.Canceled", err)
	}
}
