package discovery

import (
	"context"
	"fmt"
	"net"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/muurk/mypv/internal/logging"
)

const (
	// DefaultParallelism caps concurrent subnet probes
	DefaultParallelism = 32

	// firstHost and lastHost bound the last octet of a subnet scan
	firstHost = 1
	lastHost  = 254
)

// ScanOptions configures a subnet scan.
type ScanOptions struct {
	// Prober defaults to HTTPProber
	Prober Prober

	// Parallelism defaults to DefaultParallelism
	Parallelism int

	// Exclude lists hosts to skip, typically those already configured
	Exclude []string

	Logger *zap.Logger
}

// ValidIP reports whether s is a dotted IPv4 address.
func ValidIP(s string) bool {
	if strings.Contains(s, ":") {
		return false
	}
	ip := net.ParseIP(s)
	return ip != nil && ip.To4() != nil
}

// ValidSubnet reports whether s is the first three octets of an IPv4
// address, e.g. "192.168.1".
func ValidSubnet(s string) bool {
	parts := strings.Split(s, ".")
	if len(parts) != 3 {
		return false
	}
	for _, p := range parts {
		if p == "" || len(p) > 3 || strings.Trim(p, "0123456789") != "" {
			return false
		}
		if len(p) > 1 && p[0] == '0' {
			return false
		}
		if n, _ := strconv.Atoi(p); n > 255 {
			return false
		}
	}
	return true
}

// SubnetOf returns the first three octets of ip.
func SubnetOf(ip string) (string, error) {
	if !ValidIP(ip) {
		return "", fmt.Errorf("invalid IPv4 address %q", ip)
	}
	return ip[:strings.LastIndex(ip, ".")], nil
}

// OwnIPv4 returns the local address used for outbound traffic. No packet
// is sent; dialing UDP only selects a route.
func OwnIPv4() (string, error) {
	conn, err := net.Dial("udp4", "8.8.8.8:80")
	if err != nil {
		return "", fmt.Errorf("failed to determine local address: %w", err)
	}
	defer func() { _ = conn.Close() }()

	addr, ok := conn.LocalAddr().(*net.UDPAddr)
	if !ok || addr.IP.To4() == nil {
		return "", fmt.Errorf("no IPv4 route")
	}
	return addr.IP.String(), nil
}

// ScanSubnet probes every host of subnet and returns those that identify
// as devices, ordered by last octet. Probe failures are not errors; only
// an invalid subnet or a canceled ctx is.
func ScanSubnet(ctx context.Context, subnet string, opts ScanOptions) ([]*Candidate, error) {
	if !ValidSubnet(subnet) {
		return nil, fmt.Errorf("invalid subnet %q (expected a.b.c)", subnet)
	}

	prober := opts.Prober
	if prober == nil {
		prober = HTTPProber{}
	}
	limit := opts.Parallelism
	if limit <= 0 {
		limit = DefaultParallelism
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.GetLogger()
	}

	skip := make(map[string]bool, len(opts.Exclude))
	for _, h := range opts.Exclude {
		skip[h] = true
	}

	var (
		mu    sync.Mutex
		found []*Candidate
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)

	for octet := firstHost; octet <= lastHost; octet++ {
		ip := subnet + "." + strconv.Itoa(octet)
		if skip[ip] {
			continue
		}
		g.Go(func() error {
			if gctx.Err() != nil {
				return nil
			}
			id, err := prober.Identify(gctx, ip)
			if err != nil {
				return nil
			}
			logger.Debug("Device answered probe", zap.String("ip", ip), zap.String("model", id.Model))

			mu.Lock()
			found = append(found, &Candidate{
				Host:         ip,
				IP:           ip,
				Port:         80,
				Identity:     id,
				Source:       SourceSubnet,
				DiscoveredAt: time.Now(),
			})
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	sort.Slice(found, func(i, j int) bool {
		return lastOctet(found[i].IP) < lastOctet(found[j].IP)
	})
	return found, nil
}

func lastOctet(ip string) int {
	n, _ := strconv.Atoi(ip[strings.LastIndex(ip, ".")+1:])
	return n
}
