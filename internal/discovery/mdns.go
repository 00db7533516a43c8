package discovery

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/grandcat/zeroconf"
	"go.uber.org/zap"

	"github.com/muurk/mypv/internal/device"
	"github.com/muurk/mypv/internal/logging"
)

const (
	// ServiceType is the mDNS service type browsed for devices
	ServiceType = "_http._tcp"

	// ServiceDomain is the mDNS domain (typically "local.")
	ServiceDomain = "local."

	// DefaultScanTimeout is the default browse duration
	DefaultScanTimeout = 5 * time.Second
)

// Scanner handles mDNS device discovery
type Scanner struct {
	// Timeout is how long to browse
	Timeout time.Duration

	// Prober confirms each answer; defaults to HTTPProber
	Prober Prober

	// Exclude lists hosts to skip
	Exclude []string

	logger *zap.Logger
}

// NewScanner creates a new mDNS scanner with default settings
func NewScanner() *Scanner {
	return &Scanner{
		Timeout: DefaultScanTimeout,
		Prober:  HTTPProber{},
		logger:  logging.GetLogger(),
	}
}

// Scan browses for HTTP services and returns those that identify as my-PV
// devices. Probes run as answers arrive and are awaited before returning.
func (s *Scanner) Scan(ctx context.Context) ([]*Candidate, error) {
	browseCtx, cancel := context.WithTimeout(ctx, s.Timeout)
	defer cancel()

	resolver, err := zeroconf.NewResolver(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create mDNS resolver: %w", err)
	}

	entries := make(chan *zeroconf.ServiceEntry)
	collected := make(chan []*Candidate, 1)
	go func() {
		collected <- s.collect(ctx, entries)
	}()

	if err := resolver.Browse(browseCtx, ServiceType, ServiceDomain, entries); err != nil {
		return nil, fmt.Errorf("failed to browse for mDNS services: %w", err)
	}

	<-browseCtx.Done()
	// zeroconf closes entries once the browse context ends.
	found := <-collected
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return found, nil
}

// collect probes each distinct entry until entries is closed.
func (s *Scanner) collect(ctx context.Context, entries <-chan *zeroconf.ServiceEntry) []*Candidate {
	skip := make(map[string]bool, len(s.Exclude))
	for _, h := range s.Exclude {
		skip[h] = true
	}

	var (
		wg    sync.WaitGroup
		mu    sync.Mutex
		found []*Candidate
	)
	for entry := range entries {
		c := parseServiceEntry(entry)
		if c == nil || skip[c.Host] {
			continue
		}
		skip[c.Host] = true

		wg.Add(1)
		go func() {
			defer wg.Done()
			id, err := s.prober().Identify(ctx, c.Host)
			if err != nil {
				s.log().Debug("mDNS answer is not a device", zap.String("host", c.Host), zap.Error(err))
				return
			}
			c.Identity = id
			mu.Lock()
			found = append(found, c)
			mu.Unlock()
		}()
	}
	wg.Wait()
	return found
}

func (s *Scanner) prober() Prober {
	if s.Prober == nil {
		return HTTPProber{}
	}
	return s.Prober
}

func (s *Scanner) log() *zap.Logger {
	if s.logger == nil {
		return logging.GetLogger()
	}
	return s.logger
}

// parseServiceEntry converts a zeroconf service entry to an unconfirmed
// candidate. Returns nil for entries without an IPv4 address.
func parseServiceEntry(entry *zeroconf.ServiceEntry) *Candidate {
	if entry == nil || len(entry.AddrIPv4) == 0 {
		return nil
	}
	ip := entry.AddrIPv4[0].String()

	port := entry.Port
	if port == 0 {
		port = device.DefaultPort
	}

	metadata := make(map[string]string)
	for _, txt := range entry.Text {
		key, value, _ := strings.Cut(txt, "=")
		metadata[key] = value
	}

	return &Candidate{
		Host:         device.JoinHostPort(ip, port),
		IP:           ip,
		Port:         port,
		Hostname:     entry.HostName,
		Metadata:     metadata,
		Source:       SourceMDNS,
		DiscoveredAt: time.Now(),
	}
}

// Discover runs an mDNS browse with the given timeout and excluded hosts.
func Discover(ctx context.Context, timeout time.Duration, exclude []string) ([]*Candidate, error) {
	scanner := NewScanner()
	if timeout > 0 {
		scanner.Timeout = timeout
	}
	scanner.Exclude = exclude
	return scanner.Scan(ctx)
}
