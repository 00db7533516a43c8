package device

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/muurk/mypv/internal/logging"
	"github.com/muurk/mypv/internal/snapshot"
	"github.com/muurk/mypv/internal/version"
)

const (
	// DefaultPort is the HTTP port the device serves its JSON endpoints on
	DefaultPort = 80

	// DefaultReadTimeout bounds each resource fetch
	DefaultReadTimeout = 10 * time.Second

	// DefaultWriteTimeout bounds each write request
	DefaultWriteTimeout = 10 * time.Second

	// IdentifyTimeout bounds the identity probe used by discovery
	IdentifyTimeout = 15 * time.Second

	// maxBodySize caps how much of a response is read
	maxBodySize = 1 << 20
)

// Device endpoints
const (
	PathData  = "/data.jsn"
	PathInfo  = "/mypv_dev.jsn"
	PathSetup = "/setup.jsn"

	ParamBoost = "bststrt"
	ParamMode  = "devmode"
)

// Path returns the endpoint serving kind
func Path(kind snapshot.Kind) string {
	switch kind {
	case snapshot.KindInfo:
		return PathInfo
	case snapshot.KindSetup:
		return PathSetup
	default:
		return PathData
	}
}

// Client talks to one device over its local HTTP JSON interface.
// A Client is safe for concurrent use.
type Client struct {
	// BaseURL is the base URL for the device (e.g., "http://192.168.1.50")
	BaseURL string

	// Host is the device address used in logs and errors
	Host string

	// HTTPClient is the underlying HTTP client. Timeouts are applied per
	// call through the request context.
	HTTPClient *http.Client

	// ReadTimeout bounds Fetch calls
	ReadTimeout time.Duration

	// WriteTimeout bounds Write calls
	WriteTimeout time.Duration

	// UserAgent is sent with every request
	UserAgent string

	logger *zap.Logger
}

// NewClient creates a client for a device address.
// host: IP or hostname, optionally with ":port" (default port 80)
func NewClient(host string) *Client {
	return NewClientWithURL("http://" + host)
}

// NewClientWithURL creates a client with a full base URL
// baseURL: Full base URL (e.g., "http://192.168.1.50:80")
func NewClientWithURL(baseURL string) *Client {
	host := baseURL
	if u, err := url.Parse(baseURL); err == nil && u.Host != "" {
		host = u.Host
	}
	return newClient(strings.TrimRight(baseURL, "/"), host)
}

func newClient(baseURL, host string) *Client {
	return &Client{
		BaseURL:      baseURL,
		Host:         host,
		HTTPClient:   &http.Client{},
		ReadTimeout:  DefaultReadTimeout,
		WriteTimeout: DefaultWriteTimeout,
		UserAgent:    version.UserAgent(),
		logger:       logging.GetLogger(),
	}
}

// SetTimeouts sets the read and write timeouts. Zero leaves a value unchanged.
func (c *Client) SetTimeouts(read, write time.Duration) {
	if read > 0 {
		c.ReadTimeout = read
	}
	if write > 0 {
		c.WriteTimeout = write
	}
}

// SetLogger replaces the client's logger
func (c *Client) SetLogger(logger *zap.Logger) {
	if logger != nil {
		c.logger = logger
	}
}

// Fetch reads one resource from the device
func (c *Client) Fetch(ctx context.Context, kind snapshot.Kind) (snapshot.Resource, error) {
	return c.fetch(ctx, Path(kind), c.ReadTimeout)
}

func (c *Client) fetch(ctx context.Context, path string, timeout time.Duration) (snapshot.Resource, error) {
	body, err := c.get(ctx, path, nil, timeout)
	if err != nil {
		return nil, err
	}

	res, err := snapshot.Decode(body)
	if err != nil {
		return nil, NewMalformedError(c.Host, path, err)
	}
	return res, nil
}

// Write sends a command as query parameters on the data endpoint. Any 2xx
// response is success; the body is ignored.
func (c *Client) Write(ctx context.Context, params url.Values) error {
	_, err := c.get(ctx, PathData, params, c.WriteTimeout)
	return err
}

// SetBoost starts (true) or stops (false) a hot-water boost
func (c *Client) SetBoost(ctx context.Context, on bool) error {
	return c.Write(ctx, url.Values{ParamBoost: {flag(on)}})
}

// SetMode switches the device mode on or off
func (c *Client) SetMode(ctx context.Context, on bool) error {
	return c.Write(ctx, url.Values{ParamMode: {flag(on)}})
}

// Identify probes the info endpoint and returns the device identity.
// It fails with KindMalformedBody when the host answers but does not
// report a device model.
func (c *Client) Identify(ctx context.Context) (snapshot.Identity, error) {
	res, err := c.fetch(ctx, PathInfo, IdentifyTimeout)
	if err != nil {
		return snapshot.Identity{}, err
	}

	model, ok := res.String("device")
	if !ok || model == "" {
		return snapshot.Identity{}, NewMalformedError(c.Host, PathInfo, errors.New("missing device field"))
	}
	serial, _ := res.String("sn")
	return snapshot.Identity{Serial: serial, Model: model}, nil
}

func (c *Client) get(ctx context.Context, path string, query url.Values, timeout time.Duration) ([]byte, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	target := c.BaseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, NewNetworkError(c.Host, path, "failed to create request", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.UserAgent != "" {
		req.Header.Set("User-Agent", c.UserAgent)
	}

	start := time.Now()
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		devErr := NewNetworkError(c.Host, path, "", err)
		logging.LogDeviceRequest(c.logger, c.Host, path, 0, time.Since(start), devErr)
		return nil, devErr
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		devErr := NewStatusError(c.Host, path, resp.StatusCode)
		logging.LogDeviceRequest(c.logger, c.Host, path, resp.StatusCode, time.Since(start), devErr)
		return nil, devErr
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		devErr := NewNetworkError(c.Host, path, "failed to read response body", err)
		logging.LogDeviceRequest(c.logger, c.Host, path, resp.StatusCode, time.Since(start), devErr)
		return nil, devErr
	}

	logging.LogDeviceRequest(c.logger, c.Host, path, resp.StatusCode, time.Since(start), nil)
	return body, nil
}

func flag(on bool) string {
	if on {
		return "1"
	}
	return "0"
}

// JoinHostPort formats a device address, omitting the default port.
func JoinHostPort(ip string, port int) string {
	if port == 0 || port == DefaultPort {
		return ip
	}
	return net.JoinHostPort(ip, fmt.Sprint(port))
}
