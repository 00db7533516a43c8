package hass

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"

	"github.com/muurk/mypv/internal/logging"
)

const (
	// DefaultKeepAlive is the MQTT keepalive interval
	DefaultKeepAlive = 30 * time.Second

	// DefaultOperationTimeout bounds each publish or subscribe
	DefaultOperationTimeout = 10 * time.Second

	qos byte = 1
)

// ConnectOptions configures the broker connection.
type ConnectOptions struct {
	// Broker is a URL such as tcp://192.168.1.10:1883
	Broker   string
	ClientID string
	Username string
	Password string
	Topics   Topics

	KeepAlive        time.Duration
	OperationTimeout time.Duration
	Logger           *zap.Logger
}

// PahoClient is a Client backed by paho. The bridge-wide availability topic
// is set online on every connect and offline by the last will.
type PahoClient struct {
	client  mqtt.Client
	topics  Topics
	timeout time.Duration
	logger  *zap.Logger

	mu        sync.Mutex
	onConnect func()
}

// NewPahoClient prepares a connection without dialing.
func NewPahoClient(opts ConnectOptions) (*PahoClient, error) {
	if opts.Broker == "" {
		return nil, fmt.Errorf("mqtt: empty broker address")
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.GetLogger()
	}
	keepAlive := opts.KeepAlive
	if keepAlive <= 0 {
		keepAlive = DefaultKeepAlive
	}
	timeout := opts.OperationTimeout
	if timeout <= 0 {
		timeout = DefaultOperationTimeout
	}
	clientID := opts.ClientID
	if clientID == "" {
		host, _ := os.Hostname()
		clientID = "mypv-" + sanitize(host)
	}

	p := &PahoClient{
		topics:  opts.Topics.withDefaults(),
		timeout: timeout,
		logger:  logger.With(zap.String("broker", opts.Broker)),
	}

	mo := mqtt.NewClientOptions().
		AddBroker(opts.Broker).
		SetClientID(clientID).
		SetKeepAlive(keepAlive).
		SetPingTimeout(timeout).
		SetConnectTimeout(timeout).
		SetWill(p.topics.Bridge(), PayloadOffline, qos, true).
		SetAutoReconnect(true).
		SetOrderMatters(false)
	if opts.Username != "" {
		mo.SetUsername(opts.Username)
		mo.SetPassword(opts.Password)
	}
	mo.OnConnect = p.handleConnect
	mo.OnConnectionLost = func(_ mqtt.Client, err error) {
		p.logger.Warn("MQTT connection lost", zap.Error(err))
	}

	p.client = mqtt.NewClient(mo)
	return p, nil
}

// OnConnect sets fn to run after every successful (re)connect.
func (p *PahoClient) OnConnect(fn func()) {
	p.mu.Lock()
	p.onConnect = fn
	p.mu.Unlock()
}

func (p *PahoClient) handleConnect(c mqtt.Client) {
	p.logger.Info("MQTT connected")
	token := c.Publish(p.topics.Bridge(), qos, true, PayloadOnline)
	if token.WaitTimeout(p.timeout) && token.Error() != nil {
		p.logger.Warn("Failed to publish bridge availability", zap.Error(token.Error()))
	}

	p.mu.Lock()
	fn := p.onConnect
	p.mu.Unlock()
	if fn != nil {
		fn()
	}
}

// Connect dials the broker and waits for the first connection.
func (p *PahoClient) Connect(ctx context.Context) error {
	token := p.client.Connect()
	select {
	case <-token.Done():
	case <-ctx.Done():
		return ctx.Err()
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("mqtt connect: %w", err)
	}
	return nil
}

// Publish implements Client.
func (p *PahoClient) Publish(topic string, retained bool, payload []byte) error {
	return p.wait(p.client.Publish(topic, qos, retained, payload), "publish "+topic)
}

// Subscribe implements Client.
func (p *PahoClient) Subscribe(topic string, handler MessageHandler) error {
	token := p.client.Subscribe(topic, qos, func(_ mqtt.Client, m mqtt.Message) {
		handler(m.Topic(), m.Payload())
	})
	return p.wait(token, "subscribe "+topic)
}

// Unsubscribe implements Client.
func (p *PahoClient) Unsubscribe(topics ...string) error {
	if len(topics) == 0 {
		return nil
	}
	return p.wait(p.client.Unsubscribe(topics...), "unsubscribe")
}

func (p *PahoClient) wait(token mqtt.Token, op string) error {
	if !token.WaitTimeout(p.timeout) {
		return fmt.Errorf("mqtt %s: timed out after %s", op, p.timeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("mqtt %s: %w", op, err)
	}
	return nil
}

// Close marks the bridge offline and disconnects.
func (p *PahoClient) Close() {
	if !p.client.IsConnected() {
		return
	}
	_ = p.Publish(p.topics.Bridge(), true, []byte(PayloadOffline))
	p.client.Disconnect(250)
}
