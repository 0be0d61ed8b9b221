package mqtt

import (
	"context"
	"net"
	"net/url"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/tphakala/logbook/internal/errors"
	"github.com/tphakala/logbook/internal/logger"
	"github.com/tphakala/logbook/internal/observability/metrics"
)

// client implements the Client interface on top of paho.
type client struct {
	config          Config
	internalClient  paho.Client
	lastConnAttempt time.Time
	mu              sync.Mutex
	metrics         *metrics.MQTTMetrics
}

// NewClient creates a new MQTT client. m may be nil.
func NewClient(cfg Config, m *metrics.MQTTMetrics) (Client, error) {
	if cfg.Broker == "" {
		return nil, mqttError(errors.NewStd("broker URL is required"), "new_client", cfg.Broker)
	}
	if _, err := url.Parse(cfg.Broker); err != nil {
		return nil, mqttError(err, "new_client", cfg.Broker)
	}
	defaults := DefaultConfig()
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = defaults.ConnectTimeout
	}
	if cfg.PublishTimeout <= 0 {
		cfg.PublishTimeout = defaults.PublishTimeout
	}
	if cfg.DisconnectTimeout <= 0 {
		cfg.DisconnectTimeout = defaults.DisconnectTimeout
	}
	if cfg.ClientID == "" {
		cfg.ClientID = defaults.ClientID
	}
	return &client{config: cfg, metrics: m}, nil
}

// Connect resolves the broker host and connects. Attempts closer together
// than ReconnectCooldown are rejected.
func (c *client) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if since := time.Since(c.lastConnAttempt); since < c.config.ReconnectCooldown {
		return errors.Newf("connection attempt too recent, last attempt was %v ago", since).
			Component("mqtt").
			Category(errors.CategoryMQTT).
			Build()
	}
	c.lastConnAttempt = time.Now()
	start := c.lastConnAttempt

	u, err := url.Parse(c.config.Broker)
	if err != nil {
		return mqttError(err, "connect", c.config.Broker)
	}
	if host := u.Hostname(); net.ParseIP(host) == nil {
		if _, err := net.DefaultResolver.LookupHost(ctx, host); err != nil {
			return brokerError(err, "resolve", c.config, time.Since(start))
		}
	}

	opts := paho.NewClientOptions()
	opts.AddBroker(c.config.Broker)
	opts.SetClientID(c.config.ClientID)
	opts.SetUsername(c.config.Username)
	opts.SetPassword(c.config.Password)
	opts.SetCleanSession(true)
	opts.SetAutoReconnect(true)
	opts.SetConnectTimeout(c.config.ConnectTimeout)
	opts.SetOnConnectHandler(c.onConnect)
	opts.SetConnectionLostHandler(c.onConnectionLost)

	c.internalClient = paho.NewClient(opts)
	token := c.internalClient.Connect()
	if !waitToken(ctx, token, c.config.ConnectTimeout) {
		return brokerError(errors.NewStd("connection timeout"), "connect", c.config, time.Since(start))
	}
	if err := token.Error(); err != nil {
		return brokerError(err, "connect", c.config, time.Since(start))
	}

	c.updateConnected(true)
	return nil
}

// Publish sends payload to topic with QoS 1.
func (c *client) Publish(ctx context.Context, topic string, payload []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.isConnected() {
		return mqttError(errors.NewStd("not connected to MQTT broker"), "publish", topic)
	}

	start := time.Now()
	token := c.internalClient.Publish(topic, 1, c.config.Retain, payload)
	if !waitToken(ctx, token, c.config.PublishTimeout) {
		c.incrementErrors()
		return mqttError(errors.NewStd("publish timeout"), "publish", topic)
	}
	if err := token.Error(); err != nil {
		c.incrementErrors()
		return mqttError(err, "publish", topic)
	}

	if c.metrics != nil {
		c.metrics.IncrementMessagesDelivered()
		c.metrics.ObservePublish(len(payload), time.Since(start))
	}
	GetLogger().Debug("published message",
		logger.String("topic", topic),
		logger.Int("size", len(payload)))
	return nil
}

func (c *client) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.isConnected()
}

func (c *client) isConnected() bool {
	return c.internalClient != nil && c.internalClient.IsConnected()
}

func (c *client) Disconnect() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.isConnected() {
		c.internalClient.Disconnect(uint(c.config.DisconnectTimeout.Milliseconds()))
		c.updateConnected(false)
	}
}

func (c *client) onConnect(paho.Client) {
	GetLogger().Info("connected to MQTT broker", logger.String("broker", c.config.Broker))
	c.updateConnected(true)
}

// paho reconnects on its own, this only records the loss.
func (c *client) onConnectionLost(_ paho.Client, err error) {
	GetLogger().Warn("connection to MQTT broker lost",
		logger.String("broker", c.config.Broker),
		logger.Error(err))
	c.updateConnected(false)
	c.incrementErrors()
}

func (c *client) updateConnected(connected bool) {
	if c.metrics != nil {
		c.metrics.UpdateConnectionStatus(connected)
	}
}

func (c *client) incrementErrors() {
	if c.metrics != nil {
		c.metrics.IncrementErrors()
	}
}

// waitToken waits for token completion, the timeout or ctx cancellation.
func waitToken(ctx context.Context, token paho.Token, timeout time.Duration) bool {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-token.Done():
		return true
	case <-timer.C:
		return false
	case <-ctx.Done():
		return false
	}
}

// brokerError describes a failed broker round trip without exposing the
// broker address.
func brokerError(err error, operation string, cfg Config, elapsed time.Duration) error {
	return errors.New(err).
		Component("mqtt").
		Category(errors.CategoryNetwork).
		Priority(errors.PriorityHigh).
		Context("operation", operation).
		Endpoint(cfg.Broker, cfg.ConnectTimeout).
		Elapsed(elapsed).
		Build()
}

func mqttError(err error, operation, target string) error {
	return errors.New(err).
		Component("mqtt").
		Category(errors.CategoryMQTT).
		Context("operation", operation).
		Context("target", logger.RedactSensitiveData(target)).
		Build()
}
