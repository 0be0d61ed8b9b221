package mqtt

import (
	"context"
	"encoding/json"
	"path"
	"sync"

	"github.com/tphakala/logbook/internal/backup"
	"github.com/tphakala/logbook/internal/critical"
	"github.com/tphakala/logbook/internal/errors"
	"github.com/tphakala/logbook/internal/events"
	"github.com/tphakala/logbook/internal/logger"
)

// Event kinds understood by the publisher besides backup event types.
const KindCritical = "critical"

// Publisher is an events.Consumer that forwards snapshot events and
// critical summaries to MQTT below a topic prefix.
type Publisher struct {
	client Client
	prefix string

	startOnce sync.Once
	stopOnce  sync.Once
}

var _ events.Consumer = (*Publisher)(nil)

// NewPublisher creates a publisher writing below topic prefix.
func NewPublisher(c Client, prefix string) *Publisher {
	if prefix == "" {
		prefix = DefaultConfig().Topic
	}
	return &Publisher{client: c, prefix: prefix}
}

// Name implements events.Consumer.
func (p *Publisher) Name() string { return "mqtt" }

// Start connects the client if needed. A failed connect is logged; paho
// keeps retrying in the background.
func (p *Publisher) Start(ctx context.Context) {
	p.startOnce.Do(func() {
		if p.client.IsConnected() {
			return
		}
		if err := p.client.Connect(ctx); err != nil {
			GetLogger().Warn("initial MQTT connect failed", logger.Error(err))
		}
	})
}

// Stop disconnects from the broker.
func (p *Publisher) Stop() {
	p.stopOnce.Do(p.client.Disconnect)
}

// ProcessEvent publishes a backup.Event to <prefix>/snapshots/<type> and a
// critical.Summary to <prefix>/critical. Other payloads are rejected.
func (p *Publisher) ProcessEvent(ctx context.Context, ev events.Event) error {
	var topic string
	switch v := ev.Payload.(type) {
	case backup.Event:
		topic = path.Join(p.prefix, "snapshots", string(v.Type))
	case critical.Summary:
		topic = path.Join(p.prefix, "critical")
	default:
		return errors.Newf("unsupported event payload %T", ev.Payload).
			Component("mqtt").
			Category(errors.CategoryValidation).
			Context("kind", ev.Kind).
			Build()
	}

	payload, err := json.Marshal(ev.Payload)
	if err != nil {
		return mqttError(err, "encode", topic)
	}
	return p.client.Publish(ctx, topic, payload)
}
