// Package nats streams search events to a NATS subject.
package nats

import (
	"context"
	"encoding/json"

	natsgo "github.com/nats-io/nats.go"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"

	"github.com/kailas-cloud/retrievex/internal/domain/search/result"
	logpkg "github.com/kailas-cloud/retrievex/internal/logger"
)

// conn is the slice of *nats.Conn the publisher needs.
type conn interface {
	PublishMsg(m *natsgo.Msg) error
}

// headerCarrier adapts nats.Msg headers for OTel TextMapCarrier.
type headerCarrier natsgo.Header

func (c headerCarrier) Get(key string) string { return natsgo.Header(c).Get(key) }

func (c headerCarrier) Set(key, val string) { natsgo.Header(c).Set(key, val) }

func (c headerCarrier) Keys() []string {
	keys := make([]string, 0, len(c))
	for k := range c {
		keys = append(keys, k)
	}
	return keys
}

// Publisher emits one JSON message per finished search.
type Publisher struct {
	conn    conn
	subject string
	logger  *zap.Logger
}

// NewPublisher creates a publisher on subject.
func NewPublisher(c conn, subject string, logger *zap.Logger) *Publisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Publisher{conn: c, subject: subject, logger: logger}
}

// SearchCompleted publishes ev with the trace context of ctx in the headers.
// The NATS client buffers the write; failures are logged and dropped.
func (p *Publisher) SearchCompleted(ctx context.Context, ev result.Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		logpkg.FromContextOr(ctx, p.logger).Warn("encode search event", zap.Error(err))
		return
	}
	msg := &natsgo.Msg{
		Subject: p.subject,
		Data:    data,
		Header:  natsgo.Header{},
	}
	otel.GetTextMapPropagator().Inject(ctx, headerCarrier(msg.Header))
	if err := p.conn.PublishMsg(msg); err != nil {
		logpkg.FromContextOr(ctx, p.logger).Warn("publish search event",
			zap.String("subject", p.subject), zap.Error(err))
	}
}
