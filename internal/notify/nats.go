package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"auction-engine/utils"

	"github.com/nats-io/nats.go"
)

// DefaultSubjectPrefix is prepended to the notification kind
const DefaultSubjectPrefix = "auction.notify"

// Publisher is the subset of *nats.Conn the sink needs
type Publisher interface {
	Publish(subject string, data []byte) error
}

// NATSSink publishes notifications as JSON on <prefix>.<kind>
type NATSSink struct {
	pub    Publisher
	prefix string
}

// NewNATSSink creates a sink over pub
func NewNATSSink(pub Publisher, prefix string) *NATSSink {
	if prefix == "" {
		prefix = DefaultSubjectPrefix
	}
	return &NATSSink{pub: pub, prefix: prefix}
}

// Subject returns the subject a notification kind is published on
func (s *NATSSink) Subject(kind Kind) string {
	return s.prefix + "." + string(kind)
}

func (s *NATSSink) Send(ctx context.Context, n Notification) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("failed to marshal notification: %w", err)
	}
	if err := s.pub.Publish(s.Subject(n.Kind), data); err != nil {
		return fmt.Errorf("failed to publish notification: %w", err)
	}
	return nil
}

// ConnectNATS opens a connection with reconnect handling
func ConnectNATS(url string) (*nats.Conn, error) {
	opts := []nats.Option{
		nats.Name("auction-engine"),
		nats.ReconnectWait(time.Second),
		nats.MaxReconnects(10),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			if err != nil {
				utils.Warn("notify: NATS disconnected", map[string]any{"error": err.Error()})
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			utils.Info("notify: NATS reconnected", map[string]any{"url": nc.ConnectedUrl()})
		}),
	}

	conn, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	return conn, nil
}
