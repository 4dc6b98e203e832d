package sink

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"

	"chat_watcher/internal/model"
)

// flushTimeout bounds the flush when the caller's context has no deadline.
const flushTimeout = 10 * time.Second

type publisher interface {
	Publish(subject string, data []byte) error
	FlushWithContext(ctx context.Context) error
}

// NATS publishes each record as JSON on a subject.
type NATS struct {
	conn    publisher
	subject string
	close   func()
}

// DialNATS connects to url and returns a sink publishing to subject.
func DialNATS(url, subject string) (*NATS, error) {
	nc, err := nats.Connect(url, nats.Name("chat-watcher"))
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	return &NATS{conn: nc, subject: subject, close: nc.Close}, nil
}

// Append publishes rec and waits for the server to acknowledge the flush.
func (n *NATS) Append(ctx context.Context, rec model.MessageRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode record: %w", err)
	}
	if err := n.conn.Publish(n.subject, data); err != nil {
		return fmt.Errorf("publish %s: %w", n.subject, err)
	}
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, flushTimeout)
		defer cancel()
	}
	if err := n.conn.FlushWithContext(ctx); err != nil {
		return fmt.Errorf("flush nats: %w", err)
	}
	return nil
}

// Close closes the connection.
func (n *NATS) Close() {
	if n.close != nil {
		n.close()
	}
}
