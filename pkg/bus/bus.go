package bus

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
)

const (
	// StreamName is the JetStream stream carrying cdnsync events.
	StreamName = "CDNSYNC"
	// InventoryUpdatedSubject announces that a publish run rewrote an inventory.
	InventoryUpdatedSubject = "cdnsync.inventory.updated"
)

// InventoryUpdated is emitted after a successful publish run.
type InventoryUpdated struct {
	RunID     string    `json:"run_id"`
	Inventory string    `json:"inventory"`
	Root      string    `json:"root,omitempty"`
	Files     int       `json:"files"`
	Uploaded  int       `json:"uploaded"`
	At        time.Time `json:"at"`
}

// Bus wraps a NATS JetStream connection for publishing and consuming events.
type Bus struct {
	conn *nats.Conn
	js   nats.JetStreamContext
}

// New creates a Bus connected to the provided NATS endpoint and makes sure the cdnsync
// stream exists.
func New(url string, opts ...nats.Option) (*Bus, error) {
	nc, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, err
	}

	js, err := nc.JetStream()
	if err != nil {
		nc.Close()
		return nil, err
	}

	b := &Bus{conn: nc, js: js}
	if err := b.ensureStream(); err != nil {
		nc.Close()
		return nil, err
	}
	return b, nil
}

func (b *Bus) ensureStream() error {
	if _, err := b.js.StreamInfo(StreamName); err == nil {
		return nil
	} else if !errors.Is(err, nats.ErrStreamNotFound) {
		return err
	}
	_, err := b.js.AddStream(&nats.StreamConfig{
		Name:     StreamName,
		Subjects: []string{"cdnsync.>"},
		MaxAge:   24 * time.Hour,
	})
	return err
}

// Close shuts down the underlying NATS connection.
func (b *Bus) Close() {
	if b == nil {
		return
	}
	if err := b.conn.Drain(); err != nil {
		b.conn.Close()
	}
}

// Publish encodes v as JSON and publishes it to the given subject.
func (b *Bus) Publish(ctx context.Context, subj string, v any) error {
	if b == nil {
		return errors.New("nil bus")
	}

	data, err := json.Marshal(v)
	if err != nil {
		return err
	}

	_, err = b.js.Publish(subj, data, nats.Context(ctx))
	return err
}

// PublishInventoryUpdated announces a rewritten inventory.
func (b *Bus) PublishInventoryUpdated(ctx context.Context, evt InventoryUpdated) error {
	if evt.At.IsZero() {
		evt.At = time.Now().UTC()
	}
	return b.Publish(ctx, InventoryUpdatedSubject, evt)
}

type subscription struct {
	sub    *nats.Subscription
	mu     sync.Mutex
	closed bool
}

func (s *subscription) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.sub.Drain()
}

// Subscribe creates a consumer on the given subject and invokes fn for each message.
// An empty durable name creates an ephemeral consumer that only sees new messages,
// which is what per-process listeners such as resolver replicas want.
func (b *Bus) Subscribe(ctx context.Context, subj, durable string, fn func(ctx context.Context, data []byte) error) (io.Closer, error) {
	if b == nil {
		return nil, errors.New("nil bus")
	}
	if fn == nil {
		return nil, errors.New("nil handler")
	}

	handler := func(msg *nats.Msg) {
		handlerCtx, cancel := context.WithCancel(ctx)
		defer cancel()

		if err := fn(handlerCtx, msg.Data); err != nil {
			_ = msg.Nak()
			return
		}
		_ = msg.Ack()
	}

	subOpts := []nats.SubOpt{nats.ManualAck(), nats.AckExplicit()}
	if durable != "" {
		subOpts = append(subOpts, nats.Durable(durable))
	} else {
		subOpts = append(subOpts, nats.DeliverNew())
	}

	sub, err := b.js.Subscribe(subj, handler, subOpts...)
	if err != nil {
		return nil, err
	}

	s := &subscription{sub: sub}

	go func() {
		<-ctx.Done()
		_ = s.Close()
	}()

	return s, nil
}

// SubscribeInventoryUpdated decodes InventoryUpdated events for fn.
func (b *Bus) SubscribeInventoryUpdated(ctx context.Context, durable string, fn func(context.Context, InventoryUpdated) error) (io.Closer, error) {
	if fn == nil {
		return nil, errors.New("nil handler")
	}
	return b.Subscribe(ctx, InventoryUpdatedSubject, durable, func(ctx context.Context, data []byte) error {
		var evt InventoryUpdated
		if err := json.Unmarshal(data, &evt); err != nil {
			return err
		}
		return fn(ctx, evt)
	})
}
