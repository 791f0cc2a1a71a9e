package events

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nats-io/nats.go"
)

// HeaderMicrolotID carries the microlot a message refers to, so bus
// consumers can route without decoding the payload.
const HeaderMicrolotID = "Cafetrace-Microlot-Id"

// DefaultFlushTimeout bounds Flush when the caller's context has no deadline.
const DefaultFlushTimeout = 5 * time.Second

// subscriberBuffer is the per-subscription channel size; messages beyond it
// are dropped rather than stalling the NATS client.
const subscriberBuffer = 64

// connect dials NATS with unlimited reconnects. opts are applied after the
// defaults, so callers can override the name or add handlers.
func connect(url, name string, opts []nats.Option) (*nats.Conn, error) {
	all := append([]nats.Option{
		nats.Name(name),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(time.Second),
	}, opts...)
	nc, err := nats.Connect(url, all...)
	if err != nil {
		return nil, fmt.Errorf("connecting to NATS at %s: %w", url, err)
	}
	return nc, nil
}

// NATSPublisher publishes ledger events as JSON on their topic subject.
type NATSPublisher struct {
	conn *nats.Conn
}

var (
	_ Publisher = (*NATSPublisher)(nil)
	_ Flusher   = (*NATSPublisher)(nil)
)

func NewNATSPublisher(url string, opts ...nats.Option) (*NATSPublisher, error) {
	nc, err := connect(url, "cafetrace-ledger", opts)
	if err != nil {
		return nil, err
	}
	return &NATSPublisher{conn: nc}, nil
}

func (p *NATSPublisher) Publish(ctx context.Context, topic string, event any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshaling event: %w", err)
	}
	msg := &nats.Msg{Subject: topic, Data: data, Header: nats.Header{}}
	msg.Header.Set("Content-Type", "application/json")
	if id := MicrolotID(data); id != "" {
		msg.Header.Set(HeaderMicrolotID, id)
	}
	return p.conn.PublishMsg(msg)
}

// Flush blocks until the server has acknowledged everything published so far.
// A context without a deadline gets DefaultFlushTimeout.
func (p *NATSPublisher) Flush(ctx context.Context) error {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, DefaultFlushTimeout)
		defer cancel()
	}
	return p.conn.FlushWithContext(ctx)
}

func (p *NATSPublisher) Close() error {
	p.conn.Close()
	return nil
}

// NATSSubscriber delivers bus messages on channels.
type NATSSubscriber struct {
	conn    *nats.Conn
	dropped atomic.Int64
}

var _ Subscriber = (*NATSSubscriber)(nil)

// NewNATSSubscriber connects to NATS. Extra options (e.g. disconnect and
// reconnect handlers) are applied after the defaults.
func NewNATSSubscriber(url string, opts ...nats.Option) (*NATSSubscriber, error) {
	nc, err := connect(url, "cafetrace-subscriber", opts)
	if err != nil {
		return nil, err
	}
	return &NATSSubscriber{conn: nc}, nil
}

// Subscribe delivers messages whose subject matches topic, which may use
// NATS wildcards. The returned cancel unsubscribes and closes the channel.
func (s *NATSSubscriber) Subscribe(topic string) (<-chan Message, func(), error) {
	ch := make(chan Message, subscriberBuffer)

	// mu orders the callback against close(ch) in cancel.
	var (
		mu     sync.Mutex
		closed bool
	)
	sub, err := s.conn.Subscribe(topic, func(m *nats.Msg) {
		mu.Lock()
		defer mu.Unlock()
		if closed {
			return
		}
		select {
		case ch <- Message{Topic: m.Subject, Data: m.Data}:
		default:
			s.dropped.Add(1)
		}
	})
	if err != nil {
		close(ch)
		return nil, nil, fmt.Errorf("subscribing to %s: %w", topic, err)
	}
	// The subscription must reach the server before we return, or messages
	// published right after on another connection can be missed.
	if err := s.conn.Flush(); err != nil {
		_ = sub.Unsubscribe()
		close(ch)
		return nil, nil, fmt.Errorf("flushing subscription: %w", err)
	}

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			_ = sub.Unsubscribe()
			mu.Lock()
			closed = true
			close(ch)
			mu.Unlock()
		})
	}
	return ch, cancel, nil
}

// Dropped reports how many messages were discarded because a subscriber's
// channel was full.
func (s *NATSSubscriber) Dropped() int64 {
	return s.dropped.Load()
}

func (s *NATSSubscriber) Close() error {
	s.conn.Close()
	return nil
}
