package bus

import (
	"encoding/json"
	"fmt"
	"log"
	"time"

	nc "github.com/nats-io/nats.go"

	"github.com/agentctl/engine/internal/events"
)

// PublishTimeout bounds how long a fire-and-forget cross-process publish
// may take before it is abandoned (fire-and-forget).
const PublishTimeout = 2 * time.Second

// Client is the cross-process half of the Event Bridge: one NATS
// connection, topics named after the event type they carry.
type Client struct {
	conn *nc.Conn
}

// Connect dials url, reconnecting indefinitely on drop — the same
// resilience posture the rest of this codebase's NATS usage takes.
func Connect(url string) (*Client, error) {
	conn, err := nc.Connect(url,
		nc.Name("agentctl-engine"),
		nc.ReconnectWait(2*time.Second),
		nc.MaxReconnects(-1),
		nc.DisconnectErrHandler(func(_ *nc.Conn, err error) {
			if err != nil {
				log.Printf("[BUS] disconnected: %v", err)
			}
		}),
		nc.ReconnectHandler(func(c *nc.Conn) {
			log.Printf("[BUS] reconnected to %s", c.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connecting to bus at %s: %w", url, err)
	}
	return &Client{conn: conn}, nil
}

// Close closes the underlying connection.
func (c *Client) Close() {
	if c.conn != nil {
		c.conn.Close()
	}
}

// Publish sends evt to a topic named after its type, fire-and-forget.
// The call itself is synchronous and bounded by PublishTimeout via a
// flush, but a failure here is always locally recovered by the caller
// — it never fails the task operation that triggered it.
func (c *Client) Publish(evt events.Event) error {
	data, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("marshaling event %s: %w", evt.Type, err)
	}
	if err := c.conn.Publish(string(evt.Type), data); err != nil {
		return fmt.Errorf("publishing event %s: %w", evt.Type, err)
	}
	return c.conn.FlushTimeout(PublishTimeout)
}

// Subscribe registers handler on the topic for event type t. A message
// whose body does not decode as an Event is logged and dropped.
func (c *Client) Subscribe(t events.Type, handler func(events.Event)) (*nc.Subscription, error) {
	return c.conn.Subscribe(string(t), func(msg *nc.Msg) {
		var evt events.Event
		if err := json.Unmarshal(msg.Data, &evt); err != nil {
			log.Printf("[BUS] dropping malformed message on %s: %v", msg.Subject, err)
			return
		}
		handler(evt)
	})
}
