package gateway

import (
	"context"
	"log/slog"
	"strconv"

	"github.com/nextlevelbuilder/embergate/internal/eventbus"
	"github.com/nextlevelbuilder/embergate/internal/session"
	"github.com/nextlevelbuilder/embergate/pkg/protocol"
)

// runFanout is the EventFanout loop of §4.4: rebuild the broker consumer
// whenever the subscription set changes, otherwise decode, client-side
// re-filter, rewrite Auth events, and deliver. Grounded on
// original_source/crates/bonfire/src/client/subscriber.rs, generalized from
// its RabbitMQ-stream-specific offset/filter bookkeeping to the
// eventbus.Bus abstraction so it runs unchanged over either backend.
func (c *Client) runFanout(ctx context.Context) {
	defer c.cancel()
	var offset *int64

	for {
		if c.sess.ApplyPending() == session.ChangeReset {
			offset = nil
		}
		topics := c.sess.Snapshot()
		consumer, err := c.bus.Consume(ctx, topics, offset)
		if err != nil {
			slog.Error("gateway.consume_failed", "conn_id", c.ConnID, "error", err)
			return
		}

		reload := c.reload
		deliveries := consumer.Deliveries()

		drained := false
		for !drained {
			select {
			case <-ctx.Done():
				_ = consumer.Close(context.Background())
				return
			case <-reload:
				drained = true
			case d, ok := <-deliveries:
				if !ok {
					drained = true
					break
				}
				c.handleDelivery(ctx, d)
				next := d.Offset + 1
				offset = &next
			}
		}

		_ = consumer.Close(ctx)
	}
}

// handleDelivery re-filters, decodes, and forwards one broker delivery,
// acking it unconditionally (broker ack happens regardless of client-side
// filter outcome, matching the Rust subscriber's ack-before-filter order).
func (c *Client) handleDelivery(ctx context.Context, d eventbus.Delivery) {
	if d.Ack != nil {
		d.Ack()
	}

	if !c.sess.IsSubscribed(d.Topic) {
		return
	}

	event, err := protocol.Decode(d.Payload)
	if err != nil {
		slog.Error("gateway.decode_failed", "conn_id", c.ConnID, "error", err)
		return
	}

	if c.sess.SeenEvent(eventIdentity(d)) {
		return
	}

	if event.Type == protocol.EventAuth {
		switch {
		case event.AuthKind == "DeleteSession" && event.SessionID == c.sess.SessionID:
			event = protocol.EventV1{Type: protocol.EventLogout}
		case event.AuthKind == "DeleteAllSessions" && event.SessionID != c.sess.SessionID:
			event = protocol.EventV1{Type: protocol.EventLogout}
		default:
			return
		}
	}

	if err := c.write(event); err != nil {
		slog.Warn("gateway.write_failed", "conn_id", c.ConnID, "error", err)
		c.cancel()
		return
	}

	if event.Type == protocol.EventLogout {
		slog.Info("gateway.logout_delivered", "conn_id", c.ConnID, "user_id", c.sess.UserID)
		c.cancel()
	}
}

// eventIdentity derives a dedup key for SubscriberSession.SeenEvent from a
// delivery's topic and offset, since EventV1 itself carries no envelope id.
func eventIdentity(d eventbus.Delivery) string {
	if d.Topic == "" {
		return ""
	}
	return d.Topic + ":" + strconv.FormatInt(d.Offset, 10)
}
