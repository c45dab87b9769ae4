// Package eventbus defines the durable, filtered, multi-topic event stream
// contract described in §4.2/§6.1, plus two implementations: a RabbitMQ
// stream-queue backed broker (package amqp) and an in-memory reference used
// by tests and the reference storage backend (package memory).
package eventbus

import "context"

// Topic taxonomy helpers, per §4.2.
const (
	TopicGlobal = "global"
)

// UserTopic is the topic carrying a user's own public state changes.
func UserTopic(userID string) string { return userID }

// PrivateTopic is delivered only to sessions of that user (logout, acks).
func PrivateTopic(userID string) string { return userID + "!" }

// ChannelTopic carries events occurring inside a channel.
func ChannelTopic(channelID string) string { return channelID }

// ServerTopic carries server-member fan-out events.
func ServerTopic(serverID string) string { return serverID + "u" }

// Delivery is one payload handed to a consumer, tagged with its topic and
// stream offset for resumable consumption.
type Delivery struct {
	Topic   string
	Offset  int64
	Payload []byte
	// Ack must be called once the payload has been handled; the broker
	// backend uses it to advance the durable cursor, the memory backend
	// ignores it.
	Ack func()
}

// Consumer is a live, server-side-filtered subscription. Deliveries arrive
// on Deliveries(); Close tears the consumer down, acknowledging any
// remaining pre-buffered deliveries first per §4.4's cancellation contract.
type Consumer interface {
	Deliveries() <-chan Delivery
	Close(ctx context.Context) error
}

// Bus is the broker abstraction every domain mutator and EventFanout loop
// depends on.
type Bus interface {
	// Publish appends payload to the stream tagged with topic. It returns
	// once the broker has durably accepted the publish.
	Publish(ctx context.Context, topic string, payload []byte) error

	// Consume creates a new broker-side filtered subscription for topics,
	// optionally resuming at fromOffset (the record with that offset is the
	// first one delivered). The caller owns tearing the
	// consumer down via Consumer.Close when the topic set changes.
	Consume(ctx context.Context, topics []string, fromOffset *int64) (Consumer, error)
}
