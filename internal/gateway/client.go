package gateway

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/nextlevelbuilder/embergate/internal/eventbus"
	"github.com/nextlevelbuilder/embergate/internal/session"
	"github.com/nextlevelbuilder/embergate/internal/store"
	"github.com/nextlevelbuilder/embergate/pkg/protocol"
)

// Client is one live WebSocket connection: the socket itself, its
// SubscriberSession, and the EventFanout loop feeding it. Writes to the
// socket are serialized behind writeMu, since both the fanout loop and the
// inbound-message handler (Authenticated/Pong replies) write concurrently —
// the resource-lock discipline §5 requires of any shared connection.
type Client struct {
	ConnID string

	conn  *websocket.Conn
	bus   eventbus.Bus
	store *store.Stores
	sess  *session.Session

	writeMu sync.Mutex

	reload   chan struct{}
	done     chan struct{}
	once     sync.Once
	cancelFn context.CancelFunc
}

func newClient(conn *websocket.Conn, bus eventbus.Bus, stores *store.Stores) *Client {
	return &Client{
		ConnID: newConnID(),
		conn:   conn,
		bus:    bus,
		store:  stores,
		reload: make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
}

func newConnID() string {
	var b [16]byte
	_, _ = rand.Read(b[:])
	return hex.EncodeToString(b[:])
}

// Run drives the connection until it is cancelled or the socket closes. It
// first blocks on the Authenticate handshake (the EventFanout loop needs a
// SubscriberSession before it can subscribe to anything), then runs the
// inbound-message reader and the EventFanout loop concurrently; either
// exiting cancels the other via cancel().
func (c *Client) Run(ctx context.Context) {
	ctx, cancelFn := context.WithCancel(ctx)
	defer cancelFn()
	c.cancelFn = cancelFn

	if !c.awaitAuthenticate(ctx) {
		return
	}

	go c.runFanout(ctx)
	c.readLoop(ctx)
}

// awaitAuthenticate blocks until the client sends Authenticate (or the
// connection dies first), discarding any other message type in the
// meantime — mirroring the teacher's handshake-before-subscribe gateway
// pattern.
func (c *Client) awaitAuthenticate(ctx context.Context) bool {
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			return false
		}
		var msg inboundMessage
		if err := decodeInbound(data, &msg); err != nil {
			continue
		}
		if msg.Type != protocol.ClientAuthenticate {
			continue
		}
		if err := c.handleInbound(ctx, msg); err != nil {
			slog.Warn("gateway.authenticate_failed", "conn_id", c.ConnID, "error", err)
			return false
		}
		return c.sess != nil
	}
}

// cancelFn is set by Run so cancel() (used by the fanout loop on write
// failure or logout) can tear down the whole connection, not just itself.
func (c *Client) cancel() {
	c.once.Do(func() {
		close(c.done)
	})
	if c.cancelFn != nil {
		c.cancelFn()
	}
}

func (c *Client) readLoop(ctx context.Context) {
	defer c.cancel()
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		var msg inboundMessage
		if err := decodeInbound(data, &msg); err != nil {
			continue
		}
		if err := c.handleInbound(ctx, msg); err != nil {
			slog.Warn("gateway.inbound_handler_error", "conn_id", c.ConnID, "type", msg.Type, "error", err)
		}
		select {
		case <-ctx.Done():
			return
		default:
		}
	}
}

// inboundMessage is the minimal client-to-server envelope this core reacts
// to directly (§1 scopes the full RPC surface to an external collaborator).
type inboundMessage struct {
	Type      string `msgpack:"type"`
	UserID    string `msgpack:"user_id,omitempty"`
	SessionID string `msgpack:"session_id,omitempty"`
	ChannelID string `msgpack:"channel,omitempty"`
}

func (c *Client) handleInbound(ctx context.Context, msg inboundMessage) error {
	switch msg.Type {
	case protocol.ClientAuthenticate:
		c.sess = session.New(msg.UserID, msg.SessionID, false, func(serverID string) {
			c.sess.Unsubscribe(eventbus.ServerTopic(serverID))
			c.requestReload()
		})
		return c.write(protocol.EventV1{Type: protocol.EventAuthenticated})
	case protocol.ClientPing:
		return c.write(protocol.EventV1{Type: protocol.EventPong})
	case protocol.ClientBeginTyping:
		if c.sess == nil {
			return nil
		}
		return c.publishChannelEvent(ctx, msg.ChannelID, protocol.EventV1{
			Type:      protocol.EventChannelStartTyping,
			ChannelID: msg.ChannelID,
			UserID:    c.sess.UserID,
		})
	case protocol.ClientEndTyping:
		if c.sess == nil {
			return nil
		}
		return c.publishChannelEvent(ctx, msg.ChannelID, protocol.EventV1{
			Type:      protocol.EventChannelStopTyping,
			ChannelID: msg.ChannelID,
			UserID:    c.sess.UserID,
		})
	}
	return nil
}

func (c *Client) publishChannelEvent(ctx context.Context, channelID string, event protocol.EventV1) error {
	data, err := protocol.Encode(event)
	if err != nil {
		return err
	}
	return c.bus.Publish(ctx, eventbus.ChannelTopic(channelID), data)
}

func decodeInbound(data []byte, msg *inboundMessage) error {
	return msgpack.Unmarshal(data, msg)
}

// requestReload signals the fanout loop to rebuild its consumer against the
// now-changed subscription set, without blocking if a reload is already
// pending.
func (c *Client) requestReload() {
	select {
	case c.reload <- struct{}{}:
	default:
	}
}

func (c *Client) write(event protocol.EventV1) error {
	payload, err := protocol.Encode(event)
	if err != nil {
		return err
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	return c.conn.WriteMessage(websocket.BinaryMessage, payload)
}
