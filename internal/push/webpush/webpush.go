// Package webpush implements the W3C Web Push transport of §4.7: VAPID
// signing and AES-GCM payload encryption via
// github.com/SherClockHolmes/webpush-go.
package webpush

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	wp "github.com/SherClockHolmes/webpush-go"

	"github.com/nextlevelbuilder/embergate/internal/push"
)

// Config holds the VAPID keypair named in config.WebPushConfig.
type Config struct {
	VAPIDPublicKey  string
	VAPIDPrivateKey string
	Subject         string // mailto: or https: contact URI
}

// Transport implements push.Transport for web push.
type Transport struct {
	cfg Config
}

// New constructs a Transport.
func New(cfg Config) *Transport {
	return &Transport{cfg: cfg}
}

type payload struct {
	Title string            `json:"title,omitempty"`
	Body  string            `json:"body,omitempty"`
	Badge *int              `json:"badge,omitempty"`
	Data  map[string]string `json:"data,omitempty"`
}

// Send encrypts and posts n to sub's push-service endpoint stored in
// sub.Token (the endpoint URL). On HTTP 401 it returns push.ErrUnregistered.
func (t *Transport) Send(ctx context.Context, sub push.Subscription, n push.Notification) error {
	body, err := json.Marshal(payload{Title: n.Title, Body: n.Body, Badge: n.BadgeCount, Data: n.Data})
	if err != nil {
		return err
	}

	wpSub := &wp.Subscription{
		Endpoint: sub.Token,
		Keys: wp.Keys{
			P256dh: sub.P256DH,
			Auth:   sub.Auth,
		},
	}

	resp, err := wp.SendNotification(body, wpSub, &wp.Options{
		Subscriber:      t.cfg.Subject,
		VAPIDPublicKey:  t.cfg.VAPIDPublicKey,
		VAPIDPrivateKey: t.cfg.VAPIDPrivateKey,
		TTL:             30,
	})
	if err != nil {
		return fmt.Errorf("webpush: send: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		return push.ErrUnregistered
	}
	if resp.StatusCode >= 300 {
		return fmt.Errorf("webpush: unexpected status %d", resp.StatusCode)
	}
	return nil
}
