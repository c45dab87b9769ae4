// Package apn implements the Apple Push Notification transport of §4.7:
// an ES256 JWT provider-auth token over HTTP/2 to api.push.apple.com.
package apn

import (
	"bytes"
	"context"
	"crypto/ecdsa"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/nextlevelbuilder/embergate/internal/push"
)

const (
	productionHost = "https://api.push.apple.com"
	sandboxHost    = "https://api.sandbox.push.apple.com"
	tokenLifetime  = 55 * time.Minute // Apple invalidates provider tokens after 60m
)

// Config holds the provider credentials named in §4.7/config.APNConfig.
type Config struct {
	KeyID      string
	TeamID     string
	Topic      string
	PrivateKey *ecdsa.PrivateKey
	Production bool
	Client     *http.Client // defaults to an http.Client with a 5s timeout
}

// Transport implements push.Transport for APN.
type Transport struct {
	cfg Config

	mu        sync.Mutex
	token     string
	expiresAt time.Time
}

// New constructs a Transport. cfg.Client may be nil to use a default
// client (HTTP/2 is negotiated automatically over TLS by net/http).
func New(cfg Config) *Transport {
	if cfg.Client == nil {
		cfg.Client = &http.Client{Timeout: 5 * time.Second}
	}
	return &Transport{cfg: cfg}
}

type apnPayload struct {
	APS aps `json:"aps"`
}

type aps struct {
	Alert *apsAlert `json:"alert,omitempty"`
	Badge *int      `json:"badge,omitempty"`
}

type apsAlert struct {
	Title string `json:"title,omitempty"`
	Body  string `json:"body,omitempty"`
}

// Send posts n to sub.Token. On HTTP 410 (Unregistered) it returns
// push.ErrUnregistered so the Dispatcher prunes the subscription.
func (t *Transport) Send(ctx context.Context, sub push.Subscription, n push.Notification) error {
	token, err := t.providerToken()
	if err != nil {
		return fmt.Errorf("apn: provider token: %w", err)
	}

	payload := apnPayload{}
	if n.BadgeCount != nil {
		payload.APS.Badge = n.BadgeCount
	}
	if n.Title != "" || n.Body != "" {
		payload.APS.Alert = &apsAlert{Title: n.Title, Body: n.Body}
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	host := productionHost
	if !t.cfg.Production {
		host = sandboxHost
	}
	url := fmt.Sprintf("%s/3/device/%s", host, sub.Token)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("authorization", "bearer "+token)
	req.Header.Set("apns-topic", t.cfg.Topic)
	req.Header.Set("apns-push-type", "alert")
	req.Header.Set("content-type", "application/json")

	resp, err := t.cfg.Client.Do(req)
	if err != nil {
		return fmt.Errorf("apn: request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusGone {
		return push.ErrUnregistered
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("apn: unexpected status %d", resp.StatusCode)
	}
	return nil
}

// providerToken returns a cached ES256 JWT, minting a new one once the
// cached token is within its refresh window.
func (t *Transport) providerToken() (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.token != "" && time.Now().Before(t.expiresAt) {
		return t.token, nil
	}

	now := time.Now()
	claims := jwt.MapClaims{
		"iss": t.cfg.TeamID,
		"iat": now.Unix(),
	}
	tok := jwt.NewWithClaims(jwt.SigningMethodES256, claims)
	tok.Header["kid"] = t.cfg.KeyID

	signed, err := tok.SignedString(t.cfg.PrivateKey)
	if err != nil {
		return "", err
	}

	t.token = signed
	t.expiresAt = now.Add(tokenLifetime)
	return t.token, nil
}
