// Package fcm implements the Firebase Cloud Messaging transport of §4.7:
// an OAuth2 service-account bearer token, raw HTTP POST to the FCM v1 send
// endpoint.
package fcm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"

	"github.com/nextlevelbuilder/embergate/internal/push"
)

const scope = "https://www.googleapis.com/auth/firebase.messaging"

// Config holds the service-account credentials named in config.FCMConfig.
// ProjectID is read from the service account JSON's "project_id" field, not
// passed separately.
type Config struct {
	ServiceAccountJSON []byte
	Client             *http.Client
}

// Transport implements push.Transport for FCM.
type Transport struct {
	projectID string
	client    *http.Client
	tokenSrc  oauth2.TokenSource
}

// New constructs a Transport from a service-account JSON key.
func New(ctx context.Context, cfg Config) (*Transport, error) {
	creds, err := google.CredentialsFromJSON(ctx, cfg.ServiceAccountJSON, scope)
	if err != nil {
		return nil, fmt.Errorf("fcm: parse service account: %w", err)
	}
	if creds.ProjectID == "" {
		return nil, fmt.Errorf("fcm: service account json missing project_id")
	}
	client := cfg.Client
	if client == nil {
		client = &http.Client{Timeout: 5 * time.Second}
	}
	return &Transport{projectID: creds.ProjectID, client: client, tokenSrc: creds.TokenSource}, nil
}

type fcmMessage struct {
	Message fcmMessageBody `json:"message"`
}

type fcmMessageBody struct {
	Token        string            `json:"token"`
	Notification *fcmNotification  `json:"notification,omitempty"`
	Data         map[string]string `json:"data,omitempty"`
}

type fcmNotification struct {
	Title string `json:"title,omitempty"`
	Body  string `json:"body,omitempty"`
}

// Send posts n to sub.Token. BadgeUpdate notifications are rejected by the
// Dispatcher before reaching here (§4.7), so n always carries a
// title/body. On an auth failure (401/403) it returns push.ErrUnregistered.
func (t *Transport) Send(ctx context.Context, sub push.Subscription, n push.Notification) error {
	token, err := t.tokenSrc.Token()
	if err != nil {
		return fmt.Errorf("fcm: access token: %w", err)
	}

	msg := fcmMessage{Message: fcmMessageBody{
		Token: sub.Token,
		Data:  n.Data,
	}}
	if n.Title != "" || n.Body != "" {
		msg.Message.Notification = &fcmNotification{Title: n.Title, Body: n.Body}
	}
	body, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	url := fmt.Sprintf("https://fcm.googleapis.com/v1/projects/%s/messages:send", t.projectID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("authorization", "Bearer "+token.AccessToken)
	req.Header.Set("content-type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return fmt.Errorf("fcm: request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return push.ErrUnregistered
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("fcm: unexpected status %d", resp.StatusCode)
	}
	return nil
}
