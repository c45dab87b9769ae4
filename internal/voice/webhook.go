package voice

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/golang-jwt/jwt/v5"

	"github.com/nextlevelbuilder/embergate/internal/model"
)

// errBadSignature is returned by Verify for any webhook whose Authorization
// header does not check out, per §4.8 Failure: "webhooks with a bad
// signature return auth failure" (distinct from an unknown channel/user,
// which must return success so the media server never retries).
var errBadSignature = errors.New("voice: bad webhook signature")

// WebhookVerifier checks the media server's webhook auth header: an HS256
// JWT signed with APISecret, issuer-claimed as APIKey. This mirrors the
// LiveKit webhook scheme (an API-key/secret-signed JWT over the request)
// without pulling in a LiveKit SDK, reusing the jwt library already wired
// for APN.
type WebhookVerifier struct {
	APIKey    string
	APISecret string
}

func (v *WebhookVerifier) Verify(authHeader string) error {
	if authHeader == "" || v.APISecret == "" {
		return errBadSignature
	}
	token, err := jwt.Parse(authHeader, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errBadSignature
		}
		return []byte(v.APISecret), nil
	}, jwt.WithValidMethods([]string{"HS256"}))
	if err != nil || !token.Valid {
		return errBadSignature
	}
	iss, err := token.Claims.GetIssuer()
	if err != nil || iss != v.APIKey {
		return errBadSignature
	}
	return nil
}

// wireEvent is the JSON shape of one media-server webhook payload, per
// §4.8 Inputs: "{event, room.name=channel-id, participant.identity=user-id,
// track?, created_at}".
type wireEvent struct {
	Event   string `json:"event"`
	Room    struct {
		Name            string `json:"name"`
		NumParticipants int    `json:"num_participants"`
	} `json:"room"`
	Participant struct {
		Identity string `json:"identity"`
	} `json:"participant"`
	Track struct {
		Source int `json:"source"`
	} `json:"track"`
	CreatedAt int64 `json:"created_at"`
}

// Handler returns the HTTP handler for the media server's webhook, auth'd
// by verifier and dispatched to m.Handle. Unknown channel/user ids are
// handled inside Machine (logged, 200 returned). A bad signature gets 401
// and an unreadable or malformed JSON body gets 400; every other request
// gets 200, even when Machine.Handle reports an error.
func Handler(m *Machine, verifier *WebhookVerifier) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := verifier.Verify(r.Header.Get("Authorization")); err != nil {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}

		body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
		if err != nil {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}

		var we wireEvent
		if err := json.Unmarshal(body, &we); err != nil {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}

		ev := WebhookEvent{
			Kind:      we.Event,
			ChannelID: we.Room.Name,
			UserID:    we.Participant.Identity,
			CreatedAt: we.CreatedAt,
		}
		if we.Track.Source != 0 {
			ev.Track = trackSourceFromWire(we.Track.Source)
		}

		if err := m.Handle(r.Context(), ev); err != nil {
			slog.Error("voice.webhook_handle_failed", "event", we.Event, "error", err)
		}
		w.WriteHeader(http.StatusOK)
	}
}

// trackSourceFromWire maps the media server's numeric track source
// (UNKNOWN=0, CAMERA=1, MICROPHONE=2, SCREEN_SHARE=3,
// SCREEN_SHARE_AUDIO=4) onto model.TrackSource; the two enumerations share
// the same ordering by construction.
func trackSourceFromWire(n int) model.TrackSource {
	return model.TrackSource(n)
}
