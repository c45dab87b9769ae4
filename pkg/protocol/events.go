// Package protocol defines the wire-format shared with any client: the
// EventV1 tagged union (§6.3) and the client-to-server message types. The
// permission bit layout (§6.4) lives in internal/permissions and is not
// re-exported here.
package protocol

import "github.com/nextlevelbuilder/embergate/internal/model"

// EventType is the "type" tag of an EventV1 variant.
type EventType string

const (
	EventBulk          EventType = "Bulk"
	EventError         EventType = "Error"
	EventAuthenticated EventType = "Authenticated"
	EventLogout        EventType = "Logout"
	EventReady         EventType = "Ready"
	EventPong          EventType = "Pong"

	EventMessage            EventType = "Message"
	EventMessageUpdate      EventType = "MessageUpdate"
	EventMessageAppend      EventType = "MessageAppend"
	EventMessageDelete      EventType = "MessageDelete"
	EventMessageReact       EventType = "MessageReact"
	EventMessageUnreact     EventType = "MessageUnreact"
	EventMessageRemoveReact EventType = "MessageRemoveReaction"
	EventBulkMessageDelete  EventType = "BulkMessageDelete"

	EventChannelCreate      EventType = "ChannelCreate"
	EventChannelUpdate      EventType = "ChannelUpdate"
	EventChannelDelete      EventType = "ChannelDelete"
	EventChannelGroupJoin   EventType = "ChannelGroupJoin"
	EventChannelGroupLeave  EventType = "ChannelGroupLeave"
	EventChannelStartTyping EventType = "ChannelStartTyping"
	EventChannelStopTyping  EventType = "ChannelStopTyping"
	EventChannelAck         EventType = "ChannelAck"

	EventServerCreate     EventType = "ServerCreate"
	EventServerUpdate     EventType = "ServerUpdate"
	EventServerDelete     EventType = "ServerDelete"
	EventServerMemberJoin EventType = "ServerMemberJoin"
	EventServerMemberLeave EventType = "ServerMemberLeave"
	EventServerMemberUpdate EventType = "ServerMemberUpdate"
	EventServerRoleUpdate EventType = "ServerRoleUpdate"
	EventServerRoleDelete EventType = "ServerRoleDelete"

	EventUserUpdate       EventType = "UserUpdate"
	EventUserRelationship EventType = "UserRelationship"
	EventUserPlatformWipe EventType = "UserPlatformWipe"

	EventWebhookCreate EventType = "WebhookCreate"
	EventWebhookUpdate EventType = "WebhookUpdate"
	EventWebhookDelete EventType = "WebhookDelete"

	EventEmojiCreate EventType = "EmojiCreate"
	EventEmojiDelete EventType = "EmojiDelete"

	EventReportCreate EventType = "ReportCreate"

	EventAuth EventType = "Auth"

	EventVoiceChannelJoin    EventType = "VoiceChannelJoin"
	EventVoiceChannelLeave   EventType = "VoiceChannelLeave"
	EventVoiceChannelMove    EventType = "VoiceChannelMove"
	EventUserVoiceStateUpdate EventType = "UserVoiceStateUpdate"
)

// EventV1 is the flat tagged union delivered to clients. Only the fields
// relevant to Type are populated; this mirrors the teacher's dotted-event
// Event{Name,Payload} shape but widened to a single struct per variant
// family since the wire protocol here fixes the variant set (§6.3), unlike
// the teacher's open-ended channel-bridge events.
type EventV1 struct {
	Type EventType `msgpack:"type" json:"type"`

	Bulk []EventV1 `msgpack:"v,omitempty" json:"v,omitempty"`

	Error string `msgpack:"data,omitempty" json:"data,omitempty"`

	// Ready
	Users    []model.User    `msgpack:"users,omitempty" json:"users,omitempty"`
	Servers  []model.Server  `msgpack:"servers,omitempty" json:"servers,omitempty"`
	Channels []model.Channel `msgpack:"channels,omitempty" json:"channels,omitempty"`
	Members  []model.Member  `msgpack:"members,omitempty" json:"members,omitempty"`

	// Pong
	PongData []byte `msgpack:"pong_data,omitempty" json:"-"`

	// Message / MessageUpdate / MessageAppend / MessageDelete / reactions
	ID             string                `msgpack:"id,omitempty" json:"id,omitempty"`
	ChannelID      string                `msgpack:"channel,omitempty" json:"channel,omitempty"`
	Message        *model.Message        `msgpack:"message,omitempty" json:"message,omitempty"`
	MessageData    *model.PartialMessage `msgpack:"data,omitempty" json:"data,omitempty"`
	MessageAppend  *model.AppendMessage  `msgpack:"append,omitempty" json:"append,omitempty"`
	Clear          []string              `msgpack:"clear,omitempty" json:"clear,omitempty"`
	UserID         string                `msgpack:"user_id,omitempty" json:"user_id,omitempty"`
	EmojiID        string                `msgpack:"emoji_id,omitempty" json:"emoji_id,omitempty"`
	IDs            []string              `msgpack:"ids,omitempty" json:"ids,omitempty"`

	// Server/role/member events
	ServerID string        `msgpack:"server_id,omitempty" json:"server_id,omitempty"`
	Server   *model.Server `msgpack:"server,omitempty" json:"server,omitempty"`
	User     *model.User   `msgpack:"user,omitempty" json:"user,omitempty"`
	Reason   string        `msgpack:"reason,omitempty" json:"reason,omitempty"`
	RoleID   string        `msgpack:"role_id,omitempty" json:"role_id,omitempty"`
	Role     *model.Role   `msgpack:"role,omitempty" json:"role,omitempty"`

	// Auth passthrough (session deletion etc.)
	AuthKind string `msgpack:"auth_kind,omitempty" json:"auth_kind,omitempty"`
	SessionID string `msgpack:"session_id,omitempty" json:"session_id,omitempty"`

	// Voice
	VoiceState *model.VoiceState `msgpack:"state,omitempty" json:"state,omitempty"`
	FromChannel string          `msgpack:"from,omitempty" json:"from,omitempty"`
	ToChannel   string          `msgpack:"to,omitempty" json:"to,omitempty"`
}
