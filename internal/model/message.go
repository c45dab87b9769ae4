package model

// Attachment is a reference to an uploaded file moved from "unattached" to
// this message/channel by the owning mutator.
type Attachment struct {
	ID        string `json:"_id" msgpack:"_id"`
	Filename  string `json:"filename" msgpack:"filename"`
	Size      int64  `json:"size" msgpack:"size"`
	ContentType string `json:"content_type" msgpack:"content_type"`
}

// Embed is an opaque, schemaless rich-content block.
type Embed struct {
	Type string                 `json:"type" msgpack:"type"`
	Data map[string]interface{} `json:"data,omitempty" msgpack:"data,omitempty"`
}

// ReplyRef is one entry of a message's reply list.
type ReplyRef struct {
	ID      string `json:"id" msgpack:"id"`
	Mention bool   `json:"mention" msgpack:"mention"`
}

// Masquerade overrides the displayed author of a message without changing
// its true authorship.
type Masquerade struct {
	Name       string `json:"name,omitempty" msgpack:"name,omitempty"`
	AvatarURL  string `json:"avatar,omitempty" msgpack:"avatar,omitempty"`
	ColourCSS  string `json:"colour,omitempty" msgpack:"colour,omitempty"`
}

// Interactions restricts which reactions may be added to a message.
type Interactions struct {
	Reactions        []string `json:"reactions,omitempty" msgpack:"reactions,omitempty"`
	RestrictReactions bool    `json:"restrict_reactions,omitempty" msgpack:"restrict_reactions,omitempty"`
}

// SystemMessage tags a message authored by the platform rather than a user.
type SystemMessage struct {
	Kind       string `json:"type" msgpack:"type"`
	ByUserID   string `json:"by,omitempty" msgpack:"by,omitempty"`
	FinishedAt int64  `json:"finished_at,omitempty" msgpack:"finished_at,omitempty"`
}

// Message is the chat-history entity. ID is a time-ordered ULID.
type Message struct {
	ID           string              `json:"_id" msgpack:"_id"`
	ChannelID    string              `json:"channel" msgpack:"channel"`
	AuthorID     string              `json:"author" msgpack:"author"`
	Content      string              `json:"content,omitempty" msgpack:"content,omitempty"`
	Attachments  []Attachment        `json:"attachments,omitempty" msgpack:"attachments,omitempty"`
	Embeds       []Embed             `json:"embeds,omitempty" msgpack:"embeds,omitempty"`
	Replies      []ReplyRef          `json:"replies,omitempty" msgpack:"replies,omitempty"`
	Mentions     []string            `json:"mentions,omitempty" msgpack:"mentions,omitempty"`
	RoleMentions []string            `json:"role_mentions,omitempty" msgpack:"role_mentions,omitempty"`
	Reactions    map[string][]string `json:"reactions,omitempty" msgpack:"reactions,omitempty"`
	Pinned       bool                `json:"pinned,omitempty" msgpack:"pinned,omitempty"`
	Masquerade   *Masquerade         `json:"masquerade,omitempty" msgpack:"masquerade,omitempty"`
	Interactions *Interactions       `json:"interactions,omitempty" msgpack:"interactions,omitempty"`
	System       *SystemMessage      `json:"system,omitempty" msgpack:"system,omitempty"`
	EditedAtUnix int64               `json:"edited,omitempty" msgpack:"edited,omitempty"`
	Nonce        string              `json:"-" msgpack:"-"`
}

// AddReaction records user's reaction with emoji, honouring the restrict-
// reactions invariant from §3 (callers must check Interactions first).
func (m *Message) AddReaction(emoji, userID string) {
	if m.Reactions == nil {
		m.Reactions = make(map[string][]string)
	}
	for _, u := range m.Reactions[emoji] {
		if u == userID {
			return
		}
	}
	m.Reactions[emoji] = append(m.Reactions[emoji], userID)
}

// RemoveReaction removes one user's reaction.
func (m *Message) RemoveReaction(emoji, userID string) {
	users := m.Reactions[emoji]
	for i, u := range users {
		if u == userID {
			m.Reactions[emoji] = append(users[:i], users[i+1:]...)
			return
		}
	}
}

// ReactionAllowed reports whether emoji may be reacted given the message's
// optional restrict-reactions Interactions.
func (m *Message) ReactionAllowed(emoji string) bool {
	if m.Interactions == nil || !m.Interactions.RestrictReactions {
		return true
	}
	for _, e := range m.Interactions.Reactions {
		if e == emoji {
			return true
		}
	}
	return false
}

// PartialMessage carries the updatable fields for UpdateMessage. Pointer
// fields distinguish "not set" from "set to zero value".
type PartialMessage struct {
	Content *string  `json:"content,omitempty" msgpack:"content,omitempty"`
	Embeds  *[]Embed `json:"embeds,omitempty" msgpack:"embeds,omitempty"`
	Pinned  *bool    `json:"pinned,omitempty" msgpack:"pinned,omitempty"`
}

// AppendMessage carries the fields legal on the append-only path. Per the
// Open Question resolution in §9, only Embeds may ever be appended.
type AppendMessage struct {
	Embeds []Embed `json:"embeds,omitempty" msgpack:"embeds,omitempty"`
}
