package model

// RelationshipStatus is the status of one user's edge toward another.
type RelationshipStatus string

const (
	RelationshipNone         RelationshipStatus = "None"
	RelationshipUser         RelationshipStatus = "User"
	RelationshipFriend       RelationshipStatus = "Friend"
	RelationshipOutgoing     RelationshipStatus = "Outgoing"
	RelationshipIncoming     RelationshipStatus = "Incoming"
	RelationshipBlocked      RelationshipStatus = "Blocked"
	RelationshipBlockedOther RelationshipStatus = "BlockedOther"
)

// inverse returns the status the counterpart must hold for the edge to be
// symmetric, per §3's User invariant.
func (s RelationshipStatus) inverse() RelationshipStatus {
	switch s {
	case RelationshipFriend:
		return RelationshipFriend
	case RelationshipOutgoing:
		return RelationshipIncoming
	case RelationshipIncoming:
		return RelationshipOutgoing
	case RelationshipBlocked:
		return RelationshipBlockedOther
	case RelationshipBlockedOther:
		return RelationshipBlocked
	default:
		return RelationshipNone
	}
}

// UserFlags are account-level markers (suspended/deleted/banned/spam).
type UserFlags uint32

const (
	UserFlagSuspended UserFlags = 1 << iota
	UserFlagDeleted
	UserFlagBanned
	UserFlagSpam
)

// UserBadge is a privilege/ownership marker, e.g. platform staff.
type UserBadge uint32

// Bot marks a user as a bot, identifying its owner.
type Bot struct {
	OwnerID string `json:"owner_id" msgpack:"owner_id"`
	Private bool   `json:"private,omitempty" msgpack:"private,omitempty"`
}

// Profile is the optional free-text profile attached to a user.
type Profile struct {
	Content        string `json:"content,omitempty" msgpack:"content,omitempty"`
	BackgroundHash string `json:"background,omitempty" msgpack:"background,omitempty"`
}

// User is the root identity entity. IDs are sortable ULIDs (see NewID).
type User struct {
	ID            string                        `json:"_id" msgpack:"_id"`
	Username      string                        `json:"username" msgpack:"username"`
	Discriminator string                        `json:"discriminator" msgpack:"discriminator"`
	DisplayName   string                        `json:"display_name,omitempty" msgpack:"display_name,omitempty"`
	AvatarHash    string                        `json:"avatar,omitempty" msgpack:"avatar,omitempty"`
	Profile       *Profile                      `json:"profile,omitempty" msgpack:"profile,omitempty"`
	Bot           *Bot                          `json:"bot,omitempty" msgpack:"bot,omitempty"`
	Flags         UserFlags                     `json:"flags,omitempty" msgpack:"flags,omitempty"`
	Privileged    bool                          `json:"privileged,omitempty" msgpack:"privileged,omitempty"`
	Relations     map[string]RelationshipStatus `json:"relations,omitempty" msgpack:"relations,omitempty"`
}

// IsBot reports whether this user is a bot account.
func (u *User) IsBot() bool { return u.Bot != nil }

// RelationshipWith returns the status this user holds toward other, or None.
func (u *User) RelationshipWith(other string) RelationshipStatus {
	if u.Relations == nil {
		return RelationshipNone
	}
	return u.Relations[other]
}

// SetRelationship sets the edge from u to other and returns the inverse
// status that must be written onto other's own record to keep the
// relationship symmetric per §3's invariant; callers are responsible for
// applying it via the storage collaborator.
func (u *User) SetRelationship(other string, status RelationshipStatus) RelationshipStatus {
	if u.Relations == nil {
		u.Relations = make(map[string]RelationshipStatus)
	}
	if status == RelationshipNone {
		delete(u.Relations, other)
	} else {
		u.Relations[other] = status
	}
	return status.inverse()
}
