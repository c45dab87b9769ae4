package model

// ServerFlags mark discoverable/nsfw/analytics attributes of a server.
type ServerFlags uint32

const (
	ServerFlagDiscoverable ServerFlags = 1 << iota
	ServerFlagAnalytics
	ServerFlagNSFW
)

// Role is a named permission override with a rank used to resolve precedence
// (lower rank applies last, so it wins — see PermissionEngine §4.3).
type Role struct {
	ID          string   `json:"_id" msgpack:"_id"`
	Name        string   `json:"name" msgpack:"name"`
	Permissions Override `json:"permissions" msgpack:"permissions"`
	Colour      string   `json:"colour,omitempty" msgpack:"colour,omitempty"`
	Hoist       bool     `json:"hoist,omitempty" msgpack:"hoist,omitempty"`
	Rank        int      `json:"rank" msgpack:"rank"`
}

// Server is a guild: owner, ordered channels, optional categories, roles and
// a default permission bitfield.
type Server struct {
	ID                 string              `json:"_id" msgpack:"_id"`
	OwnerID             string              `json:"owner" msgpack:"owner"`
	Name                string              `json:"name" msgpack:"name"`
	Description         string              `json:"description,omitempty" msgpack:"description,omitempty"`
	Channels            []string            `json:"channels" msgpack:"channels"`
	Categories          []Category          `json:"categories,omitempty" msgpack:"categories,omitempty"`
	SystemMessages      SystemMessageChannels `json:"system_messages,omitempty" msgpack:"system_messages,omitempty"`
	Roles               map[string]Role     `json:"roles,omitempty" msgpack:"roles,omitempty"`
	DefaultPermissions  uint64              `json:"default_permissions" msgpack:"default_permissions"`
	Flags               ServerFlags         `json:"flags,omitempty" msgpack:"flags,omitempty"`
}

// RankedRoles returns the member's held roles sorted descending by rank
// (i.e. lowest-rank-applies-last order for a top-to-bottom apply loop), with
// ties broken by role id descending lexicographically per the Open Question
// resolution in §9.
func (s *Server) RankedRoles(roleIDs []string) []Role {
	roles := make([]Role, 0, len(roleIDs))
	for _, id := range roleIDs {
		if r, ok := s.Roles[id]; ok {
			roles = append(roles, r)
		}
	}
	sortRolesDescending(roles)
	return roles
}

func sortRolesDescending(roles []Role) {
	// Simple insertion sort: N is tiny (a member's role count), and this
	// keeps the tie-break rule (rank desc, then id desc) inline and obvious.
	for i := 1; i < len(roles); i++ {
		j := i
		for j > 0 && lessRank(roles[j-1], roles[j]) {
			roles[j-1], roles[j] = roles[j], roles[j-1]
			j--
		}
	}
}

// lessRank reports whether a must be applied after b in the top-to-bottom
// apply order, i.e. a takes precedence over b: a has the lower rank, or on
// equal rank the lexicographically smaller id.
func lessRank(a, b Role) bool {
	if a.Rank != b.Rank {
		return a.Rank < b.Rank
	}
	return a.ID < b.ID
}

// Member is the composite (server, user) entity.
type Member struct {
	ServerID    string     `json:"-" msgpack:"-"`
	UserID      string     `json:"-" msgpack:"-"`
	JoinedAt    int64      `json:"joined_at" msgpack:"joined_at"`
	Nickname    string     `json:"nickname,omitempty" msgpack:"nickname,omitempty"`
	AvatarHash  string     `json:"avatar,omitempty" msgpack:"avatar,omitempty"`
	Roles       []string   `json:"roles,omitempty" msgpack:"roles,omitempty"`
	TimeoutUnix int64      `json:"timeout,omitempty" msgpack:"timeout,omitempty"`
}

// InTimeout reports whether the member is currently timed out, given now.
func (m *Member) InTimeout(nowUnix int64) bool {
	return m.TimeoutUnix > 0 && m.TimeoutUnix > nowUnix
}
