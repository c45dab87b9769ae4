package permissions

import "github.com/nextlevelbuilder/embergate/internal/model"

// Perspective is the acting subject of a permission query.
type Perspective struct {
	UserID     string
	Privileged bool
	IsBot      bool
}

// ServerContext is the pre-fetched server-scoped state for a query.
type ServerContext struct {
	Server *model.Server
	Member *model.Member // nil if perspective is not a member
	NowUnix int64
}

// Query is the full input to Channel, matching §4.3's "query context".
type Query struct {
	Perspective Perspective
	Channel     *model.Channel
	Server      *ServerContext

	// DM/Group-only: the permission value the perspective has toward the
	// other DM recipient, used to decide whether the DM grants send-message.
	OtherRecipientPermission uint64
}

// Channel computes the channel permission value per §4.3's algorithm.
func Channel(q Query) uint64 {
	if q.Perspective.Privileged {
		return GrantAllSafe
	}
	ch := q.Channel
	if ch == nil {
		return 0
	}

	switch ch.Type {
	case model.ChannelSavedNotes:
		if ch.UserID == q.Perspective.UserID {
			return GrantAllSafe
		}
		return 0

	case model.ChannelDirectMessage:
		if !ch.HasRecipient(q.Perspective.UserID) {
			return 0
		}
		if Has(q.OtherRecipientPermission, SendMessage) {
			return DMDefault
		}
		return ViewOnly

	case model.ChannelGroup:
		if ch.OwnerID == q.Perspective.UserID {
			return GrantAllSafe
		}
		if !ch.HasRecipient(q.Perspective.UserID) {
			return 0
		}
		if ch.GroupPermissions != nil {
			return *ch.GroupPermissions
		}
		return DMDefault

	case model.ChannelText, model.ChannelVoice:
		return serverChannel(q)

	default:
		return 0
	}
}

// serverChannel implements §4.3 step 5 for TextChannel/VoiceChannel.
func serverChannel(q Query) uint64 {
	if q.Server == nil || q.Server.Server == nil {
		return 0
	}
	srv := q.Server.Server
	if srv.OwnerID == q.Perspective.UserID {
		return GrantAllSafe
	}

	member := q.Server.Member
	if member == nil {
		return 0
	}

	value := srv.DefaultPermissions

	ranked := srv.RankedRoles(member.Roles)
	for _, role := range ranked {
		value = role.Permissions.Apply(value)
	}

	if q.Channel != nil && q.Channel.DefaultPermission != nil {
		value = q.Channel.DefaultPermission.Apply(value)
	}

	if q.Channel != nil && len(q.Channel.RolePermissions) > 0 {
		for _, role := range ranked {
			if ov, ok := q.Channel.RolePermissions[role.ID]; ok {
				value = ov.Apply(value)
			}
		}
	}

	if member.InTimeout(q.Server.NowUnix) {
		value &= ALLOWInTimeout
	}

	return value
}

// CheckView converts a computed permission value lacking ViewChannel into
// apierr.NotFound per §7/§8's view-hiding rule; callers should call this
// before any other MissingPermission check. Returns nil if ViewChannel is
// granted.
func CheckView(value uint64) error {
	if !Has(value, ViewChannel) {
		return notFound()
	}
	return nil
}

// Require returns a MissingPermission error for the first bit in required
// that value lacks, or nil if all are granted. ViewChannel failures are
// masked as NotFound by the caller via CheckView first.
func Require(value, required uint64) error {
	if Has(value, required) {
		return nil
	}
	missing := required &^ value
	for bit := uint64(1); missing != 0; bit <<= 1 {
		if missing&bit != 0 {
			if n := Name(bit); n != "" {
				return missingPermission(n)
			}
			missing &^= bit
		}
	}
	return missingPermission("Unknown")
}
