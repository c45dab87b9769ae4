// Package permissions implements the PermissionEngine: a pure function from
// (subject, context) to a 64-bit permission bitfield, per §4.3/§6.4, plus
// the bulk variant required to share fetches across many members (§4.3/§5).
package permissions

// Fixed 64-bit flag layout, per §6.4.
const (
	ManageChannel       uint64 = 1 << 0
	ManageServer        uint64 = 1 << 1
	ManagePermissions   uint64 = 1 << 2
	ManageRole          uint64 = 1 << 3
	ManageCustomisation uint64 = 1 << 4

	KickMembers     uint64 = 1 << 6
	BanMembers      uint64 = 1 << 7
	TimeoutMembers  uint64 = 1 << 8
	AssignRoles     uint64 = 1 << 9
	ChangeNickname  uint64 = 1 << 10
	ManageNicknames uint64 = 1 << 11
	ChangeAvatar    uint64 = 1 << 12
	RemoveAvatars   uint64 = 1 << 13

	ViewChannel        uint64 = 1 << 20
	ReadMessageHistory uint64 = 1 << 21
	SendMessage        uint64 = 1 << 22
	ManageMessages     uint64 = 1 << 23
	ManageWebhooks     uint64 = 1 << 24
	InviteOthers       uint64 = 1 << 25
	SendEmbeds         uint64 = 1 << 26
	UploadFiles        uint64 = 1 << 27
	Masquerade         uint64 = 1 << 28
	React              uint64 = 1 << 29

	Connect      uint64 = 1 << 30
	Speak        uint64 = 1 << 31
	Video        uint64 = 1 << 32
	MuteMembers  uint64 = 1 << 33
	DeafenMembers uint64 = 1 << 34
	MoveMembers  uint64 = 1 << 35

	MentionEveryone uint64 = 1 << 37
	MentionRoles    uint64 = 1 << 38
)

// GrantAllSafe is every bit except the reserved upper 12.
const GrantAllSafe uint64 = (uint64(1) << 52) - 1

// ALLOWInTimeout is the fixed mask applied when a member is timed out.
const ALLOWInTimeout = ViewChannel | ReadMessageHistory

// DMDefault is the permission value granted for an open direct message.
const DMDefault = ViewChannel | ReadMessageHistory | SendMessage | InviteOthers | SendEmbeds | UploadFiles | Connect | Speak

// ViewOnly grants only channel visibility and history.
const ViewOnly = ViewChannel | ReadMessageHistory

// names maps a bit to its wire name, used by MissingPermission error
// construction.
var names = map[uint64]string{
	ManageChannel: "ManageChannel", ManageServer: "ManageServer", ManagePermissions: "ManagePermissions",
	ManageRole: "ManageRole", ManageCustomisation: "ManageCustomisation",
	KickMembers: "KickMembers", BanMembers: "BanMembers", TimeoutMembers: "TimeoutMembers",
	AssignRoles: "AssignRoles", ChangeNickname: "ChangeNickname", ManageNicknames: "ManageNicknames",
	ChangeAvatar: "ChangeAvatar", RemoveAvatars: "RemoveAvatars",
	ViewChannel: "ViewChannel", ReadMessageHistory: "ReadMessageHistory", SendMessage: "SendMessage",
	ManageMessages: "ManageMessages", ManageWebhooks: "ManageWebhooks", InviteOthers: "InviteOthers",
	SendEmbeds: "SendEmbeds", UploadFiles: "UploadFiles", Masquerade: "Masquerade", React: "React",
	Connect: "Connect", Speak: "Speak", Video: "Video", MuteMembers: "MuteMembers",
	DeafenMembers: "DeafenMembers", MoveMembers: "MoveMembers",
	MentionEveryone: "MentionEveryone", MentionRoles: "MentionRoles",
}

// Name returns the wire name of a single permission bit, or "" if unknown.
func Name(bit uint64) string { return names[bit] }

// Has reports whether value grants every bit in required.
func Has(value, required uint64) bool { return value&required == required }
