package model

// VoiceState is the per (channel, user) record of what the user is
// publishing/receiving in a voice channel.
type VoiceState struct {
	ChannelID     string `json:"channel_id" msgpack:"channel_id"`
	UserID        string `json:"user_id" msgpack:"user_id"`
	JoinedAtUnix  int64  `json:"joined_at" msgpack:"joined_at"`
	CanReceive    bool   `json:"can_receive" msgpack:"can_receive"`
	CanPublish    bool   `json:"can_publish" msgpack:"can_publish"`
	Screensharing bool   `json:"screensharing" msgpack:"screensharing"`
	Camera        bool   `json:"camera" msgpack:"camera"`
}

// TrackSource identifies which published track a webhook event refers to,
// matching the external media server's numbering.
type TrackSource int

const (
	TrackUnknown TrackSource = iota
	TrackCamera
	TrackMicrophone
	TrackScreenShare
	TrackScreenShareAudio
)

// ApplyTrack mutates exactly one flag on the voice state per §4.8.
func (v *VoiceState) ApplyTrack(source TrackSource, published bool) {
	switch source {
	case TrackCamera:
		v.Camera = published
	case TrackMicrophone:
		v.CanPublish = published
	case TrackScreenShare, TrackScreenShareAudio:
		v.Screensharing = published
	}
}
