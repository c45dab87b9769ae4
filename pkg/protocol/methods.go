package protocol

// Client-to-server message types on the gateway websocket. The core defines
// only the handful the EventFanout/SubscriberSession machinery must react
// to directly (§4.4); the full REST/RPC method surface is an external
// collaborator's concern per §1's non-goals.
const (
	ClientAuthenticate = "Authenticate"
	ClientPing         = "Ping"
	ClientBeginTyping  = "BeginTyping"
	ClientEndTyping    = "EndTyping"
)
