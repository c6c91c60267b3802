package ws

// Frame types.
const (
	FrameInvoke   = "invoke"
	FrameResult   = "result"
	FrameError    = "error"
	FramePush     = "push"
	FrameRequest  = "request"
	FrameResponse = "response"
	FrameNavigate = "navigate"
	FrameClose    = "close"
	FramePing     = "ping"
	FramePong     = "pong"
)

// Frame is one WebSocket message in either direction.
type Frame struct {
	Type    string `json:"type"`
	ID      uint64 `json:"id,omitempty"`
	Channel string `json:"channel,omitempty"`
	Args    []any  `json:"args,omitempty"`
	Kind    string `json:"kind,omitempty"`
	Payload any    `json:"payload,omitempty"`
	Result  any    `json:"result,omitempty"`
	Message string `json:"message,omitempty"`
	// Failed marks a response as a rejection, whatever Message holds.
	Failed bool   `json:"failed,omitempty"`
	URL    string `json:"url,omitempty"`
}
