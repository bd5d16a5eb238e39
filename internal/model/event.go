package model

// 流式事件类型
const (
	EventMeta  = "meta"
	EventDelta = "delta"
	EventDone  = "done"
	EventError = "error"
)

// StreamEvent 流式回复事件
type StreamEvent struct {
	Type           string
	ConversationID string
	Text           string
	Error          string
}

// Payload SSE data 字段内容
func (e StreamEvent) Payload() map[string]string {
	switch e.Type {
	case EventMeta:
		return map[string]string{"conversationId": e.ConversationID}
	case EventDelta:
		return map[string]string{"text": e.Text}
	case EventError:
		return map[string]string{"error": e.Error}
	default:
		return map[string]string{}
	}
}

// WebSocket 帧类型
const (
	FrameChat = "CHAT"
	FramePing = "PING"
	FramePong = "PONG"
)

// WSInbound 客户端发来的 WebSocket 帧
type WSInbound struct {
	Type           string   `json:"type"` // CHAT, PING
	Message        string   `json:"message,omitempty"`
	ConversationID string   `json:"conversationId,omitempty"`
	Language       Language `json:"language,omitempty"`
}

// WSOutbound 服务端推送的 WebSocket 帧
type WSOutbound struct {
	Type           string `json:"type"` // meta, delta, done, error, PONG
	ConversationID string `json:"conversationId,omitempty"`
	Text           string `json:"text,omitempty"`
	Error          string `json:"error,omitempty"`
}

// OutboundFrame 把事件转换为 WebSocket 帧
func (e StreamEvent) OutboundFrame() WSOutbound {
	return WSOutbound{
		Type:           e.Type,
		ConversationID: e.ConversationID,
		Text:           e.Text,
		Error:          e.Error,
	}
}
