package liveserver

// Message is the envelope every WebSocket payload travels in.
type Message struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

// MessageType constants
const (
	TypeStatus = "status" // engine status report
	TypeLevels = "levels" // full ladder layout
	TypeFill   = "fill"   // a grid fill event
	TypeMove   = "move"   // a repositioning event
)

// NewMessage creates a Message.
func NewMessage(msgType string, data interface{}) Message {
	return Message{Type: msgType, Data: data}
}

// NewStatusMessage wraps an engine status report.
func NewStatusMessage(data interface{}) Message {
	return NewMessage(TypeStatus, data)
}

// NewLevelsMessage wraps a ladder layout.
func NewLevelsMessage(data interface{}) Message {
	return NewMessage(TypeLevels, data)
}

// NewFillMessage wraps a fill event.
func NewFillMessage(data interface{}) Message {
	return NewMessage(TypeFill, data)
}

// NewMoveMessage wraps a repositioning event.
func NewMoveMessage(data interface{}) Message {
	return NewMessage(TypeMove, data)
}
