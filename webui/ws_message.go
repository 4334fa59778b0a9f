package webui

import (
	"time"

	"productstudio/studio"
)

// Message types pushed over the progress WebSocket.
const (
	// MessageTypeProgress carries the {completed, total} counter of a batch.
	MessageTypeProgress = "progress"

	// MessageTypeInitial is the snapshot sent right after connecting.
	MessageTypeInitial = "initial"

	// MessageTypeError reports a server-side problem with the stream.
	MessageTypeError = "error"
)

// WSMessage is the envelope of every WebSocket message.
type WSMessage struct {
	Type      string      `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
	Data      interface{} `json:"data,omitempty"`
}

// NewWSMessage stamps a message with the current time.
func NewWSMessage(msgType string, data interface{}) WSMessage {
	return WSMessage{
		Type:      msgType,
		Timestamp: time.Now(),
		Data:      data,
	}
}

// ProgressData is the payload of progress and initial messages.
type ProgressData struct {
	BatchID   string  `json:"batch_id,omitempty"`
	Completed int     `json:"completed"`
	Total     int     `json:"total"`
	Percent   float64 `json:"percent"`
	Running   bool    `json:"running"`
	Outcome   string  `json:"outcome,omitempty"`
}

// NewProgressData converts a tracker snapshot.
func NewProgressData(p studio.Progress) ProgressData {
	return ProgressData{
		BatchID:   p.BatchID,
		Completed: p.Completed,
		Total:     p.Total,
		Percent:   p.Percent(),
		Running:   p.Running,
		Outcome:   p.Outcome,
	}
}

// ErrorData is the payload of error messages.
type ErrorData struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// NewProgressMessage builds a progress message.
func NewProgressMessage(p studio.Progress) WSMessage {
	return NewWSMessage(MessageTypeProgress, NewProgressData(p))
}

// NewInitialMessage builds the connect snapshot. ok is false when the user
// has not run a batch yet.
func NewInitialMessage(p studio.Progress, ok bool) WSMessage {
	if !ok {
		return NewWSMessage(MessageTypeInitial, ProgressData{})
	}
	return NewWSMessage(MessageTypeInitial, NewProgressData(p))
}

// NewErrorMessage builds an error message.
func NewErrorMessage(code, message string) WSMessage {
	return NewWSMessage(MessageTypeError, ErrorData{Code: code, Message: message})
}
