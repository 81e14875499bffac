package gateway

import "modelgate/internal/knowledge"

type FrameType string

const (
	FrameMetadata FrameType = "metadata"
	FrameContent  FrameType = "content"
	FrameFailover FrameType = "failover"
	FrameError    FrameType = "error"
	FrameDone     FrameType = "done"
)

// Frame is one typed event on the client-facing stream. A session emits one
// metadata frame, zero or more content frames, at most one failover frame,
// and exactly one terminal done frame (preceded by an error frame on
// failure).
type Frame struct {
	Type           FrameType          `json:"type"`
	Provider       string             `json:"provider,omitempty"`
	Model          string             `json:"model,omitempty"`
	ConversationID string             `json:"conversation_id,omitempty"`
	Sources        []knowledge.Source `json:"sources,omitempty"`
	Text           string             `json:"text,omitempty"`
	Message        string             `json:"message,omitempty"`
}

// FrameWriter delivers frames to the client transport.
type FrameWriter interface {
	WriteFrame(Frame) error
}
