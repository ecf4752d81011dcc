package models

import "time"

// Turn is one prior exchange in a conversation, oldest first.
type Turn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Request is an inbound message scoped to one pipeline run.
// It is created at ingress and never mutated afterwards.
type Request struct {
	RequestID      string            `json:"request_id"`
	UserID         string            `json:"user_id"`
	RawText        string            `json:"raw_text"`
	ConversationID string            `json:"conversation_id"`
	ChannelContext map[string]string `json:"channel_context,omitempty"`
	ReceivedAt     time.Time         `json:"received_at"`
	History        []Turn            `json:"history,omitempty"`
}

// Channel context keys understood by the pipeline.
const (
	ChannelKeyPhoneNumber = "phone_number"
	ChannelKeySource      = "source"
	ChannelKeyInline      = "inline"
	ChannelKeyUserName    = "user_name"
	ChannelKeyCompanyID   = "company_id"
)

// Channel returns the channel context value for key, or "" when absent.
func (r Request) Channel(key string) string {
	if r.ChannelContext == nil {
		return ""
	}
	return r.ChannelContext[key]
}

// Response is what the pipeline reports back to its caller.
type Response struct {
	Success      bool     `json:"success"`
	ResponseText string   `json:"response"`
	Metadata     Metadata `json:"metadata"`
}

// Metadata carries per-run diagnostics. Values are JSON friendly.
type Metadata map[string]any

// String returns the metadata value for key as a string, or "".
func (m Metadata) String(key string) string {
	if v, ok := m[key].(string); ok {
		return v
	}
	return ""
}
