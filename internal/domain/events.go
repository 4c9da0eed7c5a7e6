package domain

// Event is the closed set of decoded inbound events. Frames are decoded
// once at the dispatcher boundary; handlers receive one of these variants
// and never re-inspect raw payloads.
type Event interface {
	event()
}

// MessageReceived carries a server-confirmed message.
type MessageReceived struct {
	Message Message
}

// ConversationRefreshed signals that the conversation list should be
// re-pulled from the history collaborator. No payload.
type ConversationRefreshed struct{}

// ReadReceipt reports that ReadBy has read every message addressed to them.
type ReadReceipt struct {
	ReadBy string
}

// PresenceChanged reports a participant going online or offline.
type PresenceChanged struct {
	UserID string
	Online bool
}

// TypingChanged reports a participant starting or stopping typing.
type TypingChanged struct {
	UserID string
	Typing bool
}

// TransportError reports a server-side error on the event channel.
type TransportError struct {
	Message string
}

func (MessageReceived) event()       {}
func (ConversationRefreshed) event() {}
func (ReadReceipt) event()           {}
func (PresenceChanged) event()       {}
func (TypingChanged) event()         {}
func (TransportError) event()        {}
