package log

const (
	// Actor
	FieldUserID   = "user_id"
	FieldUsername = "username"

	// Chat
	FieldConversationID = "conversation_id"
	FieldMessageID      = "message_id"
	FieldReceiverID     = "receiver_id"

	// Transport
	FieldEvent   = "event"
	FieldStatus  = "status"
	FieldAttempt = "attempt"
)
