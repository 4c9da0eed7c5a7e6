package domain

import "time"

// Frame types from the server.
const (
	FrameNewMessage   = "new_message"
	FrameChatUpdated  = "chat_updated"
	FrameMessagesRead = "messages_read"
	FrameUserOnline   = "user_online"
	FrameUserOffline  = "user_offline"
	FrameUserTyping   = "user_typing"
	FrameError        = "error"
)

// Frame types to the server.
const (
	FrameSendMessage = "send_message"
	FrameMarkRead    = "mark_read"
	FrameTypingStart = "typing_start"
	FrameTypingStop  = "typing_stop"
)

// BaseFrame is the envelope shared by all frames.
type BaseFrame struct {
	Type string `json:"type"`
}

// Server -> client frames

type NewMessageFrame struct {
	Type       string    `json:"type"`
	ID         string    `json:"id"`
	SenderID   string    `json:"senderId"`
	ReceiverID string    `json:"receiverId"`
	Content    string    `json:"content"`
	CreatedAt  time.Time `json:"createdAt"`
}

type MessagesReadFrame struct {
	Type   string `json:"type"`
	ReadBy string `json:"readBy"`
}

type UserStatusFrame struct {
	Type     string `json:"type"`
	UserID   string `json:"userId"`
	Username string `json:"username"`
	Online   bool   `json:"isOnline"`
}

type UserTypingFrame struct {
	Type     string `json:"type"`
	UserID   string `json:"userId"`
	Username string `json:"username"`
	Typing   bool   `json:"isTyping"`
}

type ErrorFrame struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// Client -> server frames

type SendMessageFrame struct {
	Type       string `json:"type"`
	ReceiverID string `json:"receiverId"`
	Content    string `json:"content"`
}

type MarkReadFrame struct {
	Type     string `json:"type"`
	SenderID string `json:"senderId"`
}

type TypingFrame struct {
	Type       string `json:"type"`
	ReceiverID string `json:"receiverId"`
}
