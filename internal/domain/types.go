package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Reserved id prefixes. Server-assigned ids never carry these, which keeps
// the provisional and confirmed id spaces disjoint.
const (
	ProvisionalMessagePrefix      = "temp-"
	ProvisionalConversationPrefix = "local-"
)

// Identity is a chat participant. Immutable except Online, which is
// updated only by presence events.
type Identity struct {
	ID          string `json:"id"`
	DisplayName string `json:"username"`
	AvatarRef   string `json:"avatar"`
	Online      bool   `json:"isOnline"`
}

// DeliveryState tracks a message's confirmation status.
type DeliveryState int

const (
	DeliveryPending DeliveryState = iota
	DeliveryConfirmed
	DeliveryFailed
)

func (s DeliveryState) String() string {
	switch s {
	case DeliveryPending:
		return "pending"
	case DeliveryConfirmed:
		return "confirmed"
	case DeliveryFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Message is a single chat message. ID is server-assigned for confirmed
// messages and a provisional temp- id while a send is in flight.
type Message struct {
	ID         string        `json:"id"`
	SenderID   string        `json:"senderId"`
	ReceiverID string        `json:"receiverId"`
	Content    string        `json:"content"`
	CreatedAt  time.Time     `json:"createdAt"`
	Read       bool          `json:"isRead"`
	Delivery   DeliveryState `json:"-"`

	// Seq is the store's insertion sequence, used to break CreatedAt ties.
	Seq int64 `json:"-"`
}

// Conversation is one entry of the conversation list. Preview fields and
// UnreadCount are derived from the message timeline, never set directly.
type Conversation struct {
	ID                 string    `json:"chatId"`
	Participant        Identity  `json:"participant"`
	LastMessagePreview string    `json:"lastMessage"`
	LastMessageAt      time.Time `json:"lastMessageTime"`
	UnreadCount        int       `json:"unreadCount"`

	// Provisional conversations exist only locally until the first
	// message round-trips; they have no unread semantics.
	Provisional bool `json:"-"`
}

// ConnectionStatus is the transport link state surfaced to the UI.
type ConnectionStatus int

const (
	StatusDisconnected ConnectionStatus = iota
	StatusConnected
	StatusReconnecting
)

func (s ConnectionStatus) String() string {
	switch s {
	case StatusConnected:
		return "connected"
	case StatusReconnecting:
		return "reconnecting"
	default:
		return "disconnected"
	}
}

// NewProvisionalMessageID returns a fresh temp- message id.
func NewProvisionalMessageID() string {
	return ProvisionalMessagePrefix + uuid.New().String()
}

// NewProvisionalConversationID returns a fresh local- conversation id.
func NewProvisionalConversationID() string {
	return ProvisionalConversationPrefix + uuid.New().String()
}

// IsProvisionalMessageID reports whether id belongs to the provisional
// message id space.
func IsProvisionalMessageID(id string) bool {
	return strings.HasPrefix(id, ProvisionalMessagePrefix)
}

// IsProvisionalConversationID reports whether id belongs to the
// provisional conversation id space.
func IsProvisionalConversationID(id string) bool {
	return strings.HasPrefix(id, ProvisionalConversationPrefix)
}
