package dispatch

import (
	"encoding/json"
	"fmt"

	"github.com/Excellence-arch/anonchat-go/internal/domain"
	"github.com/Excellence-arch/anonchat-go/pkg/log"
)

// Sink receives decoded events, one handler per event kind. Dispatch is
// synchronous with frame arrival order.
type Sink interface {
	HandleMessageReceived(msg domain.Message)
	HandleConversationRefreshed()
	HandleReadReceipt(readBy string)
	HandlePresenceChanged(userID string, online bool)
	HandleTypingChanged(userID string, typing bool)
	HandleTransportError(message string)
}

// Sender is the outbound half of the event channel.
type Sender interface {
	Send(payload []byte) error
}

// Dispatcher decodes inbound frames into the closed event set and routes
// each to exactly one sink handler; it also encodes outbound command
// frames on behalf of the store side.
type Dispatcher struct {
	sender Sender
	sink   Sink
}

func New(sender Sender, sink Sink) *Dispatcher {
	return &Dispatcher{sender: sender, sink: sink}
}

// OnFrame decodes one raw frame and routes it. Malformed and unknown
// frames are dropped and logged, never raised as fatal.
func (d *Dispatcher) OnFrame(raw []byte) {
	event, err := Decode(raw)
	if err != nil {
		log.L().Warn().Err(err).Msg("dropping undecodable frame")
		return
	}
	if event == nil {
		return
	}

	switch e := event.(type) {
	case domain.MessageReceived:
		d.sink.HandleMessageReceived(e.Message)
	case domain.ConversationRefreshed:
		d.sink.HandleConversationRefreshed()
	case domain.ReadReceipt:
		d.sink.HandleReadReceipt(e.ReadBy)
	case domain.PresenceChanged:
		d.sink.HandlePresenceChanged(e.UserID, e.Online)
	case domain.TypingChanged:
		d.sink.HandleTypingChanged(e.UserID, e.Typing)
	case domain.TransportError:
		d.sink.HandleTransportError(e.Message)
	}
}

// Decode turns one raw frame into its event variant. Unknown frame kinds
// decode to (nil, nil): dropped, not an error.
func Decode(raw []byte) (domain.Event, error) {
	var base domain.BaseFrame
	if err := json.Unmarshal(raw, &base); err != nil {
		return nil, fmt.Errorf("decode frame envelope: %w", err)
	}

	switch base.Type {
	case domain.FrameNewMessage:
		var f domain.NewMessageFrame
		if err := json.Unmarshal(raw, &f); err != nil {
			return nil, fmt.Errorf("decode %s: %w", base.Type, err)
		}
		return domain.MessageReceived{Message: domain.Message{
			ID:         f.ID,
			SenderID:   f.SenderID,
			ReceiverID: f.ReceiverID,
			Content:    f.Content,
			CreatedAt:  f.CreatedAt,
			Delivery:   domain.DeliveryConfirmed,
		}}, nil

	case domain.FrameChatUpdated:
		return domain.ConversationRefreshed{}, nil

	case domain.FrameMessagesRead:
		var f domain.MessagesReadFrame
		if err := json.Unmarshal(raw, &f); err != nil {
			return nil, fmt.Errorf("decode %s: %w", base.Type, err)
		}
		return domain.ReadReceipt{ReadBy: f.ReadBy}, nil

	case domain.FrameUserOnline, domain.FrameUserOffline:
		var f domain.UserStatusFrame
		if err := json.Unmarshal(raw, &f); err != nil {
			return nil, fmt.Errorf("decode %s: %w", base.Type, err)
		}
		return domain.PresenceChanged{UserID: f.UserID, Online: base.Type == domain.FrameUserOnline}, nil

	case domain.FrameUserTyping:
		var f domain.UserTypingFrame
		if err := json.Unmarshal(raw, &f); err != nil {
			return nil, fmt.Errorf("decode %s: %w", base.Type, err)
		}
		return domain.TypingChanged{UserID: f.UserID, Typing: f.Typing}, nil

	case domain.FrameError:
		var f domain.ErrorFrame
		if err := json.Unmarshal(raw, &f); err != nil {
			return nil, fmt.Errorf("decode %s: %w", base.Type, err)
		}
		return domain.TransportError{Message: f.Message}, nil

	default:
		log.L().Debug().Str(log.FieldEvent, base.Type).Msg("dropping unknown frame kind")
		return nil, nil
	}
}

// SendMessage emits a send_message command.
func (d *Dispatcher) SendMessage(receiverID, content string) error {
	return d.emit(domain.SendMessageFrame{
		Type:       domain.FrameSendMessage,
		ReceiverID: receiverID,
		Content:    content,
	})
}

// MarkRead emits a mark_read command for every message from senderID.
func (d *Dispatcher) MarkRead(senderID string) error {
	return d.emit(domain.MarkReadFrame{
		Type:     domain.FrameMarkRead,
		SenderID: senderID,
	})
}

// TypingStart emits a typing_start command.
func (d *Dispatcher) TypingStart(receiverID string) error {
	return d.emit(domain.TypingFrame{
		Type:       domain.FrameTypingStart,
		ReceiverID: receiverID,
	})
}

// TypingStop emits a typing_stop command.
func (d *Dispatcher) TypingStop(receiverID string) error {
	return d.emit(domain.TypingFrame{
		Type:       domain.FrameTypingStop,
		ReceiverID: receiverID,
	})
}

func (d *Dispatcher) emit(frame interface{}) error {
	data, err := json.Marshal(frame)
	if err != nil {
		return err
	}
	return d.sender.Send(data)
}
