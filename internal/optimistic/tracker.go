package optimistic

import (
	"time"

	"github.com/Excellence-arch/anonchat-go/internal/domain"
	"github.com/Excellence-arch/anonchat-go/internal/store"
	"github.com/Excellence-arch/anonchat-go/pkg/log"
)

// Outbound emits the send command for a locally submitted message.
type Outbound interface {
	SendMessage(receiverID, content string) error
}

// Tracker creates provisional records for user-initiated sends and
// reconciles them against the confirmed events the server echoes back.
type Tracker struct {
	store       *store.Store
	out         Outbound
	localUserID string
	window      time.Duration
}

func NewTracker(s *store.Store, out Outbound, localUserID string, window time.Duration) *Tracker {
	return &Tracker{
		store:       s,
		out:         out,
		localUserID: localUserID,
		window:      window,
	}
}

// SubmitLocal inserts a Pending message, updates the owning
// conversation's preview, and emits the send command. It returns the
// provisional id immediately; confirmation arrives later as an inbound
// event. If the command cannot be emitted the message is marked Failed
// right away and stays visible for retry.
func (t *Tracker) SubmitLocal(receiverID, content string) (string, error) {
	msg := domain.Message{
		ID:         domain.NewProvisionalMessageID(),
		SenderID:   t.localUserID,
		ReceiverID: receiverID,
		Content:    content,
		CreatedAt:  time.Now(),
		Delivery:   domain.DeliveryPending,
	}
	t.store.UpsertMessage(msg)

	if err := t.out.SendMessage(receiverID, content); err != nil {
		t.store.SetDelivery(msg.ID, domain.DeliveryFailed)
		return msg.ID, err
	}
	return msg.ID, nil
}

// Reconcile matches a confirmed own-message against Pending entries with
// the same receiver and content inside the recency window, replacing the
// Pending entry in place. A confirmation whose id is already in the
// timeline is a duplicate and ignored; one with no matching Pending entry
// is appended as new (reconciliation miss, not an error).
func (t *Tracker) Reconcile(confirmed domain.Message) {
	if _, exists := t.store.MessageByID(confirmed.ID); exists {
		log.L().Debug().Str(log.FieldMessageID, confirmed.ID).Msg("duplicate confirmation ignored")
		return
	}

	confirmed.Delivery = domain.DeliveryConfirmed

	if pending, ok := t.store.FindRecentPending(confirmed.ReceiverID, confirmed.Content, t.window); ok {
		if t.store.ReplaceMessage(pending.ID, confirmed) {
			return
		}
	}

	log.L().Debug().
		Str(log.FieldMessageID, confirmed.ID).
		Str(log.FieldReceiverID, confirmed.ReceiverID).
		Msg("no pending match, appending confirmed message")
	t.store.UpsertMessage(confirmed)
}

// Fail marks a Pending message Failed. Failed messages remain visible so
// the user can retry or observe the failure.
func (t *Tracker) Fail(provisionalID string) {
	if !t.store.SetDelivery(provisionalID, domain.DeliveryFailed) {
		log.L().Debug().Str(log.FieldMessageID, provisionalID).Msg("fail for unknown provisional id")
	}
}

// FailNewest marks the most recent Pending message Failed. Used when the
// server reports a send error without identifying the message.
func (t *Tracker) FailNewest() {
	if pending, ok := t.store.NewestPending(); ok {
		t.store.SetDelivery(pending.ID, domain.DeliveryFailed)
	}
}
