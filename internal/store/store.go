package store

import (
	"sort"
	"sync"
	"time"

	"github.com/Excellence-arch/anonchat-go/internal/domain"
)

// Store is the single mutable source of truth for conversations, the
// selected conversation's message timeline, presence and typing state.
// Every other component mutates it only through the exported entry
// points; reads return copies.
type Store struct {
	mu sync.RWMutex

	localUserID string

	conversations map[string]*domain.Conversation
	selectedID    string

	// Timeline of the selected conversation only. Selecting another
	// conversation drops the buffer and rehydrates from history.
	messages []domain.Message
	seq      int64

	loading    bool
	generation uint64

	online    map[string]struct{}
	typing    map[string]*typingEntry
	typingGen uint64
	typingTTL time.Duration
	status    domain.ConnectionStatus

	subs []chan struct{}
}

// typingEntry is one lit inbound typing indicator. gen distinguishes the
// current arming from a timer fire that lost the race to a re-arm.
type typingEntry struct {
	timer *time.Timer
	gen   uint64
}

// New creates an empty store for the given local user. typingTTL bounds
// how long an inbound typing indicator stays lit without a stop event.
func New(localUserID string, typingTTL time.Duration) *Store {
	return &Store{
		localUserID:   localUserID,
		conversations: make(map[string]*domain.Conversation),
		online:        make(map[string]struct{}),
		typing:        make(map[string]*typingEntry),
		typingTTL:     typingTTL,
	}
}

// Subscribe returns a channel that receives a tick after every mutation.
// Ticks are coalesced; a slow reader never blocks the store.
func (s *Store) Subscribe() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()

	ch := make(chan struct{}, 1)
	s.subs = append(s.subs, ch)
	return ch
}

func (s *Store) notify() {
	for _, ch := range s.subs {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

// Conversations returns the conversation list sorted by last activity,
// newest first, ties broken by conversation id. Participant online flags
// are merged with the live presence set.
func (s *Store) Conversations() []domain.Conversation {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.Conversation, 0, len(s.conversations))
	for _, c := range s.conversations {
		cc := *c
		cc.Participant.Online = s.isOnline(cc.Participant)
		out = append(out, cc)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].LastMessageAt.Equal(out[j].LastMessageAt) {
			return out[i].LastMessageAt.After(out[j].LastMessageAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// Messages returns a copy of the selected conversation's timeline.
func (s *Store) Messages() []domain.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.Message, len(s.messages))
	copy(out, s.messages)
	return out
}

// Selected returns the currently selected conversation, if any.
func (s *Store) Selected() (domain.Conversation, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.conversations[s.selectedID]
	if !ok {
		return domain.Conversation{}, false
	}
	cc := *c
	cc.Participant.Online = s.isOnline(cc.Participant)
	return cc, true
}

// Loading reports whether a history hydration is in flight for the
// selected conversation.
func (s *Store) Loading() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loading
}

// Online reports whether a participant is displayed online: present in
// the presence set OR last snapshotted online. Stale-tolerant by design.
func (s *Store) Online(userID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.online[userID]; ok {
		return true
	}
	for _, c := range s.conversations {
		if c.Participant.ID == userID {
			return c.Participant.Online
		}
	}
	return false
}

// OnlineSet returns a copy of the live presence set.
func (s *Store) OnlineSet() map[string]struct{} {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]struct{}, len(s.online))
	for id := range s.online {
		out[id] = struct{}{}
	}
	return out
}

// Typing returns the set of users currently typing.
func (s *Store) Typing() map[string]bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]bool, len(s.typing))
	for id := range s.typing {
		out[id] = true
	}
	return out
}

// ConnectionStatus returns the transport link state.
func (s *Store) ConnectionStatus() domain.ConnectionStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}

func (s *Store) isOnline(p domain.Identity) bool {
	if _, ok := s.online[p.ID]; ok {
		return true
	}
	return p.Online
}

// SetConversations replaces the conversation list from a bulk fetch.
// Provisional conversations survive the refresh unless the server now
// knows a real conversation with the same participant.
func (s *Store) SetConversations(list []domain.Conversation) {
	s.mu.Lock()
	defer s.mu.Unlock()

	byParticipant := make(map[string]string, len(list))
	next := make(map[string]*domain.Conversation, len(list))
	for i := range list {
		c := list[i]
		next[c.ID] = &c
		byParticipant[c.Participant.ID] = c.ID
	}

	for id, c := range s.conversations {
		if !c.Provisional {
			continue
		}
		if real, ok := byParticipant[c.Participant.ID]; ok {
			if s.selectedID == id {
				s.selectedID = real
			}
			continue
		}
		next[id] = c
	}

	s.conversations = next
	if _, ok := s.conversations[s.selectedID]; !ok {
		s.selectedID = ""
		s.messages = nil
		s.loading = false
	}
	s.notify()
}

// AddProvisionalConversation creates a local-only conversation with a
// participant no message has been exchanged with yet. If a conversation
// with that participant already exists it is returned instead.
func (s *Store) AddProvisionalConversation(participant domain.Identity) domain.Conversation {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, c := range s.conversations {
		if c.Participant.ID == participant.ID {
			return *c
		}
	}

	c := domain.Conversation{
		ID:          domain.NewProvisionalConversationID(),
		Participant: participant,
		Provisional: true,
	}
	s.conversations[c.ID] = &c
	s.notify()
	return c
}

// UpsertMessage inserts a message into the timeline, keeping the ordering
// by CreatedAt (insertion sequence breaks ties), and re-derives the owning
// conversation's preview and unread count. Messages for conversations
// other than the selected one still update the list entry but are not
// buffered.
func (s *Store) UpsertMessage(msg domain.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()

	conv := s.conversationFor(msg)
	inSelected := conv != nil && conv.ID == s.selectedID

	if inSelected {
		s.seq++
		msg.Seq = s.seq
		s.insertOrdered(msg)
	}

	if conv != nil {
		s.deriveConversation(conv, msg, inSelected)
	}
	s.notify()
}

// conversationFor finds (or lazily creates) the conversation a message
// belongs to, keyed by the remote participant.
func (s *Store) conversationFor(msg domain.Message) *domain.Conversation {
	other := msg.SenderID
	if other == s.localUserID {
		other = msg.ReceiverID
	}
	for _, c := range s.conversations {
		if c.Participant.ID == other {
			return c
		}
	}
	if other == "" || other == s.localUserID {
		return nil
	}
	c := &domain.Conversation{
		ID:          domain.NewProvisionalConversationID(),
		Participant: domain.Identity{ID: other},
		Provisional: true,
	}
	s.conversations[c.ID] = c
	return c
}

func (s *Store) insertOrdered(msg domain.Message) {
	i := sort.Search(len(s.messages), func(i int) bool {
		m := s.messages[i]
		if !m.CreatedAt.Equal(msg.CreatedAt) {
			return m.CreatedAt.After(msg.CreatedAt)
		}
		return m.Seq > msg.Seq
	})
	s.messages = append(s.messages, domain.Message{})
	copy(s.messages[i+1:], s.messages[i:])
	s.messages[i] = msg
}

func (s *Store) deriveConversation(conv *domain.Conversation, msg domain.Message, inSelected bool) {
	if msg.CreatedAt.After(conv.LastMessageAt) || conv.LastMessagePreview == "" {
		conv.LastMessagePreview = msg.Content
		conv.LastMessageAt = msg.CreatedAt
	}
	if msg.ReceiverID == s.localUserID && !msg.Read && !inSelected {
		conv.UnreadCount++
	}
}

// ReplaceMessage swaps a provisional timeline entry for its confirmed
// counterpart in place, preserving the entry's position. Returns false if
// the provisional id is not in the timeline.
func (s *Store) ReplaceMessage(provisionalID string, msg domain.Message) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.messages {
		if s.messages[i].ID != provisionalID {
			continue
		}
		msg.Seq = s.messages[i].Seq
		msg.CreatedAt = s.messages[i].CreatedAt
		s.messages[i] = msg

		if conv := s.conversationFor(msg); conv != nil {
			if conv.LastMessagePreview == "" || !msg.CreatedAt.Before(conv.LastMessageAt) {
				conv.LastMessagePreview = msg.Content
			}
		}
		s.notify()
		return true
	}
	return false
}

// MessageByID looks a message up in the selected conversation's timeline.
func (s *Store) MessageByID(id string) (domain.Message, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, m := range s.messages {
		if m.ID == id {
			return m, true
		}
	}
	return domain.Message{}, false
}

// FindRecentPending returns the oldest Pending message to receiver with
// identical content created within the recency window ending now.
func (s *Store) FindRecentPending(receiverID, content string, window time.Duration) (domain.Message, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cutoff := time.Now().Add(-window)
	for _, m := range s.messages {
		if m.Delivery != domain.DeliveryPending {
			continue
		}
		if m.ReceiverID != receiverID || m.Content != content {
			continue
		}
		if m.CreatedAt.Before(cutoff) {
			continue
		}
		return m, true
	}
	return domain.Message{}, false
}

// NewestPending returns the most recently inserted Pending message.
func (s *Store) NewestPending() (domain.Message, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for i := len(s.messages) - 1; i >= 0; i-- {
		if s.messages[i].Delivery == domain.DeliveryPending {
			return s.messages[i], true
		}
	}
	return domain.Message{}, false
}

// SetDelivery updates a message's delivery state. Returns false if the
// message is not in the timeline.
func (s *Store) SetDelivery(id string, state domain.DeliveryState) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.messages {
		if s.messages[i].ID == id {
			s.messages[i].Delivery = state
			s.notify()
			return true
		}
	}
	return false
}

// SetReadReceipt marks every message addressed to userID as read.
// Idempotent.
func (s *Store) SetReadReceipt(userID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	changed := false
	for i := range s.messages {
		if s.messages[i].ReceiverID == userID && !s.messages[i].Read {
			s.messages[i].Read = true
			changed = true
		}
	}
	if changed {
		s.notify()
	}
}

// SetPresence updates the live presence set and the participant's
// last-known snapshot flag.
func (s *Store) SetPresence(userID string, online bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if online {
		s.online[userID] = struct{}{}
	} else {
		delete(s.online, userID)
	}
	for _, c := range s.conversations {
		if c.Participant.ID == userID {
			c.Participant.Online = online
		}
	}
	s.notify()
}

// ResetPresence empties the live presence set, e.g. when the transport
// drops. Snapshot flags on conversations are left for the stale-tolerant
// display fallback.
func (s *Store) ResetPresence() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.online) == 0 {
		return
	}
	s.online = make(map[string]struct{})
	s.notify()
}

// SetTyping updates the inbound typing indicator for a user. An active
// entry expires on its own timer if no stop event arrives.
func (s *Store) SetTyping(userID string, typing bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if e, ok := s.typing[userID]; ok {
		e.timer.Stop()
		delete(s.typing, userID)
	}
	if typing {
		s.typingGen++
		gen := s.typingGen
		s.typing[userID] = &typingEntry{
			gen: gen,
			timer: time.AfterFunc(s.typingTTL, func() {
				s.expireTyping(userID, gen)
			}),
		}
	}
	s.notify()
}

// expireTyping clears an indicator on TTL. A fire whose generation no
// longer matches lost to a re-arm and must leave the fresh entry alone.
func (s *Store) expireTyping(userID string, gen uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.typing[userID]
	if !ok || e.gen != gen {
		return
	}
	delete(s.typing, userID)
	s.notify()
}

// Select switches the selected conversation ("" deselects). The message
// buffer is cleared either way; a non-empty selection starts loading and
// returns the hydration generation the history result must present. A
// late result from a previous selection is discarded by ApplyHistory.
func (s *Store) Select(conversationID string) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.generation++
	s.selectedID = conversationID
	s.messages = nil
	s.loading = conversationID != ""

	if c, ok := s.conversations[conversationID]; ok {
		c.UnreadCount = 0
	}

	s.notify()
	return s.generation
}

// ApplyHistory installs a hydrated timeline if gen still matches the
// current selection. Returns false when the result is stale.
func (s *Store) ApplyHistory(gen uint64, msgs []domain.Message) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if gen != s.generation {
		return false
	}

	s.messages = nil
	sort.SliceStable(msgs, func(i, j int) bool {
		return msgs[i].CreatedAt.Before(msgs[j].CreatedAt)
	})
	for _, m := range msgs {
		s.seq++
		m.Seq = s.seq
		if m.Delivery == domain.DeliveryPending && !domain.IsProvisionalMessageID(m.ID) {
			m.Delivery = domain.DeliveryConfirmed
		}
		s.messages = append(s.messages, m)
	}
	s.loading = false

	if len(s.messages) > 0 {
		if conv, ok := s.conversations[s.selectedID]; ok {
			last := s.messages[len(s.messages)-1]
			conv.LastMessagePreview = last.Content
			conv.LastMessageAt = last.CreatedAt
		}
	}

	s.notify()
	return true
}

// SetConnectionStatus records the transport link state.
func (s *Store) SetConnectionStatus(status domain.ConnectionStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.status == status {
		return
	}
	s.status = status
	s.notify()
}

// Reset clears all state for session teardown. Typing timers are stopped.
func (s *Store) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, e := range s.typing {
		e.timer.Stop()
		delete(s.typing, id)
	}
	s.conversations = make(map[string]*domain.Conversation)
	s.online = make(map[string]struct{})
	s.messages = nil
	s.selectedID = ""
	s.loading = false
	s.generation++
	s.notify()
}
