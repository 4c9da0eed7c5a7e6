package engine

import (
	"context"
	"errors"
	"sync"

	"github.com/rs/zerolog"

	"github.com/Excellence-arch/anonchat-go/internal/auth"
	"github.com/Excellence-arch/anonchat-go/internal/client"
	"github.com/Excellence-arch/anonchat-go/internal/config"
	"github.com/Excellence-arch/anonchat-go/internal/dispatch"
	"github.com/Excellence-arch/anonchat-go/internal/domain"
	"github.com/Excellence-arch/anonchat-go/internal/optimistic"
	"github.com/Excellence-arch/anonchat-go/internal/store"
	"github.com/Excellence-arch/anonchat-go/internal/transport"
	"github.com/Excellence-arch/anonchat-go/internal/typing"
	"github.com/Excellence-arch/anonchat-go/pkg/log"
)

// Engine is the explicitly constructed synchronization engine instance.
// It owns the connection manager, dispatcher, conversation store,
// optimistic tracker and typing debouncer, and is the only surface the
// surrounding application talks to.
type Engine struct {
	cfg    *config.Config
	logger zerolog.Logger

	local      domain.Identity
	credential string

	store      *store.Store
	api        *client.Client
	transport  *transport.Manager
	dispatcher *dispatch.Dispatcher
	tracker    *optimistic.Tracker
	typing     *typing.Debouncer

	// onUnauthorized is invoked once when a collaborator rejects the
	// credential; the surrounding application returns the user to an
	// unauthenticated state.
	onUnauthorized func()
	unauthOnce     sync.Once

	mu        sync.Mutex
	listDirty bool
}

// Option configures an Engine.
type Option func(*Engine)

// WithUnauthorizedHook registers the session-teardown callback.
func WithUnauthorizedHook(fn func()) Option {
	return func(e *Engine) { e.onUnauthorized = fn }
}

// New builds an engine for the given credential. The local user identity
// is read from the credential's claims.
func New(cfg *config.Config, credential string, opts ...Option) (*Engine, error) {
	local, err := auth.LocalIdentity(credential)
	if err != nil {
		return nil, err
	}

	e := &Engine{
		cfg:        cfg,
		logger:     log.L().With().Str(log.FieldUserID, local.ID).Logger(),
		local:      local,
		credential: credential,
	}
	for _, opt := range opts {
		opt(e)
	}

	e.store = store.New(local.ID, cfg.Typing.InboundTTL)
	e.api = client.NewClient(cfg.API.BaseURL, cfg.API.Timeout, func() string { return e.credential })
	e.transport = transport.NewManager(transport.Config{
		URL:                  cfg.WebSocket.URL,
		PingInterval:         cfg.WebSocket.PingInterval,
		PongWait:             cfg.WebSocket.PongWait,
		WriteWait:            cfg.WebSocket.WriteWait,
		MaxMessageSize:       cfg.WebSocket.MaxMessageSize,
		ReconnectBase:        cfg.Reconnect.Base,
		MaxReconnectAttempts: cfg.Reconnect.MaxAttempts,
	}, e.onFrame, e.onStatus)
	e.dispatcher = dispatch.New(e.transport, e)
	e.tracker = optimistic.NewTracker(e.store, e.dispatcher, local.ID, cfg.Reconcile.Window)
	e.typing = typing.NewDebouncer(e.dispatcher, cfg.Typing.Inactivity)

	return e, nil
}

// Start connects the event channel and kicks off the initial
// conversation-list fetch. Connection errors are retried with backoff;
// Start only fails when the engine has been torn down.
func (e *Engine) Start(ctx context.Context) error {
	if err := e.transport.Connect(ctx, e.credential); err != nil {
		e.logger.Warn().Err(err).Msg("initial connect failed, retrying in background")
	}
	go e.refreshConversations(context.Background())
	return nil
}

// Stop tears the engine down: typing machines, transport, store.
func (e *Engine) Stop() {
	e.typing.Close()
	e.transport.Disconnect()
}

// Store exposes read-only snapshots for rendering. Mutation entry points
// stay behind the engine's methods.
func (e *Engine) Store() *store.Store {
	return e.store
}

// Updates returns the store's change notification channel.
func (e *Engine) Updates() <-chan struct{} {
	return e.store.Subscribe()
}

// LocalUser returns the identity the credential belongs to.
func (e *Engine) LocalUser() domain.Identity {
	return e.local
}

// SendMessage submits a message to receiverID. While the event channel is
// up the send is optimistic: a Pending record appears immediately and is
// reconciled when the server echo arrives. With the channel down the
// request/response fallback is used and the confirmed record is inserted
// directly; a fallback failure surfaces as a Failed record.
func (e *Engine) SendMessage(ctx context.Context, receiverID, content string) (string, error) {
	e.typing.MessageSent(receiverID)

	if e.transport.IsConnected() {
		return e.tracker.SubmitLocal(receiverID, content)
	}

	id, err := e.tracker.SubmitLocal(receiverID, content)
	if !errors.Is(err, domain.ErrNotConnected) {
		return id, err
	}

	confirmed, apiErr := e.api.SendMessage(ctx, receiverID, content)
	if apiErr != nil {
		e.checkAuth(apiErr)
		return id, apiErr
	}
	e.store.ReplaceMessage(id, confirmed)
	return confirmed.ID, nil
}

// RetryMessage re-submits a Failed message's content.
func (e *Engine) RetryMessage(ctx context.Context, messageID string) (string, error) {
	msg, ok := e.store.MessageByID(messageID)
	if !ok || msg.Delivery != domain.DeliveryFailed {
		return "", errors.New("no failed message to retry")
	}
	return e.SendMessage(ctx, msg.ReceiverID, msg.Content)
}

// SelectConversation makes conversationID the active conversation (""
// deselects). The previous buffer is dropped, a history hydration starts,
// and a read receipt is emitted for the participant. A late history
// result for a superseded selection is discarded.
func (e *Engine) SelectConversation(ctx context.Context, conversationID string) {
	if conversationID == "" {
		e.store.Select("")
		e.mu.Lock()
		dirty := e.listDirty
		e.listDirty = false
		e.mu.Unlock()
		if dirty {
			go e.refreshConversations(context.Background())
		}
		return
	}

	gen := e.store.Select(conversationID)
	selected, ok := e.store.Selected()
	if !ok {
		return
	}
	participantID := selected.Participant.ID

	if err := e.dispatcher.MarkRead(participantID); err != nil {
		e.logger.Debug().Err(err).Msg("mark_read not sent")
	}

	go e.hydrate(ctx, gen, participantID)
}

// StartConversation opens (or returns) a conversation with a participant
// found via search, before any message has been exchanged.
func (e *Engine) StartConversation(participant domain.Identity) domain.Conversation {
	return e.store.AddProvisionalConversation(participant)
}

// SearchUsers queries the participant directory.
func (e *Engine) SearchUsers(ctx context.Context, query string) ([]domain.Identity, error) {
	users, err := e.api.SearchUsers(ctx, query)
	if err != nil {
		e.checkAuth(err)
		return nil, err
	}
	return users, nil
}

// InputChanged feeds the outbound typing debouncer.
func (e *Engine) InputChanged(receiverID, text string) {
	e.typing.InputChanged(receiverID, text)
}

// Event handlers (dispatch.Sink). Called synchronously from the read
// pump in frame arrival order.

func (e *Engine) HandleMessageReceived(msg domain.Message) {
	if msg.SenderID == e.local.ID {
		e.tracker.Reconcile(msg)
		return
	}
	e.store.UpsertMessage(msg)
}

func (e *Engine) HandleConversationRefreshed() {
	// Refreshing under an active conversation would disrupt it; defer
	// the fetch until the user leaves.
	if _, selected := e.store.Selected(); selected {
		e.mu.Lock()
		e.listDirty = true
		e.mu.Unlock()
		return
	}
	go e.refreshConversations(context.Background())
}

func (e *Engine) HandleReadReceipt(readBy string) {
	e.store.SetReadReceipt(readBy)
}

func (e *Engine) HandlePresenceChanged(userID string, online bool) {
	e.store.SetPresence(userID, online)
}

func (e *Engine) HandleTypingChanged(userID string, typing bool) {
	e.store.SetTyping(userID, typing)
}

func (e *Engine) HandleTransportError(message string) {
	e.logger.Warn().Str(log.FieldEvent, domain.FrameError).Msg(message)
	e.tracker.FailNewest()
}

func (e *Engine) onFrame(raw []byte) {
	e.dispatcher.OnFrame(raw)
}

func (e *Engine) onStatus(status domain.ConnectionStatus) {
	e.store.SetConnectionStatus(status)

	switch status {
	case domain.StatusConnected:
		// Catch up on whatever happened while the link was down.
		go e.refreshConversations(context.Background())
	default:
		e.store.ResetPresence()
	}
}

func (e *Engine) hydrate(ctx context.Context, gen uint64, participantID string) {
	msgs, err := e.api.History(ctx, participantID, 1, e.cfg.API.PageSize)
	if err != nil {
		e.checkAuth(err)
		e.logger.Warn().Err(err).Str(log.FieldUserID, participantID).Msg("history fetch failed")
		e.store.ApplyHistory(gen, nil)
		return
	}
	if !e.store.ApplyHistory(gen, msgs) {
		e.logger.Debug().Str(log.FieldUserID, participantID).Msg("stale history result discarded")
	}
}

func (e *Engine) refreshConversations(ctx context.Context) {
	list, err := e.api.Conversations(ctx)
	if err != nil {
		e.checkAuth(err)
		e.logger.Warn().Err(err).Msg("conversation list fetch failed")
		return
	}
	e.store.SetConversations(list)
}

// checkAuth tears the session down when a collaborator rejects the
// credential. Propagates upward through the unauthorized hook; the engine
// itself never handles re-authentication.
func (e *Engine) checkAuth(err error) {
	if !errors.Is(err, domain.ErrUnauthorized) {
		return
	}
	e.unauthOnce.Do(func() {
		e.logger.Warn().Msg("credential rejected, tearing session down")
		e.Stop()
		e.store.Reset()
		if e.onUnauthorized != nil {
			e.onUnauthorized()
		}
	})
}
