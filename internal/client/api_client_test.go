package client

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Excellence-arch/anonchat-go/internal/domain"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(srv.URL, 5*time.Second, func() string { return "tok-1" })
}

func TestConversationsSendsCredential(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/chats", r.URL.Path)
		assert.Equal(t, "Bearer tok-1", r.Header.Get("Authorization"))
		w.Write([]byte(`{"chats":[{"chatId":"c1","participant":{"id":"p1","username":"ada"},"lastMessage":"yo","unreadCount":2}]}`))
	})

	chats, err := c.Conversations(context.Background())
	require.NoError(t, err)
	require.Len(t, chats, 1)
	assert.Equal(t, "c1", chats[0].ID)
	assert.Equal(t, "ada", chats[0].Participant.DisplayName)
	assert.Equal(t, 2, chats[0].UnreadCount)
}

func TestHistoryPagination(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/history/p1", r.URL.Path)
		assert.Equal(t, "2", r.URL.Query().Get("page"))
		assert.Equal(t, "50", r.URL.Query().Get("limit"))
		w.Write([]byte(`{"messages":[{"id":"m1","senderId":"p1","receiverId":"u1","content":"hi","createdAt":"2024-05-01T12:00:00Z","isRead":true}]}`))
	})

	msgs, err := c.History(context.Background(), "p1", 2, 50)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "m1", msgs[0].ID)
	assert.True(t, msgs[0].Read)
	assert.Equal(t, domain.DeliveryConfirmed, msgs[0].Delivery)
}

func TestSendMessageFallback(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/chat/send", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		w.Write([]byte(`{"data":{"id":"m1","senderId":"u1","receiverId":"p1","content":"hi","createdAt":"2024-05-01T12:00:00Z"}}`))
	})

	msg, err := c.SendMessage(context.Background(), "p1", "hi")
	require.NoError(t, err)
	assert.Equal(t, "m1", msg.ID)
	assert.Equal(t, domain.DeliveryConfirmed, msg.Delivery)
}

func TestSearchUsersEmptyQueryReturnsAll(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/search", r.URL.Path)
		assert.False(t, r.URL.Query().Has("query"))
		w.Write([]byte(`{"users":[{"id":"p1","username":"ada"},{"id":"p2","username":"bob"}]}`))
	})

	users, err := c.SearchUsers(context.Background(), "")
	require.NoError(t, err)
	assert.Len(t, users, 2)
}

func TestSearchUsersEncodesQuery(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "a b", r.URL.Query().Get("query"))
		w.Write([]byte(`{"users":[]}`))
	})

	_, err := c.SearchUsers(context.Background(), "a b")
	require.NoError(t, err)
}

func TestUnauthorizedMapsToSentinel(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})

	_, err := c.Conversations(context.Background())
	assert.ErrorIs(t, err, domain.ErrUnauthorized)
}

func TestServerErrorIsReported(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})

	_, err := c.Conversations(context.Background())
	require.Error(t, err)
	assert.NotErrorIs(t, err, domain.ErrUnauthorized)
}
