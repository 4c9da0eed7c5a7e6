package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/Excellence-arch/anonchat-go/internal/domain"
)

// Client wraps the chat REST collaborator: conversation list, paged
// message history, fallback send and participant search. Plain
// request/response calls; all ordering hazards live on the event channel.
type Client struct {
	baseURL    string
	httpClient *http.Client
	credential func() string
}

// NewClient creates the collaborator client. credential is read per
// request so a refreshed token is picked up without rebuilding the client.
func NewClient(baseURL string, timeout time.Duration, credential func() string) *Client {
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		credential: credential,
	}
}

type conversationsResponse struct {
	Chats []domain.Conversation `json:"chats"`
}

type historyResponse struct {
	Messages []domain.Message `json:"messages"`
}

type sendResponse struct {
	Data domain.Message `json:"data"`
}

type searchResponse struct {
	Users []domain.Identity `json:"users"`
}

// Conversations fetches the conversation list.
func (c *Client) Conversations(ctx context.Context) ([]domain.Conversation, error) {
	var out conversationsResponse
	if err := c.get(ctx, "/chat/chats", nil, &out); err != nil {
		return nil, err
	}
	return out.Chats, nil
}

// History fetches one page of message history with a participant.
func (c *Client) History(ctx context.Context, userID string, page, limit int) ([]domain.Message, error) {
	q := url.Values{}
	q.Set("page", strconv.Itoa(page))
	q.Set("limit", strconv.Itoa(limit))

	var out historyResponse
	if err := c.get(ctx, "/chat/history/"+url.PathEscape(userID), q, &out); err != nil {
		return nil, err
	}
	for i := range out.Messages {
		out.Messages[i].Delivery = domain.DeliveryConfirmed
	}
	return out.Messages, nil
}

// SendMessage submits a message over the request/response fallback path
// and returns the confirmed record.
func (c *Client) SendMessage(ctx context.Context, receiverID, content string) (domain.Message, error) {
	body, err := json.Marshal(map[string]string{
		"receiverId": receiverID,
		"content":    content,
	})
	if err != nil {
		return domain.Message{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/send", bytes.NewReader(body))
	if err != nil {
		return domain.Message{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	var out sendResponse
	if err := c.do(req, &out); err != nil {
		return domain.Message{}, err
	}
	out.Data.Delivery = domain.DeliveryConfirmed
	return out.Data, nil
}

// SearchUsers searches participants by substring. An empty query returns
// everyone.
func (c *Client) SearchUsers(ctx context.Context, query string) ([]domain.Identity, error) {
	q := url.Values{}
	if query != "" {
		q.Set("query", query)
	}

	var out searchResponse
	if err := c.get(ctx, "/chat/search", q, &out); err != nil {
		return nil, err
	}
	return out.Users, nil
}

func (c *Client) get(ctx context.Context, path string, query url.Values, out interface{}) error {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}
	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out interface{}) error {
	req.Header.Set("Authorization", "Bearer "+c.credential())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request %s: %w", req.URL.Path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		return domain.ErrUnauthorized
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("request %s: status %d", req.URL.Path, resp.StatusCode)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", req.URL.Path, err)
	}
	return nil
}
