// Package notify delivers user-facing status messages through the chat
// service that fronts the transfer flow.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"go.uber.org/zap"
)

// Notifier sends and edits status messages in a chat.
type Notifier interface {
	// Send posts a new message and returns its message id.
	Send(ctx context.Context, chatID int64, text string) (int64, error)
	// Edit rewrites a previously sent message in place.
	Edit(ctx context.Context, chatID, messageID int64, text string) error
}

// ChatClient talks to a Telegram-compatible bot API.
type ChatClient struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

var _ Notifier = (*ChatClient)(nil)

func NewChatClient(baseURL, token string) *ChatClient {
	if baseURL == "" {
		baseURL = "https://api.telegram.org"
	}
	return &ChatClient{
		baseURL: baseURL,
		token:   token,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

func (c *ChatClient) Send(ctx context.Context, chatID int64, text string) (int64, error) {
	params := url.Values{
		"chat_id":    {strconv.FormatInt(chatID, 10)},
		"text":       {text},
		"parse_mode": {"HTML"},
	}
	var resp struct {
		OK     bool `json:"ok"`
		Result struct {
			MessageID int64 `json:"message_id"`
		} `json:"result"`
	}
	if err := c.call(ctx, "sendMessage", params, &resp); err != nil {
		return 0, err
	}
	return resp.Result.MessageID, nil
}

func (c *ChatClient) Edit(ctx context.Context, chatID, messageID int64, text string) error {
	params := url.Values{
		"chat_id":    {strconv.FormatInt(chatID, 10)},
		"message_id": {strconv.FormatInt(messageID, 10)},
		"text":       {text},
		"parse_mode": {"HTML"},
	}
	var resp struct {
		OK bool `json:"ok"`
	}
	return c.call(ctx, "editMessageText", params, &resp)
}

func (c *ChatClient) call(ctx context.Context, method string, params url.Values, out any) error {
	endpoint := fmt.Sprintf("%s/bot%s/%s?%s", c.baseURL, c.token, method, params.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, nil)
	if err != nil {
		return err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("chat %s: %w", method, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("chat %s returned %d", method, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("chat %s: decode: %w", method, err)
	}
	return nil
}

// Noop swallows notifications. Useful when no chat integration is configured.
type Noop struct{}

var _ Notifier = Noop{}

func (Noop) Send(_ context.Context, chatID int64, text string) (int64, error) {
	zap.L().Debug("notification dropped", zap.Int64("chat_id", chatID), zap.String("text", text))
	return 0, nil
}

func (Noop) Edit(context.Context, int64, int64, string) error { return nil }
