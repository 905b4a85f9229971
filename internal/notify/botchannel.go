package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"questward/internal/types"
	"questward/internal/upstream"
)

// BotChannel delivers notifications through the chat bot's HTTP API. It is
// the production types.Deliverer; send failures surface as AppErrors and are
// never retried here; the rule engine's counters handle re-delivery policy.
type BotChannel struct {
	baseURL string
	token   string
	client  *upstream.BaseClient
}

var _ types.Deliverer = (*BotChannel)(nil)

// NewBotChannel creates a BotChannel for the given bot API base URL and token.
func NewBotChannel(baseURL, token string, client *upstream.BaseClient) *BotChannel {
	return &BotChannel{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		client:  client,
	}
}

// sendResponse is the bot API's reply to a send call.
type sendResponse struct {
	OK        bool   `json:"ok"`
	MessageID string `json:"message_id"`
	Error     string `json:"error"`
}

// Deliver sends one message to the user and returns the provider message
// reference.
func (c *BotChannel) Deliver(ctx context.Context, userID string, content string) (string, error) {
	body, err := json.Marshal(map[string]string{
		"user_id": userID,
		"text":    content,
	})
	if err != nil {
		return "", types.NewAppError(types.ErrCodeInternalUnexpected, "failed to encode message", err)
	}

	u := fmt.Sprintf("%s/bot%s/send_message", c.baseURL, c.token)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, strings.NewReader(string(body)))
	if err != nil {
		return "", types.NewAppError(types.ErrCodeInternalUnexpected, "failed to build send request", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return "", types.NewAppError(types.ErrCodeDeliveryFailed, "bot API unreachable", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", types.NewAppError(
			types.ErrCodeDeliveryFailed,
			fmt.Sprintf("bot API returned status %d", resp.StatusCode),
			nil,
		)
	}

	var parsed sendResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", types.NewAppError(types.ErrCodeDeliveryFailed, "malformed bot API response", err)
	}
	if !parsed.OK {
		return "", types.NewAppError(
			types.ErrCodeDeliveryFailed,
			fmt.Sprintf("bot API rejected message: %s", parsed.Error),
			nil,
		)
	}
	return parsed.MessageID, nil
}
