// Package notify provides NotificationPort implementations for delivering
// alerts to external messaging providers.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/goquant/arbsentinel/internal/domain"
)

const telegramAPIBase = "https://api.telegram.org"

// TelegramSender delivers alerts via the Telegram Bot API. A channel name is
// the target chat ID; when empty the configured default chat is used.
type TelegramSender struct {
	token         string
	defaultChatID string
	apiBase       string
	client        *http.Client
}

var _ domain.NotificationPort = (*TelegramSender)(nil)

// NewTelegramSender creates a TelegramSender for the given bot token and
// default chat ID. It uses a default HTTP client with a 10-second timeout.
func NewTelegramSender(token, defaultChatID string) *TelegramSender {
	return &TelegramSender{
		token:         token,
		defaultChatID: defaultChatID,
		apiBase:       telegramAPIBase,
		client:        &http.Client{Timeout: 10 * time.Second},
	}
}

type telegramResponse struct {
	OK          bool   `json:"ok"`
	Description string `json:"description"`
	Result      struct {
		MessageID int64 `json:"message_id"`
	} `json:"result"`
}

// Send posts text to channel using the sendMessage API and returns a
// reference to the created message so it can later be edited in place.
func (t *TelegramSender) Send(ctx context.Context, channel, text string) (domain.MessageRef, error) {
	chatID := channel
	if chatID == "" {
		chatID = t.defaultChatID
	}

	payload := map[string]string{
		"chat_id":    chatID,
		"text":       text,
		"parse_mode": "Markdown",
	}

	var result telegramResponse
	if err := t.call(ctx, "sendMessage", payload, &result); err != nil {
		return domain.MessageRef{}, err
	}
	return domain.MessageRef{
		Channel:   chatID,
		MessageID: strconv.FormatInt(result.Result.MessageID, 10),
	}, nil
}

// Edit replaces the text of a previously sent message via editMessageText.
// Messages Telegram refuses to edit (too old, deleted by the user) yield
// ErrNotEditable so the caller can fall back to a fresh send.
func (t *TelegramSender) Edit(ctx context.Context, ref domain.MessageRef, text string) error {
	payload := map[string]string{
		"chat_id":    ref.Channel,
		"message_id": ref.MessageID,
		"text":       text,
		"parse_mode": "Markdown",
	}

	var result telegramResponse
	err := t.call(ctx, "editMessageText", payload, &result)
	if err != nil && isNotEditable(err.Error()) {
		return fmt.Errorf("telegram: edit message %s: %w", ref.MessageID, domain.ErrNotEditable)
	}
	return err
}

// Name returns the sender identifier.
func (t *TelegramSender) Name() string {
	return "telegram"
}

func (t *TelegramSender) call(ctx context.Context, method string, payload map[string]string, out *telegramResponse) error {
	url := fmt.Sprintf("%s/bot%s/%s", t.apiBase, t.token, method)

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("telegram: marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("telegram: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return fmt.Errorf("telegram: %s request: %w", method, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
	if err != nil {
		return fmt.Errorf("telegram: read response: %w", err)
	}

	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("telegram: decode response (status %d): %w", resp.StatusCode, err)
	}
	if !out.OK {
		if resp.StatusCode == http.StatusTooManyRequests {
			return fmt.Errorf("telegram: %s: %s: %w", method, out.Description, domain.ErrRateLimited)
		}
		return fmt.Errorf("telegram: %s failed: %s", method, out.Description)
	}
	return nil
}

// isNotEditable matches the Bot API error descriptions for messages that can
// no longer be edited.
func isNotEditable(desc string) bool {
	lower := strings.ToLower(desc)
	return strings.Contains(lower, "message can't be edited") ||
		strings.Contains(lower, "message to edit not found")
}
