// Package telegram is a minimal Bot API client covering the calls the file
// workflow needs: admin messages, callback answers and message edits.
package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	pkgerrors "github.com/angelmondragon/fulfillment-backend/pkg/errors"
)

const (
	defaultBaseURL              = "https://api.telegram.org"
	responseBodyReadLimit int64 = 1024
)

var errTokenRequired = errors.New("telegram bot token is required")

// Client calls the Telegram Bot API.
type Client struct {
	httpClient *http.Client
	baseURL    string
	token      string
}

// Option configures optional client behavior.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithBaseURL overrides the Bot API base URL.
func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		if trimmed := strings.TrimSpace(baseURL); trimmed != "" {
			c.baseURL = trimmed
		}
	}
}

// NewClient builds a Bot API client for the given token.
func NewClient(token string, opts ...Option) (*Client, error) {
	trimmed := strings.TrimSpace(token)
	if trimmed == "" {
		return nil, errTokenRequired
	}
	client := &Client{
		token:      trimmed,
		baseURL:    defaultBaseURL,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(client)
		}
	}
	return client, nil
}

// InlineButton is a single callback button.
type InlineButton struct {
	Text         string `json:"text"`
	CallbackData string `json:"callback_data"`
}

// InlineKeyboard is the reply_markup attached to a message.
type InlineKeyboard struct {
	Rows [][]InlineButton `json:"inline_keyboard"`
}

type sendMessageRequest struct {
	ChatID      int64           `json:"chat_id"`
	Text        string          `json:"text"`
	ReplyMarkup *InlineKeyboard `json:"reply_markup,omitempty"`
}

type editMessageRequest struct {
	ChatID      int64           `json:"chat_id"`
	MessageID   int64           `json:"message_id"`
	Text        string          `json:"text"`
	ReplyMarkup *InlineKeyboard `json:"reply_markup,omitempty"`
}

type answerCallbackRequest struct {
	CallbackQueryID string `json:"callback_query_id"`
	Text            string `json:"text,omitempty"`
}

// SendMessage posts text to chatID.
func (c *Client) SendMessage(ctx context.Context, chatID int64, text string, markup *InlineKeyboard) error {
	if strings.TrimSpace(text) == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "message text is required")
	}
	return c.call(ctx, "sendMessage", sendMessageRequest{ChatID: chatID, Text: text, ReplyMarkup: markup})
}

// EditMessageText replaces the text and buttons of an existing message.
func (c *Client) EditMessageText(ctx context.Context, chatID, messageID int64, text string, markup *InlineKeyboard) error {
	if messageID == 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "message id is required")
	}
	return c.call(ctx, "editMessageText", editMessageRequest{ChatID: chatID, MessageID: messageID, Text: text, ReplyMarkup: markup})
}

// AnswerCallbackQuery acknowledges a button press so the client stops spinning.
func (c *Client) AnswerCallbackQuery(ctx context.Context, callbackID, text string) error {
	if strings.TrimSpace(callbackID) == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "callback query id is required")
	}
	return c.call(ctx, "answerCallbackQuery", answerCallbackRequest{CallbackQueryID: callbackID, Text: text})
}

func (c *Client) call(ctx context.Context, method string, body any) error {
	if c == nil {
		return pkgerrors.New(pkgerrors.CodeDependency, "telegram client not configured")
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "marshal "+method+" request")
	}
	url := fmt.Sprintf("%s/bot%s/%s", strings.TrimRight(c.baseURL, "/"), c.token, method)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "build "+method+" request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "execute "+method+" request")
	}
	defer func() { _ = resp.Body.Close() }()

	var apiResp struct {
		OK          bool   `json:"ok"`
		Description string `json:"description"`
	}
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, responseBodyReadLimit))
	if resp.StatusCode != http.StatusOK {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(raw))), method+" request failed")
	}
	if err := json.Unmarshal(raw, &apiResp); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode "+method+" response")
	}
	if !apiResp.OK {
		return pkgerrors.New(pkgerrors.CodeDependency, method+" rejected: "+apiResp.Description)
	}
	return nil
}
