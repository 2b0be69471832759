package notifications

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// TelegramAPI is the Bot API root.
const TelegramAPI = "https://api.telegram.org"

type TelegramNotifier struct {
	token   string
	chatID  string
	title   string
	baseURL string
	client  *http.Client
}

func NewTelegramNotifier(token, chatID string) *TelegramNotifier {
	return &TelegramNotifier{
		token:   token,
		chatID:  chatID,
		title:   "Futures Bot",
		baseURL: TelegramAPI,
		client:  &http.Client{Timeout: 15 * time.Second},
	}
}

// SetBaseURL points the notifier at another Bot API host.
func (t *TelegramNotifier) SetBaseURL(u string) { t.baseURL = strings.TrimRight(u, "/") }

// SetTitle changes the alert header, usually to the bot name.
func (t *TelegramNotifier) SetTitle(title string) { t.title = title }

// ChatID is the chat alerts are delivered to.
func (t *TelegramNotifier) ChatID() string { return t.chatID }

// Endpoint builds a Bot API method URL.
func (t *TelegramNotifier) Endpoint(method string) string {
	return fmt.Sprintf("%s/bot%s/%s", t.baseURL, t.token, method)
}

// Client is the HTTP client shared with the command poller.
func (t *TelegramNotifier) Client() *http.Client { return t.client }

func (t *TelegramNotifier) SendAlert(level, message string) error {
	emoji := "ℹ️"
	switch level {
	case LevelWarning:
		emoji = "⚠️"
	case LevelError:
		emoji = "🚨"
	case LevelSuccess:
		emoji = "✅"
	}

	text := fmt.Sprintf("%s *%s*\n\n%s", emoji, EscapeMarkdown(t.title), message)
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return t.Send(ctx, t.chatID, text, true)
}

type apiResponse struct {
	OK          bool            `json:"ok"`
	Description string          `json:"description"`
	Result      json.RawMessage `json:"result"`
}

// Send posts a message to chatID.
func (t *TelegramNotifier) Send(ctx context.Context, chatID, text string, markdown bool) error {
	data := url.Values{}
	data.Set("chat_id", chatID)
	data.Set("text", text)
	if markdown {
		data.Set("parse_mode", "Markdown")
	}
	_, err := t.Call(ctx, "sendMessage", data)
	return err
}

// Call invokes a Bot API method with form parameters and returns its result payload.
func (t *TelegramNotifier) Call(ctx context.Context, method string, params url.Values) (json.RawMessage, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.Endpoint(method), strings.NewReader(params.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var body apiResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("telegram %s: status %d: %w", method, resp.StatusCode, err)
	}
	if resp.StatusCode != http.StatusOK || !body.OK {
		return nil, fmt.Errorf("telegram API returned status %d: %s", resp.StatusCode, body.Description)
	}
	return body.Result, nil
}

var markdownEscaper = strings.NewReplacer("_", "\\_", "*", "\\*", "`", "\\`", "[", "\\[")

// EscapeMarkdown escapes text for Telegram's legacy Markdown mode.
func EscapeMarkdown(s string) string {
	return markdownEscaper.Replace(s)
}
