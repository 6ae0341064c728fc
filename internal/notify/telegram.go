package notify

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
)

// TelegramSender delivers notifications via the Telegram Bot API.
type TelegramSender struct {
	chatID string
	http   *resty.Client
}

// NewTelegramSender creates a sender posting to the given bot's chat.
func NewTelegramSender(token, chatID string) *TelegramSender {
	return &TelegramSender{
		chatID: chatID,
		http: resty.New().
			SetBaseURL("https://api.telegram.org/bot" + token).
			SetTimeout(10 * time.Second),
	}
}

// Send posts the message with the title in bold Markdown.
func (t *TelegramSender) Send(ctx context.Context, title, message string) error {
	resp, err := t.http.R().
		SetContext(ctx).
		SetBody(map[string]string{
			"chat_id":    t.chatID,
			"text":       fmt.Sprintf("*%s*\n%s", title, message),
			"parse_mode": "Markdown",
		}).
		Post("/sendMessage")
	if err != nil {
		return fmt.Errorf("telegram: send message: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return fmt.Errorf("telegram: send message: status %d: %s",
			resp.StatusCode(), resp.String())
	}
	return nil
}

func (t *TelegramSender) Name() string { return "telegram" }
