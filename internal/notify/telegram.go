package notify

import (
	"context"
	"fmt"
	"html"
	"net/http"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/LJTian/hostingnews/internal/collector"
)

// Telegram 单条消息上限 4096 字符，留一点余量
const telegramMaxText = 4000

// Telegram 通过 bot 发到固定的 chat
type Telegram struct {
	api    *tgbotapi.BotAPI
	chatID int64
}

var _ Dispatcher = (*Telegram)(nil)

// NewTelegram 创建时会调用一次 getMe 校验 token
func NewTelegram(token string, chatID int64, timeout time.Duration) (*Telegram, error) {
	return newTelegram(token, chatID, tgbotapi.APIEndpoint, &http.Client{Timeout: timeout})
}

func newTelegram(token string, chatID int64, endpoint string, client *http.Client) (*Telegram, error) {
	api, err := tgbotapi.NewBotAPIWithClient(token, endpoint, client)
	if err != nil {
		return nil, fmt.Errorf("create telegram bot: %w", err)
	}
	return &Telegram{api: api, chatID: chatID}, nil
}

// TelegramLines 每条更新一行 HTML
func TelegramLines(sourceName string, items []collector.Item) []string {
	lines := make([]string, 0, len(items))
	for _, it := range items {
		lines = append(lines, fmt.Sprintf(`[%s] %s <a href="%s">%s</a>`,
			html.EscapeString(sourceName),
			html.EscapeString(it.Date),
			html.EscapeString(it.URL),
			html.EscapeString(it.Title),
		))
	}
	return lines
}

// splitMessages 按行拼接，单条消息不超过 limit
func splitMessages(lines []string, limit int) []string {
	var (
		out []string
		b   strings.Builder
	)
	for _, line := range lines {
		if b.Len() > 0 && b.Len()+1+len(line) > limit {
			out = append(out, b.String())
			b.Reset()
		}
		if b.Len() > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(line)
	}
	if b.Len() > 0 {
		out = append(out, b.String())
	}
	return out
}

func (t *Telegram) Dispatch(ctx context.Context, sourceName string, items []collector.Item) error {
	if len(items) == 0 {
		return nil
	}
	for _, text := range splitMessages(TelegramLines(sourceName, items), telegramMaxText) {
		if err := ctx.Err(); err != nil {
			return collector.NewError(collector.KindDelivery, sourceName, err)
		}
		msg := tgbotapi.NewMessage(t.chatID, text)
		msg.ParseMode = tgbotapi.ModeHTML
		msg.DisableWebPagePreview = true
		if _, err := t.api.Send(msg); err != nil {
			return collector.NewError(collector.KindDelivery, sourceName, fmt.Errorf("telegram send: %w", err))
		}
	}
	return nil
}
