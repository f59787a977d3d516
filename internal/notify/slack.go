package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/LJTian/hostingnews/internal/collector"
)

const (
	slackUsername  = "hosting news bot"
	slackIconEmoji = ":slack:"
	// Slack 单条消息最多 50 个 block
	slackMaxBlocks = 50
	// 错误信息里保留的响应体长度
	slackBodyExcerpt = 512
)

type slackText struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type slackBlock struct {
	Type string    `json:"type"`
	Text slackText `json:"text"`
}

type slackPayload struct {
	UnfurlLinks bool         `json:"unfurl_links"`
	Username    string       `json:"username"`
	IconEmoji   string       `json:"icon_emoji"`
	Blocks      []slackBlock `json:"blocks"`
}

// Slack 通过 Incoming Webhook 推送
type Slack struct {
	webhookURL string
	client     *http.Client
	timeout    time.Duration
}

var _ Dispatcher = (*Slack)(nil)

func NewSlack(webhookURL string, client *http.Client, timeout time.Duration) *Slack {
	if client == nil {
		client = http.DefaultClient
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Slack{webhookURL: webhookURL, client: client, timeout: timeout}
}

// SlackLine 单条更新的 mrkdwn 文本：[source] date <url|title>
func SlackLine(sourceName string, it collector.Item) string {
	return fmt.Sprintf("[%s] %s <%s|%s>", sourceName, it.Date, it.URL, it.Title)
}

// buildSlackPayloads 每 50 条拆成一个 payload。
// 后面的 payload 发送失败时整批不写快照，已发出的前几段下一轮会再发一次。
func buildSlackPayloads(sourceName string, items []collector.Item) []slackPayload {
	var payloads []slackPayload
	for _, part := range chunk(items, slackMaxBlocks) {
		blocks := make([]slackBlock, 0, len(part))
		for _, it := range part {
			blocks = append(blocks, slackBlock{
				Type: "section",
				Text: slackText{Type: "mrkdwn", Text: SlackLine(sourceName, it)},
			})
		}
		payloads = append(payloads, slackPayload{
			UnfurlLinks: true,
			Username:    slackUsername,
			IconEmoji:   slackIconEmoji,
			Blocks:      blocks,
		})
	}
	return payloads
}

func (s *Slack) Dispatch(ctx context.Context, sourceName string, items []collector.Item) error {
	for _, p := range buildSlackPayloads(sourceName, items) {
		if err := s.post(ctx, p); err != nil {
			return collector.NewError(collector.KindDelivery, sourceName, err)
		}
	}
	return nil
}

func (s *Slack) post(ctx context.Context, p slackPayload) error {
	body, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.webhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json; charset=UTF-8")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("post webhook: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		excerpt, _ := io.ReadAll(io.LimitReader(resp.Body, slackBodyExcerpt))
		return fmt.Errorf("slack status %d: %s", resp.StatusCode, strings.TrimSpace(string(excerpt)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}
