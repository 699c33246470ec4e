package alerting

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

	"github.com/rs/zerolog"
)

const defaultLineAPIBase = "https://api.line.me"

// LineNotifier 通过 LINE Messaging API 的 push 接口逐个推送给接收者。
type LineNotifier struct {
	accessToken string
	recipients  []string
	baseURL     string
	client      *http.Client
	logger      zerolog.Logger
}

// NewLineNotifier 构造 LINE 推送器。
func NewLineNotifier(accessToken string, recipients []string, baseURL string, timeout time.Duration, logger zerolog.Logger) *LineNotifier {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	if baseURL == "" {
		baseURL = defaultLineAPIBase
	}

	return &LineNotifier{
		accessToken: accessToken,
		recipients:  recipients,
		baseURL:     strings.TrimRight(baseURL, "/"),
		client:      &http.Client{Timeout: timeout},
		logger:      logger.With().Str("component", "alert_line").Logger(),
	}
}

type lineMessage struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type linePushRequest struct {
	To       string        `json:"to"`
	Messages []lineMessage `json:"messages"`
}

type lineReplyRequest struct {
	ReplyToken string        `json:"replyToken"`
	Messages   []lineMessage `json:"messages"`
}

// Send 对每个接收者发送一次 push，返回全部失败的合并错误。
func (n *LineNotifier) Send(ctx context.Context, text string) error {
	if len(n.recipients) == 0 {
		return errors.New("line: no recipients configured")
	}

	var errs []error
	for _, to := range n.recipients {
		if err := n.push(ctx, to, text); err != nil {
			n.logger.Warn().Err(err).Str("to", to).Msg("LINE 推送失败")
			errs = append(errs, err)
			continue
		}
		n.logger.Info().Str("to", to).Msg("告警已发送 (LINE)")
	}
	return errors.Join(errs...)
}

func (n *LineNotifier) push(ctx context.Context, to, text string) error {
	return n.post(ctx, "/v2/bot/message/push", linePushRequest{
		To:       to,
		Messages: []lineMessage{{Type: "text", Text: text}},
	})
}

// Reply 使用 reply token 回复 webhook 事件。
func (n *LineNotifier) Reply(ctx context.Context, replyToken, text string) error {
	return n.post(ctx, "/v2/bot/message/reply", lineReplyRequest{
		ReplyToken: replyToken,
		Messages:   []lineMessage{{Type: "text", Text: text}},
	})
}

func (n *LineNotifier) post(ctx context.Context, path string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal line payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create line request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+n.accessToken)

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send line request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("line 响应码异常: %d %s", resp.StatusCode, strings.TrimSpace(string(detail)))
	}
	return nil
}

var _ Notifier = (*LineNotifier)(nil)
