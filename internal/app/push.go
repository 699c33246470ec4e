package app

import (
	"context"
	"strings"
)

const defaultTestMessage = "測試推播成功！"

// TestPush 通过已配置的渠道发送一条测试消息。
func (a *App) TestPush(ctx context.Context, text string) error {
	notifier, err := a.newNotifier()
	if err != nil {
		return err
	}

	if strings.TrimSpace(text) == "" {
		text = defaultTestMessage
	}
	if err := notifier.Send(ctx, text); err != nil {
		return err
	}

	a.Logger.Info().Strs("channels", a.Config.Alerting.Channels).Msg("测试消息已发送")
	return nil
}
