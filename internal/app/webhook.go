package app

import (
	"context"
	"errors"
	"os/signal"
	"syscall"

	"twscan/internal/metrics"
	"twscan/internal/webhook"
)

// ServeWebhook runs the LINE callback server until interrupted.
func (a *App) ServeWebhook(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	secret := a.Config.Alerting.Line.ChannelSecret
	if secret == "" {
		return errors.New("alerting.line.channel_secret 必须配置")
	}

	var replier webhook.Replier
	if a.Config.Alerting.Line.ChannelAccessToken != "" {
		replier = a.newLine()
	} else {
		a.Logger.Warn().Msg("channel_access_token not set; callbacks are logged without replies")
	}

	m := metrics.New()
	mux := webhook.NewMux(webhook.NewHandler(secret, replier, a.Logger), m.Handler())
	return webhook.Serve(ctx, a.Config.Server.Listen, mux, a.Logger)
}
