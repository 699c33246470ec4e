// Package webhook serves the LINE Messaging API callback used to discover the
// userIds that alerts are pushed to.
package webhook

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

const maxBodyBytes = 1 << 20

// ErrInvalidSignature is returned when X-Line-Signature does not match the body.
var ErrInvalidSignature = errors.New("webhook: invalid signature")

// Replier answers a webhook event through its reply token.
type Replier interface {
	Reply(ctx context.Context, replyToken, text string) error
}

// Event is the subset of a LINE webhook event the handler reads.
type Event struct {
	Type       string `json:"type"`
	ReplyToken string `json:"replyToken"`
	Source     struct {
		Type   string `json:"type"`
		UserID string `json:"userId"`
	} `json:"source"`
	Message struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"message"`
}

type payload struct {
	Destination string  `json:"destination"`
	Events      []Event `json:"events"`
}

// Handler verifies and dispatches LINE callbacks.
type Handler struct {
	secret  []byte
	replier Replier
	logger  zerolog.Logger
}

// NewHandler builds a callback handler. replier may be nil, in which case
// events are only logged.
func NewHandler(channelSecret string, replier Replier, logger zerolog.Logger) *Handler {
	return &Handler{
		secret:  []byte(channelSecret),
		replier: replier,
		logger:  logger.With().Str("component", "webhook").Logger(),
	}
}

// Verify checks a base64 HMAC-SHA256 signature of body.
func (h *Handler) Verify(body []byte, signature string) error {
	got, err := base64.StdEncoding.DecodeString(signature)
	if err != nil {
		return ErrInvalidSignature
	}
	mac := hmac.New(sha256.New, h.secret)
	mac.Write(body)
	if !hmac.Equal(got, mac.Sum(nil)) {
		return ErrInvalidSignature
	}
	return nil
}

// ServeHTTP implements the /callback endpoint.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		http.Error(w, "read body", http.StatusBadRequest)
		return
	}
	if err := h.Verify(body, r.Header.Get("X-Line-Signature")); err != nil {
		h.logger.Warn().Msg("rejected callback with invalid signature")
		http.Error(w, "invalid signature", http.StatusBadRequest)
		return
	}

	var p payload
	if err := json.Unmarshal(body, &p); err != nil {
		http.Error(w, "invalid payload", http.StatusBadRequest)
		return
	}

	for _, ev := range p.Events {
		h.handle(r.Context(), ev)
	}
	_, _ = w.Write([]byte("OK"))
}

func (h *Handler) handle(ctx context.Context, ev Event) {
	uid := ev.Source.UserID
	var reply string

	switch ev.Type {
	case "follow":
		h.logger.Info().Str("user_id", uid).Msg("follow event")
		reply = "加好友成功 ✅ 已記錄 userId"
	case "message":
		if ev.Message.Type != "text" {
			return
		}
		h.logger.Info().Str("user_id", uid).Str("text", ev.Message.Text).Msg("message event")
		reply = "收到訊息～你的 userId：" + uid
	default:
		h.logger.Debug().Str("type", ev.Type).Msg("ignored event")
		return
	}

	if h.replier == nil || ev.ReplyToken == "" {
		return
	}
	if err := h.replier.Reply(ctx, ev.ReplyToken, reply); err != nil {
		h.logger.Warn().Err(err).Str("user_id", uid).Msg("reply failed")
	}
}

// NewMux mounts /healthz, /callback and, when metrics is non-nil, /metrics.
func NewMux(callback http.Handler, metrics http.Handler) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("ok"))
	})
	mux.Handle("POST /callback", callback)
	if metrics != nil {
		mux.Handle("GET /metrics", metrics)
	}
	return mux
}

// Serve runs the HTTP server until ctx is cancelled.
func Serve(ctx context.Context, addr string, handler http.Handler, logger zerolog.Logger) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", addr).Msg("webhook server listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}
