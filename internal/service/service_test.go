package service

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"twscan/internal/chartcache"
	"twscan/internal/dedup"
	"twscan/internal/fetcher"
	"twscan/internal/indicator"
	"twscan/internal/metrics"
	"twscan/internal/resolver"
	"twscan/internal/rules"
)

type stubQuotes struct {
	quotes map[string]fetcher.Quote
	calls  int
}

func (s *stubQuotes) FetchQuotes(ctx context.Context, symbols []string) (map[string]fetcher.Quote, error) {
	s.calls++
	out := make(map[string]fetcher.Quote)
	for _, sym := range symbols {
		if q, ok := s.quotes[sym]; ok {
			out[sym] = q
		}
	}
	return out, nil
}

type risingCharts struct{}

func (risingCharts) FetchChart(ctx context.Context, symbol, span, interval string) (fetcher.Series, error) {
	closes := make([]float64, 60)
	for i := range closes {
		closes[i] = float64(100 + i)
	}
	return fetcher.Series{Timestamps: make([]int64, 60), Close: indicator.Floats(closes...)}, nil
}

type recordingNotifier struct {
	err  error
	sent []string
}

func (r *recordingNotifier) Send(ctx context.Context, text string) error {
	r.sent = append(r.sent, text)
	return r.err
}

func quoteFor(symbol, price string) fetcher.Quote {
	return fetcher.Quote{
		Symbol:      symbol,
		DisplayName: "台積電",
		Exchange:    "Taiwan",
		Price:       decimal.NewNullDecimal(decimal.RequireFromString(price)),
	}
}

func newTestService(quotes *stubQuotes, notifier *recordingNotifier, batch int) (*Service, *metrics.Metrics) {
	m := metrics.New()
	engine := rules.NewEngine(rules.Toggles{rules.R2DailyMA34Up: true, rules.R4DailyMA5Up: true}, rules.Params{})
	svc := New(Options{
		BatchSize:     batch,
		QuoteChunk:    2,
		DailyRefresh:  time.Hour,
		WeeklyRefresh: time.Hour,
		MACDFast:      12,
		MACDSlow:      26,
		MACDSignal:    9,
		Location:      time.UTC,
	}, Deps{
		Quotes:   quotes,
		Charts:   chartcache.New(risingCharts{}, zerolog.Nop()),
		Engine:   engine,
		Dedup:    dedup.New(dedup.FixedWindow{Window: 30 * time.Minute}),
		Notifier: notifier,
		Metrics:  m,
	}, zerolog.Nop())
	svc.now = func() time.Time { return time.Date(2024, 5, 6, 10, 30, 0, 0, time.UTC) }
	return svc, m
}

func universe(codes ...string) []resolver.Symbol {
	out := make([]resolver.Symbol, len(codes))
	for i, c := range codes {
		out[i] = resolver.Symbol{Code: c, Qualified: c + ".TW"}
	}
	return out
}

func TestNextBatchRotates(t *testing.T) {
	svc, _ := newTestService(&stubQuotes{}, &recordingNotifier{}, 2)
	svc.SetUniverse(resolver.Map{Symbols: universe("1", "2", "3", "4", "5")})

	want := [][]string{{"1", "2"}, {"3", "4"}, {"5"}, {"1", "2"}}
	for round, expected := range want {
		batch := svc.NextBatch()
		if len(batch) != len(expected) {
			t.Fatalf("第 %d 轮期望 %v, 实际 %v", round, expected, batch)
		}
		for i := range expected {
			if batch[i].Code != expected[i] {
				t.Fatalf("第 %d 轮期望 %v, 实际 %v", round, expected, batch)
			}
		}
	}
}

func TestNextBatchEmptyUniverse(t *testing.T) {
	svc, _ := newTestService(&stubQuotes{}, &recordingNotifier{}, 2)
	if batch := svc.NextBatch(); batch != nil {
		t.Fatalf("空清单应返回 nil, 实际 %v", batch)
	}
	if err := svc.ProcessCycle(context.Background(), time.Now()); err != nil {
		t.Fatalf("空清单不应报错: %v", err)
	}
}

func TestProcessBatchSendsConsolidatedAlert(t *testing.T) {
	quotes := &stubQuotes{quotes: map[string]fetcher.Quote{"2330.TW": quoteFor("2330.TW", "585")}}
	notifier := &recordingNotifier{}
	svc, m := newTestService(quotes, notifier, 10)

	attempted := svc.ProcessBatch(context.Background(), universe("2330", "9999"))
	if attempted != 1 || len(notifier.sent) != 1 {
		t.Fatalf("应发送一条合并告警, 实际 %d", len(notifier.sent))
	}
	msg := notifier.sent[0]
	if !strings.Contains(msg, "R2 日34MA上揚；R4 日5MA上揚") {
		t.Fatalf("告警应按顺序合并规则提示:\n%s", msg)
	}
	if !strings.HasPrefix(msg, "【觸發】台積電 (2330) Taiwan") {
		t.Fatalf("告警标题不正确:\n%s", msg)
	}
	if quotes.calls != 1 {
		t.Fatalf("两只代码按 chunk=2 应只请求一次报价, 实际 %d", quotes.calls)
	}
	if got := testutil.ToFloat64(m.Pushes.WithLabelValues(metrics.PushSent)); got != 1 {
		t.Fatalf("sent 计数应为 1, 实际 %v", got)
	}
	if got := testutil.ToFloat64(m.RuleFires.WithLabelValues("R2")); got != 1 {
		t.Fatalf("R2 触发计数应为 1, 实际 %v", got)
	}
}

func TestProcessBatchRespectsCooldown(t *testing.T) {
	quotes := &stubQuotes{quotes: map[string]fetcher.Quote{"2330.TW": quoteFor("2330.TW", "585")}}
	notifier := &recordingNotifier{}
	svc, m := newTestService(quotes, notifier, 10)

	svc.ProcessBatch(context.Background(), universe("2330"))
	svc.ProcessBatch(context.Background(), universe("2330"))

	if len(notifier.sent) != 1 {
		t.Fatalf("冷却期内不应重复推送, 实际 %d 条", len(notifier.sent))
	}
	if got := testutil.ToFloat64(m.Pushes.WithLabelValues(metrics.PushSuppressed)); got != 2 {
		t.Fatalf("两条规则应被抑制, 实际 %v", got)
	}
}

func TestFailedSendStillConsumesCooldown(t *testing.T) {
	quotes := &stubQuotes{quotes: map[string]fetcher.Quote{"2330.TW": quoteFor("2330.TW", "585")}}
	notifier := &recordingNotifier{err: errors.New("line down")}
	svc, m := newTestService(quotes, notifier, 10)

	svc.ProcessBatch(context.Background(), universe("2330"))
	notifier.err = nil
	svc.ProcessBatch(context.Background(), universe("2330"))

	if len(notifier.sent) != 1 {
		t.Fatalf("推送失败后冷却仍应生效, 实际尝试 %d 次", len(notifier.sent))
	}
	if got := testutil.ToFloat64(m.Pushes.WithLabelValues(metrics.PushFailed)); got != 1 {
		t.Fatalf("failed 计数应为 1, 实际 %v", got)
	}
}

func TestFormatAlert(t *testing.T) {
	quote := fetcher.Quote{
		DisplayName:   "鴻海",
		Exchange:      "Taiwan",
		Price:         decimal.NewNullDecimal(decimal.RequireFromString("152.5")),
		PreviousClose: decimal.NewNullDecimal(decimal.RequireFromString("150")),
		ChangePercent: decimal.NewNullDecimal(decimal.RequireFromString("1.66667")),
	}
	signals := []rules.Signal{{Rule: rules.R6PriceAboveFloor, Note: "R6 價>20"}, {Rule: rules.R4DailyMA5Up, Note: "R4 日5MA上揚"}}
	at := time.Date(2024, 5, 6, 13, 5, 9, 0, time.UTC)

	want := "【觸發】鴻海 (2317) Taiwan\n" +
		"價：152.5（昨收：150，漲跌：1.67%）\n" +
		"R6 價>20；R4 日5MA上揚\n" +
		"時間：2024-05-06 13:05:09"
	if got := FormatAlert("2317", quote, signals, at); got != want {
		t.Fatalf("告警格式不正确:\n%s\n期望:\n%s", got, want)
	}
}

func TestFormatAlertMissingFields(t *testing.T) {
	got := FormatAlert("6488", fetcher.Quote{}, []rules.Signal{{Note: "R2 日34MA上揚"}}, time.Unix(0, 0).UTC())
	if !strings.HasPrefix(got, "【觸發】6488 (6488) \n價：-（昨收：-，漲跌：0.00%）") {
		t.Fatalf("缺失字段应有占位:\n%s", got)
	}
}
