package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"twscan/internal/alerting"
	"twscan/internal/chartcache"
	"twscan/internal/dedup"
	"twscan/internal/fetcher"
	"twscan/internal/indicator"
	"twscan/internal/metrics"
	"twscan/internal/resolver"
	"twscan/internal/rules"
	"twscan/internal/scheduler"
)

const (
	dailyInterval  = "1d"
	weeklyInterval = "1wk"
)

// Options tune batch processing.
type Options struct {
	BatchSize     int
	QuoteChunk    int
	DailySpan     string
	WeeklySpan    string
	DailyRefresh  time.Duration
	WeeklyRefresh time.Duration
	MACDFast      int
	MACDSlow      int
	MACDSignal    int
	Location      *time.Location
}

// Service orchestrates quote fetching, rule evaluation and alerting over a
// rotating window of the resolved universe.
type Service struct {
	scheduler *scheduler.Scheduler
	quotes    fetcher.QuoteFetcher
	charts    *chartcache.Cache
	engine    *rules.Engine
	dedup     *dedup.Deduplicator
	notifier  alerting.Notifier
	metrics   *metrics.Metrics
	logger    zerolog.Logger

	opts    Options
	symbols []resolver.Symbol
	cursor  int
	now     func() time.Time
}

// Deps groups the collaborators the service owns or drives.
type Deps struct {
	Scheduler *scheduler.Scheduler
	Quotes    fetcher.QuoteFetcher
	Charts    *chartcache.Cache
	Engine    *rules.Engine
	Dedup     *dedup.Deduplicator
	Notifier  alerting.Notifier
	Metrics   *metrics.Metrics
}

// New constructs the scanning service.
func New(opts Options, deps Deps, logger zerolog.Logger) *Service {
	if opts.BatchSize <= 0 {
		opts.BatchSize = 200
	}
	if opts.QuoteChunk <= 0 {
		opts.QuoteChunk = 50
	}
	if opts.DailySpan == "" {
		opts.DailySpan = "8mo"
	}
	if opts.WeeklySpan == "" {
		opts.WeeklySpan = "5y"
	}
	if opts.Location == nil {
		opts.Location = time.Local
	}
	if deps.Metrics == nil {
		deps.Metrics = metrics.New()
	}

	return &Service{
		scheduler: deps.Scheduler,
		quotes:    deps.Quotes,
		charts:    deps.Charts,
		engine:    deps.Engine,
		dedup:     deps.Dedup,
		notifier:  deps.Notifier,
		metrics:   deps.Metrics,
		logger:    logger.With().Str("component", "service").Logger(),
		opts:      opts,
		now:       time.Now,
	}
}

// SetUniverse replaces the rotation with the resolved symbols and resets the cursor.
func (s *Service) SetUniverse(m resolver.Map) {
	s.symbols = append([]resolver.Symbol(nil), m.Symbols...)
	s.cursor = 0
	s.metrics.UniverseSymbols.Set(float64(len(s.symbols)))
}

// Run begins the paced scanning loop.
func (s *Service) Run(ctx context.Context) error {
	if s.scheduler == nil {
		return fmt.Errorf("scheduler not configured")
	}
	return s.scheduler.Run(ctx, s.ProcessCycle)
}

// NextBatch returns the next window of the rotation, wrapping to the start once
// the cursor runs past the end.
func (s *Service) NextBatch() []resolver.Symbol {
	if len(s.symbols) == 0 {
		return nil
	}
	if s.cursor >= len(s.symbols) {
		s.cursor = 0
	}
	end := min(s.cursor+s.opts.BatchSize, len(s.symbols))
	batch := s.symbols[s.cursor:end]
	s.cursor += s.opts.BatchSize
	return batch
}

// ProcessCycle 处理一轮扫描。
func (s *Service) ProcessCycle(ctx context.Context, started time.Time) error {
	batch := s.NextBatch()
	if len(batch) == 0 {
		s.logger.Warn().Msg("universe is empty, nothing to scan")
		return nil
	}

	sent := s.ProcessBatch(ctx, batch)

	elapsed := s.now().Sub(started)
	s.metrics.Cycles.Inc()
	s.metrics.CycleDuration.Observe(elapsed.Seconds())
	s.logger.Info().
		Int("batch", len(batch)).
		Int("alerts", sent).
		Dur("elapsed", elapsed).
		Msg("cycle complete")
	return nil
}

// ProcessBatch evaluates every symbol in batch that has a quote and returns the
// number of notifications attempted.
func (s *Service) ProcessBatch(ctx context.Context, batch []resolver.Symbol) int {
	qualified := make([]string, len(batch))
	for i, sym := range batch {
		qualified[i] = sym.Qualified
	}

	quotes, errs := fetcher.FetchQuotesInChunks(ctx, s.quotes, qualified, s.opts.QuoteChunk)
	for _, err := range errs {
		s.metrics.FetchFailures.WithLabelValues(metrics.KindQuote).Inc()
		s.logger.Warn().Err(err).Msg("quote chunk failed")
	}

	attempted := 0
	for _, sym := range batch {
		if ctx.Err() != nil {
			break
		}
		quote, ok := quotes[sym.Qualified]
		if !ok {
			s.logger.Debug().Str("symbol", sym.Qualified).Msg("no quote this cycle")
			continue
		}
		if s.processSymbol(ctx, sym, quote) {
			attempted++
		}
	}
	return attempted
}

func (s *Service) processSymbol(ctx context.Context, sym resolver.Symbol, quote fetcher.Quote) bool {
	fired := s.Evaluate(ctx, sym, quote)
	if len(fired) == 0 {
		return false
	}
	for _, sig := range fired {
		s.metrics.RuleFires.WithLabelValues(string(sig.Rule)).Inc()
	}

	allowed := s.dedup.Filter(sym.Code, fired)
	if suppressed := len(fired) - len(allowed); suppressed > 0 {
		s.metrics.Pushes.WithLabelValues(metrics.PushSuppressed).Add(float64(suppressed))
	}
	if len(allowed) == 0 {
		return false
	}

	text := FormatAlert(sym.Code, quote, allowed, s.now().In(s.opts.Location))
	if err := s.notifier.Send(ctx, text); err != nil {
		s.metrics.Pushes.WithLabelValues(metrics.PushFailed).Inc()
		s.logger.Error().Err(err).Str("symbol", sym.Code).Msg("failed to dispatch alert")
		return true
	}
	s.metrics.Pushes.WithLabelValues(metrics.PushSent).Inc()
	s.logger.Info().Str("symbol", sym.Code).Int("rules", len(allowed)).Msg("alert dispatched")
	return true
}

// Evaluate refreshes the symbol's charts through the cache and runs the enabled
// rules against them. It does not consult the deduplicator.
func (s *Service) Evaluate(ctx context.Context, sym resolver.Symbol, quote fetcher.Quote) []rules.Signal {
	return s.engine.Evaluate(s.Inputs(ctx, sym, quote))
}

// Engine returns the rule engine the service evaluates with.
func (s *Service) Engine() *rules.Engine {
	return s.engine
}

// Inputs assembles the indicator series for one symbol.
func (s *Service) Inputs(ctx context.Context, sym resolver.Symbol, quote fetcher.Quote) rules.Input {
	daily := s.charts.Get(ctx, sym.Qualified, dailyInterval, s.opts.DailySpan, s.opts.DailyRefresh)
	weekly := s.charts.Get(ctx, sym.Qualified, weeklyInterval, s.opts.WeeklySpan, s.opts.WeeklyRefresh)

	_, _, hist := indicator.MACD(daily.Close, s.opts.MACDFast, s.opts.MACDSlow, s.opts.MACDSignal)
	return rules.Input{
		Price:     quote.Price,
		Volume:    quote.Volume,
		DailyMA5:  indicator.MovingAverage(daily.Close, 5),
		DailyMA34: indicator.MovingAverage(daily.Close, 34),
		DailyHist: hist,
		WeeklyMA5: indicator.MovingAverage(weekly.Close, 5),
	}
}

// FormatAlert renders the consolidated notification for one symbol.
func FormatAlert(code string, quote fetcher.Quote, signals []rules.Signal, at time.Time) string {
	name := quote.DisplayName
	if name == "" {
		name = code
	}

	change := decimal.Zero
	if quote.ChangePercent.Valid {
		change = quote.ChangePercent.Decimal
	}

	notes := make([]string, len(signals))
	for i, sig := range signals {
		notes[i] = sig.Note
	}

	var b strings.Builder
	fmt.Fprintf(&b, "【觸發】%s (%s) %s\n", name, code, quote.Exchange)
	fmt.Fprintf(&b, "價：%s（昨收：%s，漲跌：%s%%）\n", formatPrice(quote.Price), formatPrice(quote.PreviousClose), change.StringFixed(2))
	b.WriteString(strings.Join(notes, "；"))
	b.WriteString("\n")
	fmt.Fprintf(&b, "時間：%s", at.Format(time.DateTime))
	return b.String()
}

func formatPrice(p decimal.NullDecimal) string {
	if !p.Valid {
		return "-"
	}
	return p.Decimal.String()
}
