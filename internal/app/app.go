package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"twscan/internal/alerting"
	"twscan/internal/chartcache"
	"twscan/internal/config"
	"twscan/internal/dedup"
	"twscan/internal/fetcher"
	"twscan/internal/metrics"
	"twscan/internal/resolver"
	"twscan/internal/rules"
	"twscan/internal/scheduler"
	"twscan/internal/service"
	"twscan/internal/universe"
	"twscan/internal/version"
)

// App aggregates configuration and shared dependencies for the CLI commands.
type App struct {
	Config *config.Config
	Logger zerolog.Logger
}

// NewApp constructs a new application handle.
func NewApp(cfg *config.Config, logger zerolog.Logger) *App {
	return &App{Config: cfg, Logger: logger.With().Str("component", "app").Logger()}
}

func (a *App) newYahoo() *fetcher.Yahoo {
	return fetcher.NewYahoo(fetcher.YahooOptions{
		QuoteURL:  a.Config.Yahoo.QuoteURL,
		ChartURL:  a.Config.Yahoo.ChartURL,
		Timeout:   a.Config.Yahoo.RequestTimeout,
		UserAgent: a.Config.Yahoo.UserAgent,
	}, a.Logger)
}

func (a *App) newLine() *alerting.LineNotifier {
	cfg := a.Config.Alerting.Line
	return alerting.NewLineNotifier(cfg.ChannelAccessToken, cfg.Recipients, cfg.APIBase, a.Config.Alerting.RequestTimeout, a.Logger)
}

func (a *App) newNotifier() (alerting.Notifier, error) {
	if err := a.Config.ValidateChannels(); err != nil {
		return nil, err
	}

	var notifiers []alerting.Notifier
	for _, ch := range a.Config.Alerting.Channels {
		switch ch {
		case config.ChannelLine:
			notifiers = append(notifiers, a.newLine())
		case config.ChannelTelegram:
			cfg := a.Config.Alerting.Telegram
			notifiers = append(notifiers, alerting.NewTelegramNotifier(cfg.BotToken, cfg.ChatID, cfg.APIBase, a.Config.Alerting.RequestTimeout, a.Logger))
		}
	}
	if len(notifiers) == 1 {
		return notifiers[0], nil
	}
	return alerting.NewMulti(notifiers...), nil
}

func (a *App) newResolver(quotes fetcher.QuoteFetcher) *resolver.Resolver {
	return resolver.New(quotes, resolver.Options{
		Primary:   a.Config.Venues.Primary,
		Secondary: a.Config.Venues.Secondary,
		ChunkSize: a.Config.Scanner.QuoteChunk,
	}, a.Logger)
}

func (a *App) newEngine() *rules.Engine {
	r := a.Config.Rules
	toggles := rules.Toggles{
		rules.R1MACDCombo:         r.R1MACDCombo,
		rules.R2DailyMA34Up:       r.R2DailyMA34Up,
		rules.R3WeeklyMA5Pattern:  r.R3WeeklyMA5Pattern,
		rules.R4DailyMA5Up:        r.R4DailyMA5Up,
		rules.R5WithinBandOfMA5:   r.R5WithinBand,
		rules.R6PriceAboveFloor:   r.R6PriceAbove,
		rules.R7VolumeAboveFloor:  r.R7VolumeAbove,
		rules.R8PriceAboveDailyMA: r.R8PriceAboveMA5,
	}
	return rules.NewEngine(toggles, rules.Params{
		MACDEps:     a.Config.MACD.Eps,
		BandMinPct:  decimal.NewFromFloat(a.Config.DiffToMA5.Min),
		BandMaxPct:  decimal.NewFromFloat(a.Config.DiffToMA5.Max),
		PriceFloor:  decimal.NewFromFloat(a.Config.Limits.PriceMin),
		VolumeFloor: a.Config.Limits.MinVolumeShares,
	})
}

func (a *App) dedupPolicy(loc *time.Location) dedup.Policy {
	if a.Config.Alerting.OncePerDay {
		return dedup.OncePerCalendarDay{Location: loc}
	}
	return dedup.FixedWindow{Window: a.Config.Alerting.Cooldown}
}

// newService wires the scanning pipeline. sched and notifier may be nil for
// one-shot commands that never loop or push.
func (a *App) newService(yahoo *fetcher.Yahoo, sched *scheduler.Scheduler, notifier alerting.Notifier, m *metrics.Metrics) (*service.Service, error) {
	loc, err := a.Config.Location()
	if err != nil {
		return nil, err
	}
	if m == nil {
		m = metrics.New()
	}

	charts := chartcache.New(yahoo, a.Logger, chartcache.WithFailureHook(func() {
		m.FetchFailures.WithLabelValues(metrics.KindChart).Inc()
	}))

	return service.New(service.Options{
		BatchSize:     a.Config.Scanner.BatchSize,
		QuoteChunk:    a.Config.Scanner.QuoteChunk,
		DailySpan:     a.Config.Cache.DailySpan,
		WeeklySpan:    a.Config.Cache.WeeklySpan,
		DailyRefresh:  a.Config.Cache.DailyRefresh,
		WeeklyRefresh: a.Config.Cache.WeeklyRefresh,
		MACDFast:      a.Config.MACD.Fast,
		MACDSlow:      a.Config.MACD.Slow,
		MACDSignal:    a.Config.MACD.Signal,
		Location:      loc,
	}, service.Deps{
		Scheduler: sched,
		Quotes:    yahoo,
		Charts:    charts,
		Engine:    a.newEngine(),
		Dedup:     dedup.New(a.dedupPolicy(loc)),
		Notifier:  notifier,
		Metrics:   m,
	}, a.Logger), nil
}

// loadUniverse reads the code list, rebuilding it first when the file is
// missing and auto refresh is on.
func (a *App) loadUniverse(ctx context.Context) ([]string, error) {
	path := a.Config.Universe.File
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) && a.Config.Universe.AutoRefresh {
		a.Logger.Warn().Str("file", path).Msg("universe file missing, refreshing from listing pages")
		if _, err := a.RefreshSymbols(ctx); err != nil {
			return nil, fmt.Errorf("universe file missing and refresh failed: %w", err)
		}
	}
	codes, err := universe.Load(path)
	if err != nil {
		return nil, err
	}
	if len(codes) == 0 {
		return nil, fmt.Errorf("universe file %s is empty", path)
	}
	return codes, nil
}

// Run executes the long-running scanning service.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	a.Logger.Info().Str("version", version.Version).Str("commit", version.Commit).Msg("scanner starting")

	notifier, err := a.newNotifier()
	if err != nil {
		return err
	}

	codes, err := a.loadUniverse(ctx)
	if err != nil {
		return err
	}

	m := metrics.New()
	if a.Config.Metrics.Enabled && a.Config.Metrics.Listen != "" {
		srv := metrics.NewServer(a.Config.Metrics.Listen, m, a.Logger)
		srv.Start()
		defer func() {
			stopCtx, stop := context.WithTimeout(context.Background(), 5*time.Second)
			defer stop()
			_ = srv.Stop(stopCtx)
		}()
	}

	sched := scheduler.New(scheduler.Options{
		Interval:     a.Config.Scanner.PollInterval,
		MinWait:      a.Config.Scanner.MinWait,
		StartupDelay: a.Config.Scanner.StartupDelay,
	}, a.Logger)

	yahoo := a.newYahoo()
	svc, err := a.newService(yahoo, sched, notifier, m)
	if err != nil {
		return err
	}

	symbols := a.newResolver(yahoo).Resolve(ctx, codes)
	if symbols.Len() == 0 {
		return errors.New("no universe code resolved on any venue")
	}
	svc.SetUniverse(symbols)

	if a.Config.Scanner.StartupPing {
		if err := notifier.Send(ctx, a.Config.Scanner.StartupText); err != nil {
			a.Logger.Warn().Err(err).Msg("startup ping failed")
		}
	}

	a.Logger.Info().
		Int("symbols", symbols.Len()).
		Int("batch_size", a.Config.Scanner.BatchSize).
		Int("quote_chunk", a.Config.Scanner.QuoteChunk).
		Msg("starting scanning service")

	err = svc.Run(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		a.Logger.Error().Err(err).Msg("service terminated with error")
		return err
	}

	a.Logger.Info().Msg("scanning service stopped")
	return nil
}

// ExportOptions hold parameters for exporting one symbol's daily series.
type ExportOptions struct {
	Code      string
	Span      string
	PNGPath   string
	CSVPath   string
	MaxPoints int
}
