package fetcher

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/guregu/null/v6"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

const (
	defaultQuoteURL  = "https://query1.finance.yahoo.com/v7/finance/quote"
	defaultChartURL  = "https://query1.finance.yahoo.com/v8/finance/chart"
	defaultUserAgent = "Mozilla/5.0"
)

// YahooOptions parameterise the Yahoo Finance client.
type YahooOptions struct {
	QuoteURL  string
	ChartURL  string
	Timeout   time.Duration
	UserAgent string
}

// Yahoo fetches quotes and charts from the public Yahoo Finance endpoints.
type Yahoo struct {
	opts   YahooOptions
	logger zerolog.Logger
	client *http.Client
}

// NewYahoo constructs a Yahoo Finance fetcher.
func NewYahoo(opts YahooOptions, logger zerolog.Logger) *Yahoo {
	if opts.Timeout <= 0 {
		opts.Timeout = 20 * time.Second
	}
	opts.QuoteURL = strings.TrimRight(opts.QuoteURL, "/")
	if opts.QuoteURL == "" {
		opts.QuoteURL = defaultQuoteURL
	}
	opts.ChartURL = strings.TrimRight(opts.ChartURL, "/")
	if opts.ChartURL == "" {
		opts.ChartURL = defaultChartURL
	}
	if strings.TrimSpace(opts.UserAgent) == "" {
		opts.UserAgent = defaultUserAgent
	}

	return &Yahoo{
		opts:   opts,
		logger: logger.With().Str("component", "yahoo_fetcher").Logger(),
		client: &http.Client{Timeout: opts.Timeout},
	}
}

// FetchQuotes requests all symbols in a single bulk call. The result only holds
// the symbols present in the response.
func (y *Yahoo) FetchQuotes(ctx context.Context, symbols []string) (map[string]Quote, error) {
	out := make(map[string]Quote, len(symbols))
	if len(symbols) == 0 {
		return out, nil
	}

	endpoint := y.opts.QuoteURL + "?symbols=" + url.QueryEscape(strings.Join(symbols, ","))
	payload, err := y.get(ctx, endpoint)
	if err != nil {
		return out, fmt.Errorf("fetch quotes: %w", err)
	}

	var res quoteEnvelope
	if err := json.Unmarshal(payload, &res); err != nil {
		return out, fmt.Errorf("decode quotes: %w", err)
	}

	for _, item := range res.QuoteResponse.Result {
		if item.Symbol == "" {
			continue
		}
		out[item.Symbol] = item.toQuote()
	}

	y.logger.Debug().Int("requested", len(symbols)).Int("returned", len(out)).Msg("quotes fetched")
	return out, nil
}

// FetchChart retrieves one OHLCV series. A source-side error or an undecodable body
// is returned as an error; an answer with no bars is an empty series.
func (y *Yahoo) FetchChart(ctx context.Context, symbol, span, interval string) (Series, error) {
	endpoint := fmt.Sprintf("%s/%s?range=%s&interval=%s",
		y.opts.ChartURL, url.PathEscape(symbol), url.QueryEscape(span), url.QueryEscape(interval))

	payload, err := y.get(ctx, endpoint)
	if err != nil {
		return Series{}, fmt.Errorf("fetch chart %s: %w", symbol, err)
	}

	var res chartEnvelope
	if err := json.Unmarshal(payload, &res); err != nil {
		return Series{}, fmt.Errorf("decode chart %s: %w", symbol, err)
	}
	if res.Chart.Error != nil {
		return Series{}, fmt.Errorf("yahoo chart error for %s: %s", symbol, res.Chart.Error.Description)
	}
	if len(res.Chart.Result) == 0 {
		return Series{}, nil
	}

	r0 := res.Chart.Result[0]
	series := Series{Timestamps: r0.Timestamp}
	if len(r0.Indicators.Quote) > 0 {
		q := r0.Indicators.Quote[0]
		series.Open = q.Open
		series.High = q.High
		series.Low = q.Low
		series.Close = q.Close
		series.Volume = q.Volume
	}
	return series, nil
}

func (y *Yahoo) get(ctx context.Context, endpoint string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", y.opts.UserAgent)

	resp, err := y.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, parseHTTPError(resp.StatusCode, body)
	}
	if len(body) == 0 {
		return nil, ErrNoData
	}
	return body, nil
}

type quoteEnvelope struct {
	QuoteResponse struct {
		Result []yahooQuote `json:"result"`
	} `json:"quoteResponse"`
}

type yahooQuote struct {
	Symbol                     string              `json:"symbol"`
	ShortName                  string              `json:"shortName"`
	LongName                   string              `json:"longName"`
	FullExchangeName           string              `json:"fullExchangeName"`
	Exchange                   string              `json:"exchange"`
	RegularMarketPrice         decimal.NullDecimal `json:"regularMarketPrice"`
	PostMarketPrice            decimal.NullDecimal `json:"postMarketPrice"`
	PreMarketPrice             decimal.NullDecimal `json:"preMarketPrice"`
	RegularMarketVolume        null.Int            `json:"regularMarketVolume"`
	RegularMarketChangePercent decimal.NullDecimal `json:"regularMarketChangePercent"`
	RegularMarketPreviousClose decimal.NullDecimal `json:"regularMarketPreviousClose"`
}

func (q yahooQuote) toQuote() Quote {
	name := firstNonEmpty(q.ShortName, q.LongName, q.Symbol)
	return Quote{
		Symbol:        q.Symbol,
		DisplayName:   name,
		Exchange:      firstNonEmpty(q.FullExchangeName, q.Exchange),
		Price:         firstPrice(q.RegularMarketPrice, q.PostMarketPrice, q.PreMarketPrice),
		PreviousClose: q.RegularMarketPreviousClose,
		ChangePercent: q.RegularMarketChangePercent,
		Volume:        q.RegularMarketVolume,
	}
}

// firstPrice picks the first present, non-zero price; a zero price is treated as
// missing because the source reports 0 outside trading sessions.
func firstPrice(candidates ...decimal.NullDecimal) decimal.NullDecimal {
	for _, c := range candidates {
		if c.Valid && !c.Decimal.IsZero() {
			return c
		}
	}
	return decimal.NullDecimal{}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

type chartEnvelope struct {
	Chart struct {
		Result []struct {
			Timestamp  []int64 `json:"timestamp"`
			Indicators struct {
				Quote []struct {
					Open   []null.Float `json:"open"`
					High   []null.Float `json:"high"`
					Low    []null.Float `json:"low"`
					Close  []null.Float `json:"close"`
					Volume []null.Float `json:"volume"`
				} `json:"quote"`
			} `json:"indicators"`
		} `json:"result"`
		Error *apiError `json:"error"`
	} `json:"chart"`
}

type apiError struct {
	Code        string `json:"code"`
	Description string `json:"description"`
}

func parseHTTPError(status int, payload []byte) error {
	var res struct {
		Finance struct {
			Error *apiError `json:"error"`
		} `json:"finance"`
		Chart struct {
			Error *apiError `json:"error"`
		} `json:"chart"`
	}
	if err := json.Unmarshal(payload, &res); err == nil {
		for _, e := range []*apiError{res.Finance.Error, res.Chart.Error} {
			if e != nil && e.Description != "" {
				return fmt.Errorf("yahoo api error (%d): %s", status, e.Description)
			}
		}
	}
	if len(payload) > 0 {
		return fmt.Errorf("yahoo api error (%d): %s", status, strings.TrimSpace(string(payload)))
	}
	return fmt.Errorf("yahoo api error (%d)", status)
}

var (
	_ QuoteFetcher = (*Yahoo)(nil)
	_ ChartFetcher = (*Yahoo)(nil)
)
