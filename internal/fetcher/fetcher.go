package fetcher

import (
	"context"
	"errors"
)

// ErrNoData is returned when the source answers but carries no usable payload.
var ErrNoData = errors.New("fetcher: no data returned")

// QuoteFetcher retrieves current quotes for a set of market-qualified symbols.
// Symbols the source does not know are simply absent from the result.
type QuoteFetcher interface {
	FetchQuotes(ctx context.Context, symbols []string) (map[string]Quote, error)
}

// ChartFetcher retrieves a historical OHLCV series for one symbol.
type ChartFetcher interface {
	FetchChart(ctx context.Context, symbol, span, interval string) (Series, error)
}
