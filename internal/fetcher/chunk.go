package fetcher

import (
	"context"
	"fmt"
)

// FetchQuotesInChunks splits symbols into groups of size and merges the results.
// A failed group contributes nothing; its error is collected and the remaining
// groups are still requested.
func FetchQuotesInChunks(ctx context.Context, source QuoteFetcher, symbols []string, size int) (map[string]Quote, []error) {
	if size <= 0 {
		size = len(symbols)
	}
	merged := make(map[string]Quote, len(symbols))
	var errs []error

	for start := 0; start < len(symbols); start += size {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		end := min(start+size, len(symbols))
		quotes, err := source.FetchQuotes(ctx, symbols[start:end])
		if err != nil {
			errs = append(errs, fmt.Errorf("chunk %d-%d: %w", start, end, err))
			continue
		}
		for sym, q := range quotes {
			merged[sym] = q
		}
	}
	return merged, errs
}
