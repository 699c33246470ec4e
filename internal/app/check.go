package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/guregu/null/v6"

	"twscan/internal/fetcher"
	"twscan/internal/indicator"
)

// Check resolves codes, evaluates the enabled rules once and prints the result.
// Nothing is deduplicated or pushed.
func (a *App) Check(ctx context.Context, codes []string, out io.Writer) error {
	if len(codes) == 0 {
		return errors.New("at least one code is required")
	}

	yahoo := a.newYahoo()
	svc, err := a.newService(yahoo, nil, nil, nil)
	if err != nil {
		return err
	}

	symbols := a.newResolver(yahoo).Resolve(ctx, codes)
	for _, code := range codes {
		if _, ok := symbols.Lookup(code); !ok {
			fmt.Fprintf(out, "%s: not listed on %s or %s\n", code, a.Config.Venues.Primary, a.Config.Venues.Secondary)
		}
	}
	if symbols.Len() == 0 {
		return nil
	}

	quotes, errs := fetcher.FetchQuotesInChunks(ctx, yahoo, symbols.Qualified(), a.Config.Scanner.QuoteChunk)
	for _, err := range errs {
		a.Logger.Warn().Err(err).Msg("quote chunk failed")
	}

	writer := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Symbol\tName\tPrice\tMA5\tMA34\tHist\tFired")

	for _, sym := range symbols.Symbols {
		quote, ok := quotes[sym.Qualified]
		if !ok {
			fmt.Fprintf(writer, "%s\t-\t-\t-\t-\t-\tno quote\n", sym.Qualified)
			continue
		}

		in := svc.Inputs(ctx, sym, quote)
		signals := svc.Engine().Evaluate(in)
		notes := make([]string, len(signals))
		for i, sig := range signals {
			notes[i] = sig.Note
		}

		fmt.Fprintf(writer, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			sym.Qualified,
			sanitizeInline(quote.DisplayName),
			formatPrice(quote),
			formatFloat(indicator.Last(in.DailyMA5), 2),
			formatFloat(indicator.Last(in.DailyMA34), 2),
			formatFloat(indicator.Last(in.DailyHist), 5),
			strings.Join(notes, "；"),
		)
	}

	return writer.Flush()
}

func formatPrice(q fetcher.Quote) string {
	if !q.Price.Valid {
		return "-"
	}
	return q.Price.Decimal.String()
}

func formatFloat(v null.Float, places int) string {
	if !v.Valid {
		return "-"
	}
	return fmt.Sprintf("%.*f", places, v.Float64)
}

func sanitizeInline(v string) string {
	cleaned := strings.ReplaceAll(v, "\n", " ")
	cleaned = strings.ReplaceAll(cleaned, "\t", " ")
	return cleaned
}
