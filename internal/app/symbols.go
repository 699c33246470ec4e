package app

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"

	"twscan/internal/universe"
)

// RefreshSymbols rebuilds the universe file from the TWSE/TPEx listing pages.
func (a *App) RefreshSymbols(ctx context.Context) (universe.Result, error) {
	cfg := a.Config.Universe
	refresher := universe.NewRefresher(universe.RefreshOptions{
		Remote: []universe.Pair{
			{TWSE: cfg.TWSEURL, TPEX: cfg.TPEXURL},
			{TWSE: cfg.TWSEURLSecure, TPEX: cfg.TPEXURLSecure},
		},
		Local:   universe.Pair{TWSE: cfg.LocalTWSE, TPEX: cfg.LocalTPEX},
		Timeout: cfg.RequestTimeout,
	}, a.Logger)

	res, err := refresher.Refresh(ctx)
	if err != nil {
		return universe.Result{}, err
	}
	if len(res.Codes) == 0 {
		return res, fmt.Errorf("listing pages yielded no codes (source %s)", res.Source)
	}
	if err := universe.Save(cfg.File, res.Codes); err != nil {
		return res, err
	}

	a.Logger.Info().Str("file", cfg.File).Int("codes", len(res.Codes)).Msg("universe file updated")
	return res, nil
}

// Resolve prints the code to symbol mapping for the universe file.
func (a *App) Resolve(ctx context.Context, out io.Writer) error {
	codes, err := universe.Load(a.Config.Universe.File)
	if err != nil {
		return err
	}

	symbols := a.newResolver(a.newYahoo()).Resolve(ctx, codes)

	writer := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Code\tSymbol")
	for _, s := range symbols.Symbols {
		fmt.Fprintf(writer, "%s\t%s\n", s.Code, s.Qualified)
	}
	if err := writer.Flush(); err != nil {
		return err
	}

	fmt.Fprintf(out, "resolved %d of %d codes\n", symbols.Len(), len(codes))
	return nil
}
