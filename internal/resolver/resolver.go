// Package resolver maps bare exchange codes to the venue-qualified symbols the
// quote source understands.
package resolver

import (
	"context"
	"strings"

	"github.com/rs/zerolog"

	"twscan/internal/fetcher"
)

// Symbol pairs a bare code with its qualified form, e.g. 2330 and 2330.TW.
type Symbol struct {
	Code      string
	Qualified string
}

// Map is the ordered result of a resolution. Codes that resolved under neither
// venue are absent.
type Map struct {
	Symbols []Symbol
	index   map[string]string
}

// Lookup returns the qualified symbol for code.
func (m Map) Lookup(code string) (string, bool) {
	q, ok := m.index[code]
	return q, ok
}

// Qualified returns the qualified symbols in universe order.
func (m Map) Qualified() []string {
	out := make([]string, len(m.Symbols))
	for i, s := range m.Symbols {
		out[i] = s.Qualified
	}
	return out
}

// Len reports the number of resolved codes.
func (m Map) Len() int {
	return len(m.Symbols)
}

// Options configure a resolution pass.
type Options struct {
	Primary   string
	Secondary string
	ChunkSize int
}

// Resolver probes the primary venue suffix first and the secondary one for
// whatever is left.
type Resolver struct {
	source fetcher.QuoteFetcher
	opts   Options
	logger zerolog.Logger
}

// New constructs a Resolver.
func New(source fetcher.QuoteFetcher, opts Options, logger zerolog.Logger) *Resolver {
	if opts.Primary == "" {
		opts.Primary = ".TW"
	}
	if opts.Secondary == "" {
		opts.Secondary = ".TWO"
	}
	return &Resolver{
		source: source,
		opts:   opts,
		logger: logger.With().Str("component", "resolver").Logger(),
	}
}

// Resolve runs both probe passes. Failed chunks are logged and their codes
// treated as unresolved for that pass; nothing is retried.
func (r *Resolver) Resolve(ctx context.Context, codes []string) Map {
	found := make(map[string]string, len(codes))

	remaining := r.probe(ctx, codes, r.opts.Primary, found)
	if len(remaining) > 0 {
		remaining = r.probe(ctx, remaining, r.opts.Secondary, found)
	}

	m := Map{index: make(map[string]string, len(found))}
	for _, code := range codes {
		q, ok := found[code]
		if !ok {
			continue
		}
		if _, dup := m.index[code]; dup {
			continue
		}
		m.index[code] = q
		m.Symbols = append(m.Symbols, Symbol{Code: code, Qualified: q})
	}

	r.logger.Info().Int("codes", len(codes)).Int("resolved", m.Len()).Int("unresolved", len(remaining)).Msg("universe resolved")
	if len(remaining) > 0 {
		r.logger.Debug().Strs("codes", remaining).Msg("codes not listed on any venue")
	}
	return m
}

func (r *Resolver) probe(ctx context.Context, codes []string, suffix string, found map[string]string) []string {
	symbols := make([]string, len(codes))
	for i, code := range codes {
		symbols[i] = code + suffix
	}

	quotes, errs := fetcher.FetchQuotesInChunks(ctx, r.source, symbols, r.opts.ChunkSize)
	for _, err := range errs {
		r.logger.Warn().Err(err).Str("suffix", suffix).Msg("probe chunk failed")
	}

	var missing []string
	for i, code := range codes {
		if _, ok := quotes[symbols[i]]; ok {
			found[code] = symbols[i]
			continue
		}
		missing = append(missing, code)
	}
	return missing
}

// Code strips the venue suffix from a qualified symbol.
func Code(qualified string) string {
	if i := strings.IndexByte(qualified, '.'); i >= 0 {
		return qualified[:i]
	}
	return qualified
}
