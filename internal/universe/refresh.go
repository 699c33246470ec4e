package universe

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/rs/zerolog"
	"golang.org/x/net/html/charset"
)

const defaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0 Safari/537.36"

var codePattern = regexp.MustCompile(`^\s*(\d{4})\b`)

// Pair names the listed-market and OTC-market pages of one source.
type Pair struct {
	TWSE string
	TPEX string
}

// RefreshOptions configure Refresh.
type RefreshOptions struct {
	// Remote pairs are tried in order; both pages of a pair must load.
	Remote    []Pair
	Local     Pair
	Timeout   time.Duration
	UserAgent string
}

// Result summarises a refresh.
type Result struct {
	Codes  []string
	TWSE   int
	TPEX   int
	Source string
}

// Refresher downloads the ISIN listing pages and extracts 4-digit codes.
type Refresher struct {
	opts   RefreshOptions
	client *http.Client
	logger zerolog.Logger
}

// NewRefresher builds a Refresher.
func NewRefresher(opts RefreshOptions, logger zerolog.Logger) *Refresher {
	if opts.Timeout <= 0 {
		opts.Timeout = 25 * time.Second
	}
	if opts.UserAgent == "" {
		opts.UserAgent = defaultUserAgent
	}
	return &Refresher{
		opts:   opts,
		client: &http.Client{Timeout: opts.Timeout},
		logger: logger.With().Str("component", "universe_refresh").Logger(),
	}
}

// Refresh returns the deduplicated codes of both markets sorted numerically.
func (r *Refresher) Refresh(ctx context.Context) (Result, error) {
	twse, tpex, source, err := r.pages(ctx)
	if err != nil {
		return Result{}, err
	}

	twseCodes, err := ExtractCodes(twse)
	if err != nil {
		return Result{}, fmt.Errorf("parse twse page: %w", err)
	}
	tpexCodes, err := ExtractCodes(tpex)
	if err != nil {
		return Result{}, fmt.Errorf("parse tpex page: %w", err)
	}

	res := Result{
		Codes:  Merge(twseCodes, tpexCodes),
		TWSE:   len(twseCodes),
		TPEX:   len(tpexCodes),
		Source: source,
	}
	r.logger.Info().Int("codes", len(res.Codes)).Int("twse", res.TWSE).Int("tpex", res.TPEX).Str("source", source).Msg("universe refreshed")
	return res, nil
}

func (r *Refresher) pages(ctx context.Context) (twse, tpex []byte, source string, err error) {
	for _, pair := range r.opts.Remote {
		twse, err = r.fetch(ctx, pair.TWSE)
		if err == nil {
			tpex, err = r.fetch(ctx, pair.TPEX)
		}
		if err == nil {
			return twse, tpex, pair.TWSE, nil
		}
		if ctx.Err() != nil {
			return nil, nil, "", ctx.Err()
		}
		r.logger.Warn().Err(err).Str("twse", pair.TWSE).Msg("listing download failed, trying next source")
	}

	if r.opts.Local.TWSE == "" || r.opts.Local.TPEX == "" {
		return nil, nil, "", ErrNoSource
	}
	twse, errTWSE := readLocal(r.opts.Local.TWSE)
	tpex, errTPEX := readLocal(r.opts.Local.TPEX)
	if errTWSE != nil || errTPEX != nil {
		r.logger.Error().AnErr("twse", errTWSE).AnErr("tpex", errTPEX).Msg("local listing pages unavailable")
		return nil, nil, "", ErrNoSource
	}
	return twse, tpex, "local", nil
}

func (r *Refresher) fetch(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", r.opts.UserAgent)

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d from %s", resp.StatusCode, url)
	}

	return toUTF8(resp.Body, resp.Header.Get("Content-Type"))
}

func readLocal(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return toUTF8(f, "")
}

// toUTF8 transcodes the listing pages, which are served as Big5 (MS950).
func toUTF8(r io.Reader, contentType string) ([]byte, error) {
	utf8, err := charset.NewReader(r, contentType)
	if err != nil {
		return nil, fmt.Errorf("detect charset: %w", err)
	}
	return io.ReadAll(utf8)
}

// ExtractCodes reads the first column of the first table in page and keeps
// every cell that starts with a 4-digit code.
func ExtractCodes(page []byte) ([]string, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(page))
	if err != nil {
		return nil, err
	}

	var codes []string
	doc.Find("table").First().Find("tr").Each(func(_ int, row *goquery.Selection) {
		cell := row.Find("td, th").First()
		text := strings.ReplaceAll(cell.Text(), "\u3000", " ")
		if m := codePattern.FindStringSubmatch(text); m != nil {
			codes = append(codes, m[1])
		}
	})
	return codes, nil
}

// Merge deduplicates the code lists and sorts them numerically.
func Merge(lists ...[]string) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, list := range lists {
		for _, c := range list {
			if _, ok := seen[c]; ok {
				continue
			}
			seen[c] = struct{}{}
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		a, _ := strconv.Atoi(out[i])
		b, _ := strconv.Atoi(out[j])
		return a < b
	})
	return out
}
