package app

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/guregu/null/v6"
	chart "github.com/wcharczuk/go-chart/v2"

	"twscan/internal/fetcher"
	"twscan/internal/indicator"
)

// exportRow is one daily bar with its derived indicators.
type exportRow struct {
	Time   time.Time
	Close  null.Float
	Volume null.Float
	MA5    null.Float
	MA34   null.Float
	DIF    null.Float
	DEM    null.Float
	Hist   null.Float
}

// Export fetches the daily series of one code and renders it as CSV and/or PNG.
func (a *App) Export(ctx context.Context, opts ExportOptions) error {
	if opts.Code == "" {
		return errors.New("--symbol is required")
	}
	if opts.CSVPath == "" && opts.PNGPath == "" {
		return errors.New("at least one of --csv or --png must be provided")
	}
	if opts.Span == "" {
		opts.Span = a.Config.Cache.DailySpan
	}
	opts.MaxPoints = a.Config.ResolveMaxPoints(opts.MaxPoints)

	loc, err := a.Config.Location()
	if err != nil {
		return err
	}

	yahoo := a.newYahoo()
	symbols := a.newResolver(yahoo).Resolve(ctx, []string{opts.Code})
	qualified, ok := symbols.Lookup(opts.Code)
	if !ok {
		return fmt.Errorf("%s is not listed on %s or %s", opts.Code, a.Config.Venues.Primary, a.Config.Venues.Secondary)
	}

	series, err := yahoo.FetchChart(ctx, qualified, opts.Span, "1d")
	if err != nil {
		return err
	}
	if series.IsEmpty() {
		a.Logger.Info().Str("symbol", qualified).Msg("no bars returned for export window")
		return nil
	}

	rows := buildRows(series, a.Config.MACD.Fast, a.Config.MACD.Slow, a.Config.MACD.Signal, loc)
	downsampled := downsampleRows(rows, opts.MaxPoints)
	a.Logger.Info().Str("symbol", qualified).Int("total", len(rows)).Int("exported", len(downsampled)).Msg("exporting series")

	if opts.CSVPath != "" {
		if err := writeRowsCSV(opts.CSVPath, downsampled); err != nil {
			return err
		}
	}

	if opts.PNGPath != "" {
		if err := writeRowsPNG(opts.PNGPath, qualified, downsampled); err != nil {
			return err
		}
	}

	return nil
}

func buildRows(series fetcher.Series, fast, slow, signal int, loc *time.Location) []exportRow {
	ma5 := indicator.MovingAverage(series.Close, 5)
	ma34 := indicator.MovingAverage(series.Close, 34)
	dif, dem, hist := indicator.MACD(series.Close, fast, slow, signal)

	rows := make([]exportRow, series.Len())
	for i := range rows {
		row := exportRow{
			Close: series.Close[i],
			MA5:   ma5[i],
			MA34:  ma34[i],
			DIF:   dif[i],
			DEM:   dem[i],
			Hist:  hist[i],
		}
		if i < len(series.Timestamps) {
			row.Time = time.Unix(series.Timestamps[i], 0).In(loc)
		}
		if i < len(series.Volume) {
			row.Volume = series.Volume[i]
		}
		rows[i] = row
	}
	return rows
}

func downsampleRows(rows []exportRow, max int) []exportRow {
	if max <= 1 || len(rows) <= max {
		return rows
	}

	result := make([]exportRow, 0, max)
	step := float64(len(rows)-1) / float64(max-1)
	for i := 0; i < max; i++ {
		idx := int(math.Round(step * float64(i)))
		if idx >= len(rows) {
			idx = len(rows) - 1
		}
		result = append(result, rows[idx])
	}
	return result
}

func writeRowsCSV(path string, rows []exportRow) error {
	if err := ensureDir(path); err != nil {
		return err
	}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	header := []string{"date", "close", "volume", "ma5", "ma34", "dif", "dem", "hist"}
	if err := writer.Write(header); err != nil {
		return err
	}

	for _, row := range rows {
		record := []string{
			row.Time.Format(time.DateOnly),
			csvFloat(row.Close, 2),
			csvFloat(row.Volume, 0),
			csvFloat(row.MA5, 4),
			csvFloat(row.MA34, 4),
			csvFloat(row.DIF, 5),
			csvFloat(row.DEM, 5),
			csvFloat(row.Hist, 5),
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}

	writer.Flush()
	return writer.Error()
}

func csvFloat(v null.Float, places int) string {
	if !v.Valid {
		return ""
	}
	return strconv.FormatFloat(v.Float64, 'f', places, 64)
}

func writeRowsPNG(path, symbol string, rows []exportRow) error {
	if err := ensureDir(path); err != nil {
		return err
	}

	closeSeries := chart.TimeSeries{Name: "Close"}
	ma5Series := chart.TimeSeries{Name: "MA5"}
	ma34Series := chart.TimeSeries{Name: "MA34"}
	histSeries := chart.TimeSeries{Name: "MACD hist", YAxis: chart.YAxisSecondary}

	for _, row := range rows {
		appendPoint(&closeSeries, row.Time, row.Close)
		appendPoint(&ma5Series, row.Time, row.MA5)
		appendPoint(&ma34Series, row.Time, row.MA34)
		appendPoint(&histSeries, row.Time, row.Hist)
	}
	if len(closeSeries.XValues) < 2 {
		return errors.New("not enough bars to render a chart")
	}

	series := []chart.Series{closeSeries}
	for _, s := range []chart.TimeSeries{ma5Series, ma34Series, histSeries} {
		if len(s.XValues) >= 2 {
			series = append(series, s)
		}
	}

	priceFormatter := func(v interface{}) string {
		return chart.FloatValueFormatterWithFormat(v, "%.2f")
	}
	graph := chart.Chart{
		Title:  symbol,
		Width:  1280,
		Height: 720,
		XAxis: chart.XAxis{
			ValueFormatter: chart.TimeValueFormatter,
		},
		YAxis: chart.YAxis{
			Name:           "Price",
			ValueFormatter: priceFormatter,
		},
		YAxisSecondary: chart.YAxis{
			Name: "MACD hist",
			ValueFormatter: func(v interface{}) string {
				return chart.FloatValueFormatterWithFormat(v, "%.3f")
			},
		},
		Series: series,
	}
	graph.Elements = []chart.Renderable{chart.Legend(&graph)}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	return graph.Render(chart.PNG, file)
}

func appendPoint(s *chart.TimeSeries, t time.Time, v null.Float) {
	if !v.Valid {
		return
	}
	s.XValues = append(s.XValues, t)
	s.YValues = append(s.YValues, v.Float64)
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}
