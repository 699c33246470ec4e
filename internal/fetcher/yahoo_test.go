package fetcher

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

func noopLogger() zerolog.Logger {
	return zerolog.Nop()
}

func newTestYahoo(url string) *Yahoo {
	return NewYahoo(YahooOptions{
		QuoteURL:  url + "/v7/finance/quote",
		ChartURL:  url + "/v8/finance/chart",
		Timeout:   time.Second,
		UserAgent: "test",
	}, noopLogger())
}

func TestFetchQuotesParsesFallbacks(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("symbols"); got != "2330.TW,6488.TWO,9999.TW" {
			t.Fatalf("symbols 参数不正确: %s", got)
		}
		if r.Header.Get("User-Agent") != "test" {
			t.Fatalf("应携带 User-Agent")
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"quoteResponse":{"result":[
			{"symbol":"2330.TW","shortName":"TSMC","fullExchangeName":"Taiwan","exchange":"TAI",
			 "regularMarketPrice":1000.5,"regularMarketPreviousClose":990,"regularMarketChangePercent":1.0606,
			 "regularMarketVolume":25000000},
			{"symbol":"6488.TWO","longName":"GlobalWafers","exchange":"TWO",
			 "regularMarketPrice":0,"postMarketPrice":null,"preMarketPrice":455.5}
		]}}`))
	}))
	defer srv.Close()

	y := newTestYahoo(srv.URL)
	quotes, err := y.FetchQuotes(context.Background(), []string{"2330.TW", "6488.TWO", "9999.TW"})
	if err != nil {
		t.Fatalf("成功响应不应报错: %v", err)
	}
	if len(quotes) != 2 {
		t.Fatalf("缺失的代码应直接略过, 实际 %d 条", len(quotes))
	}

	tsmc := quotes["2330.TW"]
	if tsmc.DisplayName != "TSMC" || tsmc.Exchange != "Taiwan" {
		t.Fatalf("名称/交易所解析错误: %#v", tsmc)
	}
	if !tsmc.Price.Valid || !tsmc.Price.Decimal.Equal(decimal.RequireFromString("1000.5")) {
		t.Fatalf("价格解析错误: %v", tsmc.Price)
	}
	if !tsmc.Volume.Valid || tsmc.Volume.Int64 != 25000000 {
		t.Fatalf("成交量解析错误: %v", tsmc.Volume)
	}

	gw := quotes["6488.TWO"]
	if gw.DisplayName != "GlobalWafers" || gw.Exchange != "TWO" {
		t.Fatalf("名称应回退到 longName, 交易所回退到 exchange: %#v", gw)
	}
	if !gw.Price.Valid || !gw.Price.Decimal.Equal(decimal.RequireFromString("455.5")) {
		t.Fatalf("零价格应回退到盘前价格: %v", gw.Price)
	}
	if gw.Volume.Valid {
		t.Fatalf("缺少成交量时应为 null")
	}
}

func TestFetchQuotesEmptyInput(t *testing.T) {
	y := newTestYahoo("http://127.0.0.1:0")
	quotes, err := y.FetchQuotes(context.Background(), nil)
	if err != nil || len(quotes) != 0 {
		t.Fatalf("空输入不应发出请求: %v %v", quotes, err)
	}
}

func TestFetchQuotesHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"finance":{"error":{"code":"Too Many Requests","description":"rate limited"}}}`))
	}))
	defer srv.Close()

	_, err := newTestYahoo(srv.URL).FetchQuotes(context.Background(), []string{"2330.TW"})
	if err == nil || !strings.Contains(err.Error(), "rate limited") {
		t.Fatalf("HTTP 429 应返回带描述的错误, 实际 %v", err)
	}
}

func TestFetchChartWithNulls(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/2330.TW") {
			t.Fatalf("路径应以代码结尾, 实际 %s", r.URL.Path)
		}
		if r.URL.Query().Get("range") != "8mo" || r.URL.Query().Get("interval") != "1d" {
			t.Fatalf("range/interval 参数错误: %s", r.URL.RawQuery)
		}
		_, _ = w.Write([]byte(`{"chart":{"result":[{"timestamp":[1,2,3],
			"indicators":{"quote":[{"open":[1,2,3],"high":[1,2,3],"low":[1,2,3],
			"close":[10,null,12],"volume":[100,200,null]}]}}],"error":null}}`))
	}))
	defer srv.Close()

	series, err := newTestYahoo(srv.URL).FetchChart(context.Background(), "2330.TW", "8mo", "1d")
	if err != nil {
		t.Fatalf("成功响应不应报错: %v", err)
	}
	if series.Len() != 3 || len(series.Timestamps) != 3 {
		t.Fatalf("序列长度应为 3, 实际 %d", series.Len())
	}
	if series.Close[1].Valid {
		t.Fatalf("null 收盘价应保持为无效值")
	}
	if !series.Close[2].Valid || series.Close[2].Float64 != 12 {
		t.Fatalf("收盘价解析错误: %v", series.Close[2])
	}
	if series.Volume[2].Valid {
		t.Fatalf("null 成交量应保持为无效值")
	}
}

func TestFetchChartSourceError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"chart":{"result":null,"error":{"code":"Not Found","description":"No data found, symbol may be delisted"}}}`))
	}))
	defer srv.Close()

	if _, err := newTestYahoo(srv.URL).FetchChart(context.Background(), "0000.TW", "8mo", "1d"); err == nil {
		t.Fatal("chart.error 应视为错误")
	}
}

func TestFetchChartEmptyResult(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"chart":{"result":[],"error":null}}`))
	}))
	defer srv.Close()

	series, err := newTestYahoo(srv.URL).FetchChart(context.Background(), "2330.TW", "5y", "1wk")
	if err != nil {
		t.Fatalf("空结果不应报错: %v", err)
	}
	if !series.IsEmpty() {
		t.Fatalf("空结果应返回空序列")
	}
}

func TestFetchChartEmptyBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	_, err := newTestYahoo(srv.URL).FetchChart(context.Background(), "2330.TW", "8mo", "1d")
	if !errors.Is(err, ErrNoData) {
		t.Fatalf("空响应体应返回 ErrNoData, 实际 %v", err)
	}
}
