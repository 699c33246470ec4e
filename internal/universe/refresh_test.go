package universe

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

const twsePage = `<html><head><meta charset="utf-8"></head><body>
<table class="h4">
<tr><td>有價證券代號及名稱</td><td>國際證券辨識號碼</td></tr>
<tr><td colspan="2"><b> 股票 </b></td></tr>
<tr><td>2330　台積電</td><td>TW0002330008</td></tr>
<tr><td>1101　台泥</td><td>TW0001101004</td></tr>
<tr><td>030001　元大權證</td><td>TW18Z0300012</td></tr>
</table>
<table><tr><td>9999　不應讀取</td></tr></table>
</body></html>`

const tpexPage = `<html><head><meta charset="utf-8"></head><body>
<table><tr><td>6488　環球晶</td></tr><tr><td>2330　重複</td></tr></table>
</body></html>`

func TestExtractCodes(t *testing.T) {
	codes, err := ExtractCodes([]byte(twsePage))
	if err != nil {
		t.Fatalf("解析不应报错: %v", err)
	}
	if want := []string{"2330", "1101"}; !reflect.DeepEqual(codes, want) {
		t.Fatalf("只应取第一张表首列的 4 位代码, 实际 %v", codes)
	}
}

func TestMergeSortsNumerically(t *testing.T) {
	got := Merge([]string{"2330", "1101"}, []string{"6488", "2330", "0050"})
	if want := []string{"0050", "1101", "2330", "6488"}; !reflect.DeepEqual(got, want) {
		t.Fatalf("期望 %v, 实际 %v", want, got)
	}
}

func TestRefreshFallsBackToSecondSource(t *testing.T) {
	broken := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer broken.Close()

	healthy := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		if r.URL.Query().Get("strMode") == "4" {
			_, _ = w.Write([]byte(tpexPage))
			return
		}
		_, _ = w.Write([]byte(twsePage))
	}))
	defer healthy.Close()

	r := NewRefresher(RefreshOptions{
		Remote: []Pair{
			{TWSE: broken.URL + "?strMode=2", TPEX: broken.URL + "?strMode=4"},
			{TWSE: healthy.URL + "?strMode=2", TPEX: healthy.URL + "?strMode=4"},
		},
		Timeout: time.Second,
	}, zerolog.Nop())

	res, err := r.Refresh(context.Background())
	if err != nil {
		t.Fatalf("第二来源可用时不应报错: %v", err)
	}
	if want := []string{"1101", "2330", "6488"}; !reflect.DeepEqual(res.Codes, want) {
		t.Fatalf("期望 %v, 实际 %v", want, res.Codes)
	}
	if res.TWSE != 2 || res.TPEX != 2 {
		t.Fatalf("分市场计数不正确: %+v", res)
	}
}

func TestRefreshFallsBackToLocalFiles(t *testing.T) {
	dir := t.TempDir()
	twse := filepath.Join(dir, "twse.html")
	tpex := filepath.Join(dir, "tpex.html")
	_ = os.WriteFile(twse, []byte(twsePage), 0o644)
	_ = os.WriteFile(tpex, []byte(tpexPage), 0o644)

	r := NewRefresher(RefreshOptions{
		Remote:  []Pair{{TWSE: "http://127.0.0.1:1/twse", TPEX: "http://127.0.0.1:1/tpex"}},
		Local:   Pair{TWSE: twse, TPEX: tpex},
		Timeout: time.Second,
	}, zerolog.Nop())

	res, err := r.Refresh(context.Background())
	if err != nil {
		t.Fatalf("本地文件可用时不应报错: %v", err)
	}
	if res.Source != "local" || len(res.Codes) != 3 {
		t.Fatalf("应使用本地文件: %+v", res)
	}
}

func TestRefreshNoSource(t *testing.T) {
	r := NewRefresher(RefreshOptions{
		Local: Pair{TWSE: filepath.Join(t.TempDir(), "missing.html"), TPEX: "missing.html"},
	}, zerolog.Nop())

	if _, err := r.Refresh(context.Background()); !errors.Is(err, ErrNoSource) {
		t.Fatalf("无可用来源时应返回 ErrNoSource, 实际 %v", err)
	}
}
