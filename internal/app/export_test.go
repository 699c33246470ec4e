package app

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"
	"time"

	"twscan/internal/fetcher"
	"twscan/internal/indicator"
)

func sampleSeries(n int) fetcher.Series {
	closes := make([]float64, n)
	ts := make([]int64, n)
	start := time.Date(2024, 1, 2, 1, 0, 0, 0, time.UTC)
	for i := range closes {
		closes[i] = 100 + float64(i%7)
		ts[i] = start.AddDate(0, 0, i).Unix()
	}
	return fetcher.Series{Timestamps: ts, Close: indicator.Floats(closes...), Volume: indicator.Floats(closes...)}
}

func TestBuildRowsAlignsIndicators(t *testing.T) {
	rows := buildRows(sampleSeries(40), 12, 26, 9, time.UTC)
	if len(rows) != 40 {
		t.Fatalf("行数应与序列一致, 实际 %d", len(rows))
	}
	if rows[3].MA5.Valid || !rows[4].MA5.Valid {
		t.Fatalf("MA5 应从第 5 根开始有效")
	}
	if rows[32].MA34.Valid || !rows[33].MA34.Valid {
		t.Fatalf("MA34 应从第 34 根开始有效")
	}
	if rows[0].Time.Format(time.DateOnly) != "2024-01-02" {
		t.Fatalf("时间戳转换错误: %s", rows[0].Time)
	}
}

func TestDownsampleRows(t *testing.T) {
	rows := buildRows(sampleSeries(100), 12, 26, 9, time.UTC)
	got := downsampleRows(rows, 10)
	if len(got) != 10 {
		t.Fatalf("应降采样到 10 行, 实际 %d", len(got))
	}
	if got[0].Time != rows[0].Time || got[9].Time != rows[99].Time {
		t.Fatalf("降采样应保留首尾")
	}
	if len(downsampleRows(rows, 0)) != 100 {
		t.Fatal("max 非正时应原样返回")
	}
}

func TestWriteRowsCSV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "2330.csv")
	rows := buildRows(sampleSeries(6), 12, 26, 9, time.UTC)
	if err := writeRowsCSV(path, rows); err != nil {
		t.Fatalf("写入 CSV 失败: %v", err)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("打开 CSV 失败: %v", err)
	}
	defer f.Close()

	records, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatalf("解析 CSV 失败: %v", err)
	}
	if len(records) != 7 || records[0][0] != "date" {
		t.Fatalf("CSV 结构不正确: %v", records)
	}
	if records[1][3] != "" || records[5][3] == "" {
		t.Fatalf("MA5 缺失值应为空, 有效值应填充: %v / %v", records[1], records[5])
	}
}

func TestWriteRowsPNG(t *testing.T) {
	path := filepath.Join(t.TempDir(), "2330.png")
	rows := buildRows(sampleSeries(60), 12, 26, 9, time.UTC)
	if err := writeRowsPNG(path, "2330.TW", rows); err != nil {
		t.Fatalf("渲染 PNG 失败: %v", err)
	}
	info, err := os.Stat(path)
	if err != nil || info.Size() == 0 {
		t.Fatalf("PNG 文件应非空: %v", err)
	}
}
