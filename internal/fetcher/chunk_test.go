package fetcher

import (
	"context"
	"errors"
	"strings"
	"testing"
)

type recordingQuotes struct {
	calls   [][]string
	failOn  int
	unknown map[string]bool
}

func (r *recordingQuotes) FetchQuotes(ctx context.Context, symbols []string) (map[string]Quote, error) {
	r.calls = append(r.calls, append([]string(nil), symbols...))
	if len(r.calls) == r.failOn {
		return nil, errors.New("upstream down")
	}
	out := make(map[string]Quote)
	for _, s := range symbols {
		if !r.unknown[s] {
			out[s] = Quote{Symbol: s}
		}
	}
	return out, nil
}

func TestFetchQuotesInChunksMerges(t *testing.T) {
	src := &recordingQuotes{unknown: map[string]bool{"C": true}}
	got, errs := FetchQuotesInChunks(context.Background(), src, []string{"A", "B", "C", "D", "E"}, 2)

	if len(errs) != 0 {
		t.Fatalf("不应有错误: %v", errs)
	}
	if len(src.calls) != 3 {
		t.Fatalf("5 个代码按 2 分组应请求 3 次, 实际 %d", len(src.calls))
	}
	if strings.Join(src.calls[2], ",") != "E" {
		t.Fatalf("最后一组应只含 E: %v", src.calls[2])
	}
	if len(got) != 4 {
		t.Fatalf("未知代码应缺席, 实际 %d 条", len(got))
	}
}

func TestFetchQuotesInChunksToleratesFailure(t *testing.T) {
	src := &recordingQuotes{failOn: 1}
	got, errs := FetchQuotesInChunks(context.Background(), src, []string{"A", "B", "C"}, 2)

	if len(errs) != 1 {
		t.Fatalf("应收集 1 个错误, 实际 %d", len(errs))
	}
	if _, ok := got["C"]; !ok || len(got) != 1 {
		t.Fatalf("失败分组不应影响其他分组: %v", got)
	}
}
