package dedup

import (
	"testing"
	"time"

	"twscan/internal/rules"
)

type fakeClock struct {
	t time.Time
}

func (c *fakeClock) Now() time.Time          { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func TestFixedWindow(t *testing.T) {
	clock := &fakeClock{t: time.Date(2024, 5, 6, 9, 0, 0, 0, time.UTC)}
	d := NewWithClock(FixedWindow{Window: 30 * time.Minute}, clock.Now)

	if !d.ShouldPush("2330", rules.R2DailyMA34Up) {
		t.Fatal("首次推送应允许")
	}
	clock.Advance(29 * time.Minute)
	if d.ShouldPush("2330", rules.R2DailyMA34Up) {
		t.Fatal("冷却期内应被抑制")
	}
	clock.Advance(time.Minute)
	if !d.ShouldPush("2330", rules.R2DailyMA34Up) {
		t.Fatal("冷却期满应允许")
	}
	if d.ShouldPush("2330", rules.R2DailyMA34Up) {
		t.Fatal("允许后应重新计时")
	}
}

func TestRulesGatedIndependently(t *testing.T) {
	clock := &fakeClock{t: time.Date(2024, 5, 6, 9, 0, 0, 0, time.UTC)}
	d := NewWithClock(FixedWindow{Window: time.Hour}, clock.Now)

	if !d.ShouldPush("2330", rules.R1MACDCombo) {
		t.Fatal("R1 首次应允许")
	}
	if !d.ShouldPush("2330", rules.R4DailyMA5Up) {
		t.Fatal("不同规则应独立计算")
	}
	if !d.ShouldPush("2317", rules.R1MACDCombo) {
		t.Fatal("不同代码应独立计算")
	}
	if d.Len() != 3 {
		t.Fatalf("应记录 3 条, 实际 %d", d.Len())
	}
}

func TestOncePerCalendarDay(t *testing.T) {
	taipei := time.FixedZone("Asia/Taipei", 8*3600)
	// 23:50 Taipei on May 6.
	clock := &fakeClock{t: time.Date(2024, 5, 6, 15, 50, 0, 0, time.UTC)}
	d := NewWithClock(OncePerCalendarDay{Location: taipei}, clock.Now)

	if !d.ShouldPush("2330", rules.R6PriceAboveFloor) {
		t.Fatal("当日首次应允许")
	}
	clock.Advance(5 * time.Minute)
	if d.ShouldPush("2330", rules.R6PriceAboveFloor) {
		t.Fatal("同一日不应重复推送")
	}
	clock.Advance(10 * time.Minute)
	if !d.ShouldPush("2330", rules.R6PriceAboveFloor) {
		t.Fatal("跨过本地午夜后应允许")
	}
}

func TestFilterPreservesOrder(t *testing.T) {
	clock := &fakeClock{t: time.Unix(0, 0)}
	d := NewWithClock(FixedWindow{Window: time.Minute}, clock.Now)
	d.ShouldPush("2330", rules.R2DailyMA34Up)

	in := []rules.Signal{
		{Rule: rules.R1MACDCombo, Note: "a"},
		{Rule: rules.R2DailyMA34Up, Note: "b"},
		{Rule: rules.R8PriceAboveDailyMA, Note: "c"},
	}
	out := d.Filter("2330", in)
	if len(out) != 2 || out[0].Note != "a" || out[1].Note != "c" {
		t.Fatalf("过滤结果不正确: %v", out)
	}
}

func TestZeroWindowAlwaysAllows(t *testing.T) {
	d := NewWithClock(FixedWindow{}, (&fakeClock{t: time.Unix(100, 0)}).Now)
	for i := 0; i < 3; i++ {
		if !d.ShouldPush("2330", rules.R1MACDCombo) {
			t.Fatal("零冷却应始终允许")
		}
	}
}
