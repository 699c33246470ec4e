// Package rules holds the eight alerting predicates evaluated per symbol each
// cycle. Predicates are pure: missing data means the rule did not fire.
package rules

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/guregu/null/v6"
	"github.com/shopspring/decimal"

	"twscan/internal/indicator"
)

// ID identifies a rule. It is also the key the deduplicator gates on.
type ID string

const (
	R1MACDCombo         ID = "R1"
	R2DailyMA34Up       ID = "R2"
	R3WeeklyMA5Pattern  ID = "R3"
	R4DailyMA5Up        ID = "R4"
	R5WithinBandOfMA5   ID = "R5"
	R6PriceAboveFloor   ID = "R6"
	R7VolumeAboveFloor  ID = "R7"
	R8PriceAboveDailyMA ID = "R8"
)

// All lists the rules in evaluation order.
var All = []ID{
	R1MACDCombo, R2DailyMA34Up, R3WeeklyMA5Pattern, R4DailyMA5Up,
	R5WithinBandOfMA5, R6PriceAboveFloor, R7VolumeAboveFloor, R8PriceAboveDailyMA,
}

// Signal is one fired rule with its operator-facing note.
type Signal struct {
	Rule ID
	Note string
}

// HistogramTransition classifies the last two MACD histogram bars.
type HistogramTransition int

const (
	NoTransition HistogramTransition = iota
	GreenShrinking
	GreenToRed
	RedGrowing
)

func (h HistogramTransition) String() string {
	switch h {
	case GreenShrinking:
		return "綠柱縮短"
	case GreenToRed:
		return "綠轉紅"
	case RedGrowing:
		return "紅柱變大"
	default:
		return ""
	}
}

// ClassifyHistogram applies the eps-tolerant transition checks in priority order.
func ClassifyHistogram(prev, now, eps float64) HistogramTransition {
	switch {
	case now < -eps && prev < -eps && now > prev+eps:
		return GreenShrinking
	case prev < -eps && now >= -eps:
		return GreenToRed
	case now > eps && prev > eps && now > prev+eps:
		return RedGrowing
	default:
		return NoTransition
	}
}

// MACDCombo fires on any of the three histogram transitions.
func MACDCombo(hist []null.Float, eps float64) (Signal, bool) {
	prev, now := indicator.FromEnd(hist, 2), indicator.Last(hist)
	if !prev.Valid || !now.Valid {
		return Signal{}, false
	}
	tr := ClassifyHistogram(prev.Float64, now.Float64, eps)
	if tr == NoTransition {
		return Signal{}, false
	}
	return Signal{
		Rule: R1MACDCombo,
		Note: fmt.Sprintf("R1 MACD %s (hist 前:%.5f 今:%.5f)", tr, prev.Float64, now.Float64),
	}, true
}

// DailyMA34Up fires when the daily 34-period average rose on the last bar.
func DailyMA34Up(ma34 []null.Float) (Signal, bool) {
	if !rising(ma34) {
		return Signal{}, false
	}
	return Signal{Rule: R2DailyMA34Up, Note: "R2 日34MA上揚"}, true
}

// WeeklyMA5Pattern fires when the weekly 5-period average held then rose.
func WeeklyMA5Pattern(ma5w []null.Float) (Signal, bool) {
	a, b, c := indicator.FromEnd(ma5w, 3), indicator.FromEnd(ma5w, 2), indicator.Last(ma5w)
	if !a.Valid || !b.Valid || !c.Valid {
		return Signal{}, false
	}
	if a.Float64 <= b.Float64 && b.Float64 < c.Float64 {
		return Signal{Rule: R3WeeklyMA5Pattern, Note: "R3 週5MA型態成立"}, true
	}
	return Signal{}, false
}

// DailyMA5Up fires when the daily 5-period average rose on the last bar.
func DailyMA5Up(ma5 []null.Float) (Signal, bool) {
	if !rising(ma5) {
		return Signal{}, false
	}
	return Signal{Rule: R4DailyMA5Up, Note: "R4 日5MA上揚"}, true
}

// WithinBandOfMA5 fires when the percentage distance of price above the daily
// MA5 lies inside [minPct, maxPct].
func WithinBandOfMA5(price decimal.NullDecimal, ma5 null.Float, minPct, maxPct decimal.Decimal) (Signal, bool) {
	if !price.Valid || !ma5.Valid || ma5.Float64 == 0 {
		return Signal{}, false
	}
	avg := decimal.NewFromFloat(ma5.Float64)
	diff := price.Decimal.Sub(avg).Div(avg).Mul(decimal.NewFromInt(100))
	if diff.LessThan(minPct) || diff.GreaterThan(maxPct) {
		return Signal{}, false
	}
	return Signal{
		Rule: R5WithinBandOfMA5,
		Note: fmt.Sprintf("R5 價距日5MA %s%% 在 %s~%s%%", diff.StringFixed(2), minPct.String(), maxPct.String()),
	}, true
}

// PriceAbove fires when price is strictly above floor.
func PriceAbove(price decimal.NullDecimal, floor decimal.Decimal) (Signal, bool) {
	if !price.Valid || !price.Decimal.GreaterThan(floor) {
		return Signal{}, false
	}
	return Signal{Rule: R6PriceAboveFloor, Note: "R6 價>" + floor.String()}, true
}

// VolumeAbove fires when the session volume in shares is strictly above floor.
func VolumeAbove(volume null.Int, floor int64) (Signal, bool) {
	if !volume.Valid || volume.Int64 <= floor {
		return Signal{}, false
	}
	return Signal{
		Rule: R7VolumeAboveFloor,
		Note: fmt.Sprintf("R7 量 %s > %s 股", groupThousands(volume.Int64), groupThousands(floor)),
	}, true
}

// PriceAboveMA5 fires when price is strictly above the latest daily MA5.
func PriceAboveMA5(price decimal.NullDecimal, ma5 null.Float) (Signal, bool) {
	if !price.Valid || !ma5.Valid {
		return Signal{}, false
	}
	if !price.Decimal.GreaterThan(decimal.NewFromFloat(ma5.Float64)) {
		return Signal{}, false
	}
	return Signal{Rule: R8PriceAboveDailyMA, Note: fmt.Sprintf("R8 價>%.2f(日5MA)", ma5.Float64)}, true
}

func rising(values []null.Float) bool {
	prev, now := indicator.FromEnd(values, 2), indicator.Last(values)
	return prev.Valid && now.Valid && now.Float64 > prev.Float64
}

func groupThousands(n int64) string {
	s := strconv.FormatInt(n, 10)
	neg := strings.HasPrefix(s, "-")
	if neg {
		s = s[1:]
	}
	var b strings.Builder
	for i, r := range s {
		if i > 0 && (len(s)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(r)
	}
	if neg {
		return "-" + b.String()
	}
	return b.String()
}
