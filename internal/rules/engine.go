package rules

import (
	"github.com/guregu/null/v6"
	"github.com/shopspring/decimal"

	"twscan/internal/indicator"
)

// Toggles enables individual rules. Disabled rules are never evaluated.
type Toggles map[ID]bool

// AllEnabled returns toggles with every rule switched on.
func AllEnabled() Toggles {
	t := make(Toggles, len(All))
	for _, id := range All {
		t[id] = true
	}
	return t
}

// Params are the thresholds shared by the rules.
type Params struct {
	MACDEps     float64
	BandMinPct  decimal.Decimal
	BandMaxPct  decimal.Decimal
	PriceFloor  decimal.Decimal
	VolumeFloor int64
}

// Input is everything the rules look at for one symbol in one cycle.
type Input struct {
	Price     decimal.NullDecimal
	Volume    null.Int
	DailyMA5  []null.Float
	DailyMA34 []null.Float
	DailyHist []null.Float
	WeeklyMA5 []null.Float
}

// Engine evaluates the enabled rules in a fixed order.
type Engine struct {
	toggles Toggles
	params  Params
}

// NewEngine builds an engine. A nil toggles map enables every rule.
func NewEngine(toggles Toggles, params Params) *Engine {
	if toggles == nil {
		toggles = AllEnabled()
	}
	return &Engine{toggles: toggles, params: params}
}

// Enabled reports whether a rule is switched on.
func (e *Engine) Enabled(id ID) bool {
	return e.toggles[id]
}

// Evaluate returns the signals that fired, in rule order.
func (e *Engine) Evaluate(in Input) []Signal {
	ma5Last := indicator.Last(in.DailyMA5)

	checks := []struct {
		id   ID
		eval func() (Signal, bool)
	}{
		{R1MACDCombo, func() (Signal, bool) { return MACDCombo(in.DailyHist, e.params.MACDEps) }},
		{R2DailyMA34Up, func() (Signal, bool) { return DailyMA34Up(in.DailyMA34) }},
		{R3WeeklyMA5Pattern, func() (Signal, bool) { return WeeklyMA5Pattern(in.WeeklyMA5) }},
		{R4DailyMA5Up, func() (Signal, bool) { return DailyMA5Up(in.DailyMA5) }},
		{R5WithinBandOfMA5, func() (Signal, bool) {
			return WithinBandOfMA5(in.Price, ma5Last, e.params.BandMinPct, e.params.BandMaxPct)
		}},
		{R6PriceAboveFloor, func() (Signal, bool) { return PriceAbove(in.Price, e.params.PriceFloor) }},
		{R7VolumeAboveFloor, func() (Signal, bool) { return VolumeAbove(in.Volume, e.params.VolumeFloor) }},
		{R8PriceAboveDailyMA, func() (Signal, bool) { return PriceAboveMA5(in.Price, ma5Last) }},
	}

	var fired []Signal
	for _, c := range checks {
		if !e.toggles[c.id] {
			continue
		}
		if sig, ok := c.eval(); ok {
			fired = append(fired, sig)
		}
	}
	return fired
}
