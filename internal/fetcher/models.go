package fetcher

import (
	"github.com/guregu/null/v6"
	"github.com/shopspring/decimal"
)

// Quote is a point-in-time snapshot for one symbol. It is only meaningful for the
// cycle in which it was fetched.
type Quote struct {
	Symbol        string
	DisplayName   string
	Exchange      string
	Price         decimal.NullDecimal
	PreviousClose decimal.NullDecimal
	ChangePercent decimal.NullDecimal
	Volume        null.Int
}

// Series is a column-oriented OHLCV history aligned by index. Any element may be
// null when the source has no value for that bar.
type Series struct {
	Timestamps []int64
	Open       []null.Float
	High       []null.Float
	Low        []null.Float
	Close      []null.Float
	Volume     []null.Float
}

// Len reports the number of bars, measured on the close column.
func (s Series) Len() int { return len(s.Close) }

// IsEmpty reports whether the series carries no bars.
func (s Series) IsEmpty() bool { return len(s.Timestamps) == 0 && len(s.Close) == 0 }
