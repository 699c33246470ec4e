// Package dedup decides whether a fired rule may be pushed again for a symbol.
package dedup

import (
	"time"

	"twscan/internal/rules"
)

// Policy selects how repeated pushes are suppressed. It is implemented by
// FixedWindow and OncePerCalendarDay only.
type Policy interface {
	policy()
}

// FixedWindow allows a push when at least Window has passed since the last one.
type FixedWindow struct {
	Window time.Duration
}

// OncePerCalendarDay allows one push per symbol and rule per calendar date in
// Location.
type OncePerCalendarDay struct {
	Location *time.Location
}

func (FixedWindow) policy()        {}
func (OncePerCalendarDay) policy() {}

type key struct {
	symbol string
	rule   rules.ID
	day    string
}

// Deduplicator remembers the last push per (symbol, rule). It is not safe for
// concurrent use; the scan loop owns it.
type Deduplicator struct {
	policy Policy
	last   map[key]time.Time
	now    func() time.Time
}

// New builds a deduplicator using the wall clock.
func New(policy Policy) *Deduplicator {
	return NewWithClock(policy, time.Now)
}

// NewWithClock builds a deduplicator with an injected clock.
func NewWithClock(policy Policy, now func() time.Time) *Deduplicator {
	if p, ok := policy.(OncePerCalendarDay); ok && p.Location == nil {
		policy = OncePerCalendarDay{Location: time.Local}
	}
	return &Deduplicator{
		policy: policy,
		last:   make(map[key]time.Time),
		now:    now,
	}
}

// ShouldPush reports whether the rule may be pushed for symbol now. A true
// result is recorded immediately, before any delivery attempt.
func (d *Deduplicator) ShouldPush(symbol string, rule rules.ID) bool {
	now := d.now()

	switch p := d.policy.(type) {
	case OncePerCalendarDay:
		k := key{symbol: symbol, rule: rule, day: now.In(p.Location).Format(time.DateOnly)}
		if _, seen := d.last[k]; seen {
			return false
		}
		d.last[k] = now
		return true
	case FixedWindow:
		k := key{symbol: symbol, rule: rule}
		if last, seen := d.last[k]; seen && now.Sub(last) < p.Window {
			return false
		}
		d.last[k] = now
		return true
	default:
		return true
	}
}

// Filter keeps the signals that pass ShouldPush, preserving order.
func (d *Deduplicator) Filter(symbol string, signals []rules.Signal) []rules.Signal {
	var out []rules.Signal
	for _, sig := range signals {
		if d.ShouldPush(symbol, sig.Rule) {
			out = append(out, sig)
		}
	}
	return out
}

// Len reports how many (symbol, rule) entries are tracked.
func (d *Deduplicator) Len() int {
	return len(d.last)
}
