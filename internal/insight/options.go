// Package insight extracts financial metrics, corporate events, an
// extractive summary and section segmentation from report text.
package insight

import (
	"fmt"
	"time"
)

// Entity types
const (
	EntityMarketCap       = "market_cap"
	EntityEPS             = "EPS"
	EntityRevenueGrowth   = "revenue_growth"
	EntityStockPriceTrend = "stock_price_trend"
	EntityDividendYield   = "dividend_yield"
	EntityPERatio         = "pe_ratio"
)

// Event types
const (
	EventIPO          = "IPO"
	EventMA           = "M&A"
	EventEarningsCall = "earnings_call"
	EventDividend     = "dividend"
)

// MaxConfidence is the highest accepted confidence threshold
const MaxConfidence = 0.99

// EntityTypes lists every supported entity type
func EntityTypes() []string {
	return []string{EntityMarketCap, EntityEPS, EntityRevenueGrowth, EntityStockPriceTrend, EntityDividendYield, EntityPERatio}
}

// EventTypes lists every supported event type
func EventTypes() []string {
	return []string{EventIPO, EventMA, EventEarningsCall, EventDividend}
}

// Options selects what to extract
type Options struct {
	Entities   []string   `json:"entities"`
	Events     []string   `json:"events"`
	Confidence float64    `json:"confidence"`
	From       *time.Time `json:"from,omitempty"`
	To         *time.Time `json:"to,omitempty"`
}

// DefaultOptions mirrors the stock selection of the analysis form
func DefaultOptions() Options {
	return Options{
		Entities:   []string{EntityMarketCap, EntityEPS, EntityRevenueGrowth},
		Events:     []string{EventIPO, EventMA, EventEarningsCall},
		Confidence: 0.5,
	}
}

// Validate checks names, the confidence range and the time frame
func (o Options) Validate() error {
	if o.Confidence < 0 || o.Confidence > MaxConfidence {
		return fmt.Errorf("confidence must be between 0 and %.2f, got %.2f", MaxConfidence, o.Confidence)
	}
	for _, e := range o.Entities {
		if _, ok := entityRules[e]; !ok {
			return fmt.Errorf("unknown entity type %q", e)
		}
	}
	for _, e := range o.Events {
		if _, ok := eventRules[e]; !ok {
			return fmt.Errorf("unknown event type %q", e)
		}
	}
	if o.From != nil && o.To != nil && o.To.Before(*o.From) {
		return fmt.Errorf("time frame end %s is before start %s",
			o.To.Format(time.DateOnly), o.From.Format(time.DateOnly))
	}
	return nil
}

// inTimeFrame reports whether an event date passes the optional filter.
// Undated events always pass.
func (o Options) inTimeFrame(date *time.Time) bool {
	if date == nil {
		return true
	}
	if o.From != nil && date.Before(*o.From) {
		return false
	}
	if o.To != nil && date.After(*o.To) {
		return false
	}
	return true
}
