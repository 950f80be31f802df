package models

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// Period is a history window token accepted by the history fetcher.
type Period string

const (
	Period1D  Period = "1d"
	Period5D  Period = "5d"
	Period1MO Period = "1mo"
	Period3MO Period = "3mo"
	Period6MO Period = "6mo"
	Period1Y  Period = "1y"
	Period2Y  Period = "2y"
	Period5Y  Period = "5y"
	Period10Y Period = "10y"
)

// DefaultPeriod is used when the caller does not pick one.
const DefaultPeriod = Period5D

// periodTradingDays approximates the number of trading sessions per period.
// Holidays are ignored, so the counts are upper bounds rather than exact.
var periodTradingDays = map[Period]int{
	Period1D:  1,
	Period5D:  5,
	Period1MO: 21,
	Period3MO: 63,
	Period6MO: 126,
	Period1Y:  252,
	Period2Y:  504,
	Period5Y:  1260,
	Period10Y: 2520,
}

// ValidPeriods returns the accepted period tokens in ascending window order.
func ValidPeriods() []Period {
	return []Period{Period1D, Period5D, Period1MO, Period3MO, Period6MO, Period1Y, Period2Y, Period5Y, Period10Y}
}

// PeriodNames returns ValidPeriods as plain strings, for schemas and flag help.
func PeriodNames() []string {
	periods := ValidPeriods()
	names := make([]string, len(periods))
	for i, p := range periods {
		names[i] = string(p)
	}
	return names
}

// ParsePeriod normalises a token and reports an error for anything outside the set.
func ParsePeriod(s string) (Period, error) {
	p := Period(strings.ToLower(strings.TrimSpace(s)))
	if p == "" {
		return DefaultPeriod, nil
	}
	if _, ok := periodTradingDays[p]; !ok {
		return "", fmt.Errorf("%w: %q (valid: %s)", ErrInvalidPeriod, s, strings.Join(periodStrings(), ", "))
	}
	return p, nil
}

// TradingDays returns the approximate row count for the period, defaulting to 5.
func (p Period) TradingDays() int {
	if n, ok := periodTradingDays[p]; ok {
		return n
	}
	return periodTradingDays[DefaultPeriod]
}

func periodStrings() []string {
	out := make([]string, 0, len(periodTradingDays))
	for _, p := range ValidPeriods() {
		out = append(out, string(p))
	}
	return out
}

// Mover is the top percent gainer of a session.
// Numeric fields are pointers because the scrape path may not find every cell.
type Mover struct {
	Timestamp      string   `json:"timestamp" validate:"required"`
	Symbol         string   `json:"symbol" validate:"required"`
	Name           *string  `json:"name"`
	Exchange       string   `json:"exchange" validate:"required"`
	Price          *float64 `json:"price" validate:"required,finite"`
	ChangeAbsolute *float64 `json:"change_absolute" validate:"required,finite"`
	ChangePct      *float64 `json:"change_pct" validate:"required,finite"`
	Volume         *int64   `json:"volume" validate:"required,gte=0"`
	MarketCap      *float64 `json:"market_cap" validate:"omitempty,finite"`
}

// Bar is one daily OHLCV record.
type Bar struct {
	Open   float64 `json:"open" validate:"finite"`
	High   float64 `json:"high" validate:"finite"`
	Low    float64 `json:"low" validate:"finite"`
	Close  float64 `json:"close" validate:"finite"`
	Volume int64   `json:"volume" validate:"gte=0"`
}

// HistoryResult is a date-keyed OHLCV series. Dates use the 2006-01-02 layout.
type HistoryResult struct {
	Symbol string         `json:"symbol" validate:"required"`
	Period Period         `json:"period" validate:"required"`
	Data   map[string]Bar `json:"data" validate:"min=1,dive,keys,datetime=2006-01-02,endkeys"`
}

// Dates returns the series keys in ascending order.
func (h *HistoryResult) Dates() []string {
	dates := make([]string, 0, len(h.Data))
	for d := range h.Data {
		dates = append(dates, d)
	}
	sort.Strings(dates)
	return dates
}

// NewsItem is a single headline. Any field may be missing on a partially rendered page.
type NewsItem struct {
	Title       *string `json:"title"`
	Publisher   *string `json:"publisher"`
	PublishedAt *string `json:"published_at"`
	URL         *string `json:"url"`
}

// MaxNewsItems caps the headlines returned per lookup.
const MaxNewsItems = 10

// NewsResult wraps the headlines for one symbol.
type NewsResult struct {
	Symbol    string     `json:"symbol" validate:"required"`
	Timestamp string     `json:"timestamp" validate:"required"`
	News      []NewsItem `json:"news" validate:"max=10"`
}

// Timestamp formats t the way every fetch result records its fetch time.
func Timestamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

// StringPtr returns nil for an empty string.
func StringPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// Float64Ptr wraps a float.
func Float64Ptr(f float64) *float64 {
	return &f
}

// Int64Ptr wraps an int64.
func Int64Ptr(n int64) *int64 {
	return &n
}
