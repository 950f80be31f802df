package yahoo

import (
	"errors"
	"fmt"
	"net/http"
	"time"
)

// APIError represents a non-200 answer from the Yahoo API.
type APIError struct {
	StatusCode int
	Message    string
	Endpoint   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("Yahoo API error: %s (status: %d, endpoint: %s)", e.Message, e.StatusCode, e.Endpoint)
}

// IsUnauthorized reports whether err is a 401 from the API, which means the crumb went stale.
func IsUnauthorized(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusUnauthorized
}

// ScreenCriteria filters the equity screener.
type ScreenCriteria struct {
	Exchanges    []string
	MinChangePct float64
	MinVolume    int64
	MinPrice     float64
	Size         int
}

// Quote is one screener row. Numeric fields are nil when Yahoo omits them.
type Quote struct {
	Symbol                     string   `json:"symbol"`
	LongName                   string   `json:"longName"`
	ShortName                  string   `json:"shortName"`
	Exchange                   string   `json:"exchange"`
	QuoteType                  string   `json:"quoteType"`
	RegularMarketPrice         *float64 `json:"regularMarketPrice"`
	RegularMarketChange        *float64 `json:"regularMarketChange"`
	RegularMarketChangePercent *float64 `json:"regularMarketChangePercent"`
	RegularMarketVolume        *int64   `json:"regularMarketVolume"`
	MarketCap                  *float64 `json:"marketCap"`
}

// DisplayName prefers the long name.
func (q Quote) DisplayName() string {
	if q.LongName != "" {
		return q.LongName
	}
	return q.ShortName
}

// ChartBar is one daily candle. Prices are nil for sessions Yahoo reports as null.
type ChartBar struct {
	Date   time.Time
	Open   *float64
	High   *float64
	Low    *float64
	Close  *float64
	Volume *int64
}

// Article is one headline from the search endpoint.
type Article struct {
	UUID                string `json:"uuid"`
	Title               string `json:"title"`
	Publisher           string `json:"publisher"`
	Link                string `json:"link"`
	ProviderPublishTime int64  `json:"providerPublishTime"`
	Type                string `json:"type"`
}

// PublishedAt returns the publish time, or zero if Yahoo did not provide one.
func (a Article) PublishedAt() time.Time {
	if a.ProviderPublishTime <= 0 {
		return time.Time{}
	}
	return time.Unix(a.ProviderPublishTime, 0).UTC()
}

type screenerQuery struct {
	Operator string        `json:"operator"`
	Operands []interface{} `json:"operands"`
}

type screenerRequest struct {
	Size       int           `json:"size"`
	Offset     int           `json:"offset"`
	SortField  string        `json:"sortField"`
	SortType   string        `json:"sortType"`
	QuoteType  string        `json:"quoteType"`
	Query      screenerQuery `json:"query"`
	UserID     string        `json:"userId"`
	UserIDType string        `json:"userIdType"`
}

type screenerResponse struct {
	Finance struct {
		Result []struct {
			Total  int     `json:"total"`
			Quotes []Quote `json:"quotes"`
		} `json:"result"`
		Error *struct {
			Code        string `json:"code"`
			Description string `json:"description"`
		} `json:"error"`
	} `json:"finance"`
}

type chartResponse struct {
	Chart struct {
		Result []struct {
			Meta struct {
				Symbol    string `json:"symbol"`
				GMTOffset int    `json:"gmtoffset"`
				Timezone  string `json:"timezone"`
			} `json:"meta"`
			Timestamp  []int64 `json:"timestamp"`
			Indicators struct {
				Quote []struct {
					Open   []*float64 `json:"open"`
					High   []*float64 `json:"high"`
					Low    []*float64 `json:"low"`
					Close  []*float64 `json:"close"`
					Volume []*int64   `json:"volume"`
				} `json:"quote"`
			} `json:"indicators"`
		} `json:"result"`
		Error *struct {
			Code        string `json:"code"`
			Description string `json:"description"`
		} `json:"error"`
	} `json:"chart"`
}

type searchResponse struct {
	News []Article `json:"news"`
}
