package yahoo

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

// Screen runs the equity screener sorted by percent change descending.
// A stale crumb is refreshed once on 401.
func (c *Client) Screen(ctx context.Context, criteria ScreenCriteria) ([]Quote, error) {
	body := buildScreenerRequest(criteria)

	var result screenerResponse
	err := c.screen(ctx, body, &result)
	if IsUnauthorized(err) {
		if c.logger != nil {
			c.logger.Debug().Msg("Yahoo crumb rejected, refreshing")
		}
		c.resetCrumb()
		result = screenerResponse{}
		err = c.screen(ctx, body, &result)
	}
	if err != nil {
		return nil, err
	}

	if result.Finance.Error != nil {
		return nil, fmt.Errorf("yahoo screener error: %s", result.Finance.Error.Description)
	}
	if len(result.Finance.Result) == 0 {
		return nil, nil
	}
	return result.Finance.Result[0].Quotes, nil
}

func (c *Client) screen(ctx context.Context, body screenerRequest, result *screenerResponse) error {
	crumb, err := c.getCrumb(ctx)
	if err != nil {
		return err
	}

	params := url.Values{}
	params.Set("crumb", crumb)
	params.Set("formatted", "false")
	params.Set("lang", "en-US")
	params.Set("region", "US")

	return c.do(ctx, http.MethodPost, "/v1/finance/screener", params, body, result)
}

func buildScreenerRequest(criteria ScreenCriteria) screenerRequest {
	exchanges := make([]interface{}, 0, len(criteria.Exchanges))
	for _, ex := range criteria.Exchanges {
		exchanges = append(exchanges, screenerQuery{Operator: "EQ", Operands: []interface{}{"exchange", ex}})
	}

	operands := []interface{}{
		screenerQuery{Operator: "OR", Operands: exchanges},
		screenerQuery{Operator: "GT", Operands: []interface{}{"percentchange", criteria.MinChangePct}},
		screenerQuery{Operator: "GT", Operands: []interface{}{"dayvolume", criteria.MinVolume}},
		screenerQuery{Operator: "GT", Operands: []interface{}{"intradayprice", criteria.MinPrice}},
	}

	size := criteria.Size
	if size <= 0 {
		size = 25
	}

	return screenerRequest{
		Size:       size,
		Offset:     0,
		SortField:  "percentchange",
		SortType:   "DESC",
		QuoteType:  "EQUITY",
		Query:      screenerQuery{Operator: "AND", Operands: operands},
		UserIDType: "guid",
	}
}

// Chart returns daily candles for symbol over a range token such as "5d" or "1y".
// Dates are expressed in the exchange's local offset so they match the trading session.
func (c *Client) Chart(ctx context.Context, symbol, rng string) ([]ChartBar, error) {
	params := url.Values{}
	params.Set("range", rng)
	params.Set("interval", "1d")
	params.Set("includePrePost", "false")
	params.Set("events", "div,splits")

	var result chartResponse
	if err := c.do(ctx, http.MethodGet, "/v8/finance/chart/"+url.PathEscape(symbol), params, nil, &result); err != nil {
		return nil, err
	}

	if result.Chart.Error != nil {
		return nil, fmt.Errorf("yahoo chart error: %s", result.Chart.Error.Description)
	}
	if len(result.Chart.Result) == 0 {
		return nil, nil
	}

	res := result.Chart.Result[0]
	if len(res.Indicators.Quote) == 0 {
		return nil, nil
	}
	quote := res.Indicators.Quote[0]
	zone := time.FixedZone(res.Meta.Timezone, res.Meta.GMTOffset)

	bars := make([]ChartBar, 0, len(res.Timestamp))
	for i, ts := range res.Timestamp {
		bars = append(bars, ChartBar{
			Date:   time.Unix(ts, 0).In(zone),
			Open:   floatAt(quote.Open, i),
			High:   floatAt(quote.High, i),
			Low:    floatAt(quote.Low, i),
			Close:  floatAt(quote.Close, i),
			Volume: intAt(quote.Volume, i),
		})
	}
	return bars, nil
}

// SearchNews returns up to count headlines for symbol.
func (c *Client) SearchNews(ctx context.Context, symbol string, count int) ([]Article, error) {
	params := url.Values{}
	params.Set("q", symbol)
	params.Set("quotesCount", "0")
	params.Set("newsCount", fmt.Sprintf("%d", count))
	params.Set("enableFuzzyQuery", "false")

	var result searchResponse
	if err := c.do(ctx, http.MethodGet, "/v1/finance/search", params, nil, &result); err != nil {
		return nil, err
	}

	if len(result.News) > count {
		return result.News[:count], nil
	}
	return result.News, nil
}

func floatAt(values []*float64, i int) *float64 {
	if i < len(values) {
		return values[i]
	}
	return nil
}

func intAt(values []*int64, i int) *int64 {
	if i < len(values) {
		return values[i]
	}
	return nil
}
