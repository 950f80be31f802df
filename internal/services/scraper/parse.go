package scraper

import (
	"fmt"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/ternarybob/moverwatch/internal/common"
	"github.com/ternarybob/moverwatch/internal/models"
)

// Column layout of the top-gainers table: rank, symbol, name, price, change, change %, volume, turnover, market cap
const (
	gainerColSymbol    = 1
	gainerColName      = 2
	gainerColPrice     = 3
	gainerColChange    = 4
	gainerColChangePct = 5
	gainerColVolume    = 6
	gainerColMarketCap = 8
	gainerMinColumns   = 9
)

// Column layout of the quote history table: date, open, high, low, close, adj close, volume
const (
	historyMinColumns = 7
	historyDateLayout = "Jan 2, 2006"
)

// ParseTopGainer reads the first row of the gainers table.
// Numeric cells that cannot be parsed are left nil rather than failing the row.
func ParseTopGainer(html string, now time.Time) (*models.Mover, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("Futunn: failed to parse page: %w", err)
	}

	rows := doc.Find("table tbody tr")
	if rows.Length() == 0 {
		return nil, fmt.Errorf("Futunn: no rows found in gainers table: %w", models.ErrNoRows)
	}

	cells := rows.First().Find("td")
	if cells.Length() < gainerMinColumns {
		return nil, fmt.Errorf("Futunn: unexpected column count (%d)", cells.Length())
	}

	cell := func(i int) string { return cellText(cells.Eq(i)) }

	return &models.Mover{
		Timestamp:      models.Timestamp(now),
		Symbol:         cell(gainerColSymbol),
		Name:           models.StringPtr(cell(gainerColName)),
		Exchange:       "NASDAQ",
		Price:          common.ParseNumberPtr(cell(gainerColPrice)),
		ChangeAbsolute: common.ParseNumberPtr(cell(gainerColChange)),
		ChangePct:      common.ParseNumberPtr(cell(gainerColChangePct)),
		Volume:         common.ParseIntPtr(cell(gainerColVolume)),
		MarketCap:      common.ParseNumberPtr(cell(gainerColMarketCap)),
	}, nil
}

// ParseHistory reads the newest rows of the quote history table.
// The page has no period filter, so only the first period.TradingDays() rows are considered;
// dividend and split rows inside that window are skipped, not replaced.
func ParseHistory(html, symbol string, period models.Period) (*models.HistoryResult, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("Yahoo Finance history: failed to parse page: %w", err)
	}

	table := doc.Find("table").First()
	if table.Length() == 0 {
		return nil, fmt.Errorf("Yahoo Finance history: no table found for %s: %w", symbol, models.ErrNoRows)
	}

	rows := table.Find("tbody tr")
	if rows.Length() == 0 {
		return nil, fmt.Errorf("Yahoo Finance history: no rows for %s: %w", symbol, models.ErrNoRows)
	}

	data := make(map[string]models.Bar)
	rows.Slice(0, min(rows.Length(), period.TradingDays())).Each(func(_ int, row *goquery.Selection) {
		cells := row.Find("td")
		if cells.Length() < historyMinColumns {
			return
		}

		date, err := time.Parse(historyDateLayout, cellText(cells.Eq(0)))
		if err != nil {
			return
		}

		open, ok1 := common.ParseNumber(cellText(cells.Eq(1)))
		high, ok2 := common.ParseNumber(cellText(cells.Eq(2)))
		low, ok3 := common.ParseNumber(cellText(cells.Eq(3)))
		closePrice, ok4 := common.ParseNumber(cellText(cells.Eq(4)))
		volume := common.ParseIntPtr(cellText(cells.Eq(6)))
		if !ok1 || !ok2 || !ok3 || !ok4 || volume == nil {
			return
		}

		data[date.Format("2006-01-02")] = models.Bar{
			Open:   common.Round2(open),
			High:   common.Round2(high),
			Low:    common.Round2(low),
			Close:  common.Round2(closePrice),
			Volume: *volume,
		}
	})

	if len(data) == 0 {
		return nil, fmt.Errorf("Yahoo Finance history: no parseable rows for %s: %w", symbol, models.ErrNoRows)
	}

	return &models.HistoryResult{
		Symbol: strings.ToUpper(symbol),
		Period: period,
		Data:   data,
	}, nil
}

// ParseNews reads up to MaxNewsItems headlines from a quote news page.
// Items without a title are dropped; every other field may be nil.
func ParseNews(html, symbol string, now time.Time) (*models.NewsResult, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("Yahoo Finance news: failed to parse page: %w", err)
	}

	items := doc.Find("li:has(h3)")
	if items.Length() == 0 {
		return nil, fmt.Errorf("Yahoo Finance news: no items found for %s: %w", symbol, models.ErrNoRows)
	}

	news := make([]models.NewsItem, 0, models.MaxNewsItems)
	items.Slice(0, min(items.Length(), models.MaxNewsItems)).Each(func(_ int, item *goquery.Selection) {
		title := cellText(item.Find("h3").First())
		if title == "" {
			return
		}

		var link string
		if href, ok := item.Find("a[href]").First().Attr("href"); ok {
			link = strings.TrimSpace(href)
			if strings.HasPrefix(link, "/") {
				link = yahooFinanceOrigin + link
			}
		}

		var publisher, publishedAt string
		if publishing := item.Find("div.publishing").First(); publishing.Length() > 0 {
			parts := strings.Split(publishing.Text(), "•")
			publisher = strings.TrimSpace(parts[0])
			if len(parts) > 1 {
				publishedAt = strings.TrimSpace(parts[1])
			}
		}

		news = append(news, models.NewsItem{
			Title:       models.StringPtr(title),
			Publisher:   models.StringPtr(publisher),
			PublishedAt: models.StringPtr(publishedAt),
			URL:         models.StringPtr(link),
		})
	})

	if len(news) == 0 {
		return nil, fmt.Errorf("Yahoo Finance news: no parseable items for %s: %w", symbol, models.ErrNoRows)
	}

	return &models.NewsResult{
		Symbol:    strings.ToUpper(symbol),
		Timestamp: models.Timestamp(now),
		News:      news,
	}, nil
}

// cellText approximates innerText: collapse whitespace and trim.
func cellText(s *goquery.Selection) string {
	return strings.Join(strings.Fields(s.Text()), " ")
}
