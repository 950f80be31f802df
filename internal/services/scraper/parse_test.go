package scraper

import (
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ternarybob/moverwatch/internal/models"
)

var fixedNow = time.Date(2024, 3, 5, 21, 0, 0, 0, time.UTC)

const gainersPage = `<html><body><table>
<thead><tr><th>#</th><th>Symbol</th><th>Name</th><th>Price</th><th>Chg</th><th>% Chg</th><th>Volume</th><th>Turnover</th><th>Market Cap</th></tr></thead>
<tbody>
<tr><td>1</td><td> ABCD </td><td>Abcd
  Therapeutics Inc</td><td>84.23</td><td>+30.53</td><td>+56.88%</td><td>24.89M</td><td>1.9B</td><td>6.33B</td></tr>
<tr><td>2</td><td>EFGH</td><td>Efgh Corp</td><td>3.10</td><td>+0.90</td><td>+40.91%</td><td>1.5K</td><td>4.6K</td><td>--</td></tr>
</tbody></table></body></html>`

func TestParseTopGainer(t *testing.T) {
	mover, err := ParseTopGainer(gainersPage, fixedNow)
	require.NoError(t, err)

	assert.Equal(t, "ABCD", mover.Symbol)
	require.NotNil(t, mover.Name)
	assert.Equal(t, "Abcd Therapeutics Inc", *mover.Name)
	assert.Equal(t, "NASDAQ", mover.Exchange)
	assert.Equal(t, "2024-03-05T21:00:00Z", mover.Timestamp)
	assert.InDelta(t, 84.23, *mover.Price, 1e-9)
	assert.InDelta(t, 30.53, *mover.ChangeAbsolute, 1e-9)
	assert.InDelta(t, 56.88, *mover.ChangePct, 1e-9)
	assert.Equal(t, int64(24890000), *mover.Volume)
	assert.InDelta(t, 6_330_000_000.0, *mover.MarketCap, 1e-3)
}

func TestParseTopGainerMissingCells(t *testing.T) {
	page := strings.Replace(gainersPage, "<td>84.23</td>", "<td>--</td>", 1)
	mover, err := ParseTopGainer(page, fixedNow)
	require.NoError(t, err)
	assert.Nil(t, mover.Price)
	assert.NotNil(t, mover.ChangePct)
}

func TestParseTopGainerErrors(t *testing.T) {
	_, err := ParseTopGainer(`<html><body><table><tbody></tbody></table></body></html>`, fixedNow)
	require.Error(t, err)
	assert.Equal(t, "Futunn: no rows found in gainers table: no usable rows", err.Error())
	assert.True(t, errors.Is(err, models.ErrNoRows))

	_, err = ParseTopGainer(`<table><tbody><tr><td>1</td><td>ABCD</td><td>x</td></tr></tbody></table>`, fixedNow)
	require.Error(t, err)
	assert.Equal(t, "Futunn: unexpected column count (3)", err.Error())
}

func historyRow(date, open, high, low, closePrice, volume string) string {
	return fmt.Sprintf("<tr><td>%s</td><td>%s</td><td>%s</td><td>%s</td><td>%s</td><td>%s</td><td>%s</td></tr>",
		date, open, high, low, closePrice, closePrice, volume)
}

func historyPage(rows ...string) string {
	return "<html><body><table><thead><tr><th>Date</th></tr></thead><tbody>" +
		strings.Join(rows, "\n") + "</tbody></table></body></html>"
}

func TestParseHistorySlicesToPeriodRows(t *testing.T) {
	page := historyPage(
		historyRow("Mar 5, 2024", "10.004", "11.50", "9.75", "11.006", "1,200"),
		historyRow("Mar 4, 2024", "9.00", "10.10", "8.90", "10.00", "2.5K"),
		`<tr><td>Mar 1, 2024</td><td colspan="6">0.24 Dividend</td></tr>`,
		historyRow("Feb 29, 2024", "8.00", "9.00", "7.50", "8.50", "900"),
		historyRow("Feb 28, 2024", "7.00", "8.00", "6.50", "7.50", "800"),
		historyRow("Feb 27, 2024", "6.00", "7.00", "5.50", "6.50", "700"),
	)

	result, err := ParseHistory(page, "abcd", models.Period5D)
	require.NoError(t, err)

	assert.Equal(t, "ABCD", result.Symbol)
	assert.Equal(t, models.Period5D, result.Period)
	// Five rows considered, the dividend row among them is skipped
	assert.Equal(t, []string{"2024-02-28", "2024-02-29", "2024-03-04", "2024-03-05"}, result.Dates())

	bar := result.Data["2024-03-05"]
	assert.Equal(t, 10.0, bar.Open)
	assert.Equal(t, 11.01, bar.Close)
	assert.Equal(t, int64(1200), bar.Volume)
	assert.Equal(t, int64(2500), result.Data["2024-03-04"].Volume)
}

func TestParseHistorySkipsUnparseableRows(t *testing.T) {
	page := historyPage(
		historyRow("Mar 5, 2024", "--", "11.50", "9.75", "11.00", "1,200"),
		historyRow("not a date", "9.00", "10.10", "8.90", "10.00", "2500"),
		historyRow("Mar 1, 2024", "9.00", "10.10", "8.90", "10.00", "-"),
	)

	_, err := ParseHistory(page, "ABCD", models.Period1MO)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no parseable rows for ABCD")
	assert.True(t, errors.Is(err, models.ErrNoRows))

	_, err = ParseHistory("<html><body><p>blocked</p></body></html>", "ABCD", models.Period1MO)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no table found for ABCD")
}

const newsPage = `<html><body><ul>
<li><section><h3>Abcd soars on trial data</h3><a href="/news/abcd-soars.html">read</a>
  <div class="publishing">Reuters • 2 hours ago</div></section></li>
<li><h3>Analysts lift targets</h3><a href="https://example.com/targets">read</a></li>
<li><h3>   </h3><a href="/news/empty.html">read</a></li>
<li><span>no headline here</span></li>
<li><h3>Options volume spikes</h3><div class="publishing">Barrons</div></li>
</ul></body></html>`

func TestParseNews(t *testing.T) {
	result, err := ParseNews(newsPage, "abcd", fixedNow)
	require.NoError(t, err)

	assert.Equal(t, "ABCD", result.Symbol)
	assert.Equal(t, "2024-03-05T21:00:00Z", result.Timestamp)
	require.Len(t, result.News, 3)

	first := result.News[0]
	assert.Equal(t, "Abcd soars on trial data", *first.Title)
	assert.Equal(t, "https://finance.yahoo.com/news/abcd-soars.html", *first.URL)
	assert.Equal(t, "Reuters", *first.Publisher)
	assert.Equal(t, "2 hours ago", *first.PublishedAt)

	second := result.News[1]
	assert.Equal(t, "https://example.com/targets", *second.URL)
	assert.Nil(t, second.Publisher)
	assert.Nil(t, second.PublishedAt)

	third := result.News[2]
	assert.Nil(t, third.URL)
	assert.Equal(t, "Barrons", *third.Publisher)
	assert.Nil(t, third.PublishedAt)
}

func TestParseNewsCapsItems(t *testing.T) {
	var b strings.Builder
	b.WriteString("<ul>")
	for i := 0; i < 15; i++ {
		fmt.Fprintf(&b, "<li><h3>Headline %d</h3></li>", i)
	}
	b.WriteString("</ul>")

	result, err := ParseNews(b.String(), "ABCD", fixedNow)
	require.NoError(t, err)
	assert.Len(t, result.News, models.MaxNewsItems)
}

func TestParseNewsNoItems(t *testing.T) {
	_, err := ParseNews("<ul><li>nothing</li></ul>", "ABCD", fixedNow)
	require.Error(t, err)
	assert.Equal(t, "Yahoo Finance news: no items found for ABCD: no usable rows", err.Error())
}
