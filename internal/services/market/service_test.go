package market

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/moverwatch/internal/models"
	"github.com/ternarybob/moverwatch/internal/services/validation"
	"github.com/ternarybob/moverwatch/internal/yahoo"
)

type fakePrimary struct {
	quotes    []yahoo.Quote
	screenErr error
	bars      []yahoo.ChartBar
	chartErr  error
	articles  []yahoo.Article
	newsErr   error

	screenCalls int
	chartCalls  int
	newsCalls   int
	chartArgs   []string
}

func (f *fakePrimary) Screen(_ context.Context, _ yahoo.ScreenCriteria) ([]yahoo.Quote, error) {
	f.screenCalls++
	return f.quotes, f.screenErr
}

func (f *fakePrimary) Chart(_ context.Context, symbol, rng string) ([]yahoo.ChartBar, error) {
	f.chartCalls++
	f.chartArgs = append(f.chartArgs, symbol+"/"+rng)
	return f.bars, f.chartErr
}

func (f *fakePrimary) SearchNews(_ context.Context, _ string, _ int) ([]yahoo.Article, error) {
	f.newsCalls++
	return f.articles, f.newsErr
}

type historyCall struct {
	symbol string
	period models.Period
}

type fakeFallback struct {
	mover         *models.Mover
	historyResult *models.HistoryResult
	news          *models.NewsResult
	err           error
	moverCalls    int
	historyCalls  []historyCall
	newsCalls     []string
}

func (f *fakeFallback) ScrapeTopMover(context.Context) (*models.Mover, error) {
	f.moverCalls++
	return f.mover, f.err
}

func (f *fakeFallback) ScrapeHistory(_ context.Context, symbol string, period models.Period) (*models.HistoryResult, error) {
	f.historyCalls = append(f.historyCalls, historyCall{symbol, period})
	return f.historyResult, f.err
}

func (f *fakeFallback) ScrapeNews(_ context.Context, symbol string) (*models.NewsResult, error) {
	f.newsCalls = append(f.newsCalls, symbol)
	return f.news, f.err
}

func newTestService(p Primary, f Fallback, useScraper bool) *Service {
	s := NewService(p, f, validation.NewService(), Config{UseScraper: useScraper}, arbor.NewLogger())
	s.now = func() time.Time { return time.Date(2024, 3, 5, 21, 0, 0, 0, time.UTC) }
	return s
}

func quote(symbol, exchange, quoteType string, pct float64) yahoo.Quote {
	return yahoo.Quote{
		Symbol:                     symbol,
		LongName:                   symbol + " Inc",
		Exchange:                   exchange,
		QuoteType:                  quoteType,
		RegularMarketPrice:         models.Float64Ptr(10),
		RegularMarketChange:        models.Float64Ptr(2),
		RegularMarketChangePercent: models.Float64Ptr(pct),
		RegularMarketVolume:        models.Int64Ptr(500000),
	}
}

func ptr[T any](v T) *T { return &v }

func TestTopMoverPrefersNasdaqEquity(t *testing.T) {
	primary := &fakePrimary{quotes: []yahoo.Quote{
		quote("BIGX", "NYQ", "EQUITY", 80),
		quote("ABCD", "NMS", "EQUITY", 40),
	}}
	fallback := &fakeFallback{}
	s := newTestService(primary, fallback, false)

	mover, err := s.TopMover(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "ABCD", mover.Symbol)
	assert.Equal(t, "NMS", mover.Exchange)
	assert.Equal(t, "ABCD Inc", *mover.Name)
	assert.Equal(t, "2024-03-05T21:00:00Z", mover.Timestamp)
	assert.Equal(t, 0, fallback.moverCalls)
}

func TestTopMoverFilters(t *testing.T) {
	tests := []struct {
		name string
		q    yahoo.Quote
		want bool
	}{
		{"global select equity", quote("ABCD", "NMS", "EQUITY", 10), true},
		{"global market", quote("ABCD", "NGM", "EQUITY", 10), true},
		{"capital market", quote("ABCD", "NCM", "EQUITY", 10), true},
		{"nyse", quote("ABCD", "NYQ", "EQUITY", 10), false},
		{"etf", quote("ABCD", "NMS", "ETF", 10), false},
		{"warrant", quote("ABCDW", "NMS", "EQUITY", 10), false},
		{"right", quote("ABCDR", "NCM", "EQUITY", 10), false},
		{"unit", quote("ABCDU", "NGM", "EQUITY", 10), false},
		{"empty symbol", quote("", "NMS", "EQUITY", 10), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, qualifies(tt.q))
		})
	}
}

func TestTopMoverFallsBackWhenOnlyWarrantsSurvive(t *testing.T) {
	scraped := &models.Mover{Symbol: "EFGH", Exchange: "NASDAQ"}
	primary := &fakePrimary{quotes: []yahoo.Quote{
		quote("ABCDW", "NMS", "EQUITY", 90),
		quote("EFGHW", "NGM", "EQUITY", 70),
	}}
	fallback := &fakeFallback{mover: scraped}
	s := newTestService(primary, fallback, false)

	mover, err := s.TopMover(context.Background())
	require.NoError(t, err)
	assert.Same(t, scraped, mover)
	assert.Equal(t, 1, primary.screenCalls)
	assert.Equal(t, 1, fallback.moverCalls)
}

func TestTopMoverFallbackErrorReturnedUnchanged(t *testing.T) {
	scrapeErr := errors.New("Futunn: no rows found in gainers table")
	primary := &fakePrimary{screenErr: errors.New("connection reset")}
	fallback := &fakeFallback{err: scrapeErr}
	s := newTestService(primary, fallback, false)

	_, err := s.TopMover(context.Background())
	assert.Same(t, scrapeErr, err)
	assert.Equal(t, 1, primary.screenCalls, "primary is not retried")
	assert.Equal(t, 1, fallback.moverCalls)
}

func TestTopMoverScrapedResultIsNotValidated(t *testing.T) {
	// A partially scraped record has nil prices and still comes back
	scraped := &models.Mover{Symbol: "ABCD", Exchange: "NASDAQ"}
	s := newTestService(&fakePrimary{}, &fakeFallback{mover: scraped}, false)

	mover, err := s.TopMover(context.Background())
	require.NoError(t, err)
	assert.Nil(t, mover.Price)
}

func TestTopMoverPrimaryValidationFailureDoesNotFallBack(t *testing.T) {
	q := quote("ABCD", "NMS", "EQUITY", 40)
	q.RegularMarketPrice = nil
	fallback := &fakeFallback{}
	s := newTestService(&fakePrimary{quotes: []yahoo.Quote{q}}, fallback, false)

	_, err := s.TopMover(context.Background())
	require.Error(t, err)
	assert.Equal(t, "validation failed: price: is required", err.Error())
	assert.Equal(t, 0, fallback.moverCalls)
}

func TestForcedScrapeSkipsPrimary(t *testing.T) {
	primary := &fakePrimary{quotes: []yahoo.Quote{quote("ABCD", "NMS", "EQUITY", 40)}}
	fallback := &fakeFallback{
		mover:         &models.Mover{Symbol: "EFGH"},
		historyResult: &models.HistoryResult{Symbol: "EFGH"},
		news:          &models.NewsResult{Symbol: "EFGH"},
	}
	s := newTestService(primary, fallback, true)

	_, err := s.TopMover(context.Background())
	require.NoError(t, err)
	_, err = s.History(context.Background(), "efgh", "1mo")
	require.NoError(t, err)
	_, err = s.News(context.Background(), "efgh")
	require.NoError(t, err)

	assert.Equal(t, 0, primary.screenCalls+primary.chartCalls+primary.newsCalls)
	assert.Equal(t, 1, fallback.moverCalls)
	assert.Equal(t, []historyCall{{"EFGH", models.Period1MO}}, fallback.historyCalls)
	assert.Equal(t, []string{"EFGH"}, fallback.newsCalls)
}

func TestHistoryPrimary(t *testing.T) {
	day := func(d int) time.Time { return time.Date(2024, 3, d, 9, 30, 0, 0, time.UTC) }
	primary := &fakePrimary{bars: []yahoo.ChartBar{
		{Date: day(4), Open: ptr(9.0), High: ptr(10.104), Low: ptr(8.9), Close: ptr(10.0), Volume: ptr(int64(2500))},
		{Date: day(5), Open: ptr(10.0), High: ptr(11.5), Low: ptr(9.75), Close: ptr(11.0), Volume: ptr(int64(1200))},
		{Date: day(6)},
	}}
	fallback := &fakeFallback{}
	s := newTestService(primary, fallback, false)

	result, err := s.History(context.Background(), " abcd ", "")
	require.NoError(t, err)
	assert.Equal(t, "ABCD", result.Symbol)
	assert.Equal(t, models.Period5D, result.Period)
	assert.Equal(t, []string{"2024-03-04", "2024-03-05"}, result.Dates())
	assert.Equal(t, 10.1, result.Data["2024-03-04"].High)
	assert.Equal(t, []string{"ABCD/5d"}, primary.chartArgs)
	assert.Empty(t, fallback.historyCalls)
}

func TestHistoryRejectsInvalidPeriodBeforeAnyCall(t *testing.T) {
	primary := &fakePrimary{}
	fallback := &fakeFallback{}
	s := newTestService(primary, fallback, false)

	_, err := s.History(context.Background(), "ABCD", "7d")
	require.Error(t, err)
	assert.True(t, errors.Is(err, models.ErrInvalidPeriod))
	assert.Equal(t, 0, primary.chartCalls)
	assert.Empty(t, fallback.historyCalls)
}

func TestNewsPrimary(t *testing.T) {
	primary := &fakePrimary{articles: []yahoo.Article{
		{Title: "Abcd soars", Publisher: "Reuters", Link: "https://example.com/1", ProviderPublishTime: 1709672400},
		{Title: "No time", Link: "https://example.com/2"},
	}}
	s := newTestService(primary, &fakeFallback{}, false)

	result, err := s.News(context.Background(), "abcd")
	require.NoError(t, err)
	require.Len(t, result.News, 2)
	assert.Equal(t, "ABCD", result.Symbol)
	assert.Equal(t, "2024-03-05T21:00:00Z", *result.News[0].PublishedAt)
	assert.Nil(t, result.News[1].PublishedAt)
	assert.Nil(t, result.News[1].Publisher)
}

func TestNewsResolvesSymbolFromTopMover(t *testing.T) {
	primary := &fakePrimary{quotes: []yahoo.Quote{quote("ABCD", "NMS", "EQUITY", 40)}}
	fallback := &fakeFallback{news: &models.NewsResult{Symbol: "ABCD"}}
	s := newTestService(primary, fallback, false)

	result, err := s.News(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, "ABCD", result.Symbol)
	assert.Equal(t, 1, primary.newsCalls)
	assert.Equal(t, []string{"ABCD"}, fallback.newsCalls, "empty primary news falls back with the resolved symbol")
}

func TestNewsPropagatesMoverErrorVerbatim(t *testing.T) {
	moverErr := errors.New("Futunn: unexpected column count (3)")
	primary := &fakePrimary{screenErr: errors.New("timeout")}
	fallback := &fakeFallback{err: moverErr}
	s := newTestService(primary, fallback, false)

	_, err := s.News(context.Background(), "")
	assert.Same(t, moverErr, err)
	assert.Equal(t, 0, primary.newsCalls)
	assert.Empty(t, fallback.newsCalls)
}

func TestMoverThenHistoryScenario(t *testing.T) {
	primary := &fakePrimary{
		quotes: []yahoo.Quote{
			quote("BIGX", "NYQ", "EQUITY", 80),
			quote("ABCD", "NCM", "EQUITY", 40),
		},
		bars: nil,
	}
	scrapeErr := errors.New("Yahoo Finance history: no parseable rows for ABCD")
	fallback := &fakeFallback{err: scrapeErr}
	s := newTestService(primary, fallback, false)

	mover, err := s.TopMover(context.Background())
	require.NoError(t, err)
	require.Equal(t, "ABCD", mover.Symbol)

	_, err = s.History(context.Background(), mover.Symbol, "1mo")
	assert.Same(t, scrapeErr, err)
	assert.Equal(t, []historyCall{{"ABCD", models.Period1MO}}, fallback.historyCalls)
	assert.Equal(t, 1, primary.chartCalls)
}

func TestHistoryPrimaryErrorFallsBackOnce(t *testing.T) {
	scraped := &models.HistoryResult{Symbol: "ABCD", Period: models.Period3MO}
	primary := &fakePrimary{
		bars:     []yahoo.ChartBar{{Date: time.Date(2024, 3, 4, 9, 30, 0, 0, time.UTC)}},
		chartErr: &yahoo.APIError{StatusCode: 502, Message: "bad gateway"},
	}
	fallback := &fakeFallback{historyResult: scraped}
	s := newTestService(primary, fallback, false)

	result, err := s.History(context.Background(), "abcd", "3mo")
	require.NoError(t, err)
	assert.Same(t, scraped, result)
	assert.Equal(t, []string{"ABCD/3mo"}, primary.chartArgs, "primary is not retried")
	assert.Equal(t, []historyCall{{"ABCD", models.Period3MO}}, fallback.historyCalls)
}

func TestNewsPrimaryErrorFallsBackOnce(t *testing.T) {
	scraped := &models.NewsResult{Symbol: "ABCD", News: []models.NewsItem{{Title: models.StringPtr("Abcd soars")}}}
	primary := &fakePrimary{
		articles: []yahoo.Article{{Title: "ignored"}},
		newsErr:  errors.New("connection reset"),
	}
	fallback := &fakeFallback{news: scraped}
	s := newTestService(primary, fallback, false)

	result, err := s.News(context.Background(), "abcd")
	require.NoError(t, err)
	assert.Same(t, scraped, result)
	assert.Equal(t, 1, primary.newsCalls, "primary is not retried")
	assert.Equal(t, []string{"ABCD"}, fallback.newsCalls)
}
