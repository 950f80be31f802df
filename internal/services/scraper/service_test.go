package scraper

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/moverwatch/internal/models"
)

type fakeRenderer struct {
	html  string
	err   error
	urls  []string
	waits []WaitFor
}

func (f *fakeRenderer) Render(_ context.Context, url string, wait WaitFor) (string, error) {
	f.urls = append(f.urls, url)
	f.waits = append(f.waits, wait)
	return f.html, f.err
}

func newTestService(r Renderer) *Service {
	s := NewService(r, Config{QuoteBaseURL: "https://quotes.test/"}, arbor.NewLogger())
	s.now = func() time.Time { return fixedNow }
	return s
}

func TestScrapeHistoryBuildsPageURL(t *testing.T) {
	r := &fakeRenderer{html: historyPage(historyRow("Mar 5, 2024", "1", "2", "0.5", "1.5", "100"))}
	s := newTestService(r)

	result, err := s.ScrapeHistory(context.Background(), "abcd", models.Period1D)
	require.NoError(t, err)
	assert.Len(t, result.Data, 1)

	require.Len(t, r.urls, 1)
	assert.Equal(t, "https://quotes.test/quote/ABCD/history/?period1=0&period2=9999999999", r.urls[0])
	assert.Equal(t, "table tbody tr", r.waits[0].Selector)
}

func TestScrapeNewsBuildsPageURL(t *testing.T) {
	r := &fakeRenderer{html: newsPage}
	s := newTestService(r)

	result, err := s.ScrapeNews(context.Background(), "abcd")
	require.NoError(t, err)
	assert.Equal(t, "ABCD", result.Symbol)
	assert.Equal(t, "https://quotes.test/quote/ABCD/news/", r.urls[0])
}

func TestScrapeTopMoverWaitsForQuotes(t *testing.T) {
	r := &fakeRenderer{html: gainersPage}
	s := newTestService(r)

	mover, err := s.ScrapeTopMover(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "ABCD", mover.Symbol)
	assert.Equal(t, futunnGainersURL, r.urls[0])
	assert.Contains(t, r.waits[0].Expression, "innerText.includes('%')")
}

func TestScrapeRenderFailureIsWrapped(t *testing.T) {
	boom := errors.New("net::ERR_NAME_NOT_RESOLVED")
	s := newTestService(&fakeRenderer{err: boom})

	_, err := s.ScrapeTopMover(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, boom))
	assert.Contains(t, err.Error(), "Futunn scraper failed")

	_, err = s.ScrapeHistory(context.Background(), "ABCD", models.Period5D)
	assert.Contains(t, err.Error(), "Yahoo Finance history scraper failed")

	_, err = s.ScrapeNews(context.Background(), "ABCD")
	assert.Contains(t, err.Error(), "Yahoo Finance news scraper failed")
}
