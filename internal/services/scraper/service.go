package scraper

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/moverwatch/internal/models"
)

const (
	yahooFinanceOrigin = "https://finance.yahoo.com"
	futunnGainersURL   = "https://www.futunn.com/en/quote/us/stock-list/nasdaq/top-gainers"
)

// Config points the scraper at the public pages it reads.
type Config struct {
	GainersURL   string // top-gainers page
	QuoteBaseURL string // origin for /quote/{symbol}/history and /quote/{symbol}/news
}

// Service is the browser-driven fallback for every market lookup.
type Service struct {
	renderer Renderer
	config   Config
	logger   arbor.ILogger
	now      func() time.Time
}

// NewService creates a scraper backed by renderer.
func NewService(renderer Renderer, config Config, logger arbor.ILogger) *Service {
	if config.GainersURL == "" {
		config.GainersURL = futunnGainersURL
	}
	if config.QuoteBaseURL == "" {
		config.QuoteBaseURL = yahooFinanceOrigin
	}
	config.QuoteBaseURL = strings.TrimRight(config.QuoteBaseURL, "/")

	return &Service{
		renderer: renderer,
		config:   config,
		logger:   logger,
		now:      time.Now,
	}
}

// ScrapeTopMover reads the top NASDAQ gainer from the public gainers table.
func (s *Service) ScrapeTopMover(ctx context.Context) (*models.Mover, error) {
	s.logger.Info().Str("url", s.config.GainersURL).Msg("Scraping top gainer")

	// The table renders client-side; percentages appear once the quotes load
	html, err := s.renderer.Render(ctx, s.config.GainersURL, WaitFor{
		Expression: "document.body && document.body.innerText.includes('%')",
	})
	if err != nil {
		return nil, fmt.Errorf("Futunn scraper failed: %w", err)
	}

	return ParseTopGainer(html, s.now())
}

// ScrapeHistory reads daily rows for symbol from the public history page.
func (s *Service) ScrapeHistory(ctx context.Context, symbol string, period models.Period) (*models.HistoryResult, error) {
	pageURL := fmt.Sprintf("%s/quote/%s/history/?period1=0&period2=9999999999",
		s.config.QuoteBaseURL, url.PathEscape(strings.ToUpper(symbol)))

	s.logger.Info().
		Str("symbol", symbol).
		Str("period", string(period)).
		Int("rows", period.TradingDays()).
		Msg("Scraping price history")

	html, err := s.renderer.Render(ctx, pageURL, WaitFor{Selector: "table tbody tr"})
	if err != nil {
		return nil, fmt.Errorf("Yahoo Finance history scraper failed: %w", err)
	}

	return ParseHistory(html, symbol, period)
}

// ScrapeNews reads headlines for symbol from the public news page.
func (s *Service) ScrapeNews(ctx context.Context, symbol string) (*models.NewsResult, error) {
	pageURL := fmt.Sprintf("%s/quote/%s/news/", s.config.QuoteBaseURL, url.PathEscape(strings.ToUpper(symbol)))

	s.logger.Info().Str("symbol", symbol).Msg("Scraping news")

	html, err := s.renderer.Render(ctx, pageURL, WaitFor{Selector: "li h3"})
	if err != nil {
		return nil, fmt.Errorf("Yahoo Finance news scraper failed: %w", err)
	}

	return ParseNews(html, symbol, s.now())
}
