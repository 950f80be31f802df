package market

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/moverwatch/internal/common"
	"github.com/ternarybob/moverwatch/internal/models"
	"github.com/ternarybob/moverwatch/internal/yahoo"
)

// NASDAQ tier codes used by the structured source: Global Select, Global Market, Capital Market.
var nasdaqExchanges = map[string]bool{
	"NMS": true,
	"NGM": true,
	"NCM": true,
}

// Primary is the structured query API tried first for every lookup.
type Primary interface {
	Screen(ctx context.Context, criteria yahoo.ScreenCriteria) ([]yahoo.Quote, error)
	Chart(ctx context.Context, symbol, rng string) ([]yahoo.ChartBar, error)
	SearchNews(ctx context.Context, symbol string, count int) ([]yahoo.Article, error)
}

// Fallback is the degraded path used when the primary source fails or has nothing usable.
type Fallback interface {
	ScrapeTopMover(ctx context.Context) (*models.Mover, error)
	ScrapeHistory(ctx context.Context, symbol string, period models.Period) (*models.HistoryResult, error)
	ScrapeNews(ctx context.Context, symbol string) (*models.NewsResult, error)
}

// Validator checks primary results before they are trusted.
type Validator interface {
	ValidateMover(m *models.Mover) error
	ValidateHistory(h *models.HistoryResult) error
	ValidateNews(n *models.NewsResult) error
}

// Config controls the tiering and the screen criteria.
type Config struct {
	UseScraper   bool
	MinChangePct float64
	MinVolume    int64
	MinPrice     float64
	ScreenSize   int
	NewsCount    int
}

// Service fetches market data with a structured source first and a scrape fallback.
type Service struct {
	primary   Primary
	fallback  Fallback
	validator Validator
	config    Config
	logger    arbor.ILogger
	now       func() time.Time
}

// NewService creates a tiered market data service.
func NewService(primary Primary, fallback Fallback, validator Validator, config Config, logger arbor.ILogger) *Service {
	if config.NewsCount <= 0 || config.NewsCount > models.MaxNewsItems {
		config.NewsCount = models.MaxNewsItems
	}
	return &Service{
		primary:   primary,
		fallback:  fallback,
		validator: validator,
		config:    config,
		logger:    logger,
		now:       time.Now,
	}
}

// tiered runs one lookup through the forced-scrape check, the primary query and the fallback.
// A primary error (including an empty result) falls back exactly once and the fallback's
// outcome is returned as is. A primary result that fails validation is an error, not a fallback.
func tiered[T any](ctx context.Context, s *Service, op string, primary func(context.Context) (T, error), fallback func(context.Context) (T, error), validate func(T) error) (T, error) {
	var zero T
	start := time.Now()

	if s.config.UseScraper {
		s.logger.Info().Str("operation", op).Msg("Scraper forced, skipping primary source")
		return fallback(ctx)
	}

	result, err := primary(ctx)
	if err != nil {
		s.logger.Warn().
			Str("operation", op).
			Err(err).
			Dur("elapsed", time.Since(start)).
			Msg("Primary source failed, falling back to scraper")
		return fallback(ctx)
	}

	if err := validate(result); err != nil {
		return zero, err
	}

	s.logger.Debug().
		Str("operation", op).
		Dur("elapsed", time.Since(start)).
		Msg("Primary source succeeded")

	return result, nil
}

// TopMover returns the session's top percent gainer listed on a NASDAQ tier.
func (s *Service) TopMover(ctx context.Context) (*models.Mover, error) {
	return tiered(ctx, s, "top_mover", s.primaryTopMover, s.fallback.ScrapeTopMover, s.validator.ValidateMover)
}

func (s *Service) primaryTopMover(ctx context.Context) (*models.Mover, error) {
	quotes, err := s.primary.Screen(ctx, yahoo.ScreenCriteria{
		Exchanges:    []string{"NMS", "NGM", "NCM"},
		MinChangePct: s.config.MinChangePct,
		MinVolume:    s.config.MinVolume,
		MinPrice:     s.config.MinPrice,
		Size:         s.config.ScreenSize,
	})
	if err != nil {
		return nil, err
	}

	// Screener results are sorted by change descending but the exchange and type
	// filters leak, so the first qualifying row wins
	for _, q := range quotes {
		if !qualifies(q) {
			continue
		}
		return &models.Mover{
			Timestamp:      models.Timestamp(s.now()),
			Symbol:         q.Symbol,
			Name:           models.StringPtr(q.DisplayName()),
			Exchange:       q.Exchange,
			Price:          q.RegularMarketPrice,
			ChangeAbsolute: q.RegularMarketChange,
			ChangePct:      q.RegularMarketChangePercent,
			Volume:         q.RegularMarketVolume,
			MarketCap:      q.MarketCap,
		}, nil
	}

	return nil, fmt.Errorf("screener returned %d candidates, none qualified: %w", len(quotes), models.ErrNoRows)
}

// qualifies keeps common stock on a NASDAQ tier and drops W/R/U suffixed derivative listings.
func qualifies(q yahoo.Quote) bool {
	if !nasdaqExchanges[strings.ToUpper(q.Exchange)] {
		return false
	}
	if !strings.EqualFold(q.QuoteType, "EQUITY") {
		return false
	}
	symbol := strings.ToUpper(strings.TrimSpace(q.Symbol))
	if symbol == "" {
		return false
	}
	switch symbol[len(symbol)-1] {
	case 'W', 'R', 'U':
		return false
	}
	return true
}

// History returns daily OHLCV rows for symbol over period.
func (s *Service) History(ctx context.Context, symbol, period string) (*models.HistoryResult, error) {
	p, err := models.ParsePeriod(period)
	if err != nil {
		return nil, err
	}
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if symbol == "" {
		return nil, fmt.Errorf("symbol is required")
	}

	return tiered(ctx, s, "history",
		func(ctx context.Context) (*models.HistoryResult, error) { return s.primaryHistory(ctx, symbol, p) },
		func(ctx context.Context) (*models.HistoryResult, error) { return s.fallback.ScrapeHistory(ctx, symbol, p) },
		s.validator.ValidateHistory,
	)
}

func (s *Service) primaryHistory(ctx context.Context, symbol string, period models.Period) (*models.HistoryResult, error) {
	bars, err := s.primary.Chart(ctx, symbol, string(period))
	if err != nil {
		return nil, err
	}

	data := make(map[string]models.Bar, len(bars))
	for _, b := range bars {
		// Sessions with a null print (halts, holidays in the range) are not rows
		if b.Open == nil || b.High == nil || b.Low == nil || b.Close == nil || b.Volume == nil {
			continue
		}
		data[b.Date.Format("2006-01-02")] = models.Bar{
			Open:   common.Round2(*b.Open),
			High:   common.Round2(*b.High),
			Low:    common.Round2(*b.Low),
			Close:  common.Round2(*b.Close),
			Volume: *b.Volume,
		}
	}

	if len(data) == 0 {
		return nil, fmt.Errorf("no price rows for %s over %s: %w", symbol, period, models.ErrNoRows)
	}

	return &models.HistoryResult{
		Symbol: symbol,
		Period: period,
		Data:   data,
	}, nil
}

// News returns up to ten headlines for symbol. An empty symbol resolves to the current top mover
// and any error from that lookup is returned unchanged.
func (s *Service) News(ctx context.Context, symbol string) (*models.NewsResult, error) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if symbol == "" {
		mover, err := s.TopMover(ctx)
		if err != nil {
			return nil, err
		}
		symbol = strings.ToUpper(mover.Symbol)
		s.logger.Info().Str("symbol", symbol).Msg("News symbol resolved from top mover")
	}

	return tiered(ctx, s, "news",
		func(ctx context.Context) (*models.NewsResult, error) { return s.primaryNews(ctx, symbol) },
		func(ctx context.Context) (*models.NewsResult, error) { return s.fallback.ScrapeNews(ctx, symbol) },
		s.validator.ValidateNews,
	)
}

func (s *Service) primaryNews(ctx context.Context, symbol string) (*models.NewsResult, error) {
	articles, err := s.primary.SearchNews(ctx, symbol, s.config.NewsCount)
	if err != nil {
		return nil, err
	}
	if len(articles) == 0 {
		return nil, fmt.Errorf("no news for %s: %w", symbol, models.ErrNoRows)
	}
	if len(articles) > models.MaxNewsItems {
		articles = articles[:models.MaxNewsItems]
	}

	news := make([]models.NewsItem, 0, len(articles))
	for _, a := range articles {
		item := models.NewsItem{
			Title:     models.StringPtr(a.Title),
			Publisher: models.StringPtr(a.Publisher),
			URL:       models.StringPtr(a.Link),
		}
		if published := a.PublishedAt(); !published.IsZero() {
			item.PublishedAt = models.StringPtr(published.Format(time.RFC3339))
		}
		news = append(news, item)
	}

	return &models.NewsResult{
		Symbol:    symbol,
		Timestamp: models.Timestamp(s.now()),
		News:      news,
	}, nil
}
