package interfaces

import (
	"context"

	"github.com/ternarybob/moverwatch/internal/models"
)

// MarketService fetches market data with a structured source and a scrape fallback
type MarketService interface {
	TopMover(ctx context.Context) (*models.Mover, error)
	History(ctx context.Context, symbol, period string) (*models.HistoryResult, error)
	News(ctx context.Context, symbol string) (*models.NewsResult, error)
}

// CodeExecutor runs analysis code against a JSON payload in isolation
type CodeExecutor interface {
	Execute(ctx context.Context, code, data string) models.ExecResult
}

// ChartService renders an OHLCV series to a file and returns its path
type ChartService interface {
	Render(ctx context.Context, history *models.HistoryResult, kind, title string) (string, error)
}

// MailerService sends the report email
type MailerService interface {
	SendReport(ctx context.Context, to []string, subject, body, attachmentPath string) error
}
