package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/moverwatch/internal/common"
	"github.com/ternarybob/moverwatch/internal/interfaces"
	"github.com/ternarybob/moverwatch/internal/models"
	"github.com/ternarybob/moverwatch/internal/services/analysis"
	"github.com/ternarybob/moverwatch/internal/services/chart"
	"github.com/ternarybob/moverwatch/internal/services/llm"
	"github.com/ternarybob/moverwatch/internal/services/mailer"
	"github.com/ternarybob/moverwatch/internal/services/market"
	"github.com/ternarybob/moverwatch/internal/services/sandbox"
	"github.com/ternarybob/moverwatch/internal/services/scheduler"
	"github.com/ternarybob/moverwatch/internal/services/scraper"
	"github.com/ternarybob/moverwatch/internal/services/tools"
	"github.com/ternarybob/moverwatch/internal/services/validation"
	"github.com/ternarybob/moverwatch/internal/yahoo"
)

// DailyJobName is the scheduler entry for the recurring analysis
const DailyJobName = "daily-analysis"

// App holds all application components and dependencies
type App struct {
	Config *common.Config
	Logger arbor.ILogger

	// Data sources
	YahooClient *yahoo.Client
	Browser     *scraper.Browser
	Scraper     *scraper.Service

	// Domain services
	Validator     *validation.Service
	MarketService interfaces.MarketService
	Executor      interfaces.CodeExecutor
	ChartService  interfaces.ChartService
	Mailer        *mailer.Service

	// Agent
	Tools    *tools.Registry
	Invoker  *llm.Invoker
	Analysis *analysis.Service

	SchedulerService interfaces.SchedulerService
}

// New initializes the application with all dependencies
func New(cfg *common.Config, logger arbor.ILogger) (*App, error) {
	app := &App{
		Config: cfg,
		Logger: logger,
	}

	if err := app.initDataServices(); err != nil {
		return nil, fmt.Errorf("failed to initialize data services: %w", err)
	}
	app.initTools()

	if err := app.initAgent(); err != nil {
		return nil, fmt.Errorf("failed to initialize agent: %w", err)
	}

	logger.Info().
		Str("environment", cfg.Environment).
		Int("candidates", app.Invoker.Candidates()).
		Bool("use_scraper", cfg.Market.UseScraper).
		Bool("email", app.Mailer != nil).
		Msg("Application initialization complete")

	return app, nil
}

// initDataServices builds the tiered fetchers, the sandbox and the report collaborators
func (a *App) initDataServices() error {
	cfg := a.Config

	a.YahooClient = yahoo.NewClient(
		yahoo.WithBaseURL(cfg.Market.BaseURL),
		yahoo.WithCookieURL(cfg.Market.CookieURL),
		yahoo.WithUserAgent(cfg.Market.UserAgent),
		yahoo.WithRateLimit(cfg.Market.RateLimit),
		yahoo.WithHTTPClient(&http.Client{Timeout: common.Duration(cfg.Market.RequestTimeout, 20*time.Second)}),
		yahoo.WithLogger(a.Logger),
	)

	a.Browser = scraper.NewBrowser(scraper.BrowserConfig{
		UserAgent:         cfg.Browser.UserAgent,
		Headless:          cfg.Browser.Headless,
		DisableGPU:        cfg.Browser.DisableGPU,
		NoSandbox:         cfg.Browser.NoSandbox,
		NavigationTimeout: common.Duration(cfg.Browser.NavigationTimeout, 60*time.Second),
		WaitTimeout:       common.Duration(cfg.Browser.WaitTimeout, 20*time.Second),
	}, a.Logger)

	a.Scraper = scraper.NewService(a.Browser, scraper.Config{
		GainersURL:   cfg.Market.GainersURL,
		QuoteBaseURL: cfg.Market.HistoryBaseURL,
	}, a.Logger)

	a.Validator = validation.NewService()

	a.MarketService = market.NewService(a.YahooClient, a.Scraper, a.Validator, market.Config{
		UseScraper:   cfg.Market.UseScraper,
		MinChangePct: cfg.Market.MinChangePct,
		MinVolume:    cfg.Market.MinVolume,
		MinPrice:     cfg.Market.MinPrice,
		ScreenSize:   cfg.Market.ScreenSize,
		NewsCount:    cfg.Market.NewsCount,
	}, a.Logger)

	a.Executor = sandbox.NewExecutor(sandbox.Config{
		Engine:         cfg.Sandbox.Engine,
		Image:          cfg.Sandbox.Image,
		Timeout:        common.Duration(cfg.Sandbox.Timeout, 15*time.Second),
		Memory:         cfg.Sandbox.Memory,
		CPUs:           cfg.Sandbox.CPUs,
		PidsLimit:      cfg.Sandbox.PidsLimit,
		MaxOutputBytes: cfg.Sandbox.MaxOutputBytes,
	}, nil, a.Logger)

	a.ChartService = chart.NewService("", a.Logger)

	mail := mailer.NewService(mailer.ConfigFromEmail(cfg.Email), a.Logger)
	if mail.IsConfigured() {
		a.Mailer = mail
	} else {
		a.Logger.Info().Msg("SMTP not configured, send_email tool disabled")
	}

	return nil
}

// NewToolHost initializes only the data services and the tool registry, for serving the
// tools to an external agent
func NewToolHost(cfg *common.Config, logger arbor.ILogger) (*App, error) {
	app := &App{
		Config: cfg,
		Logger: logger,
	}
	if err := app.initDataServices(); err != nil {
		return nil, fmt.Errorf("failed to initialize data services: %w", err)
	}
	app.initTools()
	return app, nil
}

// initTools builds the tool registry. send_email is offered only when SMTP is configured.
func (a *App) initTools() {
	var mail interfaces.MailerService
	if a.Mailer != nil {
		mail = a.Mailer
	}
	a.Tools = tools.NewRegistry(a.MarketService, a.Executor, a.ChartService, mail, a.recipients(), a.Logger)
}

// recipients returns the configured report recipients when email can be sent
func (a *App) recipients() []string {
	if a.Mailer == nil {
		return nil
	}
	return a.Config.Email.Recipients
}

// initAgent builds the failover invoker and the analysis workflow
func (a *App) initAgent() error {
	cfg := a.Config

	candidates := llm.CandidatesFromConfig(cfg)
	if len(candidates) == 0 {
		return fmt.Errorf("no model candidates: configure llm.models and at least one API key")
	}
	for i, c := range candidates {
		a.Logger.Debug().
			Int("index", i).
			Str("provider", string(c.Provider)).
			Str("model", c.Model).
			Str("key", c.KeyHint()).
			Msg("Model candidate")
	}

	a.Invoker = llm.NewInvoker(candidates, llm.NewSessionFactory(cfg, a.Logger), a.Tools, cfg.LLM.MaxTurns, a.Logger)

	period, err := models.ParsePeriod(cfg.Analysis.Period)
	if err != nil {
		return err
	}
	a.Analysis = analysis.NewService(a.Invoker, analysis.Config{
		Period:     period,
		Recipients: a.recipients(),
	}, a.Logger)

	return nil
}

// RunOnce performs a single analysis run
func (a *App) RunOnce(ctx context.Context) (*analysis.Report, error) {
	return a.Analysis.Run(ctx)
}

// StartSchedule registers the daily run on the configured cron spec and starts the scheduler.
// Runs share the invoker, so a candidate exhausted in one run stays skipped in later runs.
func (a *App) StartSchedule() error {
	sched := scheduler.NewService(a.Logger)
	err := sched.RegisterJob(DailyJobName, a.Config.Schedule.Cron, "NASDAQ top mover analysis", func(ctx context.Context) error {
		report, err := a.Analysis.Run(ctx)
		if err != nil {
			return err
		}
		a.Logger.Info().Str("run_id", report.RunID).Msg(report.Content)
		return nil
	})
	if err != nil {
		return err
	}
	if err := sched.Start(); err != nil {
		return err
	}
	a.SchedulerService = sched
	return nil
}

// Close releases the browser and stops the scheduler
func (a *App) Close() error {
	if a.SchedulerService != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := a.SchedulerService.Stop(ctx); err != nil {
			a.Logger.Warn().Err(err).Msg("Failed to stop scheduler service")
		}
	}

	if a.Browser != nil {
		a.Browser.Shutdown()
	}

	a.Logger.Info().Msg("Application closed")
	return nil
}
