package scraper

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/chromedp"
	"github.com/ternarybob/arbor"
)

// WaitFor describes when a rendered page is ready to be read.
// Selector waits for a visible element; Expression polls a JavaScript predicate.
type WaitFor struct {
	Selector   string
	Expression string
}

// Renderer returns the rendered HTML of a page once it is ready.
type Renderer interface {
	Render(ctx context.Context, url string, wait WaitFor) (string, error)
}

// BrowserConfig holds configuration for the headless browser
type BrowserConfig struct {
	UserAgent         string
	Headless          bool
	DisableGPU        bool
	NoSandbox         bool
	NavigationTimeout time.Duration
	WaitTimeout       time.Duration
}

// Browser renders pages with a single lazily started Chrome instance.
// Each render opens its own tab so concurrent callers do not share navigation state.
type Browser struct {
	config BrowserConfig
	logger arbor.ILogger

	mu              sync.Mutex
	browserCtx      context.Context
	browserCancel   context.CancelFunc
	allocatorCancel context.CancelFunc
}

// NewBrowser creates a browser; Chrome is not started until the first render.
func NewBrowser(config BrowserConfig, logger arbor.ILogger) *Browser {
	if config.NavigationTimeout <= 0 {
		config.NavigationTimeout = 60 * time.Second
	}
	if config.WaitTimeout <= 0 {
		config.WaitTimeout = 20 * time.Second
	}
	return &Browser{
		config: config,
		logger: logger,
	}
}

// start launches Chrome and verifies it responds (must be called with mutex held)
func (b *Browser) start() error {
	if b.browserCtx != nil {
		return nil
	}

	startTime := time.Now()

	allocatorOpts := append(
		chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", b.config.Headless),
		chromedp.Flag("disable-gpu", b.config.DisableGPU),
		chromedp.Flag("no-sandbox", b.config.NoSandbox),
		chromedp.Flag("disable-dev-shm-usage", true),
	)
	if b.config.UserAgent != "" {
		allocatorOpts = append(allocatorOpts, chromedp.UserAgent(b.config.UserAgent))
	}

	allocatorCtx, allocatorCancel := chromedp.NewExecAllocator(context.Background(), allocatorOpts...)
	browserCtx, browserCancel := chromedp.NewContext(allocatorCtx)

	testCtx, testCancel := context.WithTimeout(browserCtx, 30*time.Second)
	defer testCancel()

	if err := chromedp.Run(testCtx, chromedp.Navigate("about:blank")); err != nil {
		browserCancel()
		allocatorCancel()
		return fmt.Errorf("browser failed startup test: %w", err)
	}

	b.browserCtx = browserCtx
	b.browserCancel = browserCancel
	b.allocatorCancel = allocatorCancel

	b.logger.Debug().
		Bool("headless", b.config.Headless).
		Dur("startup_time", time.Since(startTime)).
		Msg("Headless browser started")

	return nil
}

// Render navigates a fresh tab to url and returns the document HTML once wait is satisfied.
func (b *Browser) Render(ctx context.Context, url string, wait WaitFor) (string, error) {
	b.mu.Lock()
	if err := b.start(); err != nil {
		b.mu.Unlock()
		return "", err
	}
	parent := b.browserCtx
	b.mu.Unlock()

	tabCtx, tabCancel := chromedp.NewContext(parent)
	defer tabCancel()

	// Honour both the caller's deadline and the per-page budget
	runCtx, runCancel := context.WithTimeout(tabCtx, b.config.NavigationTimeout)
	defer runCancel()
	stop := context.AfterFunc(ctx, runCancel)
	defer stop()

	startTime := time.Now()
	var html string

	actions := []chromedp.Action{
		chromedp.ActionFunc(func(ctx context.Context) error {
			// Desktop layout; the mobile pages collapse the tables we parse
			return emulation.SetDeviceMetricsOverride(1366, 900, 1, false).Do(ctx)
		}),
		chromedp.Navigate(url),
	}
	switch {
	case wait.Selector != "":
		actions = append(actions, waitWithin(b.config.WaitTimeout, chromedp.WaitVisible(wait.Selector, chromedp.ByQuery)))
	case wait.Expression != "":
		var ready bool
		actions = append(actions, chromedp.Poll(wait.Expression, &ready, chromedp.WithPollingTimeout(b.config.WaitTimeout)))
	default:
		actions = append(actions, chromedp.WaitReady("body", chromedp.ByQuery))
	}
	actions = append(actions, chromedp.OuterHTML("html", &html, chromedp.ByQuery))

	if err := chromedp.Run(runCtx, actions...); err != nil {
		return "", fmt.Errorf("render %s: %w", url, err)
	}

	b.logger.Debug().
		Str("url", url).
		Int("html_length", len(html)).
		Dur("elapsed", time.Since(startTime)).
		Msg("Page rendered")

	return html, nil
}

// waitWithin bounds a single wait action.
func waitWithin(timeout time.Duration, action chromedp.Action) chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		waitCtx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		return action.Do(waitCtx)
	})
}

// Shutdown stops Chrome if it was started.
func (b *Browser) Shutdown() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.browserCtx == nil {
		return
	}

	b.browserCancel()
	b.allocatorCancel()
	b.browserCtx = nil
	b.browserCancel = nil
	b.allocatorCancel = nil

	b.logger.Debug().Msg("Headless browser shut down")
}
