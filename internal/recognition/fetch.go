package recognition

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/playwright-community/playwright-go"
)

// Browser fetches receipt pages with a headless browser. Many fiscal
// receipt portals render their content client-side, so a plain HTTP GET
// would return an empty shell.
type Browser struct {
	pw      *playwright.Playwright
	browser playwright.Browser
	timeout time.Duration
	logger  *slog.Logger
}

func NewBrowser(timeout time.Duration, logger *slog.Logger) (*Browser, error) {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	pw, err := playwright.Run()
	if err != nil {
		return nil, fmt.Errorf("starting playwright: %w", err)
	}
	browser, err := pw.Chromium.Launch(playwright.BrowserTypeLaunchOptions{
		Headless: playwright.Bool(true),
	})
	if err != nil {
		_ = pw.Stop()
		return nil, fmt.Errorf("launching chromium: %w", err)
	}
	return &Browser{pw: pw, browser: browser, timeout: timeout, logger: logger}, nil
}

// FetchText implements PageFetcher: renders the URL, waits for the network
// to go idle and strips the resulting DOM to text.
func (b *Browser) FetchText(ctx context.Context, url string) (string, error) {
	start := time.Now()
	b.logger.Info("fetch.start", "url", url)

	page, err := b.browser.NewPage()
	if err != nil {
		return "", fmt.Errorf("opening page: %w", err)
	}
	defer func() { _ = page.Close() }()
	page.SetDefaultTimeout(float64(b.timeout.Milliseconds()))

	if _, err := page.Goto(url, playwright.PageGotoOptions{
		WaitUntil: playwright.WaitUntilStateNetworkidle,
	}); err != nil {
		b.logger.Warn("fetch.goto_failed", "url", url, "error", err)
		return "", fmt.Errorf("loading %s: %w", url, err)
	}

	content, err := page.Content()
	if err != nil {
		return "", fmt.Errorf("reading page content: %w", err)
	}
	text, err := StripHTML(content)
	if err != nil {
		return "", fmt.Errorf("stripping page content: %w", err)
	}
	if text == "" {
		return "", fmt.Errorf("page %s rendered no text", url)
	}
	b.logger.Info("fetch.ok", "url", url, "text_len", len(text),
		"elapsed_ms", time.Since(start).Milliseconds())
	return text, nil
}

// Close stops the browser and the playwright driver.
func (b *Browser) Close() error {
	if err := b.browser.Close(); err != nil {
		return err
	}
	return b.pw.Stop()
}
