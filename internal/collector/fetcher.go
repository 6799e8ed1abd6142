package collector

import (
	"context"
	"fmt"
	"time"

	"github.com/chromedp/chromedp"

	"finsight/internal/config"
)

// Fetcher returns the rendered HTML of a page
type Fetcher interface {
	Fetch(ctx context.Context, url string) (string, error)
}

// ChromeFetcher renders pages in a shared headless browser
type ChromeFetcher struct {
	browser   context.Context
	waitAfter time.Duration
	cancel    func()
}

// NewChromeFetcher starts a browser allocator. Close releases it.
func NewChromeFetcher(ctx context.Context, cfg config.CollectorConfig) (*ChromeFetcher, error) {
	opts := chromedp.DefaultExecAllocatorOptions[:]
	opts = append(opts, chromedp.Flag("headless", cfg.Headless))

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, opts...)
	browser, cancelBrowser := chromedp.NewContext(allocCtx)

	// start the browser now so a missing Chrome fails here, not per page
	if err := chromedp.Run(browser); err != nil {
		cancelBrowser()
		cancelAlloc()
		return nil, fmt.Errorf("start browser: %w", err)
	}

	return &ChromeFetcher{
		browser:   browser,
		waitAfter: cfg.WaitAfter,
		cancel: func() {
			cancelBrowser()
			cancelAlloc()
		},
	}, nil
}

// Fetch opens url in a new tab and returns the document HTML once the body
// is ready. ctx bounds the whole page load.
func (f *ChromeFetcher) Fetch(ctx context.Context, url string) (string, error) {
	tab, cancel := chromedp.NewContext(f.browser)
	defer cancel()

	// the tab inherits the browser context, ctx only carries the deadline
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	var html string
	err := chromedp.Run(tab,
		chromedp.Navigate(url),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.Sleep(f.waitAfter),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", fmt.Errorf("fetch %s: %w", url, ctxErr)
		}
		return "", fmt.Errorf("fetch %s: %w", url, err)
	}
	return html, nil
}

// Close shuts the browser down
func (f *ChromeFetcher) Close() {
	f.cancel()
}
