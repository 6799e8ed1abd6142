package collector

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"finsight/internal/shared/testutil"
	"finsight/pkg/contracts/domain"
)

type fakeFetcher struct {
	mu    sync.Mutex
	pages map[string]string
	calls []string
	block bool
}

func (f *fakeFetcher) Fetch(ctx context.Context, url string) (string, error) {
	f.mu.Lock()
	f.calls = append(f.calls, url)
	f.mu.Unlock()

	if f.block {
		<-ctx.Done()
		return "", ctx.Err()
	}
	page, ok := f.pages[url]
	if !ok {
		return "", errors.New("404 not found")
	}
	return page, nil
}

func TestSlug(t *testing.T) {
	tests := map[string]string{
		"Financial PhraseBank":       "financial-phrasebank",
		"  SEC 10-K / 10-Q filings ": "sec-10-k-10-q-filings",
		"\u00c9conomie":              "conomie",
		"---":                        "",
	}
	for in, want := range tests {
		assert.Equal(t, want, Slug(in), in)
	}
}

func TestSourcesFromCatalog(t *testing.T) {
	cat := &domain.Catalog{Datasets: []domain.DatasetEntry{
		{Name: "Moneycontrol news", SourceURL: "https://www.moneycontrol.com/news", Format: "HTML"},
		{Name: "PhraseBank", SourceURL: "https://huggingface.co/datasets/financial_phrasebank", Format: "CSV"},
		{Name: "Local pages", SourceURL: "data/raw/pages", Format: "html"},
		{Name: "Blog", SourceURL: "http://example.com/blog", Format: "web page"},
	}}

	got := SourcesFromCatalog(cat)
	assert.Equal(t, []Source{
		{Name: "Moneycontrol news", URL: "https://www.moneycontrol.com/news"},
		{Name: "Blog", URL: "http://example.com/blog"},
	}, got)
	assert.Nil(t, SourcesFromCatalog(nil))
}

func TestCollect(t *testing.T) {
	rawDir := t.TempDir()
	fetcher := &fakeFetcher{pages: map[string]string{
		"https://a.example/news": "<html><body><p>Revenue rose 5%.</p></body></html>",
		"https://b.example/":     "<html><body>Dividend declared.</body></html>",
		"https://c.example/":     "   ",
	}}
	logger, handler := testutil.NewTestLogger(t)
	c := New(fetcher, nil, logger)

	sources := []Source{
		{Name: "Market News", URL: "https://a.example/news"},
		{Name: "Market News", URL: "https://b.example/"},
		{Name: "", URL: "https://c.example/"},
		{Name: "Broken", URL: "https://missing.example/"},
	}
	summary, err := c.Collect(context.Background(), sources, Options{RawDir: rawDir, PageTimeout: time.Second})
	require.NoError(t, err)

	assert.Equal(t, 4, summary.Sources)
	assert.Equal(t, 2, summary.Fetched)
	assert.Equal(t, 2, summary.Failed)
	require.Len(t, summary.Results, 4)
	assert.Equal(t, "empty page", summary.Results[2].Error)
	assert.Equal(t, "404 not found", summary.Results[3].Error)

	first := filepath.Join(rawDir, WebDir, "market-news.html")
	second := filepath.Join(rawDir, WebDir, "market-news-2.html")
	assert.Contains(t, testutil.ReadFile(t, first), "Revenue rose 5%.")
	assert.Contains(t, testutil.ReadFile(t, second), "Dividend declared.")
	assert.NoFileExists(t, filepath.Join(rawDir, WebDir, "c-example.html"))

	testutil.AssertLogContains(t, handler, slog.LevelWarn, "page fetch failed")
	testutil.AssertLogContains(t, handler, slog.LevelInfo, "stage_completed")

	t.Run("existing snapshots are kept", func(t *testing.T) {
		fetcher.calls = nil
		again, err := c.Collect(context.Background(), sources[:2], Options{RawDir: rawDir})
		require.NoError(t, err)
		assert.Equal(t, 2, again.Existing)
		assert.Empty(t, fetcher.calls)
	})

	t.Run("overwrite refetches", func(t *testing.T) {
		fetcher.calls = nil
		again, err := c.Collect(context.Background(), sources[:1], Options{RawDir: rawDir, Overwrite: true})
		require.NoError(t, err)
		assert.Equal(t, 1, again.Fetched)
		assert.Len(t, fetcher.calls, 1)
	})

	entries, err := os.ReadDir(filepath.Join(rawDir, WebDir))
	require.NoError(t, err)
	assert.Len(t, entries, 2, "no temp files are left behind")
}

func TestCollectPageTimeout(t *testing.T) {
	c := New(&fakeFetcher{block: true}, nil, nil)

	summary, err := c.Collect(context.Background(),
		[]Source{{Name: "slow", URL: "https://slow.example/"}},
		Options{RawDir: t.TempDir(), PageTimeout: 20 * time.Millisecond})
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Failed)
	assert.Contains(t, summary.Results[0].Error, "deadline exceeded")
}

func TestCollectCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	c := New(&fakeFetcher{}, nil, nil)
	_, err := c.Collect(ctx, []Source{{Name: "a", URL: "https://a.example/"}}, Options{RawDir: t.TempDir()})
	assert.ErrorIs(t, err, context.Canceled)
}
