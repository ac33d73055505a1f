package ingest

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
)

// minCachedText is the size below which a cached filing is treated as a
// failed earlier download and fetched again.
const minCachedText = 50000

// FilingFetcher downloads 10-K documents and renders them as text, caching
// the text under CacheDir when one is set.
type FilingFetcher struct {
	Client   *EDGARClient
	CacheDir string
}

// NewFilingFetcher creates a fetcher. An empty cacheDir disables caching.
func NewFilingFetcher(client *EDGARClient, cacheDir string) *FilingFetcher {
	return &FilingFetcher{Client: client, CacheDir: cacheDir}
}

// FetchText returns the plain text of a filing's primary document.
func (f *FilingFetcher) FetchText(ctx context.Context, filing *Filing) (string, error) {
	cachePath := ""
	if f.CacheDir != "" {
		key := fmt.Sprintf("%s_%s.txt", filing.CIK, strings.ReplaceAll(filing.AccessionNumber, "-", ""))
		cachePath = filepath.Join(f.CacheDir, "filings", key)
		if content, err := os.ReadFile(cachePath); err == nil && len(content) > minCachedText {
			return string(content), nil
		}
	}

	html, err := f.Client.FetchDocument(ctx, filing)
	if err != nil {
		return "", fmt.Errorf("fetch %s: %w", filing.AccessionNumber, err)
	}
	text, err := HTMLToText(html)
	if err != nil {
		return "", fmt.Errorf("convert %s: %w", filing.AccessionNumber, err)
	}
	if len(text) < 1000 {
		return "", fmt.Errorf("conversion produced insufficient content (%d bytes)", len(text))
	}

	if cachePath != "" {
		if err := os.MkdirAll(filepath.Dir(cachePath), 0o755); err == nil {
			if err := os.WriteFile(cachePath, []byte(text), 0o644); err != nil {
				log.Printf("[INGEST] cache write failed: %v", err)
			}
		}
	}
	return text, nil
}

// FetchLatest10K resolves a ticker's most recent 10-K and returns its text.
func (f *FilingFetcher) FetchLatest10K(ctx context.Context, ticker string) (string, *Filing, error) {
	filing, err := f.Client.Latest10K(ctx, ticker)
	if err != nil {
		return "", nil, err
	}
	log.Printf("[INGEST] %s 10-K %s filed %s", ticker, filing.AccessionNumber, filing.FilingDate.Format("2006-01-02"))

	text, err := f.FetchText(ctx, filing)
	if err != nil {
		return "", nil, err
	}
	return text, filing, nil
}
