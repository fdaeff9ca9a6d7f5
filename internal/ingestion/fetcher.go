package ingestion

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/brdata-dev/cnpj-ingest/internal/models"
)

// Archive is one archive part resolved to a local file, ready for random
// access extraction. Close releases the backing temp file when there is one.
type Archive struct {
	Path    string
	Size    int64
	cleanup func()
}

func (a *Archive) Close() {
	if a.cleanup != nil {
		a.cleanup()
	}
}

// Fetcher resolves one archive part URL into a local Archive.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (*Archive, error)
}

// HTTPFetcher downloads archive parts over HTTP, spooling the body to a temp
// file so multi-gigabyte archives never sit in memory. The ZIP central
// directory lives at the end of the container, so a seekable spool is the
// price of using stream-order extraction afterwards.
type HTTPFetcher struct {
	client *http.Client
}

// NewHTTPFetcher builds a fetcher with a long per-request timeout; the
// government mirrors are slow and the big parts take minutes. The default
// transport already follows up to 10 redirects.
func NewHTTPFetcher(timeout time.Duration) *HTTPFetcher {
	if timeout <= 0 {
		timeout = 10 * time.Minute
	}
	return &HTTPFetcher{client: &http.Client{Timeout: timeout}}
}

func (f *HTTPFetcher) Fetch(ctx context.Context, url string) (*Archive, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request for %s: %w", url, err)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download failed for %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("%s: %w", url, models.ErrPartNotFound)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("download failed for %s: HTTP %d %s", url, resp.StatusCode, http.StatusText(resp.StatusCode))
	}

	// A redirected or broken URL answers with an HTML error page; refuse it
	// before trying to read it as a ZIP container.
	contentType := resp.Header.Get("Content-Type")
	if strings.Contains(contentType, "text/html") {
		return nil, &models.InvalidArchiveError{Source: url, Reason: "server returned " + contentType + " instead of a ZIP archive, URL may be wrong"}
	}

	tmp, err := os.CreateTemp("", "cnpj-archive-*.zip")
	if err != nil {
		return nil, fmt.Errorf("failed to create spool file: %w", err)
	}

	size, err := io.Copy(tmp, resp.Body)
	if err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return nil, fmt.Errorf("download interrupted for %s: %w", url, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return nil, fmt.Errorf("failed to finalize spool file: %w", err)
	}

	name := tmp.Name()
	return &Archive{
		Path:    name,
		Size:    size,
		cleanup: func() { os.Remove(name) },
	}, nil
}

// LocalFetcher opens archives already on disk, used for manual uploads.
type LocalFetcher struct{}

func (LocalFetcher) Fetch(_ context.Context, filePath string) (*Archive, error) {
	info, err := os.Stat(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open uploaded archive %s: %w", filePath, err)
	}
	return &Archive{Path: filePath, Size: info.Size()}, nil
}
