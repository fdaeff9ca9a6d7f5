package discovery

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"

	"golang.org/x/net/html"
)

// ListArchiveLinks fetches a directory-listing page and returns the absolute
// URLs of every ZIP link it publishes, deduplicated and sorted. Used to
// preview which archive parts a base URL actually serves before enqueuing
// jobs against it.
func ListArchiveLinks(ctx context.Context, client *http.Client, baseURL string) ([]string, error) {
	if client == nil {
		client = http.DefaultClient
	}

	base, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse base URL %s: %w", baseURL, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request for %s: %w", baseURL, err)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch listing %s: %w", baseURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		return nil, fmt.Errorf("listing %s answered HTTP %d", baseURL, resp.StatusCode)
	}

	root, err := html.Parse(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to parse listing %s: %w", baseURL, err)
	}

	seen := make(map[string]bool)
	collectZipLinks(root, base, seen)

	links := make([]string, 0, len(seen))
	for link := range seen {
		links = append(links, link)
	}
	sort.Strings(links)
	return links, nil
}

func collectZipLinks(node *html.Node, base *url.URL, seen map[string]bool) {
	if node.Type == html.ElementNode && node.Data == "a" {
		for _, attr := range node.Attr {
			if attr.Key != "href" {
				continue
			}
			if !strings.HasSuffix(strings.ToLower(attr.Val), ".zip") {
				continue
			}
			if resolved, err := base.Parse(attr.Val); err == nil {
				seen[resolved.String()] = true
			}
		}
	}

	for child := node.FirstChild; child != nil; child = child.NextSibling {
		collectZipLinks(child, base, seen)
	}
}
