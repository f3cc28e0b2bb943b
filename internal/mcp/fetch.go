package mcp

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
)

// MaxPageSize caps the bytes read from a fetched page (5 MB).
const MaxPageSize = 5 * 1024 * 1024

// maxPageText caps the extracted text returned to the model.
const maxPageText = 100 * 1024

const fetchTimeout = 30 * time.Second

// pageFetcher downloads a page and extracts its readable text.
type pageFetcher struct {
	client *http.Client
}

func newPageFetcher() *pageFetcher {
	return &pageFetcher{client: &http.Client{Timeout: fetchTimeout}}
}

// Fetch retrieves a page and returns its title and body text. Only http and
// https schemes are accepted.
func (f *pageFetcher) Fetch(ctx context.Context, rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("invalid URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("unsupported URL scheme %q", u.Scheme)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return "", fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("User-Agent", "tern/1.0")

	resp, err := f.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetching page: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("page returned status %d", resp.StatusCode)
	}

	body := io.LimitReader(resp.Body, MaxPageSize)

	contentType := resp.Header.Get("Content-Type")
	if !strings.Contains(contentType, "text/html") {
		// Non-HTML content passes through as-is.
		data, err := io.ReadAll(body)
		if err != nil {
			return "", fmt.Errorf("reading body: %w", err)
		}
		return truncateText(string(data)), nil
	}

	doc, err := goquery.NewDocumentFromReader(body)
	if err != nil {
		return "", fmt.Errorf("parsing HTML: %w", err)
	}
	return truncateText(extractPageText(doc)), nil
}

// extractPageText pulls the title and visible text out of a parsed document.
func extractPageText(doc *goquery.Document) string {
	doc.Find("script, style, noscript, iframe, nav, footer").Remove()

	var sb strings.Builder
	if title := strings.TrimSpace(doc.Find("title").First().Text()); title != "" {
		sb.WriteString(title)
		sb.WriteString("\n\n")
	}

	body := doc.Find("body")
	if body.Length() == 0 {
		body = doc.Selection
	}
	sb.WriteString(collapseWhitespace(body.Text()))
	return sb.String()
}

// collapseWhitespace squeezes runs of blank space left behind by removed
// markup into single spaces and newlines.
func collapseWhitespace(s string) string {
	lines := strings.Split(s, "\n")
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		line = strings.Join(strings.Fields(line), " ")
		if line != "" {
			out = append(out, line)
		}
	}
	return strings.Join(out, "\n")
}

func truncateText(s string) string {
	if len(s) <= maxPageText {
		return s
	}
	return s[:maxPageText] + "\n[content truncated]"
}
