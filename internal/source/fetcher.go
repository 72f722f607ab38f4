package source

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
)

// PageFetcher retrieves and parses source pages.
type PageFetcher struct {
	client         *http.Client
	userAgent      string
	acceptLanguage string
	timeout        time.Duration
}

// NewPageFetcher creates a PageFetcher backed by the given http.Client.
func NewPageFetcher(client *http.Client, userAgent, acceptLanguage string, timeout time.Duration) *PageFetcher {
	return &PageFetcher{
		client:         client,
		userAgent:      userAgent,
		acceptLanguage: acceptLanguage,
		timeout:        timeout,
	}
}

// Document performs an HTTP GET of pageURL and parses the body as HTML.
// Every failure is returned as a *FetchError.
func (f *PageFetcher) Document(ctx context.Context, pageURL string) (*goquery.Document, error) {
	reqCtx, cancel := f.withTimeout(ctx)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, pageURL, http.NoBody)
	if err != nil {
		return nil, ClassifyNetworkError(fmt.Errorf("page fetcher new request: %w", err), pageURL)
	}
	f.setHeaders(req)

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, ClassifyNetworkError(err, pageURL)
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return nil, ClassifyHTTPStatus(resp.StatusCode, pageURL)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, ClassifyParseError(err, pageURL)
	}

	return doc, nil
}

// ContentLength issues a HEAD request and returns the advertised size, or
// nil when the size is unknown.
func (f *PageFetcher) ContentLength(ctx context.Context, fileURL string) (*int64, string, error) {
	reqCtx, cancel := f.withTimeout(ctx)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodHead, fileURL, http.NoBody)
	if err != nil {
		return nil, "", fmt.Errorf("page fetcher new request: %w", err)
	}
	f.setHeaders(req)

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("page fetcher head: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, "", nil
	}

	contentType := resp.Header.Get("Content-Type")

	raw := strings.TrimSpace(resp.Header.Get("Content-Length"))
	if raw == "" {
		return nil, contentType, nil
	}

	size, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || size < 0 {
		return nil, contentType, nil
	}

	return &size, contentType, nil
}

func (f *PageFetcher) setHeaders(req *http.Request) {
	if f.userAgent != "" {
		req.Header.Set("User-Agent", f.userAgent)
	}
	if f.acceptLanguage != "" {
		req.Header.Set("Accept-Language", f.acceptLanguage)
	}
}

func (f *PageFetcher) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if f.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, f.timeout)
}
