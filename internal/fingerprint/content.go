package fingerprint

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/jonesrussell/north-cloud/harvester/internal/domain"
	"github.com/jonesrussell/north-cloud/harvester/internal/logger"
)

const (
	// PrefixBytes is the length of the content prefix that is hashed.
	PrefixBytes int64 = 1048577

	// DefaultTimeout bounds the prefix download.
	DefaultTimeout = 30 * time.Second
)

// ContentFingerprinter hashes the first bytes of a candidate's document.
// Any failure to download falls back to hashing the URL, so Fingerprint
// never returns an error.
type ContentFingerprinter struct {
	client    *http.Client
	userAgent string
	timeout   time.Duration
	log       logger.Logger
}

// NewContentFingerprinter creates a ContentFingerprinter backed by client.
func NewContentFingerprinter(client *http.Client, userAgent string, timeout time.Duration, log logger.Logger) *ContentFingerprinter {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &ContentFingerprinter{
		client:    client,
		userAgent: userAgent,
		timeout:   timeout,
		log:       log,
	}
}

// Fingerprint returns the sha256 of the content prefix, or of the URL when
// the content cannot be read.
func (f *ContentFingerprinter) Fingerprint(ctx context.Context, c domain.Candidate) (string, error) {
	prefix, err := f.fetchPrefix(ctx, c.URL)
	if err != nil {
		f.log.Debug("Content fingerprint unavailable, hashing URL",
			logger.String("url", c.URL),
			logger.Error(err),
		)
		return Hash(c.URL), nil
	}

	return HashBytes(prefix), nil
}

func (f *ContentFingerprinter) fetchPrefix(ctx context.Context, url string) ([]byte, error) {
	reqCtx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, url, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("content fingerprint new request: %w", err)
	}

	req.Header.Set("Range", fmt.Sprintf("bytes=0-%d", PrefixBytes-1))
	if f.userAgent != "" {
		req.Header.Set("User-Agent", f.userAgent)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("content fingerprint do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusPartialContent {
		return nil, fmt.Errorf("content fingerprint: HTTP %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, PrefixBytes))
	if err != nil {
		return nil, fmt.Errorf("content fingerprint read body: %w", err)
	}

	return body, nil
}
