// Package source implements the adapters that turn external web pages into
// record candidates.
package source

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"path"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/jonesrussell/north-cloud/harvester/internal/config"
	"github.com/jonesrussell/north-cloud/harvester/internal/domain"
	"github.com/jonesrussell/north-cloud/harvester/internal/logger"
)

// Adapter fetches the current candidates of one source, in page order.
type Adapter interface {
	Name() string
	Fetch(ctx context.Context) ([]domain.Candidate, error)
}

// New builds the adapter for cfg.Kind.
func New(cfg config.SourceConfig, client *http.Client, log logger.Logger) (Adapter, error) {
	fetcher := NewPageFetcher(client, cfg.UserAgent, cfg.AcceptLanguage, cfg.RequestTimeout)
	log = log.With(logger.Source(cfg.Name))

	switch cfg.Kind {
	case config.KindDocuments:
		return NewDocumentsAdapter(cfg, fetcher, log), nil
	case config.KindEvents:
		return NewEventsAdapter(cfg, fetcher, log), nil
	default:
		return nil, fmt.Errorf("unknown source kind %q for %s", cfg.Kind, cfg.Name)
	}
}

// resolveURL makes ref absolute against base.
func resolveURL(base *url.URL, ref string) (string, bool) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return "", false
	}

	parsed, err := url.Parse(ref)
	if err != nil {
		return "", false
	}

	return base.ResolveReference(parsed).String(), true
}

// lastSegment returns the final path element of rawURL.
func lastSegment(rawURL string) string {
	parsed, err := url.Parse(rawURL)
	if err != nil || parsed.Path == "" {
		return rawURL
	}
	return path.Base(parsed.Path)
}

// text returns the whitespace-normalized text of sel.
func text(sel *goquery.Selection) string {
	return strings.Join(strings.Fields(sel.Text()), " ")
}
