package source

import (
	"context"
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/jonesrussell/north-cloud/harvester/internal/config"
	"github.com/jonesrussell/north-cloud/harvester/internal/domain"
	"github.com/jonesrussell/north-cloud/harvester/internal/logger"
	"github.com/jonesrussell/north-cloud/harvester/internal/retry"
)

// Document metadata keys.
const (
	MetaType        = "type"
	MetaSeason      = "season"
	MetaContentType = "content_type"
)

const documentTypePDF = "PDF"

var documentSectionClass = regexp.MustCompile(`(?i)document|file|download`)

// DocumentsAdapter lists the PDF documents linked from a page.
type DocumentsAdapter struct {
	name        string
	pageURL     string
	season      string
	politeDelay time.Duration
	fetcher     *PageFetcher
	log         logger.Logger
}

// NewDocumentsAdapter creates a DocumentsAdapter for cfg.
func NewDocumentsAdapter(cfg config.SourceConfig, fetcher *PageFetcher, log logger.Logger) *DocumentsAdapter {
	return &DocumentsAdapter{
		name:        cfg.Name,
		pageURL:     cfg.URL,
		season:      cfg.Season,
		politeDelay: cfg.PoliteDelay,
		fetcher:     fetcher,
		log:         log,
	}
}

// Name returns the source name.
func (a *DocumentsAdapter) Name() string { return a.name }

// Fetch downloads the page, extracts the document links and looks up each
// document's size. Size lookups are best-effort.
func (a *DocumentsAdapter) Fetch(ctx context.Context) ([]domain.Candidate, error) {
	base, err := url.Parse(a.pageURL)
	if err != nil {
		return nil, ClassifyParseError(fmt.Errorf("parse page url: %w", err), a.pageURL)
	}

	doc, err := a.fetcher.Document(ctx, a.pageURL)
	if err != nil {
		return nil, err
	}

	candidates := ParseDocuments(doc, base)
	a.log.Info("Parsed documents page", logger.Int("documents", len(candidates)))

	for i := range candidates {
		if a.season != "" {
			candidates[i].Metadata[MetaSeason] = a.season
		}

		if i > 0 && a.politeDelay > 0 {
			if sleepErr := retry.SleepContext(ctx, a.politeDelay); sleepErr != nil {
				return nil, sleepErr
			}
		}

		size, contentType, headErr := a.fetcher.ContentLength(ctx, candidates[i].URL)
		if headErr != nil {
			a.log.Debug("Could not fetch document size",
				logger.String("url", candidates[i].URL),
				logger.Error(headErr),
			)
			continue
		}

		candidates[i].Size = size
		if contentType != "" {
			candidates[i].Metadata[MetaContentType] = contentType
		}
	}

	return candidates, nil
}

// ParseDocuments extracts PDF links from doc in page order, deduplicated by
// absolute URL.
func ParseDocuments(doc *goquery.Document, base *url.URL) []domain.Candidate {
	var (
		candidates []domain.Candidate
		seen       = make(map[string]struct{})
	)

	add := func(ref, name string) {
		abs, ok := resolveURL(base, ref)
		if !ok {
			return
		}
		if _, dup := seen[abs]; dup {
			return
		}
		seen[abs] = struct{}{}

		if name == "" {
			name = lastSegment(abs)
		}

		candidates = append(candidates, domain.Candidate{
			URL:         abs,
			DisplayName: name,
			Metadata:    map[string]string{MetaType: documentTypePDF},
		})
	}

	doc.Find("a[href]").Each(func(_ int, link *goquery.Selection) {
		href, _ := link.Attr("href")
		if isPDF(href) {
			add(href, text(link))
		}
	})

	doc.Find("[data-document-url]").Each(func(_ int, el *goquery.Selection) {
		ref, _ := el.Attr("data-document-url")
		if isPDF(ref) {
			add(ref, text(el))
		}
	})

	doc.Find("table[class], div[class]").Each(func(_ int, section *goquery.Selection) {
		class, _ := section.Attr("class")
		if !documentSectionClass.MatchString(class) {
			return
		}
		section.Find("a[href]").Each(func(_ int, link *goquery.Selection) {
			href, _ := link.Attr("href")
			if isPDF(href) {
				add(href, text(link))
			}
		})
	})

	return candidates
}

func isPDF(ref string) bool {
	return strings.HasSuffix(strings.ToLower(strings.TrimSpace(ref)), ".pdf")
}
