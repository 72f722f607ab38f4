package source

import (
	"context"
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/jonesrussell/north-cloud/harvester/internal/config"
	"github.com/jonesrussell/north-cloud/harvester/internal/domain"
	"github.com/jonesrussell/north-cloud/harvester/internal/logger"
)

// Event metadata keys. MetaTitle, MetaDate and MetaTime feed the event fingerprint.
const (
	MetaTitle       = "title"
	MetaDate        = "date"
	MetaEventDate   = "event_date"
	MetaTime        = "time"
	MetaLocation    = "location"
	MetaCategory    = "category"
	MetaDescription = "description"
)

const (
	untitledEvent   = "Untitled Event"
	pastGraceDays   = 30
	futureLimitDays = 365
	hoursPerDay     = 24
)

var (
	eventDatePattern   = regexp.MustCompile(`^(\d{1,2})\s*(\p{L}+)`)
	eventTitleLabels   = regexp.MustCompile(`(ΘΕΑΤΡΟ|ΜΟΥΣΙΚΗ|ΚΙΝΗΜΑΤΟΓΡΑΦΟΣ|ΕΚΘΕΣΗ|ΧΕΙΡΟΤΕΧΝΙΑ|ΔΙΑΛΕΞΗ|ΧΟΡΟΣ|ΤΕΧΝΗ|Ongoing)+$`)
	venueInDescription = regexp.MustCompile(`([Α-ΩA-Z][Α-ΩA-Zα-ωa-z\s.]+(?:ΘΕΑΤΡΟ|ΠΙΝΑΚΟΘΗΚΗ|ΚΕΝΤΡΟ|ΠΛΑΤΕΙΑ)[^,]*)`)
)

// monthPrefixes maps lowercase month abbreviations (English and Greek) to months.
var monthPrefixes = map[string]time.Month{
	"jan": time.January, "feb": time.February, "mar": time.March, "apr": time.April,
	"may": time.May, "jun": time.June, "jul": time.July, "aug": time.August,
	"sep": time.September, "oct": time.October, "nov": time.November, "dec": time.December,
	"ιαν": time.January, "φεβ": time.February, "μαρ": time.March, "απρ": time.April,
	"μαϊ": time.May, "μαι": time.May, "μάι": time.May, "μαΐ": time.May, "ιουν": time.June, "ιουλ": time.July,
	"αυγ": time.August, "σεπ": time.September, "οκτ": time.October, "νοε": time.November,
	"δεκ": time.December,
}

// EventsAdapter lists the events of a calendar page.
type EventsAdapter struct {
	name      string
	pageURL   string
	container string
	fetcher   *PageFetcher
	now       func() time.Time
	log       logger.Logger
}

// NewEventsAdapter creates an EventsAdapter for cfg.
func NewEventsAdapter(cfg config.SourceConfig, fetcher *PageFetcher, log logger.Logger) *EventsAdapter {
	return &EventsAdapter{
		name:      cfg.Name,
		pageURL:   cfg.URL,
		container: cfg.Container,
		fetcher:   fetcher,
		now:       time.Now,
		log:       log,
	}
}

// Name returns the source name.
func (a *EventsAdapter) Name() string { return a.name }

// Fetch downloads the calendar page and extracts its events.
func (a *EventsAdapter) Fetch(ctx context.Context) ([]domain.Candidate, error) {
	base, err := url.Parse(a.pageURL)
	if err != nil {
		return nil, ClassifyParseError(fmt.Errorf("parse page url: %w", err), a.pageURL)
	}

	doc, err := a.fetcher.Document(ctx, a.pageURL)
	if err != nil {
		return nil, err
	}

	root := a.findContainer(doc)
	if root == nil {
		a.log.Warn("Events container not found", logger.String("container", a.container))
		return []domain.Candidate{}, nil
	}

	candidates := ParseEvents(root, base, a.now())
	a.log.Info("Parsed events page", logger.Int("events", len(candidates)))

	return candidates, nil
}

func (a *EventsAdapter) findContainer(doc *goquery.Document) *goquery.Selection {
	if a.container != "" {
		if sel := doc.Find("div#" + a.container).First(); sel.Length() > 0 {
			return sel
		}
	}

	if sel := doc.Find("div[class*='mec-wrap']").First(); sel.Length() > 0 {
		return sel
	}

	return nil
}

// ParseEvents extracts one candidate per event article under root.
// Articles without a link are skipped.
func ParseEvents(root *goquery.Selection, base *url.URL, now time.Time) []domain.Candidate {
	candidates := make([]domain.Candidate, 0)

	root.Find("article.mec-event-article").Each(func(_ int, article *goquery.Selection) {
		if c, ok := parseEvent(article, base, now); ok {
			candidates = append(candidates, c)
		}
	})

	return candidates
}

func parseEvent(article *goquery.Selection, base *url.URL, now time.Time) (domain.Candidate, bool) {
	href, _ := article.Find("a[href]").First().Attr("href")
	eventURL, ok := resolveURL(base, href)
	if !ok {
		return domain.Candidate{}, false
	}

	title := untitledEvent
	titleSel := article.Find("h4.mec-event-title").First()
	if titleSel.Length() == 0 {
		titleSel = article.Find("h4").First()
	}
	if titleSel.Length() > 0 {
		title = strings.TrimSpace(eventTitleLabels.ReplaceAllString(text(titleSel), ""))
	}

	rawDate := text(firstOf(article, "span.mec-event-day", "div.mec-event-date"))
	eventTime := text(firstOf(article, "div.mec-time-details", "span.mec-event-time"))
	category := text(firstOf(article, "div.mec-event-label", "span.mec-event-label"))
	detail := text(article.Find("div.mec-event-detail").First())

	location := text(firstOf(article,
		"div.mec-event-location", "span.mec-event-place",
		"div.mec-local-time-details", "div.mec-venue-description",
	))
	if location == "" && detail != "" {
		if m := venueInDescription.FindStringSubmatch(detail); m != nil {
			location = strings.TrimSpace(m[1])
		}
	}

	description := detail
	if description == "" {
		description = joinNonEmpty(" - ", category, location)
	}

	meta := map[string]string{
		MetaTitle:       title,
		MetaDate:        rawDate,
		MetaTime:        eventTime,
		MetaLocation:    location,
		MetaCategory:    category,
		MetaDescription: description,
	}
	if date, parsed := ParseEventDate(rawDate, now); parsed {
		meta[MetaEventDate] = date.Format(time.DateOnly)
	}

	return domain.Candidate{
		URL:         eventURL,
		DisplayName: title,
		Metadata:    meta,
	}, true
}

// ParseEventDate parses a calendar day label such as "19Jan" or "19 Ιαν".
// The year is chosen relative to now: dates more than 30 days in the past
// roll over to next year.
func ParseEventDate(raw string, now time.Time) (time.Time, bool) {
	m := eventDatePattern.FindStringSubmatch(strings.TrimSpace(raw))
	if m == nil {
		return time.Time{}, false
	}

	day, err := strconv.Atoi(m[1])
	if err != nil {
		return time.Time{}, false
	}

	month, ok := lookupMonth(m[2])
	if !ok {
		return time.Time{}, false
	}

	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())

	date, ok := validDate(now.Year(), month, day, now.Location())
	if !ok {
		return time.Time{}, false
	}

	if daysBetween(date, today) > pastGraceDays {
		if next, valid := validDate(now.Year()+1, month, day, now.Location()); valid {
			date = next
		}
	}

	if daysBetween(today, date) > futureLimitDays {
		date, _ = validDate(now.Year(), month, day, now.Location())
	}

	return date, true
}

func lookupMonth(word string) (time.Month, bool) {
	runes := []rune(strings.ToLower(word))
	for _, n := range []int{4, 3} {
		if len(runes) < n {
			continue
		}
		if month, ok := monthPrefixes[string(runes[:n])]; ok {
			return month, true
		}
	}
	return 0, false
}

func validDate(year int, month time.Month, day int, loc *time.Location) (time.Time, bool) {
	date := time.Date(year, month, day, 0, 0, 0, 0, loc)
	if date.Month() != month || date.Day() != day {
		return time.Time{}, false
	}
	return date, true
}

// daysBetween returns the whole days from a to b.
func daysBetween(a, b time.Time) int {
	return int(b.Sub(a).Hours() / hoursPerDay)
}

func firstOf(sel *goquery.Selection, selectors ...string) *goquery.Selection {
	for _, s := range selectors {
		if found := sel.Find(s).First(); found.Length() > 0 {
			return found
		}
	}
	return sel.Slice(0, 0)
}

func joinNonEmpty(sep string, parts ...string) string {
	kept := make([]string, 0, len(parts))
	for _, p := range parts {
		if p != "" {
			kept = append(kept, p)
		}
	}
	return strings.Join(kept, sep)
}
