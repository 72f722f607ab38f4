// Package format renders stored records as Telegram HTML messages.
package format

import (
	"fmt"
	"html"
	"strings"
	"time"

	"github.com/jonesrussell/north-cloud/harvester/internal/config"
	"github.com/jonesrussell/north-cloud/harvester/internal/domain"
	"github.com/jonesrussell/north-cloud/harvester/internal/source"
)

// Formatter renders a record as a notification message.
type Formatter interface {
	Format(rec *domain.Record) string
}

// ForKind returns the formatter for a source kind.
func ForKind(kind string) Formatter {
	if kind == config.KindEvents {
		return EventFormatter{}
	}
	return DocumentFormatter{}
}

const (
	bytesPerKB = 1024
	bytesPerMB = bytesPerKB * 1024
)

// HumanSize formats n bytes as B, KB or MB.
func HumanSize(n int64) string {
	switch {
	case n < bytesPerKB:
		return fmt.Sprintf("%d B", n)
	case n < bytesPerMB:
		return fmt.Sprintf("%.1f KB", float64(n)/bytesPerKB)
	default:
		return fmt.Sprintf("%.1f MB", float64(n)/bytesPerMB)
	}
}

// DocumentFormatter renders document records.
type DocumentFormatter struct{}

// Format implements Formatter.
func (DocumentFormatter) Format(rec *domain.Record) string {
	var b strings.Builder

	b.WriteString("🏎️ <b>New FIA document</b>\n\n")
	fmt.Fprintf(&b, "📄 <b>%s</b>\n\n", escapeOr(rec.DisplayName, "Unnamed document"))

	if rec.Size != nil && *rec.Size > 0 {
		fmt.Fprintf(&b, "📊 Size: %s\n", HumanSize(*rec.Size))
	}
	if season := rec.Metadata[source.MetaSeason]; season != "" {
		fmt.Fprintf(&b, "🏁 Season: %s\n", html.EscapeString(season))
	}

	fmt.Fprintf(&b, "\n🔗 <a href=\"%s\">Open document</a>", html.EscapeString(rec.SourceURL))

	return b.String()
}

// EventFormatter renders event records.
type EventFormatter struct{}

// Format implements Formatter.
func (EventFormatter) Format(rec *domain.Record) string {
	var b strings.Builder
	meta := rec.Metadata

	b.WriteString("🎭 <b>Cultural event</b>\n\n")
	fmt.Fprintf(&b, "📌 <b>%s</b>\n\n", escapeOr(rec.DisplayName, "Untitled event"))

	if date := eventDate(meta); date != "" {
		fmt.Fprintf(&b, "📅 Date: %s\n", html.EscapeString(date))
	}
	if t := meta[source.MetaTime]; t != "" {
		fmt.Fprintf(&b, "🕐 Time: %s\n", html.EscapeString(t))
	}
	if loc := meta[source.MetaLocation]; loc != "" {
		fmt.Fprintf(&b, "📍 Location: %s\n", html.EscapeString(loc))
	}
	if desc := meta[source.MetaDescription]; desc != "" {
		fmt.Fprintf(&b, "\n📝 %s\n", html.EscapeString(desc))
	}

	if rec.SourceURL != "" {
		fmt.Fprintf(&b, "\n🔗 <a href=\"%s\">Details</a>", html.EscapeString(rec.SourceURL))
	}

	return b.String()
}

// eventDate prefers the resolved calendar date and falls back to the raw label.
func eventDate(meta map[string]string) string {
	if raw := meta[source.MetaEventDate]; raw != "" {
		if d, err := time.Parse(time.DateOnly, raw); err == nil {
			return d.Format("2 January 2006")
		}
	}
	return meta[source.MetaDate]
}

func escapeOr(s, fallback string) string {
	if strings.TrimSpace(s) == "" {
		return fallback
	}
	return html.EscapeString(s)
}
