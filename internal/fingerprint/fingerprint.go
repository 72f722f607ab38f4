// Package fingerprint computes content identifiers used to detect
// duplicate records published under different URLs.
package fingerprint

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"github.com/jonesrussell/north-cloud/harvester/internal/domain"
)

// Fingerprinter produces a stable identifier for a candidate.
type Fingerprinter interface {
	Fingerprint(ctx context.Context, c domain.Candidate) (string, error)
}

// Hash returns the lowercase hex sha256 of s.
func Hash(s string) string {
	return HashBytes([]byte(s))
}

// HashBytes returns the lowercase hex sha256 of b.
func HashBytes(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

// Metadata keys read by FieldFingerprinter.
const (
	FieldTitle = "title"
	FieldDate  = "date"
	FieldTime  = "time"
)

// FieldFingerprinter hashes a candidate's identifying fields. It is used for
// sources whose records have no downloadable content.
type FieldFingerprinter struct{}

// NewFieldFingerprinter creates a FieldFingerprinter.
func NewFieldFingerprinter() *FieldFingerprinter {
	return &FieldFingerprinter{}
}

// Fingerprint hashes "title|url|date|time".
func (f *FieldFingerprinter) Fingerprint(_ context.Context, c domain.Candidate) (string, error) {
	title := c.Meta(FieldTitle)
	if title == "" {
		title = c.DisplayName
	}

	return Hash(strings.Join([]string{title, c.URL, c.Meta(FieldDate), c.Meta(FieldTime)}, "|")), nil
}
