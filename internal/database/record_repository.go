package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/jonesrussell/north-cloud/harvester/internal/domain"
)

// recordSelectColumns lists columns for SELECT queries on harvested_records.
const recordSelectColumns = `id, source, source_url, fingerprint, display_name, size, metadata, created_at`

const (
	defaultListLimit = 50
	maxListLimit     = 500
)

// RecordRepository handles database operations for harvested records.
type RecordRepository struct {
	db *sqlx.DB
}

// NewRecordRepository creates a new record repository.
func NewRecordRepository(db *sqlx.DB) *RecordRepository {
	return &RecordRepository{db: db}
}

// ForSource returns a record store scoped to one source.
func (r *RecordRepository) ForSource(source string) *SourceRecords {
	return &SourceRecords{db: r.db, source: source}
}

// ListFilter narrows a record listing.
type ListFilter struct {
	Source string
	Limit  int
	Offset int
}

// recordRow carries the raw JSONB metadata alongside the record columns.
type recordRow struct {
	domain.Record
	RawMetadata []byte `db:"metadata"`
}

func (row *recordRow) toRecord() (*domain.Record, error) {
	rec := row.Record
	if len(row.RawMetadata) > 0 {
		if err := json.Unmarshal(row.RawMetadata, &rec.Metadata); err != nil {
			return nil, fmt.Errorf("decode metadata for record %d: %w", rec.ID, err)
		}
	}
	return &rec, nil
}

// List returns records newest first, optionally filtered by source.
func (r *RecordRepository) List(ctx context.Context, filter ListFilter) ([]*domain.Record, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	offset := max(filter.Offset, 0)

	query := `
		SELECT ` + recordSelectColumns + `
		FROM harvested_records
		WHERE ($1 = '' OR source = $1)
		ORDER BY created_at DESC, id DESC
		LIMIT $2 OFFSET $3
	`

	var rows []recordRow
	if err := r.db.SelectContext(ctx, &rows, query, filter.Source, limit, offset); err != nil {
		return nil, domain.NewStoreError("list records", err)
	}

	records := make([]*domain.Record, 0, len(rows))
	for i := range rows {
		rec, err := rows[i].toRecord()
		if err != nil {
			return nil, domain.NewStoreError("list records", err)
		}
		records = append(records, rec)
	}

	return records, nil
}

// GetByID returns a single record or domain.ErrNotFound.
func (r *RecordRepository) GetByID(ctx context.Context, id int64) (*domain.Record, error) {
	query := `SELECT ` + recordSelectColumns + ` FROM harvested_records WHERE id = $1`

	var row recordRow
	if err := r.db.GetContext(ctx, &row, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, domain.NewStoreError("get record", err)
	}

	rec, err := row.toRecord()
	if err != nil {
		return nil, domain.NewStoreError("get record", err)
	}
	return rec, nil
}

// CountBySource returns the number of stored records per source.
func (r *RecordRepository) CountBySource(ctx context.Context) ([]domain.SourceCount, error) {
	query := `
		SELECT source, COUNT(*) AS count
		FROM harvested_records
		GROUP BY source
		ORDER BY source
	`

	var counts []domain.SourceCount
	if err := r.db.SelectContext(ctx, &counts, query); err != nil {
		return nil, domain.NewStoreError("count records", err)
	}

	if counts == nil {
		counts = []domain.SourceCount{}
	}

	return counts, nil
}

// SourceRecords is the record store for a single source. Both uniqueness
// keys (URL and fingerprint) are scoped to the source.
type SourceRecords struct {
	db     *sqlx.DB
	source string
}

// Source returns the source name this store is scoped to.
func (s *SourceRecords) Source() string {
	return s.source
}

// ExistsByURL reports whether a record with this source URL is stored.
func (s *SourceRecords) ExistsByURL(ctx context.Context, url string) (bool, error) {
	query := `SELECT EXISTS(SELECT 1 FROM harvested_records WHERE source = $1 AND source_url = $2)`

	var exists bool
	if err := s.db.GetContext(ctx, &exists, query, s.source, url); err != nil {
		return false, domain.NewStoreError("exists by url", err)
	}
	return exists, nil
}

// ExistsByFingerprint reports whether a record with this fingerprint is stored.
func (s *SourceRecords) ExistsByFingerprint(ctx context.Context, fingerprint string) (bool, error) {
	query := `SELECT EXISTS(SELECT 1 FROM harvested_records WHERE source = $1 AND fingerprint = $2)`

	var exists bool
	if err := s.db.GetContext(ctx, &exists, query, s.source, fingerprint); err != nil {
		return false, domain.NewStoreError("exists by fingerprint", err)
	}
	return exists, nil
}

// Insert stores rec. A conflict on either uniqueness key yields
// OutcomeAlreadyExists with a nil error; any other failure is a StoreError.
func (s *SourceRecords) Insert(ctx context.Context, rec *domain.Record) (domain.InsertResult, error) {
	metadata := rec.Metadata
	if metadata == nil {
		metadata = map[string]string{}
	}
	rawMetadata, err := json.Marshal(metadata)
	if err != nil {
		return domain.InsertResult{}, domain.NewStoreError("insert record", err)
	}

	query := `
		INSERT INTO harvested_records (source, source_url, fingerprint, display_name, size, metadata)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT DO NOTHING
		RETURNING id, created_at
	`

	var (
		id        int64
		createdAt time.Time
	)

	scanErr := s.db.QueryRowxContext(ctx, query,
		s.source, rec.SourceURL, rec.Fingerprint, rec.DisplayName, rec.Size, rawMetadata,
	).Scan(&id, &createdAt)

	switch {
	case scanErr == nil:
		rec.ID = id
		rec.CreatedAt = createdAt
		return domain.InsertResult{Outcome: domain.OutcomeInserted, ID: id, CreatedAt: createdAt}, nil
	case errors.Is(scanErr, sql.ErrNoRows), isUniqueViolation(scanErr):
		return domain.InsertResult{Outcome: domain.OutcomeAlreadyExists}, nil
	default:
		return domain.InsertResult{}, domain.NewStoreError("insert record", scanErr)
	}
}
