package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/pinkittys/flowerstory/internal/catalog"
)

// CatalogRepository stores catalog candidates. It doubles as a
// catalog.Source so the store can reload from the database.
type CatalogRepository struct {
	db TxDB
}

var _ catalog.Source = (*CatalogRepository)(nil)

// NewCatalogRepository creates a new catalog repository.
func NewCatalogRepository(db TxDB) *CatalogRepository {
	return &CatalogRepository{db: db}
}

// Name returns "database".
func (r *CatalogRepository) Name() string { return "database" }

// Load builds a catalog from the stored candidates.
func (r *CatalogRepository) Load(ctx context.Context) (*catalog.Catalog, error) {
	candidates, err := r.List(ctx)
	if err != nil {
		return nil, err
	}
	if len(candidates) == 0 {
		return nil, fmt.Errorf("catalog table is empty: %w", ErrNotFound)
	}
	return catalog.New(candidates)
}

// ReplaceAll swaps the stored catalog for candidates in one transaction.
// Candidate order is kept.
func (r *CatalogRepository) ReplaceAll(ctx context.Context, candidates []catalog.Candidate) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, "DELETE FROM catalog_candidates"); err != nil {
		return fmt.Errorf("clear catalog: %w", err)
	}

	query := `
		INSERT INTO catalog_candidates (id, position, name, scientific_name, color,
			meanings, moods, usage, relationships, events, seasons, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`
	now := time.Now().UTC()
	for i, c := range candidates {
		if err := c.Validate(); err != nil {
			return err
		}
		tags, err := encodeTags(c.Meanings, c.Moods, c.Usage, c.Relationships, c.Events, c.Seasons)
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, query,
			c.ID, i, c.Name, c.ScientificName, c.Color,
			tags[0], tags[1], tags[2], tags[3], tags[4], tags[5], now,
		)
		if err != nil {
			return fmt.Errorf("insert candidate %s: %w", c.ID, err)
		}
	}
	return tx.Commit()
}

// List returns every stored candidate in catalog order.
func (r *CatalogRepository) List(ctx context.Context) ([]catalog.Candidate, error) {
	query := `
		SELECT id, name, scientific_name, color, meanings, moods, usage,
			relationships, events, seasons
		FROM catalog_candidates
		ORDER BY position, id
	`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []catalog.Candidate
	for rows.Next() {
		var (
			c    catalog.Candidate
			tags [6][]byte
		)
		if err := rows.Scan(&c.ID, &c.Name, &c.ScientificName, &c.Color,
			&tags[0], &tags[1], &tags[2], &tags[3], &tags[4], &tags[5]); err != nil {
			return nil, err
		}
		dst := []*[]string{&c.Meanings, &c.Moods, &c.Usage, &c.Relationships, &c.Events, &c.Seasons}
		for i, raw := range tags {
			if err := decodeTags(raw, dst[i]); err != nil {
				return nil, fmt.Errorf("candidate %s: %w", c.ID, err)
			}
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// Count returns the number of stored candidates.
func (r *CatalogRepository) Count(ctx context.Context) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM catalog_candidates").Scan(&n)
	return n, err
}

func encodeTags(lists ...[]string) ([]string, error) {
	out := make([]string, len(lists))
	for i, l := range lists {
		if l == nil {
			l = []string{}
		}
		b, err := json.Marshal(l)
		if err != nil {
			return nil, err
		}
		out[i] = string(b)
	}
	return out, nil
}

func decodeTags(raw []byte, dst *[]string) error {
	if len(raw) == 0 {
		*dst = nil
		return nil
	}
	return json.Unmarshal(raw, dst)
}

// HistoryRepository records served recommendations.
type HistoryRepository struct {
	db DB
}

// NewHistoryRepository creates a new history repository.
func NewHistoryRepository(db DB) *HistoryRepository {
	return &HistoryRepository{db: db}
}

// Save inserts rec, assigning an ID and timestamp when unset.
func (r *HistoryRepository) Save(ctx context.Context, rec *HistoryRecord) error {
	if rec.ID == "" {
		rec.ID = ulid.Make().String()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	if len(rec.Context) == 0 {
		rec.Context = json.RawMessage("{}")
	}

	query := `
		INSERT INTO recommendation_history (id, request_id, fingerprint, story, tier,
			candidate_id, score, context, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	_, err := r.db.ExecContext(ctx, query,
		rec.ID, rec.RequestID, rec.Fingerprint, rec.Story, rec.Tier,
		rec.CandidateID, rec.Score, string(rec.Context), rec.CreatedAt,
	)
	return err
}

// GetByID retrieves a record by ID.
func (r *HistoryRepository) GetByID(ctx context.Context, id string) (*HistoryRecord, error) {
	query := `
		SELECT id, request_id, fingerprint, story, tier, candidate_id, score, context, created_at
		FROM recommendation_history WHERE id = $1
	`
	rec, err := scanHistory(r.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return rec, err
}

// ListRecent returns up to limit records, newest first.
func (r *HistoryRepository) ListRecent(ctx context.Context, limit int) ([]*HistoryRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	query := `
		SELECT id, request_id, fingerprint, story, tier, candidate_id, score, context, created_at
		FROM recommendation_history
		ORDER BY created_at DESC, id DESC
		LIMIT $1
	`
	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]*HistoryRecord, 0, min(limit, 100))
	for rows.Next() {
		rec, err := scanHistory(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanHistory(row rowScanner) (*HistoryRecord, error) {
	rec := &HistoryRecord{}
	var ctxJSON []byte
	err := row.Scan(
		&rec.ID, &rec.RequestID, &rec.Fingerprint, &rec.Story, &rec.Tier,
		&rec.CandidateID, &rec.Score, &ctxJSON, &rec.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	rec.Context = json.RawMessage(ctxJSON)
	return rec, nil
}
