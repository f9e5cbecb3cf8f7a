package database

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"patternmatch/logging"
	"patternmatch/types"
)

// UpsertSearchRecord creates or reuses the search record keyed by
// (brand, imagePath) and returns its stable id. Re-processing the same
// upload reactivates the existing record and refreshes its fingerprint
// instead of creating a duplicate.
func UpsertSearchRecord(ctx context.Context, db *sql.DB, uid, brand, imagePath, fp string) (string, error) {
	now := time.Now().UTC().Format(time.RFC3339)

	_, err := db.ExecContext(ctx, `
		INSERT INTO search_records (id, uid, brand, image_path, fingerprint, is_active, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, 1, ?, ?)
		ON CONFLICT(brand, image_path) DO UPDATE SET
			uid = excluded.uid,
			fingerprint = excluded.fingerprint,
			is_active = 1,
			updated_at = excluded.updated_at
	`, uuid.NewString(), uid, brand, imagePath, fp, now, now)
	if err != nil {
		return "", fmt.Errorf("upsert search record (%s, %s): %w", brand, imagePath, err)
	}

	var id string
	err = db.QueryRowContext(ctx,
		`SELECT id FROM search_records WHERE brand = ? AND image_path = ?`,
		brand, imagePath).Scan(&id)
	if err != nil {
		return "", fmt.Errorf("read back search record (%s, %s): %w", brand, imagePath, err)
	}
	return id, nil
}

// FindActiveSearchesByBrand returns every active search record for a brand.
//
// The primary strategy pins the compound (brand, is_active) index. When that
// index is unavailable the query is transparently downgraded to a brand-only
// scan with the active filter applied in memory. Both strategies read the
// same rows, so they return identical result sets for identical stored data;
// the fallback trades query cost, never correctness.
func FindActiveSearchesByBrand(ctx context.Context, db *sql.DB, brand string) ([]types.SearchRecord, error) {
	records, err := queryCompound(ctx, db, brand)
	if err == nil {
		return records, nil
	}
	if !isIndexUnavailable(err) {
		return nil, err
	}

	log := logging.Component("search-index")
	log.Warn().
		Str("brand", brand).
		Err(err).
		Msg("compound index unavailable, falling back to brand-only query")

	return queryBrandOnly(ctx, db, brand)
}

func queryCompound(ctx context.Context, db *sql.DB, brand string) ([]types.SearchRecord, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT id, uid, brand, image_path, fingerprint, is_active, created_at, updated_at
		FROM search_records INDEXED BY idx_search_brand_active
		WHERE brand = ? AND is_active = 1
	`, brand)
	if err != nil {
		return nil, fmt.Errorf("query active searches for %s: %w", brand, err)
	}
	defer rows.Close()
	return scanSearchRecords(rows, false)
}

func queryBrandOnly(ctx context.Context, db *sql.DB, brand string) ([]types.SearchRecord, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT id, uid, brand, image_path, fingerprint, is_active, created_at, updated_at
		FROM search_records
		WHERE brand = ?
	`, brand)
	if err != nil {
		return nil, fmt.Errorf("fallback query searches for %s: %w", brand, err)
	}
	defer rows.Close()
	return scanSearchRecords(rows, true)
}

// scanSearchRecords reads rows into records; with filterActive set, rows
// with is_active = 0 are dropped in memory (the fallback path).
func scanSearchRecords(rows *sql.Rows, filterActive bool) ([]types.SearchRecord, error) {
	var records []types.SearchRecord
	for rows.Next() {
		var (
			r                    types.SearchRecord
			active               int
			createdAt, updatedAt string
		)
		if err := rows.Scan(&r.ID, &r.UID, &r.Brand, &r.ImagePath, &r.Fingerprint, &active, &createdAt, &updatedAt); err != nil {
			return nil, fmt.Errorf("scan search record: %w", err)
		}
		r.IsActive = active != 0
		if filterActive && !r.IsActive {
			continue
		}
		r.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		r.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
		records = append(records, r)
	}
	return records, rows.Err()
}

// isIndexUnavailable classifies errors from a compound query issued against
// a database whose secondary index has not been created yet.
func isIndexUnavailable(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "no such index") || strings.Contains(msg, "no query solution")
}
