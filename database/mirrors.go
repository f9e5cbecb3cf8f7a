package database

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"patternmatch/logging"
	"patternmatch/types"
)

// DefaultBatchGetSize caps how many listing ids one multi-get round trip
// may carry.
const DefaultBatchGetSize = 100

// ResolveListingMirrors looks up denormalized listing metadata for a set of
// listing ids in chunks of at most chunkSize, turning an N-candidate scan
// into O(N/chunkSize) round trips. Every requested id is present in the
// result: ids whose chunk failed, and ids with no mirror row, map to the
// zero MirrorRef so the caller still records the match, just unenriched.
func ResolveListingMirrors(ctx context.Context, db *sql.DB, listingIDs []string, chunkSize int) map[string]types.MirrorRef {
	if chunkSize <= 0 {
		chunkSize = DefaultBatchGetSize
	}

	resolved := make(map[string]types.MirrorRef, len(listingIDs))
	ids := make([]string, 0, len(listingIDs))
	for _, id := range listingIDs {
		if _, seen := resolved[id]; seen {
			continue
		}
		resolved[id] = types.MirrorRef{}
		ids = append(ids, id)
	}

	log := logging.Component("mirror-resolver")
	for start := 0; start < len(ids); start += chunkSize {
		end := start + chunkSize
		if end > len(ids) {
			end = len(ids)
		}
		chunk := ids[start:end]

		if err := resolveChunk(ctx, db, chunk, resolved); err != nil {
			// A failed chunk degrades to unenriched matches for its ids
			// rather than aborting resolution for the whole set.
			log.Warn().
				Int("chunk_size", len(chunk)).
				Err(err).
				Msg("mirror chunk failed, recording matches without seller metadata")
		}
	}
	return resolved
}

func resolveChunk(ctx context.Context, db *sql.DB, chunk []string, resolved map[string]types.MirrorRef) error {
	placeholders := strings.Repeat("?,", len(chunk))
	placeholders = placeholders[:len(placeholders)-1]

	args := make([]interface{}, len(chunk))
	for i, id := range chunk {
		args[i] = id
	}

	rows, err := db.QueryContext(ctx, fmt.Sprintf(`
		SELECT listing_id, seller_uid, canonical_ref_path
		FROM listing_mirrors
		WHERE listing_id IN (%s)
	`, placeholders), args...)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var id, sellerUID, refPath string
		if err := rows.Scan(&id, &sellerUID, &refPath); err != nil {
			return err
		}
		resolved[id] = types.MirrorRef{SellerUID: sellerUID, ListingRef: refPath}
	}
	return rows.Err()
}

// UpsertListingMirror writes one mirror row. The match engine itself never
// calls this; it belongs to the listing ingest side and to test fixtures.
func UpsertListingMirror(ctx context.Context, db *sql.DB, m types.ListingMirror) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO listing_mirrors (listing_id, brand, seller_uid, canonical_ref_path)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(listing_id) DO UPDATE SET
			brand = excluded.brand,
			seller_uid = excluded.seller_uid,
			canonical_ref_path = excluded.canonical_ref_path
	`, m.ListingID, m.Brand, m.SellerUID, m.CanonicalRefPath)
	if err != nil {
		return fmt.Errorf("upsert listing mirror %s: %w", m.ListingID, err)
	}
	return nil
}
