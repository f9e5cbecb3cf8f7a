package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"patternmatch/types"
)

// GetMatchAudit reads one audit row, or nil when none exists. Used by the
// analytics tooling that consumes audit records.
func GetMatchAudit(ctx context.Context, db *sql.DB, listingID, counterpartyID string) (*types.MatchAudit, error) {
	var (
		a         types.MatchAudit
		createdAt string
	)
	err := db.QueryRowContext(ctx, `
		SELECT listing_id, counterparty_id, score, search_id, created_at
		FROM match_audits
		WHERE listing_id = ? AND counterparty_id = ?
	`, listingID, counterpartyID).Scan(&a.ListingID, &a.CounterpartyID, &a.Score, &a.SearchID, &createdAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get match audit (%s, %s): %w", listingID, counterpartyID, err)
	}
	a.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	return &a, nil
}

// GetInboxEntry reads one inbox row, or nil when none exists.
func GetInboxEntry(ctx context.Context, db *sql.DB, recipientID, listingID string) (*types.InboxEntry, error) {
	var (
		e         types.InboxEntry
		seen      int
		createdAt string
	)
	err := db.QueryRowContext(ctx, `
		SELECT recipient_id, listing_id, score, seller_uid, listing_ref, source_tag, seen, created_at
		FROM inbox_entries
		WHERE recipient_id = ? AND listing_id = ?
	`, recipientID, listingID).Scan(&e.RecipientID, &e.ListingID, &e.Score, &e.SellerUID, &e.ListingRef, &e.SourceTag, &seen, &createdAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get inbox entry (%s, %s): %w", recipientID, listingID, err)
	}
	e.Seen = seen != 0
	e.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	return &e, nil
}

// CountMatchRecords returns the audit and inbox row counts, mostly for
// operator tooling and convergence checks.
func CountMatchRecords(ctx context.Context, db *sql.DB) (audits, inbox int, err error) {
	if err = db.QueryRowContext(ctx, `SELECT COUNT(*) FROM match_audits`).Scan(&audits); err != nil {
		return 0, 0, fmt.Errorf("count match audits: %w", err)
	}
	if err = db.QueryRowContext(ctx, `SELECT COUNT(*) FROM inbox_entries`).Scan(&inbox); err != nil {
		return 0, 0, fmt.Errorf("count inbox entries: %w", err)
	}
	return audits, inbox, nil
}
