package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"patternmatch/logging"
	"patternmatch/types"
)

// DefaultMaxBatchOps caps how many individual merge-writes one atomic batch
// may carry. Every match stages two writes (audit + inbox).
const DefaultMaxBatchOps = 500

const opsPerMatch = 2

// CommitError wraps a failed batch flush. The trigger layer surfaces it and
// relies on at-least-once redelivery; because every write in every batch is
// an idempotent merge, re-running the whole scan is always safe.
type CommitError struct {
	Batch int
	Err   error
}

func (e *CommitError) Error() string {
	return fmt.Sprintf("commit match batch %d: %v", e.Batch, e.Err)
}

func (e *CommitError) Unwrap() error { return e.Err }

// MatchRecorder stages match writes for one orchestrator run and flushes
// them as one or more atomic batches.
//
// Both writes merge under a stable composite key: the audit under
// (listing_id, counterparty_id), the inbox entry under (recipient_id,
// listing_id). Scores never regress, seller enrichment never degrades to
// empty, and the consumer-owned seen flag is never touched, so concurrent
// or duplicate runs converge to the same final state.
type MatchRecorder struct {
	db     *sql.DB
	maxOps int
	staged []types.Match
}

// NewMatchRecorder returns a recorder flushing at most maxOpsPerBatch
// writes per batch.
func NewMatchRecorder(db *sql.DB, maxOpsPerBatch int) *MatchRecorder {
	if maxOpsPerBatch < opsPerMatch {
		maxOpsPerBatch = DefaultMaxBatchOps
	}
	return &MatchRecorder{db: db, maxOps: maxOpsPerBatch}
}

// Record stages one audit merge and one inbox merge. Nothing is written
// until Commit.
func (r *MatchRecorder) Record(m types.Match) {
	r.staged = append(r.staged, m)
}

// Staged returns how many matches are waiting for Commit.
func (r *MatchRecorder) Staged() int {
	return len(r.staged)
}

// Commit flushes the staged matches in batches bounded by the per-batch op
// cap, sequentially. Each batch commits atomically and independently: a
// crash between batches leaves only individually valid, idempotent writes
// behind.
func (r *MatchRecorder) Commit(ctx context.Context) error {
	if len(r.staged) == 0 {
		return nil
	}

	perBatch := r.maxOps / opsPerMatch
	batches := 0
	for start := 0; start < len(r.staged); start += perBatch {
		end := start + perBatch
		if end > len(r.staged) {
			end = len(r.staged)
		}
		batches++
		if err := r.commitBatch(ctx, r.staged[start:end]); err != nil {
			return &CommitError{Batch: batches, Err: err}
		}
	}

	log := logging.Component("recorder")
	log.Info().
		Int("matches", len(r.staged)).
		Int("batches", batches).
		Msg("match batches committed")

	r.staged = r.staged[:0]
	return nil
}

func (r *MatchRecorder) commitBatch(ctx context.Context, matches []types.Match) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}

	now := time.Now().UTC().Format(time.RFC3339)
	for _, m := range matches {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO match_audits (listing_id, counterparty_id, score, search_id, created_at)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT(listing_id, counterparty_id) DO UPDATE SET
				score = MAX(match_audits.score, excluded.score),
				search_id = CASE WHEN excluded.search_id <> '' THEN excluded.search_id ELSE match_audits.search_id END
		`, m.ListingID, m.CounterpartyID, m.Score, m.SearchID, now); err != nil {
			tx.Rollback()
			return fmt.Errorf("merge audit (%s, %s): %w", m.ListingID, m.CounterpartyID, err)
		}

		if _, err := tx.ExecContext(ctx, `
			INSERT INTO inbox_entries (recipient_id, listing_id, score, seller_uid, listing_ref, source_tag, seen, created_at)
			VALUES (?, ?, ?, ?, ?, ?, 0, ?)
			ON CONFLICT(recipient_id, listing_id) DO UPDATE SET
				score = MAX(inbox_entries.score, excluded.score),
				seller_uid = CASE WHEN excluded.seller_uid <> '' THEN excluded.seller_uid ELSE inbox_entries.seller_uid END,
				listing_ref = CASE WHEN excluded.listing_ref <> '' THEN excluded.listing_ref ELSE inbox_entries.listing_ref END,
				source_tag = excluded.source_tag
		`, m.CounterpartyID, m.ListingID, m.Score, m.SellerUID, m.ListingRef, m.SourceTag, now); err != nil {
			tx.Rollback()
			return fmt.Errorf("merge inbox entry (%s, %s): %w", m.CounterpartyID, m.ListingID, err)
		}
	}

	return tx.Commit()
}
