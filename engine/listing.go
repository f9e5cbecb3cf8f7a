package engine

import (
	"context"
	"time"

	"patternmatch/database"
	"patternmatch/fingerprint"
	"patternmatch/types"
)

// HandleListingUpload matches a seller's freshly listed pattern photo
// against stored buyer want-photos: the brand's static query uploads, the
// shared active pattern tree, and the active-search index.
//
// Run shape: fingerprint → assemble candidates → compare/filter → record →
// commit. The only terminal failures are an undecodable image (no writes)
// and a query or commit error (propagated for redelivery; everything
// already written is an idempotent merge).
func (e *Engine) HandleListingUpload(ctx context.Context, listingID, brand string, data []byte) error {
	ctx, cancel := context.WithTimeout(ctx, e.cfg.RunBudget)
	defer cancel()

	start := time.Now()
	log := e.log.With().Str("listing_id", listingID).Str("brand", brand).Logger()

	own, err := fingerprint.Compute(data)
	if err != nil {
		log.Error().Err(err).Msg("listing image not decodable, aborting run")
		return err
	}
	log.Info().Str("fingerprint", string(own)).Msg("listing fingerprint computed")

	recorder := database.NewMatchRecorder(e.db, e.cfg.MaxBatchOps)
	onMatch := func(c candidate, score float64) {
		recorder.Record(types.Match{
			ListingID:      listingID,
			CounterpartyID: c.ownerUID,
			Score:          score,
			SearchID:       c.searchID,
			SourceTag:      c.sourceTag,
		})
	}

	// Bulk-store candidates. Static query uploads are deliverable straight
	// to the uid parsed from the path, even when no SearchRecord was ever
	// created for them.
	candidates := e.staticQueryCandidates(ctx, brand)
	candidates = append(candidates, e.activePatternCandidates(ctx, brand)...)

	var stats compareStats
	add(&stats, e.compareAndRecord(ctx, own, candidates, onMatch))

	// Active-search index candidates, keyed by the record's owner and
	// search id. Stored fingerprints avoid re-downloading every image; an
	// empty stored value falls back to on-demand recomputation.
	records, err := database.FindActiveSearchesByBrand(ctx, e.db, brand)
	if err != nil {
		log.Error().Err(err).Msg("active-search index query failed")
		return err
	}
	add(&stats, e.compareAndRecord(ctx, own, indexCandidates(records), onMatch))

	if err := recorder.Commit(ctx); err != nil {
		log.Error().Err(err).Msg("match commit failed")
		return err
	}

	log.Info().
		Int("compared", stats.compared).
		Int("matched", stats.matched).
		Int("skipped", stats.skipped).
		Int("index_records", len(records)).
		Dur("elapsed", time.Since(start)).
		Msg("listing upload run complete")
	return nil
}

// staticQueryCandidates scans the brand-scoped static query prefix. The
// prefix is already brand-scoped, so only extension filtering applies.
func (e *Engine) staticQueryCandidates(ctx context.Context, brand string) []candidate {
	items := e.scanPrefix(ctx, "pattern_queries/"+brand+"/", "")

	candidates := make([]candidate, 0, len(items))
	for _, item := range items {
		owner := ownerFromQueryPath(item.Path)
		if owner == "" {
			continue
		}
		candidates = append(candidates, candidate{
			path:      item.Path,
			ownerUID:  owner,
			sourceTag: types.SourceStaticQuery,
		})
	}
	return candidates
}

// activePatternCandidates scans the shared active pattern tree, keeping
// only objects whose path encodes the target brand.
func (e *Engine) activePatternCandidates(ctx context.Context, brand string) []candidate {
	items := e.scanPrefix(ctx, "users_active_patterns/", brand)

	candidates := make([]candidate, 0, len(items))
	for _, item := range items {
		uid, searchID := ownerFromActivePath(item.Path)
		if uid == "" {
			continue
		}
		candidates = append(candidates, candidate{
			path:      item.Path,
			ownerUID:  uid,
			searchID:  searchID,
			sourceTag: types.SourceActiveQuery,
		})
	}
	return candidates
}

func indexCandidates(records []types.SearchRecord) []candidate {
	candidates := make([]candidate, 0, len(records))
	for _, r := range records {
		candidates = append(candidates, candidate{
			path:      r.ImagePath,
			ownerUID:  r.UID,
			searchID:  r.ID,
			sourceTag: types.SourceSearchIndex,
			cached:    fingerprint.Fingerprint(r.Fingerprint),
		})
	}
	return candidates
}
