package engine

import (
	"context"
	"time"

	"patternmatch/database"
	"patternmatch/fingerprint"
	"patternmatch/types"
)

// HandleBuyerUpload matches a buyer's want-photo against the brand's
// existing listings and records an active SearchRecord so future listing
// uploads find this buyer through the index.
//
// The SearchRecord upsert is keyed by (brand, imagePath): re-processing the
// same upload reuses the record instead of duplicating it, and the
// fingerprint is cached on it at write time.
func (e *Engine) HandleBuyerUpload(ctx context.Context, uid, brand string, data []byte, imagePath string) error {
	ctx, cancel := context.WithTimeout(ctx, e.cfg.RunBudget)
	defer cancel()

	start := time.Now()
	log := e.log.With().Str("uid", uid).Str("brand", brand).Str("image_path", imagePath).Logger()

	own, err := fingerprint.Compute(data)
	if err != nil {
		log.Error().Err(err).Msg("buyer image not decodable, aborting run")
		return err
	}

	searchID, err := database.UpsertSearchRecord(ctx, e.db, uid, brand, imagePath, string(own))
	if err != nil {
		log.Error().Err(err).Msg("search record upsert failed")
		return err
	}
	log.Info().Str("search_id", searchID).Str("fingerprint", string(own)).Msg("search record active")

	// Candidate listings for the brand, listing ids parsed from the path.
	items := e.scanPrefix(ctx, "brands/"+brand+"/", "")
	candidates := make([]candidate, 0, len(items))
	for _, item := range items {
		id := listingIDFromPath(item.Path)
		if id == "" {
			continue
		}
		candidates = append(candidates, candidate{
			path:      item.Path,
			listingID: id,
			sourceTag: types.SourceListingScan,
		})
	}

	type hit struct {
		listingID string
		score     float64
	}
	var hits []hit
	stats := e.compareAndRecord(ctx, own, candidates, func(c candidate, score float64) {
		hits = append(hits, hit{listingID: c.listingID, score: score})
	})

	// Batch-resolve mirrors for the qualifying listings only; unresolved
	// ids still produce matches, just without seller enrichment.
	ids := make([]string, 0, len(hits))
	for _, h := range hits {
		ids = append(ids, h.listingID)
	}
	mirrors := database.ResolveListingMirrors(ctx, e.db, ids, e.cfg.MaxBatchGet)

	recorder := database.NewMatchRecorder(e.db, e.cfg.MaxBatchOps)
	for _, h := range hits {
		ref := mirrors[h.listingID]
		recorder.Record(types.Match{
			ListingID:      h.listingID,
			CounterpartyID: uid,
			Score:          h.score,
			SearchID:       searchID,
			SellerUID:      ref.SellerUID,
			ListingRef:     ref.ListingRef,
			SourceTag:      types.SourceListingScan,
		})
	}

	if err := recorder.Commit(ctx); err != nil {
		log.Error().Err(err).Msg("match commit failed")
		return err
	}

	log.Info().
		Int("compared", stats.compared).
		Int("matched", stats.matched).
		Int("skipped", stats.skipped).
		Dur("elapsed", time.Since(start)).
		Msg("buyer upload run complete")
	return nil
}
