package engine

import (
	"context"
	"database/sql"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"patternmatch/database"
	"patternmatch/fingerprint"
	"patternmatch/logging"
	"patternmatch/objectstore"
)

// Config bounds one orchestrator run. MaxToScan exists specifically to keep
// worst-case latency inside the run budget: when the candidate population
// exceeds it, the run deliberately scans only a prefix of the population.
type Config struct {
	Threshold   int
	MaxToScan   int
	PageSize    int
	MaxWorkers  int
	MaxBatchOps int
	MaxBatchGet int
	RunBudget   time.Duration
}

func (c Config) withDefaults() Config {
	if c.Threshold <= 0 {
		c.Threshold = fingerprint.DefaultThreshold
	}
	if c.MaxToScan <= 0 {
		c.MaxToScan = 400
	}
	if c.PageSize <= 0 {
		c.PageSize = 100
	}
	if c.MaxWorkers <= 0 {
		c.MaxWorkers = 8
	}
	if c.MaxBatchOps <= 0 {
		c.MaxBatchOps = database.DefaultMaxBatchOps
	}
	if c.MaxBatchGet <= 0 {
		c.MaxBatchGet = database.DefaultBatchGetSize
	}
	if c.RunBudget <= 0 {
		c.RunBudget = 100 * time.Second
	}
	return c
}

// Engine runs the two upload orchestrators. Each run is an independent,
// stateless invocation; correctness under duplicate or concurrent runs
// comes from every write being an idempotent merge, not from locking.
type Engine struct {
	db     *sql.DB
	store  objectstore.Store
	policy fingerprint.Policy
	cfg    Config
	log    zerolog.Logger
}

// New wires an engine over the structured database and the bulk store.
func New(db *sql.DB, store objectstore.Store, cfg Config) *Engine {
	cfg = cfg.withDefaults()
	return &Engine{
		db:     db,
		store:  store,
		policy: fingerprint.Policy{Threshold: cfg.Threshold},
		cfg:    cfg,
		log:    logging.Component("engine"),
	}
}

// candidate is one comparison target assembled by a scan or an index query.
type candidate struct {
	path      string
	ownerUID  string
	listingID string
	searchID  string
	sourceTag string
	// cached is the stored fingerprint, when one exists; empty means the
	// candidate's bytes are downloaded and fingerprinted on demand.
	cached fingerprint.Fingerprint
}

// compareStats summarizes one compare loop for the run log.
type compareStats struct {
	compared int
	matched  int
	skipped  int
}

// compareAndRecord fingerprints every candidate, compares it against the
// run's own fingerprint and invokes onMatch for each qualifying distance.
// The download/fingerprint/compare loop is I/O bound and fans out across a
// bounded number of workers; one failing candidate is skipped and counted,
// never fatal for the run.
func (e *Engine) compareAndRecord(ctx context.Context, own fingerprint.Fingerprint, candidates []candidate, onMatch func(candidate, float64)) compareStats {
	var (
		stats     compareStats
		mu        sync.Mutex
		wg        sync.WaitGroup
		semaphore = make(chan struct{}, e.cfg.MaxWorkers)
	)

	for _, c := range candidates {
		if ctx.Err() != nil {
			break
		}

		wg.Add(1)
		semaphore <- struct{}{}

		go func(c candidate) {
			defer wg.Done()
			defer func() { <-semaphore }()

			fp := c.cached
			if fp == "" {
				data, err := e.store.Get(ctx, c.path)
				if err != nil {
					e.log.Warn().Str("candidate", c.path).Err(err).Msg("candidate download failed, skipping")
					mu.Lock()
					stats.skipped++
					mu.Unlock()
					return
				}
				fp, err = fingerprint.Compute(data)
				if err != nil {
					e.log.Warn().Str("candidate", c.path).Err(err).Msg("candidate not decodable, skipping")
					mu.Lock()
					stats.skipped++
					mu.Unlock()
					return
				}
			}

			distance, err := fingerprint.Distance(own, fp)
			if err != nil {
				e.log.Warn().Str("candidate", c.path).Err(err).Msg("malformed candidate fingerprint, skipping")
				mu.Lock()
				stats.skipped++
				mu.Unlock()
				return
			}

			e.log.Debug().
				Str("candidate", c.path).
				Int("distance", distance).
				Bool("match", e.policy.Match(distance)).
				Msg("candidate compared")

			mu.Lock()
			stats.compared++
			if e.policy.Match(distance) {
				stats.matched++
				onMatch(c, fingerprint.Score(distance))
			}
			mu.Unlock()
		}(c)
	}

	wg.Wait()
	return stats
}

// scanPrefix lists a capped slice of the store under prefix and keeps only
// image objects, optionally filtered to one brand segment. Page failures
// degrade to whatever was gathered before them; a bad page never aborts the
// whole run.
func (e *Engine) scanPrefix(ctx context.Context, prefix, brand string) []objectstore.ObjectInfo {
	items, truncated, err := objectstore.ListUnderPrefix(ctx, e.store, prefix, e.cfg.MaxToScan, e.cfg.PageSize)
	if err != nil {
		e.log.Warn().Str("prefix", prefix).Err(err).Msg("prefix scan failed, continuing with partial page set")
	}
	if truncated {
		e.log.Info().Str("prefix", prefix).Int("cap", e.cfg.MaxToScan).Msg("scan truncated at cap")
	}
	return objectstore.FilterByBrandAndExtension(items, brand, nil)
}

func add(stats *compareStats, more compareStats) {
	stats.compared += more.compared
	stats.matched += more.matched
	stats.skipped += more.skipped
}
