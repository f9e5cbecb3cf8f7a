package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"

	"patternmatch/config"
	"patternmatch/database"
	"patternmatch/engine"
	"patternmatch/logging"
	"patternmatch/objectstore"
	"patternmatch/trigger"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to the yaml config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	if err := logging.Setup(cfg.Log.Level, cfg.Log.Pretty); err != nil {
		fmt.Fprintf(os.Stderr, "setup logging: %v\n", err)
		os.Exit(1)
	}
	log := logging.Component("main")

	db, err := openDatabaseWithRetry(cfg.Database.Path)
	if err != nil {
		log.Fatal().Err(err).Str("path", cfg.Database.Path).Msg("database init failed")
	}
	defer db.Close()

	if err := database.EnsureSearchIndexes(db); err != nil {
		// The active-search query degrades to its fallback strategy until
		// the index exists, so this is not fatal.
		log.Warn().Err(err).Msg("search index migration failed, queries will use fallback path")
	}

	if err := os.MkdirAll(cfg.Storage.Root, 0o755); err != nil {
		log.Fatal().Err(err).Str("root", cfg.Storage.Root).Msg("storage root unavailable")
	}
	store, err := objectstore.NewFSStore(cfg.Storage.Root)
	if err != nil {
		log.Fatal().Err(err).Msg("object store init failed")
	}

	matcher := engine.New(db, store, engine.Config{
		Threshold:   cfg.Match.Threshold,
		MaxToScan:   cfg.Scan.MaxToScan,
		PageSize:    cfg.Scan.PageSize,
		MaxWorkers:  cfg.Scan.MaxWorkers,
		MaxBatchOps: cfg.Database.MaxBatchOps,
		MaxBatchGet: cfg.Database.MaxBatchGet,
		RunBudget:   cfg.Scan.RunBudget,
	})

	pubsub := gochannel.NewGoChannel(
		gochannel.Config{OutputChannelBuffer: 64},
		logging.NewWatermillAdapter("pubsub"),
	)
	defer pubsub.Close()

	handler := trigger.NewHandler(matcher, store)
	router, err := trigger.NewRouter(handler, pubsub, cfg.Events.Topic)
	if err != nil {
		log.Fatal().Err(err).Msg("router init failed")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log.Info().
		Str("topic", cfg.Events.Topic).
		Str("storage_root", cfg.Storage.Root).
		Int("threshold", cfg.Match.Threshold).
		Int("max_to_scan", cfg.Scan.MaxToScan).
		Msg("pattern match engine starting")

	if err := router.Run(ctx); err != nil {
		log.Fatal().Err(err).Msg("router stopped")
	}
	log.Info().Msg("shutdown complete")
}

// openDatabaseWithRetry initializes the database, retrying a few times so a
// slow volume mount does not kill the service at boot.
func openDatabaseWithRetry(path string) (*sql.DB, error) {
	const maxRetries = 3

	var (
		db  *sql.DB
		err error
	)
	for i := 0; i < maxRetries; i++ {
		db, err = database.InitDatabase(path)
		if err == nil {
			return db, nil
		}
		if i < maxRetries-1 {
			log := logging.Component("main")
			log.Warn().
				Err(err).
				Int("attempt", i+1).
				Msg("database init failed, retrying")
			time.Sleep(time.Second * time.Duration(i+1))
		}
	}
	return nil, err
}
