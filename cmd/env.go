package main

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/watch-research/internal/blob"
	"github.com/sells-group/watch-research/internal/credentials"
	"github.com/sells-group/watch-research/internal/imagery"
	"github.com/sells-group/watch-research/internal/research"
	"github.com/sells-group/watch-research/internal/scrape"
	"github.com/sells-group/watch-research/internal/store"
)

// researchEnv holds the store and the orchestrator used by the research
// and serve commands.
type researchEnv struct {
	Store        store.Store
	Orchestrator *research.Orchestrator
	Credentials  *credentials.Resolver
}

// Close releases resources held by the environment.
func (e *researchEnv) Close() {
	if e.Store != nil {
		_ = e.Store.Close()
	}
}

func initStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "sqlite":
		dsn := cfg.Store.DatabaseURL
		if dsn == "" {
			dsn = "watch-research.db"
		}
		return store.NewSQLite(dsn)
	case "postgres":
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL, &store.PoolConfig{
			MaxConns: cfg.Store.MaxConns,
			MinConns: cfg.Store.MinConns,
		})
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
}

// openStore validates the store config, connects and migrates.
func openStore(ctx context.Context) (store.Store, error) {
	if err := cfg.Validate("store"); err != nil {
		return nil, err
	}
	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}
	return st, nil
}

const maxImageBytes = 10 << 20

func seconds(n int) time.Duration {
	return time.Duration(n) * time.Second
}

// initResearch sets up the store, fetchers, blob storage and orchestrator.
// Callers should defer env.Close().
func initResearch(ctx context.Context) (*researchEnv, error) {
	if err := cfg.Validate("research"); err != nil {
		return nil, err
	}

	policy, err := research.LoadPolicy(cfg.Research.PolicyFile, cfg.Fallback.Backend)
	if err != nil {
		return nil, err
	}

	st, err := openStore(ctx)
	if err != nil {
		return nil, err
	}

	scrapeOpts := scrape.Options{
		Timeout:           seconds(cfg.Scrape.TimeoutSecs),
		UserAgent:         cfg.Scrape.UserAgent,
		RequestsPerSecond: cfg.Scrape.RequestsPerSecond,
		MaxBodyBytes:      cfg.Scrape.MaxBodyBytes,
	}
	pages := scrape.NewCachingFetcher(
		scrape.NewPageFetcher(scrapeOpts),
		st,
		time.Duration(cfg.Scrape.CacheTTLHours)*time.Hour,
	)

	imageOpts := scrapeOpts
	imageOpts.Timeout = seconds(cfg.Images.TimeoutSecs)
	imageOpts.MaxBodyBytes = maxImageBytes
	storage := blob.NewOSStorage(cfg.Storage.Root)

	creds := credentials.NewResolver(st, cfg)
	orch := research.New(research.Options{
		Config:      cfg,
		Store:       st,
		Credentials: creds,
		Policy:      policy,
		Fetcher:     pages,
		Blob:        storage,
		Downloader:  imagery.NewAcquirer(scrape.NewPageFetcher(imageOpts), storage),
	})

	zap.L().Debug("research environment ready",
		zap.String("store", cfg.Store.Driver),
		zap.Strings("policy", policy.Providers),
		zap.String("storage_root", cfg.Storage.Root),
	)

	return &researchEnv{Store: st, Orchestrator: orch, Credentials: creds}, nil
}
