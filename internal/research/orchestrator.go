// Package research runs the enrichment stages for one watch: technical
// specs, market prices and images.
package research

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/sells-group/watch-research/internal/blob"
	"github.com/sells-group/watch-research/internal/config"
	"github.com/sells-group/watch-research/internal/credentials"
	"github.com/sells-group/watch-research/internal/imagery"
	"github.com/sells-group/watch-research/internal/model"
	"github.com/sells-group/watch-research/internal/scrape"
	"github.com/sells-group/watch-research/internal/store"
)

const defaultMaxDownloads = 5

// errSkipped marks a stage that had nothing to do.
var errSkipped = eris.New("research: stage skipped")

// Fetcher loads source pages and raw image bodies.
type Fetcher interface {
	FetchPage(ctx context.Context, rawURL string) (*scrape.Response, error)
	Get(ctx context.Context, rawURL string) (*scrape.Response, error)
}

// Options configures an Orchestrator.
type Options struct {
	Config      *config.Config
	Store       store.Store
	Credentials *credentials.Resolver // defaults to the store-backed resolver
	Policy      *Policy               // defaults to DefaultPolicy(cfg.Fallback.Backend)
	Fetcher     Fetcher
	Blob        *blob.Storage
	Downloader  Downloader // defaults to an imagery.Acquirer over Fetcher and Blob
	Factories   Factories
	Now         func() time.Time
}

// Orchestrator runs research stages and records every upstream call in the
// research log.
type Orchestrator struct {
	cfg        *config.Config
	store      store.Store
	policy     *Policy
	downloader Downloader
	factories  Factories
	now        func() time.Time
	flight     singleflight.Group
	watches    watchLocks
}

// RunOptions selects the stages of a run. No stages means all of them.
type RunOptions struct {
	Stages []model.Stage
}

// New creates an Orchestrator.
func New(opts Options) *Orchestrator {
	cfg := opts.Config
	if cfg == nil {
		cfg = &config.Config{Images: config.ImagesConfig{MaxDownloads: defaultMaxDownloads}}
	}
	creds := opts.Credentials
	if creds == nil {
		creds = credentials.NewResolver(opts.Store, cfg)
	}
	policy := opts.Policy
	if policy == nil {
		policy = DefaultPolicy(cfg.Fallback.Backend)
	}

	defaults := &defaultFactories{cfg: cfg, creds: creds}
	if opts.Fetcher != nil {
		defaults.pages = opts.Fetcher
	}
	f := opts.Factories
	if f.SpecProvider == nil {
		f.SpecProvider = defaults.specProvider
	}
	if f.Pricer == nil {
		f.Pricer = defaults.pricer
	}
	if f.ImageFinder == nil {
		f.ImageFinder = defaults.imageFinder
	}

	dl := opts.Downloader
	if dl == nil && opts.Fetcher != nil && opts.Blob != nil {
		dl = imagery.NewAcquirer(opts.Fetcher, opts.Blob)
	}

	now := opts.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}

	return &Orchestrator{
		cfg:        cfg,
		store:      opts.Store,
		policy:     policy,
		downloader: dl,
		factories:  f,
		now:        now,
	}
}

// Policy returns the provider policy in effect.
func (o *Orchestrator) Policy() *Policy { return o.policy }

// RunStage executes a single stage for a watch.
func (o *Orchestrator) RunStage(ctx context.Context, watchID string, stage model.Stage) (*model.RunReport, error) {
	return o.Run(ctx, watchID, RunOptions{Stages: []model.Stage{stage}})
}

// Run executes the selected stages in order specs, prices, images.
// Concurrent calls for the same watch and stage set share one execution;
// calls for the same watch with a different stage set wait for the
// in-flight run to finish. Stage failures are reported in the RunReport;
// the only errors returned are a failure to load the watch or a context
// that ends while waiting on another run.
func (o *Orchestrator) Run(ctx context.Context, watchID string, opts RunOptions) (*model.RunReport, error) {
	stages := selectStages(opts.Stages)
	names := make([]string, len(stages))
	for i, s := range stages {
		names[i] = string(s)
	}
	key := watchID + ":" + strings.Join(names, ",")

	v, err, shared := o.flight.Do(key, func() (any, error) {
		release, err := o.watches.acquire(ctx, watchID)
		if err != nil {
			return nil, eris.Wrapf(err, "research: wait for in-flight run on %s", watchID)
		}
		defer release()
		return o.run(ctx, watchID, stages)
	})
	if shared {
		zap.L().Debug("research: joined in-flight run", zap.String("watch_id", watchID))
	}
	if err != nil {
		return nil, err
	}
	return v.(*model.RunReport), nil
}

// watchLocks serializes runs per watch ID.
type watchLocks struct {
	mu    sync.Mutex
	locks map[string]*watchLock
}

type watchLock struct {
	sem  chan struct{}
	refs int
}

// acquire blocks until no other run holds watchID or ctx ends.
func (l *watchLocks) acquire(ctx context.Context, watchID string) (func(), error) {
	l.mu.Lock()
	if l.locks == nil {
		l.locks = make(map[string]*watchLock)
	}
	wl, ok := l.locks[watchID]
	if !ok {
		wl = &watchLock{sem: make(chan struct{}, 1)}
		l.locks[watchID] = wl
	}
	wl.refs++
	l.mu.Unlock()

	unref := func() {
		l.mu.Lock()
		wl.refs--
		if wl.refs == 0 {
			delete(l.locks, watchID)
		}
		l.mu.Unlock()
	}

	select {
	case wl.sem <- struct{}{}:
	case <-ctx.Done():
		unref()
		return nil, ctx.Err()
	}

	return func() {
		<-wl.sem
		unref()
	}, nil
}

func selectStages(requested []model.Stage) []model.Stage {
	if len(requested) == 0 {
		return model.AllStages()
	}
	want := make(map[model.Stage]bool, len(requested))
	for _, s := range requested {
		want[s] = true
	}
	var out []model.Stage
	for _, s := range model.AllStages() {
		if want[s] {
			out = append(out, s)
		}
	}
	return out
}

// runState carries stage outputs forward within one run.
type runState struct {
	watch  *model.Watch
	report *model.RunReport
	spec   *model.TechnicalSpecResult
}

func (o *Orchestrator) run(ctx context.Context, watchID string, stages []model.Stage) (*model.RunReport, error) {
	w, err := o.store.GetWatch(ctx, watchID)
	if err != nil {
		return nil, eris.Wrapf(err, "research: load watch %s", watchID)
	}

	log := zap.L().With(
		zap.String("watch_id", w.ID),
		zap.String("reference_number", w.ReferenceNumber),
	)
	log.Info("research: starting run", zap.Int("stages", len(stages)))

	rs := &runState{watch: w, report: &model.RunReport{WatchID: w.ID}}

	trackStage := func(name model.Stage, fn func() (map[string]any, error)) {
		start := time.Now()
		meta, fnErr := fn()
		duration := time.Since(start).Milliseconds()

		sr := model.StageResult{Name: name, DurationMS: duration, Metadata: meta}
		switch {
		case fnErr == nil:
			sr.Status = model.StageComplete
			log.Info("research: stage complete",
				zap.String("stage", string(name)),
				zap.Int64("duration_ms", duration),
			)
		case eris.Is(fnErr, errSkipped):
			sr.Status = model.StageSkipped
			log.Info("research: stage skipped", zap.String("stage", string(name)))
		default:
			sr.Status = model.StageFailed
			sr.Error = fnErr.Error()
			log.Error("research: stage failed",
				zap.String("stage", string(name)),
				zap.Int64("duration_ms", duration),
				zap.Error(fnErr),
			)
		}
		rs.report.Stages = append(rs.report.Stages, sr)
	}

	for _, stage := range stages {
		if ctx.Err() != nil {
			trackStage(stage, func() (map[string]any, error) {
				return nil, eris.Wrap(ctx.Err(), "research: run cancelled")
			})
			continue
		}
		switch stage {
		case model.StageSpecs:
			trackStage(stage, func() (map[string]any, error) { return o.specsStage(ctx, rs) })
		case model.StagePrices:
			trackStage(stage, func() (map[string]any, error) { return o.pricesStage(ctx, rs) })
		case model.StageImages:
			trackStage(stage, func() (map[string]any, error) { return o.imagesStage(ctx, rs) })
		}
	}

	log.Info("research: run finished", zap.Bool("failed", rs.report.Failed()))
	return rs.report, nil
}
