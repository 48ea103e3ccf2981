package research

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/watch-research/internal/model"
	"github.com/sells-group/watch-research/internal/store"
	"github.com/sells-group/watch-research/internal/techspec"
	"github.com/sells-group/watch-research/internal/valuation"
)

const fallbackBrandSlug = "watch"

// specsStage tries the policy's providers in order until one succeeds.
// Every attempt is logged, including unconfigured providers.
func (o *Orchestrator) specsStage(ctx context.Context, rs *runState) (map[string]any, error) {
	w := rs.watch
	request := toJSON(map[string]any{
		"brand":            w.Brand,
		"model":            w.Model,
		"reference_number": w.ReferenceNumber,
	})

	var attempted []string
	var reasons []string
	for _, name := range o.policy.Providers {
		provider, err := o.factories.SpecProvider(ctx, name, w.UserID)
		if err != nil {
			zap.L().Warn("research: build spec provider failed", zap.String("provider", name), zap.Error(err))
			reasons = append(reasons, fmt.Sprintf("%s: %v", name, err))
			continue
		}

		attempted = append(attempted, name)
		start := time.Now()
		res := provider.FetchSpec(ctx, w.BrandPtr(), w.ReferenceNumber, w.ModelPtr())
		elapsed := time.Since(start)
		if res == nil {
			res = &model.TechnicalSpecResult{Provider: name, Error: "no result"}
		}

		entry := &model.ResearchLogEntry{
			WatchID:              w.ID,
			Source:               techspec.LogSource(name),
			RequestPayload:       request,
			ResponsePayload:      res.RawResponse,
			Success:              res.Success,
			ErrorMessage:         res.Error,
			ExecutionTimeSeconds: elapsed.Seconds(),
		}
		if res.Success {
			entry.ProcessedResult = toJSON(res.Fields.Known())
		}
		o.appendLog(ctx, entry)

		if !res.Success {
			reasons = append(reasons, fmt.Sprintf("%s: %s", name, res.Error))
			continue
		}

		rs.spec = res
		rs.report.Spec = res
		meta := map[string]any{
			"provider":  name,
			"attempted": attempted,
			"fields":    len(res.Fields.Known()),
			"sources":   len(res.Sources),
		}

		err = o.store.MergeWatchSpecs(ctx, w.ID, store.SpecMerge{
			Fields:  res.Fields.Known(),
			Raw:     res.RawResponse,
			Sources: res.Sources,
		})
		if err != nil {
			return meta, eris.Wrap(err, "research: merge specs")
		}
		if len(res.Sources) > 0 {
			w.SpecSources = res.Sources
		}
		return meta, nil
	}

	return map[string]any{"attempted": attempted},
		eris.Errorf("research: all spec providers failed: %s", strings.Join(reasons, "; "))
}

// pricesStage queries market prices, reduces them to a market value and
// records the valuation.
func (o *Orchestrator) pricesStage(ctx context.Context, rs *runState) (map[string]any, error) {
	w := rs.watch
	request := toJSON(map[string]any{
		"reference_number": w.ReferenceNumber,
		"model":            w.Model,
		"condition":        w.Condition,
	})

	start := time.Now()
	quote, err := o.factories.Pricer(ctx, w.UserID).FetchPrices(ctx, w.ReferenceNumber, w.ModelPtr(), w.Condition)
	elapsed := time.Since(start)
	if err != nil {
		o.appendLog(ctx, &model.ResearchLogEntry{
			WatchID:              w.ID,
			Source:               model.LogSourcePerplexity,
			RequestPayload:       request,
			Success:              false,
			ErrorMessage:         err.Error(),
			ExecutionTimeSeconds: elapsed.Seconds(),
		})
		return nil, err
	}

	res := valuation.Compute(w.ReferenceNumber, w.Condition, quote.Prices)
	rs.report.Valuation = res
	o.appendLog(ctx, &model.ResearchLogEntry{
		WatchID:              w.ID,
		Source:               model.LogSourcePerplexity,
		RequestPayload:       request,
		ResponsePayload:      quote.Raw,
		ProcessedResult:      toJSON(res),
		Success:              res.Success,
		ErrorMessage:         res.Error,
		ExecutionTimeSeconds: elapsed.Seconds(),
	})

	meta := map[string]any{"prices": len(quote.Prices)}
	if !res.Success {
		return meta, eris.Errorf("research: valuation failed: %s", res.Error)
	}
	meta["cleaned"] = len(res.CleanedPrices)
	meta["market_value"] = res.MarketValue.String()

	at := o.now()
	v, err := model.NewValuation(w.ID, w.Condition, res, at)
	if err != nil {
		return meta, eris.Wrap(err, "research: build valuation")
	}
	if err := o.store.AppendValuation(ctx, v); err != nil {
		return meta, eris.Wrap(err, "research: append valuation")
	}
	if err := o.store.UpdateMarketValue(ctx, w.ID, *res.MarketValue, at); err != nil {
		return meta, eris.Wrap(err, "research: update market value")
	}
	w.CurrentMarketValue = res.MarketValue
	w.LastValuationAt = &at
	return meta, nil
}

// imagesStage discovers candidates, downloads a few and records them as
// watch images. The first imported image becomes primary when the watch has
// none.
func (o *Orchestrator) imagesStage(ctx context.Context, rs *runState) (map[string]any, error) {
	w := rs.watch
	maxDownloads := o.cfg.Images.MaxDownloads
	if maxDownloads <= 0 {
		return nil, errSkipped
	}
	if o.downloader == nil {
		return nil, eris.New("research: image downloader not configured")
	}

	candidates, method := o.imageCandidates(ctx, rs)
	meta := map[string]any{"method": method, "candidates": len(candidates)}
	if len(candidates) == 0 {
		return meta, eris.New("research: no image candidates found")
	}
	if len(candidates) > maxDownloads {
		candidates = candidates[:maxDownloads]
	}

	brand := w.Brand
	if brand == "" {
		brand = fallbackBrandSlug
	}

	start := time.Now()
	downloaded := o.downloader.Download(ctx, candidates, brand, w.ReferenceNumber)
	elapsed := time.Since(start)

	urls := make([]string, len(candidates))
	for i, c := range candidates {
		urls[i] = c.URL
	}
	entry := &model.ResearchLogEntry{
		WatchID:              w.ID,
		Source:               model.LogSourceImageDownload,
		RequestPayload:       toJSON(map[string]any{"urls": urls}),
		ProcessedResult:      toJSON(downloaded),
		Success:              len(downloaded) > 0,
		ExecutionTimeSeconds: elapsed.Seconds(),
	}
	if len(downloaded) == 0 {
		entry.ErrorMessage = "no images downloaded"
	}
	o.appendLog(ctx, entry)

	meta["downloaded"] = len(downloaded)
	if len(downloaded) == 0 {
		return meta, eris.New("research: no images downloaded")
	}

	hasPrimary, err := o.store.HasPrimaryImage(ctx, w.ID)
	if err != nil {
		zap.L().Warn("research: primary image check failed", zap.String("watch_id", w.ID), zap.Error(err))
	}

	var stored int
	for _, d := range downloaded {
		img := &model.WatchImage{
			WatchID:   w.ID,
			Filename:  d.Filename,
			Path:      d.StoragePath,
			FileSize:  d.FileSize,
			MimeType:  d.MimeType,
			Source:    model.ImageSourceAIFetched,
			IsPrimary: !hasPrimary,
		}
		if err := o.store.AppendWatchImage(ctx, img); err != nil {
			zap.L().Warn("research: store watch image failed",
				zap.String("watch_id", w.ID),
				zap.String("filename", d.Filename),
				zap.Error(err),
			)
			continue
		}
		if img.IsPrimary {
			hasPrimary = true
		}
		rs.report.Images = append(rs.report.Images, *img)
		stored++
	}

	meta["stored"] = stored
	if stored == 0 {
		return meta, eris.New("research: no images stored")
	}
	return meta, nil
}

// imageCandidates picks the discovery path: image URLs suggested by this
// run's spec provider, then the image search API, then scraping the spec
// sources. Search and scrape are logged.
func (o *Orchestrator) imageCandidates(ctx context.Context, rs *runState) ([]model.ImageCandidate, string) {
	w := rs.watch

	if rs.spec != nil {
		if urls := rs.spec.Fields.ImageURLs(); len(urls) > 0 {
			out := make([]model.ImageCandidate, len(urls))
			for i, u := range urls {
				out[i] = model.ImageCandidate{URL: u, EstimatedSize: model.ImageSizeLarge}
			}
			return out, "spec"
		}
	}

	finder := o.factories.ImageFinder(ctx, w.UserID)

	if finder.SearchConfigured() {
		query := imageQuery(w)
		start := time.Now()
		found, err := finder.Search(ctx, query, o.cfg.Images.SearchLimit)
		entry := &model.ResearchLogEntry{
			WatchID:              w.ID,
			Source:               model.LogSourceGoogleSearch,
			RequestPayload:       toJSON(map[string]any{"query": query}),
			ProcessedResult:      toJSON(found),
			Success:              err == nil && len(found) > 0,
			ExecutionTimeSeconds: time.Since(start).Seconds(),
		}
		switch {
		case err != nil:
			entry.ErrorMessage = err.Error()
		case len(found) == 0:
			entry.ErrorMessage = "no results"
		}
		o.appendLog(ctx, entry)
		if len(found) > 0 {
			return found, "search"
		}
	}

	sources := w.SpecSources
	if rs.spec != nil && len(rs.spec.Sources) > 0 {
		sources = rs.spec.Sources
	}
	if len(sources) == 0 {
		return nil, "none"
	}

	start := time.Now()
	found := finder.Scrape(ctx, sources)
	entry := &model.ResearchLogEntry{
		WatchID:              w.ID,
		Source:               model.LogSourcePageScrape,
		RequestPayload:       toJSON(map[string]any{"sources": sources}),
		ProcessedResult:      toJSON(found),
		Success:              len(found) > 0,
		ExecutionTimeSeconds: time.Since(start).Seconds(),
	}
	if len(found) == 0 {
		entry.ErrorMessage = "no images found on source pages"
	}
	o.appendLog(ctx, entry)
	return found, "scrape"
}

func imageQuery(w *model.Watch) string {
	parts := make([]string, 0, 4)
	for _, p := range []string{w.Brand, w.Model, w.ReferenceNumber} {
		if p = strings.TrimSpace(p); p != "" {
			parts = append(parts, p)
		}
	}
	parts = append(parts, "watch")
	return strings.Join(parts, " ")
}

// appendLog persists a research-log entry. A store failure is logged and
// does not fail the stage.
func (o *Orchestrator) appendLog(ctx context.Context, e *model.ResearchLogEntry) {
	if e.ProcessedAt.IsZero() {
		e.ProcessedAt = o.now()
	}
	if err := o.store.AppendResearchLog(ctx, e); err != nil {
		zap.L().Warn("research: append research log failed",
			zap.String("watch_id", e.WatchID),
			zap.String("source", string(e.Source)),
			zap.Error(err),
		)
	}
}

func toJSON(v any) json.RawMessage {
	b, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return b
}
