// Package store persists watches, valuation history, images, research logs
// and per-user API settings.
package store

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rotisserie/eris"
	"github.com/shopspring/decimal"

	"github.com/sells-group/watch-research/internal/model"
)

// ErrNotFound is wrapped by lookups that match no row.
var ErrNotFound = eris.New("store: not found")

// WatchFilter specifies criteria for listing watches.
type WatchFilter struct {
	UserID string `json:"user_id,omitempty"`
	Brand  string `json:"brand,omitempty"`
	Limit  int    `json:"limit,omitempty"`
	Offset int    `json:"offset,omitempty"`
}

// SpecMerge is a spec-field update produced by one successful spec lookup.
type SpecMerge struct {
	Fields  model.SpecFields // known, non-null fields only
	Raw     json.RawMessage  // archived verbatim in ai_fetched_data
	Sources []string
}

// Store defines the persistence interface for the research pipeline.
type Store interface {
	// Watches
	CreateWatch(ctx context.Context, w *model.Watch) error
	GetWatch(ctx context.Context, id string) (*model.Watch, error)
	ListWatches(ctx context.Context, filter WatchFilter) ([]model.Watch, error)
	MergeWatchSpecs(ctx context.Context, watchID string, m SpecMerge) error
	UpdateMarketValue(ctx context.Context, watchID string, value decimal.Decimal, at time.Time) error

	// Valuation history
	AppendValuation(ctx context.Context, v *model.Valuation) error
	ListValuations(ctx context.Context, watchID string) ([]model.Valuation, error)

	// Images
	AppendWatchImage(ctx context.Context, img *model.WatchImage) error
	ListWatchImages(ctx context.Context, watchID string) ([]model.WatchImage, error)
	HasPrimaryImage(ctx context.Context, watchID string) (bool, error)

	// Research log
	AppendResearchLog(ctx context.Context, e *model.ResearchLogEntry) error
	ListResearchLogs(ctx context.Context, watchID string, limit int) ([]model.ResearchLogEntry, error)

	// API settings
	GetUserAPISettings(ctx context.Context, userID string) (*model.UserAPISettings, error)
	SaveUserAPISettings(ctx context.Context, s *model.UserAPISettings) error

	// Page cache
	GetCachedPage(ctx context.Context, urlHash string) ([]byte, error)
	SetCachedPage(ctx context.Context, urlHash string, content []byte, ttl time.Duration) error

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

const defaultListLimit = 100

func listLimit(n int) int {
	if n <= 0 {
		return defaultListLimit
	}
	return n
}

func marshalSpecs(f model.SpecFields) ([]byte, error) {
	if f == nil {
		f = model.SpecFields{}
	}
	b, err := json.Marshal(f)
	return b, eris.Wrap(err, "marshal specs")
}

func marshalStrings(s []string) ([]byte, error) {
	if s == nil {
		s = []string{}
	}
	b, err := json.Marshal(s)
	return b, eris.Wrap(err, "marshal strings")
}

func unmarshalSpecs(b []byte) (model.SpecFields, error) {
	if len(b) == 0 {
		return nil, nil
	}
	var f model.SpecFields
	if err := json.Unmarshal(b, &f); err != nil {
		return nil, eris.Wrap(err, "unmarshal specs")
	}
	return f, nil
}

func unmarshalStrings(b []byte) ([]string, error) {
	if len(b) == 0 {
		return nil, nil
	}
	var s []string
	if err := json.Unmarshal(b, &s); err != nil {
		return nil, eris.Wrap(err, "unmarshal strings")
	}
	return s, nil
}

// rawOrNil turns an empty payload into a SQL NULL.
func rawOrNil(b json.RawMessage) any {
	if len(b) == 0 {
		return nil
	}
	return string(b)
}
