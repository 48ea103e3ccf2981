// Package credentials resolves upstream API keys, preferring per-user
// settings over the process-wide defaults from config.
package credentials

import (
	"context"

	"go.uber.org/zap"

	"github.com/sells-group/watch-research/internal/config"
	"github.com/sells-group/watch-research/internal/model"
)

// Service names an upstream credential.
type Service string

const (
	Perplexity         Service = "perplexity"
	OpenAI             Service = "openai"
	Anthropic          Service = "anthropic"
	Gemini             Service = "gemini"
	GoogleSearchKey    Service = "google_search_key"
	GoogleSearchEngine Service = "google_search_engine"
)

// AllServices lists every resolvable service.
func AllServices() []Service {
	return []Service{Perplexity, OpenAI, Anthropic, Gemini, GoogleSearchKey, GoogleSearchEngine}
}

// SettingsSource loads per-user API settings. A nil result means the user
// has none.
type SettingsSource interface {
	GetUserAPISettings(ctx context.Context, userID string) (*model.UserAPISettings, error)
}

// Resolver looks up credentials.
type Resolver struct {
	settings SettingsSource
	defaults map[Service]string
}

// NewResolver builds a Resolver from the store and the config defaults.
// settings may be nil.
func NewResolver(settings SettingsSource, cfg *config.Config) *Resolver {
	r := &Resolver{settings: settings, defaults: map[Service]string{}}
	if cfg != nil {
		r.defaults[Perplexity] = cfg.Perplexity.Key
		r.defaults[OpenAI] = cfg.OpenAI.Key
		r.defaults[Anthropic] = cfg.Anthropic.Key
		r.defaults[Gemini] = cfg.Gemini.Key
		r.defaults[GoogleSearchKey] = cfg.Google.SearchKey
		r.defaults[GoogleSearchEngine] = cfg.Google.SearchEngineID
	}
	return r
}

// Credential returns the key for service. A non-empty per-user value wins;
// otherwise the config default is used. ok is false when neither is set.
// A settings lookup failure is logged and treated as "no user value".
func (r *Resolver) Credential(ctx context.Context, service Service, userID string) (string, bool) {
	if userID != "" && r.settings != nil {
		st, err := r.settings.GetUserAPISettings(ctx, userID)
		if err != nil {
			zap.L().Warn("credentials: load user settings failed",
				zap.String("user_id", userID),
				zap.Error(err),
			)
		} else if v := fromSettings(st, service); v != "" {
			return v, true
		}
	}
	v := r.defaults[service]
	return v, v != ""
}

// Key is Credential without the ok flag.
func (r *Resolver) Key(ctx context.Context, service Service, userID string) string {
	v, _ := r.Credential(ctx, service, userID)
	return v
}

func fromSettings(st *model.UserAPISettings, service Service) string {
	if st == nil {
		return ""
	}
	switch service {
	case Perplexity:
		return st.PerplexityKey
	case OpenAI:
		return st.OpenAIKey
	case Anthropic:
		return st.AnthropicKey
	case Gemini:
		return st.GeminiKey
	case GoogleSearchKey:
		return st.GoogleSearchKey
	case GoogleSearchEngine:
		return st.GoogleSearchEngineID
	}
	return ""
}

// Apply writes value into the settings field for service. It reports false
// for an unknown service.
func Apply(st *model.UserAPISettings, service Service, value string) bool {
	switch service {
	case Perplexity:
		st.PerplexityKey = value
	case OpenAI:
		st.OpenAIKey = value
	case Anthropic:
		st.AnthropicKey = value
	case Gemini:
		st.GeminiKey = value
	case GoogleSearchKey:
		st.GoogleSearchKey = value
	case GoogleSearchEngine:
		st.GoogleSearchEngineID = value
	default:
		return false
	}
	return true
}

// Mask hides all but the last four characters of a key.
func Mask(key string) string {
	if len(key) <= 4 {
		if key == "" {
			return ""
		}
		return "****"
	}
	return "****" + key[len(key)-4:]
}
