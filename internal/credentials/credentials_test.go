package credentials

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sells-group/watch-research/internal/config"
	"github.com/sells-group/watch-research/internal/model"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

type fakeSettings struct {
	byUser map[string]*model.UserAPISettings
	err    error
	calls  int
}

func (f *fakeSettings) GetUserAPISettings(_ context.Context, userID string) (*model.UserAPISettings, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.byUser[userID], nil
}

func testConfig() *config.Config {
	cfg := &config.Config{}
	cfg.Perplexity.Key = "pplx-default"
	cfg.OpenAI.Key = "sk-default"
	cfg.Google.SearchEngineID = "cx-default"
	return cfg
}

func TestCredential_UserOverridesDefault(t *testing.T) {
	src := &fakeSettings{byUser: map[string]*model.UserAPISettings{
		"u1": {UserID: "u1", PerplexityKey: "pplx-user", GoogleSearchKey: "g-user"},
	}}
	r := NewResolver(src, testConfig())
	ctx := context.Background()

	v, ok := r.Credential(ctx, Perplexity, "u1")
	assert.True(t, ok)
	assert.Equal(t, "pplx-user", v)

	// Empty user field falls back to the default.
	v, ok = r.Credential(ctx, OpenAI, "u1")
	assert.True(t, ok)
	assert.Equal(t, "sk-default", v)

	v, ok = r.Credential(ctx, GoogleSearchKey, "u1")
	assert.True(t, ok)
	assert.Equal(t, "g-user", v)
	assert.Equal(t, "cx-default", r.Key(ctx, GoogleSearchEngine, "u1"))
}

func TestCredential_NoUser(t *testing.T) {
	src := &fakeSettings{}
	r := NewResolver(src, testConfig())

	v, ok := r.Credential(context.Background(), Perplexity, "")
	assert.True(t, ok)
	assert.Equal(t, "pplx-default", v)
	assert.Zero(t, src.calls)

	_, ok = r.Credential(context.Background(), Anthropic, "")
	assert.False(t, ok)
}

func TestCredential_SettingsErrorFallsBack(t *testing.T) {
	r := NewResolver(&fakeSettings{err: errors.New("db down")}, testConfig())
	v, ok := r.Credential(context.Background(), Perplexity, "u1")
	assert.True(t, ok)
	assert.Equal(t, "pplx-default", v)
}

func TestCredential_NilSourceAndConfig(t *testing.T) {
	r := NewResolver(nil, nil)
	for _, s := range AllServices() {
		_, ok := r.Credential(context.Background(), s, "u1")
		assert.False(t, ok, s)
	}
}

func TestApply(t *testing.T) {
	st := &model.UserAPISettings{}
	for _, s := range AllServices() {
		require.True(t, Apply(st, s, "v-"+string(s)))
		assert.Equal(t, "v-"+string(s), fromSettings(st, s))
	}
	assert.False(t, Apply(st, Service("bing"), "x"))
}

func TestMask(t *testing.T) {
	assert.Equal(t, "", Mask(""))
	assert.Equal(t, "****", Mask("abc"))
	assert.Equal(t, "****6789", Mask("pplx-123456789"))
}
