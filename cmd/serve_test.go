package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pestline/pestline/internal/config"
	"github.com/pestline/pestline/internal/server"
)

func testConfig() *config.Config {
	return &config.Config{
		Store:    config.StoreConfig{Driver: "sqlite"},
		Server:   config.ServerConfig{Port: 8080, TimeoutSecs: 5},
		Quote:    config.QuoteConfig{MaxConcurrentRecalcs: 2},
		SES:      config.SESConfig{VerifySignatures: true, CertCacheSize: 4},
		Throttle: config.ThrottleConfig{Backend: "memory", VoicemailSeconds: 30},
		Slybroadcast: config.SlybroadcastConfig{
			DefaultAudioFile: "default_pest_control_message",
		},
	}
}

func TestBuildDeps(t *testing.T) {
	st := newTestStore(t)

	deps, cleanup, err := buildDeps(context.Background(), testConfig(), st)
	require.NoError(t, err)
	defer cleanup()

	assert.NotNil(t, deps.Store)
	assert.NotNil(t, deps.Recalc)
	assert.NotNil(t, deps.Voicemail)
	assert.NotNil(t, deps.Verifier)
	assert.NotNil(t, deps.Confirmer)
	assert.NotNil(t, deps.Events)

	status := deps.Voicemail.Status()
	assert.False(t, status.Enabled)
	assert.False(t, status.Configured)
	assert.True(t, status.HasDefaultAudio)
}

func TestBuildDeps_UnverifiedWebhook(t *testing.T) {
	c := testConfig()
	c.SES.VerifySignatures = false

	deps, cleanup, err := buildDeps(context.Background(), c, newTestStore(t))
	require.NoError(t, err)
	defer cleanup()
	assert.Nil(t, deps.Verifier)
}

func TestBuildDeps_RedisThrottleBadURL(t *testing.T) {
	c := testConfig()
	c.Throttle.Backend = "redis"
	c.Redis.URL = "not a url"

	_, _, err := buildDeps(context.Background(), c, newTestStore(t))
	assert.ErrorContains(t, err, "init redis throttle")
}

func TestBuildDeps_ConfiguredVoicemail(t *testing.T) {
	c := testConfig()
	c.Slybroadcast.Enabled = true
	c.Slybroadcast.UID = "uid"
	c.Slybroadcast.Password = "pw"

	deps, cleanup, err := buildDeps(context.Background(), c, newTestStore(t))
	require.NoError(t, err)
	defer cleanup()

	status := deps.Voicemail.Status()
	assert.True(t, status.Enabled)
	assert.True(t, status.Configured)
}

func TestServeHandler_Health(t *testing.T) {
	deps, cleanup, err := buildDeps(context.Background(), testConfig(), newTestStore(t))
	require.NoError(t, err)
	defer cleanup()

	h := server.New(deps, server.Options{})
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
}
