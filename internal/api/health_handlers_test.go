package api

import (
	"net/http"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BTreeMap/CravingCompanion/internal/models"
	"github.com/BTreeMap/CravingCompanion/internal/prompt"
	"github.com/BTreeMap/CravingCompanion/internal/testutil"
)

func TestScriptHealthHandler(t *testing.T) {
	env := newTestEnv(t, nil)

	res := env.do(t, http.MethodGet, "/api/health/script", nil)
	testutil.AssertHTTPStatus(t, http.StatusOK, res)
	resp := testutil.DecodeJSON[models.ScriptHealthResponse](t, res)
	assert.Equal(t, "test-1", resp.Version)
	assert.Equal(t, []string{"entry", "relief", "reflection", "teaser", "conversion"}, resp.Stages)
	assert.Equal(t, prompt.Preview(previewLength), resp.SystemPromptPreview)
	assert.True(t, strings.HasPrefix(prompt.Persona, resp.SystemPromptPreview))
}

func TestScriptHealthHandler_Unavailable(t *testing.T) {
	env := newTestEnv(t, nil)
	require.NoError(t, os.Remove(env.scripts.Path()))

	res := env.do(t, http.MethodGet, "/api/health/script", nil)
	testutil.AssertHTTPStatus(t, http.StatusInternalServerError, res)
}

func TestScriptReloadHandler(t *testing.T) {
	env := newTestEnv(t, nil)
	env.do(t, http.MethodGet, "/api/health/script", nil)

	updated := strings.Replace(testutil.ScriptJSON, `"test-1"`, `"test-2"`, 1)
	require.NoError(t, os.WriteFile(env.scripts.Path(), []byte(updated), 0o644))

	res := env.do(t, http.MethodGet, "/api/health/script", nil)
	assert.Equal(t, "test-1", testutil.DecodeJSON[models.ScriptHealthResponse](t, res).Version)

	res = env.do(t, http.MethodPost, "/api/health/script/reload", nil)
	testutil.AssertHTTPStatus(t, http.StatusOK, res)
	assert.Equal(t, "test-2", testutil.DecodeJSON[models.ScriptHealthResponse](t, res).Version)
}

func TestProvidersHealthHandler(t *testing.T) {
	env := newTestEnv(t, nil)
	env.gemini.Configured = false

	res := env.do(t, http.MethodGet, "/api/health/providers", nil)
	testutil.AssertHTTPStatus(t, http.StatusOK, res)
	resp := testutil.DecodeJSON[models.ProvidersHealthResponse](t, res)
	assert.Equal(t, "openai", resp.DefaultProvider)
	assert.Equal(t, []models.ProviderHealth{
		{Key: "gemini", Configured: false},
		{Key: "openai", Configured: true},
	}, resp.Providers)
}
