package api

import (
	"context"
	"net/http"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BTreeMap/CravingCompanion/internal/models"
	"github.com/BTreeMap/CravingCompanion/internal/testutil"
)

func createSession(t *testing.T, env *testEnv, body interface{}) models.SessionCreateResponse {
	t.Helper()
	res := env.do(t, http.MethodPost, "/api/session", body)
	testutil.AssertHTTPStatus(t, http.StatusOK, res)
	return testutil.DecodeJSON[models.SessionCreateResponse](t, res)
}

func TestCreateSessionHandler(t *testing.T) {
	env := newTestEnv(t, nil)

	resp := createSession(t, env, nil)
	assert.True(t, resp.Persisted)
	assert.Equal(t, models.StageEntry, resp.Stage)
	_, err := uuid.Parse(resp.SessionID)
	assert.NoError(t, err)

	resp = createSession(t, env, map[string]string{"stage": "relief"})
	assert.Equal(t, models.StageRelief, resp.Stage)

	rec, err := env.store.GetSession(context.Background(), resp.SessionID)
	require.NoError(t, err)
	assert.Equal(t, models.StageRelief, rec.Stage)
}

func TestCreateSessionHandler_RejectsUnknownStage(t *testing.T) {
	env := newTestEnv(t, nil)
	res := env.do(t, http.MethodPost, "/api/session", map[string]string{"stage": "relief_center"})
	testutil.AssertHTTPStatus(t, http.StatusBadRequest, res)
	assert.Equal(t, "stage", testutil.DecodeJSON[models.ErrorResponse](t, res).Issues[0].Field)
}

func TestCreateSessionHandler_StoreFailureIssuesEphemeralID(t *testing.T) {
	env := newTestEnv(t, failingStore{})

	resp := createSession(t, env, map[string]string{})
	assert.False(t, resp.Persisted)
	_, err := uuid.Parse(resp.SessionID)
	assert.NoError(t, err)
}

func TestUpdateSessionHandler(t *testing.T) {
	env := newTestEnv(t, nil)
	id := createSession(t, env, nil).SessionID

	res := env.do(t, http.MethodPatch, "/api/session/"+id, map[string]interface{}{"stage": "reflection", "intensityBefore": 8})
	testutil.AssertHTTPStatus(t, http.StatusOK, res)
	assert.Equal(t, models.SessionUpdateResponse{Persisted: true, StageUpdated: true, IntensityUpdated: true},
		testutil.DecodeJSON[models.SessionUpdateResponse](t, res))

	res = env.do(t, http.MethodPatch, "/api/session/"+id, map[string]interface{}{"intensityAfter": 3, "endSession": true})
	testutil.AssertHTTPStatus(t, http.StatusOK, res)
	assert.Equal(t, models.SessionUpdateResponse{Persisted: true, StageUpdated: true, IntensityUpdated: true},
		testutil.DecodeJSON[models.SessionUpdateResponse](t, res))

	res = env.do(t, http.MethodGet, "/api/session/"+id, nil)
	testutil.AssertHTTPStatus(t, http.StatusOK, res)
	detail := testutil.DecodeJSON[models.SessionDetail](t, res)
	assert.Equal(t, models.StageReflection, detail.Session.Stage)
	assert.NotNil(t, detail.Session.EndedAt)
	require.NotNil(t, detail.Craving)
	require.NotNil(t, detail.Craving.IntensityBefore)
	require.NotNil(t, detail.Craving.IntensityAfter)
	assert.Equal(t, 8.0, *detail.Craving.IntensityBefore)
	assert.Equal(t, 3.0, *detail.Craving.IntensityAfter)
}

func TestUpdateSessionHandler_EmptyBodyPersistsNothing(t *testing.T) {
	env := newTestEnv(t, nil)
	id := createSession(t, env, nil).SessionID

	res := env.do(t, http.MethodPatch, "/api/session/"+id, map[string]string{})
	testutil.AssertHTTPStatus(t, http.StatusOK, res)
	assert.Equal(t, models.SessionUpdateResponse{}, testutil.DecodeJSON[models.SessionUpdateResponse](t, res))
}

func TestUpdateSessionHandler_UnknownSession(t *testing.T) {
	env := newTestEnv(t, nil)

	res := env.do(t, http.MethodPatch, "/api/session/missing", map[string]interface{}{"stage": "teaser", "intensityBefore": 4})
	testutil.AssertHTTPStatus(t, http.StatusOK, res)
	assert.Equal(t, models.SessionUpdateResponse{}, testutil.DecodeJSON[models.SessionUpdateResponse](t, res))
}

func TestUpdateSessionHandler_Validation(t *testing.T) {
	env := newTestEnv(t, nil)

	res := env.do(t, http.MethodPatch, "/api/session/x", map[string]interface{}{"intensityAfter": 11})
	testutil.AssertHTTPStatus(t, http.StatusBadRequest, res)
	resp := testutil.DecodeJSON[models.ErrorResponse](t, res)
	assert.Equal(t, "Invalid session update payload", resp.Message)
	assert.Equal(t, "intensityAfter", resp.Issues[0].Field)
}

func TestConversionHandler(t *testing.T) {
	env := newTestEnv(t, nil)
	id := createSession(t, env, nil).SessionID

	res := env.do(t, http.MethodPost, "/api/session/"+id+"/conversion", map[string]interface{}{"plan": "annual", "checkoutStarted": true})
	testutil.AssertHTTPStatus(t, http.StatusOK, res)
	assert.True(t, testutil.DecodeJSON[models.ConversionResponse](t, res).Persisted)

	res = env.do(t, http.MethodPost, "/api/session/"+id+"/conversion", nil)
	testutil.AssertHTTPStatus(t, http.StatusOK, res)
	assert.True(t, testutil.DecodeJSON[models.ConversionResponse](t, res).Persisted)

	conversions, err := env.store.ListConversions(context.Background(), id)
	require.NoError(t, err)
	require.Len(t, conversions, 2)
	assert.Equal(t, "annual", conversions[0].Plan)
	assert.NotNil(t, conversions[0].CTAClickedAt)
	assert.NotNil(t, conversions[0].CheckoutStartedAt)
	assert.NotNil(t, conversions[1].CTAClickedAt)
	assert.Nil(t, conversions[1].CheckoutStartedAt)
}

func TestConversionHandler_UnknownSessionNotPersisted(t *testing.T) {
	env := newTestEnv(t, nil)
	res := env.do(t, http.MethodPost, "/api/session/missing/conversion", map[string]string{"plan": "monthly"})
	testutil.AssertHTTPStatus(t, http.StatusOK, res)
	assert.False(t, testutil.DecodeJSON[models.ConversionResponse](t, res).Persisted)
}

func TestGetSessionHandler(t *testing.T) {
	env := newTestEnv(t, nil)
	id := createSession(t, env, nil).SessionID
	env.do(t, http.MethodPost, "/api/conversation", map[string]string{"sessionId": id, "stage": "entry", "userInput": "hi"})

	res := env.do(t, http.MethodGet, "/api/session/"+id, nil)
	testutil.AssertHTTPStatus(t, http.StatusOK, res)
	detail := testutil.DecodeJSON[models.SessionDetail](t, res)
	assert.Equal(t, id, detail.Session.ID)
	assert.Nil(t, detail.Craving)
	assert.Empty(t, detail.Conversions)
	require.Len(t, detail.Turns, 1)
	assert.Equal(t, models.StageEntry, detail.Turns[0].Stage)
}

func TestGetSessionHandler_NotFound(t *testing.T) {
	env := newTestEnv(t, nil)
	res := env.do(t, http.MethodGet, "/api/session/missing", nil)
	testutil.AssertHTTPStatus(t, http.StatusNotFound, res)
	assert.Equal(t, "Session not found", testutil.DecodeJSON[models.ErrorResponse](t, res).Message)
}

func TestGetSessionHandler_StoreFailure(t *testing.T) {
	env := newTestEnv(t, failingStore{})
	res := env.do(t, http.MethodGet, "/api/session/any", nil)
	testutil.AssertHTTPStatus(t, http.StatusInternalServerError, res)
}
