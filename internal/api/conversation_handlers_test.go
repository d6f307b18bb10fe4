package api

import (
	"context"
	"errors"
	"net/http"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BTreeMap/CravingCompanion/internal/flow"
	"github.com/BTreeMap/CravingCompanion/internal/models"
	"github.com/BTreeMap/CravingCompanion/internal/testutil"
)

func TestConversationHandler_LLMReply(t *testing.T) {
	env := newTestEnv(t, nil)
	rec, err := env.store.CreateSession(context.Background(), models.StageEntry)
	require.NoError(t, err)

	res := env.do(t, http.MethodPost, "/api/conversation", map[string]interface{}{
		"sessionId": rec.ID,
		"stage":     "entry",
		"userInput": "I really want a cigarette",
		"metadata":  map[string]interface{}{"mode": "text"},
	})
	testutil.AssertHTTPStatus(t, http.StatusOK, res)

	resp := testutil.DecodeJSON[models.TurnResponse](t, res)
	assert.Equal(t, models.StageEntry, resp.Stage)
	assert.Equal(t, models.StageRelief, resp.NextStage)
	assert.Equal(t, models.SourceLLM, resp.Source)
	assert.Equal(t, []string{"You are not alone in this.", "Let's take one breath."}, resp.Messages)
	assert.Equal(t, 1, env.openai.Calls())
	assert.Equal(t, 0, env.gemini.Calls())

	turns, err := env.store.ListTurns(context.Background(), rec.ID)
	require.NoError(t, err)
	require.Len(t, turns, 1)
	assert.Equal(t, models.SourceLLM, turns[0].Source)
	assert.Equal(t, "openai", turns[0].Provider)
	assert.Equal(t, "gpt-4o-mini", turns[0].Model)
	assert.Equal(t, models.StageRelief, turns[0].NextStage)
}

func TestConversationHandler_StageOverrideUsesGemini(t *testing.T) {
	env := newTestEnv(t, nil)

	res := env.do(t, http.MethodPost, "/api/conversation", map[string]interface{}{
		"sessionId": "s1",
		"stage":     "relief",
		"userInput": "it's strong",
		"metadata":  map[string]interface{}{"cravingIntensity": 7},
	})
	testutil.AssertHTTPStatus(t, http.StatusOK, res)

	resp := testutil.DecodeJSON[models.TurnResponse](t, res)
	assert.Equal(t, []string{"Breathe in slowly."}, resp.Messages)
	assert.Equal(t, 1, env.gemini.Calls())
	assert.Equal(t, 0, env.openai.Calls())
	require.NotNil(t, env.gemini.LastParams())
	assert.Contains(t, env.gemini.LastParams().UserPrompt, "Craving intensity: 7")
	assert.Equal(t, "gemini-2.5-flash", env.gemini.LastParams().Model, "a gemini override must not inherit the openai default model")
}

func TestConversationHandler_ScriptFallback(t *testing.T) {
	env := newTestEnv(t, nil)
	env.gemini.Err = errors.New("quota exceeded")
	rec, err := env.store.CreateSession(context.Background(), models.StageRelief)
	require.NoError(t, err)

	res := env.do(t, http.MethodPost, "/api/conversation", map[string]interface{}{
		"sessionId": rec.ID,
		"stage":     "relief",
		"userInput": "help",
		"metadata":  map[string]interface{}{"cravingIntensity": 7},
	})
	testutil.AssertHTTPStatus(t, http.StatusOK, res)

	resp := testutil.DecodeJSON[models.TurnResponse](t, res)
	assert.Equal(t, models.SourceScript, resp.Source)
	assert.Equal(t, []string{"Breathe with me.", flow.IntensityLine(7), flow.PlaceholderLine}, resp.Messages)
	assert.Equal(t, models.StageReflection, resp.NextStage)

	turns, err := env.store.ListTurns(context.Background(), rec.ID)
	require.NoError(t, err)
	require.Len(t, turns, 1)
	assert.Equal(t, models.SourceScript, turns[0].Source)
	assert.Equal(t, "gemini", turns[0].Provider, "the attempted provider is recorded")
}

func TestConversationHandler_UnknownSessionStillReplies(t *testing.T) {
	env := newTestEnv(t, nil)

	res := env.do(t, http.MethodPost, "/api/conversation", map[string]string{
		"sessionId": "never-created", "stage": "entry", "userInput": "hi",
	})
	testutil.AssertHTTPStatus(t, http.StatusOK, res)

	turns, err := env.store.ListTurns(context.Background(), "never-created")
	require.NoError(t, err)
	assert.Empty(t, turns)
}

func TestConversationHandler_ConversionHasNoNextStage(t *testing.T) {
	env := newTestEnv(t, nil)

	res := env.do(t, http.MethodPost, "/api/conversation", map[string]string{
		"sessionId": "s1", "stage": "conversion", "userInput": "ok",
	})
	testutil.AssertHTTPStatus(t, http.StatusOK, res)

	raw := testutil.DecodeJSON[map[string]interface{}](t, res)
	_, present := raw["nextStage"]
	assert.False(t, present)
}

func TestConversationHandler_InvalidPayload(t *testing.T) {
	tests := []struct {
		name   string
		body   interface{}
		fields []string
	}{
		{
			name:   "malformed JSON",
			body:   `{"sessionId": `,
			fields: []string{"body"},
		},
		{
			name:   "empty body",
			body:   nil,
			fields: []string{"body"},
		},
		{
			name:   "missing fields",
			body:   map[string]string{},
			fields: []string{"sessionId", "stage", "userInput"},
		},
		{
			name: "bad metadata",
			body: map[string]interface{}{
				"sessionId": "s1", "stage": "relief", "userInput": "x",
				"metadata": map[string]interface{}{"cravingIntensity": 12, "mode": "smoke"},
			},
			fields: []string{"metadata.cravingIntensity", "metadata.mode"},
		},
		{
			name:   "unknown stage",
			body:   map[string]string{"sessionId": "s1", "stage": "epilogue", "userInput": "x"},
			fields: []string{"stage"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t, nil)
			res := env.do(t, http.MethodPost, "/api/conversation", tt.body)
			testutil.AssertHTTPStatus(t, http.StatusBadRequest, res)

			resp := testutil.DecodeJSON[models.ErrorResponse](t, res)
			assert.Equal(t, "Invalid conversation payload", resp.Message)
			var got []string
			for _, is := range resp.Issues {
				got = append(got, is.Field)
			}
			assert.Equal(t, tt.fields, got)
			assert.Equal(t, 0, env.openai.Calls())
		})
	}
}

func TestConversationHandler_ScriptUnavailable(t *testing.T) {
	env := newTestEnv(t, nil)
	require.NoError(t, os.Remove(env.scripts.Path()))

	res := env.do(t, http.MethodPost, "/api/conversation", map[string]string{
		"sessionId": "s1", "stage": "entry", "userInput": "hi",
	})
	testutil.AssertHTTPStatus(t, http.StatusInternalServerError, res)
	assert.Equal(t, "Script configuration error", testutil.DecodeJSON[models.ErrorResponse](t, res).Message)
}

func TestConversationHandler_RecordFailureIsNotSurfaced(t *testing.T) {
	env := newTestEnv(t, failingStore{})

	res := env.do(t, http.MethodPost, "/api/conversation", map[string]string{
		"sessionId": "s1", "stage": "teaser", "userInput": "more?",
	})
	testutil.AssertHTTPStatus(t, http.StatusOK, res)
	assert.Equal(t, models.StageConversion, testutil.DecodeJSON[models.TurnResponse](t, res).NextStage)
}
