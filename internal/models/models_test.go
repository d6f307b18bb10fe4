package models

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ptr[T any](v T) *T { return &v }

func TestNextStage_WalkFromEntryVisitsEveryPrimaryStageOnce(t *testing.T) {
	seen := map[StageKey]int{}
	s := StageEntry
	for steps := 0; steps < 10; steps++ {
		seen[s]++
		next, ok := NextStage(s)
		if !ok {
			break
		}
		s = next
	}

	assert.Equal(t, StageConversion, s, "walk should end on the terminal stage")
	assert.Len(t, seen, len(StageOrder))
	for _, k := range StageOrder {
		assert.Equal(t, 1, seen[k], "stage %s visited", k)
	}
	// Relief sub-stages are entered explicitly, never reached from entry.
	for _, k := range ReliefSubStages {
		assert.Zero(t, seen[k], "sub-stage %s reached from entry", k)
	}
}

func TestNextStage_TerminalHasNoSuccessor(t *testing.T) {
	terminals := 0
	for _, s := range StageOrder {
		if _, ok := NextStage(s); !ok {
			terminals++
			assert.True(t, s.IsTerminal())
		}
	}
	assert.Equal(t, 1, terminals)
}

func TestNextStage_ReliefSubStagesChainIntoReflection(t *testing.T) {
	s := StageReliefPreIntensity
	var path []StageKey
	for {
		next, ok := NextStage(s)
		require.True(t, ok)
		path = append(path, next)
		if next == StageReflection {
			break
		}
		s = next
		require.Less(t, len(path), 10)
	}
	assert.Equal(t, []StageKey{StageReliefCenter, StageReliefObserve, StageReliefRelease, StageReliefCheckin, StageReflection}, path)
}

func TestStageKey_Family(t *testing.T) {
	assert.Equal(t, StageRelief, StageReliefCenter.Family())
	assert.Equal(t, StageRelief, StageRelief.Family())
	assert.Equal(t, StageTeaser, StageTeaser.Family())
}

func TestParseStage(t *testing.T) {
	s, err := ParseStage(" Relief ")
	require.NoError(t, err)
	assert.Equal(t, StageRelief, s)

	_, err = ParseStage("bogus")
	assert.True(t, errors.Is(err, ErrUnknownStage))
}

func validDocument() *ScriptDocument {
	stages := map[StageKey]StageScript{}
	for _, s := range StageOrder {
		stages[s] = StageScript{Intent: "intent " + string(s), CoachMessages: []string{"hello from " + string(s)}}
	}
	return &ScriptDocument{Version: "1", Stages: stages}
}

func TestScriptDocument_Validate(t *testing.T) {
	require.NoError(t, validDocument().Validate())

	doc := validDocument()
	delete(doc.Stages, StageTeaser)
	err := doc.Validate()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMissingStageScript)
	assert.Contains(t, err.Error(), "teaser")

	doc = validDocument()
	doc.Version = ""
	assert.ErrorIs(t, doc.Validate(), ErrMissingScriptVersion)

	doc = validDocument()
	doc.Stages["epilogue"] = StageScript{}
	assert.ErrorIs(t, doc.Validate(), ErrUnknownStage)

	var nilDoc *ScriptDocument
	assert.ErrorIs(t, nilDoc.Validate(), ErrEmptyScriptDocument)
}

func TestScriptDocument_SubStageInheritsRelief(t *testing.T) {
	doc := validDocument()
	sc, ok := doc.Stage(StageReliefObserve)
	require.True(t, ok)
	assert.Equal(t, "intent relief", sc.Intent)

	doc.Stages[StageReliefObserve] = StageScript{Intent: "observe"}
	sc, ok = doc.Stage(StageReliefObserve)
	require.True(t, ok)
	assert.Equal(t, "observe", sc.Intent)
}

func TestStageScript_FirstCoachMessage(t *testing.T) {
	assert.Equal(t, "", StageScript{}.FirstCoachMessage())
	assert.Equal(t, "", StageScript{CoachMessages: []string{"  ", "second"}}.FirstCoachMessage())
	assert.Equal(t, "first", StageScript{CoachMessages: []string{"first", "second"}}.FirstCoachMessage())
}

func TestTurnRequest_Validate(t *testing.T) {
	tests := []struct {
		name   string
		req    TurnRequest
		fields []string
	}{
		{
			name: "valid minimal",
			req:  TurnRequest{SessionID: "s1", Stage: StageEntry, UserInput: "hi"},
		},
		{
			name: "valid with metadata",
			req: TurnRequest{SessionID: "s1", Stage: StageRelief, UserInput: "hi",
				Metadata: &TurnMetadata{CravingIntensity: ptr(10.0), Mode: ModeVoice}},
		},
		{
			name:   "missing everything",
			req:    TurnRequest{},
			fields: []string{"sessionId", "stage", "userInput"},
		},
		{
			name:   "unknown stage",
			req:    TurnRequest{SessionID: "s1", Stage: "epilogue", UserInput: "hi"},
			fields: []string{"stage"},
		},
		{
			name: "intensity out of range and bad mode",
			req: TurnRequest{SessionID: "s1", Stage: StageRelief, UserInput: "hi",
				Metadata: &TurnMetadata{CravingIntensity: ptr(11.0), Mode: "telepathy"}},
			fields: []string{"metadata.cravingIntensity", "metadata.mode"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.req.Validate()
			if len(tt.fields) == 0 {
				assert.NoError(t, err)
				return
			}
			var v *ValidationError
			require.ErrorAs(t, err, &v)
			var got []string
			for _, is := range v.Issues {
				got = append(got, is.Field)
			}
			assert.Equal(t, tt.fields, got)
		})
	}
}

func TestTurnRequest_MetadataAccessors(t *testing.T) {
	req := TurnRequest{}
	_, ok := req.Intensity()
	assert.False(t, ok)
	assert.Equal(t, InteractionMode(""), req.Mode())

	req.Metadata = &TurnMetadata{CravingIntensity: ptr(0.0), Mode: ModeText}
	v, ok := req.Intensity()
	assert.True(t, ok, "zero is a valid rating")
	assert.Equal(t, 0.0, v)
	assert.Equal(t, ModeText, req.Mode())
}

func TestTurnResponse_OmitsNextStageWhenTerminal(t *testing.T) {
	data, err := json.Marshal(TurnResponse{Stage: StageConversion, Messages: []string{"bye"}, Source: SourceScript})
	require.NoError(t, err)
	assert.JSONEq(t, `{"stage":"conversion","messages":["bye"],"source":"script"}`, string(data))
}

func TestFormatIntensity(t *testing.T) {
	assert.Equal(t, "7", FormatIntensity(7))
	assert.Equal(t, "6.5", FormatIntensity(6.5))
	assert.Equal(t, "0", FormatIntensity(0))
}

func TestSessionRequests_Validate(t *testing.T) {
	create := SessionCreateRequest{}
	require.NoError(t, create.Validate())
	assert.Equal(t, StageEntry, create.Stage)

	bad := SessionCreateRequest{Stage: "nope"}
	assert.Error(t, bad.Validate())

	update := SessionUpdateRequest{IntensityBefore: ptr(-1.0), IntensityAfter: ptr(3.0)}
	var v *ValidationError
	require.ErrorAs(t, update.Validate(), &v)
	require.Len(t, v.Issues, 1)
	assert.Equal(t, "intensityBefore", v.Issues[0].Field)
}

func TestInvalid_CarriesIssues(t *testing.T) {
	v := &ValidationError{}
	v.Add("stage", "stage is required")
	resp := Invalid("Invalid request", v)
	assert.Equal(t, "Invalid request", resp.Message)
	assert.Equal(t, []FieldIssue{{Field: "stage", Message: "stage is required"}}, resp.Issues)

	resp = Invalid("Invalid request", errors.New("unexpected EOF"))
	assert.Equal(t, "body", resp.Issues[0].Field)
}
