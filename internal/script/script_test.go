package script

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BTreeMap/CravingCompanion/internal/models"
)

const completeJSON = `{
  "version": "v1",
  "stages": {
    "entry":      {"intent": "welcome", "tone": "calm", "coachMessages": ["Hi there."], "userPrompts": [], "improvNotes": []},
    "relief":     {"intent": "breathe", "tone": "warm", "coachMessages": ["Breathe with me."], "userPrompts": [], "improvNotes": [], "llmProvider": "Gemini", "llmModel": "gemini-2.5-flash"},
    "reflection": {"intent": "notice", "tone": "soft", "coachMessages": ["Feel this calm."], "userPrompts": [], "improvNotes": []},
    "teaser":     {"intent": "hint", "tone": "light", "coachMessages": ["There is more."], "userPrompts": [], "improvNotes": []},
    "conversion": {"intent": "invite", "tone": "warm", "coachMessages": ["Ready?"], "userPrompts": [], "improvNotes": []}
  }
}`

const completeYAML = `version: v1
stages:
  entry: {intent: welcome, tone: calm, coachMessages: ["Hi there."]}
  relief: {intent: breathe, tone: warm, coachMessages: ["Breathe with me."]}
  reflection: {intent: notice, tone: soft, coachMessages: ["Feel this calm."]}
  teaser: {intent: hint, tone: light, coachMessages: ["There is more."]}
  conversion: {intent: invite, tone: warm, coachMessages: ["Ready?"]}
`

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestStore_LoadJSON(t *testing.T) {
	s := NewStore(writeFile(t, "script.json", completeJSON))

	doc, err := s.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "v1", doc.Version)
	assert.Len(t, doc.Stages, 5)

	relief, ok := doc.Stage(models.StageRelief)
	require.True(t, ok)
	assert.Equal(t, "Gemini", relief.LLMProvider)
	assert.Equal(t, "gemini-2.5-flash", relief.LLMModel)
}

func TestStore_LoadYAML(t *testing.T) {
	s := NewStore(writeFile(t, "script.yaml", completeYAML))

	doc, err := s.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []models.StageKey{"entry", "relief", "reflection", "teaser", "conversion"}, doc.StageKeys())
}

func TestStore_LoadIsMemoized(t *testing.T) {
	path := writeFile(t, "script.json", completeJSON)
	s := NewStore(path)

	first, err := s.Load(context.Background())
	require.NoError(t, err)

	// Removing the file must not matter once the document is cached.
	require.NoError(t, os.Remove(path))
	second, err := s.Load(context.Background())
	require.NoError(t, err)
	assert.Same(t, first, second)
}

func TestStore_InvalidateRereads(t *testing.T) {
	path := writeFile(t, "script.json", completeJSON)
	s := NewStore(path)

	_, err := s.Load(context.Background())
	require.NoError(t, err)

	updated := `{"version": "v2", "stages": {
	  "entry": {"coachMessages": ["a"]}, "relief": {"coachMessages": ["b"]},
	  "reflection": {"coachMessages": ["c"]}, "teaser": {"coachMessages": ["d"]},
	  "conversion": {"coachMessages": ["e"]}}}`
	require.NoError(t, os.WriteFile(path, []byte(updated), 0o644))

	doc, err := s.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "v1", doc.Version, "cache should still serve the old version")

	s.Invalidate()
	doc, err = s.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "v2", doc.Version)
}

func TestStore_MissingFile(t *testing.T) {
	s := NewStore(filepath.Join(t.TempDir(), "absent.json"))

	_, err := s.Load(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrConfiguration))

	var le *LoadError
	require.ErrorAs(t, err, &le)
	assert.Equal(t, "read", le.Op)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestStore_Unparsable(t *testing.T) {
	s := NewStore(writeFile(t, "script.json", `{"version": `))

	_, err := s.Load(context.Background())
	var le *LoadError
	require.ErrorAs(t, err, &le)
	assert.Equal(t, "parse", le.Op)
	assert.ErrorIs(t, err, ErrConfiguration)
}

func TestStore_MissingTeaserIsConfigurationError(t *testing.T) {
	incomplete := `{"version": "v1", "stages": {
	  "entry": {"coachMessages": ["a"]}, "relief": {"coachMessages": ["b"]},
	  "reflection": {"coachMessages": ["c"]}, "conversion": {"coachMessages": ["e"]}}}`
	s := NewStore(writeFile(t, "script.json", incomplete))

	_, err := s.Load(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrConfiguration)
	assert.ErrorIs(t, err, models.ErrMissingStageScript)
	assert.Contains(t, err.Error(), "teaser")

	var le *LoadError
	require.ErrorAs(t, err, &le)
	assert.Equal(t, "validate", le.Op)
}

func TestStore_FailedLoadIsNotCached(t *testing.T) {
	path := filepath.Join(t.TempDir(), "script.json")
	s := NewStore(path)

	_, err := s.Load(context.Background())
	require.Error(t, err)

	require.NoError(t, os.WriteFile(path, []byte(completeJSON), 0o644))
	doc, err := s.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "v1", doc.Version)
}

func TestStore_ConcurrentColdLoadReadsOnce(t *testing.T) {
	var reads atomic.Int32
	release := make(chan struct{})
	s := NewStore("script.json")
	s.readFile = func(string) ([]byte, error) {
		reads.Add(1)
		<-release
		return []byte(completeJSON), nil
	}

	const callers = 16
	var wg sync.WaitGroup
	docs := make([]*models.ScriptDocument, callers)
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			docs[i], errs[i] = s.Load(context.Background())
		}(i)
	}

	// Give every caller time to join the in-flight load before it completes.
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), reads.Load())
	for i := 0; i < callers; i++ {
		require.NoError(t, errs[i])
		assert.Same(t, docs[0], docs[i])
	}
}

func TestStore_InvalidateDuringLoadStartsFreshRead(t *testing.T) {
	updated := `{"version": "v2", "stages": {
	  "entry": {"coachMessages": ["a"]}, "relief": {"coachMessages": ["b"]},
	  "reflection": {"coachMessages": ["c"]}, "teaser": {"coachMessages": ["d"]},
	  "conversion": {"coachMessages": ["e"]}}}`

	var reads atomic.Int32
	started := make(chan struct{})
	release := make(chan struct{})
	s := NewStore("script.json")
	s.readFile = func(string) ([]byte, error) {
		if reads.Add(1) == 1 {
			close(started)
			<-release
			return []byte(completeJSON), nil
		}
		return []byte(updated), nil
	}

	stale := make(chan *models.ScriptDocument, 1)
	go func() {
		doc, err := s.Load(context.Background())
		assert.NoError(t, err)
		stale <- doc
	}()
	<-started

	s.Invalidate()
	doc, err := s.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "v2", doc.Version, "a load after Invalidate must not join the old read")

	close(release)
	assert.Equal(t, "v1", (<-stale).Version)

	doc, err = s.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "v2", doc.Version, "the detached read must not overwrite the cache")
	assert.Equal(t, int32(2), reads.Load())
}

func TestStore_LoadHonoursContext(t *testing.T) {
	s := NewStore("script.json")
	block := make(chan struct{})
	defer close(block)
	s.readFile = func(string) ([]byte, error) {
		<-block
		return []byte(completeJSON), nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := s.Load(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestFormatFromPath(t *testing.T) {
	assert.Equal(t, FormatYAML, FormatFromPath("a/b.YML"))
	assert.Equal(t, FormatYAML, FormatFromPath("a/b.yaml"))
	assert.Equal(t, FormatJSON, FormatFromPath("a/b.json"))
	assert.Equal(t, FormatJSON, FormatFromPath("a/b"))
}

func TestShippedScriptDocumentIsComplete(t *testing.T) {
	data, err := os.ReadFile(filepath.Join("..", "..", DefaultPath))
	require.NoError(t, err)
	doc, err := Parse(data, FormatJSON)
	require.NoError(t, err)
	for _, s := range models.StageOrder {
		sc, ok := doc.Stage(s)
		require.True(t, ok, "stage %s", s)
		assert.NotEmpty(t, sc.FirstCoachMessage(), "stage %s", s)
	}
}
