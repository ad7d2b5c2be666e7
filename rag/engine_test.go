package rag

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/poiesic/digest/ai"
	"github.com/poiesic/digest/ai/mock"
	"github.com/poiesic/digest/core"
	"github.com/poiesic/digest/retry"
	"github.com/poiesic/digest/storage"
	"github.com/poiesic/digest/storage/badger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testEnv struct {
	repos     *badger.Repositories
	provider  *mock.MockProvider
	embedder  *mock.MockEmbedder
	generator *mock.MockTextGenerator
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	repos, backend, err := badger.NewMemoryRepositories()
	require.NoError(t, err)
	t.Cleanup(func() {
		repos.Close()
		backend.Close()
	})
	provider := mock.NewMockProvider().(*mock.MockProvider)
	return &testEnv{
		repos:     repos,
		provider:  provider,
		embedder:  provider.GetMockEmbedder(),
		generator: provider.GetMockGenerator(),
	}
}

func (e *testEnv) engine(t *testing.T, opts ...Option) *Engine {
	t.Helper()
	policy := retry.Policy{MaxAttempts: 3, BaseDelay: time.Millisecond, Multiplier: 2}
	engine, err := NewEngine(e.repos.Records, e.repos.Chunks, e.provider,
		append([]Option{WithRetryPolicy(policy)}, opts...)...)
	require.NoError(t, err)
	return engine
}

// addEmbeddedRecord stores a record whose chunks are the given texts.
func (e *testEnv) addEmbeddedRecord(t *testing.T, texts ...string) *core.Record {
	t.Helper()
	ctx := context.Background()
	added, err := e.repos.Records.AddRecords(ctx, &core.Record{Title: "meeting", Text: strings.Join(texts, " ")})
	require.NoError(t, err)
	rec := added[0]

	_, err = e.repos.Records.UpdateRecord(ctx, rec.Id, func(r *core.Record) error {
		r.Analysis = core.StageState{Status: core.StatusCompleted}
		return nil
	})
	require.NoError(t, err)

	gen, err := e.repos.Chunks.NextGeneration(ctx)
	require.NoError(t, err)
	chunks := make([]*core.Chunk, len(texts))
	for i, text := range texts {
		chunks[i] = &core.Chunk{
			Id:         core.ChunkID(rec.Id, gen, i),
			RecordId:   rec.Id,
			Generation: gen,
			Sequence:   i,
			Text:       text,
			Vector:     mock.BagOfWords(text, mock.DefaultDimension),
		}
	}
	require.NoError(t, e.repos.Chunks.StageChunks(ctx, chunks))

	promoted, _, err := e.repos.Chunks.PromoteGeneration(ctx, rec.Id, gen, len(chunks), func(r *core.Record) error {
		r.Embedding = core.StageState{Status: core.StatusCompleted}
		return nil
	})
	require.NoError(t, err)
	return promoted
}

func TestNewEngine_RequiresDependencies(t *testing.T) {
	env := newTestEnv(t)

	_, err := NewEngine(nil, env.repos.Chunks, env.provider)
	assert.ErrorIs(t, err, ErrRecordRepositoryRequired)
	_, err = NewEngine(env.repos.Records, nil, env.provider)
	assert.ErrorIs(t, err, ErrChunkRepositoryRequired)
	_, err = NewEngine(env.repos.Records, env.repos.Chunks, nil)
	assert.ErrorIs(t, err, ErrAIProviderRequired)
	_, err = NewEngine(env.repos.Records, env.repos.Chunks, env.provider, WithTopK(0))
	assert.Error(t, err)
}

func TestAsk_RanksAndCites(t *testing.T) {
	env := newTestEnv(t)
	rec := env.addEmbeddedRecord(t,
		"Carol opened the meeting and welcomed everyone",
		"The marketing launch moves to November",
		"Bob will send the budget report by Friday",
	)
	engine := env.engine(t)

	answer, err := engine.Ask(context.Background(), rec.Id, "When will Bob send the budget report?")
	require.NoError(t, err)

	require.NotEmpty(t, answer.Citations)
	assert.Equal(t, 2, answer.Citations[0].Sequence, "the chunk about the report ranks first")
	assert.Equal(t, 2, answer.CitedChunkIndices()[0])
	assert.NotEmpty(t, answer.Text)
	assert.False(t, answer.Stale)
	assert.Equal(t, 1, answer.Attempts)

	for i := 1; i < len(answer.Citations); i++ {
		assert.GreaterOrEqual(t, answer.Citations[i-1].Score, answer.Citations[i].Score)
	}

	req := env.generator.LastRequest()
	assert.Equal(t, answerSystemPrompt, req.System)
	assert.Contains(t, req.Prompt, "Bob will send the budget report by Friday")
	assert.Contains(t, req.Prompt, "Question: When will Bob send the budget report?")
	assert.False(t, req.JSON)
}

func TestAsk_NeverUsesOtherRecords(t *testing.T) {
	env := newTestEnv(t)
	mine := env.addEmbeddedRecord(t, "alpha planning session", "beta rollout schedule")
	other := env.addEmbeddedRecord(t, "the secret launch code is banana", "banana banana banana")
	engine := env.engine(t, WithTopK(10))

	answer, err := engine.Ask(context.Background(), mine.Id, "what is the banana launch code?")
	require.NoError(t, err)

	chunks, err := env.repos.Chunks.GetChunks(context.Background(), mine.Id)
	require.NoError(t, err)
	mineIDs := make(map[core.ID]bool)
	for _, c := range chunks {
		mineIDs[c.Id] = true
	}
	require.Len(t, answer.Citations, 2)
	for _, c := range answer.Citations {
		assert.True(t, mineIDs[c.ChunkID], "chunk %d does not belong to record %d", c.ChunkID, mine.Id)
	}
	assert.NotContains(t, env.generator.LastRequest().Prompt, "secret launch code")
	assert.NotEqual(t, mine.Id, other.Id)
}

func TestAsk_NotReadyMakesNoProviderCalls(t *testing.T) {
	env := newTestEnv(t)
	added, err := env.repos.Records.AddRecords(context.Background(), &core.Record{Text: "not embedded yet"})
	require.NoError(t, err)
	engine := env.engine(t)

	_, err = engine.Ask(context.Background(), added[0].Id, "anything?")
	assert.ErrorIs(t, err, core.ErrPrecondition)
	assert.ErrorIs(t, err, core.ErrNotReady)
	assert.Zero(t, env.embedder.CallCount())
	assert.Zero(t, env.generator.CallCount())
}

func TestAsk_NotFoundAndEmptyQuestion(t *testing.T) {
	env := newTestEnv(t)
	engine := env.engine(t)

	_, err := engine.Ask(context.Background(), core.ID(404), "anything?")
	assert.ErrorIs(t, err, core.ErrNotFound)

	_, err = engine.Ask(context.Background(), core.ID(404), "   ")
	assert.ErrorIs(t, err, ErrEmptyQuestion)
	assert.Zero(t, env.embedder.CallCount())
}

func TestAsk_StaleReads(t *testing.T) {
	env := newTestEnv(t)
	rec := env.addEmbeddedRecord(t, "the offsite is in Lisbon")
	ctx := context.Background()

	// A later embedding run failed
	_, err := env.repos.Records.UpdateRecord(ctx, rec.Id, func(r *core.Record) error {
		r.Embedding = core.StageState{Status: core.StatusFailed, Error: "embedding failed: boom"}
		return nil
	})
	require.NoError(t, err)

	answer, err := env.engine(t).Ask(ctx, rec.Id, "where is the offsite?")
	require.NoError(t, err)
	assert.True(t, answer.Stale)
	assert.Equal(t, []int{0}, answer.CitedChunkIndices())

	_, err = env.engine(t, WithStaleReads(false)).Ask(ctx, rec.Id, "where is the offsite?")
	assert.ErrorIs(t, err, core.ErrNotReady)
}

func TestAsk_GenerationFailedAfterRetries(t *testing.T) {
	env := newTestEnv(t)
	rec := env.addEmbeddedRecord(t, "some content")
	env.generator.GenerateFunc = func(ctx context.Context, req ai.GenerationRequest) (string, error) {
		return "", fmt.Errorf("%w: service unavailable", core.ErrTransientProvider)
	}

	_, err := env.engine(t).Ask(context.Background(), rec.Id, "question?")
	assert.ErrorIs(t, err, core.ErrGenerationFailed)
	assert.ErrorIs(t, err, core.ErrTransientProvider)
	assert.Equal(t, 3, env.generator.CallCount())
	assert.Equal(t, 3, env.embedder.CallCount(), "retrieval is retried together with generation")
}

func TestAsk_PermanentErrorIsNotRetried(t *testing.T) {
	env := newTestEnv(t)
	rec := env.addEmbeddedRecord(t, "some content")
	env.embedder.EmbedTextFunc = func(ctx context.Context, text string) ([]float32, error) {
		return nil, fmt.Errorf("%w: model not found", core.ErrPermanentProvider)
	}

	_, err := env.engine(t).Ask(context.Background(), rec.Id, "question?")
	assert.ErrorIs(t, err, core.ErrGenerationFailed)
	assert.ErrorIs(t, err, core.ErrPermanentProvider)
	assert.Equal(t, 1, env.embedder.CallCount())
	assert.Zero(t, env.generator.CallCount())
}

func TestAsk_DimensionMismatchFailsWithoutRetry(t *testing.T) {
	env := newTestEnv(t)
	rec := env.addEmbeddedRecord(t, "some content")
	env.embedder.EmbedTextFunc = func(ctx context.Context, text string) ([]float32, error) {
		return []float32{1, 0}, nil
	}

	_, err := env.engine(t).Ask(context.Background(), rec.Id, "question?")
	assert.ErrorIs(t, err, core.ErrGenerationFailed)
	assert.ErrorIs(t, err, storage.ErrDimensionMismatch)
	assert.Equal(t, 1, env.embedder.CallCount())
	assert.Zero(t, env.generator.CallCount())
}

func TestAsk_EmptyAnswerIsRetried(t *testing.T) {
	env := newTestEnv(t)
	rec := env.addEmbeddedRecord(t, "some content")
	calls := 0
	env.generator.GenerateFunc = func(ctx context.Context, req ai.GenerationRequest) (string, error) {
		calls++
		if calls == 1 {
			return "  ", nil
		}
		return "an answer", nil
	}

	answer, err := env.engine(t).Ask(context.Background(), rec.Id, "question?")
	require.NoError(t, err)
	assert.Equal(t, "an answer", answer.Text)
	assert.Equal(t, 2, answer.Attempts)
}

type recordingMonitor struct {
	noopMonitor
	events []string
}

func (m *recordingMonitor) Start(_ core.ID, _ string) { m.events = append(m.events, "start") }
func (m *recordingMonitor) AfterQueryEmbedding(_ []float32) {
	m.events = append(m.events, "embedding")
}
func (m *recordingMonitor) AfterRetrieval(_ []*core.ChunkMatch) {
	m.events = append(m.events, "retrieval")
}
func (m *recordingMonitor) AfterContextAssembly(_ string, _ []*core.ChunkMatch) {
	m.events = append(m.events, "context")
}
func (m *recordingMonitor) Finish(_ *Answer, err error) {
	m.events = append(m.events, fmt.Sprintf("finish:%v", err == nil))
}

func TestAskWithMonitor(t *testing.T) {
	env := newTestEnv(t)
	rec := env.addEmbeddedRecord(t, "some content")
	monitor := &recordingMonitor{}

	_, err := env.engine(t).AskWithMonitor(context.Background(), rec.Id, "question?", monitor)
	require.NoError(t, err)
	assert.Equal(t, []string{"start", "embedding", "retrieval", "context", "finish:true"}, monitor.events)
}
