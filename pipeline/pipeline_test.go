package pipeline_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/becomeliminal/nim-recall/core"
	"github.com/becomeliminal/nim-recall/history"
	"github.com/becomeliminal/nim-recall/llm"
	"github.com/becomeliminal/nim-recall/llm/mock"
	"github.com/becomeliminal/nim-recall/memory"
	embedmock "github.com/becomeliminal/nim-recall/memory/embedder/mock"
	"github.com/becomeliminal/nim-recall/memory/store/hnsw"
	"github.com/becomeliminal/nim-recall/pipeline"
)

type stepLog struct {
	steps   []string
	errs    []error
	quality []float64
}

func (l *stepLog) ObserveStep(step string, _ time.Duration, err error) {
	l.steps = append(l.steps, step)
	l.errs = append(l.errs, err)
}

func (l *stepLog) ObserveQuality(score float64) {
	l.quality = append(l.quality, score)
}

func newManager(t *testing.T) *memory.Manager {
	t.Helper()
	emb := embedmock.New(64)
	return memory.NewManager(hnsw.New(emb.Dimensions()), emb, nil)
}

func TestPipeline_EmptyMessage(t *testing.T) {
	p := pipeline.New(newManager(t), llm.NewChain(mock.New(nil)), pipeline.DefaultConfig())

	_, err := p.Run(context.Background(), &pipeline.Input{})
	assert.ErrorIs(t, err, pipeline.ErrEmptyMessage)
	_, err = p.Run(context.Background(), nil)
	assert.ErrorIs(t, err, pipeline.ErrEmptyMessage)
}

func TestPipeline_Steps(t *testing.T) {
	p := pipeline.New(newManager(t), llm.NewChain(mock.New(nil)), pipeline.DefaultConfig())
	assert.Equal(t, []string{
		"input_processor",
		"memory_retriever",
		"context_analyzer",
		"response_generator",
		"memory_updater",
		"output_formatter",
	}, p.Steps())
}

func TestPipeline_Run(t *testing.T) {
	ctx := context.Background()
	mgr := newManager(t)
	rec := &stepLog{}
	p := pipeline.New(mgr, llm.NewChain(mock.Static("Go is a compiled language.")), pipeline.DefaultConfig(),
		pipeline.WithMetrics(rec))

	turn, err := p.Run(ctx, &pipeline.Input{UserMessage: "what is go"})
	require.NoError(t, err)
	require.NoError(t, turn.Err())

	assert.NotEmpty(t, turn.ID)
	assert.Equal(t, "what is go", turn.UserInput)
	assert.Equal(t, "Go is a compiled language.", turn.Response)
	assert.Equal(t, "output_formatted", turn.Step)
	assert.Empty(t, turn.Context)
	assert.Empty(t, turn.Results)
	assert.Zero(t, turn.QualityScore)

	require.Len(t, turn.Messages, 2)
	assert.Equal(t, core.RoleUser, turn.Messages[0].Role)
	assert.Equal(t, core.RoleAssistant, turn.Messages[1].Role)
	assert.Equal(t, turn.Response, turn.Messages[1].Content)

	require.Len(t, turn.MemoryIDs, 1)
	stored, err := mgr.Get(ctx, turn.MemoryIDs[0])
	require.NoError(t, err)
	assert.Equal(t, memory.TypeConversation, stored.Type)
	assert.Equal(t, "User: what is go\nAssistant: Go is a compiled language.", stored.Content)
	assert.Equal(t, memory.ScoreConversation("what is go", "Go is a compiled language."), stored.Importance)

	assert.Equal(t, p.Steps(), rec.steps)
	for _, e := range rec.errs {
		assert.NoError(t, e)
	}
	assert.Equal(t, []float64{0}, rec.quality)
}

func TestPipeline_ImportantInfo(t *testing.T) {
	ctx := context.Background()
	mgr := newManager(t)
	p := pipeline.New(mgr, llm.NewChain(mock.Static("Noted.")), pipeline.DefaultConfig())

	turn, err := p.Run(ctx, &pipeline.Input{ConversationID: "c1", UserMessage: "Remember that I like Python"})
	require.NoError(t, err)
	require.NoError(t, turn.Err())
	require.Len(t, turn.MemoryIDs, 2)

	conv, err := mgr.Get(ctx, turn.MemoryIDs[0])
	require.NoError(t, err)
	assert.Equal(t, memory.TypeConversation, conv.Type)
	assert.Equal(t, "c1", conv.Extra["conversation_id"])

	info, err := mgr.Get(ctx, turn.MemoryIDs[1])
	require.NoError(t, err)
	assert.Equal(t, memory.TypeImportantInfo, info.Type)
	assert.Equal(t, 0.9, info.Importance)
	assert.Equal(t, "workflow", info.Extra["source"])
	assert.Equal(t, "response_generated", info.Extra["workflow_step"])
	assert.Equal(t, "c1", info.Extra["conversation_id"])
}

func TestPipeline_RetrievesMemories(t *testing.T) {
	ctx := context.Background()
	mgr := newManager(t)
	c := mock.Static("Sure.")
	p := pipeline.New(mgr, llm.NewChain(c), pipeline.DefaultConfig())

	_, err := mgr.Add(ctx, memory.AddRequest{Content: "The user's favorite language is Python", Type: memory.TypePreference})
	require.NoError(t, err)

	turn, err := p.Run(ctx, &pipeline.Input{UserMessage: "which language should I use"})
	require.NoError(t, err)
	require.NoError(t, turn.Err())

	require.NotEmpty(t, turn.Results)
	assert.Equal(t, pipeline.QualityScore(turn.Results), turn.QualityScore)
	assert.True(t, strings.HasPrefix(turn.Context, "=== RELEVANT MEMORIES (1 included"))
	assert.Contains(t, turn.Context, "[PREFERENCE] The user's favorite language is Python")

	reqs := c.Requests()
	require.Len(t, reqs, 1)
	assert.Contains(t, reqs[0].Messages[0].Content, "Context: "+turn.Context)
}

func TestPipeline_CompletionFailureIsNonFatal(t *testing.T) {
	ctx := context.Background()
	mgr := newManager(t)
	boom := errors.New("provider down")
	rec := &stepLog{}
	p := pipeline.New(mgr, llm.NewChain(mock.Failing(boom)), pipeline.DefaultConfig(), pipeline.WithMetrics(rec))

	turn, err := p.Run(ctx, &pipeline.Input{UserMessage: "hello there"})
	require.NoError(t, err)
	require.ErrorIs(t, turn.Err(), boom)

	assert.True(t, strings.HasPrefix(turn.Response, "I apologize, but I encountered an error: "))
	assert.Equal(t, "output_formatted", turn.Step)
	require.Len(t, turn.MemoryIDs, 1)
	require.Len(t, turn.Messages, 2)
	assert.Equal(t, turn.Response, turn.Messages[1].Content)

	require.Len(t, rec.errs, 6)
	assert.ErrorIs(t, rec.errs[3], boom)
	assert.NoError(t, rec.errs[4])
}

func TestPipeline_Streaming(t *testing.T) {
	p := pipeline.New(newManager(t), llm.NewChain(mock.Static("a b c")), pipeline.DefaultConfig())

	var chunks []string
	turn, err := p.Run(context.Background(), &pipeline.Input{
		UserMessage:    "stream please",
		StreamCallback: func(s string) { chunks = append(chunks, s) },
	})
	require.NoError(t, err)
	assert.Equal(t, "a b c", turn.Response)
	assert.Equal(t, []string{"a ", "b ", "c"}, chunks)
}

func TestPipeline_History(t *testing.T) {
	ctx := context.Background()
	store := history.NewInMemoryStore()
	c := mock.Static("ok")
	p := pipeline.New(newManager(t), llm.NewChain(c), pipeline.DefaultConfig(), pipeline.WithHistory(store))

	_, err := p.Run(ctx, &pipeline.Input{ConversationID: "c1", UserMessage: "first message"})
	require.NoError(t, err)
	turn, err := p.Run(ctx, &pipeline.Input{ConversationID: "c1", UserMessage: "second message"})
	require.NoError(t, err)

	require.Len(t, turn.Messages, 4)
	assert.Equal(t, "first message", turn.Messages[0].Content)

	reqs := c.Requests()
	require.Len(t, reqs, 2)
	assert.Contains(t, reqs[1].Messages[0].Content, "Human: first message\nAssistant: ok")

	stored, err := store.Recent(ctx, "c1", 0)
	require.NoError(t, err)
	assert.Len(t, stored, 4)

	// Explicit history wins over the store.
	turn, err = p.Run(ctx, &pipeline.Input{ConversationID: "c1", UserMessage: "third", History: []core.Message{}})
	require.NoError(t, err)
	assert.Len(t, turn.Messages, 2)
}

func TestQualityScore(t *testing.T) {
	assert.Zero(t, pipeline.QualityScore(nil))

	results := []memory.RankedResult{
		{Record: &memory.Record{Importance: 0.8}, Similarity: 0.9},
		{Record: &memory.Record{Importance: 0.4}, Similarity: 0.5},
	}
	assert.InDelta(t, 0.7*0.7+0.6*0.3, pipeline.QualityScore(results), 1e-9)
}

func TestPipeline_ImportantInfoTriggers(t *testing.T) {
	ctx := context.Background()
	cases := []struct {
		message string
		want    int
	}{
		{"I love hiking in the mountains", 1},
		{"my birthday is urgent and critical", 1},
		{"I always hike on Sundays", 2},
		{"Please NOTE my address", 2},
	}
	for _, tc := range cases {
		t.Run(tc.message, func(t *testing.T) {
			p := pipeline.New(newManager(t), llm.NewChain(mock.Static("ok")), pipeline.DefaultConfig())
			turn, err := p.Run(ctx, &pipeline.Input{UserMessage: tc.message})
			require.NoError(t, err)
			require.NoError(t, turn.Err())
			assert.Len(t, turn.MemoryIDs, tc.want)
		})
	}
}

// failFirstAdd rejects the first Add and passes everything else through.
type failFirstAdd struct {
	memory.Store
	failed bool
}

func (s *failFirstAdd) Add(ctx context.Context, rec *memory.Record) error {
	if !s.failed {
		s.failed = true
		return errors.New("disk full")
	}
	return s.Store.Add(ctx, rec)
}

func TestPipeline_ImportantInfoStoredWhenConversationFails(t *testing.T) {
	ctx := context.Background()
	emb := embedmock.New(64)
	mgr := memory.NewManager(&failFirstAdd{Store: hnsw.New(emb.Dimensions())}, emb, nil)
	p := pipeline.New(mgr, llm.NewChain(mock.Static("Noted.")), pipeline.DefaultConfig())

	turn, err := p.Run(ctx, &pipeline.Input{UserMessage: "Remember that I like tea"})
	require.NoError(t, err)
	require.ErrorContains(t, turn.Err(), "store conversation")
	require.Len(t, turn.MemoryIDs, 1)

	info, err := mgr.Get(ctx, turn.MemoryIDs[0])
	require.NoError(t, err)
	assert.Equal(t, memory.TypeImportantInfo, info.Type)
	assert.Equal(t, "output_formatted", turn.Step)
}
