package usecase

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/stobylabs/stoby/domain/entities"
	"github.com/stobylabs/stoby/domain/repositories"
)

type fakeTaskClassifier struct {
	kind entities.TaskKind
	err  error
}

func (f *fakeTaskClassifier) ClassifyTask(ctx context.Context, text string) (entities.TaskKind, string, error) {
	if f.err != nil {
		return entities.TaskChat, "", f.err
	}
	return f.kind, "測試分類", nil
}

type fakeChatSession struct {
	reply string
}

func (f *fakeChatSession) SendMessage(ctx context.Context, message repositories.ChatMessage) (repositories.ChatMessage, error) {
	return repositories.ChatMessage{Role: repositories.RobotRole, Content: f.reply}, nil
}

func (f *fakeChatSession) History() ([]repositories.ChatMessage, error) {
	return nil, nil
}

type fakeLLM struct {
	generated string
	chatReply string
}

func (f *fakeLLM) Generate(ctx context.Context, prompt string) (string, error) {
	return f.generated, nil
}

func (f *fakeLLM) GenerateChat(ctx context.Context, history []repositories.ChatMessage) (repositories.ChatSession, error) {
	return &fakeChatSession{reply: f.chatReply}, nil
}

type fakeSearcher struct {
	results []repositories.SearchResult
	calls   int
}

func (f *fakeSearcher) Search(ctx context.Context, query string) ([]repositories.SearchResult, error) {
	f.calls++
	return f.results, nil
}

type fakeDecomposer struct {
	plan  string
	calls int
}

func (f *fakeDecomposer) Decompose(ctx context.Context, text string) (string, error) {
	f.calls++
	return f.plan, nil
}

type fakeTTS struct {
	chunks int
}

func (f *fakeTTS) ConvertTextToSpeech(ctx context.Context, text string) (<-chan []byte, error) {
	ch := make(chan []byte, f.chunks)
	for i := 0; i < f.chunks; i++ {
		ch <- []byte{0x01, 0x02}
	}
	close(ch)
	return ch, nil
}

// passthroughCache invokes the generator every time but records calls.
type passthroughCache struct {
	hits map[string]string
}

func (p *passthroughCache) GetOrGenerate(ctx context.Context, query string, generate func(context.Context) (string, error)) (string, bool, error) {
	if cached, ok := p.hits[query]; ok {
		return cached, true, nil
	}
	response, err := generate(ctx)
	return response, false, err
}

type memorySessionRepo struct {
	mu       sync.Mutex
	sessions map[string]*entities.Session
}

func newMemorySessionRepo() *memorySessionRepo {
	return &memorySessionRepo{sessions: make(map[string]*entities.Session)}
}

func (m *memorySessionRepo) Create(ctx context.Context, session *entities.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[session.DeviceID] = session
	return nil
}

func (m *memorySessionRepo) GetLastByDeviceID(ctx context.Context, deviceID string) (*entities.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sessions[deviceID], nil
}

func (m *memorySessionRepo) Update(ctx context.Context, session *entities.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[session.DeviceID] = session
	return nil
}

func (m *memorySessionRepo) ExpireSessions(ctx context.Context, now time.Time) (int64, error) {
	return 0, nil
}

func newExecutorFixture(kind entities.TaskKind) (*TaskExecutor, *fakeSearcher, *fakeDecomposer, *memorySessionRepo) {
	llm := &fakeLLM{generated: "查詢結果", chatReply: "聊天回覆"}
	searcher := &fakeSearcher{results: []repositories.SearchResult{
		{Title: "標題", URL: "https://example.com", Content: "內容"},
	}}
	decomposer := &fakeDecomposer{plan: "動作順序：1 → 8"}
	sessions := newMemorySessionRepo()

	executor := NewTaskExecutor(
		&fakeTaskClassifier{kind: kind},
		llm,
		NewRagPipeline(searcher, llm, zap.NewNop()),
		decomposer,
		&fakeTTS{chunks: 3},
		&passthroughCache{},
		sessions,
		"cmn-Hant-TW",
		zap.NewNop(),
	)
	return executor, searcher, decomposer, sessions
}

func TestExecuteChatSpeaksReply(t *testing.T) {
	executor, searcher, decomposer, sessions := newExecutorFixture(entities.TaskChat)
	sink := &recordSink{}

	if err := executor.Execute(context.Background(), "device-1", "講個笑話", sink); err != nil {
		t.Fatalf("Execute failed: %v", err)
	}

	responses := sink.allResponses()
	if len(responses) != 1 || responses[0] != "聊天回覆" {
		t.Errorf("unexpected responses: %v", responses)
	}
	if sink.chunks != 3 {
		t.Errorf("expected 3 audio chunks, got %d", sink.chunks)
	}
	if searcher.calls != 0 || decomposer.calls != 0 {
		t.Error("chat must not touch search or decomposer")
	}

	session, _ := sessions.GetLastByDeviceID(context.Background(), "device-1")
	if session == nil || len(session.Messages) != 2 {
		t.Fatalf("expected persisted exchange, got %+v", session)
	}
	if session.Messages[0].Role != entities.MessageRoleUser || session.Messages[1].Role != entities.MessageRoleRobot {
		t.Errorf("unexpected message roles: %+v", session.Messages)
	}
}

func TestExecuteSearchUsesRag(t *testing.T) {
	executor, searcher, _, _ := newExecutorFixture(entities.TaskSearch)
	sink := &recordSink{}

	if err := executor.Execute(context.Background(), "device-1", "明天天氣如何", sink); err != nil {
		t.Fatalf("Execute failed: %v", err)
	}

	if searcher.calls != 1 {
		t.Errorf("expected one search call, got %d", searcher.calls)
	}
	responses := sink.allResponses()
	if len(responses) != 1 || responses[0] != "查詢結果" {
		t.Errorf("unexpected responses: %v", responses)
	}
}

func TestExecuteActionSkipsSpeech(t *testing.T) {
	executor, _, decomposer, _ := newExecutorFixture(entities.TaskAction)
	sink := &recordSink{}

	if err := executor.Execute(context.Background(), "device-1", "幫我倒水", sink); err != nil {
		t.Fatalf("Execute failed: %v", err)
	}

	if decomposer.calls != 1 {
		t.Errorf("expected one decompose call, got %d", decomposer.calls)
	}
	responses := sink.allResponses()
	if len(responses) != 1 || responses[0] != "動作順序：1 → 8" {
		t.Errorf("unexpected responses: %v", responses)
	}
	if sink.chunks != 0 {
		t.Errorf("action plans must not be spoken, got %d chunks", sink.chunks)
	}
}

func TestExecuteClassificationFailureFallsBackToChat(t *testing.T) {
	llm := &fakeLLM{chatReply: "聊天回覆"}
	executor := NewTaskExecutor(
		&fakeTaskClassifier{err: errors.New("model down")},
		llm,
		NewRagPipeline(&fakeSearcher{}, llm, zap.NewNop()),
		&fakeDecomposer{},
		&fakeTTS{chunks: 1},
		&passthroughCache{},
		newMemorySessionRepo(),
		"cmn-Hant-TW",
		zap.NewNop(),
	)
	sink := &recordSink{}

	if err := executor.Execute(context.Background(), "device-1", "隨便說說", sink); err != nil {
		t.Fatalf("Execute failed: %v", err)
	}

	responses := sink.allResponses()
	if len(responses) != 1 || responses[0] != "聊天回覆" {
		t.Errorf("expected chat fallback, got %v", responses)
	}
}

func TestExecuteCancelledEmitsNothingAfterCancel(t *testing.T) {
	executor, _, _, _ := newExecutorFixture(entities.TaskChat)
	sink := &recordSink{}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := executor.Execute(ctx, "device-1", "講個笑話", sink)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if got := sink.allResponses(); len(got) != 0 {
		t.Errorf("cancelled execution must not emit responses, got %v", got)
	}
	if sink.chunks != 0 {
		t.Errorf("cancelled execution must not emit audio, got %d chunks", sink.chunks)
	}
}

func TestExecuteCacheHitSkipsGeneration(t *testing.T) {
	llm := &fakeLLM{chatReply: "新答案"}
	cache := &passthroughCache{hits: map[string]string{"老問題": "快取答案"}}
	sessions := newMemorySessionRepo()
	executor := NewTaskExecutor(
		&fakeTaskClassifier{kind: entities.TaskChat},
		llm,
		NewRagPipeline(&fakeSearcher{}, llm, zap.NewNop()),
		&fakeDecomposer{},
		&fakeTTS{chunks: 1},
		cache,
		sessions,
		"cmn-Hant-TW",
		zap.NewNop(),
	)
	sink := &recordSink{}

	if err := executor.Execute(context.Background(), "device-1", "老問題", sink); err != nil {
		t.Fatalf("Execute failed: %v", err)
	}

	responses := sink.allResponses()
	if len(responses) != 1 || responses[0] != "快取答案" {
		t.Errorf("expected cached answer, got %v", responses)
	}

	session, _ := sessions.GetLastByDeviceID(context.Background(), "device-1")
	if session == nil || !session.Messages[1].Metadata.FromCache {
		t.Error("expected robot message flagged as cache hit")
	}
}
