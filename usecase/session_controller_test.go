package usecase

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/stobylabs/stoby/domain/entities"
)

// fakeClassifier returns a fixed intent per utterance text.
type fakeClassifier struct {
	intents map[string]entities.Intent
	err     error
}

func (f *fakeClassifier) ClassifyIntent(ctx context.Context, text string) (entities.Intent, error) {
	if f.err != nil {
		return entities.IntentIgnore, f.err
	}
	if intent, ok := f.intents[text]; ok {
		return intent, nil
	}
	return entities.IntentIgnore, nil
}

// fakeExecutor emits a response for each command, optionally stalling so
// the test can cancel it mid-flight.
type fakeExecutor struct {
	mu       sync.Mutex
	started  []string
	stall    time.Duration
	greeting bool
}

func (f *fakeExecutor) Execute(ctx context.Context, deviceID, utterance string, sink ResultSink) error {
	f.mu.Lock()
	f.started = append(f.started, utterance)
	f.mu.Unlock()

	sink.UserQuery(utterance)

	if f.stall > 0 {
		select {
		case <-time.After(f.stall):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	sink.TextResponse("回覆：" + utterance)
	return nil
}

func (f *fakeExecutor) Greet(ctx context.Context, sink ResultSink) error {
	f.mu.Lock()
	f.greeting = true
	f.mu.Unlock()
	sink.TextResponse("嗨，我在聽！")
	return nil
}

func (f *fakeExecutor) startedCommands() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.started...)
}

// recordSink captures everything emitted to it.
type recordSink struct {
	mu        sync.Mutex
	statuses  []string
	queries   []string
	responses []string
	chunks    int
}

func (r *recordSink) Status(state string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.statuses = append(r.statuses, state)
}

func (r *recordSink) UserQuery(text string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.queries = append(r.queries, text)
}

func (r *recordSink) TextResponse(text string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.responses = append(r.responses, text)
}

func (r *recordSink) AudioStart() {}
func (r *recordSink) AudioChunk(data []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.chunks++
}
func (r *recordSink) AudioEnd() {}

func (r *recordSink) allResponses() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.responses...)
}

func (r *recordSink) allStatuses() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.statuses...)
}

var defaultIntents = map[string]entities.Intent{
	"你好機器人": entities.IntentStart,
	"再見":    entities.IntentStop,
	"等一下":   entities.IntentInterrupt,
	"幫我查天氣": entities.IntentCommand,
	"講個笑話":  entities.IntentCommand,
	"嗯":     entities.IntentIgnore,
}

func newController(executor *fakeExecutor, sink *recordSink) *SessionController {
	return NewSessionController("device-1", &fakeClassifier{intents: defaultIntents}, executor, sink, zap.NewNop())
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met within deadline")
}

func TestStartActivatesAndGreets(t *testing.T) {
	executor := &fakeExecutor{}
	sink := &recordSink{}
	c := newController(executor, sink)

	c.HandleUtterance(context.Background(), "你好機器人")

	if !c.Active() {
		t.Fatal("expected controller to be active after START")
	}
	waitFor(t, func() bool {
		executor.mu.Lock()
		defer executor.mu.Unlock()
		return executor.greeting
	})

	statuses := sink.allStatuses()
	if len(statuses) == 0 || statuses[0] != "active" {
		t.Errorf("expected first status active, got %v", statuses)
	}
}

func TestStartWhileActiveIsNoop(t *testing.T) {
	executor := &fakeExecutor{}
	sink := &recordSink{}
	c := newController(executor, sink)

	c.HandleUtterance(context.Background(), "你好機器人")
	c.HandleUtterance(context.Background(), "你好機器人")

	statuses := sink.allStatuses()
	count := 0
	for _, s := range statuses {
		if s == "active" {
			count++
		}
	}
	if count != 1 {
		t.Errorf("expected exactly one active status, got %v", statuses)
	}
}

func TestCommandWhileInactiveIsDropped(t *testing.T) {
	executor := &fakeExecutor{}
	sink := &recordSink{}
	c := newController(executor, sink)

	c.HandleUtterance(context.Background(), "幫我查天氣")
	time.Sleep(30 * time.Millisecond)

	if got := executor.startedCommands(); len(got) != 0 {
		t.Errorf("expected no commands while inactive, got %v", got)
	}
	if got := sink.allResponses(); len(got) != 0 {
		t.Errorf("expected no responses, got %v", got)
	}
	if c.Active() {
		t.Error("controller must stay inactive")
	}
}

func TestCommandWhileActiveExecutes(t *testing.T) {
	executor := &fakeExecutor{}
	sink := &recordSink{}
	c := newController(executor, sink)

	c.HandleUtterance(context.Background(), "你好機器人")
	c.HandleUtterance(context.Background(), "幫我查天氣")

	waitFor(t, func() bool {
		for _, r := range sink.allResponses() {
			if r == "回覆：幫我查天氣" {
				return true
			}
		}
		return false
	})
}

func TestStopCancelsAndDeactivates(t *testing.T) {
	executor := &fakeExecutor{stall: time.Second}
	sink := &recordSink{}
	c := newController(executor, sink)

	c.HandleUtterance(context.Background(), "你好機器人")
	c.HandleUtterance(context.Background(), "幫我查天氣")
	waitFor(t, func() bool { return len(executor.startedCommands()) == 1 })

	c.HandleUtterance(context.Background(), "再見")

	if c.Active() {
		t.Fatal("expected controller inactive after STOP")
	}

	// The stalled command was cancelled; its response must never arrive.
	time.Sleep(50 * time.Millisecond)
	for _, r := range sink.allResponses() {
		if strings.HasPrefix(r, "回覆：") {
			t.Errorf("cancelled command leaked response %q", r)
		}
	}
}

func TestStopWhileInactiveIsNoop(t *testing.T) {
	executor := &fakeExecutor{}
	sink := &recordSink{}
	c := newController(executor, sink)

	c.HandleUtterance(context.Background(), "再見")

	if got := sink.allStatuses(); len(got) != 0 {
		t.Errorf("expected no status changes, got %v", got)
	}
}

func TestInterruptCancelsButStaysActive(t *testing.T) {
	executor := &fakeExecutor{stall: time.Second}
	sink := &recordSink{}
	c := newController(executor, sink)

	c.HandleUtterance(context.Background(), "你好機器人")
	c.HandleUtterance(context.Background(), "幫我查天氣")
	waitFor(t, func() bool { return len(executor.startedCommands()) == 1 })

	c.HandleUtterance(context.Background(), "等一下")

	if !c.Active() {
		t.Fatal("expected controller to stay active after INTERRUPT")
	}

	time.Sleep(50 * time.Millisecond)
	for _, r := range sink.allResponses() {
		if strings.HasPrefix(r, "回覆：") {
			t.Errorf("interrupted command leaked response %q", r)
		}
	}
}

func TestInterruptWhileIdleIsNoop(t *testing.T) {
	executor := &fakeExecutor{}
	sink := &recordSink{}
	c := newController(executor, sink)

	c.HandleUtterance(context.Background(), "等一下")
	if c.Active() {
		t.Error("INTERRUPT while inactive must not activate")
	}
}

func TestNewCommandReplacesRunningCommand(t *testing.T) {
	executor := &fakeExecutor{stall: 100 * time.Millisecond}
	sink := &recordSink{}
	c := newController(executor, sink)

	c.HandleUtterance(context.Background(), "你好機器人")
	c.HandleUtterance(context.Background(), "幫我查天氣")
	waitFor(t, func() bool { return len(executor.startedCommands()) == 1 })

	c.HandleUtterance(context.Background(), "講個笑話")

	waitFor(t, func() bool {
		for _, r := range sink.allResponses() {
			if r == "回覆：講個笑話" {
				return true
			}
		}
		return false
	})

	for _, r := range sink.allResponses() {
		if r == "回覆：幫我查天氣" {
			t.Error("replaced command leaked its response")
		}
	}
	if got := executor.startedCommands(); len(got) != 2 {
		t.Errorf("expected both commands to start, got %v", got)
	}
}

func TestIgnoreChangesNothing(t *testing.T) {
	executor := &fakeExecutor{}
	sink := &recordSink{}
	c := newController(executor, sink)

	c.HandleUtterance(context.Background(), "嗯")
	if c.Active() {
		t.Error("IGNORE must not activate")
	}

	c.HandleUtterance(context.Background(), "你好機器人")
	c.HandleUtterance(context.Background(), "嗯")
	if !c.Active() {
		t.Error("IGNORE must not deactivate")
	}
}

func TestClassifierFailureIsIgnored(t *testing.T) {
	executor := &fakeExecutor{}
	sink := &recordSink{}
	c := NewSessionController("device-1", &fakeClassifier{err: errors.New("model down")}, executor, sink, zap.NewNop())

	c.HandleUtterance(context.Background(), "你好機器人")

	if c.Active() {
		t.Error("classification failure must behave as IGNORE")
	}
	if got := executor.startedCommands(); len(got) != 0 {
		t.Errorf("expected no commands, got %v", got)
	}
}

func TestShutdownCancelsRunningCommand(t *testing.T) {
	executor := &fakeExecutor{stall: time.Second}
	sink := &recordSink{}
	c := newController(executor, sink)

	c.HandleUtterance(context.Background(), "你好機器人")
	c.HandleUtterance(context.Background(), "幫我查天氣")
	waitFor(t, func() bool { return len(executor.startedCommands()) == 1 })

	c.Shutdown()
	if c.Active() {
		t.Error("expected inactive after shutdown")
	}

	time.Sleep(50 * time.Millisecond)
	for _, r := range sink.allResponses() {
		if strings.HasPrefix(r, "回覆：") {
			t.Errorf("command leaked response after shutdown: %q", r)
		}
	}
}
