package usecase

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/stobylabs/stoby/domain/entities"
	"github.com/stobylabs/stoby/domain/repositories"
)

// CommandExecutor runs one command utterance and streams its results.
type CommandExecutor interface {
	Execute(ctx context.Context, deviceID, utterance string, sink ResultSink) error
	Greet(ctx context.Context, sink ResultSink) error
}

// commandTask is the handle for the one command that may be running.
type commandTask struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// SessionController is the wake-word state machine. The robot is either
// asleep (INACTIVE) or awake (ACTIVE); every completed utterance is
// classified and drives a transition:
//
//	asleep + START   -> wake up and greet
//	asleep + COMMAND -> dropped silently
//	awake  + STOP    -> cancel the running command and sleep
//	awake  + INTERRUPT -> cancel the running command, stay awake
//	awake  + COMMAND -> cancel the running command, start this one
//
// IGNORE never changes anything. At most one command runs at a time, and a
// cancelled command emits nothing further.
type SessionController struct {
	deviceID   string
	classifier repositories.IntentClassifier
	executor   CommandExecutor
	sink       ResultSink
	logger     *zap.Logger

	mu      sync.Mutex
	active  bool
	current *commandTask
}

func NewSessionController(
	deviceID string,
	classifier repositories.IntentClassifier,
	executor CommandExecutor,
	sink ResultSink,
	logger *zap.Logger,
) *SessionController {
	return &SessionController{
		deviceID:   deviceID,
		classifier: classifier,
		executor:   executor,
		sink:       sink,
		logger:     logger,
	}
}

// HandleUtterance classifies one utterance and applies the transition.
func (c *SessionController) HandleUtterance(ctx context.Context, utterance string) {
	intent, err := c.classifier.ClassifyIntent(ctx, utterance)
	if err != nil {
		c.logger.Warn("Intent classification failed, ignoring utterance",
			zap.String("utterance", utterance),
			zap.Error(err))
		intent = entities.IntentIgnore
	}

	c.logger.Info("handling utterance",
		zap.String("utterance", utterance),
		zap.String("intent", string(intent)),
		zap.Bool("active", c.Active()))

	c.mu.Lock()
	defer c.mu.Unlock()

	switch intent {
	case entities.IntentStart:
		if c.active {
			return
		}
		c.active = true
		c.sink.Status("active")
		c.startTaskLocked(func(ctx context.Context, sink ResultSink) {
			if err := c.executor.Greet(ctx, sink); err != nil && ctx.Err() == nil {
				c.logger.Error("Greeting failed", zap.Error(err))
			}
		})

	case entities.IntentStop:
		if !c.active {
			return
		}
		c.cancelCurrentLocked()
		c.active = false
		c.sink.Status("inactive")

	case entities.IntentInterrupt:
		if !c.active {
			return
		}
		c.cancelCurrentLocked()
		c.sink.Status("idle")

	case entities.IntentCommand:
		if !c.active {
			c.logger.Debug("dropping command while inactive",
				zap.String("utterance", utterance))
			return
		}
		c.cancelCurrentLocked()
		c.startTaskLocked(func(ctx context.Context, sink ResultSink) {
			if err := c.executor.Execute(ctx, c.deviceID, utterance, sink); err != nil && ctx.Err() == nil {
				c.logger.Error("Command failed",
					zap.String("utterance", utterance),
					zap.Error(err))
				sink.Status("idle")
			}
		})

	case entities.IntentIgnore:
		// nothing to do
	}
}

// Active reports whether the robot is awake.
func (c *SessionController) Active() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active
}

// Shutdown cancels any running command, for connection teardown.
func (c *SessionController) Shutdown() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cancelCurrentLocked()
	c.active = false
}

// cancelCurrentLocked cancels the running command and clears the handle
// immediately. The goroutine drains in the background; its sink is gated
// on the cancelled context so nothing more gets through.
func (c *SessionController) cancelCurrentLocked() {
	if c.current == nil {
		return
	}
	c.current.cancel()
	c.current = nil
}

// startTaskLocked launches run as the current command task.
func (c *SessionController) startTaskLocked(run func(context.Context, ResultSink)) {
	ctx, cancel := context.WithCancel(context.Background())
	task := &commandTask{
		cancel: cancel,
		done:   make(chan struct{}),
	}
	c.current = task

	sink := &gatedSink{ctx: ctx, inner: c.sink}

	go func() {
		defer close(task.done)
		defer cancel()
		run(ctx, sink)

		c.mu.Lock()
		if c.current == task {
			c.current = nil
		}
		c.mu.Unlock()
	}()
}

// gatedSink drops every emission once its context is cancelled, so a
// replaced or interrupted command cannot leak stale results.
type gatedSink struct {
	ctx   context.Context
	inner ResultSink
}

func (g *gatedSink) Status(state string) {
	if g.ctx.Err() == nil {
		g.inner.Status(state)
	}
}

func (g *gatedSink) UserQuery(text string) {
	if g.ctx.Err() == nil {
		g.inner.UserQuery(text)
	}
}

func (g *gatedSink) TextResponse(text string) {
	if g.ctx.Err() == nil {
		g.inner.TextResponse(text)
	}
}

func (g *gatedSink) AudioStart() {
	if g.ctx.Err() == nil {
		g.inner.AudioStart()
	}
}

func (g *gatedSink) AudioChunk(data []byte) {
	if g.ctx.Err() == nil {
		g.inner.AudioChunk(data)
	}
}

func (g *gatedSink) AudioEnd() {
	if g.ctx.Err() == nil {
		g.inner.AudioEnd()
	}
}
