package repositories

import (
	"context"

	"github.com/stobylabs/stoby/domain/entities"
)

// IntentClassifier maps a flushed utterance to a control intent. Callers must
// tolerate errors: a failed classification is treated as IntentIgnore by the
// session controller, never propagated.
type IntentClassifier interface {
	ClassifyIntent(ctx context.Context, text string) (entities.Intent, error)
}

// TaskClassifier routes accepted command text to a task topic. The second
// return value is the classifier's free-form rationale.
type TaskClassifier interface {
	ClassifyTask(ctx context.Context, text string) (entities.TaskKind, string, error)
}

// ActionDecomposer turns an action command into an ordered list of robot
// primitives, or a "not supported" reply when the command is outside the
// executable set.
type ActionDecomposer interface {
	Decompose(ctx context.Context, text string) (string, error)
}
