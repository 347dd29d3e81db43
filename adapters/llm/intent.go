package llm

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/stobylabs/stoby/domain/entities"
	"github.com/stobylabs/stoby/domain/repositories"
)

const intentPrompt = `請判斷下列文字的意圖，只能回答以下四個字串之一：
START/STOP/INTERRUPT/COMMAND
START (啟動關鍵字): 例如「啟動」、「你好」、「哈囉」、「機器人」等等
STOP (結束關鍵字): 例如「關閉」、「再見」、「掰掰」、「結束」等等
INTERRUPT (打斷關鍵字): 例如「等一下」、「暫停」、「閉嘴」、「停」等等
COMMAND (一般命令): 前三者以外，都歸類於此

**務必輸出其中一個字串**

文字：「%s」`

// GeminiIntentClassifier labels an utterance with a wake-word intent.
type GeminiIntentClassifier struct {
	llm    repositories.LargeLanguageModel
	logger *zap.Logger
}

func NewGeminiIntentClassifier(llm repositories.LargeLanguageModel, logger *zap.Logger) *GeminiIntentClassifier {
	return &GeminiIntentClassifier{llm: llm, logger: logger}
}

// ClassifyIntent asks the model for one of the four intent labels.
// Output that matches none of them parses to IGNORE.
func (c *GeminiIntentClassifier) ClassifyIntent(ctx context.Context, text string) (entities.Intent, error) {
	escaped := strings.ReplaceAll(text, `"`, `\"`)
	raw, err := c.llm.Generate(ctx, fmt.Sprintf(intentPrompt, escaped))
	if err != nil {
		return entities.IntentIgnore, fmt.Errorf("intent classification failed: %w", err)
	}

	intent := entities.ParseIntent(raw)
	c.logger.Debug("classified intent",
		zap.String("text", text),
		zap.String("raw", raw),
		zap.String("intent", string(intent)))

	return intent, nil
}

var _ repositories.IntentClassifier = (*GeminiIntentClassifier)(nil)
