package llm

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/stobylabs/stoby/domain/repositories"
)

const actionPrompt = `你是一個機器人動作拆解助理。使用者會傳來一段「動作任務」文字，你的工作是：
1. 判斷是否在可執行動作清單內。
2. 若可執行，就輸出「動作順序：編號 → 編號 → …」以及對應的每步文字說明。
3. 若不可執行，輸出「目前不支援此行動命令」。

可執行清單：
1. 從 A 走到 B
2. 拿起 A 物體
3. 放下 A 物體
4. 倒 A 液體到杯子中
5. 停止倒 A 液體到杯子中
6. 按下 A 按鈕
7. 放開 A 按鈕
8. 說話，說話內容為 A

任務描述：%s`

// GeminiActionDecomposer breaks an action command into the robot's
// executable primitive steps.
type GeminiActionDecomposer struct {
	llm    repositories.LargeLanguageModel
	logger *zap.Logger
}

func NewGeminiActionDecomposer(llm repositories.LargeLanguageModel, logger *zap.Logger) *GeminiActionDecomposer {
	return &GeminiActionDecomposer{llm: llm, logger: logger}
}

func (d *GeminiActionDecomposer) Decompose(ctx context.Context, text string) (string, error) {
	plan, err := d.llm.Generate(ctx, fmt.Sprintf(actionPrompt, text))
	if err != nil {
		return "", fmt.Errorf("action decomposition failed: %w", err)
	}

	d.logger.Debug("decomposed action",
		zap.String("text", text),
		zap.Int("plan_length", len(plan)))

	return plan, nil
}

var _ repositories.ActionDecomposer = (*GeminiActionDecomposer)(nil)
