package llm

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/stobylabs/stoby/domain/entities"
	"github.com/stobylabs/stoby/domain/repositories"
)

const taskPrompt = `請根據使用者輸入的內容，判斷該屬於哪一種類型的任務。
輸入：
你會收到一段使用者輸入的文字，這段文字會屬於以下三種任務類型之一。
請判斷是哪一種類型，只需要回覆任務名稱。

三種任務類型：

1. 查詢(Query):
如果使用者是在詢問資訊(具有明確答案)、尋求解答、了解事實或知識，請分類為「查詢」。
範例：
- 「今天天氣怎麼樣？」
- 「2022年世界盃冠軍是誰?」
- 「幫我查行天宮附近的披薩店」
- 「今天有什麼重大新聞?」

2. 聊天(Chat):
如果使用者是在進行閒聊(無明確答案)、打招呼、開玩笑、分享心情，請分類為「聊天」。
範例：
- 「嗨，你好嗎？」
- 「講個笑話來聽聽！」
- 「你覺得奶茶跟拿鐵哪個好喝?」
- 「我今天心情不好不想上班」

3. 行動（Action）：
如果使用者是在要求執行某個指令或具體行動，請分類為「行動」。
範例：
- 「幫我發封信給我老闆。」
- 「把客廳的燈關掉。」
- 「幫我去樓下拿包裹」
- 「幫我去茶水間泡杯咖啡給顧問」

回覆要求：
- 請務必回覆兩個部分，並使用以下格式包住：
<class>任務名稱（查詢 / 聊天 / 行動）</class>
<extra>簡短說明為何這樣分類</extra>

- 除了這兩個標籤包起來的內容之外，不要輸出其他文字。

任務描述：%s`

// GeminiTaskClassifier sorts a command into query, chat, or action.
type GeminiTaskClassifier struct {
	llm    repositories.LargeLanguageModel
	logger *zap.Logger
}

func NewGeminiTaskClassifier(llm repositories.LargeLanguageModel, logger *zap.Logger) *GeminiTaskClassifier {
	return &GeminiTaskClassifier{llm: llm, logger: logger}
}

// ClassifyTask returns the task kind plus the model's short explanation.
// Unrecognized labels default to chat so the command still gets a reply.
func (c *GeminiTaskClassifier) ClassifyTask(ctx context.Context, text string) (entities.TaskKind, string, error) {
	raw, err := c.llm.Generate(ctx, fmt.Sprintf(taskPrompt, text))
	if err != nil {
		return entities.TaskChat, "", fmt.Errorf("task classification failed: %w", err)
	}

	label := parseTag(raw, "class")
	extra := parseTag(raw, "extra")
	kind := parseTaskKind(label)

	c.logger.Debug("classified task",
		zap.String("text", text),
		zap.String("label", label),
		zap.String("kind", string(kind)))

	return kind, extra, nil
}

// parseTag extracts the content between <tag> and </tag>, or "" when absent.
func parseTag(text, tag string) string {
	startTag := "<" + tag + ">"
	endTag := "</" + tag + ">"

	start := strings.Index(text, startTag)
	if start == -1 {
		return ""
	}
	rest := text[start+len(startTag):]
	end := strings.Index(rest, endTag)
	if end == -1 {
		return ""
	}
	return strings.TrimSpace(rest[:end])
}

func parseTaskKind(label string) entities.TaskKind {
	switch {
	case strings.Contains(label, "查詢"), strings.Contains(strings.ToLower(label), "query"):
		return entities.TaskSearch
	case strings.Contains(label, "行動"), strings.Contains(strings.ToLower(label), "action"):
		return entities.TaskAction
	default:
		return entities.TaskChat
	}
}

var _ repositories.TaskClassifier = (*GeminiTaskClassifier)(nil)
