package llm

import "google.golang.org/genai"

const (
	defaultModel          = "gemini-2.0-flash"
	defaultTemperature    = 0.7
	defaultTopP           = 0.95
	defaultTopK           = 40
	defaultMaxTokens      = 1024
	defaultTimeoutSeconds = 30
)

// GeminiConfig holds tunable generation parameters for the Gemini client.
type GeminiConfig struct {
	APIKey          string
	Model           string
	EmbeddingModel  string
	Temperature     float32
	TopP            float32
	TopK            float32
	MaxOutputTokens int
	TimeoutSeconds  int
}

// geminiHardcodedConfig carries the parts of the configuration that are not
// user tunable: safety settings, the robot persona, and offline fallbacks.
var geminiHardcodedConfig = struct {
	SafetySettings []*genai.SafetySetting
	SystemPrompt   string
	Fallbacks      []string
}{
	SafetySettings: []*genai.SafetySetting{
		{
			Category:  genai.HarmCategoryHarassment,
			Threshold: genai.HarmBlockThresholdBlockMediumAndAbove,
		},
		{
			Category:  genai.HarmCategoryHateSpeech,
			Threshold: genai.HarmBlockThresholdBlockMediumAndAbove,
		},
		{
			Category:  genai.HarmCategorySexuallyExplicit,
			Threshold: genai.HarmBlockThresholdBlockLowAndAbove,
		},
		{
			Category:  genai.HarmCategoryDangerousContent,
			Threshold: genai.HarmBlockThresholdBlockMediumAndAbove,
		},
	},
	SystemPrompt: "你是一台名叫「史多比」的桌上型陪伴機器人。" +
		"請用溫暖、簡短、口語化的繁體中文回應使用者，" +
		"回答控制在三句話以內，適合直接轉成語音播放。",
	Fallbacks: []string{
		"嗯……我剛剛恍神了，可以再說一次嗎？",
		"抱歉，我沒聽清楚，再說一次好嗎？",
		"我想一下……可以再問我一次嗎？",
	},
}
