package analysis

import (
	"context"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/googleai"

	"github.com/hitoshi/jobtrail/internal/model"
)

// GeminiGenerator はlangchaingo経由でGeminiを呼び出すテキスト生成器。
type GeminiGenerator struct {
	llm llms.Model
}

// NewGeminiGenerator はGeminiGeneratorを生成する。
func NewGeminiGenerator(ctx context.Context, apiKey, modelName string) (*GeminiGenerator, error) {
	llm, err := googleai.New(ctx,
		googleai.WithAPIKey(apiKey),
		googleai.WithDefaultModel(modelName),
	)
	if err != nil {
		return nil, err
	}
	return &GeminiGenerator{llm: llm}, nil
}

// Generate はプロンプトからテキストを生成する。
func (g *GeminiGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	resp, err := llms.GenerateFromSinglePrompt(ctx, g.llm, prompt)
	if err != nil {
		return "", model.NewUpstreamFailedError("gemini", err.Error())
	}
	return resp, nil
}
