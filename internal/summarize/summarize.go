// Package summarize condenses a scraped institutional page into a short
// company profile.
package summarize

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/sells-group/valor-intel/pkg/anthropic"
)

const systemPrompt = `Você resume páginas institucionais de empresas brasileiras.

Escreva EXATAMENTE 3 frases em português cobrindo, nesta ordem:
1. O modelo de negócio da empresa.
2. Seus principais produtos e serviços, traduzindo jargão de marketing para termos concretos.
3. O perfil de cliente ideal.

Se o texto for apenas boilerplate de navegação, cookies ou erro, sem conteúdo institucional real, responda somente com a palavra: null`

// Summarizer runs the institutional-summary stage.
type Summarizer struct {
	llm       anthropic.Client
	model     string
	maxTokens int64
}

// NewSummarizer builds a Summarizer bound to the given model.
func NewSummarizer(llm anthropic.Client, modelName string, maxTokens int64) *Summarizer {
	if maxTokens <= 0 {
		maxTokens = 512
	}
	return &Summarizer{llm: llm, model: modelName, maxTokens: maxTokens}
}

// Summarize returns the 3-sentence profile for the page markdown, or nil
// when the input is empty, the oracle declines with "null", or the call
// fails. Failures are logged, never propagated: the summary is optional.
func (s *Summarizer) Summarize(ctx context.Context, companyName, markdown string) (*string, anthropic.TokenUsage) {
	if strings.TrimSpace(markdown) == "" {
		return nil, anthropic.TokenUsage{}
	}

	resp, err := s.llm.CreateMessage(ctx, anthropic.MessageRequest{
		Model:     s.model,
		MaxTokens: s.maxTokens,
		System:    systemPrompt,
		Messages: []anthropic.Message{
			{Role: "user", Content: markdown},
		},
	})
	if err != nil {
		zap.L().Warn("summarize: llm call failed",
			zap.String("company", companyName),
			zap.Error(err),
		)
		return nil, anthropic.TokenUsage{}
	}
	resp.Usage.LogUsage(s.model, "summarize")

	text := strings.TrimSpace(resp.Text())
	if text == "" || strings.EqualFold(text, "null") {
		zap.L().Info("summarize: page had no institutional content",
			zap.String("company", companyName),
		)
		return nil, resp.Usage
	}
	return &text, resp.Usage
}
