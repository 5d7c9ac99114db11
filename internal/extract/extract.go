// Package extract turns an evidence document into validated company
// fields via a single LLM call. The oracle proposes, validation disposes:
// every field passes shape checks before landing on the record, and a
// malformed response is a typed outcome, not an error.
package extract

import (
	"context"
	"encoding/json"
	"strings"

	"go.uber.org/zap"

	"github.com/sells-group/valor-intel/internal/cnpj"
	"github.com/sells-group/valor-intel/internal/model"
	"github.com/sells-group/valor-intel/pkg/anthropic"
)

const systemPrompt = `Você é um analista de inteligência corporativa. Receberá um documento de evidências de busca sobre uma empresa brasileira.

Extraia APENAS os campos abaixo, retornando EXATAMENTE um objeto JSON (sem texto adicional):
{
  "official_website": "URL do site oficial da empresa, ou null",
  "linkedin_url": "URL do perfil oficial no LinkedIn, ou null",
  "physical_address": "endereço físico da sede, ou null",
  "primary_cnpj": "CNPJ da matriz, somente dígitos, exatamente 14 caracteres, ou null",
  "radical_cnpj": "radical do CNPJ, somente dígitos, exatamente 8 caracteres, ou null",
  "about_page_url": "URL da página institucional/sobre da empresa, ou null",
  "institutional_description": "descrição institucional curta baseada na evidência, ou null"
}

Regras:
- Use null para qualquer campo sem suporte claro na evidência. Nunca invente.
- primary_cnpj: remova pontuação; confira que sobram exatamente 14 dígitos antes de responder.
- radical_cnpj: os 8 primeiros dígitos do CNPJ; confira o comprimento.
- Responda somente com o objeto JSON.`

// Status classifies an extraction attempt.
type Status string

const (
	StatusOK          Status = "ok"
	StatusParseFailed Status = "parse_failed"
)

// FieldDecision records one accept/reject call made during validation.
type FieldDecision struct {
	Field    string `json:"field"`
	Raw      string `json:"raw,omitempty"`
	Accepted bool   `json:"accepted"`
	Reason   string `json:"reason,omitempty"`
}

// Outcome is the typed result of one extraction attempt. A parse failure
// carries an empty field set and is never retried.
type Outcome struct {
	Status    Status
	Decisions []FieldDecision
	Usage     anthropic.TokenUsage
}

// Extractor runs the structured-extraction stage.
type Extractor struct {
	llm       anthropic.Client
	model     string
	maxTokens int64
}

// NewExtractor builds an Extractor bound to the given model.
func NewExtractor(llm anthropic.Client, modelName string, maxTokens int64) *Extractor {
	if maxTokens <= 0 {
		maxTokens = 1024
	}
	return &Extractor{llm: llm, model: modelName, maxTokens: maxTokens}
}

// Extract asks the oracle for the seven discovery fields and applies the
// validated ones to the company record in place.
func (e *Extractor) Extract(ctx context.Context, company *model.CompanyRecord, document string) (Outcome, error) {
	zero := 0.0
	resp, err := e.llm.CreateMessage(ctx, anthropic.MessageRequest{
		Model:       e.model,
		MaxTokens:   e.maxTokens,
		System:      systemPrompt,
		Temperature: &zero,
		Messages: []anthropic.Message{
			{Role: "user", Content: document},
		},
	})
	if err != nil {
		return Outcome{Status: StatusParseFailed}, err
	}
	resp.Usage.LogUsage(e.model, "extract")

	outcome := Apply(company, resp.Text())
	outcome.Usage = resp.Usage
	return outcome, nil
}

// Apply parses the oracle's raw output and applies validated fields to
// the record. Exported separately so the validation path is testable
// without an LLM.
func Apply(company *model.CompanyRecord, raw string) Outcome {
	fields, ok := parseFields(raw)
	if !ok {
		zap.L().Warn("extract: response is not a JSON object",
			zap.String("company", company.Name),
		)
		return Outcome{Status: StatusParseFailed}
	}

	out := Outcome{Status: StatusOK}
	decide := func(field, value string, accepted bool, reason string) {
		out.Decisions = append(out.Decisions, FieldDecision{
			Field: field, Raw: value, Accepted: accepted, Reason: reason,
		})
		zap.L().Debug("extract: field decision",
			zap.String("company", company.Name),
			zap.String("field", field),
			zap.Bool("accepted", accepted),
			zap.String("reason", reason),
		)
	}

	applyString := func(field string, dest **string) {
		value, present := fields[field]
		if !present || strings.TrimSpace(value) == "" {
			decide(field, value, false, "absent or empty")
			return
		}
		v := strings.TrimSpace(value)
		*dest = &v
		decide(field, v, true, "")
	}

	applyString("official_website", &company.OfficialWebsite)
	applyString("linkedin_url", &company.LinkedInURL)
	applyString("physical_address", &company.PhysicalAddress)
	applyString("about_page_url", &company.AboutPageURL)
	applyString("institutional_description", &company.InstitutionalDescription)

	if raw, present := fields["primary_cnpj"]; present && strings.TrimSpace(raw) != "" {
		if company.SetPrimaryCNPJ(raw) {
			decide("primary_cnpj", raw, true, "")
		} else {
			decide("primary_cnpj", raw, false, "not 14 digits after normalization")
		}
	} else {
		decide("primary_cnpj", "", false, "absent or empty")
	}

	if raw, present := fields["radical_cnpj"]; present && strings.TrimSpace(raw) != "" {
		if company.SetRadicalCNPJ(strings.TrimSpace(raw)) {
			decide("radical_cnpj", raw, true, "")
		} else {
			decide("radical_cnpj", raw, false, "not exactly 8 digits")
		}
	} else {
		decide("radical_cnpj", "", false, "absent or empty")
	}

	// A valid primary CNPJ always wins the radical over the oracle's own.
	if id := company.ValidCNPJ(); id != "" {
		r := cnpj.Radical(id)
		company.RadicalCNPJ = &r
	}

	return out
}

// parseFields unwraps optional markdown fences and decodes the response
// into a string field map. JSON nulls and non-string values drop out.
func parseFields(raw string) (map[string]string, bool) {
	cleaned := stripFences(raw)
	if cleaned == "" {
		return nil, false
	}

	var decoded map[string]any
	if err := json.Unmarshal([]byte(cleaned), &decoded); err != nil {
		return nil, false
	}

	fields := make(map[string]string, len(decoded))
	for k, v := range decoded {
		if s, ok := v.(string); ok {
			fields[k] = s
		}
	}
	return fields, true
}

func stripFences(raw string) string {
	s := strings.TrimSpace(raw)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
