package extract

import (
	"context"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/valor-intel/internal/model"
	"github.com/sells-group/valor-intel/pkg/anthropic"
)

type fakeLLM struct {
	response string
	err      error
	lastReq  anthropic.MessageRequest
}

func (f *fakeLLM) CreateMessage(ctx context.Context, req anthropic.MessageRequest) (*anthropic.MessageResponse, error) {
	f.lastReq = req
	if f.err != nil {
		return nil, f.err
	}
	return &anthropic.MessageResponse{
		Content: []anthropic.ContentBlock{{Type: "text", Text: f.response}},
		Usage:   anthropic.TokenUsage{InputTokens: 100, OutputTokens: 50},
	}, nil
}

func decisionFor(t *testing.T, o Outcome, field string) FieldDecision {
	t.Helper()
	for _, d := range o.Decisions {
		if d.Field == field {
			return d
		}
	}
	t.Fatalf("no decision for field %s", field)
	return FieldDecision{}
}

func TestApply_ValidFields(t *testing.T) {
	c := &model.CompanyRecord{Name: "Petrobras"}
	out := Apply(c, `{
		"official_website": "https://petrobras.com.br",
		"linkedin_url": "https://linkedin.com/company/petrobras",
		"physical_address": "Av. República do Chile 65, Rio de Janeiro",
		"primary_cnpj": "33.000.167/0001-01",
		"radical_cnpj": "33000167",
		"about_page_url": "https://petrobras.com.br/quem-somos",
		"institutional_description": "Petrolífera integrada de energia."
	}`)

	assert.Equal(t, StatusOK, out.Status)
	require.NotNil(t, c.OfficialWebsite)
	assert.Equal(t, "https://petrobras.com.br", *c.OfficialWebsite)
	require.NotNil(t, c.PrimaryCNPJ)
	assert.Equal(t, "33000167000101", *c.PrimaryCNPJ, "formatted CNPJ normalized before storing")
	require.NotNil(t, c.RadicalCNPJ)
	assert.Equal(t, "33000167", *c.RadicalCNPJ)
	require.NotNil(t, c.InstitutionalDescription)
}

func TestApply_FencedJSON(t *testing.T) {
	c := &model.CompanyRecord{Name: "Vale"}
	out := Apply(c, "```json\n{\"official_website\": \"https://vale.com\"}\n```")

	assert.Equal(t, StatusOK, out.Status)
	require.NotNil(t, c.OfficialWebsite)
	assert.Equal(t, "https://vale.com", *c.OfficialWebsite)
}

func TestApply_NullsAndRejections(t *testing.T) {
	c := &model.CompanyRecord{Name: "Ambev"}
	out := Apply(c, `{
		"official_website": null,
		"primary_cnpj": "123",
		"radical_cnpj": "33.000.16"
	}`)

	assert.Equal(t, StatusOK, out.Status)
	assert.Nil(t, c.OfficialWebsite)
	assert.Nil(t, c.PrimaryCNPJ, "wrong-length CNPJ nulled, never truncated")
	assert.Nil(t, c.RadicalCNPJ, "radical is strict digits-only, no normalization")

	assert.False(t, decisionFor(t, out, "primary_cnpj").Accepted)
	assert.Equal(t, "not 14 digits after normalization", decisionFor(t, out, "primary_cnpj").Reason)
	assert.False(t, decisionFor(t, out, "radical_cnpj").Accepted)
}

func TestApply_RadicalDerivedFromValidCNPJ(t *testing.T) {
	c := &model.CompanyRecord{Name: "Itaú"}
	out := Apply(c, `{"primary_cnpj": "60701190000104", "radical_cnpj": "99999999"}`)

	assert.Equal(t, StatusOK, out.Status)
	require.NotNil(t, c.RadicalCNPJ)
	assert.Equal(t, "60701190", *c.RadicalCNPJ, "valid primary CNPJ overrides the oracle's radical")
}

func TestApply_ParseFailures(t *testing.T) {
	for _, raw := range []string{"", "   ", "not json at all", "```\n```", `["array"]`} {
		c := &model.CompanyRecord{Name: "X"}
		out := Apply(c, raw)
		assert.Equal(t, StatusParseFailed, out.Status, "raw=%q", raw)
		assert.Empty(t, out.Decisions)
		assert.Nil(t, c.OfficialWebsite)
	}
}

func TestExtract_CallsOracle(t *testing.T) {
	llm := &fakeLLM{response: `{"official_website": "https://weg.net"}`}
	e := NewExtractor(llm, "claude-haiku-4-5-20251001", 1024)

	c := &model.CompanyRecord{Name: "WEG"}
	out, err := e.Extract(context.Background(), c, "evidence document")
	require.NoError(t, err)

	assert.Equal(t, StatusOK, out.Status)
	assert.Equal(t, int64(100), out.Usage.InputTokens)
	assert.Equal(t, "claude-haiku-4-5-20251001", llm.lastReq.Model)
	assert.Equal(t, "evidence document", llm.lastReq.Messages[0].Content)
	require.NotNil(t, llm.lastReq.Temperature)
	assert.Zero(t, *llm.lastReq.Temperature)
}

func TestExtract_LLMError(t *testing.T) {
	llm := &fakeLLM{err: eris.New("rate limited")}
	e := NewExtractor(llm, "claude-haiku-4-5-20251001", 1024)

	c := &model.CompanyRecord{Name: "WEG"}
	out, err := e.Extract(context.Background(), c, "doc")
	assert.Error(t, err)
	assert.Equal(t, StatusParseFailed, out.Status)
}
