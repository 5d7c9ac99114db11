// Package model defines the typed company record, ownership edges, and the
// append/sum-only accumulators shared across concurrent enrichment branches.
package model

import (
	"github.com/sells-group/valor-intel/internal/cnpj"
)

// SourceLabel classifies a shareholder node by identifier shape.
type SourceLabel string

const (
	LabelPerson  SourceLabel = "Person"  // 11-digit CPF
	LabelCompany SourceLabel = "Company" // 14-digit CNPJ
)

// RelationshipType is the kind of ownership edge written to the graph.
type RelationshipType string

const (
	RelOwns RelationshipType = "OWNS"
	// RelSubsidiaryOf is derived, never sourced: a Company-labelled OWNS
	// edge with the controller flag or a stake above 50% qualifies.
	RelSubsidiaryOf RelationshipType = "SUBSIDIARY_OF"
)

// OwnershipEdge is one shareholder-to-company relationship. Edges are
// created once by the ownership resolver and never mutated afterwards;
// ingestion translates them into graph edges.
type OwnershipEdge struct {
	SourceID     string           `json:"source_id"`
	SourceName   string           `json:"source_name,omitempty"`
	SourceLabel  SourceLabel      `json:"source_label"`
	TargetID     string           `json:"target_id"`
	Type         RelationshipType `json:"relationship_type"`
	Percentage   *float64         `json:"percentage,omitempty"`
	IsController bool             `json:"is_controller"`
}

// SubsidiaryEligible reports whether the edge qualifies for SUBSIDIARY_OF
// derivation: Company-labelled source with the controller flag set or a
// stake strictly above 50%.
func (e OwnershipEdge) SubsidiaryEligible() bool {
	if e.SourceLabel != LabelCompany {
		return false
	}
	if e.IsController {
		return true
	}
	return e.Percentage != nil && *e.Percentage > 50
}

// CompanyRecord is one ranked company plus everything enrichment found.
// Enrichment fields are pointers: nil means "no validated evidence", and
// validation nulls rather than coerces (a wrong-length CNPJ is dropped,
// never truncated or padded).
type CompanyRecord struct {
	Rank2024       string `json:"classificacao_2024,omitempty"`
	Rank2023       string `json:"classificacao_2023,omitempty"`
	Name           string `json:"nome_empresa"`
	RegisteredName string `json:"razao_social,omitempty"`
	City           string `json:"sede,omitempty"`
	Sector         string `json:"setor,omitempty"`
	// Revenue and profit keep the ranking's pt-BR decimal strings
	// (e.g. "5.006,4", millions of BRL); brnum parses them on demand.
	NetRevenueMillions string `json:"receita_liquida_milhoes,omitempty"`
	NetProfitMillions  string `json:"lucro_liquido_milhoes,omitempty"`

	OfficialWebsite          *string `json:"official_website,omitempty"`
	LinkedInURL              *string `json:"linkedin_url,omitempty"`
	AboutPageURL             *string `json:"about_page_url,omitempty"`
	PhysicalAddress          *string `json:"physical_address,omitempty"`
	InstitutionalDescription *string `json:"institutional_description,omitempty"`
	InstitutionalSummary     *string `json:"institutional_summary,omitempty"`
	PrimaryCNPJ              *string `json:"primary_cnpj,omitempty"`
	RadicalCNPJ              *string `json:"radical_cnpj,omitempty"`
	CorporateGroupNotes      *string `json:"corporate_group_notes,omitempty"`

	FoundBrands   []string        `json:"found_brands,omitempty"`
	Relationships []OwnershipEdge `json:"relationships,omitempty"`

	// OriginCompany marks records sourced from the ranking fetch, as
	// opposed to companies synthesized during enrichment.
	OriginCompany bool `json:"origin_company"`

	// Run-scoped log correlation.
	RunID   string `json:"run_id,omitempty"`
	LogFile string `json:"log_file,omitempty"`
}

// SetPrimaryCNPJ normalizes raw and stores it only when exactly 14 digits
// remain; anything else nulls the field. Reports whether the value was
// accepted.
func (c *CompanyRecord) SetPrimaryCNPJ(raw string) bool {
	n := cnpj.Normalize(raw)
	if !cnpj.IsCNPJ(n) {
		c.PrimaryCNPJ = nil
		return false
	}
	c.PrimaryCNPJ = &n
	return true
}

// SetRadicalCNPJ accepts raw only when it is already digits-only and
// exactly 8 characters; no normalization is applied, so a formatted or
// truncated value from the extraction oracle is rejected outright.
func (c *CompanyRecord) SetRadicalCNPJ(raw string) bool {
	if !cnpj.IsRadical(raw) {
		c.RadicalCNPJ = nil
		return false
	}
	c.RadicalCNPJ = &raw
	return true
}

// ValidCNPJ returns the normalized primary CNPJ when present and
// shape-valid, else "".
func (c *CompanyRecord) ValidCNPJ() string {
	if c.PrimaryCNPJ == nil {
		return ""
	}
	if !cnpj.IsCNPJ(*c.PrimaryCNPJ) {
		return ""
	}
	return *c.PrimaryCNPJ
}

// Enriched reports whether discovery found at least a website or a CNPJ,
// the run summary's definition of an enriched company.
func (c *CompanyRecord) Enriched() bool {
	return (c.OfficialWebsite != nil && *c.OfficialWebsite != "") || c.ValidCNPJ() != ""
}

// Ptr returns a pointer to s, or nil for the empty string. Convenience
// for optional record fields.
func Ptr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
