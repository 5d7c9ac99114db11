// Package ingest writes enriched companies and their ownership edges to
// the graph store in idempotent batches. The batching protocol tolerates
// partial arrival: concurrent enrichment branches each deliver a one-
// company slice, and the flush policy guarantees none of them starves.
package ingest

import (
	"context"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/valor-intel/internal/model"
)

// GraphStore is the graph-write surface the ingestor needs. Every upsert
// must be idempotent by key: re-writing the same identifiers updates
// rather than duplicates.
type GraphStore interface {
	EnsureConstraints(ctx context.Context) error
	UpsertCompanies(ctx context.Context, companies []model.CompanyRecord) error
	UpsertOwnership(ctx context.Context, edges []model.OwnershipEdge) error
	Close(ctx context.Context) error
}

const companyUpsertQuery = `
UNWIND $companies AS row
MERGE (c:Company {cnpj: row.cnpj})
SET c.name = row.name,
    c.sede = row.sede,
    c.setor = row.setor,
    c.receita_liquida_milhoes = row.receita_liquida_milhoes,
    c.lucro_liquido_milhoes = row.lucro_liquido_milhoes,
    c.official_website = row.official_website,
    c.linkedin_url = row.linkedin_url,
    c.about_page_url = row.about_page_url,
    c.institutional_description = row.institutional_description,
    c.institutional_summary = row.institutional_summary,
    c.corporate_group_notes = row.corporate_group_notes
WITH c, row
UNWIND row.brands AS brand_name
MERGE (b:Brand {name: brand_name})
MERGE (c)-[:HAS_BRAND]->(b)`

// The FOREACH/CASE branching picks the source node label and the edge
// type per row; Cypher has no conditional MERGE.
const ownershipUpsertQuery = `
UNWIND $relationships AS rel
WITH rel
WHERE rel.source_id IS NOT NULL AND rel.target_id IS NOT NULL
MERGE (target:Company {cnpj: rel.target_id})
FOREACH (_ IN CASE WHEN rel.source_label = 'Person' THEN [1] ELSE [] END |
  MERGE (source:Person {cpf: rel.source_id})
  SET source.name = rel.source_name
  FOREACH (__ IN CASE WHEN rel.relationship_type = 'SUBSIDIARY_OF' THEN [1] ELSE [] END |
    MERGE (source)-[r:SUBSIDIARY_OF]->(target)
    SET r.percentage = rel.percentage
  )
  FOREACH (__ IN CASE WHEN rel.relationship_type = 'OWNS' THEN [1] ELSE [] END |
    MERGE (source)-[r:OWNS]->(target)
    SET r.percentage = rel.percentage, r.is_controller = rel.is_controller
  )
)
FOREACH (_ IN CASE WHEN rel.source_label <> 'Person' THEN [1] ELSE [] END |
  MERGE (source:Company {cnpj: rel.source_id})
  SET source.name = rel.source_name
  FOREACH (__ IN CASE WHEN rel.relationship_type = 'SUBSIDIARY_OF' THEN [1] ELSE [] END |
    MERGE (source)-[r:SUBSIDIARY_OF]->(target)
    SET r.percentage = rel.percentage
  )
  FOREACH (__ IN CASE WHEN rel.relationship_type = 'OWNS' THEN [1] ELSE [] END |
    MERGE (source)-[r:OWNS]->(target)
    SET r.percentage = rel.percentage, r.is_controller = rel.is_controller
  )
)`

var constraintQueries = []string{
	"CREATE CONSTRAINT company_cnpj IF NOT EXISTS FOR (c:Company) REQUIRE c.cnpj IS UNIQUE",
	"CREATE CONSTRAINT person_cpf IF NOT EXISTS FOR (p:Person) REQUIRE p.cpf IS UNIQUE",
	"CREATE CONSTRAINT brand_name IF NOT EXISTS FOR (b:Brand) REQUIRE b.name IS UNIQUE",
}

// Neo4jStore implements GraphStore on the Bolt driver.
type Neo4jStore struct {
	driver   neo4j.DriverWithContext
	database string
}

// Neo4jConfig carries the connection settings for NewNeo4jStore.
type Neo4jConfig struct {
	URI      string
	User     string
	Password string
	Database string // empty selects the server default
}

// NewNeo4jStore connects to Neo4j and verifies the connection.
func NewNeo4jStore(ctx context.Context, cfg Neo4jConfig) (*Neo4jStore, error) {
	driver, err := neo4j.NewDriverWithContext(cfg.URI, neo4j.BasicAuth(cfg.User, cfg.Password, ""))
	if err != nil {
		return nil, eris.Wrap(err, "neo4j: create driver")
	}
	if err := driver.VerifyConnectivity(ctx); err != nil {
		_ = driver.Close(ctx)
		return nil, eris.Wrap(err, "neo4j: verify connectivity")
	}
	return &Neo4jStore{driver: driver, database: cfg.Database}, nil
}

func (s *Neo4jStore) session(ctx context.Context) neo4j.SessionWithContext {
	return s.driver.NewSession(ctx, neo4j.SessionConfig{DatabaseName: s.database})
}

// EnsureConstraints creates the uniqueness constraints the merge keys
// rely on. Safe to call repeatedly.
func (s *Neo4jStore) EnsureConstraints(ctx context.Context) error {
	session := s.session(ctx)
	defer session.Close(ctx) //nolint:errcheck

	for _, query := range constraintQueries {
		if _, err := session.Run(ctx, query, nil); err != nil {
			return eris.Wrapf(err, "neo4j: constraint %q", query)
		}
	}
	zap.L().Debug("neo4j: constraints ensured")
	return nil
}

// UpsertCompanies merges company nodes (and their brand edges) keyed by
// normalized CNPJ. Companies without a valid CNPJ are the caller's
// problem; this layer writes what it is given.
func (s *Neo4jStore) UpsertCompanies(ctx context.Context, companies []model.CompanyRecord) error {
	if len(companies) == 0 {
		return nil
	}

	rows := make([]map[string]any, 0, len(companies))
	for _, c := range companies {
		rows = append(rows, companyRow(c))
	}

	session := s.session(ctx)
	defer session.Close(ctx) //nolint:errcheck

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		_, err := tx.Run(ctx, companyUpsertQuery, map[string]any{"companies": rows})
		return nil, err
	})
	if err != nil {
		return eris.Wrap(err, "neo4j: upsert companies")
	}
	return nil
}

// UpsertOwnership merges ownership edges, creating source and target
// nodes as needed.
func (s *Neo4jStore) UpsertOwnership(ctx context.Context, edges []model.OwnershipEdge) error {
	if len(edges) == 0 {
		return nil
	}

	rows := make([]map[string]any, 0, len(edges))
	for _, e := range edges {
		rows = append(rows, map[string]any{
			"source_id":         e.SourceID,
			"source_name":       nullable(e.SourceName),
			"source_label":      string(e.SourceLabel),
			"target_id":         e.TargetID,
			"relationship_type": string(e.Type),
			"percentage":        nullableFloat(e.Percentage),
			"is_controller":     e.IsController,
		})
	}

	session := s.session(ctx)
	defer session.Close(ctx) //nolint:errcheck

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		_, err := tx.Run(ctx, ownershipUpsertQuery, map[string]any{"relationships": rows})
		return nil, err
	})
	if err != nil {
		return eris.Wrap(err, "neo4j: upsert ownership")
	}
	return nil
}

// Close releases the driver.
func (s *Neo4jStore) Close(ctx context.Context) error {
	return s.driver.Close(ctx)
}

func companyRow(c model.CompanyRecord) map[string]any {
	brands := c.FoundBrands
	if brands == nil {
		brands = []string{}
	}
	return map[string]any{
		"cnpj":                      c.ValidCNPJ(),
		"name":                      c.Name,
		"sede":                      nullable(c.City),
		"setor":                     nullable(c.Sector),
		"receita_liquida_milhoes":   nullable(c.NetRevenueMillions),
		"lucro_liquido_milhoes":     nullable(c.NetProfitMillions),
		"official_website":          nullablePtr(c.OfficialWebsite),
		"linkedin_url":              nullablePtr(c.LinkedInURL),
		"about_page_url":            nullablePtr(c.AboutPageURL),
		"institutional_description": nullablePtr(c.InstitutionalDescription),
		"institutional_summary":     nullablePtr(c.InstitutionalSummary),
		"corporate_group_notes":     nullablePtr(c.CorporateGroupNotes),
		"brands":                    brands,
	}
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullablePtr(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}

func nullableFloat(f *float64) any {
	if f == nil {
		return nil
	}
	return *f
}
