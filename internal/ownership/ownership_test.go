package ownership

import (
	"context"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/valor-intel/internal/cvm"
	"github.com/sells-group/valor-intel/internal/model"
)

type fakeTables struct {
	rows    []cvm.ShareholdingRow
	bodies  []string
	rowsErr error
	govErr  error
}

func (f *fakeTables) Shareholding(ctx context.Context, companyCNPJ string) ([]cvm.ShareholdingRow, error) {
	return f.rows, f.rowsErr
}

func (f *fakeTables) Governance(ctx context.Context, companyCNPJ string) ([]string, error) {
	return f.bodies, f.govErr
}

func TestQualifies(t *testing.T) {
	tests := []struct {
		name    string
		sector  string
		revenue string
		want    bool
	}{
		{"holding sector", "Holdings Diversificadas", "100,0", true},
		{"oil sector case-insensitive", "PETRÓLEO e Gás", "", true},
		{"finance sector", "Finanças e Seguros", "", true},
		{"big revenue", "Varejo", "5.006,4", true},
		{"revenue at threshold", "Varejo", "5.000,0", false},
		{"small retail", "Varejo", "1.200,5", false},
		{"unparseable revenue", "Varejo", "n/d", false},
		{"empty everything", "", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Qualifies(tt.sector, tt.revenue))
		})
	}
}

func TestResolve_AggregatesByShareholder(t *testing.T) {
	tables := &fakeTables{rows: []cvm.ShareholdingRow{
		{ShareholderID: "00.394.460/0001-41", Name: "União Federal", Percentage: "28,67", Controller: "S"},
		{ShareholderID: "00394460000141", Name: "", Percentage: "36,75", Controller: "N"},
		{ShareholderID: "123.456.789-01", Name: "Fulano de Tal", Percentage: "0,50", Controller: "N"},
		{ShareholderID: "INVALID", Name: "Lixo", Percentage: "99", Controller: "S"},
	}}
	r := NewResolver(tables)

	res, err := r.Resolve(context.Background(), "33.000.167/0001-01")
	require.NoError(t, err)

	// União Federal: OWNS + derived SUBSIDIARY_OF. Fulano: OWNS only.
	require.Len(t, res.Edges, 3)
	assert.Equal(t, 4, res.RowCount)

	owns := res.Edges[0]
	assert.Equal(t, "00394460000141", owns.SourceID)
	assert.Equal(t, "União Federal", owns.SourceName, "first-seen name kept")
	assert.Equal(t, model.LabelCompany, owns.SourceLabel)
	assert.Equal(t, "33000167000101", owns.TargetID)
	assert.Equal(t, model.RelOwns, owns.Type)
	assert.True(t, owns.IsController, "controller flag ORed across rows")
	require.NotNil(t, owns.Percentage)
	assert.Equal(t, 36.75, *owns.Percentage, "max percentage wins")

	sub := res.Edges[1]
	assert.Equal(t, model.RelSubsidiaryOf, sub.Type)
	assert.Equal(t, "00394460000141", sub.SourceID)

	person := res.Edges[2]
	assert.Equal(t, model.LabelPerson, person.SourceLabel)
	assert.Equal(t, "12345678901", person.SourceID)
	assert.Equal(t, model.RelOwns, person.Type)
}

func TestResolve_SubsidiaryByMajorityStake(t *testing.T) {
	tables := &fakeTables{rows: []cvm.ShareholdingRow{
		{ShareholderID: "61155248000116", Name: "Holding X", Percentage: "60,00", Controller: "N"},
	}}
	res, err := NewResolver(tables).Resolve(context.Background(), "60746948000112")
	require.NoError(t, err)

	require.Len(t, res.Edges, 2)
	assert.Equal(t, model.RelSubsidiaryOf, res.Edges[1].Type)
}

func TestResolve_PersonControllerNeverSubsidiary(t *testing.T) {
	tables := &fakeTables{rows: []cvm.ShareholdingRow{
		{ShareholderID: "12345678901", Name: "Controladora Pessoa", Percentage: "80,00", Controller: "S"},
	}}
	res, err := NewResolver(tables).Resolve(context.Background(), "60746948000112")
	require.NoError(t, err)

	require.Len(t, res.Edges, 1)
	assert.Equal(t, model.RelOwns, res.Edges[0].Type)
	require.NotNil(t, res.Notes)
	assert.Equal(t, "Independent company", *res.Notes, "person controllers do not set group notes")
}

func TestResolve_Notes(t *testing.T) {
	t.Run("single controller", func(t *testing.T) {
		tables := &fakeTables{rows: []cvm.ShareholdingRow{
			{ShareholderID: "61155248000116", Name: "Itaúsa", Percentage: "66,5", Controller: "S"},
		}}
		res, err := NewResolver(tables).Resolve(context.Background(), "60746948000112")
		require.NoError(t, err)
		require.NotNil(t, res.Notes)
		assert.Equal(t, "Controlled by Itaúsa", *res.Notes)
	})

	t.Run("multiple controllers", func(t *testing.T) {
		tables := &fakeTables{rows: []cvm.ShareholdingRow{
			{ShareholderID: "61155248000116", Name: "Itaúsa", Percentage: "40", Controller: "S"},
			{ShareholderID: "33000167000101", Name: "Outra Holding", Percentage: "55,0", Controller: "N"},
		}}
		res, err := NewResolver(tables).Resolve(context.Background(), "60746948000112")
		require.NoError(t, err)
		require.NotNil(t, res.Notes)
		assert.Equal(t, "Controlled by Itaúsa (+1 other controller(s))", *res.Notes)
	})

	t.Run("no rows", func(t *testing.T) {
		res, err := NewResolver(&fakeTables{}).Resolve(context.Background(), "60746948000112")
		require.NoError(t, err)
		assert.Nil(t, res.Notes)
		assert.Empty(t, res.Edges)
	})
}

func TestResolve_InvalidCNPJSkips(t *testing.T) {
	tables := &fakeTables{rowsErr: eris.New("should not be called")}
	res, err := NewResolver(tables).Resolve(context.Background(), "123")
	require.NoError(t, err)
	assert.Empty(t, res.Edges)
	assert.Nil(t, res.Notes)
}

func TestResolve_GovernanceBestEffort(t *testing.T) {
	tables := &fakeTables{
		rows:   []cvm.ShareholdingRow{{ShareholderID: "61155248000116", Name: "X", Percentage: "10", Controller: "N"}},
		govErr: eris.New("governance table unavailable"),
	}
	res, err := NewResolver(tables).Resolve(context.Background(), "60746948000112")
	require.NoError(t, err, "governance failure never fails the resolve")
	assert.Empty(t, res.Governance)

	tables.govErr = nil
	tables.bodies = []string{"Conselho de Administração"}
	res, err = NewResolver(tables).Resolve(context.Background(), "60746948000112")
	require.NoError(t, err)
	assert.Equal(t, []string{"Conselho de Administração"}, res.Governance)
}

func TestResolve_ShareholdingErrorSurfaces(t *testing.T) {
	tables := &fakeTables{rowsErr: eris.New("csv unavailable")}
	_, err := NewResolver(tables).Resolve(context.Background(), "60746948000112")
	assert.Error(t, err)
}
