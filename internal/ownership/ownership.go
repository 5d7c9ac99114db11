// Package ownership resolves a company's shareholding structure from the
// CVM FRE tables into typed ownership edges. The resolution is fully
// deterministic: no LLM touches identifiers or percentages.
package ownership

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/sells-group/valor-intel/internal/brnum"
	"github.com/sells-group/valor-intel/internal/cnpj"
	"github.com/sells-group/valor-intel/internal/cvm"
	"github.com/sells-group/valor-intel/internal/model"
)

// deepSearchKeywords qualify a company for ownership resolution by
// sector, matched as case-insensitive substrings.
var deepSearchKeywords = []string{"holding", "petróleo", "finanças"}

// revenueThresholdMillions qualifies a company by size when the sector
// keywords miss.
const revenueThresholdMillions = 5000

// Qualifies reports whether a company warrants the deep ownership search:
// a qualifying sector, or net revenue above the threshold.
func Qualifies(sector, netRevenueMillions string) bool {
	s := strings.ToLower(sector)
	for _, kw := range deepSearchKeywords {
		if strings.Contains(s, kw) {
			return true
		}
	}
	if v, ok := brnum.ParseFloat(netRevenueMillions); ok && v > revenueThresholdMillions {
		return true
	}
	return false
}

// Resolution is the outcome of one ownership resolve.
type Resolution struct {
	Edges      []model.OwnershipEdge
	Notes      *string  // corporate-group summary, nil when no rows matched
	Governance []string // administration bodies, best-effort
	RowCount   int      // raw FRE rows matched before aggregation
}

// Tables is the FRE lookup surface the resolver needs; *cvm.Cache
// satisfies it.
type Tables interface {
	Shareholding(ctx context.Context, companyCNPJ string) ([]cvm.ShareholdingRow, error)
	Governance(ctx context.Context, companyCNPJ string) ([]string, error)
}

// Resolver aggregates FRE shareholding rows into ownership edges.
type Resolver struct {
	cache Tables
}

// NewResolver builds a Resolver over the FRE tables.
func NewResolver(cache Tables) *Resolver {
	return &Resolver{cache: cache}
}

// Resolve looks up the company's shareholders and aggregates them into
// one OWNS edge per shareholder, plus a derived SUBSIDIARY_OF edge for
// each eligible corporate controller. Requires a shape-valid CNPJ.
func (r *Resolver) Resolve(ctx context.Context, companyCNPJ string) (*Resolution, error) {
	target := cnpj.Normalize(companyCNPJ)
	if !cnpj.IsCNPJ(target) {
		return &Resolution{}, nil
	}

	rows, err := r.cache.Shareholding(ctx, target)
	if err != nil {
		return nil, err
	}

	res := aggregate(target, rows)

	if bodies, err := r.cache.Governance(ctx, target); err != nil {
		zap.L().Warn("ownership: governance lookup failed",
			zap.String("cnpj", target),
			zap.Error(err),
		)
	} else {
		res.Governance = bodies
	}

	zap.L().Info("ownership: resolved",
		zap.String("cnpj", target),
		zap.Int("rows", res.RowCount),
		zap.Int("edges", len(res.Edges)),
	)
	return res, nil
}

// aggregate folds raw rows into per-shareholder edges. Repeated rows for
// one shareholder keep the first-seen name, OR the controller flag, and
// the maximum percentage.
func aggregate(target string, rows []cvm.ShareholdingRow) *Resolution {
	type entry struct {
		name       string
		label      model.SourceLabel
		percentage *float64
		controller bool
	}

	byID := make(map[string]*entry)
	var order []string

	for _, row := range rows {
		id := cnpj.Normalize(row.ShareholderID)
		var label model.SourceLabel
		switch {
		case cnpj.IsCPF(id):
			label = model.LabelPerson
		case cnpj.IsCNPJ(id):
			label = model.LabelCompany
		default:
			continue
		}

		var pct *float64
		if v, ok := brnum.ParseFloat(row.Percentage); ok {
			pct = &v
		}
		controller := strings.EqualFold(strings.TrimSpace(row.Controller), "S")
		name := strings.TrimSpace(row.Name)

		e, ok := byID[id]
		if !ok {
			byID[id] = &entry{name: name, label: label, percentage: pct, controller: controller}
			order = append(order, id)
			continue
		}
		if e.name == "" && name != "" {
			e.name = name
		}
		e.controller = e.controller || controller
		if pct != nil && (e.percentage == nil || *pct > *e.percentage) {
			e.percentage = pct
		}
	}

	res := &Resolution{RowCount: len(rows)}
	var controllerNames []string

	for _, id := range order {
		e := byID[id]
		owns := model.OwnershipEdge{
			SourceID:     id,
			SourceName:   e.name,
			SourceLabel:  e.label,
			TargetID:     target,
			Type:         model.RelOwns,
			Percentage:   e.percentage,
			IsController: e.controller,
		}
		res.Edges = append(res.Edges, owns)

		if owns.SubsidiaryEligible() {
			sub := owns
			sub.Type = model.RelSubsidiaryOf
			res.Edges = append(res.Edges, sub)

			name := e.name
			if name == "" {
				name = "Unknown"
			}
			controllerNames = append(controllerNames, name)
		}
	}

	res.Notes = groupNotes(controllerNames, len(order))
	return res
}

func groupNotes(controllers []string, shareholders int) *string {
	if len(controllers) > 0 {
		note := fmt.Sprintf("Controlled by %s", controllers[0])
		if n := len(controllers) - 1; n > 0 {
			note = fmt.Sprintf("%s (+%d other controller(s))", note, n)
		}
		return &note
	}
	if shareholders > 0 {
		note := "Independent company"
		return &note
	}
	return nil
}
