package model

// TokenUsage tallies LLM consumption. Purely additive so concurrent
// branch deltas can be summed in any order.
type TokenUsage struct {
	Requests     int     `json:"requests"`
	InputTokens  int     `json:"input_tokens"`
	OutputTokens int     `json:"output_tokens"`
	TotalTokens  int     `json:"total_tokens"`
	CostUSD      float64 `json:"cost_usd"`
}

// Add sums other into u.
func (u *TokenUsage) Add(other TokenUsage) {
	u.Requests += other.Requests
	u.InputTokens += other.InputTokens
	u.OutputTokens += other.OutputTokens
	u.TotalTokens += other.TotalTokens
	u.CostUSD += other.CostUSD
}

// Delta is everything a single fan-out branch produced. Branches never
// touch shared state: each returns one Delta and a single reducer folds
// deltas into RunState, so completion order cannot lose updates.
type Delta struct {
	Company               *CompanyRecord
	Logs                  []string
	InstitutionalMarkdown []string
	IngestedIDs           []string
	Usage                 TokenUsage
}

// RunState is the merged outcome of a discovery run.
type RunState struct {
	InitialURL            string
	Companies             []CompanyRecord
	Logs                  []string
	InstitutionalMarkdown []string
	IngestedIDs           []string
	Usage                 TokenUsage
}

// Apply folds one branch delta into the run state. Append/sum only:
// nothing is ever overwritten, so the merge is commutative across
// branches up to slice ordering.
func (s *RunState) Apply(d Delta) {
	if d.Company != nil {
		s.Companies = append(s.Companies, *d.Company)
	}
	s.Logs = append(s.Logs, d.Logs...)
	s.InstitutionalMarkdown = append(s.InstitutionalMarkdown, d.InstitutionalMarkdown...)
	s.IngestedIDs = append(s.IngestedIDs, d.IngestedIDs...)
	s.Usage.Add(d.Usage)
}
