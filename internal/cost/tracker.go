package cost

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/miradorstack/mirador-rob/internal/utils"
)

// Operation labels a class of LLM call for accounting.
type Operation string

const (
	OperationRiskOfBias      Operation = "risk_of_bias"
	OperationDesignDetection Operation = "study_design_detection"
	OperationOther           Operation = "other"
)

// ErrBudgetExceeded is matched by errors.Is on every *BudgetExceededError.
var ErrBudgetExceeded = errors.New("budget exceeded")

// BudgetExceededError reports the total that would have crossed the limit.
type BudgetExceededError struct {
	Current   float64
	Limit     float64
	Operation Operation
}

func (e *BudgetExceededError) Error() string {
	return fmt.Sprintf("budget exceeded during %s: current $%.4f, limit $%.2f", e.Operation, e.Current, e.Limit)
}

// Is lets errors.Is(err, ErrBudgetExceeded) match.
func (e *BudgetExceededError) Is(target error) bool {
	return target == ErrBudgetExceeded
}

// Entry is a single accounted LLM call.
type Entry struct {
	Operation    Operation `json:"operation"`
	InputTokens  int       `json:"input_tokens"`
	OutputTokens int       `json:"output_tokens"`
	Cost         float64   `json:"cost"`
	StudyID      string    `json:"study_id,omitempty"`
	Model        string    `json:"model,omitempty"`
	Timestamp    time.Time `json:"timestamp"`
}

// OperationSummary aggregates entries for one operation.
type OperationSummary struct {
	Count        int     `json:"count"`
	TotalCost    float64 `json:"total_cost"`
	InputTokens  int     `json:"total_input_tokens"`
	OutputTokens int     `json:"total_output_tokens"`
}

// Summary is a snapshot of tracked spend.
type Summary struct {
	TotalCost       float64                        `json:"total_cost"`
	BudgetLimit     float64                        `json:"budget_limit"`
	RemainingBudget float64                        `json:"remaining_budget"`
	HasLimit        bool                           `json:"has_limit"`
	TotalEntries    int                            `json:"total_entries"`
	InputTokens     int                            `json:"total_input_tokens"`
	OutputTokens    int                            `json:"total_output_tokens"`
	ByOperation     map[Operation]OperationSummary `json:"by_operation"`
}

// Pricer prices token counts for one model.
type Pricer interface {
	Model() string
	EstimateCost(inputTokens, outputTokens int) float64
}

// Estimate is a pre-run cost projection.
type Estimate struct {
	Operation       Operation `json:"operation"`
	Items           int       `json:"n_items"`
	AvgInputTokens  int       `json:"avg_input_tokens"`
	AvgOutputTokens int       `json:"avg_output_tokens"`
	EstimatedCost   float64   `json:"estimated_cost"`
	Model           string    `json:"model"`
}

var defaultTokenEstimates = map[Operation][2]int{
	OperationRiskOfBias:      {3000, 400},
	OperationDesignDetection: {1500, 150},
}

// Tracker accumulates LLM spend and enforces an optional ceiling.
// A limit of zero or less means unlimited.
type Tracker struct {
	mu      sync.Mutex
	limit   float64
	entries []Entry
	paused  bool
	now     utils.Clock
}

// NewTracker returns a tracker with the given USD limit.
func NewTracker(limit float64) *Tracker {
	return &Tracker{limit: limit, now: utils.SystemClock}
}

// AddCost records a call. When the new total would exceed the limit the entry is
// dropped, the tracker is paused, and a *BudgetExceededError is returned.
func (t *Tracker) AddCost(op Operation, inputTokens, outputTokens int, cost float64, studyID, model string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	newTotal := t.totalLocked() + cost
	if t.limit > 0 && newTotal > t.limit {
		t.paused = true
		return &BudgetExceededError{Current: newTotal, Limit: t.limit, Operation: op}
	}
	t.entries = append(t.entries, Entry{
		Operation:    op,
		InputTokens:  inputTokens,
		OutputTokens: outputTokens,
		Cost:         cost,
		StudyID:      studyID,
		Model:        model,
		Timestamp:    t.now(),
	})
	return nil
}

// TotalCost returns the accumulated spend.
func (t *Tracker) TotalCost() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.totalLocked()
}

func (t *Tracker) totalLocked() float64 {
	total := 0.0
	for _, e := range t.entries {
		total += e.Cost
	}
	return total
}

// Paused reports whether the limit has been hit since the last SetLimit or Reset.
func (t *Tracker) Paused() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.paused
}

// SetLimit replaces the limit and clears the paused state.
func (t *Tracker) SetLimit(limit float64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.limit = limit
	t.paused = false
}

// Reset discards all entries.
func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.entries = nil
	t.paused = false
}

// EntriesForStudy returns the entries attributed to studyID.
func (t *Tracker) EntriesForStudy(studyID string) []Entry {
	t.mu.Lock()
	defer t.mu.Unlock()
	var out []Entry
	for _, e := range t.entries {
		if e.StudyID == studyID {
			out = append(out, e)
		}
	}
	return out
}

// Summary returns totals overall and per operation.
func (t *Tracker) Summary() Summary {
	t.mu.Lock()
	defer t.mu.Unlock()

	total := t.totalLocked()
	s := Summary{
		TotalCost:    total,
		BudgetLimit:  t.limit,
		HasLimit:     t.limit > 0,
		TotalEntries: len(t.entries),
		ByOperation:  make(map[Operation]OperationSummary),
	}
	if s.HasLimit {
		s.RemainingBudget = t.limit - total
		if s.RemainingBudget < 0 {
			s.RemainingBudget = 0
		}
	}
	for _, e := range t.entries {
		s.InputTokens += e.InputTokens
		s.OutputTokens += e.OutputTokens
		op := s.ByOperation[e.Operation]
		op.Count++
		op.TotalCost += e.Cost
		op.InputTokens += e.InputTokens
		op.OutputTokens += e.OutputTokens
		s.ByOperation[e.Operation] = op
	}
	return s
}

// EstimateFor projects the cost of n calls. Zero averages fall back to per-operation defaults.
func EstimateFor(pricer Pricer, op Operation, n, avgInput, avgOutput int) Estimate {
	defaults, ok := defaultTokenEstimates[op]
	if !ok {
		defaults = [2]int{500, 200}
	}
	if avgInput <= 0 {
		avgInput = defaults[0]
	}
	if avgOutput <= 0 {
		avgOutput = defaults[1]
	}
	est := Estimate{
		Operation:       op,
		Items:           n,
		AvgInputTokens:  avgInput,
		AvgOutputTokens: avgOutput,
	}
	if pricer != nil {
		est.Model = pricer.Model()
		est.EstimatedCost = pricer.EstimateCost(avgInput*n, avgOutput*n)
	}
	return est
}
