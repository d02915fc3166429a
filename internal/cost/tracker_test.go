package cost

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type flatPricer struct{}

func (flatPricer) Model() string { return "flat" }

func (flatPricer) EstimateCost(in, out int) float64 {
	return float64(in)/1_000_000*2 + float64(out)/1_000_000*10
}

func TestTrackerEnforcesLimit(t *testing.T) {
	tr := NewTracker(1.0)
	require.NoError(t, tr.AddCost(OperationRiskOfBias, 1000, 200, 0.6, "s1", "m"))

	err := tr.AddCost(OperationRiskOfBias, 1000, 200, 0.6, "s2", "m")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrBudgetExceeded))

	var budgetErr *BudgetExceededError
	require.True(t, errors.As(err, &budgetErr))
	assert.InDelta(t, 1.2, budgetErr.Current, 1e-9)
	assert.Equal(t, 1.0, budgetErr.Limit)

	assert.True(t, tr.Paused())
	assert.InDelta(t, 0.6, tr.TotalCost(), 1e-9)
	assert.Empty(t, tr.EntriesForStudy("s2"))

	tr.SetLimit(5)
	assert.False(t, tr.Paused())
	require.NoError(t, tr.AddCost(OperationRiskOfBias, 1000, 200, 0.6, "s2", "m"))
}

func TestTrackerUnlimited(t *testing.T) {
	tr := NewTracker(0)
	for i := 0; i < 10; i++ {
		require.NoError(t, tr.AddCost(OperationRiskOfBias, 10, 10, 100, "", "m"))
	}
	assert.InDelta(t, 1000, tr.TotalCost(), 1e-9)
	assert.False(t, tr.Summary().HasLimit)
}

func TestTrackerSummary(t *testing.T) {
	tr := NewTracker(10)
	require.NoError(t, tr.AddCost(OperationRiskOfBias, 100, 50, 1, "s1", "m"))
	require.NoError(t, tr.AddCost(OperationRiskOfBias, 200, 50, 2, "s2", "m"))
	require.NoError(t, tr.AddCost(OperationDesignDetection, 10, 5, 0.5, "s1", "m"))

	s := tr.Summary()
	assert.Equal(t, 3, s.TotalEntries)
	assert.Equal(t, 310, s.InputTokens)
	assert.InDelta(t, 6.5, s.RemainingBudget, 1e-9)
	assert.Equal(t, 2, s.ByOperation[OperationRiskOfBias].Count)
	assert.InDelta(t, 3, s.ByOperation[OperationRiskOfBias].TotalCost, 1e-9)
	assert.Len(t, tr.EntriesForStudy("s1"), 2)

	tr.Reset()
	assert.Zero(t, tr.Summary().TotalEntries)
}

func TestEstimate(t *testing.T) {
	est := EstimateFor(flatPricer{}, OperationRiskOfBias, 10, 0, 0)
	assert.Equal(t, 3000, est.AvgInputTokens)
	assert.Equal(t, 400, est.AvgOutputTokens)
	assert.Equal(t, "flat", est.Model)
	assert.InDelta(t, 30000.0/1e6*2+4000.0/1e6*10, est.EstimatedCost, 1e-9)

	custom := EstimateFor(flatPricer{}, OperationOther, 1, 100, 0)
	assert.Equal(t, 100, custom.AvgInputTokens)
	assert.Equal(t, 200, custom.AvgOutputTokens)
}
