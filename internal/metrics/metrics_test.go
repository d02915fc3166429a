package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRegisterTwice(t *testing.T) {
	reg := prometheus.NewRegistry()
	if err := Register(reg); err != nil {
		t.Fatalf("first register: %v", err)
	}
	if err := Register(reg); err != nil {
		t.Fatalf("second register should be tolerated: %v", err)
	}
}

func TestObserveAssessmentNormalisesOutcome(t *testing.T) {
	before := testutil.ToFloat64(assessmentsTotal.WithLabelValues("rob_2", OutcomeSuccess))
	ObserveAssessment("rob_2", -time.Second, "weird")
	after := testutil.ToFloat64(assessmentsTotal.WithLabelValues("rob_2", OutcomeSuccess))
	if after-before != 1 {
		t.Fatalf("expected unknown outcome to count as success, delta %v", after-before)
	}

	before = testutil.ToFloat64(assessmentsTotal.WithLabelValues("rob_2", OutcomeCached))
	ObserveAssessment("rob_2", time.Millisecond, OutcomeCached)
	if got := testutil.ToFloat64(assessmentsTotal.WithLabelValues("rob_2", OutcomeCached)) - before; got != 1 {
		t.Fatalf("expected cached delta 1, got %v", got)
	}
}

func TestObserveJudgmentSkipsZeroFlagged(t *testing.T) {
	before := testutil.ToFloat64(flaggedDomainsTotal.WithLabelValues("quadas_2"))
	ObserveJudgment("quadas_2", "Low Risk", 0)
	ObserveJudgment("quadas_2", "Unclear", 3)
	if got := testutil.ToFloat64(flaggedDomainsTotal.WithLabelValues("quadas_2")) - before; got != 3 {
		t.Fatalf("expected 3 flagged domains, got %v", got)
	}
}

func TestObserveLLMUsage(t *testing.T) {
	costBefore := testutil.ToFloat64(llmCostUSD.WithLabelValues("detection", "m"))
	inBefore := testutil.ToFloat64(llmTokensTotal.WithLabelValues("detection", "input"))
	ObserveLLMUsage("detection", "m", 120, 30, 0.25)
	ObserveLLMUsage("detection", "m", 10, 5, 0)
	if got := testutil.ToFloat64(llmCostUSD.WithLabelValues("detection", "m")) - costBefore; got != 0.25 {
		t.Fatalf("unexpected cost delta %v", got)
	}
	if got := testutil.ToFloat64(llmTokensTotal.WithLabelValues("detection", "input")) - inBefore; got != 130 {
		t.Fatalf("unexpected input token delta %v", got)
	}
}
