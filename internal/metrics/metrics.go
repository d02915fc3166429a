package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	// OutcomeSuccess labels successful operations.
	OutcomeSuccess = "success"
	// OutcomeError labels failed operations.
	OutcomeError = "error"
	// OutcomeCached labels assessments served without an LLM call.
	OutcomeCached = "cached"
	// OutcomeBudget labels operations stopped by the cost ceiling.
	OutcomeBudget = "budget_exceeded"
)

var (
	assessmentsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "mirador_rob",
			Name:      "assessments_total",
			Help:      "Total number of study assessments handled, partitioned by tool and outcome.",
		},
		[]string{"tool", "outcome"},
	)

	assessmentDurationSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "mirador_rob",
			Name:      "assessment_seconds",
			Help:      "Assessment latency in seconds, including the LLM round-trip.",
			Buckets:   []float64{0.05, 0.25, 1, 2, 5, 10, 20, 30, 60, 120},
		},
	)

	overallJudgmentsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "mirador_rob",
			Name:      "overall_judgments_total",
			Help:      "Overall judgments produced by fresh assessments.",
		},
		[]string{"tool", "judgment"},
	)

	flaggedDomainsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "mirador_rob",
			Name:      "flagged_domains_total",
			Help:      "Domain judgments flagged for mandatory human review.",
		},
		[]string{"tool"},
	)

	llmCostUSD = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "mirador_rob",
			Name:      "llm_cost_usd_total",
			Help:      "Accumulated LLM spend in US dollars.",
		},
		[]string{"operation", "model"},
	)

	llmTokensTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "mirador_rob",
			Name:      "llm_tokens_total",
			Help:      "LLM tokens consumed, partitioned by direction.",
		},
		[]string{"operation", "direction"},
	)

	detectionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "mirador_rob",
			Name:      "design_detections_total",
			Help:      "Study design detections, partitioned by method.",
		},
		[]string{"method"},
	)

	batchStopsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "mirador_rob",
			Name:      "batch_stops_total",
			Help:      "Batch runs stopped early by the budget ceiling.",
		},
		[]string{"kind"},
	)

	verificationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "mirador_rob",
			Name:      "verifications_total",
			Help:      "Human verifications, partitioned by audit action.",
		},
		[]string{"action"},
	)
)

// Register attaches mirador-rob collectors to the supplied Prometheus registerer.
func Register(reg prometheus.Registerer) error {
	collectors := []prometheus.Collector{
		assessmentsTotal,
		assessmentDurationSeconds,
		overallJudgmentsTotal,
		flaggedDomainsTotal,
		llmCostUSD,
		llmTokensTotal,
		detectionsTotal,
		batchStopsTotal,
		verificationsTotal,
	}

	for _, collector := range collectors {
		if err := reg.Register(collector); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); ok {
				continue
			}
			return err
		}
	}
	return nil
}

// ObserveAssessment records an assessment duration and outcome label.
func ObserveAssessment(tool string, duration time.Duration, outcome string) {
	switch outcome {
	case OutcomeError, OutcomeCached, OutcomeBudget:
	default:
		outcome = OutcomeSuccess
	}
	assessmentsTotal.WithLabelValues(tool, outcome).Inc()
	if duration < 0 {
		duration = 0
	}
	assessmentDurationSeconds.Observe(duration.Seconds())
}

// ObserveJudgment records the overall judgment and flagged domain count of a fresh assessment.
func ObserveJudgment(tool, judgment string, flagged int) {
	overallJudgmentsTotal.WithLabelValues(tool, judgment).Inc()
	if flagged > 0 {
		flaggedDomainsTotal.WithLabelValues(tool).Add(float64(flagged))
	}
}

// ObserveLLMUsage records the spend and token counts of one LLM call.
func ObserveLLMUsage(operation, model string, inputTokens, outputTokens int, cost float64) {
	if cost > 0 {
		llmCostUSD.WithLabelValues(operation, model).Add(cost)
	}
	llmTokensTotal.WithLabelValues(operation, "input").Add(float64(inputTokens))
	llmTokensTotal.WithLabelValues(operation, "output").Add(float64(outputTokens))
}

// ObserveDetection counts a design detection by method.
func ObserveDetection(method string) {
	detectionsTotal.WithLabelValues(method).Inc()
}

// ObserveBatchStop counts a batch stopped by the budget. kind is "assessment" or "detection".
func ObserveBatchStop(kind string) {
	batchStopsTotal.WithLabelValues(kind).Inc()
}

// ObserveVerification counts a verification by audit action.
func ObserveVerification(action string) {
	verificationsTotal.WithLabelValues(action).Inc()
}
