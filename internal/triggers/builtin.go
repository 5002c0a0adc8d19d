package triggers

import "github.com/steveyegge/rcagov/internal/types"

var builtinTriggers = []Trigger{
	// Tier 1: a whole run or phase failed
	{Code: "PIPELINE_FAILED", Tier: 1, Source: types.TriggerCIPipeline,
		Description: "T1: CI pipeline run finished in a failed state",
		DefaultImpact: types.ImpactHigh, DefaultLikelihood: types.LikelihoodOccasional},
	{Code: "QUALITY_GATE_FAILED", Tier: 1, Source: types.TriggerQualityGate,
		Description: "T1: Quality gate score fell below the phase threshold",
		DefaultImpact: types.ImpactHigh, DefaultLikelihood: types.LikelihoodOccasional},
	{Code: "HANDOFF_REJECTED", Tier: 1, Source: types.TriggerHandoffRejection,
		Description: "T1: Phase handoff was rejected by its validator",
		DefaultImpact: types.ImpactMedium, DefaultLikelihood: types.LikelihoodOccasional},

	// Tier 2: a suite or agent verdict failed
	{Code: "TEST_SUITE_FAILED", Tier: 2, Source: types.TriggerTestFailure,
		Description: "T2: Test suite reported one or more failures",
		DefaultImpact: types.ImpactHigh, DefaultLikelihood: types.LikelihoodOccasional},
	{Code: "SUB_AGENT_BLOCKED", Tier: 2, Source: types.TriggerSubAgent,
		Description: "T2: Sub-agent returned a BLOCKED verdict",
		DefaultImpact: types.ImpactHigh, DefaultLikelihood: types.LikelihoodRare},
	{Code: "BUILD_BROKEN", Tier: 2, Source: types.TriggerCIPipeline,
		Description: "T2: Build or type check failed",
		DefaultImpact: types.ImpactCritical, DefaultLikelihood: types.LikelihoodOccasional},

	// Tier 3: a specific behavior broke
	{Code: "TEST_REGRESSION", Tier: 3, Source: types.TriggerTestFailure,
		Description: "T3: Previously passing test now fails",
		DefaultImpact: types.ImpactHigh, DefaultLikelihood: types.LikelihoodFrequent},
	{Code: "RUNTIME_EXCEPTION", Tier: 3, Source: types.TriggerRuntime,
		Description: "T3: Unhandled exception in a running service",
		DefaultImpact: types.ImpactCritical, DefaultLikelihood: types.LikelihoodOccasional},
	{Code: "SUB_AGENT_CONDITIONAL", Tier: 3, Source: types.TriggerSubAgent,
		Description: "T3: Sub-agent passed conditionally with critical findings",
		DefaultImpact: types.ImpactMedium, DefaultLikelihood: types.LikelihoodOccasional},

	// Tier 4: drift, flakes and operator observations
	{Code: "FLAKY_TEST", Tier: 4, Source: types.TriggerTestFailure,
		Description: "T4: Test both passes and fails on identical inputs",
		DefaultImpact: types.ImpactMedium, DefaultLikelihood: types.LikelihoodFrequent},
	{Code: "RUNTIME_DEGRADATION", Tier: 4, Source: types.TriggerRuntime,
		Description: "T4: Latency or error rate drifted past its baseline",
		DefaultImpact: types.ImpactMedium, DefaultLikelihood: types.LikelihoodOccasional},
	{Code: "MANUAL_OBSERVATION", Tier: 4, Source: types.TriggerManual,
		Description: "T4: Operator reported an anomaly with evidence",
		DefaultImpact: types.ImpactLow, DefaultLikelihood: types.LikelihoodRare},
}

// Builtin returns a registry holding the twelve standard triggers.
func Builtin() *Registry {
	r := NewRegistry()
	for _, t := range builtinTriggers {
		if err := r.Register(t); err != nil {
			panic("invalid builtin trigger: " + err.Error())
		}
	}
	return r
}
