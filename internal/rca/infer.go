package rca

import "github.com/steveyegge/rcagov/internal/types"

// InferCategory guesses a root cause category from where a failure was
// detected. It is the default for CAPAs created without one.
func InferCategory(trigger types.TriggerSource, scope types.ScopeType) types.RootCauseCategory {
	switch trigger {
	case types.TriggerTestFailure:
		return types.CategoryTestCoverageGap
	case types.TriggerCIPipeline:
		return types.CategoryInfrastructure
	case types.TriggerQualityGate:
		if scope == types.ScopeSD {
			return types.CategoryRequirementsAmbiguity
		}
	case types.TriggerSubAgent:
		return types.CategoryCodeDefect
	case types.TriggerRuntime:
		return types.CategoryEnvironmental
	case types.TriggerHandoffRejection:
		return types.CategoryProcessGap
	}
	return types.CategoryCodeDefect
}
