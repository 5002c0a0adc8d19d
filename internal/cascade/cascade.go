// Package cascade maps CAPA status changes onto the owning report.
//
// A report moves past IN_REVIEW only through its CAPA. Each CAPA transition
// has exactly one report transition; Propagate looks it up. The caller
// applies the effect in the same transaction as the CAPA write, so a
// rejected cascade rolls the CAPA change back too.
package cascade

import (
	"fmt"

	"github.com/steveyegge/rcagov/internal/types"
)

// Effect is the report change required by a CAPA transition.
type Effect struct {
	// Target is the report's new status
	Target types.ReportStatus

	// StampResolved sets resolved_at on the report
	StampResolved bool

	// Ingest harvests a learning record once the report is resolved
	Ingest bool
}

// rule is one row of the cascade table.
type rule struct {
	from   []types.ReportStatus
	effect Effect
}

// rules is keyed by the status the CAPA is moving to.
var rules = map[types.CAPAStatus]rule{
	types.CAPAStatusPending: {
		from:   []types.ReportStatus{types.ReportStatusOpen, types.ReportStatusInReview},
		effect: Effect{Target: types.ReportStatusCAPAPending},
	},
	types.CAPAStatusApproved: {
		from:   []types.ReportStatus{types.ReportStatusCAPAPending},
		effect: Effect{Target: types.ReportStatusCAPAApproved},
	},
	types.CAPAStatusInProgress: {
		from:   []types.ReportStatus{types.ReportStatusCAPAApproved},
		effect: Effect{Target: types.ReportStatusFixInProgress},
	},
	types.CAPAStatusVerified: {
		from:   []types.ReportStatus{types.ReportStatusFixInProgress},
		effect: Effect{Target: types.ReportStatusResolved, StampResolved: true, Ingest: true},
	},
	types.CAPAStatusRejected: {
		from:   []types.ReportStatus{types.ReportStatusCAPAPending, types.ReportStatusCAPAApproved, types.ReportStatusFixInProgress},
		effect: Effect{Target: types.ReportStatusInReview},
	},
	types.CAPAStatusAbandoned: {
		from:   []types.ReportStatus{types.ReportStatusCAPAPending, types.ReportStatusCAPAApproved, types.ReportStatusFixInProgress},
		effect: Effect{Target: types.ReportStatusInReview},
	},
}

// Propagate returns the report change for a CAPA entering capaStatus while
// its report is in reportStatus. Any pairing outside the table is an
// InvalidTransitionError; the caller fills in the report ID.
func Propagate(capaStatus types.CAPAStatus, reportStatus types.ReportStatus) (Effect, error) {
	r, ok := rules[capaStatus]
	if !ok {
		return Effect{}, &types.InvalidTransitionError{
			Entity: types.EntityReport,
			From:   string(reportStatus),
			To:     "?",
			Reason: fmt.Sprintf("no cascade for capa status %s", capaStatus),
		}
	}
	for _, s := range r.from {
		if s == reportStatus {
			return r.effect, nil
		}
	}
	return Effect{}, &types.InvalidTransitionError{
		Entity: types.EntityReport,
		From:   string(reportStatus),
		To:     string(r.effect.Target),
		Reason: fmt.Sprintf("capa moving to %s requires report in %v", capaStatus, r.from),
	}
}
