// Package review implements the human approval workflow over staged
// enrichment drafts: approve, reject, edit, and the final commit that
// promotes approved drafts into the live subjects table.
package review

import (
	"fmt"

	"github.com/deadonfilm/deadonfilm/internal/model"
)

// transitions is the allowed state machine for staging records. Rejected
// and committed are terminal. Approved records may still be edited before
// the commit lands.
var transitions = map[model.StagingStatus][]model.StagingStatus{
	model.StagingPending:  {model.StagingApproved, model.StagingRejected, model.StagingEdited},
	model.StagingApproved: {model.StagingCommitted, model.StagingEdited},
	model.StagingEdited:   {model.StagingCommitted, model.StagingEdited},
}

// CanTransition reports whether a staging record may move from one status
// to another.
func CanTransition(from, to model.StagingStatus) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// TransitionError reports an attempted move the state machine forbids.
type TransitionError struct {
	StagingID string
	From      model.StagingStatus
	To        model.StagingStatus
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("review: staging record %s cannot move from %s to %s", e.StagingID, e.From, e.To)
}
