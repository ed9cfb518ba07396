package review

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/deadonfilm/deadonfilm/internal/model"
)

func TestCanTransition(t *testing.T) {
	cases := []struct {
		from, to model.StagingStatus
		want     bool
	}{
		{model.StagingPending, model.StagingApproved, true},
		{model.StagingPending, model.StagingRejected, true},
		{model.StagingPending, model.StagingEdited, true},
		{model.StagingPending, model.StagingCommitted, false},
		{model.StagingApproved, model.StagingCommitted, true},
		{model.StagingApproved, model.StagingEdited, true},
		{model.StagingApproved, model.StagingRejected, false},
		{model.StagingEdited, model.StagingCommitted, true},
		{model.StagingEdited, model.StagingEdited, true},
		{model.StagingEdited, model.StagingApproved, false},
		{model.StagingRejected, model.StagingApproved, false},
		{model.StagingRejected, model.StagingCommitted, false},
		{model.StagingCommitted, model.StagingEdited, false},
		{model.StagingCommitted, model.StagingRejected, false},
	}

	for _, tc := range cases {
		assert.Equal(t, tc.want, CanTransition(tc.from, tc.to), "%s -> %s", tc.from, tc.to)
	}
}

func TestTransitionError_Message(t *testing.T) {
	err := &TransitionError{
		StagingID: "stg-1",
		From:      model.StagingRejected,
		To:        model.StagingApproved,
	}
	assert.Equal(t, "review: staging record stg-1 cannot move from rejected to approved", err.Error())
}
