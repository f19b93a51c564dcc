package appointment

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckTransitionTable(t *testing.T) {
	tests := []struct {
		from, to Status
		kind     ActorKind
		wantErr  any
	}{
		{StatusRequested, StatusConfirmed, ActorStaff, nil},
		{StatusRequested, StatusConfirmed, ActorPatient, &DeniedError{}},
		{StatusRequested, StatusCancelled, ActorPatient, nil},
		{StatusPlanned, StatusConfirmed, ActorStaff, nil},
		{StatusPlanned, StatusCancelled, ActorPatient, nil},
		{StatusConfirmed, StatusInProgress, ActorStaff, nil},
		{StatusConfirmed, StatusInProgress, ActorPatient, &DeniedError{}},
		{StatusConfirmed, StatusCancelled, ActorPatient, nil},
		{StatusInProgress, StatusCompleted, ActorStaff, nil},
		{StatusInProgress, StatusCancelled, ActorStaff, nil},
		{StatusInProgress, StatusCancelled, ActorPatient, &DeniedError{}},
		{StatusRequested, StatusInProgress, ActorStaff, &InvalidTransitionError{}},
		{StatusPlanned, StatusCompleted, ActorStaff, &InvalidTransitionError{}},
		{StatusCancelled, StatusCancelled, ActorStaff, &InvalidTransitionError{}},
		{StatusCompleted, StatusCancelled, ActorStaff, &InvalidTransitionError{}},
		{StatusCancelled, StatusPlanned, ActorStaff, &InvalidTransitionError{}},
		{StatusConfirmed, StatusPlanned, ActorStaff, &InvalidTransitionError{}},
	}

	for _, tc := range tests {
		t.Run(string(tc.from)+"->"+string(tc.to)+"/"+string(tc.kind), func(t *testing.T) {
			err := CheckTransition(tc.from, tc.to, tc.kind)
			switch tc.wantErr.(type) {
			case nil:
				assert.NoError(t, err)
			case *DeniedError:
				var target *DeniedError
				assert.ErrorAs(t, err, &target)
			case *InvalidTransitionError:
				var target *InvalidTransitionError
				require.ErrorAs(t, err, &target)
				assert.Equal(t, tc.from, target.From)
				assert.Equal(t, tc.to, target.To)
			}
		})
	}
}

func TestTerminalStatusesHaveNoOutgoingEdges(t *testing.T) {
	for e := range transitions {
		assert.False(t, e.from.Terminal(), "edge out of terminal status %s", e.from)
	}
}

func TestInitialStatus(t *testing.T) {
	assert.Equal(t, StatusPlanned, InitialStatus(ActorStaff))
	assert.Equal(t, StatusRequested, InitialStatus(ActorPatient))
}
