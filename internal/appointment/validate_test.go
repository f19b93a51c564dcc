package appointment

import (
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validNew() NewAppointment {
	return NewAppointment{
		PatientID:       uuid.New(),
		PractitionerID:  uuid.New(),
		Start:           time.Date(2030, 3, 4, 9, 0, 0, 0, time.UTC),
		DurationMinutes: 30,
		Kind:            KindConsultation,
		Reason:          "annual check",
	}
}

func requireValidationField(t *testing.T, err error, field string) {
	t.Helper()
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, field, verr.Field)
}

func TestNormalizeAppliesDefaults(t *testing.T) {
	n := validNew()
	n.DurationMinutes = 0
	n.Kind = ""
	blank := "   "
	n.Notes = &blank
	n.Reason = "  follow-up  "
	n.Start = time.Date(2030, 3, 4, 10, 0, 0, 250_000_000, time.FixedZone("CET", 3600))

	n.normalize()

	assert.Equal(t, DefaultDurationMinutes, n.DurationMinutes)
	assert.Equal(t, KindConsultation, n.Kind)
	assert.Equal(t, "follow-up", n.Reason)
	assert.Nil(t, n.Notes)
	assert.Equal(t, time.UTC, n.Start.Location())
	assert.Equal(t, 9, n.Start.Hour())
	assert.Zero(t, n.Start.Nanosecond())
}

func TestDurationBounds(t *testing.T) {
	for _, d := range []int{14, 181, -30} {
		n := validNew()
		n.DurationMinutes = d
		requireValidationField(t, n.Validate(), "duration_minutes")
	}
	for _, d := range []int{15, 180} {
		n := validNew()
		n.DurationMinutes = d
		assert.NoError(t, n.Validate(), "duration %d", d)
	}
}

func TestNewAppointmentValidate(t *testing.T) {
	tests := []struct {
		name  string
		mut   func(n *NewAppointment)
		field string
	}{
		{"missing patient", func(n *NewAppointment) { n.PatientID = uuid.Nil }, "patient_id"},
		{"missing practitioner", func(n *NewAppointment) { n.PractitionerID = uuid.Nil }, "practitioner_id"},
		{"missing start", func(n *NewAppointment) { n.Start = time.Time{} }, "start"},
		{"unknown kind", func(n *NewAppointment) { n.Kind = "SURGERY" }, "kind"},
		{"empty reason", func(n *NewAppointment) { n.Reason = "" }, "reason"},
		{"long reason", func(n *NewAppointment) { n.Reason = strings.Repeat("x", 501) }, "reason"},
		{"long notes", func(n *NewAppointment) { s := strings.Repeat("x", 2001); n.Notes = &s }, "notes"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			n := validNew()
			tc.mut(&n)
			requireValidationField(t, n.Validate(), tc.field)
		})
	}
}

func TestPatchValidate(t *testing.T) {
	requireValidationField(t, Patch{}.Validate(), "patch")

	nilID := uuid.Nil
	requireValidationField(t, Patch{PractitionerID: &nilID}.Validate(), "practitioner_id")

	short := 10
	requireValidationField(t, Patch{DurationMinutes: &short}.Validate(), "duration_minutes")

	blank := "  "
	requireValidationField(t, Patch{Reason: &blank}.Validate(), "reason")

	var zero time.Time
	requireValidationField(t, Patch{Start: &zero}.Validate(), "start")

	exam := KindExam
	bogus := Kind("SURGERY")
	requireValidationField(t, Patch{Kind: &bogus}.Validate(), "kind")
	assert.NoError(t, Patch{Kind: &exam}.Validate())

	ok := 45
	assert.NoError(t, Patch{DurationMinutes: &ok}.Validate())

	cleared := ""
	assert.NoError(t, Patch{Notes: &cleared}.Validate())
}

func TestPatchApplyReportsMove(t *testing.T) {
	a := &Appointment{PractitionerID: uuid.New(), Start: time.Date(2030, 1, 1, 9, 0, 0, 0, time.UTC), DurationMinutes: 30}

	reason := " new reason "
	assert.False(t, Patch{Reason: &reason}.apply(a))
	assert.Equal(t, "new reason", a.Reason)

	same := a.Start
	assert.False(t, Patch{Start: &same}.apply(a))
	jitter := a.Start.Add(400 * time.Millisecond)
	assert.False(t, Patch{Start: &jitter}.apply(a))

	later := a.Start.Add(time.Hour)
	assert.True(t, Patch{Start: &later}.apply(a))
	assert.Equal(t, later, a.Start)
}

func TestTransitionInputValidate(t *testing.T) {
	requireValidationField(t, TransitionInput{To: "DONE"}.Validate(), "status")

	long := 200
	requireValidationField(t, TransitionInput{To: StatusConfirmed, DurationMinutes: &long}.Validate(), "duration_minutes")

	assert.NoError(t, TransitionInput{To: StatusConfirmed}.Validate())
}

func TestValidationMessages(t *testing.T) {
	n := validNew()
	n.Kind = "SURGERY"
	err := n.Validate()
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "unknown appointment kind SURGERY", verr.Message)

	n = validNew()
	n.DurationMinutes = 200
	require.ErrorAs(t, n.Validate(), &verr)
	assert.Equal(t, "must be between 15 and 180", verr.Message)

	require.ErrorAs(t, TransitionInput{To: "DONE"}.Validate(), &verr)
	assert.Equal(t, "unknown status DONE", verr.Message)
}
