package appointment

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

const (
	// Stored start times are truncated so every backend round-trips them exactly.
	startPrecision  = time.Second
	durationMessage = "must be between 15 and 180"
)

var validate = newValidator()

// fieldNames maps struct fields to the names clients send.
var fieldNames = map[string]string{
	"PatientID":       "patient_id",
	"PractitionerID":  "practitioner_id",
	"Start":           "start",
	"DurationMinutes": "duration_minutes",
	"Kind":            "kind",
	"Reason":          "reason",
	"Notes":           "notes",
	"To":              "status",
}

func newValidator() *validator.Validate {
	v := validator.New()
	// nonzero rejects a present but empty value; omitempty alone lets a
	// non-nil pointer through.
	if err := v.RegisterValidation("nonzero", func(fl validator.FieldLevel) bool {
		return !fl.Field().IsZero()
	}); err != nil {
		panic(err)
	}
	return v
}

// normalize fills defaults and trims text in place.
func (n *NewAppointment) normalize() {
	if n.DurationMinutes == 0 {
		n.DurationMinutes = DefaultDurationMinutes
	}
	if n.Kind == "" {
		n.Kind = KindConsultation
	}
	n.Reason = strings.TrimSpace(n.Reason)
	n.Start = n.Start.UTC().Truncate(startPrecision)
	n.Notes = trimNotes(n.Notes)
}

func (n NewAppointment) Validate() error {
	return structError(validate.Struct(n))
}

func (p Patch) Validate() error {
	if p.Empty() {
		return invalid("patch", "no fields to update")
	}
	if p.Reason != nil {
		trimmed := strings.TrimSpace(*p.Reason)
		p.Reason = &trimmed
	}
	return structError(validate.Struct(p))
}

func (in TransitionInput) Validate() error {
	return structError(validate.Struct(in))
}

func validateDuration(d int) error {
	if err := validate.Var(d, "min=15,max=180"); err != nil {
		return invalid("duration_minutes", durationMessage)
	}
	return nil
}

// structError reports the first failed field as a ValidationError.
func structError(err error) error {
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return fmt.Errorf("validate payload: %w", err)
	}

	fe := verrs[0]
	field, ok := fieldNames[fe.StructField()]
	if !ok {
		field = strings.ToLower(fe.StructField())
	}

	var msg string
	switch {
	case field == "duration_minutes":
		msg = durationMessage
	case fe.Tag() == "required":
		msg = "is required"
	case fe.Tag() == "nonzero":
		msg = "must not be empty"
	case fe.Tag() == "max":
		msg = "is too long"
	case fe.Tag() == "oneof" && field == "kind":
		msg = fmt.Sprintf("unknown appointment kind %v", fe.Value())
	case fe.Tag() == "oneof":
		msg = fmt.Sprintf("unknown %s %v", field, fe.Value())
	default:
		msg = "failed " + fe.Tag() + " check"
	}
	return invalid(field, msg)
}

func trimNotes(notes *string) *string {
	if notes == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*notes)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}

// apply copies the patch onto a and reports whether the calendar slot moved.
func (p Patch) apply(a *Appointment) bool {
	moved := false
	if p.PractitionerID != nil && *p.PractitionerID != a.PractitionerID {
		a.PractitionerID = *p.PractitionerID
		moved = true
	}
	if p.Start != nil {
		start := p.Start.UTC().Truncate(startPrecision)
		if !start.Equal(a.Start) {
			a.Start = start
			moved = true
		}
	}
	if p.DurationMinutes != nil && *p.DurationMinutes != a.DurationMinutes {
		a.DurationMinutes = *p.DurationMinutes
		moved = true
	}
	if p.Kind != nil {
		a.Kind = *p.Kind
	}
	if p.Reason != nil {
		a.Reason = strings.TrimSpace(*p.Reason)
	}
	if p.Notes != nil {
		a.Notes = trimNotes(p.Notes)
	}
	return moved
}
