package registration

import (
	"errors"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/samber/lo"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
		if name == "" || name == "-" {
			return fld.Name
		}
		return name
	})
	return v
}

// Request is a leader's submission before it has been admitted.
type Request struct {
	Station     string     `json:"station" validate:"required"`
	District    string     `json:"district" validate:"required"`
	Church      string     `json:"church" validate:"required"`
	LeaderName  string     `json:"leaderName" validate:"required"`
	LeaderPhone string     `json:"leaderPhone" validate:"required"`
	LeaderEmail *string    `json:"leaderEmail" validate:"omitempty,email"`
	Attendees   []Attendee `json:"attendees" validate:"required"`
}

func (r Request) normalized() Request {
	n := r
	n.Station = strings.TrimSpace(r.Station)
	n.District = strings.TrimSpace(r.District)
	n.Church = strings.TrimSpace(r.Church)
	n.LeaderName = strings.TrimSpace(r.LeaderName)
	n.LeaderPhone = strings.TrimSpace(r.LeaderPhone)
	if r.LeaderEmail != nil {
		e := strings.TrimSpace(*r.LeaderEmail)
		if e == "" {
			n.LeaderEmail = nil
		} else {
			n.LeaderEmail = &e
		}
	}
	n.Attendees = lo.Map(r.Attendees, func(a Attendee, _ int) Attendee {
		return Attendee{Name: strings.TrimSpace(a.Name), Age: a.Age}
	})
	if r.Attendees == nil {
		n.Attendees = nil
	}
	return n
}

// validateRequest returns the first violation found, in field order.
func validateRequest(req Request) error {
	if err := validate.Struct(req); err != nil {
		var fieldErrs validator.ValidationErrors
		if !errors.As(err, &fieldErrs) || len(fieldErrs) == 0 {
			return NewInvalidRegistrationError("Invalid registration")
		}

		first := fieldErrs[0]
		switch first.Field() {
		case "attendees":
			return NewInvalidRegistrationError("At least one attendee is required")
		case "leaderEmail":
			return NewInvalidRegistrationError("leaderEmail must be a valid email address")
		default:
			return NewMissingFieldError(first.Field())
		}
	}

	if len(req.Attendees) == 0 {
		return NewInvalidRegistrationError("At least one attendee is required")
	}

	for i, a := range req.Attendees {
		if err := validate.Struct(a); err != nil {
			return NewInvalidAttendeeError(i)
		}
	}

	return nil
}
