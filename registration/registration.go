package registration

import (
	"context"
	"slices"
	"time"

	"github.com/Rhymond/go-money"
)

// Ledger is the durable, concurrency-safe store of registrations.
type Ledger interface {
	Append(ctx context.Context, candidate Candidate) (Registration, error)
	Get(ctx context.Context, id int) (Registration, error)
	List(ctx context.Context) ([]Registration, error)
	Confirm(ctx context.Context, id int) error
	Unpaid(ctx context.Context) ([]Registration, error)
}

type Scheduler interface {
	Schedule(id int, delay time.Duration) error
}

type Attendee struct {
	Name string `json:"name" validate:"required"`
	Age  int    `json:"age" validate:"gt=0"`
}

type Registration struct {
	ID            int
	Version       int
	Timestamp     time.Time
	Station       string
	District      string
	Church        string
	LeaderName    string
	LeaderPhone   string
	LeaderEmail   *string
	Attendees     []Attendee
	Amount        *money.Money
	InvoiceNumber string
	Paid          bool
	PaidAt        *time.Time
}

// Clone returns a copy that shares no mutable state with r.
func (r Registration) Clone() Registration {
	c := r
	c.Attendees = slices.Clone(r.Attendees)
	if r.LeaderEmail != nil {
		e := *r.LeaderEmail
		c.LeaderEmail = &e
	}
	if r.PaidAt != nil {
		p := *r.PaidAt
		c.PaidAt = &p
	}
	return c
}

// Candidate is a registration before the ledger has assigned its id, invoice number and timestamp.
type Candidate struct {
	Station     string
	District    string
	Church      string
	LeaderName  string
	LeaderPhone string
	LeaderEmail *string
	Attendees   []Attendee
	Amount      *money.Money
}

// Validate is the ledger's own check of a candidate, independent of request validation.
func (c Candidate) Validate() error {
	if len(c.Attendees) == 0 {
		return NewInvalidRegistrationError("At least one attendee is required")
	}

	for i, a := range c.Attendees {
		if a.Name == "" || a.Age <= 0 {
			return NewInvalidAttendeeError(i)
		}
	}

	if c.Amount == nil {
		return NewInvalidRegistrationError("Registration amount is required")
	}

	return nil
}
