package api

import (
	"time"

	"github.com/oapi-codegen/runtime/types"
	"github.com/samber/lo"

	"meeting-registration/meeting"
	"meeting-registration/registration"
)

type ErrorCode string

const (
	InputValidationError ErrorCode = "InputValidationError"
	RegistrationClosed   ErrorCode = "RegistrationClosed"
	MeetingUnavailable   ErrorCode = "MeetingUnavailable"
	NotFound             ErrorCode = "NotFound"
	AuthError            ErrorCode = "AuthError"
	InternalError        ErrorCode = "InternalError"
)

type Error struct {
	Message string    `json:"error"`
	Code    ErrorCode `json:"code"`
}

type Meeting struct {
	Title              string     `json:"title"`
	Date               types.Date `json:"date"`
	Deadline           time.Time  `json:"deadline"`
	RegistrationAmount float64    `json:"registration_amount"`
	Currency           string     `json:"currency"`
	Description        string     `json:"description,omitempty"`
}

type Attendee struct {
	Name string `json:"name"`
	Age  int    `json:"age"`
}

type RegisterRequest struct {
	Station     string     `json:"station"`
	District    string     `json:"district"`
	Church      string     `json:"church"`
	LeaderName  string     `json:"leaderName"`
	LeaderPhone string     `json:"leaderPhone"`
	LeaderEmail *string    `json:"leaderEmail,omitempty"`
	Attendees   []Attendee `json:"attendees"`
}

type Invoice struct {
	InvoiceNumber string     `json:"invoiceNumber"`
	Amount        float64    `json:"amount"`
	AccountNumber string     `json:"accountNumber"`
	Date          types.Date `json:"date"`
	Attendees     int        `json:"attendees"`
}

type RegisterResponse struct {
	Message        string  `json:"message"`
	Invoice        Invoice `json:"invoice"`
	RegistrationID int     `json:"registrationId"`
}

type Registration struct {
	ID            int        `json:"id"`
	Timestamp     time.Time  `json:"timestamp"`
	Station       string     `json:"station"`
	District      string     `json:"district"`
	Church        string     `json:"church"`
	LeaderName    string     `json:"leaderName"`
	LeaderPhone   string     `json:"leaderPhone"`
	LeaderEmail   *string    `json:"leaderEmail,omitempty"`
	Attendees     []Attendee `json:"attendees"`
	Amount        float64    `json:"amount"`
	Currency      string     `json:"currency"`
	InvoiceNumber string     `json:"invoiceNumber"`
	Paid          bool       `json:"paid"`
	PaidAt        *time.Time `json:"paidAt,omitempty"`
}

type Summary struct {
	TotalRegistrations int            `json:"totalRegistrations"`
	TotalAttendees     int            `json:"totalAttendees"`
	PaidRegistrations  int            `json:"paidRegistrations"`
	TotalAmount        float64        `json:"totalAmount"`
	PaidAmount         float64        `json:"paidAmount"`
	Currency           string         `json:"currency"`
	StationsBreakdown  map[string]int `json:"stationsBreakdown"`
}

func windowToApiMeeting(w meeting.Window) Meeting {
	return Meeting{
		Title:              w.Title,
		Date:               types.Date{Time: w.EventDate},
		Deadline:           w.Deadline,
		RegistrationAmount: w.AmountPerAttendee.AsMajorUnits(),
		Currency:           w.AmountPerAttendee.Currency().Code,
		Description:        w.Description,
	}
}

func apiRegisterRequestToRequest(req RegisterRequest) registration.Request {
	var attendees []registration.Attendee
	if req.Attendees != nil {
		attendees = lo.Map(req.Attendees, func(a Attendee, _ int) registration.Attendee {
			return registration.Attendee{Name: a.Name, Age: a.Age}
		})
	}

	return registration.Request{
		Station:     req.Station,
		District:    req.District,
		Church:      req.Church,
		LeaderName:  req.LeaderName,
		LeaderPhone: req.LeaderPhone,
		LeaderEmail: req.LeaderEmail,
		Attendees:   attendees,
	}
}

func invoiceToApiInvoice(inv registration.Invoice) Invoice {
	return Invoice{
		InvoiceNumber: inv.InvoiceNumber,
		Amount:        inv.Amount.AsMajorUnits(),
		AccountNumber: inv.AccountNumber,
		Date:          types.Date{Time: inv.IssueDate},
		Attendees:     inv.AttendeeCount,
	}
}

func registrationToApiRegistration(reg registration.Registration) Registration {
	return Registration{
		ID:          reg.ID,
		Timestamp:   reg.Timestamp,
		Station:     reg.Station,
		District:    reg.District,
		Church:      reg.Church,
		LeaderName:  reg.LeaderName,
		LeaderPhone: reg.LeaderPhone,
		LeaderEmail: reg.LeaderEmail,
		Attendees: lo.Map(reg.Attendees, func(a registration.Attendee, _ int) Attendee {
			return Attendee{Name: a.Name, Age: a.Age}
		}),
		Amount:        reg.Amount.AsMajorUnits(),
		Currency:      reg.Amount.Currency().Code,
		InvoiceNumber: reg.InvoiceNumber,
		Paid:          reg.Paid,
		PaidAt:        reg.PaidAt,
	}
}

func summaryToApiSummary(s registration.Summary) Summary {
	return Summary{
		TotalRegistrations: s.TotalRegistrations,
		TotalAttendees:     s.TotalAttendees,
		PaidRegistrations:  s.PaidRegistrations,
		TotalAmount:        s.TotalAmount.AsMajorUnits(),
		PaidAmount:         s.PaidAmount.AsMajorUnits(),
		Currency:           s.TotalAmount.Currency().Code,
		StationsBreakdown:  s.AttendeesByStation,
	}
}
