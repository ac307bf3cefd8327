package registration

import (
	"time"

	"github.com/Rhymond/go-money"
)

// Invoice is derived from a Registration and never stored on its own.
type Invoice struct {
	InvoiceNumber string
	Amount        *money.Money
	AccountNumber string
	IssueDate     time.Time
	AttendeeCount int
}

func GenerateInvoice(reg Registration) (Invoice, error) {
	if len(reg.Attendees) == 0 {
		return Invoice{}, NewInvalidRegistrationError("Cannot invoice a registration without attendees")
	}
	if reg.InvoiceNumber == "" {
		return Invoice{}, NewInvalidRegistrationError("Cannot invoice a registration without an invoice number")
	}

	return Invoice{
		InvoiceNumber: reg.InvoiceNumber,
		Amount:        reg.Amount,
		AccountNumber: reg.InvoiceNumber,
		IssueDate:     reg.Timestamp,
		AttendeeCount: len(reg.Attendees),
	}, nil
}
