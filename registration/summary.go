package registration

import (
	"fmt"

	"github.com/Rhymond/go-money"
)

type Summary struct {
	TotalRegistrations int
	TotalAttendees     int
	PaidRegistrations  int
	TotalAmount        *money.Money
	PaidAmount         *money.Money
	AttendeesByStation map[string]int
}

// Summarize totals regs. Every amount must be in currency.
func Summarize(regs []Registration, currency string) (Summary, error) {
	summary := Summary{
		TotalAmount:        money.New(0, currency),
		PaidAmount:         money.New(0, currency),
		AttendeesByStation: map[string]int{},
	}

	for _, reg := range regs {
		summary.TotalRegistrations++
		summary.TotalAttendees += len(reg.Attendees)
		summary.AttendeesByStation[reg.Station] += len(reg.Attendees)

		total, err := summary.TotalAmount.Add(reg.Amount)
		if err != nil {
			return Summary{}, fmt.Errorf("failed to add amount of registration %d: %w", reg.ID, err)
		}
		summary.TotalAmount = total

		if reg.Paid {
			summary.PaidRegistrations++
			paid, err := summary.PaidAmount.Add(reg.Amount)
			if err != nil {
				return Summary{}, fmt.Errorf("failed to add paid amount of registration %d: %w", reg.ID, err)
			}
			summary.PaidAmount = paid
		}
	}

	return summary, nil
}
