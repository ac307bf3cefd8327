package ledger

import (
	"fmt"
	"time"
)

const invoiceTimestampLayout = "2006-01-02T15:04:05"

// NewInvoiceNumber combines the submission time with the zero-padded sequence position.
// Uniqueness rests on the sequence, which the ledger only hands out under its lock.
func NewInvoiceNumber(at time.Time, seq int) string {
	return fmt.Sprintf("INV-%s-%04d", at.Format(invoiceTimestampLayout), seq)
}
