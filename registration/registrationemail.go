package registration

import (
	"bytes"
	"context"
	"embed"
	"fmt"
	"html/template"
	"log/slog"
	textTemplate "text/template"

	"github.com/International-Combat-Archery-Alliance/email"

	"meeting-registration/meeting"
)

//go:embed templates
var templates embed.FS

// ReceiptSender emails the group leader once a registration is paid.
type ReceiptSender struct {
	emailSender email.Sender
	fromAddress string
	meetings    meeting.Source
	logger      *slog.Logger
}

func NewReceiptSender(emailSender email.Sender, fromAddress string, meetings meeting.Source, logger *slog.Logger) *ReceiptSender {
	return &ReceiptSender{
		emailSender: emailSender,
		fromAddress: fromAddress,
		meetings:    meetings,
		logger:      logger,
	}
}

// OnPaid is meant to be registered as the ledger's paid hook. Failures are logged only,
// the registration is already paid.
func (s *ReceiptSender) OnPaid(ctx context.Context, reg Registration) {
	if reg.LeaderEmail == nil {
		return
	}

	err := s.SendPaymentReceipt(ctx, reg)
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to send payment receipt",
			slog.String("error", err.Error()),
			slog.Int("registrationId", reg.ID),
			slog.String("email", *reg.LeaderEmail),
		)
	}
}

func (s *ReceiptSender) SendPaymentReceipt(ctx context.Context, reg Registration) error {
	if reg.LeaderEmail == nil {
		return fmt.Errorf("registration %d has no leader email", reg.ID)
	}

	window, err := s.meetings.GetWindow(ctx)
	if err != nil {
		return fmt.Errorf("failed to get meeting for receipt: %w", err)
	}

	data := map[string]any{
		"Meeting":      window,
		"Registration": reg,
		"Amount":       reg.Amount.Display(),
	}

	htmlBody, err := makeHtmlBody(data)
	if err != nil {
		return err
	}

	textOnlyBody, err := makeTextOnlyBody(data)
	if err != nil {
		return err
	}

	return s.emailSender.SendEmail(ctx, email.Email{
		FromAddress: s.fromAddress,
		ToAddresses: []string{*reg.LeaderEmail},
		Subject:     fmt.Sprintf("Payment received - %s (%s)", window.Title, reg.InvoiceNumber),
		HTMLBody:    htmlBody,
		TextBody:    textOnlyBody,
	})
}

var templateFuncs = map[string]any{
	"add": func(a, b int) int { return a + b },
}

func makeHtmlBody(data map[string]any) (string, error) {
	tmpl, err := template.New("payment-receipt.tmpl").Funcs(templateFuncs).ParseFS(templates, "templates/payment-receipt.tmpl")
	if err != nil {
		return "", fmt.Errorf("failed to parse email template: %w", err)
	}

	var buf bytes.Buffer
	err = tmpl.Execute(&buf, data)
	if err != nil {
		return "", fmt.Errorf("failed to execute email template: %w", err)
	}

	return buf.String(), nil
}

func makeTextOnlyBody(data map[string]any) (string, error) {
	tmpl, err := textTemplate.New("payment-receipt-textonly.tmpl").Funcs(templateFuncs).ParseFS(templates, "templates/payment-receipt-textonly.tmpl")
	if err != nil {
		return "", fmt.Errorf("failed to parse email template: %w", err)
	}

	var buf bytes.Buffer
	err = tmpl.Execute(&buf, data)
	if err != nil {
		return "", fmt.Errorf("failed to execute email template: %w", err)
	}

	return buf.String(), nil
}
