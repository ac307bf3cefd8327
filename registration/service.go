package registration

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Rhymond/go-money"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"meeting-registration/meeting"
	"meeting-registration/metrics"
)

const DefaultConfirmationDelay = 5 * time.Second

var tracer = otel.Tracer("meeting-registration/registration")

type Result struct {
	Invoice        Invoice
	RegistrationID int
}

type Service struct {
	meetings          meeting.Source
	ledger            Ledger
	scheduler         Scheduler
	logger            *slog.Logger
	now               func() time.Time
	confirmationDelay time.Duration
	metrics           *metrics.Metrics
}

type ServiceOption func(*Service)

func WithClock(now func() time.Time) ServiceOption {
	return func(s *Service) {
		s.now = now
	}
}

func WithLogger(logger *slog.Logger) ServiceOption {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithConfirmationDelay(d time.Duration) ServiceOption {
	return func(s *Service) {
		s.confirmationDelay = d
	}
}

func WithMetrics(m *metrics.Metrics) ServiceOption {
	return func(s *Service) {
		s.metrics = m
	}
}

func NewService(meetings meeting.Source, ledger Ledger, scheduler Scheduler, opts ...ServiceOption) *Service {
	s := &Service{
		meetings:          meetings,
		ledger:            ledger,
		scheduler:         scheduler,
		logger:            slog.New(slog.DiscardHandler),
		now:               time.Now,
		confirmationDelay: DefaultConfirmationDelay,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) Register(ctx context.Context, req Request) (Result, error) {
	ctx, span := tracer.Start(ctx, "registration.Register", trace.WithSpanKind(trace.SpanKindInternal))
	defer span.End()
	defer s.metrics.ObserveRegister(time.Now())

	res, err := s.register(ctx, req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "registration failed")
		s.metrics.IncrementRegistrationsRejected(reasonLabel(err))
		return Result{}, err
	}
	s.metrics.IncrementRegistrationsCreated()

	span.SetAttributes(
		attribute.Int("registration.id", res.RegistrationID),
		attribute.String("registration.invoice_number", res.Invoice.InvoiceNumber),
	)
	return res, nil
}

func (s *Service) register(ctx context.Context, req Request) (Result, error) {
	window, err := s.meetings.GetWindow(ctx)
	if err != nil {
		return Result{}, NewMeetingUnavailableError("Failed to read the meeting window", err)
	}

	if !window.IsOpen(s.now()) {
		return Result{}, NewRegistrationIsClosedError(window.Deadline)
	}

	req = req.normalized()
	if err := validateRequest(req); err != nil {
		return Result{}, err
	}

	reg, err := s.ledger.Append(ctx, Candidate{
		Station:     req.Station,
		District:    req.District,
		Church:      req.Church,
		LeaderName:  req.LeaderName,
		LeaderPhone: req.LeaderPhone,
		LeaderEmail: req.LeaderEmail,
		Attendees:   req.Attendees,
		Amount:      amountFor(window.AmountPerAttendee, len(req.Attendees)),
	})
	if err != nil {
		var regErr *Error
		if errors.As(err, &regErr) {
			return Result{}, err
		}
		return Result{}, NewFailedToWriteError("Failed to record the registration", err)
	}

	invoice, err := GenerateInvoice(reg)
	if err != nil {
		return Result{}, fmt.Errorf("registration %d was recorded but could not be invoiced: %w", reg.ID, err)
	}

	if err := s.scheduler.Schedule(reg.ID, s.confirmationDelay); err != nil {
		s.logger.ErrorContext(ctx, "Failed to schedule payment confirmation",
			slog.Int("registrationId", reg.ID),
			slog.String("error", err.Error()),
		)
	}

	return Result{Invoice: invoice, RegistrationID: reg.ID}, nil
}

// RecoverPendingConfirmations schedules a confirmation for every registration that is still unpaid.
// Scheduled confirmations do not survive a restart, so this runs once at startup.
func (s *Service) RecoverPendingConfirmations(ctx context.Context) (int, error) {
	ctx, span := tracer.Start(ctx, "registration.RecoverPendingConfirmations")
	defer span.End()

	unpaid, err := s.ledger.Unpaid(ctx)
	if err != nil {
		return 0, err
	}

	scheduled := 0
	for _, reg := range unpaid {
		if err := s.scheduler.Schedule(reg.ID, s.confirmationDelay); err != nil {
			s.logger.ErrorContext(ctx, "Failed to reschedule payment confirmation",
				slog.Int("registrationId", reg.ID),
				slog.String("error", err.Error()),
			)
			continue
		}
		scheduled++
	}

	span.SetAttributes(attribute.Int("registration.rescheduled", scheduled))

	return scheduled, nil
}

func reasonLabel(err error) string {
	var regErr *Error
	if errors.As(err, &regErr) {
		return string(regErr.Reason)
	}
	return "UNKNOWN"
}

func amountFor(perAttendee *money.Money, attendees int) *money.Money {
	return perAttendee.Multiply(int64(attendees))
}
