// Package ledger holds registrations in an ordered in-memory index backed by a durable Store.
//
// Every Append and Confirm runs read-state, mutate, persist under one exclusive lock, so ids and
// invoice numbers never collide and a confirmation can never overwrite a newer append.
// A record only enters the index after the store has accepted it.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/samber/lo"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"meeting-registration/registration"
)

var tracer = otel.Tracer("meeting-registration/ledger")

const DefaultStoreTimeout = 5 * time.Second

// Store persists single registrations. Each call must be atomic at the storage boundary.
// GetRegistration reports REASON_REGISTRATION_DOES_NOT_EXIST for ids that were never committed.
type Store interface {
	LoadRegistrations(ctx context.Context) ([]registration.Registration, error)
	GetRegistration(ctx context.Context, id int) (registration.Registration, error)
	CreateRegistration(ctx context.Context, reg registration.Registration) error
	UpdateRegistrationToPaid(ctx context.Context, reg registration.Registration) error
}

var _ registration.Ledger = (*Ledger)(nil)

type Ledger struct {
	mu     sync.RWMutex
	store  Store
	byID   map[int]int
	regs   []registration.Registration
	nextID int

	now          func() time.Time
	logger       *slog.Logger
	storeTimeout time.Duration
	onPaid       []func(ctx context.Context, reg registration.Registration)
}

type Option func(*Ledger)

func WithClock(now func() time.Time) Option {
	return func(l *Ledger) {
		l.now = now
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(l *Ledger) {
		l.logger = logger
	}
}

// WithStoreTimeout bounds every store call made while the lock is held.
func WithStoreTimeout(d time.Duration) Option {
	return func(l *Ledger) {
		if d > 0 {
			l.storeTimeout = d
		}
	}
}

// WithOnPaid registers fn to run after a registration transitions to paid.
// It runs once per transition, outside the lock.
func WithOnPaid(fn func(ctx context.Context, reg registration.Registration)) Option {
	return func(l *Ledger) {
		l.onPaid = append(l.onPaid, fn)
	}
}

// Open loads every durable registration and resumes the id sequence after the highest one.
func Open(ctx context.Context, store Store, opts ...Option) (*Ledger, error) {
	l := &Ledger{
		store:  store,
		byID:   map[int]int{},
		nextID:       1,
		now:          time.Now,
		logger:       slog.New(slog.DiscardHandler),
		storeTimeout: DefaultStoreTimeout,
	}
	for _, opt := range opts {
		opt(l)
	}

	regs, err := store.LoadRegistrations(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load registrations: %w", err)
	}

	slices.SortFunc(regs, func(a, b registration.Registration) int {
		return a.ID - b.ID
	})

	for _, reg := range regs {
		if _, ok := l.byID[reg.ID]; ok {
			return nil, fmt.Errorf("duplicate registration id %d in store", reg.ID)
		}
		l.byID[reg.ID] = len(l.regs)
		l.regs = append(l.regs, reg)
		l.nextID = max(l.nextID, reg.ID+1)
	}

	l.logger.InfoContext(ctx, "ledger opened",
		slog.Int("registrations", len(l.regs)),
		slog.Int("nextId", l.nextID),
	)

	return l, nil
}

func (l *Ledger) Append(ctx context.Context, candidate registration.Candidate) (registration.Registration, error) {
	ctx, span := tracer.Start(ctx, "ledger.Append")
	defer span.End()

	if err := candidate.Validate(); err != nil {
		return registration.Registration{}, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	for range maxAppendAttempts {
		reg, err := l.appendLocked(ctx, candidate)
		if errors.Is(err, errIDTaken) {
			continue
		}
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "persist failed")
			return registration.Registration{}, err
		}

		span.SetAttributes(attribute.Int("registration.id", reg.ID))
		return reg.Clone(), nil
	}

	err := registration.NewFailedToWriteError(fmt.Sprintf("Registration ids up to %d are already taken in the store", l.nextID-1), nil)
	span.RecordError(err)
	span.SetStatus(codes.Error, "persist failed")
	return registration.Registration{}, err
}

// maxAppendAttempts bounds how many ids one Append may skip over when the store already holds them.
const maxAppendAttempts = 3

var errIDTaken = errors.New("registration id already taken in store")

// appendLocked writes the candidate under the next id. The caller must hold the write lock.
func (l *Ledger) appendLocked(ctx context.Context, candidate registration.Candidate) (registration.Registration, error) {
	now := l.now()
	id := l.nextID
	reg := registration.Registration{
		ID:            id,
		Version:       1,
		Timestamp:     now,
		Station:       candidate.Station,
		District:      candidate.District,
		Church:        candidate.Church,
		LeaderName:    candidate.LeaderName,
		LeaderPhone:   candidate.LeaderPhone,
		LeaderEmail:   candidate.LeaderEmail,
		Attendees:     slices.Clone(candidate.Attendees),
		Amount:        candidate.Amount,
		InvoiceNumber: NewInvoiceNumber(now, id),
		Paid:          false,
	}
	reg = reg.Clone()

	// A request that goes away mid write must not leave the store and the index disagreeing.
	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), l.storeTimeout)
	defer cancel()

	err := l.store.CreateRegistration(writeCtx, reg)
	if err == nil {
		l.index(reg)
		return reg, nil
	}

	if !registration.IsReason(err, registration.REASON_TIMEOUT) && !registration.IsReason(err, registration.REASON_REGISTRATION_ALREADY_EXISTS) {
		return registration.Registration{}, asWriteError(err, fmt.Sprintf("Failed to persist registration %d", id))
	}

	stored, found, readErr := l.readBack(ctx, id)
	if readErr != nil {
		l.logger.ErrorContext(ctx, "could not resolve outcome of registration write",
			slog.Int("registrationId", id),
			slog.String("writeError", err.Error()),
			slog.String("error", readErr.Error()),
		)
		return registration.Registration{}, asWriteError(err, fmt.Sprintf("Failed to persist registration %d", id))
	}
	if !found {
		return registration.Registration{}, asWriteError(err, fmt.Sprintf("Failed to persist registration %d", id))
	}

	l.index(stored)
	if stored.InvoiceNumber == reg.InvoiceNumber && stored.Timestamp.Equal(reg.Timestamp) {
		l.logger.WarnContext(ctx, "registration write reported an error but was committed",
			slog.Int("registrationId", id),
			slog.String("error", err.Error()),
		)
		return stored, nil
	}

	l.logger.WarnContext(ctx, "adopted registration already present in store",
		slog.Int("registrationId", id),
		slog.String("invoiceNumber", stored.InvoiceNumber),
	)
	return registration.Registration{}, errIDTaken
}

// readBack fetches id straight from the store. found is false only when the store positively has no record.
func (l *Ledger) readBack(ctx context.Context, id int) (registration.Registration, bool, error) {
	readCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), l.storeTimeout)
	defer cancel()

	stored, err := l.store.GetRegistration(readCtx, id)
	if err != nil {
		if registration.IsReason(err, registration.REASON_REGISTRATION_DOES_NOT_EXIST) {
			return registration.Registration{}, false, nil
		}
		return registration.Registration{}, false, err
	}
	return stored, true, nil
}

// index adds a committed record and moves the sequence past it. The caller must hold the write lock.
func (l *Ledger) index(reg registration.Registration) {
	if idx, ok := l.byID[reg.ID]; ok {
		l.regs[idx] = reg
	} else {
		l.byID[reg.ID] = len(l.regs)
		l.regs = append(l.regs, reg)
	}
	l.nextID = max(l.nextID, reg.ID+1)
}

func (l *Ledger) Get(ctx context.Context, id int) (registration.Registration, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	idx, ok := l.byID[id]
	if !ok {
		return registration.Registration{}, registration.NewRegistrationDoesNotExistsError(fmt.Sprintf("Registration with id %d not found", id), nil)
	}

	return l.regs[idx].Clone(), nil
}

func (l *Ledger) List(ctx context.Context) ([]registration.Registration, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	return lo.Map(l.regs, func(r registration.Registration, _ int) registration.Registration {
		return r.Clone()
	}), nil
}

func (l *Ledger) Unpaid(ctx context.Context) ([]registration.Registration, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	unpaid := lo.Filter(l.regs, func(r registration.Registration, _ int) bool {
		return !r.Paid
	})
	return lo.Map(unpaid, func(r registration.Registration, _ int) registration.Registration {
		return r.Clone()
	}), nil
}

// Confirm marks the registration paid. Confirming an already paid registration is a no-op.
func (l *Ledger) Confirm(ctx context.Context, id int) error {
	ctx, span := tracer.Start(ctx, "ledger.Confirm")
	defer span.End()
	span.SetAttributes(attribute.Int("registration.id", id))

	paid, changed, err := l.confirm(ctx, id)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "confirm failed")
		return err
	}

	if changed {
		for _, fn := range l.onPaid {
			fn(ctx, paid.Clone())
		}
	}

	return nil
}

func (l *Ledger) confirm(ctx context.Context, id int) (registration.Registration, bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	idx, ok := l.byID[id]
	if !ok {
		return registration.Registration{}, false, registration.NewRegistrationDoesNotExistsError(fmt.Sprintf("Registration with id %d not found", id), nil)
	}

	current := l.regs[idx]
	if current.Paid {
		return current, false, nil
	}

	paidAt := l.now()
	updated := current.Clone()
	updated.Paid = true
	updated.PaidAt = &paidAt
	updated.Version++

	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), l.storeTimeout)
	defer cancel()

	if err := l.store.UpdateRegistrationToPaid(writeCtx, updated); err != nil {
		if !registration.IsReason(err, registration.REASON_TIMEOUT) {
			return registration.Registration{}, false, asWriteError(err, fmt.Sprintf("Failed to persist payment of registration %d", id))
		}

		stored, found, readErr := l.readBack(ctx, id)
		if readErr != nil || !found || !stored.Paid || stored.Version != updated.Version {
			return registration.Registration{}, false, asWriteError(err, fmt.Sprintf("Failed to persist payment of registration %d", id))
		}
		l.logger.WarnContext(ctx, "payment write reported an error but was committed", slog.Int("registrationId", id))
		updated = stored
	}

	l.regs[idx] = updated
	return updated, true, nil
}

func asWriteError(err error, message string) error {
	var regErr *registration.Error
	if errors.As(err, &regErr) && regErr.Reason == registration.REASON_FAILED_TO_WRITE {
		return err
	}
	return registration.NewFailedToWriteError(message, err)
}
