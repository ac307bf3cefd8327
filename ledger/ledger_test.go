package ledger

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/Rhymond/go-money"
	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"meeting-registration/ptr"
	"meeting-registration/registration"
)

type fakeStore struct {
	mu      sync.Mutex
	regs    map[int]registration.Registration
	creates int
	updates int

	LoadFunc   func(ctx context.Context) ([]registration.Registration, error)
	GetFunc    func(ctx context.Context, id int) (registration.Registration, error)
	CreateFunc func(ctx context.Context, reg registration.Registration) error
	UpdateFunc func(ctx context.Context, reg registration.Registration) error

	// called once the write has been applied, so the store can commit and still report a failure
	AfterCreateFunc func(ctx context.Context, reg registration.Registration) error
	AfterUpdateFunc func(ctx context.Context, reg registration.Registration) error
}

func newFakeStore() *fakeStore {
	return &fakeStore{regs: map[int]registration.Registration{}}
}

func (f *fakeStore) LoadRegistrations(ctx context.Context) ([]registration.Registration, error) {
	if f.LoadFunc != nil {
		return f.LoadFunc(ctx)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []registration.Registration
	for _, r := range f.regs {
		out = append(out, r.Clone())
	}
	return out, nil
}

func (f *fakeStore) GetRegistration(ctx context.Context, id int) (registration.Registration, error) {
	if f.GetFunc != nil {
		return f.GetFunc(ctx, id)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	reg, ok := f.regs[id]
	if !ok {
		return registration.Registration{}, registration.NewRegistrationDoesNotExistsError(fmt.Sprintf("id %d", id), nil)
	}
	return reg.Clone(), nil
}

func (f *fakeStore) CreateRegistration(ctx context.Context, reg registration.Registration) error {
	if f.CreateFunc != nil {
		if err := f.CreateFunc(ctx, reg); err != nil {
			return err
		}
	}
	f.mu.Lock()
	if _, ok := f.regs[reg.ID]; ok {
		f.mu.Unlock()
		return registration.NewRegistrationAlreadyExistsError(fmt.Sprintf("id %d", reg.ID), nil)
	}
	f.regs[reg.ID] = reg.Clone()
	f.creates++
	f.mu.Unlock()

	if f.AfterCreateFunc != nil {
		return f.AfterCreateFunc(ctx, reg)
	}
	return nil
}

func (f *fakeStore) UpdateRegistrationToPaid(ctx context.Context, reg registration.Registration) error {
	if f.UpdateFunc != nil {
		if err := f.UpdateFunc(ctx, reg); err != nil {
			return err
		}
	}
	f.mu.Lock()
	f.regs[reg.ID] = reg.Clone()
	f.updates++
	f.mu.Unlock()

	if f.AfterUpdateFunc != nil {
		return f.AfterUpdateFunc(ctx, reg)
	}
	return nil
}

func testCandidate(attendees ...registration.Attendee) registration.Candidate {
	if len(attendees) == 0 {
		attendees = []registration.Attendee{{Name: "X", Age: 20}, {Name: "Y", Age: 17}}
	}
	return registration.Candidate{
		Station:     "A",
		District:    "B",
		Church:      "C",
		LeaderName:  "L",
		LeaderPhone: "P",
		Attendees:   attendees,
		Amount:      money.New(1000, "KES").Multiply(int64(len(attendees))),
	}
}

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

// tickingClock moves forward a millisecond on every reading.
func tickingClock(start time.Time) func() time.Time {
	var mu sync.Mutex
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		start = start.Add(time.Millisecond)
		return start
	}
}

func TestAppend(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 10, 14, 9, 30, 0, 0, time.UTC)

	t.Run("assigns id, invoice number and timestamp", func(t *testing.T) {
		store := newFakeStore()
		l, err := Open(ctx, store, WithClock(fixedClock(now)))
		require.NoError(t, err)

		reg, err := l.Append(ctx, testCandidate())
		require.NoError(t, err)

		assert.Equal(t, 1, reg.ID)
		assert.Equal(t, 1, reg.Version)
		assert.Equal(t, "INV-2025-10-14T09:30:00-0001", reg.InvoiceNumber)
		assert.Equal(t, now, reg.Timestamp)
		assert.False(t, reg.Paid)
		assert.Nil(t, reg.PaidAt)
		assert.Equal(t, int64(2000), reg.Amount.Amount())
		assert.Equal(t, 1, store.creates)
	})

	t.Run("get after append round trips every field", func(t *testing.T) {
		l, err := Open(ctx, newFakeStore(), WithClock(fixedClock(now)))
		require.NoError(t, err)

		candidate := testCandidate()
		candidate.LeaderEmail = ptr.String("leader@example.com")

		appended, err := l.Append(ctx, candidate)
		require.NoError(t, err)

		got, err := l.Get(ctx, appended.ID)
		require.NoError(t, err)

		want := registration.Registration{
			ID:            1,
			Version:       1,
			Timestamp:     now,
			Station:       candidate.Station,
			District:      candidate.District,
			Church:        candidate.Church,
			LeaderName:    candidate.LeaderName,
			LeaderPhone:   candidate.LeaderPhone,
			LeaderEmail:   ptr.String("leader@example.com"),
			Attendees:     candidate.Attendees,
			InvoiceNumber: appended.InvoiceNumber,
		}
		if diff := cmp.Diff(want, got, cmpopts.IgnoreFields(registration.Registration{}, "Amount")); diff != "" {
			t.Errorf("Get() mismatch (-want +got):\n%s", diff)
		}
		assert.Equal(t, candidate.Amount.Amount(), got.Amount.Amount())
	})

	t.Run("rejects malformed candidates", func(t *testing.T) {
		store := newFakeStore()
		l, err := Open(ctx, store)
		require.NoError(t, err)

		cases := map[string]registration.Candidate{
			"no attendees":     {Station: "A", Amount: money.New(0, "KES")},
			"nameless":         testCandidate(registration.Attendee{Name: "", Age: 3}),
			"non positive age": testCandidate(registration.Attendee{Name: "Z", Age: 0}),
			"no amount":        {Attendees: []registration.Attendee{{Name: "Z", Age: 9}}},
		}
		for name, c := range cases {
			t.Run(name, func(t *testing.T) {
				_, err := l.Append(ctx, c)
				require.Error(t, err)
				assert.True(t, registration.IsReason(err, registration.REASON_INVALID_REGISTRATION))
			})
		}

		regs, err := l.List(ctx)
		require.NoError(t, err)
		assert.Empty(t, regs)
		assert.Equal(t, 0, store.creates)
	})

	t.Run("persistence failure leaves nothing observable", func(t *testing.T) {
		store := newFakeStore()
		store.CreateFunc = func(ctx context.Context, reg registration.Registration) error {
			return errors.New("disk full")
		}
		l, err := Open(ctx, store)
		require.NoError(t, err)

		_, err = l.Append(ctx, testCandidate())
		require.Error(t, err)
		assert.True(t, registration.IsReason(err, registration.REASON_FAILED_TO_WRITE))
		assert.Contains(t, err.Error(), "disk full")

		regs, err := l.List(ctx)
		require.NoError(t, err)
		assert.Empty(t, regs)

		_, err = l.Get(ctx, 1)
		assert.True(t, registration.IsReason(err, registration.REASON_REGISTRATION_DOES_NOT_EXIST))

		store.CreateFunc = nil
		reg, err := l.Append(ctx, testCandidate())
		require.NoError(t, err)
		assert.Equal(t, 1, reg.ID, "a failed append must not consume an id")
	})

	t.Run("returned records are copies", func(t *testing.T) {
		l, err := Open(ctx, newFakeStore())
		require.NoError(t, err)

		reg, err := l.Append(ctx, testCandidate())
		require.NoError(t, err)
		reg.Attendees[0].Name = "mutated"

		got, err := l.Get(ctx, reg.ID)
		require.NoError(t, err)
		assert.Equal(t, "X", got.Attendees[0].Name)
	})
}

func TestAppendUncertainWrites(t *testing.T) {
	ctx := context.Background()

	t.Run("write committed before a timeout is kept", func(t *testing.T) {
		store := newFakeStore()
		calls := 0
		store.AfterCreateFunc = func(ctx context.Context, reg registration.Registration) error {
			calls++
			if calls == 1 {
				return registration.NewTimeoutError("CreateRegistration timed out")
			}
			return nil
		}
		l, err := Open(ctx, store)
		require.NoError(t, err)

		first, err := l.Append(ctx, testCandidate())
		require.NoError(t, err)
		assert.Equal(t, 1, first.ID)
		assert.Equal(t, store.regs[1].InvoiceNumber, first.InvoiceNumber)

		for want := 2; want <= 4; want++ {
			reg, err := l.Append(ctx, testCandidate())
			require.NoError(t, err)
			assert.Equal(t, want, reg.ID)
		}

		regs, err := l.List(ctx)
		require.NoError(t, err)
		assert.Len(t, regs, 4)
		assert.Len(t, store.regs, 4)
	})

	t.Run("timeout without a commit fails and frees the id", func(t *testing.T) {
		store := newFakeStore()
		store.CreateFunc = func(ctx context.Context, reg registration.Registration) error {
			return registration.NewTimeoutError("CreateRegistration timed out")
		}
		l, err := Open(ctx, store)
		require.NoError(t, err)

		_, err = l.Append(ctx, testCandidate())
		require.Error(t, err)
		assert.True(t, registration.IsReason(err, registration.REASON_FAILED_TO_WRITE))

		regs, err := l.List(ctx)
		require.NoError(t, err)
		assert.Empty(t, regs)

		store.CreateFunc = nil
		reg, err := l.Append(ctx, testCandidate())
		require.NoError(t, err)
		assert.Equal(t, 1, reg.ID)
	})

	t.Run("unreadable outcome fails without wedging the ledger", func(t *testing.T) {
		store := newFakeStore()
		store.AfterCreateFunc = func(ctx context.Context, reg registration.Registration) error {
			return registration.NewTimeoutError("CreateRegistration timed out")
		}
		store.GetFunc = func(ctx context.Context, id int) (registration.Registration, error) {
			return registration.Registration{}, errors.New("store unreachable")
		}
		l, err := Open(ctx, store, WithClock(tickingClock(time.Date(2025, 10, 14, 9, 0, 0, 0, time.UTC))))
		require.NoError(t, err)

		_, err = l.Append(ctx, testCandidate())
		assert.True(t, registration.IsReason(err, registration.REASON_FAILED_TO_WRITE))

		store.AfterCreateFunc = nil
		store.GetFunc = nil
		reg, err := l.Append(ctx, testCandidate())
		require.NoError(t, err)
		assert.Equal(t, 2, reg.ID, "the committed record is adopted and its id skipped")

		regs, err := l.List(ctx)
		require.NoError(t, err)
		assert.Equal(t, []int{1, 2}, []int{regs[0].ID, regs[1].ID})
	})

	t.Run("ids already held by the store are skipped", func(t *testing.T) {
		store := newFakeStore()
		l, err := Open(ctx, store)
		require.NoError(t, err)

		other := testCandidate()
		store.regs[1] = registration.Registration{
			ID:            1,
			Version:       1,
			InvoiceNumber: "INV-written-elsewhere",
			Attendees:     other.Attendees,
			Amount:        other.Amount,
		}

		reg, err := l.Append(ctx, testCandidate())
		require.NoError(t, err)
		assert.Equal(t, 2, reg.ID)

		regs, err := l.List(ctx)
		require.NoError(t, err)
		require.Len(t, regs, 2)
		assert.Equal(t, "INV-written-elsewhere", regs[0].InvoiceNumber)
	})

	t.Run("gives up after a bounded number of taken ids", func(t *testing.T) {
		store := newFakeStore()
		l, err := Open(ctx, store)
		require.NoError(t, err)

		for id := 1; id <= maxAppendAttempts; id++ {
			store.regs[id] = registration.Registration{ID: id, Version: 1, InvoiceNumber: fmt.Sprintf("INV-elsewhere-%d", id)}
		}

		_, err = l.Append(ctx, testCandidate())
		assert.True(t, registration.IsReason(err, registration.REASON_FAILED_TO_WRITE))

		reg, err := l.Append(ctx, testCandidate())
		require.NoError(t, err)
		assert.Equal(t, maxAppendAttempts+1, reg.ID)
	})

	t.Run("cancelled request still completes its write", func(t *testing.T) {
		store := newFakeStore()
		store.CreateFunc = func(ctx context.Context, reg registration.Registration) error {
			if ctx.Err() != nil {
				return registration.NewTimeoutError("CreateRegistration cancelled")
			}
			return nil
		}
		l, err := Open(ctx, store)
		require.NoError(t, err)

		cancelled, cancel := context.WithCancel(ctx)
		cancel()

		reg, err := l.Append(cancelled, testCandidate())
		require.NoError(t, err)
		assert.Equal(t, 1, reg.ID)
		assert.Len(t, store.regs, 1)
	})
}

func TestConcurrentAppend(t *testing.T) {
	ctx := context.Background()
	const n = 200

	store := newFakeStore()
	l, err := Open(ctx, store)
	require.NoError(t, err)

	var g errgroup.Group
	for i := 0; i < n; i++ {
		g.Go(func() error {
			_, err := l.Append(ctx, testCandidate())
			return err
		})
	}
	// confirmations race with the appends through the same lock
	for i := 1; i <= n/2; i++ {
		g.Go(func() error {
			err := l.Confirm(ctx, i)
			if registration.IsReason(err, registration.REASON_REGISTRATION_DOES_NOT_EXIST) {
				return nil
			}
			return err
		})
	}
	require.NoError(t, g.Wait())

	regs, err := l.List(ctx)
	require.NoError(t, err)
	require.Len(t, regs, n)

	invoices := map[string]struct{}{}
	for i, reg := range regs {
		assert.Equal(t, i+1, reg.ID, "ids must be contiguous and in insertion order")
		invoices[reg.InvoiceNumber] = struct{}{}
	}
	assert.Len(t, invoices, n)

	// nothing appended was lost by a confirmation's persist step
	assert.Len(t, store.regs, n)
	for _, reg := range regs {
		assert.Equal(t, reg.Paid, store.regs[reg.ID].Paid)
	}
}

func TestConfirm(t *testing.T) {
	ctx := context.Background()
	paidAt := time.Date(2025, 10, 14, 10, 0, 0, 0, time.UTC)

	t.Run("marks paid exactly once", func(t *testing.T) {
		store := newFakeStore()
		var hookCalls int
		l, err := Open(ctx, store,
			WithClock(fixedClock(paidAt)),
			WithOnPaid(func(ctx context.Context, reg registration.Registration) {
				hookCalls++
				assert.True(t, reg.Paid)
			}),
		)
		require.NoError(t, err)

		reg, err := l.Append(ctx, testCandidate())
		require.NoError(t, err)
		assert.False(t, reg.Paid)

		require.NoError(t, l.Confirm(ctx, reg.ID))
		require.NoError(t, l.Confirm(ctx, reg.ID))

		got, err := l.Get(ctx, reg.ID)
		require.NoError(t, err)
		assert.True(t, got.Paid)
		assert.Equal(t, 2, got.Version)
		require.NotNil(t, got.PaidAt)
		assert.Equal(t, paidAt, *got.PaidAt)

		assert.Equal(t, 1, store.updates, "second confirm must not persist again")
		assert.Equal(t, 1, hookCalls)
	})

	t.Run("unknown id is not found and touches nothing", func(t *testing.T) {
		store := newFakeStore()
		l, err := Open(ctx, store)
		require.NoError(t, err)

		reg, err := l.Append(ctx, testCandidate())
		require.NoError(t, err)

		err = l.Confirm(ctx, 42)
		require.Error(t, err)
		var regErr *registration.Error
		require.ErrorAs(t, err, &regErr)
		assert.Equal(t, registration.REASON_REGISTRATION_DOES_NOT_EXIST, regErr.Reason)

		got, err := l.Get(ctx, reg.ID)
		require.NoError(t, err)
		assert.False(t, got.Paid)
		assert.Equal(t, 0, store.updates)
	})

	t.Run("persistence failure keeps the record unpaid", func(t *testing.T) {
		store := newFakeStore()
		store.UpdateFunc = func(ctx context.Context, reg registration.Registration) error {
			return errors.New("throttled")
		}
		l, err := Open(ctx, store)
		require.NoError(t, err)

		reg, err := l.Append(ctx, testCandidate())
		require.NoError(t, err)

		err = l.Confirm(ctx, reg.ID)
		assert.True(t, registration.IsReason(err, registration.REASON_FAILED_TO_WRITE))

		got, err := l.Get(ctx, reg.ID)
		require.NoError(t, err)
		assert.False(t, got.Paid)

		unpaid, err := l.Unpaid(ctx)
		require.NoError(t, err)
		assert.Len(t, unpaid, 1)
	})
}

func TestConfirmUncertainWrites(t *testing.T) {
	ctx := context.Background()

	t.Run("payment committed before a timeout counts", func(t *testing.T) {
		store := newFakeStore()
		store.AfterUpdateFunc = func(ctx context.Context, reg registration.Registration) error {
			return registration.NewTimeoutError("UpdateRegistrationToPaid timed out")
		}
		var hookCalls int
		l, err := Open(ctx, store, WithOnPaid(func(ctx context.Context, reg registration.Registration) {
			hookCalls++
		}))
		require.NoError(t, err)

		reg, err := l.Append(ctx, testCandidate())
		require.NoError(t, err)

		require.NoError(t, l.Confirm(ctx, reg.ID))
		got, err := l.Get(ctx, reg.ID)
		require.NoError(t, err)
		assert.True(t, got.Paid)
		assert.Equal(t, 1, hookCalls)

		require.NoError(t, l.Confirm(ctx, reg.ID))
		assert.Equal(t, 1, store.updates)
	})

	t.Run("timeout without a commit stays unpaid", func(t *testing.T) {
		store := newFakeStore()
		store.UpdateFunc = func(ctx context.Context, reg registration.Registration) error {
			return registration.NewTimeoutError("UpdateRegistrationToPaid timed out")
		}
		l, err := Open(ctx, store)
		require.NoError(t, err)

		reg, err := l.Append(ctx, testCandidate())
		require.NoError(t, err)

		err = l.Confirm(ctx, reg.ID)
		assert.True(t, registration.IsReason(err, registration.REASON_FAILED_TO_WRITE))

		got, err := l.Get(ctx, reg.ID)
		require.NoError(t, err)
		assert.False(t, got.Paid)
	})
}

func TestOpen(t *testing.T) {
	ctx := context.Background()

	t.Run("resumes sequence after stored records", func(t *testing.T) {
		store := newFakeStore()
		for _, id := range []int{2, 1, 3} {
			store.regs[id] = registration.Registration{
				ID:            id,
				Version:       1,
				InvoiceNumber: NewInvoiceNumber(time.Now(), id),
				Attendees:     []registration.Attendee{{Name: "X", Age: 1}},
				Amount:        money.New(1000, "KES"),
				Paid:          id == 2,
			}
		}

		l, err := Open(ctx, store)
		require.NoError(t, err)

		regs, err := l.List(ctx)
		require.NoError(t, err)
		require.Len(t, regs, 3)
		assert.Equal(t, []int{1, 2, 3}, []int{regs[0].ID, regs[1].ID, regs[2].ID})

		unpaid, err := l.Unpaid(ctx)
		require.NoError(t, err)
		assert.Len(t, unpaid, 2)

		reg, err := l.Append(ctx, testCandidate())
		require.NoError(t, err)
		assert.Equal(t, 4, reg.ID)
	})

	t.Run("load failure", func(t *testing.T) {
		store := newFakeStore()
		store.LoadFunc = func(ctx context.Context) ([]registration.Registration, error) {
			return nil, errors.New("connection refused")
		}

		_, err := Open(ctx, store)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "connection refused")
	})
}

func TestNewInvoiceNumber(t *testing.T) {
	at := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	assert.Equal(t, "INV-2025-01-02T03:04:05-0007", NewInvoiceNumber(at, 7))
	assert.Equal(t, "INV-2025-01-02T03:04:05-12345", NewInvoiceNumber(at, 12345))
}
