package registration

import (
	"context"
	"sync"
	"time"

	"github.com/International-Combat-Archery-Alliance/email"

	"meeting-registration/meeting"
)

type mockSource struct {
	GetWindowFunc func(ctx context.Context) (meeting.Window, error)
}

func (m *mockSource) GetWindow(ctx context.Context) (meeting.Window, error) {
	return m.GetWindowFunc(ctx)
}

type mockLedger struct {
	AppendFunc  func(ctx context.Context, candidate Candidate) (Registration, error)
	GetFunc     func(ctx context.Context, id int) (Registration, error)
	ListFunc    func(ctx context.Context) ([]Registration, error)
	ConfirmFunc func(ctx context.Context, id int) error
	UnpaidFunc  func(ctx context.Context) ([]Registration, error)

	appendCalls int
}

func (m *mockLedger) Append(ctx context.Context, candidate Candidate) (Registration, error) {
	m.appendCalls++
	return m.AppendFunc(ctx, candidate)
}

func (m *mockLedger) Get(ctx context.Context, id int) (Registration, error) {
	return m.GetFunc(ctx, id)
}

func (m *mockLedger) List(ctx context.Context) ([]Registration, error) {
	return m.ListFunc(ctx)
}

func (m *mockLedger) Confirm(ctx context.Context, id int) error {
	return m.ConfirmFunc(ctx, id)
}

func (m *mockLedger) Unpaid(ctx context.Context) ([]Registration, error) {
	return m.UnpaidFunc(ctx)
}

type scheduled struct {
	ID    int
	Delay time.Duration
}

type mockScheduler struct {
	ScheduleFunc func(id int, delay time.Duration) error

	mu    sync.Mutex
	calls []scheduled
}

func (m *mockScheduler) Schedule(id int, delay time.Duration) error {
	m.mu.Lock()
	m.calls = append(m.calls, scheduled{ID: id, Delay: delay})
	m.mu.Unlock()

	if m.ScheduleFunc == nil {
		return nil
	}
	return m.ScheduleFunc(id, delay)
}

type mockEmailSender struct {
	SendEmailFunc func(ctx context.Context, e email.Email) error

	sent []email.Email
}

func (m *mockEmailSender) SendEmail(ctx context.Context, e email.Email) error {
	m.sent = append(m.sent, e)
	if m.SendEmailFunc == nil {
		return nil
	}
	return m.SendEmailFunc(ctx, e)
}
