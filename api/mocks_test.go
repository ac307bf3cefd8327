package api

import (
	"context"
	"log/slog"

	"google.golang.org/api/idtoken"

	"meeting-registration/meeting"
	"meeting-registration/registration"
)

var noopLogger = slog.New(slog.DiscardHandler)

type mockMeetings struct {
	GetWindowFunc func(ctx context.Context) (meeting.Window, error)
}

func (m *mockMeetings) GetWindow(ctx context.Context) (meeting.Window, error) {
	return m.GetWindowFunc(ctx)
}

type mockRegistrar struct {
	RegisterFunc func(ctx context.Context, req registration.Request) (registration.Result, error)
}

func (m *mockRegistrar) Register(ctx context.Context, req registration.Request) (registration.Result, error) {
	return m.RegisterFunc(ctx, req)
}

type mockRegistrations struct {
	GetFunc  func(ctx context.Context, id int) (registration.Registration, error)
	ListFunc func(ctx context.Context) ([]registration.Registration, error)
}

func (m *mockRegistrations) Get(ctx context.Context, id int) (registration.Registration, error) {
	return m.GetFunc(ctx, id)
}

func (m *mockRegistrations) List(ctx context.Context) ([]registration.Registration, error) {
	return m.ListFunc(ctx)
}

type mockIDVerifier struct {
	ValidateFunc func(ctx context.Context, idToken string, audience string) (*idtoken.Payload, error)
}

func (m *mockIDVerifier) Validate(ctx context.Context, idToken string, audience string) (*idtoken.Payload, error) {
	return m.ValidateFunc(ctx, idToken, audience)
}
