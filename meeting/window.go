package meeting

import (
	"context"
	"time"

	"github.com/Rhymond/go-money"
)

// Window is the active meeting's billing rate and registration deadline.
type Window struct {
	Title             string
	Description       string
	EventDate         time.Time
	Deadline          time.Time
	AmountPerAttendee *money.Money
}

// IsOpen reports whether registrations are still admitted at now. The deadline itself is inclusive.
func (w Window) IsOpen(now time.Time) bool {
	return !now.After(w.Deadline)
}

type Source interface {
	GetWindow(ctx context.Context) (Window, error)
}

var _ Source = Static{}

// Static serves a window fixed at process start, usually built from config.
type Static struct {
	window Window
}

func NewStatic(window Window) Static {
	return Static{window: window}
}

func (s Static) GetWindow(ctx context.Context) (Window, error) {
	if s.window.AmountPerAttendee == nil {
		return Window{}, NewMeetingNotConfiguredError("No registration amount configured for the meeting", nil)
	}

	return s.window, nil
}
