package api

import (
	"context"
	"log/slog"
	"net/http"

	"meeting-registration/registration"
)

func (a *API) GetSummary(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := a.getLoggerOrBaseLogger(ctx)

	regs, err := a.registrations.List(ctx)
	if err != nil {
		logger.Error("Failed to list registrations for summary", slog.String("error", err.Error()))

		a.writeError(w, r, http.StatusInternalServerError, InternalError, "Failed to build summary")
		return
	}

	summary, err := registration.Summarize(regs, a.summaryCurrency(ctx, regs))
	if err != nil {
		logger.Error("Failed to summarize registrations", slog.String("error", err.Error()))

		a.writeError(w, r, http.StatusInternalServerError, InternalError, "Failed to build summary")
		return
	}

	a.writeJSON(w, r, http.StatusOK, summaryToApiSummary(summary))
}

// summaryCurrency follows the recorded amounts, then the meeting fee, and only then the configured default.
func (a *API) summaryCurrency(ctx context.Context, regs []registration.Registration) string {
	for _, reg := range regs {
		if reg.Amount != nil {
			return reg.Amount.Currency().Code
		}
	}

	window, err := a.meetings.GetWindow(ctx)
	if err == nil && window.AmountPerAttendee != nil {
		return window.AmountPerAttendee.Currency().Code
	}
	return a.currency
}
