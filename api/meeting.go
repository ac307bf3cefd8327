package api

import (
	"log/slog"
	"net/http"
)

func (a *API) GetMeeting(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := a.getLoggerOrBaseLogger(ctx)

	window, err := a.meetings.GetWindow(ctx)
	if err != nil {
		logger.Error("Failed to get the meeting window", slog.String("error", err.Error()))

		a.writeError(w, r, http.StatusServiceUnavailable, MeetingUnavailable, "No meeting is currently open")
		return
	}

	a.writeJSON(w, r, http.StatusOK, windowToApiMeeting(window))
}
