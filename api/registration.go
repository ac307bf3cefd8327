package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/samber/lo"

	"meeting-registration/registration"
)

const maxRegisterBodyBytes = 1 << 20

func (a *API) PostRegister(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := a.getLoggerOrBaseLogger(ctx)

	var body RegisterRequest
	err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRegisterBodyBytes)).Decode(&body)
	if err != nil {
		logger.Warn("Invalid body for registration", slog.String("error", err.Error()))

		a.writeError(w, r, http.StatusBadRequest, InputValidationError, "Invalid body")
		return
	}

	result, err := a.registrar.Register(ctx, apiRegisterRequestToRequest(body))
	if err != nil {
		var registrationErr *registration.Error
		if errors.As(err, &registrationErr) {
			switch registrationErr.Reason {
			case registration.REASON_INVALID_REGISTRATION:
				logger.Info("Rejected invalid registration", slog.String("error", registrationErr.Message))

				a.writeError(w, r, http.StatusBadRequest, InputValidationError, registrationErr.Message)
				return
			case registration.REASON_REGISTRATION_IS_CLOSED:
				logger.Info("Rejected registration after the deadline")

				a.writeError(w, r, http.StatusBadRequest, RegistrationClosed, "Registration deadline has passed")
				return
			case registration.REASON_MEETING_UNAVAILABLE:
				logger.Error("Meeting window unavailable for registration", slog.String("error", err.Error()))

				a.writeError(w, r, http.StatusServiceUnavailable, MeetingUnavailable, "No meeting is currently open")
				return
			}
		}

		logger.Error("Error trying to register", slog.String("error", err.Error()))

		a.writeError(w, r, http.StatusInternalServerError, InternalError, "Failed to record the registration")
		return
	}

	logger.Info("Registration recorded",
		slog.Int("registrationId", result.RegistrationID),
		slog.String("invoiceNumber", result.Invoice.InvoiceNumber),
	)

	a.writeJSON(w, r, http.StatusCreated, RegisterResponse{
		Message:        "Registration successful",
		Invoice:        invoiceToApiInvoice(result.Invoice),
		RegistrationID: result.RegistrationID,
	})
}

func (a *API) GetRegistrations(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := a.getLoggerOrBaseLogger(ctx)

	regs, err := a.registrations.List(ctx)
	if err != nil {
		logger.Error("Failed to list registrations", slog.String("error", err.Error()))

		a.writeError(w, r, http.StatusInternalServerError, InternalError, "Failed to get registrations")
		return
	}

	logger.Info("Registrations listed", slog.Int("count", len(regs)), slog.String("admin", adminEmail(ctx)))

	a.writeJSON(w, r, http.StatusOK, lo.Map(regs, func(reg registration.Registration, _ int) Registration {
		return registrationToApiRegistration(reg)
	}))
}

func (a *API) GetRegistrationsId(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := a.getLoggerOrBaseLogger(ctx)

	id, err := strconv.Atoi(r.PathValue("id"))
	if err != nil {
		a.writeError(w, r, http.StatusBadRequest, InputValidationError, "Registration id must be an integer")
		return
	}

	reg, err := a.registrations.Get(ctx, id)
	if err != nil {
		if registration.IsReason(err, registration.REASON_REGISTRATION_DOES_NOT_EXIST) {
			a.writeError(w, r, http.StatusNotFound, NotFound, "Registration does not exist")
			return
		}

		logger.Error("Failed to get registration", slog.Int("registrationId", id), slog.String("error", err.Error()))

		a.writeError(w, r, http.StatusInternalServerError, InternalError, "Failed to get registration")
		return
	}

	a.writeJSON(w, r, http.StatusOK, registrationToApiRegistration(reg))
}
