package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"google.golang.org/api/idtoken"

	"meeting-registration/meeting"
	"meeting-registration/registration"
)

type Environment int

const (
	LOCAL Environment = iota
	PROD
)

func ParseEnvironment(s string) (Environment, error) {
	switch s {
	case "LOCAL", "":
		return LOCAL, nil
	case "PROD":
		return PROD, nil
	default:
		return LOCAL, fmt.Errorf("unknown environment %q", s)
	}
}

type Registrar interface {
	Register(ctx context.Context, req registration.Request) (registration.Result, error)
}

type RegistrationReader interface {
	Get(ctx context.Context, id int) (registration.Registration, error)
	List(ctx context.Context) ([]registration.Registration, error)
}

type GoogleIDVerifier interface {
	Validate(ctx context.Context, idToken string, audience string) (*idtoken.Payload, error)
}

type API struct {
	meetings         meeting.Source
	registrar        Registrar
	registrations    RegistrationReader
	logger           *slog.Logger
	env              Environment
	googleIdVerifier GoogleIDVerifier
	googleAudience   string
	adminDomain      string
	currency         string
	allowedOrigins   []string
	metricsHandler   http.Handler
}

type Option func(*API)

// WithGoogleAuth enables the admin check: tokens must be issued for audience to a user of domain.
func WithGoogleAuth(verifier GoogleIDVerifier, audience string, domain string) Option {
	return func(a *API) {
		a.googleIdVerifier = verifier
		a.googleAudience = audience
		a.adminDomain = domain
	}
}

func WithCurrency(currency string) Option {
	return func(a *API) {
		a.currency = currency
	}
}

func WithAllowedOrigins(origins ...string) Option {
	return func(a *API) {
		a.allowedOrigins = origins
	}
}

// WithMetricsHandler serves h on GET /metrics, outside request validation.
func WithMetricsHandler(h http.Handler) Option {
	return func(a *API) {
		a.metricsHandler = h
	}
}

func NewAPI(meetings meeting.Source, registrar Registrar, registrations RegistrationReader, logger *slog.Logger, env Environment, opts ...Option) *API {
	a := &API{
		meetings:      meetings,
		registrar:     registrar,
		registrations: registrations,
		logger:        logger,
		env:           env,
		currency:      "KES",
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Handler builds the full HTTP handler.
func (a *API) Handler() (http.Handler, error) {
	swagger, err := GetSwagger()
	if err != nil {
		return nil, err
	}
	swagger.Servers = nil

	r := http.NewServeMux()
	r.HandleFunc("GET /meeting", a.GetMeeting)
	r.HandleFunc("POST /register", a.PostRegister)
	r.Handle("GET /registrations", a.requireScopes(adminScope)(http.HandlerFunc(a.GetRegistrations)))
	r.Handle("GET /registrations/{id}", a.requireScopes(adminScope)(http.HandlerFunc(a.GetRegistrationsId)))
	r.Handle("GET /summary", a.requireScopes(adminScope)(http.HandlerFunc(a.GetSummary)))

	validated := useMiddlewares(r,
		a.openapiValidateMiddleware(swagger),
	)

	root := http.NewServeMux()
	if a.metricsHandler != nil {
		root.Handle("GET /metrics", a.metricsHandler)
	}
	root.Handle("/", validated)

	return useMiddlewares(root,
		a.loggingMiddleware(),
		a.requestContextMiddleware(),
		a.corsMiddleware(),
	), nil
}
