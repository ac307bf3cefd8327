package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/International-Combat-Archery-Alliance/middleware"
	"google.golang.org/api/idtoken"
)

const (
	adminScope             = "admin"
	googleAuthJWTCookieKey = "GOOGLE_AUTH_JWT"
)

func (a *API) scopeValidator(scope string) (func(jwt *idtoken.Payload) error, bool) {
	switch scope {
	case adminScope:
		return func(jwt *idtoken.Payload) error {
			org, ok := jwt.Claims["hd"]
			if !ok {
				return fmt.Errorf("hd claim not in JWT")
			}
			if org != a.adminDomain {
				return fmt.Errorf("user is not an admin")
			}

			return nil
		}, true
	default:
		return nil, false
	}
}

func (a *API) validateGoogleOauthToken(ctx context.Context, token string, scopes []string) (*idtoken.Payload, error) {
	jwt, err := a.googleIdVerifier.Validate(ctx, token, a.googleAudience)
	if err != nil {
		return nil, err
	}

	for _, scope := range scopes {
		validator, ok := a.scopeValidator(scope)
		if !ok {
			return nil, fmt.Errorf("unknown scope: %q", scope)
		}

		err = validator(jwt)
		if err != nil {
			return nil, fmt.Errorf("user does not have scope %q", scope)
		}
	}

	return jwt, nil
}

// authDisabled is only true for local development without a configured audience.
func (a *API) authDisabled() bool {
	return a.env == LOCAL && (a.googleIdVerifier == nil || a.googleAudience == "")
}

func (a *API) requireScopes(scopes ...string) middleware.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			logger := a.getLoggerOrBaseLogger(ctx)

			if a.authDisabled() {
				next.ServeHTTP(w, r)
				return
			}
			if a.googleIdVerifier == nil {
				logger.Error("admin endpoint called without a configured id token verifier")
				a.writeError(w, r, http.StatusUnauthorized, AuthError, "Authentication is not configured")
				return
			}

			token, ok := tokenFromRequest(r)
			if !ok {
				a.writeError(w, r, http.StatusUnauthorized, AuthError, "Missing auth token")
				return
			}

			jwt, err := a.validateGoogleOauthToken(ctx, token, scopes)
			if err != nil {
				logger.Warn("rejected admin request", slog.String("error", err.Error()))
				a.writeError(w, r, http.StatusUnauthorized, AuthError, "Not authorized")
				return
			}

			next.ServeHTTP(w, r.WithContext(ctxWithJWT(ctx, jwt)))
		})
	}
}

// tokenFromRequest reads the id token from the login cookie or a bearer Authorization header.
func tokenFromRequest(r *http.Request) (string, bool) {
	if cookie, err := r.Cookie(googleAuthJWTCookieKey); err == nil && cookie.Value != "" {
		return cookie.Value, true
	}

	token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	if !ok || token == "" {
		return "", false
	}
	return token, true
}

func adminEmail(ctx context.Context) string {
	jwt := getJWTFromCtx(ctx)
	if jwt == nil {
		return ""
	}
	email, _ := jwt.Claims["email"].(string)
	return email
}
