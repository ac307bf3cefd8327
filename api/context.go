package api

import (
	"context"
	"log/slog"

	"github.com/google/uuid"
	"google.golang.org/api/idtoken"
)

type ctxKey string

const (
	ctxRequestIdKey ctxKey = "REQUEST_ID"
	ctxLoggerKey    ctxKey = "LOGGER"
	ctxJWTKey       ctxKey = "JWT"
)

func ctxWithRequestId(ctx context.Context, requestId uuid.UUID) context.Context {
	return context.WithValue(ctx, ctxRequestIdKey, requestId)
}

func getRequestIdFromCtx(ctx context.Context) (uuid.UUID, bool) {
	id, ok := ctx.Value(ctxRequestIdKey).(uuid.UUID)
	return id, ok
}

func ctxWithLogger(ctx context.Context, logger *slog.Logger) context.Context {
	return context.WithValue(ctx, ctxLoggerKey, logger)
}

func ctxWithJWT(ctx context.Context, jwt *idtoken.Payload) context.Context {
	return context.WithValue(ctx, ctxJWTKey, jwt)
}

func getJWTFromCtx(ctx context.Context) *idtoken.Payload {
	jwt, _ := ctx.Value(ctxJWTKey).(*idtoken.Payload)
	return jwt
}

// getLoggerOrBaseLogger returns the request scoped logger, falling back to the API logger.
func (a *API) getLoggerOrBaseLogger(ctx context.Context) *slog.Logger {
	if logger, ok := ctx.Value(ctxLoggerKey).(*slog.Logger); ok {
		return logger
	}
	return a.logger
}
