package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/angelmondragon/fulfillment-backend/api/responses"
	"github.com/angelmondragon/fulfillment-backend/pkg/auth"
	"github.com/angelmondragon/fulfillment-backend/pkg/config"
	pkgerrors "github.com/angelmondragon/fulfillment-backend/pkg/errors"
	"github.com/angelmondragon/fulfillment-backend/pkg/logger"
)

const bearerScheme = "bearer"

var errMissingCredentials = pkgerrors.New(pkgerrors.CodeUnauthorized, "missing credentials")

// Auth requires a valid bearer token and puts its claims on the context.
func Auth(cfg config.JWTConfig, logg *logger.Logger) func(http.Handler) http.Handler {
	return authenticate(cfg, logg, true)
}

// OptionalAuth lets guests without an Authorization header through. A token
// that is present but invalid is still rejected.
func OptionalAuth(cfg config.JWTConfig, logg *logger.Logger) func(http.Handler) http.Handler {
	return authenticate(cfg, logg, false)
}

func authenticate(cfg config.JWTConfig, logg *logger.Logger, required bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, present := bearerToken(r.Header.Get("Authorization"))
			if !present {
				if required {
					responses.WriteError(r.Context(), logg, w, errMissingCredentials)
					return
				}
				next.ServeHTTP(w, r)
				return
			}

			claims, err := auth.ParseAccessToken(cfg, token)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "invalid token"))
				return
			}
			next.ServeHTTP(w, r.WithContext(withClaims(r.Context(), logg, claims)))
		})
	}
}

// bearerToken extracts the token from an Authorization header. A bare token
// without the scheme is accepted.
func bearerToken(header string) (string, bool) {
	header = strings.TrimSpace(header)
	if header == "" {
		return "", false
	}
	scheme, rest, found := strings.Cut(header, " ")
	if found && strings.EqualFold(scheme, bearerScheme) {
		header = strings.TrimSpace(rest)
	}
	return header, header != ""
}

func withClaims(ctx context.Context, logg *logger.Logger, claims *auth.AccessTokenClaims) context.Context {
	userID := claims.UserID.String()
	ctx = WithRole(WithUserID(ctx, userID), string(claims.Role))
	if logg != nil {
		ctx = logg.WithActorRole(logg.WithUserID(ctx, userID), string(claims.Role))
	}
	return ctx
}
