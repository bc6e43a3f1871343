package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/mcoot/chaosroom/internal/api/apierr"
	"github.com/mcoot/chaosroom/internal/model"
	"github.com/mcoot/chaosroom/internal/services/auth"
)

type contextKey string

const (
	actorContextKey   contextKey = "actor"
	sessionContextKey contextKey = "session"
)

// ActorResolver loads the current role of a signed-in player
type ActorResolver interface {
	Actor(ctx context.Context, id model.PlayerID) (model.Actor, error)
}

// Auth creates authentication middleware. The actor's role is read from the
// store on every request so approvals and revocations apply immediately.
func Auth(authService *auth.Service, actors ActorResolver) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := extractToken(r)
			if token == "" {
				apierr.WriteError(w, apierr.NewUnauthorizedError())
				return
			}

			session, err := authService.ValidateSession(token)
			if err != nil {
				apierr.WriteError(w, err)
				return
			}

			actor, err := actors.Actor(r.Context(), session.PlayerID)
			if errors.Is(err, model.ErrPlayerNotFound) {
				apierr.WriteError(w, auth.ErrInvalidSession)
				return
			}
			if err != nil {
				apierr.WriteError(w, model.PersistError(err))
				return
			}

			ctx := r.Context()
			ctx = context.WithValue(ctx, sessionContextKey, session)
			ctx = context.WithValue(ctx, actorContextKey, actor)

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// extractToken extracts the session token from the request. Browsers cannot
// set headers on EventSource or WebSocket requests, so a token query
// parameter is accepted too.
func extractToken(r *http.Request) string {
	authHeader := r.Header.Get("Authorization")
	if strings.HasPrefix(authHeader, "Bearer ") {
		return strings.TrimPrefix(authHeader, "Bearer ")
	}

	if cookie, err := r.Cookie("session"); err == nil {
		return cookie.Value
	}

	return r.URL.Query().Get("token")
}

// GetActor returns the authenticated actor from the request context
func GetActor(ctx context.Context) (model.Actor, bool) {
	actor, ok := ctx.Value(actorContextKey).(model.Actor)
	return actor, ok
}

// GetSession returns the session from the request context
func GetSession(ctx context.Context) *auth.Session {
	session, _ := ctx.Value(sessionContextKey).(*auth.Session)
	return session
}

// MustGetActor returns the authenticated actor or panics
func MustGetActor(ctx context.Context) model.Actor {
	actor, ok := GetActor(ctx)
	if !ok {
		panic("no actor in context - auth middleware not applied?")
	}
	return actor
}
