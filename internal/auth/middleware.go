package auth

import (
	"context"
	"fmt"
	"net/http"

	"ms-rental/internal/logger"
	"ms-rental/internal/models"
	"ms-rental/internal/utils"
)

type contextKey string

const actorKey contextKey = "actor"

// Verifier turns a bearer token into the calling actor.
type Verifier interface {
	Verify(ctx context.Context, raw string) (models.Actor, error)
}

func Middleware(verifier Verifier, log *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw, err := ExtractTokenFromRequest(r)
			if err != nil {
				_ = utils.WriteJSON(w, http.StatusUnauthorized, utils.ErrorResponse("unauthorized", err.Error()))
				return
			}
			actor, err := verifier.Verify(r.Context(), raw)
			if err != nil {
				log.LogSecurity("INVALID_TOKEN", fmt.Sprintf("%s %s from %s: %v", r.Method, r.URL.Path, r.RemoteAddr, err))
				_ = utils.WriteJSON(w, http.StatusUnauthorized, utils.ErrorResponse("unauthorized", "invalid token"))
				return
			}
			next.ServeHTTP(w, r.WithContext(WithActor(r.Context(), actor)))
		})
	}
}

func WithActor(ctx context.Context, actor models.Actor) context.Context {
	return context.WithValue(ctx, actorKey, actor)
}

// ActorFrom extracts the authenticated actor in handlers
func ActorFrom(ctx context.Context) (models.Actor, bool) {
	actor, ok := ctx.Value(actorKey).(models.Actor)
	return actor, ok
}
