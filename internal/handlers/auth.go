package handlers

import (
	"context"
	"net/http"
	"strings"

	"github.com/threadlane/threadlane/internal/models"
	"github.com/threadlane/threadlane/internal/shoperr"
)

type actorContextKey struct{}

// RequireAuth resolves the bearer token to an actor and stores it in the
// request context. Requests without a valid token never reach the services.
func (h *Handlers) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r)
		if token == "" {
			h.writeJSON(w, r, http.StatusUnauthorized, errorBody{
				Error: errorDetail{Kind: "unauthorized", Message: "missing bearer token"},
			})
			return
		}

		actor, err := h.verifier.ActorFromToken(token)
		if err != nil {
			h.loggerFromContext(r.Context()).Info("rejected token", "error", err, "path", r.URL.Path)
			h.writeJSON(w, r, http.StatusUnauthorized, errorBody{
				Error: errorDetail{Kind: "unauthorized", Message: "invalid or expired token"},
			})
			return
		}

		ctx := context.WithValue(r.Context(), actorContextKey{}, actor)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireAdmin rejects non-admin actors before the handler runs. Services
// check roles as well; this keeps admin routes from leaking shape information.
func (h *Handlers) RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		actor := actorFromContext(r.Context())
		if actor.Role != models.RoleAdmin {
			h.writeError(w, r, shoperr.Forbidden("admin access required"))
			return
		}
		next.ServeHTTP(w, r)
	})
}

func actorFromContext(ctx context.Context) models.Actor {
	if actor, ok := ctx.Value(actorContextKey{}).(models.Actor); ok {
		return actor
	}
	return models.Actor{}
}

func bearerToken(r *http.Request) string {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if header == "" {
		return ""
	}
	scheme, token, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}
