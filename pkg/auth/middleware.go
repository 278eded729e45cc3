package auth

import (
	"net/http"
	"strings"

	"github.com/vetbook/appointments/pkg/httpx"
)

// ActorHeader is set by the upstream gateway after it has authenticated the caller.
const ActorHeader = "X-Actor-ID"

const maxActorIDLength = 128

// RequireActor is a chi middleware that reads the actor ID forwarded by the
// gateway and injects it into the request context.
// Returns 401 Unauthorized if the header is missing, blank or oversized.
//
// After this middleware, handlers can safely call auth.ActorFromCtx(r.Context()).
func RequireActor(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		actor := strings.TrimSpace(r.Header.Get(ActorHeader))
		if actor == "" || len(actor) > maxActorIDLength {
			httpx.JSONError(w, http.StatusUnauthorized, "authentication required")
			return
		}
		next.ServeHTTP(w, r.WithContext(WithActor(r.Context(), actor)))
	})
}
