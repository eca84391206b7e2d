package middleware

import (
	"net/http"
	"strings"

	"github.com/angelmondragon/caisseflow/api/validators"
	"github.com/angelmondragon/caisseflow/pkg/logger"
)

const actorHeader = "X-Actor-Id"

// Actor records the caller-declared actor. Identity is asserted by the chat
// front end; the value only scopes idempotency keys and log lines.
func Actor(logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			actor := validators.SanitizeString(r.Header.Get(actorHeader), 128)
			if actor == "" {
				next.ServeHTTP(w, r)
				return
			}
			ctx := WithActor(r.Context(), strings.TrimSpace(actor))
			if logg != nil {
				ctx = logg.WithActor(ctx, actor)
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
