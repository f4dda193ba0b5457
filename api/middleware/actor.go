package middleware

import (
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/angelmondragon/settlez-backend/api/responses"
	pkgerrors "github.com/angelmondragon/settlez-backend/pkg/errors"
	"github.com/angelmondragon/settlez-backend/pkg/logger"
)

const (
	actorIDHeader    = "X-Actor-Id"
	terminalIDHeader = "X-Terminal-Id"
)

// Actor requires the X-Actor-Id header and seeds the request context with the
// acting staff member and, when sent, the register the request came from.
// Identity is asserted by the upstream terminal gateway.
func Actor(logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := strings.TrimSpace(r.Header.Get(actorIDHeader))
			if raw == "" {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing actor"))
				return
			}
			actorID, err := uuid.Parse(raw)
			if err != nil || actorID == uuid.Nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "invalid actor"))
				return
			}

			ctx := WithActorID(r.Context(), actorID)
			if logg != nil {
				ctx = logg.WithActorID(ctx, actorID.String())
			}
			if terminal := strings.TrimSpace(r.Header.Get(terminalIDHeader)); terminal != "" {
				ctx = WithTerminalID(ctx, terminal)
				if logg != nil {
					ctx = logg.WithTerminalID(ctx, terminal)
				}
			}

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
