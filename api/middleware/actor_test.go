package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestActorRejectsMissingOrInvalidHeader(t *testing.T) {
	for _, header := range []string{"", "not-a-uuid", uuid.Nil.String()} {
		called := false
		handler := Actor(nil)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) { called = true }))

		req := httptest.NewRequest(http.MethodGet, "/api/v1/orders", nil)
		if header != "" {
			req.Header.Set(actorIDHeader, header)
		}
		resp := httptest.NewRecorder()
		handler.ServeHTTP(resp, req)

		assert.Equal(t, http.StatusUnauthorized, resp.Code, header)
		assert.False(t, called, header)
	}
}

func TestActorSeedsContext(t *testing.T) {
	actor := uuid.New()
	var gotActor uuid.UUID
	var gotTerminal string
	handler := Actor(nil)(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		var ok bool
		gotActor, ok = ActorIDFromContext(r.Context())
		require.True(t, ok)
		gotTerminal = TerminalIDFromContext(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/orders", nil)
	req.Header.Set(actorIDHeader, actor.String())
	req.Header.Set(terminalIDHeader, " till-2 ")
	handler.ServeHTTP(httptest.NewRecorder(), req)

	assert.Equal(t, actor, gotActor)
	assert.Equal(t, "till-2", gotTerminal)
}
