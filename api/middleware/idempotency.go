package middleware

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/angelmondragon/settlez-backend/api/responses"
	pkgerrors "github.com/angelmondragon/settlez-backend/pkg/errors"
	"github.com/angelmondragon/settlez-backend/pkg/logger"
	pkgredis "github.com/angelmondragon/settlez-backend/pkg/redis"
)

const (
	defaultIdempotencyTTL  = 24 * time.Hour
	criticalIdempotencyTTL = 7 * 24 * time.Hour
	// inFlightTTL bounds how long a crashed request can hold its key.
	inFlightTTL          = 2 * time.Minute
	maxIdempotencyKeyLen = 255

	idempotencyHeader = "Idempotency-Key"
	replayedHeader    = "Idempotent-Replayed"
)

// Money-moving endpoints keep their keys for a week; drawer and order
// creation for a day. "{name}" segments match any single non-empty segment.
var idempotencyRoutes = []struct {
	method, pattern string
	ttl             time.Duration
}{
	{http.MethodPost, "/api/v1/orders", defaultIdempotencyTTL},
	{http.MethodPost, "/api/v1/cash-drawer/sessions", defaultIdempotencyTTL},
	{http.MethodPost, "/api/v1/cash-drawer/sessions/{sessionId}/close", defaultIdempotencyTTL},
	{http.MethodPost, "/api/v1/cash-drawer/sessions/{sessionId}/reconcile", defaultIdempotencyTTL},
	{http.MethodPost, "/api/v1/orders/{orderId}/payments", criticalIdempotencyTTL},
	{http.MethodPost, "/api/v1/orders/{orderId}/complete", criticalIdempotencyTTL},
	{http.MethodPost, "/api/v1/orders/{orderId}/cancel", criticalIdempotencyTTL},
	{http.MethodPost, "/api/v1/orders/{orderId}/refunds", criticalIdempotencyTTL},
}

func routeTTL(method, path string) (time.Duration, bool) {
	path = strings.Trim(path, "/")
	if path == "" {
		return 0, false
	}
	segments := strings.Split(path, "/")
	for _, route := range idempotencyRoutes {
		if route.method == method && matchSegments(strings.Split(strings.Trim(route.pattern, "/"), "/"), segments) {
			return route.ttl, true
		}
	}
	return 0, false
}

func matchSegments(pattern, segments []string) bool {
	if len(pattern) != len(segments) {
		return false
	}
	for i, want := range pattern {
		wildcard := strings.HasPrefix(want, "{") && strings.HasSuffix(want, "}")
		switch {
		case wildcard && segments[i] == "":
			return false
		case !wildcard && want != segments[i]:
			return false
		}
	}
	return true
}

// idempotencyRecord is stored under the key. A record without a status is a
// claim held by a request that has not finished yet.
type idempotencyRecord struct {
	RequestHash string `json:"request_hash"`
	Status      int    `json:"status,omitempty"`
	ContentType string `json:"content_type,omitempty"`
	Body        string `json:"body,omitempty"`
}

func (r idempotencyRecord) inFlight() bool { return r.Status == 0 }

func (r idempotencyRecord) encode() string {
	raw, _ := json.Marshal(r)
	return string(raw)
}

// Idempotency executes each Idempotency-Key once per actor, terminal and
// route. The first request claims the key; repeats replay its stored
// response, or get a retryable conflict while it is still running. Server
// errors release the claim so the client may retry.
func Idempotency(store pkgredis.IdempotencyStore, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ttl, ok := routeTTL(r.Method, r.URL.Path)
			if !ok || store == nil {
				next.ServeHTTP(w, r)
				return
			}
			ctx := r.Context()
			fail := func(err error) { responses.WriteError(ctx, logg, w, err) }

			clientKey := strings.TrimSpace(r.Header.Get(idempotencyHeader))
			switch {
			case clientKey == "":
				fail(pkgerrors.New(pkgerrors.CodeValidation, "Idempotency-Key header required"))
				return
			case len(clientKey) > maxIdempotencyKeyLen:
				fail(pkgerrors.Validation(idempotencyHeader, "must be at most 255 characters"))
				return
			}

			body, err := io.ReadAll(r.Body)
			if err != nil {
				fail(pkgerrors.Wrap(pkgerrors.CodeValidation, err, "read request body"))
				return
			}
			r.Body = io.NopCloser(bytes.NewReader(body))

			key := store.IdempotencyKey(idempotencyScope(r), clientKey)
			claim := idempotencyRecord{RequestHash: hashBody(body)}

			claimed, err := store.SetNX(ctx, key, claim.encode(), inFlightTTL)
			if err != nil {
				fail(pkgerrors.Wrap(pkgerrors.CodeDependency, err, "claim idempotency key"))
				return
			}
			if !claimed {
				existing, err := loadRecord(ctx, store, key)
				if err != nil {
					fail(err)
					return
				}
				switch {
				case existing.RequestHash != claim.RequestHash:
					fail(pkgerrors.New(pkgerrors.CodeIdempotency, "idempotency key reused with different request body"))
				case existing.inFlight():
					fail(pkgerrors.New(pkgerrors.CodeConcurrency, "a request with this idempotency key is still in progress"))
				default:
					replay(w, existing)
				}
				return
			}

			capture := &responseCapture{ResponseWriter: w}
			next.ServeHTTP(capture, r)

			// The response is already sent; finish bookkeeping even if the client hung up.
			bg := context.WithoutCancel(ctx)
			if capture.statusCode() >= http.StatusInternalServerError {
				if err := store.Del(bg, key); err != nil {
					logIdempotencyError(bg, logg, "release idempotency key", err)
				}
				return
			}
			done := claim
			done.Status = capture.statusCode()
			done.ContentType = capture.Header().Get("Content-Type")
			done.Body = base64.StdEncoding.EncodeToString(capture.body.Bytes())
			if err := store.Set(bg, key, done.encode(), ttl); err != nil {
				logIdempotencyError(bg, logg, "persist idempotency record", err)
			}
		})
	}
}

// loadRecord reads the record behind a lost claim. A key that expired in
// between reads as a conflict the client can retry.
func loadRecord(ctx context.Context, store pkgredis.IdempotencyStore, key string) (idempotencyRecord, error) {
	raw, err := store.Get(ctx, key)
	switch {
	case errors.Is(err, redis.Nil):
		return idempotencyRecord{}, pkgerrors.New(pkgerrors.CodeConcurrency, "idempotency key changed hands, retry the request")
	case err != nil:
		return idempotencyRecord{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check idempotency")
	}
	var record idempotencyRecord
	if err := json.Unmarshal([]byte(raw), &record); err != nil {
		return idempotencyRecord{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode idempotency record")
	}
	return record, nil
}

func idempotencyScope(r *http.Request) string {
	actor := ""
	if id, ok := ActorIDFromContext(r.Context()); ok {
		actor = id.String()
	}
	return strings.Join([]string{actor, TerminalIDFromContext(r.Context()), r.Method, r.URL.Path}, "|")
}

func replay(w http.ResponseWriter, record idempotencyRecord) {
	if record.ContentType != "" {
		w.Header().Set("Content-Type", record.ContentType)
	}
	w.Header().Set(replayedHeader, "true")
	w.WriteHeader(record.Status)
	if body, err := base64.StdEncoding.DecodeString(record.Body); err == nil {
		_, _ = w.Write(body)
	}
}

func hashBody(payload []byte) string {
	sum := sha256.Sum256(payload)
	return base64.StdEncoding.EncodeToString(sum[:])
}

type responseCapture struct {
	http.ResponseWriter
	body   bytes.Buffer
	status int
}

func (c *responseCapture) statusCode() int {
	if c.status == 0 {
		return http.StatusOK
	}
	return c.status
}

func (c *responseCapture) WriteHeader(code int) {
	if c.status == 0 {
		c.status = code
	}
	c.ResponseWriter.WriteHeader(code)
}

func (c *responseCapture) Write(b []byte) (int, error) {
	if c.status == 0 {
		c.status = http.StatusOK
	}
	c.body.Write(b)
	return c.ResponseWriter.Write(b)
}

func logIdempotencyError(ctx context.Context, logg *logger.Logger, msg string, err error) {
	logg.Error(logg.WithField(ctx, "component", "idempotency"), msg, err)
}
