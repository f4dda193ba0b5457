package middleware

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	pkgerrors "github.com/angelmondragon/settlez-backend/pkg/errors"
)

type fakeStore struct {
	data map[string]string
}

func newFakeStore() *fakeStore {
	return &fakeStore{data: make(map[string]string)}
}

func (f *fakeStore) Get(_ context.Context, key string) (string, error) {
	if v, ok := f.data[key]; ok {
		return v, nil
	}
	return "", redis.Nil
}

func (f *fakeStore) SetNX(_ context.Context, key string, value any, _ time.Duration) (bool, error) {
	if _, ok := f.data[key]; ok {
		return false, nil
	}
	str, _ := value.(string)
	f.data[key] = str
	return true, nil
}

func (f *fakeStore) Set(_ context.Context, key string, value any, _ time.Duration) error {
	f.data[key], _ = value.(string)
	return nil
}

func (f *fakeStore) Del(_ context.Context, keys ...string) error {
	for _, key := range keys {
		delete(f.data, key)
	}
	return nil
}

// lostClaimStore refuses every claim but holds nothing, as when a key expires
// between SETNX and GET.
type lostClaimStore struct{ fakeStore }

func (l *lostClaimStore) SetNX(context.Context, string, any, time.Duration) (bool, error) {
	return false, nil
}

func errorCode(t *testing.T, resp *httptest.ResponseRecorder) string {
	t.Helper()
	var payload struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &payload); err != nil {
		t.Fatalf("parse error response: %v", err)
	}
	return payload.Error.Code
}

func (f *fakeStore) IdempotencyKey(scope, id string) string {
	return fmt.Sprintf("fake:%s:%s", scope, id)
}

func actorRequest(method, url string, actor uuid.UUID, body io.Reader) *http.Request {
	req := httptest.NewRequest(method, url, body)
	return req.WithContext(WithActorID(req.Context(), actor))
}

func TestRouteTTLSelection(t *testing.T) {
	tests := []struct {
		name    string
		method  string
		pattern string
		want    time.Duration
		ok      bool
	}{
		{"payment", http.MethodPost, "/api/v1/orders/123/payments", criticalIdempotencyTTL, true},
		{"complete", http.MethodPost, "/api/v1/orders/123/complete", criticalIdempotencyTTL, true},
		{"order cancel", http.MethodPost, "/api/v1/orders/456/cancel", criticalIdempotencyTTL, true},
		{"refund", http.MethodPost, "/api/v1/orders/456/refunds", criticalIdempotencyTTL, true},
		{"create order", http.MethodPost, "/api/v1/orders", defaultIdempotencyTTL, true},
		{"drawer open", http.MethodPost, "/api/v1/cash-drawer/sessions", defaultIdempotencyTTL, true},
		{"drawer close", http.MethodPost, "/api/v1/cash-drawer/sessions/abc/close", defaultIdempotencyTTL, true},
		{"drawer reconcile", http.MethodPost, "/api/v1/cash-drawer/sessions/abc/reconcile", defaultIdempotencyTTL, true},
		{"list refunds", http.MethodGet, "/api/v1/orders/456/refunds", 0, false},
		{"add line", http.MethodPost, "/api/v1/orders/456/lines", 0, false},
	}

	for _, tt := range tests {
		ttl, ok := routeTTL(tt.method, tt.pattern)
		if ok != tt.ok {
			t.Fatalf("%s: expected ok=%v got %v", tt.name, tt.ok, ok)
		}
		if ok && ttl != tt.want {
			t.Fatalf("%s: expected ttl=%v got %v", tt.name, tt.want, ttl)
		}
	}
}

func TestIdempotencyMiddlewareRequiresHeader(t *testing.T) {
	actor := uuid.New()
	store := newFakeStore()
	mw := Idempotency(store, nil)
	handlerCalled := false
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		handlerCalled = true
		w.WriteHeader(http.StatusCreated)
	})

	req := actorRequest(http.MethodPost, "/api/v1/orders/o-1/payments", actor, strings.NewReader(`{"foo":"bar"}`))
	resp := httptest.NewRecorder()
	mw(handler).ServeHTTP(resp, req)

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", resp.Code)
	}
	if handlerCalled {
		t.Fatalf("handler should not run without idempotency key")
	}
}

func TestIdempotencyMiddlewareReplaysStoredResponse(t *testing.T) {
	actor := uuid.New()
	store := newFakeStore()
	mw := Idempotency(store, nil)
	var calls int
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusAccepted)
		_, _ = w.Write([]byte(`{"ok":true}`))
	})

	req := actorRequest(http.MethodPost, "/api/v1/orders/o-1/payments", actor, strings.NewReader(`{"foo":"bar"}`))
	req.Header.Set("Idempotency-Key", "abc")
	resp := httptest.NewRecorder()
	mw(handler).ServeHTTP(resp, req)
	if resp.Code != http.StatusAccepted {
		t.Fatalf("expected first response 202 got %d", resp.Code)
	}

	replay := actorRequest(http.MethodPost, "/api/v1/orders/o-1/payments", actor, strings.NewReader(`{"foo":"bar"}`))
	replay.Header.Set("Idempotency-Key", "abc")
	rec := httptest.NewRecorder()
	mw(handler).ServeHTTP(rec, replay)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected replay status 202 got %d", rec.Code)
	}
	if rec.Header().Get("Content-Type") != "application/json" {
		t.Fatalf("expected content-type header preserved")
	}
	if strings.TrimSpace(rec.Body.String()) != `{"ok":true}` {
		t.Fatalf("expected stored body got %s", rec.Body.String())
	}
	if calls != 1 {
		t.Fatalf("handler executed %d times, expected 1", calls)
	}
}

func TestIdempotencyMiddlewareDetectsBodyChange(t *testing.T) {
	actor := uuid.New()
	store := newFakeStore()
	mw := Idempotency(store, nil)
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	req := actorRequest(http.MethodPost, "/api/v1/orders/o-1/payments", actor, strings.NewReader(`{"foo":"bar"}`))
	req.Header.Set("Idempotency-Key", "xyz")
	mw(handler).ServeHTTP(httptest.NewRecorder(), req)

	replay := actorRequest(http.MethodPost, "/api/v1/orders/o-1/payments", actor, strings.NewReader(`{"foo":"diff"}`))
	replay.Header.Set("Idempotency-Key", "xyz")
	resp := httptest.NewRecorder()
	mw(handler).ServeHTTP(resp, replay)

	if resp.Code != http.StatusConflict {
		t.Fatalf("expected 409 got %d", resp.Code)
	}
	var payload struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &payload); err != nil {
		t.Fatalf("parse error response: %v", err)
	}
	if payload.Error.Code != string(pkgerrors.CodeIdempotency) {
		t.Fatalf("expected error code %s got %s", pkgerrors.CodeIdempotency, payload.Error.Code)
	}
}

func TestIdempotencyKeysAreScopedPerActor(t *testing.T) {
	store := newFakeStore()
	mw := Idempotency(store, nil)
	var calls int
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusCreated)
	})

	for _, actor := range []uuid.UUID{uuid.New(), uuid.New()} {
		req := actorRequest(http.MethodPost, "/api/v1/orders/o-1/refunds", actor, strings.NewReader(`{"reason":"damaged"}`))
		req.Header.Set("Idempotency-Key", "same")
		mw(handler).ServeHTTP(httptest.NewRecorder(), req)
	}
	if calls != 2 {
		t.Fatalf("expected each actor to execute once, got %d calls", calls)
	}
}

func TestIdempotencyMiddlewareMarksReplays(t *testing.T) {
	actor := uuid.New()
	mw := Idempotency(newFakeStore(), nil)
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
	})

	var last *httptest.ResponseRecorder
	for i := 0; i < 2; i++ {
		req := actorRequest(http.MethodPost, "/api/v1/cash-drawer/sessions", actor, strings.NewReader(`{}`))
		req.Header.Set("Idempotency-Key", "open-1")
		last = httptest.NewRecorder()
		mw(handler).ServeHTTP(last, req)
		if i == 0 && last.Header().Get(replayedHeader) != "" {
			t.Fatalf("first response must not be marked as replayed")
		}
	}
	if last.Header().Get(replayedHeader) != "true" {
		t.Fatalf("expected replay header on second response")
	}
}

func TestIdempotencyMiddlewareDoesNotStoreServerErrors(t *testing.T) {
	actor := uuid.New()
	mw := Idempotency(newFakeStore(), nil)
	var calls int
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusCreated)
	})

	for i := 0; i < 2; i++ {
		req := actorRequest(http.MethodPost, "/api/v1/orders/o-1/complete", actor, strings.NewReader(`{}`))
		req.Header.Set("Idempotency-Key", "retry")
		mw(handler).ServeHTTP(httptest.NewRecorder(), req)
	}
	if calls != 2 {
		t.Fatalf("expected retry after server error to execute, got %d calls", calls)
	}
}

func TestIdempotencyMiddlewareRejectsOversizedKey(t *testing.T) {
	mw := Idempotency(newFakeStore(), nil)
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatalf("handler should not run")
	})
	req := actorRequest(http.MethodPost, "/api/v1/orders", uuid.New(), strings.NewReader(`{}`))
	req.Header.Set("Idempotency-Key", strings.Repeat("k", maxIdempotencyKeyLen+1))
	resp := httptest.NewRecorder()
	mw(handler).ServeHTTP(resp, req)
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", resp.Code)
	}
}

func TestIdempotencyKeysAreScopedPerTerminal(t *testing.T) {
	actor := uuid.New()
	mw := Idempotency(newFakeStore(), nil)
	var calls int
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusCreated)
	})

	for _, terminal := range []string{"till-1", "till-2"} {
		req := actorRequest(http.MethodPost, "/api/v1/orders", actor, strings.NewReader(`{}`))
		req = req.WithContext(WithTerminalID(req.Context(), terminal))
		req.Header.Set("Idempotency-Key", "same")
		mw(handler).ServeHTTP(httptest.NewRecorder(), req)
	}
	if calls != 2 {
		t.Fatalf("expected each terminal to execute once, got %d calls", calls)
	}
}

func TestIdempotencyMiddlewareRejectsWhileInFlight(t *testing.T) {
	actor := uuid.New()
	store := newFakeStore()
	mw := Idempotency(store, nil)

	var inner *httptest.ResponseRecorder
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if inner == nil {
			retry := actorRequest(http.MethodPost, "/api/v1/orders/o-1/complete", actor, strings.NewReader(`{}`))
			retry.Header.Set(idempotencyHeader, "slow")
			inner = httptest.NewRecorder()
			mw(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
				t.Fatalf("concurrent duplicate must not execute")
			})).ServeHTTP(inner, retry)
		}
		w.WriteHeader(http.StatusOK)
	})

	req := actorRequest(http.MethodPost, "/api/v1/orders/o-1/complete", actor, strings.NewReader(`{}`))
	req.Header.Set(idempotencyHeader, "slow")
	resp := httptest.NewRecorder()
	mw(handler).ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected first request to succeed, got %d", resp.Code)
	}
	if inner.Code != http.StatusConflict {
		t.Fatalf("expected 409 for in-flight duplicate, got %d", inner.Code)
	}
	if code := errorCode(t, inner); code != string(pkgerrors.CodeConcurrency) {
		t.Fatalf("expected %s got %s", pkgerrors.CodeConcurrency, code)
	}
	if inner.Header().Get(replayedHeader) != "" {
		t.Fatalf("in-flight rejection must not be marked as a replay")
	}
}

func TestIdempotencyMiddlewareLostClaimIsRetryable(t *testing.T) {
	store := &lostClaimStore{fakeStore: *newFakeStore()}
	mw := Idempotency(store, nil)
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatalf("handler should not run without the claim")
	})

	req := actorRequest(http.MethodPost, "/api/v1/orders", uuid.New(), strings.NewReader(`{}`))
	req.Header.Set(idempotencyHeader, "gone")
	resp := httptest.NewRecorder()
	mw(handler).ServeHTTP(resp, req)

	if resp.Code != http.StatusConflict || errorCode(t, resp) != string(pkgerrors.CodeConcurrency) {
		t.Fatalf("expected retryable conflict, got %d %s", resp.Code, resp.Body.String())
	}
}

func TestIdempotencyMiddlewareSkipsUnlistedRoutes(t *testing.T) {
	store := newFakeStore()
	var calls int
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusOK)
	})
	for i := 0; i < 2; i++ {
		req := actorRequest(http.MethodPost, "/api/v1/orders/o-1/lines", uuid.New(), strings.NewReader(`{}`))
		Idempotency(store, nil)(handler).ServeHTTP(httptest.NewRecorder(), req)
	}
	if calls != 2 || len(store.data) != 0 {
		t.Fatalf("unlisted route must bypass idempotency, calls=%d stored=%d", calls, len(store.data))
	}
}
