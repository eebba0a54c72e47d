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

	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"

	pkgerrors "github.com/angelmondragon/roomguard/pkg/errors"
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
	str, _ := value.(string)
	f.data[key] = str
	return nil
}

func (f *fakeStore) Del(_ context.Context, keys ...string) error {
	for _, k := range keys {
		delete(f.data, k)
	}
	return nil
}

func (f *fakeStore) IdempotencyKey(scope, id string) string {
	return fmt.Sprintf("fake:%s:%s", scope, id)
}

func requestWithPattern(method, url, pattern string, body io.Reader) *http.Request {
	req := httptest.NewRequest(method, url, body)
	rc := chi.NewRouteContext()
	rc.RoutePatterns = []string{pattern}
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rc))
}

func TestRouteTTLSelection(t *testing.T) {
	tests := []struct {
		name    string
		method  string
		pattern string
		want    time.Duration
		ok      bool
	}{
		{"create room", http.MethodPost, "/api/v1/rooms", defaultIdempotencyTTL, true},
		{"join pattern", http.MethodPost, "/api/v1/rooms/{roomID}/join", defaultIdempotencyTTL, true},
		{"kick concrete path", http.MethodPost, "/api/v1/rooms/!abc:example.org/kick", defaultIdempotencyTTL, true},
		{"ban", http.MethodPost, "/api/v1/rooms/{roomID}/ban", defaultIdempotencyTTL, true},
		{"join by alias", http.MethodPost, "/api/v1/join/{roomIDOrAlias}", defaultIdempotencyTTL, true},
		{"join by alias concrete", http.MethodPost, "/api/v1/join/#lobby:example.org", defaultIdempotencyTTL, true},
		{"members read", http.MethodGet, "/api/v1/rooms/{roomID}/members", 0, false},
		{"unknown action", http.MethodPost, "/api/v1/rooms/{roomID}/topic", 0, false},
		{"missing room", http.MethodPost, "/api/v1/rooms//join", 0, false},
		{"health", http.MethodGet, "/health/live", 0, false},
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

func TestIdempotencyMiddlewarePassesThroughWithoutHeader(t *testing.T) {
	store := newFakeStore()
	mw := Idempotency(store, nil)
	var calls int
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusOK)
	})

	for i := 0; i < 2; i++ {
		req := requestWithPattern(http.MethodPost, "/api/v1/rooms/!r:example.org/join", "/api/v1/rooms/{roomID}/join", nil)
		resp := httptest.NewRecorder()
		mw(handler).ServeHTTP(resp, req)
		if resp.Code != http.StatusOK {
			t.Fatalf("expected 200 got %d", resp.Code)
		}
	}
	if calls != 2 {
		t.Fatalf("expected handler to run twice, ran %d", calls)
	}
	if len(store.data) != 0 {
		t.Fatalf("expected nothing stored, got %d records", len(store.data))
	}
}

func TestIdempotencyMiddlewareReplaysStoredResponse(t *testing.T) {
	store := newFakeStore()
	mw := Idempotency(store, nil)
	var calls int
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"data":{"membership":"ban"}}`))
	})

	send := func() *httptest.ResponseRecorder {
		req := requestWithPattern(http.MethodPost, "/api/v1/rooms/!r:example.org/ban", "/api/v1/rooms/{roomID}/ban", strings.NewReader(`{"user_id":"@mallory:example.org"}`))
		req.Header.Set("Idempotency-Key", "abc")
		req = req.WithContext(WithUserID(req.Context(), "@alice:example.org"))
		rec := httptest.NewRecorder()
		mw(handler).ServeHTTP(rec, req)
		return rec
	}

	first := send()
	if first.Code != http.StatusOK {
		t.Fatalf("expected first response 200 got %d", first.Code)
	}
	if first.Header().Get(replayedHeader) != "" {
		t.Fatalf("first response must not be marked as replayed")
	}

	rec := send()
	if rec.Code != http.StatusOK {
		t.Fatalf("expected replay status 200 got %d", rec.Code)
	}
	if rec.Header().Get("Content-Type") != "application/json" {
		t.Fatalf("expected content-type header preserved")
	}
	if rec.Header().Get(replayedHeader) != "true" {
		t.Fatalf("expected replay marker header")
	}
	if strings.TrimSpace(rec.Body.String()) != `{"data":{"membership":"ban"}}` {
		t.Fatalf("expected stored body got %s", rec.Body.String())
	}
	if calls != 1 {
		t.Fatalf("handler executed %d times, expected 1", calls)
	}
}

func TestIdempotencyMiddlewareScopesKeysPerActor(t *testing.T) {
	store := newFakeStore()
	mw := Idempotency(store, nil)
	var calls int
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusOK)
	})

	for _, actor := range []string{"@alice:example.org", "@bob:example.org"} {
		req := requestWithPattern(http.MethodPost, "/api/v1/rooms/!r:example.org/join", "/api/v1/rooms/{roomID}/join", nil)
		req.Header.Set("Idempotency-Key", "same")
		req = req.WithContext(WithUserID(req.Context(), actor))
		mw(handler).ServeHTTP(httptest.NewRecorder(), req)
	}
	if calls != 2 {
		t.Fatalf("expected distinct actors to run the handler, ran %d", calls)
	}
}

func TestIdempotencyMiddlewareDoesNotPinServerErrors(t *testing.T) {
	store := newFakeStore()
	mw := Idempotency(store, nil)
	status := http.StatusServiceUnavailable
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
	})

	send := func() int {
		req := requestWithPattern(http.MethodPost, "/api/v1/rooms/!r:example.org/leave", "/api/v1/rooms/{roomID}/leave", nil)
		req.Header.Set("Idempotency-Key", "retry-me")
		rec := httptest.NewRecorder()
		mw(handler).ServeHTTP(rec, req)
		return rec.Code
	}

	if code := send(); code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 got %d", code)
	}
	status = http.StatusOK
	if code := send(); code != http.StatusOK {
		t.Fatalf("expected retry to reach the handler, got %d", code)
	}
}

func TestIdempotencyMiddlewareDetectsBodyChange(t *testing.T) {
	store := newFakeStore()
	mw := Idempotency(store, nil)
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	req := requestWithPattern(http.MethodPost, "/api/v1/rooms/!r:example.org/invite", "/api/v1/rooms/{roomID}/invite", strings.NewReader(`{"user_id":"@bob:example.org"}`))
	req.Header.Set("Idempotency-Key", "xyz")
	mw(handler).ServeHTTP(httptest.NewRecorder(), req)

	replay := requestWithPattern(http.MethodPost, "/api/v1/rooms/!r:example.org/invite", "/api/v1/rooms/{roomID}/invite", strings.NewReader(`{"user_id":"@carol:example.org"}`))
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

func TestIdempotencyMiddlewareRejectsDuplicateWhileInFlight(t *testing.T) {
	store := newFakeStore()
	mw := Idempotency(store, nil)

	newRequest := func() *http.Request {
		req := requestWithPattern(http.MethodPost, "/api/v1/rooms/!r:example.org/kick", "/api/v1/rooms/{roomID}/kick", strings.NewReader(`{"user_id":"@bob:example.org"}`))
		req.Header.Set("Idempotency-Key", "in-flight")
		return req
	}

	var calls int
	var duplicate *httptest.ResponseRecorder
	var handler http.Handler
	handler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if duplicate == nil {
			duplicate = httptest.NewRecorder()
			mw(handler).ServeHTTP(duplicate, newRequest())
		}
		w.WriteHeader(http.StatusOK)
	})

	first := httptest.NewRecorder()
	mw(handler).ServeHTTP(first, newRequest())

	if first.Code != http.StatusOK {
		t.Fatalf("expected first request 200 got %d", first.Code)
	}
	if duplicate.Code != http.StatusConflict {
		t.Fatalf("expected in-flight duplicate 409 got %d", duplicate.Code)
	}
	if calls != 1 {
		t.Fatalf("handler executed %d times, expected 1", calls)
	}

	replay := httptest.NewRecorder()
	mw(handler).ServeHTTP(replay, newRequest())
	if replay.Header().Get(replayedHeader) != "true" {
		t.Fatalf("expected completed request to replay")
	}
}

// racingStore sends a duplicate request whenever the guard writes to or
// releases a key, which is when a second execution could slip in.
type racingStore struct {
	*fakeStore
	duplicate func()
	dels      int
}

func (r *racingStore) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	r.duplicate()
	return r.fakeStore.Set(ctx, key, value, ttl)
}

func (r *racingStore) Del(ctx context.Context, keys ...string) error {
	r.dels++
	r.duplicate()
	return r.fakeStore.Del(ctx, keys...)
}

func TestIdempotencyMiddlewareKeepsClaimUntilRecordIsStored(t *testing.T) {
	store := &racingStore{fakeStore: newFakeStore()}
	mw := Idempotency(store, nil)

	newRequest := func() *http.Request {
		req := requestWithPattern(http.MethodPost, "/api/v1/rooms/!r:example.org/ban", "/api/v1/rooms/{roomID}/ban", strings.NewReader(`{"user_id":"@mallory:example.org"}`))
		req.Header.Set("Idempotency-Key", "settle")
		return req
	}

	var calls int
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"data":{"membership":"ban"}}`))
	})

	var duplicates []int
	store.duplicate = func() {
		if len(duplicates) > 0 {
			return
		}
		rec := httptest.NewRecorder()
		duplicates = append(duplicates, 0)
		mw(handler).ServeHTTP(rec, newRequest())
		duplicates[0] = rec.Code
	}

	first := httptest.NewRecorder()
	mw(handler).ServeHTTP(first, newRequest())

	if first.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", first.Code)
	}
	if calls != 1 {
		t.Fatalf("handler executed %d times, expected 1", calls)
	}
	if len(duplicates) != 1 || duplicates[0] != http.StatusConflict {
		t.Fatalf("expected the racing duplicate to get 409, got %v", duplicates)
	}
	if store.dels != 0 {
		t.Fatalf("successful request must not release its key, Del called %d times", store.dels)
	}

	replay := httptest.NewRecorder()
	mw(handler).ServeHTTP(replay, newRequest())
	if replay.Header().Get(replayedHeader) != "true" || replay.Code != http.StatusOK {
		t.Fatalf("expected stored response replayed, got %d", replay.Code)
	}
}
