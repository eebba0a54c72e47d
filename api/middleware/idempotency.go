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

	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"

	"github.com/angelmondragon/roomguard/api/responses"
	pkgerrors "github.com/angelmondragon/roomguard/pkg/errors"
	"github.com/angelmondragon/roomguard/pkg/logger"
	pkgredis "github.com/angelmondragon/roomguard/pkg/redis"
)

const (
	idempotencyHeader     = "Idempotency-Key"
	replayedHeader        = "Idempotent-Replayed"
	maxIdempotencyKeyLen  = 255
	defaultIdempotencyTTL = 24 * time.Hour
)

type routeMatcher func(string) bool

type idempotencyRule struct {
	method  string
	matcher routeMatcher
	ttl     time.Duration
}

var idempotencyRules = []idempotencyRule{
	{method: http.MethodPost, matcher: matchExact("/api/v1/rooms"), ttl: defaultIdempotencyTTL},
	{method: http.MethodPost, matcher: matchSegment("/api/v1/join/"), ttl: defaultIdempotencyTTL},
	{method: http.MethodPost, matcher: matchRoomAction("join", "leave", "invite", "kick", "ban"), ttl: defaultIdempotencyTTL},
}

type idempotencyRecord struct {
	Pending     bool              `json:"pending,omitempty"`
	Status      int               `json:"status,omitempty"`
	Body        string            `json:"body,omitempty"`
	Headers     map[string]string `json:"headers,omitempty"`
	RequestHash string            `json:"request_hash"`
}

// pendingClaimTTL bounds how long a crashed request can hold its key.
const pendingClaimTTL = time.Minute

type idempotencyGuard struct {
	store pkgredis.IdempotencyStore
	logg  *logger.Logger
}

// Idempotency replays the stored response for a repeated Idempotency-Key on
// mutating room routes. Requests without the header pass straight through.
// A key is claimed before the handler runs so a concurrent duplicate is
// rejected instead of executing twice.
func Idempotency(store pkgredis.IdempotencyStore, logg *logger.Logger) func(http.Handler) http.Handler {
	g := &idempotencyGuard{store: store, logg: logg}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ttl, ok := routeTTL(r.Method, routePattern(r))
			clientKey := strings.TrimSpace(r.Header.Get(idempotencyHeader))
			if !ok || store == nil || clientKey == "" {
				next.ServeHTTP(w, r)
				return
			}
			if err := g.serve(w, r, next, clientKey, ttl); err != nil {
				responses.WriteError(r.Context(), logg, w, err)
			}
		})
	}
}

func (g *idempotencyGuard) serve(w http.ResponseWriter, r *http.Request, next http.Handler, clientKey string, ttl time.Duration) error {
	if len(clientKey) > maxIdempotencyKeyLen {
		return pkgerrors.New(pkgerrors.CodeValidation, "Idempotency-Key header too long")
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "read request body")
	}
	r.Body = io.NopCloser(bytes.NewReader(body))

	ctx := r.Context()
	hash := hashBody(body)
	key := g.store.IdempotencyKey(buildScope(r), clientKey)

	claimed, err := g.claim(ctx, key, hash)
	if err != nil {
		return err
	}
	if !claimed {
		record, err := g.load(ctx, key)
		if err != nil {
			return err
		}
		if record == nil {
			// the holder released its claim between our two calls
			return pkgerrors.New(pkgerrors.CodeIdempotency, "request with this Idempotency-Key is still in progress")
		}
		return replay(w, record, hash)
	}

	rec := &responseCapture{ResponseWriter: w}
	next.ServeHTTP(rec, r)
	g.settle(ctx, key, hash, rec, ttl)
	return nil
}

// claim writes a pending marker for key. It reports false when the key is
// already held by a pending or completed request.
func (g *idempotencyGuard) claim(ctx context.Context, key, hash string) (bool, error) {
	marker, err := json.Marshal(idempotencyRecord{Pending: true, RequestHash: hash})
	if err != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "encode idempotency claim")
	}
	ok, err := g.store.SetNX(ctx, key, string(marker), pendingClaimTTL)
	if err != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "claim idempotency key")
	}
	return ok, nil
}

func (g *idempotencyGuard) load(ctx context.Context, key string) (*idempotencyRecord, error) {
	stored, err := g.store.Get(ctx, key)
	if errors.Is(err, redis.Nil) || (err == nil && stored == "") {
		return nil, nil
	}
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check idempotency")
	}
	record, err := decodeRecord(stored)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode idempotency record")
	}
	return record, nil
}

// settle overwrites the pending marker with the captured response in a single
// write, so the key is never free while the first request owns it. Server side
// failures release the key so the client can retry.
func (g *idempotencyGuard) settle(ctx context.Context, key, hash string, rec *responseCapture, ttl time.Duration) {
	status := defaultStatus(rec.status)
	if status >= http.StatusInternalServerError {
		g.release(ctx, key)
		return
	}

	record := idempotencyRecord{
		Status:      status,
		Body:        base64.StdEncoding.EncodeToString(rec.body.Bytes()),
		RequestHash: hash,
	}
	if ct := rec.Header().Get("Content-Type"); ct != "" {
		record.Headers = map[string]string{"Content-Type": ct}
	}
	payload, err := json.Marshal(record)
	if err != nil {
		logError(ctx, g.logg, "marshal idempotency record", err)
		g.release(ctx, key)
		return
	}
	if err := g.store.Set(ctx, key, string(payload), ttl); err != nil {
		// the pending marker stays until pendingClaimTTL, then retries run again
		logError(ctx, g.logg, "persist idempotency record", err)
	}
}

func (g *idempotencyGuard) release(ctx context.Context, key string) {
	if err := g.store.Del(ctx, key); err != nil {
		logError(ctx, g.logg, "release idempotency claim", err)
	}
}

func replay(w http.ResponseWriter, record *idempotencyRecord, hash string) error {
	if record.RequestHash != hash {
		return pkgerrors.New(pkgerrors.CodeIdempotency, "idempotency key reused with different request body")
	}
	if record.Pending {
		return pkgerrors.New(pkgerrors.CodeIdempotency, "request with this Idempotency-Key is still in progress")
	}
	writeStoredResponse(w, record)
	return nil
}

func buildScope(r *http.Request) string {
	parts := []string{
		UserIDFromContext(r.Context()),
		r.Method,
		r.URL.Path,
	}
	return strings.Join(parts, "|")
}

func decodeRecord(payload string) (*idempotencyRecord, error) {
	var record idempotencyRecord
	if err := json.Unmarshal([]byte(payload), &record); err != nil {
		return nil, err
	}
	return &record, nil
}

func writeStoredResponse(w http.ResponseWriter, record *idempotencyRecord) {
	if record == nil {
		return
	}
	if ct, ok := record.Headers["Content-Type"]; ok && ct != "" {
		w.Header().Set("Content-Type", ct)
	}
	w.Header().Set(replayedHeader, "true")
	w.WriteHeader(record.Status)
	if decoded, err := base64.StdEncoding.DecodeString(record.Body); err == nil {
		_, _ = w.Write(decoded)
	}
}

func hashBody(payload []byte) string {
	sum := sha256.Sum256(payload)
	return base64.StdEncoding.EncodeToString(sum[:])
}

func defaultStatus(value int) int {
	if value == 0 {
		return http.StatusOK
	}
	return value
}

func routePattern(r *http.Request) string {
	if r == nil {
		return ""
	}
	if ctx := chi.RouteContext(r.Context()); ctx != nil {
		if pattern := ctx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return r.URL.Path
}

func routeTTL(method, pattern string) (time.Duration, bool) {
	if pattern == "" {
		return 0, false
	}
	for _, rule := range idempotencyRules {
		if rule.method != method {
			continue
		}
		if rule.matcher(pattern) {
			return rule.ttl, true
		}
	}
	return 0, false
}

func matchExact(path string) routeMatcher {
	return func(pattern string) bool {
		return pattern == path
	}
}

// matchSegment matches prefix followed by exactly one non-empty segment.
func matchSegment(prefix string) routeMatcher {
	return func(pattern string) bool {
		rest, ok := strings.CutPrefix(pattern, prefix)
		return ok && rest != "" && !strings.Contains(rest, "/")
	}
}

// matchRoomAction matches /api/v1/rooms/<room>/<action> for the listed actions,
// both as a chi pattern and as a concrete path.
func matchRoomAction(actions ...string) routeMatcher {
	return func(pattern string) bool {
		rest, ok := strings.CutPrefix(pattern, "/api/v1/rooms/")
		if !ok {
			return false
		}
		room, action, ok := strings.Cut(rest, "/")
		if !ok || room == "" {
			return false
		}
		for _, a := range actions {
			if action == a {
				return true
			}
		}
		return false
	}
}

type responseCapture struct {
	http.ResponseWriter
	body   bytes.Buffer
	status int
}

func (r *responseCapture) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *responseCapture) Write(b []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	r.body.Write(b)
	return r.ResponseWriter.Write(b)
}

func logError(ctx context.Context, logg *logger.Logger, msg string, err error) {
	if logg == nil || err == nil {
		return
	}
	logg.Error(ctx, msg, err)
}
