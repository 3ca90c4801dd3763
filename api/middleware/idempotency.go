package middleware

import (
	"bytes"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/angelmondragon/fulfillment-backend/api/responses"
	pkgerrors "github.com/angelmondragon/fulfillment-backend/pkg/errors"
	"github.com/angelmondragon/fulfillment-backend/pkg/logger"
	pkgredis "github.com/angelmondragon/fulfillment-backend/pkg/redis"
)

const (
	IdempotencyKeyHeader   = "Idempotency-Key"
	IdempotentReplayHeader = "Idempotent-Replayed"

	defaultIdempotencyTTL  = 24 * time.Hour
	criticalIdempotencyTTL = 7 * 24 * time.Hour
	// pendingTTL bounds how long a crashed request can hold its key.
	pendingTTL = 2 * time.Minute

	stateInFlight  = "in_flight"
	stateCompleted = "completed"
)

type idempotencyRule struct {
	method  string
	pattern []string
	ttl     time.Duration
}

func rule(method, pattern string, ttl time.Duration) idempotencyRule {
	return idempotencyRule{method: method, pattern: splitPath(pattern), ttl: ttl}
}

// Rules match the raw request path: chi has not resolved the final route
// pattern while middleware mounted on a parent router runs.
var idempotencyRules = []idempotencyRule{
	rule(http.MethodPost, "/api/admin/v1/orders/*/status", defaultIdempotencyTTL),
	rule(http.MethodPost, "/api/admin/v1/orders/*/cod-status", defaultIdempotencyTTL),
	rule(http.MethodPost, "/api/admin/v1/orders/*/resync-parcel", defaultIdempotencyTTL),
	rule(http.MethodPost, "/api/admin/v1/files/*/status", defaultIdempotencyTTL),
	rule(http.MethodPost, "/api/admin/v1/files/*/estimate", defaultIdempotencyTTL),
	rule(http.MethodPost, "/api/v1/notifications/*/read", defaultIdempotencyTTL),

	rule(http.MethodPost, "/api/v1/orders", criticalIdempotencyTTL),
	rule(http.MethodPost, "/api/admin/v1/orders/*/complete", criticalIdempotencyTTL),
}

type idempotencyRecord struct {
	State       string `json:"state"`
	RequestHash string `json:"request_hash"`
	Status      int    `json:"status,omitempty"`
	ContentType string `json:"content_type,omitempty"`
	Body        string `json:"body,omitempty"`
}

// Idempotency replays the stored response for a repeated Idempotency-Key on
// the listed routes. The key is claimed before the handler runs so a
// concurrent duplicate is rejected instead of executed twice. 5xx responses
// release the key so the client may retry.
func Idempotency(store pkgredis.IdempotencyStore, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ttl, ok := routeTTL(r.Method, r.URL.Path)
			if !ok || store == nil {
				next.ServeHTTP(w, r)
				return
			}
			ctx := r.Context()

			clientKey := strings.TrimSpace(r.Header.Get(IdempotencyKeyHeader))
			if clientKey == "" {
				responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeValidation, "Idempotency-Key header required"))
				return
			}

			body, err := io.ReadAll(r.Body)
			if err != nil {
				responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "read request body"))
				return
			}
			r.Body = io.NopCloser(bytes.NewReader(body))

			hash := hashBody(body)
			key := store.IdempotencyKey(requestScope(r), clientKey)

			claimed, err := claim(r, store, key, hash)
			if err != nil {
				responses.WriteError(ctx, logg, w, err)
				return
			}
			if !claimed {
				existing, err := load(r, store, key)
				if err != nil {
					responses.WriteError(ctx, logg, w, err)
					return
				}
				switch {
				case existing == nil:
					responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeConflict, "idempotency key expired mid-request, retry"))
				case existing.RequestHash != hash:
					responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeIdempotency, "idempotency key reused with different request body"))
				case existing.State != stateCompleted:
					responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeConflict, "request with this idempotency key is in progress"))
				default:
					replay(w, existing)
				}
				return
			}

			capture := &responseCapture{ResponseWriter: w}
			next.ServeHTTP(capture, r)

			status := capture.statusCode()
			if err := store.Del(ctx, key); err != nil && logg != nil {
				logg.WarnErr(ctx, "idempotency.release_failed", err)
			}
			if status >= http.StatusInternalServerError {
				return
			}
			persist(r, logg, store, key, ttl, idempotencyRecord{
				State:       stateCompleted,
				RequestHash: hash,
				Status:      status,
				ContentType: capture.Header().Get("Content-Type"),
				Body:        base64.StdEncoding.EncodeToString(capture.body.Bytes()),
			})
		})
	}
}

func claim(r *http.Request, store pkgredis.IdempotencyStore, key, hash string) (bool, error) {
	pending, err := json.Marshal(idempotencyRecord{State: stateInFlight, RequestHash: hash})
	if err != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "encode idempotency claim")
	}
	ok, err := store.SetNX(r.Context(), key, string(pending), pendingTTL)
	if err != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "claim idempotency key")
	}
	return ok, nil
}

func load(r *http.Request, store pkgredis.IdempotencyStore, key string) (*idempotencyRecord, error) {
	raw, err := store.Get(r.Context(), key)
	if errors.Is(err, redis.Nil) || (err == nil && raw == "") {
		return nil, nil
	}
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check idempotency")
	}
	var record idempotencyRecord
	if err := json.Unmarshal([]byte(raw), &record); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode idempotency record")
	}
	return &record, nil
}

func persist(r *http.Request, logg *logger.Logger, store pkgredis.IdempotencyStore, key string, ttl time.Duration, record idempotencyRecord) {
	payload, err := json.Marshal(record)
	if err == nil {
		_, err = store.SetNX(r.Context(), key, string(payload), ttl)
	}
	if err != nil && logg != nil {
		logg.Error(r.Context(), "idempotency.persist_failed", err)
	}
}

func replay(w http.ResponseWriter, record *idempotencyRecord) {
	if record.ContentType != "" {
		w.Header().Set("Content-Type", record.ContentType)
	}
	w.Header().Set(IdempotentReplayHeader, "true")
	w.WriteHeader(record.Status)
	if decoded, err := base64.StdEncoding.DecodeString(record.Body); err == nil {
		_, _ = w.Write(decoded)
	}
}

func requestScope(r *http.Request) string {
	return strings.Join([]string{UserIDFromContext(r.Context()), r.Method, r.URL.Path}, "|")
}

func hashBody(payload []byte) string {
	sum := sha256.Sum256(payload)
	return base64.StdEncoding.EncodeToString(sum[:])
}

func routeTTL(method, path string) (time.Duration, bool) {
	segments := splitPath(path)
	if len(segments) == 0 {
		return 0, false
	}
	for _, rule := range idempotencyRules {
		if rule.method == method && matchSegments(rule.pattern, segments) {
			return rule.ttl, true
		}
	}
	return 0, false
}

func splitPath(path string) []string {
	trimmed := strings.Trim(path, "/")
	if trimmed == "" {
		return nil
	}
	return strings.Split(trimmed, "/")
}

// matchSegments compares path segments; "*" matches exactly one non-empty segment.
func matchSegments(pattern, segments []string) bool {
	if len(pattern) != len(segments) {
		return false
	}
	for i, want := range pattern {
		if want == "*" {
			if segments[i] == "" {
				return false
			}
			continue
		}
		if want != segments[i] {
			return false
		}
	}
	return true
}

type responseCapture struct {
	http.ResponseWriter
	body   bytes.Buffer
	status int
}

func (r *responseCapture) WriteHeader(code int) {
	if r.status == 0 {
		r.status = code
	}
	r.ResponseWriter.WriteHeader(code)
}

func (r *responseCapture) Write(b []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	r.body.Write(b)
	return r.ResponseWriter.Write(b)
}

func (r *responseCapture) statusCode() int {
	if r.status == 0 {
		return http.StatusOK
	}
	return r.status
}
