package auth

import (
	"context"
	"net/http"
	"strings"
)

type ctxKey int

const keyOperator ctxKey = 0

// Store is a static in-memory admin key store: secret -> operator ID
type Store struct {
	header   string
	bySecret map[string]string
}

// NewStatic creates a new static key store.
// header: HTTP header to read the key from (e.g., "X-Admin-Key")
// pairs: map of secret -> operator ID
func NewStatic(header string, pairs map[string]string) *Store {
	h := header
	if h == "" {
		h = "X-Admin-Key"
	}
	return &Store{header: h, bySecret: pairs}
}

func (s *Store) operatorFor(secret string) (string, bool) {
	id, ok := s.bySecret[secret]
	return id, ok
}

// WithOperator injects the operator ID into context.
func WithOperator(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, keyOperator, id)
}

// OperatorFrom extracts the operator ID from context (if present).
func OperatorFrom(ctx context.Context) (string, bool) {
	v := ctx.Value(keyOperator)
	if v == nil {
		return "", false
	}
	id, ok := v.(string)
	return id, ok
}

// Middleware validates the admin key on any path under prefix and writes
// JSON errors on failure. Everything outside the prefix passes through.
func (s *Store) Middleware(prefix string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		hname := s.header

		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !strings.HasPrefix(r.URL.Path, prefix) {
				next.ServeHTTP(w, r)
				return
			}

			secret := strings.TrimSpace(r.Header.Get(hname))
			if secret == "" {
				writeJSON(w, http.StatusUnauthorized, "missing_admin_key", "Provide admin key in "+hname)
				return
			}
			id, ok := s.operatorFor(secret)
			if !ok {
				writeJSON(w, http.StatusUnauthorized, "invalid_admin_key", "Admin key not recognized")
				return
			}
			ctx := WithOperator(r.Context(), id)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func writeJSON(w http.ResponseWriter, code int, errCode, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_, _ = w.Write([]byte(`{"error":{"code":"` + errCode + `","message":"` + msg + `"}}`))
}
