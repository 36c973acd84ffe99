package auth

import (
	"context"
	"fmt"
	"net/http"

	"github.com/google/uuid"
)

type contextKey string

const ownerIDKey contextKey = "ownerID"

// OwnerHeader carries the caller identity on incoming requests.
const OwnerHeader = "X-Owner-ID"

// ContextWithOwnerID returns a new context that carries the authenticated owner scope.
func ContextWithOwnerID(ctx context.Context, id uuid.UUID) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, ownerIDKey, id)
}

// OwnerIDFromContext retrieves the authenticated owner scope from the context, if any.
func OwnerIDFromContext(ctx context.Context) (uuid.UUID, bool) {
	if ctx == nil {
		return uuid.Nil, false
	}
	value := ctx.Value(ownerIDKey)
	if value == nil {
		return uuid.Nil, false
	}
	id, ok := value.(uuid.UUID)
	if !ok {
		return uuid.Nil, false
	}
	if id == uuid.Nil {
		return uuid.Nil, false
	}
	return id, true
}

// EnforceOwnerScope ensures the provided owner matches the authenticated scope when present.
func EnforceOwnerScope(ctx context.Context, ownerID uuid.UUID) error {
	if ownerID == uuid.Nil {
		return fmt.Errorf("ownerId is required")
	}
	scopedID, ok := OwnerIDFromContext(ctx)
	if !ok {
		return nil
	}
	if scopedID != ownerID {
		return fmt.Errorf("ownerId %s does not match authenticated scope", ownerID)
	}
	return nil
}

// Middleware lifts the owner header into the request context. Requests
// without the header pass through unscoped; handlers that need an owner
// reject them.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if raw := r.Header.Get(OwnerHeader); raw != "" {
			if id, err := uuid.Parse(raw); err == nil {
				r = r.WithContext(ContextWithOwnerID(r.Context(), id))
			}
		}
		next.ServeHTTP(w, r)
	})
}
