package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/google/uuid"
)

type ctxKey string

const (
	ctxKeyRequestID ctxKey = "request_id"
	ctxKeyActor     ctxKey = "actor"

	// ActorHeader names the caller for the audit trail. It is informational
	// only; authentication happens in front of this service.
	ActorHeader = "X-Actor"
)

func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := r.Header.Get("X-Request-ID")
		if reqID == "" {
			reqID = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", reqID)
		ctx := context.WithValue(r.Context(), ctxKeyRequestID, reqID)
		if actor := strings.TrimSpace(r.Header.Get(ActorHeader)); actor != "" {
			ctx = context.WithValue(ctx, ctxKeyActor, actor)
		}
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func GetRequestID(ctx context.Context) string {
	if value, ok := ctx.Value(ctxKeyRequestID).(string); ok {
		return value
	}
	return ""
}

// GetActor returns the caller named in ActorHeader, or "system".
func GetActor(ctx context.Context) string {
	if value, ok := ctx.Value(ctxKeyActor).(string); ok && value != "" {
		return value
	}
	return "system"
}
