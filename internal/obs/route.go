package obs

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
)

type routePatternKey struct{}

// WithRoutePattern stores the matched router pattern on the context.
func WithRoutePattern(ctx context.Context, pattern string) context.Context {
	return context.WithValue(ctx, routePatternKey{}, pattern)
}

// RoutePattern returns the route template for r, e.g. "/api/v1/tax/quote".
// It prefers a pattern stored by WithRoutePattern, then chi's routing
// context. The empty string means the request matched no route (yet).
func RoutePattern(r *http.Request) string {
	ctx := r.Context()
	if v, ok := ctx.Value(routePatternKey{}).(string); ok && v != "" {
		return v
	}
	if rc := chi.RouteContext(ctx); rc != nil {
		return rc.RoutePattern()
	}
	return ""
}

// RoutePatternMiddleware injects the pattern chi has matched so far into the
// request context so that handlers mounted on sub-routers can read it.
func RoutePatternMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if rc := chi.RouteContext(r.Context()); rc != nil {
			if pattern := rc.RoutePattern(); pattern != "" {
				r = r.WithContext(WithRoutePattern(r.Context(), pattern))
			}
		}
		next.ServeHTTP(w, r)
	})
}

func routeLabel(r *http.Request, fallback string) string {
	if route := RoutePattern(r); route != "" {
		return route
	}
	return fallback
}
