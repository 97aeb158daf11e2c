package frontend

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/klauspost/compress/gzhttp"
	"github.com/rs/cors"

	"github.com/mantlenetworkio/ccip-gateway/op-gateway/ccip"
	"github.com/mantlenetworkio/ccip-gateway/op-service/httputil"
)

const RequestIDHeader = "X-Request-Id"

type requestInfoKey struct{}

// requestInfo is filled in by the inner handlers, for the access log and metrics of the outer middleware.
type requestInfo struct {
	id    string
	route string
}

// RequestID returns the id of the request being served, or an empty string outside of a request.
func RequestID(ctx context.Context) string {
	if info, ok := ctx.Value(requestInfoKey{}).(*requestInfo); ok {
		return info.id
	}
	return ""
}

func (s *Server) requestMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		id := r.Header.Get(RequestIDHeader)
		if _, err := uuid.Parse(id); err != nil {
			id = uuid.NewString()
		}
		w.Header().Set(RequestIDHeader, id)
		info := &requestInfo{id: id, route: routeUnknown}
		ww := httputil.NewWrappedResponseWriter(w)

		next.ServeHTTP(ww, r.WithContext(context.WithValue(r.Context(), requestInfoKey{}, info)))

		duration := time.Since(start)
		s.m.RecordHTTPRequest(info.route, r.Method, ww.StatusCode, duration)
		s.log.Debug("Served request", "id", id, "method", r.Method, "route", info.route, "path", r.URL.Path,
			"status", ww.StatusCode, "size", ww.ResponseLen, "duration", duration, "remote", clientIP(r))
	})
}

func (s *Server) routeNameMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if route := mux.CurrentRoute(r); route != nil {
			if info, ok := r.Context().Value(requestInfoKey{}).(*requestInfo); ok {
				info.route = route.GetName()
			}
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) rateLimitMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/healthz" && !s.limiter.Allow(clientIP(r)) {
			s.m.RecordRateLimited()
			w.Header().Set("Retry-After", "1")
			writeJSON(w, http.StatusTooManyRequests, ccip.ResponseBody{Message: http.StatusText(http.StatusTooManyRequests)})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func newCORSHandler(next http.Handler, origins []string) http.Handler {
	return cors.New(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type", RequestIDHeader},
		ExposedHeaders: []string{RequestIDHeader},
		MaxAge:         600,
	}).Handler(next)
}

func newCompressionHandler(next http.Handler) http.Handler {
	return gzhttp.GzipHandler(next)
}
