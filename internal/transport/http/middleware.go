package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"
)

// statusResponseWriter обёртка для http.ResponseWriter, чтобы захватывать статус-код
// и передавать его дальше
type statusResponseWriter struct {
	http.ResponseWriter
	status int
}

// WriteHeader сохраняет статус и вызывает оригинальный WriteHeader
func (w *statusResponseWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

// LoggingMiddleware пишет в log метод, путь, статус и длительность каждого запроса,
// а также паники, которые затем пробрасываются дальше
func LoggingMiddleware(log *slog.Logger) mux.MiddlewareFunc {
	if log == nil {
		log = slog.Default()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			srw := &statusResponseWriter{ResponseWriter: w, status: http.StatusOK}
			defer func() {
				if rec := recover(); rec != nil {
					log.Error("panic while serving request",
						"method", r.Method, "path", r.URL.Path, "status", http.StatusInternalServerError,
						"duration", time.Since(start), "panic", rec)
					panic(rec)
				}
			}()
			next.ServeHTTP(srw, r)
			log.Info("request",
				"method", r.Method, "path", r.URL.Path, "status", srw.status, "duration", time.Since(start))
		})
	}
}
