package http

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"

	"trivia-service/internal/logging"
)

type RouterConfig struct {
	APIHandler  *APIHandler
	GameHandler *GameHandler
	WSHandler   *WSHandler
	Debug       bool
	Log         logrus.FieldLogger
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(cfg.Log))
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Get("/ws/game", cfg.WSHandler.ServeWS)

	r.Mount("/api/games", cfg.GameHandler.Routes())
	r.Mount("/api", cfg.APIHandler.Routes(cfg.Debug))
	return r
}

// requestLogger attaches a request-scoped logger to the context and logs each completed request.
func requestLogger(log logrus.FieldLogger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			entry := log.WithFields(logrus.Fields{
				"requestId": middleware.GetReqID(r.Context()),
				"method":    r.Method,
				"path":      r.URL.Path,
			})
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r.WithContext(logging.NewContext(r.Context(), entry)))

			entry.WithFields(logrus.Fields{
				"status":   ww.Status(),
				"bytes":    ww.BytesWritten(),
				"duration": time.Since(start).String(),
			}).Info("request completed")
		})
	}
}
