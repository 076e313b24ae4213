package web

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/jaminalder/tictactoe-web/internal/app"
)

// NewServer wires routes and returns an http.Handler. It also installs the
// board renderer used for pushed updates.
func NewServer(s *app.Service, logger *slog.Logger) http.Handler {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	log := logger.With("component", "web")
	h := &handlers{
		svc:      s,
		tpl:      loadTemplates(),
		validate: newValidator(),
		log:      log,
	}
	s.SetRenderer(h.renderBoard)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger(log))

	r.Get("/", h.index)
	r.Get("/state", h.state)
	r.Get("/events", h.events)
	r.Get("/healthz", healthz)
	r.Post("/cell", h.cell)
	r.Post("/reset", h.reset)
	r.Post("/mode", h.mode)
	return r
}

func requestLogger(log *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			log.Debug("request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"duration", time.Since(start),
				"request_id", middleware.GetReqID(r.Context()),
			)
		})
	}
}
