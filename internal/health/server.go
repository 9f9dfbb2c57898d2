// Package health exposes a tiny HTTP endpoint used by uptime monitors and
// container orchestrators to confirm the bot process is alive.
package health

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/m3rciful/tunebot/internal/logger"
)

// Serve runs the keep-alive HTTP server until ctx is done. A blank listen
// address disables the server.
func Serve(ctx context.Context, listen string) {
	if listen == "" {
		return
	}

	r := chi.NewRouter()
	r.Get("/", handle)
	r.Get("/healthz", handle)

	srv := &http.Server{
		Addr:              listen,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.L.Info("health server listening",
		slog.String("event", "health.listen"),
		slog.String("addr", listen),
	)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.L.Warn("health server stopped",
			slog.String("event", "health.fail"),
			slog.String("err", err.Error()),
		)
	}
}

func handle(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("tunebot is running"))
}
