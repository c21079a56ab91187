package http

import (
	"bufio"
	"errors"
	"net"
	"net/http"
	"time"

	"live-quiz-service/internal/app"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog/log"
)

// NewRouter mounts the websocket endpoint, the room API and the health check.
func NewRouter(service *app.SessionService, verifier TokenVerifier) http.Handler {
	r := mux.NewRouter()
	r.Use(requestLogger)

	ws := NewWSHandler(service, verifier)
	rooms := NewRoomsHandler(service, verifier)

	r.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("ok"))
	}).Methods(http.MethodGet)

	r.HandleFunc("/ws/rooms/{code}", ws.ServeWS).Methods(http.MethodGet)

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/rooms", rooms.Create).Methods(http.MethodPost)
	api.HandleFunc("/rooms/{code}/leaderboard", rooms.Leaderboard).Methods(http.MethodGet)
	return r
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		log.Info().Str("method", r.Method).Str("path", r.URL.Path).
			Int("status", rec.status).Dur("dur", time.Since(start)).Msg("http")
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// Hijack lets the websocket upgrader take over the connection.
func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hj, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	r.status = http.StatusSwitchingProtocols
	return hj.Hijack()
}
