package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/whnb773/catan-scoreboard/internal/board"
	"github.com/whnb773/catan-scoreboard/internal/engine"
	"github.com/whnb773/catan-scoreboard/internal/lobby"
	"github.com/whnb773/catan-scoreboard/internal/profile"
	"github.com/whnb773/catan-scoreboard/internal/store"
	"github.com/whnb773/catan-scoreboard/internal/types"
	"github.com/whnb773/catan-scoreboard/internal/ws"
)

var ErrSignInRequired = errors.New("sign in required")

type identityKey struct{}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, statusFor(err), struct {
		Error string `json:"error"`
	}{Error: err.Error()})
}

// statusFor maps domain errors onto HTTP statuses. Anything unknown is a 500.
func statusFor(err error) int {
	switch {
	case errors.Is(err, ErrSignInRequired):
		return http.StatusUnauthorized
	case errors.Is(err, lobby.ErrNotHost):
		return http.StatusForbidden
	case errors.Is(err, lobby.ErrNotFound),
		errors.Is(err, profile.ErrNotFound),
		errors.Is(err, store.ErrBackupNotFound):
		return http.StatusNotFound
	case errors.Is(err, engine.ErrPaused),
		errors.Is(err, engine.ErrNoRolls),
		errors.Is(err, engine.ErrTimerRunning),
		errors.Is(err, ws.ErrNothingToUndo),
		errors.Is(err, ws.ErrNothingToRedo),
		errors.Is(err, lobby.ErrLobbyClosed),
		errors.Is(err, lobby.ErrBadTransition),
		errors.Is(err, lobby.ErrHostCannotLeave):
		return http.StatusConflict
	case errors.Is(err, engine.ErrInvalidSeat),
		errors.Is(err, engine.ErrInvalidField),
		errors.Is(err, engine.ErrInvalidRoll),
		errors.Is(err, engine.ErrInvalidBackup),
		errors.Is(err, engine.ErrUnsupportedCommand),
		errors.Is(err, ws.ErrUnknownType),
		errors.Is(err, lobby.ErrInvalidPin),
		errors.Is(err, profile.ErrInvalidName),
		errors.Is(err, profile.ErrInvalidColour):
		return http.StatusBadRequest
	case errors.Is(err, board.ErrStopped):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func identity(r *http.Request) types.Identity {
	if id, ok := r.Context().Value(identityKey{}).(types.Identity); ok {
		return id
	}
	return types.IdentityFromHeader(r.Header)
}

func requireIdentity(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := types.IdentityFromHeader(r.Header)
		if id.Anonymous() {
			writeError(w, ErrSignInRequired)
			return
		}
		ctx := context.WithValue(r.Context(), identityKey{}, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func requestLogger(log *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			log.Debug("request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Duration("took", time.Since(start)),
				zap.String("requestId", middleware.GetReqID(r.Context())),
			)
		})
	}
}
