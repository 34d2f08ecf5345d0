package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/whnb773/catan-scoreboard/internal/lobby"
	"github.com/whnb773/catan-scoreboard/internal/types"
	"github.com/whnb773/catan-scoreboard/internal/ws"
)

func CreateLobby(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess, err := d.Lobbies.Create(r.Context(), identity(r))
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, sess)
	}
}

// FindLobby looks up the newest joinable lobby for ?pin=.
func FindLobby(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess, err := d.Lobbies.FindByPin(r.Context(), r.URL.Query().Get("pin"))
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, sess)
	}
}

func GetLobby(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess, err := d.Lobbies.Get(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, sess)
	}
}

type lobbyOp func(s *lobby.Service, r *http.Request, id string, who types.Identity) (lobby.Session, error)

func lobbyAction(d Deps, op lobbyOp) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess, err := op(d.Lobbies, r, chi.URLParam(r, "id"), identity(r))
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, sess)
	}
}

func JoinLobby(d Deps) http.HandlerFunc {
	return lobbyAction(d, func(s *lobby.Service, r *http.Request, id string, who types.Identity) (lobby.Session, error) {
		return s.Join(r.Context(), id, who)
	})
}

// StartLobby also seats the roster on the host's board.
func StartLobby(d Deps) http.HandlerFunc {
	return lobbyAction(d, func(s *lobby.Service, r *http.Request, id string, who types.Identity) (lobby.Session, error) {
		sess, err := s.Start(r.Context(), id, who)
		if err != nil {
			return sess, err
		}
		if err := ws.SeatRoster(r.Context(), d.Hub, who.UID, sess); err != nil {
			d.Log.Warn("seating lobby roster failed", zap.String("lobby", id), zap.Error(err))
		}
		return sess, nil
	})
}

func EndLobby(d Deps) http.HandlerFunc {
	return lobbyAction(d, func(s *lobby.Service, r *http.Request, id string, who types.Identity) (lobby.Session, error) {
		return s.End(r.Context(), id, who)
	})
}

func LeaveLobby(d Deps) http.HandlerFunc {
	return lobbyAction(d, func(s *lobby.Service, r *http.Request, id string, who types.Identity) (lobby.Session, error) {
		return s.Leave(r.Context(), id, who)
	})
}
