package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/whnb773/catan-scoreboard/internal/hub"
	"github.com/whnb773/catan-scoreboard/internal/lobby"
	"github.com/whnb773/catan-scoreboard/internal/profile"
	"github.com/whnb773/catan-scoreboard/internal/store"
	"github.com/whnb773/catan-scoreboard/internal/ws"
)

type Deps struct {
	Hub      *hub.Hub
	Lobbies  *lobby.Service
	Profiles *profile.Service
	Gateway  *store.Gateway
	Log      *zap.Logger
}

func SetupRoutes(d Deps) http.Handler {
	if d.Log == nil {
		d.Log = zap.NewNop()
	}
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(d.Log))
	r.Use(middleware.Recoverer)

	// Public routes
	r.Get("/healthz", Healthz)
	r.Get("/leaderboard", Leaderboard(d))
	r.Get("/users", SearchUsers(d))

	r.Route("/board", func(r chi.Router) {
		r.Get("/", GetBoard(d))
		r.Post("/commands", PostCommand(d))
		r.Post("/undo", PostUndo(d))
		r.Post("/redo", PostRedo(d))
		r.Get("/export", ExportBoard(d))
		r.Post("/import", ImportBoard(d))
		r.Get("/backups", ListBackups(d))
		r.Post("/backups", CreateBackup(d))
		r.Get("/backups/{id}", DownloadBackup(d))
		r.Post("/backups/{id}/restore", RestoreBackup(d))
		r.Post("/session", StartSession(d))
	})

	// Signed-in routes
	r.Group(func(r chi.Router) {
		r.Use(requireIdentity)

		r.Post("/lobbies", CreateLobby(d))
		r.Get("/lobbies", FindLobby(d))
		r.Get("/lobbies/{id}", GetLobby(d))
		r.Post("/lobbies/{id}/join", JoinLobby(d))
		r.Post("/lobbies/{id}/start", StartLobby(d))
		r.Post("/lobbies/{id}/end", EndLobby(d))
		r.Post("/lobbies/{id}/leave", LeaveLobby(d))

		r.Patch("/users/me", UpdateMe(d))
	})
	r.Get("/users/{uid}", GetUser(d))
	r.Get("/users/{uid}/games", GetUserGames(d))

	r.Get("/ws/board", ws.BoardHandler(d.Hub, d.Log))
	r.Get("/ws/lobby", ws.LobbyHandler(d.Lobbies, d.Hub, d.Log))
	return r
}
