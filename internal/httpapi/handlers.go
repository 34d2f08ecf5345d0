package httpapi

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/whnb773/catan-scoreboard/internal/board"
	"github.com/whnb773/catan-scoreboard/internal/engine"
	"github.com/whnb773/catan-scoreboard/internal/hub"
	"github.com/whnb773/catan-scoreboard/internal/profile"
	"github.com/whnb773/catan-scoreboard/internal/store"
	"github.com/whnb773/catan-scoreboard/internal/types"
	"github.com/whnb773/catan-scoreboard/internal/ws"
)

const maxImportBytes = 5 << 20

func Healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

type boardResponse struct {
	Version int              `json:"version"`
	State   *engine.Document `json:"state"`
	CanUndo bool             `json:"canUndo"`
	CanRedo bool             `json:"canRedo"`
	Clients int              `json:"clients"`
}

type backupInfo struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"createdAt"`
	Title     string    `json:"title"`
	Games     int       `json:"games"`
	Rolls     int       `json:"rolls"`
	Reason    string    `json:"reason"`
}

func infoOf(b store.Backup) backupInfo {
	return backupInfo{ID: b.ID, CreatedAt: b.CreatedAt, Title: b.Title, Games: b.Games, Rolls: b.Rolls, Reason: b.Reason}
}

// ownBoard returns the caller's board, creating it on first use. Anonymous
// callers share the device board.
func ownBoard(d Deps, r *http.Request) *board.Board {
	reply := make(chan *board.Board, 1)
	d.Hub.Inbox() <- hub.EnsureBoard{Owner: identity(r).UID, Reply: reply}
	return <-reply
}

func writeBoard(w http.ResponseWriter, r *http.Request, b *board.Board, status int) {
	v, err := b.State(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	doc := engine.Export(v.State)
	writeJSON(w, status, boardResponse{
		Version: v.Version,
		State:   &doc,
		CanUndo: v.UndoLen > 0,
		CanRedo: v.RedoLen > 0,
		Clients: v.NumClients,
	})
}

func GetBoard(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeBoard(w, r, ownBoard(d, r), http.StatusOK)
	}
}

func PostCommand(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var cm types.ClientMessage
		if err := json.NewDecoder(r.Body).Decode(&cm); err != nil {
			http.Error(w, "bad json", http.StatusBadRequest)
			return
		}
		b := ownBoard(d, r)
		if err := ws.Dispatch(r.Context(), b, cm); err != nil {
			writeError(w, err)
			return
		}
		writeBoard(w, r, b, http.StatusOK)
	}
}

func PostUndo(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		undoRedo(w, r, ownBoard(d, r), "Undo")
	}
}

func PostRedo(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		undoRedo(w, r, ownBoard(d, r), "Redo")
	}
}

func undoRedo(w http.ResponseWriter, r *http.Request, b *board.Board, kind string) {
	if err := ws.Dispatch(r.Context(), b, types.ClientMessage{Type: kind}); err != nil {
		writeError(w, err)
		return
	}
	writeBoard(w, r, b, http.StatusOK)
}

func ExportBoard(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		v, err := ownBoard(d, r).State(r.Context())
		if err != nil {
			writeError(w, err)
			return
		}
		raw, err := engine.Marshal(v.State)
		if err != nil {
			writeError(w, err)
			return
		}
		attach(w, store.BackupFilename(v.State.Title, time.Now()), raw)
	}
}

func attach(w http.ResponseWriter, filename string, raw []byte) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(raw)
}

func ImportBoard(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		raw, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxImportBytes))
		if err != nil {
			http.Error(w, "file too large", http.StatusRequestEntityTooLarge)
			return
		}
		b := ownBoard(d, r)
		if err := b.ImportBackup(r.Context(), raw); err != nil {
			writeError(w, err)
			return
		}
		writeBoard(w, r, b, http.StatusOK)
	}
}

func ListBackups(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		list := ownBoard(d, r).Backups(r.Context())
		out := make([]backupInfo, 0, len(list))
		for _, b := range list {
			out = append(out, infoOf(b))
		}
		writeJSON(w, http.StatusOK, out)
	}
}

func CreateBackup(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		bk, err := ownBoard(d, r).Backup(r.Context(), store.ReasonManual)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, infoOf(bk))
	}
}

func DownloadBackup(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		for _, bk := range ownBoard(d, r).Backups(r.Context()) {
			if bk.ID == id {
				attach(w, store.BackupFilename(bk.Title, bk.CreatedAt), bk.Payload)
				return
			}
		}
		writeError(w, store.ErrBackupNotFound)
	}
}

func RestoreBackup(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		b := ownBoard(d, r)
		if err := b.Restore(r.Context(), chi.URLParam(r, "id")); err != nil {
			writeError(w, err)
			return
		}
		writeBoard(w, r, b, http.StatusOK)
	}
}

type sessionResponse struct {
	Profile profile.Profile `json:"profile"`
	Source  store.Source    `json:"source"`
}

// StartSession runs the sign-in flow: ensure the profile, then load the
// user's cloud game (or upload the device game) into their board.
func StartSession(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		who := identity(r)
		if who.Anonymous() {
			writeError(w, ErrSignInRequired)
			return
		}
		p, err := d.Profiles.EnsureProfile(r.Context(), who)
		if err != nil {
			writeError(w, err)
			return
		}

		b := ownBoard(d, r)
		src := store.SourceNone
		if d.Gateway != nil {
			st, source, err := d.Gateway.Reconcile(r.Context(), who.UID, engine.NewEmptyState())
			if err != nil {
				d.Log.Warn("reconcile failed", zap.String("user", who.UID), zap.Error(err))
			} else if source != store.SourceNone {
				if err := b.ReplaceState(r.Context(), st); err != nil {
					writeError(w, err)
					return
				}
			}
			src = source
		}
		writeJSON(w, http.StatusOK, sessionResponse{Profile: p, Source: src})
	}
}
