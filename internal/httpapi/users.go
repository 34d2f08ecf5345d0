package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
)

func Leaderboard(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		top, err := d.Profiles.Leaderboard(r.Context())
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, top)
	}
}

func SearchUsers(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		found, err := d.Profiles.SearchUsers(r.Context(), r.URL.Query().Get("q"))
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, found)
	}
}

func GetUser(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, err := d.Profiles.Profile(r.Context(), chi.URLParam(r, "uid"))
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, p)
	}
}

func GetUserGames(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		games, err := d.Profiles.UserGames(r.Context(), chi.URLParam(r, "uid"))
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, games)
	}
}

type profilePatch struct {
	DisplayName *string `json:"displayName"`
	Colour      *string `json:"colour"`
}

// UpdateMe edits the caller's display name and/or colour preference.
func UpdateMe(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var patch profilePatch
		if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
			http.Error(w, "bad json", http.StatusBadRequest)
			return
		}
		uid := identity(r).UID
		if patch.DisplayName != nil {
			if err := d.Profiles.UpdateDisplayName(r.Context(), uid, *patch.DisplayName); err != nil {
				writeError(w, err)
				return
			}
		}
		if patch.Colour != nil {
			if err := d.Profiles.UpdateColourPref(r.Context(), uid, *patch.Colour); err != nil {
				writeError(w, err)
				return
			}
		}
		p, err := d.Profiles.Profile(r.Context(), uid)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, p)
	}
}
