package server

import (
	"errors"
	"net/http"
)

func handleAdminListSabotages(store Store, engine *Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sabotages, err := store.ListSabotages(r.Context(), engine.Now())
		if err != nil {
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}
		if sabotages == nil {
			sabotages = []sabotageDetail{}
		}
		writeJSON(w, http.StatusOK, sabotages)
	}
}

// handleAdminOverruleSabotage ends a sabotage early. Overruling one
// that already ran out is accepted silently.
func handleAdminOverruleSabotage(engine *Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := pathID(r, "id")
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid sabotage id")
			return
		}

		err = engine.OverruleSabotage(r.Context(), id)
		if errors.Is(err, ErrNotFound) {
			writeError(w, http.StatusNotFound, "sabotage not found")
			return
		}
		if err != nil {
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}
