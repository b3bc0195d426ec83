package server

import (
	"errors"
	"net/http"
	"time"

	"github.com/vitevents/goldrush/internal/goldrush"
)

func handleGameState(engine *Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		gs, err := engine.GameState(r.Context())
		if err != nil {
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}
		writeJSON(w, http.StatusOK, gs)
	}
}

func handleLeaderboard(engine *Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		board, err := engine.Leaderboard(r.Context(), false)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}
		writeJSON(w, http.StatusOK, board)
	}
}

// SabotageRequest is the request body for POST /api/sabotage.
type SabotageRequest struct {
	TargetTeamID int64 `json:"target_team_id"`
}

// SabotageResponse describes the sabotage just placed.
type SabotageResponse struct {
	SabotageID   int64     `json:"sabotage_id"`
	TargetTeamID int64     `json:"target_team_id"`
	EndTime      time.Time `json:"end_time"`
}

// cooldownErrorResponse carries the machine-readable wait alongside the
// human message.
type cooldownErrorResponse struct {
	Error            string `json:"error"`
	RemainingSeconds int    `json:"remaining_seconds"`
	SameTarget       bool   `json:"same_target"`
}

func handleSabotageAttempt(store Store, engine *Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user := userFrom(r)
		team, err := store.TeamForUser(r.Context(), user.ID)
		if errors.Is(err, ErrNotFound) {
			writeError(w, http.StatusNotFound, "you are not in a team")
			return
		}
		if err != nil {
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}

		var req SabotageRequest
		if err := readJSON(r, &req); err != nil || req.TargetTeamID == 0 {
			writeError(w, http.StatusBadRequest, "target_team_id is required")
			return
		}

		sb, err := engine.AttemptSabotage(r.Context(), team, req.TargetTeamID)
		var cooldown *CooldownError
		switch {
		case errors.Is(err, ErrNotTraitor):
			writeError(w, http.StatusForbidden, "only traitor teams can sabotage")
			return
		case errors.Is(err, ErrNotFound):
			writeError(w, http.StatusNotFound, "target team not found")
			return
		case errors.Is(err, ErrTargetInvalid):
			writeError(w, http.StatusBadRequest, "target must be an innocent team")
			return
		case errors.Is(err, ErrRoundNotActive):
			writeError(w, http.StatusConflict, "no round in progress")
			return
		case errors.As(err, &cooldown):
			writeJSON(w, http.StatusTooManyRequests, cooldownErrorResponse{
				Error:            cooldown.Error(),
				RemainingSeconds: ceilSeconds(cooldown.Remaining),
				SameTarget:       cooldown.SameTarget,
			})
			return
		case errors.Is(err, ErrTargetSabotaged):
			writeError(w, http.StatusConflict, "target team is already sabotaged")
			return
		case err != nil:
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}

		writeJSON(w, http.StatusOK, SabotageResponse{
			SabotageID:   sb.ID,
			TargetTeamID: sb.TargetTeamID,
			EndTime:      sb.EndTime,
		})
	}
}

func handleSabotageStatus(store Store, engine *Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user := userFrom(r)
		team, err := store.TeamForUser(r.Context(), user.ID)
		if errors.Is(err, ErrNotFound) {
			writeError(w, http.StatusNotFound, "you are not in a team")
			return
		}
		if err != nil {
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}

		status, err := engine.SabotageStatus(r.Context(), team.ID)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}
		writeJSON(w, http.StatusOK, status)
	}
}

func handleSabotageCooldown(store Store, engine *Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user := userFrom(r)
		team, err := store.TeamForUser(r.Context(), user.ID)
		if errors.Is(err, ErrNotFound) {
			writeError(w, http.StatusNotFound, "you are not in a team")
			return
		}
		if err != nil {
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}
		if team.Faction != goldrush.FactionTraitor {
			writeError(w, http.StatusForbidden, "only traitor teams have a sabotage cooldown")
			return
		}

		status, err := engine.CooldownStatus(r.Context(), team.ID)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}
		writeJSON(w, http.StatusOK, status)
	}
}

// handleSabotageTargets lists innocent teams a traitor can aim at.
func handleSabotageTargets(store Store, engine *Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user := userFrom(r)
		team, err := store.TeamForUser(r.Context(), user.ID)
		if errors.Is(err, ErrNotFound) {
			writeError(w, http.StatusNotFound, "you are not in a team")
			return
		}
		if err != nil {
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}
		if team.Faction != goldrush.FactionTraitor {
			writeError(w, http.StatusForbidden, "only traitor teams can list targets")
			return
		}

		targets, err := store.ListInnocentTeams(r.Context(), engine.Now())
		if err != nil {
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}
		if targets == nil {
			targets = []innocentTeam{}
		}
		writeJSON(w, http.StatusOK, targets)
	}
}
