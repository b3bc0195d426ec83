package server

import (
	"errors"
	"net/http"
	"time"

	"github.com/vitevents/goldrush/internal/goldrush"
)

// SettingsResponse is the admin view of the game configuration.
type SettingsResponse struct {
	TotalRounds               int `json:"total_rounds"`
	RoundDurationSeconds      int `json:"round_duration_seconds"`
	SabotageDurationSeconds   int `json:"sabotage_duration_seconds"`
	SabotageCooldownSeconds   int `json:"sabotage_cooldown_seconds"`
	SameTargetCooldownSeconds int `json:"same_target_cooldown_seconds"`
}

func toSettingsResponse(s goldrush.Settings) SettingsResponse {
	return SettingsResponse{
		TotalRounds:               s.TotalRounds,
		RoundDurationSeconds:      int(s.RoundDuration.Seconds()),
		SabotageDurationSeconds:   int(s.SabotageDuration.Seconds()),
		SabotageCooldownSeconds:   int(s.SabotageCooldown.Seconds()),
		SameTargetCooldownSeconds: int(s.SameTargetCooldown.Seconds()),
	}
}

func handleAdminGetSettings(engine *Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		gs, err := engine.GameState(r.Context())
		if err != nil {
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}
		rs, err := engine.store.RoundState(r.Context())
		if err != nil {
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"settings": toSettingsResponse(rs.Settings),
			"state":    gs,
		})
	}
}

func handleAdminUpdateSettings(engine *Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req SettingsResponse
		if err := readJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		if req.TotalRounds <= 0 || req.RoundDurationSeconds <= 0 ||
			req.SabotageDurationSeconds <= 0 || req.SabotageCooldownSeconds <= 0 ||
			req.SameTargetCooldownSeconds <= 0 {
			writeError(w, http.StatusBadRequest, "all settings must be positive")
			return
		}

		rs, err := engine.UpdateSettings(r.Context(), goldrush.Settings{
			TotalRounds:        req.TotalRounds,
			RoundDuration:      time.Duration(req.RoundDurationSeconds) * time.Second,
			SabotageDuration:   time.Duration(req.SabotageDurationSeconds) * time.Second,
			SabotageCooldown:   time.Duration(req.SabotageCooldownSeconds) * time.Second,
			SameTargetCooldown: time.Duration(req.SameTargetCooldownSeconds) * time.Second,
		})
		if err != nil {
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}
		writeJSON(w, http.StatusOK, toSettingsResponse(rs.Settings))
	}
}

func handleAdminStartRound(engine *Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rs, err := engine.StartRound(r.Context())
		switch {
		case errors.Is(err, ErrRoundInProgress):
			writeError(w, http.StatusConflict, "a round is already in progress")
			return
		case errors.Is(err, ErrAllRoundsPlayed):
			writeError(w, http.StatusConflict, "all rounds have been played")
			return
		case err != nil:
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"current_round": rs.CurrentRound,
			"round_start":   rs.RoundStart,
			"round_end":     rs.RoundEnd,
		})
	}
}

func handleAdminResetGame(engine *Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := engine.ResetGame(r.Context()); err != nil {
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}

// PublishLeaderboardRequest is the request body for POST /api/admin/leaderboard/publish.
type PublishLeaderboardRequest struct {
	Published bool `json:"published"`
}

func handleAdminPublishLeaderboard(engine *Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req PublishLeaderboardRequest
		if err := readJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		if err := engine.SetLeaderboardPublished(r.Context(), req.Published); err != nil {
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}
		writeJSON(w, http.StatusOK, map[string]bool{"published": req.Published})
	}
}

func handleAdminLeaderboard(engine *Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		board, err := engine.Leaderboard(r.Context(), true)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}
		writeJSON(w, http.StatusOK, board)
	}
}

func handleAdminAnalytics(store Store, engine *Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		data, err := store.Analytics(r.Context(), engine.Now())
		if err != nil {
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}
		writeJSON(w, http.StatusOK, data)
	}
}
