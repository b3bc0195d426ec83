package server

import "time"

// SSE event names. Per-team streams get team-scoped events; the global
// topic carries everything a spectator board needs.
const (
	eventRoundStarted          = "round_started"
	eventRoundEnded            = "round_ended"
	eventScoreUpdate           = "score_update"
	eventLeaderboardUpdate     = "leaderboard_update"
	eventLeaderboardVisibility = "leaderboard_visibility"
	eventSabotaged             = "sabotaged"
	eventSabotageEnded         = "sabotage_ended"
	eventSabotageStartedGlobal = "sabotage_started_global"
	eventSabotageEndedGlobal   = "sabotage_ended_global"
	eventSabotageOverruled     = "sabotage_overruled"
	eventGameReset             = "game_reset"
)

type roundStartedEvent struct {
	Round      int       `json:"round"`
	RoundStart time.Time `json:"round_start"`
	RoundEnd   time.Time `json:"round_end"`
}

type roundEndedEvent struct {
	Round int `json:"round"`
}

type scoreUpdateEvent struct {
	TeamID       int64  `json:"team_id"`
	PointsEarned int    `json:"points_earned"`
	TotalScore   int    `json:"total_score"`
	WasSabotaged bool   `json:"was_sabotaged"`
	Message      string `json:"message,omitempty"`
}

type leaderboardVisibilityEvent struct {
	Published bool `json:"published"`
}

type sabotagedEvent struct {
	SabotageID int64     `json:"sabotage_id"`
	EndTime    time.Time `json:"end_time"`
}

type sabotageEndedEvent struct {
	SabotageID int64 `json:"sabotage_id"`
}

type sabotageGlobalEvent struct {
	SabotageID   int64     `json:"sabotage_id"`
	TargetTeamID int64     `json:"target_team_id"`
	EndTime      time.Time `json:"end_time"`
}
