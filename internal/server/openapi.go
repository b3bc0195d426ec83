package server

import (
	"encoding/json"
	"net/http"

	openapi "github.com/swaggest/openapi-go"
	"github.com/swaggest/openapi-go/openapi3"

	"github.com/vitevents/goldrush/internal/goldrush"
)

// ErrorResponse is returned for all error responses.
type ErrorResponse struct {
	Error string `json:"error"`
}

func newOpenAPISpec() *openapi3.Spec {
	r := openapi3.NewReflector()
	r.Spec.Info.Title = "Gold Rush API"
	r.Spec.Info.Version = "0.1.0"
	r.Spec.Info.WithDescription("Backend API for the Gold Rush live game.")

	// GET /healthz
	getHealthz, _ := r.NewOperationContext(http.MethodGet, "/healthz")
	getHealthz.SetSummary("Health check")
	getHealthz.SetDescription("Returns the health status of backend dependencies.")
	getHealthz.AddRespStructure(HealthResponse{}, openapi.WithHTTPStatus(http.StatusOK))
	getHealthz.AddRespStructure(HealthResponse{}, openapi.WithHTTPStatus(http.StatusServiceUnavailable))
	_ = r.AddOperation(getHealthz)

	// POST /api/auth/verify
	postVerify, _ := r.NewOperationContext(http.MethodPost, "/api/auth/verify")
	postVerify.SetSummary("Verify sign-in")
	postVerify.SetDescription("Validates an identity token and reports whether the email is registered.")
	postVerify.AddReqStructure(AuthVerifyRequest{})
	postVerify.AddRespStructure(AuthVerifyResponse{}, openapi.WithHTTPStatus(http.StatusOK))
	postVerify.AddRespStructure(ErrorResponse{}, openapi.WithHTTPStatus(http.StatusUnauthorized))
	postVerify.AddRespStructure(ErrorResponse{}, openapi.WithHTTPStatus(http.StatusForbidden))
	_ = r.AddOperation(postVerify)

	// GET /api/game/state
	getState, _ := r.NewOperationContext(http.MethodGet, "/api/game/state")
	getState.SetSummary("Game state")
	getState.SetDescription("Returns the current round, status, and remaining time.")
	getState.AddRespStructure(gameState{}, openapi.WithHTTPStatus(http.StatusOK))
	_ = r.AddOperation(getState)

	// GET /api/leaderboard
	getBoard, _ := r.NewOperationContext(http.MethodGet, "/api/leaderboard")
	getBoard.SetSummary("Leaderboard")
	getBoard.SetDescription("Returns the ranked standings, or an empty list while unpublished.")
	getBoard.AddRespStructure(nil, openapi.WithHTTPStatus(http.StatusOK))
	_ = r.AddOperation(getBoard)

	// GET /api/events
	getEvents, _ := r.NewOperationContext(http.MethodGet, "/api/events")
	getEvents.SetSummary("Global SSE stream")
	getEvents.SetDescription("Server-Sent Events stream of round, leaderboard, and sabotage announcements.")
	getEvents.AddRespStructure(nil, openapi.WithHTTPStatus(http.StatusOK),
		openapi.WithContentType("text/event-stream"))
	_ = r.AddOperation(getEvents)

	// GET /api/events/team
	getTeamEvents, _ := r.NewOperationContext(http.MethodGet, "/api/events/team")
	getTeamEvents.SetSummary("Team SSE stream")
	getTeamEvents.SetDescription("Per-team event stream. Pass the identity token as a query parameter.")
	getTeamEvents.AddRespStructure(nil, openapi.WithHTTPStatus(http.StatusOK),
		openapi.WithContentType("text/event-stream"))
	getTeamEvents.AddRespStructure(ErrorResponse{}, openapi.WithHTTPStatus(http.StatusUnauthorized))
	_ = r.AddOperation(getTeamEvents)

	// GET /api/me
	getMe, _ := r.NewOperationContext(http.MethodGet, "/api/me")
	getMe.SetSummary("Current player")
	getMe.SetDescription("Returns the signed-in player and their team. Requires Bearer token.")
	getMe.AddRespStructure(MeResponse{}, openapi.WithHTTPStatus(http.StatusOK))
	getMe.AddRespStructure(ErrorResponse{}, openapi.WithHTTPStatus(http.StatusUnauthorized))
	_ = r.AddOperation(getMe)

	// POST /api/teams
	postTeams, _ := r.NewOperationContext(http.MethodPost, "/api/teams")
	postTeams.SetSummary("Create team")
	postTeams.SetDescription("Team lead founds a team with the faction from their assignment card. Requires Bearer token.")
	postTeams.AddReqStructure(CreateTeamRequest{})
	postTeams.AddRespStructure(teamResponse{}, openapi.WithHTTPStatus(http.StatusCreated))
	postTeams.AddRespStructure(ErrorResponse{}, openapi.WithHTTPStatus(http.StatusForbidden))
	postTeams.AddRespStructure(ErrorResponse{}, openapi.WithHTTPStatus(http.StatusConflict))
	_ = r.AddOperation(postTeams)

	// POST /api/teams/join
	postJoin, _ := r.NewOperationContext(http.MethodPost, "/api/teams/join")
	postJoin.SetSummary("Join team")
	postJoin.SetDescription("Join a team by join code or scanned team QR. Requires Bearer token.")
	postJoin.AddReqStructure(JoinTeamRequest{})
	postJoin.AddRespStructure(teamResponse{}, openapi.WithHTTPStatus(http.StatusOK))
	postJoin.AddRespStructure(ErrorResponse{}, openapi.WithHTTPStatus(http.StatusNotFound))
	postJoin.AddRespStructure(ErrorResponse{}, openapi.WithHTTPStatus(http.StatusConflict))
	_ = r.AddOperation(postJoin)

	// GET /api/teams/mine
	getMine, _ := r.NewOperationContext(http.MethodGet, "/api/teams/mine")
	getMine.SetSummary("My team")
	getMine.SetDescription("Returns the player's team, roster, clue, and sabotage state. Requires Bearer token.")
	getMine.AddRespStructure(TeamMineResponse{}, openapi.WithHTTPStatus(http.StatusOK))
	getMine.AddRespStructure(ErrorResponse{}, openapi.WithHTTPStatus(http.StatusNotFound))
	_ = r.AddOperation(getMine)

	// GET /api/teams/mine/scans
	getScans, _ := r.NewOperationContext(http.MethodGet, "/api/teams/mine/scans")
	getScans.SetSummary("My team's scan history")
	getScans.SetDescription("Returns the team's scans, newest first. Requires Bearer token.")
	getScans.AddRespStructure([]goldrush.ScanRecord{}, openapi.WithHTTPStatus(http.StatusOK))
	getScans.AddRespStructure(ErrorResponse{}, openapi.WithHTTPStatus(http.StatusNotFound))
	_ = r.AddOperation(getScans)

	// POST /api/scan
	postScan, _ := r.NewOperationContext(http.MethodPost, "/api/scan")
	postScan.SetSummary("Scan gold bar")
	postScan.SetDescription("Submit a scanned QR code. Scores the bar or reports why it was rejected. Requires Bearer token.")
	postScan.AddReqStructure(ScanRequest{})
	postScan.AddRespStructure(ScanResponse{}, openapi.WithHTTPStatus(http.StatusOK))
	postScan.AddRespStructure(ErrorResponse{}, openapi.WithHTTPStatus(http.StatusBadRequest))
	postScan.AddRespStructure(ErrorResponse{}, openapi.WithHTTPStatus(http.StatusNotFound))
	postScan.AddRespStructure(ErrorResponse{}, openapi.WithHTTPStatus(http.StatusConflict))
	_ = r.AddOperation(postScan)

	// POST /api/sabotage
	postSabotage, _ := r.NewOperationContext(http.MethodPost, "/api/sabotage")
	postSabotage.SetSummary("Sabotage a team")
	postSabotage.SetDescription("Traitor team sabotages an innocent team. Requires Bearer token.")
	postSabotage.AddReqStructure(SabotageRequest{})
	postSabotage.AddRespStructure(SabotageResponse{}, openapi.WithHTTPStatus(http.StatusOK))
	postSabotage.AddRespStructure(ErrorResponse{}, openapi.WithHTTPStatus(http.StatusForbidden))
	postSabotage.AddRespStructure(ErrorResponse{}, openapi.WithHTTPStatus(http.StatusConflict))
	postSabotage.AddRespStructure(cooldownErrorResponse{}, openapi.WithHTTPStatus(http.StatusTooManyRequests))
	_ = r.AddOperation(postSabotage)

	// GET /api/sabotage/status
	getSabStatus, _ := r.NewOperationContext(http.MethodGet, "/api/sabotage/status")
	getSabStatus.SetSummary("Sabotage status")
	getSabStatus.SetDescription("Reports whether the player's team is currently sabotaged. Requires Bearer token.")
	getSabStatus.AddRespStructure(sabotageStatus{}, openapi.WithHTTPStatus(http.StatusOK))
	_ = r.AddOperation(getSabStatus)

	// GET /api/sabotage/cooldown
	getCooldown, _ := r.NewOperationContext(http.MethodGet, "/api/sabotage/cooldown")
	getCooldown.SetSummary("Sabotage cooldown")
	getCooldown.SetDescription("Reports when the traitor team may sabotage again. Requires Bearer token.")
	getCooldown.AddRespStructure(cooldownStatus{}, openapi.WithHTTPStatus(http.StatusOK))
	getCooldown.AddRespStructure(ErrorResponse{}, openapi.WithHTTPStatus(http.StatusForbidden))
	_ = r.AddOperation(getCooldown)

	// POST /api/admin/login
	postLogin, _ := r.NewOperationContext(http.MethodPost, "/api/admin/login")
	postLogin.SetSummary("Admin login")
	postLogin.SetDescription("Authenticate with email and password. Sets admin_session cookie.")
	postLogin.AddReqStructure(AdminLoginRequest{})
	postLogin.AddRespStructure(AdminMeResponse{}, openapi.WithHTTPStatus(http.StatusOK))
	postLogin.AddRespStructure(ErrorResponse{}, openapi.WithHTTPStatus(http.StatusUnauthorized))
	_ = r.AddOperation(postLogin)

	// POST /api/admin/logout
	postLogout, _ := r.NewOperationContext(http.MethodPost, "/api/admin/logout")
	postLogout.SetSummary("Admin logout")
	postLogout.SetDescription("Clears admin session and cookie.")
	postLogout.AddRespStructure(nil, openapi.WithHTTPStatus(http.StatusOK))
	_ = r.AddOperation(postLogout)

	// PUT /api/admin/settings
	putSettings, _ := r.NewOperationContext(http.MethodPut, "/api/admin/settings")
	putSettings.SetSummary("Update settings")
	putSettings.SetDescription("Updates round and sabotage timing. Requires admin_session cookie.")
	putSettings.AddReqStructure(SettingsResponse{})
	putSettings.AddRespStructure(SettingsResponse{}, openapi.WithHTTPStatus(http.StatusOK))
	putSettings.AddRespStructure(ErrorResponse{}, openapi.WithHTTPStatus(http.StatusBadRequest))
	_ = r.AddOperation(putSettings)

	// POST /api/admin/rounds/start
	startRound, _ := r.NewOperationContext(http.MethodPost, "/api/admin/rounds/start")
	startRound.SetSummary("Start round")
	startRound.SetDescription("Begins the next round and deals fresh clues. Requires admin_session cookie.")
	startRound.AddRespStructure(nil, openapi.WithHTTPStatus(http.StatusOK))
	startRound.AddRespStructure(ErrorResponse{}, openapi.WithHTTPStatus(http.StatusConflict))
	_ = r.AddOperation(startRound)

	// POST /api/admin/game/reset
	resetGame, _ := r.NewOperationContext(http.MethodPost, "/api/admin/game/reset")
	resetGame.SetSummary("Reset game")
	resetGame.SetDescription("Wipes all play state back to a fresh game. Requires admin_session cookie.")
	resetGame.AddRespStructure(nil, openapi.WithHTTPStatus(http.StatusOK))
	_ = r.AddOperation(resetGame)

	// POST /api/admin/sabotages/{id}/overrule
	overrule, _ := r.NewOperationContext(http.MethodPost, "/api/admin/sabotages/{id}/overrule")
	overrule.SetSummary("Overrule sabotage")
	overrule.SetDescription("Ends a sabotage ahead of schedule. Requires admin_session cookie.")
	overrule.AddRespStructure(nil, openapi.WithHTTPStatus(http.StatusOK))
	overrule.AddRespStructure(ErrorResponse{}, openapi.WithHTTPStatus(http.StatusNotFound))
	_ = r.AddOperation(overrule)

	return r.Spec
}

func handleOpenAPI() http.HandlerFunc {
	spec := newOpenAPISpec()
	data, _ := json.MarshalIndent(spec, "", "  ")

	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(data)
	}
}
