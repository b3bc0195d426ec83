package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/vitevents/goldrush/internal/goldrush"
)

type teamResponse struct {
	ID         int64            `json:"id"`
	Name       string           `json:"name"`
	JoinCode   string           `json:"join_code"`
	Faction    goldrush.Faction `json:"faction"`
	TotalScore int              `json:"total_score"`
	IsLead     bool             `json:"is_lead,omitempty"`
	JoinQR     string           `json:"join_qr,omitempty"`
	CreatedAt  time.Time        `json:"created_at"`
}

func toTeamResponse(t goldrush.Team) teamResponse {
	return teamResponse{
		ID:         t.ID,
		Name:       t.Name,
		JoinCode:   t.JoinCode,
		Faction:    t.Faction,
		TotalScore: t.TotalScore,
		CreatedAt:  t.CreatedAt,
	}
}

// joinQRPayload is what the team's shareable QR encodes.
type joinQRPayload struct {
	Type     string `json:"type"`
	JoinCode string `json:"join_code"`
	TeamName string `json:"team_name"`
}

const qrTypeTeamJoin = "team_join"

// CreateTeamRequest is the request body for POST /api/teams.
type CreateTeamRequest struct {
	Name    string           `json:"name"`
	Faction goldrush.Faction `json:"faction"`
}

// handleTeamCreate lets a team lead found their team. The faction is
// fixed at creation from the lead's assignment card and never shown to
// other teams.
func handleTeamCreate(store Store, engine *Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user := userFrom(r)
		if user.Role != goldrush.RoleTeamLead {
			writeError(w, http.StatusForbidden, "only team leads can create teams")
			return
		}

		var req CreateTeamRequest
		if err := readJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		req.Name = strings.TrimSpace(req.Name)
		if req.Name == "" {
			writeError(w, http.StatusBadRequest, "team name is required")
			return
		}
		if !req.Faction.Valid() {
			writeError(w, http.StatusBadRequest, "faction must be innocent or traitor")
			return
		}

		if _, err := store.TeamByLead(r.Context(), user.ID); err == nil {
			writeError(w, http.StatusConflict, "you already lead a team")
			return
		}
		if _, err := store.TeamForUser(r.Context(), user.ID); err == nil {
			writeError(w, http.StatusConflict, "you are already in a team")
			return
		}

		joinCode := strings.ToUpper(uuid.NewString()[:8])
		team, err := store.CreateTeam(r.Context(), req.Name, joinCode, req.Faction, user.ID, engine.Now())
		if errors.Is(err, ErrDuplicate) {
			writeError(w, http.StatusConflict, "team name already taken")
			return
		}
		if err != nil {
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}

		resp := toTeamResponse(team)
		resp.IsLead = true
		resp.JoinQR = joinQR(team)
		writeJSON(w, http.StatusCreated, resp)
	}
}

func joinQR(team goldrush.Team) string {
	payload, _ := json.Marshal(joinQRPayload{
		Type:     qrTypeTeamJoin,
		JoinCode: team.JoinCode,
		TeamName: team.Name,
	})
	qr, err := qrDataURL(string(payload))
	if err != nil {
		return ""
	}
	return qr
}

// JoinTeamRequest is the request body for POST /api/teams/join. Code
// accepts either the 8-character join code or the raw JSON payload a
// scanned team QR decodes to.
type JoinTeamRequest struct {
	Code string `json:"code"`
}

func handleTeamJoin(store Store, engine *Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user := userFrom(r)

		var req JoinTeamRequest
		if err := readJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		code := strings.TrimSpace(req.Code)
		if strings.HasPrefix(code, "{") {
			var payload joinQRPayload
			if err := json.Unmarshal([]byte(code), &payload); err != nil || payload.Type != qrTypeTeamJoin {
				writeError(w, http.StatusBadRequest, "unrecognized QR code")
				return
			}
			code = payload.JoinCode
		}
		code = strings.ToUpper(code)
		if code == "" {
			writeError(w, http.StatusBadRequest, "join code is required")
			return
		}

		team, err := store.TeamByJoinCode(r.Context(), code)
		if errors.Is(err, ErrNotFound) {
			writeError(w, http.StatusNotFound, "invalid join code")
			return
		}
		if err != nil {
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}

		err = store.AddTeamMember(r.Context(), team.ID, user.ID, engine.Now())
		switch {
		case errors.Is(err, ErrTeamFull):
			writeError(w, http.StatusConflict, "team is full")
			return
		case errors.Is(err, ErrAlreadyInTeam):
			writeError(w, http.StatusConflict, "you are already in a team")
			return
		case err != nil:
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}

		writeJSON(w, http.StatusOK, toTeamResponse(team))
	}
}

// TeamMineResponse is the response for GET /api/teams/mine.
type TeamMineResponse struct {
	Team     teamResponse         `json:"team"`
	Members  []teamMemberResponse `json:"members"`
	Clue     *clueResponse        `json:"clue,omitempty"`
	Sabotage sabotageStatus       `json:"sabotage"`
}

type teamMemberResponse struct {
	UserID int64         `json:"user_id"`
	Email  string        `json:"email"`
	Role   goldrush.Role `json:"role"`
	IsLead bool          `json:"is_lead"`
}

type clueResponse struct {
	ClueText     string    `json:"clue_text"`
	ClueLocation string    `json:"clue_location"`
	UpdatedAt    time.Time `json:"updated_at"`
}

func toClueResponse(c goldrush.TeamClue) clueResponse {
	return clueResponse{ClueText: c.ClueText, ClueLocation: c.ClueLocation, UpdatedAt: c.UpdatedAt}
}

func handleTeamMine(store Store, engine *Engine) http.HandlerFunc {
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

		resp := TeamMineResponse{Team: toTeamResponse(team)}
		resp.Team.IsLead = team.LeadUserID == user.ID
		if resp.Team.IsLead {
			resp.Team.JoinQR = joinQR(team)
		}

		members, err := store.TeamMembers(r.Context(), team.ID)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}
		for _, m := range members {
			resp.Members = append(resp.Members, teamMemberResponse{
				UserID: m.UserID, Email: m.Email, Role: m.Role, IsLead: m.IsLead,
			})
		}

		if clue, err := store.TeamClue(r.Context(), team.ID); err == nil {
			c := toClueResponse(clue)
			resp.Clue = &c
		}

		status, err := engine.SabotageStatus(r.Context(), team.ID)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}
		resp.Sabotage = status

		writeJSON(w, http.StatusOK, resp)
	}
}

func handleTeamMembers(store Store) http.HandlerFunc {
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

		members, err := store.TeamMembers(r.Context(), team.ID)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}
		out := make([]teamMemberResponse, 0, len(members))
		for _, m := range members {
			out = append(out, teamMemberResponse{
				UserID: m.UserID, Email: m.Email, Role: m.Role, IsLead: m.IsLead,
			})
		}
		writeJSON(w, http.StatusOK, out)
	}
}

func handleTeamClue(store Store) http.HandlerFunc {
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

		clue, err := store.TeamClue(r.Context(), team.ID)
		if errors.Is(err, ErrNotFound) {
			writeError(w, http.StatusNotFound, "no clue assigned yet")
			return
		}
		if err != nil {
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}
		writeJSON(w, http.StatusOK, toClueResponse(clue))
	}
}

func handleTeamScans(store Store) http.HandlerFunc {
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

		records, err := store.TeamScanHistory(r.Context(), team.ID)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}
		if records == nil {
			records = []goldrush.ScanRecord{}
		}
		writeJSON(w, http.StatusOK, records)
	}
}
