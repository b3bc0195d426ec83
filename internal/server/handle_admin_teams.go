package server

import (
	"encoding/json"
	"errors"
	"math/rand"
	"net/http"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/vitevents/goldrush/internal/goldrush"
)

func handleAdminListTeams(store Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		teams, err := store.ListTeamsDetailed(r.Context())
		if err != nil {
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}
		if teams == nil {
			teams = []teamDetail{}
		}
		writeJSON(w, http.StatusOK, teams)
	}
}

func handleAdminDeleteTeam(store Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := pathID(r, "id")
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid team id")
			return
		}

		err = store.DeleteTeam(r.Context(), id)
		if errors.Is(err, ErrNotFound) {
			writeError(w, http.StatusNotFound, "team not found")
			return
		}
		if err != nil {
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}

// handleAdminRemoveMember kicks a member from a team. The lead cannot
// be removed; delete the team instead.
func handleAdminRemoveMember(store Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		teamID, err := pathID(r, "teamID")
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid team id")
			return
		}
		userID, err := pathID(r, "userID")
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid user id")
			return
		}

		team, err := store.TeamByID(r.Context(), teamID)
		if errors.Is(err, ErrNotFound) {
			writeError(w, http.StatusNotFound, "team not found")
			return
		}
		if err != nil {
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}
		if team.LeadUserID == userID {
			writeError(w, http.StatusConflict, "cannot remove the team lead")
			return
		}

		err = store.RemoveTeamMember(r.Context(), teamID, userID)
		if errors.Is(err, ErrNotFound) {
			writeError(w, http.StatusNotFound, "member not found")
			return
		}
		if err != nil {
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}

func handleAdminDisqualifyTeam(store Store, engine *Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := pathID(r, "id")
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid team id")
			return
		}

		err = store.DisqualifyTeam(r.Context(), id)
		if errors.Is(err, ErrNotFound) {
			writeError(w, http.StatusNotFound, "team not found")
			return
		}
		if err != nil {
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}

		engine.publishLeaderboard(r.Context())
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}

func handleAdminListParticipants(store Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		users, err := store.ListParticipants(r.Context())
		if err != nil {
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}
		out := make([]userResponse, 0, len(users))
		for _, u := range users {
			out = append(out, toUserResponse(u))
		}
		writeJSON(w, http.StatusOK, out)
	}
}

// RegisterParticipantRequest is the request body for POST /api/admin/participants.
type RegisterParticipantRequest struct {
	Email string        `json:"email"`
	Role  goldrush.Role `json:"role"`
}

func handleAdminRegisterParticipant(store Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req RegisterParticipantRequest
		if err := readJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		email := strings.TrimSpace(strings.ToLower(req.Email))
		if email == "" {
			writeError(w, http.StatusBadRequest, "email is required")
			return
		}
		if req.Role == "" {
			req.Role = goldrush.RoleMember
		}
		if req.Role != goldrush.RoleMember && req.Role != goldrush.RoleTeamLead {
			writeError(w, http.StatusBadRequest, "role must be member or team_lead")
			return
		}

		user, err := store.CreateUser(r.Context(), email, req.Role)
		if errors.Is(err, ErrDuplicate) {
			writeError(w, http.StatusConflict, "email already registered")
			return
		}
		if err != nil {
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}
		writeJSON(w, http.StatusCreated, toUserResponse(user))
	}
}

func handleAdminPromoteParticipant(store Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := pathID(r, "id")
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid user id")
			return
		}

		err = store.SetUserRole(r.Context(), id, goldrush.RoleTeamLead)
		if errors.Is(err, ErrNotFound) {
			writeError(w, http.StatusNotFound, "user not found")
			return
		}
		if err != nil {
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}

func handleAdminDeleteParticipant(store Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := pathID(r, "id")
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid user id")
			return
		}

		err = store.DeleteUser(r.Context(), id)
		switch {
		case errors.Is(err, ErrNotFound):
			writeError(w, http.StatusNotFound, "user not found")
			return
		case errors.Is(err, ErrIsTeamLead):
			writeError(w, http.StatusConflict, "delete or reassign their team first")
			return
		case err != nil:
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}

// assignmentCard is one printable faction card for a team lead. Cards
// are shuffled so the handout order reveals nothing.
type assignmentCard struct {
	CardID  string           `json:"card_id"`
	Faction goldrush.Faction `json:"faction"`
	QR      string           `json:"qr"`
}

type assignmentQRPayload struct {
	Type     string `json:"type"`
	TeamType string `json:"team_type"`
	CardID   string `json:"card_id"`
}

const qrTypeTeamAssignment = "team_assignment"

func handleAdminAssignmentCards() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		innocents := queryCount(r, "innocents", 6)
		traitors := queryCount(r, "traitors", 2)
		if innocents < 0 || traitors < 0 || innocents+traitors == 0 || innocents+traitors > 100 {
			writeError(w, http.StatusBadRequest, "invalid card counts")
			return
		}

		cards := make([]assignmentCard, 0, innocents+traitors)
		for i := 0; i < innocents; i++ {
			card, err := newAssignmentCard(goldrush.FactionInnocent)
			if err != nil {
				writeError(w, http.StatusInternalServerError, "internal error")
				return
			}
			cards = append(cards, card)
		}
		for i := 0; i < traitors; i++ {
			card, err := newAssignmentCard(goldrush.FactionTraitor)
			if err != nil {
				writeError(w, http.StatusInternalServerError, "internal error")
				return
			}
			cards = append(cards, card)
		}

		rand.Shuffle(len(cards), func(i, j int) {
			cards[i], cards[j] = cards[j], cards[i]
		})
		writeJSON(w, http.StatusOK, cards)
	}
}

func newAssignmentCard(faction goldrush.Faction) (assignmentCard, error) {
	cardID := uuid.NewString()
	payload, _ := json.Marshal(assignmentQRPayload{
		Type:     qrTypeTeamAssignment,
		TeamType: string(faction),
		CardID:   cardID,
	})
	qr, err := qrDataURL(string(payload))
	if err != nil {
		return assignmentCard{}, err
	}
	return assignmentCard{CardID: cardID, Faction: faction, QR: qr}, nil
}

func queryCount(r *http.Request, name string, fallback int) int {
	v := r.URL.Query().Get(name)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return -1
	}
	return n
}
