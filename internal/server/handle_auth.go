package server

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/vitevents/goldrush/internal/goldrush"
)

// AuthVerifyRequest is the request body for POST /api/auth/verify.
type AuthVerifyRequest struct {
	Token string `json:"token"`
}

// AuthVerifyResponse reports whether the signed-in email belongs to a
// registered participant, and their team if they have one.
type AuthVerifyResponse struct {
	Registered bool          `json:"registered"`
	User       *userResponse `json:"user,omitempty"`
	Team       *teamResponse `json:"team,omitempty"`
}

type userResponse struct {
	ID        int64         `json:"id"`
	Email     string        `json:"email"`
	Role      goldrush.Role `json:"role"`
	CreatedAt time.Time     `json:"created_at"`
}

func toUserResponse(u goldrush.User) userResponse {
	return userResponse{ID: u.ID, Email: u.Email, Role: u.Role, CreatedAt: u.CreatedAt}
}

// handleAuthVerify is the sign-in landing call: it validates the
// provider token and tells the client who this player is. Unregistered
// emails get a 200 with registered=false, not an error, so the client
// can show the right screen.
func handleAuthVerify(verifier Verifier, store Store, allowedDomains []string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req AuthVerifyRequest
		if err := readJSON(r, &req); err != nil || req.Token == "" {
			writeError(w, http.StatusBadRequest, "token is required")
			return
		}

		email, err := verifier.Verify(r.Context(), req.Token)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "invalid token")
			return
		}
		if !emailAllowed(email, allowedDomains) {
			writeError(w, http.StatusForbidden, "email domain not allowed")
			return
		}

		user, err := store.UserByEmail(r.Context(), email)
		if errors.Is(err, ErrNotFound) {
			writeJSON(w, http.StatusOK, AuthVerifyResponse{})
			return
		}
		if err != nil {
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}

		resp := AuthVerifyResponse{Registered: true}
		u := toUserResponse(user)
		resp.User = &u

		if team, err := store.TeamForUser(r.Context(), user.ID); err == nil {
			t := toTeamResponse(team)
			resp.Team = &t
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

// MeResponse is the response for GET /api/me.
type MeResponse struct {
	User userResponse  `json:"user"`
	Team *teamResponse `json:"team,omitempty"`
}

func handleMe(store Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user := userFrom(r)
		resp := MeResponse{User: toUserResponse(user)}
		if team, err := store.TeamForUser(r.Context(), user.ID); err == nil {
			t := toTeamResponse(team)
			resp.Team = &t
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

// RegisterMemberRequest is the request body for POST /api/teams/register-member.
type RegisterMemberRequest struct {
	Email string `json:"email"`
}

// handleRegisterMember lets a team lead pre-register a teammate's email
// so their sign-in resolves to an account.
func handleRegisterMember(store Store, allowedDomains []string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user := userFrom(r)
		if _, err := store.TeamByLead(r.Context(), user.ID); err != nil {
			writeError(w, http.StatusForbidden, "only team leads can register members")
			return
		}

		var req RegisterMemberRequest
		if err := readJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		email := strings.TrimSpace(strings.ToLower(req.Email))
		if email == "" {
			writeError(w, http.StatusBadRequest, "email is required")
			return
		}
		if !emailAllowed(email, allowedDomains) {
			writeError(w, http.StatusBadRequest, "email domain not allowed")
			return
		}

		created, err := store.CreateUser(r.Context(), email, goldrush.RoleMember)
		if errors.Is(err, ErrDuplicate) {
			writeError(w, http.StatusConflict, "email already registered")
			return
		}
		if err != nil {
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}
		writeJSON(w, http.StatusCreated, toUserResponse(created))
	}
}
