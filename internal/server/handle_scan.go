package server

import (
	"errors"
	"net/http"
	"net/url"
	"strings"
)

// ScanRequest is the request body for POST /api/scan. Code is the
// secret encoded in a gold bar's QR, either raw or as the full URL the
// printed code resolves to.
type ScanRequest struct {
	Code string `json:"code"`
}

// ScanResponse is the outcome of a scan submission.
type ScanResponse struct {
	Accepted     bool          `json:"accepted"`
	Message      string        `json:"message"`
	PointsEarned int           `json:"points_earned"`
	TotalScore   int           `json:"total_score"`
	WasSabotaged bool          `json:"was_sabotaged"`
	NewClue      *clueResponse `json:"new_clue,omitempty"`
}

func handleScan(store Store, engine *Engine) http.HandlerFunc {
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

		var req ScanRequest
		if err := readJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		secret := scanSecret(req.Code)
		if secret == "" {
			writeError(w, http.StatusBadRequest, "code is required")
			return
		}

		res, err := engine.SubmitScan(r.Context(), team, user.ID, secret)
		switch {
		case errors.Is(err, ErrRoundNotActive):
			writeError(w, http.StatusConflict, "no round in progress")
			return
		case errors.Is(err, ErrInvalidCode):
			writeError(w, http.StatusNotFound, "invalid code")
			return
		case errors.Is(err, ErrWrongToken):
			writeError(w, http.StatusBadRequest, "this is not your team's assigned gold bar")
			return
		case err != nil:
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}

		resp := ScanResponse{
			Accepted:     res.Accepted,
			Message:      res.Message,
			PointsEarned: res.PointsEarned,
			TotalScore:   res.TotalScore,
			WasSabotaged: res.WasSabotaged,
		}
		if res.NewClue != nil {
			c := toClueResponse(*res.NewClue)
			resp.NewClue = &c
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

// scanSecret extracts the secret from whatever the client scanned: the
// bare secret, or a URL with the secret as the last path segment or a
// "code" query parameter.
func scanSecret(code string) string {
	code = strings.TrimSpace(code)
	if !strings.Contains(code, "://") {
		return code
	}
	u, err := url.Parse(code)
	if err != nil {
		return code
	}
	if v := u.Query().Get("code"); v != "" {
		return v
	}
	parts := strings.Split(strings.Trim(u.Path, "/"), "/")
	return parts[len(parts)-1]
}
