package server

import (
	"context"
	"net/http"
	"testing"

	"github.com/vitevents/goldrush/internal/goldrush"
)

func TestScanEndpoint(t *testing.T) {
	ts := setupServer(t)
	ctx := context.Background()

	lead, leadToken := ts.addPlayer(t, "lead@example.com", goldrush.RoleTeamLead)
	team, err := ts.store.CreateTeam(ctx, "Miners", "MINE0001", goldrush.FactionInnocent, lead.ID, ts.clock.Now())
	if err != nil {
		t.Fatalf("create team: %v", err)
	}
	bar := seedBar(t, ts.store, "secret-1", 100)
	seedBar(t, ts.store, "secret-2", 150)

	// No round yet.
	w := doJSON(t, ts, http.MethodPost, "/api/scan", leadToken, ScanRequest{Code: bar.ScanSecret})
	if w.Code != http.StatusConflict {
		t.Fatalf("scan before round = %d, want 409", w.Code)
	}

	if _, err := ts.engine.StartRound(ctx); err != nil {
		t.Fatalf("start round: %v", err)
	}
	if err := ts.store.UpsertTeamClue(ctx, team.ID, bar, ts.clock.Now()); err != nil {
		t.Fatalf("pin clue: %v", err)
	}

	w = doJSON(t, ts, http.MethodPost, "/api/scan", leadToken, ScanRequest{Code: bar.ScanSecret})
	if w.Code != http.StatusOK {
		t.Fatalf("scan = %d: %s", w.Code, w.Body.String())
	}
	resp := decode[ScanResponse](t, w)
	if !resp.Accepted || resp.PointsEarned != 100 || resp.TotalScore != 100 {
		t.Fatalf("scan response = %+v", resp)
	}
	if resp.NewClue == nil || resp.NewClue.ClueText == "" {
		t.Fatal("scan response missing new clue")
	}

	// The scan lands in the team's history.
	w = doJSON(t, ts, http.MethodGet, "/api/teams/mine/scans", leadToken, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("scan history = %d: %s", w.Code, w.Body.String())
	}
	history := decode[[]goldrush.ScanRecord](t, w)
	if len(history) != 1 {
		t.Fatalf("%d history entries, want 1", len(history))
	}
	if history[0].GoldBarID != bar.ID || history[0].PointsEarned != 100 || history[0].WasSabotaged {
		t.Fatalf("history entry = %+v", history[0])
	}

	// Unknown secret.
	w = doJSON(t, ts, http.MethodPost, "/api/scan", leadToken, ScanRequest{Code: "garbage"})
	if w.Code != http.StatusNotFound {
		t.Fatalf("unknown secret = %d, want 404", w.Code)
	}

	// Empty body.
	w = doJSON(t, ts, http.MethodPost, "/api/scan", leadToken, ScanRequest{})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("empty code = %d, want 400", w.Code)
	}

	// Teamless player.
	_, loner := ts.addPlayer(t, "loner@example.com", goldrush.RoleMember)
	w = doJSON(t, ts, http.MethodPost, "/api/scan", loner, ScanRequest{Code: "secret-2"})
	if w.Code != http.StatusNotFound {
		t.Fatalf("teamless scan = %d, want 404", w.Code)
	}
}

func TestScanSecretExtraction(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{"abc123", "abc123"},
		{"  abc123  ", "abc123"},
		{"https://game.example.com/scan/abc123", "abc123"},
		{"https://game.example.com/scan?code=abc123", "abc123"},
	}
	for _, tc := range cases {
		if got := scanSecret(tc.in); got != tc.want {
			t.Errorf("scanSecret(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
