package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/vitevents/goldrush/internal/goldrush"
)

func adminLogin(t *testing.T, ts *testServer) *http.Cookie {
	t.Helper()
	ts.addAdmin(t, "admin@example.com", "hunter2")

	w := doJSON(t, ts, http.MethodPost, "/api/admin/login", "",
		AdminLoginRequest{Email: "admin@example.com", Password: "hunter2"})
	if w.Code != http.StatusOK {
		t.Fatalf("login = %d: %s", w.Code, w.Body.String())
	}
	for _, c := range w.Result().Cookies() {
		if c.Name == adminCookieName {
			return c
		}
	}
	t.Fatal("login response did not set the admin cookie")
	return nil
}

func doAdmin(t *testing.T, ts *testServer, cookie *http.Cookie, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	if cookie != nil {
		req.AddCookie(cookie)
	}
	w := httptest.NewRecorder()
	ts.router.ServeHTTP(w, req)
	return w
}

func TestAdminLoginFlow(t *testing.T) {
	ts := setupServer(t)
	cookie := adminLogin(t, ts)

	// Wrong password.
	w := doJSON(t, ts, http.MethodPost, "/api/admin/login", "",
		AdminLoginRequest{Email: "admin@example.com", Password: "wrong"})
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("bad password = %d, want 401", w.Code)
	}

	// Authenticated /me.
	w = doAdmin(t, ts, cookie, http.MethodGet, "/api/admin/me", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("me = %d", w.Code)
	}
	me := decode[AdminMeResponse](t, w)
	if me.Email != "admin@example.com" {
		t.Errorf("me email = %q", me.Email)
	}

	// No cookie.
	w = doAdmin(t, ts, nil, http.MethodGet, "/api/admin/me", nil)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("me without cookie = %d, want 401", w.Code)
	}

	// Logout invalidates the session.
	w = doAdmin(t, ts, cookie, http.MethodPost, "/api/admin/logout", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("logout = %d", w.Code)
	}
	w = doAdmin(t, ts, cookie, http.MethodGet, "/api/admin/me", nil)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("me after logout = %d, want 401", w.Code)
	}
}

func TestAdminSettings(t *testing.T) {
	ts := setupServer(t)
	cookie := adminLogin(t, ts)

	w := doAdmin(t, ts, cookie, http.MethodPut, "/api/admin/settings", SettingsResponse{
		TotalRounds:               3,
		RoundDurationSeconds:      300,
		SabotageDurationSeconds:   45,
		SabotageCooldownSeconds:   90,
		SameTargetCooldownSeconds: 180,
	})
	if w.Code != http.StatusOK {
		t.Fatalf("update settings = %d: %s", w.Code, w.Body.String())
	}
	got := decode[SettingsResponse](t, w)
	if got.TotalRounds != 3 || got.RoundDurationSeconds != 300 {
		t.Errorf("settings = %+v", got)
	}

	// Zero values are rejected.
	w = doAdmin(t, ts, cookie, http.MethodPut, "/api/admin/settings", SettingsResponse{TotalRounds: 3})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("invalid settings = %d, want 400", w.Code)
	}
}

func TestAdminRoundControls(t *testing.T) {
	ts := setupServer(t)
	cookie := adminLogin(t, ts)

	seedTeam(t, ts.store, "Miners", goldrush.FactionInnocent)
	seedBar(t, ts.store, "bar-1", 100)

	w := doAdmin(t, ts, cookie, http.MethodPost, "/api/admin/rounds/start", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("start = %d: %s", w.Code, w.Body.String())
	}
	w = doAdmin(t, ts, cookie, http.MethodPost, "/api/admin/rounds/start", nil)
	if w.Code != http.StatusConflict {
		t.Fatalf("double start = %d, want 409", w.Code)
	}

	w = doAdmin(t, ts, cookie, http.MethodPost, "/api/admin/game/reset", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("reset = %d", w.Code)
	}
	gs, err := ts.engine.GameState(context.Background())
	if err != nil {
		t.Fatalf("game state: %v", err)
	}
	if gs.Status != goldrush.RoundNotStarted || gs.CurrentRound != 0 {
		t.Errorf("state after reset = %+v", gs)
	}
}

func TestAdminLocationsAndBars(t *testing.T) {
	ts := setupServer(t)
	cookie := adminLogin(t, ts)

	w := doAdmin(t, ts, cookie, http.MethodPost, "/api/admin/locations", LocationRequest{Name: "Fountain"})
	if w.Code != http.StatusCreated {
		t.Fatalf("create location = %d: %s", w.Code, w.Body.String())
	}
	fountain := decode[goldrush.Location](t, w)

	w = doAdmin(t, ts, cookie, http.MethodPost, "/api/admin/locations", LocationRequest{Name: "Library"})
	library := decode[goldrush.Location](t, w)

	// Clue location must differ from the bar's own.
	w = doAdmin(t, ts, cookie, http.MethodPost, "/api/admin/gold-bars", CreateGoldBarRequest{
		Points: 100, LocationID: fountain.ID, ClueText: "x", ClueLocationID: fountain.ID,
	})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("self-clue bar = %d, want 400", w.Code)
	}

	w = doAdmin(t, ts, cookie, http.MethodPost, "/api/admin/gold-bars", CreateGoldBarRequest{
		Points: 100, LocationID: fountain.ID, ClueText: "behind the shelves", ClueLocationID: library.ID,
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("create bar = %d: %s", w.Code, w.Body.String())
	}
	bar := decode[goldrush.GoldBar](t, w)
	if bar.ScanSecret == "" {
		t.Fatal("bar created without a scan secret")
	}

	// A referenced location cannot be deleted.
	w = doAdmin(t, ts, cookie, http.MethodDelete, "/api/admin/locations/"+itoa(fountain.ID), nil)
	if w.Code != http.StatusConflict {
		t.Fatalf("delete referenced location = %d, want 409", w.Code)
	}

	// Bar QR.
	w = doAdmin(t, ts, cookie, http.MethodGet, "/api/admin/gold-bars/"+itoa(bar.ID)+"/qr", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("bar qr = %d", w.Code)
	}
	qr := decode[GoldBarQRResponse](t, w)
	if !strings.HasPrefix(qr.QR, "data:image/png;base64,") {
		t.Errorf("qr is not a PNG data URL: %.40s", qr.QR)
	}

	// A scanned bar cannot be deleted.
	team := seedTeam(t, ts.store, "Miners", goldrush.FactionInnocent)
	if _, err := ts.store.MarkBarScanned(context.Background(), scanParams{
		BarID: bar.ID, TeamID: team.ID, UserID: team.LeadUserID, Points: 100, Now: time.Now(),
	}); err != nil {
		t.Fatalf("scan: %v", err)
	}
	w = doAdmin(t, ts, cookie, http.MethodDelete, "/api/admin/gold-bars/"+itoa(bar.ID), nil)
	if w.Code != http.StatusConflict {
		t.Fatalf("delete scanned bar = %d, want 409", w.Code)
	}
}

func TestAdminLeaderboardPublish(t *testing.T) {
	ts := setupServer(t)
	cookie := adminLogin(t, ts)

	seedTeam(t, ts.store, "Miners", goldrush.FactionInnocent)

	w := doJSON(t, ts, http.MethodGet, "/api/leaderboard", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("public leaderboard = %d", w.Code)
	}
	board := decode[[]goldrush.LeaderboardEntry](t, w)
	if len(board) != 0 {
		t.Fatalf("unpublished board has %d entries", len(board))
	}

	w = doAdmin(t, ts, cookie, http.MethodPost, "/api/admin/leaderboard/publish",
		PublishLeaderboardRequest{Published: true})
	if w.Code != http.StatusOK {
		t.Fatalf("publish = %d", w.Code)
	}

	w = doJSON(t, ts, http.MethodGet, "/api/leaderboard", "", nil)
	board = decode[[]goldrush.LeaderboardEntry](t, w)
	if len(board) != 1 {
		t.Fatalf("published board has %d entries, want 1", len(board))
	}

	// Admins always see it.
	w = doAdmin(t, ts, cookie, http.MethodPost, "/api/admin/leaderboard/publish",
		PublishLeaderboardRequest{Published: false})
	if w.Code != http.StatusOK {
		t.Fatalf("unpublish = %d", w.Code)
	}
	w = doAdmin(t, ts, cookie, http.MethodGet, "/api/admin/leaderboard", nil)
	board = decode[[]goldrush.LeaderboardEntry](t, w)
	if len(board) != 1 {
		t.Fatalf("admin board has %d entries, want 1", len(board))
	}
}

func TestAdminParticipants(t *testing.T) {
	ts := setupServer(t)
	cookie := adminLogin(t, ts)

	w := doAdmin(t, ts, cookie, http.MethodPost, "/api/admin/participants",
		RegisterParticipantRequest{Email: "Player@Example.com"})
	if w.Code != http.StatusCreated {
		t.Fatalf("register = %d: %s", w.Code, w.Body.String())
	}
	player := decode[userResponse](t, w)
	if player.Email != "player@example.com" || player.Role != goldrush.RoleMember {
		t.Errorf("registered = %+v", player)
	}

	w = doAdmin(t, ts, cookie, http.MethodPost, "/api/admin/participants/"+itoa(player.ID)+"/promote", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("promote = %d", w.Code)
	}
	promoted, err := ts.store.UserByEmail(context.Background(), "player@example.com")
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if promoted.Role != goldrush.RoleTeamLead {
		t.Errorf("role after promote = %s", promoted.Role)
	}

	w = doAdmin(t, ts, cookie, http.MethodGet, "/api/admin/participants", nil)
	participants := decode[[]userResponse](t, w)
	if len(participants) != 1 {
		t.Fatalf("%d participants, want 1", len(participants))
	}

	w = doAdmin(t, ts, cookie, http.MethodDelete, "/api/admin/participants/"+itoa(player.ID), nil)
	if w.Code != http.StatusOK {
		t.Fatalf("delete = %d", w.Code)
	}
}

func TestAdminAssignmentCards(t *testing.T) {
	ts := setupServer(t)
	cookie := adminLogin(t, ts)

	w := doAdmin(t, ts, cookie, http.MethodGet, "/api/admin/assignment-cards?innocents=3&traitors=2", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("cards = %d: %s", w.Code, w.Body.String())
	}
	cards := decode[[]assignmentCard](t, w)
	if len(cards) != 5 {
		t.Fatalf("%d cards, want 5", len(cards))
	}

	counts := map[goldrush.Faction]int{}
	for _, card := range cards {
		counts[card.Faction]++
		if card.CardID == "" || !strings.HasPrefix(card.QR, "data:image/png;base64,") {
			t.Errorf("malformed card %+v", card)
		}
	}
	if counts[goldrush.FactionInnocent] != 3 || counts[goldrush.FactionTraitor] != 2 {
		t.Errorf("faction counts = %v", counts)
	}

	w = doAdmin(t, ts, cookie, http.MethodGet, "/api/admin/assignment-cards?innocents=0&traitors=0", nil)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("zero cards = %d, want 400", w.Code)
	}
}

func TestAdminOverruleEndpoint(t *testing.T) {
	ts := setupServer(t)
	cookie := adminLogin(t, ts)
	ctx := context.Background()

	victim := seedTeam(t, ts.store, "Miners", goldrush.FactionInnocent)
	traitor := seedTeam(t, ts.store, "Foxes", goldrush.FactionTraitor)
	seedBar(t, ts.store, "bar-1", 100)

	if _, err := ts.engine.StartRound(ctx); err != nil {
		t.Fatalf("start round: %v", err)
	}
	sb, err := ts.engine.AttemptSabotage(ctx, traitor, victim.ID)
	if err != nil {
		t.Fatalf("sabotage: %v", err)
	}

	w := doAdmin(t, ts, cookie, http.MethodGet, "/api/admin/sabotages", nil)
	history := decode[[]sabotageDetail](t, w)
	if len(history) != 1 || !history[0].IsActive {
		t.Fatalf("history = %+v", history)
	}

	w = doAdmin(t, ts, cookie, http.MethodPost, "/api/admin/sabotages/"+itoa(sb.ID)+"/overrule", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("overrule = %d", w.Code)
	}
	status, err := ts.engine.SabotageStatus(ctx, victim.ID)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if status.IsSabotaged {
		t.Error("sabotage still active after overrule")
	}

	w = doAdmin(t, ts, cookie, http.MethodPost, "/api/admin/sabotages/9999/overrule", nil)
	if w.Code != http.StatusNotFound {
		t.Fatalf("overrule missing = %d, want 404", w.Code)
	}
}

func TestAdminAnalytics(t *testing.T) {
	ts := setupServer(t)
	cookie := adminLogin(t, ts)
	ctx := context.Background()

	team := seedTeam(t, ts.store, "Miners", goldrush.FactionInnocent)
	seedTeam(t, ts.store, "Foxes", goldrush.FactionTraitor)
	bar := seedBar(t, ts.store, "bar-1", 100)
	seedBar(t, ts.store, "bar-2", 150)

	if _, err := ts.store.MarkBarScanned(ctx, scanParams{
		BarID: bar.ID, TeamID: team.ID, UserID: team.LeadUserID, Points: 100, Now: time.Now(),
	}); err != nil {
		t.Fatalf("scan: %v", err)
	}

	w := doAdmin(t, ts, cookie, http.MethodGet, "/api/admin/analytics", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("analytics = %d: %s", w.Code, w.Body.String())
	}
	data := decode[analyticsData](t, w)
	if data.Teams.Total != 2 || data.Teams.Innocents != 1 || data.Teams.Traitors != 1 {
		t.Errorf("team counts = %+v", data.Teams)
	}
	if data.GoldBars.Scanned != 1 || data.GoldBars.Remaining != 1 || data.GoldBars.PointsCollected != 100 {
		t.Errorf("bar stats = %+v", data.GoldBars)
	}
	if len(data.RecentScans) != 1 {
		t.Errorf("%d recent scans, want 1", len(data.RecentScans))
	}
	if len(data.TopTeams) != 2 || data.TopTeams[0].TeamName != "Miners" {
		t.Errorf("top teams = %+v", data.TopTeams)
	}
}
