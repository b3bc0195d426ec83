package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/jonboulle/clockwork"

	"github.com/vitevents/goldrush/internal/goldrush"
)

func doJSON(t *testing.T, ts *testServer, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	ts.router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(w.Body).Decode(&v); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return v
}

func TestTeamCreate(t *testing.T) {
	ts := setupServer(t)
	_, leadToken := ts.addPlayer(t, "lead@example.com", goldrush.RoleTeamLead)
	_, memberToken := ts.addPlayer(t, "member@example.com", goldrush.RoleMember)

	// Members cannot found teams.
	w := doJSON(t, ts, http.MethodPost, "/api/teams", memberToken,
		CreateTeamRequest{Name: "Miners", Faction: goldrush.FactionInnocent})
	if w.Code != http.StatusForbidden {
		t.Fatalf("member create = %d, want 403", w.Code)
	}

	w = doJSON(t, ts, http.MethodPost, "/api/teams", leadToken,
		CreateTeamRequest{Name: "Miners", Faction: goldrush.FactionInnocent})
	if w.Code != http.StatusCreated {
		t.Fatalf("lead create = %d: %s", w.Code, w.Body.String())
	}
	resp := decode[teamResponse](t, w)
	if len(resp.JoinCode) != 8 {
		t.Errorf("join code %q, want 8 characters", resp.JoinCode)
	}
	if resp.JoinCode != strings.ToUpper(resp.JoinCode) {
		t.Errorf("join code %q not uppercased", resp.JoinCode)
	}
	if !resp.IsLead {
		t.Error("creator not marked as lead")
	}
	if !strings.HasPrefix(resp.JoinQR, "data:image/png;base64,") {
		t.Errorf("join QR is not a PNG data URL: %.40s", resp.JoinQR)
	}

	// One team per lead.
	w = doJSON(t, ts, http.MethodPost, "/api/teams", leadToken,
		CreateTeamRequest{Name: "Second", Faction: goldrush.FactionTraitor})
	if w.Code != http.StatusConflict {
		t.Fatalf("second create = %d, want 409", w.Code)
	}

	// Bad faction.
	_, lead2Token := ts.addPlayer(t, "lead2@example.com", goldrush.RoleTeamLead)
	w = doJSON(t, ts, http.MethodPost, "/api/teams", lead2Token,
		CreateTeamRequest{Name: "Ghosts", Faction: "spectator"})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("bad faction = %d, want 400", w.Code)
	}
}

func TestTeamJoin(t *testing.T) {
	ts := setupServer(t)
	_, leadToken := ts.addPlayer(t, "lead@example.com", goldrush.RoleTeamLead)

	w := doJSON(t, ts, http.MethodPost, "/api/teams", leadToken,
		CreateTeamRequest{Name: "Miners", Faction: goldrush.FactionInnocent})
	if w.Code != http.StatusCreated {
		t.Fatalf("create = %d: %s", w.Code, w.Body.String())
	}
	team := decode[teamResponse](t, w)

	// Join by plain code (case-insensitive).
	_, p1 := ts.addPlayer(t, "p1@example.com", goldrush.RoleMember)
	w = doJSON(t, ts, http.MethodPost, "/api/teams/join", p1,
		JoinTeamRequest{Code: strings.ToLower(team.JoinCode)})
	if w.Code != http.StatusOK {
		t.Fatalf("join by code = %d: %s", w.Code, w.Body.String())
	}

	// Join by scanned QR payload.
	payload, _ := json.Marshal(joinQRPayload{Type: qrTypeTeamJoin, JoinCode: team.JoinCode, TeamName: team.Name})
	_, p2 := ts.addPlayer(t, "p2@example.com", goldrush.RoleMember)
	w = doJSON(t, ts, http.MethodPost, "/api/teams/join", p2, JoinTeamRequest{Code: string(payload)})
	if w.Code != http.StatusOK {
		t.Fatalf("join by QR = %d: %s", w.Code, w.Body.String())
	}

	// Joining twice is rejected.
	w = doJSON(t, ts, http.MethodPost, "/api/teams/join", p2, JoinTeamRequest{Code: team.JoinCode})
	if w.Code != http.StatusConflict {
		t.Fatalf("double join = %d, want 409", w.Code)
	}

	// Fourth member fills the team; a fifth bounces.
	_, p3 := ts.addPlayer(t, "p3@example.com", goldrush.RoleMember)
	w = doJSON(t, ts, http.MethodPost, "/api/teams/join", p3, JoinTeamRequest{Code: team.JoinCode})
	if w.Code != http.StatusOK {
		t.Fatalf("fourth member = %d: %s", w.Code, w.Body.String())
	}
	_, p4 := ts.addPlayer(t, "p4@example.com", goldrush.RoleMember)
	w = doJSON(t, ts, http.MethodPost, "/api/teams/join", p4, JoinTeamRequest{Code: team.JoinCode})
	if w.Code != http.StatusConflict {
		t.Fatalf("fifth member = %d, want 409 (team full)", w.Code)
	}

	// Unknown code.
	w = doJSON(t, ts, http.MethodPost, "/api/teams/join", p4, JoinTeamRequest{Code: "NOPE0000"})
	if w.Code != http.StatusNotFound {
		t.Fatalf("unknown code = %d, want 404", w.Code)
	}
}

func TestTeamMine(t *testing.T) {
	ts := setupServer(t)
	_, leadToken := ts.addPlayer(t, "lead@example.com", goldrush.RoleTeamLead)
	_, memberToken := ts.addPlayer(t, "member@example.com", goldrush.RoleMember)

	// Not in a team yet.
	w := doJSON(t, ts, http.MethodGet, "/api/teams/mine", memberToken, nil)
	if w.Code != http.StatusNotFound {
		t.Fatalf("mine without team = %d, want 404", w.Code)
	}

	w = doJSON(t, ts, http.MethodPost, "/api/teams", leadToken,
		CreateTeamRequest{Name: "Miners", Faction: goldrush.FactionInnocent})
	team := decode[teamResponse](t, w)
	w = doJSON(t, ts, http.MethodPost, "/api/teams/join", memberToken, JoinTeamRequest{Code: team.JoinCode})
	if w.Code != http.StatusOK {
		t.Fatalf("join = %d", w.Code)
	}

	w = doJSON(t, ts, http.MethodGet, "/api/teams/mine", memberToken, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("mine = %d: %s", w.Code, w.Body.String())
	}
	mine := decode[TeamMineResponse](t, w)
	if mine.Team.Name != "Miners" {
		t.Errorf("team name = %q", mine.Team.Name)
	}
	if mine.Team.IsLead {
		t.Error("member reported as lead")
	}
	if mine.Team.JoinQR != "" {
		t.Error("member should not see the join QR")
	}
	if len(mine.Members) != 2 {
		t.Fatalf("%d members, want 2", len(mine.Members))
	}
	if !mine.Members[0].IsLead {
		t.Error("lead not listed first")
	}
	if mine.Sabotage.IsSabotaged {
		t.Error("fresh team reported sabotaged")
	}

	// The lead sees the QR.
	w = doJSON(t, ts, http.MethodGet, "/api/teams/mine", leadToken, nil)
	mine = decode[TeamMineResponse](t, w)
	if !mine.Team.IsLead || mine.Team.JoinQR == "" {
		t.Error("lead view missing lead flag or join QR")
	}
}

func TestAuthRequired(t *testing.T) {
	ts := setupServer(t)

	for _, path := range []string{"/api/me", "/api/teams/mine"} {
		w := doJSON(t, ts, http.MethodGet, path, "", nil)
		if w.Code != http.StatusUnauthorized {
			t.Errorf("%s without token = %d, want 401", path, w.Code)
		}
		w = doJSON(t, ts, http.MethodGet, path, "bogus", nil)
		if w.Code != http.StatusUnauthorized {
			t.Errorf("%s with bad token = %d, want 401", path, w.Code)
		}
	}
}

func TestAuthVerify(t *testing.T) {
	ts := setupServer(t)
	_, token := ts.addPlayer(t, "lead@example.com", goldrush.RoleTeamLead)
	ts.verifier["stranger"] = "stranger@example.com"

	w := doJSON(t, ts, http.MethodPost, "/api/auth/verify", "", AuthVerifyRequest{Token: token})
	if w.Code != http.StatusOK {
		t.Fatalf("verify = %d: %s", w.Code, w.Body.String())
	}
	resp := decode[AuthVerifyResponse](t, w)
	if !resp.Registered || resp.User == nil || resp.User.Email != "lead@example.com" {
		t.Fatalf("verify response = %+v", resp)
	}

	// Verified but unregistered email.
	w = doJSON(t, ts, http.MethodPost, "/api/auth/verify", "", AuthVerifyRequest{Token: "stranger"})
	if w.Code != http.StatusOK {
		t.Fatalf("verify stranger = %d", w.Code)
	}
	resp = decode[AuthVerifyResponse](t, w)
	if resp.Registered {
		t.Error("stranger reported as registered")
	}

	w = doJSON(t, ts, http.MethodPost, "/api/auth/verify", "", AuthVerifyRequest{Token: "bogus"})
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("bad token = %d, want 401", w.Code)
	}
}

func TestRegisterMember(t *testing.T) {
	ts := setupServer(t)
	_, leadToken := ts.addPlayer(t, "lead@example.com", goldrush.RoleTeamLead)
	_, memberToken := ts.addPlayer(t, "member@example.com", goldrush.RoleMember)

	w := doJSON(t, ts, http.MethodPost, "/api/teams", leadToken,
		CreateTeamRequest{Name: "Miners", Faction: goldrush.FactionInnocent})
	if w.Code != http.StatusCreated {
		t.Fatalf("create = %d", w.Code)
	}

	w = doJSON(t, ts, http.MethodPost, "/api/teams/register-member", leadToken,
		RegisterMemberRequest{Email: "New.Player@Example.com"})
	if w.Code != http.StatusCreated {
		t.Fatalf("register member = %d: %s", w.Code, w.Body.String())
	}
	created := decode[userResponse](t, w)
	if created.Email != "new.player@example.com" {
		t.Errorf("email = %q, want lowercased", created.Email)
	}
	if created.Role != goldrush.RoleMember {
		t.Errorf("role = %s, want member", created.Role)
	}

	// Non-leads cannot register members.
	w = doJSON(t, ts, http.MethodPost, "/api/teams/register-member", memberToken,
		RegisterMemberRequest{Email: "x@example.com"})
	if w.Code != http.StatusForbidden {
		t.Fatalf("member registering = %d, want 403", w.Code)
	}

	// Duplicate email.
	w = doJSON(t, ts, http.MethodPost, "/api/teams/register-member", leadToken,
		RegisterMemberRequest{Email: "new.player@example.com"})
	if w.Code != http.StatusConflict {
		t.Fatalf("duplicate = %d, want 409", w.Code)
	}
}

func TestAllowedEmailDomains(t *testing.T) {
	db := setupDB(t)
	store := NewSQLiteStore(db)
	broker := NewBroker()
	clock := clockwork.NewFakeClock()
	verifier := StaticVerifier{"tok": "player@other.org"}

	r := chi.NewRouter()
	addRoutes(r, Options{
		Logger:              testLogger(),
		DB:                  db,
		Store:               store,
		Broker:              broker,
		Engine:              NewEngine(store, broker, clock, testLogger()),
		Clock:               clock,
		Verifier:            verifier,
		AllowedEmailDomains: []string{"example.com"},
	})
	ts := &testServer{router: r, store: store, verifier: verifier}

	w := doJSON(t, ts, http.MethodPost, "/api/auth/verify", "", AuthVerifyRequest{Token: "tok"})
	if w.Code != http.StatusForbidden {
		t.Fatalf("off-domain verify = %d, want 403", w.Code)
	}
}
