package server

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jonboulle/clockwork"
	"golang.org/x/crypto/bcrypt"

	"github.com/vitevents/goldrush/internal/database"
	"github.com/vitevents/goldrush/internal/goldrush"
	"github.com/vitevents/goldrush/internal/migrations"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func setupDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := database.Open(context.Background(), ":memory:")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := migrations.Run(db); err != nil {
		t.Fatalf("run migrations: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func setupEngine(t *testing.T) (*Engine, *SQLiteStore, *clockwork.FakeClock) {
	t.Helper()
	store := NewSQLiteStore(setupDB(t))
	clock := clockwork.NewFakeClockAt(time.Date(2025, 11, 8, 10, 0, 0, 0, time.UTC))
	engine := NewEngine(store, NewBroker(), clock, testLogger())
	return engine, store, clock
}

// testServer wires a full router around in-memory state with a fake
// clock and a static token verifier.
type testServer struct {
	router   *chi.Mux
	db       *sql.DB
	store    *SQLiteStore
	engine   *Engine
	broker   *Broker
	clock    *clockwork.FakeClock
	verifier StaticVerifier
}

func setupServer(t *testing.T) *testServer {
	t.Helper()
	db := setupDB(t)
	store := NewSQLiteStore(db)
	clock := clockwork.NewFakeClockAt(time.Date(2025, 11, 8, 10, 0, 0, 0, time.UTC))
	broker := NewBroker()
	engine := NewEngine(store, broker, clock, testLogger())
	verifier := StaticVerifier{}

	r := chi.NewRouter()
	addRoutes(r, Options{
		Logger:   testLogger(),
		DB:       db,
		Store:    store,
		Broker:   broker,
		Engine:   engine,
		Clock:    clock,
		Verifier: verifier,
	})

	return &testServer{
		router:   r,
		db:       db,
		store:    store,
		engine:   engine,
		broker:   broker,
		clock:    clock,
		verifier: verifier,
	}
}

// addPlayer registers a user and a token that verifies to it.
func (ts *testServer) addPlayer(t *testing.T, email string, role goldrush.Role) (goldrush.User, string) {
	t.Helper()
	user, err := ts.store.CreateUser(context.Background(), email, role)
	if err != nil {
		t.Fatalf("create user %s: %v", email, err)
	}
	token := "token-" + email
	ts.verifier[token] = email
	return user, token
}

func (ts *testServer) addAdmin(t *testing.T, email, password string) {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}
	if err := ts.store.CreateAdmin(context.Background(), email, string(hash)); err != nil {
		t.Fatalf("create admin: %v", err)
	}
}

var teamSeq int

// seedTeam creates a lead user, their team, and the lead's membership.
func seedTeam(t *testing.T, store *SQLiteStore, name string, faction goldrush.Faction) goldrush.Team {
	t.Helper()
	ctx := context.Background()
	teamSeq++
	lead, err := store.CreateUser(ctx, fmt.Sprintf("lead%d-%s@example.com", teamSeq, name), goldrush.RoleTeamLead)
	if err != nil {
		t.Fatalf("create lead: %v", err)
	}
	team, err := store.CreateTeam(ctx, name, fmt.Sprintf("CODE%04d", teamSeq), faction, lead.ID, time.Now())
	if err != nil {
		t.Fatalf("create team %s: %v", name, err)
	}
	return team
}

// seedBar creates two locations and a gold bar between them.
func seedBar(t *testing.T, store *SQLiteStore, secret string, points int) goldrush.GoldBar {
	t.Helper()
	ctx := context.Background()
	loc1, err := store.CreateLocation(ctx, "spot-"+secret, "")
	if err != nil {
		t.Fatalf("create location: %v", err)
	}
	loc2, err := store.CreateLocation(ctx, "clue-"+secret, "")
	if err != nil {
		t.Fatalf("create clue location: %v", err)
	}
	bar, err := store.CreateGoldBar(ctx, secret, points, loc1.ID, "look near "+loc2.Name, loc2.ID)
	if err != nil {
		t.Fatalf("create gold bar: %v", err)
	}
	return bar
}

func itoa(id int64) string {
	return strconv.FormatInt(id, 10)
}
