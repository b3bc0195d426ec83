package server

import (
	"context"
	"errors"
	"time"

	"github.com/vitevents/goldrush/internal/goldrush"
)

var (
	ErrNotFound = errors.New("not found")

	// ErrAlreadyScanned is returned by MarkBarScanned when the
	// conditional update finds the bar taken — the loser of a scan race
	// lands here, never with a double credit.
	ErrAlreadyScanned = errors.New("gold bar already scanned")

	// ErrTargetSabotaged is returned by CreateSabotage when the target
	// already has a time-valid active sabotage.
	ErrTargetSabotaged = errors.New("target team already sabotaged")

	ErrTeamFull      = errors.New("team is full")
	ErrAlreadyInTeam = errors.New("user already in a team")
	ErrDuplicate     = errors.New("duplicate record")
	ErrLocationInUse = errors.New("location referenced by gold bars")
	ErrBarScanned    = errors.New("gold bar has been scanned")
	ErrIsTeamLead    = errors.New("user is a team lead")
)

// scanParams is everything MarkBarScanned writes in one transaction.
type scanParams struct {
	BarID        int64
	TeamID       int64
	UserID       int64
	Points       int
	WasSabotaged bool
	Now          time.Time
}

type goldBarDetail struct {
	goldrush.GoldBar
	LocationName      string `json:"location_name"`
	ClueLocationName  string `json:"clue_location_name"`
	ScannedByTeamName string `json:"scanned_by_team_name,omitempty"`
}

type sabotageDetail struct {
	goldrush.Sabotage
	TraitorTeamName string `json:"traitor_team_name"`
	TargetTeamName  string `json:"target_team_name"`
}

type teamDetail struct {
	goldrush.Team
	LeadEmail   string   `json:"lead_email"`
	MemberCount int      `json:"member_count"`
	Members     []string `json:"members"`
}

type analyticsData struct {
	Teams struct {
		Total     int `json:"total"`
		Innocents int `json:"innocents"`
		Traitors  int `json:"traitors"`
	} `json:"teams"`
	GoldBars struct {
		Total           int `json:"total"`
		Scanned         int `json:"scanned"`
		Remaining       int `json:"remaining"`
		PointsCollected int `json:"points_collected"`
	} `json:"gold_bars"`
	Sabotages struct {
		Total  int `json:"total"`
		Active int `json:"active"`
	} `json:"sabotages"`
	TopTeams    []goldrush.LeaderboardEntry `json:"top_teams"`
	RecentScans []recentScan                `json:"recent_scans"`
}

type recentScan struct {
	TeamName     string    `json:"team_name"`
	Points       int       `json:"points"`
	WasSabotaged bool      `json:"was_sabotaged"`
	ScannedAt    time.Time `json:"scanned_at"`
}

// Store is the persistence contract the engine and handlers run
// against. The SQLite implementation keeps every check-then-write
// critical section inside a single transaction.
type Store interface {
	// Round state (singleton row, lazily self-healing).
	RoundState(ctx context.Context) (goldrush.RoundState, error)
	BeginRound(ctx context.Context, round int, start, end time.Time) error
	CompleteRound(ctx context.Context, now time.Time) (bool, error)
	UpdateSettings(ctx context.Context, s goldrush.Settings, now time.Time) (goldrush.RoundState, error)
	SetLeaderboardPublished(ctx context.Context, published bool, now time.Time) error
	ResetGame(ctx context.Context, now time.Time) error

	// Users.
	UserByEmail(ctx context.Context, email string) (goldrush.User, error)
	CreateUser(ctx context.Context, email string, role goldrush.Role) (goldrush.User, error)
	SetUserRole(ctx context.Context, userID int64, role goldrush.Role) error
	ListParticipants(ctx context.Context) ([]goldrush.User, error)
	DeleteUser(ctx context.Context, userID int64) error

	// Teams.
	CreateTeam(ctx context.Context, name, joinCode string, faction goldrush.Faction, leadUserID int64, now time.Time) (goldrush.Team, error)
	TeamScanHistory(ctx context.Context, teamID int64) ([]goldrush.ScanRecord, error)
	TeamByID(ctx context.Context, id int64) (goldrush.Team, error)
	TeamByJoinCode(ctx context.Context, code string) (goldrush.Team, error)
	TeamForUser(ctx context.Context, userID int64) (goldrush.Team, error)
	TeamByLead(ctx context.Context, leadUserID int64) (goldrush.Team, error)
	TeamIDs(ctx context.Context) ([]int64, error)
	AddTeamMember(ctx context.Context, teamID, userID int64, now time.Time) error
	RemoveTeamMember(ctx context.Context, teamID, userID int64) error
	TeamMembers(ctx context.Context, teamID int64) ([]goldrush.TeamMember, error)
	ListTeamsDetailed(ctx context.Context) ([]teamDetail, error)
	ListInnocentTeams(ctx context.Context, now time.Time) ([]innocentTeam, error)
	DeleteTeam(ctx context.Context, teamID int64) error
	DisqualifyTeam(ctx context.Context, teamID int64) error
	Leaderboard(ctx context.Context) ([]goldrush.LeaderboardEntry, error)

	// Locations.
	CreateLocation(ctx context.Context, name, description string) (goldrush.Location, error)
	ListLocations(ctx context.Context) ([]goldrush.Location, error)
	UpdateLocation(ctx context.Context, id int64, name, description string) (goldrush.Location, error)
	DeleteLocation(ctx context.Context, id int64) error

	// Gold bars.
	CreateGoldBar(ctx context.Context, secret string, points int, locationID int64, clueText string, clueLocationID int64) (goldrush.GoldBar, error)
	GoldBarByID(ctx context.Context, id int64) (goldrush.GoldBar, error)
	GoldBarBySecret(ctx context.Context, secret string) (goldrush.GoldBar, error)
	ListGoldBars(ctx context.Context) ([]goldBarDetail, error)
	DeleteGoldBar(ctx context.Context, id int64) error
	RandomUnscannedBar(ctx context.Context) (goldrush.GoldBar, error)
	MarkBarScanned(ctx context.Context, p scanParams) (newTotalScore int, err error)

	// Clues.
	UpsertTeamClue(ctx context.Context, teamID int64, bar goldrush.GoldBar, now time.Time) error
	TeamClue(ctx context.Context, teamID int64) (goldrush.TeamClue, error)

	// Sabotage.
	CreateSabotage(ctx context.Context, traitorTeamID, targetTeamID int64, start, end time.Time) (goldrush.Sabotage, error)
	SabotageByID(ctx context.Context, id int64) (goldrush.Sabotage, error)
	ActiveSabotage(ctx context.Context, targetTeamID int64, now time.Time) (goldrush.Sabotage, error)
	LastSabotageBy(ctx context.Context, traitorTeamID int64) (time.Time, error)
	LastSabotageOn(ctx context.Context, traitorTeamID, targetTeamID int64) (time.Time, error)
	EndSabotage(ctx context.Context, id int64, now time.Time) (bool, error)
	ClearSabotageFlag(ctx context.Context, id int64) (bool, error)
	ListSabotages(ctx context.Context, now time.Time) ([]sabotageDetail, error)

	// Analytics.
	Analytics(ctx context.Context, now time.Time) (analyticsData, error)

	// Admin accounts and sessions.
	AdminByEmail(ctx context.Context, email string) (adminID, passwordHash string, err error)
	CountAdmins(ctx context.Context) (int, error)
	CreateAdmin(ctx context.Context, email, passwordHash string) error
	CreateAdminSession(ctx context.Context, adminID string) (string, error)
	DeleteAdminSession(ctx context.Context, sessionID string) error
	AdminFromSession(ctx context.Context, sessionID string) (adminSession, error)
}

type innocentTeam struct {
	ID          int64  `json:"id"`
	TeamName    string `json:"team_name"`
	TotalScore  int    `json:"total_score"`
	MemberCount int    `json:"member_count"`
	IsSabotaged bool   `json:"is_sabotaged"`
}
