// Package goldrush defines the core domain types and constants
// shared by the store, the game engine, and the HTTP handlers.
package goldrush

import "time"

type Role string

const (
	RoleMasterAdmin Role = "master_admin"
	RoleTeamLead    Role = "team_lead"
	RoleMember      Role = "member"
)

type Faction string

const (
	FactionInnocent Faction = "innocent"
	FactionTraitor  Faction = "traitor"
)

func (f Faction) Valid() bool {
	return f == FactionInnocent || f == FactionTraitor
}

type User struct {
	ID        int64     `json:"id"`
	Email     string    `json:"email"`
	Role      Role      `json:"role"`
	CreatedAt time.Time `json:"created_at"`
}

// MaxTeamSize counts the lead.
const MaxTeamSize = 4

// DisqualifiedScore is the sentinel written by an admin disqualification.
// A negative total marks the team as out of contention without deleting
// its history.
const DisqualifiedScore = -9999

type Team struct {
	ID         int64     `json:"id"`
	Name       string    `json:"name"`
	JoinCode   string    `json:"join_code"`
	Faction    Faction   `json:"faction"`
	TotalScore int       `json:"total_score"`
	LeadUserID int64     `json:"lead_user_id"`
	CreatedAt  time.Time `json:"created_at"`
}

type TeamMember struct {
	UserID   int64     `json:"user_id"`
	Email    string    `json:"email"`
	Role     Role      `json:"role"`
	IsLead   bool      `json:"is_lead"`
	JoinedAt time.Time `json:"joined_at"`
}

type Location struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// GoldBar is a physical QR token. Its own location and its clue's
// target location are always different.
type GoldBar struct {
	ID              int64      `json:"id"`
	ScanSecret      string     `json:"scan_secret"`
	Points          int        `json:"points"`
	LocationID      int64      `json:"location_id"`
	ClueText        string     `json:"clue_text"`
	ClueLocationID  int64      `json:"clue_location_id"`
	IsScanned       bool       `json:"is_scanned"`
	ScannedByTeamID *int64     `json:"scanned_by_team_id,omitempty"`
	ScannedAt       *time.Time `json:"scanned_at,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
}

// TeamClue is the one-row-per-team pointer to the team's next target.
type TeamClue struct {
	TeamID         int64     `json:"team_id"`
	ClueText       string    `json:"clue_text"`
	ClueLocation   string    `json:"clue_location"`
	ClueLocationID int64     `json:"clue_location_id"`
	NextGoldBarID  int64     `json:"-"`
	UpdatedAt      time.Time `json:"updated_at"`
}

type Sabotage struct {
	ID            int64     `json:"id"`
	TraitorTeamID int64     `json:"traitor_team_id"`
	TargetTeamID  int64     `json:"target_team_id"`
	StartTime     time.Time `json:"start_time"`
	EndTime       time.Time `json:"end_time"`
	IsActive      bool      `json:"is_active"`
	CreatedAt     time.Time `json:"created_at"`
}

// ActiveAt derives validity from time. The stored flag alone is a
// best-effort cache cleared by a deferred task; it must never be
// trusted without the end-time check.
func (s Sabotage) ActiveAt(now time.Time) bool {
	return s.IsActive && s.EndTime.After(now)
}

type RoundStatus string

const (
	RoundNotStarted RoundStatus = "not_started"
	RoundInProgress RoundStatus = "in_progress"
	RoundCompleted  RoundStatus = "completed"
)

// Settings are the admin-configurable durations, all stored in seconds.
type Settings struct {
	TotalRounds        int
	RoundDuration      time.Duration
	SabotageDuration   time.Duration
	SabotageCooldown   time.Duration
	SameTargetCooldown time.Duration
}

// DefaultSettings matches the values the game ran with at launch.
func DefaultSettings() Settings {
	return Settings{
		TotalRounds:        4,
		RoundDuration:      600 * time.Second,
		SabotageDuration:   60 * time.Second,
		SabotageCooldown:   120 * time.Second,
		SameTargetCooldown: 300 * time.Second,
	}
}

// RoundState is the singleton game status row (id = 1).
type RoundState struct {
	CurrentRound         int
	Settings             Settings
	Status               RoundStatus
	RoundStart           *time.Time
	RoundEnd             *time.Time
	LeaderboardPublished bool
	UpdatedAt            time.Time
}

// Expired reports whether an in-progress round has outlived its end time.
func (rs RoundState) Expired(now time.Time) bool {
	return rs.Status == RoundInProgress && rs.RoundEnd != nil && !rs.RoundEnd.After(now)
}

// ScanRecord is one row of the append-only scan audit log.
type ScanRecord struct {
	ID           int64     `json:"id"`
	TeamID       int64     `json:"team_id"`
	GoldBarID    int64     `json:"gold_bar_id"`
	UserID       int64     `json:"user_id"`
	PointsEarned int       `json:"points_earned"`
	WasSabotaged bool      `json:"was_sabotaged"`
	ScannedAt    time.Time `json:"scanned_at"`
}

type LeaderboardEntry struct {
	TeamID      int64   `json:"team_id"`
	TeamName    string  `json:"team_name"`
	Faction     Faction `json:"faction"`
	TotalScore  int     `json:"total_score"`
	MemberCount int     `json:"member_count"`
}
