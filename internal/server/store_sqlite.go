package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/vitevents/goldrush/internal/goldrush"
)

type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(db *sql.DB) *SQLiteStore {
	return &SQLiteStore{db: db}
}

func ms(t time.Time) int64 { return t.UnixMilli() }

func fromMS(v int64) time.Time { return time.UnixMilli(v).UTC() }

func fromNullMS(v sql.NullInt64) *time.Time {
	if !v.Valid {
		return nil
	}
	t := fromMS(v.Int64)
	return &t
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// --- Round state ---

const roundStateColumns = `current_round, total_rounds, round_duration_s,
	sabotage_duration_s, sabotage_cooldown_s, same_target_cooldown_s,
	status, round_start, round_end, leaderboard_published, updated_at`

func (s *SQLiteStore) scanRoundState(row *sql.Row) (goldrush.RoundState, error) {
	var rs goldrush.RoundState
	var roundDur, sabDur, sabCD, sameCD int64
	var start, end sql.NullInt64
	var published int
	var updated int64
	err := row.Scan(&rs.CurrentRound, &rs.Settings.TotalRounds, &roundDur,
		&sabDur, &sabCD, &sameCD, &rs.Status, &start, &end, &published, &updated)
	if err != nil {
		return rs, err
	}
	rs.Settings.RoundDuration = time.Duration(roundDur) * time.Second
	rs.Settings.SabotageDuration = time.Duration(sabDur) * time.Second
	rs.Settings.SabotageCooldown = time.Duration(sabCD) * time.Second
	rs.Settings.SameTargetCooldown = time.Duration(sameCD) * time.Second
	rs.RoundStart = fromNullMS(start)
	rs.RoundEnd = fromNullMS(end)
	rs.LeaderboardPublished = published != 0
	rs.UpdatedAt = fromMS(updated)
	return rs, nil
}

// RoundState reads the singleton row, inserting the default one if it
// is missing. A wiped or fresh database self-heals instead of failing.
func (s *SQLiteStore) RoundState(ctx context.Context) (goldrush.RoundState, error) {
	rs, err := s.scanRoundState(s.db.QueryRowContext(ctx,
		`SELECT `+roundStateColumns+` FROM round_state WHERE id = 1`))
	if !errors.Is(err, sql.ErrNoRows) {
		return rs, err
	}

	if _, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO round_state (id) VALUES (1)`); err != nil {
		return rs, fmt.Errorf("inserting default round state: %w", err)
	}
	return s.scanRoundState(s.db.QueryRowContext(ctx,
		`SELECT `+roundStateColumns+` FROM round_state WHERE id = 1`))
}

func (s *SQLiteStore) BeginRound(ctx context.Context, round int, start, end time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE round_state
		SET current_round = ?, round_start = ?, round_end = ?,
		    status = 'in_progress', updated_at = ?
		WHERE id = 1
	`, round, ms(start), ms(end), ms(start))
	return err
}

// CompleteRound flips an in-progress round to completed. Returns false
// when the round was already completed by a concurrent reader.
func (s *SQLiteStore) CompleteRound(ctx context.Context, now time.Time) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE round_state
		SET status = 'completed', updated_at = ?
		WHERE id = 1 AND status = 'in_progress'
	`, ms(now))
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

func (s *SQLiteStore) UpdateSettings(ctx context.Context, set goldrush.Settings, now time.Time) (goldrush.RoundState, error) {
	_, err := s.db.ExecContext(ctx, `
		UPDATE round_state
		SET total_rounds = ?, round_duration_s = ?, sabotage_duration_s = ?,
		    sabotage_cooldown_s = ?, same_target_cooldown_s = ?, updated_at = ?
		WHERE id = 1
	`, set.TotalRounds, int(set.RoundDuration.Seconds()),
		int(set.SabotageDuration.Seconds()), int(set.SabotageCooldown.Seconds()),
		int(set.SameTargetCooldown.Seconds()), ms(now))
	if err != nil {
		return goldrush.RoundState{}, err
	}
	return s.RoundState(ctx)
}

func (s *SQLiteStore) SetLeaderboardPublished(ctx context.Context, published bool, now time.Time) error {
	v := 0
	if published {
		v = 1
	}
	_, err := s.db.ExecContext(ctx, `
		UPDATE round_state SET leaderboard_published = ?, updated_at = ? WHERE id = 1
	`, v, ms(now))
	return err
}

// ResetGame is the full, non-reversible wipe: round counters back to
// not_started, every bar un-scanned, every score zeroed, all clues,
// sabotage history, and scan history removed.
func (s *SQLiteStore) ResetGame(ctx context.Context, now time.Time) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmts := []string{
		`UPDATE round_state
		 SET current_round = 0, round_start = NULL, round_end = NULL,
		     status = 'not_started', leaderboard_published = 0, updated_at = ` + fmt.Sprint(ms(now)) + `
		 WHERE id = 1`,
		`UPDATE gold_bars SET is_scanned = 0, scanned_by_team_id = NULL, scanned_at = NULL`,
		`UPDATE teams SET total_score = 0`,
		`DELETE FROM team_clues`,
		`DELETE FROM sabotages`,
		`DELETE FROM scan_history`,
	}
	for _, q := range stmts {
		if _, err := tx.ExecContext(ctx, q); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// --- Users ---

func (s *SQLiteStore) UserByEmail(ctx context.Context, email string) (goldrush.User, error) {
	var u goldrush.User
	var created int64
	err := s.db.QueryRowContext(ctx, `
		SELECT id, email, role, created_at FROM users WHERE email = ?
	`, email).Scan(&u.ID, &u.Email, &u.Role, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return u, ErrNotFound
	}
	u.CreatedAt = fromMS(created)
	return u, err
}

func (s *SQLiteStore) CreateUser(ctx context.Context, email string, role goldrush.Role) (goldrush.User, error) {
	var u goldrush.User
	var created int64
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO users (email, role) VALUES (?, ?)
		RETURNING id, email, role, created_at
	`, email, role).Scan(&u.ID, &u.Email, &u.Role, &created)
	if isUniqueViolation(err) {
		return u, ErrDuplicate
	}
	u.CreatedAt = fromMS(created)
	return u, err
}

func (s *SQLiteStore) SetUserRole(ctx context.Context, userID int64, role goldrush.Role) error {
	res, err := s.db.ExecContext(ctx, `UPDATE users SET role = ? WHERE id = ?`, role, userID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err == nil && n == 0 {
		return ErrNotFound
	}
	return err
}

func (s *SQLiteStore) ListParticipants(ctx context.Context) ([]goldrush.User, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, email, role, created_at
		FROM users
		WHERE role IN ('member', 'team_lead')
		ORDER BY created_at DESC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []goldrush.User
	for rows.Next() {
		var u goldrush.User
		var created int64
		if err := rows.Scan(&u.ID, &u.Email, &u.Role, &created); err != nil {
			return nil, err
		}
		u.CreatedAt = fromMS(created)
		users = append(users, u)
	}
	return users, rows.Err()
}

// DeleteUser removes a participant and their dependent rows. Team leads
// must hand over or have their team deleted first.
func (s *SQLiteStore) DeleteUser(ctx context.Context, userID int64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var teamID int64
	err = tx.QueryRowContext(ctx,
		`SELECT id FROM teams WHERE lead_user_id = ?`, userID).Scan(&teamID)
	if err == nil {
		return ErrIsTeamLead
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return err
	}

	for _, q := range []string{
		`DELETE FROM team_members WHERE user_id = ?`,
		`DELETE FROM scan_history WHERE user_id = ?`,
	} {
		if _, err := tx.ExecContext(ctx, q, userID); err != nil {
			return err
		}
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM users WHERE id = ?`, userID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return tx.Commit()
}

// --- Teams ---

const teamColumns = `id, name, join_code, faction, total_score, lead_user_id, created_at`

func scanTeam(row interface{ Scan(...any) error }) (goldrush.Team, error) {
	var t goldrush.Team
	var created int64
	err := row.Scan(&t.ID, &t.Name, &t.JoinCode, &t.Faction, &t.TotalScore,
		&t.LeadUserID, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return t, ErrNotFound
	}
	t.CreatedAt = fromMS(created)
	return t, err
}

// CreateTeam inserts the team and enrolls the lead as its first member
// in one transaction, so a team never exists without its lead on the
// roster.
func (s *SQLiteStore) CreateTeam(ctx context.Context, name, joinCode string, faction goldrush.Faction, leadUserID int64, now time.Time) (goldrush.Team, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return goldrush.Team{}, err
	}
	defer tx.Rollback()

	t, err := scanTeam(tx.QueryRowContext(ctx, `
		INSERT INTO teams (name, join_code, faction, lead_user_id)
		VALUES (?, ?, ?, ?)
		RETURNING `+teamColumns, name, joinCode, faction, leadUserID))
	if isUniqueViolation(err) {
		return t, ErrDuplicate
	}
	if err != nil {
		return t, err
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO team_members (team_id, user_id, joined_at) VALUES (?, ?, ?)
	`, t.ID, leadUserID, ms(now))
	if isUniqueViolation(err) {
		return t, ErrAlreadyInTeam
	}
	if err != nil {
		return t, err
	}
	return t, tx.Commit()
}

func (s *SQLiteStore) TeamByID(ctx context.Context, id int64) (goldrush.Team, error) {
	return scanTeam(s.db.QueryRowContext(ctx,
		`SELECT `+teamColumns+` FROM teams WHERE id = ?`, id))
}

func (s *SQLiteStore) TeamByJoinCode(ctx context.Context, code string) (goldrush.Team, error) {
	return scanTeam(s.db.QueryRowContext(ctx,
		`SELECT `+teamColumns+` FROM teams WHERE join_code = ?`, code))
}

func (s *SQLiteStore) TeamForUser(ctx context.Context, userID int64) (goldrush.Team, error) {
	return scanTeam(s.db.QueryRowContext(ctx, `
		SELECT t.id, t.name, t.join_code, t.faction, t.total_score, t.lead_user_id, t.created_at
		FROM teams t
		JOIN team_members tm ON tm.team_id = t.id
		WHERE tm.user_id = ?
	`, userID))
}

func (s *SQLiteStore) TeamByLead(ctx context.Context, leadUserID int64) (goldrush.Team, error) {
	return scanTeam(s.db.QueryRowContext(ctx,
		`SELECT `+teamColumns+` FROM teams WHERE lead_user_id = ?`, leadUserID))
}

func (s *SQLiteStore) TeamIDs(ctx context.Context) ([]int64, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id FROM teams ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// AddTeamMember enforces the roster cap and the one-team-per-user rule
// inside a single transaction.
func (s *SQLiteStore) AddTeamMember(ctx context.Context, teamID, userID int64, now time.Time) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var count int
	if err := tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM team_members WHERE team_id = ?`, teamID).Scan(&count); err != nil {
		return err
	}
	if count >= goldrush.MaxTeamSize {
		return ErrTeamFull
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO team_members (team_id, user_id, joined_at) VALUES (?, ?, ?)
	`, teamID, userID, ms(now))
	if isUniqueViolation(err) {
		return ErrAlreadyInTeam
	}
	if err != nil {
		return err
	}
	return tx.Commit()
}

func (s *SQLiteStore) RemoveTeamMember(ctx context.Context, teamID, userID int64) error {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM team_members WHERE team_id = ? AND user_id = ?`, teamID, userID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLiteStore) TeamMembers(ctx context.Context, teamID int64) ([]goldrush.TeamMember, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT u.id, u.email, u.role, t.lead_user_id = u.id, tm.joined_at
		FROM team_members tm
		JOIN users u ON u.id = tm.user_id
		JOIN teams t ON t.id = tm.team_id
		WHERE tm.team_id = ?
		ORDER BY t.lead_user_id = u.id DESC, tm.joined_at ASC
	`, teamID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var members []goldrush.TeamMember
	for rows.Next() {
		var m goldrush.TeamMember
		var joined int64
		if err := rows.Scan(&m.UserID, &m.Email, &m.Role, &m.IsLead, &joined); err != nil {
			return nil, err
		}
		m.JoinedAt = fromMS(joined)
		members = append(members, m)
	}
	return members, rows.Err()
}

func (s *SQLiteStore) ListTeamsDetailed(ctx context.Context) ([]teamDetail, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT t.id, t.name, t.join_code, t.faction, t.total_score, t.lead_user_id,
		       t.created_at, u.email,
		       (SELECT COUNT(*) FROM team_members tm WHERE tm.team_id = t.id)
		FROM teams t
		JOIN users u ON u.id = t.lead_user_id
		ORDER BY t.total_score DESC, t.name ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var teams []teamDetail
	for rows.Next() {
		var d teamDetail
		var created int64
		if err := rows.Scan(&d.ID, &d.Name, &d.JoinCode, &d.Faction, &d.TotalScore,
			&d.LeadUserID, &created, &d.LeadEmail, &d.MemberCount); err != nil {
			return nil, err
		}
		d.CreatedAt = fromMS(created)
		teams = append(teams, d)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range teams {
		members, err := s.TeamMembers(ctx, teams[i].ID)
		if err != nil {
			return nil, err
		}
		for _, m := range members {
			teams[i].Members = append(teams[i].Members, m.Email)
		}
	}
	return teams, nil
}

func (s *SQLiteStore) ListInnocentTeams(ctx context.Context, now time.Time) ([]innocentTeam, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT t.id, t.name, t.total_score,
		       (SELECT COUNT(*) FROM team_members tm WHERE tm.team_id = t.id),
		       EXISTS (
		           SELECT 1 FROM sabotages s
		           WHERE s.target_team_id = t.id AND s.is_active = 1 AND s.end_time > ?
		       )
		FROM teams t
		WHERE t.faction = 'innocent'
		ORDER BY t.name ASC
	`, ms(now))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var teams []innocentTeam
	for rows.Next() {
		var t innocentTeam
		if err := rows.Scan(&t.ID, &t.TeamName, &t.TotalScore, &t.MemberCount, &t.IsSabotaged); err != nil {
			return nil, err
		}
		teams = append(teams, t)
	}
	return teams, rows.Err()
}

// DeleteTeam cascades through members, clues, scans, and sabotages, and
// releases any bars the team had scanned.
func (s *SQLiteStore) DeleteTeam(ctx context.Context, teamID int64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, q := range []string{
		`DELETE FROM team_members WHERE team_id = ?`,
		`DELETE FROM team_clues WHERE team_id = ?`,
		`DELETE FROM scan_history WHERE team_id = ?`,
	} {
		if _, err := tx.ExecContext(ctx, q, teamID); err != nil {
			return err
		}
	}
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM sabotages WHERE traitor_team_id = ? OR target_team_id = ?`,
		teamID, teamID); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `
		UPDATE gold_bars SET is_scanned = 0, scanned_by_team_id = NULL, scanned_at = NULL
		WHERE scanned_by_team_id = ?
	`, teamID); err != nil {
		return err
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM teams WHERE id = ?`, teamID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return tx.Commit()
}

func (s *SQLiteStore) DisqualifyTeam(ctx context.Context, teamID int64) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE teams SET total_score = ? WHERE id = ?`,
		goldrush.DisqualifiedScore, teamID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLiteStore) Leaderboard(ctx context.Context) ([]goldrush.LeaderboardEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT t.id, t.name, t.faction, t.total_score,
		       (SELECT COUNT(*) FROM team_members tm WHERE tm.team_id = t.id)
		FROM teams t
		ORDER BY t.total_score DESC, t.name ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []goldrush.LeaderboardEntry
	for rows.Next() {
		var e goldrush.LeaderboardEntry
		if err := rows.Scan(&e.TeamID, &e.TeamName, &e.Faction, &e.TotalScore, &e.MemberCount); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// --- Locations ---

func (s *SQLiteStore) CreateLocation(ctx context.Context, name, description string) (goldrush.Location, error) {
	var l goldrush.Location
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO locations (name, description) VALUES (?, ?)
		RETURNING id, name, description
	`, name, description).Scan(&l.ID, &l.Name, &l.Description)
	return l, err
}

func (s *SQLiteStore) ListLocations(ctx context.Context) ([]goldrush.Location, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, description FROM locations ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var locations []goldrush.Location
	for rows.Next() {
		var l goldrush.Location
		if err := rows.Scan(&l.ID, &l.Name, &l.Description); err != nil {
			return nil, err
		}
		locations = append(locations, l)
	}
	return locations, rows.Err()
}

func (s *SQLiteStore) UpdateLocation(ctx context.Context, id int64, name, description string) (goldrush.Location, error) {
	var l goldrush.Location
	err := s.db.QueryRowContext(ctx, `
		UPDATE locations SET name = ?, description = ? WHERE id = ?
		RETURNING id, name, description
	`, name, description, id).Scan(&l.ID, &l.Name, &l.Description)
	if errors.Is(err, sql.ErrNoRows) {
		return l, ErrNotFound
	}
	return l, err
}

func (s *SQLiteStore) DeleteLocation(ctx context.Context, id int64) error {
	var count int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM gold_bars WHERE location_id = ? OR clue_location_id = ?
	`, id, id).Scan(&count)
	if err != nil {
		return err
	}
	if count > 0 {
		return ErrLocationInUse
	}

	res, err := s.db.ExecContext(ctx, `DELETE FROM locations WHERE id = ?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// --- Gold bars ---

const goldBarColumns = `id, scan_secret, points, location_id, clue_text,
	clue_location_id, is_scanned, scanned_by_team_id, scanned_at, created_at`

func scanGoldBar(row interface{ Scan(...any) error }) (goldrush.GoldBar, error) {
	var b goldrush.GoldBar
	var scannedBy sql.NullInt64
	var scannedAt sql.NullInt64
	var created int64
	err := row.Scan(&b.ID, &b.ScanSecret, &b.Points, &b.LocationID, &b.ClueText,
		&b.ClueLocationID, &b.IsScanned, &scannedBy, &scannedAt, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return b, ErrNotFound
	}
	if scannedBy.Valid {
		b.ScannedByTeamID = &scannedBy.Int64
	}
	b.ScannedAt = fromNullMS(scannedAt)
	b.CreatedAt = fromMS(created)
	return b, err
}

func (s *SQLiteStore) CreateGoldBar(ctx context.Context, secret string, points int, locationID int64, clueText string, clueLocationID int64) (goldrush.GoldBar, error) {
	return scanGoldBar(s.db.QueryRowContext(ctx, `
		INSERT INTO gold_bars (scan_secret, points, location_id, clue_text, clue_location_id)
		VALUES (?, ?, ?, ?, ?)
		RETURNING `+goldBarColumns, secret, points, locationID, clueText, clueLocationID))
}

func (s *SQLiteStore) GoldBarByID(ctx context.Context, id int64) (goldrush.GoldBar, error) {
	return scanGoldBar(s.db.QueryRowContext(ctx,
		`SELECT `+goldBarColumns+` FROM gold_bars WHERE id = ?`, id))
}

func (s *SQLiteStore) GoldBarBySecret(ctx context.Context, secret string) (goldrush.GoldBar, error) {
	return scanGoldBar(s.db.QueryRowContext(ctx,
		`SELECT `+goldBarColumns+` FROM gold_bars WHERE scan_secret = ?`, secret))
}

func (s *SQLiteStore) ListGoldBars(ctx context.Context) ([]goldBarDetail, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT gb.id, gb.scan_secret, gb.points, gb.location_id, gb.clue_text,
		       gb.clue_location_id, gb.is_scanned, gb.scanned_by_team_id,
		       gb.scanned_at, gb.created_at,
		       l1.name, l2.name, COALESCE(t.name, '')
		FROM gold_bars gb
		JOIN locations l1 ON l1.id = gb.location_id
		JOIN locations l2 ON l2.id = gb.clue_location_id
		LEFT JOIN teams t ON t.id = gb.scanned_by_team_id
		ORDER BY gb.created_at DESC, gb.id DESC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var bars []goldBarDetail
	for rows.Next() {
		var d goldBarDetail
		var scannedBy, scannedAt sql.NullInt64
		var created int64
		if err := rows.Scan(&d.ID, &d.ScanSecret, &d.Points, &d.LocationID,
			&d.ClueText, &d.ClueLocationID, &d.IsScanned, &scannedBy, &scannedAt,
			&created, &d.LocationName, &d.ClueLocationName, &d.ScannedByTeamName); err != nil {
			return nil, err
		}
		if scannedBy.Valid {
			d.ScannedByTeamID = &scannedBy.Int64
		}
		d.ScannedAt = fromNullMS(scannedAt)
		d.CreatedAt = fromMS(created)
		bars = append(bars, d)
	}
	return bars, rows.Err()
}

func (s *SQLiteStore) DeleteGoldBar(ctx context.Context, id int64) error {
	var scanned bool
	err := s.db.QueryRowContext(ctx,
		`SELECT is_scanned FROM gold_bars WHERE id = ?`, id).Scan(&scanned)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return err
	}
	if scanned {
		return ErrBarScanned
	}
	_, err = s.db.ExecContext(ctx, `DELETE FROM gold_bars WHERE id = ?`, id)
	return err
}

func (s *SQLiteStore) RandomUnscannedBar(ctx context.Context) (goldrush.GoldBar, error) {
	return scanGoldBar(s.db.QueryRowContext(ctx,
		`SELECT `+goldBarColumns+` FROM gold_bars WHERE is_scanned = 0 ORDER BY RANDOM() LIMIT 1`))
}

// MarkBarScanned is the scan-of-record transaction. The conditional
// UPDATE on is_scanned is the single-credit guard: of N concurrent
// submissions for the same bar, exactly one sees a row affected.
func (s *SQLiteStore) MarkBarScanned(ctx context.Context, p scanParams) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		UPDATE gold_bars
		SET is_scanned = 1, scanned_by_team_id = ?, scanned_at = ?
		WHERE id = ? AND is_scanned = 0
	`, p.TeamID, ms(p.Now), p.BarID)
	if err != nil {
		return 0, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return 0, ErrAlreadyScanned
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO scan_history (team_id, gold_bar_id, user_id, points_earned, was_sabotaged, scanned_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, p.TeamID, p.BarID, p.UserID, p.Points, p.WasSabotaged, ms(p.Now)); err != nil {
		return 0, err
	}

	var newTotal int
	if err := tx.QueryRowContext(ctx, `
		UPDATE teams SET total_score = total_score + ? WHERE id = ?
		RETURNING total_score
	`, p.Points, p.TeamID).Scan(&newTotal); err != nil {
		return 0, err
	}

	return newTotal, tx.Commit()
}

// TeamScanHistory returns the team's scans, newest first.
func (s *SQLiteStore) TeamScanHistory(ctx context.Context, teamID int64) ([]goldrush.ScanRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, team_id, gold_bar_id, user_id, points_earned, was_sabotaged, scanned_at
		FROM scan_history
		WHERE team_id = ?
		ORDER BY scanned_at DESC, id DESC
	`, teamID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []goldrush.ScanRecord
	for rows.Next() {
		var rec goldrush.ScanRecord
		var scanned int64
		if err := rows.Scan(&rec.ID, &rec.TeamID, &rec.GoldBarID, &rec.UserID,
			&rec.PointsEarned, &rec.WasSabotaged, &scanned); err != nil {
			return nil, err
		}
		rec.ScannedAt = fromMS(scanned)
		records = append(records, rec)
	}
	return records, rows.Err()
}

// --- Clues ---

func (s *SQLiteStore) UpsertTeamClue(ctx context.Context, teamID int64, bar goldrush.GoldBar, now time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO team_clues (team_id, clue_text, clue_location_id, next_gold_bar_id, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (team_id) DO UPDATE SET
			clue_text = excluded.clue_text,
			clue_location_id = excluded.clue_location_id,
			next_gold_bar_id = excluded.next_gold_bar_id,
			updated_at = excluded.updated_at
	`, teamID, bar.ClueText, bar.ClueLocationID, bar.ID, ms(now))
	return err
}

func (s *SQLiteStore) TeamClue(ctx context.Context, teamID int64) (goldrush.TeamClue, error) {
	var c goldrush.TeamClue
	var updated int64
	err := s.db.QueryRowContext(ctx, `
		SELECT tc.team_id, tc.clue_text, l.name, tc.clue_location_id,
		       tc.next_gold_bar_id, tc.updated_at
		FROM team_clues tc
		JOIN locations l ON l.id = tc.clue_location_id
		WHERE tc.team_id = ?
	`, teamID).Scan(&c.TeamID, &c.ClueText, &c.ClueLocation, &c.ClueLocationID,
		&c.NextGoldBarID, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return c, ErrNotFound
	}
	c.UpdatedAt = fromMS(updated)
	return c, err
}

// --- Sabotage ---

const sabotageColumns = `id, traitor_team_id, target_team_id, start_time, end_time, is_active, created_at`

func scanSabotage(row interface{ Scan(...any) error }) (goldrush.Sabotage, error) {
	var sb goldrush.Sabotage
	var start, end, created int64
	err := row.Scan(&sb.ID, &sb.TraitorTeamID, &sb.TargetTeamID, &start, &end,
		&sb.IsActive, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return sb, ErrNotFound
	}
	sb.StartTime = fromMS(start)
	sb.EndTime = fromMS(end)
	sb.CreatedAt = fromMS(created)
	return sb, err
}

// CreateSabotage inserts only when the target has no time-valid active
// sabotage. The guard lives in the same statement as the insert, so two
// concurrent attempts against one target cannot both land.
func (s *SQLiteStore) CreateSabotage(ctx context.Context, traitorTeamID, targetTeamID int64, start, end time.Time) (goldrush.Sabotage, error) {
	sb, err := scanSabotage(s.db.QueryRowContext(ctx, `
		INSERT INTO sabotages (traitor_team_id, target_team_id, start_time, end_time, is_active, created_at)
		SELECT ?, ?, ?, ?, 1, ?
		WHERE NOT EXISTS (
			SELECT 1 FROM sabotages
			WHERE target_team_id = ? AND is_active = 1 AND end_time > ?
		)
		RETURNING `+sabotageColumns,
		traitorTeamID, targetTeamID, ms(start), ms(end), ms(start),
		targetTeamID, ms(start)))
	if errors.Is(err, ErrNotFound) {
		return sb, ErrTargetSabotaged
	}
	return sb, err
}

func (s *SQLiteStore) SabotageByID(ctx context.Context, id int64) (goldrush.Sabotage, error) {
	return scanSabotage(s.db.QueryRowContext(ctx,
		`SELECT `+sabotageColumns+` FROM sabotages WHERE id = ?`, id))
}

func (s *SQLiteStore) ActiveSabotage(ctx context.Context, targetTeamID int64, now time.Time) (goldrush.Sabotage, error) {
	return scanSabotage(s.db.QueryRowContext(ctx, `
		SELECT `+sabotageColumns+` FROM sabotages
		WHERE target_team_id = ? AND is_active = 1 AND end_time > ?
		ORDER BY end_time DESC
		LIMIT 1
	`, targetTeamID, ms(now)))
}

func (s *SQLiteStore) LastSabotageBy(ctx context.Context, traitorTeamID int64) (time.Time, error) {
	var created int64
	err := s.db.QueryRowContext(ctx, `
		SELECT created_at FROM sabotages
		WHERE traitor_team_id = ?
		ORDER BY created_at DESC
		LIMIT 1
	`, traitorTeamID).Scan(&created)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, ErrNotFound
	}
	return fromMS(created), err
}

func (s *SQLiteStore) LastSabotageOn(ctx context.Context, traitorTeamID, targetTeamID int64) (time.Time, error) {
	var created int64
	err := s.db.QueryRowContext(ctx, `
		SELECT created_at FROM sabotages
		WHERE traitor_team_id = ? AND target_team_id = ?
		ORDER BY created_at DESC
		LIMIT 1
	`, traitorTeamID, targetTeamID).Scan(&created)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, ErrNotFound
	}
	return fromMS(created), err
}

// EndSabotage force-ends a sabotage (administrative overrule): clears
// the flag and pulls end_time back to now. Returns false when it was
// already ended — both paths converge on the same terminal state.
func (s *SQLiteStore) EndSabotage(ctx context.Context, id int64, now time.Time) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE sabotages SET is_active = 0, end_time = ?
		WHERE id = ? AND is_active = 1 AND end_time > ?
	`, ms(now), id, ms(now))
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// ClearSabotageFlag is the natural-expiry cleanup: it only clears the
// cached flag, leaving the historical end_time in place.
func (s *SQLiteStore) ClearSabotageFlag(ctx context.Context, id int64) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE sabotages SET is_active = 0 WHERE id = ? AND is_active = 1
	`, id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

func (s *SQLiteStore) ListSabotages(ctx context.Context, now time.Time) ([]sabotageDetail, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT s.id, s.traitor_team_id, s.target_team_id, s.start_time, s.end_time,
		       s.is_active AND s.end_time > ?, s.created_at, t1.name, t2.name
		FROM sabotages s
		JOIN teams t1 ON t1.id = s.traitor_team_id
		JOIN teams t2 ON t2.id = s.target_team_id
		ORDER BY s.start_time DESC
	`, ms(now))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sabotages []sabotageDetail
	for rows.Next() {
		var d sabotageDetail
		var start, end, created int64
		if err := rows.Scan(&d.ID, &d.TraitorTeamID, &d.TargetTeamID, &start, &end,
			&d.IsActive, &created, &d.TraitorTeamName, &d.TargetTeamName); err != nil {
			return nil, err
		}
		d.StartTime = fromMS(start)
		d.EndTime = fromMS(end)
		d.CreatedAt = fromMS(created)
		sabotages = append(sabotages, d)
	}
	return sabotages, rows.Err()
}

// --- Analytics ---

func (s *SQLiteStore) Analytics(ctx context.Context, now time.Time) (analyticsData, error) {
	var a analyticsData

	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*),
		       COUNT(CASE WHEN faction = 'innocent' THEN 1 END),
		       COUNT(CASE WHEN faction = 'traitor' THEN 1 END)
		FROM teams
	`).Scan(&a.Teams.Total, &a.Teams.Innocents, &a.Teams.Traitors)
	if err != nil {
		return a, err
	}

	err = s.db.QueryRowContext(ctx, `
		SELECT COUNT(*),
		       COUNT(CASE WHEN is_scanned = 1 THEN 1 END),
		       COUNT(CASE WHEN is_scanned = 0 THEN 1 END),
		       COALESCE(SUM(CASE WHEN is_scanned = 1 THEN points ELSE 0 END), 0)
		FROM gold_bars
	`).Scan(&a.GoldBars.Total, &a.GoldBars.Scanned, &a.GoldBars.Remaining,
		&a.GoldBars.PointsCollected)
	if err != nil {
		return a, err
	}

	err = s.db.QueryRowContext(ctx, `
		SELECT COUNT(*),
		       COUNT(CASE WHEN is_active = 1 AND end_time > ? THEN 1 END)
		FROM sabotages
	`, ms(now)).Scan(&a.Sabotages.Total, &a.Sabotages.Active)
	if err != nil {
		return a, err
	}

	board, err := s.Leaderboard(ctx)
	if err != nil {
		return a, err
	}
	if len(board) > 5 {
		board = board[:5]
	}
	a.TopTeams = board

	rows, err := s.db.QueryContext(ctx, `
		SELECT t.name, sh.points_earned, sh.was_sabotaged, sh.scanned_at
		FROM scan_history sh
		JOIN teams t ON t.id = sh.team_id
		ORDER BY sh.scanned_at DESC
		LIMIT 10
	`)
	if err != nil {
		return a, err
	}
	defer rows.Close()

	for rows.Next() {
		var r recentScan
		var scanned int64
		if err := rows.Scan(&r.TeamName, &r.Points, &r.WasSabotaged, &scanned); err != nil {
			return a, err
		}
		r.ScannedAt = fromMS(scanned)
		a.RecentScans = append(a.RecentScans, r)
	}
	return a, rows.Err()
}

// --- Admin accounts ---

func (s *SQLiteStore) AdminByEmail(ctx context.Context, email string) (string, string, error) {
	var adminID, passwordHash string
	err := s.db.QueryRowContext(ctx, `
		SELECT id, password_hash FROM admins WHERE email = ?
	`, email).Scan(&adminID, &passwordHash)
	if errors.Is(err, sql.ErrNoRows) {
		return "", "", ErrNotFound
	}
	return adminID, passwordHash, err
}

func (s *SQLiteStore) CountAdmins(ctx context.Context) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM admins`).Scan(&count)
	return count, err
}

func (s *SQLiteStore) CreateAdmin(ctx context.Context, email, passwordHash string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO admins (email, password_hash) VALUES (?, ?)
	`, email, passwordHash)
	if isUniqueViolation(err) {
		return ErrDuplicate
	}
	return err
}

func (s *SQLiteStore) CreateAdminSession(ctx context.Context, adminID string) (string, error) {
	var sessionID string
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO admin_sessions (admin_id) VALUES (?)
		RETURNING id
	`, adminID).Scan(&sessionID)
	return sessionID, err
}

func (s *SQLiteStore) DeleteAdminSession(ctx context.Context, sessionID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM admin_sessions WHERE id = ?`, sessionID)
	return err
}

func (s *SQLiteStore) AdminFromSession(ctx context.Context, sessionID string) (adminSession, error) {
	var sess adminSession
	err := s.db.QueryRowContext(ctx, `
		SELECT a.id, a.email
		FROM admin_sessions s
		JOIN admins a ON a.id = s.admin_id
		WHERE s.id = ?
	`, sessionID).Scan(&sess.AdminID, &sess.Email)
	if errors.Is(err, sql.ErrNoRows) {
		return adminSession{}, errNoAdminSession
	}
	return sess, err
}
