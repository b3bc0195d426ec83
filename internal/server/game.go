package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/vitevents/goldrush/internal/goldrush"
)

var (
	ErrRoundNotActive  = errors.New("no round in progress")
	ErrRoundInProgress = errors.New("a round is already in progress")
	ErrAllRoundsPlayed = errors.New("all rounds have been played")
	ErrInvalidCode     = errors.New("invalid code")
	ErrWrongToken      = errors.New("this is not your team's assigned gold bar")
	ErrNotTraitor      = errors.New("only traitor teams can sabotage")
	ErrTargetInvalid   = errors.New("target must be an innocent team")
)

// CooldownError reports how long a traitor team must wait before its
// next sabotage attempt can succeed.
type CooldownError struct {
	Remaining  time.Duration
	SameTarget bool
}

func (e *CooldownError) Error() string {
	if e.SameTarget {
		return fmt.Sprintf("same target on cooldown for %d more seconds", ceilSeconds(e.Remaining))
	}
	return fmt.Sprintf("sabotage on cooldown for %d more seconds", ceilSeconds(e.Remaining))
}

func ceilSeconds(d time.Duration) int {
	if d <= 0 {
		return 0
	}
	return int(math.Ceil(d.Seconds()))
}

// Engine coordinates rounds, scans, and sabotage on top of the store.
// All timing decisions go through the injected clock; the database only
// ever sees timestamps the engine hands it.
type Engine struct {
	store  Store
	broker *Broker
	clock  clockwork.Clock
	logger *slog.Logger
}

func NewEngine(store Store, broker *Broker, clock clockwork.Clock, logger *slog.Logger) *Engine {
	return &Engine{store: store, broker: broker, clock: clock, logger: logger}
}

// roundState reads the round row and settles an expired round before
// returning. Reads are the source of truth for round completion: the
// first caller past the end time flips the status and announces it.
func (e *Engine) roundState(ctx context.Context) (goldrush.RoundState, error) {
	rs, err := e.store.RoundState(ctx)
	if err != nil {
		return rs, err
	}
	if !rs.Expired(e.clock.Now()) {
		return rs, nil
	}

	flipped, err := e.store.CompleteRound(ctx, e.clock.Now())
	if err != nil {
		return rs, err
	}
	if flipped {
		e.broker.Publish(TopicGlobal, eventRoundEnded, roundEndedEvent{Round: rs.CurrentRound})
		e.logger.Info("round ended", slog.Int("round", rs.CurrentRound))
	}
	return e.store.RoundState(ctx)
}

// gameState is the public view of the round row.
type gameState struct {
	CurrentRound         int                  `json:"current_round"`
	TotalRounds          int                  `json:"total_rounds"`
	Status               goldrush.RoundStatus `json:"status"`
	RoundStart           *time.Time           `json:"round_start,omitempty"`
	RoundEnd             *time.Time           `json:"round_end,omitempty"`
	RemainingSeconds     int                  `json:"remaining_seconds"`
	LeaderboardPublished bool                 `json:"leaderboard_published"`
}

func (e *Engine) GameState(ctx context.Context) (gameState, error) {
	rs, err := e.roundState(ctx)
	if err != nil {
		return gameState{}, err
	}
	gs := gameState{
		CurrentRound:         rs.CurrentRound,
		TotalRounds:          rs.Settings.TotalRounds,
		Status:               rs.Status,
		RoundStart:           rs.RoundStart,
		RoundEnd:             rs.RoundEnd,
		LeaderboardPublished: rs.LeaderboardPublished,
	}
	if rs.Status == goldrush.RoundInProgress && rs.RoundEnd != nil {
		gs.RemainingSeconds = ceilSeconds(rs.RoundEnd.Sub(e.clock.Now()))
	}
	return gs, nil
}

// StartRound begins the next round and deals every team a fresh clue.
func (e *Engine) StartRound(ctx context.Context) (goldrush.RoundState, error) {
	rs, err := e.roundState(ctx)
	if err != nil {
		return rs, err
	}
	if rs.Status == goldrush.RoundInProgress {
		return rs, ErrRoundInProgress
	}
	if rs.CurrentRound >= rs.Settings.TotalRounds {
		return rs, ErrAllRoundsPlayed
	}

	round := rs.CurrentRound + 1
	start := e.clock.Now()
	end := start.Add(rs.Settings.RoundDuration)
	if err := e.store.BeginRound(ctx, round, start, end); err != nil {
		return rs, err
	}

	teamIDs, err := e.store.TeamIDs(ctx)
	if err != nil {
		return rs, err
	}
	for _, teamID := range teamIDs {
		if err := e.assignClue(ctx, teamID); err != nil && !errors.Is(err, ErrNotFound) {
			return rs, err
		}
	}

	e.broker.Publish(TopicGlobal, eventRoundStarted, roundStartedEvent{
		Round:      round,
		RoundStart: start,
		RoundEnd:   end,
	})
	e.logger.Info("round started",
		slog.Int("round", round),
		slog.Time("ends_at", end))

	return e.store.RoundState(ctx)
}

// assignClue points the team at a random unscanned bar. Returns
// ErrNotFound when no bars remain.
func (e *Engine) assignClue(ctx context.Context, teamID int64) error {
	bar, err := e.store.RandomUnscannedBar(ctx)
	if err != nil {
		return err
	}
	return e.store.UpsertTeamClue(ctx, teamID, bar, e.clock.Now())
}

// scanResult is the outcome of a scan submission. Accepted is false for
// the already-collected case, which still rotates the team's clue.
type scanResult struct {
	Accepted     bool               `json:"accepted"`
	Message      string             `json:"message"`
	PointsEarned int                `json:"points_earned"`
	TotalScore   int                `json:"total_score"`
	WasSabotaged bool               `json:"was_sabotaged"`
	NewClue      *goldrush.TeamClue `json:"-"`
}

// SubmitScan runs the full scan pipeline for one QR submission.
func (e *Engine) SubmitScan(ctx context.Context, team goldrush.Team, userID int64, secret string) (scanResult, error) {
	rs, err := e.roundState(ctx)
	if err != nil {
		return scanResult{}, err
	}
	if rs.Status != goldrush.RoundInProgress {
		return scanResult{}, ErrRoundNotActive
	}

	bar, err := e.store.GoldBarBySecret(ctx, secret)
	if errors.Is(err, ErrNotFound) {
		return scanResult{}, ErrInvalidCode
	}
	if err != nil {
		return scanResult{}, err
	}

	if bar.IsScanned {
		return e.alreadyCollected(ctx, team)
	}

	// A clue on file binds the team to its assigned bar. Teams with no
	// clue row may scan any unscanned bar.
	clue, err := e.store.TeamClue(ctx, team.ID)
	if err == nil && clue.NextGoldBarID != bar.ID {
		return scanResult{}, ErrWrongToken
	}
	if err != nil && !errors.Is(err, ErrNotFound) {
		return scanResult{}, err
	}

	now := e.clock.Now()
	points := bar.Points
	wasSabotaged := false
	if _, err := e.store.ActiveSabotage(ctx, team.ID, now); err == nil {
		points = 0
		wasSabotaged = true
	} else if !errors.Is(err, ErrNotFound) {
		return scanResult{}, err
	}

	total, err := e.store.MarkBarScanned(ctx, scanParams{
		BarID:        bar.ID,
		TeamID:       team.ID,
		UserID:       userID,
		Points:       points,
		WasSabotaged: wasSabotaged,
		Now:          now,
	})
	if errors.Is(err, ErrAlreadyScanned) {
		// Lost the race to another team; same outcome as finding the
		// bar scanned up front.
		return e.alreadyCollected(ctx, team)
	}
	if err != nil {
		return scanResult{}, err
	}

	res := scanResult{
		Accepted:     true,
		PointsEarned: points,
		TotalScore:   total,
		WasSabotaged: wasSabotaged,
		Message:      fmt.Sprintf("gold bar collected for %d points", points),
	}
	if wasSabotaged {
		res.Message = "gold bar collected, but your team is sabotaged: 0 points"
	}

	if err := e.assignClue(ctx, team.ID); err == nil {
		if clue, err := e.store.TeamClue(ctx, team.ID); err == nil {
			res.NewClue = &clue
		}
	} else if !errors.Is(err, ErrNotFound) {
		return scanResult{}, err
	}

	e.publishLeaderboard(ctx)
	e.broker.Publish(teamTopic(team.ID), eventScoreUpdate, scoreUpdateEvent{
		TeamID:       team.ID,
		PointsEarned: points,
		TotalScore:   total,
		WasSabotaged: wasSabotaged,
	})
	e.logger.Info("gold bar scanned",
		slog.Int64("team_id", team.ID),
		slog.Int64("bar_id", bar.ID),
		slog.Int("points", points),
		slog.Bool("sabotaged", wasSabotaged))

	return res, nil
}

// alreadyCollected handles a scan of a bar some team already has: no
// score change, but the scanning team gets a fresh clue so it is not
// stuck chasing a dead target.
func (e *Engine) alreadyCollected(ctx context.Context, team goldrush.Team) (scanResult, error) {
	res := scanResult{
		Accepted:   false,
		Message:    "this gold bar has already been collected",
		TotalScore: team.TotalScore,
	}
	if err := e.assignClue(ctx, team.ID); err == nil {
		if clue, err := e.store.TeamClue(ctx, team.ID); err == nil {
			res.NewClue = &clue
		}
	} else if !errors.Is(err, ErrNotFound) {
		return scanResult{}, err
	}
	e.broker.Publish(teamTopic(team.ID), eventScoreUpdate, scoreUpdateEvent{
		TeamID:     team.ID,
		TotalScore: team.TotalScore,
		Message:    res.Message,
	})
	return res, nil
}

func (e *Engine) publishLeaderboard(ctx context.Context) {
	board, err := e.store.Leaderboard(ctx)
	if err != nil {
		e.logger.Error("loading leaderboard for broadcast", slog.Any("error", err))
		return
	}
	e.broker.Publish(TopicGlobal, eventLeaderboardUpdate, board)
}

// AttemptSabotage runs every gate in order and creates the sabotage
// atomically. Cooldowns count from the attempt that last succeeded, not
// from when its effect ended.
func (e *Engine) AttemptSabotage(ctx context.Context, traitor goldrush.Team, targetTeamID int64) (goldrush.Sabotage, error) {
	if traitor.Faction != goldrush.FactionTraitor {
		return goldrush.Sabotage{}, ErrNotTraitor
	}

	target, err := e.store.TeamByID(ctx, targetTeamID)
	if err != nil {
		return goldrush.Sabotage{}, err
	}
	if target.Faction != goldrush.FactionInnocent {
		return goldrush.Sabotage{}, ErrTargetInvalid
	}

	rs, err := e.roundState(ctx)
	if err != nil {
		return goldrush.Sabotage{}, err
	}
	if rs.Status != goldrush.RoundInProgress {
		return goldrush.Sabotage{}, ErrRoundNotActive
	}

	now := e.clock.Now()

	last, err := e.store.LastSabotageBy(ctx, traitor.ID)
	if err == nil {
		if until := last.Add(rs.Settings.SabotageCooldown); until.After(now) {
			return goldrush.Sabotage{}, &CooldownError{Remaining: until.Sub(now)}
		}
	} else if !errors.Is(err, ErrNotFound) {
		return goldrush.Sabotage{}, err
	}

	lastOn, err := e.store.LastSabotageOn(ctx, traitor.ID, target.ID)
	if err == nil {
		if until := lastOn.Add(rs.Settings.SameTargetCooldown); until.After(now) {
			return goldrush.Sabotage{}, &CooldownError{Remaining: until.Sub(now), SameTarget: true}
		}
	} else if !errors.Is(err, ErrNotFound) {
		return goldrush.Sabotage{}, err
	}

	sb, err := e.store.CreateSabotage(ctx, traitor.ID, target.ID, now, now.Add(rs.Settings.SabotageDuration))
	if err != nil {
		return goldrush.Sabotage{}, err
	}

	e.scheduleExpiry(sb)
	e.broker.Publish(teamTopic(target.ID), eventSabotaged, sabotagedEvent{
		SabotageID: sb.ID,
		EndTime:    sb.EndTime,
	})
	e.broker.Publish(TopicGlobal, eventSabotageStartedGlobal, sabotageGlobalEvent{
		SabotageID:   sb.ID,
		TargetTeamID: target.ID,
		EndTime:      sb.EndTime,
	})
	e.logger.Info("sabotage started",
		slog.Int64("sabotage_id", sb.ID),
		slog.Int64("traitor_team_id", traitor.ID),
		slog.Int64("target_team_id", target.ID),
		slog.Time("ends_at", sb.EndTime))

	return sb, nil
}

// scheduleExpiry clears the sabotage flag when the window closes. The
// flag is only a cache; anything that reads sabotage state checks the
// end time itself, so a missed or late expiry changes nothing visible.
func (e *Engine) scheduleExpiry(sb goldrush.Sabotage) {
	go func() {
		if d := sb.EndTime.Sub(e.clock.Now()); d > 0 {
			<-e.clock.After(d)
		}
		e.expireSabotage(sb.ID, sb.TargetTeamID)
	}()
}

func (e *Engine) expireSabotage(id, targetTeamID int64) {
	ctx := context.Background()
	cur, err := e.store.SabotageByID(ctx, id)
	if err != nil {
		// Deleted by a game reset in the meantime.
		return
	}
	// An overrule already ended it, or the row was replaced by a reset
	// and re-create with a later end time.
	if !cur.IsActive || cur.EndTime.After(e.clock.Now()) {
		return
	}
	cleared, err := e.store.ClearSabotageFlag(ctx, id)
	if err != nil {
		e.logger.Error("clearing expired sabotage", slog.Int64("sabotage_id", id), slog.Any("error", err))
		return
	}
	if !cleared {
		return
	}
	e.broker.Publish(teamTopic(targetTeamID), eventSabotageEnded, sabotageEndedEvent{SabotageID: id})
	e.broker.Publish(TopicGlobal, eventSabotageEndedGlobal, sabotageGlobalEvent{
		SabotageID:   id,
		TargetTeamID: targetTeamID,
	})
	e.logger.Info("sabotage expired", slog.Int64("sabotage_id", id))
}

// OverruleSabotage force-ends a sabotage ahead of schedule. Overruling
// one that already ended is a no-op, not an error.
func (e *Engine) OverruleSabotage(ctx context.Context, sabotageID int64) error {
	sb, err := e.store.SabotageByID(ctx, sabotageID)
	if err != nil {
		return err
	}
	ended, err := e.store.EndSabotage(ctx, sabotageID, e.clock.Now())
	if err != nil {
		return err
	}
	if !ended {
		return nil
	}
	e.broker.Publish(teamTopic(sb.TargetTeamID), eventSabotageEnded, sabotageEndedEvent{SabotageID: sb.ID})
	e.broker.Publish(TopicGlobal, eventSabotageOverruled, sabotageGlobalEvent{
		SabotageID:   sb.ID,
		TargetTeamID: sb.TargetTeamID,
	})
	e.logger.Info("sabotage overruled", slog.Int64("sabotage_id", sb.ID))
	return nil
}

// sabotageStatus is the victim-side view of an active sabotage.
type sabotageStatus struct {
	IsSabotaged      bool       `json:"is_sabotaged"`
	EndTime          *time.Time `json:"end_time,omitempty"`
	RemainingSeconds int        `json:"remaining_seconds"`
}

func (e *Engine) SabotageStatus(ctx context.Context, teamID int64) (sabotageStatus, error) {
	now := e.clock.Now()
	sb, err := e.store.ActiveSabotage(ctx, teamID, now)
	if errors.Is(err, ErrNotFound) {
		return sabotageStatus{}, nil
	}
	if err != nil {
		return sabotageStatus{}, err
	}
	return sabotageStatus{
		IsSabotaged:      true,
		EndTime:          &sb.EndTime,
		RemainingSeconds: ceilSeconds(sb.EndTime.Sub(now)),
	}, nil
}

// cooldownStatus tells a traitor team when it may sabotage again.
type cooldownStatus struct {
	CanSabotage      bool `json:"can_sabotage"`
	RemainingSeconds int  `json:"remaining_seconds"`
}

func (e *Engine) CooldownStatus(ctx context.Context, traitorTeamID int64) (cooldownStatus, error) {
	rs, err := e.roundState(ctx)
	if err != nil {
		return cooldownStatus{}, err
	}
	last, err := e.store.LastSabotageBy(ctx, traitorTeamID)
	if errors.Is(err, ErrNotFound) {
		return cooldownStatus{CanSabotage: true}, nil
	}
	if err != nil {
		return cooldownStatus{}, err
	}
	remaining := last.Add(rs.Settings.SabotageCooldown).Sub(e.clock.Now())
	if remaining <= 0 {
		return cooldownStatus{CanSabotage: true}, nil
	}
	return cooldownStatus{RemainingSeconds: ceilSeconds(remaining)}, nil
}

// Leaderboard returns the ranked standings. Without includeHidden, an
// unpublished board is served empty rather than erroring, so public
// pages poll it freely.
func (e *Engine) Leaderboard(ctx context.Context, includeHidden bool) ([]goldrush.LeaderboardEntry, error) {
	if !includeHidden {
		rs, err := e.store.RoundState(ctx)
		if err != nil {
			return nil, err
		}
		if !rs.LeaderboardPublished {
			return []goldrush.LeaderboardEntry{}, nil
		}
	}
	board, err := e.store.Leaderboard(ctx)
	if err != nil {
		return nil, err
	}
	if board == nil {
		board = []goldrush.LeaderboardEntry{}
	}
	return board, nil
}

func (e *Engine) SetLeaderboardPublished(ctx context.Context, published bool) error {
	if err := e.store.SetLeaderboardPublished(ctx, published, e.clock.Now()); err != nil {
		return err
	}
	e.broker.Publish(TopicGlobal, eventLeaderboardVisibility, leaderboardVisibilityEvent{Published: published})
	if published {
		e.publishLeaderboard(ctx)
	}
	return nil
}

func (e *Engine) UpdateSettings(ctx context.Context, set goldrush.Settings) (goldrush.RoundState, error) {
	return e.store.UpdateSettings(ctx, set, e.clock.Now())
}

// Now exposes the engine clock so handlers pass consistent timestamps
// to store reads.
func (e *Engine) Now() time.Time {
	return e.clock.Now()
}

// ResetGame wipes all play state back to a fresh game.
func (e *Engine) ResetGame(ctx context.Context) error {
	if err := e.store.ResetGame(ctx, e.clock.Now()); err != nil {
		return err
	}
	e.broker.Publish(TopicGlobal, eventGameReset, struct{}{})
	e.logger.Info("game reset")
	return nil
}
