package server

import (
	"github.com/go-chi/chi/v5"
	"github.com/swaggest/swgui/v5emb"
)

func addRoutes(r chi.Router, opts Options) {
	logger := opts.Logger
	store := opts.Store
	broker := opts.Broker
	engine := opts.Engine

	r.Get("/openapi.json", handleOpenAPI())
	r.Mount("/docs", v5emb.New("Gold Rush API", "/openapi.json", "/docs"))
	r.Get("/healthz", handleHealth(logger, opts.DB))

	// Public routes.
	r.Get("/api/game/state", handleGameState(engine))
	r.Get("/api/leaderboard", handleLeaderboard(engine))
	r.Get("/api/events", handleGlobalEvents(broker))
	r.Get("/api/events/team", handleTeamEvents(opts.Verifier, store, broker, opts.AllowedEmailDomains))
	r.Post("/api/auth/verify", handleAuthVerify(opts.Verifier, store, opts.AllowedEmailDomains))

	// Player routes — bearer token resolved to a registered user.
	r.Route("/api", func(r chi.Router) {
		r.Use(authMiddleware(opts.Verifier, store, opts.AllowedEmailDomains))

		r.Get("/me", handleMe(store))

		r.Post("/teams", handleTeamCreate(store, engine))
		r.Post("/teams/join", handleTeamJoin(store, engine))
		r.Get("/teams/mine", handleTeamMine(store, engine))
		r.Get("/teams/mine/members", handleTeamMembers(store))
		r.Get("/teams/mine/clue", handleTeamClue(store))
		r.Get("/teams/mine/scans", handleTeamScans(store))
		r.Post("/teams/register-member", handleRegisterMember(store, opts.AllowedEmailDomains))

		r.Post("/scan", handleScan(store, engine))

		r.Post("/sabotage", handleSabotageAttempt(store, engine))
		r.Get("/sabotage/status", handleSabotageStatus(store, engine))
		r.Get("/sabotage/cooldown", handleSabotageCooldown(store, engine))
		r.Get("/sabotage/targets", handleSabotageTargets(store, engine))
	})

	// Admin routes — cookie session.
	r.Route("/api/admin", func(r chi.Router) {
		r.Post("/login", handleAdminLogin(store))
		r.Post("/logout", handleAdminLogout(store))

		r.Group(func(r chi.Router) {
			r.Use(adminAuthMiddleware(store))

			r.Get("/me", handleAdminMe())

			r.Get("/settings", handleAdminGetSettings(engine))
			r.Put("/settings", handleAdminUpdateSettings(engine))
			r.Post("/rounds/start", handleAdminStartRound(engine))
			r.Post("/game/reset", handleAdminResetGame(engine))
			r.Post("/leaderboard/publish", handleAdminPublishLeaderboard(engine))
			r.Get("/leaderboard", handleAdminLeaderboard(engine))
			r.Get("/analytics", handleAdminAnalytics(store, engine))

			r.Get("/locations", handleAdminListLocations(store))
			r.Post("/locations", handleAdminCreateLocation(store))
			r.Put("/locations/{id}", handleAdminUpdateLocation(store))
			r.Delete("/locations/{id}", handleAdminDeleteLocation(store))

			r.Get("/gold-bars", handleAdminListGoldBars(store))
			r.Post("/gold-bars", handleAdminCreateGoldBar(store))
			r.Delete("/gold-bars/{id}", handleAdminDeleteGoldBar(store))
			r.Get("/gold-bars/{id}/qr", handleAdminGoldBarQR(store))

			r.Get("/teams", handleAdminListTeams(store))
			r.Delete("/teams/{id}", handleAdminDeleteTeam(store))
			r.Delete("/teams/{teamID}/members/{userID}", handleAdminRemoveMember(store))
			r.Post("/teams/{id}/disqualify", handleAdminDisqualifyTeam(store, engine))

			r.Get("/sabotages", handleAdminListSabotages(store, engine))
			r.Post("/sabotages/{id}/overrule", handleAdminOverruleSabotage(engine))

			r.Get("/participants", handleAdminListParticipants(store))
			r.Post("/participants", handleAdminRegisterParticipant(store))
			r.Post("/participants/{id}/promote", handleAdminPromoteParticipant(store))
			r.Delete("/participants/{id}", handleAdminDeleteParticipant(store))

			r.Get("/assignment-cards", handleAdminAssignmentCards())

			r.Get("/events", handleAdminEvents(broker))
		})
	})
}
