package server

import (
	"fmt"
	"net/http"
	"time"
)

// handleGlobalEvents streams the global topic: round transitions,
// leaderboard updates, and sabotage announcements.
func handleGlobalEvents(broker *Broker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		streamEvents(w, r, broker, TopicGlobal)
	}
}

// handleTeamEvents streams a team's private topic plus the global one.
// EventSource cannot set headers, so auth rides in the token query
// parameter.
func handleTeamEvents(verifier Verifier, store Store, broker *Broker, allowedDomains []string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token := r.URL.Query().Get("token")
		if token == "" {
			writeError(w, http.StatusUnauthorized, "token query parameter required")
			return
		}

		email, err := verifier.Verify(r.Context(), token)
		if err != nil || !emailAllowed(email, allowedDomains) {
			writeError(w, http.StatusUnauthorized, "invalid token")
			return
		}
		user, err := store.UserByEmail(r.Context(), email)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "invalid token")
			return
		}
		team, err := store.TeamForUser(r.Context(), user.ID)
		if err != nil {
			writeError(w, http.StatusNotFound, "you are not in a team")
			return
		}

		streamEvents(w, r, broker, teamTopic(team.ID), TopicGlobal)
	}
}

func handleAdminEvents(broker *Broker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		streamEvents(w, r, broker, TopicGlobal)
	}
}

func streamEvents(w http.ResponseWriter, r *http.Request, broker *Broker, topics ...string) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	flusher.Flush()

	ch := broker.Subscribe(topics...)
	defer broker.Unsubscribe(ch, topics...)

	ping := time.NewTicker(30 * time.Second)
	defer ping.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case msg := <-ch:
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", msg.Name, msg.Data)
			flusher.Flush()
		case <-ping.C:
			fmt.Fprintf(w, ": ping\n\n")
			flusher.Flush()
		}
	}
}
