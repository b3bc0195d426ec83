package server

import (
	"testing"
)

func TestBrokerTopicIsolation(t *testing.T) {
	b := NewBroker()
	global := b.Subscribe(TopicGlobal)
	team := b.Subscribe(teamTopic(1))
	defer b.Unsubscribe(global, TopicGlobal)
	defer b.Unsubscribe(team, teamTopic(1))

	b.Publish(teamTopic(1), "score_update", map[string]int{"points": 100})

	select {
	case msg := <-team:
		if msg.Name != "score_update" {
			t.Errorf("event name = %q", msg.Name)
		}
	default:
		t.Fatal("team subscriber missed its event")
	}
	select {
	case msg := <-global:
		t.Fatalf("global subscriber received team event %q", msg.Name)
	default:
	}
}

func TestBrokerMultiTopic(t *testing.T) {
	b := NewBroker()
	ch := b.Subscribe(TopicGlobal, teamTopic(2))
	defer b.Unsubscribe(ch, TopicGlobal, teamTopic(2))

	b.Publish(TopicGlobal, "round_started", nil)
	b.Publish(teamTopic(2), "sabotaged", nil)

	var names []string
	for i := 0; i < 2; i++ {
		select {
		case msg := <-ch:
			names = append(names, msg.Name)
		default:
			t.Fatalf("got %d events, want 2", len(names))
		}
	}
	if names[0] != "round_started" || names[1] != "sabotaged" {
		t.Errorf("events = %v", names)
	}
}

func TestBrokerDropsSlowSubscriber(t *testing.T) {
	b := NewBroker()
	ch := b.Subscribe(TopicGlobal)
	defer b.Unsubscribe(ch, TopicGlobal)

	// Overflow the buffer. Publish must not block.
	for i := 0; i < 100; i++ {
		b.Publish(TopicGlobal, "leaderboard_update", nil)
	}
	if len(ch) != cap(ch) {
		t.Errorf("buffered %d events, want %d", len(ch), cap(ch))
	}
}

func TestBrokerUnsubscribe(t *testing.T) {
	b := NewBroker()
	ch := b.Subscribe(TopicGlobal)
	b.Unsubscribe(ch, TopicGlobal)

	b.Publish(TopicGlobal, "game_reset", nil)
	if len(ch) != 0 {
		t.Error("unsubscribed channel still receives events")
	}
}
