package server

import (
	"encoding/json"
	"fmt"
	"sync"
)

// TopicGlobal carries events every connected client should see.
const TopicGlobal = "global"

// teamTopic names the per-team event stream.
func teamTopic(teamID int64) string {
	return fmt.Sprintf("team:%d", teamID)
}

// message is one named SSE event with its JSON-encoded payload.
type message struct {
	Name string
	Data []byte
}

// Broker is an in-process pub/sub for SSE events, keyed by topic.
type Broker struct {
	mu   sync.RWMutex
	subs map[string]map[chan message]struct{}
}

func NewBroker() *Broker {
	return &Broker{
		subs: make(map[string]map[chan message]struct{}),
	}
}

// Subscribe returns a channel that receives events published to any of
// the given topics.
func (b *Broker) Subscribe(topics ...string) chan message {
	ch := make(chan message, 16)
	b.mu.Lock()
	for _, topic := range topics {
		if b.subs[topic] == nil {
			b.subs[topic] = make(map[chan message]struct{})
		}
		b.subs[topic][ch] = struct{}{}
	}
	b.mu.Unlock()
	return ch
}

// Unsubscribe removes a channel from the given topics.
func (b *Broker) Unsubscribe(ch chan message, topics ...string) {
	b.mu.Lock()
	for _, topic := range topics {
		delete(b.subs[topic], ch)
		if len(b.subs[topic]) == 0 {
			delete(b.subs, topic)
		}
	}
	b.mu.Unlock()
}

// Publish sends a named event to all subscribers of the topic.
func (b *Broker) Publish(topic, name string, payload any) {
	data, _ := json.Marshal(payload)
	b.mu.RLock()
	for ch := range b.subs[topic] {
		select {
		case ch <- message{Name: name, Data: data}:
		default:
			// Drop if subscriber is slow.
		}
	}
	b.mu.RUnlock()
}
