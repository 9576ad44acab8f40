// Package presence keeps the ephemeral online/typing state of connected
// users. Nothing here is persisted; every entry dies with the connection
// that produced it.
package presence

import (
	"sync"
	"time"
)

// DefaultTypingTimeout bounds a stale "typing..." indicator when the stop
// event is lost: typing state auto-reverts after this much input inactivity.
const DefaultTypingTimeout = 3 * time.Second

type EventType string

const (
	EventOnline EventType = "online"
	EventTyping EventType = "typing"
)

// Event is one presence delta pushed to subscribers.
type Event struct {
	Type           EventType `json:"type"`
	UserID         string    `json:"userId"`
	ConversationID string    `json:"conversationId,omitempty"`
	IsOnline       bool      `json:"isOnline"`
	IsTyping       bool      `json:"isTyping"`
}

type typingKey struct {
	userID         string
	conversationID string
}

// typingEntry carries the armed timer and the generation it was armed for.
// An expiry callback only wins when the map still holds its generation, so
// a callback that fired just before a rearm cannot kill the fresh timer.
type typingEntry struct {
	timer *time.Timer
	gen   uint64
}

// Tracker maintains the in-memory presence set and fans deltas out to
// subscribers. Safe for concurrent use. Listeners run on the caller's
// goroutine and must not block.
type Tracker struct {
	typingTimeout time.Duration

	mu        sync.Mutex
	online    map[string]int // userID -> live connection count
	typing    map[typingKey]*typingEntry
	typingGen uint64
	listeners map[int]func(Event)
	nextID    int
}

func NewTracker() *Tracker {
	return NewTrackerWithTimeout(DefaultTypingTimeout)
}

func NewTrackerWithTimeout(typingTimeout time.Duration) *Tracker {
	return &Tracker{
		typingTimeout: typingTimeout,
		online:        make(map[string]int),
		typing:        make(map[typingKey]*typingEntry),
		listeners:     make(map[int]func(Event)),
	}
}

// Subscribe registers a listener for presence deltas and returns its
// unsubscribe handle. Tie the returned func to the subscriber's lifecycle.
func (t *Tracker) Subscribe(listener func(Event)) func() {
	t.mu.Lock()
	id := t.nextID
	t.nextID++
	t.listeners[id] = listener
	t.mu.Unlock()

	return func() {
		t.mu.Lock()
		delete(t.listeners, id)
		t.mu.Unlock()
	}
}

func (t *Tracker) emit(event Event) {
	t.mu.Lock()
	listeners := make([]func(Event), 0, len(t.listeners))
	for _, listener := range t.listeners {
		listeners = append(listeners, listener)
	}
	t.mu.Unlock()

	for _, listener := range listeners {
		listener(event)
	}
}

// SetOnline records one live connection for the user. A delta is emitted
// only on the offline->online edge; a second connection of the same user is
// counted but silent.
func (t *Tracker) SetOnline(userID string) {
	t.mu.Lock()
	t.online[userID]++
	first := t.online[userID] == 1
	t.mu.Unlock()

	if first {
		t.emit(Event{Type: EventOnline, UserID: userID, IsOnline: true})
	}
}

// SetOffline drops one connection of the user. When the last connection
// goes, the user's typing entries are cancelled and an offline delta is
// emitted.
func (t *Tracker) SetOffline(userID string) {
	t.mu.Lock()
	if t.online[userID] == 0 {
		t.mu.Unlock()
		return
	}
	t.online[userID]--
	last := t.online[userID] == 0
	if last {
		delete(t.online, userID)
		for key, entry := range t.typing {
			if key.userID == userID {
				entry.timer.Stop()
				delete(t.typing, key)
			}
		}
	}
	t.mu.Unlock()

	if last {
		t.emit(Event{Type: EventOnline, UserID: userID, IsOnline: false})
	}
}

// IsOnline reports whether the user has at least one live connection.
func (t *Tracker) IsOnline(userID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.online[userID] > 0
}

// Online returns a snapshot of the currently online user ids.
func (t *Tracker) Online() []string {
	t.mu.Lock()
	defer t.mu.Unlock()

	users := make([]string, 0, len(t.online))
	for userID := range t.online {
		users = append(users, userID)
	}
	return users
}

// SetTyping broadcasts the user's typing state in one conversation. Every
// isTyping=true call rearms the inactivity timer; when it fires without a
// stop event, a not-typing delta goes out anyway.
func (t *Tracker) SetTyping(userID string, conversationID string, isTyping bool) {
	key := typingKey{userID: userID, conversationID: conversationID}

	t.mu.Lock()
	if entry, ok := t.typing[key]; ok {
		entry.timer.Stop()
		delete(t.typing, key)
	} else if !isTyping {
		// Already not typing, nothing to broadcast.
		t.mu.Unlock()
		return
	}

	if isTyping {
		t.typingGen++
		gen := t.typingGen
		t.typing[key] = &typingEntry{
			gen: gen,
			timer: time.AfterFunc(t.typingTimeout, func() {
				t.expireTyping(key, gen)
			}),
		}
	}
	t.mu.Unlock()

	t.emit(Event{
		Type:           EventTyping,
		UserID:         userID,
		ConversationID: conversationID,
		IsTyping:       isTyping,
	})
}

// IsTyping reports whether the user is currently typing in a conversation.
func (t *Tracker) IsTyping(userID string, conversationID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.typing[typingKey{userID: userID, conversationID: conversationID}]
	return ok
}

func (t *Tracker) expireTyping(key typingKey, gen uint64) {
	t.mu.Lock()
	entry, ok := t.typing[key]
	if !ok || entry.gen != gen {
		// A rearm replaced this timer while its callback was pending.
		t.mu.Unlock()
		return
	}
	delete(t.typing, key)
	t.mu.Unlock()

	t.emit(Event{
		Type:           EventTyping,
		UserID:         key.userID,
		ConversationID: key.conversationID,
		IsTyping:       false,
	})
}
