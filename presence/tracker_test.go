package presence

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *recorder) record(event Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

func (r *recorder) snapshot() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

func (r *recorder) last() (Event, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.events) == 0 {
		return Event{}, false
	}
	return r.events[len(r.events)-1], true
}

func TestOnlineOfflineDeltas(t *testing.T) {
	tracker := NewTracker()
	rec := new(recorder)
	unsubscribe := tracker.Subscribe(rec.record)
	defer unsubscribe()

	tracker.SetOnline("user_1")
	assert.True(t, tracker.IsOnline("user_1"))

	// Second connection of the same user is counted but silent.
	tracker.SetOnline("user_1")
	tracker.SetOffline("user_1")
	assert.True(t, tracker.IsOnline("user_1"))

	tracker.SetOffline("user_1")
	assert.False(t, tracker.IsOnline("user_1"))

	events := rec.snapshot()
	require.Len(t, events, 2)
	assert.Equal(t, Event{Type: EventOnline, UserID: "user_1", IsOnline: true}, events[0])
	assert.Equal(t, Event{Type: EventOnline, UserID: "user_1", IsOnline: false}, events[1])
}

func TestOfflineWithoutOnlineIsNoop(t *testing.T) {
	tracker := NewTracker()
	rec := new(recorder)
	defer tracker.Subscribe(rec.record)()

	tracker.SetOffline("ghost")
	assert.Empty(t, rec.snapshot())
}

func TestTypingAutoRevertsAfterTimeout(t *testing.T) {
	tracker := NewTrackerWithTimeout(30 * time.Millisecond)
	rec := new(recorder)
	defer tracker.Subscribe(rec.record)()

	tracker.SetTyping("user_1", "user_1_user_2", true)
	assert.True(t, tracker.IsTyping("user_1", "user_1_user_2"))

	// No stop event arrives; the timeout must revert the state anyway.
	require.Eventually(t, func() bool {
		return !tracker.IsTyping("user_1", "user_1_user_2")
	}, time.Second, 5*time.Millisecond)

	last, ok := rec.last()
	require.True(t, ok)
	assert.Equal(t, EventTyping, last.Type)
	assert.False(t, last.IsTyping)
	assert.Equal(t, "user_1_user_2", last.ConversationID)
}

func TestTypingRearmsOnActivity(t *testing.T) {
	tracker := NewTrackerWithTimeout(50 * time.Millisecond)
	rec := new(recorder)
	defer tracker.Subscribe(rec.record)()

	tracker.SetTyping("user_1", "conv", true)
	time.Sleep(30 * time.Millisecond)
	tracker.SetTyping("user_1", "conv", true)
	time.Sleep(30 * time.Millisecond)

	// 60ms elapsed overall but activity 30ms ago keeps the state alive.
	assert.True(t, tracker.IsTyping("user_1", "conv"))
}

func TestLapsedExpiryCannotKillRearmedTyping(t *testing.T) {
	tracker := NewTrackerWithTimeout(time.Hour)
	rec := new(recorder)
	defer tracker.Subscribe(rec.record)()

	key := typingKey{userID: "user_1", conversationID: "conv"}

	// A fired callback can lose the race with a rearm: it blocks on the
	// mutex while a new keystroke installs a fresh timer under the same
	// key. Replay that interleaving by invoking the expiry path with the
	// superseded generation.
	tracker.SetTyping("user_1", "conv", true)
	tracker.mu.Lock()
	staleGen := tracker.typing[key].gen
	tracker.mu.Unlock()

	tracker.SetTyping("user_1", "conv", true)
	tracker.expireTyping(key, staleGen)

	assert.True(t, tracker.IsTyping("user_1", "conv"),
		"a superseded timer must not revert typing state")
	for _, event := range rec.snapshot() {
		assert.True(t, event.IsTyping, "no not-typing delta may leak out")
	}

	// The live generation still expires normally.
	tracker.mu.Lock()
	liveGen := tracker.typing[key].gen
	tracker.mu.Unlock()
	tracker.expireTyping(key, liveGen)
	assert.False(t, tracker.IsTyping("user_1", "conv"))
}

func TestExplicitStopTyping(t *testing.T) {
	tracker := NewTracker()
	rec := new(recorder)
	defer tracker.Subscribe(rec.record)()

	tracker.SetTyping("user_1", "conv", true)
	tracker.SetTyping("user_1", "conv", false)
	assert.False(t, tracker.IsTyping("user_1", "conv"))

	events := rec.snapshot()
	require.Len(t, events, 2)
	assert.True(t, events[0].IsTyping)
	assert.False(t, events[1].IsTyping)

	// Stop without start broadcasts nothing.
	tracker.SetTyping("user_1", "conv", false)
	assert.Len(t, rec.snapshot(), 2)
}

func TestDisconnectClearsTyping(t *testing.T) {
	tracker := NewTracker()

	tracker.SetOnline("user_1")
	tracker.SetTyping("user_1", "conv", true)
	tracker.SetOffline("user_1")

	assert.False(t, tracker.IsTyping("user_1", "conv"))
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	tracker := NewTracker()
	rec := new(recorder)
	unsubscribe := tracker.Subscribe(rec.record)

	tracker.SetOnline("user_1")
	unsubscribe()
	tracker.SetOffline("user_1")

	assert.Len(t, rec.snapshot(), 1)
}

func TestOnlineSnapshot(t *testing.T) {
	tracker := NewTracker()
	tracker.SetOnline("user_1")
	tracker.SetOnline("user_2")

	assert.ElementsMatch(t, []string{"user_1", "user_2"}, tracker.Online())
}
