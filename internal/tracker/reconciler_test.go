package tracker

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/playsignal/tracker/internal/mediaserver"
	"github.com/playsignal/tracker/internal/models"
)

var t0 = time.Date(2026, 8, 1, 20, 0, 0, 0, time.UTC)

func testReconciler() *Reconciler {
	return NewReconciler(Config{
		GraceMissedPolls: 2,
		WatchedPercent:   0.85,
		BufferDebounce:   30 * time.Second,
	}, nil)
}

func raw(key, state string, offsetMs int64) mediaserver.RawSession {
	return mediaserver.RawSession{
		SessionKey:        key,
		UserID:            "u1",
		UserName:          "alice",
		MediaID:           "m1",
		MediaTitle:        "The Big Picture",
		MediaType:         "movie",
		Library:           "Movies",
		Player:            "Living Room TV",
		State:             state,
		ViewOffsetMs:      offsetMs,
		DurationMs:        7_200_000,
		TranscodeDecision: "direct play",
	}
}

func kinds(events []Event) []EventKind {
	out := make([]EventKind, len(events))
	for i, ev := range events {
		out[i] = ev.Kind
	}
	return out
}

func TestNewSessionEmitsStartedOnce(t *testing.T) {
	r := testReconciler()

	events := r.Reconcile([]mediaserver.RawSession{raw("s1", "playing", 0)}, t0)
	require.Equal(t, []EventKind{EventStarted}, kinds(events))
	assert.Equal(t, uint64(1), events[0].Seq)
	assert.Equal(t, "alice", events[0].Session.UserName)
	assert.Equal(t, 1, r.Len())

	// same session again: no second Started
	events = r.Reconcile([]mediaserver.RawSession{raw("s1", "playing", 60_000)}, t0.Add(10*time.Second))
	assert.Empty(t, events)
}

func TestPauseAndResume(t *testing.T) {
	r := testReconciler()
	r.Reconcile([]mediaserver.RawSession{raw("s1", "playing", 0)}, t0)

	events := r.Reconcile([]mediaserver.RawSession{raw("s1", "paused", 60_000)}, t0.Add(10*time.Second))
	require.Equal(t, []EventKind{EventPaused}, kinds(events))
	assert.Equal(t, models.PlayStatePaused, events[0].Session.State)

	events = r.Reconcile([]mediaserver.RawSession{raw("s1", "playing", 60_000)}, t0.Add(70*time.Second))
	require.Equal(t, []EventKind{EventResumed}, kinds(events))
	assert.Equal(t, int64(60), events[0].Session.PausedSeconds)
}

func TestWatchedThresholdEmittedExactlyOnce(t *testing.T) {
	r := testReconciler()
	r.Reconcile([]mediaserver.RawSession{raw("s1", "playing", 0)}, t0)

	// 90% of a 2h movie crosses the 85% threshold
	events := r.Reconcile([]mediaserver.RawSession{raw("s1", "playing", 6_480_000)}, t0.Add(time.Minute))
	require.Equal(t, []EventKind{EventWatched}, kinds(events))
	assert.True(t, events[0].Session.Watched)

	events = r.Reconcile([]mediaserver.RawSession{raw("s1", "playing", 6_500_000)}, t0.Add(2*time.Minute))
	assert.Empty(t, events, "watched must fire once per session")
}

func TestWatchedAlreadyCrossedAtStart(t *testing.T) {
	r := testReconciler()
	events := r.Reconcile([]mediaserver.RawSession{raw("s1", "playing", 7_000_000)}, t0)
	assert.Equal(t, []EventKind{EventStarted, EventWatched}, kinds(events))
}

func TestAbsentSessionStoppedAfterGrace(t *testing.T) {
	r := testReconciler()
	r.Reconcile([]mediaserver.RawSession{raw("s1", "playing", 0)}, t0)

	// grace threshold 2: two absent ticks are tolerated
	assert.Empty(t, r.Reconcile(nil, t0.Add(10*time.Second)))
	assert.Empty(t, r.Reconcile(nil, t0.Add(20*time.Second)))

	events := r.Reconcile(nil, t0.Add(30*time.Second))
	require.Equal(t, []EventKind{EventStopped}, kinds(events))
	require.NotNil(t, events[0].Session.StoppedAt)
	assert.Equal(t, 0, r.Len())

	// no further events for the vanished session
	assert.Empty(t, r.Reconcile(nil, t0.Add(40*time.Second)))
}

func TestSourceFailureDoesNotAgeSessions(t *testing.T) {
	r := testReconciler()
	r.Reconcile([]mediaserver.RawSession{raw("s1", "playing", 0)}, t0)

	// Failed fetches are no-ops: they must not count as missed polls.
	for i := 0; i < 5; i++ {
		r.OnSourceFailure()
	}
	assert.Equal(t, uint64(5), r.SourceFailures())
	assert.Equal(t, 1, r.Len())

	// Aging still takes the full grace window of successful ticks.
	assert.Empty(t, r.Reconcile(nil, t0.Add(10*time.Second)))
	assert.Empty(t, r.Reconcile(nil, t0.Add(20*time.Second)))
	events := r.Reconcile(nil, t0.Add(30*time.Second))
	assert.Equal(t, []EventKind{EventStopped}, kinds(events))
}

func TestSessionReturningMidGraceResetsCounter(t *testing.T) {
	r := testReconciler()
	r.Reconcile([]mediaserver.RawSession{raw("s1", "playing", 0)}, t0)

	assert.Empty(t, r.Reconcile(nil, t0.Add(10*time.Second)))
	assert.Empty(t, r.Reconcile(nil, t0.Add(20*time.Second)))

	// reappears before the threshold is exceeded: counter resets, no Stopped
	events := r.Reconcile([]mediaserver.RawSession{raw("s1", "playing", 120_000)}, t0.Add(30*time.Second))
	assert.Empty(t, events)

	assert.Empty(t, r.Reconcile(nil, t0.Add(40*time.Second)))
	assert.Empty(t, r.Reconcile(nil, t0.Add(50*time.Second)))
	events = r.Reconcile(nil, t0.Add(60*time.Second))
	assert.Equal(t, []EventKind{EventStopped}, kinds(events))
}

func TestBufferingFlapEmitsOneEvent(t *testing.T) {
	r := testReconciler()
	r.Reconcile([]mediaserver.RawSession{raw("s1", "playing", 0)}, t0)

	// playing -> buffering -> playing -> buffering -> playing, all inside
	// one debounce window: one Buffering, no Resumed (stable state playing).
	var all []Event
	all = append(all, r.Reconcile([]mediaserver.RawSession{raw("s1", "buffering", 10_000)}, t0.Add(5*time.Second))...)
	all = append(all, r.Reconcile([]mediaserver.RawSession{raw("s1", "playing", 12_000)}, t0.Add(10*time.Second))...)
	all = append(all, r.Reconcile([]mediaserver.RawSession{raw("s1", "buffering", 13_000)}, t0.Add(15*time.Second))...)
	all = append(all, r.Reconcile([]mediaserver.RawSession{raw("s1", "playing", 15_000)}, t0.Add(20*time.Second))...)

	assert.Equal(t, []EventKind{EventBuffering}, kinds(all))
}

func TestBufferingAfterWindowStartsNewEpisode(t *testing.T) {
	r := testReconciler()
	r.Reconcile([]mediaserver.RawSession{raw("s1", "playing", 0)}, t0)

	ev1 := r.Reconcile([]mediaserver.RawSession{raw("s1", "buffering", 10_000)}, t0.Add(5*time.Second))
	require.Equal(t, []EventKind{EventBuffering}, kinds(ev1))
	r.Reconcile([]mediaserver.RawSession{raw("s1", "playing", 12_000)}, t0.Add(10*time.Second))

	// next flap starts after the 30s debounce window: a fresh episode
	ev2 := r.Reconcile([]mediaserver.RawSession{raw("s1", "buffering", 60_000)}, t0.Add(50*time.Second))
	assert.Equal(t, []EventKind{EventBuffering}, kinds(ev2))
}

func TestResumeAfterBufferingOnlyFromPause(t *testing.T) {
	r := testReconciler()
	r.Reconcile([]mediaserver.RawSession{raw("s1", "playing", 0)}, t0)
	r.Reconcile([]mediaserver.RawSession{raw("s1", "paused", 30_000)}, t0.Add(10*time.Second))

	events := r.Reconcile([]mediaserver.RawSession{raw("s1", "buffering", 30_000)}, t0.Add(20*time.Second))
	require.Equal(t, []EventKind{EventBuffering}, kinds(events))

	// stable state before the episode was paused: playing means Resumed
	events = r.Reconcile([]mediaserver.RawSession{raw("s1", "playing", 31_000)}, t0.Add(30*time.Second))
	require.Equal(t, []EventKind{EventResumed}, kinds(events))
	assert.Equal(t, int64(20), events[0].Session.PausedSeconds)
}

func TestExplicitStopSignal(t *testing.T) {
	r := testReconciler()
	r.Reconcile([]mediaserver.RawSession{raw("s1", "playing", 0)}, t0)

	events := r.Reconcile([]mediaserver.RawSession{raw("s1", "stopped", 500_000)}, t0.Add(10*time.Second))
	require.Equal(t, []EventKind{EventStopped}, kinds(events))
	assert.Equal(t, int64(500_000), events[0].Session.ViewOffsetMs)
	assert.Equal(t, 0, r.Len())
}

func TestStopSignalForUnknownSessionIgnored(t *testing.T) {
	r := testReconciler()
	events := r.Reconcile([]mediaserver.RawSession{raw("ghost", "stopped", 0)}, t0)
	assert.Empty(t, events)
	assert.Equal(t, 0, r.Len())
}

func TestUserReassignmentUpdatesInPlace(t *testing.T) {
	r := testReconciler()
	r.Reconcile([]mediaserver.RawSession{raw("s1", "playing", 0)}, t0)

	reassigned := raw("s1", "playing", 60_000)
	reassigned.UserID = "u2"
	reassigned.UserName = "bob"
	events := r.Reconcile([]mediaserver.RawSession{reassigned}, t0.Add(10*time.Second))
	assert.Empty(t, events, "reassignment must not produce a duplicate Started")

	sessions := r.Sessions()
	require.Len(t, sessions, 1)
	assert.Equal(t, "u2", sessions[0].UserID)
	assert.Equal(t, "bob", sessions[0].UserName)
}

func TestReappearanceAfterStopIsFreshSession(t *testing.T) {
	r := testReconciler()
	r.Reconcile([]mediaserver.RawSession{raw("s1", "playing", 0)}, t0)
	for i := 1; i <= 3; i++ {
		r.Reconcile(nil, t0.Add(time.Duration(i)*10*time.Second))
	}
	require.Equal(t, 0, r.Len())

	events := r.Reconcile([]mediaserver.RawSession{raw("s1", "playing", 600_000)}, t0.Add(time.Minute))
	require.Equal(t, []EventKind{EventStarted}, kinds(events))
	assert.Equal(t, uint64(1), events[0].Seq, "fresh session restarts its sequence")
}

func TestSequenceStrictlyIncreasingPerSession(t *testing.T) {
	r := testReconciler()
	var all []Event
	all = append(all, r.Reconcile([]mediaserver.RawSession{raw("s1", "playing", 0)}, t0)...)
	all = append(all, r.Reconcile([]mediaserver.RawSession{raw("s1", "paused", 10_000)}, t0.Add(10*time.Second))...)
	all = append(all, r.Reconcile([]mediaserver.RawSession{raw("s1", "playing", 10_000)}, t0.Add(20*time.Second))...)
	all = append(all, r.Reconcile([]mediaserver.RawSession{raw("s1", "stopped", 20_000)}, t0.Add(30*time.Second))...)

	require.Len(t, all, 4)
	for i, ev := range all {
		assert.Equal(t, uint64(i+1), ev.Seq)
	}
}

func TestErrorStateEmitsErrorEvent(t *testing.T) {
	r := testReconciler()
	r.Reconcile([]mediaserver.RawSession{raw("s1", "playing", 0)}, t0)

	events := r.Reconcile([]mediaserver.RawSession{raw("s1", "error", 10_000)}, t0.Add(10*time.Second))
	require.Equal(t, []EventKind{EventError}, kinds(events))
	// session stays tracked until it disappears or stops
	assert.Equal(t, 1, r.Len())
}

func TestFlushEndsAllSessions(t *testing.T) {
	r := testReconciler()
	s2 := raw("s2", "paused", 40_000)
	s2.UserID = "u2"
	r.Reconcile([]mediaserver.RawSession{raw("s1", "playing", 0), s2}, t0)
	require.Equal(t, 2, r.Len())

	events := r.Flush(t0.Add(time.Minute))
	assert.Len(t, events, 2)
	for _, ev := range events {
		assert.Equal(t, EventStopped, ev.Kind)
		assert.NotNil(t, ev.Session.StoppedAt)
	}
	assert.Equal(t, 0, r.Len())
}

// Full lifecycle per the snapshot stream: create, advance, vanish.
func TestLifecycleStartThenStopExactlyOnce(t *testing.T) {
	r := testReconciler()
	var all []Event

	all = append(all, r.Reconcile([]mediaserver.RawSession{raw("A", "playing", 0)}, t0)...)
	all = append(all, r.Reconcile([]mediaserver.RawSession{raw("A", "playing", 30_000)}, t0.Add(10*time.Second))...)
	for i := 0; i < 3; i++ { // grace threshold + 1 absent ticks
		all = append(all, r.Reconcile(nil, t0.Add(time.Duration(20+10*i)*time.Second))...)
	}

	require.Equal(t, []EventKind{EventStarted, EventStopped}, kinds(all))
	assert.Equal(t, "A", all[1].Session.SessionKey)
	require.NotNil(t, all[1].Session.StoppedAt)
	assert.Equal(t, int64(30_000), all[1].Session.ViewOffsetMs)
}
