package chathub_test

import (
	"errors"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"chatmatch/backend/internal/chathub"
	"chatmatch/backend/internal/config"
	"chatmatch/backend/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openPair(t *testing.T, e *chathub.Engine) models.ChatSession {
	t.Helper()
	online(t, e,
		profile("a", models.GenderMale, models.PreferenceStraight, "Music"),
		profile("b", models.GenderFemale, models.PreferenceStraight, "Music"),
		profile("x", models.GenderOther, models.PreferenceBisexual),
	)
	s, err := e.Sessions.OpenSession("a", "b")
	require.NoError(t, err)
	return s
}

func collect(t *testing.T, r *chathub.Relay, sessionID string, after time.Time) []models.ChatMessage {
	t.Helper()
	seq, err := r.FetchMessages(sessionID, after)
	require.NoError(t, err)
	var out []models.ChatMessage
	for m := range seq {
		out = append(out, m)
	}
	return out
}

func TestRelay_OrderWithinOneTick(t *testing.T) {
	clock := newTestClock()
	e := chathub.NewEngine(chathub.WithClock(clock.Now))
	s := openPair(t, e)

	bodies := []string{"one", "two", "three", "four"}
	for i, b := range bodies {
		sender := "a"
		if i%2 == 1 {
			sender = "b"
		}
		_, err := e.Relay.PostMessage(s.SessionID, sender, b)
		require.NoError(t, err)
	}

	got := collect(t, e.Relay, s.SessionID, time.Time{})
	require.Len(t, got, len(bodies))
	for i, m := range got {
		assert.Equal(t, bodies[i], m.Body)
		if i > 0 {
			assert.True(t, m.CreatedAt.After(got[i-1].CreatedAt), "timestamps strictly increase")
			assert.Greater(t, m.ID, got[i-1].ID)
		}
	}
}

func TestRelay_ClockGoingBackwards(t *testing.T) {
	clock := newTestClock()
	e := chathub.NewEngine(chathub.WithClock(clock.Now))
	s := openPair(t, e)

	first, err := e.Relay.PostMessage(s.SessionID, "a", "first")
	require.NoError(t, err)
	clock.Advance(-time.Hour)
	second, err := e.Relay.PostMessage(s.SessionID, "b", "second")
	require.NoError(t, err)

	assert.True(t, second.CreatedAt.After(first.CreatedAt))
}

func TestRelay_FetchAfterCursor(t *testing.T) {
	clock := newTestClock()
	e := chathub.NewEngine(chathub.WithClock(clock.Now))
	s := openPair(t, e)

	first, err := e.Relay.PostMessage(s.SessionID, "a", "hi")
	require.NoError(t, err)
	clock.Advance(time.Second)
	_, err = e.Relay.PostMessage(s.SessionID, "b", "hello")
	require.NoError(t, err)

	got := collect(t, e.Relay, s.SessionID, first.CreatedAt)
	require.Len(t, got, 1)
	assert.Equal(t, "hello", got[0].Body)
}

func TestRelay_SequenceIsRestartable(t *testing.T) {
	e := chathub.NewEngine()
	s := openPair(t, e)

	seq, err := e.Relay.FetchMessages(s.SessionID, time.Time{})
	require.NoError(t, err)

	count := func() int {
		n := 0
		for range seq {
			n++
		}
		return n
	}
	assert.Equal(t, 0, count())

	_, err = e.Relay.PostMessage(s.SessionID, "a", "later")
	require.NoError(t, err)
	assert.Equal(t, 1, count())

	// Early exit stops the iteration.
	_, err = e.Relay.PostMessage(s.SessionID, "b", "more")
	require.NoError(t, err)
	for m := range seq {
		assert.Equal(t, "later", m.Body)
		break
	}
}

func TestRelay_PostRejects(t *testing.T) {
	e := chathub.NewEngine()
	s := openPair(t, e)

	tests := []struct {
		name      string
		sessionID string
		sender    string
		body      string
		want      error
	}{
		{"blank body", s.SessionID, "a", "  \n\t", chathub.ErrEmptyMessage},
		{"too long", s.SessionID, "a", strings.Repeat("я", config.MaxMessageLength+1), chathub.ErrMessageTooLong},
		{"outsider", s.SessionID, "x", "hey", chathub.ErrNotAParticipant},
		{"unknown session", "nope", "a", "hey", chathub.ErrSessionNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := e.Relay.PostMessage(tt.sessionID, tt.sender, tt.body)
			assert.ErrorIs(t, err, tt.want)
		})
	}

	_, err := e.Relay.PostMessage(s.SessionID, "a", strings.Repeat("я", config.MaxMessageLength))
	assert.NoError(t, err, "exactly the limit is accepted")
}

func TestRelay_ClosedSession(t *testing.T) {
	e := chathub.NewEngine()
	s := openPair(t, e)

	_, err := e.Relay.PostMessage(s.SessionID, "a", "bye")
	require.NoError(t, err)
	_, err = e.Sessions.EndSession(s.SessionID, "a")
	require.NoError(t, err)

	_, err = e.Relay.PostMessage(s.SessionID, "b", "wait")
	assert.ErrorIs(t, err, chathub.ErrSessionNotActive)
	_, err = e.Relay.PostMessage(s.SessionID, "x", "wait")
	assert.ErrorIs(t, err, chathub.ErrNotAParticipant, "participation is checked first")

	got := collect(t, e.Relay, s.SessionID, time.Time{})
	require.Len(t, got, 1)
	assert.Equal(t, "bye", got[0].Body)
}

func TestRelay_FetchUnknownSession(t *testing.T) {
	e := chathub.NewEngine()
	_, err := e.Relay.FetchMessages("nope", time.Time{})
	assert.ErrorIs(t, err, chathub.ErrSessionNotFound)
}

func TestRelay_SeedSequence(t *testing.T) {
	e := chathub.NewEngine()
	s := openPair(t, e)

	e.Relay.SeedSequence(41)
	e.Relay.SeedSequence(7)

	m, err := e.Relay.PostMessage(s.SessionID, "a", "hi")
	require.NoError(t, err)
	assert.Equal(t, uint64(42), m.ID)
}

func TestRelay_PostRacingEnd(t *testing.T) {
	for round := 0; round < 20; round++ {
		e := chathub.NewEngine()
		s := openPair(t, e)

		var (
			wg       sync.WaitGroup
			mu       sync.Mutex
			accepted = make(map[uint64]string)
			failures []error
		)
		for _, sender := range []string{"a", "b"} {
			for i := 0; i < 50; i++ {
				wg.Add(1)
				go func(sender, body string) {
					defer wg.Done()
					m, err := e.Relay.PostMessage(s.SessionID, sender, body)
					mu.Lock()
					defer mu.Unlock()
					if err != nil {
						failures = append(failures, err)
						return
					}
					accepted[m.ID] = body
				}(sender, sender+strconv.Itoa(i))
			}
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := e.Sessions.EndSession(s.SessionID, "a")
			assert.NoError(t, err)
		}()
		wg.Wait()

		for _, err := range failures {
			assert.True(t, errors.Is(err, chathub.ErrSessionNotActive), "unexpected error %v", err)
		}

		got := collect(t, e.Relay, s.SessionID, time.Time{})
		require.Len(t, got, len(accepted), "every accepted post is recorded")
		for _, m := range got {
			assert.Equal(t, accepted[m.ID], m.Body)
		}
		assert.Equal(t, 100, len(accepted)+len(failures))
	}
}
