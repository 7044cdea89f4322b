package chathub_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"chatmatch/backend/internal/chathub"
	"chatmatch/backend/internal/models"

	"github.com/lib/pq"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// MockClient is a test double for the chathub.Client interface.
type MockClient struct {
	mock.Mock
	userID string
	send   chan models.Frame
	closed atomic.Int32
}

func newMockClient(id string) *MockClient {
	return &MockClient{
		userID: id,
		send:   make(chan models.Frame, 10), // Buffered to prevent blocking in tests
	}
}

func (c *MockClient) GetUserID() string                   { return c.userID }
func (c *MockClient) GetSendChannel() chan<- models.Frame { return c.send }

func (c *MockClient) Run() {
	c.Called()
}

func (c *MockClient) Close() {
	c.closed.Add(1)
}

func (c *MockClient) closeCount() int { return int(c.closed.Load()) }

// nextFrame waits for the next frame pushed to the client.
func (c *MockClient) nextFrame(t *testing.T) models.Frame {
	t.Helper()
	select {
	case f := <-c.send:
		return f
	case <-time.After(time.Second):
		t.Fatalf("no frame for %s", c.userID)
		return models.Frame{}
	}
}

// testClock is a manual clock. Every reading returns the same instant until
// it is advanced.
type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func newTestClock() *testClock {
	return &testClock{t: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

// eventLog is a sink that records every event it receives.
type eventLog struct {
	mu     sync.Mutex
	events []models.ChatEvent
}

func (l *eventLog) Publish(_ context.Context, ev models.ChatEvent) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, ev)
	return nil
}

func (l *eventLog) types() []models.EventType {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]models.EventType, 0, len(l.events))
	for _, ev := range l.events {
		out = append(out, ev.Type)
	}
	return out
}

func profile(id string, g models.Gender, p models.Preference, interests ...string) models.User {
	return models.User{ID: id, Username: "h_" + id, Gender: g, Preference: p, Interests: pq.StringArray(interests)}
}

// online registers the users and marks them online, in order.
func online(t *testing.T, e *chathub.Engine, users ...models.User) {
	t.Helper()
	for _, u := range users {
		require.NoError(t, e.GoOnline(context.Background(), u))
	}
}
