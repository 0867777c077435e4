package facade

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go-message-relay/internal/domain"
	"go-message-relay/internal/infrastructure/logger"
)

const testMessageID = "6f1c2a5e-8a43-4e3b-9a35-1d0c5b7f2e10"

var testNow = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

type mockRepository struct {
	mu       sync.Mutex
	messages map[string]*domain.Message
	order    []string

	insertErr error
	updateErr error
	findErr   error
	findAll   func() ([]*domain.Message, error)
}

func newMockRepository() *mockRepository {
	return &mockRepository{messages: make(map[string]*domain.Message)}
}

func (m *mockRepository) Insert(_ context.Context, msg *domain.Message) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.insertErr != nil {
		return "", m.insertErr
	}
	stored := *msg
	stored.ID = testMessageID
	m.messages[stored.ID] = &stored
	m.order = append(m.order, stored.ID)
	return stored.ID, nil
}

func (m *mockRepository) UpdateText(_ context.Context, id, text string, timestamp int64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.updateErr != nil {
		return 0, m.updateErr
	}
	msg, ok := m.messages[id]
	if !ok {
		return 0, nil
	}
	msg.Text = text
	msg.Timestamp = timestamp
	return 1, nil
}

func (m *mockRepository) FindByID(_ context.Context, id string) (*domain.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.findErr != nil {
		return nil, m.findErr
	}
	msg, ok := m.messages[id]
	if !ok {
		return nil, domain.ErrMessageNotFound
	}
	found := *msg
	return &found, nil
}

func (m *mockRepository) FindAll(context.Context) ([]*domain.Message, error) {
	if m.findAll != nil {
		return m.findAll()
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	all := make([]*domain.Message, 0, len(m.order))
	for _, id := range m.order {
		msg := *m.messages[id]
		all = append(all, &msg)
	}
	return all, nil
}

type mockNotifier struct {
	mu       sync.Mutex
	err      error
	payloads [][]byte
}

func (m *mockNotifier) Notify(_ context.Context, payload []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.err != nil {
		return m.err
	}
	m.payloads = append(m.payloads, payload)
	return nil
}

func (m *mockNotifier) Published() [][]byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([][]byte(nil), m.payloads...)
}

func newTestService() (*ChatApplicationService, *mockRepository, *mockNotifier, *clockwork.FakeClock) {
	repo := newMockRepository()
	notifier := &mockNotifier{}
	clock := clockwork.NewFakeClockAt(testNow)
	return NewChatApplicationService(repo, notifier, clock, logger.NewNopLogger()), repo, notifier, clock
}

func TestPublish_StoresAndAnnounces(t *testing.T) {
	svc, repo, notifier, _ := newTestService()

	msg, err := svc.Publish(context.Background(), "hello", "ana")
	require.NoError(t, err)

	assert.Equal(t, testMessageID, msg.ID)
	assert.Equal(t, testNow.Unix(), msg.Timestamp)
	assert.Len(t, repo.order, 1)

	published := notifier.Published()
	require.Len(t, published, 1)
	var announced domain.Message
	require.NoError(t, json.Unmarshal(published[0], &announced))
	assert.Equal(t, *msg, announced)
}

func TestPublish_InvalidMessage(t *testing.T) {
	svc, repo, notifier, _ := newTestService()

	_, err := svc.Publish(context.Background(), "", "ana")
	assert.ErrorIs(t, err, domain.ErrInvalidMessage)
	assert.Empty(t, repo.order)
	assert.Empty(t, notifier.Published())
}

func TestPublish_StorageFailureSkipsAnnouncement(t *testing.T) {
	svc, repo, notifier, _ := newTestService()
	repo.insertErr = errors.New("connection reset")

	_, err := svc.Publish(context.Background(), "hello", "ana")
	assert.ErrorIs(t, err, domain.ErrStorage)
	assert.Empty(t, notifier.Published())
}

func TestPublish_NotificationFailure(t *testing.T) {
	svc, _, notifier, _ := newTestService()
	notifier.err = errors.New("redis down")

	_, err := svc.Publish(context.Background(), "hello", "ana")
	assert.ErrorIs(t, err, domain.ErrNotification)
}

func TestEdit_RefreshesTimestampAndAnnounces(t *testing.T) {
	svc, repo, notifier, clock := newTestService()
	ctx := context.Background()

	_, err := svc.Publish(ctx, "draft", "ana")
	require.NoError(t, err)

	clock.Advance(90 * time.Second)
	updated, err := svc.Edit(ctx, testMessageID, "final")
	require.NoError(t, err)

	assert.Equal(t, "final", updated.Text)
	assert.Equal(t, "ana", updated.Author)
	assert.Equal(t, testNow.Add(90*time.Second).Unix(), updated.Timestamp)
	assert.Equal(t, updated.Timestamp, repo.messages[testMessageID].Timestamp, "timestamp is persisted")

	published := notifier.Published()
	require.Len(t, published, 2)
	var announced domain.Message
	require.NoError(t, json.Unmarshal(published[1], &announced))
	assert.Equal(t, *updated, announced)
}

func TestEdit_Errors(t *testing.T) {
	tests := []struct {
		name    string
		id      string
		text    string
		setup   func(*mockRepository, *mockNotifier)
		wantErr error
	}{
		{name: "invalid id", id: "nope", text: "x", wantErr: domain.ErrInvalidMessageID},
		{name: "empty text", id: testMessageID, text: " ", wantErr: domain.ErrInvalidMessage},
		{name: "not found", id: "0b9e4f2c-0000-4000-8000-000000000000", text: "x", wantErr: domain.ErrMessageNotFound},
		{
			name: "update fails", id: testMessageID, text: "x",
			setup:   func(r *mockRepository, _ *mockNotifier) { r.updateErr = errors.New("boom") },
			wantErr: domain.ErrStorage,
		},
		{
			name: "re-read fails", id: testMessageID, text: "x",
			setup:   func(r *mockRepository, _ *mockNotifier) { r.findErr = errors.New("boom") },
			wantErr: domain.ErrStorage,
		},
		{
			name: "publish fails", id: testMessageID, text: "x",
			setup:   func(_ *mockRepository, n *mockNotifier) { n.err = errors.New("boom") },
			wantErr: domain.ErrNotification,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, repo, notifier, _ := newTestService()
			_, err := svc.Publish(context.Background(), "draft", "ana")
			require.NoError(t, err)
			if tt.setup != nil {
				tt.setup(repo, notifier)
			}

			_, err = svc.Edit(context.Background(), tt.id, tt.text)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestList(t *testing.T) {
	svc, _, _, _ := newTestService()
	ctx := context.Background()

	empty, err := svc.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, empty)

	_, err = svc.Publish(ctx, "hello", "ana")
	require.NoError(t, err)

	all, err := svc.List(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "hello", all[0].Text)
}

func TestList_StorageFailure(t *testing.T) {
	svc, repo, _, _ := newTestService()
	repo.findAll = func() ([]*domain.Message, error) { return nil, errors.New("boom") }

	_, err := svc.List(context.Background())
	assert.ErrorIs(t, err, domain.ErrStorage)
}

func TestList_CoalescesConcurrentCalls(t *testing.T) {
	svc, repo, _, _ := newTestService()

	var calls atomic.Int32
	release := make(chan struct{})
	repo.findAll = func() ([]*domain.Message, error) {
		calls.Add(1)
		<-release
		return []*domain.Message{}, nil
	}

	const callers = 5
	var started, wg sync.WaitGroup
	started.Add(callers)
	wg.Add(callers)
	for i := 0; i < callers; i++ {
		go func() {
			defer wg.Done()
			started.Done()
			_, err := svc.List(context.Background())
			assert.NoError(t, err)
		}()
	}

	started.Wait()
	require.Eventually(t, func() bool { return calls.Load() == 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), calls.Load())
}
