package notify

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/cruisemall/affiliate/internal/logging"
	"github.com/cruisemall/affiliate/internal/queue"
)

// MockEnqueuer is a mock implementation of Enqueuer
type MockEnqueuer struct {
	mock.Mock
	job queue.Job
}

func (m *MockEnqueuer) Enqueue(ctx context.Context, queueName string, payload interface{}, opts ...queue.EnqueueOption) (string, error) {
	for _, opt := range opts {
		opt(&m.job)
	}
	args := m.Called(ctx, queueName, payload)
	return args.String(0), args.Error(1)
}

// MockNotifier is a mock implementation of Notifier
type MockNotifier struct {
	mock.Mock
}

func (m *MockNotifier) Notify(ctx context.Context, n Notification) error {
	args := m.Called(ctx, n)
	return args.Error(0)
}

func TestQueueNotifier(t *testing.T) {
	q := new(MockEnqueuer)
	note := Notification{Title: "Adjustment approved", Body: "+20000 KRW", RecipientProfileID: uuid.New()}
	q.On("Enqueue", mock.Anything, "affiliate:notifications", note).Return("job-1", nil).Once()

	n := NewQueueNotifier(q, "affiliate:notifications", 7)
	require.NoError(t, n.Notify(context.Background(), note))
	q.AssertExpectations(t)
	assert.Equal(t, 7, q.job.MaxRetries)
}

func TestQueueNotifierWrapsError(t *testing.T) {
	q := new(MockEnqueuer)
	q.On("Enqueue", mock.Anything, "affiliate:notifications", mock.Anything).Return("", errors.New("connection refused"))

	n := NewQueueNotifier(q, "affiliate:notifications", -1)
	err := n.Notify(context.Background(), Notification{RecipientProfileID: uuid.New()})
	assert.ErrorContains(t, err, "connection refused")
	assert.Equal(t, queue.DefaultMaxRetries, q.job.MaxRetries)
}

func TestDispatchSwallowsFailures(t *testing.T) {
	n := new(MockNotifier)
	first := Notification{Title: "a", RecipientProfileID: uuid.New()}
	second := Notification{Title: "b", RecipientProfileID: uuid.New()}
	n.On("Notify", mock.Anything, first).Return(errors.New("down")).Once()
	n.On("Notify", mock.Anything, second).Return(nil).Once()

	Dispatch(context.Background(), n, logging.NewDiscardLogger(),
		first,
		Notification{Title: "no recipient"},
		second,
	)
	n.AssertExpectations(t)
	n.AssertNumberOfCalls(t, "Notify", 2)
}

func TestHandlerDecodesPayload(t *testing.T) {
	note := Notification{Title: "Refund processed", Body: "Sale refunded", RecipientProfileID: uuid.New()}
	payload, err := json.Marshal(note)
	require.NoError(t, err)

	var got Notification
	h := Handler(func(ctx context.Context, n Notification) error {
		got = n
		return nil
	})
	require.NoError(t, h(context.Background(), queue.Job{ID: "1", Payload: payload}))
	assert.Equal(t, note, got)

	err = h(context.Background(), queue.Job{ID: "2", Payload: json.RawMessage(`not json`)})
	assert.Error(t, err)
}
