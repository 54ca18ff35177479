package workers

import (
	"chat-relay/domain"
	"chat-relay/errors"
	"chat-relay/mocks"
	"chat-relay/runtime"
	"context"
	stderrors "errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

var feedPolicy = runtime.BackoffPolicy{
	Base:        time.Second,
	Cap:         10 * time.Second,
	MaxFailures: 5,
	Cooldown:    5 * time.Minute,
}

func blockUntilDone(ctx context.Context, ready, _ func()) error {
	ready()
	<-ctx.Done()
	return ctx.Err()
}

func TestChangeFeedListener_Backoff_Then_Cooldown(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	queue := mocks.NewMockINotificationQueue(ctrl)
	gateway := mocks.NewMockIPushGateway(ctrl)
	clock := runtime.NewManualClock(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC))
	log := logs.GetLoggerFromLevel(slog.LevelDebug)

	// Given a subscription that fails as soon as it opens
	queue.EXPECT().Watch(gomock.Any(), gomock.Any(), gomock.Any()).Return(stderrors.New("stream reset")).AnyTimes()
	queue.EXPECT().Pending(gomock.Any()).Return(nil, nil).AnyTimes()
	gateway.EXPECT().Send(gomock.Any(), gomock.Any()).Times(0)

	listener := NewChangeFeedListener(log, queue, gateway, clock, feedPolicy)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- listener.Run(ctx) }()

	// When six failures happen in a row
	expected := []time.Duration{
		time.Second, 2 * time.Second, 4 * time.Second, 8 * time.Second, 10 * time.Second,
		5 * time.Minute,
	}
	for i, delay := range expected {
		req.Eventually(func() bool { return len(clock.Scheduled()) == i+1 }, time.Second, time.Millisecond)
		req.Equal(FeedBackoff, listener.State())
		clock.Advance(delay)
	}

	// Then the five retries grow up to the cap, the sixth waits the cooldown
	// and the next failure starts over from the base delay
	req.Eventually(func() bool { return len(clock.Scheduled()) == len(expected)+1 }, time.Second, time.Millisecond)
	req.Equal(append(expected, time.Second), clock.Scheduled())

	cancel()
	req.NoError(<-done)
	req.Equal(FeedStopped, listener.State())
}

func TestChangeFeedListener_Drains_Queue(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	queue := mocks.NewMockINotificationQueue(ctrl)
	gateway := mocks.NewMockIPushGateway(ctrl)
	clock := runtime.NewManualClock(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC))
	log := logs.GetLoggerFromLevel(slog.LevelDebug)

	// Given three queued requests: valid, tokenless and one the gateway rejects
	items := []domain.PendingNotification{
		{ID: "n1", Token: "tok-1", Notification: domain.Notification{Title: "Class", Body: "moved"}, Data: map[string]string{"classId": "c1"}},
		{ID: "n2"},
		{ID: "n3", Token: "tok-3", Notification: domain.Notification{Title: "Class"}},
	}
	queue.EXPECT().Watch(gomock.Any(), gomock.Any(), gomock.Any()).DoAndReturn(blockUntilDone)
	queue.EXPECT().Pending(gomock.Any()).Return(items, nil)

	var pushed domain.PushMessage
	gateway.EXPECT().Send(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, msg domain.PushMessage) (string, error) {
			if msg.Token == "tok-3" {
				return "", stderrors.New("gateway unavailable")
			}
			pushed = msg
			return "push-1", nil
		}).Times(2)

	var mu sync.Mutex
	var deleted []string
	queue.EXPECT().Delete(gomock.Any(), gomock.Any()).DoAndReturn(func(_ context.Context, id string) error {
		mu.Lock()
		defer mu.Unlock()
		deleted = append(deleted, id)
		return nil
	}).AnyTimes()

	listener := NewChangeFeedListener(log, queue, gateway, clock, feedPolicy)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- listener.Run(ctx) }()

	// Then the valid one is sent and acknowledged, the tokenless one is dropped
	// and the failed one stays queued
	req.Eventually(func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(deleted) == 2
	}, time.Second, time.Millisecond)
	req.Equal(FeedActive, listener.State())
	mu.Lock()
	req.ElementsMatch([]string{"n1", "n2"}, deleted)
	mu.Unlock()
	req.Equal(domain.Notification{Title: "Class", Body: "moved"}, pushed.Notification)
	req.Equal("c1", pushed.Data["classId"])
	req.Equal(domain.ChannelHighImportant, pushed.Android.ChannelID)
	req.True(pushed.APNS.ContentAvailable)

	cancel()
	req.NoError(<-done)
}

func TestChangeFeedListener_Delivery_Resets_Retries(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	queue := mocks.NewMockINotificationQueue(ctrl)
	gateway := mocks.NewMockIPushGateway(ctrl)
	clock := runtime.NewManualClock(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC))
	log := logs.GetLoggerFromLevel(slog.LevelDebug)

	// Each subscription is confirmed and then drops
	queue.EXPECT().Watch(gomock.Any(), gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, ready, _ func()) error {
			ready()
			return errors.ErrSubscriptionClosed
		}).AnyTimes()
	var cycle atomic.Int32
	queue.EXPECT().Pending(gomock.Any()).DoAndReturn(func(context.Context) ([]domain.PendingNotification, error) {
		// The second connection finds one request to deliver
		if cycle.Add(1) == 2 {
			return []domain.PendingNotification{{ID: "n1", Token: "tok"}}, nil
		}
		return nil, nil
	}).AnyTimes()
	gateway.EXPECT().Send(gomock.Any(), gomock.Any()).Return("push-1", nil).Times(1)
	queue.EXPECT().Delete(gomock.Any(), "n1").Return(nil).Times(1)

	listener := NewChangeFeedListener(log, queue, gateway, clock, feedPolicy)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- listener.Run(ctx) }()

	req.Eventually(func() bool { return len(clock.Scheduled()) == 1 }, time.Second, time.Millisecond)
	clock.Advance(time.Second)
	req.Eventually(func() bool { return len(clock.Scheduled()) == 2 }, time.Second, time.Millisecond)

	// Then the failure after a delivery restarts from the base delay
	req.Equal([]time.Duration{time.Second, time.Second}, clock.Scheduled())

	cancel()
	req.NoError(<-done)
}

func TestChangeFeedListener_Single_Flight(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	queue := mocks.NewMockINotificationQueue(ctrl)
	gateway := mocks.NewMockIPushGateway(ctrl)
	clock := runtime.NewManualClock(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC))
	log := logs.GetLoggerFromLevel(slog.LevelDebug)

	// Only one subscription is ever opened
	queue.EXPECT().Watch(gomock.Any(), gomock.Any(), gomock.Any()).DoAndReturn(blockUntilDone).Times(1)
	queue.EXPECT().Pending(gomock.Any()).Return(nil, nil).Times(1)

	listener := NewChangeFeedListener(log, queue, gateway, clock, feedPolicy)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- listener.Run(ctx) }()
	req.Eventually(func() bool { return listener.State() == FeedActive }, time.Second, time.Millisecond)

	// When a second start is requested while active
	req.NoError(listener.Run(ctx))
	req.Equal(FeedActive, listener.State())

	cancel()
	req.NoError(<-done)
}

func TestChangeFeedListener_First_Drain_Waits_For_Subscription(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	queue := mocks.NewMockINotificationQueue(ctrl)
	gateway := mocks.NewMockIPushGateway(ctrl)
	clock := runtime.NewManualClock(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC))
	log := logs.GetLoggerFromLevel(slog.LevelDebug)

	var listed atomic.Bool
	confirm := make(chan func(), 1)
	queue.EXPECT().Watch(gomock.Any(), gomock.Any(), gomock.Any()).DoAndReturn(
		func(ctx context.Context, ready, _ func()) error {
			confirm <- ready
			<-ctx.Done()
			return ctx.Err()
		})
	// Given a request enqueued while the subscription is still being registered
	queue.EXPECT().Pending(gomock.Any()).DoAndReturn(func(context.Context) ([]domain.PendingNotification, error) {
		listed.Store(true)
		return []domain.PendingNotification{{ID: "n1", Token: "tok-1"}}, nil
	})
	gateway.EXPECT().Send(gomock.Any(), gomock.Any()).Return("push-1", nil)
	queue.EXPECT().Delete(gomock.Any(), "n1").Return(nil)

	listener := NewChangeFeedListener(log, queue, gateway, clock, feedPolicy)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- listener.Run(ctx) }()

	// Then nothing is listed and the feed is not active before confirmation
	ready := <-confirm
	req.Never(listed.Load, 50*time.Millisecond, 5*time.Millisecond)
	req.Equal(FeedStarting, listener.State())

	// When the subscription is confirmed the queued request is delivered
	ready()
	req.Eventually(ctrl.Satisfied, time.Second, time.Millisecond)
	req.Equal(FeedActive, listener.State())

	cancel()
	req.NoError(<-done)
}
