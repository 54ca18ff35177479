package services

import (
	"chat-relay/domain"
	"chat-relay/mocks"
	"chat-relay/runtime"
	"context"
	stderrors "errors"
	"log/slog"
	"testing"
	"time"

	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

const heartbeatEvery = 15 * time.Second

type recordedEvent struct {
	name string
	data any
}

type recordingWriter struct {
	events chan recordedEvent
}

func newRecordingWriter() *recordingWriter {
	return &recordingWriter{events: make(chan recordedEvent, 64)}
}

func (w *recordingWriter) WriteEvent(event string, data any) error {
	w.events <- recordedEvent{name: event, data: data}
	return nil
}

func (w *recordingWriter) next(t *testing.T) recordedEvent {
	t.Helper()
	select {
	case e := <-w.events:
		return e
	case <-time.After(2 * time.Second):
		t.Fatal("no event received")
		return recordedEvent{}
	}
}

func (w *recordingWriter) requireSilent(t *testing.T) {
	t.Helper()
	select {
	case e := <-w.events:
		t.Fatalf("unexpected event %q", e.name)
	case <-time.After(50 * time.Millisecond):
	}
}

func post(id, text string, at time.Time) domain.AnnouncementPost {
	return domain.AnnouncementPost{ID: id, Text: text, AuthorEmail: "admin@example.com", Category: "News", Timestamp: at}
}

func TestEventBroadcaster_Empty_Store_Then_Heartbeat(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	posts := mocks.NewMockIAnnouncementRepository(ctrl)
	clock := runtime.NewManualClock(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC))
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	broadcaster := NewEventBroadcaster(log, posts, clock, heartbeatEvery, 10)

	// Given no announcement exists
	posts.EXPECT().ListRecent(gomock.Any(), 10).Return(nil, nil)
	posts.EXPECT().WatchLatest(gomock.Any(), gomock.Any()).DoAndReturn(
		func(ctx context.Context, _ func(domain.AnnouncementPost)) error {
			<-ctx.Done()
			return ctx.Err()
		})

	ctx, cancel := context.WithCancel(context.Background())
	w := newRecordingWriter()
	done := make(chan error, 1)
	go func() { done <- broadcaster.Serve(ctx, w) }()

	// Then the subscriber is acknowledged and told the store is empty
	req.Equal(EventConnected, w.next(t).name)
	empty := w.next(t)
	req.Equal("", empty.name)
	req.Equal(emptyPayload{Type: "empty", Posts: []domain.AnnouncementPayload{}}, empty.data)

	// When the heartbeat interval elapses
	clock.BlockUntil(1)
	clock.Advance(heartbeatEvery)

	// Then a heartbeat follows and nothing else
	req.Equal(EventHeartbeat, w.next(t).name)
	w.requireSilent(t)

	// When the subscriber leaves, both the subscription and the ticker are released
	cancel()
	req.NoError(<-done)
	_, pending := clock.NextDeadline()
	req.False(pending)
}

func TestEventBroadcaster_Replays_Then_Streams_New_Posts_Once(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	posts := mocks.NewMockIAnnouncementRepository(ctrl)
	start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	clock := runtime.NewManualClock(start)
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	broadcaster := NewEventBroadcaster(log, posts, clock, heartbeatEvery, 2)

	// Given two posts newest first
	newest := post("p2", "second", start.Add(-time.Minute))
	older := post("p1", "first", start.Add(-time.Hour))
	posts.EXPECT().ListRecent(gomock.Any(), 2).Return([]domain.AnnouncementPost{newest, older}, nil)

	fire := make(chan domain.AnnouncementPost)
	posts.EXPECT().WatchLatest(gomock.Any(), gomock.Any()).DoAndReturn(
		func(ctx context.Context, fn func(domain.AnnouncementPost)) error {
			for {
				select {
				case <-ctx.Done():
					return ctx.Err()
				case p := <-fire:
					fn(p)
				}
			}
		})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	w := newRecordingWriter()
	done := make(chan error, 1)
	go func() { done <- broadcaster.Serve(ctx, w) }()

	req.Equal(EventConnected, w.next(t).name)
	req.Equal(newest.ToPayload(start), w.next(t).data)
	req.Equal(older.ToPayload(start), w.next(t).data)

	// When the subscription first reports the post already replayed
	fire <- newest
	// Then it is not sent again
	w.requireSilent(t)

	// When a new post lands, it is sent exactly once
	latest := post("p3", "third", start)
	fire <- latest
	fire <- latest
	got := w.next(t)
	req.Equal("", got.name)
	req.Equal(latest.ToPayload(start), got.data)
	w.requireSilent(t)

	cancel()
	req.NoError(<-done)
}

func TestEventBroadcaster_Subscribers_Dedup_Independently(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	posts := mocks.NewMockIAnnouncementRepository(ctrl)
	start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	clock := runtime.NewManualClock(start)
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	broadcaster := NewEventBroadcaster(log, posts, clock, heartbeatEvery, 5)

	only := post("p1", "welcome", start)
	posts.EXPECT().ListRecent(gomock.Any(), 5).Return([]domain.AnnouncementPost{only}, nil).Times(2)
	posts.EXPECT().WatchLatest(gomock.Any(), gomock.Any()).DoAndReturn(
		func(ctx context.Context, _ func(domain.AnnouncementPost)) error {
			<-ctx.Done()
			return ctx.Err()
		}).Times(2)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Given a first subscriber already received the post
	first := newRecordingWriter()
	go func() { _ = broadcaster.Serve(ctx, first) }()
	req.Equal(EventConnected, first.next(t).name)
	req.Equal(only.ToPayload(start), first.next(t).data)

	// Then a second subscriber still gets it
	second := newRecordingWriter()
	go func() { _ = broadcaster.Serve(ctx, second) }()
	req.Equal(EventConnected, second.next(t).name)
	req.Equal(only.ToPayload(start), second.next(t).data)
}

func TestEventBroadcaster_Subscription_Error_Is_Surfaced(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	posts := mocks.NewMockIAnnouncementRepository(ctrl)
	clock := runtime.NewManualClock(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC))
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	broadcaster := NewEventBroadcaster(log, posts, clock, heartbeatEvery, 10)

	dropped := stderrors.New("stream reset")
	posts.EXPECT().ListRecent(gomock.Any(), 10).Return(nil, stderrors.New("store down"))
	posts.EXPECT().WatchLatest(gomock.Any(), gomock.Any()).Return(dropped)

	w := newRecordingWriter()
	err := broadcaster.Serve(context.Background(), w)

	// Then the subscriber sees an error event and the ticker is stopped
	req.ErrorIs(err, dropped)
	req.Equal(EventConnected, w.next(t).name)
	req.Equal(EventError, w.next(t).name)
	_, pending := clock.NextDeadline()
	req.False(pending)
}
