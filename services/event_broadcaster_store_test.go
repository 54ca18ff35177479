package services

import (
	"chat-relay/domain"
	"chat-relay/infrastructure/storage"
	"chat-relay/runtime"
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
)

// racingAnnouncements publishes one more post right after the replay snapshot is taken.
type racingAnnouncements struct {
	*storage.AnnouncementRepository
	clock *runtime.ManualClock
	once  sync.Once
}

func (r *racingAnnouncements) ListRecent(ctx context.Context, limit int) ([]domain.AnnouncementPost, error) {
	posts, err := r.AnnouncementRepository.ListRecent(ctx, limit)
	if limit > 1 {
		r.once.Do(func() {
			r.clock.Advance(time.Minute)
			_, _ = r.AddPost(ctx, domain.AnnouncementPost{Text: "late", AuthorEmail: "admin@example.com"})
		})
	}
	return posts, err
}

func TestEventBroadcaster_Post_Written_During_Replay_Is_Delivered(t *testing.T) {
	req := require.New(t)
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	db, err := badger.Open(badger.DefaultOptions("").WithInMemory(true).WithLogger(nil))
	req.NoError(err)
	defer func() { _ = db.Close() }()
	clock := runtime.NewManualClock(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC))
	posts := &racingAnnouncements{
		AnnouncementRepository: storage.NewAnnouncementRepository(storage.NewDocumentStore(db, log), clock),
		clock:                  clock,
	}

	// Given one stored post and another one written between replay and subscription
	_, err = posts.AddPost(context.Background(), domain.AnnouncementPost{Text: "early", AuthorEmail: "admin@example.com"})
	req.NoError(err)

	ctx, cancel := context.WithCancel(context.Background())
	w := newRecordingWriter()
	done := make(chan error, 1)
	go func() { done <- NewEventBroadcaster(log, posts, clock, heartbeatEvery, 10).Serve(ctx, w) }()

	// Then the subscriber gets the replay and then the late post, exactly once
	req.Equal(EventConnected, w.next(t).name)
	req.Equal("early", w.next(t).data.(domain.AnnouncementPayload).Message)
	late := w.next(t)
	req.Empty(late.name)
	req.Equal("late", late.data.(domain.AnnouncementPayload).Message)
	w.requireSilent(t)

	cancel()
	req.NoError(<-done)
}
