package workers

import (
	"chat-relay/domain"
	"chat-relay/infrastructure/storage"
	"chat-relay/mocks"
	"chat-relay/runtime"
	"context"
	stderrors "errors"
	"log/slog"
	"testing"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func TestLikeCounter_Recounts_On_Each_Change(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	likes := mocks.NewMockILikeRepository(ctrl)
	log := logs.GetLoggerFromLevel(slog.LevelDebug)

	// Given a like then an unlike on the same post, after the subscription is live
	likes.EXPECT().Watch(gomock.Any(), gomock.Any(), gomock.Any()).DoAndReturn(
		func(ctx context.Context, ready func(), fn func(domain.LikeChange)) error {
			ready()
			fn(domain.LikeChange{PostID: "p1", UserID: "alice"})
			fn(domain.LikeChange{PostID: "p1", UserID: "alice", Removed: true})
			<-ctx.Done()
			return ctx.Err()
		})
	gomock.InOrder(
		likes.EXPECT().RecountAll(gomock.Any()).Return(nil),
		likes.EXPECT().RecountLikes(gomock.Any(), "p1").Return(1, nil),
		likes.EXPECT().RecountLikes(gomock.Any(), "p1").Return(0, nil),
	)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- NewLikeCounter(log, likes).Run(ctx) }()

	// Then every change recounts the post and a cancelled watch is a clean stop
	require.Eventually(t, ctrl.Satisfied, time.Second, time.Millisecond)
	cancel()
	req.NoError(<-done)
}

func TestLikeCounter_Returns_Stream_Failure(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	likes := mocks.NewMockILikeRepository(ctrl)
	log := logs.GetLoggerFromLevel(slog.LevelDebug)

	// Given a subscription that drops before it is registered
	dropped := stderrors.New("stream reset")
	likes.EXPECT().Watch(gomock.Any(), gomock.Any(), gomock.Any()).Return(dropped)

	// Then the error goes back to the supervisor for a restart
	req.ErrorIs(NewLikeCounter(log, likes).Run(context.Background()), dropped)
}

func TestLikeCounter_Repairs_Likes_Written_While_Stopped(t *testing.T) {
	req := require.New(t)
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	db, err := badger.Open(badger.DefaultOptions("").WithInMemory(true).WithLogger(nil))
	req.NoError(err)
	defer func() { _ = db.Close() }()
	repo := storage.NewLikeRepository(storage.NewDocumentStore(db, log), runtime.RealClock{})
	ctx := context.Background()

	// Given two likes written while no counter was running
	req.NoError(repo.Like(ctx, "p1", "alice"))
	req.NoError(repo.Like(ctx, "p1", "bob"))
	_, err = repo.LikesCount(ctx, "p1")
	req.Error(err)

	// When the counter starts
	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan error, 1)
	go func() { done <- NewLikeCounter(log, repo).Run(runCtx) }()

	// Then the missed likes are counted
	req.Eventually(func() bool {
		count, err := repo.LikesCount(ctx, "p1")
		return err == nil && count == 2
	}, 2*time.Second, 5*time.Millisecond)

	// And a live unlike is applied on top
	req.NoError(repo.Unlike(ctx, "p1", "bob"))
	req.Eventually(func() bool {
		count, err := repo.LikesCount(ctx, "p1")
		return err == nil && count == 1
	}, 2*time.Second, 5*time.Millisecond)

	cancel()
	req.NoError(<-done)
}
