package workers

import (
	"chat-relay/contract"
	"chat-relay/domain"
	"context"
	"log/slog"
)

// LikeCounter keeps posts/{id}.likesCount in step with the likes collection.
// Counts are recomputed from the like documents, never incremented, so a change
// missed while the counter was down is repaired by the recount on subscribe.
type LikeCounter struct {
	log   *slog.Logger
	likes contract.ILikeRepository
}

func NewLikeCounter(log *slog.Logger, likes contract.ILikeRepository) *LikeCounter {
	return &LikeCounter{log: log, likes: likes}
}

func (w *LikeCounter) Run(ctx context.Context) error {
	w.log.Info("Starting like counter")
	reconcile := func() {
		if err := w.likes.RecountAll(ctx); err != nil {
			w.log.Error("Failed to reconcile likes counts", "error", err)
			return
		}
		w.log.Debug("Likes counts reconciled")
	}
	err := w.likes.Watch(ctx, reconcile, func(change domain.LikeChange) {
		count, err := w.likes.RecountLikes(ctx, change.PostID)
		if err != nil {
			w.log.Error("Failed to recount likes", "post_id", change.PostID, "error", err)
			return
		}
		w.log.Debug("Likes count updated", "post_id", change.PostID, "user_id", change.UserID, "removed", change.Removed, "count", count)
	})
	if ctx.Err() != nil {
		return nil
	}
	return err
}
