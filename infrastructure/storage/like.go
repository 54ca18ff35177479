package storage

import (
	"chat-relay/contract"
	"chat-relay/domain"
	"context"
	"fmt"
	"strings"

	"github.com/samber/lo"
)

const (
	LikesCollection = "likes"
	PostsCollection = "posts"
)

// LikeRepository keeps one document per (post, user) like and a likesCount on the post.
type LikeRepository struct {
	store *DocumentStore
	clock contract.Clock
}

func NewLikeRepository(store *DocumentStore, clock contract.Clock) *LikeRepository {
	return &LikeRepository{store: store, clock: clock}
}

func likeID(postID, userID string) string {
	return postID + "/" + userID
}

// Like is idempotent: liking twice writes a single document.
func (r *LikeRepository) Like(ctx context.Context, postID, userID string) error {
	_, err := r.store.Create(ctx, LikesCollection, likeID(postID, userID), map[string]any{
		"postId":  postID,
		"userId":  userID,
		"likedAt": r.clock.Now(),
	})
	return err
}

// Unlike is idempotent: removing an absent like writes nothing.
func (r *LikeRepository) Unlike(ctx context.Context, postID, userID string) error {
	_, err := r.store.DeleteIfExists(ctx, LikesCollection, likeID(postID, userID))
	return err
}

func (r *LikeRepository) LikesCount(ctx context.Context, postID string) (int, error) {
	fields, err := r.store.Get(ctx, PostsCollection, postID)
	if err != nil {
		return 0, err
	}
	return intField(fields, "likesCount"), nil
}

// RecountLikes stores the number of like documents of the post as its likesCount.
func (r *LikeRepository) RecountLikes(ctx context.Context, postID string) (int, error) {
	count, err := r.store.Count(ctx, LikesCollection, likeID(postID, ""))
	if err != nil {
		return 0, err
	}
	err = r.store.Update(ctx, PostsCollection, postID, func(fields map[string]any) error {
		if _, ok := fields["likesCount"]; ok && intField(fields, "likesCount") == count {
			return errNoChange
		}
		fields["likesCount"] = count
		return nil
	})
	return count, err
}

// RecountAll recounts every liked post and every post still carrying a likesCount,
// so likes written while nothing was watching are reflected.
func (r *LikeRepository) RecountAll(ctx context.Context) error {
	likeIDs, err := r.store.IDs(ctx, LikesCollection, "")
	if err != nil {
		return err
	}
	postIDs, err := r.store.IDs(ctx, PostsCollection, "")
	if err != nil {
		return err
	}
	liked := lo.FilterMap(likeIDs, func(id string, _ int) (string, bool) {
		postID, _, ok := strings.Cut(id, "/")
		return postID, ok
	})
	for _, postID := range lo.Uniq(append(liked, postIDs...)) {
		if _, err := r.RecountLikes(ctx, postID); err != nil {
			return fmt.Errorf("recount %s: %w", postID, err)
		}
	}
	return nil
}

// Watch reports like creations and removals.
func (r *LikeRepository) Watch(ctx context.Context, ready func(), fn func(domain.LikeChange)) error {
	return r.store.Watch(ctx, LikesCollection, ready, func(doc Document) {
		postID, userID, ok := strings.Cut(doc.ID, "/")
		if !ok {
			return
		}
		fn(domain.LikeChange{PostID: postID, UserID: userID, Removed: doc.Deleted})
	})
}
