package storage

import (
	"chat-relay/contract"
	"chat-relay/domain"
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/samber/lo"
)

const AdminPostsCollection = "admin_posts"

// AnnouncementRepository stores admin posts under "{timestamp_padded}_{uuid}" ids:
// the 19-digit zero padding keeps the key order chronological.
type AnnouncementRepository struct {
	store *DocumentStore
	clock contract.Clock
}

func NewAnnouncementRepository(store *DocumentStore, clock contract.Clock) *AnnouncementRepository {
	return &AnnouncementRepository{store: store, clock: clock}
}

// AddPost stamps the post with the server time and returns its id.
func (r *AnnouncementRepository) AddPost(ctx context.Context, post domain.AnnouncementPost) (string, error) {
	at := r.clock.Now().UTC()
	id := fmt.Sprintf("%019d_%s", at.UnixNano(), uuid.NewString())
	category := post.Category
	if category == "" {
		category = domain.DefaultCategory
	}
	err := r.store.Set(ctx, AdminPostsCollection, id, map[string]any{
		"text":      post.Text,
		"email":     post.AuthorEmail,
		"imageUrl":  post.ImageURL,
		"category":  category,
		"timestamp": at,
	})
	if err != nil {
		return "", err
	}
	return id, nil
}

// ListRecent returns up to limit posts, newest first.
func (r *AnnouncementRepository) ListRecent(ctx context.Context, limit int) ([]domain.AnnouncementPost, error) {
	docs, err := r.store.List(ctx, AdminPostsCollection, true, limit)
	if err != nil {
		return nil, err
	}
	return lo.Map(docs, func(doc Document, _ int) domain.AnnouncementPost {
		return toAnnouncementPost(doc)
	}), nil
}

// WatchLatest re-reads the single newest post once the subscription is registered and
// then on every write to the collection. The first call may repeat a post the caller
// already has.
func (r *AnnouncementRepository) WatchLatest(ctx context.Context, fn func(domain.AnnouncementPost)) error {
	emitLatest := func() {
		latest, err := r.ListRecent(ctx, 1)
		if err != nil {
			r.store.log.Warn("Failed to read latest announcement", "error", err)
			return
		}
		if len(latest) == 0 {
			return
		}
		fn(latest[0])
	}
	return r.store.Watch(ctx, AdminPostsCollection, emitLatest, func(Document) {
		emitLatest()
	})
}

func toAnnouncementPost(doc Document) domain.AnnouncementPost {
	post := domain.AnnouncementPost{
		ID:          doc.ID,
		Text:        stringField(doc.Fields, "text"),
		AuthorEmail: stringField(doc.Fields, "email"),
		Category:    stringField(doc.Fields, "category"),
		Timestamp:   timeField(doc.Fields, "timestamp"),
	}
	if url := stringField(doc.Fields, "imageUrl"); url != "" {
		post.ImageURL = lo.ToPtr(url)
	}
	return post
}
