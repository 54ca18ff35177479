package storage

import (
	"chat-relay/domain"
	"context"
)

const ChatsCollection = "chats"

type ChatRepository struct {
	store *DocumentStore
}

func NewChatRepository(store *DocumentStore) *ChatRepository {
	return &ChatRepository{store: store}
}

// GetThread returns errors.ErrNotFound when no thread document exists yet.
func (r *ChatRepository) GetThread(ctx context.Context, chatID string) (domain.ChatThread, error) {
	fields, err := r.store.Get(ctx, ChatsCollection, chatID)
	if err != nil {
		return domain.ChatThread{ChatID: chatID}, err
	}
	thread := domain.ChatThread{
		ChatID:      chatID,
		UnreadCount: map[string]int{},
		ActiveUsers: map[string]bool{},
	}
	unread := mapField(fields, "unreadCount")
	for userID := range unread {
		thread.UnreadCount[userID] = intField(unread, userID)
	}
	for userID, active := range mapField(fields, "activeUsers") {
		if b, ok := active.(bool); ok {
			thread.ActiveUsers[userID] = b
		}
	}
	return thread, nil
}

// IncrementUnread adds delta to unreadCount[userID] inside one store transaction.
func (r *ChatRepository) IncrementUnread(ctx context.Context, chatID, userID string, delta int) error {
	return r.store.Update(ctx, ChatsCollection, chatID, func(fields map[string]any) error {
		unread := mapField(fields, "unreadCount")
		unread[userID] = intField(unread, userID) + delta
		fields["unreadCount"] = unread
		return nil
	})
}

func (r *ChatRepository) SetActive(ctx context.Context, chatID, userID string, active bool) error {
	return r.store.Update(ctx, ChatsCollection, chatID, func(fields map[string]any) error {
		activeUsers := mapField(fields, "activeUsers")
		activeUsers[userID] = active
		fields["activeUsers"] = activeUsers
		return nil
	})
}
