package storage

import (
	"chat-relay/domain"
	"context"

	"github.com/google/uuid"
)

const GroupChatsCollection = "groupChats"

type GroupRepository struct {
	store *DocumentStore
}

func NewGroupRepository(store *DocumentStore) *GroupRepository {
	return &GroupRepository{store: store}
}

// CreateGroup persists the group under a generated id and returns it.
func (r *GroupRepository) CreateGroup(ctx context.Context, group domain.GroupChat) (string, error) {
	groupID := uuid.NewString()
	err := r.store.Set(ctx, GroupChatsCollection, groupID, map[string]any{
		"groupName":     group.GroupName,
		"members":       group.Members,
		"lastMessage":   group.LastMessage,
		"lastTimestamp": group.LastTimestamp,
	})
	if err != nil {
		return "", err
	}
	return groupID, nil
}

func (r *GroupRepository) GetGroup(ctx context.Context, groupID string) (domain.GroupChat, error) {
	fields, err := r.store.Get(ctx, GroupChatsCollection, groupID)
	if err != nil {
		return domain.GroupChat{}, err
	}
	return domain.GroupChat{
		GroupID:       groupID,
		GroupName:     stringField(fields, "groupName"),
		Members:       stringSliceField(fields, "members"),
		LastMessage:   stringField(fields, "lastMessage"),
		LastTimestamp: timeField(fields, "lastTimestamp"),
	}, nil
}
