package storage

import (
	"chat-relay/domain"
	"context"
)

const UsersCollection = "users"

type UserRepository struct {
	store *DocumentStore
}

func NewUserRepository(store *DocumentStore) *UserRepository {
	return &UserRepository{store: store}
}

func (r *UserRepository) GetUser(ctx context.Context, userID string) (domain.User, error) {
	fields, err := r.store.Get(ctx, UsersCollection, userID)
	if err != nil {
		return domain.User{}, err
	}
	return domain.User{
		ID:       userID,
		Name:     stringField(fields, "name"),
		FCMToken: stringField(fields, "fcmToken"),
	}, nil
}

// SaveUser merges name and token into the profile, leaving other fields untouched.
func (r *UserRepository) SaveUser(ctx context.Context, user domain.User) error {
	return r.store.Update(ctx, UsersCollection, user.ID, func(fields map[string]any) error {
		fields["name"] = user.Name
		if user.FCMToken != "" {
			fields["fcmToken"] = user.FCMToken
		}
		return nil
	})
}

// ClearPushToken removes the stored token. It is idempotent and never creates a profile.
func (r *UserRepository) ClearPushToken(ctx context.Context, userID string) error {
	return r.store.Update(ctx, UsersCollection, userID, func(fields map[string]any) error {
		if _, ok := fields["fcmToken"]; !ok {
			return errNoChange
		}
		delete(fields, "fcmToken")
		return nil
	})
}
