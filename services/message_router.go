package services

import (
	"chat-relay/contract"
	"chat-relay/domain"
	"chat-relay/errors"
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"

	"github.com/go-playground/validator/v10"
)

const unknownSender = "Unknown"

type IMessageRouter interface {
	RoutePersonalMessage(ctx context.Context, msg domain.DirectMessage) (domain.Delivery, error)
}

// MessageRouter delivers a direct message live when the receiver is connected,
// otherwise it falls back to a push notification and bumps the unread counter.
type MessageRouter struct {
	log      *slog.Logger
	registry contract.IConnectionRegistry
	users    contract.IUserRepository
	chats    contract.IChatRepository
	gateway  contract.IPushGateway
	clock    contract.Clock
	validate *validator.Validate
}

func NewMessageRouter(
	log *slog.Logger,
	registry contract.IConnectionRegistry,
	users contract.IUserRepository,
	chats contract.IChatRepository,
	gateway contract.IPushGateway,
	clock contract.Clock,
) *MessageRouter {
	return &MessageRouter{
		log:      log,
		registry: registry,
		users:    users,
		chats:    chats,
		gateway:  gateway,
		clock:    clock,
		validate: validator.New(),
	}
}

// RoutePersonalMessage only returns an error for a malformed message.
// Push and store failures are logged and never reach the sender.
func (r *MessageRouter) RoutePersonalMessage(ctx context.Context, msg domain.DirectMessage) (domain.Delivery, error) {
	if err := r.validate.Struct(msg); err != nil {
		r.log.Warn("Dropping direct message", "error", err)
		return domain.DeliveryDropped, fmt.Errorf("%w: %v", errors.ErrMissingParticipants, err)
	}
	now := r.clock.Now()
	msg.MessageID = domain.NewMessageID(msg.Sender, now)
	msg.SentAt = now

	if r.deliverLive(msg) {
		return domain.DeliveryLive, nil
	}

	r.notifyOffline(ctx, msg)
	r.bumpUnread(ctx, msg)
	return domain.DeliveryOffline, nil
}

func (r *MessageRouter) deliverLive(msg domain.DirectMessage) bool {
	conn, ok := r.registry.Lookup(msg.Receiver)
	if !ok || !conn.IsOpen() {
		return false
	}
	payload, err := msg.Payload()
	if err != nil {
		r.log.Error("Failed to encode direct message", "message_id", msg.MessageID, "error", err)
		return false
	}
	if err := conn.Send(payload); err != nil {
		// Closed between the check and the write: treat the receiver as offline.
		r.log.Warn("Live delivery failed", "receiver", msg.Receiver, "connection", conn.ID(), "error", err)
		return false
	}
	r.log.Debug("Delivered live", "receiver", msg.Receiver, "message_id", msg.MessageID)
	return true
}

func (r *MessageRouter) notifyOffline(ctx context.Context, msg domain.DirectMessage) {
	receiver, err := r.users.GetUser(ctx, msg.Receiver)
	if err != nil {
		if !stderrors.Is(err, errors.ErrNotFound) {
			r.log.Error("Failed to read receiver profile", "receiver", msg.Receiver, "error", err)
		}
		return
	}
	if !receiver.HasPushToken() {
		r.log.Debug("Receiver has no push token", "receiver", msg.Receiver)
		return
	}

	push := chatPush(receiver.FCMToken, r.senderName(ctx, msg.Sender), msg)
	id, err := r.gateway.Send(ctx, push)
	switch {
	case err == nil:
		r.log.Debug("Push sent", "receiver", msg.Receiver, "push_id", id)
	case stderrors.Is(err, errors.ErrUnregisteredToken):
		r.log.Info("Clearing unregistered push token", "user", msg.Receiver)
		if err := r.users.ClearPushToken(ctx, msg.Receiver); err != nil {
			r.log.Error("Failed to clear push token", "user", msg.Receiver, "error", err)
		}
	default:
		r.log.Error("Push failed", "receiver", msg.Receiver, "error", err)
	}
}

func (r *MessageRouter) senderName(ctx context.Context, senderID string) string {
	sender, err := r.users.GetUser(ctx, senderID)
	if err != nil {
		if !stderrors.Is(err, errors.ErrNotFound) {
			r.log.Warn("Failed to read sender profile", "sender", senderID, "error", err)
		}
		return unknownSender
	}
	if sender.Name == "" {
		return unknownSender
	}
	return sender.Name
}

// bumpUnread increments the receiver's unread count unless the thread is open on their side.
// A missing thread counts as inactive; the increment creates it.
func (r *MessageRouter) bumpUnread(ctx context.Context, msg domain.DirectMessage) {
	chatID := domain.ChatID(msg.Sender, msg.Receiver)
	thread, err := r.chats.GetThread(ctx, chatID)
	if err != nil && !stderrors.Is(err, errors.ErrNotFound) {
		r.log.Error("Failed to read chat thread", "chat_id", chatID, "error", err)
		return
	}
	if thread.IsActive(msg.Receiver) {
		return
	}
	if err := r.chats.IncrementUnread(ctx, chatID, msg.Receiver, 1); err != nil {
		r.log.Error("Failed to increment unread count", "chat_id", chatID, "error", err)
	}
}
