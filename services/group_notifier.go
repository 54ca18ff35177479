package services

import (
	"chat-relay/contract"
	"chat-relay/domain"
	"chat-relay/errors"
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"log/slog"

	"github.com/go-playground/validator/v10"
	"github.com/samber/lo"
)

type IGroupNotifier interface {
	CreateGroup(ctx context.Context, cmd CreateGroupCommand) (string, error)
	SendGroupMessage(ctx context.Context, msg domain.GroupMessage) error
}

type CreateGroupCommand struct {
	GroupName string   `validate:"required"`
	Members   []string `validate:"required,min=1,dive,required"`
}

type GroupNotifier struct {
	log      *slog.Logger
	registry contract.IConnectionRegistry
	groups   contract.IGroupRepository
	users    contract.IUserRepository
	gateway  contract.IPushGateway
	clock    contract.Clock
	validate *validator.Validate
}

func NewGroupNotifier(
	log *slog.Logger,
	registry contract.IConnectionRegistry,
	groups contract.IGroupRepository,
	users contract.IUserRepository,
	gateway contract.IPushGateway,
	clock contract.Clock,
) *GroupNotifier {
	return &GroupNotifier{
		log:      log,
		registry: registry,
		groups:   groups,
		users:    users,
		gateway:  gateway,
		clock:    clock,
		validate: validator.New(),
	}
}

// CreateGroup persists the group then announces it to every member with a live connection.
// Offline members discover it on their next read.
func (g *GroupNotifier) CreateGroup(ctx context.Context, cmd CreateGroupCommand) (string, error) {
	if err := g.validate.Struct(cmd); err != nil {
		return "", fmt.Errorf("%w: %v", errors.ErrInvalidGroup, err)
	}
	members := lo.Uniq(cmd.Members)
	groupID, err := g.groups.CreateGroup(ctx, domain.GroupChat{
		GroupName:     cmd.GroupName,
		Members:       members,
		LastTimestamp: g.clock.Now(),
	})
	if err != nil {
		return "", fmt.Errorf("create group: %w", err)
	}

	frame, err := json.Marshal(domain.NewGroupFrame{
		Type:      domain.FrameNewGroup,
		GroupID:   groupID,
		GroupName: cmd.GroupName,
	})
	if err != nil {
		return groupID, err
	}
	announced := 0
	for _, member := range members {
		conn, ok := g.registry.Lookup(member)
		if !ok || !conn.IsOpen() {
			continue
		}
		if err := conn.Send(frame); err != nil {
			g.log.Warn("Failed to announce group", "member", member, "group_id", groupID, "error", err)
			continue
		}
		announced++
	}
	g.log.Info("Group created", "group_id", groupID, "members", len(members), "announced", announced)
	return groupID, nil
}

// SendGroupMessage pushes one group message to the token the client supplied.
// Only validation failures are returned.
func (g *GroupNotifier) SendGroupMessage(ctx context.Context, msg domain.GroupMessage) error {
	if err := g.validate.Struct(msg); err != nil {
		g.log.Warn("Dropping group message", "error", err)
		return fmt.Errorf("%w: %v", errors.ErrMissingGroupFields, err)
	}
	id, err := g.gateway.Send(ctx, groupPush(msg))
	switch {
	case err == nil:
		g.log.Debug("Group push sent", "group_id", msg.GroupID, "push_id", id)
	case stderrors.Is(err, errors.ErrUnregisteredToken):
		if msg.ReceiverID == "" {
			g.log.Warn("Unregistered token without receiver id", "group_id", msg.GroupID)
			return nil
		}
		g.log.Info("Clearing unregistered push token", "user", msg.ReceiverID)
		if err := g.users.ClearPushToken(ctx, msg.ReceiverID); err != nil {
			g.log.Error("Failed to clear push token", "user", msg.ReceiverID, "error", err)
		}
	default:
		g.log.Error("Group push failed", "group_id", msg.GroupID, "error", err)
	}
	return nil
}
