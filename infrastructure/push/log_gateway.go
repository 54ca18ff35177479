package push

import (
	"chat-relay/domain"
	"chat-relay/errors"
	"context"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"github.com/samber/lo"
)

// LogGateway is the development push gateway: it logs every notification instead of
// reaching a device platform. Revoked tokens answer like a real gateway would.
type LogGateway struct {
	log     *slog.Logger
	mu      sync.RWMutex
	revoked map[string]struct{}
	sent    []domain.PushMessage
}

func NewLogGateway(log *slog.Logger, revoked ...string) *LogGateway {
	return &LogGateway{
		log:     log,
		revoked: lo.SliceToMap(revoked, func(t string) (string, struct{}) { return t, struct{}{} }),
	}
}

func (g *LogGateway) Send(ctx context.Context, msg domain.PushMessage) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.revoked[msg.Token]; ok {
		g.log.Debug("Push rejected", "token", msg.Token)
		return "", errors.ErrUnregisteredToken
	}
	id := uuid.NewString()
	g.sent = append(g.sent, msg)
	g.log.Info("Push notification",
		"id", id,
		"title", msg.Notification.Title,
		"body", msg.Notification.Body,
		"data_keys", lo.Keys(msg.Data))
	return id, nil
}

// Revoke makes later sends to token fail as unregistered.
func (g *LogGateway) Revoke(token string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.revoked[token] = struct{}{}
}

// Sent returns every accepted notification in send order.
func (g *LogGateway) Sent() []domain.PushMessage {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return append([]domain.PushMessage(nil), g.sent...)
}
