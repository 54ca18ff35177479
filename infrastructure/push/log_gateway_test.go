package push

import (
	"chat-relay/domain"
	"chat-relay/errors"
	"context"
	"log/slog"
	"testing"

	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
)

func TestLogGateway_Send(t *testing.T) {
	req := require.New(t)
	gateway := NewLogGateway(logs.GetLoggerFromLevel(slog.LevelDebug), "revoked")

	// A live token is accepted
	id, err := gateway.Send(context.Background(), domain.PushMessage{Token: "live", Notification: domain.Notification{Title: "t"}})
	req.NoError(err)
	req.NotEmpty(id)

	// A revoked token reports unregistered
	_, err = gateway.Send(context.Background(), domain.PushMessage{Token: "revoked"})
	req.ErrorIs(err, errors.ErrUnregisteredToken)

	// Revoking later applies to the next sends
	gateway.Revoke("live")
	_, err = gateway.Send(context.Background(), domain.PushMessage{Token: "live"})
	req.ErrorIs(err, errors.ErrUnregisteredToken)

	req.Len(gateway.Sent(), 1)
}
