package observability

import (
	"chat-relay/domain"
	"log/slog"
	"os"
	"testing"

	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
)

func TestMonitoringManager(t *testing.T) {
	req := require.New(t)
	mm, err := NewMonitoringManager(logs.GetLoggerFromLevel(slog.LevelDebug))
	req.NoError(err)

	mm.RecordDelivery(domain.DeliveryLive)
	mm.RecordDelivery(domain.DeliveryLive)
	mm.RecordDelivery(domain.DeliveryOffline)
	mm.RecordDelivery(domain.DeliveryDropped)
	req.Equal(DeliveryStats{Live: 2, Offline: 1, Dropped: 1}, mm.Deliveries())

	stats := mm.Refresh()
	req.Equal(int32(os.Getpid()), stats.Pid)
	req.NotZero(stats.RSSBytes)
	req.Equal(stats, mm.Latest())
}
