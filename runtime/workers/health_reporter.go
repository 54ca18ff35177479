package workers

import (
	"chat-relay/contract"
	"chat-relay/observability"
	"context"
	"log/slog"
	"time"

	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

type feedStater interface {
	State() FeedState
}

// HealthReporter samples the process and publishes the serving status:
// the relay is SERVING only while the change feed is active.
type HealthReporter struct {
	log        *slog.Logger
	health     *health.Server
	feed       feedStater
	monitoring *observability.MonitoringManager
	clock      contract.Clock
	interval   time.Duration
	service    string
}

func NewHealthReporter(
	log *slog.Logger,
	health *health.Server,
	feed feedStater,
	monitoring *observability.MonitoringManager,
	clock contract.Clock,
	interval time.Duration,
	service string,
) *HealthReporter {
	return &HealthReporter{
		log:        log,
		health:     health,
		feed:       feed,
		monitoring: monitoring,
		clock:      clock,
		interval:   interval,
		service:    service,
	}
}

func (w *HealthReporter) Run(ctx context.Context) error {
	ticker := w.clock.NewTicker(w.interval)
	defer ticker.Stop()
	w.report()
	for {
		select {
		case <-ctx.Done():
			w.health.Shutdown()
			return nil
		case <-ticker.C():
			w.report()
		}
	}
}

func (w *HealthReporter) report() {
	stats := w.monitoring.Refresh()
	state := w.feed.State()
	status := healthpb.HealthCheckResponse_NOT_SERVING
	if state == FeedActive {
		status = healthpb.HealthCheckResponse_SERVING
	}
	w.health.SetServingStatus("", status)
	w.health.SetServingStatus(w.service, status)
	w.log.Debug("Health reported",
		"status", status.String(),
		"change_feed", state.String(),
		"rss_bytes", stats.RSSBytes,
		"cpu_percent", stats.CPUPercent,
		"goroutines", stats.Goroutines)
}
