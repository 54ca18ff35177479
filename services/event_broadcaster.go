package services

import (
	"chat-relay/contract"
	"chat-relay/domain"
	"context"
	"log/slog"
	"time"
)

const (
	EventConnected = "connected"
	EventHeartbeat = "heartbeat"
	EventError     = "error"
)

type connectedPayload struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
}

type heartbeatPayload struct {
	Timestamp string `json:"timestamp"`
}

// emptyPayload tells a fresh subscriber there is nothing to replay.
type emptyPayload struct {
	Type  string                       `json:"type"`
	Posts []domain.AnnouncementPayload `json:"posts"`
}

type errorPayload struct {
	Error string `json:"error"`
}

type IEventBroadcaster interface {
	Serve(ctx context.Context, w contract.EventWriter) error
}

// EventBroadcaster streams admin announcements to one subscriber per Serve call.
// Dedup state lives in Serve, so subscribers never affect each other.
type EventBroadcaster struct {
	log       *slog.Logger
	posts     contract.IAnnouncementRepository
	clock     contract.Clock
	heartbeat time.Duration
	limit     int
}

func NewEventBroadcaster(
	log *slog.Logger,
	posts contract.IAnnouncementRepository,
	clock contract.Clock,
	heartbeat time.Duration,
	limit int,
) *EventBroadcaster {
	return &EventBroadcaster{log: log, posts: posts, clock: clock, heartbeat: heartbeat, limit: limit}
}

// Serve blocks until ctx is done, the writer fails or the live subscription drops.
// The subscription and the heartbeat ticker are released before it returns.
func (b *EventBroadcaster) Serve(ctx context.Context, w contract.EventWriter) error {
	ctx, cancel := context.WithCancel(ctx)

	if err := w.WriteEvent(EventConnected, connectedPayload{Status: "connected", Timestamp: b.stamp()}); err != nil {
		cancel()
		return err
	}
	lastSent, err := b.replay(ctx, w)
	if err != nil {
		cancel()
		return err
	}

	latest := make(chan domain.AnnouncementPost, 16)
	watchErr := make(chan error, 1)
	done := make(chan struct{})
	go func() {
		defer close(done)
		watchErr <- b.posts.WatchLatest(ctx, func(post domain.AnnouncementPost) {
			select {
			case latest <- post:
			case <-ctx.Done():
			}
		})
	}()
	defer func() {
		cancel()
		<-done
	}()

	ticker := b.clock.NewTicker(b.heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case post := <-latest:
			// The subscription opens with the current newest post, usually the replayed one
			if post.ID == lastSent {
				continue
			}
			if err := w.WriteEvent("", post.ToPayload(b.clock.Now())); err != nil {
				return err
			}
			lastSent = post.ID
		case <-ticker.C():
			if err := w.WriteEvent(EventHeartbeat, heartbeatPayload{Timestamp: b.stamp()}); err != nil {
				return err
			}
		case err := <-watchErr:
			if ctx.Err() != nil {
				return nil
			}
			b.log.Warn("Announcement subscription dropped", "error", err)
			_ = w.WriteEvent(EventError, errorPayload{Error: "announcement subscription closed"})
			return err
		}
	}
}

// replay sends the most recent posts, newest first, and returns the id of the newest one.
// A failed read is logged and the stream goes on with live updates only.
func (b *EventBroadcaster) replay(ctx context.Context, w contract.EventWriter) (string, error) {
	posts, err := b.posts.ListRecent(ctx, b.limit)
	if err != nil {
		b.log.Error("Failed to fetch recent announcements", "error", err)
		return "", nil
	}
	if len(posts) == 0 {
		return "", w.WriteEvent("", emptyPayload{Type: "empty", Posts: []domain.AnnouncementPayload{}})
	}
	now := b.clock.Now()
	for _, post := range posts {
		if err := w.WriteEvent("", post.ToPayload(now)); err != nil {
			return "", err
		}
	}
	return posts[0].ID, nil
}

func (b *EventBroadcaster) stamp() string {
	return b.clock.Now().UTC().Format(time.RFC3339)
}
