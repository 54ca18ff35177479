package workers

import (
	"chat-relay/contract"
	"chat-relay/errors"
	"chat-relay/runtime"
	"chat-relay/services"
	"context"
	stderrors "errors"
	"log/slog"
	"sync/atomic"
)

type FeedState int32

const (
	FeedStopped FeedState = iota
	FeedStarting
	FeedActive
	FeedBackoff
)

func (s FeedState) String() string {
	switch s {
	case FeedStarting:
		return "starting"
	case FeedActive:
		return "active"
	case FeedBackoff:
		return "backoff"
	default:
		return "stopped"
	}
}

// ChangeFeedListener drains the pending notification queue: send, then delete.
// Stopped -> Starting -> Active <-> Backoff. Every transition happens on the Run
// goroutine, driven by the queue subscription or a backoff timer.
type ChangeFeedListener struct {
	log     *slog.Logger
	queue   contract.INotificationQueue
	gateway contract.IPushGateway
	clock   contract.Clock
	policy  runtime.BackoffPolicy
	state   atomic.Int32
	running atomic.Bool
	retries int
}

func NewChangeFeedListener(
	log *slog.Logger,
	queue contract.INotificationQueue,
	gateway contract.IPushGateway,
	clock contract.Clock,
	policy runtime.BackoffPolicy,
) *ChangeFeedListener {
	return &ChangeFeedListener{log: log, queue: queue, gateway: gateway, clock: clock, policy: policy}
}

func (l *ChangeFeedListener) State() FeedState {
	return FeedState(l.state.Load())
}

// Run returns immediately when another Run is already in progress.
func (l *ChangeFeedListener) Run(ctx context.Context) error {
	if !l.running.CompareAndSwap(false, true) {
		l.log.Debug("Change feed already running", "state", l.State())
		return nil
	}
	defer l.running.Store(false)
	defer l.setState(FeedStopped)

	for {
		l.setState(FeedStarting)
		err := l.listen(ctx)
		if ctx.Err() != nil {
			return nil
		}
		delay, next := l.policy.Next(l.retries)
		l.retries = next
		l.setState(FeedBackoff)
		l.log.Warn("Change feed dropped, restarting", "error", err, "retry_in", delay, "failures", next)
		select {
		case <-ctx.Done():
			return nil
		case <-l.clock.After(delay):
		}
	}
}

// listen stays Starting until the queue confirms its subscription. The first drain runs
// only after that, so a request enqueued while subscribing is either listed or signalled.
func (l *ChangeFeedListener) listen(ctx context.Context) error {
	feedCtx, cancel := context.WithCancel(ctx)
	ready := make(chan struct{})
	changes := make(chan struct{}, 1)
	errc := make(chan error, 1)
	go func() {
		errc <- l.queue.Watch(feedCtx, func() { close(ready) }, func() {
			select {
			case changes <- struct{}{}:
			default:
			}
		})
	}()

	pending := ready
	for {
		select {
		case <-ctx.Done():
			cancel()
			<-errc
			return ctx.Err()
		case <-pending:
			pending = nil
			l.activate(ctx)
		case <-changes:
			// Before the subscription is confirmed the activation drain covers it
			if pending == nil {
				l.drain(ctx)
			}
		case err := <-errc:
			cancel()
			if pending != nil {
				select {
				case <-ready:
					l.activate(ctx)
				default:
				}
			}
			if err == nil {
				err = errors.ErrSubscriptionClosed
			}
			return err
		}
	}
}

func (l *ChangeFeedListener) activate(ctx context.Context) {
	l.setState(FeedActive)
	l.log.Debug("Change feed subscribed")
	l.drain(ctx)
}

// drain consumes every pending request once. A request without a token, or whose
// token is unregistered, is deleted unsent. Other send failures leave it queued.
func (l *ChangeFeedListener) drain(ctx context.Context) {
	items, err := l.queue.Pending(ctx)
	if err != nil {
		l.log.Error("Failed to read pending notifications", "error", err)
		return
	}
	delivered := 0
	for _, item := range items {
		if ctx.Err() != nil {
			return
		}
		if item.Token == "" {
			l.log.Warn("Dropping notification without token", "id", item.ID)
			l.ack(ctx, item.ID)
			continue
		}
		id, err := l.gateway.Send(ctx, services.QueuedPush(item))
		if stderrors.Is(err, errors.ErrUnregisteredToken) {
			l.log.Warn("Dropping notification for unregistered token", "id", item.ID)
			l.ack(ctx, item.ID)
			continue
		}
		if err != nil {
			l.log.Error("Failed to send queued notification", "id", item.ID, "error", err)
			continue
		}
		if l.ack(ctx, item.ID) {
			delivered++
			l.log.Debug("Queued notification sent", "id", item.ID, "push_id", id)
		}
	}
	if delivered > 0 {
		l.retries = 0
	}
}

func (l *ChangeFeedListener) ack(ctx context.Context, id string) bool {
	if err := l.queue.Delete(ctx, id); err != nil {
		l.log.Error("Failed to delete queued notification", "id", id, "error", err)
		return false
	}
	return true
}

func (l *ChangeFeedListener) setState(s FeedState) {
	l.state.Store(int32(s))
}
