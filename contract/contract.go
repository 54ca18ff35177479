//go:generate go run go.uber.org/mock/mockgen -source=contract.go -destination=../mocks/mock_contract.go -package=mocks
package contract

import (
	"chat-relay/domain"
	"context"
	"reflect"
	"time"
)

type ISupervisor interface {
	Add(worker ...Worker) ISupervisor
	Run(ctx context.Context)
	Start(ctx context.Context, worker Worker)
	Stop()
}

// Worker doesn't protect itself
// Can be silly, focused
type Worker interface {
	Run(ctx context.Context) error
}

// GetWorkerName uses reflection to retrieve the type name of the worker.
// This is used for logging and supervision purposes during worker initialization
// or lifecycle events, avoiding the need for manual naming in the Worker interface.
func GetWorkerName(w Worker) string {
	if w == nil {
		return "NilWorker"
	}
	t := reflect.TypeOf(w)
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return t.Name()
}

// Conn is a live bidirectional connection to one user.
type Conn interface {
	ID() string
	IsOpen() bool
	Send(payload []byte) error
}

type IConnectionRegistry interface {
	Register(userID string, conn Conn)
	Lookup(userID string) (Conn, bool)
	Remove(userID string)
	Release(userID string, conn Conn) bool
	Count() int
}

// IPushGateway delivers a notification to a device token.
// A stale token is reported as errors.ErrUnregisteredToken.
type IPushGateway interface {
	Send(ctx context.Context, msg domain.PushMessage) (string, error)
}

type IUserRepository interface {
	GetUser(ctx context.Context, userID string) (domain.User, error)
	SaveUser(ctx context.Context, user domain.User) error
	ClearPushToken(ctx context.Context, userID string) error
}

type IChatRepository interface {
	GetThread(ctx context.Context, chatID string) (domain.ChatThread, error)
	IncrementUnread(ctx context.Context, chatID, userID string, delta int) error
	SetActive(ctx context.Context, chatID, userID string, active bool) error
}

type IGroupRepository interface {
	CreateGroup(ctx context.Context, group domain.GroupChat) (string, error)
	GetGroup(ctx context.Context, groupID string) (domain.GroupChat, error)
}

type IAnnouncementRepository interface {
	AddPost(ctx context.Context, post domain.AnnouncementPost) (string, error)
	ListRecent(ctx context.Context, limit int) ([]domain.AnnouncementPost, error)
	// WatchLatest blocks and calls fn with the newest post once the subscription is live,
	// then every time the collection changes.
	WatchLatest(ctx context.Context, fn func(domain.AnnouncementPost)) error
}

type INotificationQueue interface {
	Enqueue(ctx context.Context, n domain.PendingNotification) (string, error)
	Pending(ctx context.Context) ([]domain.PendingNotification, error)
	Delete(ctx context.Context, id string) error
	// Watch blocks and calls onChange whenever the queue receives a write.
	// ready is called once, after which no write can be missed.
	// It returns when ctx is done or the underlying stream fails.
	Watch(ctx context.Context, ready func(), onChange func()) error
}

type ILikeRepository interface {
	Like(ctx context.Context, postID, userID string) error
	Unlike(ctx context.Context, postID, userID string) error
	LikesCount(ctx context.Context, postID string) (int, error)
	// RecountLikes sets likesCount from the like documents of the post.
	RecountLikes(ctx context.Context, postID string) (int, error)
	// RecountAll recounts every post that has likes or a stored likesCount.
	RecountAll(ctx context.Context) error
	Watch(ctx context.Context, ready func(), fn func(domain.LikeChange)) error
}

// EventWriter is one streaming subscriber. An empty event name writes a default data event.
type EventWriter interface {
	WriteEvent(event string, data any) error
}

type Clock interface {
	Now() time.Time
	After(d time.Duration) <-chan time.Time
	NewTicker(d time.Duration) Ticker
}

type Ticker interface {
	C() <-chan time.Time
	Stop()
}
