//go:generate go run go.uber.org/mock/mockgen -source=contract.go -destination=../mocks/mock_contract.go -package=mocks
package contract

import (
	"chat-session/domain"
	"chat-session/domain/event"
	"context"
	"reflect"
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

// EventSink is the UI collaborator. Consume is called from the engine goroutine
// and must not block for long.
type EventSink interface {
	Consume(ctx context.Context, e event.DomainEvent) error
}

// Dialer establishes a new transport connection.
type Dialer interface {
	Dial(ctx context.Context) (Transport, error)
}

// Transport is a publish/subscribe channel addressed by hierarchical destination names.
type Transport interface {
	Subscribe(ctx context.Context, destination string) (Subscription, error)
	Publish(ctx context.Context, destination string, payload []byte) error
	// Done is closed once the underlying connection is gone, whatever the reason.
	Done() <-chan struct{}
	Close() error
}

// Subscription delivers frames of one destination in transport order.
// Frames is never closed, consumers select on Done as well.
type Subscription interface {
	Frames() <-chan []byte
	Done() <-chan struct{}
	Unsubscribe() error
}

// HistoryFetcher returns at most limit of the most recent entries of a room, oldest first.
type HistoryFetcher interface {
	FetchHistory(ctx context.Context, roomID domain.RoomID, limit int) ([]domain.TimelineEntry, error)
}

// Confirmer asks the user before destructive protocol actions.
type Confirmer interface {
	ConfirmExit(ctx context.Context, room domain.Room) bool
	// ConfirmKick returns the kick reason, ok is false when the user cancelled.
	ConfirmKick(ctx context.Context, target domain.Participant) (reason string, ok bool)
}
