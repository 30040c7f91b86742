package queue

import "context"

const (
	// DispatchQueueName carries batch dispatch-run requests.
	DispatchQueueName = "certificates.dispatch"
	// DispatchDLQName receives run requests rejected as unparseable.
	DispatchDLQName = "dlq.certificates.dispatch"
)

// Publisher publishes dispatch-run messages to the work queue.
type Publisher interface {
	Publish(ctx context.Context, queue string, msg DispatchMessage) error
	Close() error
}

// MessageHandler handles a consumed dispatch-run message.
type MessageHandler func(ctx context.Context, msg DispatchMessage) error

// Consumer consumes dispatch-run messages from a queue.
type Consumer interface {
	Consume(ctx context.Context, queue string, handler MessageHandler) error
	Close() error
}
