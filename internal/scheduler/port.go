package scheduler

import "context"

// PersistencePort is the durable storage abstraction the Core writes
// through. Implementations own the physical namespace layout (object store
// prefixes, local disk, in-memory map) but must honor the same semantics:
// SavePending/LoadPending/LoadAllPending/DeletePending operate on the
// pending namespace; WriteSuccess/WriteFailed append to their respective
// log namespaces and never need deleting.
type PersistencePort interface {
	SavePending(ctx context.Context, state MessageState) error
	LoadPending(ctx context.Context, messageID string) (*MessageState, bool, error)
	LoadAllPending(ctx context.Context) ([]MessageState, error)
	DeletePending(ctx context.Context, messageID string) error

	WriteSuccess(ctx context.Context, state MessageState) error
	WriteFailed(ctx context.Context, state MessageState) error

	RecentSuccess(ctx context.Context, limit int) ([]MessageState, error)
	RecentFailed(ctx context.Context, limit int) ([]MessageState, error)
}

// SendPort attempts delivery of a message, returning whether it succeeded.
// A non-nil error is treated identically to a false return -- a recoverable
// send failure, not a scheduler fault. Implementations must not mutate msg.
type SendPort func(ctx context.Context, msg Message) (bool, error)
