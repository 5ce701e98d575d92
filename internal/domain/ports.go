package domain

import "context"

// SnapshotStore keeps the whole AppState in one durable slot. Load never
// fails: a missing or unreadable snapshot yields the default state. Save
// overwrites the slot and only logs on failure.
type SnapshotStore interface {
	Load(ctx context.Context) AppState
	Save(ctx context.Context, state AppState)
}

// RemoteStore is the shared store all gates replicate to. Upsert is keyed by
// each row's id and idempotent. rows is one of the table slices of AppState.
type RemoteStore interface {
	FetchAll(ctx context.Context) (RemoteSnapshot, error)
	Upsert(ctx context.Context, table string, rows any) error
}

// EventPublisher announces lifecycle outcomes to other systems. Publishing is
// best effort.
type EventPublisher interface {
	PublishJSON(ctx context.Context, key string, v any) error
}
