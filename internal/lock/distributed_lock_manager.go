package lock

import "context"

// DistributedLockManager serialises work across processes sharing one store, such as schema
// migration.
type DistributedLockManager interface {
	Acquire(ctx context.Context, lockID int) error
	Release(ctx context.Context, lockID int) error
}
