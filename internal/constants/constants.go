package constants

// Advisory lock ids used against the postgres store.
const (
	MigrationLock = iota + 7100
	RecoveryLock
)

const (
	MaxNumberOfRetries = 3
	MaxNumberOfTries   = 3
	NumberOfThreads    = 4
)

// DatabasePrefix is prepended to the storage key to derive the physical store name.
const DatabasePrefix = "TaskDatabase_"
