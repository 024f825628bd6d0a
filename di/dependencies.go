package di

import (
	"context"
	"database/sql"
	"errors"

	"github.com/RezaEskandarii/taskfire/internal/lock"
	"github.com/RezaEskandarii/taskfire/internal/message_broaker"
	"github.com/RezaEskandarii/taskfire/internal/store"
	"github.com/RezaEskandarii/taskfire/types/config"
)

// Dependencies holds the infrastructure a queue manager runs on. LockMgr and MessageBroker are
// nil when the configuration does not call for them.
type Dependencies struct {
	DB            *sql.DB
	TaskStore     store.TaskStore
	LockMgr       lock.DistributedLockManager
	MessageBroker message_broaker.MessageBroker
}

// GetDependencies creates the storage backend, lock manager and message broker selected by cfg.
func GetDependencies(ctx context.Context, cfg *config.TaskfireConfig) (*Dependencies, error) {
	var db *sql.DB
	if cfg.StorageDriver == config.Postgres {
		var err error
		if db, err = openPostgres(cfg.PostgresConfig.ConnectionUrl); err != nil {
			return nil, err
		}
	}

	lockMgr := createDistributedLockManager(cfg.StorageDriver, db)
	taskStore, err := createTaskStore(cfg.StorageDriver, db, lockMgr)
	if err != nil {
		return nil, err
	}

	broker, err := createMessageBroker(ctx, cfg)
	if err != nil {
		if db != nil {
			_ = db.Close()
		}
		return nil, err
	}

	return &Dependencies{
		DB:            db,
		TaskStore:     taskStore,
		LockMgr:       lockMgr,
		MessageBroker: broker,
	}, nil
}

// Close releases the message broker and then the database.
func (d *Dependencies) Close() error {
	var errs []error
	if d.MessageBroker != nil {
		errs = append(errs, d.MessageBroker.Close())
	}
	if d.DB != nil {
		errs = append(errs, d.DB.Close())
	}
	return errors.Join(errs...)
}
