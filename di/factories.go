package di

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/RezaEskandarii/taskfire/internal/lock"
	"github.com/RezaEskandarii/taskfire/internal/message_broaker"
	"github.com/RezaEskandarii/taskfire/internal/store"
	"github.com/RezaEskandarii/taskfire/internal/store/memory"
	"github.com/RezaEskandarii/taskfire/internal/store/postgres"
	"github.com/RezaEskandarii/taskfire/types/config"
)

func createDistributedLockManager(driver config.StorageDriver, db *sql.DB) lock.DistributedLockManager {
	switch driver {
	case config.Postgres:
		return lock.NewPostgresDistributedLockManager(db)
	default:
		return nil
	}
}

func createTaskStore(driver config.StorageDriver, db *sql.DB, lockMgr lock.DistributedLockManager) (store.TaskStore, error) {
	switch driver {
	case config.Memory:
		return memory.NewMemoryTaskStore(), nil
	case config.Postgres:
		return postgres.NewPostgresTaskStore(db, lockMgr), nil
	default:
		return nil, fmt.Errorf("unsupported storage driver: %v", driver)
	}
}

func createMessageBroker(ctx context.Context, cfg *config.TaskfireConfig) (message_broaker.MessageBroker, error) {
	switch cfg.NotifierDriver {
	case config.NoNotifier:
		return nil, nil
	case config.RabbitMQ:
		rabbitCfg := cfg.RabbitMQConfig
		broker, err := message_broaker.NewRabbitMQ(rabbitCfg.URL, rabbitCfg.Exchange, rabbitCfg.Queue, rabbitCfg.RoutingKey)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize RabbitMQ: %w", err)
		}
		return broker, nil
	case config.Redis:
		redisCfg := cfg.RedisConfig
		client, err := openRedis(ctx, redisCfg.Address, redisCfg.Password, redisCfg.DB)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize Redis: %w", err)
		}
		return message_broaker.NewRedis(client, redisCfg.Prefix), nil
	default:
		return nil, fmt.Errorf("unsupported notifier driver: %v", cfg.NotifierDriver)
	}
}
