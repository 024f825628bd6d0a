package config

import (
	"fmt"
	"strings"
)

type StorageDriver int

const (
	Memory StorageDriver = iota + 1
	Postgres
)

// String converts the StorageDriver enum to a human-readable string.
func (d StorageDriver) String() string {
	switch d {
	case Memory:
		return "memory"
	case Postgres:
		return "postgres"
	}
	return "unknown"
}

func ParseStorageDriver(s string) (StorageDriver, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "memory":
		return Memory, nil
	case "postgres", "postgresql":
		return Postgres, nil
	}
	return 0, fmt.Errorf("unknown storage driver %q", s)
}

// NotifierDriver selects the transport task events are published on.
type NotifierDriver int

const (
	NoNotifier NotifierDriver = iota
	RabbitMQ
	Redis
)

func (d NotifierDriver) String() string {
	switch d {
	case NoNotifier:
		return "none"
	case RabbitMQ:
		return "rabbitmq"
	case Redis:
		return "redis"
	default:
		return "unknown"
	}
}

func ParseNotifierDriver(s string) (NotifierDriver, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "none":
		return NoNotifier, nil
	case "rabbitmq", "amqp":
		return RabbitMQ, nil
	case "redis":
		return Redis, nil
	}
	return 0, fmt.Errorf("unknown notifier driver %q", s)
}
