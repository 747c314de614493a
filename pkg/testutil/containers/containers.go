//go:build integration

// Package containers starts the backing services integration tests run
// against. Each service is started once per test binary and shared; Ryuk
// removes the containers when the process exits.
package containers

import (
	"sync"
	"testing"
)

// Manager hands out the shared containers of one test binary.
type Manager struct {
	postgres lazy[PostgresContainer]
	kafka    lazy[KafkaContainer]
	redis    lazy[RedisContainer]
}

var shared Manager

// GetManager returns the process-wide manager.
func GetManager() *Manager { return &shared }

func (m *Manager) GetPostgres(t *testing.T) *PostgresContainer {
	t.Helper()
	return m.postgres.get(t, NewPostgresContainer)
}

func (m *Manager) GetKafka(t *testing.T) *KafkaContainer {
	t.Helper()
	return m.kafka.get(t, NewKafkaContainer)
}

func (m *Manager) GetRedis(t *testing.T) *RedisContainer {
	t.Helper()
	return m.redis.get(t, NewRedisContainer)
}

// lazy starts its container on first use. A failed start is not cached, so
// the next suite retries instead of inheriting a nil container.
type lazy[T any] struct {
	mu sync.Mutex
	v  *T
}

func (l *lazy[T]) get(t *testing.T, start func(*testing.T) *T) *T {
	t.Helper()
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.v == nil {
		l.v = start(t)
	}
	return l.v
}
