package testutil

import (
	"context"
	"fmt"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
)

// Postgres описывает запущенный testcontainer с PostgreSQL.
type Postgres struct {
	container *postgres.PostgresContainer
	DSN       string
}

// StartPostgres запускает PostgreSQL 16 через модуль postgres
// (BasicWaitStrategies: log occurrence(2) + port check) и возвращает DSN.
// Миграции не применяются: это делает вызывающий код.
func StartPostgres(ctx context.Context) (*Postgres, error) {
	container, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("testdb"),
		postgres.WithUsername("test"),
		postgres.WithPassword("test"),
		postgres.BasicWaitStrategies(),
	)
	if err != nil {
		return nil, fmt.Errorf("starting postgres container: %w", err)
	}

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		_ = testcontainers.TerminateContainer(container)
		return nil, fmt.Errorf("getting connection string: %w", err)
	}

	return &Postgres{container: container, DSN: dsn}, nil
}

// Terminate останавливает контейнер.
func (p *Postgres) Terminate() error {
	return testcontainers.TerminateContainer(p.container)
}
