package integration

import (
	"context"
	"fmt"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/kafka"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

// Env holds the backing services a workflow test needs: postgres for the
// catalog, ledger and outbox, kafka for events, redis for the replay cache.
type Env struct {
	PG        *postgres.PostgresContainer
	Kafka     *kafka.KafkaContainer
	Redis     testcontainers.Container
	PGURL     string
	KAddr     []string
	RedisAddr string
	cancel    context.CancelFunc
}

func Setup(ctx context.Context) (env *Env, err error) {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	env = &Env{cancel: cancel}
	defer func() {
		if err != nil {
			env.Teardown(context.Background())
		}
	}()

	env.PG, err = postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("shopflow"),
		postgres.WithUsername("postgres"),
		postgres.WithPassword("postgres"),
	)
	if err != nil {
		return nil, err
	}
	env.PGURL, err = env.PG.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		return nil, err
	}

	env.Kafka, err = kafka.Run(ctx,
		"confluentinc/confluent-local:7.5.0",
		kafka.WithClusterID("shopflow-test"),
	)
	if err != nil {
		return nil, err
	}
	env.KAddr, err = env.Kafka.Brokers(ctx)
	if err != nil {
		return nil, err
	}

	env.Redis, err = testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForListeningPort("6379/tcp"),
		},
		Started: true,
	})
	if err != nil {
		return nil, err
	}
	host, err := env.Redis.Host(ctx)
	if err != nil {
		return nil, err
	}
	port, err := env.Redis.MappedPort(ctx, "6379/tcp")
	if err != nil {
		return nil, err
	}
	env.RedisAddr = fmt.Sprintf("%s:%s", host, port.Port())

	return env, nil
}

func (e *Env) Teardown(ctx context.Context) {
	if e.Redis != nil {
		_ = e.Redis.Terminate(ctx)
	}
	if e.Kafka != nil {
		_ = e.Kafka.Terminate(ctx)
	}
	if e.PG != nil {
		_ = e.PG.Terminate(ctx)
	}
	e.cancel()
}
