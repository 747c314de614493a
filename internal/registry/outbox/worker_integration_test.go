//go:build integration

package outbox_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"credreg/internal/platform/kafka/producer"
	"credreg/internal/registry/models"
	"credreg/internal/registry/outbox"
	"credreg/internal/registry/store"
	"credreg/pkg/testutil/containers"
)

type WorkerIntegrationSuite struct {
	suite.Suite
	postgres *containers.PostgresContainer
	kafka    *containers.KafkaContainer
	producer *producer.Producer
	ledger   *store.Postgres
}

func TestWorkerIntegrationSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(WorkerIntegrationSuite))
}

func (s *WorkerIntegrationSuite) SetupSuite() {
	mgr := containers.GetManager()
	s.postgres = mgr.GetPostgres(s.T())
	s.kafka = mgr.GetKafka(s.T())
	s.ledger = store.NewPostgres(s.postgres.DB)

	prod, err := producer.New(producer.Config{Brokers: s.kafka.Brokers, DeliveryTimeout: 10 * time.Second}, nil)
	s.Require().NoError(err)
	s.producer = prod
}

func (s *WorkerIntegrationSuite) TearDownSuite() {
	if s.producer != nil {
		_ = s.producer.Close()
	}
}

func (s *WorkerIntegrationSuite) SetupTest() {
	s.Require().NoError(s.postgres.TruncateRegistry(context.Background()))
}

func (s *WorkerIntegrationSuite) TestCommittedEventReachesKafka() {
	ctx := context.Background()
	topic := "registry-outbox-it"
	s.Require().NoError(s.kafka.CreateEventTopic(ctx, topic))

	ev, err := models.NewEvent(models.AccreditationRevoked{InstitutionID: "uni-1", RevokedBy: "authority", Reason: "audit"},
		"authority", "req-1", time.Now())
	s.Require().NoError(err)
	s.Require().NoError(s.ledger.RunInTx(ctx, func(ctx context.Context) error {
		return s.ledger.AppendEvent(ctx, ev)
	}))

	w := outbox.New(s.ledger, s.producer, outbox.WithTopic(topic))
	s.Equal(1, w.Poll(ctx))

	records, err := s.kafka.ReadEvents(ctx, topic, 1, 10*time.Second)
	s.Require().NoError(err)
	record := records[0]
	s.Equal(ev.ID.String(), string(record.Key))
	s.Equal(string(models.EventAccreditationRevoked), containers.Headers(record)["event_type"])

	var payload models.AccreditationRevoked
	s.Require().NoError(json.Unmarshal(record.Value, &payload))
	s.Equal("audit", payload.Reason)

	pending, err := s.ledger.CountPending(ctx)
	s.Require().NoError(err)
	s.Zero(pending)
}
