package producer

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRequiresBrokers(t *testing.T) {
	_, err := New(Config{Brokers: " , "}, nil)
	require.Error(t, err)
}

func TestSplitBrokers(t *testing.T) {
	assert.Equal(t, []string{"a:9092", "b:9092"}, splitBrokers(" a:9092,, b:9092 "))
	assert.Empty(t, splitBrokers(""))
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig("b1:9092,b2:9092")
	assert.Equal(t, "all", cfg.Acks)
	assert.Equal(t, 3, cfg.Retries)
	assert.Equal(t, []string{"b1:9092", "b2:9092"}, splitBrokers(cfg.Brokers))
}

func TestPingAfterClose(t *testing.T) {
	p, err := New(DefaultConfig("127.0.0.1:1"), nil)
	require.NoError(t, err)
	require.NoError(t, p.Close())
	assert.ErrorIs(t, p.Ping(context.Background()), ErrClosed)
}

func TestToRecordSortsHeaders(t *testing.T) {
	r := toRecord(&Message{
		Topic: "credreg.registry.events",
		Key:   []byte("evt-1"),
		Value: []byte(`{}`),
		Headers: map[string]string{
			"ledger_height":  "7",
			"event_type":     "CredentialIssued",
			"aggregate_type": "credential",
		},
	})

	require.Len(t, r.Headers, 3)
	assert.Equal(t, "aggregate_type", r.Headers[0].Key)
	assert.Equal(t, "event_type", r.Headers[1].Key)
	assert.Equal(t, "ledger_height", r.Headers[2].Key)
	assert.Equal(t, "7", string(r.Headers[2].Value))
	assert.Equal(t, "evt-1", string(r.Key))
}

func TestProduceAfterCloseWithoutBroker(t *testing.T) {
	p, err := New(Config{Brokers: "127.0.0.1:1"}, nil)
	require.NoError(t, err)
	require.NoError(t, p.Close())
	assert.ErrorIs(t, p.Produce(context.Background(), &Message{Topic: "t"}), ErrClosed)
}
