//go:build integration

package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/suite"

	"credreg/internal/registry/models"
	"credreg/internal/sentinel"
	id "credreg/pkg/domain"
	"credreg/pkg/testutil"
	"credreg/pkg/testutil/containers"
)

type PostgresLedgerSuite struct {
	ledgerContractSuite
	postgres *containers.PostgresContainer
	pg       *Postgres
}

func TestPostgresLedgerSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(PostgresLedgerSuite))
}

func (s *PostgresLedgerSuite) SetupSuite() {
	s.postgres = containers.GetManager().GetPostgres(s.T())
	s.pg = NewPostgres(s.postgres.DB)
}

func (s *PostgresLedgerSuite) SetupTest() {
	s.ctx = context.Background()
	s.Require().NoError(s.postgres.TruncateRegistry(s.ctx))
	s.ledger = s.pg
}

func (s *PostgresLedgerSuite) TestPing() {
	s.NoError(s.pg.Ping(s.ctx))
}

func (s *PostgresLedgerSuite) TestConcurrentIssueSameIDHasOneWinner() {
	s.grant("uni-1")

	result := testutil.RunConcurrent(20, func(int) error {
		c := s.newCredential("cred-race", "alice", "uni-1")
		return s.pg.RunInTx(s.ctx, func(ctx context.Context) error {
			return s.pg.CreateCredential(ctx, c)
		})
	})

	// The losers surface the raw sentinel, so they count as errors here.
	s.Equal(int32(1), result.Successes)
	s.Equal(int32(19), result.Errors)

	var n int
	s.Require().NoError(s.postgres.QueryRow(s.ctx,
		`SELECT COUNT(*) FROM credentials WHERE credential_id = 'cred-race'`).Scan(&n))
	s.Equal(1, n)
}

func (s *PostgresLedgerSuite) TestConcurrentTransitionsSerializeHeight() {
	s.grant("uni-1")
	base, err := s.pg.Height(s.ctx)
	s.Require().NoError(err)

	result := testutil.RunConcurrent(10, func(idx int) error {
		c := s.newCredential(id.CredentialID("cred-"+string(rune('a'+idx))), "alice", "uni-1")
		ev, err := models.NewEvent(models.CredentialIssued{CredentialID: c.ID}, "inst", "", t0)
		if err != nil {
			return err
		}
		return s.pg.RunInTx(s.ctx, func(ctx context.Context) error {
			if err := s.pg.CreateCredential(ctx, c); err != nil {
				return err
			}
			return s.pg.AppendEvent(ctx, ev)
		})
	})
	s.Require().Equal(int32(10), result.Successes)

	events, err := s.pg.ListEvents(s.ctx, base, 0)
	s.Require().NoError(err)
	s.Require().Len(events, 10)
	seen := make(map[uint64]bool)
	for _, ev := range events {
		s.False(seen[ev.Height], "height %d assigned twice", ev.Height)
		seen[ev.Height] = true
	}
}

func (s *PostgresLedgerSuite) TestCredentialRequiresAccreditationRow() {
	err := s.pg.RunInTx(s.ctx, func(ctx context.Context) error {
		return s.pg.CreateCredential(ctx, s.newCredential("cred-1", "alice", "unknown"))
	})
	s.Require().Error(err)
	s.NotErrorIs(err, sentinel.ErrAlreadyUsed)
}
