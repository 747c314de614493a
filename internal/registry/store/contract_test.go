package store

import (
	"context"
	"errors"
	"time"

	"github.com/stretchr/testify/suite"

	"credreg/internal/registry/consensus"
	"credreg/internal/registry/models"
	"credreg/internal/sentinel"
	id "credreg/pkg/domain"
	dErrors "credreg/pkg/domain-errors"
)

// ledger is the method set both implementations share.
type ledger interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
	View(ctx context.Context, fn func(ctx context.Context) error) error
	Height(ctx context.Context) (uint64, error)
	FindCredential(ctx context.Context, cid id.CredentialID) (*models.Credential, error)
	ListCredentialsBySubject(ctx context.Context, subject id.Identity) ([]*models.Credential, error)
	CreateCredential(ctx context.Context, c *models.Credential) error
	UpdateCredential(ctx context.Context, c *models.Credential) error
	FindAccreditation(ctx context.Context, inst id.InstitutionID) (*models.AccreditationRecord, error)
	SaveAccreditation(ctx context.Context, a *models.AccreditationRecord) error
	AppendEvent(ctx context.Context, ev *models.Event) error
	ListEvents(ctx context.Context, afterHeight uint64, limit int) ([]*models.Event, error)
	FetchUnprocessed(ctx context.Context, limit int) ([]*models.Event, error)
	MarkProcessed(ctx context.Context, eid id.EventID, at time.Time) error
	CountPending(ctx context.Context) (int64, error)
	Ping(ctx context.Context) error
}

var (
	_ ledger = (*Memory)(nil)
	_ ledger = (*Postgres)(nil)
)

var t0 = time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)

// ledgerContractSuite exercises the behaviour both ledgers must share.
// Embedding suites set newLedger and reset state in SetupTest.
type ledgerContractSuite struct {
	suite.Suite
	ctx    context.Context
	ledger ledger
}

func (s *ledgerContractSuite) grant(inst id.InstitutionID) *models.AccreditationRecord {
	a, err := models.NewAccreditation(models.GrantParams{
		InstitutionID:        inst,
		ExpiresAt:            t0.AddDate(1, 0, 0),
		CertificateReference: "CERT-1",
		TrackAAttestors:      []id.Identity{"att-a"},
		TrackBAttestors:      []id.Identity{"att-b"},
		GrantedBy:            "authority",
	}, t0)
	s.Require().NoError(err)
	s.Require().NoError(s.ledger.RunInTx(s.ctx, func(ctx context.Context) error {
		return s.ledger.SaveAccreditation(ctx, a)
	}))
	return a
}

func (s *ledgerContractSuite) newCredential(cid id.CredentialID, subject id.Identity, inst id.InstitutionID) *models.Credential {
	c, err := models.NewCredential(models.NewCredentialParams{
		ID:            cid,
		Subject:       subject,
		InstitutionID: inst,
		Class:         models.ClassAdvancedDegree,
		ContentHash:   "sha256:abc",
		IssuedBy:      "inst-issuer",
	}, t0)
	s.Require().NoError(err)
	return c
}

func (s *ledgerContractSuite) issue(c *models.Credential) {
	ev, err := models.NewEvent(models.CredentialIssued{
		CredentialID:  c.ID,
		Subject:       c.Subject,
		InstitutionID: c.InstitutionID,
		Class:         c.Class,
	}, c.IssuedBy, "req-1", t0)
	s.Require().NoError(err)
	s.Require().NoError(s.ledger.RunInTx(s.ctx, func(ctx context.Context) error {
		if err := s.ledger.CreateCredential(ctx, c); err != nil {
			return err
		}
		return s.ledger.AppendEvent(ctx, ev)
	}))
}

func (s *ledgerContractSuite) TestCredentialRoundTrip() {
	s.grant("uni-1")
	c := s.newCredential("cred-1", "alice", "uni-1")
	s.issue(c)

	got, err := s.ledger.FindCredential(s.ctx, "cred-1")
	s.Require().NoError(err)
	s.Equal(c.Subject, got.Subject)
	s.Equal(consensus.StatePending, got.ValidationState)
	s.Equal(models.StatusActive, got.Status)
	s.Nil(got.ExpiresAt)
	s.Nil(got.TrackAAttestor)
}

func (s *ledgerContractSuite) TestCreateDuplicateReturnsAlreadyUsed() {
	s.grant("uni-1")
	s.issue(s.newCredential("cred-1", "alice", "uni-1"))

	err := s.ledger.RunInTx(s.ctx, func(ctx context.Context) error {
		return s.ledger.CreateCredential(ctx, s.newCredential("cred-1", "bob", "uni-1"))
	})
	s.Require().ErrorIs(err, sentinel.ErrAlreadyUsed)

	got, err := s.ledger.FindCredential(s.ctx, "cred-1")
	s.Require().NoError(err)
	s.Equal(id.Identity("alice"), got.Subject, "first issuance must survive")
}

func (s *ledgerContractSuite) TestFindMissing() {
	_, err := s.ledger.FindCredential(s.ctx, "nope")
	s.ErrorIs(err, sentinel.ErrNotFound)

	_, err = s.ledger.FindAccreditation(s.ctx, "nope")
	s.ErrorIs(err, sentinel.ErrNotFound)
}

func (s *ledgerContractSuite) TestUpdateMissingReturnsNotFound() {
	err := s.ledger.RunInTx(s.ctx, func(ctx context.Context) error {
		return s.ledger.UpdateCredential(ctx, s.newCredential("ghost", "alice", "uni-1"))
	})
	s.ErrorIs(err, sentinel.ErrNotFound)
}

func (s *ledgerContractSuite) TestWriteOutsideTxFails() {
	err := s.ledger.SaveAccreditation(s.ctx, &models.AccreditationRecord{InstitutionID: "uni-1"})
	s.ErrorIs(err, errOutsideTx)
}

func (s *ledgerContractSuite) TestVotesPersistInOrder() {
	s.grant("uni-1")
	c := s.newCredential("cred-1", "alice", "uni-1")
	s.issue(c)

	s.Require().NoError(c.Attest(consensus.TrackA, "att-a", true, t0.Add(time.Minute)))
	s.Require().NoError(s.ledger.RunInTx(s.ctx, func(ctx context.Context) error {
		return s.ledger.UpdateCredential(ctx, c)
	}))
	s.Require().NoError(c.Attest(consensus.TrackB, "att-b", true, t0.Add(2*time.Minute)))
	s.Require().NoError(s.ledger.RunInTx(s.ctx, func(ctx context.Context) error {
		return s.ledger.UpdateCredential(ctx, c)
	}))

	got, err := s.ledger.FindCredential(s.ctx, "cred-1")
	s.Require().NoError(err)
	s.Equal(consensus.StateFullyValidated, got.ValidationState)
	s.Require().Len(got.Votes, 2)
	s.Equal(consensus.TrackA, got.Votes[0].Track)
	s.Equal(consensus.TrackB, got.Votes[1].Track)
	s.Require().NotNil(got.TrackBAttestor)
	s.Equal(id.Identity("att-b"), *got.TrackBAttestor)
}

func (s *ledgerContractSuite) TestRollbackOnError() {
	s.grant("uni-1")
	before, err := s.ledger.Height(s.ctx)
	s.Require().NoError(err)

	boom := errors.New("boom")
	err = s.ledger.RunInTx(s.ctx, func(ctx context.Context) error {
		if err := s.ledger.CreateCredential(ctx, s.newCredential("cred-1", "alice", "uni-1")); err != nil {
			return err
		}
		return boom
	})
	s.Require().ErrorIs(err, boom)

	_, err = s.ledger.FindCredential(s.ctx, "cred-1")
	s.ErrorIs(err, sentinel.ErrNotFound)
	after, err := s.ledger.Height(s.ctx)
	s.Require().NoError(err)
	s.Equal(before, after)
}

func (s *ledgerContractSuite) TestHeightAdvancesOnlyOnWrites() {
	h0, err := s.ledger.Height(s.ctx)
	s.Require().NoError(err)

	s.Require().NoError(s.ledger.RunInTx(s.ctx, func(ctx context.Context) error {
		_, err := s.ledger.FindCredential(ctx, "cred-1")
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil
		}
		return err
	}))
	h1, err := s.ledger.Height(s.ctx)
	s.Require().NoError(err)
	s.Equal(h0, h1)

	s.grant("uni-1")
	h2, err := s.ledger.Height(s.ctx)
	s.Require().NoError(err)
	s.Equal(h0+1, h2)
}

func (s *ledgerContractSuite) TestNestedRunInTxJoinsOuter() {
	s.grant("uni-1")
	boom := errors.New("boom")
	err := s.ledger.RunInTx(s.ctx, func(ctx context.Context) error {
		if err := s.ledger.RunInTx(ctx, func(ctx context.Context) error {
			return s.ledger.CreateCredential(ctx, s.newCredential("cred-1", "alice", "uni-1"))
		}); err != nil {
			return err
		}
		return boom
	})
	s.Require().ErrorIs(err, boom)

	_, err = s.ledger.FindCredential(s.ctx, "cred-1")
	s.ErrorIs(err, sentinel.ErrNotFound, "inner write must roll back with the outer transaction")
}

func (s *ledgerContractSuite) TestCancelledContextTimesOut() {
	ctx, cancel := context.WithCancel(s.ctx)
	cancel()
	err := s.ledger.RunInTx(ctx, func(context.Context) error { return nil })
	s.True(dErrors.HasCode(err, dErrors.CodeTimeout))
}

func (s *ledgerContractSuite) TestListBySubjectInIssuanceOrder() {
	s.grant("uni-1")
	for _, cid := range []id.CredentialID{"cred-2", "cred-1", "cred-3"} {
		s.issue(s.newCredential(cid, "alice", "uni-1"))
	}
	s.issue(s.newCredential("cred-bob", "bob", "uni-1"))

	list, err := s.ledger.ListCredentialsBySubject(s.ctx, "alice")
	s.Require().NoError(err)
	s.Require().Len(list, 3)
	s.Equal([]id.CredentialID{"cred-2", "cred-1", "cred-3"},
		[]id.CredentialID{list[0].ID, list[1].ID, list[2].ID})

	empty, err := s.ledger.ListCredentialsBySubject(s.ctx, "nobody")
	s.Require().NoError(err)
	s.Empty(empty)
}

func (s *ledgerContractSuite) TestAccreditationUpsert() {
	a := s.grant("uni-1")
	s.Require().NoError(a.Endorse(consensus.TrackA, "att-a2", t0.Add(time.Hour)))
	s.Require().NoError(s.ledger.RunInTx(s.ctx, func(ctx context.Context) error {
		return s.ledger.SaveAccreditation(ctx, a)
	}))

	got, err := s.ledger.FindAccreditation(s.ctx, "uni-1")
	s.Require().NoError(err)
	s.Equal([]id.Identity{"att-a", "att-a2"}, got.TrackAAttestors)
	s.Equal([]id.Identity{"att-b"}, got.TrackBAttestors)
	s.True(got.IsActiveAt(t0.Add(time.Hour)))
}

func (s *ledgerContractSuite) TestEventsCarryCommitHeight() {
	s.grant("uni-1")
	s.issue(s.newCredential("cred-1", "alice", "uni-1"))
	s.issue(s.newCredential("cred-2", "alice", "uni-1"))

	h, err := s.ledger.Height(s.ctx)
	s.Require().NoError(err)

	events, err := s.ledger.ListEvents(s.ctx, 0, 0)
	s.Require().NoError(err)
	s.Require().Len(events, 2)
	s.Equal(h-1, events[0].Height)
	s.Equal(h, events[1].Height)
	s.Equal(models.EventCredentialIssued, events[0].Type)

	after, err := s.ledger.ListEvents(s.ctx, h-1, 10)
	s.Require().NoError(err)
	s.Require().Len(after, 1)
	s.Equal("cred-2", after[0].AggregateID)
}

func (s *ledgerContractSuite) TestOutboxDelivery() {
	s.grant("uni-1")
	s.issue(s.newCredential("cred-1", "alice", "uni-1"))
	s.issue(s.newCredential("cred-2", "alice", "uni-1"))

	pending, err := s.ledger.CountPending(s.ctx)
	s.Require().NoError(err)
	s.Equal(int64(2), pending)

	batch, err := s.ledger.FetchUnprocessed(s.ctx, 1)
	s.Require().NoError(err)
	s.Require().Len(batch, 1)
	s.Equal("cred-1", batch[0].AggregateID)

	s.Require().NoError(s.ledger.MarkProcessed(s.ctx, batch[0].ID, t0.Add(time.Minute)))
	s.ErrorIs(s.ledger.MarkProcessed(s.ctx, batch[0].ID, t0.Add(time.Minute)), sentinel.ErrAlreadyUsed)
	s.ErrorIs(s.ledger.MarkProcessed(s.ctx, id.NewEventID(), t0), sentinel.ErrNotFound)

	batch, err = s.ledger.FetchUnprocessed(s.ctx, 10)
	s.Require().NoError(err)
	s.Require().Len(batch, 1)
	s.Equal("cred-2", batch[0].AggregateID)

	all, err := s.ledger.ListEvents(s.ctx, 0, 0)
	s.Require().NoError(err)
	s.False(all[0].IsPending())
	s.True(all[1].IsPending())
}
