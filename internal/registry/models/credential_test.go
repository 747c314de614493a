package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"credreg/internal/registry/consensus"
	id "credreg/pkg/domain"
	dErrors "credreg/pkg/domain-errors"
)

var t0 = time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)

func newTestCredential(t *testing.T, class CredentialClass) *Credential {
	t.Helper()
	c, err := NewCredential(NewCredentialParams{
		ID:            "cred-1",
		Subject:       "student-1",
		InstitutionID: "uni-1",
		Class:         class,
		ContentHash:   "bafy...",
	}, t0)
	require.NoError(t, err)
	return c
}

func TestNewCredential(t *testing.T) {
	t.Run("dual track classes start pending", func(t *testing.T) {
		c := newTestCredential(t, ClassAdvancedDegree)
		assert.Equal(t, consensus.StatePending, c.ValidationState)
		assert.Equal(t, StatusActive, c.Status)
		assert.Equal(t, t0, c.IssuedAt)
	})

	t.Run("course completion is validated at issuance", func(t *testing.T) {
		c := newTestCredential(t, ClassCourseCompletion)
		assert.Equal(t, consensus.StateFullyValidated, c.ValidationState)
		assert.Nil(t, c.TrackAAttestor)
		assert.Nil(t, c.TrackBAttestor)
	})

	t.Run("rejects expiry not after issuance", func(t *testing.T) {
		exp := t0
		_, err := NewCredential(NewCredentialParams{
			ID: "c", Subject: "s", InstitutionID: "i", Class: ClassBaseCertification, ExpiresAt: &exp,
		}, t0)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidExpiry))
	})

	t.Run("rejects unknown class", func(t *testing.T) {
		_, err := NewCredential(NewCredentialParams{ID: "c", Subject: "s", InstitutionID: "i", Class: "Diploma"}, t0)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})
}

func TestCredential_Attest(t *testing.T) {
	t.Run("both tracks approve", func(t *testing.T) {
		c := newTestCredential(t, ClassTranscriptRecord)
		require.NoError(t, c.Attest(consensus.TrackA, "val-a", true, t0))
		assert.Equal(t, consensus.StateTrackAApproved, c.ValidationState)
		require.NoError(t, c.Attest(consensus.TrackB, "val-b", true, t0))
		assert.Equal(t, consensus.StateFullyValidated, c.ValidationState)
		assert.Equal(t, id.Identity("val-a"), *c.TrackAAttestor)
		assert.Equal(t, id.Identity("val-b"), *c.TrackBAttestor)
		assert.Len(t, c.Votes, 2)
	})

	t.Run("rejection suspends", func(t *testing.T) {
		c := newTestCredential(t, ClassTranscriptRecord)
		require.NoError(t, c.Attest(consensus.TrackB, "val-b", false, t0))
		assert.Equal(t, consensus.StateRejected, c.ValidationState)
		assert.Equal(t, StatusSuspended, c.Status)
	})

	t.Run("same attestor twice on a track is refused", func(t *testing.T) {
		c := newTestCredential(t, ClassTranscriptRecord)
		require.NoError(t, c.Attest(consensus.TrackA, "val-a", true, t0))
		err := c.Attest(consensus.TrackA, "val-a", false, t0)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeDuplicateAttestation))
		assert.Equal(t, consensus.StateTrackAApproved, c.ValidationState)
		assert.Len(t, c.Votes, 1)
	})

	t.Run("another attestor on the same track replaces the latest voter", func(t *testing.T) {
		c := newTestCredential(t, ClassTranscriptRecord)
		require.NoError(t, c.Attest(consensus.TrackA, "val-a1", true, t0))
		require.NoError(t, c.Attest(consensus.TrackA, "val-a2", true, t0))
		assert.Equal(t, consensus.StateTrackAApproved, c.ValidationState)
		assert.Equal(t, id.Identity("val-a2"), *c.TrackAAttestor)
	})

	t.Run("revoked credential refuses votes", func(t *testing.T) {
		c := newTestCredential(t, ClassTranscriptRecord)
		require.NoError(t, c.Revoke("authority", "fraud", t0))
		err := c.Attest(consensus.TrackA, "val-a", true, t0)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidState))
		assert.Equal(t, consensus.StatePending, c.ValidationState)
	})

	t.Run("rejected credential never becomes validated", func(t *testing.T) {
		c := newTestCredential(t, ClassTranscriptRecord)
		require.NoError(t, c.Attest(consensus.TrackA, "val-a", false, t0))
		err := c.Attest(consensus.TrackB, "val-b", true, t0)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidState))
		assert.Equal(t, consensus.StateRejected, c.ValidationState)
	})
}

func TestCredential_Revoke(t *testing.T) {
	c := newTestCredential(t, ClassCourseCompletion)
	require.NoError(t, c.Revoke("uni-admin", "issued in error", t0.Add(time.Hour)))
	assert.Equal(t, StatusRevoked, c.Status)
	assert.Equal(t, consensus.StateFullyValidated, c.ValidationState)
	assert.Equal(t, id.Identity("uni-admin"), c.RevokedBy)
	require.NotNil(t, c.RevokedAt)

	err := c.Revoke("uni-admin", "again", t0.Add(2*time.Hour))
	assert.True(t, dErrors.HasCode(err, dErrors.CodeAlreadyRevoked))
	assert.Equal(t, "issued in error", c.RevocationReason)
}

func TestCredential_EffectiveStatus(t *testing.T) {
	exp := t0.Add(24 * time.Hour)
	c, err := NewCredential(NewCredentialParams{
		ID: "c", Subject: "s", InstitutionID: "i", Class: ClassCourseCompletion, ExpiresAt: &exp,
	}, t0)
	require.NoError(t, err)

	assert.Equal(t, StatusActive, c.EffectiveStatus(exp.Add(-time.Second)))
	assert.Equal(t, StatusExpired, c.EffectiveStatus(exp))
	assert.Equal(t, StatusActive, c.Status)

	require.NoError(t, c.Revoke("a", "r", t0))
	assert.Equal(t, StatusRevoked, c.EffectiveStatus(exp.Add(time.Hour)))
}

func TestCredential_CloneIsDeep(t *testing.T) {
	c := newTestCredential(t, ClassTranscriptRecord)
	require.NoError(t, c.Attest(consensus.TrackA, "val-a", true, t0))

	cp := c.Clone()
	require.NoError(t, cp.Attest(consensus.TrackB, "val-b", true, t0))
	*cp.TrackAAttestor = "mutated"

	assert.Equal(t, consensus.StateTrackAApproved, c.ValidationState)
	assert.Len(t, c.Votes, 1)
	assert.Nil(t, c.TrackBAttestor)
	assert.Equal(t, id.Identity("val-a"), *c.TrackAAttestor)
}
