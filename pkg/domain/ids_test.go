package domain

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "credreg/pkg/domain-errors"
)

// TestParseKey_Invariants validates "keys are non-empty, bounded and printable".
func TestParseKey_Invariants(t *testing.T) {
	t.Run("rejects empty string", func(t *testing.T) {
		_, err := ParseCredentialID("")
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	t.Run("rejects whitespace only", func(t *testing.T) {
		_, err := ParseInstitutionID("   ")
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	t.Run("rejects oversized key", func(t *testing.T) {
		_, err := ParseIdentity(strings.Repeat("a", MaxIDLength+1))
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	t.Run("rejects control characters", func(t *testing.T) {
		_, err := ParseCredentialID("cred\n1")
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	t.Run("trims and accepts opaque key", func(t *testing.T) {
		id, err := ParseCredentialID("  MSC-2024/0001 ")
		require.NoError(t, err)
		assert.Equal(t, CredentialID("MSC-2024/0001"), id)
		assert.False(t, id.IsNil())
	})
}

func TestEventID(t *testing.T) {
	a, b := NewEventID(), NewEventID()
	assert.False(t, a.IsNil())
	assert.NotEqual(t, a, b)
	assert.Len(t, a.String(), 36)
}

func TestCaller(t *testing.T) {
	inst := Caller{Identity: "registrar", Role: RoleInstitution, InstitutionID: "uni-1"}
	assert.True(t, inst.ActsFor("uni-1"))
	assert.False(t, inst.ActsFor("uni-2"))
	assert.False(t, inst.IsAuthority())

	// an institution binding without the institution role grants nothing
	fake := Caller{Identity: "val-a", Role: RoleTrackA, InstitutionID: "uni-1"}
	assert.False(t, fake.ActsFor("uni-1"))
	assert.True(t, fake.IsAttestor())

	assert.True(t, Caller{}.IsZero())

	_, err := ParseRole("admin")
	assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
}
