package directory

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	id "credreg/pkg/domain"
	dErrors "credreg/pkg/domain-errors"
)

const sampleYAML = `
authorities: [authority-1]
institutions:
  uni-1: [registrar-1]
  uni-2: [registrar-2]
track_a: [reviewer-a1, reviewer-a2]
track_b: [reviewer-b1]
`

func TestLoadStatic(t *testing.T) {
	path := filepath.Join(t.TempDir(), "roles.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sampleYAML), 0o600))

	dir, err := LoadStatic(path)
	require.NoError(t, err)
	ctx := context.Background()

	t.Run("confirms held roles", func(t *testing.T) {
		for _, c := range []id.Caller{
			{Identity: "authority-1", Role: id.RoleAuthority},
			{Identity: "registrar-1", Role: id.RoleInstitution, InstitutionID: "uni-1"},
			{Identity: "reviewer-a2", Role: id.RoleTrackA},
			{Identity: "reviewer-b1", Role: id.RoleTrackB},
		} {
			assert.NoError(t, dir.Confirm(ctx, c), c.Identity)
		}
	})

	t.Run("refuses claims that are not held", func(t *testing.T) {
		for _, c := range []id.Caller{
			{Identity: "stranger", Role: id.RoleAuthority},
			{Identity: "reviewer-a1", Role: id.RoleTrackB},
			{Identity: "registrar-1", Role: id.RoleInstitution, InstitutionID: "uni-2"},
			{Identity: "registrar-1", Role: id.RoleAuthority},
		} {
			err := dir.Confirm(ctx, c)
			assert.True(t, dErrors.HasCode(err, dErrors.CodeUnauthorized), c.Identity)
		}
	})
}

func TestNewStatic_RejectsOverlappingRoles(t *testing.T) {
	_, err := NewStatic(File{
		TrackA: []string{"reviewer-1"},
		TrackB: []string{"reviewer-1"},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "reviewer-1")

	_, err = NewStatic(File{
		Institutions: map[string][]string{"uni-1": {"registrar"}},
		TrackA:       []string{"registrar"},
	})
	require.Error(t, err)
}

func TestLoadStatic_Errors(t *testing.T) {
	_, err := LoadStatic(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)

	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("track_a: {not: [a list"), 0o600))
	_, err = LoadStatic(path)
	require.Error(t, err)
}
