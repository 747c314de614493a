package validation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "credreg/pkg/domain-errors"
)

type sample struct {
	CredentialID string   `json:"credential_id" validate:"required,notblank,max=128"`
	Track        string   `validate:"required,oneof=A B"`
	ExpiresAt    string   `validate:"omitempty,rfc3339"`
	Attestors    []string `json:"track_a_attestors,omitempty" validate:"max=2,dive,notblank"`
}

func TestValidate(t *testing.T) {
	valid := sample{CredentialID: "c1", Track: "A", ExpiresAt: "2026-01-02T15:04:05Z"}

	t.Run("accepts valid struct", func(t *testing.T) {
		require.NoError(t, Validate(valid))
	})

	cases := []struct {
		name   string
		mutate func(*sample)
		msg    string
	}{
		{"missing id", func(s *sample) { s.CredentialID = "" }, "credential_id is required"},
		{"blank id", func(s *sample) { s.CredentialID = "   " }, "credential_id must not be blank"},
		{"unknown track", func(s *sample) { s.Track = "C" }, "track must be one of [A B]"},
		{"bad timestamp", func(s *sample) { s.ExpiresAt = "tomorrow" }, "expires_at must be an RFC 3339 timestamp"},
		{"too many attestors", func(s *sample) { s.Attestors = []string{"a", "b", "c"} }, "track_a_attestors must be at most 2"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := valid
			tc.mutate(&req)
			err := Validate(req)
			require.Error(t, err)
			assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
			assert.Equal(t, tc.msg, err.Error())
		})
	}
}

func TestValidate_ReportsEveryField(t *testing.T) {
	err := Validate(sample{Track: "C"})

	require.Error(t, err)
	assert.Equal(t, "credential_id is required; track must be one of [A B]", err.Error())
}

func TestValidate_BlankAttestorEntry(t *testing.T) {
	err := Validate(sample{CredentialID: "c1", Track: "B", Attestors: []string{"validator-a", " "}})

	require.Error(t, err)
	assert.Equal(t, "track_a_attestors[1] must not be blank", err.Error())
}
