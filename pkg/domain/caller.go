package domain

import dErrors "credreg/pkg/domain-errors"

// Role is one of the four registry roles. Roles are disjoint: a single
// identity holds exactly one.
type Role string

const (
	RoleAuthority   Role = "accreditation_authority"
	RoleInstitution Role = "institution"
	RoleTrackA      Role = "track_a_attestor"
	RoleTrackB      Role = "track_b_attestor"
)

func ParseRole(raw string) (Role, error) {
	r := Role(raw)
	switch r {
	case RoleAuthority, RoleInstitution, RoleTrackA, RoleTrackB:
		return r, nil
	}
	return "", dErrors.New(dErrors.CodeInvalidInput, "unknown role: "+raw)
}

// Caller is the authenticated party behind a registry call. InstitutionID is
// set only for RoleInstitution.
type Caller struct {
	Identity      Identity
	Role          Role
	InstitutionID InstitutionID
}

func (c Caller) IsZero() bool { return c.Identity.IsNil() }

func (c Caller) IsAuthority() bool { return c.Role == RoleAuthority }

// ActsFor reports whether c is the Institution role holder bound to inst.
func (c Caller) ActsFor(inst InstitutionID) bool {
	return c.Role == RoleInstitution && !inst.IsNil() && c.InstitutionID == inst
}

func (c Caller) IsAttestor() bool { return c.Role == RoleTrackA || c.Role == RoleTrackB }
