// Package directory answers "does this identity currently hold this role" for
// the caller middleware. Roles are disjoint: an identity found in more than
// one role is refused.
package directory

import (
	"fmt"

	id "credreg/pkg/domain"
	dErrors "credreg/pkg/domain-errors"
)

func notHeld(c id.Caller) error {
	if c.Role == id.RoleInstitution {
		return dErrors.New(dErrors.CodeUnauthorized,
			fmt.Sprintf("%s is not an institution role holder for %s", c.Identity, c.InstitutionID))
	}
	return dErrors.New(dErrors.CodeUnauthorized, fmt.Sprintf("%s does not hold role %s", c.Identity, c.Role))
}

func conflicting(c id.Caller) error {
	return dErrors.New(dErrors.CodeUnauthorized, fmt.Sprintf("%s holds more than one registry role", c.Identity))
}
