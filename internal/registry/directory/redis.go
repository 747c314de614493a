package directory

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	id "credreg/pkg/domain"
)

const keyPrefix = "credreg:"

func roleKey(r id.Role) string { return keyPrefix + "roles:" + string(r) }

func institutionKey(inst id.InstitutionID) string {
	return keyPrefix + "roles:institution:" + inst.String()
}

// bindingsKey indexes the institutions an identity is bound to, so claims
// of a global role can see institution membership without scanning.
func bindingsKey(ident id.Identity) string {
	return keyPrefix + "identity:" + ident.String() + ":institutions"
}

func revokedKey(jti string) string { return keyPrefix + "revoked_jti:" + jti }

// Redis keeps role membership in Redis sets so an external authorization
// layer can add and remove holders without restarting the registry.
//
//	credreg:roles:accreditation_authority   SET of identities
//	credreg:roles:track_a_attestor          SET of identities
//	credreg:roles:track_b_attestor          SET of identities
//	credreg:roles:institution:<inst>        SET of identities bound to <inst>
//	credreg:identity:<ident>:institutions   SET of institutions <ident> is bound to
//	credreg:revoked_jti:<jti>               revoked token marker
type Redis struct {
	client redis.UniversalClient
}

func NewRedis(client redis.UniversalClient) *Redis {
	return &Redis{client: client}
}

// Confirm checks the claimed role and that the identity holds no other
// role, institution bindings included. One pipeline round trip per call.
func (d *Redis) Confirm(ctx context.Context, c id.Caller) error {
	global := []id.Role{id.RoleAuthority, id.RoleTrackA, id.RoleTrackB}

	pipe := d.client.Pipeline()
	checks := make(map[id.Role]*redis.BoolCmd, len(global)+1)
	for _, r := range global {
		checks[r] = pipe.SIsMember(ctx, roleKey(r), c.Identity.String())
	}
	if c.Role == id.RoleInstitution {
		checks[id.RoleInstitution] = pipe.SIsMember(ctx, institutionKey(c.InstitutionID), c.Identity.String())
	}
	bindings := pipe.SCard(ctx, bindingsKey(c.Identity))
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("role directory lookup: %w", err)
	}

	claimed, ok := checks[c.Role]
	if !ok || !claimed.Val() {
		return notHeld(c)
	}
	for r, cmd := range checks {
		if r != c.Role && cmd.Val() {
			return conflicting(c)
		}
	}
	// An institution claim accounts for exactly one binding.
	allowed := int64(0)
	if c.Role == id.RoleInstitution {
		allowed = 1
	}
	if bindings.Val() > allowed {
		return conflicting(c)
	}
	return nil
}

// Assign adds c to its role set. Used for seeding development environments.
func (d *Redis) Assign(ctx context.Context, c id.Caller) error {
	if c.Role != id.RoleInstitution {
		return d.client.SAdd(ctx, roleKey(c.Role), c.Identity.String()).Err()
	}
	pipe := d.client.TxPipeline()
	pipe.SAdd(ctx, institutionKey(c.InstitutionID), c.Identity.String())
	pipe.SAdd(ctx, bindingsKey(c.Identity), c.InstitutionID.String())
	_, err := pipe.Exec(ctx)
	return err
}

// Remove drops c from its role set.
func (d *Redis) Remove(ctx context.Context, c id.Caller) error {
	if c.Role != id.RoleInstitution {
		return d.client.SRem(ctx, roleKey(c.Role), c.Identity.String()).Err()
	}
	pipe := d.client.TxPipeline()
	pipe.SRem(ctx, institutionKey(c.InstitutionID), c.Identity.String())
	pipe.SRem(ctx, bindingsKey(c.Identity), c.InstitutionID.String())
	_, err := pipe.Exec(ctx)
	return err
}

// IsTokenRevoked implements the middleware's revocation check.
func (d *Redis) IsTokenRevoked(ctx context.Context, jti string) (bool, error) {
	n, err := d.client.Exists(ctx, revokedKey(jti)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
