// Package main provides a CLI for minting caller tokens against a local
// registry. Tokens are signed with the development key unless a key is
// passed explicitly, so they will NOT validate against a production server.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	jwttoken "credreg/internal/jwt_token"
	"credreg/internal/platform/config"
	"credreg/internal/platform/redis"
	"credreg/internal/registry/directory"
	id "credreg/pkg/domain"
)

type tokenOutput struct {
	Token       string            `json:"token"`
	Identity    string            `json:"identity"`
	Role        string            `json:"role"`
	Institution string            `json:"institution_id,omitempty"`
	ExpiresIn   string            `json:"expires_in"`
	Usage       map[string]string `json:"usage"`
}

type options struct {
	identity    string
	role        string
	institution string
	ttl         time.Duration
	signingKey  string
	issuer      string
	audience    string
	redisURL    string
	assign      bool
	asJSON      bool
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "tokengen",
		Short:        "Mint development caller tokens for the credential registry",
		SilenceUsage: true,
	}
	root.AddCommand(newTokenCmd(), newAssignCmd(), newRemoveCmd())
	return root
}

func bindCallerFlags(cmd *cobra.Command, o *options) {
	cmd.Flags().StringVar(&o.identity, "identity", "", "caller identity (required)")
	cmd.Flags().StringVar(&o.role, "role", "", "accreditation_authority | institution | track_a_attestor | track_b_attestor")
	cmd.Flags().StringVar(&o.institution, "institution", "", "institution id, required for the institution role")
	_ = cmd.MarkFlagRequired("identity")
	_ = cmd.MarkFlagRequired("role")
}

func newTokenCmd() *cobra.Command {
	o := &options{}
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a signed bearer token for a caller",
		Example: `  tokengen token --identity alice --role accreditation_authority
  tokengen token --identity registrar --role institution --institution uni-1 --json
  tokengen token --identity bob --role track_a_attestor --assign --redis-url redis://localhost:6379/0`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runToken(cmd.Context(), o)
		},
	}
	bindCallerFlags(cmd, o)
	cmd.Flags().DurationVar(&o.ttl, "ttl", config.TokenTTL, "token lifetime")
	cmd.Flags().StringVar(&o.signingKey, "signing-key", config.DevSigningKey, "HS256 signing key")
	cmd.Flags().StringVar(&o.issuer, "issuer", config.DefaultIssuer, "token issuer")
	cmd.Flags().StringVar(&o.audience, "audience", config.DefaultAudience, "token audience")
	cmd.Flags().BoolVar(&o.assign, "assign", false, "also add the caller to the Redis role directory")
	cmd.Flags().StringVar(&o.redisURL, "redis-url", os.Getenv("REDIS_URL"), "Redis URL used by --assign")
	cmd.Flags().BoolVar(&o.asJSON, "json", false, "print JSON instead of the bare token")
	return cmd
}

func newAssignCmd() *cobra.Command {
	o := &options{}
	cmd := &cobra.Command{
		Use:   "assign",
		Short: "Grant a role to an identity in the Redis role directory",
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := o.caller()
			if err != nil {
				return err
			}
			return withDirectory(cmd.Context(), o.redisURL, func(d *directory.Redis) error {
				if err := d.Assign(cmd.Context(), c); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "assigned %s to %s\n", c.Role, c.Identity)
				return nil
			})
		},
	}
	bindCallerFlags(cmd, o)
	cmd.Flags().StringVar(&o.redisURL, "redis-url", os.Getenv("REDIS_URL"), "Redis URL")
	return cmd
}

func newRemoveCmd() *cobra.Command {
	o := &options{}
	cmd := &cobra.Command{
		Use:   "remove",
		Short: "Withdraw a role from an identity in the Redis role directory",
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := o.caller()
			if err != nil {
				return err
			}
			return withDirectory(cmd.Context(), o.redisURL, func(d *directory.Redis) error {
				if err := d.Remove(cmd.Context(), c); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "removed %s from %s\n", c.Role, c.Identity)
				return nil
			})
		},
	}
	bindCallerFlags(cmd, o)
	cmd.Flags().StringVar(&o.redisURL, "redis-url", os.Getenv("REDIS_URL"), "Redis URL")
	return cmd
}

func (o *options) caller() (id.Caller, error) {
	identity, err := id.ParseIdentity(o.identity)
	if err != nil {
		return id.Caller{}, err
	}
	role, err := id.ParseRole(o.role)
	if err != nil {
		return id.Caller{}, err
	}
	c := id.Caller{Identity: identity, Role: role}
	if role == id.RoleInstitution {
		inst, err := id.ParseInstitutionID(o.institution)
		if err != nil {
			return id.Caller{}, err
		}
		c.InstitutionID = inst
	}
	return c, nil
}

func runToken(ctx context.Context, o *options) error {
	if ctx == nil {
		ctx = context.Background()
	}
	c, err := o.caller()
	if err != nil {
		return err
	}

	svc := jwttoken.NewJWTService(o.signingKey, o.issuer, o.audience, o.ttl)
	token, err := svc.IssueCallerToken(ctx, c)
	if err != nil {
		return fmt.Errorf("issue token: %w", err)
	}

	if o.assign {
		if err := withDirectory(ctx, o.redisURL, func(d *directory.Redis) error {
			return d.Assign(ctx, c)
		}); err != nil {
			return fmt.Errorf("assign role: %w", err)
		}
	}

	if !o.asJSON {
		fmt.Println(token)
		return nil
	}

	out := tokenOutput{
		Token:       token,
		Identity:    c.Identity.String(),
		Role:        string(c.Role),
		Institution: c.InstitutionID.String(),
		ExpiresIn:   o.ttl.String(),
		Usage: map[string]string{
			"header": "Authorization: Bearer " + token,
			"curl":   fmt.Sprintf("curl -H 'Authorization: Bearer %s' http://localhost:8080/registry/credentials", token),
		},
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

func withDirectory(ctx context.Context, url string, fn func(*directory.Redis) error) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if url == "" {
		return fmt.Errorf("redis url is required (--redis-url or REDIS_URL)")
	}
	client, err := redis.New(ctx, config.RedisConfig{URL: url, DialTimeout: 5 * time.Second})
	if err != nil {
		return err
	}
	defer client.Close()
	return fn(directory.NewRedis(client.Client))
}
