package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"

	"credreg/internal/registry/consensus"
	"credreg/internal/registry/models"
	"credreg/internal/sentinel"
	id "credreg/pkg/domain"
	dErrors "credreg/pkg/domain-errors"
	txcontext "credreg/pkg/platform/tx"
)

// pgTxn is the state of one open transition.
type pgTxn struct {
	height uint64
	dirty  bool
}

type pgTxnKey struct{}

// Postgres persists the ledger in PostgreSQL. Every transition increments
// registry_ledger.height inside its transaction, so the row lock on that single
// row serializes writers and gives each commit its height.
type Postgres struct {
	db      *sql.DB
	timeout time.Duration
}

type PostgresOption func(*Postgres)

// WithPostgresTxTimeout bounds how long one transition may run.
func WithPostgresTxTimeout(d time.Duration) PostgresOption {
	return func(p *Postgres) { p.timeout = d }
}

func NewPostgres(db *sql.DB, opts ...PostgresOption) *Postgres {
	p := &Postgres{db: db, timeout: defaultTxTimeout}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *Postgres) q(ctx context.Context) txcontext.Querier {
	return txcontext.Pick(ctx, p.db)
}

func (p *Postgres) txn(ctx context.Context) (*pgTxn, *sql.Tx, error) {
	t, ok := ctx.Value(pgTxnKey{}).(*pgTxn)
	if !ok {
		return nil, nil, errOutsideTx
	}
	tx, ok := txcontext.From(ctx)
	if !ok {
		return nil, nil, errOutsideTx
	}
	return t, tx, nil
}

func timeoutOr(ctx context.Context, err error, msg string) error {
	if ctx.Err() != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, msg)
	}
	return fmt.Errorf("%s: %w", msg, err)
}

func (p *Postgres) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: context cancelled")
	}
	if _, ok := ctx.Value(pgTxnKey{}).(*pgTxn); ok {
		return fn(ctx)
	}

	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return timeoutOr(ctx, err, "begin ledger transaction")
	}
	defer func() {
		_ = tx.Rollback() //nolint:errcheck // rollback after commit is no-op
	}()

	var height int64
	err = tx.QueryRowContext(ctx,
		`UPDATE registry_ledger SET height = height + 1 WHERE id = 1 RETURNING height`,
	).Scan(&height)
	if err != nil {
		return timeoutOr(ctx, err, "advance ledger height")
	}

	t := &pgTxn{height: uint64(height)} // #nosec G115 -- height is never negative
	if err := fn(context.WithValue(txcontext.WithTx(ctx, tx), pgTxnKey{}, t)); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted before commit")
	}
	if !t.dirty {
		// Nothing written: the height bump rolls back with the deferred Rollback.
		return nil
	}
	if err := tx.Commit(); err != nil {
		return timeoutOr(ctx, err, "commit ledger transaction")
	}
	return nil
}

// View runs fn in a read-only REPEATABLE READ transaction so every read sees
// the same committed snapshot.
func (p *Postgres) View(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := txcontext.From(ctx); ok {
		return fn(ctx)
	}
	tx, err := p.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelRepeatableRead, ReadOnly: true})
	if err != nil {
		return timeoutOr(ctx, err, "begin ledger view")
	}
	defer func() {
		_ = tx.Rollback() //nolint:errcheck // read-only
	}()
	return fn(txcontext.WithTx(ctx, tx))
}

// Height returns the committed height. Inside RunInTx that is the height the
// transaction started from.
func (p *Postgres) Height(ctx context.Context) (uint64, error) {
	if t, ok := ctx.Value(pgTxnKey{}).(*pgTxn); ok {
		return t.height - 1, nil
	}
	var h int64
	if err := p.q(ctx).QueryRowContext(ctx, `SELECT height FROM registry_ledger WHERE id = 1`).Scan(&h); err != nil {
		return 0, fmt.Errorf("read ledger height: %w", err)
	}
	return uint64(h), nil // #nosec G115 -- height is never negative
}

func (p *Postgres) Ping(ctx context.Context) error {
	return p.db.PingContext(ctx)
}

const credentialColumns = `credential_id, subject_identity, institution_id, credential_class,
	lifecycle_status, content_hash, issued_at, expires_at, validation_state,
	track_a_attestor, track_b_attestor, metadata, issued_by, revoked_at, revoked_by,
	revocation_reason, updated_at`

func (p *Postgres) FindCredential(ctx context.Context, cid id.CredentialID) (*models.Credential, error) {
	c, err := scanCredential(p.q(ctx).QueryRowContext(ctx,
		`SELECT `+credentialColumns+` FROM credentials WHERE credential_id = $1`, cid.String()))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find credential: %w", err)
	}
	votes, err := p.loadVotes(ctx, cid)
	if err != nil {
		return nil, err
	}
	c.Votes = votes
	return c, nil
}

func (p *Postgres) ListCredentialsBySubject(ctx context.Context, subject id.Identity) ([]*models.Credential, error) {
	rows, err := p.q(ctx).QueryContext(ctx,
		`SELECT `+credentialColumns+` FROM credentials WHERE subject_identity = $1 ORDER BY issue_seq`,
		subject.String())
	if err != nil {
		return nil, fmt.Errorf("list credentials by subject: %w", err)
	}
	defer rows.Close()

	var out []*models.Credential
	for rows.Next() {
		c, err := scanCredential(rows)
		if err != nil {
			return nil, fmt.Errorf("scan credential: %w", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list credentials by subject: %w", err)
	}
	for _, c := range out {
		if c.Votes, err = p.loadVotes(ctx, c.ID); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (p *Postgres) loadVotes(ctx context.Context, cid id.CredentialID) ([]models.Vote, error) {
	rows, err := p.q(ctx).QueryContext(ctx,
		`SELECT track, attestor, approved, cast_at FROM credential_votes WHERE credential_id = $1 ORDER BY seq`,
		cid.String())
	if err != nil {
		return nil, fmt.Errorf("load votes: %w", err)
	}
	defer rows.Close()

	var votes []models.Vote
	for rows.Next() {
		var v models.Vote
		var track, attestor string
		if err := rows.Scan(&track, &attestor, &v.Approved, &v.CastAt); err != nil {
			return nil, fmt.Errorf("scan vote: %w", err)
		}
		v.Track = consensus.Track(track)
		v.Attestor = id.Identity(attestor)
		votes = append(votes, v)
	}
	return votes, rows.Err()
}

func (p *Postgres) CreateCredential(ctx context.Context, c *models.Credential) error {
	t, tx, err := p.txn(ctx)
	if err != nil {
		return err
	}
	t.dirty = true
	_, err = tx.ExecContext(ctx, `
		INSERT INTO credentials (`+credentialColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)`,
		credentialArgs(c)...)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("credential %s: %w", c.ID, sentinel.ErrAlreadyUsed)
		}
		return fmt.Errorf("create credential: %w", err)
	}
	return p.insertVotes(ctx, tx, c)
}

func (p *Postgres) UpdateCredential(ctx context.Context, c *models.Credential) error {
	t, tx, err := p.txn(ctx)
	if err != nil {
		return err
	}
	t.dirty = true
	res, err := tx.ExecContext(ctx, `
		UPDATE credentials
		SET lifecycle_status = $2, validation_state = $3, track_a_attestor = $4, track_b_attestor = $5,
		    revoked_at = $6, revoked_by = $7, revocation_reason = $8, updated_at = $9
		WHERE credential_id = $1`,
		c.ID.String(), string(c.Status), string(c.ValidationState),
		nullIdentity(c.TrackAAttestor), nullIdentity(c.TrackBAttestor),
		nullTime(c.RevokedAt), c.RevokedBy.String(), c.RevocationReason, c.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update credential: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update credential rows: %w", err)
	}
	if n == 0 {
		return sentinel.ErrNotFound
	}
	return p.insertVotes(ctx, tx, c)
}

// insertVotes writes any votes not yet stored. Existing votes are immutable.
func (p *Postgres) insertVotes(ctx context.Context, tx *sql.Tx, c *models.Credential) error {
	for _, v := range c.Votes {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO credential_votes (credential_id, track, attestor, approved, cast_at)
			VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (credential_id, track, attestor) DO NOTHING`,
			c.ID.String(), string(v.Track), v.Attestor.String(), v.Approved, v.CastAt)
		if err != nil {
			return fmt.Errorf("insert vote: %w", err)
		}
	}
	return nil
}

const accreditationColumns = `institution_id, is_accredited, accredited_at, expires_at,
	certificate_reference, validation_state, track_a_attestors, track_b_attestors, granted_by,
	revoked_at, revoked_by, revocation_reason, updated_at`

func (p *Postgres) FindAccreditation(ctx context.Context, inst id.InstitutionID) (*models.AccreditationRecord, error) {
	a, err := scanAccreditation(p.q(ctx).QueryRowContext(ctx,
		`SELECT `+accreditationColumns+` FROM accreditations WHERE institution_id = $1`, inst.String()))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find accreditation: %w", err)
	}
	return a, nil
}

func (p *Postgres) SaveAccreditation(ctx context.Context, a *models.AccreditationRecord) error {
	t, tx, err := p.txn(ctx)
	if err != nil {
		return err
	}
	t.dirty = true
	trackA, err := json.Marshal(nonNil(a.TrackAAttestors))
	if err != nil {
		return fmt.Errorf("encode track a attestors: %w", err)
	}
	trackB, err := json.Marshal(nonNil(a.TrackBAttestors))
	if err != nil {
		return fmt.Errorf("encode track b attestors: %w", err)
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO accreditations (`+accreditationColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (institution_id) DO UPDATE SET
			is_accredited = EXCLUDED.is_accredited,
			accredited_at = EXCLUDED.accredited_at,
			expires_at = EXCLUDED.expires_at,
			certificate_reference = EXCLUDED.certificate_reference,
			validation_state = EXCLUDED.validation_state,
			track_a_attestors = EXCLUDED.track_a_attestors,
			track_b_attestors = EXCLUDED.track_b_attestors,
			granted_by = EXCLUDED.granted_by,
			revoked_at = EXCLUDED.revoked_at,
			revoked_by = EXCLUDED.revoked_by,
			revocation_reason = EXCLUDED.revocation_reason,
			updated_at = EXCLUDED.updated_at`,
		a.InstitutionID.String(), a.IsAccredited, a.AccreditedAt, nullTime(a.ExpiresAt),
		a.CertificateReference, string(a.ValidationState), trackA, trackB, a.GrantedBy.String(),
		nullTime(a.RevokedAt), a.RevokedBy.String(), a.RevocationReason, a.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("save accreditation: %w", err)
	}
	return nil
}

func (p *Postgres) AppendEvent(ctx context.Context, ev *models.Event) error {
	t, tx, err := p.txn(ctx)
	if err != nil {
		return err
	}
	t.dirty = true
	height := t.height
	ev.Height = height
	_, err = tx.ExecContext(ctx, `
		INSERT INTO registry_outbox (id, height, event_type, aggregate_type, aggregate_id, payload, actor, request_id, occurred_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		uuid.UUID(ev.ID), int64(height), string(ev.Type), ev.AggregateType, ev.AggregateID, // #nosec G115
		[]byte(ev.Payload), ev.Actor.String(), ev.RequestID, ev.OccurredAt,
	)
	if err != nil {
		return fmt.Errorf("append event: %w", err)
	}
	return nil
}

const eventColumns = `id, height, event_type, aggregate_type, aggregate_id, payload, actor, request_id, occurred_at, processed_at`

func (p *Postgres) ListEvents(ctx context.Context, afterHeight uint64, limit int) ([]*models.Event, error) {
	if limit <= 0 {
		limit = maxEventPage
	}
	return p.queryEvents(ctx,
		`SELECT `+eventColumns+` FROM registry_outbox WHERE height > $1 ORDER BY seq LIMIT $2`,
		int64(afterHeight), min(limit, maxEventPage)) // #nosec G115
}

// FetchUnprocessed returns pending events oldest first.
func (p *Postgres) FetchUnprocessed(ctx context.Context, limit int) ([]*models.Event, error) {
	if limit <= 0 {
		return nil, nil
	}
	return p.queryEvents(ctx,
		`SELECT `+eventColumns+` FROM registry_outbox WHERE processed_at IS NULL ORDER BY seq LIMIT $1`,
		min(limit, maxEventPage))
}

const maxEventPage = 1000

func (p *Postgres) queryEvents(ctx context.Context, query string, args ...any) ([]*models.Event, error) {
	rows, err := p.q(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	var out []*models.Event
	for rows.Next() {
		var (
			ev          models.Event
			eid         uuid.UUID
			height      int64
			eventType   string
			actor       string
			payload     []byte
			processedAt sql.NullTime
		)
		if err := rows.Scan(&eid, &height, &eventType, &ev.AggregateType, &ev.AggregateID,
			&payload, &actor, &ev.RequestID, &ev.OccurredAt, &processedAt); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		ev.ID = id.EventID(eid)
		ev.Height = uint64(height) // #nosec G115
		ev.Type = models.EventType(eventType)
		ev.Actor = id.Identity(actor)
		ev.Payload = payload
		if processedAt.Valid {
			t := processedAt.Time
			ev.ProcessedAt = &t
		}
		out = append(out, &ev)
	}
	return out, rows.Err()
}

func (p *Postgres) MarkProcessed(ctx context.Context, eid id.EventID, at time.Time) error {
	res, err := p.q(ctx).ExecContext(ctx,
		`UPDATE registry_outbox SET processed_at = $2 WHERE id = $1 AND processed_at IS NULL`,
		uuid.UUID(eid), at)
	if err != nil {
		return fmt.Errorf("mark event processed: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("mark event processed rows: %w", err)
	}
	if n == 1 {
		return nil
	}
	var exists bool
	if err := p.q(ctx).QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM registry_outbox WHERE id = $1)`, uuid.UUID(eid)).Scan(&exists); err != nil {
		return fmt.Errorf("check outbox event: %w", err)
	}
	if exists {
		return fmt.Errorf("outbox event %s: %w", eid, sentinel.ErrAlreadyUsed)
	}
	return fmt.Errorf("outbox event %s: %w", eid, sentinel.ErrNotFound)
}

func (p *Postgres) CountPending(ctx context.Context) (int64, error) {
	var n int64
	if err := p.q(ctx).QueryRowContext(ctx,
		`SELECT COUNT(*) FROM registry_outbox WHERE processed_at IS NULL`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count pending events: %w", err)
	}
	return n, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCredential(row rowScanner) (*models.Credential, error) {
	var (
		c                                        models.Credential
		cid, subject, inst, class, status, state string
		issuedBy, revokedBy                      string
		expiresAt, revokedAt                     sql.NullTime
		trackA, trackB                           sql.NullString
	)
	if err := row.Scan(&cid, &subject, &inst, &class, &status, &c.ContentHash, &c.IssuedAt,
		&expiresAt, &state, &trackA, &trackB, &c.Metadata, &issuedBy, &revokedAt, &revokedBy,
		&c.RevocationReason, &c.UpdatedAt); err != nil {
		return nil, err
	}
	c.ID = id.CredentialID(cid)
	c.Subject = id.Identity(subject)
	c.InstitutionID = id.InstitutionID(inst)
	c.Class = models.CredentialClass(class)
	c.Status = models.LifecycleStatus(status)
	c.ValidationState = consensus.State(state)
	c.IssuedBy = id.Identity(issuedBy)
	c.RevokedBy = id.Identity(revokedBy)
	c.ExpiresAt = timePtr(expiresAt)
	c.RevokedAt = timePtr(revokedAt)
	c.TrackAAttestor = identityPtr(trackA)
	c.TrackBAttestor = identityPtr(trackB)
	return &c, nil
}

func credentialArgs(c *models.Credential) []any {
	return []any{
		c.ID.String(), c.Subject.String(), c.InstitutionID.String(), string(c.Class),
		string(c.Status), c.ContentHash, c.IssuedAt, nullTime(c.ExpiresAt), string(c.ValidationState),
		nullIdentity(c.TrackAAttestor), nullIdentity(c.TrackBAttestor), c.Metadata, c.IssuedBy.String(),
		nullTime(c.RevokedAt), c.RevokedBy.String(), c.RevocationReason, c.UpdatedAt,
	}
}

func scanAccreditation(row rowScanner) (*models.AccreditationRecord, error) {
	var (
		a                    models.AccreditationRecord
		inst, state          string
		grantedBy, revokedBy string
		trackA, trackB       []byte
		expiresAt, revokedAt sql.NullTime
	)
	if err := row.Scan(&inst, &a.IsAccredited, &a.AccreditedAt, &expiresAt, &a.CertificateReference,
		&state, &trackA, &trackB, &grantedBy, &revokedAt, &revokedBy, &a.RevocationReason,
		&a.UpdatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(trackA, &a.TrackAAttestors); err != nil {
		return nil, fmt.Errorf("decode track a attestors: %w", err)
	}
	if err := json.Unmarshal(trackB, &a.TrackBAttestors); err != nil {
		return nil, fmt.Errorf("decode track b attestors: %w", err)
	}
	a.InstitutionID = id.InstitutionID(inst)
	a.ValidationState = consensus.State(state)
	a.GrantedBy = id.Identity(grantedBy)
	a.RevokedBy = id.Identity(revokedBy)
	a.ExpiresAt = timePtr(expiresAt)
	a.RevokedAt = timePtr(revokedAt)
	return &a, nil
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}

func nullIdentity(i *id.Identity) sql.NullString {
	if i == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: i.String(), Valid: true}
}

func identityPtr(s sql.NullString) *id.Identity {
	if !s.Valid {
		return nil
	}
	v := id.Identity(s.String)
	return &v
}

func nonNil(ids []id.Identity) []id.Identity {
	if ids == nil {
		return []id.Identity{}
	}
	return ids
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
