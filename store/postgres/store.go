// Package postgres provides a PostgreSQL Store built on pgx. Multi-record
// commits run in one transaction; the schema's unique indexes back the
// engine's uniqueness invariants so they hold across processes.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xraph/paychan"
	"github.com/xraph/paychan/channel"
	"github.com/xraph/paychan/id"
	"github.com/xraph/paychan/ledger"
	"github.com/xraph/paychan/session"
	"github.com/xraph/paychan/settlement"
	"github.com/xraph/paychan/store"
)

// compile-time interface check
var _ store.Store = (*Store)(nil)

type Store struct {
	pool *pgxpool.Pool
}

// New connects to the database and verifies the connection.
func New(ctx context.Context, databaseURL string) (*Store, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("postgres: connect: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: ping: %w", err)
	}

	return &Store{pool: pool}, nil
}

// Migrate applies the schema statements in order.
func (s *Store) Migrate(ctx context.Context) error {
	for i, stmt := range migrations {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("postgres: migration %d: %w", i+1, err)
		}
	}
	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

// ──────────────────────────────────────────────────
// Channel Store implementation
// ──────────────────────────────────────────────────

func (s *Store) CreateChannel(ctx context.Context, ch *channel.Channel) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO paychan_channels (
			id, organization_id, worker_id, network, state, asset,
			deposit_amount, claimed_amount, accrued_balance, hourly_rate,
			sequence, version, needs_topup, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`,
		ch.ID, ch.OrganizationID, ch.WorkerID, ch.Network, ch.State, ch.DepositAmount.Asset,
		ch.DepositAmount.Amount, ch.ClaimedAmount.Amount, ch.AccruedBalance.Amount, ch.HourlyRate.Amount,
		int64(ch.Sequence), ch.Version, ch.NeedsTopup, ch.CreatedAt, ch.UpdatedAt,
	)
	if isUniqueViolation(err) {
		return paychan.ErrAlreadyExists
	}
	return err
}

func (s *Store) GetChannel(ctx context.Context, channelID id.ChannelID) (*channel.Channel, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+channelColumns+` FROM paychan_channels WHERE id = $1`, channelID)
	ch, err := scanChannel(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, paychan.ErrChannelNotFound
	}
	return ch, err
}

func (s *Store) GetChannelByParties(ctx context.Context, orgID, workerID string, network channel.Network) (*channel.Channel, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+channelColumns+` FROM paychan_channels
		 WHERE organization_id = $1 AND worker_id = $2 AND network = $3
		   AND state NOT IN ('closed', 'disputed', 'expired')`,
		orgID, workerID, network)
	ch, err := scanChannel(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, paychan.ErrChannelNotFound
	}
	return ch, err
}

func (s *Store) ListChannels(ctx context.Context, filter store.ChannelFilter) ([]*channel.Channel, error) {
	query := `SELECT ` + channelColumns + ` FROM paychan_channels
		WHERE ($1 = '' OR organization_id = $1)
		  AND ($2 = '' OR worker_id = $2)
		  AND ($3 = '' OR state = $3)
		ORDER BY id`
	args := []any{filter.OrganizationID, filter.WorkerID, string(filter.State)}
	if filter.Limit > 0 {
		query += ` LIMIT $4 OFFSET $5`
		args = append(args, filter.Limit, filter.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []*channel.Channel
	for rows.Next() {
		ch, err := scanChannel(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, ch)
	}
	return result, rows.Err()
}

func (s *Store) CommitChannel(ctx context.Context, ch *channel.Channel, entries []*ledger.Entry, applied *store.AppliedEvent) error {
	return s.inTx(ctx, func(tx pgx.Tx) error {
		return s.commitChannelTx(ctx, tx, ch, entries, applied)
	})
}

// commitChannelTx is the shared atomic write path. The version-checked
// channel update takes the row lock first, serializing concurrent
// committers on the same channel; sequence assignment is race-free behind
// it and the unique (channel_id, seq) index backs that up.
func (s *Store) commitChannelTx(ctx context.Context, tx pgx.Tx, ch *channel.Channel, entries []*ledger.Entry, applied *store.AppliedEvent) error {
	tag, err := tx.Exec(ctx, `
		UPDATE paychan_channels SET
			state = $1, deposit_amount = $2, claimed_amount = $3,
			accrued_balance = $4, sequence = $5, needs_topup = $6,
			dispute_local_amount = $7, dispute_onchain_amount = $8,
			unresolved_loss = $9, funded_at = $10, closed_at = $11,
			updated_at = $12, version = version + 1
		WHERE id = $13 AND version = $14`,
		ch.State, ch.DepositAmount.Amount, ch.ClaimedAmount.Amount,
		ch.AccruedBalance.Amount, int64(ch.Sequence), ch.NeedsTopup,
		optAmount(ch.DisputeLocalAmount), optAmount(ch.DisputeOnChainAmount),
		optAmount(ch.UnresolvedLoss), ch.FundedAt, ch.ClosedAt,
		time.Now(), ch.ID, ch.Version,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		// Either the row is gone or the caller's version is stale.
		var exists bool
		if err := tx.QueryRow(ctx,
			`SELECT EXISTS (SELECT 1 FROM paychan_channels WHERE id = $1)`, ch.ID,
		).Scan(&exists); err != nil {
			return err
		}
		if !exists {
			return paychan.ErrChannelNotFound
		}
		return paychan.ErrStateConflict
	}
	ch.Version++

	if applied != nil {
		_, err := tx.Exec(ctx, `
			INSERT INTO paychan_applied_events (tx_hash, ledger_index, network)
			VALUES ($1, $2, $3)`,
			applied.TxHash, applied.LedgerIndex, applied.Network,
		)
		if isUniqueViolation(err) {
			return paychan.ErrAlreadyExists
		}
		if err != nil {
			return err
		}
	}

	if len(entries) > 0 {
		var seq int64
		if err := tx.QueryRow(ctx,
			`SELECT COALESCE(MAX(seq), 0) FROM paychan_entries WHERE channel_id = $1`, ch.ID,
		).Scan(&seq); err != nil {
			return err
		}

		for _, e := range entries {
			seq++
			e.Seq = seq
			_, err := tx.Exec(ctx, `
				INSERT INTO paychan_entries (id, channel_id, seq, kind, delta, asset, cause_id, created_at)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
				e.ID, e.ChannelID, e.Seq, e.Kind, e.Delta.Amount, e.Delta.Asset, e.CauseID, e.CreatedAt,
			)
			if err != nil {
				return err
			}
		}
	}

	return nil
}

// ──────────────────────────────────────────────────
// Session Store implementation
// ──────────────────────────────────────────────────

func (s *Store) CreateSession(ctx context.Context, sess *session.WorkSession) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO paychan_sessions (id, channel_id, clock_in_at, clock_out_at, hourly_rate, asset, amount, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		sess.ID, sess.ChannelID, sess.ClockInAt, sess.ClockOutAt,
		sess.HourlyRate.Amount, sess.HourlyRate.Asset, optAmount(sess.Amount),
		sess.CreatedAt, sess.UpdatedAt,
	)
	if violatesConstraint(err, "idx_paychan_sessions_open") {
		return paychan.ErrSessionAlreadyOpen
	}
	if isUniqueViolation(err) {
		return paychan.ErrAlreadyExists
	}
	return err
}

func (s *Store) GetSession(ctx context.Context, sessionID id.SessionID) (*session.WorkSession, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+sessionColumns+` FROM paychan_sessions WHERE id = $1`, sessionID)
	sess, err := scanSession(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, paychan.ErrSessionNotFound
	}
	return sess, err
}

func (s *Store) GetOpenSession(ctx context.Context, channelID id.ChannelID) (*session.WorkSession, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+sessionColumns+` FROM paychan_sessions
		 WHERE channel_id = $1 AND clock_out_at IS NULL`, channelID)
	sess, err := scanSession(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, paychan.ErrNoOpenSession
	}
	return sess, err
}

func (s *Store) CloseSession(ctx context.Context, sess *session.WorkSession, ch *channel.Channel, entries []*ledger.Entry) error {
	return s.inTx(ctx, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
			UPDATE paychan_sessions
			SET clock_out_at = $1, amount = $2, updated_at = $3
			WHERE id = $4 AND clock_out_at IS NULL`,
			sess.ClockOutAt, optAmount(sess.Amount), time.Now(), sess.ID,
		)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return paychan.ErrNoOpenSession
		}
		return s.commitChannelTx(ctx, tx, ch, entries, nil)
	})
}

// ──────────────────────────────────────────────────
// Balance ledger
// ──────────────────────────────────────────────────

func (s *Store) ListEntries(ctx context.Context, channelID id.ChannelID) ([]*ledger.Entry, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+entryColumns+` FROM paychan_entries WHERE channel_id = $1 ORDER BY seq`, channelID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []*ledger.Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, e)
	}
	return result, rows.Err()
}

// ──────────────────────────────────────────────────
// Claim Store implementation
// ──────────────────────────────────────────────────

func (s *Store) CreateClaim(ctx context.Context, c *settlement.ClaimRequest) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO paychan_claims (id, channel_id, amount, asset, correlation_token, status, tx_hash, expires_at, resolved_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		c.ID, c.ChannelID, c.Amount.Amount, c.Amount.Asset, c.CorrelationToken.String(),
		c.Status, c.TxHash, c.ExpiresAt, c.ResolvedAt, c.CreatedAt, c.UpdatedAt,
	)
	if violatesConstraint(err, "idx_paychan_claims_outstanding") {
		return paychan.ErrClaimInFlight
	}
	if isUniqueViolation(err) {
		return paychan.ErrAlreadyExists
	}
	return err
}

func (s *Store) GetClaim(ctx context.Context, claimID id.ClaimID) (*settlement.ClaimRequest, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+claimColumns+` FROM paychan_claims WHERE id = $1`, claimID)
	c, err := scanClaim(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, paychan.ErrClaimNotFound
	}
	return c, err
}

func (s *Store) GetOutstandingClaim(ctx context.Context, channelID id.ChannelID) (*settlement.ClaimRequest, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+claimColumns+` FROM paychan_claims
		 WHERE channel_id = $1 AND status IN ('pending', 'signed')`, channelID)
	c, err := scanClaim(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, paychan.ErrClaimNotFound
	}
	return c, err
}

func (s *Store) UpdateClaim(ctx context.Context, c *settlement.ClaimRequest) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE paychan_claims
		SET status = $1, tx_hash = $2, resolved_at = $3, updated_at = $4
		WHERE id = $5`,
		c.Status, c.TxHash, c.ResolvedAt, time.Now(), c.ID,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return paychan.ErrClaimNotFound
	}
	return nil
}

func (s *Store) ListExpiredClaims(ctx context.Context, now time.Time) ([]*settlement.ClaimRequest, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+claimColumns+` FROM paychan_claims
		 WHERE status = 'pending' AND expires_at < $1`, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []*settlement.ClaimRequest
	for rows.Next() {
		c, err := scanClaim(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, c)
	}
	return result, rows.Err()
}

// ──────────────────────────────────────────────────
// Cursors and applied events
// ──────────────────────────────────────────────────

func (s *Store) GetCursor(ctx context.Context, network string) (uint64, error) {
	var idx int64
	err := s.pool.QueryRow(ctx,
		`SELECT ledger_index FROM paychan_cursors WHERE network = $1`, network,
	).Scan(&idx)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return uint64(idx), nil
}

func (s *Store) SaveCursor(ctx context.Context, network string, ledgerIndex uint64) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO paychan_cursors (network, ledger_index, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (network) DO UPDATE SET ledger_index = EXCLUDED.ledger_index, updated_at = NOW()`,
		network, int64(ledgerIndex),
	)
	return err
}

func (s *Store) WasEventApplied(ctx context.Context, txHash string, ledgerIndex uint64) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM paychan_applied_events WHERE tx_hash = $1 AND ledger_index = $2)`,
		txHash, int64(ledgerIndex),
	).Scan(&exists)
	return exists, err
}

// ──────────────────────────────────────────────────
// Helpers
// ──────────────────────────────────────────────────

func (s *Store) inTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx) //nolint:errcheck // rollback after commit is a no-op

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func violatesConstraint(err error, constraint string) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505" && pgErr.ConstraintName == constraint
}
