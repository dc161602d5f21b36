package postgres

// Schema statements applied in order by Migrate. All statements are
// idempotent; there is no down path, the store only moves forward.
//
// The partial unique indexes carry invariants the Go code relies on:
// one non-terminal channel per (organization, worker, network), one open
// session per channel, one outstanding claim per channel, and exactly-once
// application of on-chain events.
var migrations = []string{
	`
CREATE TABLE IF NOT EXISTS paychan_channels (
    id                     TEXT PRIMARY KEY,
    organization_id        TEXT NOT NULL,
    worker_id              TEXT NOT NULL,
    network                TEXT NOT NULL,
    state                  TEXT NOT NULL DEFAULT 'draft',
    asset                  TEXT NOT NULL,
    deposit_amount         BIGINT NOT NULL,
    claimed_amount         BIGINT NOT NULL DEFAULT 0,
    accrued_balance        BIGINT NOT NULL DEFAULT 0,
    hourly_rate            BIGINT NOT NULL,
    sequence               BIGINT NOT NULL DEFAULT 0,
    version                BIGINT NOT NULL DEFAULT 0,
    needs_topup            BOOLEAN NOT NULL DEFAULT FALSE,
    dispute_local_amount   BIGINT,
    dispute_onchain_amount BIGINT,
    unresolved_loss        BIGINT,
    funded_at              TIMESTAMPTZ,
    closed_at              TIMESTAMPTZ,
    created_at             TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at             TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_paychan_channels_org ON paychan_channels (organization_id);
CREATE INDEX IF NOT EXISTS idx_paychan_channels_worker ON paychan_channels (worker_id);
CREATE UNIQUE INDEX IF NOT EXISTS idx_paychan_channels_parties
    ON paychan_channels (organization_id, worker_id, network)
    WHERE state NOT IN ('closed', 'disputed', 'expired');
`,
	`
CREATE TABLE IF NOT EXISTS paychan_sessions (
    id           TEXT PRIMARY KEY,
    channel_id   TEXT NOT NULL REFERENCES paychan_channels (id),
    clock_in_at  TIMESTAMPTZ NOT NULL,
    clock_out_at TIMESTAMPTZ,
    hourly_rate  BIGINT NOT NULL,
    asset        TEXT NOT NULL,
    amount       BIGINT,
    created_at   TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at   TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_paychan_sessions_channel ON paychan_sessions (channel_id);
CREATE UNIQUE INDEX IF NOT EXISTS idx_paychan_sessions_open
    ON paychan_sessions (channel_id)
    WHERE clock_out_at IS NULL;
`,
	`
CREATE TABLE IF NOT EXISTS paychan_entries (
    id         TEXT PRIMARY KEY,
    channel_id TEXT NOT NULL REFERENCES paychan_channels (id),
    seq        BIGINT NOT NULL,
    kind       TEXT NOT NULL,
    delta      BIGINT NOT NULL,
    asset      TEXT NOT NULL,
    cause_id   TEXT,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_paychan_entries_seq ON paychan_entries (channel_id, seq);
`,
	`
CREATE TABLE IF NOT EXISTS paychan_claims (
    id                TEXT PRIMARY KEY,
    channel_id        TEXT NOT NULL REFERENCES paychan_channels (id),
    amount            BIGINT NOT NULL,
    asset             TEXT NOT NULL,
    correlation_token TEXT NOT NULL,
    status            TEXT NOT NULL DEFAULT 'pending',
    tx_hash           TEXT NOT NULL DEFAULT '',
    expires_at        TIMESTAMPTZ NOT NULL,
    resolved_at       TIMESTAMPTZ,
    created_at        TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at        TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_paychan_claims_expiry ON paychan_claims (expires_at) WHERE status = 'pending';
CREATE UNIQUE INDEX IF NOT EXISTS idx_paychan_claims_outstanding
    ON paychan_claims (channel_id)
    WHERE status IN ('pending', 'signed');
`,
	`
CREATE TABLE IF NOT EXISTS paychan_cursors (
    network      TEXT PRIMARY KEY,
    ledger_index BIGINT NOT NULL DEFAULT 0,
    updated_at   TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
`,
	`
CREATE TABLE IF NOT EXISTS paychan_applied_events (
    tx_hash      TEXT NOT NULL,
    ledger_index BIGINT NOT NULL,
    network      TEXT NOT NULL DEFAULT '',
    applied_at   TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    PRIMARY KEY (tx_hash, ledger_index)
);
`,
}
