package sqlite

import (
	"context"

	"github.com/xraph/grove/migrate"
)

// Migrations is the grove migration group for the star ledger store.
var Migrations = migrate.NewGroup("starledger")

func init() {
	Migrations.MustRegister(
		&migrate.Migration{
			Name:    "create_sl_families",
			Version: "20250601000001",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS sl_families (
    id         TEXT PRIMARY KEY,
    name       TEXT NOT NULL,
    timezone   TEXT NOT NULL DEFAULT '',
    created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
    updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS sl_members (
    id         TEXT PRIMARY KEY,
    family_id  TEXT NOT NULL REFERENCES sl_families (id),
    name       TEXT NOT NULL,
    role       TEXT NOT NULL CHECK (role IN ('parent', 'child')),
    created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
    updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_sl_members_family ON sl_members (family_id, role);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS sl_members; DROP TABLE IF EXISTS sl_families`)
				return err
			},
		},
		&migrate.Migration{
			Name:    "create_sl_catalog",
			Version: "20250601000002",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS sl_quests (
    id         TEXT PRIMARY KEY,
    family_id  TEXT NOT NULL REFERENCES sl_families (id),
    name       TEXT NOT NULL,
    stars      INTEGER NOT NULL CHECK (stars <> 0),
    active     INTEGER NOT NULL DEFAULT 1,
    created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
    updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS sl_rewards (
    id         TEXT PRIMARY KEY,
    family_id  TEXT NOT NULL REFERENCES sl_families (id),
    name       TEXT NOT NULL,
    stars_cost INTEGER NOT NULL CHECK (stars_cost > 0),
    active     INTEGER NOT NULL DEFAULT 1,
    created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
    updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_sl_quests_family ON sl_quests (family_id);
CREATE INDEX IF NOT EXISTS idx_sl_rewards_family ON sl_rewards (family_id);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS sl_rewards; DROP TABLE IF EXISTS sl_quests`)
				return err
			},
		},
		&migrate.Migration{
			Name:    "create_sl_star_transactions",
			Version: "20250601000003",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS sl_star_transactions (
    id              TEXT PRIMARY KEY,
    family_id       TEXT NOT NULL,
    child_id        TEXT NOT NULL REFERENCES sl_members (id),
    quest_id        TEXT NOT NULL DEFAULT '',
    description     TEXT NOT NULL DEFAULT '',
    stars           INTEGER NOT NULL CHECK (stars <> 0),
    source          TEXT NOT NULL,
    status          TEXT NOT NULL CHECK (status IN ('pending', 'approved', 'rejected')),
    child_note      TEXT NOT NULL DEFAULT '',
    parent_response TEXT NOT NULL DEFAULT '',
    created_by      TEXT NOT NULL,
    reviewed_by     TEXT NOT NULL DEFAULT '',
    reviewed_at     TIMESTAMP,
    created_at      TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_sl_stx_child_status ON sl_star_transactions (child_id, status, created_at);
CREATE INDEX IF NOT EXISTS idx_sl_stx_child_quest ON sl_star_transactions (child_id, quest_id, created_at);
CREATE INDEX IF NOT EXISTS idx_sl_stx_family_pending ON sl_star_transactions (family_id, created_at) WHERE status = 'pending';
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS sl_star_transactions`)
				return err
			},
		},
		&migrate.Migration{
			Name:    "create_sl_redemptions",
			Version: "20250601000004",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS sl_redemptions (
    id              TEXT PRIMARY KEY,
    family_id       TEXT NOT NULL,
    child_id        TEXT NOT NULL REFERENCES sl_members (id),
    reward_id       TEXT NOT NULL REFERENCES sl_rewards (id),
    stars_spent     INTEGER NOT NULL CHECK (stars_spent > 0),
    status          TEXT NOT NULL CHECK (status IN ('pending', 'approved', 'rejected', 'fulfilled')),
    child_note      TEXT NOT NULL DEFAULT '',
    parent_response TEXT NOT NULL DEFAULT '',
    uses_credit     INTEGER NOT NULL DEFAULT 0,
    credit_amount   INTEGER NOT NULL DEFAULT 0,
    created_by      TEXT NOT NULL,
    reviewed_by     TEXT NOT NULL DEFAULT '',
    reviewed_at     TIMESTAMP,
    fulfilled_at    TIMESTAMP,
    created_at      TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_sl_rdm_child_status ON sl_redemptions (child_id, status, created_at);
CREATE INDEX IF NOT EXISTS idx_sl_rdm_family ON sl_redemptions (family_id, created_at);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS sl_redemptions`)
				return err
			},
		},
		&migrate.Migration{
			Name:    "create_sl_credit",
			Version: "20250601000005",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS sl_credit_settings (
    child_id              TEXT PRIMARY KEY REFERENCES sl_members (id),
    family_id             TEXT NOT NULL,
    credit_limit          INTEGER NOT NULL DEFAULT 0 CHECK (credit_limit >= 0),
    original_credit_limit INTEGER NOT NULL DEFAULT 0,
    enabled               INTEGER NOT NULL DEFAULT 0,
    created_at            TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
    updated_at            TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS sl_credit_transactions (
    id            TEXT PRIMARY KEY,
    family_id     TEXT NOT NULL,
    child_id      TEXT NOT NULL REFERENCES sl_members (id),
    redemption_id TEXT NOT NULL DEFAULT '',
    settlement_id TEXT NOT NULL DEFAULT '',
    type          TEXT NOT NULL CHECK (type IN ('credit_used', 'credit_repaid', 'interest_charged')),
    amount        INTEGER NOT NULL CHECK (amount > 0),
    balance_after INTEGER NOT NULL,
    created_at    TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_sl_credit_settings_family ON sl_credit_settings (family_id);
CREATE INDEX IF NOT EXISTS idx_sl_ctx_child ON sl_credit_transactions (child_id, created_at, id);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS sl_credit_transactions; DROP TABLE IF EXISTS sl_credit_settings`)
				return err
			},
		},
		&migrate.Migration{
			Name:    "create_sl_settlements",
			Version: "20250601000006",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS sl_settlements (
    id                      TEXT PRIMARY KEY,
    family_id               TEXT NOT NULL,
    child_id                TEXT NOT NULL REFERENCES sl_members (id),
    period_end              TIMESTAMP NOT NULL,
    balance_before          INTEGER NOT NULL,
    debt_amount             INTEGER NOT NULL,
    interest_calculated     INTEGER NOT NULL,
    interest_breakdown      TEXT NOT NULL DEFAULT '[]',
    credit_limit_before     INTEGER NOT NULL,
    credit_limit_after      INTEGER NOT NULL,
    credit_limit_adjustment INTEGER NOT NULL,
    created_at              TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_sl_settlements_period ON sl_settlements (child_id, period_end);

CREATE TABLE IF NOT EXISTS sl_interest_tiers (
    id            TEXT PRIMARY KEY,
    family_id     TEXT NOT NULL REFERENCES sl_families (id),
    tier_order    INTEGER NOT NULL,
    min_debt      INTEGER NOT NULL CHECK (min_debt >= 0),
    max_debt      INTEGER,
    interest_rate TEXT NOT NULL
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_sl_tiers_order ON sl_interest_tiers (family_id, tier_order);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS sl_interest_tiers; DROP TABLE IF EXISTS sl_settlements`)
				return err
			},
		},
		&migrate.Migration{
			Name:    "create_sl_balances",
			Version: "20250601000007",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS sl_balances (
    child_id         TEXT PRIMARY KEY REFERENCES sl_members (id),
    current_stars    INTEGER NOT NULL,
    lifetime_stars   INTEGER NOT NULL,
    credit_used      INTEGER NOT NULL,
    available_credit INTEGER NOT NULL,
    spendable_stars  INTEGER NOT NULL,
    credit_limit     INTEGER NOT NULL,
    credit_enabled   INTEGER NOT NULL,
    last_entry_id    TEXT NOT NULL DEFAULT '',
    computed_at      TIMESTAMP NOT NULL
);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS sl_balances`)
				return err
			},
		},
	)
}
