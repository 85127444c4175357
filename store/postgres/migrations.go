package postgres

import (
	"context"

	"github.com/xraph/grove/migrate"
)

// Migrations is the grove migration group for the Cadence store.
var Migrations = migrate.NewGroup("cadence")

func init() {
	Migrations.MustRegister(
		&migrate.Migration{
			Name:    "create_cadence_plans",
			Version: "20250101000001",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS cadence_plans (
    id             BIGINT PRIMARY KEY,
    provider       TEXT NOT NULL,
    subscriber     TEXT NOT NULL DEFAULT '',
    token          TEXT NOT NULL,
    amount         TEXT NOT NULL DEFAULT '0',
    period_seconds BIGINT NOT NULL,
    reward_bps     INT NOT NULL DEFAULT 0,
    metadata       JSONB NOT NULL DEFAULT '{}',
    created_at     TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at     TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_cadence_plans_provider ON cadence_plans (provider);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS cadence_plans`)
				return err
			},
		},
		&migrate.Migration{
			Name:    "create_cadence_subscriptions",
			Version: "20250101000002",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS cadence_subscriptions (
    id            TEXT PRIMARY KEY,
    subscriber    TEXT NOT NULL,
    plan_id       BIGINT NOT NULL REFERENCES cadence_plans (id),
    status        TEXT NOT NULL,
    next_due_at   BIGINT NOT NULL DEFAULT 0,
    cycles_paid   BIGINT NOT NULL DEFAULT 0,
    version       BIGINT NOT NULL DEFAULT 0,
    subscribed_at TIMESTAMPTZ,
    canceled_at   TIMESTAMPTZ,
    created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at    TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_cadence_subs_key ON cadence_subscriptions (subscriber, plan_id);
CREATE INDEX IF NOT EXISTS idx_cadence_subs_due ON cadence_subscriptions (status, next_due_at);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS cadence_subscriptions`)
				return err
			},
		},
		&migrate.Migration{
			Name:    "create_cadence_charges",
			Version: "20250101000003",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS cadence_charges (
    id              TEXT PRIMARY KEY,
    subscriber      TEXT NOT NULL,
    plan_id         BIGINT NOT NULL,
    cycle           BIGINT NOT NULL,
    kind            TEXT NOT NULL,
    token           TEXT NOT NULL,
    amount          TEXT NOT NULL,
    provider_amount TEXT NOT NULL,
    keeper_reward   TEXT NOT NULL,
    keeper          TEXT NOT NULL DEFAULT '',
    period_start    TIMESTAMPTZ NOT NULL,
    charged_at      TIMESTAMPTZ NOT NULL
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_cadence_charges_cycle ON cadence_charges (subscriber, plan_id, cycle);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS cadence_charges`)
				return err
			},
		},
	)
}
