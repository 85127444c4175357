package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/xraph/grove"
	"github.com/xraph/grove/drivers/sqlitedriver"
	_ "github.com/xraph/grove/drivers/sqlitedriver/sqlitemigrate"
	"github.com/xraph/grove/migrate"

	"github.com/xraph/cadence"
	"github.com/xraph/cadence/charge"
	"github.com/xraph/cadence/plan"
	cadencestore "github.com/xraph/cadence/store"
	"github.com/xraph/cadence/subscription"
	"github.com/xraph/cadence/types"
)

// compile-time interface check
var _ cadencestore.Store = (*Store)(nil)

// Store implements store.Store using SQLite via Grove ORM.
type Store struct {
	db  *grove.DB
	sdb *sqlitedriver.SqliteDB
}

// New creates a new SQLite store backed by Grove ORM.
func New(db *grove.DB) *Store {
	return &Store{
		db:  db,
		sdb: sqlitedriver.Unwrap(db),
	}
}

// DB returns the underlying grove database for direct access.
func (s *Store) DB() *grove.DB { return s.db }

// Migrate creates the required tables and indexes using the grove orchestrator.
func (s *Store) Migrate(ctx context.Context) error {
	executor, err := migrate.NewExecutorFor(s.sdb)
	if err != nil {
		return fmt.Errorf("cadence/sqlite: create migration executor: %w", err)
	}
	orch := migrate.NewOrchestrator(executor, Migrations)
	if _, err := orch.Migrate(ctx); err != nil {
		return fmt.Errorf("cadence/sqlite: migration failed: %w", err)
	}
	return nil
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// ==================== Plan Store ====================

// CreatePlan inserts p under the next sequential id. The id is computed in
// the same statement as the insert; a concurrent writer loses on the
// primary key rather than reusing an id.
func (s *Store) CreatePlan(ctx context.Context, p *plan.Plan) error {
	meta, err := marshalMetadata(p.Metadata)
	if err != nil {
		return err
	}

	var newID int64
	err = s.sdb.NewRaw(`
		INSERT INTO cadence_plans
			(id, provider, subscriber, token, amount, period_seconds, reward_bps, metadata, created_at, updated_at)
		VALUES
			((SELECT COALESCE(MAX(id), 0) + 1 FROM cadence_plans), ?, ?, ?, ?, ?, ?, ?, ?, ?)
		RETURNING id
	`,
		p.Provider.String(),
		p.Subscriber.String(),
		p.Token.String(),
		p.Amount.String(),
		p.PeriodSeconds(),
		int(p.RewardBps),
		meta,
		p.CreatedAt,
		p.UpdatedAt,
	).Scan(ctx, &newID)
	if err != nil {
		return err
	}
	p.ID = plan.ID(newID)
	return nil
}

func (s *Store) GetPlan(ctx context.Context, planID plan.ID) (*plan.Plan, error) {
	m := new(planModel)
	err := s.sdb.NewSelect(m).
		Where("id = ?", int64(planID)).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, cadence.ErrPlanNotFound
		}
		return nil, err
	}
	return fromPlanModel(m)
}

func (s *Store) ListPlans(ctx context.Context, opts plan.ListOpts) ([]*plan.Plan, error) {
	var models []planModel
	q := s.sdb.NewSelect(&models)

	if !opts.Provider.IsZero() {
		q = q.Where("provider = ?", opts.Provider.String())
	}
	if !opts.Subscriber.IsZero() {
		q = q.Where("subscriber = ?", opts.Subscriber.String())
	}
	if opts.Limit > 0 {
		q = q.Limit(opts.Limit)
	}
	if opts.Offset > 0 {
		q = q.Offset(opts.Offset)
	}
	q = q.OrderExpr("id ASC")

	if err := q.Scan(ctx); err != nil {
		return nil, err
	}

	result := make([]*plan.Plan, len(models))
	for i := range models {
		p, err := fromPlanModel(&models[i])
		if err != nil {
			return nil, err
		}
		result[i] = p
	}
	return result, nil
}

// ==================== Subscription Store ====================

func (s *Store) GetSubscription(ctx context.Context, subscriber types.Account, planID plan.ID) (*subscription.Subscription, error) {
	m := new(subscriptionModel)
	err := s.sdb.NewSelect(m).
		Where("subscriber = ?", subscriber.String()).
		Where("plan_id = ?", int64(planID)).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, cadence.ErrSubscriptionNotFound
		}
		return nil, err
	}
	return fromSubscriptionModel(m)
}

func (s *Store) SaveSubscription(ctx context.Context, sub *subscription.Subscription, prevVersion uint64) error {
	m := toSubscriptionModel(sub)

	if prevVersion == 0 {
		res, err := s.sdb.NewInsert(m).
			OnConflict("(subscriber, plan_id) DO NOTHING").
			Exec(ctx)
		if err != nil {
			return err
		}
		return conflictIfNone(res)
	}

	res, err := s.sdb.NewUpdate((*subscriptionModel)(nil)).
		Set("status = ?", m.Status).
		Set("next_due_at = ?", m.NextDueAt).
		Set("cycles_paid = ?", m.CyclesPaid).
		Set("version = ?", m.Version).
		Set("subscribed_at = ?", m.SubscribedAt).
		Set("canceled_at = ?", m.CanceledAt).
		Set("updated_at = ?", m.UpdatedAt).
		Where("subscriber = ?", m.Subscriber).
		Where("plan_id = ?", m.PlanID).
		Where("version = ?", int64(prevVersion)).
		Exec(ctx)
	if err != nil {
		return err
	}
	return conflictIfNone(res)
}

func (s *Store) ListSubscriptions(ctx context.Context, opts subscription.ListOpts) ([]*subscription.Subscription, error) {
	var models []subscriptionModel
	q := s.sdb.NewSelect(&models)

	if !opts.Subscriber.IsZero() {
		q = q.Where("subscriber = ?", opts.Subscriber.String())
	}
	if opts.PlanID != 0 {
		q = q.Where("plan_id = ?", int64(opts.PlanID))
	}
	if opts.Status != "" {
		q = q.Where("status = ?", string(opts.Status))
	}
	if !opts.DueBy.IsZero() {
		q = q.Where("next_due_at <= ?", opts.DueBy.Unix())
		q = q.OrderExpr("next_due_at ASC, plan_id ASC, subscriber ASC")
	} else {
		q = q.OrderExpr("created_at ASC, plan_id ASC, subscriber ASC")
	}
	if opts.Limit > 0 {
		q = q.Limit(opts.Limit)
	}
	if opts.Offset > 0 {
		q = q.Offset(opts.Offset)
	}

	if err := q.Scan(ctx); err != nil {
		return nil, err
	}

	result := make([]*subscription.Subscription, len(models))
	for i := range models {
		sub, err := fromSubscriptionModel(&models[i])
		if err != nil {
			return nil, err
		}
		result[i] = sub
	}
	return result, nil
}

// ==================== Charge Store ====================

// RecordCharges appends receipts. A receipt for an already recorded cycle
// is ignored.
func (s *Store) RecordCharges(ctx context.Context, charges []*charge.Charge) error {
	if len(charges) == 0 {
		return nil
	}
	models := make([]chargeModel, len(charges))
	for i, c := range charges {
		models[i] = *toChargeModel(c)
	}
	_, err := s.sdb.NewInsert(&models).
		OnConflict("(subscriber, plan_id, cycle) DO NOTHING").
		Exec(ctx)
	return err
}

func (s *Store) ListCharges(ctx context.Context, subscriber types.Account, planID plan.ID, opts charge.ListOpts) ([]*charge.Charge, error) {
	var models []chargeModel
	q := s.sdb.NewSelect(&models).
		Where("subscriber = ?", subscriber.String()).
		Where("plan_id = ?", int64(planID))

	if opts.Kind != "" {
		q = q.Where("kind = ?", string(opts.Kind))
	}
	if opts.Limit > 0 {
		q = q.Limit(opts.Limit)
	}
	if opts.Offset > 0 {
		q = q.Offset(opts.Offset)
	}
	q = q.OrderExpr("cycle ASC")

	if err := q.Scan(ctx); err != nil {
		return nil, err
	}

	result := make([]*charge.Charge, len(models))
	for i := range models {
		c, err := fromChargeModel(&models[i])
		if err != nil {
			return nil, err
		}
		result[i] = c
	}
	return result, nil
}

// ==================== Helpers ====================

type rowsAffecter interface {
	RowsAffected() (int64, error)
}

// conflictIfNone maps a write that touched no rows to cadence.ErrConflict.
func conflictIfNone(res rowsAffecter) error {
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return cadence.ErrConflict
	}
	return nil
}

func marshalMetadata(md map[string]string) (string, error) {
	if len(md) == 0 {
		return "{}", nil
	}
	b, err := json.Marshal(md)
	if err != nil {
		return "", fmt.Errorf("cadence/sqlite: encode metadata: %w", err)
	}
	return string(b), nil
}

// isNoRows checks for the standard sql.ErrNoRows sentinel.
func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}
