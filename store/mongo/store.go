package mongo

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/xraph/grove"
	"github.com/xraph/grove/drivers/mongodriver"

	"github.com/xraph/cadence"
	"github.com/xraph/cadence/charge"
	"github.com/xraph/cadence/plan"
	cadencestore "github.com/xraph/cadence/store"
	"github.com/xraph/cadence/subscription"
	"github.com/xraph/cadence/types"
)

// Collection name constants.
const (
	colPlans         = "cadence_plans"
	colSubscriptions = "cadence_subscriptions"
	colCharges       = "cadence_charges"
	colCounters      = "cadence_counters"
)

// planSequence is the counter document holding the last assigned plan id.
const planSequence = "plans"

// compile-time interface check
var _ cadencestore.Store = (*Store)(nil)

// Store implements store.Store using MongoDB via Grove ORM.
type Store struct {
	db  *grove.DB
	mdb *mongodriver.MongoDB
}

// New creates a new MongoDB store backed by Grove ORM.
func New(db *grove.DB) *Store {
	return &Store{
		db:  db,
		mdb: mongodriver.Unwrap(db),
	}
}

// DB returns the underlying grove database for direct access.
func (s *Store) DB() *grove.DB { return s.db }

// Migrate creates indexes for all cadence collections.
func (s *Store) Migrate(ctx context.Context) error {
	indexes := migrationIndexes()

	for col, models := range indexes {
		if len(models) == 0 {
			continue
		}
		_, err := s.mdb.Collection(col).Indexes().CreateMany(ctx, models)
		if err != nil {
			return fmt.Errorf("cadence/mongo: migrate %s indexes: %w", col, err)
		}
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

func (s *Store) CreatePlan(ctx context.Context, p *plan.Plan) error {
	return createWithID(ctx, counterIDs{s}, p, func(ctx context.Context, p *plan.Plan) error {
		if _, err := s.mdb.NewInsert(toPlanModel(p)).Exec(ctx); err != nil {
			return fmt.Errorf("cadence/mongo: create plan: %w", err)
		}
		return nil
	})
}

// planIDs hands out sequential plan ids.
type planIDs interface {
	next(ctx context.Context) (int64, error)
	// release returns n to the sequence if it is still the latest id.
	release(ctx context.Context, n int64) error
}

// createWithID assigns the next id to p and inserts it. A failed insert
// gives the id back so the sequence has no gap, unless another plan took a
// later id in the meantime.
func createWithID(ctx context.Context, ids planIDs, p *plan.Plan, insert func(context.Context, *plan.Plan) error) error {
	n, err := ids.next(ctx)
	if err != nil {
		return err
	}
	p.ID = plan.ID(n)

	if err := insert(ctx, p); err != nil {
		p.ID = 0
		if rerr := ids.release(ctx, n); rerr != nil {
			return errors.Join(err, rerr)
		}
		return err
	}
	return nil
}

// counterIDs keeps the plan sequence in the counters collection.
type counterIDs struct{ s *Store }

func (c counterIDs) next(ctx context.Context) (int64, error) {
	var doc counterModel
	err := c.s.mdb.Collection(colCounters).FindOneAndUpdate(ctx,
		bson.M{"_id": planSequence},
		bson.M{"$inc": bson.M{"seq": int64(1)}},
		options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After),
	).Decode(&doc)
	if err != nil {
		return 0, fmt.Errorf("cadence/mongo: next plan id: %w", err)
	}
	return doc.Seq, nil
}

func (c counterIDs) release(ctx context.Context, n int64) error {
	_, err := c.s.mdb.Collection(colCounters).UpdateOne(ctx,
		bson.M{"_id": planSequence, "seq": n},
		bson.M{"$inc": bson.M{"seq": int64(-1)}},
	)
	if err != nil {
		return fmt.Errorf("cadence/mongo: release plan id %d: %w", n, err)
	}
	return nil
}

func (s *Store) GetPlan(ctx context.Context, planID plan.ID) (*plan.Plan, error) {
	var m planModel
	err := s.mdb.NewFind(&m).
		Filter(bson.M{"_id": int64(planID)}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, cadence.ErrPlanNotFound
		}
		return nil, fmt.Errorf("cadence/mongo: get plan: %w", err)
	}
	return fromPlanModel(&m)
}

func (s *Store) ListPlans(ctx context.Context, opts plan.ListOpts) ([]*plan.Plan, error) {
	var models []planModel
	filter := bson.M{}
	if !opts.Provider.IsZero() {
		filter["provider"] = opts.Provider.String()
	}
	if !opts.Subscriber.IsZero() {
		filter["subscriber"] = opts.Subscriber.String()
	}

	q := s.mdb.NewFind(&models).
		Filter(filter).
		Sort(bson.D{{Key: "_id", Value: 1}})

	if opts.Limit > 0 {
		q = q.Limit(int64(opts.Limit))
	}
	if opts.Offset > 0 {
		q = q.Skip(int64(opts.Offset))
	}

	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("cadence/mongo: list plans: %w", err)
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
	var m subscriptionModel
	err := s.mdb.NewFind(&m).
		Filter(bson.M{"subscriber": subscriber.String(), "plan_id": int64(planID)}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, cadence.ErrSubscriptionNotFound
		}
		return nil, fmt.Errorf("cadence/mongo: get subscription: %w", err)
	}
	return fromSubscriptionModel(&m)
}

func (s *Store) SaveSubscription(ctx context.Context, sub *subscription.Subscription, prevVersion uint64) error {
	m := toSubscriptionModel(sub)

	if prevVersion == 0 {
		if _, err := s.mdb.NewInsert(m).Exec(ctx); err != nil {
			if mongo.IsDuplicateKeyError(err) {
				return cadence.ErrConflict
			}
			return fmt.Errorf("cadence/mongo: insert subscription: %w", err)
		}
		return nil
	}

	res, err := s.mdb.NewUpdate((*subscriptionModel)(nil)).
		Filter(bson.M{
			"subscriber": m.Subscriber,
			"plan_id":    m.PlanID,
			"version":    int64(prevVersion),
		}).
		Set("status", m.Status).
		Set("next_due_at", m.NextDueAt).
		Set("cycles_paid", m.CyclesPaid).
		Set("version", m.Version).
		Set("subscribed_at", m.SubscribedAt).
		Set("canceled_at", m.CanceledAt).
		Set("updated_at", m.UpdatedAt).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("cadence/mongo: update subscription: %w", err)
	}
	if res.MatchedCount() == 0 {
		return cadence.ErrConflict
	}
	return nil
}

func (s *Store) ListSubscriptions(ctx context.Context, opts subscription.ListOpts) ([]*subscription.Subscription, error) {
	var models []subscriptionModel
	filter := bson.M{}
	if !opts.Subscriber.IsZero() {
		filter["subscriber"] = opts.Subscriber.String()
	}
	if opts.PlanID != 0 {
		filter["plan_id"] = int64(opts.PlanID)
	}
	if opts.Status != "" {
		filter["status"] = string(opts.Status)
	}

	sort := bson.D{{Key: "created_at", Value: 1}, {Key: "plan_id", Value: 1}, {Key: "subscriber", Value: 1}}
	if !opts.DueBy.IsZero() {
		filter["next_due_at"] = bson.M{"$lte": opts.DueBy}
		sort = bson.D{{Key: "next_due_at", Value: 1}, {Key: "plan_id", Value: 1}, {Key: "subscriber", Value: 1}}
	}

	q := s.mdb.NewFind(&models).
		Filter(filter).
		Sort(sort)

	if opts.Limit > 0 {
		q = q.Limit(int64(opts.Limit))
	}
	if opts.Offset > 0 {
		q = q.Skip(int64(opts.Offset))
	}

	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("cadence/mongo: list subscriptions: %w", err)
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

func (s *Store) RecordCharges(ctx context.Context, charges []*charge.Charge) error {
	for _, c := range charges {
		m := toChargeModel(c)
		_, err := s.mdb.NewInsert(m).Exec(ctx)
		if err != nil {
			// Skip duplicates for idempotency
			if mongo.IsDuplicateKeyError(err) {
				continue
			}
			return fmt.Errorf("cadence/mongo: record charge: %w", err)
		}
	}
	return nil
}

func (s *Store) ListCharges(ctx context.Context, subscriber types.Account, planID plan.ID, opts charge.ListOpts) ([]*charge.Charge, error) {
	var models []chargeModel
	filter := bson.M{"subscriber": subscriber.String(), "plan_id": int64(planID)}
	if opts.Kind != "" {
		filter["kind"] = string(opts.Kind)
	}

	q := s.mdb.NewFind(&models).
		Filter(filter).
		Sort(bson.D{{Key: "cycle", Value: 1}})

	if opts.Limit > 0 {
		q = q.Limit(int64(opts.Limit))
	}
	if opts.Offset > 0 {
		q = q.Skip(int64(opts.Offset))
	}

	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("cadence/mongo: list charges: %w", err)
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

// isNoDocuments checks if an error wraps mongo.ErrNoDocuments.
func isNoDocuments(err error) bool {
	return errors.Is(err, mongo.ErrNoDocuments)
}

// migrationIndexes returns the index definitions for all cadence collections.
func migrationIndexes() map[string][]mongo.IndexModel {
	return map[string][]mongo.IndexModel{
		colPlans: {
			{Keys: bson.D{{Key: "provider", Value: 1}}},
		},
		colSubscriptions: {
			{
				Keys:    bson.D{{Key: "subscriber", Value: 1}, {Key: "plan_id", Value: 1}},
				Options: options.Index().SetUnique(true),
			},
			{Keys: bson.D{{Key: "status", Value: 1}, {Key: "next_due_at", Value: 1}}},
		},
		colCharges: {
			{
				Keys:    bson.D{{Key: "subscriber", Value: 1}, {Key: "plan_id", Value: 1}, {Key: "cycle", Value: 1}},
				Options: options.Index().SetUnique(true),
			},
		},
	}
}
