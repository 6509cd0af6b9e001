package movement

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"pharmastock/internal/core/apperror"
	"pharmastock/internal/core/id"
	"pharmastock/internal/core/numerator"
	"pharmastock/internal/core/tx"
	"pharmastock/pkg/logger"
)

// Engine executes stock movements. It is safe for concurrent use; all
// coordination happens through row locks in the database.
type Engine struct {
	store    Store
	txm      tx.Manager
	numbers  numerator.Generator
	policies PolicyProvider
	matcher  Matcher
	rules    *RuleSet
	notifier Notifier
	now      func() time.Time
	tracer   trace.Tracer
}

// Option configures an Engine.
type Option func(*Engine)

// WithRules adds tenant CEL rules evaluated before balances change.
func WithRules(rs *RuleSet) Option {
	return func(e *Engine) { e.rules = rs }
}

// WithNotifier sets the balance change notifier. It runs in the movement
// transaction; delivery to subscribers happens after commit.
func WithNotifier(n Notifier) Option {
	return func(e *Engine) { e.notifier = n }
}

// WithClock overrides the clock used when a command has no timestamp.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// NewEngine creates a movement engine.
func NewEngine(store Store, txm tx.Manager, numbers numerator.Generator, policies PolicyProvider, opts ...Option) *Engine {
	e := &Engine{
		store:    store,
		txm:      txm,
		numbers:  numbers,
		policies: policies,
		matcher:  NewMatcher(store.Requests),
		now:      time.Now,
		tracer:   otel.Tracer("pharmastock/movement"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Execute validates and records one movement atomically. Business failures are
// returned as *apperror.AppError with their code and details intact.
func (e *Engine) Execute(ctx context.Context, cmd Command) (*Result, error) {
	if err := cmd.Validate(); err != nil {
		return nil, err
	}

	at := e.now()
	if cmd.CreatedAt != nil {
		at = *cmd.CreatedAt
	}
	at = at.UTC()

	policy, err := e.policies.PolicyFor(ctx, cmd.TenantID)
	if err != nil {
		return nil, fmt.Errorf("resolve policy: %w", err)
	}

	ctx, span := e.tracer.Start(ctx, "movement.execute",
		trace.WithAttributes(
			attribute.String("tenant.id", cmd.TenantID.String()),
			attribute.String("movement.type", string(cmd.Type)),
		),
	)
	defer span.End()

	var res *Result
	err = e.txm.RunInTransaction(ctx, func(ctx context.Context) error {
		r, err := e.run(ctx, cmd, policy, at)
		if err != nil {
			return err
		}
		res = r
		return nil
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	span.SetAttributes(attribute.String("movement.number", res.Movement.SequenceNumber))
	logger.Info(ctx, "movement recorded",
		"number", res.Movement.SequenceNumber,
		"type", res.Movement.Type,
		"product_id", res.Movement.ProductID,
		"quantity", res.Movement.Quantity.String(),
		"fulfilled_requests", len(res.FulfilledRequests),
	)

	return res, nil
}

// run is the transactional body of Execute.
func (e *Engine) run(ctx context.Context, cmd Command, policy Policy, at time.Time) (*Result, error) {
	product, err := e.store.Products.GetProduct(ctx, cmd.TenantID, cmd.ProductID)
	if err != nil {
		return nil, err
	}
	if !product.IsActive {
		return nil, apperror.NewProductInactive(product.ID)
	}

	_, to, err := checkLocations(ctx, e.store.Locations, cmd)
	if err != nil {
		return nil, err
	}

	if cmd.BatchID == nil && policy.FEFO && cmd.Type == TypeOut {
		picked, err := e.pickBatch(ctx, cmd, policy, at)
		if err != nil {
			return nil, err
		}
		if picked != nil {
			cmd.BatchID = &picked.ID
			logger.Debug(ctx, "fefo batch picked",
				"product_id", cmd.ProductID,
				"batch_id", picked.ID,
				"batch_number", picked.BatchNumber,
				"expires_at", picked.ExpiresAt,
			)
		}
	}

	var batch *Batch
	if cmd.BatchID != nil {
		batch, err = e.loadBatch(ctx, cmd)
		if err != nil {
			return nil, err
		}
		if cmd.Decreases() {
			if err := CheckBatch(policy, batch, at); err != nil {
				return nil, err
			}
		}
	}

	if err := e.rules.Evaluate(cmd, batch, at); err != nil {
		return nil, err
	}

	l := ledger{balances: e.store.Balances, userID: cmd.UserID, now: at}
	balances, err := l.apply(ctx, plan(cmd.TenantID, cmd.ProductID, cmd.BatchID, cmd.legs()))
	if err != nil {
		return nil, err
	}

	number, err := e.numbers.Next(ctx, cmd.TenantID, at.Year(), policy.NumberKey())
	if err != nil {
		return nil, fmt.Errorf("next movement number: %w", err)
	}

	m := newMovement(cmd, number, at)
	if err := e.store.Movements.Insert(ctx, m); err != nil {
		return nil, fmt.Errorf("insert movement: %w", err)
	}

	if cmd.OpensBatch() && batch.OpenedAt == nil {
		if _, err := e.store.Batches.MarkOpened(ctx, cmd.TenantID, *cmd.BatchID, at, cmd.UserID); err != nil {
			return nil, fmt.Errorf("mark batch opened: %w", err)
		}
	}

	res := &Result{
		Movement:    m,
		FromBalance: balances[sideFrom],
		ToBalance:   balances[sideTo],
	}

	if cmd.Type == TypeIn && to != nil && policy.Fulfillment != FulfillmentDisabled {
		res.FulfilledRequests = e.fulfill(ctx, policy.Fulfillment, MatchInput{
			TenantID:  cmd.TenantID,
			ProductID: cmd.ProductID,
			City:      to.City,
			Received:  cmd.Quantity,
			At:        at,
			By:        cmd.UserID,
		})
	}

	e.notify(ctx, res)
	return res, nil
}

// loadBatch reads the batch of cmd. Movements that add stock take no lock.
// Decreasing movements share the row so a quarantine waits for them, and only
// the first opening of a batch locks it exclusively. opened_at is never
// cleared, so an unlocked read that sees it set stays valid.
func (e *Engine) loadBatch(ctx context.Context, cmd Command) (*Batch, error) {
	batches := e.store.Batches
	if !cmd.Decreases() {
		return batches.Get(ctx, cmd.TenantID, cmd.ProductID, *cmd.BatchID, BatchLockNone)
	}

	lock := BatchLockShare
	if cmd.OpensBatch() {
		current, err := batches.Get(ctx, cmd.TenantID, cmd.ProductID, *cmd.BatchID, BatchLockNone)
		if err != nil {
			return nil, err
		}
		if current.OpenedAt == nil {
			lock = BatchLockOpen
		}
	}
	return batches.Get(ctx, cmd.TenantID, cmd.ProductID, *cmd.BatchID, lock)
}

func (e *Engine) pickBatch(ctx context.Context, cmd Command, policy Policy, at time.Time) (*Batch, error) {
	cands, err := e.store.Balances.ListBatchCandidates(ctx, cmd.TenantID, *cmd.FromLocationID, cmd.ProductID)
	if err != nil {
		return nil, fmt.Errorf("list fefo candidates: %w", err)
	}
	return pickFEFO(policy, cands, cmd.Quantity, at), nil
}

// fulfill runs the matcher in a savepoint. Its failures never reach the caller.
func (e *Engine) fulfill(ctx context.Context, mode FulfillmentMode, in MatchInput) []id.ID {
	var ids []id.ID
	err := e.txm.RunInSavepoint(ctx, func(ctx context.Context) (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("fulfillment panic: %v", r)
			}
		}()
		ids, err = e.matcher.Match(ctx, mode, in)
		return err
	})
	if err != nil {
		logger.Warn(ctx, "request fulfillment skipped",
			"product_id", in.ProductID,
			"city", in.City,
			"error", err,
		)
		return nil
	}
	return ids
}

// notify stages the balance change event in a savepoint, so it commits with
// the movement while a failing notifier cannot abort it.
func (e *Engine) notify(ctx context.Context, res *Result) {
	if e.notifier == nil {
		return
	}
	changed := make([]*Balance, 0, 2)
	for _, b := range []*Balance{res.FromBalance, res.ToBalance} {
		if b != nil {
			changed = append(changed, b)
		}
	}
	if len(changed) == 0 {
		return
	}
	err := e.txm.RunInSavepoint(ctx, func(ctx context.Context) error {
		return e.notifier.BalancesChanged(ctx, res.Movement, changed)
	})
	if err != nil {
		logger.Warn(ctx, "balance change event dropped",
			"movement_id", res.Movement.ID,
			"error", err,
		)
	}
}

func newMovement(cmd Command, n numerator.Number, at time.Time) *Movement {
	return &Movement{
		ID:                   id.New(),
		TenantID:             cmd.TenantID,
		SequenceNumber:       n.Formatted,
		SequenceValue:        n.Value,
		SequenceYear:         n.Year,
		Type:                 cmd.Type,
		ProductID:            cmd.ProductID,
		BatchID:              cmd.BatchID,
		FromLocationID:       cmd.FromLocationID,
		ToLocationID:         cmd.ToLocationID,
		Quantity:             cmd.Quantity,
		PresentationID:       cmd.PresentationID,
		PresentationQuantity: cmd.PresentationQuantity,
		ReferenceType:        cmd.ReferenceType,
		ReferenceID:          cmd.ReferenceID,
		Note:                 cmd.Note,
		CreatedAt:            at,
		CreatedBy:            cmd.UserID,
	}
}
