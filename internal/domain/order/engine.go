package order

import (
	"context"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/ehr/clinic/internal/domain/audit"
	"github.com/ehr/clinic/internal/domain/inventory"
	"github.com/ehr/clinic/internal/platform/apperr"
	"github.com/ehr/clinic/internal/platform/auth"
	"github.com/ehr/clinic/internal/platform/db"
	"github.com/ehr/clinic/internal/platform/middleware"
	"github.com/ehr/clinic/internal/platform/telemetry"
)

const objectType = "prescription"

// Stock is the part of the inventory ledger the engine draws against.
type Stock interface {
	LockItems(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]*inventory.Item, error)
	CheckAndReserve(ctx context.Context, itemID uuid.UUID, quantity int) (*inventory.Reservation, error)
}

// RetryConfig bounds how often a fulfillment that lost a lock race is
// attempted again.
type RetryConfig struct {
	MaxAttempts     int
	InitialInterval time.Duration
}

// Engine creates orders. Each attempt runs in one transaction that covers
// the referential checks, every stock decrement and every row insert.
type Engine struct {
	repo    Repository
	stock   Stock
	tx      db.TxRunner
	audit   audit.Recorder
	metrics *telemetry.Metrics
	logger  zerolog.Logger
	tracer  trace.Tracer
	retry   RetryConfig
}

func NewEngine(repo Repository, stock Stock, tx db.TxRunner, recorder audit.Recorder,
	metrics *telemetry.Metrics, logger zerolog.Logger, retry RetryConfig) *Engine {
	if recorder == nil {
		recorder = audit.Nop{}
	}
	if retry.MaxAttempts < 1 {
		retry.MaxAttempts = 1
	}
	if retry.InitialInterval <= 0 {
		retry.InitialInterval = 50 * time.Millisecond
	}
	return &Engine{
		repo:    repo,
		stock:   stock,
		tx:      tx,
		audit:   recorder,
		metrics: metrics,
		logger:  logger.With().Str("component", "fulfillment").Logger(),
		tracer:  telemetry.Tracer(),
		retry:   retry,
	}
}

// CreateOrder validates req and atomically persists the order, its items and
// the stock decrements they imply. Lock timeouts and deadlocks are retried
// with backoff; every other failure aborts immediately.
func (e *Engine) CreateOrder(ctx context.Context, actor auth.Actor, req CreateRequest) (o *Order, err error) {
	start := time.Now()
	ctx = auth.WithActor(ctx, actor)
	ctx, span := e.tracer.Start(ctx, "order.create", trace.WithAttributes(
		attribute.String("order.patient_id", req.PatientID.String()),
		attribute.String("order.clinician_id", req.ClinicianID.String()),
		attribute.Int("order.items", len(req.Items)),
	))
	defer func() {
		if err != nil {
			kind := apperr.KindOf(err)
			span.SetAttributes(attribute.String("error.kind", string(kind)))
			e.metrics.OrderFailed(string(kind), time.Since(start))
		} else {
			e.metrics.OrderCreated(time.Since(start))
		}
		telemetry.EndSpan(span, err)
	}()

	if err := auth.Authorize(actor.Role, auth.OpOrderCreate); err != nil {
		return nil, err
	}
	status, err := validate(req)
	if err != nil {
		return nil, err
	}

	var committed *Order
	attempt := 0
	op := func() error {
		attempt++
		var aerr error
		committed, aerr = e.attempt(ctx, attempt, req, status)
		if aerr != nil && !apperr.IsRetryable(aerr) {
			return backoff.Permanent(aerr)
		}
		return aerr
	}
	notify := func(err error, wait time.Duration) {
		e.metrics.LockRetry()
		e.logger.Warn().Err(err).
			Int("attempt", attempt).
			Dur("backoff", wait).
			Str("request_id", middleware.RequestIDFromContext(ctx)).
			Msg("fulfillment contended, retrying")
	}
	if err := backoff.RetryNotify(op, e.policy(ctx), notify); err != nil {
		return nil, db.Classify(err)
	}
	id := committed.ID
	span.SetAttributes(attribute.String("order.id", id.String()), attribute.Int("order.attempts", attempt))

	e.audit.Record(ctx, audit.Entry{Verb: audit.ActionCreate, ObjectType: objectType, ObjectID: id.String(), Payload: req})

	// The order is committed; a failed re-read must not turn it into an error.
	full, lerr := load(context.WithoutCancel(ctx), e.repo, id)
	if lerr != nil {
		e.logger.Warn().Err(lerr).
			Str("order_id", id.String()).
			Str("request_id", middleware.RequestIDFromContext(ctx)).
			Msg("reload after commit failed, returning committed order")
		return committed, nil
	}
	return full, nil
}

func (e *Engine) policy(ctx context.Context) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = e.retry.InitialInterval
	b.MaxElapsedTime = 0
	return backoff.WithContext(backoff.WithMaxRetries(b, uint64(e.retry.MaxAttempts-1)), ctx)
}

// attempt runs one transaction and returns the order as written, with the
// names and stock details it read along the way.
func (e *Engine) attempt(ctx context.Context, n int, req CreateRequest, status Status) (out *Order, err error) {
	ctx, span := e.tracer.Start(ctx, "order.create.attempt", trace.WithAttributes(attribute.Int("attempt", n)))
	defer func() { telemetry.EndSpan(span, err) }()

	err = e.tx.InTx(ctx, func(ctx context.Context) error {
		patient, err := e.repo.GetPatient(ctx, req.PatientID)
		if err != nil {
			return notFound(err, "Patient not found")
		}
		clinician, err := e.repo.GetClinicianName(ctx, req.ClinicianID)
		if err != nil {
			return notFound(err, "Clinician not found")
		}

		var refs []uuid.UUID
		for _, in := range req.Items {
			if in.InventoryID != nil {
				refs = append(refs, *in.InventoryID)
			}
		}
		stocked, err := e.stock.LockItems(ctx, refs)
		if err != nil {
			return err
		}

		o := &Order{
			PatientID:     req.PatientID,
			ClinicianID:   req.ClinicianID,
			Notes:         req.Notes,
			Status:        status,
			PatientName:   patient.FullName(),
			ClinicianName: clinician,
			Items:         make([]*Item, 0, len(req.Items)),
		}
		if err := e.repo.Insert(ctx, o); err != nil {
			return err
		}

		for i, in := range req.Items {
			it := &Item{
				OrderID:      o.ID,
				Position:     i + 1,
				InventoryID:  in.InventoryID,
				Dose:         in.Dose,
				Frequency:    in.Frequency,
				Route:        in.Route,
				Quantity:     in.Quantity,
				Instructions: in.Instructions,
			}
			if in.MedName != nil {
				it.MedName = strings.TrimSpace(*in.MedName)
			}
			if in.InventoryID != nil {
				res, err := e.stock.CheckAndReserve(ctx, *in.InventoryID, in.quantity())
				if err != nil {
					return err
				}
				inv := stocked[*in.InventoryID]
				if it.MedName == "" {
					it.MedName = inv.Name
				}
				sku := inv.SKU
				it.SKU, it.BatchNumber = &sku, inv.BatchNumber
				span.AddEvent("stock.reserved", trace.WithAttributes(
					attribute.String("inventory.sku", res.SKU),
					attribute.Int("inventory.prior", res.Prior),
					attribute.Int("inventory.new", res.New),
				))
			}
			if err := e.repo.InsertItem(ctx, it); err != nil {
				return err
			}
			o.Items = append(o.Items, it)
		}
		out = o
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// validate checks the request shape before any transaction is opened.
func validate(req CreateRequest) (Status, error) {
	status := StatusActive
	if req.Status != nil {
		st, err := ParseStatus(*req.Status)
		if err != nil {
			return "", err
		}
		status = st
	}
	if req.PatientID == uuid.Nil {
		return "", apperr.InvalidState("patient_id is required")
	}
	if req.ClinicianID == uuid.Nil {
		return "", apperr.InvalidState("clinician_id is required")
	}
	if len(req.Items) == 0 {
		return "", apperr.InvalidState("at least one item is required")
	}
	for i, in := range req.Items {
		hasName := in.MedName != nil && strings.TrimSpace(*in.MedName) != ""
		if !hasName && in.InventoryID == nil {
			return "", apperr.InvalidState("item %d needs a med_name or an inventory_id", i+1)
		}
		if in.Quantity != nil && *in.Quantity < 0 {
			return "", apperr.InvalidState("item %d quantity must not be negative", i+1)
		}
	}
	return status, nil
}

// load returns the order with names and items filled in.
func load(ctx context.Context, repo Repository, id uuid.UUID) (*Order, error) {
	o, err := repo.GetByID(ctx, id)
	if err != nil {
		return nil, notFound(err, "Prescription not found")
	}
	items, err := repo.ItemsFor(ctx, []uuid.UUID{id})
	if err != nil {
		return nil, db.Classify(err)
	}
	o.Items = items[id]
	if o.Items == nil {
		o.Items = []*Item{}
	}
	return o, nil
}

func notFound(err error, msg string) error {
	err = db.Classify(err)
	if apperr.Is(err, apperr.KindNotFound) {
		return apperr.NotFound("%s", msg)
	}
	return err
}
