package workflow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"cloud.google.com/go/pubsub"
	"github.com/mmdatafocus/backoffice/config"
	"github.com/mmdatafocus/backoffice/models"
	"github.com/mmdatafocus/backoffice/utils"
	"github.com/sirupsen/logrus"
)

const (
	EventInvoiceStatusChanged = "invoice.status_changed"
	EventReceiptCreated       = "receipt.created"
	EventJobOrderCompleted    = "job_order.completed"
	EventWaybillDelivered     = "waybill.delivered"
	EventCurrencyChanged      = "tenant.currency_changed"
)

// Notification is the lifecycle message published by the upstream modules.
type Notification struct {
	Event          string `json:"event" validate:"required,oneof=invoice.status_changed receipt.created job_order.completed waybill.delivered tenant.currency_changed"`
	TenantId       string `json:"tenant_id" validate:"required,max=64"`
	ActorId        string `json:"actor_id" validate:"max=64"`
	RecordId       string `json:"record_id" validate:"required_unless=Event tenant.currency_changed,max=128"`
	CurrencySymbol string `json:"currency_symbol" validate:"max=16"`
	CurrencyCode   string `json:"currency_code" validate:"max=8"`
	CorrelationId  string `json:"correlation_id"`
}

type Dispatcher struct {
	projector *Projector
	logger    *logrus.Logger
}

func NewDispatcher(projector *Projector) *Dispatcher {
	return &Dispatcher{projector: projector, logger: config.GetLogger()}
}

func (n Notification) scope() models.Scope {
	actor := n.ActorId
	if actor == "" {
		actor = models.SystemActorId
	}
	return models.NewScope(n.TenantId, actor)
}

// Handle routes one notification: qualifying records are projected, records that left their
// qualifying state have their projection retracted, and currency changes are restamped.
func (d *Dispatcher) Handle(ctx context.Context, n Notification) (Outcome, error) {
	if err := utils.ValidateStruct(&n); err != nil {
		return "", err
	}
	scope := n.scope()
	sources := d.projector.Sources()

	var pr projection
	switch n.Event {
	case EventCurrencyChanged:
		store := d.projector.Store()
		if _, err := RestampCurrency(ctx, store.DB(), store.Directory(), scope, n.CurrencySymbol, n.CurrencyCode); err != nil {
			return "", err
		}
		return OutcomeRepaired, nil
	case EventInvoiceStatusChanged:
		if sources.Invoices == nil {
			return "", notWired("invoices")
		}
		rec, err := sources.Invoices.GetByID(ctx, n.RecordId)
		if err != nil {
			return "", err
		}
		pr = invoiceRule(*rec)
	case EventReceiptCreated:
		if sources.Receipts == nil {
			return "", notWired("receipts")
		}
		rec, err := sources.Receipts.GetByID(ctx, n.RecordId)
		if err != nil {
			return "", err
		}
		pr = receiptRule(*rec)
	case EventJobOrderCompleted:
		if sources.JobOrders == nil {
			return "", notWired("job_orders")
		}
		rec, err := sources.JobOrders.GetByID(ctx, n.RecordId)
		if err != nil {
			return "", err
		}
		pr = jobOrderRule(*rec)
	case EventWaybillDelivered:
		if sources.Waybills == nil {
			return "", notWired("waybills")
		}
		rec, err := sources.Waybills.GetByID(ctx, n.RecordId)
		if err != nil {
			return "", err
		}
		pr = waybillRule(*rec)
	}

	if pr.tenantId != "" && pr.tenantId == scope.TenantId && !pr.qualifies {
		return d.projector.Retract(ctx, scope, pr.kind, pr.ref)
	}
	return d.projector.project(ctx, scope, pr, false)
}

func notWired(collaborator string) error {
	return utils.NewUpstreamError(collaborator, errors.New("collaborator not wired"))
}

// shouldRedeliver reports whether a failed message may succeed on a later delivery.
// Bad input, unknown records and authorization failures never will.
func shouldRedeliver(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	switch utils.KindOf(err) {
	case "BadNumber", "OutOfRange", "InvalidInput", "NotFound", "Forbidden", "DuplicateSource":
		return false
	}
	return true
}

// HandleMessage decodes and handles one raw message and reports whether it should be acked.
func (d *Dispatcher) HandleMessage(ctx context.Context, messageId string, data []byte) bool {
	var n Notification
	if err := json.Unmarshal(data, &n); err != nil {
		config.LogError(d.logger, "Dispatcher", "HandleMessage", "Unmarshaling pubsub message", string(data), err)
		return true
	}
	if n.CorrelationId != "" {
		ctx = utils.SetCorrelationIdInContext(ctx, n.CorrelationId)
	}
	n.CorrelationId = utils.CorrelationIdOrNew(ctx)
	ctx = utils.SetCorrelationIdInContext(ctx, n.CorrelationId)

	outcome, err := d.Handle(ctx, n)
	fields := logrus.Fields{
		"event":          n.Event,
		"tenant_id":      n.TenantId,
		"record_id":      n.RecordId,
		"message_id":     messageId,
		"correlation_id": n.CorrelationId,
	}
	if err != nil {
		fields["kind"] = utils.KindOf(err)
		if shouldRedeliver(err) {
			d.logger.WithFields(fields).Error("notification failed, redelivering: " + err.Error())
			return false
		}
		fields["error"] = err.Error()
		config.LogWarn(d.logger, "Dispatcher", "HandleMessage", "notification skipped", fields)
		return true
	}
	fields["outcome"] = outcome
	d.logger.WithFields(fields).Info("notification handled")
	return true
}

// Listen consumes notifications from sub until ctx is cancelled.
func (d *Dispatcher) Listen(ctx context.Context, sub *pubsub.Subscription, maxOutstanding int) error {
	if sub == nil {
		return fmt.Errorf("%w: subscription is required", utils.ErrInvalidInput)
	}
	if maxOutstanding > 0 {
		sub.ReceiveSettings.MaxOutstandingMessages = maxOutstanding
	}
	callback := func(ctx context.Context, msg *pubsub.Message) {
		if d.HandleMessage(ctx, msg.ID, msg.Data) {
			msg.Ack()
			return
		}
		msg.Nack()
	}
	err := sub.Receive(ctx, callback)
	if err != nil && !errors.Is(err, context.Canceled) {
		config.LogError(d.logger, "Dispatcher", "Listen", "Receive", sub.ID(), err)
		return err
	}
	return nil
}
