package service

import (
	"context"

	"github.com/google/uuid"

	"github.com/micropay-ai/micropay.go/common"
	"github.com/micropay-ai/micropay.go/db/models"
)

// OrderStatus is the polling snapshot served to clients.
type OrderStatus struct {
	OrderID  string            `json:"order_id"`
	State    common.OrderState `json:"state"`
	Message  string            `json:"message"`
	Progress int               `json:"progress"`
	Images   []string          `json:"images,omitempty"`
}

func statusFor(orderID string, state common.OrderState, images []string) *OrderStatus {
	return &OrderStatus{
		OrderID:  orderID,
		State:    state,
		Message:  state.Message(),
		Progress: state.Progress(),
		Images:   images,
	}
}

func (j *Job) Snapshot() *OrderStatus {
	return statusFor(j.OrderID, j.State(), nil)
}

func generationParams(order *models.Order) GenerationParams {
	return GenerationParams{
		Prompt:    order.Prompt,
		NumImages: order.NumImages,
		Size:      order.Size,
	}
}

// GetOrderStatus drives the payment-gated pipeline from the polling
// side: a paid order with no live job gets one admitted right here, so
// the pipeline starts no matter which poll observes the payment first.
func (svc *MicropayService) GetOrderStatus(ctx context.Context, orderID string) (*OrderStatus, error) {
	order, err := svc.Orders.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}

	// finished orders are served straight from the database
	if order.State.Terminal() {
		return statusFor(order.ID, order.State, order.Results), nil
	}

	if order.TokenPaid() {
		// token orders are admitted at creation, the queue is authoritative
		if job := svc.Queue.Get(order.ID); job != nil {
			return job.Snapshot(), nil
		}
		job, _, err := svc.Queue.Admit(order.ID, generationParams(order))
		if err != nil {
			return nil, err
		}
		return job.Snapshot(), nil
	}

	invoice, err := svc.LndClient.GetInvoice(ctx, order.PaymentHash)
	if err != nil {
		return nil, err
	}
	if invoice.IsCanceled() {
		if _, err := svc.Orders.UpdateState(ctx, order.ID, common.OrderStateCanceled); err != nil {
			return nil, err
		}
		return statusFor(order.ID, common.OrderStateCanceled, nil), nil
	}
	if invoice.IsUnpaid() {
		return statusFor(order.ID, common.OrderStateInvoiceNotPaid, nil), nil
	}

	// invoice is held or settled, make sure a job is running
	job, admitted, err := svc.Queue.Admit(order.ID, generationParams(order))
	if err != nil {
		return nil, err
	}
	if admitted {
		svc.Logger.Infof("Admitted generation job for order %s", order.ID)
	}
	return job.Snapshot(), nil
}

// CreateTokenOrder spends one unit of a bulk token's quota and starts
// the generation pipeline immediately. Payment is already settled for
// token orders, so there is no invoice to gate on.
func (svc *MicropayService) CreateTokenOrder(ctx context.Context, tokenKey, prompt string) (*models.Order, error) {
	order := &models.Order{
		ID:        uuid.NewString(),
		TokenKey:  tokenKey,
		Prompt:    prompt,
		NumImages: svc.Config.GenerationCount,
		Size:      svc.Config.GenerationSize,
		State:     common.OrderStateGenerating,
	}
	if err := svc.Orders.CreateOrder(ctx, order); err != nil {
		return nil, err
	}
	if _, _, err := svc.Queue.Admit(order.ID, generationParams(order)); err != nil {
		return nil, err
	}
	svc.Logger.Infof("Created token order %s", order.ID)
	return order, nil
}
