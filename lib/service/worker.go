package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/micropay-ai/micropay.go/common"
	"github.com/micropay-ai/micropay.go/dalle"
	"github.com/micropay-ai/micropay.go/db/models"
)

// StartWorkers launches the generation worker pool.
func (svc *MicropayService) StartWorkers(ctx context.Context) {
	svc.Queue.Start(ctx, svc.Config.WorkerCount, svc.ProcessJob)
}

// ProcessJob runs the full pipeline for one order: generate, upload,
// save the results, then settle the held payment. The result write is
// conditional and settlement only follows a won write, so the preimage
// is released at most once per order.
func (svc *MicropayService) ProcessJob(ctx context.Context, job *Job) {
	order, err := svc.Orders.GetOrder(ctx, job.OrderID)
	if err != nil {
		svc.Logger.Errorf("Failed to load order %s for processing: %v", job.OrderID, err)
		svc.Queue.Forget(job.OrderID)
		return
	}
	if order.State.Terminal() {
		svc.Queue.Forget(job.OrderID)
		return
	}

	// a previous run may have saved results but died before finalizing
	if len(order.Results) > 0 {
		svc.finalizeOrder(ctx, job, order)
		return
	}

	if !order.TokenPaid() {
		invoice, err := svc.LndClient.GetInvoice(ctx, order.PaymentHash)
		if err != nil {
			svc.Logger.Errorf("Failed to look up invoice %s before generating: %v", order.PaymentHash, err)
			svc.Queue.Forget(job.OrderID)
			return
		}
		if invoice.IsCanceled() {
			svc.Orders.UpdateState(ctx, order.ID, common.OrderStateCanceled)
			job.SetState(common.OrderStateCanceled)
			svc.Queue.Forget(job.OrderID)
			return
		}
		if invoice.IsUnpaid() {
			// admission saw the invoice held, this should not happen
			svc.Logger.Warnf("Invoice %s no longer held, abandoning job for order %s", order.PaymentHash, order.ID)
			svc.Queue.Forget(job.OrderID)
			return
		}
	}

	job.SetState(common.OrderStateGenerating)
	svc.Orders.UpdateState(ctx, order.ID, common.OrderStateGenerating)

	var uploaded []string
	operation := func() error {
		urls, err := svc.Generator.Generate(ctx, job.Params.Prompt, job.Params.NumImages, job.Params.Size)
		if err != nil {
			var modErr *dalle.ModerationError
			if errors.As(err, &modErr) {
				// retrying a rejected prompt cannot succeed
				return backoff.Permanent(err)
			}
			return err
		}

		job.SetState(common.OrderStateUploading)
		svc.Orders.UpdateState(ctx, order.ID, common.OrderStateUploading)

		uploaded = uploaded[:0]
		for i, url := range urls {
			data, err := svc.Generator.Fetch(ctx, url)
			if err != nil {
				return err
			}
			objectName := fmt.Sprintf("%s/%d.png", order.ID, i)
			publicURL, err := svc.Uploader.Upload(ctx, objectName, data, "image/png")
			if err != nil {
				return err
			}
			uploaded = append(uploaded, publicURL)
		}
		return nil
	}

	if err := backoff.Retry(operation, svc.retryPolicy(ctx)); err != nil {
		svc.failOrder(ctx, job, order, err)
		return
	}

	job.SetState(common.OrderStateSaving)
	svc.Orders.UpdateState(ctx, order.ID, common.OrderStateSaving)

	if _, err := svc.Orders.SaveResults(ctx, order.ID, uploaded); err != nil {
		svc.Logger.Errorf("Failed to save results for order %s: %v", order.ID, err)
		svc.Queue.Forget(job.OrderID)
		return
	}

	// re-read to pick up the winning results, whoever wrote them
	fresh, err := svc.Orders.GetOrder(ctx, order.ID)
	if err != nil {
		svc.Logger.Errorf("Failed to reload order %s after saving results: %v", order.ID, err)
		svc.Queue.Forget(job.OrderID)
		return
	}
	if fresh.State.Terminal() && fresh.State != common.OrderStateGenerated {
		svc.Queue.Forget(job.OrderID)
		return
	}
	svc.finalizeOrder(ctx, job, fresh)
}

func (svc *MicropayService) retryPolicy(ctx context.Context) backoff.BackOff {
	expo := backoff.NewExponentialBackOff()
	expo.InitialInterval = time.Duration(svc.Config.JobBackoffInterval) * time.Second
	retries := svc.Config.JobMaxAttempts
	if retries > 0 {
		retries--
	}
	return backoff.WithContext(backoff.WithMaxRetries(expo, retries), ctx)
}

// finalizeOrder settles the held payment for the saved results and
// seals the order. Settlement is idempotent, a crash between saving and
// settling is repaired on the next run.
func (svc *MicropayService) finalizeOrder(ctx context.Context, job *Job, order *models.Order) {
	if !order.TokenPaid() {
		if err := svc.settleOrderInvoice(ctx, order); err != nil {
			// leave the order in SAVING, recovery will retry settlement
			svc.Logger.Errorf("Failed to settle invoice %s for order %s: %v", order.PaymentHash, order.ID, err)
			svc.Queue.Forget(job.OrderID)
			return
		}
	}
	if _, err := svc.Orders.UpdateState(ctx, order.ID, common.OrderStateGenerated); err != nil {
		svc.Logger.Errorf("Failed to mark order %s generated: %v", order.ID, err)
		svc.Queue.Forget(job.OrderID)
		return
	}
	job.SetState(common.OrderStateGenerated)
	svc.Logger.Infof("Order %s generated, %d images", order.ID, len(order.Results))
	svc.notify(ctx, common.EventOrderSettled, map[string]interface{}{
		"order_id":     order.ID,
		"payment_hash": order.PaymentHash,
		"images":       order.Results,
	})
	svc.Queue.Forget(job.OrderID)
}

// failOrder seals the order as failed and releases the held payment so
// the payer is never charged for an undelivered generation. Token
// orders have already spent their quota, the failure event is published
// for out-of-band compensation.
func (svc *MicropayService) failOrder(ctx context.Context, job *Job, order *models.Order, cause error) {
	svc.Logger.Errorf("Generation for order %s failed permanently: %v", order.ID, cause)
	applied, err := svc.Orders.UpdateState(ctx, order.ID, common.OrderStateFailed)
	if err != nil {
		svc.Logger.Errorf("Failed to mark order %s failed: %v", order.ID, err)
		svc.Queue.Forget(job.OrderID)
		return
	}
	if applied {
		job.SetState(common.OrderStateFailed)
		if !order.TokenPaid() {
			if err := svc.cancelOrderInvoice(ctx, order); err != nil {
				svc.Logger.Errorf("Failed to cancel invoice %s for failed order %s: %v", order.PaymentHash, order.ID, err)
			}
		}
		svc.notify(ctx, common.EventOrderFailed, map[string]interface{}{
			"order_id":     order.ID,
			"payment_hash": order.PaymentHash,
			"reason":       cause.Error(),
		})
	}
	svc.Queue.Forget(job.OrderID)
}

// StartRecoveryRoutine re-admits jobs for orders that were in flight
// when the process died. Safe to run on every startup: admission
// dedupes on order id and the pipeline skips already-saved results.
func (svc *MicropayService) StartRecoveryRoutine(ctx context.Context) error {
	orders, err := svc.Orders.ListUnfinishedOrders(ctx)
	if err != nil {
		return err
	}
	for _, order := range orders {
		if !order.TokenPaid() {
			invoice, err := svc.LndClient.GetInvoice(ctx, order.PaymentHash)
			if err != nil {
				svc.Logger.Errorf("Recovery: failed to look up invoice %s: %v", order.PaymentHash, err)
				continue
			}
			if invoice.IsUnpaid() || invoice.IsCanceled() {
				continue
			}
		}
		if _, admitted, err := svc.Queue.Admit(order.ID, generationParams(&order)); err != nil {
			svc.Logger.Errorf("Recovery: failed to admit order %s: %v", order.ID, err)
		} else if admitted {
			svc.Logger.Infof("Recovery: re-admitted order %s in state %s", order.ID, order.State)
		}
	}
	return nil
}
