package service

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/btcsuite/btcd/chaincfg"
	"github.com/google/uuid"
	"github.com/lightningnetwork/lnd/zpay32"

	"github.com/micropay-ai/micropay.go/common"
	"github.com/micropay-ai/micropay.go/db/models"
	"github.com/micropay-ai/micropay.go/lnd"
)

func makePreimage() ([]byte, error) {
	preimage := make([]byte, 32)
	if _, err := rand.Read(preimage); err != nil {
		return nil, err
	}
	return preimage, nil
}

// CreateGenerationOrder quotes the single-generation price, opens a hold
// invoice for it and stores the pending order. The preimage stays with
// the order until the generation succeeds and the invoice is settled.
func (svc *MicropayService) CreateGenerationOrder(ctx context.Context, prompt string) (*models.Order, error) {
	price, err := svc.UnitPriceSats(ctx, 1)
	if err != nil {
		return nil, err
	}

	preimage, err := makePreimage()
	if err != nil {
		return nil, err
	}
	hash := sha256.Sum256(preimage)

	memo := fmt.Sprintf("AI image generation (%d images)", svc.Config.GenerationCount)
	invoice, err := svc.LndClient.CreateHoldInvoice(ctx, hash[:], memo, price, time.Duration(svc.Config.InvoiceExpiry)*time.Second)
	if err != nil {
		return nil, err
	}

	order := &models.Order{
		ID:             uuid.NewString(),
		PaymentHash:    hex.EncodeToString(hash[:]),
		Preimage:       hex.EncodeToString(preimage),
		PaymentRequest: invoice.PaymentRequest,
		AmountSats:     price,
		Prompt:         prompt,
		NumImages:      svc.Config.GenerationCount,
		Size:           svc.Config.GenerationSize,
		State:          common.OrderStateInvoiceNotPaid,
	}
	if err := svc.Orders.CreateOrder(ctx, order); err != nil {
		return nil, err
	}
	svc.Logger.Infof("Created order %s with hold invoice %s for %d sats", order.ID, order.PaymentHash, price)
	return order, nil
}

// settleOrderInvoice reveals the preimage to the payer. Callers must
// have won the result write first: settlement is irreversible.
func (svc *MicropayService) settleOrderInvoice(ctx context.Context, order *models.Order) error {
	preimage, err := hex.DecodeString(order.Preimage)
	if err != nil {
		return fmt.Errorf("order %s carries a malformed preimage: %w", order.ID, err)
	}
	invoice, err := svc.LndClient.GetInvoice(ctx, order.PaymentHash)
	if err != nil {
		return err
	}
	if invoice.IsConfirmed() {
		// already settled, nothing to do
		return nil
	}
	if !invoice.IsHeld() {
		return fmt.Errorf("invoice %s is not held, cannot settle (state %s)", order.PaymentHash, invoice.State)
	}
	return svc.LndClient.SettleHoldInvoice(ctx, preimage)
}

// cancelOrderInvoice releases the held payment back to the payer.
func (svc *MicropayService) cancelOrderInvoice(ctx context.Context, order *models.Order) error {
	hash, err := hex.DecodeString(order.PaymentHash)
	if err != nil {
		return err
	}
	invoice, err := svc.LndClient.GetInvoice(ctx, order.PaymentHash)
	if err != nil {
		return err
	}
	if invoice.IsCanceled() || invoice.IsConfirmed() {
		return nil
	}
	return svc.LndClient.CancelHoldInvoice(ctx, hash)
}

// CreateBulkInvoice opens a plain invoice for a bulk token purchase.
// Bulk invoices do not gate a pipeline, so no hold semantics are needed.
func (svc *MicropayService) CreateBulkInvoice(ctx context.Context, amountSats int64, units int) (*lnd.Invoice, error) {
	memo := fmt.Sprintf("Bulk pack of %d AI image generations", units)
	return svc.LndClient.CreateInvoice(ctx, memo, amountSats, time.Duration(svc.Config.InvoiceExpiry)*time.Second)
}

func chainFromPaymentRequest(paymentRequest string) (*chaincfg.Params, error) {
	switch {
	case strings.HasPrefix(paymentRequest, "lnbcrt"):
		return &chaincfg.RegressionNetParams, nil
	case strings.HasPrefix(paymentRequest, "lntb"):
		return &chaincfg.TestNet3Params, nil
	case strings.HasPrefix(paymentRequest, "lnbc"):
		return &chaincfg.MainNetParams, nil
	default:
		return nil, fmt.Errorf("unrecognized payment request prefix")
	}
}

// ValidateRefundDescriptor checks that a client-submitted refund target
// is a decodable bolt11 payment request.
func (svc *MicropayService) ValidateRefundDescriptor(refundRequest string) error {
	paymentRequest := strings.ToLower(strings.TrimSpace(refundRequest))
	params, err := chainFromPaymentRequest(paymentRequest)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidRefund, err)
	}
	if _, err := zpay32.Decode(paymentRequest, params); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidRefund, err)
	}
	return nil
}

// RecordRefundRequest stores a validated refund descriptor on the order
// identified by its invoice payment hash and publishes the event for
// out-of-band processing.
func (svc *MicropayService) RecordRefundRequest(ctx context.Context, paymentHash, refundRequest string) error {
	if err := svc.ValidateRefundDescriptor(refundRequest); err != nil {
		return err
	}
	order, err := svc.Orders.GetOrderByPaymentHash(ctx, paymentHash)
	if err != nil {
		return err
	}
	if err := svc.Orders.SetRefundRequest(ctx, order.PaymentHash, refundRequest); err != nil {
		return err
	}
	svc.notify(ctx, common.EventRefundRequested, map[string]interface{}{
		"order_id":       order.ID,
		"payment_hash":   order.PaymentHash,
		"refund_request": refundRequest,
		"requested_at":   time.Now().UTC(),
	})
	return nil
}

// RecordFeedback stores a rating and free-form comment on an order.
func (svc *MicropayService) RecordFeedback(ctx context.Context, orderID string, rating int, feedback string) error {
	order, err := svc.Orders.GetOrder(ctx, orderID)
	if err != nil {
		return err
	}
	if err := svc.Orders.SetFeedback(ctx, order.ID, rating, feedback); err != nil {
		return err
	}
	svc.notify(ctx, common.EventFeedbackReceived, map[string]interface{}{
		"order_id": order.ID,
		"rating":   rating,
		"feedback": feedback,
	})
	return nil
}
