package lnd

import (
	"context"
	"errors"
	"time"

	"github.com/micropay-ai/micropay.go/common"
)

// ErrInvoiceNotFound is returned by GetInvoice when the node has no record
// of the payment hash. Callers must be able to tell this apart from a
// transport failure.
var ErrInvoiceNotFound = errors.New("invoice not found")

// Invoice is the gateway's view of a single payment request. The preimage
// is only present once the node has captured funds.
type Invoice struct {
	PaymentHash    string
	PaymentRequest string
	AmountSats     int64
	State          string
	Preimage       string
	ExpiresAt      time.Time
}

func (i *Invoice) IsUnpaid() bool {
	return i.State == common.InvoiceStateUnpaid
}

// IsHeld reports that the payer has locked funds which are not yet
// transferred. Only a held invoice admits generation and only a held
// invoice can be settled.
func (i *Invoice) IsHeld() bool {
	return i.State == common.InvoiceStateHeld
}

func (i *Invoice) IsConfirmed() bool {
	return i.State == common.InvoiceStateConfirmed
}

func (i *Invoice) IsCanceled() bool {
	return i.State == common.InvoiceStateCanceled || i.State == common.InvoiceStateExpired
}

// LightningClientWrapper is the subset of node functionality the service
// depends on. Tests inject mock implementations.
type LightningClientWrapper interface {
	// CreateInvoice adds a plain invoice. The node picks the preimage.
	CreateInvoice(ctx context.Context, description string, amountSats int64, expiry time.Duration) (*Invoice, error)
	// CreateHoldInvoice adds a hold invoice for sha256(preimage) == paymentHash.
	// The caller keeps the preimage; funds stay locked until SettleHoldInvoice.
	CreateHoldInvoice(ctx context.Context, paymentHash []byte, description string, amountSats int64, expiry time.Duration) (*Invoice, error)
	// GetInvoice looks up an invoice by hex payment hash, returning
	// ErrInvoiceNotFound when the node has never seen it.
	GetInvoice(ctx context.Context, paymentHash string) (*Invoice, error)
	// SettleHoldInvoice reveals the preimage, irreversibly transferring the
	// held funds. Fails unless the matching invoice is currently held.
	SettleHoldInvoice(ctx context.Context, preimage []byte) error
	// CancelHoldInvoice releases held (or not yet paid) funds back to the payer.
	CancelHoldInvoice(ctx context.Context, paymentHash []byte) error
	GetMainPubkey() (pubkey string)
}
