package models

import (
	"context"
	"time"

	"github.com/uptrace/bun"

	"github.com/micropay-ai/micropay.go/common"
)

// Order : Generation Order Model
type Order struct {
	ID             string            `json:"id" bun:",pk"`
	PaymentHash    string            `json:"payment_hash" bun:",nullzero,unique"`
	Preimage       string            `json:"-" bun:",nullzero"`
	PaymentRequest string            `json:"payment_request" bun:",nullzero"`
	AmountSats     int64             `json:"amount_sats" validate:"gte=0"`
	TokenKey       string            `json:"-" bun:",nullzero"`
	Prompt         string            `json:"prompt" validate:"required"`
	NumImages      int               `json:"num_images"`
	Size           string            `json:"size"`
	State          common.OrderState `json:"state" bun:",default:'INVOICE_NOT_PAID'"`
	Results        []string          `json:"results,omitempty" bun:",array"`
	RefundRequest  string            `json:"-" bun:",nullzero"`
	Rating         int               `json:"rating,omitempty" bun:",nullzero"`
	Feedback       string            `json:"feedback,omitempty" bun:",nullzero"`
	CreatedAt      time.Time         `json:"created_at" bun:",nullzero,notnull,default:current_timestamp"`
	UpdatedAt      bun.NullTime      `json:"updated_at"`
}

func (o *Order) BeforeAppendModel(ctx context.Context, query bun.Query) error {
	switch query.(type) {
	case *bun.UpdateQuery:
		o.UpdatedAt = bun.NullTime{Time: time.Now()}
	}
	return nil
}

// TokenPaid reports whether the order was paid from a bulk token quota
// instead of its own hold invoice.
func (o *Order) TokenPaid() bool {
	return o.TokenKey != ""
}
