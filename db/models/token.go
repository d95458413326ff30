package models

import (
	"context"
	"time"

	"github.com/uptrace/bun"
)

// Token : Bulk Token Ledger Model
type Token struct {
	// Key is the hex-encoded payment hash the token's macaroon is bound
	// to. Re-challenged macaroons for the same invoice differ only in
	// their nonce, so they all redeem from this one row.
	Key               string       `json:"key" bun:",pk"`
	PriceSats         int64        `json:"price_sats" validate:"gte=0"`
	PurchasedQuantity int64        `json:"purchased_quantity" validate:"gte=1"`
	RemainingQuantity int64        `json:"remaining_quantity" validate:"gte=0"`
	CreatedAt         time.Time    `json:"created_at" bun:",nullzero,notnull,default:current_timestamp"`
	UpdatedAt         bun.NullTime `json:"updated_at"`
}

func (t *Token) BeforeAppendModel(ctx context.Context, query bun.Query) error {
	switch query.(type) {
	case *bun.UpdateQuery:
		t.UpdatedAt = bun.NullTime{Time: time.Now()}
	}
	return nil
}
