package service

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"
	"github.com/uptrace/bun"
	"github.com/ziflex/lecho/v3"

	"github.com/micropay-ai/micropay.go/common"
	"github.com/micropay-ai/micropay.go/db/models"
	"github.com/micropay-ai/micropay.go/lnd"
)

var (
	ErrOrderNotFound   = errors.New("order not found")
	ErrTokenNotFound   = errors.New("token not found")
	ErrQuotaExhausted  = errors.New("token quota exhausted")
	ErrPricingMismatch = errors.New("submitted price does not match the quoted price")
	ErrInvalidRefund   = errors.New("refund request is not a valid payment request")
)

// Generator produces images for a prompt and fetches the resulting
// bytes from the vendor's short-lived result URLs.
type Generator interface {
	Generate(ctx context.Context, prompt string, numImages int, size string) ([]string, error)
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// Uploader persists image bytes and returns a publicly servable URL.
type Uploader interface {
	Upload(ctx context.Context, objectName string, data []byte, contentType string) (string, error)
}

// Notifier publishes domain events. Publishing is best effort: callers
// log failures and move on.
type Notifier interface {
	PublishEvent(ctx context.Context, eventType string, payload interface{}) error
}

// RateSource quotes the current BTC/USD exchange rate.
type RateSource interface {
	BtcUsdRate(ctx context.Context) (decimal.Decimal, error)
}

type OrderStore interface {
	CreateOrder(ctx context.Context, order *models.Order) error
	GetOrder(ctx context.Context, id string) (*models.Order, error)
	GetOrderByPaymentHash(ctx context.Context, paymentHash string) (*models.Order, error)
	// UpdateState bumps the order state unless the order is already in
	// a terminal state. Returns whether the update was applied.
	UpdateState(ctx context.Context, id string, state common.OrderState) (bool, error)
	// SaveResults writes the result URLs exactly once: the update only
	// applies if no results have been stored yet and the order is not
	// terminal. Returns whether this call won the write.
	SaveResults(ctx context.Context, id string, results []string) (bool, error)
	SetRefundRequest(ctx context.Context, paymentHash string, refundRequest string) error
	SetFeedback(ctx context.Context, id string, rating int, feedback string) error
	// ListUnfinishedOrders returns orders stuck in an in-flight state,
	// used to re-admit jobs after a restart.
	ListUnfinishedOrders(ctx context.Context) ([]models.Order, error)
}

type TokenLedger interface {
	FindToken(ctx context.Context, key string) (*models.Token, error)
	InsertToken(ctx context.Context, token *models.Token) error
	// RedeemOne atomically decrements the remaining quantity and
	// returns the new value. Returns ErrQuotaExhausted when nothing is
	// left to redeem.
	RedeemOne(ctx context.Context, key string) (int64, error)
}

type MicropayService struct {
	Config     *Config
	DB         *bun.DB
	Logger     *lecho.Logger
	LndClient  lnd.LightningClientWrapper
	Orders     OrderStore
	Ledger     TokenLedger
	Generator  Generator
	Uploader   Uploader
	Notifier   Notifier
	RateSource RateSource
	Queue      *JobQueue
}

func (svc *MicropayService) notify(ctx context.Context, eventType string, payload interface{}) {
	if svc.Notifier == nil {
		return
	}
	if err := svc.Notifier.PublishEvent(ctx, eventType, payload); err != nil {
		svc.Logger.Errorf("Failed to publish %s event: %v", eventType, err)
	}
}
