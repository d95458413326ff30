package controllers_test

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"

	"github.com/micropay-ai/micropay.go/common"
	"github.com/micropay-ai/micropay.go/db/models"
	"github.com/micropay-ai/micropay.go/lib"
	"github.com/micropay-ai/micropay.go/lib/responses"
	"github.com/micropay-ai/micropay.go/lib/service"
	"github.com/micropay-ai/micropay.go/lnd"
)

type mockLND struct {
	mu        sync.Mutex
	invoices  map[string]*lnd.Invoice
	preimages map[string]string
}

func newMockLND() *mockLND {
	return &mockLND{
		invoices:  make(map[string]*lnd.Invoice),
		preimages: make(map[string]string),
	}
}

func (m *mockLND) CreateInvoice(ctx context.Context, description string, amountSats int64, expiry time.Duration) (*lnd.Invoice, error) {
	preimage := make([]byte, 32)
	rand.Read(preimage)
	hash := sha256.Sum256(preimage)
	hashHex := hex.EncodeToString(hash[:])

	m.mu.Lock()
	defer m.mu.Unlock()
	invoice := &lnd.Invoice{
		PaymentHash:    hashHex,
		PaymentRequest: "lnbcmock" + hashHex[:8],
		AmountSats:     amountSats,
		State:          common.InvoiceStateUnpaid,
		ExpiresAt:      time.Now().Add(expiry),
	}
	m.invoices[hashHex] = invoice
	m.preimages[hashHex] = hex.EncodeToString(preimage)
	cp := *invoice
	return &cp, nil
}

func (m *mockLND) CreateHoldInvoice(ctx context.Context, paymentHash []byte, description string, amountSats int64, expiry time.Duration) (*lnd.Invoice, error) {
	hashHex := hex.EncodeToString(paymentHash)

	m.mu.Lock()
	defer m.mu.Unlock()
	invoice := &lnd.Invoice{
		PaymentHash:    hashHex,
		PaymentRequest: "lnbcmockhold" + hashHex[:8],
		AmountSats:     amountSats,
		State:          common.InvoiceStateUnpaid,
		ExpiresAt:      time.Now().Add(expiry),
	}
	m.invoices[hashHex] = invoice
	cp := *invoice
	return &cp, nil
}

func (m *mockLND) GetInvoice(ctx context.Context, paymentHash string) (*lnd.Invoice, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	invoice, ok := m.invoices[paymentHash]
	if !ok {
		return nil, lnd.ErrInvoiceNotFound
	}
	cp := *invoice
	return &cp, nil
}

func (m *mockLND) SettleHoldInvoice(ctx context.Context, preimage []byte) error {
	hash := sha256.Sum256(preimage)

	m.mu.Lock()
	defer m.mu.Unlock()
	invoice, ok := m.invoices[hex.EncodeToString(hash[:])]
	if !ok {
		return lnd.ErrInvoiceNotFound
	}
	invoice.State = common.InvoiceStateConfirmed
	return nil
}

func (m *mockLND) CancelHoldInvoice(ctx context.Context, paymentHash []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	invoice, ok := m.invoices[hex.EncodeToString(paymentHash)]
	if !ok {
		return lnd.ErrInvoiceNotFound
	}
	invoice.State = common.InvoiceStateCanceled
	return nil
}

func (m *mockLND) GetMainPubkey() string {
	return "mockpubkey"
}

func (m *mockLND) setState(paymentHash, state string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if invoice, ok := m.invoices[paymentHash]; ok {
		invoice.State = state
	}
}

// pay settles a mock invoice and hands back the preimage, like a payer
// wallet would.
func (m *mockLND) pay(paymentHash string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	invoice, ok := m.invoices[paymentHash]
	if !ok {
		return nil, lnd.ErrInvoiceNotFound
	}
	preimageHex, ok := m.preimages[paymentHash]
	if !ok {
		return nil, fmt.Errorf("no preimage stored for %s", paymentHash)
	}
	invoice.State = common.InvoiceStateConfirmed
	return hex.DecodeString(preimageHex)
}

type memOrderStore struct {
	mu     sync.Mutex
	orders map[string]*models.Order
}

func newMemOrderStore() *memOrderStore {
	return &memOrderStore{orders: make(map[string]*models.Order)}
}

func (s *memOrderStore) CreateOrder(ctx context.Context, order *models.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *order
	s.orders[order.ID] = &cp
	return nil
}

func (s *memOrderStore) GetOrder(ctx context.Context, id string) (*models.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	order, ok := s.orders[id]
	if !ok {
		return nil, service.ErrOrderNotFound
	}
	cp := *order
	return &cp, nil
}

func (s *memOrderStore) GetOrderByPaymentHash(ctx context.Context, paymentHash string) (*models.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, order := range s.orders {
		if order.PaymentHash == paymentHash && paymentHash != "" {
			cp := *order
			return &cp, nil
		}
	}
	return nil, service.ErrOrderNotFound
}

func (s *memOrderStore) UpdateState(ctx context.Context, id string, state common.OrderState) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	order, ok := s.orders[id]
	if !ok || order.State.Terminal() {
		return false, nil
	}
	order.State = state
	return true, nil
}

func (s *memOrderStore) SaveResults(ctx context.Context, id string, results []string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	order, ok := s.orders[id]
	if !ok || order.State.Terminal() || len(order.Results) > 0 {
		return false, nil
	}
	order.Results = append([]string(nil), results...)
	return true, nil
}

func (s *memOrderStore) SetRefundRequest(ctx context.Context, paymentHash string, refundRequest string) error {
	return nil
}

func (s *memOrderStore) SetFeedback(ctx context.Context, id string, rating int, feedback string) error {
	return nil
}

func (s *memOrderStore) ListUnfinishedOrders(ctx context.Context) ([]models.Order, error) {
	return nil, nil
}

type memLedger struct {
	mu     sync.Mutex
	tokens map[string]*models.Token
}

func newMemLedger() *memLedger {
	return &memLedger{tokens: make(map[string]*models.Token)}
}

func (l *memLedger) FindToken(ctx context.Context, key string) (*models.Token, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	token, ok := l.tokens[key]
	if !ok {
		return nil, service.ErrTokenNotFound
	}
	cp := *token
	return &cp, nil
}

func (l *memLedger) InsertToken(ctx context.Context, token *models.Token) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.tokens[token.Key]; ok {
		return fmt.Errorf("duplicate token key %s", token.Key)
	}
	cp := *token
	l.tokens[token.Key] = &cp
	return nil
}

func (l *memLedger) RedeemOne(ctx context.Context, key string) (int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	token, ok := l.tokens[key]
	if !ok {
		return 0, service.ErrTokenNotFound
	}
	if token.RemainingQuantity <= 0 {
		return 0, service.ErrQuotaExhausted
	}
	token.RemainingQuantity--
	return token.RemainingQuantity, nil
}

type staticRates struct{}

func (staticRates) BtcUsdRate(ctx context.Context) (decimal.Decimal, error) {
	return decimal.NewFromInt(100_000), nil
}

func newTestEnv() (*echo.Echo, *service.MicropayService, *mockLND) {
	lndClient := newMockLND()
	svc := &service.MicropayService{
		Config: &service.Config{
			TokenSecret:       []byte("test-root-key-0123456789abcdef00"),
			ServiceLocation:   "micropay-test",
			UnitPriceUSD:      0.10,
			BulkUnitPriceSats: 1000,
			MaxBulkUnits:      20,
			InvoiceExpiry:     600,
			GenerationCount:   4,
			GenerationSize:    "1024x1024",
			JobQueueSize:      16,
			JobMaxAttempts:    1,
		},
		Logger:     lib.Logger(""),
		LndClient:  lndClient,
		Orders:     newMemOrderStore(),
		Ledger:     newMemLedger(),
		RateSource: staticRates{},
		Queue:      service.NewJobQueue(16),
	}

	e := echo.New()
	e.HTTPErrorHandler = responses.HTTPErrorHandler
	e.Validator = &lib.CustomValidator{Validator: validator.New()}
	return e, svc, lndClient
}
