package service

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/micropay-ai/micropay.go/common"
	"github.com/micropay-ai/micropay.go/dalle"
	"github.com/micropay-ai/micropay.go/db/models"
	"github.com/micropay-ai/micropay.go/lib"
	"github.com/micropay-ai/micropay.go/lnd"
)

type fakeOrderStore struct {
	mu     sync.Mutex
	orders map[string]*models.Order
}

func newFakeOrderStore() *fakeOrderStore {
	return &fakeOrderStore{orders: make(map[string]*models.Order)}
}

func copyOrder(o *models.Order) *models.Order {
	cp := *o
	cp.Results = append([]string(nil), o.Results...)
	return &cp
}

func (s *fakeOrderStore) CreateOrder(ctx context.Context, order *models.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.orders[order.ID]; ok {
		return fmt.Errorf("duplicate order id %s", order.ID)
	}
	s.orders[order.ID] = copyOrder(order)
	return nil
}

func (s *fakeOrderStore) GetOrder(ctx context.Context, id string) (*models.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	order, ok := s.orders[id]
	if !ok {
		return nil, ErrOrderNotFound
	}
	return copyOrder(order), nil
}

func (s *fakeOrderStore) GetOrderByPaymentHash(ctx context.Context, paymentHash string) (*models.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, order := range s.orders {
		if order.PaymentHash == paymentHash && paymentHash != "" {
			return copyOrder(order), nil
		}
	}
	return nil, ErrOrderNotFound
}

func (s *fakeOrderStore) UpdateState(ctx context.Context, id string, state common.OrderState) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	order, ok := s.orders[id]
	if !ok || order.State.Terminal() {
		return false, nil
	}
	order.State = state
	return true, nil
}

func (s *fakeOrderStore) SaveResults(ctx context.Context, id string, results []string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	order, ok := s.orders[id]
	if !ok || order.State.Terminal() || len(order.Results) > 0 {
		return false, nil
	}
	order.Results = append([]string(nil), results...)
	return true, nil
}

func (s *fakeOrderStore) SetRefundRequest(ctx context.Context, paymentHash string, refundRequest string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, order := range s.orders {
		if order.PaymentHash == paymentHash {
			order.RefundRequest = refundRequest
			return nil
		}
	}
	return ErrOrderNotFound
}

func (s *fakeOrderStore) SetFeedback(ctx context.Context, id string, rating int, feedback string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	order, ok := s.orders[id]
	if !ok {
		return ErrOrderNotFound
	}
	order.Rating = rating
	order.Feedback = feedback
	return nil
}

func (s *fakeOrderStore) ListUnfinishedOrders(ctx context.Context) ([]models.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	orders := []models.Order{}
	for _, order := range s.orders {
		if !order.State.Terminal() {
			orders = append(orders, *copyOrder(order))
		}
	}
	return orders, nil
}

type fakeLedger struct {
	mu     sync.Mutex
	tokens map[string]*models.Token
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{tokens: make(map[string]*models.Token)}
}

func (l *fakeLedger) FindToken(ctx context.Context, key string) (*models.Token, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	token, ok := l.tokens[key]
	if !ok {
		return nil, ErrTokenNotFound
	}
	cp := *token
	return &cp, nil
}

func (l *fakeLedger) InsertToken(ctx context.Context, token *models.Token) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.tokens[token.Key]; ok {
		return fmt.Errorf("duplicate token key %s", token.Key)
	}
	cp := *token
	l.tokens[token.Key] = &cp
	return nil
}

func (l *fakeLedger) RedeemOne(ctx context.Context, key string) (int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	token, ok := l.tokens[key]
	if !ok {
		return 0, ErrTokenNotFound
	}
	if token.RemainingQuantity <= 0 {
		return 0, ErrQuotaExhausted
	}
	token.RemainingQuantity--
	return token.RemainingQuantity, nil
}

type fakeLND struct {
	mu          sync.Mutex
	invoices    map[string]*lnd.Invoice
	preimages   map[string]string
	settleCount int
	cancelCount int
}

func newFakeLND() *fakeLND {
	return &fakeLND{
		invoices:  make(map[string]*lnd.Invoice),
		preimages: make(map[string]string),
	}
}

func (f *fakeLND) CreateInvoice(ctx context.Context, description string, amountSats int64, expiry time.Duration) (*lnd.Invoice, error) {
	preimage := make([]byte, 32)
	rand.Read(preimage)
	hash := sha256.Sum256(preimage)
	hashHex := hex.EncodeToString(hash[:])

	f.mu.Lock()
	defer f.mu.Unlock()
	invoice := &lnd.Invoice{
		PaymentHash:    hashHex,
		PaymentRequest: "lnbcfake" + hashHex[:8],
		AmountSats:     amountSats,
		State:          common.InvoiceStateUnpaid,
		ExpiresAt:      time.Now().Add(expiry),
	}
	f.invoices[hashHex] = invoice
	f.preimages[hashHex] = hex.EncodeToString(preimage)
	cp := *invoice
	return &cp, nil
}

func (f *fakeLND) CreateHoldInvoice(ctx context.Context, paymentHash []byte, description string, amountSats int64, expiry time.Duration) (*lnd.Invoice, error) {
	hashHex := hex.EncodeToString(paymentHash)

	f.mu.Lock()
	defer f.mu.Unlock()
	invoice := &lnd.Invoice{
		PaymentHash:    hashHex,
		PaymentRequest: "lnbcfakehold" + hashHex[:8],
		AmountSats:     amountSats,
		State:          common.InvoiceStateUnpaid,
		ExpiresAt:      time.Now().Add(expiry),
	}
	f.invoices[hashHex] = invoice
	cp := *invoice
	return &cp, nil
}

func (f *fakeLND) GetInvoice(ctx context.Context, paymentHash string) (*lnd.Invoice, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	invoice, ok := f.invoices[paymentHash]
	if !ok {
		return nil, lnd.ErrInvoiceNotFound
	}
	cp := *invoice
	return &cp, nil
}

func (f *fakeLND) SettleHoldInvoice(ctx context.Context, preimage []byte) error {
	hash := sha256.Sum256(preimage)
	hashHex := hex.EncodeToString(hash[:])

	f.mu.Lock()
	defer f.mu.Unlock()
	invoice, ok := f.invoices[hashHex]
	if !ok {
		return lnd.ErrInvoiceNotFound
	}
	if invoice.State != common.InvoiceStateHeld {
		return fmt.Errorf("invoice %s is not held", hashHex)
	}
	invoice.State = common.InvoiceStateConfirmed
	invoice.Preimage = hex.EncodeToString(preimage)
	f.settleCount++
	return nil
}

func (f *fakeLND) CancelHoldInvoice(ctx context.Context, paymentHash []byte) error {
	hashHex := hex.EncodeToString(paymentHash)

	f.mu.Lock()
	defer f.mu.Unlock()
	invoice, ok := f.invoices[hashHex]
	if !ok {
		return lnd.ErrInvoiceNotFound
	}
	invoice.State = common.InvoiceStateCanceled
	f.cancelCount++
	return nil
}

func (f *fakeLND) GetMainPubkey() string {
	return "fakepubkey"
}

func (f *fakeLND) setState(paymentHash, state string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if invoice, ok := f.invoices[paymentHash]; ok {
		invoice.State = state
	}
}

func (f *fakeLND) settles() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.settleCount
}

func (f *fakeLND) cancels() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.cancelCount
}

type fakeGenerator struct {
	mu         sync.Mutex
	calls      int
	failures   int
	moderation bool
	urls       []string
}

func (g *fakeGenerator) Generate(ctx context.Context, prompt string, numImages int, size string) ([]string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls++
	if g.moderation {
		return nil, &dalle.ModerationError{Reason: "rejected"}
	}
	if g.failures > 0 {
		g.failures--
		return nil, fmt.Errorf("generation backend unavailable")
	}
	if g.urls != nil {
		return g.urls, nil
	}
	urls := make([]string, numImages)
	for i := range urls {
		urls[i] = fmt.Sprintf("https://vendor.test/%s/%d", prompt, i)
	}
	return urls, nil
}

func (g *fakeGenerator) Fetch(ctx context.Context, url string) ([]byte, error) {
	return []byte("png:" + url), nil
}

func (g *fakeGenerator) callCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls
}

type fakeUploader struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func newFakeUploader() *fakeUploader {
	return &fakeUploader{objects: make(map[string][]byte)}
}

func (u *fakeUploader) Upload(ctx context.Context, objectName string, data []byte, contentType string) (string, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.objects[objectName] = data
	return "https://cdn.test/" + objectName, nil
}

type fakeNotifier struct {
	mu     sync.Mutex
	events []string
}

func (n *fakeNotifier) PublishEvent(ctx context.Context, eventType string, payload interface{}) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, eventType)
	return nil
}

func (n *fakeNotifier) published() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.events...)
}

type fakeRates struct {
	rate decimal.Decimal
}

func (r *fakeRates) BtcUsdRate(ctx context.Context) (decimal.Decimal, error) {
	return r.rate, nil
}

type testService struct {
	*MicropayService
	orders    *fakeOrderStore
	ledger    *fakeLedger
	lnd       *fakeLND
	generator *fakeGenerator
	uploader  *fakeUploader
	notifier  *fakeNotifier
}

func newTestService() *testService {
	orders := newFakeOrderStore()
	ledger := newFakeLedger()
	lndClient := newFakeLND()
	generator := &fakeGenerator{}
	uploader := newFakeUploader()
	notifier := &fakeNotifier{}

	svc := &MicropayService{
		Config: &Config{
			TokenSecret:        []byte("test-root-key-0123456789abcdef00"),
			ServiceLocation:    "micropay-test",
			UnitPriceUSD:       0.10,
			BulkUnitPriceSats:  1000,
			MaxBulkUnits:       20,
			InvoiceExpiry:      600,
			GenerationCount:    4,
			GenerationSize:     "1024x1024",
			WorkerCount:        1,
			JobQueueSize:       16,
			JobMaxAttempts:     3,
			JobBackoffInterval: 0,
		},
		Logger:     lib.Logger(""),
		LndClient:  lndClient,
		Orders:     orders,
		Ledger:     ledger,
		Generator:  generator,
		Uploader:   uploader,
		Notifier:   notifier,
		RateSource: &fakeRates{rate: decimal.NewFromInt(100_000)},
		Queue:      NewJobQueue(16),
	}
	return &testService{
		MicropayService: svc,
		orders:          orders,
		ledger:          ledger,
		lnd:             lndClient,
		generator:       generator,
		uploader:        uploader,
		notifier:        notifier,
	}
}
