package service

import (
	"context"
	"errors"

	"github.com/micropay-ai/micropay.go/db/models"
	"github.com/micropay-ai/micropay.go/lib/lsat"
	"github.com/micropay-ai/micropay.go/lnd"
)

// AuthorizeToken parses an Authorization header and verifies the
// macaroon signature and preimage against the service root key.
func (svc *MicropayService) AuthorizeToken(header string) (*lsat.Token, error) {
	token, err := lsat.Parse(header)
	if err != nil {
		return nil, err
	}
	if err := token.Verify(svc.Config.TokenSecret); err != nil {
		return nil, err
	}
	return token, nil
}

// RegisterToken records a freshly paid bulk token in the ledger. The
// client-submitted amount and quantity pair is revalidated against the
// pricing table and against the invoice the token actually paid, so the
// granted quota always matches the captured funds. Registering a token
// twice returns the existing row unchanged.
func (svc *MicropayService) RegisterToken(ctx context.Context, token *lsat.Token, amountSats int64, units int) (*models.Token, error) {
	key := token.Key()

	existing, err := svc.Ledger.FindToken(ctx, key)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, ErrTokenNotFound) {
		return nil, err
	}

	if err := svc.ValidateBulkPurchase(amountSats, units); err != nil {
		return nil, err
	}

	invoice, err := svc.LndClient.GetInvoice(ctx, token.PaymentHash())
	if err != nil {
		if errors.Is(err, lnd.ErrInvoiceNotFound) {
			return nil, ErrTokenNotFound
		}
		return nil, err
	}
	if invoice.AmountSats != amountSats {
		return nil, ErrPricingMismatch
	}

	row := &models.Token{
		Key:               key,
		PriceSats:         amountSats,
		PurchasedQuantity: int64(units),
		RemainingQuantity: int64(units),
	}
	if err := svc.Ledger.InsertToken(ctx, row); err != nil {
		// a concurrent registration may have won the insert
		if existing, findErr := svc.Ledger.FindToken(ctx, key); findErr == nil {
			return existing, nil
		}
		return nil, err
	}
	return row, nil
}

// RedeemGeneration spends one unit of a satisfied token's quota. Tokens
// never registered through a bulk purchase are treated as single-unit
// purchases: the ledger row is created lazily after checking that the
// paid invoice matches the single-unit bulk price.
func (svc *MicropayService) RedeemGeneration(ctx context.Context, token *lsat.Token) (int64, error) {
	key := token.Key()

	remaining, err := svc.Ledger.RedeemOne(ctx, key)
	if err == nil {
		return remaining, nil
	}
	if !errors.Is(err, ErrTokenNotFound) {
		return 0, err
	}

	if err := svc.registerSingleUnitToken(ctx, token); err != nil {
		return 0, err
	}
	return svc.Ledger.RedeemOne(ctx, key)
}

func (svc *MicropayService) registerSingleUnitToken(ctx context.Context, token *lsat.Token) error {
	invoice, err := svc.LndClient.GetInvoice(ctx, token.PaymentHash())
	if err != nil {
		if errors.Is(err, lnd.ErrInvoiceNotFound) {
			return ErrTokenNotFound
		}
		return err
	}
	price, err := svc.FinalPriceSats(1)
	if err != nil {
		return err
	}
	if invoice.AmountSats != price {
		return ErrPricingMismatch
	}
	row := &models.Token{
		Key:               token.Key(),
		PriceSats:         invoice.AmountSats,
		PurchasedQuantity: 1,
		RemainingQuantity: 1,
	}
	if err := svc.Ledger.InsertToken(ctx, row); err != nil {
		// lost the race to another redemption, the quota exists now
		if _, findErr := svc.Ledger.FindToken(ctx, token.Key()); findErr == nil {
			return nil
		}
		return err
	}
	return nil
}
