package service

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
)

var satsPerBtc = decimal.NewFromInt(100_000_000)

// UnitPriceSats converts the configured USD unit price into satoshis at
// the current exchange rate, rounding up so the quote never undercharges.
func (svc *MicropayService) UnitPriceSats(ctx context.Context, quantity int) (int64, error) {
	if quantity < 1 {
		return 0, fmt.Errorf("quantity must be positive, got %d", quantity)
	}
	rate, err := svc.RateSource.BtcUsdRate(ctx)
	if err != nil {
		return 0, err
	}
	if rate.IsZero() {
		return 0, fmt.Errorf("exchange rate source returned a zero rate")
	}
	usd := decimal.NewFromFloat(svc.Config.UnitPriceUSD).Mul(decimal.NewFromInt(int64(quantity)))
	sats := usd.Div(rate).Mul(satsPerBtc).Ceil()
	return sats.IntPart(), nil
}

// ListPriceSats is the undiscounted price of a bulk pack.
func (svc *MicropayService) ListPriceSats(units int) (int64, error) {
	if units < 1 || units > svc.Config.MaxBulkUnits {
		return 0, fmt.Errorf("bulk quantity must be between 1 and %d, got %d", svc.Config.MaxBulkUnits, units)
	}
	return int64(units) * svc.Config.BulkUnitPriceSats, nil
}

// DiscountPercent grows linearly with the pack size: a pack of n units
// is discounted by n percent, with no discount on a single unit.
func (svc *MicropayService) DiscountPercent(units int) int64 {
	if units <= 1 {
		return 0
	}
	return int64(units)
}

// FinalPriceSats is the discounted bulk price, rounded down to whole sats.
func (svc *MicropayService) FinalPriceSats(units int) (int64, error) {
	list, err := svc.ListPriceSats(units)
	if err != nil {
		return 0, err
	}
	return list * (100 - svc.DiscountPercent(units)) / 100, nil
}

type BulkQuote struct {
	Units           int   `json:"units"`
	ListPriceSats   int64 `json:"list_price_sats"`
	DiscountPercent int64 `json:"discount_percent"`
	FinalPriceSats  int64 `json:"final_price_sats"`
}

// BulkPricingTable lists quotes for every allowed pack size.
func (svc *MicropayService) BulkPricingTable() []BulkQuote {
	table := make([]BulkQuote, 0, svc.Config.MaxBulkUnits)
	for units := 1; units <= svc.Config.MaxBulkUnits; units++ {
		list, _ := svc.ListPriceSats(units)
		final, _ := svc.FinalPriceSats(units)
		table = append(table, BulkQuote{
			Units:           units,
			ListPriceSats:   list,
			DiscountPercent: svc.DiscountPercent(units),
			FinalPriceSats:  final,
		})
	}
	return table
}

// ValidateBulkPurchase revalidates a client-submitted price and
// quantity pair against the pricing table.
func (svc *MicropayService) ValidateBulkPurchase(amountSats int64, units int) error {
	final, err := svc.FinalPriceSats(units)
	if err != nil {
		return err
	}
	if amountSats != final {
		return ErrPricingMismatch
	}
	return nil
}
