package controllers

import (
	"encoding/hex"
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/micropay-ai/micropay.go/lib/lsat"
	"github.com/micropay-ai/micropay.go/lib/responses"
	"github.com/micropay-ai/micropay.go/lib/service"
)

// BulkController : Bulk token purchase controller struct
type BulkController struct {
	svc *service.MicropayService
}

func NewBulkController(svc *service.MicropayService) *BulkController {
	return &BulkController{svc: svc}
}

type BulkPurchaseRequestBody struct {
	AmountSats int64 `json:"amount_sats" validate:"required,gt=0"`
	Quantity   int   `json:"quantity" validate:"required,gte=1"`
}

type BulkPurchaseChallengeBody struct {
	Status         string `json:"status"`
	PaymentRequest string `json:"payment_request"`
	AmountSats     int64  `json:"amount_sats"`
	Quantity       int    `json:"quantity"`
}

type BulkPurchaseResponseBody struct {
	PurchasedQuantity int64 `json:"purchased_quantity"`
	RemainingQuantity int64 `json:"remaining_quantity"`
}

// BulkPurchase : sells prepaid generation quota. Without a token the
// response is a 402 challenge carrying a freshly minted macaroon and an
// invoice for the discounted pack price. With a satisfied token the
// quota is registered in the ledger.
func (controller *BulkController) BulkPurchase(c echo.Context) error {
	var body BulkPurchaseRequestBody
	if err := c.Bind(&body); err != nil {
		c.Logger().Errorf("Failed to load bulk purchase request body: %v", err)
		return responses.HTTPError(responses.BadArgumentsError)
	}
	if err := c.Validate(&body); err != nil {
		c.Logger().Errorf("Invalid bulk purchase request body: %v", err)
		return responses.HTTPError(responses.BadArgumentsError)
	}

	ctx := c.Request().Context()
	header := c.Request().Header.Get(echo.HeaderAuthorization)
	if header == "" {
		return controller.challenge(c, body)
	}

	token, err := controller.svc.AuthorizeToken(header)
	if err != nil {
		if errors.Is(err, lsat.ErrTokenMalformed) {
			return responses.HTTPError(responses.TokenMalformedError)
		}
		return responses.HTTPError(responses.TokenUnsatisfiedError)
	}

	row, err := controller.svc.RegisterToken(ctx, token, body.AmountSats, body.Quantity)
	if err != nil {
		if errors.Is(err, service.ErrPricingMismatch) {
			return responses.HTTPError(responses.PricingMismatchError)
		}
		c.Logger().Errorf("Failed to register bulk token: %v", err)
		return responses.HTTPError(responses.GeneralServerError)
	}

	return c.JSON(http.StatusCreated, &BulkPurchaseResponseBody{
		PurchasedQuantity: row.PurchasedQuantity,
		RemainingQuantity: row.RemainingQuantity,
	})
}

func (controller *BulkController) challenge(c echo.Context, body BulkPurchaseRequestBody) error {
	ctx := c.Request().Context()

	if err := controller.svc.ValidateBulkPurchase(body.AmountSats, body.Quantity); err != nil {
		if errors.Is(err, service.ErrPricingMismatch) {
			return responses.HTTPError(responses.PricingMismatchError)
		}
		return responses.HTTPError(responses.BadArgumentsError)
	}

	invoice, err := controller.svc.CreateBulkInvoice(ctx, body.AmountSats, body.Quantity)
	if err != nil {
		c.Logger().Errorf("Failed to create bulk invoice: %v", err)
		return responses.HTTPError(responses.GeneralServerError)
	}

	paymentHash, err := hex.DecodeString(invoice.PaymentHash)
	if err != nil {
		c.Logger().Errorf("Invoice %s has a malformed payment hash: %v", invoice.PaymentHash, err)
		return responses.HTTPError(responses.GeneralServerError)
	}
	mac, err := lsat.Mint(controller.svc.Config.TokenSecret, controller.svc.Config.ServiceLocation, paymentHash)
	if err != nil {
		c.Logger().Errorf("Failed to mint macaroon for invoice %s: %v", invoice.PaymentHash, err)
		return responses.HTTPError(responses.GeneralServerError)
	}
	challenge, err := lsat.Challenge(mac, invoice.PaymentRequest)
	if err != nil {
		c.Logger().Errorf("Failed to build challenge for invoice %s: %v", invoice.PaymentHash, err)
		return responses.HTTPError(responses.GeneralServerError)
	}

	c.Response().Header().Set(echo.HeaderWWWAuthenticate, challenge)
	return c.JSON(http.StatusPaymentRequired, &BulkPurchaseChallengeBody{
		Status:         "PAYMENT_REQUIRED",
		PaymentRequest: invoice.PaymentRequest,
		AmountSats:     body.AmountSats,
		Quantity:       body.Quantity,
	})
}
