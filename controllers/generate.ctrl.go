package controllers

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/micropay-ai/micropay.go/lib/lsat"
	"github.com/micropay-ai/micropay.go/lib/responses"
	"github.com/micropay-ai/micropay.go/lib/service"
)

// GenerateController : Token-paid generation controller struct
type GenerateController struct {
	svc *service.MicropayService
}

func NewGenerateController(svc *service.MicropayService) *GenerateController {
	return &GenerateController{svc: svc}
}

type GenerateRequestBody struct {
	Prompt string `json:"prompt" validate:"required,max=1000"`
}

type GenerateResponseBody struct {
	OrderID           string `json:"order_id"`
	RemainingQuantity int64  `json:"remaining_quantity"`
}

// Generate : spends one unit of a satisfied token's quota and starts a
// generation order for the prompt.
func (controller *GenerateController) Generate(c echo.Context) error {
	var body GenerateRequestBody
	if err := c.Bind(&body); err != nil {
		c.Logger().Errorf("Failed to load generate request body: %v", err)
		return responses.HTTPError(responses.BadArgumentsError)
	}
	if err := c.Validate(&body); err != nil {
		c.Logger().Errorf("Invalid generate request body: %v", err)
		return responses.HTTPError(responses.BadArgumentsError)
	}

	header := c.Request().Header.Get(echo.HeaderAuthorization)
	token, err := controller.svc.AuthorizeToken(header)
	if err != nil {
		if errors.Is(err, lsat.ErrTokenMalformed) {
			return responses.HTTPError(responses.TokenMalformedError)
		}
		return responses.HTTPError(responses.TokenUnsatisfiedError)
	}

	ctx := c.Request().Context()
	remaining, err := controller.svc.RedeemGeneration(ctx, token)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrQuotaExhausted):
			return responses.HTTPError(responses.QuotaExhaustedError)
		case errors.Is(err, service.ErrTokenNotFound):
			return responses.HTTPError(responses.TokenUnsatisfiedError)
		case errors.Is(err, service.ErrPricingMismatch):
			return responses.HTTPError(responses.PricingMismatchError)
		}
		c.Logger().Errorf("Failed to redeem generation: %v", err)
		return responses.HTTPError(responses.GeneralServerError)
	}

	order, err := controller.svc.CreateTokenOrder(ctx, token.Key(), body.Prompt)
	if err != nil {
		c.Logger().Errorf("Failed to create token order: %v", err)
		return responses.HTTPError(responses.GeneralServerError)
	}

	return c.JSON(http.StatusOK, &GenerateResponseBody{
		OrderID:           order.ID,
		RemainingQuantity: remaining,
	})
}
