package controllers

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/micropay-ai/micropay.go/lib/responses"
	"github.com/micropay-ai/micropay.go/lib/service"
)

// RefundController : Refund request controller struct
type RefundController struct {
	svc *service.MicropayService
}

func NewRefundController(svc *service.MicropayService) *RefundController {
	return &RefundController{svc: svc}
}

type RefundRequestBody struct {
	InvoiceID     string `json:"invoice_id" validate:"required"`
	RefundRequest string `json:"refund_request" validate:"required"`
}

type RefundResponseBody struct {
	Status string `json:"status"`
}

// Refund : records a bolt11 refund target for a paid order. Processing
// happens out of band, driven by the published event.
func (controller *RefundController) Refund(c echo.Context) error {
	var body RefundRequestBody
	if err := c.Bind(&body); err != nil {
		c.Logger().Errorf("Failed to load refund request body: %v", err)
		return responses.HTTPError(responses.BadArgumentsError)
	}
	if err := c.Validate(&body); err != nil {
		c.Logger().Errorf("Invalid refund request body: %v", err)
		return responses.HTTPError(responses.BadArgumentsError)
	}

	err := controller.svc.RecordRefundRequest(c.Request().Context(), body.InvoiceID, body.RefundRequest)
	if err != nil {
		if errors.Is(err, service.ErrOrderNotFound) {
			return responses.HTTPError(responses.OrderNotFoundError)
		}
		if errors.Is(err, service.ErrInvalidRefund) {
			return responses.HTTPError(responses.InvalidRefundRequestError)
		}
		c.Logger().Errorf("Failed to record refund request: %v", err)
		return responses.HTTPError(responses.GeneralServerError)
	}

	return c.JSON(http.StatusOK, &RefundResponseBody{Status: "REFUND_RECEIVED"})
}
