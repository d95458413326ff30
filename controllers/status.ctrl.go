package controllers

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/micropay-ai/micropay.go/lib/responses"
	"github.com/micropay-ai/micropay.go/lib/service"
	"github.com/micropay-ai/micropay.go/lnd"
)

// StatusController : Order status controller struct
type StatusController struct {
	svc *service.MicropayService
}

func NewStatusController(svc *service.MicropayService) *StatusController {
	return &StatusController{svc: svc}
}

// GetStatus : polling endpoint for an order. Observing payment here is
// what starts the generation pipeline.
func (controller *StatusController) GetStatus(c echo.Context) error {
	orderID := c.Param("order_id")

	status, err := controller.svc.GetOrderStatus(c.Request().Context(), orderID)
	if err != nil {
		if errors.Is(err, service.ErrOrderNotFound) {
			return responses.HTTPError(responses.OrderNotFoundError)
		}
		if errors.Is(err, lnd.ErrInvoiceNotFound) {
			return responses.HTTPError(responses.InvoiceNotFoundError)
		}
		c.Logger().Errorf("Failed to resolve status for order %s: %v", orderID, err)
		return responses.HTTPError(responses.GeneralServerError)
	}
	return c.JSON(http.StatusOK, status)
}
