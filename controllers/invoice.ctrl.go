package controllers

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/skip2/go-qrcode"

	"github.com/micropay-ai/micropay.go/lib/responses"
	"github.com/micropay-ai/micropay.go/lib/service"
)

// InvoiceController : Create generation order controller struct
type InvoiceController struct {
	svc *service.MicropayService
}

func NewInvoiceController(svc *service.MicropayService) *InvoiceController {
	return &InvoiceController{svc: svc}
}

type CreateInvoiceRequestBody struct {
	Prompt string `json:"prompt" validate:"required,max=1000"`
}

type CreateInvoiceResponseBody struct {
	ID             string `json:"id"`
	OrderID        string `json:"order_id"`
	PaymentRequest string `json:"payment_request"`
	AmountSats     int64  `json:"amount_sats"`
}

// AddInvoice : opens a hold invoice gating one generation order. The
// public invoice id is the payment hash.
func (controller *InvoiceController) AddInvoice(c echo.Context) error {
	var body CreateInvoiceRequestBody
	if err := c.Bind(&body); err != nil {
		c.Logger().Errorf("Failed to load create invoice request body: %v", err)
		return responses.HTTPError(responses.BadArgumentsError)
	}
	if err := c.Validate(&body); err != nil {
		c.Logger().Errorf("Invalid create invoice request body: %v", err)
		return responses.HTTPError(responses.BadArgumentsError)
	}

	order, err := controller.svc.CreateGenerationOrder(c.Request().Context(), body.Prompt)
	if err != nil {
		c.Logger().Errorf("Failed to create generation order: %v", err)
		return responses.HTTPError(responses.GeneralServerError)
	}

	return c.JSON(http.StatusOK, &CreateInvoiceResponseBody{
		ID:             order.PaymentHash,
		OrderID:        order.ID,
		PaymentRequest: order.PaymentRequest,
		AmountSats:     order.AmountSats,
	})
}

// GetInvoiceQR : renders the payment request of an invoice as a QR png.
func (controller *InvoiceController) GetInvoiceQR(c echo.Context) error {
	paymentHash := c.Param("payment_hash")
	order, err := controller.svc.Orders.GetOrderByPaymentHash(c.Request().Context(), paymentHash)
	if err != nil {
		if errors.Is(err, service.ErrOrderNotFound) {
			return responses.HTTPError(responses.InvoiceNotFoundError)
		}
		c.Logger().Errorf("Failed to load order for invoice %s: %v", paymentHash, err)
		return responses.HTTPError(responses.GeneralServerError)
	}

	png, err := qrcode.Encode(order.PaymentRequest, qrcode.Medium, 256)
	if err != nil {
		c.Logger().Errorf("Failed to encode QR for invoice %s: %v", paymentHash, err)
		return responses.HTTPError(responses.GeneralServerError)
	}
	return c.Blob(http.StatusOK, "image/png", png)
}
