package controllers

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/micropay-ai/micropay.go/lib/responses"
	"github.com/micropay-ai/micropay.go/lib/service"
)

// PricingController : Pricing controller struct
type PricingController struct {
	svc *service.MicropayService
}

func NewPricingController(svc *service.MicropayService) *PricingController {
	return &PricingController{svc: svc}
}

type PricingResponseBody struct {
	UnitPriceUSD  float64 `json:"unit_price_usd"`
	UnitPriceSats int64   `json:"unit_price_sats"`
	NumImages     int     `json:"num_images"`
	Size          string  `json:"size"`
}

// GetPricing : quotes the current single-generation price in sats.
func (controller *PricingController) GetPricing(c echo.Context) error {
	price, err := controller.svc.UnitPriceSats(c.Request().Context(), 1)
	if err != nil {
		c.Logger().Errorf("Failed to quote unit price: %v", err)
		return responses.HTTPError(responses.GeneralServerError)
	}
	return c.JSON(http.StatusOK, &PricingResponseBody{
		UnitPriceUSD:  controller.svc.Config.UnitPriceUSD,
		UnitPriceSats: price,
		NumImages:     controller.svc.Config.GenerationCount,
		Size:          controller.svc.Config.GenerationSize,
	})
}

type BulkPricingResponseBody struct {
	UnitPriceSats int64               `json:"unit_price_sats"`
	MaxUnits      int                 `json:"max_units"`
	Quotes        []service.BulkQuote `json:"quotes"`
}

// GetBulkPricing : lists the discounted bulk pack prices.
func (controller *PricingController) GetBulkPricing(c echo.Context) error {
	return c.JSON(http.StatusOK, &BulkPricingResponseBody{
		UnitPriceSats: controller.svc.Config.BulkUnitPriceSats,
		MaxUnits:      controller.svc.Config.MaxBulkUnits,
		Quotes:        controller.svc.BulkPricingTable(),
	})
}
