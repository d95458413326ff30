package transport

import (
	cache "github.com/SporkHubr/echo-http-cache"
	"github.com/labstack/echo/v4"

	"github.com/micropay-ai/micropay.go/controllers"
	"github.com/micropay-ai/micropay.go/lib/service"
)

func RegisterEndpoints(svc *service.MicropayService, e *echo.Echo, cacheClient *cache.Client, strictRateLimitMiddleware echo.MiddlewareFunc, logMw echo.MiddlewareFunc) {
	invoiceCtrl := controllers.NewInvoiceController(svc)
	statusCtrl := controllers.NewStatusController(svc)
	bulkCtrl := controllers.NewBulkController(svc)
	generateCtrl := controllers.NewGenerateController(svc)
	pricingCtrl := controllers.NewPricingController(svc)
	refundCtrl := controllers.NewRefundController(svc)
	feedbackCtrl := controllers.NewFeedbackController(svc)

	e.POST("/invoice", invoiceCtrl.AddInvoice, strictRateLimitMiddleware, logMw)
	e.GET("/invoice/:payment_hash/qr", invoiceCtrl.GetInvoiceQR, logMw)
	e.GET("/generate/:order_id/status", statusCtrl.GetStatus, logMw)
	e.POST("/generate", generateCtrl.Generate, strictRateLimitMiddleware, logMw)
	e.POST("/bulk-purchase", bulkCtrl.BulkPurchase, strictRateLimitMiddleware, logMw)
	e.POST("/refund", refundCtrl.Refund, strictRateLimitMiddleware, logMw)
	e.POST("/feedback", feedbackCtrl.Feedback, logMw)

	// pricing barely changes, serve it from the in-memory cache
	e.GET("/pricing", pricingCtrl.GetPricing, cacheClient.Middleware(), logMw)
	e.GET("/bulk-pricing", pricingCtrl.GetBulkPricing, cacheClient.Middleware(), logMw)

	e.GET("/healthz", controllers.NewHealthController().Check)
}
