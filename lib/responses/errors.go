package responses

import (
	"net/http"

	"github.com/getsentry/sentry-go"
	sentryecho "github.com/getsentry/sentry-go/echo"
	"github.com/labstack/echo/v4"
)

type ErrorResponse struct {
	Error          bool   `json:"error"`
	Code           int    `json:"code"`
	Message        string `json:"message"`
	HttpStatusCode int    `json:"-"`
}

var GeneralServerError = ErrorResponse{
	Error:          true,
	Code:           6,
	Message:        "Something went wrong. Please try again later",
	HttpStatusCode: 500,
}

var BadArgumentsError = ErrorResponse{
	Error:          true,
	Code:           8,
	Message:        "Bad arguments",
	HttpStatusCode: 400,
}

var InvoiceNotFoundError = ErrorResponse{
	Error:          true,
	Code:           10,
	Message:        "invoice not found",
	HttpStatusCode: 404,
}

var OrderNotFoundError = ErrorResponse{
	Error:          true,
	Code:           10,
	Message:        "order not found",
	HttpStatusCode: 404,
}

var InvoiceNotPaidError = ErrorResponse{
	Error:          true,
	Code:           11,
	Message:        "invoice has not been paid",
	HttpStatusCode: 400,
}

var InvoiceCanceledError = ErrorResponse{
	Error:          true,
	Code:           12,
	Message:        "invoice was canceled",
	HttpStatusCode: 400,
}

var TokenMalformedError = ErrorResponse{
	Error:          true,
	Code:           20,
	Message:        "could not decode authorization token",
	HttpStatusCode: 400,
}

var TokenUnsatisfiedError = ErrorResponse{
	Error:          true,
	Code:           21,
	Message:        "token is not satisfied: wrong secret or signature",
	HttpStatusCode: 400,
}

var QuotaExhaustedError = ErrorResponse{
	Error:          true,
	Code:           22,
	Message:        "no generations remaining on this token",
	HttpStatusCode: 400,
}

var PricingMismatchError = ErrorResponse{
	Error:          true,
	Code:           23,
	Message:        "submitted amount does not match the current price",
	HttpStatusCode: 400,
}

var InvalidRefundRequestError = ErrorResponse{
	Error:          true,
	Code:           24,
	Message:        "refund payment request could not be decoded",
	HttpStatusCode: 400,
}

var GenerationFailedError = ErrorResponse{
	Error:          true,
	Code:           30,
	Message:        "image generation failed and the payment was refunded",
	HttpStatusCode: 500,
}

// codes that describe client mistakes, not faults we need to hear about
var sentryIgnoredCodes = map[int]bool{
	8:  true,
	11: true,
	20: true,
	21: true,
	22: true,
	23: true,
	24: true,
}

func isErrAllowedForSentry(err error) bool {
	he, ok := err.(*echo.HTTPError)
	if !ok {
		return true
	}
	msg, ok := he.Message.(echo.Map)
	if !ok {
		return true
	}
	code, ok := msg["code"].(int)
	if !ok {
		return true
	}
	return !sentryIgnoredCodes[code]
}

func HTTPErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}
	c.Logger().Error(err)
	if hub := sentryecho.GetHubFromContext(c); hub != nil && isErrAllowedForSentry(err) {
		hub.WithScope(func(scope *sentry.Scope) {
			scope.SetExtra("RequestID", c.Response().Header().Get(echo.HeaderXRequestID))
			hub.CaptureException(err)
		})
	}
	if he, ok := err.(*echo.HTTPError); ok {
		c.JSON(he.Code, he.Message)
		return
	}
	c.JSON(http.StatusInternalServerError, GeneralServerError)
}

// HTTPError renders an ErrorResponse as an echo error so the central
// handler serializes it consistently.
func HTTPError(resp ErrorResponse) *echo.HTTPError {
	return echo.NewHTTPError(resp.HttpStatusCode, echo.Map{
		"error":   resp.Error,
		"code":    resp.Code,
		"message": resp.Message,
	})
}
